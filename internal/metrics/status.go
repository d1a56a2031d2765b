package metrics

import "sort"

// StatusBucket is the count of records for one outcome/code pair.
type StatusBucket struct {
	Outcome string
	Code    string
	Count   int
}

// FlattenStatusBuckets converts a nested outcome->code map into a sorted slice of StatusBucket rows.
// Rows are sorted by descending count, then by outcome/code for stability.
func FlattenStatusBuckets(buckets map[string]map[string]int) []StatusBucket {
	if len(buckets) == 0 {
		return nil
	}
	rows := make([]StatusBucket, 0)
	for outcome, codes := range buckets {
		for code, count := range codes {
			rows = append(rows, StatusBucket{Outcome: outcome, Code: code, Count: count})
		}
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].Count == rows[j].Count {
			if rows[i].Outcome == rows[j].Outcome {
				return rows[i].Code < rows[j].Code
			}
			return rows[i].Outcome < rows[j].Outcome
		}
		return rows[i].Count > rows[j].Count
	})
	return rows
}

// FilterFailures drops SUCCESS rows.
func FilterFailures(rows []StatusBucket) []StatusBucket {
	out := rows[:0:0]
	for _, row := range rows {
		if row.Outcome != "SUCCESS" {
			out = append(out, row)
		}
	}
	return out
}
