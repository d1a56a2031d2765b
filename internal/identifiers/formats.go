package identifiers

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"strings"

	"github.com/tidwall/gjson"
	"gopkg.in/yaml.v3"
)

// parseText reads one identifier per line.
func parseText(data []byte) []string {
	var values []string
	scanner := bufio.NewScanner(bytes.NewReader(data))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		values = append(values, scanner.Text())
	}
	return values
}

// parseCSV treats the first row as the header and takes the column named by
// field, or the first column when field is empty.
func parseCSV(data []byte, field string) ([]string, error) {
	reader := csv.NewReader(bytes.NewReader(data))
	reader.TrimLeadingSpace = true

	rows, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read CSV: %w", err)
	}
	if len(rows) < 2 {
		return nil, errors.New("CSV file must have at least one header row and one data row")
	}

	header := rows[0]
	column := 0
	if field = strings.TrimSpace(field); field != "" {
		column = -1
		for i, name := range header {
			if strings.EqualFold(strings.TrimSpace(name), field) {
				column = i
				break
			}
		}
		if column < 0 {
			return nil, fmt.Errorf("CSV header has no column %q", field)
		}
	}

	values := make([]string, 0, len(rows)-1)
	for i, row := range rows[1:] {
		if len(row) != len(header) {
			return nil, fmt.Errorf("row %d has %d fields, expected %d", i+2, len(row), len(header))
		}
		values = append(values, row[column])
	}
	return values, nil
}

// parseJSON accepts an array of strings, or any document plus a gjson path
// (e.g. "items.#.refid") selecting the identifiers.
func parseJSON(data []byte, path string) ([]string, error) {
	if !gjson.ValidBytes(data) {
		return nil, errors.New("invalid JSON")
	}

	path = strings.TrimSpace(path)
	if strings.HasPrefix(path, "$.") {
		path = path[2:]
	}

	doc := gjson.ParseBytes(data)
	if path != "" {
		doc = doc.Get(path)
		if !doc.Exists() {
			return nil, fmt.Errorf("JSON path %q not found", path)
		}
	}

	if !doc.IsArray() {
		if doc.Type == gjson.String {
			return []string{doc.String()}, nil
		}
		return nil, errors.New("expected a JSON array of identifiers")
	}

	var values []string
	var bad error
	doc.ForEach(func(_, item gjson.Result) bool {
		switch item.Type {
		case gjson.String, gjson.Number:
			values = append(values, item.String())
			return true
		default:
			bad = fmt.Errorf("identifier %s is not a string", item.Raw)
			return false
		}
	})
	if bad != nil {
		return nil, bad
	}
	return values, nil
}

type yamlDocument struct {
	RefIDs      []string `yaml:"refids"`
	Identifiers []string `yaml:"identifiers"`
}

// parseYAML accepts a sequence of strings or a mapping with a refids (or
// identifiers) key.
func parseYAML(data []byte) ([]string, error) {
	var node yaml.Node
	if err := yaml.Unmarshal(data, &node); err != nil {
		return nil, fmt.Errorf("decode YAML: %w", err)
	}
	if len(node.Content) == 0 {
		return nil, nil
	}

	root := node.Content[0]
	switch root.Kind {
	case yaml.SequenceNode:
		var values []string
		if err := root.Decode(&values); err != nil {
			return nil, fmt.Errorf("decode YAML list: %w", err)
		}
		return values, nil
	case yaml.MappingNode:
		var doc yamlDocument
		if err := root.Decode(&doc); err != nil {
			return nil, fmt.Errorf("decode YAML mapping: %w", err)
		}
		if len(doc.RefIDs) > 0 {
			return doc.RefIDs, nil
		}
		return doc.Identifiers, nil
	default:
		return nil, errors.New("expected a YAML list or a mapping with a refids key")
	}
}
