package config

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// settingKeys returns the spellings a config file or environment may use for
// name. viper lowercases keys, so "refids_file" also matches refidsFile and
// refids-file.
func settingKeys(name string) []string {
	name = strings.ToLower(name)
	keys := []string{name}
	if strings.ContainsAny(name, "_-") {
		keys = append(keys,
			strings.NewReplacer("_", "", "-", "").Replace(name),
			strings.ReplaceAll(name, "_", "-"),
			strings.ReplaceAll(name, "-", "_"),
		)
	}
	return keys
}

// lookupSetting returns the first value found under any spelling of names.
func lookupSetting(settings map[string]interface{}, names ...string) (interface{}, bool) {
	for _, name := range names {
		for _, key := range settingKeys(name) {
			if val, ok := settings[key]; ok {
				return val, true
			}
		}
	}
	return nil, false
}

func asString(value interface{}) (string, error) {
	switch v := value.(type) {
	case nil:
		return "", nil
	case string:
		return v, nil
	case []byte:
		return string(v), nil
	case fmt.Stringer:
		return v.String(), nil
	default:
		return fmt.Sprint(v), nil
	}
}

// asInt accepts whole numbers only; "workers: 2.5" is an error rather than 2.
func asInt(value interface{}) (int, error) {
	switch v := value.(type) {
	case nil:
		return 0, nil
	case int:
		return v, nil
	case int32:
		return int(v), nil
	case int64:
		return int(v), nil
	case uint64:
		if v > math.MaxInt {
			return 0, fmt.Errorf("%d is out of range", v)
		}
		return int(v), nil
	case float64:
		if v != math.Trunc(v) {
			return 0, fmt.Errorf("%v is not a whole number", v)
		}
		return int(v), nil
	case string:
		s := strings.TrimSpace(v)
		if s == "" {
			return 0, nil
		}
		return strconv.Atoi(s)
	default:
		return 0, fmt.Errorf("unsupported numeric type %T", value)
	}
}

func asFloat64(value interface{}) (float64, error) {
	switch v := value.(type) {
	case nil:
		return 0, nil
	case float64:
		return v, nil
	case int:
		return float64(v), nil
	case int64:
		return float64(v), nil
	case string:
		s := strings.TrimSpace(v)
		if s == "" {
			return 0, nil
		}
		return strconv.ParseFloat(s, 64)
	default:
		return 0, fmt.Errorf("unsupported float type %T", value)
	}
}

func asBool(value interface{}) (bool, error) {
	switch v := value.(type) {
	case nil:
		return false, nil
	case bool:
		return v, nil
	case string:
		s := strings.TrimSpace(v)
		if s == "" {
			return false, nil
		}
		return strconv.ParseBool(s)
	default:
		return false, fmt.Errorf("unsupported boolean type %T", value)
	}
}

// asDuration reads "15s" style strings. Bare numbers, including numeric
// strings such as CRANKPING_TIMEOUT=15, are seconds.
func asDuration(value interface{}) (time.Duration, error) {
	switch v := value.(type) {
	case nil:
		return 0, nil
	case time.Duration:
		return v, nil
	case string:
		s := strings.TrimSpace(v)
		if s == "" {
			return 0, nil
		}
		if secs, err := strconv.ParseFloat(s, 64); err == nil {
			return seconds(secs), nil
		}
		return time.ParseDuration(s)
	case float64:
		return seconds(v), nil
	default:
		n, err := asInt(v)
		if err != nil {
			return 0, fmt.Errorf("unsupported duration type %T", value)
		}
		return time.Duration(n) * time.Second, nil
	}
}

func seconds(v float64) time.Duration {
	return time.Duration(v * float64(time.Second))
}

// asHeaders reads a header table. Keys must be non-empty.
func asHeaders(value interface{}) (map[string]string, error) {
	if value == nil {
		return nil, nil
	}
	var raw map[string]interface{}
	switch v := value.(type) {
	case map[string]string:
		raw = make(map[string]interface{}, len(v))
		for k, val := range v {
			raw[k] = val
		}
	case map[string]interface{}, map[interface{}]interface{}:
		m, err := toStringKeyMap(v, false)
		if err != nil {
			return nil, err
		}
		raw = m
	default:
		return nil, fmt.Errorf("unsupported headers type %T", value)
	}

	headers := make(map[string]string, len(raw))
	for k, val := range raw {
		if strings.TrimSpace(k) == "" {
			return nil, fmt.Errorf("header key cannot be empty")
		}
		str, err := asString(val)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", k, err)
		}
		headers[k] = str
	}
	return headers, nil
}

// asList reads a list setting. With splitCommas a single string is read the
// way REFIDS is ("a, b,c"); without it the string is one entry, which keeps
// user agents such as "(KHTML, like Gecko)" intact.
func asList(value interface{}, splitCommas bool) ([]string, error) {
	switch v := value.(type) {
	case nil:
		return nil, nil
	case []string:
		return append([]string(nil), v...), nil
	case []interface{}:
		out := make([]string, len(v))
		for i, item := range v {
			str, err := asString(item)
			if err != nil {
				return nil, fmt.Errorf("index %d: %w", i, err)
			}
			out[i] = str
		}
		return out, nil
	case string:
		if !splitCommas {
			return []string{v}, nil
		}
		parts := strings.Split(v, ",")
		out := make([]string, 0, len(parts))
		for _, part := range parts {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
		return out, nil
	default:
		return nil, fmt.Errorf("unsupported list type %T", value)
	}
}

// toStringKeyMap converts a nested section such as tracing. Keys are
// lowercased when fold is set.
func toStringKeyMap(value interface{}, fold bool) (map[string]interface{}, error) {
	key := func(k string) string {
		k = strings.TrimSpace(k)
		if fold {
			k = strings.ToLower(k)
		}
		return k
	}
	result := map[string]interface{}{}
	switch v := value.(type) {
	case map[string]interface{}:
		for k, val := range v {
			result[key(k)] = val
		}
	case map[interface{}]interface{}:
		for k, val := range v {
			str, err := asString(k)
			if err != nil {
				return nil, err
			}
			result[key(str)] = val
		}
	default:
		return nil, fmt.Errorf("expected map, got %T", value)
	}
	return result, nil
}
