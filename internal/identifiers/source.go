// Package identifiers resolves the ordered list of opaque identifiers the
// dispatcher cycles through.
package identifiers

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// EnvVar is the environment variable holding comma separated identifiers.
const EnvVar = "REFIDS"

// DefaultFile is consulted when neither a list nor the environment provide identifiers.
const DefaultFile = "refids.txt"

// ErrEmpty is returned when no source yields at least one identifier.
var ErrEmpty = errors.New("no identifiers provided: set REFIDS, pass --refid or provide a refids file")

// Format selects how an identifiers file is parsed.
type Format string

const (
	FormatAuto Format = ""
	FormatText Format = "txt"
	FormatCSV  Format = "csv"
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

// Origin records which source produced the identifiers.
type Origin string

const (
	OriginList Origin = "list"
	OriginEnv  Origin = "env"
	OriginFile Origin = "file"
)

// Options describe the candidate sources, in precedence order: List, Env, File.
type Options struct {
	List         []string
	Env          string // raw comma separated value
	File         string
	FileOptional bool // a missing File is skipped instead of failing
	Format       Format
	Field        string // CSV column or gjson path for JSON
}

// Set is a resolved, non-empty identifier list.
type Set struct {
	Values []string
	Origin Origin
	Path   string
}

// Len returns the number of identifiers.
func (s Set) Len() int {
	return len(s.Values)
}

// Resolve returns the identifiers from the first source that yields any.
func Resolve(opts Options) (Set, error) {
	if values := Normalize(opts.List); len(values) > 0 {
		return Set{Values: values, Origin: OriginList}, nil
	}

	if values := Split(opts.Env); len(values) > 0 {
		return Set{Values: values, Origin: OriginEnv}, nil
	}

	path := strings.TrimSpace(opts.File)
	if path == "" {
		return Set{}, ErrEmpty
	}
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) && opts.FileOptional {
			return Set{}, ErrEmpty
		}
		return Set{}, fmt.Errorf("identifiers file: %w", err)
	}

	values, err := LoadFile(path, opts.Format, opts.Field)
	if err != nil {
		return Set{}, err
	}
	if len(values) == 0 {
		return Set{}, fmt.Errorf("%w (file %s is empty)", ErrEmpty, path)
	}
	return Set{Values: values, Origin: OriginFile, Path: path}, nil
}

// Split parses a comma separated list.
func Split(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	return Normalize(strings.Split(raw, ","))
}

// Normalize trims every value and drops empty ones, keeping order.
func Normalize(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if trimmed := strings.TrimSpace(v); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

// DetectFormat picks a format from the file extension, defaulting to text.
func DetectFormat(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		return FormatCSV
	case ".json":
		return FormatJSON
	case ".yaml", ".yml":
		return FormatYAML
	default:
		return FormatText
	}
}

// ParseFormat validates a user supplied format name.
func ParseFormat(name string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(name))); f {
	case FormatAuto, FormatText, FormatCSV, FormatJSON, FormatYAML:
		return f, nil
	case "text":
		return FormatText, nil
	case "yml":
		return FormatYAML, nil
	default:
		return "", fmt.Errorf("unsupported identifiers format %q", name)
	}
}

// LoadFile reads identifiers from path in the given format.
func LoadFile(path string, format Format, field string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read identifiers file: %w", err)
	}
	if format == FormatAuto {
		format = DetectFormat(path)
	}

	var values []string
	switch format {
	case FormatText:
		values = parseText(data)
	case FormatCSV:
		values, err = parseCSV(data, field)
	case FormatJSON:
		values, err = parseJSON(data, field)
	case FormatYAML:
		values, err = parseYAML(data)
	default:
		return nil, fmt.Errorf("unsupported identifiers format %q", format)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return Normalize(values), nil
}
