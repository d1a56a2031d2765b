// Package config loads crankping settings from flags, an optional config
// file and the environment.
//
// Precedence is flag > file > environment. Environment variables use the
// CRANKPING_ prefix (CRANKPING_TARGET, CRANKPING_WORKERS, ...) except for
// REFIDS, which carries comma separated identifiers. Config files may spell
// keys in snake_case, kebab-case or camelCase.
package config
