// Package config provides helpers shared by the YAML configuration loaders
package config

import (
	"bytes"
	"os"
	"regexp"
)

// matches ${VAR}, ${env:VAR}, ${VAR:-default} and their $$-escaped forms
var envVarRegex = regexp.MustCompile(`\$?\$\{(?:env:)?([a-zA-Z_][a-zA-Z0-9_]*)(?::-([^}]*))?\}`)

// ReplaceEnv expands the environment variable references in a YAML document.
// An unset or empty variable expands to its default, if any.
// A $$ prefix escapes the reference, which is kept with a single $.
func ReplaceEnv(content []byte) []byte {
	return envVarRegex.ReplaceAllFunc(content, func(match []byte) []byte {
		if bytes.HasPrefix(match, []byte("$$")) {
			return match[1:]
		}
		groups := envVarRegex.FindSubmatch(match)
		value := os.Getenv(string(groups[1]))
		if value == "" {
			value = string(groups[2])
		}
		return []byte(value)
	})
}
