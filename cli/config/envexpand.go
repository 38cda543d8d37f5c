// Package config handles YAML config file loading for tally commands.
package config

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"strings"
)

// envRef matches ${VAR}, ${VAR:-default} and ${VAR:?message}.
var envRef = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(?:(:[-?])([^}]*))?\}`)

// ExpandEnv expands environment references in input using the process
// environment. See ExpandEnvFunc.
func ExpandEnv(input string) (string, error) {
	return ExpandEnvFunc(input, os.LookupEnv)
}

// ExpandEnvFunc expands environment references in input using lookup.
//
// ${VAR} becomes the value, or "" when unset. ${VAR:-default} falls back to
// default when VAR is unset or empty. ${VAR:?message} is required: an unset
// or empty VAR is an error. Every missing required variable is reported.
func ExpandEnvFunc(input string, lookup func(string) (string, bool)) (string, error) {
	var (
		b       strings.Builder
		missing []error
		last    int
	)
	for _, m := range envRef.FindAllStringSubmatchIndex(input, -1) {
		b.WriteString(input[last:m[0]])
		last = m[1]

		name := input[m[2]:m[3]]
		value, _ := lookup(name)
		if value != "" {
			b.WriteString(value)
			continue
		}
		if m[4] < 0 {
			continue
		}
		arg := input[m[6]:m[7]]
		switch input[m[4]:m[5]] {
		case ":-":
			b.WriteString(arg)
		case ":?":
			if arg == "" {
				arg = "required"
			}
			missing = append(missing, fmt.Errorf("${%s}: %s", name, arg))
		}
	}
	b.WriteString(input[last:])

	if len(missing) > 0 {
		return "", errors.Join(missing...)
	}
	return b.String(), nil
}
