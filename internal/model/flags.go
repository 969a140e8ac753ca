package model

import (
	"sort"
	"strings"
)

// Flags is a set of build tool flags keyed by flag name (without leading dashes).
// An empty value renders as a bare flag.
type Flags map[string]string

// Args renders the flags as command-line arguments sorted by key.
func (f Flags) Args() []string {
	keys := make([]string, 0, len(f))
	for key := range f {
		keys = append(keys, key)
	}

	sort.Strings(keys)

	args := make([]string, 0, len(keys))

	for _, key := range keys {
		value := f[key]
		if value == "" {
			args = append(args, "--"+key)
			continue
		}

		args = append(args, "--"+key+"="+value)
	}

	return args
}

// ParseFlag parses "key=value", "--key=value" or a bare "key" into a key and value.
func ParseFlag(raw string) (string, string) {
	raw = strings.TrimLeft(strings.TrimSpace(raw), "-")

	key, value, _ := strings.Cut(raw, "=")

	return strings.TrimSpace(key), strings.TrimSpace(value)
}
