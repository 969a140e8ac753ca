package domain

import (
	m "tessel.dev/pkg/tessel/internal/model"
)

const (
	// TagExclusive marks targets that must not run alongside other tests.
	TagExclusive = "exclusive"
	// TagExternal marks targets whose results depend on the outside world.
	TagExternal = "external"

	flagTestStrategy     = "test_strategy"
	flagCacheTestResults = "cache_test_results"
	flagTestFilter       = "test_filter"
)

// TagFlags maps target tags to the flags they imply. Unknown tags contribute nothing.
func TagFlags(tags []string) m.Flags {
	flags := m.Flags{}

	for _, tag := range tags {
		switch tag {
		case TagExclusive:
			flags[flagTestStrategy] = "exclusive"
		case TagExternal:
			flags[flagCacheTestResults] = "no"
		}
	}

	return flags
}

// FlagConfig holds the configured flag layers.
type FlagConfig struct {
	Defaults m.Flags
	Global   m.Flags
}

// FlagResolver computes the flags of one target invocation.
type FlagResolver interface {
	// TagFlags returns the tag-derived flags of label. Unknown targets yield no flags.
	TagFlags(label string) m.Flags

	// Resolve layers defaults, global config, overrides, tag flags and the test filter,
	// each overriding the keys of the previous ones.
	Resolve(label string, overrides m.Flags, testFilter string) m.Flags
}

type flagResolver struct {
	config  FlagConfig
	targets TargetLookup
}

// NewFlagResolver constructs a FlagResolver that looks up target tags through targets.
func NewFlagResolver(config FlagConfig, targets TargetLookup) FlagResolver {
	return &flagResolver{config: config, targets: targets}
}

func (r *flagResolver) TagFlags(label string) m.Flags {
	target, ok := r.targets.Lookup(label)
	if !ok {
		return m.Flags{}
	}

	return TagFlags(target.Tags)
}

func (r *flagResolver) Resolve(label string, overrides m.Flags, testFilter string) m.Flags {
	flags := m.Flags{}

	for _, layer := range []m.Flags{r.config.Defaults, r.config.Global, overrides, r.TagFlags(label)} {
		for key, value := range layer {
			flags[key] = value
		}
	}

	if testFilter != "" {
		flags[flagTestFilter] = testFilter
	}

	return flags
}
