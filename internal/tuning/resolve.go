package tuning

// Source names the level a trigger setting was taken from.
type Source string

const (
	SourceGlobal Source = "global"
	SourceLocal  Source = "local"
	SourceForced Source = "forced"
)

// Global is the process-wide setting for a trigger (autotune or
// auto-advance).
type Global struct {
	Enabled   bool
	Threshold int
	// ForceGlobal makes the global setting win over every local override.
	ForceGlobal bool
}

// Override is a per-coefficient trigger setting.
type Override struct {
	Enabled   bool
	Threshold int
}

// Trigger is an effective trigger setting.
type Trigger struct {
	Enabled   bool
	Threshold int
	Source    Source
}

// Resolve applies the three-level precedence: a forced global setting wins,
// then a local override, then the global default. A local override with a
// non-positive threshold keeps the global threshold.
func Resolve(global Global, local *Override) Trigger {
	switch {
	case global.ForceGlobal:
		return Trigger{Enabled: global.Enabled, Threshold: global.Threshold, Source: SourceForced}
	case local != nil:
		threshold := local.Threshold
		if threshold <= 0 {
			threshold = global.Threshold
		}
		return Trigger{Enabled: local.Enabled, Threshold: threshold, Source: SourceLocal}
	default:
		return Trigger{Enabled: global.Enabled, Threshold: global.Threshold, Source: SourceGlobal}
	}
}
