package config

import (
	"reflect"
	"slices"

	"github.com/ovleluv/AIContract-STT/internal/contract"
)

// ConfigDiff describes what changed between two configs. Only settings
// that are applied without a restart are tracked; everything else needs a
// restart and is reported by RestartRequired.
type ConfigDiff struct {
	LogLevelChanged bool
	NewLogLevel     LogLevel

	CatalogChanged bool
	NewCatalog     contract.Catalog

	MergeChanged      bool
	NewMergeStrategy  string
	NewFuzzyThreshold float64

	// RestartRequired lists changed sections that are only read at
	// startup.
	RestartRequired []string
}

// Empty reports whether the diff has nothing to apply or report.
func (d ConfigDiff) Empty() bool {
	return !d.LogLevelChanged && !d.CatalogChanged && !d.MergeChanged && len(d.RestartRequired) == 0
}

// Diff compares old and new configs.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}
	if !slices.Equal(old.Pipeline.Catalog, new.Pipeline.Catalog) {
		d.CatalogChanged = true
		d.NewCatalog = slices.Clone(new.Pipeline.Catalog)
	}
	if old.Merge.Strategy != new.Merge.Strategy || old.Merge.FuzzyThreshold != new.Merge.FuzzyThreshold {
		d.MergeChanged = true
		d.NewMergeStrategy = new.Merge.Strategy
		d.NewFuzzyThreshold = new.Merge.FuzzyThreshold
	}

	d.RestartRequired = changedSections(old, new)
	return d
}

// changedSections lists the sections that differ outside the hot-reloadable
// fields.
func changedSections(old, new *Config) []string {
	o, n := *old, *new
	o.Server.LogLevel, n.Server.LogLevel = "", ""
	o.Pipeline.Catalog, n.Pipeline.Catalog = nil, nil
	o.Merge.Strategy, n.Merge.Strategy = "", ""
	o.Merge.FuzzyThreshold, n.Merge.FuzzyThreshold = 0, 0

	var out []string
	for _, s := range []struct {
		name string
		a, b any
	}{
		{"server", o.Server, n.Server},
		{"providers", o.Providers, n.Providers},
		{"gateway", o.Gateway, n.Gateway},
		{"pipeline", o.Pipeline, n.Pipeline},
		{"merge", o.Merge, n.Merge},
		{"session", o.Session, n.Session},
		{"store", o.Store, n.Store},
		{"export", o.Export, n.Export},
		{"stt", o.STT, n.STT},
	} {
		if !reflect.DeepEqual(s.a, s.b) {
			out = append(out, s.name)
		}
	}
	return out
}
