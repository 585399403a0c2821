package compact

import "github.com/evergreen-lab/loam/internal/config"

// ConfigFrom maps application configuration onto a compaction Config.
func ConfigFrom(app *config.Config) Config {
	if app == nil {
		return DefaultConfig()
	}
	return Config{
		MaxTokens:       app.CompactMaxTokens,
		MinTurnsToKeep:  app.CompactMinTurnsKept,
		OverlapSize:     app.CompactOverlap,
		SummaryMaxChars: app.SummaryMaxChars,
		Keywords:        app.PriorityKeywords,
	}.withDefaults()
}
