package config

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
)

// Config holds application configuration.
type Config struct {
	// CompactMaxTokens is the conversation token budget before compaction
	// triggers. Tokens are estimated, not tokenized (see internal/compact).
	CompactMaxTokens int `json:"compact_max_tokens"`

	// CompactMinTurnsKept is the minimum number of most-recent turns kept
	// verbatim through a compaction.
	CompactMinTurnsKept int `json:"compact_min_turns_kept"`

	// CompactOverlap is the number of turns repeated across compaction
	// boundaries to avoid context discontinuity.
	CompactOverlap int `json:"compact_overlap"`

	// SummaryMaxChars is the maximum character length for a generated
	// compaction summary.
	SummaryMaxChars int `json:"summary_max_chars"`

	// PriorityKeywords is the allow-list used by the fact extractor to
	// qualify commitment sentences. Empty means use the built-in list.
	PriorityKeywords []string `json:"priority_keywords,omitempty"`

	// MetricsPath is the impact tracker's persistence file. Relative paths
	// are resolved against the base directory.
	MetricsPath string `json:"metrics_path,omitempty"`

	// DBMaxOpenConns limits the maximum number of open database connections.
	// If set to 1, all database access is serialized (reduces "database is
	// locked" errors). 0 means use sql.DB default.
	DBMaxOpenConns int `json:"db_max_open_conns,omitempty"`

	// DBMaxIdleConns limits the maximum number of idle database connections.
	// 0 means use sql.DB default. Typically set equal to DBMaxOpenConns.
	DBMaxIdleConns int `json:"db_max_idle_conns,omitempty"`

	// DisabledTools is a list of MCP tool names to exclude from registration.
	// Unknown tool names are logged as warnings.
	DisabledTools []string `json:"disabled_tools,omitempty"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		CompactMaxTokens:    4000,
		CompactMinTurnsKept: 3,
		CompactOverlap:      1,
		SummaryMaxChars:     500,
		MetricsPath:         "metrics.json",
	}
}

// Load loads configuration from baseDir/config.json.
// Returns default config if the file doesn't exist.
// The baseDir parameter allows tests to use t.TempDir() instead of ~/.loam.
func Load(baseDir string) (*Config, error) {
	return loadFile(filepath.Join(baseDir, "config.json"))
}

// LoadWithRepo loads configuration from both global (~/.loam) and repo
// (.loam) directories. Repo config is found by walking upward from startDir
// to find the nearest .loam/config.json. Repo config takes precedence for
// scalar values; arrays are merged (deduplicated). Either or both configs
// may be missing.
func LoadWithRepo(globalDir, startDir string) (*Config, error) {
	global, err := loadFileRaw(filepath.Join(globalDir, "config.json"))
	if err != nil {
		return nil, err
	}

	repoConfigPath := FindRepoConfig(startDir)
	repo, err := loadFileRaw(repoConfigPath)
	if err != nil {
		return nil, err
	}

	// Apply defaults, then global, then repo
	return Merge(Merge(DefaultConfig(), global), repo), nil
}

// FindRepoConfig walks upward from startDir to find the nearest
// .loam/config.json. Returns the path if found, or empty string if not.
func FindRepoConfig(startDir string) string {
	dir := startDir
	for {
		configPath := filepath.Join(dir, ".loam", "config.json")
		if _, err := os.Stat(configPath); err == nil {
			return configPath
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			// Reached root, not found
			return ""
		}
		dir = parent
	}
}

// loadFileRaw loads configuration from a specific file path.
// Returns zero-valued config if the file doesn't exist (not defaults).
func loadFileRaw(configPath string) (*Config, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return &Config{}, nil
		}
		return nil, err
	}

	cfg := &Config{}
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// loadFile loads configuration from a specific file path.
// Returns default config if the file doesn't exist.
func loadFile(configPath string) (*Config, error) {
	cfg, err := loadFileRaw(configPath)
	if err != nil {
		return nil, err
	}
	return Merge(DefaultConfig(), cfg), nil
}

// Merge combines base and overlay configs.
// Overlay values take precedence for scalars; arrays are merged and deduplicated.
func Merge(base, overlay *Config) *Config {
	result := &Config{}

	result.CompactMaxTokens = overlay.CompactMaxTokens
	if result.CompactMaxTokens == 0 {
		result.CompactMaxTokens = base.CompactMaxTokens
	}

	result.CompactMinTurnsKept = overlay.CompactMinTurnsKept
	if result.CompactMinTurnsKept == 0 {
		result.CompactMinTurnsKept = base.CompactMinTurnsKept
	}

	result.CompactOverlap = overlay.CompactOverlap
	if result.CompactOverlap == 0 {
		result.CompactOverlap = base.CompactOverlap
	}

	result.SummaryMaxChars = overlay.SummaryMaxChars
	if result.SummaryMaxChars == 0 {
		result.SummaryMaxChars = base.SummaryMaxChars
	}

	result.MetricsPath = overlay.MetricsPath
	if result.MetricsPath == "" {
		result.MetricsPath = base.MetricsPath
	}

	result.DBMaxOpenConns = overlay.DBMaxOpenConns
	if result.DBMaxOpenConns == 0 {
		result.DBMaxOpenConns = base.DBMaxOpenConns
	}

	result.DBMaxIdleConns = overlay.DBMaxIdleConns
	if result.DBMaxIdleConns == 0 {
		result.DBMaxIdleConns = base.DBMaxIdleConns
	}

	// Arrays: merge and deduplicate
	result.PriorityKeywords = mergeStringSlice(base.PriorityKeywords, overlay.PriorityKeywords)
	result.DisabledTools = mergeStringSlice(base.DisabledTools, overlay.DisabledTools)

	return result
}

// mergeStringSlice combines two slices, trims whitespace, and removes duplicates.
func mergeStringSlice(a, b []string) []string {
	seen := make(map[string]bool)
	result := make([]string, 0, len(a)+len(b))

	for _, s := range a {
		s = strings.TrimSpace(s)
		if s != "" && !seen[s] {
			seen[s] = true
			result = append(result, s)
		}
	}
	for _, s := range b {
		s = strings.TrimSpace(s)
		if s != "" && !seen[s] {
			seen[s] = true
			result = append(result, s)
		}
	}

	if len(result) == 0 {
		return nil
	}
	return result
}
