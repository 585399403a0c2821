// Package compact keeps a running conversation within a fixed token budget
// by folding older turns into a short deterministic summary while
// preserving high-value facts (commitments, measured quantities,
// identity/location facts). Every decision is a pure function of the input
// turns and the config: no model calls, no stored state, no I/O.
package compact

import (
	"fmt"
	"strings"
)

// CharsPerToken is the fixed character-per-token ratio used for budget
// estimates. This is a deliberate heuristic, not a tokenizer; callers with
// a real tokenizer can override it per Compactor via SetEstimator.
const CharsPerToken = 4

// maxPreservedFacts caps the preserved-fact list of a compaction result.
const maxPreservedFacts = 10

// maxSummaryFacts caps the facts folded into the summary string.
const maxSummaryFacts = 5

// EstimateTokens estimates the token count of text as len/CharsPerToken
// (integer division).
func EstimateTokens(text string) int {
	return len(text) / CharsPerToken
}

// Turn is one conversation message.
type Turn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Config controls one Compactor. Zero fields take defaults; the struct is
// not mutated after construction.
type Config struct {
	// MaxTokens is the token budget ceiling. A turn sequence whose
	// estimated tokens stay at or under this is never summarized.
	MaxTokens int

	// MinTurnsToKeep is the minimum number of most-recent turns always
	// kept verbatim.
	MinTurnsToKeep int

	// OverlapSize is the number of turns repeated across compaction
	// boundaries to avoid context discontinuity.
	OverlapSize int

	// SummaryMaxChars is the hard character cap for a generated summary.
	// Truncation is character-based, not word-aware.
	SummaryMaxChars int

	// Keywords is the fact extractor's allow-list. Empty means
	// DefaultKeywords.
	Keywords []string
}

// DefaultConfig returns the default compaction configuration.
func DefaultConfig() Config {
	return Config{
		MaxTokens:       4000,
		MinTurnsToKeep:  3,
		OverlapSize:     1,
		SummaryMaxChars: 500,
	}
}

// withDefaults fills zero fields from DefaultConfig.
func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.MaxTokens == 0 {
		c.MaxTokens = def.MaxTokens
	}
	if c.MinTurnsToKeep == 0 {
		c.MinTurnsToKeep = def.MinTurnsToKeep
	}
	if c.OverlapSize == 0 {
		c.OverlapSize = def.OverlapSize
	}
	if c.SummaryMaxChars == 0 {
		c.SummaryMaxChars = def.SummaryMaxChars
	}
	return c
}

// Result is the outcome of one compaction pass. Produced fresh on every
// call; never persisted by this package.
type Result struct {
	OriginalTokens   int      `json:"original_tokens"`
	CompactedTokens  int      `json:"compacted_tokens"`
	CompressionRatio float64  `json:"compression_ratio"`
	Summary          string   `json:"summary"`
	PreservedFacts   []string `json:"preserved_facts"`
	KeptTurns        int      `json:"kept_turns"`
	CompactedTurns   int      `json:"compacted_turns"`
}

// topicGroups are the fixed keyword groups used to tag summarized turns.
// Order is fixed so summaries are deterministic.
var topicGroups = []struct {
	name     string
	keywords []string
}{
	{"diet", []string{"food", "eat", "meal", "meat", "vegetarian"}},
	{"transport", []string{"car", "drive", "commute", "flight", "train"}},
	{"energy", []string{"electricity", "energy", "power", "heating"}},
	{"footprint", []string{"footprint", "emissions", "carbon", "co2"}},
}

// Compactor makes the keep/fold decisions for a conversation. Safe for
// concurrent use: it never mutates shared state and reads only the
// caller-supplied snapshot of turns.
type Compactor struct {
	cfg      Config
	ex       *Extractor
	estimate func(string) int
}

// New creates a Compactor for the given config.
func New(cfg Config) *Compactor {
	cfg = cfg.withDefaults()
	return &Compactor{
		cfg:      cfg,
		ex:       NewExtractor(cfg.Keywords),
		estimate: EstimateTokens,
	}
}

// SetEstimator replaces the token estimator, e.g. with a real tokenizer.
// Must be called before the Compactor is shared across goroutines.
func (c *Compactor) SetEstimator(fn func(string) int) {
	if fn != nil {
		c.estimate = fn
	}
}

// Config returns the effective configuration.
func (c *Compactor) Config() Config {
	return c.cfg
}

// Extractor returns the fact extractor backing this compactor.
func (c *Compactor) Extractor() *Extractor {
	return c.ex
}

// Compact decides which turns survive verbatim and folds the rest into a
// summary plus preserved facts.
//
// A sequence within budget is never truncated or summarized: the result
// carries the full turn count, ratio 1.0, and an empty summary (facts are
// still extracted so callers can persist them).
func (c *Compactor) Compact(turns []Turn) Result {
	if len(turns) == 0 {
		return Result{CompressionRatio: 1.0, PreservedFacts: []string{}}
	}

	fullText := joinContents(turns)
	originalTokens := c.estimate(fullText)

	if originalTokens <= c.cfg.MaxTokens {
		return Result{
			OriginalTokens:   originalTokens,
			CompactedTokens:  originalTokens,
			CompressionRatio: 1.0,
			Summary:          "",
			PreservedFacts:   c.ex.Extract(fullText),
			KeptTurns:        len(turns),
			CompactedTurns:   0,
		}
	}

	keepCount := max(c.cfg.MinTurnsToKeep, len(turns)/3)
	if keepCount > len(turns) {
		keepCount = len(turns)
	}

	toSummarize := turns[:len(turns)-keepCount]
	toKeep := turns[len(turns)-keepCount:]

	summary := c.summarizeTurns(toSummarize)

	// Facts come from the entire original text, not just the folded
	// portion, so facts mentioned only in kept turns still surface.
	facts := c.ex.Extract(fullText)
	if len(facts) > maxPreservedFacts {
		facts = facts[:maxPreservedFacts]
	}

	compactedTokens := c.estimate(summary + " " + joinContents(toKeep))

	ratio := 1.0
	if originalTokens > 0 {
		ratio = float64(compactedTokens) / float64(originalTokens)
	}

	return Result{
		OriginalTokens:   originalTokens,
		CompactedTokens:  compactedTokens,
		CompressionRatio: ratio,
		Summary:          summary,
		PreservedFacts:   facts,
		KeptTurns:        len(toKeep),
		CompactedTurns:   len(toSummarize),
	}
}

// CompactedContext runs Compact and renders the prompt-ready context block.
// An empty return means no compaction was needed and the caller should use
// the full history.
func (c *Compactor) CompactedContext(turns []Turn) string {
	result := c.Compact(turns)
	if result.Summary == "" {
		return ""
	}

	parts := []string{result.Summary}
	if len(result.PreservedFacts) > 0 {
		parts = append(parts, "[Preserved facts: "+strings.Join(result.PreservedFacts, "; ")+"]")
	}
	return strings.Join(parts, "\n")
}

// summarizeTurns builds the deterministic summary for the folded turns:
// the set of topics touched plus the top facts found in them.
func (c *Compactor) summarizeTurns(turns []Turn) string {
	if len(turns) == 0 {
		return ""
	}

	var facts []string
	topicSeen := make(map[string]bool)

	for _, turn := range turns {
		facts = append(facts, c.ex.Extract(turn.Content)...)

		contentLower := strings.ToLower(turn.Content)
		for _, group := range topicGroups {
			if topicSeen[group.name] {
				continue
			}
			if containsAny(contentLower, group.keywords) {
				topicSeen[group.name] = true
			}
		}
	}

	var parts []string

	// Fixed group order keeps the topic list deterministic.
	var topics []string
	for _, group := range topicGroups {
		if topicSeen[group.name] {
			topics = append(topics, group.name)
		}
	}
	if len(topics) > 0 {
		parts = append(parts, fmt.Sprintf("[Previous discussion covered: %s]", strings.Join(topics, ", ")))
	}

	if facts = dedupe(facts); len(facts) > 0 {
		if len(facts) > maxSummaryFacts {
			facts = facts[:maxSummaryFacts]
		}
		parts = append(parts, "[Key facts: "+strings.Join(facts, "; ")+"]")
	}

	summary := strings.Join(parts, " ")

	// Character-based truncation; not word-aware. A limit too small to
	// hold the ellipsis truncates without one.
	if max := c.cfg.SummaryMaxChars; len(summary) > max {
		if max < 3 {
			summary = summary[:max]
		} else {
			summary = summary[:max-3] + "..."
		}
	}

	return summary
}

// joinContents space-joins turn contents. A turn with missing content
// contributes an empty string rather than failing.
func joinContents(turns []Turn) string {
	contents := make([]string, len(turns))
	for i, t := range turns {
		contents[i] = t.Content
	}
	return strings.Join(contents, " ")
}
