package compact

import (
	"fmt"
	"regexp"
	"strings"
)

// DefaultKeywords is the built-in priority allow-list used to qualify
// commitment sentences. Callers may replace it via Config.Keywords.
var DefaultKeywords = []string{
	// Climate facts
	"co2", "carbon", "emissions", "footprint", "kg", "tons",
	// Diet
	"vegetarian", "vegan", "meat", "beef", "chicken",
	// Transport
	"car", "drive", "bicycle", "transit", "flight",
	// Energy
	"electric", "solar", "renewable",
	// Commitments
	"commit", "goal", "plan", "will", "promise",
	"meatless", "reduce", "switch", "change",
	// Location
	"live", "city", "country", "home",
}

// commitmentWords are the verbs/phrases that mark a sentence as a commitment.
var commitmentWords = []string{"commit", "will", "plan to", "going to", "promise", "goal"}

var (
	// quantityRegex matches a number followed by a mass unit and a
	// climate-impact noun, e.g. "15.2 kg co2" or "3 tonnes emissions".
	quantityRegex = regexp.MustCompile(`\d+(?:\.\d+)?\s*(?:kg|tons?|tonnes?)\s*(?:co2|carbon|emissions?)`)

	// sentenceRegex splits text into sentences at terminal punctuation.
	sentenceRegex = regexp.MustCompile(`[.!?]`)

	// preferencePatterns capture self-declared diet, transport habit, and
	// home location. First match only per pattern.
	preferencePatterns = []struct {
		re    *regexp.Regexp
		label string
	}{
		{regexp.MustCompile(`(?:i am|i'm|we are|we're)\s+(?:a\s+)?(vegetarian|vegan|omnivore|pescatarian)`), "Diet"},
		{regexp.MustCompile(`(?:i|we)\s+(?:drive|use|take|ride)\s+(?:a\s+)?(\w+(?:\s+\w+)?)\s+(?:to work|daily|regularly)`), "Transport"},
		{regexp.MustCompile(`(?:live|living)\s+in\s+(\w+(?:\s+\w+)?)`), "Location"},
	}
)

// Extractor mines normalized fact strings out of free text. It is a pure
// function over its input: no state, no side effects, identical output for
// identical input. This is heuristic pattern matching, not NLP; false
// negatives are expected and acceptable.
type Extractor struct {
	keywords []string
}

// NewExtractor creates an Extractor with the given keyword allow-list.
// An empty list falls back to DefaultKeywords.
func NewExtractor(keywords []string) *Extractor {
	if len(keywords) == 0 {
		keywords = DefaultKeywords
	}
	return &Extractor{keywords: keywords}
}

// Extract applies the three extraction rules (quantities, commitments,
// preferences) to text and returns the union, deduplicated in
// first-occurrence order.
func (e *Extractor) Extract(text string) []string {
	var facts []string
	textLower := strings.ToLower(text)

	// Quantity facts: number + mass unit + impact noun
	for _, match := range quantityRegex.FindAllString(textLower, -1) {
		facts = append(facts, "Emissions data: "+match)
	}

	// Commitment facts: sentences with a commitment word and a priority keyword
	for _, sentence := range sentenceRegex.Split(text, -1) {
		sentenceLower := strings.ToLower(sentence)
		if !containsAny(sentenceLower, commitmentWords) {
			continue
		}
		if !containsAny(sentenceLower, e.keywords) {
			continue
		}
		facts = append(facts, "Commitment: "+strings.TrimSpace(sentence))
	}

	// Preference facts: first match only per pattern
	for _, p := range preferencePatterns {
		if m := p.re.FindStringSubmatch(textLower); m != nil {
			facts = append(facts, fmt.Sprintf("%s: %s", p.label, m[1]))
		}
	}

	return dedupe(facts)
}

// containsAny reports whether s contains any of the given substrings.
func containsAny(s string, subs []string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

// dedupe removes duplicates preserving first-occurrence order.
func dedupe(facts []string) []string {
	seen := make(map[string]bool, len(facts))
	result := facts[:0]
	for _, f := range facts {
		if !seen[f] {
			seen[f] = true
			result = append(result, f)
		}
	}
	return result
}
