package crisis

import (
	"regexp"
	"strings"
)

// lexiconEntry is a known high-risk phrase with its severity. Severity is the
// floor the phrase imposes on the combined crisis score; the most severe
// matching phrase wins.
type lexiconEntry struct {
	phrase   string
	severity float64
}

// The lexicon is the fail-safe floor under the classifier model: a model miss
// on any of these phrases can never drop the combined score below the listed
// severity. Phrases are matched case-insensitively on word boundaries.
var lexicon = []lexiconEntry{
	// English
	{"kill myself", 0.95},
	{"end my life", 0.95},
	{"suicide", 0.9},
	{"want to die", 0.9},
	{"better off dead", 0.85},
	{"hurt myself", 0.8},
	{"no reason to live", 0.85},
	{"can't go on", 0.75},
	{"end it all", 0.8},
	{"hurt him", 0.7},
	{"hurt her", 0.7},
	{"make them pay", 0.7},

	// Russian
	{"покончить с собой", 0.95},
	{"покончить с этим", 0.85},
	{"убить себя", 0.95},
	{"не хочу жить", 0.9},
	{"хочу умереть", 0.9},
	{"нет смысла жить", 0.85},
	{"больше не могу", 0.75},
	{"свести счёты с жизнью", 0.95},
	{"свести счеты с жизнью", 0.95},
	{"причинить себе", 0.8},
	{"наложить на себя руки", 0.95},
}

type compiledEntry struct {
	phrase   string
	severity float64
	re       *regexp.Regexp
}

// KeywordScorer matches a message against the crisis lexicon.
type KeywordScorer struct {
	entries []compiledEntry
}

// NewKeywordScorer compiles the built-in lexicon plus any extra phrases
// (extra phrases get the given severity).
func NewKeywordScorer(extra []string, extraSeverity float64) *KeywordScorer {
	ks := &KeywordScorer{}
	for _, e := range lexicon {
		ks.entries = append(ks.entries, compile(e.phrase, e.severity))
	}
	for _, phrase := range extra {
		ks.entries = append(ks.entries, compile(phrase, extraSeverity))
	}
	return ks
}

func compile(phrase string, severity float64) compiledEntry {
	// \b does not work across Cyrillic; bound with a non-letter lookalike
	// class on each side instead.
	pattern := `(?i)(?:^|[^\p{L}])` + regexp.QuoteMeta(strings.ToLower(phrase)) + `(?:$|[^\p{L}])`
	return compiledEntry{
		phrase:   phrase,
		severity: severity,
		re:       regexp.MustCompile(pattern),
	}
}

// Score returns the highest severity among matched phrases and the phrases
// that matched. No match scores zero.
func (ks *KeywordScorer) Score(text string) (float64, []string) {
	var (
		best    float64
		matched []string
	)
	for _, e := range ks.entries {
		if e.re.MatchString(text) {
			matched = append(matched, e.phrase)
			if e.severity > best {
				best = e.severity
			}
		}
	}
	return best, matched
}
