package pii

import (
	"regexp"
	"strings"
)

// nameDetector finds person names by combining a given-name lexicon with a
// capitalized-token heuristic. Lexicon hits score above the redaction
// threshold; bare capitalized tokens mid-sentence score below it and are
// surfaced as advisory entities only.
type nameDetector struct {
	lexicon map[string]struct{}
	tokenRe *regexp.Regexp
}

// Common given names. These lists trade completeness for precision: the
// heuristic path still flags unknown capitalized tokens at low confidence.
var givenNames = map[string][]string{
	"en": {
		"james", "mary", "john", "patricia", "robert", "jennifer", "michael",
		"linda", "david", "elizabeth", "william", "barbara", "richard", "susan",
		"joseph", "jessica", "thomas", "sarah", "daniel", "karen", "emily",
		"matthew", "anna", "christopher", "laura", "andrew", "rachel",
	},
	"ru": {
		"александр", "елена", "сергей", "ольга", "дмитрий", "наталья", "андрей",
		"татьяна", "алексей", "ирина", "максим", "светлана", "иван", "анна",
		"михаил", "мария", "владимир", "екатерина", "николай", "юлия", "олег",
		"полина", "игорь", "дарья", "виктор", "надежда", "саша", "катя", "маша",
		"дима", "лена", "оля",
	},
}

var (
	latinToken    = regexp.MustCompile(`\b[A-Z][a-z]{2,}\b`)
	cyrillicToken = regexp.MustCompile(`\p{Lu}\p{Ll}{2,}`)
)

func newNameDetector(locale string) *nameDetector {
	lex := make(map[string]struct{})
	for _, n := range givenNames[locale] {
		lex[n] = struct{}{}
	}
	tokenRe := latinToken
	if locale == "ru" {
		tokenRe = cyrillicToken
	}
	return &nameDetector{lexicon: lex, tokenRe: tokenRe}
}

func (d *nameDetector) detect(text string) []Entity {
	var entities []Entity
	for _, span := range d.tokenRe.FindAllStringIndex(text, -1) {
		token := strings.ToLower(text[span[0]:span[1]])
		if _, ok := d.lexicon[token]; ok {
			entities = append(entities, Entity{
				Type:       TypePersonName,
				Span:       [2]int{span[0], span[1]},
				Confidence: 0.85,
			})
			continue
		}
		// Sentence-initial capitals are usually not names; skip them.
		if isSentenceStart(text, span[0]) {
			continue
		}
		entities = append(entities, Entity{
			Type:       TypePersonName,
			Span:       [2]int{span[0], span[1]},
			Confidence: 0.4,
		})
	}
	return entities
}

func isSentenceStart(text string, offset int) bool {
	for i := offset - 1; i >= 0; i-- {
		c := text[i]
		switch {
		case c == ' ' || c == '\n' || c == '\t' || c == '\r':
			continue
		case c == '.' || c == '!' || c == '?':
			return true
		default:
			return false
		}
	}
	return true
}
