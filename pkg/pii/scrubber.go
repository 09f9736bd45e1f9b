package pii

import (
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/parentline/guardian/pkg/observability/metrics"
)

// ErrInputTooLarge is returned when the raw text exceeds the configured maximum.
var ErrInputTooLarge = errors.New("input exceeds maximum allowed length")

// EntityType identifies a detected PII category.
type EntityType string

const (
	TypePersonName    EntityType = "PERSON_NAME"
	TypePhoneNumber   EntityType = "PHONE_NUMBER"
	TypePostalAddress EntityType = "POSTAL_ADDRESS"
	TypeNationalID    EntityType = "NATIONAL_ID"
	TypeEmail         EntityType = "EMAIL"
)

// Entity is a single PII detection in the input text.
type Entity struct {
	Type       EntityType
	Span       [2]int // [start, end) byte offsets in the raw text
	Confidence float64
	Redacted   bool
}

// Result holds the scrubbed text and every detected entity.
type Result struct {
	ScrubbedText string
	Entities     []Entity
}

// detector pairs a compiled pattern with its category and a base confidence.
type detector struct {
	typ        EntityType
	re         *regexp.Regexp
	confidence float64
}

// Patterns are deliberately greedy on recall for phones/IDs/emails: a false
// placeholder in therapeutic text is recoverable, a leaked number is not.
var (
	emailRe = regexp.MustCompile(`[A-Za-z0-9._%+\-]+@[A-Za-z0-9.\-]+\.[A-Za-z]{2,}`)

	// International and RU-domestic phone formats: +79991234567, 8 (999) 123-45-67,
	// +1-202-555-0143, with optional separators.
	phoneRe = regexp.MustCompile(`(?:\+|\b8[\s\-(])[\d\s\-()]{9,16}\d`)

	// US SSN, RU passport series/number (4+6 digits), RU SNILS (XXX-XXX-XXX XX).
	ssnRe    = regexp.MustCompile(`\b\d{3}-\d{2}-\d{4}\b`)
	ruPassRe = regexp.MustCompile(`\b\d{4}\s\d{6}\b`)
	snilsRe  = regexp.MustCompile(`\b\d{3}-\d{3}-\d{3}\s?\d{2}\b`)

	// Street-address shapes: "12 Main Street", "ул. Ленина, д. 5".
	addrEnRe = regexp.MustCompile(`\b\d{1,5}\s+[A-Z][A-Za-z]+\s+(?:Street|St\.?|Avenue|Ave\.?|Road|Rd\.?|Lane|Ln\.?|Drive|Dr\.?|Boulevard|Blvd\.?)\b`)
	addrRuRe = regexp.MustCompile(`(?:ул\.|улица|просп\.|проспект|пер\.|переулок)\s+\p{Lu}\p{Ll}+(?:,?\s*(?:д\.|дом)\s*\d+[а-я]?)?`)
)

var commonDetectors = []detector{
	{TypeEmail, emailRe, 0.95},
	{TypePhoneNumber, phoneRe, 0.9},
	{TypeNationalID, ssnRe, 0.85},
	{TypeNationalID, ruPassRe, 0.7},
	{TypeNationalID, snilsRe, 0.85},
	{TypePostalAddress, addrEnRe, 0.75},
	{TypePostalAddress, addrRuRe, 0.75},
}

// Scrubber detects and redacts PII in free text.
type Scrubber struct {
	maxInputLength      int
	confidenceThreshold float64
	nameDetectors       map[string]*nameDetector
}

// Option configures a Scrubber.
type Option func(*Scrubber)

// WithMaxInputLength overrides the default 4096-character input cap.
func WithMaxInputLength(n int) Option {
	return func(s *Scrubber) { s.maxInputLength = n }
}

// WithConfidenceThreshold overrides the default 0.6 redaction threshold.
func WithConfidenceThreshold(t float64) Option {
	return func(s *Scrubber) { s.confidenceThreshold = t }
}

// NewScrubber creates a Scrubber with compiled detectors for the supported locales.
func NewScrubber(opts ...Option) *Scrubber {
	s := &Scrubber{
		maxInputLength:      4096,
		confidenceThreshold: 0.6,
		nameDetectors: map[string]*nameDetector{
			"en": newNameDetector("en"),
			"ru": newNameDetector("ru"),
		},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Scrub detects PII in rawText and returns the text with above-threshold
// entities replaced by type-tagged placeholders. Absence of PII is not an
// error; only oversized input fails.
func (s *Scrubber) Scrub(rawText, locale string) (Result, error) {
	return s.scrub(rawText, locale, "inbound")
}

// ScrubOutbound re-runs detection over generated reply text, catching PII a
// generative component may have echoed back.
func (s *Scrubber) ScrubOutbound(text, locale string) (Result, error) {
	return s.scrub(text, locale, "outbound")
}

func (s *Scrubber) scrub(rawText, locale, direction string) (Result, error) {
	if utf8.RuneCountInString(rawText) > s.maxInputLength {
		return Result{}, fmt.Errorf("%w: %d characters (max %d)",
			ErrInputTooLarge, utf8.RuneCountInString(rawText), s.maxInputLength)
	}

	var entities []Entity
	for _, d := range commonDetectors {
		for _, span := range d.re.FindAllStringIndex(rawText, -1) {
			entities = append(entities, Entity{
				Type:       d.typ,
				Span:       [2]int{span[0], span[1]},
				Confidence: d.confidence,
			})
		}
	}

	nd := s.nameDetectors[normalizeLocale(locale)]
	if nd == nil {
		nd = s.nameDetectors["en"]
	}
	entities = append(entities, nd.detect(rawText)...)

	entities = dedupeOverlaps(entities)

	// Replace back-to-front so earlier spans stay valid.
	sort.Slice(entities, func(i, j int) bool { return entities[i].Span[0] > entities[j].Span[0] })

	scrubbed := rawText
	for i := range entities {
		e := &entities[i]
		if e.Confidence < s.confidenceThreshold {
			continue
		}
		e.Redacted = true
		scrubbed = scrubbed[:e.Span[0]] + placeholder(e.Type) + scrubbed[e.Span[1]:]
		metrics.PIIRedactions.WithLabelValues(string(e.Type), direction).Inc()
	}

	// Return entities in document order.
	sort.Slice(entities, func(i, j int) bool { return entities[i].Span[0] < entities[j].Span[0] })

	return Result{ScrubbedText: scrubbed, Entities: entities}, nil
}

// Placeholder carries the category only, never any part of the value.
func placeholder(t EntityType) string {
	return "[[" + string(t) + "]]"
}

func normalizeLocale(locale string) string {
	locale = strings.ToLower(locale)
	if i := strings.IndexAny(locale, "-_"); i > 0 {
		locale = locale[:i]
	}
	return locale
}

// dedupeOverlaps keeps the highest-confidence entity when spans overlap,
// preferring the longer span on ties.
func dedupeOverlaps(entities []Entity) []Entity {
	if len(entities) < 2 {
		return entities
	}
	sort.Slice(entities, func(i, j int) bool {
		if entities[i].Span[0] != entities[j].Span[0] {
			return entities[i].Span[0] < entities[j].Span[0]
		}
		return entities[i].Confidence > entities[j].Confidence
	})
	out := entities[:1]
	for _, e := range entities[1:] {
		last := &out[len(out)-1]
		if e.Span[0] < last.Span[1] {
			if e.Confidence > last.Confidence ||
				(e.Confidence == last.Confidence && e.Span[1]-e.Span[0] > last.Span[1]-last.Span[0]) {
				*last = e
			}
			continue
		}
		out = append(out, e)
	}
	return out
}
