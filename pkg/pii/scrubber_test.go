package pii

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScrub_PhoneNumberRedacted(t *testing.T) {
	s := NewScrubber()

	res, err := s.Scrub("Мой номер +79991234567, позвоните мне", "ru")
	require.NoError(t, err)

	assert.NotContains(t, res.ScrubbedText, "79991234567")
	assert.Contains(t, res.ScrubbedText, "[[PHONE_NUMBER]]")

	var phone *Entity
	for i := range res.Entities {
		if res.Entities[i].Type == TypePhoneNumber {
			phone = &res.Entities[i]
		}
	}
	require.NotNil(t, phone, "expected a phone entity")
	assert.True(t, phone.Redacted)
	assert.GreaterOrEqual(t, phone.Confidence, 0.6)
}

func TestScrub_Categories(t *testing.T) {
	tests := []struct {
		name        string
		input       string
		locale      string
		wantType    EntityType
		wantAbsent  string
		wantPresent string
	}{
		{
			name:        "email",
			input:       "write to me at maria.p@example.com please",
			locale:      "en",
			wantType:    TypeEmail,
			wantAbsent:  "maria.p@example.com",
			wantPresent: "[[EMAIL]]",
		},
		{
			name:        "us ssn",
			input:       "my ssn is 123-45-6789",
			locale:      "en",
			wantType:    TypeNationalID,
			wantAbsent:  "123-45-6789",
			wantPresent: "[[NATIONAL_ID]]",
		},
		{
			name:        "english street address",
			input:       "I live at 42 Maple Street now",
			locale:      "en",
			wantType:    TypePostalAddress,
			wantAbsent:  "42 Maple Street",
			wantPresent: "[[POSTAL_ADDRESS]]",
		},
		{
			name:        "russian street address",
			input:       "живу на ул. Ленина, д. 5 уже год",
			locale:      "ru",
			wantType:    TypePostalAddress,
			wantAbsent:  "Ленина",
			wantPresent: "[[POSTAL_ADDRESS]]",
		},
		{
			name:        "lexicon name",
			input:       "my daughter Sarah stopped calling",
			locale:      "en",
			wantType:    TypePersonName,
			wantAbsent:  "Sarah",
			wantPresent: "[[PERSON_NAME]]",
		},
		{
			name:        "russian lexicon name",
			input:       "мой сын Дима не отвечает",
			locale:      "ru",
			wantType:    TypePersonName,
			wantAbsent:  "Дима",
			wantPresent: "[[PERSON_NAME]]",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewScrubber()
			res, err := s.Scrub(tt.input, tt.locale)
			require.NoError(t, err)

			assert.NotContains(t, res.ScrubbedText, tt.wantAbsent)
			assert.Contains(t, res.ScrubbedText, tt.wantPresent)

			found := false
			for _, e := range res.Entities {
				if e.Type == tt.wantType && e.Redacted {
					found = true
				}
			}
			assert.True(t, found, "expected a redacted %s entity", tt.wantType)
		})
	}
}

func TestScrub_NoPIIIsNotAnError(t *testing.T) {
	s := NewScrubber()
	res, err := s.Scrub("we argued again and she hung up", "en")
	require.NoError(t, err)
	assert.Equal(t, "we argued again and she hung up", res.ScrubbedText)
}

func TestScrub_InputTooLarge(t *testing.T) {
	s := NewScrubber(WithMaxInputLength(100))
	_, err := s.Scrub(strings.Repeat("a", 101), "en")
	require.ErrorIs(t, err, ErrInputTooLarge)

	// At the limit is fine.
	_, err = s.Scrub(strings.Repeat("a", 100), "en")
	require.NoError(t, err)
}

func TestScrub_BelowThresholdFlaggedNotRedacted(t *testing.T) {
	s := NewScrubber()

	// Unknown capitalized token mid-sentence: advisory only (confidence 0.4).
	res, err := s.Scrub("we visited Blorptown last summer", "en")
	require.NoError(t, err)

	assert.Contains(t, res.ScrubbedText, "Blorptown", "below-threshold entity must not be redacted")
	require.Len(t, res.Entities, 1)
	assert.False(t, res.Entities[0].Redacted)
	assert.Less(t, res.Entities[0].Confidence, 0.6)
}

func TestScrub_ThresholdConfigurable(t *testing.T) {
	s := NewScrubber(WithConfidenceThreshold(0.3))
	res, err := s.Scrub("we visited Blorptown last summer", "en")
	require.NoError(t, err)
	assert.NotContains(t, res.ScrubbedText, "Blorptown")
}

func TestScrub_SentenceInitialCapitalSkipped(t *testing.T) {
	s := NewScrubber()
	res, err := s.Scrub("Yesterday it rained. Today too.", "en")
	require.NoError(t, err)
	assert.Empty(t, res.Entities)
}

func TestScrub_OverlappingDetections(t *testing.T) {
	s := NewScrubber()
	// Phone inside a longer digit run should produce one redaction, not nested ones.
	res, err := s.Scrub("call +7 999 123-45-67 tonight", "en")
	require.NoError(t, err)
	assert.Equal(t, 1, strings.Count(res.ScrubbedText, "[[PHONE_NUMBER]]"))
}
