package pipeline

import "regexp"

// Intent is an explicit user request that deterministically overrides
// score-based routing when no crisis or block/redirect condition fired.
type Intent string

const (
	IntentNone        Intent = ""
	IntentWriteLetter Intent = "write_letter"
	IntentTrackGoal   Intent = "track_goal"
	IntentTechnique   Intent = "technique"
	IntentEndSession  Intent = "end_session"
)

type intentPattern struct {
	intent Intent
	re     *regexp.Regexp
}

// Deliberately narrow phrasings: an intent override moves the session into
// an action state, so false positives are worse than misses here.
var intentPatterns = []intentPattern{
	{IntentEndSession, regexp.MustCompile(`(?i)\b(end (the )?session|goodbye|bye for now)\b`)},
	{IntentEndSession, regexp.MustCompile(`(?i)(заверши(ть)? сессию|закончим на сегодня|до свидания)`)},
	{IntentWriteLetter, regexp.MustCompile(`(?i)\b(write|draft) a letter\b`)},
	{IntentWriteLetter, regexp.MustCompile(`(?i)(написать|напишу|написали бы) письмо`)},
	{IntentTrackGoal, regexp.MustCompile(`(?i)\b(my goals?|track (a|my) goal|set a goal)\b`)},
	{IntentTrackGoal, regexp.MustCompile(`(?i)(мо(и|ю) цел(и|ь)|поставить цель|отслеживать цель)`)},
	{IntentTechnique, regexp.MustCompile(`(?i)\b(try (a|an|the) (technique|exercise)|practice (a|the) technique)\b`)},
	{IntentTechnique, regexp.MustCompile(`(?i)(попробовать (технику|упражнение)|какое-нибудь упражнение)`)},
}

// DetectIntent scans the scrubbed text for an explicit intent. First match
// wins in the fixed order above, so detection is deterministic.
func DetectIntent(scrubbedText string) Intent {
	for _, p := range intentPatterns {
		if p.re.MatchString(scrubbedText) {
			return p.intent
		}
	}
	return IntentNone
}
