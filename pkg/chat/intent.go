package chat

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Intent is what the dispatcher decided a user message means.
type Intent int

const (
	IntentNarration Intent = iota
	IntentAffirmative
	IntentProgress
	IntentHelp
)

func (i Intent) String() string {
	switch i {
	case IntentAffirmative:
		return "affirmative"
	case IntentProgress:
		return "progress"
	case IntentHelp:
		return "help"
	}
	return "narration"
}

// affirmatives are matched against the whole normalised message.
var affirmatives = map[string]struct{}{
	"si": {}, "sip": {}, "si claro": {}, "si por favor": {}, "claro": {}, "vale": {},
	"ok": {}, "okay": {}, "de acuerdo": {}, "adelante": {}, "perfecto": {}, "venga": {},
	"dale": {}, "por supuesto": {}, "yes": {}, "sure": {}, "yep": {},
}

var progressPatterns = []string{
	"progreso", "como voy", "como vamos", "cuanto falta", "cuanto me falta", "que falta",
	"que me falta", "porcentaje", "estado del formulario", "resumen", "avance",
	"progress", "status", "how far", "what is left", "what's left",
}

var helpPatterns = []string{
	"ayuda", "ayudame", "no entiendo", "que significa", "que pongo", "como funciona",
	"help", "explain", "no se que",
}

// maxIntentWords bounds progress and help matching to short replies; longer text is
// treated as narration even if it mentions one of the keywords.
const maxIntentWords = 8

// Classify maps a message to an intent. hasSuggestion reports whether the dispatcher
// is waiting for a confirmation.
func Classify(text string, hasSuggestion bool) Intent {
	n := normalise(text)
	if n == "" {
		return IntentNarration
	}
	if hasSuggestion && IsAffirmative(text) {
		return IntentAffirmative
	}
	if len(strings.Fields(n)) > maxIntentWords {
		return IntentNarration
	}
	if containsAny(n, progressPatterns) {
		return IntentProgress
	}
	if containsAny(n, helpPatterns) {
		return IntentHelp
	}
	return IntentNarration
}

func IsAffirmative(text string) bool {
	_, ok := affirmatives[normalise(text)]
	return ok
}

// normalise lower-cases, strips accents and punctuation and collapses spaces.
func normalise(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	if out, _, err := transform.String(t, s); err == nil {
		s = out
	}
	s = strings.ToLower(s)
	s = strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || unicode.IsSpace(r) || r == '\'' {
			return r
		}
		return ' '
	}, s)
	return strings.Join(strings.Fields(s), " ")
}

func containsAny(s string, substrs []string) bool {
	for _, sub := range substrs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
