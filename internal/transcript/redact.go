package transcript

import "regexp"

var (
	emailPattern = regexp.MustCompile(`[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}`)
	cardPattern  = regexp.MustCompile(`\b(?:\d[ -]*?){13,19}\b`)
	phonePattern = regexp.MustCompile(`\+?\(?[0-9][0-9\-(). ]{6,}[0-9]`)
)

// A phone number has at least this many digits; shorter runs such as
// "2019-2024" are year ranges or dates.
const minPhoneDigits = 10

// redactions run in order; cards before phones so a card number is not
// mistaken for a phone number.
var redactions = []struct {
	pattern *regexp.Regexp
	marker  string
	match   func(string) bool
}{
	{emailPattern, "[REDACTED_EMAIL]", nil},
	{cardPattern, "[REDACTED_CARD]", nil},
	{phonePattern, "[REDACTED_PHONE]", func(s string) bool { return countDigits(s) >= minPhoneDigits }},
}

// RedactPII masks contact details and card numbers candidates tend to read
// out from their resume.
func RedactPII(input string) (string, bool) {
	out := input
	for _, r := range redactions {
		if r.match == nil {
			out = r.pattern.ReplaceAllString(out, r.marker)
			continue
		}
		out = r.pattern.ReplaceAllStringFunc(out, func(s string) string {
			if r.match(s) {
				return r.marker
			}
			return s
		})
	}
	return out, out != input
}

func countDigits(s string) int {
	n := 0
	for i := 0; i < len(s); i++ {
		if s[i] >= '0' && s[i] <= '9' {
			n++
		}
	}
	return n
}
