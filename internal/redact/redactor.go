// Package redact masks PII (emails, phone numbers, card numbers) in
// arbitrary text before it reaches a log stream.
//
// Redaction is a pure, total function: it never fails, and running it over
// already-redacted text changes nothing. Card candidates are only masked
// when they pass the Luhn checksum, which keeps order numbers and other
// long ids untouched.
package redact

import (
	"regexp"
	"strings"
	"sync/atomic"
)

var (
	emailRe = regexp.MustCompile(`(?i)([a-z0-9._%+\-]{1,64})@([a-z0-9.\-]{1,253}\.[a-z]{2,24})`)

	// Heuristic phone shape: optional country and area codes, then three
	// separator-tolerant digit groups. Sequences under 7 digits are too
	// ambiguous and stay untouched.
	phoneRe = regexp.MustCompile(`(\+?[0-9]{1,3}[\s.\-]?)?(\(?[0-9]{2,4}\)?[\s.\-]?)?[0-9]{3}[\s.\-]?[0-9]{2,3}[\s.\-]?[0-9]{2,3}`)

	// Card candidates: 13-19 digits with optional single separators.
	// regexp has no lookarounds, so digit boundaries are checked manually
	// around each candidate.
	cardRe = regexp.MustCompile(`(?:[0-9][ \-]?){13,19}`)
)

var (
	emailRedactions atomic.Int64
	phoneRedactions atomic.Int64
	cardRedactions  atomic.Int64
)

// EmailRedactions returns the number of email maskings since process start.
func EmailRedactions() int64 { return emailRedactions.Load() }

// PhoneRedactions returns the number of phone maskings since process start.
func PhoneRedactions() int64 { return phoneRedactions.Load() }

// CardRedactions returns the number of card maskings since process start.
func CardRedactions() int64 { return cardRedactions.Load() }

// Redact masks PII in input. Stages run in order (email, phone, card), each
// only when a candidate exists.
func Redact(input string) string {
	if strings.TrimSpace(input) == "" {
		return ""
	}

	out := input
	if emailRe.MatchString(out) {
		out = redactEmail(out)
	}
	if phoneRe.MatchString(out) {
		out = redactPhone(out)
	}
	if cardRe.MatchString(out) {
		out = redactCard(out)
	}
	return out
}

func redactEmail(s string) string {
	matches := emailRe.FindAllStringSubmatchIndex(s, -1)
	if matches == nil {
		return s
	}

	var b strings.Builder
	b.Grow(len(s))
	last := 0
	for _, m := range matches {
		start, end := m[0], m[1]
		// A '*' directly before the local part means this is the tail of an
		// already-masked address; leave it alone so redaction stays
		// idempotent.
		if start > 0 && s[start-1] == '*' {
			continue
		}
		local := s[m[2]:m[3]]
		domain := s[m[4]:m[5]]

		var maskedLocal string
		if len(local) <= 2 {
			maskedLocal = "***"
		} else {
			maskedLocal = local[:1] + "***" + local[len(local)-1:]
		}

		b.WriteString(s[last:start])
		b.WriteString(maskedLocal)
		b.WriteByte('@')
		b.WriteString(strings.ToLower(domain))
		last = end
		emailRedactions.Add(1)
	}
	b.WriteString(s[last:])
	return b.String()
}

func redactPhone(s string) string {
	matches := phoneRe.FindAllStringIndex(s, -1)
	if matches == nil {
		return s
	}

	// Card candidates belong to the card stage. The phone shape also matches
	// 7-13 digit fragments of a separated card number, so any phone match
	// overlapping a card-candidate span is skipped here.
	cards := cardSpans(s)

	var b strings.Builder
	b.Grow(len(s))
	last := 0
	for _, m := range matches {
		start, end := m[0], m[1]
		if adjacentDigit(s, start, end) || overlapsAny(cards, start, end) {
			continue
		}
		digits := digitsOf(s[start:end])
		if len(digits) < 7 {
			continue
		}
		b.WriteString(s[last:start])
		b.WriteString("***PHONE***")
		b.WriteString(digits[len(digits)-4:])
		last = end
		phoneRedactions.Add(1)
	}
	b.WriteString(s[last:])
	return b.String()
}

func redactCard(s string) string {
	matches := cardRe.FindAllStringIndex(s, -1)
	if matches == nil {
		return s
	}

	var b strings.Builder
	b.Grow(len(s))
	last := 0
	for _, m := range matches {
		start, end := m[0], m[1]
		// The last candidate unit may have swallowed a trailing separator.
		for end > start && (s[end-1] == ' ' || s[end-1] == '-') {
			end--
		}
		if adjacentDigit(s, start, end) {
			continue
		}
		digits := digitsOf(s[start:end])
		if len(digits) < 13 || len(digits) > 19 || !luhnValid(digits) {
			continue
		}
		b.WriteString(s[last:start])
		b.WriteString("**** **** **** ")
		b.WriteString(digits[len(digits)-4:])
		last = end
		cardRedactions.Add(1)
	}
	b.WriteString(s[last:])
	return b.String()
}

// cardSpans lists the [start,end) ranges of separated 13-19 digit runs, i.e.
// everything the card stage will later consider. Luhn is deliberately not
// checked here: a Luhn-invalid run must come out of the pipeline untouched,
// not half-eaten by the phone stage.
func cardSpans(s string) [][2]int {
	matches := cardRe.FindAllStringIndex(s, -1)
	if matches == nil {
		return nil
	}

	spans := make([][2]int, 0, len(matches))
	for _, m := range matches {
		start, end := m[0], m[1]
		for end > start && (s[end-1] == ' ' || s[end-1] == '-') {
			end--
		}
		if adjacentDigit(s, start, end) {
			continue
		}
		if n := len(digitsOf(s[start:end])); n < 13 || n > 19 {
			continue
		}
		spans = append(spans, [2]int{start, end})
	}
	return spans
}

func overlapsAny(spans [][2]int, start, end int) bool {
	for _, sp := range spans {
		if start < sp[1] && end > sp[0] {
			return true
		}
	}
	return false
}

// adjacentDigit reports whether the match at [start,end) touches a digit on
// either side, i.e. it is a fragment of a longer digit run.
func adjacentDigit(s string, start, end int) bool {
	if start > 0 && isDigit(s[start-1]) {
		return true
	}
	if end < len(s) && isDigit(s[end]) {
		return true
	}
	return false
}

func digitsOf(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		if isDigit(s[i]) {
			b.WriteByte(s[i])
		}
	}
	return b.String()
}

func isDigit(c byte) bool {
	return c >= '0' && c <= '9'
}

func luhnValid(digits string) bool {
	sum := 0
	alternate := false
	for i := len(digits) - 1; i >= 0; i-- {
		n := int(digits[i] - '0')
		if alternate {
			n *= 2
			if n > 9 {
				n -= 9
			}
		}
		sum += n
		alternate = !alternate
	}
	return sum%10 == 0
}
