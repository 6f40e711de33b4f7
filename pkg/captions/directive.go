package captions

import (
	"regexp"
	"strings"
)

// Directive is the parsed form of the caller's free-text style hint.
type Directive struct {
	// Text is the sanitized hint forwarded to the planner, empty when
	// the raw input was empty, too long only after trimming, or unsafe.
	Text string
	// MouthOnly lifts the mouth-slot cap to five.
	MouthOnly bool
	// Status explains what happened to the raw input: "ok", "empty" or
	// "rejected". Rejection is silent for the caller per contract.
	Status string
}

// maxDirectiveRunes bounds the style hint; longer input is truncated,
// never errored.
const maxDirectiveRunes = 240

// bannedDirectiveRe rejects hints that would steer captions somewhere
// a sticker generator should not go. Matched input is dropped whole.
var bannedDirectiveRe = regexp.MustCompile(`(?i)\b(nsfw|nude|naked|gore|address|phone number)\b`)

var mouthWords = []string{"mouth", "lips", "lip"}
var closeupWords = []string{"close-up", "closeup", "close up", "only", "just the", "zoom"}

// ParseDirective sanitizes the raw style hint and detects the
// mouth-only preference. Unsafe or empty input yields a zero directive;
// it is never an error.
func ParseDirective(raw string) Directive {
	s := strings.ReplaceAll(raw, "​", "")
	s = whitespaceRe.ReplaceAllString(strings.TrimSpace(s), " ")
	if s == "" {
		return Directive{Status: "empty"}
	}
	if r := []rune(s); len(r) > maxDirectiveRunes {
		s = strings.TrimSpace(string(r[:maxDirectiveRunes]))
	}
	if bannedDirectiveRe.MatchString(s) {
		return Directive{Status: "rejected"}
	}

	lower := strings.ToLower(s)
	mouth := containsAny(lower, mouthWords) && containsAny(lower, closeupWords)
	return Directive{Text: s, MouthOnly: mouth, Status: "ok"}
}

func containsAny(s string, words []string) bool {
	for _, w := range words {
		if strings.Contains(s, w) {
			return true
		}
	}
	return false
}
