// Package captions owns the curated fallback caption pools and the
// guarantee that every run ends with exactly five safe captions.
package captions

import (
	"regexp"
	"strings"

	"github.com/stickersmith/stickersmith/pkg/types"
)

// PoolVersion identifies the curated caption tables. Bump when the
// pools change so cached artifacts can be told apart.
const PoolVersion = "2025-08"

// MaxCaptionRunes is the longest caption the renderer accepts.
const MaxCaptionRunes = 60

// facePool is the default caption pool for face close-ups.
var facePool = [...]string{
	"big mood",
	"and that's on that",
	"zero regrets",
	"me, every single day",
	"current status",
	"no thoughts, just vibes",
	"say less",
	"noted.",
	"this is fine",
	"living the dream",
	"plot twist incoming",
	"main character energy",
}

// mouthPool is the caption pool for mouth close-ups.
var mouthPool = [...]string{
	"nom nom nom",
	"one more bite",
	"taste test in progress",
	"chef's kiss",
	"snack o'clock",
	"don't rush me",
	"still chewing",
	"save me a piece",
	"flavor detected",
	"crumbs? what crumbs",
	"this one's mine",
	"quality control",
}

// defaultCaption fills any slot nothing else could.
const defaultCaption = "noted."

var (
	whitespaceRe = regexp.MustCompile(`\s+`)
	trimEdgesRe  = regexp.MustCompile(`^[\s.,!?…~-]+|[\s.,!?…~-]+$`)
)

// Pool returns the fallback captions for a region kind. The returned
// slice is a copy; the underlying tables are immutable.
func Pool(kind types.RegionKind) []string {
	switch kind {
	case types.RegionMouth:
		out := make([]string, len(mouthPool))
		copy(out, mouthPool[:])
		return out
	default:
		out := make([]string, len(facePool))
		copy(out, facePool[:])
		return out
	}
}

// ForSlots deterministically draws one fallback caption per slot,
// cycling each kind's pool independently so five mouth slots still get
// five distinct captions.
func ForSlots(slots []types.Slot) []string {
	counts := map[types.RegionKind]int{}
	out := make([]string, len(slots))
	for i, s := range slots {
		pool := facePool[:]
		if s.Kind == types.RegionMouth {
			pool = mouthPool[:]
		}
		out[i] = pool[counts[s.Kind]%len(pool)]
		counts[s.Kind]++
	}
	return out
}

// Sanitize normalizes caption text: collapsed whitespace, stripped
// zero-width characters and edge punctuation. Empty input maps to the
// default caption.
func Sanitize(text string) string {
	s := strings.ReplaceAll(text, "​", "")
	s = whitespaceRe.ReplaceAllString(s, " ")
	s = trimEdgesRe.ReplaceAllString(strings.TrimSpace(s), "")
	if s == "" {
		return defaultCaption
	}
	return s
}

// Acceptable reports whether a sanitized caption may be rendered:
// non-empty and within the length bound.
func Acceptable(text string) bool {
	s := strings.TrimSpace(text)
	if s == "" {
		return false
	}
	return len([]rune(s)) <= MaxCaptionRunes
}

// EnsureFive returns exactly five safe captions, preferring sanitized
// entries from proposed and topping up from the slot pools. The second
// return value reports whether any pool caption was needed.
func EnsureFive(proposed []string, slots []types.Slot) ([]string, bool) {
	safe := make([]string, 0, types.SlotCount)
	for _, c := range proposed {
		s := Sanitize(c)
		if Acceptable(s) {
			safe = append(safe, s)
		}
		if len(safe) == types.SlotCount {
			return safe, false
		}
	}

	fill := ForSlots(slots)
	for len(safe) < types.SlotCount {
		if len(safe) < len(fill) {
			safe = append(safe, fill[len(safe)])
		} else {
			safe = append(safe, defaultCaption)
		}
	}
	return safe, true
}
