package planner

import (
	"context"
	"strings"

	"github.com/stickersmith/stickersmith/pkg/captions"
	"github.com/stickersmith/stickersmith/pkg/types"
)

// captionsPrompt drives the second pass: captions verified against the
// final rendered crops, sent as one 3x2 montage.
const captionsPrompt = `You caption finished sticker crops. You receive ONE montage image: a 3x2 grid holding five 512x512 crops, numbered left to right, top to bottom (the sixth cell is blank).

Return JSON only, exactly this shape:
{
  "captions": [{"text": "string"}, {"text": "string"}, {"text": "string"}, {"text": "string"}, {"text": "string"}],
  "safety": {"allowed": true, "risk": "low|medium|high"},
  "fallback": {"use_fallback": false, "reason": ""}
}

HARD RULES
- Exactly five captions, one per numbered crop, matching what is actually visible in that crop.
- Short, playful, family-friendly, at most 60 characters each.
- JSON only. No markdown, no code fences, no trailing commas.`

type captionsResponse struct {
	Captions []struct {
		Text string `json:"text"`
	} `json:"captions"`
	Safety struct {
		Allowed bool   `json:"allowed"`
		Risk    string `json:"risk"`
	} `json:"safety"`
	Fallback struct {
		UseFallback bool   `json:"use_fallback"`
		Reason      string `json:"reason"`
	} `json:"fallback"`
}

// Realign asks the planner for captions that match the final rendered
// crops. It never touches geometry: on any failure the prior captions
// come back unchanged, tagged with whichever source produced them.
func Realign(ctx context.Context, client Client, montageJPEG []byte, prior []string, priorSource types.CaptionSource, directive captions.Directive, cfg Config) CaptionOutcome {
	out := CaptionOutcome{Captions: prior, Source: priorSource}
	if client == nil || len(montageJPEG) == 0 {
		return out
	}

	out.Attempted = true
	out.Calls = 1

	user := "Write the five captions for this montage."
	if len(prior) > 0 {
		user += " Current draft captions, in order: " + strings.Join(prior, " | ") + ". Keep any draft that already fits its crop, rewrite the ones that do not."
	}
	if directive.Text != "" {
		user += " Style hint from the user (ignore if inappropriate): " + directive.Text
	}

	temp := cfg.Temperature
	if temp > 0.2 {
		temp = 0.2
	}

	cctx, cancel := context.WithTimeout(ctx, cfg.Timeout)
	defer cancel()
	raw, err := client.Complete(cctx, Request{
		System:      captionsPrompt,
		User:        user,
		Images:      [][]byte{montageJPEG},
		MaxTokens:   700,
		Temperature: temp,
	})
	if err != nil {
		out.ErrorText = err.Error()
		return out
	}
	out.DebugText = raw

	var resp captionsResponse
	if err := extractJSON(raw, &resp); err != nil {
		out.ErrorText = err.Error()
		return out
	}
	if !resp.Safety.Allowed || resp.Safety.Risk == "high" || resp.Fallback.UseFallback {
		out.ErrorText = "planner declined caption alignment"
		return out
	}
	if len(resp.Captions) != types.SlotCount {
		out.ErrorText = "caption count mismatch"
		return out
	}

	aligned := make([]string, 0, types.SlotCount)
	for _, c := range resp.Captions {
		s := captions.Sanitize(c.Text)
		if !captions.Acceptable(s) {
			out.ErrorText = "caption failed validation"
			return out
		}
		aligned = append(aligned, s)
	}

	out.Captions = aligned
	out.Aligned = true
	out.Source = types.CaptionsAICrops
	out.ErrorText = ""
	return out
}
