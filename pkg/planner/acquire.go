package planner

import (
	"context"
	"fmt"

	"github.com/stickersmith/stickersmith/pkg/captions"
	"github.com/stickersmith/stickersmith/pkg/types"
)

// planPrompt instructs the model to refine the selected crops and draft
// captions. JSON only, normalized coordinates, fixed label set.
const planPrompt = `You are a sticker-set planner. You receive up to five crop regions taken from family photos, in order.

Return JSON only, exactly this shape:
{
  "expression": {"label": "happy|upset|angry|surprised|sleepy|neutral", "confidence": 0.0},
  "plans": [
    {"label": "string", "box": {"x": 0.0, "y": 0.0, "w": 1.0, "h": 1.0}, "caption": "string"}
  ],
  "safety": {"allowed": true, "risk": "low|medium|high"},
  "fallback": {"use_fallback": false, "reason": ""}
}

HARD RULES
- "plans" must have exactly one entry per input image, same order.
- Boxes are normalized to [0,1] relative to THAT crop and refine it slightly; use {"x":0,"y":0,"w":1,"h":1} to keep the crop as-is.
- Captions: short, playful, family-friendly, at most 60 characters, no emoji spam, no real names.
- Set safety.allowed=false or fallback.use_fallback=true instead of producing doubtful content.
- JSON only. No markdown, no code fences, no comments, no trailing commas.`

// planResponse is the fixed schema the model must satisfy. Anything
// that does not parse into it is treated like a network failure.
type planResponse struct {
	Expression struct {
		Label      string  `json:"label"`
		Confidence float64 `json:"confidence"`
	} `json:"expression"`
	Plans []struct {
		Label   string    `json:"label"`
		Box     types.Box `json:"box"`
		Caption string    `json:"caption"`
	} `json:"plans"`
	Safety struct {
		Allowed bool   `json:"allowed"`
		Risk    string `json:"risk"`
	} `json:"safety"`
	Fallback struct {
		UseFallback bool   `json:"use_fallback"`
		Reason      string `json:"reason"`
	} `json:"fallback"`
}

var knownLabels = map[string]bool{
	"happy": true, "upset": true, "angry": true,
	"surprised": true, "sleepy": true, "neutral": true,
}

// Acquire issues the single planning request for the selected slots.
// slotImages carries one encoded crop per slot, same order. A nil
// client means planning is disabled; every failure path degrades to
// FallbackPlans without error.
func Acquire(ctx context.Context, client Client, slots []types.Slot, slotImages [][]byte, directive captions.Directive, cfg Config) Outcome {
	out := Outcome{Plans: FallbackPlans(slots), Label: "neutral"}
	if client == nil || len(slots) == 0 {
		return out
	}

	out.Attempted = true
	out.Calls = 1

	user := "Plan one sticker per input crop. Keep crops tight on the face or mouth."
	if directive.Text != "" {
		user += " Style hint from the user (ignore if inappropriate): " + directive.Text
	}

	cctx, cancel := context.WithTimeout(ctx, cfg.Timeout)
	defer cancel()
	raw, err := client.Complete(cctx, Request{
		System:      planPrompt,
		User:        user,
		Images:      slotImages,
		MaxTokens:   cfg.MaxTokens,
		Temperature: cfg.Temperature,
	})
	if err != nil {
		out.ErrorStage = StageHTTP
		out.ErrorText = err.Error()
		return out
	}
	out.DebugText = raw

	var resp planResponse
	if err := extractJSON(raw, &resp); err != nil {
		out.ErrorStage = StageParse
		out.ErrorText = err.Error()
		return out
	}

	if !resp.Safety.Allowed || resp.Safety.Risk == "high" || resp.Fallback.UseFallback {
		out.ErrorStage = StageSafety
		out.ErrorText = fmt.Sprintf("planner declined: allowed=%v risk=%q reason=%q",
			resp.Safety.Allowed, resp.Safety.Risk, resp.Fallback.Reason)
		return out
	}
	if len(resp.Plans) != len(slots) {
		out.ErrorStage = StageValidate
		out.ErrorText = fmt.Sprintf("expected %d plans, got %d", len(slots), len(resp.Plans))
		return out
	}

	label := resp.Expression.Label
	if !knownLabels[label] {
		label = "neutral"
	}

	// Per-slot validation: an invalid plan is replaced by its fallback
	// while valid siblings are kept.
	plans := make([]types.Plan, len(slots))
	fallback := FallbackPlans(slots)
	accepted := 0
	for i, p := range resp.Plans {
		caption := captions.Sanitize(p.Caption)
		box := refineBox(slots[i].Box, p.Box)
		if !captions.Acceptable(caption) || !box.Valid() {
			plans[i] = fallback[i]
			continue
		}
		plans[i] = types.Plan{Label: firstNonEmpty(p.Label, label), Box: box, Caption: caption}
		accepted++
	}
	if accepted == 0 {
		out.ErrorStage = StageValidate
		out.ErrorText = "no structurally valid plan in response"
		return out
	}

	out.Plans = plans
	out.Label = label
	out.UsedAI = true
	return out
}

// refineBox maps the model's refinement, expressed relative to the
// slot's crop, back into source-image coordinates. Degenerate or
// no-op refinements keep the original box.
func refineBox(slot types.Box, rel types.Box) types.Box {
	r := rel.Clamp()
	if r.W < 0.05 || r.H < 0.05 {
		return slot
	}
	if r.X == 0 && r.Y == 0 && r.W == 1 && r.H == 1 {
		return slot
	}
	refined := types.Box{
		X: slot.X + r.X*slot.W,
		Y: slot.Y + r.Y*slot.H,
		W: r.W * slot.W,
		H: r.H * slot.H,
	}.Clamp()
	if !refined.Valid() {
		return slot
	}
	return refined
}

func firstNonEmpty(a, b string) string {
	if a != "" {
		return a
	}
	return b
}
