// Package planner talks to an external vision-language planner and
// turns its answers into validated per-slot plans. The planner is an
// untrusted, possibly-absent oracle: every path through this package
// has a deterministic local fallback and no failure here ever reaches
// the caller as an error.
package planner

import (
	"context"
	"time"

	"github.com/stickersmith/stickersmith/pkg/captions"
	"github.com/stickersmith/stickersmith/pkg/types"
)

// Client is one chat-completion round trip against a vision model.
// Implementations exist for OpenRouter-compatible remote APIs and for
// a local Ollama daemon.
type Client interface {
	Complete(ctx context.Context, req Request) (string, error)
}

// Request is a single vision chat completion.
type Request struct {
	System      string
	User        string
	Images      [][]byte // encoded JPEG/PNG payloads
	MaxTokens   int
	Temperature float32
}

// Config bounds the external calls.
type Config struct {
	// Timeout applies per call. A timeout is never fatal to the run.
	Timeout time.Duration
	// MaxTokens caps the completion length.
	MaxTokens int
	// Temperature for the planning call; the alignment pass clamps it
	// lower on its own.
	Temperature float32
}

// DefaultConfig returns the documented planner bounds.
func DefaultConfig() Config {
	return Config{Timeout: 45 * time.Second, MaxTokens: 1200, Temperature: 0.1}
}

// Stage labels for Outcome.ErrorStage.
const (
	StageHTTP     = "http"
	StageParse    = "parse"
	StageValidate = "validate"
	StageSafety   = "safety"
)

// Outcome reports the plan-acquisition stage. Plans always has exactly
// one entry per slot, whichever path produced it.
type Outcome struct {
	Plans      []types.Plan
	Label      string // semantic expression label, "neutral" on fallback
	Attempted  bool
	UsedAI     bool
	Calls      int
	ErrorStage string
	ErrorText  string
	DebugText  string // raw model output kept for the failure dump
}

// CaptionOutcome reports the caption alignment pass.
type CaptionOutcome struct {
	Captions  []string
	Aligned   bool
	Source    types.CaptionSource
	Attempted bool
	Calls     int
	ErrorText string
	DebugText string
}

// FallbackPlans builds the deterministic default plan set: pool
// captions keyed by region kind, the slot's own box unchanged, safety
// cleared.
func FallbackPlans(slots []types.Slot) []types.Plan {
	texts := captions.ForSlots(slots)
	plans := make([]types.Plan, len(slots))
	for i, s := range slots {
		plans[i] = types.Plan{
			Label:    "neutral",
			Box:      s.Box,
			Caption:  texts[i],
			Fallback: true,
		}
	}
	return plans
}
