package pipeline

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"github.com/stickersmith/stickersmith/pkg/planner"
	"github.com/stickersmith/stickersmith/pkg/types"
)

func encodePhoto(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	skin := color.NRGBA{205, 150, 120, 255}
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			c := color.NRGBA{110, 115, 120, 255}
			if x > w/4 && x < 3*w/4 && y > h/8 && y < h/2 {
				c = skin
			}
			img.SetNRGBA(x, y, c)
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode test photo: %v", err)
	}
	return buf.Bytes()
}

func newTestPipeline(client planner.Client) *Pipeline {
	return New(Options{Client: client, Logger: zerolog.Nop()})
}

func checkStickers(t *testing.T, res *Result) {
	t.Helper()
	if len(res.Results) != types.SlotCount {
		t.Fatalf("expected %d stickers, got %d", types.SlotCount, len(res.Results))
	}
	for i, r := range res.Results {
		img, err := png.Decode(bytes.NewReader(r.PNG))
		if err != nil {
			t.Fatalf("sticker %d is not valid PNG: %v", i, err)
		}
		if img.Bounds().Dx() != types.OutputSize || img.Bounds().Dy() != types.OutputSize {
			t.Errorf("sticker %d is %dx%d", i, img.Bounds().Dx(), img.Bounds().Dy())
		}
		if r.Caption == "" {
			t.Errorf("sticker %d has no caption", i)
		}
		if !strings.HasPrefix(r.Filename, res.RequestID+"_") {
			t.Errorf("sticker %d filename %q not keyed to request", i, r.Filename)
		}
	}
}

func TestRunDeterministicOnly(t *testing.T) {
	p := newTestPipeline(nil)
	res, err := p.Run(context.Background(), Request{
		ID: "req1",
		Files: []Upload{
			{Name: "a.png", Data: encodePhoto(t, 320, 320)},
			{Name: "b.png", Data: encodePhoto(t, 280, 360)},
		},
	})
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}

	checkStickers(t, res)
	if res.Mode != "multi" {
		t.Errorf("mode = %q, want multi", res.Mode)
	}
	if res.InputCount != 2 || res.UsableCount != 2 {
		t.Errorf("counts input=%d usable=%d", res.InputCount, res.UsableCount)
	}
	if res.UsedAI || res.AIAttempted || res.AICalls != 0 {
		t.Errorf("planner disabled but provenance reports usage: %+v", res)
	}
	if res.CaptionsSource != types.CaptionsFallback {
		t.Errorf("captions source = %q, want fallback", res.CaptionsSource)
	}
	if res.CaptionsAligned {
		t.Error("no alignment pass ran")
	}
	if len(res.Slots) != types.SlotCount {
		t.Errorf("expected %d slots in attribution, got %d", types.SlotCount, len(res.Slots))
	}
}

func TestRunSkipsUnreadableInputs(t *testing.T) {
	p := newTestPipeline(nil)
	res, err := p.Run(context.Background(), Request{
		ID: "req2",
		Files: []Upload{
			{Name: "good.png", Data: encodePhoto(t, 300, 300)},
			{Name: "broken.jpg", Data: []byte("not an image")},
		},
	})
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if res.UsableCount != 1 {
		t.Errorf("usable = %d, want 1", res.UsableCount)
	}
	if len(res.Unreadable) != 1 || res.Unreadable[0] != "broken.jpg" {
		t.Errorf("unreadable = %v", res.Unreadable)
	}
	checkStickers(t, res)
}

func TestRunAllUnreadable(t *testing.T) {
	p := newTestPipeline(nil)
	_, err := p.Run(context.Background(), Request{
		ID: "req3",
		Files: []Upload{
			{Name: "a.bin", Data: []byte("junk")},
			{Name: "b.bin", Data: []byte("more junk")},
		},
	})
	if !errors.Is(err, ErrNoUsableImages) {
		t.Fatalf("expected ErrNoUsableImages, got %v", err)
	}
}

func TestRunMouthOnlyDirectiveFallbackSource(t *testing.T) {
	p := newTestPipeline(nil)
	res, err := p.Run(context.Background(), Request{
		ID:    "req4",
		Files: []Upload{{Name: "a.png", Data: encodePhoto(t, 320, 320)}},
		Style: "mouth close-up only",
	})
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if res.CaptionsSource != types.CaptionsMouthFallback {
		t.Errorf("captions source = %q, want mouth_fallback", res.CaptionsSource)
	}
	checkStickers(t, res)
}

func TestRunDeterministicRepeat(t *testing.T) {
	p := newTestPipeline(nil)
	req := Request{
		ID:    "req5",
		Files: []Upload{{Name: "a.png", Data: encodePhoto(t, 320, 320)}},
	}
	first, err := p.Run(context.Background(), req)
	if err != nil {
		t.Fatalf("first run failed: %v", err)
	}
	second, err := p.Run(context.Background(), req)
	if err != nil {
		t.Fatalf("second run failed: %v", err)
	}
	for i := range first.Results {
		if !bytes.Equal(first.Results[i].PNG, second.Results[i].PNG) {
			t.Errorf("sticker %d differs between identical runs", i)
		}
		if first.Results[i].Caption != second.Results[i].Caption {
			t.Errorf("caption %d differs between identical runs", i)
		}
	}
}

// plannerSeqClient answers the planning call first and the alignment
// call second, mimicking the two-pass protocol.
type plannerSeqClient struct {
	calls int
}

func (c *plannerSeqClient) Complete(ctx context.Context, req planner.Request) (string, error) {
	c.calls++
	if c.calls == 1 {
		plans := make([]string, types.SlotCount)
		for i := range plans {
			plans[i] = fmt.Sprintf(`{"label":"happy","box":{"x":0,"y":0,"w":1,"h":1},"caption":"planned %d"}`, i)
		}
		return fmt.Sprintf(`{
			"expression": {"label": "happy", "confidence": 0.9},
			"plans": [%s],
			"safety": {"allowed": true, "risk": "low"},
			"fallback": {"use_fallback": false, "reason": ""}
		}`, strings.Join(plans, ",")), nil
	}
	return `{
		"captions": [
			{"text": "aligned one"}, {"text": "aligned two"}, {"text": "aligned three"},
			{"text": "aligned four"}, {"text": "aligned five"}
		],
		"safety": {"allowed": true, "risk": "low"},
		"fallback": {"use_fallback": false, "reason": ""}
	}`, nil
}

func TestRunWithPlanner(t *testing.T) {
	client := &plannerSeqClient{}
	p := newTestPipeline(client)
	res, err := p.Run(context.Background(), Request{
		ID:    "req6",
		Files: []Upload{{Name: "a.png", Data: encodePhoto(t, 320, 320)}},
	})
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if !res.UsedAI || !res.AIAttempted {
		t.Errorf("expected AI provenance, got used=%v attempted=%v", res.UsedAI, res.AIAttempted)
	}
	if res.AICalls != 2 {
		t.Errorf("calls = %d, want 2", res.AICalls)
	}
	if res.CaptionsSource != types.CaptionsAICrops {
		t.Errorf("captions source = %q, want ai_crops", res.CaptionsSource)
	}
	if !res.CaptionsAligned {
		t.Error("alignment succeeded but flag not set")
	}
	if res.Results[0].Caption != "aligned one" {
		t.Errorf("caption 0 = %q, want aligned one", res.Results[0].Caption)
	}
	checkStickers(t, res)
}

func TestRunPlannerFailureDegrades(t *testing.T) {
	client := &failingClient{}
	p := newTestPipeline(client)
	res, err := p.Run(context.Background(), Request{
		ID:    "req7",
		Files: []Upload{{Name: "a.png", Data: encodePhoto(t, 320, 320)}},
	})
	if err != nil {
		t.Fatalf("planner failure must not fail the run: %v", err)
	}
	if res.UsedAI {
		t.Error("failed planner must not report usage")
	}
	if !res.AIAttempted {
		t.Error("attempt must be recorded")
	}
	if res.AIErrorStage != planner.StageHTTP {
		t.Errorf("stage = %q, want http", res.AIErrorStage)
	}
	if res.CaptionsSource != types.CaptionsFallback {
		t.Errorf("captions source = %q, want fallback", res.CaptionsSource)
	}
	checkStickers(t, res)
}

type failingClient struct{}

func (failingClient) Complete(ctx context.Context, req planner.Request) (string, error) {
	return "", fmt.Errorf("connection refused")
}
