package stickersmith

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"testing"

	"github.com/stickersmith/stickersmith/pkg/types"
)

func testPhoto(t *testing.T) Photo {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, 300, 300))
	for y := 0; y < 300; y++ {
		for x := 0; x < 300; x++ {
			c := color.NRGBA{110, 115, 120, 255}
			if x > 80 && x < 220 && y > 40 && y < 160 {
				c = color.NRGBA{205, 150, 120, 255}
			}
			img.SetNRGBA(x, y, c)
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode test photo: %v", err)
	}
	return Photo{Name: "test.png", Data: buf.Bytes()}
}

func TestGenerate(t *testing.T) {
	set, err := New().Generate(context.Background(), []Photo{testPhoto(t)}, "")
	if err != nil {
		t.Fatalf("generate failed: %v", err)
	}
	if len(set.Stickers) != types.SlotCount {
		t.Fatalf("expected %d stickers, got %d", types.SlotCount, len(set.Stickers))
	}
	if set.UsedAI {
		t.Error("no planner configured, UsedAI must be false")
	}
	if set.CaptionsSource != types.CaptionsFallback {
		t.Errorf("captions source = %q, want fallback", set.CaptionsSource)
	}
	for i, s := range set.Stickers {
		if len(s.PNG) == 0 {
			t.Errorf("sticker %d has no payload", i)
		}
		if s.Caption == "" {
			t.Errorf("sticker %d has no caption", i)
		}
	}
}

func TestGenerateNoUsablePhotos(t *testing.T) {
	_, err := New().Generate(context.Background(), []Photo{{Name: "junk", Data: []byte("junk")}}, "")
	if err == nil {
		t.Fatal("expected an error when nothing decodes")
	}
}
