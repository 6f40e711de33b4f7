package selection

import (
	"errors"
	"image"
	"testing"

	"github.com/stickersmith/stickersmith/pkg/captions"
	"github.com/stickersmith/stickersmith/pkg/types"
)

func testSource(id, w, h int) *types.SourceImage {
	return &types.SourceImage{
		ID:     id,
		Name:   "test.png",
		Pixels: image.NewNRGBA(image.Rect(0, 0, w, h)),
		Width:  w,
		Height: h,
	}
}

func candidate(id string, imageID int, kind types.RegionKind, score float64) types.Candidate {
	return types.Candidate{
		ID:      id,
		ImageID: imageID,
		Kind:    kind,
		Box:     types.Box{X: 0.2, Y: 0.2, W: 0.4, H: 0.4},
		Score:   score,
	}
}

func TestSelectAllSourcesNil(t *testing.T) {
	_, err := Select([]*types.SourceImage{nil, nil}, nil, captions.Directive{}, DefaultConfig())
	if !errors.Is(err, ErrNoUsableImages) {
		t.Fatalf("expected ErrNoUsableImages, got %v", err)
	}
}

func TestSelectPadsToFiveWithoutCandidates(t *testing.T) {
	sources := []*types.SourceImage{testSource(0, 400, 300)}
	slots, err := Select(sources, [][]types.Candidate{nil}, captions.Directive{}, DefaultConfig())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(slots) != types.SlotCount {
		t.Fatalf("expected %d slots, got %d", types.SlotCount, len(slots))
	}
	for i, s := range slots {
		if !s.Synthetic {
			t.Errorf("slot %d should be synthetic", i)
		}
		if s.ImageID != 0 {
			t.Errorf("slot %d attributed to image %d, want 0", i, s.ImageID)
		}
		if !s.Box.Valid() {
			t.Errorf("slot %d box invalid: %+v", i, s.Box)
		}
		if s.Index != i {
			t.Errorf("slot %d has index %d", i, s.Index)
		}
	}
}

func TestSelectMouthCap(t *testing.T) {
	sources := []*types.SourceImage{testSource(0, 400, 400)}
	cands := []types.Candidate{
		candidate("m0", 0, types.RegionMouth, 0.95),
		candidate("m1", 0, types.RegionMouth, 0.90),
		candidate("m2", 0, types.RegionMouth, 0.85),
		candidate("m3", 0, types.RegionMouth, 0.80),
		candidate("f0", 0, types.RegionFace, 0.60),
		candidate("f1", 0, types.RegionFace, 0.55),
		candidate("f2", 0, types.RegionFace, 0.50),
	}
	slots, err := Select(sources, [][]types.Candidate{cands}, captions.Directive{}, DefaultConfig())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(slots) != types.SlotCount {
		t.Fatalf("expected %d slots, got %d", types.SlotCount, len(slots))
	}
	mouths := 0
	for _, s := range slots {
		if s.Kind == types.RegionMouth && !s.Synthetic {
			mouths++
		}
	}
	if mouths != DefaultConfig().MouthCap {
		t.Errorf("expected %d mouth slots, got %d", DefaultConfig().MouthCap, mouths)
	}
}

func TestSelectMouthOnlyDirectiveLiftsCap(t *testing.T) {
	sources := []*types.SourceImage{testSource(0, 400, 400)}
	cands := []types.Candidate{
		candidate("m0", 0, types.RegionMouth, 0.95),
		candidate("m1", 0, types.RegionMouth, 0.90),
		candidate("m2", 0, types.RegionMouth, 0.85),
		candidate("m3", 0, types.RegionMouth, 0.80),
		candidate("m4", 0, types.RegionMouth, 0.75),
		candidate("f0", 0, types.RegionFace, 0.99),
	}
	slots, err := Select(sources, [][]types.Candidate{cands}, captions.Directive{MouthOnly: true}, DefaultConfig())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for i, s := range slots {
		if s.Kind != types.RegionMouth {
			t.Errorf("slot %d kind %s, want mouth", i, s.Kind)
		}
	}
}

func TestSelectMouthOnlyPadsWithFaces(t *testing.T) {
	sources := []*types.SourceImage{testSource(0, 400, 400)}
	cands := []types.Candidate{
		candidate("m0", 0, types.RegionMouth, 0.9),
		candidate("m1", 0, types.RegionMouth, 0.8),
		candidate("f0", 0, types.RegionFace, 0.7),
		candidate("f1", 0, types.RegionFace, 0.6),
		candidate("f2", 0, types.RegionFace, 0.5),
	}
	slots, err := Select(sources, [][]types.Candidate{cands}, captions.Directive{MouthOnly: true}, DefaultConfig())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if slots[0].Kind != types.RegionMouth || slots[1].Kind != types.RegionMouth {
		t.Error("mouth candidates should fill the leading slots")
	}
	for i, s := range slots[2:] {
		if s.Kind != types.RegionFace {
			t.Errorf("slot %d kind %s, want face padding", i+2, s.Kind)
		}
	}
}

func TestSelectSpreadsAcrossImages(t *testing.T) {
	sources := []*types.SourceImage{
		testSource(0, 400, 400),
		testSource(1, 400, 400),
	}
	byImage := [][]types.Candidate{
		{
			candidate("a0", 0, types.RegionFace, 0.95),
			candidate("a1", 0, types.RegionFace, 0.90),
			candidate("a2", 0, types.RegionFace, 0.85),
		},
		{
			candidate("b0", 1, types.RegionFace, 0.40),
		},
	}
	slots, err := Select(sources, byImage, captions.Directive{}, DefaultConfig())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// The diversity round must pick image 1's only candidate before
	// image 0 gets a second slot.
	if slots[0].ImageID != 0 || slots[1].ImageID != 1 {
		t.Errorf("expected both images in the first round, got %d then %d", slots[0].ImageID, slots[1].ImageID)
	}
}

func TestSelectSkipsUnreadableEntries(t *testing.T) {
	sources := []*types.SourceImage{nil, testSource(1, 300, 300)}
	byImage := [][]types.Candidate{
		{candidate("ghost", 0, types.RegionFace, 0.9)},
		{candidate("b0", 1, types.RegionFace, 0.8)},
	}
	slots, err := Select(sources, byImage, captions.Directive{}, DefaultConfig())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for i, s := range slots {
		if s.ImageID != 1 {
			t.Errorf("slot %d attributed to unreadable image %d", i, s.ImageID)
		}
	}
}
