// Package pipeline runs one upload request end to end: ingestion,
// candidate detection, selection, optional AI planning, caption
// alignment and rendering. The pipeline is deterministic whenever the
// planner is disabled or failing; the two external calls are additive
// enhancements that can never block the five-sticker guarantee.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"image"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/stickersmith/stickersmith/pkg/analyzer"
	"github.com/stickersmith/stickersmith/pkg/captions"
	"github.com/stickersmith/stickersmith/pkg/planner"
	"github.com/stickersmith/stickersmith/pkg/render"
	"github.com/stickersmith/stickersmith/pkg/selection"
	"github.com/stickersmith/stickersmith/pkg/types"
	"github.com/stickersmith/stickersmith/pkg/vision"
)

// ErrNoUsableImages aborts the run when every input failed decoding.
var ErrNoUsableImages = selection.ErrNoUsableImages

// Upload is one raw input file.
type Upload struct {
	Name string
	Data []byte
}

// Request is one pipeline run's input.
type Request struct {
	ID    string
	Files []Upload
	Style string
}

// Result is everything a transport layer needs to answer the caller.
type Result struct {
	RequestID string
	Mode      string // "single" or "multi"
	Results   []types.RenderResult
	Slots     []types.Slot

	InputCount  int
	UsableCount int
	Unreadable  []string

	CaptionsSource  types.CaptionSource
	CaptionsAligned bool

	UsedAI       bool
	AIAttempted  bool
	AICalls      int
	AIErrorStage string
	AIErrorText  string

	PlanDebug     string
	CaptionsDebug string
	MontageWebP   []byte
}

// Options configure a Pipeline. The zero value is usable: planning
// disabled, default heuristics.
type Options struct {
	Client    planner.Client
	Analyzer  analyzer.Config
	Detector  vision.Config
	Renderer  render.Config
	Selection selection.Config
	Planner   planner.Config
	Logger    zerolog.Logger
}

// Pipeline is safe for concurrent use; each Run touches only its own
// request state.
type Pipeline struct {
	analyzer *analyzer.Analyzer
	detector *vision.Detector
	renderer *render.Renderer
	client   planner.Client
	selCfg   selection.Config
	planCfg  planner.Config
	log      zerolog.Logger
}

// New creates a Pipeline, replacing zero-valued option structs with
// package defaults.
func New(opts Options) *Pipeline {
	if opts.Analyzer == (analyzer.Config{}) {
		opts.Analyzer = analyzer.DefaultConfig()
	}
	if opts.Detector.ProbeMaxEdge == 0 {
		opts.Detector = vision.DefaultConfig()
	}
	if opts.Renderer == (render.Config{}) {
		opts.Renderer = render.DefaultConfig()
	}
	if opts.Selection == (selection.Config{}) {
		opts.Selection = selection.DefaultConfig()
	}
	if opts.Planner.Timeout == 0 {
		opts.Planner = planner.DefaultConfig()
	}
	return &Pipeline{
		analyzer: analyzer.NewWithConfig(opts.Analyzer),
		detector: vision.NewWithConfig(opts.Detector),
		renderer: render.NewWithConfig(opts.Renderer),
		client:   opts.Client,
		selCfg:   opts.Selection,
		planCfg:  opts.Planner,
		log:      opts.Logger,
	}
}

// Run executes the full pipeline for one request.
func (p *Pipeline) Run(ctx context.Context, req Request) (*Result, error) {
	log := p.log.With().Str("request_id", req.ID).Logger()
	directive := captions.ParseDirective(req.Style)
	if directive.Status == "rejected" {
		log.Warn().Msg("style directive rejected, proceeding without it")
	}

	res := &Result{
		RequestID:  req.ID,
		Mode:       "single",
		InputCount: len(req.Files),
	}
	if len(req.Files) > 1 {
		res.Mode = "multi"
	}

	// Stage 1: decode and normalize. Unreadable inputs are excluded,
	// not fatal, unless nothing survives.
	sources := make([]*types.SourceImage, len(req.Files))
	for i, f := range req.Files {
		src, err := p.analyzer.Decode(i, f.Name, f.Data)
		if err != nil {
			log.Warn().Str("file", f.Name).Err(err).Msg("input excluded")
			res.Unreadable = append(res.Unreadable, f.Name)
			continue
		}
		sources[i] = src
		res.UsableCount++
	}
	if res.UsableCount == 0 {
		return nil, fmt.Errorf("%w: %d input(s), none decodable", ErrNoUsableImages, len(req.Files))
	}

	// Stage 2: detect candidates, one goroutine per image, merged by
	// input index so completion order cannot change the outcome.
	byImage := make([][]types.Candidate, len(sources))
	g, gctx := errgroup.WithContext(ctx)
	for i, src := range sources {
		if src == nil {
			continue
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			byImage[i] = p.detector.Detect(src)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	// Stage 3: exactly five slots, always.
	slots, err := selection.Select(sources, byImage, directive, p.selCfg)
	if err != nil {
		return nil, err
	}
	res.Slots = slots

	// Stage 4: plan acquisition. Failure degrades to pool captions and
	// untouched boxes; it is recorded, never raised.
	slotJPEGs := p.slotPreviews(sources, slots)
	plan := planner.Acquire(ctx, p.client, slots, slotJPEGs, directive, p.planCfg)
	res.AIAttempted = plan.Attempted
	res.UsedAI = plan.UsedAI
	res.AICalls = plan.Calls
	res.AIErrorStage = plan.ErrorStage
	res.AIErrorText = plan.ErrorText
	if plan.ErrorStage != "" {
		res.PlanDebug = plan.DebugText
		if plan.ErrorStage == planner.StageSafety {
			log.Warn().Str("stage", plan.ErrorStage).Str("detail", plan.ErrorText).Msg("planner content-policy reject, using fallback plans")
		} else {
			log.Info().Str("stage", plan.ErrorStage).Msg("planner unavailable, using fallback plans")
		}
	}

	source := types.CaptionsFallback
	switch {
	case plan.UsedAI:
		source = types.CaptionsAIOriginal
	case directive.MouthOnly:
		source = types.CaptionsMouthFallback
	}
	texts := make([]string, len(slots))
	for i, pl := range plan.Plans {
		texts[i] = pl.Caption
	}

	// Stage 6 (first half): final crops from the possibly refined
	// boxes. These bytes are frozen before the alignment pass runs.
	crops := make([]*image.NRGBA, len(slots))
	for i, slot := range slots {
		src := sourceByID(sources, slot.ImageID)
		crop, err := p.renderer.Crop512(src, plan.Plans[i].Box)
		if err != nil {
			return nil, err
		}
		crops[i] = crop
	}

	// Stage 5: caption alignment against the rendered crops. Caption
	// text only; geometry is already frozen.
	var montageJPEG []byte
	if p.client != nil {
		montage := render.Montage(crops)
		if jpg, err := render.EncodeJPEG(montage, 85); err == nil {
			montageJPEG = jpg
		}
		if dbg, err := render.EncodeWebP(montage, 80); err == nil {
			res.MontageWebP = dbg
		}
	}
	align := planner.Realign(ctx, p.client, montageJPEG, texts, source, directive, p.planCfg)
	res.AICalls += align.Calls
	res.CaptionsAligned = align.Aligned
	res.CaptionsSource = align.Source
	if align.Attempted && !align.Aligned {
		res.CaptionsDebug = align.DebugText
		log.Info().Str("detail", align.ErrorText).Msg("caption alignment unavailable, keeping prior captions")
	}
	texts = align.Captions

	// Stage 6 (second half): burn captions and encode.
	for i, slot := range slots {
		png, err := p.renderer.Caption(crops[i], texts[i])
		if err != nil {
			// Caption drawing failing is not a source-buffer failure;
			// keep the five-sticker guarantee with a text card.
			log.Error().Err(err).Int("slot", i).Msg("caption render failed, substituting text card")
			png, err = p.renderer.TextCard(i, texts[i])
			if err != nil {
				return nil, err
			}
		}
		res.Results = append(res.Results, types.RenderResult{
			Filename: fmt.Sprintf("%s_%d.png", req.ID, i+1),
			Caption:  texts[i],
			ImageID:  slot.ImageID,
			Kind:     slot.Kind,
			Score:    slot.Score,
			PNG:      png,
		})
	}

	log.Info().
		Str("mode", res.Mode).
		Int("usable", res.UsableCount).
		Bool("used_ai", res.UsedAI).
		Str("captions_source", string(res.CaptionsSource)).
		Msg("pipeline complete")
	return res, nil
}

// slotPreviews encodes one JPEG per slot for the planning request.
// Preview failures just shrink the payload; they never stop the run.
func (p *Pipeline) slotPreviews(sources []*types.SourceImage, slots []types.Slot) [][]byte {
	if p.client == nil {
		return nil
	}
	out := make([][]byte, 0, len(slots))
	for _, slot := range slots {
		crop, err := p.renderer.Crop512(sourceByID(sources, slot.ImageID), slot.Box)
		if err != nil {
			continue
		}
		jpg, err := render.EncodeJPEG(crop, 85)
		if err != nil {
			continue
		}
		out = append(out, jpg)
	}
	return out
}

func sourceByID(sources []*types.SourceImage, id int) *types.SourceImage {
	for _, src := range sources {
		if src != nil && src.ID == id {
			return src
		}
	}
	return nil
}

// IsUnreadable reports whether err wraps the per-image decode failure.
func IsUnreadable(err error) bool {
	return errors.Is(err, analyzer.ErrImageUnreadable)
}
