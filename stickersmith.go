// Package stickersmith turns a handful of photos into a set of five
// captioned 512x512 sticker images.
//
// The library runs a fixed pipeline: decode and normalize every upload,
// find face and mouth crop candidates with pixel heuristics, select
// exactly five slots, optionally refine crops and captions through an
// external vision model, and render the final PNG stickers. The vision
// model is strictly optional; without it the output is fully
// deterministic.
//
// Basic usage:
//
//	package main
//
//	import (
//		"context"
//		"fmt"
//		"log"
//		"os"
//
//		"github.com/stickersmith/stickersmith"
//	)
//
//	func main() {
//		data, err := os.ReadFile("family.jpg")
//		if err != nil {
//			log.Fatal(err)
//		}
//
//		sm := stickersmith.New()
//		set, err := sm.Generate(context.Background(), []stickersmith.Photo{
//			{Name: "family.jpg", Data: data},
//		}, "make them extra dramatic")
//		if err != nil {
//			log.Fatal(err)
//		}
//
//		for _, s := range set.Stickers {
//			if err := os.WriteFile(s.Filename, s.PNG, 0644); err != nil {
//				log.Fatal(err)
//			}
//			fmt.Printf("%s: %q\n", s.Filename, s.Caption)
//		}
//	}
//
// The package consists of these main components:
//
// 1. Analyzer (pkg/analyzer): decodes uploads and corrects orientation
// 2. Vision (pkg/vision): face and mouth candidate detection
// 3. Selection (pkg/selection): five-slot selection with diversity rules
// 4. Planner (pkg/planner): optional external crop and caption planning
// 5. Render (pkg/render): deterministic 512x512 caption rendering
// 6. Pipeline (pkg/pipeline): the orchestrated end-to-end run
//
// For the HTTP service wrapping this pipeline, see cmd/stickersmith.
package stickersmith

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/stickersmith/stickersmith/pkg/pipeline"
	"github.com/stickersmith/stickersmith/pkg/planner"
	"github.com/stickersmith/stickersmith/pkg/types"
)

// Version of the stickersmith library
const Version = "1.0.0"

// Photo is one raw input image.
type Photo struct {
	Name string
	Data []byte
}

// Sticker is one finished output image.
type Sticker struct {
	Filename string
	Caption  string
	PNG      []byte
}

// Set is the result of one generation run.
type Set struct {
	RequestID      string
	Stickers       []Sticker
	CaptionsSource types.CaptionSource
	UsedAI         bool
	Unreadable     []string
}

// StickerSmith provides a high-level interface over the pipeline.
type StickerSmith struct {
	pipe *pipeline.Pipeline
}

// New creates a StickerSmith with default configuration and no
// external planner.
func New() *StickerSmith {
	return NewWithOptions(pipeline.Options{Logger: zerolog.Nop()})
}

// NewWithPlanner creates a StickerSmith that consults the given vision
// model client for crop refinement and captions.
func NewWithPlanner(client planner.Client) *StickerSmith {
	return NewWithOptions(pipeline.Options{Client: client, Logger: zerolog.Nop()})
}

// NewWithOptions creates a StickerSmith with full pipeline control.
func NewWithOptions(opts pipeline.Options) *StickerSmith {
	return &StickerSmith{pipe: pipeline.New(opts)}
}

// Generate runs the full pipeline over the given photos. style is an
// optional free-text hint; an empty string disables it. The returned
// set always holds exactly five stickers unless no photo decoded.
func (sm *StickerSmith) Generate(ctx context.Context, photos []Photo, style string) (*Set, error) {
	req := pipeline.Request{ID: requestID(), Style: style}
	for _, p := range photos {
		req.Files = append(req.Files, pipeline.Upload{Name: p.Name, Data: p.Data})
	}

	res, err := sm.pipe.Run(ctx, req)
	if err != nil {
		return nil, err
	}

	set := &Set{
		RequestID:      res.RequestID,
		CaptionsSource: res.CaptionsSource,
		UsedAI:         res.UsedAI,
		Unreadable:     res.Unreadable,
	}
	for _, r := range res.Results {
		set.Stickers = append(set.Stickers, Sticker{
			Filename: r.Filename,
			Caption:  r.Caption,
			PNG:      r.PNG,
		})
	}
	return set, nil
}

func requestID() string {
	return strings.ReplaceAll(uuid.New().String(), "-", "")[:12]
}
