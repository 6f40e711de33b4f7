package server

import (
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/stickersmith/stickersmith/internal/utils"
	"github.com/stickersmith/stickersmith/pkg/pipeline"
)

type resultDTO struct {
	URL     string `json:"url"`
	Caption string `json:"caption"`
}

type selectionDTO struct {
	Slot      int     `json:"slot"`
	ImageID   int     `json:"image_id"`
	Kind      string  `json:"kind"`
	Score     float64 `json:"score"`
	Synthetic bool    `json:"synthetic"`
}

type uploadResponse struct {
	RequestID              string         `json:"request_id"`
	Mode                   string         `json:"mode"`
	Results                []resultDTO    `json:"results"`
	DownloadURL            string         `json:"download_url"`
	CaptionsAlignedToCrops bool           `json:"captions_aligned_to_crops"`
	CaptionsSource         string         `json:"captions_source"`
	UsedAI                 bool           `json:"used_ai"`
	AIAttempted            bool           `json:"ai_attempted"`
	AIErrorStage           string         `json:"ai_error_stage,omitempty"`
	AICalls                int            `json:"ai_calls"`
	Selection              []selectionDTO `json:"selection"`
	InputCount             int            `json:"input_count"`
	UsableCount            int            `json:"usable_count"`
	Unreadable             []string       `json:"unreadable,omitempty"`
	PlanDebugURL           string         `json:"plan_debug_url,omitempty"`
	CaptionsDebugURL       string         `json:"captions_debug_url,omitempty"`
}

func (s *Server) handleUpload(c *gin.Context) {
	form, err := c.MultipartForm()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid multipart form"})
		return
	}
	files := form.File["files"]
	if len(files) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "no files uploaded"})
		return
	}
	if len(files) > s.cfg.Upload.MaxFiles {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("at most %d files per request", s.cfg.Upload.MaxFiles)})
		return
	}

	var total int64
	uploads := make([]pipeline.Upload, 0, len(files))
	for _, fh := range files {
		if fh.Size > s.cfg.Upload.MaxFileBytes {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{
				"error": fmt.Sprintf("%s exceeds the per-file limit of %s", fh.Filename, utils.FormatFileSize(s.cfg.Upload.MaxFileBytes)),
			})
			return
		}
		total += fh.Size
		if total > s.cfg.Upload.MaxTotalBytes {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{
				"error": fmt.Sprintf("upload exceeds the total limit of %s", utils.FormatFileSize(s.cfg.Upload.MaxTotalBytes)),
			})
			return
		}
		data, err := readUpload(fh)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("failed to read %s", fh.Filename)})
			return
		}
		uploads = append(uploads, pipeline.Upload{
			Name: utils.SanitizeFilename(fh.Filename),
			Data: data,
		})
	}

	reqID := strings.ReplaceAll(uuid.New().String(), "-", "")[:12]
	res, err := s.pipe.Run(c.Request.Context(), pipeline.Request{
		ID:    reqID,
		Files: uploads,
		Style: c.PostForm("style"),
	})
	if err != nil {
		if errors.Is(err, pipeline.ErrNoUsableImages) {
			c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "no_usable_images"})
			return
		}
		s.log.Error().Str("request_id", reqID).Err(err).Msg("pipeline failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "render_failure"})
		return
	}

	resp, err := s.persist(res)
	if err != nil {
		s.log.Error().Str("request_id", reqID).Err(err).Msg("failed to persist artifacts")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "render_failure"})
		return
	}
	c.JSON(http.StatusOK, resp)
}

// persist writes the stickers, the ZIP archive and any debug dumps,
// then builds the response body. Every file lands atomically.
func (s *Server) persist(res *pipeline.Result) (*uploadResponse, error) {
	dir := s.cfg.Output.GeneratedDir
	resp := &uploadResponse{
		RequestID:              res.RequestID,
		Mode:                   res.Mode,
		CaptionsAlignedToCrops: res.CaptionsAligned,
		CaptionsSource:         string(res.CaptionsSource),
		UsedAI:                 res.UsedAI,
		AIAttempted:            res.AIAttempted,
		AIErrorStage:           res.AIErrorStage,
		AICalls:                res.AICalls,
		InputCount:             res.InputCount,
		UsableCount:            res.UsableCount,
		Unreadable:             res.Unreadable,
	}

	for _, r := range res.Results {
		if err := utils.AtomicWrite(filepath.Join(dir, r.Filename), r.PNG); err != nil {
			return nil, fmt.Errorf("failed to write %s: %w", r.Filename, err)
		}
		resp.Results = append(resp.Results, resultDTO{
			URL:     "/generated/" + r.Filename,
			Caption: r.Caption,
		})
	}

	archive, err := buildArchive(res.Results)
	if err != nil {
		return nil, fmt.Errorf("failed to build archive: %w", err)
	}
	zipName := res.RequestID + "_stickers.zip"
	if err := utils.AtomicWrite(filepath.Join(dir, zipName), archive); err != nil {
		return nil, fmt.Errorf("failed to write archive: %w", err)
	}
	resp.DownloadURL = "/generated/" + zipName

	for i, slot := range res.Slots {
		resp.Selection = append(resp.Selection, selectionDTO{
			Slot:      i,
			ImageID:   slot.ImageID,
			Kind:      string(slot.Kind),
			Score:     slot.Score,
			Synthetic: slot.Synthetic,
		})
	}

	if s.cfg.Output.KeepDebug {
		resp.PlanDebugURL = s.writeDebug(res.RequestID+"_plan_debug.txt", []byte(res.PlanDebug))
		resp.CaptionsDebugURL = s.writeDebug(res.RequestID+"_captions_debug.txt", []byte(res.CaptionsDebug))
		s.writeDebug(res.RequestID+"_montage.webp", res.MontageWebP)
	}
	return resp, nil
}

// writeDebug best-effort persists a debug artifact and returns its URL,
// or "" when there is nothing to dump or the write failed.
func (s *Server) writeDebug(name string, data []byte) string {
	if len(data) == 0 {
		return ""
	}
	if err := utils.AtomicWrite(filepath.Join(s.cfg.Output.DebugDir, name), data); err != nil {
		s.log.Warn().Str("file", name).Err(err).Msg("failed to write debug dump")
		return ""
	}
	rel, err := filepath.Rel(s.cfg.Output.GeneratedDir, filepath.Join(s.cfg.Output.DebugDir, name))
	if err != nil || strings.HasPrefix(rel, "..") {
		return ""
	}
	return "/generated/" + filepath.ToSlash(rel)
}

func readUpload(fh *multipart.FileHeader) ([]byte, error) {
	f, err := fh.Open()
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return io.ReadAll(f)
}
