package server

import (
	"archive/zip"
	"bytes"
	"encoding/json"
	"image"
	"image/color"
	"image/png"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"

	"github.com/stickersmith/stickersmith/internal/config"
	"github.com/stickersmith/stickersmith/pkg/pipeline"
	"github.com/stickersmith/stickersmith/pkg/types"
)

func testServer(t *testing.T) *Server {
	t.Helper()
	cfg := config.Default()
	dir := t.TempDir()
	cfg.Output.GeneratedDir = dir
	cfg.Output.DebugDir = dir

	pipe := pipeline.New(pipeline.Options{Logger: zerolog.Nop()})
	srv, err := New(cfg, pipe, zerolog.Nop())
	if err != nil {
		t.Fatalf("server setup failed: %v", err)
	}
	return srv
}

func photoBytes(t *testing.T) []byte {
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
	return buf.Bytes()
}

func multipartBody(t *testing.T, style string, files map[string][]byte) (*bytes.Buffer, string) {
	t.Helper()
	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	for name, data := range files {
		part, err := w.CreateFormFile("files", name)
		if err != nil {
			t.Fatalf("create form file: %v", err)
		}
		if _, err := part.Write(data); err != nil {
			t.Fatalf("write form file: %v", err)
		}
	}
	if style != "" {
		if err := w.WriteField("style", style); err != nil {
			t.Fatalf("write style field: %v", err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatalf("close writer: %v", err)
	}
	return &body, w.FormDataContentType()
}

func TestUploadHappyPath(t *testing.T) {
	srv := testServer(t)
	router := srv.Router()

	body, contentType := multipartBody(t, "", map[string][]byte{"a.png": photoBytes(t)})
	req := httptest.NewRequest(http.MethodPost, "/api/upload", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body: %s", rec.Code, rec.Body.String())
	}

	var resp uploadResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("response not JSON: %v", err)
	}
	if len(resp.Results) != types.SlotCount {
		t.Errorf("results = %d, want %d", len(resp.Results), types.SlotCount)
	}
	if resp.Mode != "single" {
		t.Errorf("mode = %q, want single", resp.Mode)
	}
	if resp.DownloadURL == "" {
		t.Error("missing download url")
	}
	if resp.UsedAI || resp.AIAttempted {
		t.Error("planner is disabled in this setup")
	}
	if resp.CaptionsSource != string(types.CaptionsFallback) {
		t.Errorf("captions source = %q", resp.CaptionsSource)
	}
	if len(resp.Selection) != types.SlotCount {
		t.Errorf("selection entries = %d", len(resp.Selection))
	}

	// The artifacts must be fetchable through the static route.
	get := httptest.NewRequest(http.MethodGet, resp.Results[0].URL, nil)
	getRec := httptest.NewRecorder()
	router.ServeHTTP(getRec, get)
	if getRec.Code != http.StatusOK {
		t.Errorf("sticker fetch status = %d", getRec.Code)
	}
}

func TestUploadNoFiles(t *testing.T) {
	srv := testServer(t)
	body, contentType := multipartBody(t, "funny", nil)
	req := httptest.NewRequest(http.MethodPost, "/api/upload", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestUploadAllUnreadable(t *testing.T) {
	srv := testServer(t)
	body, contentType := multipartBody(t, "", map[string][]byte{"junk.png": []byte("not an image")})
	req := httptest.NewRequest(http.MethodPost, "/api/upload", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d, want 422, body: %s", rec.Code, rec.Body.String())
	}
	if !bytes.Contains(rec.Body.Bytes(), []byte("no_usable_images")) {
		t.Errorf("body = %s", rec.Body.String())
	}
}

func TestUploadTooManyFiles(t *testing.T) {
	srv := testServer(t)
	srv.cfg.Upload.MaxFiles = 1
	body, contentType := multipartBody(t, "", map[string][]byte{
		"a.png": photoBytes(t),
		"b.png": photoBytes(t),
	})
	req := httptest.NewRequest(http.MethodPost, "/api/upload", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestUploadOversizeFile(t *testing.T) {
	srv := testServer(t)
	srv.cfg.Upload.MaxFileBytes = 10
	body, contentType := multipartBody(t, "", map[string][]byte{"a.png": photoBytes(t)})
	req := httptest.NewRequest(http.MethodPost, "/api/upload", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusRequestEntityTooLarge {
		t.Errorf("status = %d, want 413", rec.Code)
	}
}

func TestBuildArchive(t *testing.T) {
	results := []types.RenderResult{
		{Filename: "r_1.png", PNG: []byte("one")},
		{Filename: "r_2.png", PNG: []byte("two")},
	}
	data, err := buildArchive(results)
	if err != nil {
		t.Fatalf("archive failed: %v", err)
	}

	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		t.Fatalf("output is not a zip: %v", err)
	}
	if len(zr.File) != 2 {
		t.Fatalf("zip holds %d entries, want 2", len(zr.File))
	}
	if zr.File[0].Name != "r_1.png" {
		t.Errorf("first entry = %q", zr.File[0].Name)
	}
}

func TestHealthz(t *testing.T) {
	srv := testServer(t)
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Errorf("status = %d", rec.Code)
	}
}
