package server

import (
	"archive/zip"
	"bytes"
	"fmt"
	"io"

	"github.com/klauspost/compress/flate"

	"github.com/stickersmith/stickersmith/pkg/types"
)

// buildArchive packs the five stickers into one ZIP in memory. PNG
// payloads are already compressed, so the deflater runs at BestSpeed.
func buildArchive(results []types.RenderResult) ([]byte, error) {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	zw.RegisterCompressor(zip.Deflate, func(out io.Writer) (io.WriteCloser, error) {
		return flate.NewWriter(out, flate.BestSpeed)
	})

	for _, r := range results {
		w, err := zw.Create(r.Filename)
		if err != nil {
			return nil, fmt.Errorf("failed to add %s: %w", r.Filename, err)
		}
		if _, err := w.Write(r.PNG); err != nil {
			return nil, fmt.Errorf("failed to write %s: %w", r.Filename, err)
		}
	}
	if err := zw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
