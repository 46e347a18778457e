// ABOUTME: PDF recompression for oversized files using pdfcpu optimisation
// ABOUTME: Each call writes a uniquely named copy into a work directory; non-PDF input is rejected

package files

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
)

func init() {
	// pdfcpu would otherwise create a config directory under the user's home
	api.DisableConfigDir()
}

// PDFCompressor optimises PDFs into a work directory.
type PDFCompressor struct {
	workDir string
	logger  *slog.Logger
}

// NewPDFCompressor creates a PDFCompressor writing into workDir.
func NewPDFCompressor(workDir string, logger *slog.Logger) *PDFCompressor {
	if logger == nil {
		logger = slog.Default()
	}
	return &PDFCompressor{
		workDir: workDir,
		logger:  logger.With("component", "compressor"),
	}
}

// Compress writes an optimised copy of path and returns its location.
func (c *PDFCompressor) Compress(ctx context.Context, path string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if !strings.EqualFold(filepath.Ext(path), ".pdf") {
		return "", fmt.Errorf("cannot compress %s: not a PDF", filepath.Base(path))
	}
	if err := os.MkdirAll(c.workDir, 0755); err != nil {
		return "", fmt.Errorf("creating work directory: %w", err)
	}

	out, err := c.outputPath(filepath.Base(path))
	if err != nil {
		return "", err
	}
	conf := model.NewDefaultConfiguration()
	if err := api.OptimizeFile(path, out, conf); err != nil {
		os.Remove(out)
		return "", fmt.Errorf("optimizing %s: %w", filepath.Base(path), err)
	}

	c.logger.Debug("compressed PDF", "input", path, "output", out)
	return out, nil
}

// outputPath reserves a fresh file in the work directory so concurrent
// compressions of the same document never share an output.
func (c *PDFCompressor) outputPath(base string) (string, error) {
	f, err := os.CreateTemp(c.workDir, "compressed_*_"+base)
	if err != nil {
		return "", fmt.Errorf("creating output file: %w", err)
	}
	name := f.Name()
	if err := f.Close(); err != nil {
		os.Remove(name)
		return "", fmt.Errorf("creating output file: %w", err)
	}
	return name, nil
}
