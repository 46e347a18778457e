// ABOUTME: FileNameFetcher backed by the assistant API's file metadata endpoint
// ABOUTME: Combines a raw GetFile call with Parser.FileName

package answer

import (
	"context"
	"fmt"

	"github.com/2389/filedesk/internal/assistant"
)

// FileGetter fetches raw file metadata.
type FileGetter interface {
	GetFile(ctx context.Context, fileID string) ([]byte, error)
}

// APIFileNames resolves file ids through the remote file metadata endpoint.
type APIFileNames struct {
	files  FileGetter
	parser *assistant.Parser
}

// NewAPIFileNames creates an APIFileNames.
func NewAPIFileNames(files FileGetter, parser *assistant.Parser) *APIFileNames {
	return &APIFileNames{files: files, parser: parser}
}

// FileName returns the declared filename of fileID.
func (a *APIFileNames) FileName(ctx context.Context, fileID string) (string, error) {
	raw, err := a.files.GetFile(ctx, fileID)
	if err != nil {
		return "", fmt.Errorf("fetching metadata for %s: %w", fileID, err)
	}
	return a.parser.FileName(raw), nil
}
