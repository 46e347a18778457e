// ABOUTME: Resolves requested file names against the local storage directory
// ABOUTME: Matches on normalized case-insensitive names and compresses oversized files

package files

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

var (
	// ErrNotFound means no candidate name matched a file in the directory.
	ErrNotFound = errors.New("file not found")
	// ErrCompression means an oversized file could not be compressed.
	ErrCompression = errors.New("compression failed")
)

// ResolutionError reports why one requested file could not be delivered.
type ResolutionError struct {
	Name string
	Err  error
}

func (e *ResolutionError) Error() string {
	return fmt.Sprintf("resolving %q: %v", e.Name, e.Err)
}

func (e *ResolutionError) Unwrap() error {
	return e.Err
}

// Compressor shrinks a file, returning the path of the smaller copy.
type Compressor interface {
	Compress(ctx context.Context, path string) (string, error)
}

// LocalFile is a resolved file ready for delivery.
type LocalFile struct {
	Path       string
	Name       string
	Size       int64
	Compressed bool
}

// Release removes the compressed copy once it has been delivered. Files
// served from the document directory are left alone.
func (f *LocalFile) Release() error {
	if !f.Compressed {
		return nil
	}
	if err := os.Remove(f.Path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("removing compressed copy of %s: %w", f.Name, err)
	}
	return nil
}

// Options configures a Locator.
type Options struct {
	Dir        string
	SizeLimit  int64      // files larger than this are compressed; 0 disables
	Compressor Compressor // nil disables compression
	Logger     *slog.Logger
}

// Locator finds requested files in one directory.
type Locator struct {
	dir        string
	sizeLimit  int64
	compressor Compressor
	logger     *slog.Logger
}

// NewLocator creates a Locator.
func NewLocator(opts Options) *Locator {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Locator{
		dir:        opts.Dir,
		sizeLimit:  opts.SizeLimit,
		compressor: opts.Compressor,
		logger:     logger.With("component", "files"),
	}
}

// Dir returns the storage directory.
func (l *Locator) Dir() string {
	return l.dir
}

// Resolve finds the file for a requested name. The directory is listed on
// every call so files added while the service runs are found. Failures are
// returned as *ResolutionError.
func (l *Locator) Resolve(ctx context.Context, name string) (*LocalFile, error) {
	entries, err := os.ReadDir(l.dir)
	if err != nil {
		return nil, &ResolutionError{Name: name, Err: fmt.Errorf("listing %s: %w", l.dir, err)}
	}

	var match os.DirEntry
	var matchedAs string
	for _, candidate := range Candidates(name) {
		want := Normalize(candidate)
		for _, entry := range entries {
			if !entry.Type().IsRegular() {
				continue
			}
			if strings.EqualFold(Normalize(entry.Name()), want) {
				match, matchedAs = entry, candidate
				break
			}
		}
		if match != nil {
			break
		}
	}

	if match == nil {
		l.logger.Warn("requested file not found", "name", name, "dir", l.dir)
		return nil, &ResolutionError{Name: name, Err: ErrNotFound}
	}

	info, err := match.Info()
	if err != nil {
		return nil, &ResolutionError{Name: name, Err: fmt.Errorf("stat %s: %w", match.Name(), err)}
	}

	file := &LocalFile{
		Path: filepath.Join(l.dir, match.Name()),
		Name: match.Name(),
		Size: info.Size(),
	}
	l.logger.Debug("resolved file", "name", name, "candidate", matchedAs, "file", file.Name, "size", file.Size)

	if l.sizeLimit <= 0 || file.Size <= l.sizeLimit || l.compressor == nil {
		return file, nil
	}
	return l.compress(ctx, name, file)
}

func (l *Locator) compress(ctx context.Context, name string, file *LocalFile) (*LocalFile, error) {
	l.logger.Info("compressing oversized file", "file", file.Name, "size", file.Size, "limit", l.sizeLimit)

	out, err := l.compressor.Compress(ctx, file.Path)
	if err != nil {
		l.logger.Error("compression failed, skipping file", "file", file.Name, "error", err)
		return nil, &ResolutionError{Name: name, Err: fmt.Errorf("%w: %w", ErrCompression, err)}
	}

	info, err := os.Stat(out)
	if err != nil {
		return nil, &ResolutionError{Name: name, Err: fmt.Errorf("%w: stat output: %w", ErrCompression, err)}
	}

	compressed := &LocalFile{
		Path:       out,
		Name:       file.Name,
		Size:       info.Size(),
		Compressed: true,
	}
	if compressed.Size > l.sizeLimit {
		l.logger.Warn("compressed file still exceeds limit, sending anyway",
			"file", file.Name,
			"original_size", file.Size,
			"compressed_size", compressed.Size,
		)
	}
	return compressed, nil
}
