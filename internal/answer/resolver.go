// ABOUTME: Turns a completed run's latest message into a text or file answer envelope
// ABOUTME: Extracts embedded name-to-id maps, looks up cited file names, and cleans raw names

package answer

import (
	"context"
	"log/slog"
	"path"
	"regexp"
	"sort"
	"strings"

	"github.com/tidwall/gjson"
)

// EnvelopeKind distinguishes text answers from file answers.
type EnvelopeKind int

const (
	EnvelopeText EnvelopeKind = iota
	EnvelopeFiles
)

// FileRef is one requested file. FileID is set only when the assistant supplied it.
type FileRef struct {
	Name   string
	FileID string
}

// Envelope is the resolved result of a turn. Exactly one of Text or Files is meaningful.
type Envelope struct {
	Kind     EnvelopeKind
	Strategy Strategy
	Text     string
	Files    []FileRef
}

// Input is everything the resolver needs from a completed run.
type Input struct {
	Kind            RequestKind
	ReferenceNames  []string
	ReferenceIDs    []string
	Text            string
	LatestMessageID string
}

// FileNameFetcher resolves a remote file id to its declared file name.
type FileNameFetcher interface {
	FileName(ctx context.Context, fileID string) (string, error)
}

// Resolver builds Envelopes.
type Resolver struct {
	fetcher FileNameFetcher
	logger  *slog.Logger
}

// NewResolver creates a Resolver. fetcher is used only by the file id lookup branch.
func NewResolver(fetcher FileNameFetcher, logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{
		fetcher: fetcher,
		logger:  logger.With("component", "answer"),
	}
}

// Resolve classifies in and produces its envelope. Metadata lookup failures are
// logged and drop the affected file; they never fail the turn.
func (r *Resolver) Resolve(ctx context.Context, in Input) Envelope {
	strategy := Classify(in.Kind, in.ReferenceNames)
	r.logger.Debug("classified answer",
		"strategy", strategy.String(),
		"message_id", in.LatestMessageID,
		"references", len(in.ReferenceNames),
	)

	switch strategy {
	case StrategyText:
		return Envelope{Kind: EnvelopeText, Strategy: strategy, Text: in.Text}

	case StrategyEmbeddedJSON:
		m := r.ExtractFileMap(in.Text)
		names := make([]string, 0, len(m))
		for name := range m {
			names = append(names, name)
		}
		sort.Strings(names)
		files := make([]FileRef, 0, len(names))
		for _, name := range names {
			files = append(files, FileRef{Name: name, FileID: m[name]})
		}
		return Envelope{Kind: EnvelopeFiles, Strategy: strategy, Files: files}

	case StrategyFileIDLookup:
		return Envelope{Kind: EnvelopeFiles, Strategy: strategy, Files: r.lookupNames(ctx, in.ReferenceIDs)}

	case StrategyRawFilenames:
		names := make([]string, 0, len(in.ReferenceNames))
		for _, name := range in.ReferenceNames {
			names = append(names, CleanFilename(name))
		}
		return Envelope{Kind: EnvelopeFiles, Strategy: strategy, Files: refsFromNames(names)}

	default:
		return Envelope{Kind: EnvelopeFiles, Strategy: strategy, Files: refsFromNames(in.ReferenceNames)}
	}
}

func (r *Resolver) lookupNames(ctx context.Context, fileIDs []string) []FileRef {
	if r.fetcher == nil {
		r.logger.Warn("file id lookup requested without a metadata fetcher")
		return nil
	}

	var refs []FileRef
	seen := make(map[string]bool)
	for _, id := range fileIDs {
		if seen[id] {
			continue
		}
		seen[id] = true

		name, err := r.fetcher.FileName(ctx, id)
		if err != nil {
			r.logger.Warn("fetching file metadata failed", "file_id", id, "error", err)
			continue
		}
		if name == "" {
			r.logger.Warn("file metadata has no filename", "file_id", id)
			continue
		}
		refs = append(refs, FileRef{Name: name, FileID: id})
	}
	return refs
}

// refsFromNames drops empty and repeated names, keeping first-seen order.
func refsFromNames(names []string) []FileRef {
	var refs []FileRef
	seen := make(map[string]bool)
	for _, name := range names {
		if name == "" || seen[name] {
			continue
		}
		seen[name] = true
		refs = append(refs, FileRef{Name: name})
	}
	return refs
}

// embeddedObject finds the first brace-delimited span, shortest match.
var embeddedObject = regexp.MustCompile(`(?s)\{.*?\}`)

// ExtractFileMap reads the first {...} span in text as a flat name-to-id object.
// Non-string values are skipped. A missing or malformed object yields an empty map.
func (r *Resolver) ExtractFileMap(text string) map[string]string {
	result := make(map[string]string)

	span := embeddedObject.FindString(text)
	if span == "" {
		return result
	}
	if !gjson.Valid(span) {
		r.logger.Warn("embedded file map is not valid JSON", "span", span)
		return result
	}

	gjson.Parse(span).ForEach(func(key, value gjson.Result) bool {
		if value.Type == gjson.String && key.String() != "" {
			result[key.String()] = value.String()
		}
		return true
	})
	return result
}

// CleanFilename trims whitespace and surrounding quotes from a cited name and
// lowercases its extension.
func CleanFilename(name string) string {
	name = strings.TrimSpace(name)
	name = strings.Trim(name, "\"'`«»“”")
	name = strings.TrimSpace(name)

	ext := path.Ext(name)
	if ext == "" {
		return name
	}
	return strings.TrimSuffix(name, ext) + strings.ToLower(ext)
}
