// Package extract turns a directory of photographed notes into raw text.
package extract

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"mime"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/entrhq/notepress/pkg/llm"
	"github.com/entrhq/notepress/pkg/logging"
	"github.com/entrhq/notepress/pkg/security/workspace"
	"github.com/entrhq/notepress/pkg/types"
)

var log = logging.Component("extract")

// ErrNoImages is returned when a directory holds no qualifying file.
var ErrNoImages = errors.New("no images found")

// DefaultInstruction is used when no transcription prompt is configured.
const DefaultInstruction = "Extract all text from the provided image. Return only the extracted text, no commentary."

// Source produces the raw draft for one publishing run.
type Source interface {
	Extract(ctx context.Context) (string, error)
}

// Extractor transcribes every qualifying image under a directory, in
// lexical path order, and joins the transcriptions.
type Extractor struct {
	dir         string
	transcriber llm.Transcriber
	matcher     *Matcher
	instruction string
	separator   string
	allowEmpty  bool
	emit        types.EventHandler
}

// Option configures an Extractor.
type Option func(*Extractor)

// WithMatcher replaces the default file patterns.
func WithMatcher(m *Matcher) Option {
	return func(e *Extractor) {
		if m != nil {
			e.matcher = m
		}
	}
}

// WithInstruction sets the prompt sent along with each image.
func WithInstruction(instruction string) Option {
	return func(e *Extractor) {
		if instruction != "" {
			e.instruction = instruction
		}
	}
}

// WithSeparator sets the text placed between transcriptions.
func WithSeparator(sep string) Option {
	return func(e *Extractor) {
		e.separator = sep
	}
}

// AllowEmpty makes a directory with no images yield "" instead of ErrNoImages.
func AllowEmpty() Option {
	return func(e *Extractor) {
		e.allowEmpty = true
	}
}

func WithEventHandler(h types.EventHandler) Option {
	return func(e *Extractor) {
		e.emit = h
	}
}

func NewExtractor(dir string, transcriber llm.Transcriber, opts ...Option) (*Extractor, error) {
	if transcriber == nil {
		return nil, errors.New("extract: transcriber is required")
	}
	e := &Extractor{
		dir:         dir,
		transcriber: transcriber,
		instruction: DefaultInstruction,
		separator:   "\n",
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.matcher == nil {
		m, err := NewMatcher(nil, nil)
		if err != nil {
			return nil, err
		}
		e.matcher = m
	}
	return e, nil
}

// Dir returns the source directory.
func (e *Extractor) Dir() string {
	return e.dir
}

// Extract transcribes the images one at a time. Any unreadable file or
// failed model call aborts the run.
func (e *Extractor) Extract(ctx context.Context) (string, error) {
	ctx, span := otel.Tracer("github.com/entrhq/notepress/pkg/extract").Start(ctx, "extract")
	defer span.End()

	paths, err := Images(e.dir, e.matcher)
	if err != nil {
		span.RecordError(err)
		return "", err
	}
	span.SetAttributes(attribute.Int("extract.images", len(paths)))
	if len(paths) == 0 {
		if e.allowEmpty {
			return "", nil
		}
		return "", fmt.Errorf("%w in %s", ErrNoImages, e.dir)
	}

	e.emit.Emit(types.NewStageStartEvent("extract"))
	parts := make([]string, 0, len(paths))
	for i, path := range paths {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		img, err := ReadImage(path)
		if err != nil {
			return "", err
		}
		log.Infof("transcribing %s (%d/%d, %d bytes)", img.Name, i+1, len(paths), len(img.Data))
		text, err := e.transcriber.Transcribe(ctx, e.instruction, img)
		if err != nil {
			span.RecordError(err)
			return "", fmt.Errorf("transcribe %s: %w", path, err)
		}
		parts = append(parts, strings.TrimSpace(text))
	}

	out := strings.Join(parts, e.separator)
	e.emit.Emit(types.NewStageEndEvent("extract", out, "next"))
	return out, nil
}

// Images lists qualifying files under dir, recursively, sorted by path.
// Links that resolve outside dir are skipped.
func Images(dir string, m *Matcher) ([]string, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("notes directory: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("notes directory: %s is not a directory", dir)
	}
	guard, err := workspace.NewGuard(dir)
	if err != nil {
		return nil, fmt.Errorf("notes directory: %w", err)
	}

	var paths []string
	err = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !m.Match(path) {
			return nil
		}
		if err := guard.Validate(path); err != nil {
			log.Warnf("skipping %v", err)
			return nil
		}
		paths = append(paths, path)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk %s: %w", dir, err)
	}
	sort.Strings(paths)
	return paths, nil
}

// ReadImage loads one file and infers its media type from the extension.
func ReadImage(path string) (llm.Image, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return llm.Image{}, fmt.Errorf("read image: %w", err)
	}
	return llm.Image{
		Name:      filepath.Base(path),
		MediaType: MediaType(path),
		Data:      data,
	}, nil
}

// MediaType maps a file extension to an image media type, defaulting to image/png.
func MediaType(path string) string {
	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case "":
		return "image/png"
	}
	if t := mime.TypeByExtension(ext); strings.HasPrefix(t, "image/") {
		return t
	}
	return "image/png"
}
