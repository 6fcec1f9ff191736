// Package extract discovers egg files in a checked-out repository and turns
// them into records.
package extract

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar"
	"github.com/karrick/godirwalk"
	"github.com/rs/zerolog/log"
	"github.com/seanblong/eggtracker/internal/queue"
	"github.com/seanblong/eggtracker/pkg/models"
)

// MinEggSize is the largest file size, in bytes, that is still rejected as
// too small to be an egg.
const MinEggSize = 735

// FileSystemWalker defines the interface for walking directories
type FileSystemWalker interface {
	Walk(root string, options *godirwalk.Options) error
}

// FileReader defines the interface for reading files
type FileReader interface {
	ReadFile(filename string) ([]byte, error)
}

// DefaultFileSystemWalker implements FileSystemWalker using godirwalk
type DefaultFileSystemWalker struct{}

func (d *DefaultFileSystemWalker) Walk(root string, options *godirwalk.Options) error {
	return godirwalk.Walk(root, options)
}

// DefaultFileReader implements FileReader using os
type DefaultFileReader struct{}

func (d *DefaultFileReader) ReadFile(filename string) ([]byte, error) {
	return os.ReadFile(filename)
}

// TypeResolver classifies eggs by repository layout.
type TypeResolver interface {
	Resolve(repo models.Repository, relPath string) string
	IgnorePatterns(repo models.Repository) []string
}

// LanguageService is the remote detector used while it is reachable.
type LanguageService interface {
	Available(ctx context.Context) bool
	DetectAsync(ctx context.Context, text string) *queue.Future[string]
	Wait(ctx context.Context) error
	Progress() (running, queued int)
}

// LocalDetector is the on-box fallback detector.
type LocalDetector interface {
	Detect(text string) string
}

// Extractor turns the JSON files of a repository checkout into eggs.
type Extractor struct {
	Types      TypeResolver
	Languages  LanguageService
	Local      LocalDetector
	Walker     FileSystemWalker
	FileReader FileReader
}

// New creates an Extractor reading from the local file system.
func New(types TypeResolver, languages LanguageService, local LocalDetector) *Extractor {
	return &Extractor{
		Types:      types,
		Languages:  languages,
		Local:      local,
		Walker:     &DefaultFileSystemWalker{},
		FileReader: &DefaultFileReader{},
	}
}

// source is the subset of an egg export read by the tracker.
type source struct {
	Name        string     `json:"name"`
	Author      string     `json:"author"`
	Description string     `json:"description"`
	ExportedAt  string     `json:"exported_at"`
	Variables   []variable `json:"variables"`
}

type variable struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

var errNotEgg = errors.New("not an egg")

// pending is an egg whose language is still being detected.
type pending struct {
	index    int
	language *queue.Future[string]
}

// Extract walks localPath, a checkout of repo, and returns its eggs sorted
// by name. Unreadable or invalid files are logged and skipped.
func (x *Extractor) Extract(ctx context.Context, repo models.Repository, localPath string) ([]models.Egg, error) {
	ignore := x.Types.IgnorePatterns(repo)

	var files []string
	walkErr := x.Walker.Walk(localPath, &godirwalk.Options{
		Callback: func(path string, de *godirwalk.Dirent) error {
			if err := ctx.Err(); err != nil {
				return err
			}
			name := filepath.Base(path)
			// Handle test case where de might be nil (for mock walkers)
			if de != nil && de.IsDir() {
				if filepath.Clean(path) != filepath.Clean(localPath) && strings.HasPrefix(name, ".") {
					return godirwalk.SkipThis
				}
				return nil
			}
			if strings.HasPrefix(name, ".") || !strings.HasSuffix(name, ".json") {
				return nil
			}
			relPath := rel(localPath, path)
			if isIgnored(ignore, relPath) {
				log.Debug().Str("path", relPath).Msg("ignored by rule")
				return nil
			}
			files = append(files, path)
			return nil
		},
		ErrorCallback: func(path string, err error) godirwalk.ErrorAction {
			if ctx.Err() != nil {
				return godirwalk.Halt
			}
			log.Warn().Err(err).Str("path", rel(localPath, path)).Msg("skipping unreadable path")
			return godirwalk.SkipNode
		},
	})
	if walkErr != nil {
		return nil, fmt.Errorf("walk %s: %w", localPath, walkErr)
	}

	log.Info().Str("repository", repo.FullName()).Int("files", len(files)).Msg("candidate files found")

	available := x.Languages != nil && x.Languages.Available(ctx)

	eggs := make([]models.Egg, 0, len(files))
	var waiting []pending
	for i, path := range files {
		relPath := rel(localPath, path)
		egg, src, err := x.parse(repo, path, relPath)
		if err != nil {
			if errors.Is(err, errNotEgg) {
				log.Info().Str("path", relPath).Msg(err.Error())
			} else {
				log.Warn().Err(err).Str("path", relPath).Msg("failed to process file")
			}
			continue
		}

		if available {
			running, queued := x.Languages.Progress()
			log.Debug().
				Str("egg", egg.Name).
				Int("file", i+1).
				Int("total", len(files)).
				Int("running", running).
				Int("queued", queued).
				Msg("detecting language")
			waiting = append(waiting, pending{index: len(eggs), language: x.Languages.DetectAsync(ctx, detectionText(src))})
		} else if x.Local != nil {
			egg.Language = models.StringPtr(x.Local.Detect(src.Description))
		}
		eggs = append(eggs, egg)
	}

	if available {
		if err := x.Languages.Wait(ctx); err != nil {
			return nil, fmt.Errorf("wait for language detection: %w", err)
		}
		for _, p := range waiting {
			code, err := p.language.Wait(ctx)
			if err != nil {
				log.Warn().Err(err).Str("egg", eggs[p.index].Name).Msg("language detection failed")
				continue
			}
			eggs[p.index].Language = models.StringPtr(code)
		}
	}

	models.SortByName(eggs)
	return eggs, nil
}

// parse reads and validates one candidate file.
func (x *Extractor) parse(repo models.Repository, path, relPath string) (models.Egg, source, error) {
	b, err := x.FileReader.ReadFile(path)
	if err != nil {
		return models.Egg{}, source{}, fmt.Errorf("read: %w", err)
	}
	size := len(b)
	if size <= MinEggSize {
		return models.Egg{}, source{}, fmt.Errorf("%w: %d bytes is too small", errNotEgg, size)
	}

	var src source
	if err := json.Unmarshal(b, &src); err != nil {
		return models.Egg{}, source{}, fmt.Errorf("decode: %w", err)
	}
	if src.Name == "" || src.Author == "" {
		return models.Egg{}, source{}, fmt.Errorf("%w: missing name or author", errNotEgg)
	}

	return models.Egg{
		Name:        src.Name,
		Description: src.Description,
		Size:        FormatBytes(int64(size)),
		Type:        models.StringPtr(x.Types.Resolve(repo, relPath)),
		Author:      src.Author,
		Link:        repo.RawURL(relPath),
		ExportedAt:  src.ExportedAt,
	}, src, nil
}

// detectionText weights the description twice and adds the variable
// descriptions.
func detectionText(src source) string {
	var parts []string
	if d := strings.TrimSpace(src.Description); d != "" {
		parts = append(parts, d, d)
	}
	for _, v := range src.Variables {
		if d := strings.TrimSpace(v.Description); d != "" {
			parts = append(parts, d)
		}
	}
	return strings.Join(parts, " ")
}

func isIgnored(patterns []string, relPath string) bool {
	for _, p := range patterns {
		ok, err := doublestar.Match(p, relPath)
		if err != nil {
			log.Warn().Err(err).Str("pattern", p).Msg("invalid ignore pattern")
			continue
		}
		if ok {
			return true
		}
	}
	return false
}

// rel returns p relative to root with forward slashes.
func rel(root, p string) string {
	r, err := filepath.Rel(root, p)
	if err != nil {
		return filepath.ToSlash(p)
	}
	return filepath.ToSlash(r)
}
