// Package store keeps the per-author egg corpus and publishes it as JSON
// artifacts.
package store

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/rs/zerolog/log"
	"github.com/seanblong/eggtracker/pkg/models"
)

// State maps a repository name to the eggs last extracted from it.
type State map[string][]models.Egg

// Repositories returns the repository keys in sorted order.
func (s State) Repositories() []string {
	keys := make([]string, 0, len(s))
	for k := range s {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Flatten returns every egg of the state sorted by name.
func (s State) Flatten() []models.Egg {
	out := make([]models.Egg, 0)
	for _, repo := range s.Repositories() {
		out = append(out, s[repo]...)
	}
	models.SortByName(out)
	return out
}

// PrettyName is the indented egg list published for author.
func PrettyName(author string) string { return author + ".json" }

// MinName is the compact egg list published for author.
func MinName(author string) string { return author + ".min.json" }

// CacheName is the per-repository state document kept for author.
func CacheName(author string) string { return author + ".cache.json" }

// Store reconciles freshly extracted eggs with the cached state of each
// author. The cache document is always read before it is rewritten, so a
// repository missing from a run keeps its eggs.
type Store struct {
	artifacts Artifacts
	mirrors   []ArtifactWriter
	catalog   Catalog

	mu      sync.Mutex
	authors map[string]*authorState
}

type authorState struct {
	mu     sync.Mutex
	loaded bool
	state  State
}

// Option configures a Store.
type Option func(*Store)

// WithMirror adds a best-effort copy destination for published artifacts.
func WithMirror(w ArtifactWriter) Option {
	return func(s *Store) { s.mirrors = append(s.mirrors, w) }
}

// WithCatalog adds a best-effort catalog updated on every publish.
func WithCatalog(c Catalog) Option {
	return func(s *Store) { s.catalog = c }
}

// New creates a Store persisting to artifacts.
func New(artifacts Artifacts, opts ...Option) *Store {
	s := &Store{artifacts: artifacts, authors: make(map[string]*authorState)}
	for _, o := range opts {
		o(s)
	}
	return s
}

func (s *Store) author(name string) *authorState {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.authors[name]
	if !ok {
		a = &authorState{}
		s.authors[name] = a
	}
	return a
}

// Reconcile replaces the eggs of repo in the state of author. Other
// repositories of the author are left untouched.
func (s *Store) Reconcile(ctx context.Context, author, repo string, eggs []models.Egg) error {
	a := s.author(author)
	a.mu.Lock()
	defer a.mu.Unlock()

	if !a.loaded {
		state, err := s.loadState(ctx, author)
		if err != nil {
			return err
		}
		a.state = state
		a.loaded = true
	}
	if eggs == nil {
		eggs = []models.Egg{}
	}
	a.state[repo] = eggs
	log.Debug().Str("author", author).Str("repository", repo).Int("eggs", len(eggs)).Msg("reconciled")
	return nil
}

// snapshot returns a copy of the in-memory state of author.
func (s *Store) snapshot(author string) State {
	a := s.author(author)
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make(State, len(a.state))
	for k, v := range a.state {
		out[k] = append([]models.Egg(nil), v...)
	}
	return out
}

func (s *Store) loadState(ctx context.Context, author string) (State, error) {
	b, err := s.artifacts.Get(ctx, CacheName(author))
	if errors.Is(err, ErrNotExist) {
		return State{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read cache for %s: %w", author, err)
	}
	var state State
	if err := json.Unmarshal(b, &state); err != nil {
		return nil, fmt.Errorf("decode cache for %s: %w", author, err)
	}
	if state == nil {
		state = State{}
	}
	return state, nil
}

// Publish writes the merged, name-sorted eggs of author as a pretty and a
// minified document together with the updated cache, and returns the
// number of eggs published. Failing to write any primary artifact is an
// error; mirrors and the catalog are best-effort.
func (s *Store) Publish(ctx context.Context, author string) (int, error) {
	a := s.author(author)
	a.mu.Lock()
	defer a.mu.Unlock()

	if !a.loaded {
		state, err := s.loadState(ctx, author)
		if err != nil {
			return 0, err
		}
		a.state = state
		a.loaded = true
	}

	merged := a.state.Flatten()

	pretty, err := encodeJSON(merged, true)
	if err != nil {
		return 0, err
	}
	minified, err := encodeJSON(merged, false)
	if err != nil {
		return 0, err
	}
	cache, err := encodeJSON(a.state, true)
	if err != nil {
		return 0, err
	}

	artifacts := []struct {
		name string
		data []byte
	}{
		{PrettyName(author), pretty},
		{MinName(author), minified},
		{CacheName(author), cache},
	}
	for _, art := range artifacts {
		if err := s.artifacts.Put(ctx, art.name, art.data); err != nil {
			return 0, fmt.Errorf("publish %s: %w", art.name, err)
		}
	}

	for _, m := range s.mirrors {
		for _, art := range artifacts {
			if err := m.Put(ctx, art.name, art.data); err != nil {
				log.Error().Err(err).Str("artifact", art.name).Msg("mirror upload failed")
			}
		}
	}
	if s.catalog != nil {
		if err := s.catalog.ReplaceAuthor(ctx, author, a.state); err != nil {
			log.Error().Err(err).Str("author", author).Msg("catalog update failed")
		}
	}

	log.Info().Str("author", author).Int("eggs", len(merged)).Int("repositories", len(a.state)).Msg("published")
	return len(merged), nil
}

// encodeJSON marshals v without HTML escaping, indented by two spaces when
// pretty is set. The trailing newline added by the encoder is dropped.
func encodeJSON(v any, pretty bool) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if pretty {
		enc.SetIndent("", "  ")
	}
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte("\n")), nil
}
