// Package tracker drives one tracking run: it walks the configured
// repositories, extracts and reconciles their eggs per author, publishes the
// merged artifacts and rewrites the author index.
package tracker

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/seanblong/eggtracker/pkg/models"
)

// RemoteLookup reports when a repository was last pushed to.
type RemoteLookup interface {
	PushedAt(ctx context.Context, owner, name string) (string, error)
}

// Checkouter acquires and releases local copies of repositories.
type Checkouter interface {
	Ensure(ctx context.Context, repo models.Repository, dest string) error
	Remove(dest string) error
}

// Extractor turns a checkout into eggs.
type Extractor interface {
	Extract(ctx context.Context, repo models.Repository, localPath string) ([]models.Egg, error)
}

// Merger keeps per-author state and publishes it.
type Merger interface {
	Reconcile(ctx context.Context, author, repo string, eggs []models.Egg) error
	Publish(ctx context.Context, author string) (int, error)
}

// IndexStore persists the author index.
type IndexStore interface {
	LoadLinks(ctx context.Context) ([]models.Link, error)
	SaveLinks(ctx context.Context, links []models.Link) error
}

// AuthorState is the lifecycle of an author within one run.
type AuthorState int

const (
	Pending AuthorState = iota
	Skipped
	Processing
	Reconciled
)

func (s AuthorState) String() string {
	switch s {
	case Pending:
		return "pending"
	case Skipped:
		return "skipped"
	case Processing:
		return "processing"
	case Reconciled:
		return "reconciled"
	}
	return fmt.Sprintf("AuthorState(%d)", int(s))
}

// Config holds the run settings.
type Config struct {
	WorkDir       string
	PublicBaseURL string
}

// Tracker wires the collaborators of a run.
type Tracker struct {
	Config    Config
	Lookup    RemoteLookup
	Checkout  Checkouter
	Extractor Extractor
	Merger    Merger
	Index     IndexStore
}

// Result summarises a run.
type Result struct {
	Authors map[string]AuthorState
	Eggs    map[string]int
}

type authorRun struct {
	state      AuthorState
	repos      []string
	pushedAt   []string
	reconciled map[string]bool
	failed     map[string]bool
}

// current returns, in configuration order, the repositories whose eggs are
// up to date after this run: reconciled now, or listed before and not
// failed now.
func (a *authorRun) current(prior models.Link) []string {
	listed := make(map[string]bool, len(prior.Repositories))
	for _, name := range prior.Repositories {
		listed[name] = true
	}
	out := make([]string, 0, len(a.repos))
	for _, name := range a.repos {
		if a.failed[name] {
			continue
		}
		if a.reconciled[name] || listed[name] {
			out = append(out, name)
		}
	}
	return out
}

// Run processes repos in order. A failing repository is logged and does not
// stop the others; publish and index failures are collected and returned
// once every author has been attempted.
func (t *Tracker) Run(ctx context.Context, repos []models.Repository) (*Result, error) {
	prior, err := t.Index.LoadLinks(ctx)
	if err != nil {
		return nil, fmt.Errorf("load index: %w", err)
	}
	priorByAuthor := make(map[string]models.Link, len(prior))
	for _, l := range prior {
		priorByAuthor[l.Author] = l
	}

	var order []string
	authors := make(map[string]*authorRun)
	for _, repo := range repos {
		a, ok := authors[repo.Owner]
		if !ok {
			a = &authorRun{state: Pending, reconciled: map[string]bool{}, failed: map[string]bool{}}
			authors[repo.Owner] = a
			order = append(order, repo.Owner)
		}
		a.repos = append(a.repos, repo.Name)
	}

	var errs []error
	for _, repo := range repos {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		a := authors[repo.Owner]
		logger := log.With().Str("repository", repo.FullName()).Logger()

		pushedAt, err := t.Lookup.PushedAt(ctx, repo.Owner, repo.Name)
		if err != nil {
			logger.Warn().Err(err).Msg("remote lookup failed, assuming changed")
			pushedAt = ""
		}

		if shouldSkip(priorByAuthor, repo, pushedAt) {
			logger.Info().Str("pushed_at", pushedAt).Msg("unchanged, skipping")
			if a.state == Pending {
				a.state = Skipped
			}
			continue
		}

		if a.state != Reconciled {
			a.state = Processing
		}
		if err := t.processRepository(ctx, repo); err != nil {
			logger.Error().Err(err).Msg("repository failed")
			a.failed[repo.Name] = true
			continue
		}
		a.state = Reconciled
		a.reconciled[repo.Name] = true
		if pushedAt != "" {
			a.pushedAt = append(a.pushedAt, pushedAt)
		}
	}

	result := &Result{Authors: make(map[string]AuthorState), Eggs: make(map[string]int)}
	var fresh []models.Link
	for _, author := range order {
		a := authors[author]
		result.Authors[author] = a.state
		if a.state != Reconciled {
			continue
		}
		n, err := t.Merger.Publish(ctx, author)
		if err != nil {
			log.Error().Err(err).Str("author", author).Msg("publish failed")
			errs = append(errs, fmt.Errorf("publish %s: %w", author, err))
			continue
		}
		result.Eggs[author] = n

		link := models.Link{
			Author:       author,
			AuthorURL:    "https://github.com/" + author,
			Repositories: a.current(priorByAuthor[author]),
			Link:         strings.TrimSuffix(t.Config.PublicBaseURL, "/") + "/" + author + ".min.json",
			Eggs:         n,
			PushedAt:     latest(append([]string{priorByAuthor[author].PushedAt}, a.pushedAt...)),
		}
		fresh = append(fresh, link)
	}

	if err := t.Index.SaveLinks(ctx, MergeLinks(prior, fresh)); err != nil {
		errs = append(errs, fmt.Errorf("save index: %w", err))
	}

	log.Info().Int("authors", len(order)).Int("published", len(result.Eggs)).Msg("run complete")
	return result, errors.Join(errs...)
}

// processRepository checks out, extracts and reconciles one repository. The
// checkout is removed whatever the outcome.
func (t *Tracker) processRepository(ctx context.Context, repo models.Repository) error {
	dest := filepath.Join(t.Config.WorkDir, repo.Owner, repo.Name)
	defer func() {
		if err := t.Checkout.Remove(dest); err != nil {
			log.Warn().Err(err).Str("path", dest).Msg("failed to remove checkout")
		}
	}()

	if err := t.Checkout.Ensure(ctx, repo, dest); err != nil {
		return fmt.Errorf("checkout: %w", err)
	}
	eggs, err := t.Extractor.Extract(ctx, repo, dest)
	if err != nil {
		return fmt.Errorf("extract: %w", err)
	}
	if err := t.Merger.Reconcile(ctx, repo.Owner, repo.Name, eggs); err != nil {
		return fmt.Errorf("reconcile: %w", err)
	}
	log.Info().Str("repository", repo.FullName()).Int("eggs", len(eggs)).Msg("repository reconciled")
	return nil
}

// shouldSkip reports whether the prior index row of the repository's author
// lists it and pushedAt is not newer than the row's pushed_at, which holds
// the latest push across the author's repositories. An unknown pushed_at
// never skips.
func shouldSkip(prior map[string]models.Link, repo models.Repository, pushedAt string) bool {
	if pushedAt == "" {
		return false
	}
	link, ok := prior[repo.Owner]
	if !ok || link.PushedAt == "" {
		return false
	}
	listed := false
	for _, name := range link.Repositories {
		if name == repo.Name {
			listed = true
			break
		}
	}
	if !listed {
		return false
	}

	observed, err := time.Parse(time.RFC3339, pushedAt)
	if err != nil {
		return pushedAt == link.PushedAt
	}
	recorded, err := time.Parse(time.RFC3339, link.PushedAt)
	if err != nil {
		return false
	}
	return !observed.After(recorded)
}

// latest returns the most recent of the given RFC 3339 timestamps. Values
// that do not parse are ignored unless nothing else is available.
func latest(values []string) string {
	var best string
	var bestTime time.Time
	for _, v := range values {
		if v == "" {
			continue
		}
		ts, err := time.Parse(time.RFC3339, v)
		if err != nil {
			if best == "" {
				best = v
			}
			continue
		}
		if bestTime.IsZero() || ts.After(bestTime) {
			best, bestTime = v, ts
		}
	}
	return best
}

// MergeLinks replaces rows of prior by author with fresh ones and appends
// authors that were not indexed yet. Other rows keep their position.
func MergeLinks(prior, fresh []models.Link) []models.Link {
	out := make([]models.Link, len(prior), len(prior)+len(fresh))
	copy(out, prior)
	index := make(map[string]int, len(out))
	for i, l := range out {
		index[l.Author] = i
	}
	for _, l := range fresh {
		if i, ok := index[l.Author]; ok {
			out[i] = l
			continue
		}
		index[l.Author] = len(out)
		out = append(out, l)
	}
	return out
}
