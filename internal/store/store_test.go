package store

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/seanblong/eggtracker/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	zerolog.SetGlobalLevel(zerolog.Disabled)
}

type recordingWriter struct {
	mu    sync.Mutex
	names []string
	err   error
}

func (r *recordingWriter) Put(_ context.Context, name string, _ []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.names = append(r.names, name)
	return r.err
}

type catalogFunc func(ctx context.Context, author string, state State) error

func (f catalogFunc) ReplaceAuthor(ctx context.Context, author string, state State) error {
	return f(ctx, author, state)
}

func egg(name, link string) models.Egg {
	return models.Egg{Name: name, Size: "1 KB", Author: "someone@example.com", Link: link}
}

func readEggs(t *testing.T, path string) []models.Egg {
	t.Helper()
	b, err := os.ReadFile(path)
	require.NoError(t, err)
	var eggs []models.Egg
	require.NoError(t, json.Unmarshal(b, &eggs))
	return eggs
}

func names(eggs []models.Egg) []string {
	out := make([]string, len(eggs))
	for i, e := range eggs {
		out[i] = e.Name
	}
	return out
}

func TestReconcileKeepsOtherRepositories(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	first := New(NewDir(dir))
	require.NoError(t, first.Reconcile(ctx, "x", "A", []models.Egg{egg("a1", "l1"), egg("a2", "l2")}))
	n, err := first.Publish(ctx, "x")
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	// A later run only sees repository B.
	second := New(NewDir(dir))
	require.NoError(t, second.Reconcile(ctx, "x", "B", []models.Egg{egg("b1", "l3")}))
	n, err = second.Publish(ctx, "x")
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	assert.Equal(t, []string{"a1", "a2", "b1"}, names(readEggs(t, filepath.Join(dir, "x.json"))))

	b, err := os.ReadFile(filepath.Join(dir, "x.cache.json"))
	require.NoError(t, err)
	var cache State
	require.NoError(t, json.Unmarshal(b, &cache))
	assert.Equal(t, []string{"A", "B"}, cache.Repositories())
}

func TestReconcileReplacesRepositoryEntry(t *testing.T) {
	ctx := context.Background()
	s := New(NewDir(t.TempDir()))

	require.NoError(t, s.Reconcile(ctx, "x", "A", []models.Egg{egg("old", "l1")}))
	require.NoError(t, s.Reconcile(ctx, "x", "A", []models.Egg{egg("new", "l1")}))
	require.NoError(t, s.Reconcile(ctx, "x", "B", nil))

	state := s.snapshot("x")
	assert.Equal(t, []string{"new"}, names(state["A"]))
	assert.NotNil(t, state["B"])
	assert.Empty(t, state["B"])
}

func TestPublishIsIdempotent(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	eggs := []models.Egg{egg("Zeta <beta>", "l1"), egg("alpha & co", "l2")}

	publish := func() map[string][]byte {
		s := New(NewDir(dir))
		require.NoError(t, s.Reconcile(ctx, "x", "A", eggs))
		_, err := s.Publish(ctx, "x")
		require.NoError(t, err)
		out := map[string][]byte{}
		for _, name := range []string{PrettyName("x"), MinName("x"), CacheName("x")} {
			b, err := os.ReadFile(filepath.Join(dir, name))
			require.NoError(t, err)
			out[name] = b
		}
		return out
	}

	first := publish()
	second := publish()
	assert.Equal(t, first, second)

	assert.Contains(t, string(first["x.min.json"]), "Zeta <beta>")
	assert.NotContains(t, string(first["x.min.json"]), "\n")
	assert.Contains(t, string(first["x.json"]), "\n  {")
}

func TestPublishSortsByName(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	s := New(NewDir(dir))

	require.NoError(t, s.Reconcile(ctx, "x", "B", []models.Egg{egg("banana", "l1"), egg("Apple", "l2")}))
	require.NoError(t, s.Reconcile(ctx, "x", "A", []models.Egg{egg("cherry", "l3"), egg("apricot", "l4")}))
	_, err := s.Publish(ctx, "x")
	require.NoError(t, err)

	assert.Equal(t, []string{"Apple", "apricot", "banana", "cherry"}, names(readEggs(t, filepath.Join(dir, "x.min.json"))))
}

func TestPublishEmptyAuthor(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	s := New(NewDir(dir))

	n, err := s.Publish(ctx, "nobody")
	require.NoError(t, err)
	assert.Zero(t, n)

	b, err := os.ReadFile(filepath.Join(dir, "nobody.min.json"))
	require.NoError(t, err)
	assert.Equal(t, "[]", string(b))
}

func TestCorruptCacheIsAnError(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	cache := filepath.Join(dir, "x.cache.json")
	require.NoError(t, os.WriteFile(cache, []byte("{not json"), 0o644))

	s := New(NewDir(dir))
	err := s.Reconcile(ctx, "x", "A", []models.Egg{egg("a", "l")})
	require.Error(t, err)

	b, err := os.ReadFile(cache)
	require.NoError(t, err)
	assert.Equal(t, "{not json", string(b))
	_, err = os.Stat(filepath.Join(dir, "x.json"))
	assert.True(t, errors.Is(err, os.ErrNotExist))
}

func TestPublishMirrorsAndCatalogAreBestEffort(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	mirror := &recordingWriter{err: errors.New("offline")}

	var got State
	s := New(NewDir(dir),
		WithMirror(mirror),
		WithCatalog(catalogFunc(func(_ context.Context, author string, state State) error {
			got = state
			return errors.New("db down")
		})),
	)

	require.NoError(t, s.Reconcile(ctx, "x", "A", []models.Egg{egg("a", "l")}))
	n, err := s.Publish(ctx, "x")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, []string{"x.json", "x.min.json", "x.cache.json"}, mirror.names)
	assert.Equal(t, []string{"A"}, got.Repositories())
}

func TestLinksRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := New(NewDir(t.TempDir()))

	links, err := s.LoadLinks(ctx)
	require.NoError(t, err)
	assert.Empty(t, links)

	want := []models.Link{{
		Author:       "Ashu11-A",
		AuthorURL:    "https://github.com/Ashu11-A",
		Repositories: []string{"Ashu_eggs"},
		Link:         "https://example.com/api/Ashu11-A.min.json",
		Eggs:         12,
		PushedAt:     "2024-05-01T10:00:00Z",
	}}
	require.NoError(t, s.SaveLinks(ctx, want))

	got, err := s.LoadLinks(ctx)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestDirGetMissing(t *testing.T) {
	d := NewDir(filepath.Join(t.TempDir(), "nested"))
	_, err := d.Get(context.Background(), "missing.json")
	assert.ErrorIs(t, err, ErrNotExist)

	require.NoError(t, d.Put(context.Background(), "a.json", []byte("[]")))
	b, err := d.Get(context.Background(), "a.json")
	require.NoError(t, err)
	assert.Equal(t, "[]", string(b))
}
