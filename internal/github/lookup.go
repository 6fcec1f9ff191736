package github

import (
	"context"
	"fmt"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"github.com/rs/zerolog/log"
)

// Lookup resolves the last push time of repositories and remembers the
// answers for the lifetime of a run.
type Lookup struct {
	client Client
	cache  *gocache.Cache
}

// NewLookup creates a Lookup backed by client.
func NewLookup(client Client) *Lookup {
	return &Lookup{client: client, cache: gocache.New(time.Hour, 2*time.Hour)}
}

// PushedAt returns the repository's pushed_at timestamp in RFC 3339 UTC.
func (l *Lookup) PushedAt(ctx context.Context, owner, name string) (string, error) {
	key := fmt.Sprintf("pushedAt:%s/%s", owner, name)
	if val, found := l.cache.Get(key); found {
		if s, ok := val.(string); ok {
			log.Debug().Str("key", key).Msg("cache hit")
			return s, nil
		}
	}

	repository, _, err := l.client.GetRepository(ctx, owner, name)
	if err != nil {
		return "", fmt.Errorf("get repository %s/%s: %w", owner, name, err)
	}
	pushed := repository.GetPushedAt()
	if pushed.IsZero() {
		return "", fmt.Errorf("repository %s/%s has no pushed_at", owner, name)
	}
	s := pushed.UTC().Format(time.RFC3339)
	l.cache.Set(key, s, gocache.DefaultExpiration)
	return s, nil
}
