package github

import (
	"context"
	"errors"
	"testing"
	"time"

	gh "github.com/google/go-github/v68/github"
	"github.com/rs/zerolog"
)

func init() {
	zerolog.SetGlobalLevel(zerolog.Disabled)
}

func TestPushedAt(t *testing.T) {
	pushed := time.Date(2024, 5, 1, 12, 30, 0, 0, time.FixedZone("BRT", -3*3600))
	client := &mockClient{
		getRepositoryFn: func(_ context.Context, owner, repo string) (*gh.Repository, *gh.Response, error) {
			if owner != "pelican-eggs" || repo != "minecraft" {
				t.Errorf("unexpected repository %s/%s", owner, repo)
			}
			return &gh.Repository{PushedAt: &gh.Timestamp{Time: pushed}}, okResponse(), nil
		},
	}

	got, err := NewLookup(client).PushedAt(context.Background(), "pelican-eggs", "minecraft")
	if err != nil {
		t.Fatal(err)
	}
	if got != "2024-05-01T15:30:00Z" {
		t.Errorf("PushedAt = %q, want %q", got, "2024-05-01T15:30:00Z")
	}
}

func TestPushedAt_Cached(t *testing.T) {
	calls := 0
	client := &mockClient{
		getRepositoryFn: func(_ context.Context, _, _ string) (*gh.Repository, *gh.Response, error) {
			calls++
			return &gh.Repository{PushedAt: &gh.Timestamp{Time: time.Unix(0, 0)}}, okResponse(), nil
		},
	}

	l := NewLookup(client)
	for i := 0; i < 3; i++ {
		if _, err := l.PushedAt(context.Background(), "a", "b"); err != nil {
			t.Fatal(err)
		}
	}
	if calls != 1 {
		t.Errorf("expected 1 API call, got %d", calls)
	}
}

func TestPushedAt_Error(t *testing.T) {
	client := &mockClient{
		getRepositoryFn: func(_ context.Context, _, _ string) (*gh.Repository, *gh.Response, error) {
			return nil, nil, errors.New("rate limited")
		},
	}

	if _, err := NewLookup(client).PushedAt(context.Background(), "a", "b"); err == nil {
		t.Error("expected error from PushedAt")
	}
}

func TestPushedAt_Missing(t *testing.T) {
	client := &mockClient{
		getRepositoryFn: func(_ context.Context, _, _ string) (*gh.Repository, *gh.Response, error) {
			return &gh.Repository{}, okResponse(), nil
		},
	}

	if _, err := NewLookup(client).PushedAt(context.Background(), "a", "b"); err == nil {
		t.Error("expected error for repository without pushed_at")
	}
}
