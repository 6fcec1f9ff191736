// Package github looks up remote repository metadata.
package github

import (
	"context"
	"net/http"

	gh "github.com/google/go-github/v68/github"
	"golang.org/x/oauth2"
)

// Client defines the GitHub API methods used by the tracker.
type Client interface {
	GetRepository(ctx context.Context, owner, repo string) (*gh.Repository, *gh.Response, error)
}

// realClient wraps the go-github client to implement Client.
type realClient struct {
	inner *gh.Client
}

// NewClient creates a GitHub API client. An empty token uses anonymous
// access, which is subject to a much lower rate limit.
func NewClient(token string) Client {
	var httpClient *http.Client
	if token != "" {
		ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token})
		httpClient = oauth2.NewClient(context.Background(), ts)
	}
	return &realClient{inner: gh.NewClient(httpClient)}
}

func (c *realClient) GetRepository(ctx context.Context, owner, repo string) (*gh.Repository, *gh.Response, error) {
	return c.inner.Repositories.Get(ctx, owner, repo)
}
