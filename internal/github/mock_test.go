package github

import (
	"context"
	"net/http"

	gh "github.com/google/go-github/v68/github"
)

// mockClient implements Client for testing.
type mockClient struct {
	getRepositoryFn func(ctx context.Context, owner, repo string) (*gh.Repository, *gh.Response, error)
}

func (m *mockClient) GetRepository(ctx context.Context, owner, repo string) (*gh.Repository, *gh.Response, error) {
	return m.getRepositoryFn(ctx, owner, repo)
}

func okResponse() *gh.Response {
	return &gh.Response{
		Response: &http.Response{StatusCode: 200},
	}
}
