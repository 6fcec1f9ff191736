// Package checkout acquires and releases shallow local copies of tracked
// repositories.
package checkout

import (
	"context"
	"encoding/base64"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/rs/zerolog/log"
	"github.com/seanblong/eggtracker/pkg/models"
)

// CommandRunner runs an external command with env appended to the
// current environment.
type CommandRunner interface {
	Run(ctx context.Context, env []string, name string, args ...string) error
}

// DefaultCommandRunner executes commands with os/exec, streaming their
// output to stderr.
type DefaultCommandRunner struct{}

func (DefaultCommandRunner) Run(ctx context.Context, env []string, name string, args ...string) error {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Env = append(os.Environ(), env...)
	cmd.Stdout, cmd.Stderr = os.Stderr, os.Stderr
	return cmd.Run()
}

// Git clones repositories from GitHub with depth 1.
type Git struct {
	Token  string
	Runner CommandRunner
}

// New creates a Git checkouter. The token, when set, is sent as an HTTP
// authorization header and never appears in the clone URL or arguments.
func New(token string) *Git {
	return &Git{Token: token, Runner: DefaultCommandRunner{}}
}

// CloneURL returns the HTTPS clone URL of repo.
func (g *Git) CloneURL(repo models.Repository) string {
	return "https://github.com/" + repo.FullName() + ".git"
}

// AuthEnv returns the git environment that injects the token as an
// http.extraHeader scoped to github.com. It is empty without a token.
func (g *Git) AuthEnv() []string {
	if g.Token == "" {
		return nil
	}
	basic := base64.StdEncoding.EncodeToString([]byte("x-access-token:" + g.Token))
	return []string{
		"GIT_CONFIG_COUNT=1",
		"GIT_CONFIG_KEY_0=http.https://github.com/.extraheader",
		"GIT_CONFIG_VALUE_0=AUTHORIZATION: basic " + basic,
		"GIT_TERMINAL_PROMPT=0",
	}
}

// Ensure makes sure dest holds a checkout of repo. An existing dest is
// reused as is.
func (g *Git) Ensure(ctx context.Context, repo models.Repository, dest string) error {
	if fi, err := os.Stat(dest); err == nil && fi.IsDir() {
		log.Debug().Str("repository", repo.FullName()).Str("path", dest).Msg("reusing checkout")
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return err
	}

	log.Info().Str("repository", repo.FullName()).Str("branch", repo.Branch).Msg("cloning")
	err := g.Runner.Run(ctx, g.AuthEnv(), "git", "clone", "--depth", "1", "--branch", repo.Branch, g.CloneURL(repo), dest)
	if err != nil {
		if rmErr := os.RemoveAll(dest); rmErr != nil {
			log.Warn().Err(rmErr).Str("path", dest).Msg("failed to remove partial checkout")
		}
		return fmt.Errorf("git clone %s: %w", repo.FullName(), err)
	}
	return nil
}

// Remove deletes a checkout.
func (g *Git) Remove(dest string) error {
	return os.RemoveAll(dest)
}
