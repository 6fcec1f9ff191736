package models

import (
	"fmt"
	"strings"
)

// Egg is one service template record extracted from a tracked repository.
type Egg struct {
	Name        string  `json:"name"`
	Description string  `json:"description,omitempty"`
	Language    *string `json:"language"`
	Size        string  `json:"size"`
	Type        *string `json:"type"`
	Author      string  `json:"author"`
	Link        string  `json:"link"`
	ExportedAt  string  `json:"exported_at,omitempty"`
}

// Repository identifies one tracked source repository.
type Repository struct {
	Owner  string `json:"owner" yaml:"owner"`
	Name   string `json:"name" yaml:"name"`
	Branch string `json:"branch" yaml:"branch"`
}

const DefaultBranch = "main"

// ParseRepository parses "owner/name" and an optional branch.
func ParseRepository(fullName, branch string) (Repository, error) {
	parts := strings.Split(strings.TrimSpace(fullName), "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return Repository{}, fmt.Errorf("invalid repository %q: want owner/name", fullName)
	}
	if strings.TrimSpace(branch) == "" {
		branch = DefaultBranch
	}
	return Repository{Owner: parts[0], Name: parts[1], Branch: strings.TrimSpace(branch)}, nil
}

// FullName returns the "owner/name" form.
func (r Repository) FullName() string {
	return r.Owner + "/" + r.Name
}

// RawURL returns the raw-content URL of a file inside the repository.
func (r Repository) RawURL(relPath string) string {
	return fmt.Sprintf("https://raw.githubusercontent.com/%s/%s/%s", r.FullName(), r.Branch, relPath)
}

// Link is one row of the published author index.
type Link struct {
	Author       string   `json:"author"`
	AuthorURL    string   `json:"authorUrl"`
	Repositories []string `json:"repositories"`
	Link         string   `json:"link"`
	Eggs         int      `json:"eggs"`
	PushedAt     string   `json:"pushed_at"`
}

// StringPtr returns nil for an empty string.
func StringPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
