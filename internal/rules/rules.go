// Package rules maps a file inside a tracked repository to the egg type it
// belongs to.
package rules

import (
	"path"
	"strings"

	"github.com/seanblong/eggtracker/pkg/models"
)

// MatchKind selects how a Rule decides whether it applies to a repository.
type MatchKind int

const (
	// MatchOwner applies to every repository of one owner.
	MatchOwner MatchKind = iota
	// MatchRepository applies to exactly one owner/name.
	MatchRepository
	// MatchAny applies to every repository.
	MatchAny
)

// ClassifyFunc returns the type for a repository-relative path.
type ClassifyFunc func(relPath string, repo models.Repository) string

// Rule classifies eggs of the repositories it matches.
type Rule struct {
	Kind     MatchKind
	Key      string // owner for MatchOwner, owner/name for MatchRepository
	Classify ClassifyFunc
	Ignore   []string
}

// Matches reports whether the rule applies to repo.
func (r Rule) Matches(repo models.Repository) bool {
	switch r.Kind {
	case MatchOwner:
		return repo.Owner == r.Key
	case MatchRepository:
		return repo.FullName() == r.Key
	case MatchAny:
		return true
	}
	return false
}

// DefaultIgnore lists the globs skipped by the built-in rules.
var DefaultIgnore = []string{"**/Archived/**/*", "**/package.json"}

// ByRepositoryName classifies every egg by the repository it came from.
func ByRepositoryName(_ string, repo models.Repository) string {
	return repo.Name
}

// localeDirs are the description locale folders some repositories use.
var localeDirs = map[string]bool{"pt-br": true, "en": true}

// ByParentDir walks the path from the leaf upward and returns the first
// segment that is not a container directory, a JSON file or a locale
// folder. An exhausted path yields "".
func ByParentDir(relPath string, _ models.Repository) string {
	segments := strings.Split(path.Clean(strings.ReplaceAll(relPath, "\\", "/")), "/")
	for i := len(segments) - 1; i >= 0; i-- {
		s := segments[i]
		if s == "" || s == "." || s == ".." || isNoise(s) {
			continue
		}
		return s
	}
	return ""
}

func isNoise(segment string) bool {
	return segment == "eggs" ||
		strings.HasSuffix(segment, ".json") ||
		localeDirs[strings.ToLower(segment)]
}

// Registry holds rules in a fixed priority order; the last rule must match
// every repository.
type Registry struct {
	rules []Rule
}

// NewRegistry builds a registry from rules in priority order. A catch-all
// ByParentDir rule is appended when the last rule is not MatchAny.
func NewRegistry(rules ...Rule) *Registry {
	rs := append([]Rule(nil), rules...)
	if len(rs) == 0 || rs[len(rs)-1].Kind != MatchAny {
		rs = append(rs, Rule{Kind: MatchAny, Classify: ByParentDir, Ignore: DefaultIgnore})
	}
	return &Registry{rules: rs}
}

// DefaultRegistry returns the rules for the built-in repository list.
func DefaultRegistry() *Registry {
	return NewRegistry(
		Rule{Kind: MatchOwner, Key: "pelican-eggs", Classify: ByRepositoryName, Ignore: DefaultIgnore},
		Rule{Kind: MatchRepository, Key: "Ashu11-A/Ashu_eggs", Classify: ByParentDir, Ignore: DefaultIgnore},
		Rule{Kind: MatchAny, Classify: ByParentDir, Ignore: DefaultIgnore},
	)
}

// RuleFor returns the first rule matching repo.
func (r *Registry) RuleFor(repo models.Repository) Rule {
	for _, rule := range r.rules {
		if rule.Matches(repo) {
			return rule
		}
	}
	return r.rules[len(r.rules)-1]
}

// Resolve returns the type of the egg at relPath inside repo. The result
// may be "" when no segment qualifies.
func (r *Registry) Resolve(repo models.Repository, relPath string) string {
	return r.RuleFor(repo).Classify(relPath, repo)
}

// IgnorePatterns returns the globs that exclude files of repo from
// extraction.
func (r *Registry) IgnorePatterns(repo models.Repository) []string {
	return r.RuleFor(repo).Ignore
}
