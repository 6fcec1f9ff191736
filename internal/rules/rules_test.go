package rules

import (
	"testing"

	"github.com/seanblong/eggtracker/pkg/models"
)

func repo(owner, name string) models.Repository {
	return models.Repository{Owner: owner, Name: name, Branch: "main"}
}

func TestResolve(t *testing.T) {
	reg := DefaultRegistry()

	tests := []struct {
		name string
		repo models.Repository
		path string
		want string
	}{
		{
			name: "positional rule skips container, locale and file",
			repo: repo("Ashu11-A", "Ashu_eggs"),
			path: "Ashu_eggs/eggs/pt-br/minecraft/egg.json",
			want: "minecraft",
		},
		{
			name: "positional rule with english locale",
			repo: repo("Ashu11-A", "Ashu_eggs"),
			path: "eggs/EN/bots/discord/egg-bot.json",
			want: "discord",
		},
		{
			name: "federation rule ignores path",
			repo: repo("pelican-eggs", "database"),
			path: "database/docker-compose/egg.json",
			want: "database",
		},
		{
			name: "federation rule for another repository",
			repo: repo("pelican-eggs", "games-steamcmd"),
			path: "rust/egg-rust.json",
			want: "games-steamcmd",
		},
		{
			name: "catch-all rule",
			repo: repo("QuintenQVD0", "Q_eggs"),
			path: "game_eggs/terraria/tmodloader/egg-tmodloader.json",
			want: "tmodloader",
		},
		{
			name: "exhausted path yields no type",
			repo: repo("drylian", "Eggs"),
			path: "eggs/en/egg.json",
			want: "",
		},
		{
			name: "file at repository root",
			repo: repo("drylian", "Eggs"),
			path: "egg.json",
			want: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := reg.Resolve(tt.repo, tt.path); got != tt.want {
				t.Errorf("Resolve(%s, %q) = %q, want %q", tt.repo.FullName(), tt.path, got, tt.want)
			}
		})
	}
}

func TestRegistryOrderIsFixed(t *testing.T) {
	constant := func(v string) ClassifyFunc {
		return func(string, models.Repository) string { return v }
	}
	reg := NewRegistry(
		Rule{Kind: MatchOwner, Key: "acme", Classify: constant("owner")},
		Rule{Kind: MatchRepository, Key: "acme/tools", Classify: constant("repository")},
	)

	if got := reg.Resolve(repo("acme", "tools"), "x/egg.json"); got != "owner" {
		t.Errorf("expected first registered rule to win, got %q", got)
	}
	if got := reg.Resolve(repo("other", "tools"), "x/egg.json"); got != "x" {
		t.Errorf("expected implicit catch-all, got %q", got)
	}
}

func TestIgnorePatterns(t *testing.T) {
	reg := DefaultRegistry()
	for _, r := range []models.Repository{repo("pelican-eggs", "voice"), repo("Ashu11-A", "Ashu_eggs"), repo("someone", "else")} {
		got := reg.IgnorePatterns(r)
		if len(got) != len(DefaultIgnore) {
			t.Errorf("%s: expected %d ignore patterns, got %v", r.FullName(), len(DefaultIgnore), got)
		}
	}
}

func TestRuleMatches(t *testing.T) {
	tests := []struct {
		rule Rule
		repo models.Repository
		want bool
	}{
		{Rule{Kind: MatchOwner, Key: "pelican-eggs"}, repo("pelican-eggs", "voice"), true},
		{Rule{Kind: MatchOwner, Key: "pelican-eggs"}, repo("pelican", "eggs"), false},
		{Rule{Kind: MatchRepository, Key: "Ashu11-A/Ashu_eggs"}, repo("Ashu11-A", "Ashu_eggs"), true},
		{Rule{Kind: MatchRepository, Key: "Ashu11-A/Ashu_eggs"}, repo("Ashu11-A", "other"), false},
		{Rule{Kind: MatchAny}, repo("anyone", "anything"), true},
	}
	for _, tt := range tests {
		if got := tt.rule.Matches(tt.repo); got != tt.want {
			t.Errorf("%+v.Matches(%s) = %v, want %v", tt.rule.Kind, tt.repo.FullName(), got, tt.want)
		}
	}
}
