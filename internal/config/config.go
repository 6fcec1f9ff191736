package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/seanblong/eggtracker/pkg/models"
	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"
)

type Specification struct {
	LogLevel            string                    `yaml:"logLevel" split_words:"true"`
	OutputDir           string                    `yaml:"outputDir" split_words:"true"`
	WorkDir             string                    `yaml:"workDir" split_words:"true"`
	PublicBaseURL       string                    `yaml:"publicBaseURL" split_words:"true"`
	DetectorURL         string                    `yaml:"detectorURL" envconfig:"GLOTLID_API_URL"`
	DetectorConcurrency int                       `yaml:"detectorConcurrency" envconfig:"GLOTLID_CONCURRENCY"`
	DetectorTimeout     time.Duration             `yaml:"detectorTimeout" split_words:"true"`
	FallbackLanguage    string                    `yaml:"fallbackLanguage" split_words:"true"`
	GithubToken         string                    `yaml:"githubToken" envconfig:"GITHUB_TOKEN"`
	Database            string                    `yaml:"database" envconfig:"DB_URL"`
	S3                  S3Specification           `yaml:"s3"`
	RepositoryList      []RepositorySpecification `yaml:"repositories" ignored:"true"`

	flags *pflag.FlagSet `ignored:"true"`
}

// S3Specification configures the optional object storage mirror. The mirror
// is enabled when Endpoint is set.
type S3Specification struct {
	Endpoint  string `yaml:"endpoint"`
	Region    string `yaml:"region"`
	AccessKey string `yaml:"accessKey" split_words:"true"`
	SecretKey string `yaml:"secretKey" split_words:"true"`
	Bucket    string `yaml:"bucket"`
	Prefix    string `yaml:"prefix"`
	UseSSL    bool   `yaml:"useSSL" split_words:"true"`
}

// RepositorySpecification is one tracked repository as written in the
// config file.
type RepositorySpecification struct {
	Repository string `yaml:"repository"`
	Branch     string `yaml:"branch,omitempty"`
}

const envPrefix = "EGGTRACKER"

// DefaultRepositories is the tracked set used when none is configured.
var DefaultRepositories = []RepositorySpecification{
	{Repository: "Ashu11-A/Ashu_eggs"},
	{Repository: "DanBot-Hosting/pterodactyl-eggs"},
	{Repository: "Draakoor/codptero"},
	{Repository: "drylian/Eggs"},
	{Repository: "GeyserMC/pterodactyl-stuff", Branch: "master"},
	{Repository: "gOOvER/own-pterodactyl-eggs"},
	{Repository: "kry008/pterodactyl-io-ARM-eggs"},
	{Repository: "pelican-eggs/chatbots"},
	{Repository: "pelican-eggs/database"},
	{Repository: "pelican-eggs/games-standalone"},
	{Repository: "pelican-eggs/games-steamcmd"},
	{Repository: "pelican-eggs/generic"},
	{Repository: "pelican-eggs/minecraft"},
	{Repository: "pelican-eggs/monitoring"},
	{Repository: "pelican-eggs/software"},
	{Repository: "pelican-eggs/voice"},
	{Repository: "QuintenQVD0/Q_eggs"},
	{Repository: "Sigma-Production/ptero-eggs"},
	{Repository: "ysdragon/Pterodactyl-VPS-Egg"},
}

func (s *Specification) Usage() {
	fmt.Fprint(os.Stderr, s.flags.FlagUsages())
}

// Repositories returns the configured repositories in order.
func (s *Specification) Repositories() ([]models.Repository, error) {
	out := make([]models.Repository, 0, len(s.RepositoryList))
	for _, r := range s.RepositoryList {
		repo, err := models.ParseRepository(r.Repository, r.Branch)
		if err != nil {
			return nil, err
		}
		out = append(out, repo)
	}
	return out, nil
}

// Load => defaults < YAML < env < flags.
// configPath may be ""; if so we auto-discover.
func Load(configPath string, fs *pflag.FlagSet) (Specification, error) {
	var cfg Specification

	// set defaults (lowest precedence)
	setDefaults(&cfg)
	bindFlags(fs, &cfg)

	// config file
	path := configPath
	if path == "" {
		if v := os.Getenv(envPrefix + "_CONFIG"); v != "" {
			path = v
		} else {
			for _, cand := range []string{
				"config/eggtracker.yaml",
				"./eggtracker.yaml",
			} {
				if fileExists(cand) {
					path = cand
					break
				}
			}
		}
	}

	if path != "" {
		if !fileExists(path) {
			return Specification{}, fmt.Errorf("config file not found: %s", path)
		}
		if err := loadYAML(path, &cfg); err != nil {
			return Specification{}, fmt.Errorf("load yaml %s: %w", path, err)
		}
	}

	// env overrides config file
	if err := envconfig.Process(envPrefix, &cfg); err != nil {
		return Specification{}, fmt.Errorf("env override: %w", err)
	}

	// flags override everything
	if err := fs.Parse(os.Args[1:]); err != nil {
		return Specification{}, err
	}
	if err := applyChangedFlags(fs, &cfg); err != nil {
		return Specification{}, err
	}

	// Minimal sanity
	if strings.TrimSpace(cfg.OutputDir) == "" {
		return Specification{}, fmt.Errorf("EGGTRACKER_OUTPUT_DIR must not be empty")
	}
	if strings.TrimSpace(cfg.LogLevel) == "" {
		cfg.LogLevel = "info"
	}
	if len(cfg.RepositoryList) == 0 {
		return Specification{}, fmt.Errorf("no repositories configured")
	}
	if _, err := cfg.Repositories(); err != nil {
		return Specification{}, err
	}
	return cfg, nil
}

// ---------- helpers ----------

func loadYAML(path string, into any) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return yaml.Unmarshal(b, into)
}

func fileExists(p string) bool {
	fi, err := os.Stat(p)
	return err == nil && !fi.IsDir()
}

// parseRepositoryFlag splits "owner/name[@branch]".
func parseRepositoryFlag(v string) RepositorySpecification {
	name, branch, _ := strings.Cut(strings.TrimSpace(v), "@")
	return RepositorySpecification{Repository: name, Branch: branch}
}

func bindFlags(fs *pflag.FlagSet, c *Specification) {
	fs.String("config", "", "Path to config file")

	// If --config is provided on the command line, capture it now so
	// config discovery (which runs before flags.Parse) can use it.
	for i, a := range os.Args {
		if a == "--config" {
			if i+1 < len(os.Args) && !strings.HasPrefix(os.Args[i+1], "-") {
				_ = os.Setenv(envPrefix+"_CONFIG", os.Args[i+1])
			}
		} else if strings.HasPrefix(a, "--config=") {
			parts := strings.SplitN(a, "=", 2)
			if len(parts) == 2 {
				_ = os.Setenv(envPrefix+"_CONFIG", parts[1])
			}
		}
	}

	fs.String("log-level", c.LogLevel, "Log level (debug|info|warn|error)")
	fs.String("output-dir", c.OutputDir, "Directory receiving the published artifacts")
	fs.String("work-dir", c.WorkDir, "Directory holding temporary checkouts")
	fs.String("public-base-url", c.PublicBaseURL, "Public URL the output directory is served from")

	fs.String("detector-url", c.DetectorURL, "Language detection service base URL")
	fs.Int("detector-concurrency", c.DetectorConcurrency, "Maximum in-flight detection requests")
	fs.Duration("detector-timeout", c.DetectorTimeout, "Timeout of one detection request")
	fs.String("fallback-language", c.FallbackLanguage, "Language code used when detection fails")

	fs.String("github-token", c.GithubToken, "GitHub API token")
	fs.String("db-url", c.Database, "Optional catalog database URL (DSN)")

	fs.String("s3-endpoint", c.S3.Endpoint, "Optional S3 mirror endpoint")
	fs.String("s3-region", c.S3.Region, "S3 mirror region")
	fs.String("s3-access-key", c.S3.AccessKey, "S3 mirror access key")
	fs.String("s3-secret-key", c.S3.SecretKey, "S3 mirror secret key")
	fs.String("s3-bucket", c.S3.Bucket, "S3 mirror bucket")
	fs.String("s3-prefix", c.S3.Prefix, "S3 mirror key prefix")
	fs.Bool("s3-use-ssl", c.S3.UseSSL, "Use TLS for the S3 mirror")

	fs.StringSlice("repository", nil, "Repository to track as owner/name[@branch]; repeatable, replaces the configured list")

	// Used later for usage/help
	// create a shallow copy of fs (so Usage can be called safely without mutating caller)
	copied := pflag.NewFlagSet("temp", pflag.ContinueOnError)
	*copied = *fs
	c.flags = copied
}

func applyChangedFlags(fs *pflag.FlagSet, c *Specification) error {
	setStr := func(name string, dst *string) {
		if fs.Changed(name) {
			v, _ := fs.GetString(name)
			*dst = v
		}
	}
	setInt := func(name string, dst *int) {
		if fs.Changed(name) {
			v, _ := fs.GetInt(name)
			*dst = v
		}
	}
	setBool := func(name string, dst *bool) {
		if fs.Changed(name) {
			v, _ := fs.GetBool(name)
			*dst = v
		}
	}
	setDuration := func(name string, dst *time.Duration) {
		if fs.Changed(name) {
			v, _ := fs.GetDuration(name)
			*dst = v
		}
	}

	// (We ignore --config here; it's for discovery.)
	setStr("log-level", &c.LogLevel)
	setStr("output-dir", &c.OutputDir)
	setStr("work-dir", &c.WorkDir)
	setStr("public-base-url", &c.PublicBaseURL)

	setStr("detector-url", &c.DetectorURL)
	setInt("detector-concurrency", &c.DetectorConcurrency)
	setDuration("detector-timeout", &c.DetectorTimeout)
	setStr("fallback-language", &c.FallbackLanguage)

	setStr("github-token", &c.GithubToken)
	setStr("db-url", &c.Database)

	setStr("s3-endpoint", &c.S3.Endpoint)
	setStr("s3-region", &c.S3.Region)
	setStr("s3-access-key", &c.S3.AccessKey)
	setStr("s3-secret-key", &c.S3.SecretKey)
	setStr("s3-bucket", &c.S3.Bucket)
	setStr("s3-prefix", &c.S3.Prefix)
	setBool("s3-use-ssl", &c.S3.UseSSL)

	if fs.Changed("repository") {
		values, err := fs.GetStringSlice("repository")
		if err != nil {
			return err
		}
		c.RepositoryList = c.RepositoryList[:0:0]
		for _, v := range values {
			c.RepositoryList = append(c.RepositoryList, parseRepositoryFlag(v))
		}
	}
	return nil
}

func setDefaults(c *Specification) {
	c.LogLevel = "info"
	c.OutputDir = "api"
	c.WorkDir = filepath.Join(os.TempDir(), "eggtracker")
	c.PublicBaseURL = "https://raw.githubusercontent.com/Ashu11-A/Eggs-Tracker/main/api"
	c.DetectorURL = "http://localhost:8000"
	c.DetectorConcurrency = 5
	c.DetectorTimeout = 10 * time.Second
	c.FallbackLanguage = "en"
	c.GithubToken = ""
	c.Database = ""
	c.S3.Region = "us-east-1"
	c.S3.UseSSL = true
	c.RepositoryList = append([]RepositorySpecification(nil), DefaultRepositories...)
}
