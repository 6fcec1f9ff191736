// Package langdetect resolves the natural language of egg descriptions.
package langdetect

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	lru "github.com/hashicorp/golang-lru/v2"
	gocache "github.com/patrickmn/go-cache"
	"github.com/rs/zerolog/log"
	"github.com/seanblong/eggtracker/internal/queue"
)

// MinTextLength is the minimum number of trimmed characters sent for detection.
const MinTextLength = 10

const (
	defaultBaseURL       = "http://localhost:8000"
	defaultFallback      = "en"
	defaultTimeout       = 10 * time.Second
	defaultMaxTextLength = 2000
	defaultCacheSize     = 4096
	healthTimeout        = 2 * time.Second
	healthTTL            = time.Minute
)

// Config holds settings for the detection service.
type Config struct {
	BaseURL       string
	Concurrency   int
	Timeout       time.Duration
	Fallback      string
	MaxTextLength int
	CacheSize     int
}

// Service talks to a language identification endpoint with bounded
// concurrency.
type Service struct {
	config  Config
	http    *http.Client
	queue   *queue.Queue
	health  *gocache.Cache
	results *lru.Cache[string, string]
}

// New creates a Service, filling defaults for unset fields.
func New(config Config) (*Service, error) {
	if strings.TrimSpace(config.BaseURL) == "" {
		config.BaseURL = defaultBaseURL
	}
	config.BaseURL = strings.TrimRight(config.BaseURL, "/")
	if config.Timeout <= 0 {
		config.Timeout = defaultTimeout
	}
	if config.Fallback == "" {
		config.Fallback = defaultFallback
	}
	if config.MaxTextLength <= 0 {
		config.MaxTextLength = defaultMaxTextLength
	}
	if config.CacheSize <= 0 {
		config.CacheSize = defaultCacheSize
	}

	results, err := lru.New[string, string](config.CacheSize)
	if err != nil {
		return nil, fmt.Errorf("detection cache: %w", err)
	}

	return &Service{
		config:  config,
		http:    &http.Client{Timeout: config.Timeout},
		queue:   queue.New(config.Concurrency),
		health:  gocache.New(healthTTL, 2*healthTTL),
		results: results,
	}, nil
}

type identifyRequest struct {
	TextContent string `json:"text_content"`
}

type identifyResponse struct {
	Language   string  `json:"language"`
	Confidence float64 `json:"confidence"`
}

// Detect returns the two-letter language of text, or "" when the text is
// too short to analyse.
func (s *Service) Detect(ctx context.Context, text string) (string, error) {
	return s.DetectAsync(ctx, text).Wait(ctx)
}

// DetectAsync submits text for detection through the bounded queue. Short
// text resolves to "" immediately without a request. A failed request
// resolves to the fallback code.
func (s *Service) DetectAsync(ctx context.Context, text string) *queue.Future[string] {
	text = strings.TrimSpace(text)
	if utf8.RuneCountInString(text) < MinTextLength {
		return queue.Resolved("")
	}
	text = truncate(text, s.config.MaxTextLength)

	if code, ok := s.results.Get(text); ok {
		return queue.Resolved(code)
	}

	return queue.Submit(s.queue, func() (string, error) {
		tag, err := s.identify(ctx, text)
		if err != nil {
			log.Warn().Err(err).Str("fallback", s.config.Fallback).Msg("language detection failed, using fallback")
			return s.config.Fallback, nil
		}
		code := Normalize(tag)
		if code == "" {
			log.Warn().Str("tag", tag).Str("fallback", s.config.Fallback).Msg("detector returned no language, using fallback")
			return s.config.Fallback, nil
		}
		s.results.Add(text, code)
		return code, nil
	})
}

// Wait blocks until every submitted detection has settled.
func (s *Service) Wait(ctx context.Context) error {
	return s.queue.WaitAll(ctx)
}

// Progress reports the number of running and queued detections.
func (s *Service) Progress() (running, queued int) {
	return s.queue.Running(), s.queue.Queued()
}

// Available reports whether the endpoint answers its liveness check. The
// outcome is reused for a minute.
func (s *Service) Available(ctx context.Context) bool {
	if v, ok := s.health.Get(s.config.BaseURL); ok {
		return v.(bool)
	}

	ctx, cancel := context.WithTimeout(ctx, healthTimeout)
	defer cancel()

	ok := false
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.config.BaseURL+"/docs", nil)
	if err == nil {
		resp, err := s.http.Do(req)
		if err == nil {
			ok = resp.StatusCode >= 200 && resp.StatusCode < 300
			if err := resp.Body.Close(); err != nil {
				log.Debug().Err(err).Msg("failed to close health response body")
			}
		}
	}
	if !ok {
		log.Warn().Str("url", s.config.BaseURL).Msg("language detection service unavailable")
	}
	s.health.Set(s.config.BaseURL, ok, gocache.DefaultExpiration)
	return ok
}

func (s *Service) identify(ctx context.Context, text string) (string, error) {
	b, err := json.Marshal(identifyRequest{TextContent: text})
	if err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.config.BaseURL+"/identify", bytes.NewReader(b))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.http.Do(req)
	if err != nil {
		return "", err
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			log.Debug().Err(err).Msg("failed to close identify response body")
		}
	}()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", errors.New("identify: " + resp.Status)
	}

	var out identifyResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("identify: decode: %w", err)
	}
	return out.Language, nil
}

func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return string(r[:n])
}
