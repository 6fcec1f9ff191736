package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/seanblong/eggtracker/pkg/models"
)

// LinksName is the artifact holding the author index.
const LinksName = "links.json"

// LoadLinks reads the author index; a missing index yields no rows.
func (s *Store) LoadLinks(ctx context.Context) ([]models.Link, error) {
	b, err := s.artifacts.Get(ctx, LinksName)
	if errors.Is(err, ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", LinksName, err)
	}
	var links []models.Link
	if err := json.Unmarshal(b, &links); err != nil {
		return nil, fmt.Errorf("decode %s: %w", LinksName, err)
	}
	return links, nil
}

// SaveLinks writes the author index and copies it to every mirror.
// Mirror failures are logged only.
func (s *Store) SaveLinks(ctx context.Context, links []models.Link) error {
	if links == nil {
		links = []models.Link{}
	}
	b, err := encodeJSON(links, true)
	if err != nil {
		return err
	}
	if err := s.artifacts.Put(ctx, LinksName, b); err != nil {
		return fmt.Errorf("publish %s: %w", LinksName, err)
	}
	for _, m := range s.mirrors {
		if err := m.Put(ctx, LinksName, b); err != nil {
			log.Error().Err(err).Str("artifact", LinksName).Msg("mirror upload failed")
		}
	}
	return nil
}
