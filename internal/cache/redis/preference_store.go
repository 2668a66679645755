package redis

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/kunalatmosoft/MetaMarket/internal/domain"
)

// PreferenceStore implements domain.PreferenceStore with one hash per
// profile.
//
// Key schema:
//
//	{ns}:prefs:{profile} - hash, field "theme"
type PreferenceStore struct {
	c *Client
}

// NewPreferenceStore creates a PreferenceStore.
func NewPreferenceStore(c *Client) *PreferenceStore {
	return &PreferenceStore{c: c}
}

// Theme returns the stored theme, or domain.ThemeLight when unset.
func (s *PreferenceStore) Theme(ctx context.Context, profile string) (domain.Theme, error) {
	v, err := s.c.rdb.HGet(ctx, s.c.key("prefs", profile), "theme").Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return domain.ThemeLight, nil
		}
		return "", fmt.Errorf("redis: get theme %s: %w", profile, err)
	}
	return domain.Theme(v), nil
}

// SetTheme stores the theme for profile.
func (s *PreferenceStore) SetTheme(ctx context.Context, profile string, theme domain.Theme) error {
	if err := s.c.rdb.HSet(ctx, s.c.key("prefs", profile), "theme", string(theme)).Err(); err != nil {
		return fmt.Errorf("redis: set theme %s: %w", profile, err)
	}
	return nil
}

var _ domain.PreferenceStore = (*PreferenceStore)(nil)
