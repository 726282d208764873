package source

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"
)

// Loader produces one translation unit per preprocessed file, reusing
// cached trees when they are still valid for the file's contents.
type Loader struct {
	cache  *Cache
	logger zerolog.Logger
}

// NewLoader creates a loader. A nil cache disables caching.
func NewLoader(cache *Cache, logger zerolog.Logger) *Loader {
	return &Loader{cache: cache, logger: logger}
}

// LoadStats counts how each unit was obtained.
type LoadStats struct {
	Parsed int
	Cached int
}

// Load returns the units for paths in input order. Repeated paths are
// loaded once. A cache that cannot be read or written never fails the
// load: the file is parsed instead and the failure is logged.
func (l *Loader) Load(ctx context.Context, paths []string) ([]*TranslationUnit, LoadStats, error) {
	var stats LoadStats

	cache := l.cache
	if cache != nil {
		if err := cache.Init(); err != nil {
			l.logger.Warn().Err(err).Str("dir", cache.Dir).Msg("Cache disabled")
			cache = nil
		}
	}

	paths = dedupe(paths)
	units := make([]*TranslationUnit, 0, len(paths))
	for i, path := range paths {
		if err := ctx.Err(); err != nil {
			return nil, stats, err
		}

		src, err := os.ReadFile(path)
		if err != nil {
			return nil, stats, fmt.Errorf("source: read %s: %w", path, err)
		}

		u, cached, err := l.loadOne(ctx, cache, path, src)
		if err != nil {
			return nil, stats, err
		}
		if cached {
			stats.Cached++
		} else {
			stats.Parsed++
		}
		units = append(units, u)

		l.logger.Info().
			Str("file", path).
			Bool("cached", cached).
			Int("progress", (i+1)*100/len(paths)).
			Msgf("Loaded %d%%", (i+1)*100/len(paths))
	}
	return units, stats, nil
}

func (l *Loader) loadOne(ctx context.Context, cache *Cache, path string, src []byte) (*TranslationUnit, bool, error) {
	if cache != nil {
		u, err := cache.Get(path, src)
		if err == nil {
			l.logger.Debug().Str("file", path).Msg("Loading cached AST")
			return u, true, nil
		}
		if !errors.Is(err, ErrCacheMiss) {
			l.logger.Warn().Err(err).Str("file", path).Msg("Cached AST rejected, parsing")
		}
	}

	l.logger.Debug().Str("file", path).Msg("Parsing")
	u, err := Parse(ctx, path, src)
	if err != nil {
		return nil, false, err
	}

	if cache != nil {
		if err := cache.Put(path, src, u); err != nil {
			l.logger.Warn().Err(err).Str("file", path).Msg("Failed to cache AST")
		}
	}
	return u, false, nil
}

func dedupe(paths []string) []string {
	seen := make(map[string]bool, len(paths))
	out := make([]string, 0, len(paths))
	for _, p := range paths {
		key := filepath.Clean(p)
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, p)
	}
	return out
}
