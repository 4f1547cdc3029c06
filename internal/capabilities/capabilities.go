// Package capabilities caches which beets plugins are enabled so the
// decision tree can offer only the search sources that will actually work.
package capabilities

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"beetbot/internal/beets"
	"beetbot/internal/logging"
)

// DefaultTTL is how long a probed snapshot stays fresh.
const DefaultTTL = 5 * time.Minute

// Prober runs the configuration dump the snapshot is derived from.
type Prober interface {
	ConfigDump(ctx context.Context) (beets.Result, error)
}

// Snapshot is one probe of the enabled plugin set.
type Snapshot struct {
	Plugins  map[string]struct{}
	ProbedAt time.Time
	// Known is false when no probe has ever succeeded.
	Known bool
}

// HasPlugin reports whether the named plugin was enabled at probe time.
func (s Snapshot) HasPlugin(name string) bool {
	_, ok := s.Plugins[name]
	return ok
}

// HasDiscogs reports whether the discogs search source is available.
func (s Snapshot) HasDiscogs() bool {
	return s.HasPlugin("discogs")
}

// Sources lists the usable search sources. MusicBrainz is built in.
func (s Snapshot) Sources() []beets.Source {
	sources := []beets.Source{beets.SourceMusicBrainz}
	if s.HasDiscogs() {
		sources = append(sources, beets.SourceDiscogs)
	}
	return sources
}

// Cache serves plugin snapshots with a TTL, collapsing concurrent probes
// into one invocation. A failed refresh serves the previous snapshot stale
// rather than erroring.
type Cache struct {
	prober Prober
	ttl    time.Duration
	logger *slog.Logger
	now    func() time.Time

	group singleflight.Group

	mu       sync.RWMutex
	snapshot Snapshot
}

// New builds a cache around the prober. A zero ttl uses DefaultTTL.
func New(prober Prober, ttl time.Duration, logger *slog.Logger) *Cache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Cache{
		prober: prober,
		ttl:    ttl,
		logger: logging.WithComponent(logger, "capabilities"),
		now:    time.Now,
	}
}

// Current returns a usable snapshot, probing when the cached one is missing
// or expired. It never returns an error: when the probe fails and a prior
// snapshot exists, that snapshot is served stale; when nothing has ever been
// probed, an unknown empty snapshot is returned so callers fall back to the
// always-available sources.
func (c *Cache) Current(ctx context.Context) Snapshot {
	c.mu.RLock()
	cached := c.snapshot
	c.mu.RUnlock()

	if cached.Known && c.now().Sub(cached.ProbedAt) < c.ttl {
		return cached
	}

	refreshed, err, _ := c.group.Do("probe", func() (any, error) {
		return c.probe(ctx)
	})
	if err != nil {
		c.mu.RLock()
		cached = c.snapshot
		c.mu.RUnlock()
		if cached.Known {
			c.logger.Warn("plugin probe failed, serving stale snapshot",
				slog.String("error", err.Error()),
				slog.Time("probed_at", cached.ProbedAt))
			return cached
		}
		c.logger.Warn("plugin probe failed with no prior snapshot", slog.String("error", err.Error()))
		return Snapshot{}
	}
	return refreshed.(Snapshot)
}

// Invalidate drops the cached snapshot so the next call probes again.
func (c *Cache) Invalidate() {
	c.mu.Lock()
	c.snapshot = Snapshot{}
	c.mu.Unlock()
}

func (c *Cache) probe(ctx context.Context) (Snapshot, error) {
	result, err := c.prober.ConfigDump(ctx)
	if err != nil {
		return Snapshot{}, err
	}
	snapshot := Snapshot{
		Plugins:  beets.ParsePlugins(result.Combined()),
		ProbedAt: c.now(),
		Known:    true,
	}
	c.mu.Lock()
	c.snapshot = snapshot
	c.mu.Unlock()

	c.logger.Debug("plugin snapshot refreshed", slog.Int("plugins", len(snapshot.Plugins)))
	return snapshot, nil
}
