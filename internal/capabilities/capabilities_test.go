package capabilities

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"beetbot/internal/beets"
)

type stubProber struct {
	mu     sync.Mutex
	output string
	err    error
	calls  atomic.Int64
}

func (p *stubProber) ConfigDump(ctx context.Context) (beets.Result, error) {
	p.calls.Add(1)
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return beets.Result{}, p.err
	}
	return beets.Result{Stdout: p.output}, nil
}

func (p *stubProber) set(output string, err error) {
	p.mu.Lock()
	p.output = output
	p.err = err
	p.mu.Unlock()
}

func TestCurrentProbesOnce(t *testing.T) {
	prober := &stubProber{output: "plugins: discogs fetchart\n"}
	cache := New(prober, time.Minute, nil)

	snap := cache.Current(context.Background())
	require.True(t, snap.Known)
	assert.True(t, snap.HasDiscogs())
	assert.Equal(t, []beets.Source{beets.SourceMusicBrainz, beets.SourceDiscogs}, snap.Sources())

	cache.Current(context.Background())
	assert.Equal(t, int64(1), prober.calls.Load(), "fresh snapshot must not re-probe")
}

func TestCurrentRefreshesAfterTTL(t *testing.T) {
	prober := &stubProber{output: "plugins: discogs\n"}
	cache := New(prober, time.Minute, nil)

	now := time.Now()
	cache.now = func() time.Time { return now }
	require.True(t, cache.Current(context.Background()).HasDiscogs())

	prober.set("plugins: fetchart\n", nil)
	now = now.Add(2 * time.Minute)
	snap := cache.Current(context.Background())
	assert.False(t, snap.HasDiscogs())
	assert.Equal(t, []beets.Source{beets.SourceMusicBrainz}, snap.Sources())
	assert.Equal(t, int64(2), prober.calls.Load())
}

func TestCurrentServesStaleOnProbeFailure(t *testing.T) {
	prober := &stubProber{output: "plugins: discogs\n"}
	cache := New(prober, time.Minute, nil)

	now := time.Now()
	cache.now = func() time.Time { return now }
	require.True(t, cache.Current(context.Background()).HasDiscogs())

	prober.set("", errors.New("docker exec failed"))
	now = now.Add(2 * time.Minute)
	snap := cache.Current(context.Background())
	assert.True(t, snap.Known)
	assert.True(t, snap.HasDiscogs(), "stale snapshot must still be served")
}

func TestCurrentUnknownWhenNeverProbed(t *testing.T) {
	prober := &stubProber{err: errors.New("container down")}
	cache := New(prober, time.Minute, nil)

	snap := cache.Current(context.Background())
	assert.False(t, snap.Known)
	assert.False(t, snap.HasDiscogs())
	assert.Equal(t, []beets.Source{beets.SourceMusicBrainz}, snap.Sources())
}

func TestInvalidateForcesReprobe(t *testing.T) {
	prober := &stubProber{output: "plugins: discogs\n"}
	cache := New(prober, time.Minute, nil)

	cache.Current(context.Background())
	cache.Invalidate()
	cache.Current(context.Background())
	assert.Equal(t, int64(2), prober.calls.Load())
}

func TestConcurrentCallsCollapse(t *testing.T) {
	prober := &stubProber{output: "plugins: discogs\n"}
	cache := New(prober, time.Minute, nil)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			cache.Current(context.Background())
		}()
	}
	wg.Wait()
	assert.LessOrEqual(t, prober.calls.Load(), int64(2), "concurrent callers must share probes")
}
