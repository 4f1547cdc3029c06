package beets_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"beetbot/internal/beets"
	"beetbot/internal/logging"
)

type stubExecutor struct {
	result beets.Result
	err    error
	block  bool

	calls  int
	argv   [][]string
	stdins []string
}

func (s *stubExecutor) Run(ctx context.Context, argv []string, stdin string) (beets.Result, error) {
	s.calls++
	s.argv = append(s.argv, append([]string(nil), argv...))
	s.stdins = append(s.stdins, stdin)
	if s.block {
		<-ctx.Done()
		return beets.Result{}, ctx.Err()
	}
	return s.result, s.err
}

func newClient(t *testing.T, cfg beets.Config, exec beets.Executor) *beets.Client {
	t.Helper()
	client, err := beets.New(cfg, logging.NewNop(), beets.WithExecutor(exec))
	require.NoError(t, err)
	return client
}

func TestNewRequiresBinary(t *testing.T) {
	_, err := beets.New(beets.Config{}, logging.NewNop())
	require.Error(t, err)
}

func TestDryRunBuildsDockerInvocation(t *testing.T) {
	exec := &stubExecutor{result: beets.Result{Stdout: "No matching release found"}}
	client := newClient(t, beets.Config{Binary: "beet", Container: "beets", User: "abc"}, exec)

	_, err := client.DryRun(context.Background(), "/downloads/Album")
	require.NoError(t, err)
	require.Len(t, exec.argv, 1)
	assert.Equal(t, []string{"docker", "exec", "-u", "abc", "beets", "beet", "-vv", "import", "-t", "/downloads/Album"}, exec.argv[0])
}

func TestDryRunLocalInvocationWithPretend(t *testing.T) {
	exec := &stubExecutor{}
	client := newClient(t, beets.Config{Binary: "beet", Pretend: true}, exec)

	_, err := client.DryRun(context.Background(), "/downloads/Album")
	require.NoError(t, err)
	assert.Equal(t, []string{"beet", "-vv", "import", "--pretend", "/downloads/Album"}, exec.argv[0])
}

func TestImportWithIDPreviewSendsAbort(t *testing.T) {
	exec := &stubExecutor{}
	client := newClient(t, beets.Config{Binary: "beet", Container: "beets"}, exec)

	_, err := client.ImportWithID(context.Background(), "/downloads/Album", beets.SourceMusicBrainz, "abc-id", false)
	require.NoError(t, err)
	assert.Equal(t, "B\n", exec.stdins[0])
	// Interactive stdin needs docker exec -i.
	assert.Equal(t, "-i", exec.argv[0][2])
	assert.Contains(t, exec.argv[0], "--search-id")
}

func TestImportWithIDApplySendsAccept(t *testing.T) {
	exec := &stubExecutor{}
	client := newClient(t, beets.Config{Binary: "beet"}, exec)

	_, err := client.ImportWithID(context.Background(), "/downloads/Album", beets.SourceMusicBrainz, "abc-id", true)
	require.NoError(t, err)
	assert.Equal(t, "A\n", exec.stdins[0])
}

func TestImportWithIDExpandsDiscogsRelease(t *testing.T) {
	exec := &stubExecutor{}
	client := newClient(t, beets.Config{Binary: "beet"}, exec)

	_, err := client.ImportWithID(context.Background(), "/downloads/Album", beets.SourceDiscogs, "123456", false)
	require.NoError(t, err)
	assert.Contains(t, exec.argv[0], "https://www.discogs.com/release/123456")
}

func TestImportWithIDRequiresID(t *testing.T) {
	client := newClient(t, beets.Config{Binary: "beet"}, &stubExecutor{})
	_, err := client.ImportWithID(context.Background(), "/downloads/Album", beets.SourceMusicBrainz, "  ", false)
	require.Error(t, err)
}

func TestImportSelectedSendsIndexThenAccept(t *testing.T) {
	exec := &stubExecutor{}
	client := newClient(t, beets.Config{Binary: "beet"}, exec)

	_, err := client.ImportSelected(context.Background(), "/downloads/Album", 2)
	require.NoError(t, err)
	assert.Equal(t, "2\nA\n", exec.stdins[0])
}

func TestImportAsIsSendsUseAsIs(t *testing.T) {
	exec := &stubExecutor{}
	client := newClient(t, beets.Config{Binary: "beet"}, exec)

	_, err := client.ImportAsIs(context.Background(), "/downloads/Album")
	require.NoError(t, err)
	assert.Equal(t, "U\n", exec.stdins[0])
}

func TestRunTimeoutReturnsInvocationTimeout(t *testing.T) {
	exec := &stubExecutor{block: true}
	client := newClient(t, beets.Config{Binary: "beet", ImportTimeout: 20 * time.Millisecond}, exec)

	_, err := client.DryRun(context.Background(), "/downloads/Album")
	require.Error(t, err)
	assert.ErrorIs(t, err, beets.ErrInvocationTimeout)
}

func TestRunCallerCancellationIsNotATimeout(t *testing.T) {
	exec := &stubExecutor{block: true}
	client := newClient(t, beets.Config{Binary: "beet", ImportTimeout: time.Minute}, exec)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()
	_, err := client.DryRun(ctx, "/downloads/Album")
	require.Error(t, err)
	assert.False(t, errors.Is(err, beets.ErrInvocationTimeout))
}

func TestExecutorErrorIsInvocationFailure(t *testing.T) {
	exec := &stubExecutor{err: errors.New("exec: \"docker\": executable file not found")}
	client := newClient(t, beets.Config{Binary: "beet", Container: "beets"}, exec)

	_, err := client.DryRun(context.Background(), "/downloads/Album")
	require.Error(t, err)
	assert.ErrorIs(t, err, beets.ErrInvocationFailure)
	assert.False(t, errors.Is(err, beets.ErrInvocationTimeout))
}

func TestNonzeroExitIsNotAnError(t *testing.T) {
	exec := &stubExecutor{result: beets.Result{Stdout: "out", ExitCode: 1}}
	client := newClient(t, beets.Config{Binary: "beet"}, exec)

	result, err := client.Query(context.Background(), "/downloads/Album")
	require.NoError(t, err)
	assert.Equal(t, 1, result.ExitCode)
}
