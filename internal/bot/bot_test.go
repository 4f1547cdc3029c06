package bot

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"beetbot/internal/beets"
	"beetbot/internal/capabilities"
	"beetbot/internal/config"
	"beetbot/internal/importer"
	"beetbot/internal/session"
)

const authorizedChat int64 = 42

type fakeAPI struct {
	mu      sync.Mutex
	sent    []tgbotapi.Chattable
	updates chan tgbotapi.Update
	once    sync.Once
}

func newFakeAPI() *fakeAPI {
	return &fakeAPI{updates: make(chan tgbotapi.Update)}
}

func (f *fakeAPI) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, c)
	return tgbotapi.Message{}, nil
}

func (f *fakeAPI) Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error) {
	return &tgbotapi.APIResponse{Ok: true}, nil
}

func (f *fakeAPI) GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel {
	return f.updates
}

func (f *fakeAPI) StopReceivingUpdates() {
	f.once.Do(func() { close(f.updates) })
}

func (f *fakeAPI) messages() []tgbotapi.MessageConfig {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []tgbotapi.MessageConfig
	for _, c := range f.sent {
		if msg, ok := c.(tgbotapi.MessageConfig); ok {
			out = append(out, msg)
		}
	}
	return out
}

func (f *fakeAPI) lastMessage(t *testing.T) tgbotapi.MessageConfig {
	t.Helper()
	msgs := f.messages()
	require.NotEmpty(t, msgs)
	return msgs[len(msgs)-1]
}

// scriptExecutor feeds queued results to the beets client. With block set
// it parks every invocation until the run context is cancelled.
type scriptExecutor struct {
	mu      sync.Mutex
	results []beets.Result
	stdins  []string
	block   bool
}

func (s *scriptExecutor) Run(ctx context.Context, argv []string, stdin string) (beets.Result, error) {
	s.mu.Lock()
	s.stdins = append(s.stdins, stdin)
	var result beets.Result
	if len(s.results) > 0 {
		result = s.results[0]
		s.results = s.results[1:]
	}
	block := s.block
	s.mu.Unlock()

	if block {
		<-ctx.Done()
		return beets.Result{}, ctx.Err()
	}
	return result, nil
}

type capsProber struct{ output string }

func (p capsProber) ConfigDump(ctx context.Context) (beets.Result, error) {
	return beets.Result{Stdout: p.output}, nil
}

type fixture struct {
	bot  *Bot
	api  *fakeAPI
	exec *scriptExecutor
	root string
}

func newFixture(t *testing.T, exec *scriptExecutor) *fixture {
	t.Helper()
	root := t.TempDir()

	cfg := &config.Config{Language: "en"}
	cfg.Telegram.ChatID = authorizedChat
	cfg.Beets.Binary = "beet"
	cfg.Beets.ImportDir = root
	cfg.Importer.DiffStyle = "word"
	cfg.Commands = []config.CustomCommand{{Cmd: "update", Action: "beet update"}}

	client, err := beets.New(beets.Config{Binary: "beet", ImportTimeout: time.Second}, nil, beets.WithExecutor(exec))
	require.NoError(t, err)

	store, err := session.Open(filepath.Join(t.TempDir(), "sessions.db"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	caps := capabilities.New(capsProber{output: "plugins: discogs\n"}, time.Minute, nil)
	manager := importer.New(client, store, caps, cfg, nil)

	bot, err := NewWithAPI(newFakeAPI(), cfg, manager, client, nil)
	require.NoError(t, err)
	api := bot.api.(*fakeAPI)
	return &fixture{bot: bot, api: api, exec: exec, root: root}
}

func (f *fixture) makeTarget(t *testing.T, name string) {
	t.Helper()
	dir := filepath.Join(f.root, name)
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "01.flac"), []byte("x"), 0o644))
}

func messageFrom(chat int64, text string) tgbotapi.Update {
	return tgbotapi.Update{Message: &tgbotapi.Message{
		Chat: &tgbotapi.Chat{ID: chat},
		Text: text,
	}}
}

func commandFrom(chat int64, command string) tgbotapi.Update {
	text := "/" + command
	return tgbotapi.Update{Message: &tgbotapi.Message{
		Chat:     &tgbotapi.Chat{ID: chat},
		Text:     text,
		Entities: []tgbotapi.MessageEntity{{Type: "bot_command", Offset: 0, Length: len(text)}},
	}}
}

func callbackFrom(chat int64, data string) tgbotapi.Update {
	return tgbotapi.Update{CallbackQuery: &tgbotapi.CallbackQuery{
		ID:      "cb",
		Data:    data,
		Message: &tgbotapi.Message{Chat: &tgbotapi.Chat{ID: chat}},
	}}
}

const singleMatchOutput = `Tagging:
    Artist - Album
Match (96.8%):
URL:
    https://musicbrainz.org/release/5a2b3c4d-1111-2222-3333-444455556666
 * Artist: Old Artist -> New Artist
`

func TestUnauthorizedChatIsDenied(t *testing.T) {
	f := newFixture(t, &scriptExecutor{})
	f.bot.handleUpdate(context.Background(), messageFrom(99, "hello"))

	msg := f.api.lastMessage(t)
	assert.Equal(t, int64(99), msg.ChatID)
	assert.Equal(t, "Access denied.", msg.Text)
}

func TestListEmpty(t *testing.T) {
	f := newFixture(t, &scriptExecutor{})
	f.bot.handleUpdate(context.Background(), commandFrom(authorizedChat, "list"))
	assert.Equal(t, "Nothing to import right now.", f.api.lastMessage(t).Text)
}

func TestListShowsKeyboard(t *testing.T) {
	f := newFixture(t, &scriptExecutor{})
	f.makeTarget(t, "Artist - Album")

	f.bot.handleUpdate(context.Background(), commandFrom(authorizedChat, "list"))

	msg := f.api.lastMessage(t)
	assert.Equal(t, "Directories waiting for import:", msg.Text)
	markup, ok := msg.ReplyMarkup.(tgbotapi.InlineKeyboardMarkup)
	require.True(t, ok)
	// One directory row plus the refresh row.
	require.Len(t, markup.InlineKeyboard, 2)
	assert.Contains(t, markup.InlineKeyboard[0][0].Text, "Artist - Album")
	assert.Equal(t, "dir:0", *markup.InlineKeyboard[0][0].CallbackData)
}

func TestStartImportFlow(t *testing.T) {
	exec := &scriptExecutor{results: []beets.Result{{Stdout: singleMatchOutput}}}
	f := newFixture(t, exec)
	f.makeTarget(t, "Album")
	ctx := context.Background()

	f.bot.handleUpdate(ctx, commandFrom(authorizedChat, "list"))
	f.bot.handleCallback(ctx, "start:0")

	msg := f.api.lastMessage(t)
	assert.Contains(t, msg.Text, "Preview for Album")
	markup, ok := msg.ReplyMarkup.(tgbotapi.InlineKeyboardMarkup)
	require.True(t, ok)
	assert.Equal(t, "Accept match", markup.InlineKeyboard[0][0].Text)
	assert.Equal(t, "Album", f.bot.activeTarget())
}

func TestAcceptMatchCompletesImport(t *testing.T) {
	exec := &scriptExecutor{results: []beets.Result{
		{Stdout: singleMatchOutput},
		{Stdout: "import finished"},
	}}
	f := newFixture(t, exec)
	f.makeTarget(t, "Album")
	ctx := context.Background()

	f.bot.handleUpdate(ctx, commandFrom(authorizedChat, "list"))
	f.bot.handleCallback(ctx, "start:0")
	f.bot.handleCallback(ctx, "accept")

	assert.Equal(t, "Album imported.", f.api.lastMessage(t).Text)
	assert.Empty(t, f.bot.activeTarget(), "terminal step must clear the active target")
}

func TestManualIDPromptAndTextRouting(t *testing.T) {
	exec := &scriptExecutor{results: []beets.Result{
		{Stdout: "No matching release found"},
		{Stdout: singleMatchOutput},
	}}
	f := newFixture(t, exec)
	f.makeTarget(t, "Album")
	ctx := context.Background()

	f.bot.handleUpdate(ctx, commandFrom(authorizedChat, "list"))
	f.bot.handleCallback(ctx, "start:0")
	f.bot.handleCallback(ctx, "dgid")
	assert.Equal(t, "Send the Discogs release id or URL.", f.api.lastMessage(t).Text)

	f.bot.handleUpdate(ctx, messageFrom(authorizedChat, "12345"))
	msg := f.api.lastMessage(t)
	assert.Contains(t, msg.Text, "Preview")

	// The evaluation must run the timid preview, never the apply.
	exec.mu.Lock()
	lastStdin := exec.stdins[len(exec.stdins)-1]
	exec.mu.Unlock()
	assert.Equal(t, "B\n", lastStdin)
}

func TestUnexpectedTextWithoutPending(t *testing.T) {
	f := newFixture(t, &scriptExecutor{})
	f.bot.handleUpdate(context.Background(), messageFrom(authorizedChat, "random words"))
	assert.Contains(t, f.api.lastMessage(t).Text, "wasn't expecting")
}

func TestCancelClearsActiveTarget(t *testing.T) {
	exec := &scriptExecutor{results: []beets.Result{{Stdout: "No matching release found"}}}
	f := newFixture(t, exec)
	f.makeTarget(t, "Album")
	ctx := context.Background()

	f.bot.handleUpdate(ctx, commandFrom(authorizedChat, "list"))
	f.bot.handleCallback(ctx, "start:0")
	f.bot.handleUpdate(ctx, commandFrom(authorizedChat, "cancel"))

	assert.Equal(t, "Import of Album cancelled.", f.api.lastMessage(t).Text)
	assert.Empty(t, f.bot.activeTarget())
}

func TestCancelReachesRunningInvocation(t *testing.T) {
	f := newFixture(t, &scriptExecutor{block: true})
	f.makeTarget(t, "Album")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- f.bot.Run(ctx) }()

	f.api.updates <- commandFrom(authorizedChat, "list")
	require.Eventually(t, func() bool {
		_, ok := f.bot.cachedTarget(0)
		return ok
	}, 2*time.Second, 10*time.Millisecond)

	// The evaluation parks inside the executor and holds the busy slot.
	f.api.updates <- callbackFrom(authorizedChat, "start:0")
	require.Eventually(t, func() bool {
		return f.bot.manager.Busy("Album")
	}, 2*time.Second, 10*time.Millisecond)

	// The update loop must still read /cancel while beet runs.
	f.api.updates <- commandFrom(authorizedChat, "cancel")
	require.Eventually(t, func() bool {
		for _, msg := range f.api.messages() {
			if msg.Text == "Import of Album cancelled." {
				return true
			}
		}
		return false
	}, 2*time.Second, 10*time.Millisecond)

	require.Eventually(t, func() bool {
		return !f.bot.manager.Busy("Album")
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("update loop did not stop")
	}
}

func TestCustomCommandStripsBinaryPrefix(t *testing.T) {
	exec := &scriptExecutor{results: []beets.Result{{Stdout: "updated 3 albums"}}}
	f := newFixture(t, exec)

	f.bot.handleUpdate(context.Background(), commandFrom(authorizedChat, "update"))
	assert.Equal(t, "updated 3 albums", f.api.lastMessage(t).Text)
}

func TestStatusListsActiveSessions(t *testing.T) {
	exec := &scriptExecutor{results: []beets.Result{{Stdout: "No matching release found"}}}
	f := newFixture(t, exec)
	f.makeTarget(t, "Album")
	ctx := context.Background()

	f.bot.handleUpdate(ctx, commandFrom(authorizedChat, "list"))
	f.bot.handleCallback(ctx, "start:0")
	f.bot.handleUpdate(ctx, commandFrom(authorizedChat, "status"))

	msg := f.api.lastMessage(t)
	assert.Contains(t, msg.Text, "Active sessions:")
	assert.Contains(t, msg.Text, "Album: waiting: no match")
}

func TestChunkedSendSplitsLongText(t *testing.T) {
	f := newFixture(t, &scriptExecutor{})
	long := strings.Repeat("line of output\n", 1000)
	f.bot.send(long)
	assert.Greater(t, len(f.api.messages()), 1)
}

func TestFormatBytes(t *testing.T) {
	assert.Equal(t, "512 B", formatBytes(512))
	assert.Equal(t, "1.0 KB", formatBytes(1024))
	assert.Equal(t, "1.5 MB", formatBytes(3*1024*1024/2))
}
