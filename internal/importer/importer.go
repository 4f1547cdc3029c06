// Package importer drives the import decision tree: it runs beet through the
// client, parses its answers, and advances the persisted per-target session.
package importer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"beetbot/internal/analyzer"
	"beetbot/internal/beets"
	"beetbot/internal/capabilities"
	"beetbot/internal/config"
	"beetbot/internal/diff"
	"beetbot/internal/logging"
	"beetbot/internal/session"
)

// Client is the subset of the beets client the orchestrator drives.
type Client interface {
	DryRun(ctx context.Context, path string) (beets.Result, error)
	ImportWithID(ctx context.Context, path string, source beets.Source, id string, apply bool) (beets.Result, error)
	ImportSelected(ctx context.Context, path string, index int) (beets.Result, error)
	ImportApply(ctx context.Context, path string) (beets.Result, error)
	ImportAsIs(ctx context.Context, path string) (beets.Result, error)
	Query(ctx context.Context, path string) (beets.Result, error)
}

// Outcome is what one operation produced: the session after the operation,
// plus whichever beet result drove it.
type Outcome struct {
	Session *session.Session
	DryRun  *beets.DryRunResult
	Import  *beets.ImportOutcome
	// Diffs renders the selected candidate's field changes, when one is
	// selected.
	Diffs []diff.FieldDiff
	// Library holds the matching library entries when the target is
	// already imported.
	Library string
}

// Manager orchestrates one operator's imports. All operations are safe for
// concurrent use; per-target busy slots serialize invocations per directory.
type Manager struct {
	client Client
	store  *session.Store
	caps   *capabilities.Cache
	cfg    *config.Config
	style  diff.Style
	logger *slog.Logger

	mu   sync.Mutex
	busy map[string]context.CancelFunc
}

// New assembles the orchestrator.
func New(client Client, store *session.Store, caps *capabilities.Cache, cfg *config.Config, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Manager{
		client: client,
		store:  store,
		caps:   caps,
		cfg:    cfg,
		style:  diff.ParseStyle(cfg.Importer.DiffStyle),
		logger: logging.WithComponent(logger, "importer"),
		busy:   make(map[string]context.CancelFunc),
	}
}

// Store exposes the session store for read-only presentation.
func (m *Manager) Store() *session.Store {
	return m.store
}

// Capabilities exposes the plugin snapshot cache.
func (m *Manager) Capabilities() *capabilities.Cache {
	return m.caps
}

// DiffStyle returns the configured rendering style.
func (m *Manager) DiffStyle() diff.Style {
	return m.style
}

// targetPath resolves a directory name inside the import root. Names that
// escape the root are rejected before anything touches the filesystem.
func (m *Manager) targetPath(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" || name == "." {
		return "", fmt.Errorf("%w: empty target name", ErrGuardedPath)
	}
	path := filepath.Join(m.cfg.Beets.ImportDir, name)
	rel, err := filepath.Rel(m.cfg.Beets.ImportDir, path)
	if err != nil || rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %s", ErrGuardedPath, name)
	}
	return path, nil
}

// acquire claims the target's busy slot. The returned context is cancelled
// by Cancel; release must always be called when the invocation ends.
func (m *Manager) acquire(ctx context.Context, targetID string) (context.Context, func(), error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.busy[targetID]; exists {
		return nil, nil, fmt.Errorf("%w: %s", ErrBusy, targetID)
	}
	runCtx, cancel := context.WithCancel(ctx)
	m.busy[targetID] = cancel
	release := func() {
		m.mu.Lock()
		delete(m.busy, targetID)
		m.mu.Unlock()
		cancel()
	}
	return runCtx, release, nil
}

// Busy reports whether an invocation for the target is in flight.
func (m *Manager) Busy(targetID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, exists := m.busy[targetID]
	return exists
}

// Begin starts a session for a directory and runs the first candidate
// evaluation. An existing non-terminal session is a conflict; the operator
// must cancel or retry it instead.
func (m *Manager) Begin(ctx context.Context, name string) (*Outcome, error) {
	path, err := m.targetPath(name)
	if err != nil {
		return nil, err
	}
	if _, err := analyzer.Analyze(path); err != nil {
		return nil, err
	}

	existing, err := m.store.Get(ctx, name)
	switch {
	case err == nil && !existing.Step.Terminal():
		return nil, fmt.Errorf("%w: %s is at %s", session.ErrSessionConflict, name, existing.Step)
	case err != nil && !errors.Is(err, session.ErrNotFound):
		return nil, err
	}

	sess := session.New(name, filepath.Base(path))
	if err := m.store.Save(ctx, sess); err != nil {
		return nil, err
	}
	return m.evaluate(ctx, sess, path)
}

// Retry re-evaluates a target. A terminal session is replaced; a live one is
// reset to the listing step first.
func (m *Manager) Retry(ctx context.Context, name string) (*Outcome, error) {
	path, err := m.targetPath(name)
	if err != nil {
		return nil, err
	}

	sess, err := m.store.Get(ctx, name)
	switch {
	case errors.Is(err, session.ErrNotFound) || (err == nil && sess.Step.Terminal()):
		if _, err := m.store.Delete(ctx, name); err != nil {
			return nil, err
		}
		return m.Begin(ctx, name)
	case err != nil:
		return nil, err
	}

	if sess.Step != session.StepListing {
		if err := sess.Transition(session.StepListing); err != nil {
			return nil, err
		}
	}
	if err := m.store.Save(ctx, sess); err != nil {
		return nil, err
	}
	return m.evaluate(ctx, sess, path)
}

// evaluate runs the dry run and advances the session per its outcome. A
// timeout or unreadable output leaves the session at the listing step so the
// operator can retry.
func (m *Manager) evaluate(ctx context.Context, sess *session.Session, path string) (*Outcome, error) {
	runCtx, release, err := m.acquire(ctx, sess.TargetID)
	if err != nil {
		return nil, err
	}
	defer release()

	result, err := m.client.DryRun(runCtx, m.cfg.BeetsPath(path))
	if err != nil {
		return nil, err
	}

	parsed := beets.ParseDryRun(result.Combined())
	var library string
	switch parsed.Outcome {
	case beets.OutcomeParseError:
		m.logger.Warn("dry run output unreadable",
			slog.String(logging.FieldTarget, sess.TargetID),
			slog.String("reason", parsed.Reason))
		return nil, fmt.Errorf("%w: %s", beets.ErrParse, parsed.Reason)
	case beets.OutcomeInLibrary:
		if err := sess.Transition(session.StepCompleted); err != nil {
			return nil, err
		}
		// Best effort; the duplicate notice stands on its own if the
		// lookup fails.
		if lookup, err := m.client.Query(runCtx, m.cfg.BeetsPath(path)); err == nil {
			library = strings.TrimSpace(lookup.Combined())
		}
	case beets.OutcomeNoMatches:
		if err := sess.Transition(session.StepNoMatch); err != nil {
			return nil, err
		}
	case beets.OutcomeMatches:
		sess.SetCandidates(parsed.Candidates)
		next := session.StepMultiMatch
		if len(parsed.Candidates) == 1 {
			next = session.StepSingleMatch
		}
		if err := sess.Transition(next); err != nil {
			return nil, err
		}
		if next == session.StepSingleMatch {
			// Preselect the lone candidate so the preview renders immediately.
			if err := sess.Select(0); err != nil {
				return nil, err
			}
		}
	}
	if err := m.store.Save(ctx, sess); err != nil {
		return nil, err
	}

	m.logger.Info("evaluation finished",
		slog.String(logging.FieldTarget, sess.TargetID),
		slog.String(logging.FieldStep, string(sess.Step)),
		slog.Int("candidates", len(parsed.Candidates)))
	return &Outcome{Session: sess, DryRun: &parsed, Diffs: m.selectedDiffs(sess), Library: library}, nil
}

// SelectCandidate picks one of the listed candidates and moves to the
// preview step. It runs no invocation.
func (m *Manager) SelectCandidate(ctx context.Context, name string, index int) (*Outcome, error) {
	sess, err := m.store.Get(ctx, name)
	if err != nil {
		return nil, err
	}
	if err := sess.Select(index); err != nil {
		return nil, err
	}
	if err := sess.Transition(session.StepPreviewing); err != nil {
		return nil, err
	}
	if err := m.store.Save(ctx, sess); err != nil {
		return nil, err
	}
	return &Outcome{Session: sess, Diffs: m.selectedDiffs(sess)}, nil
}

// AwaitManualID arms the session to treat the next free-text message as a
// release id for the given source.
func (m *Manager) AwaitManualID(ctx context.Context, name string, source beets.Source) (*session.Session, error) {
	sess, err := m.store.Get(ctx, name)
	if err != nil {
		return nil, err
	}
	kind := session.PendingMusicBrainzID
	if source == beets.SourceDiscogs {
		kind = session.PendingDiscogsID
	}
	if err := sess.AwaitInput(kind); err != nil {
		return nil, err
	}
	if err := m.store.Save(ctx, sess); err != nil {
		return nil, err
	}
	return sess, nil
}

// AwaitAsIsConfirm arms the session to treat the next free-text message as
// the answer to the as-is import confirmation.
func (m *Manager) AwaitAsIsConfirm(ctx context.Context, name string) (*session.Session, error) {
	sess, err := m.store.Get(ctx, name)
	if err != nil {
		return nil, err
	}
	if err := sess.AwaitInput(session.PendingConfirmAsIs); err != nil {
		return nil, err
	}
	if err := m.store.Save(ctx, sess); err != nil {
		return nil, err
	}
	return sess, nil
}

// EvaluateManualID previews an operator-supplied release id. A usable match
// moves the session to the preview step; anything else clears the pending
// flag and leaves the step alone.
func (m *Manager) EvaluateManualID(ctx context.Context, name string, source beets.Source, id string) (*Outcome, error) {
	path, err := m.targetPath(name)
	if err != nil {
		return nil, err
	}
	sess, err := m.store.Get(ctx, name)
	if err != nil {
		return nil, err
	}
	if sess.Step.Terminal() || sess.Step == session.StepConfirmed {
		return nil, fmt.Errorf("%w: cannot evaluate id at %s", session.ErrInvalidTransition, sess.Step)
	}

	runCtx, release, err := m.acquire(ctx, sess.TargetID)
	if err != nil {
		return nil, err
	}
	defer release()

	result, err := m.client.ImportWithID(runCtx, m.cfg.BeetsPath(path), source, id, false)
	if err != nil {
		return nil, err
	}

	parsed := beets.ParseDryRun(result.Combined())
	if parsed.Outcome != beets.OutcomeMatches || len(parsed.Candidates) == 0 {
		if err := sess.AwaitInput(session.PendingNone); err != nil {
			return nil, err
		}
		if err := m.store.Save(ctx, sess); err != nil {
			return nil, err
		}
		return &Outcome{Session: sess, DryRun: &parsed}, nil
	}

	candidate := parsed.Candidates[0]
	if candidate.ReleaseID == "" {
		candidate.ReleaseID = strings.TrimSpace(id)
		candidate.Source = source
	}
	sess.SetCandidates([]beets.Candidate{candidate})
	if err := sess.Select(0); err != nil {
		return nil, err
	}
	if err := sess.Transition(session.StepPreviewing); err != nil {
		return nil, err
	}
	if err := m.store.Save(ctx, sess); err != nil {
		return nil, err
	}
	return &Outcome{Session: sess, DryRun: &parsed, Diffs: m.selectedDiffs(sess)}, nil
}

// Confirm applies the previewed or single match. The session moves to the
// confirmed step for the duration of the invocation, then settles at
// completed or failed depending on what beet reports.
func (m *Manager) Confirm(ctx context.Context, name string) (*Outcome, error) {
	path, err := m.targetPath(name)
	if err != nil {
		return nil, err
	}
	sess, err := m.store.Get(ctx, name)
	if err != nil {
		return nil, err
	}
	if sess.Step != session.StepPreviewing && sess.Step != session.StepSingleMatch {
		return nil, fmt.Errorf("%w: confirm at %s", session.ErrInvalidTransition, sess.Step)
	}

	selected := sess.Selected()
	fromList := len(sess.Candidates) > 1

	return m.apply(ctx, sess, func(runCtx context.Context) (beets.Result, error) {
		beetsPath := m.cfg.BeetsPath(path)
		switch {
		case selected != nil && selected.ReleaseID != "":
			return m.client.ImportWithID(runCtx, beetsPath, selected.Source, selected.ReleaseID, true)
		case fromList && sess.SelectedIndex >= 0:
			return m.client.ImportSelected(runCtx, beetsPath, sess.SelectedIndex+1)
		default:
			return m.client.ImportApply(runCtx, beetsPath)
		}
	})
}

// ImportAsIs imports the target keeping its current tags.
func (m *Manager) ImportAsIs(ctx context.Context, name string) (*Outcome, error) {
	path, err := m.targetPath(name)
	if err != nil {
		return nil, err
	}
	sess, err := m.store.Get(ctx, name)
	if err != nil {
		return nil, err
	}
	if sess.Step.Terminal() || sess.Step == session.StepConfirmed || sess.Step == session.StepListing {
		return nil, fmt.Errorf("%w: import as-is at %s", session.ErrInvalidTransition, sess.Step)
	}

	return m.apply(ctx, sess, func(runCtx context.Context) (beets.Result, error) {
		return m.client.ImportAsIs(runCtx, m.cfg.BeetsPath(path))
	})
}

// apply runs a mutating import and settles the session. Unlike evaluations,
// errors here mark the session failed: once beet may have touched the
// library the state cannot claim otherwise.
func (m *Manager) apply(ctx context.Context, sess *session.Session, invoke func(context.Context) (beets.Result, error)) (*Outcome, error) {
	runCtx, release, err := m.acquire(ctx, sess.TargetID)
	if err != nil {
		return nil, err
	}
	defer release()

	if err := sess.Transition(session.StepConfirmed); err != nil {
		return nil, err
	}
	if err := m.store.Save(ctx, sess); err != nil {
		return nil, err
	}

	result, invokeErr := invoke(runCtx)
	if invokeErr != nil {
		if failErr := m.settle(ctx, sess, session.StepFailed); failErr != nil {
			return nil, errors.Join(invokeErr, failErr)
		}
		return &Outcome{Session: sess}, invokeErr
	}

	outcome := beets.ParseImportResult(result.Combined(), result.ExitCode)
	next := session.StepFailed
	if outcome.Success || outcome.Duplicate {
		next = session.StepCompleted
	}
	if err := m.settle(ctx, sess, next); err != nil {
		return nil, err
	}

	m.logger.Info("import finished",
		slog.String(logging.FieldTarget, sess.TargetID),
		slog.String(logging.FieldStep, string(sess.Step)),
		slog.Bool("duplicate", outcome.Duplicate))
	return &Outcome{Session: sess, Import: &outcome}, nil
}

func (m *Manager) settle(ctx context.Context, sess *session.Session, step session.Step) error {
	if err := sess.Transition(step); err != nil {
		return err
	}
	return m.store.Save(ctx, sess)
}

// Skip moves the target into the skipped folder and closes the session. A
// name collision gets a numeric suffix instead of clobbering.
func (m *Manager) Skip(ctx context.Context, name string) (*session.Session, error) {
	path, err := m.targetPath(name)
	if err != nil {
		return nil, err
	}
	if m.Busy(name) {
		return nil, fmt.Errorf("%w: %s", ErrBusy, name)
	}

	skippedDir := filepath.Join(m.cfg.Beets.ImportDir, analyzer.SkippedDirName)
	if err := os.MkdirAll(skippedDir, 0o755); err != nil {
		return nil, fmt.Errorf("ensure skipped dir: %w", err)
	}
	dest := filepath.Join(skippedDir, filepath.Base(path))
	for n := 2; ; n++ {
		if _, err := os.Stat(dest); errors.Is(err, os.ErrNotExist) {
			break
		}
		dest = filepath.Join(skippedDir, fmt.Sprintf("%s (%d)", filepath.Base(path), n))
	}
	if err := os.Rename(path, dest); err != nil {
		return nil, fmt.Errorf("move to skipped: %w", err)
	}

	sess, err := m.store.Get(ctx, name)
	if errors.Is(err, session.ErrNotFound) {
		sess = session.New(name, filepath.Base(path))
	} else if err != nil {
		return nil, err
	}
	if !sess.Step.Terminal() {
		if err := sess.Transition(session.StepSkipped); err != nil {
			return nil, err
		}
	}
	if err := m.store.Save(ctx, sess); err != nil {
		return nil, err
	}
	m.logger.Info("target skipped",
		slog.String(logging.FieldTarget, name),
		slog.String("dest", dest))
	return sess, nil
}

// Cancel aborts any in-flight invocation for the target and closes the
// session.
func (m *Manager) Cancel(ctx context.Context, name string) (*session.Session, error) {
	m.mu.Lock()
	if cancel, exists := m.busy[name]; exists {
		cancel()
	}
	m.mu.Unlock()

	sess, err := m.store.Get(ctx, name)
	if err != nil {
		return nil, err
	}
	if !sess.Step.Terminal() {
		if err := sess.Transition(session.StepCancelled); err != nil {
			return nil, err
		}
		if err := m.store.Save(ctx, sess); err != nil {
			return nil, err
		}
	}
	return sess, nil
}

// Delete removes the target directory. The path must resolve inside the
// import root; the root itself is never deletable.
func (m *Manager) Delete(ctx context.Context, name string) error {
	path, err := m.targetPath(name)
	if err != nil {
		return err
	}
	if m.Busy(name) {
		return fmt.Errorf("%w: %s", ErrBusy, name)
	}
	if err := os.RemoveAll(path); err != nil {
		return fmt.Errorf("delete target: %w", err)
	}
	if _, err := m.store.Delete(ctx, name); err != nil {
		return err
	}
	m.logger.Info("target deleted", slog.String(logging.FieldTarget, name))
	return nil
}

func (m *Manager) selectedDiffs(sess *session.Session) []diff.FieldDiff {
	selected := sess.Selected()
	if selected == nil {
		return nil
	}
	diffs := make([]diff.FieldDiff, 0, len(selected.Changes)+len(selected.Tracks))
	for _, change := range selected.Changes {
		diffs = append(diffs, diff.Build(change.Field, change.Old, change.New, m.style))
	}
	for _, track := range selected.Tracks {
		diffs = append(diffs, diff.BuildTrack(track.Index, track.OldTitle, track.NewTitle, track.OldTime, track.NewTime, m.style))
	}
	return diffs
}
