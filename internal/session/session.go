package session

import (
	"fmt"
	"time"

	"beetbot/internal/beets"
)

// Step is the position of a session in the import decision tree.
type Step string

const (
	// StepListing is the transient state while candidates are evaluated.
	StepListing Step = "listing"
	// StepNoMatch offers manual ids, as-is import, or skip.
	StepNoMatch Step = "no_match"
	// StepSingleMatch offers accepting or rejecting the one candidate.
	StepSingleMatch Step = "single_match"
	// StepMultiMatch offers picking one of several candidates.
	StepMultiMatch Step = "multi_match"
	// StepPreviewing shows one candidate (or manual-id result) for approval.
	StepPreviewing Step = "previewing"
	// StepConfirmed means the operator approved and the import is running.
	StepConfirmed Step = "confirmed"

	StepCompleted Step = "completed"
	StepFailed    Step = "failed"
	StepCancelled Step = "cancelled"
	StepSkipped   Step = "skipped"
)

var allSteps = map[Step]struct{}{
	StepListing:     {},
	StepNoMatch:     {},
	StepSingleMatch: {},
	StepMultiMatch:  {},
	StepPreviewing:  {},
	StepConfirmed:   {},
	StepCompleted:   {},
	StepFailed:      {},
	StepCancelled:   {},
	StepSkipped:     {},
}

// ValidStep reports whether value names a known step.
func ValidStep(value Step) bool {
	_, ok := allSteps[value]
	return ok
}

// Terminal reports whether a step ends the session.
func (s Step) Terminal() bool {
	switch s {
	case StepCompleted, StepFailed, StepCancelled, StepSkipped:
		return true
	default:
		return false
	}
}

// flowSteps are the states presenting operator choices after an evaluation.
var flowSteps = []Step{StepNoMatch, StepSingleMatch, StepMultiMatch}

// allowedTransitions is the full transition table. Cancel and skip are legal
// from every non-terminal state and are appended below.
var allowedTransitions = func() map[Step]map[Step]struct{} {
	table := map[Step][]Step{
		StepListing:     {StepNoMatch, StepSingleMatch, StepMultiMatch, StepCompleted, StepFailed},
		StepNoMatch:     {StepPreviewing, StepConfirmed, StepListing},
		StepSingleMatch: {StepPreviewing, StepConfirmed, StepNoMatch, StepListing},
		StepMultiMatch:  {StepPreviewing, StepConfirmed, StepNoMatch, StepListing},
		StepPreviewing:  {StepConfirmed, StepNoMatch, StepSingleMatch, StepMultiMatch, StepListing},
		StepConfirmed:   {StepCompleted, StepFailed},
	}
	compiled := make(map[Step]map[Step]struct{}, len(table))
	for from, targets := range table {
		set := make(map[Step]struct{}, len(targets)+2)
		for _, to := range targets {
			set[to] = struct{}{}
		}
		if !from.Terminal() {
			set[StepCancelled] = struct{}{}
			set[StepSkipped] = struct{}{}
		}
		compiled[from] = set
	}
	return compiled
}()

// PendingInput describes what the next free-text message should satisfy.
type PendingInput string

const (
	PendingNone          PendingInput = "none"
	PendingMusicBrainzID PendingInput = "musicbrainz_id"
	PendingDiscogsID     PendingInput = "discogs_id"
	PendingConfirmAsIs   PendingInput = "confirm_as_is"
)

// Session is the persisted per-target import state.
type Session struct {
	TargetID string `json:"target_id"`
	// Name is the display name (directory base name).
	Name string `json:"name"`
	Step Step   `json:"step"`
	// Candidates holds the most recent evaluation result.
	Candidates []beets.Candidate `json:"candidates,omitempty"`
	// SelectedIndex points into Candidates; -1 means none selected.
	SelectedIndex int          `json:"selected_index"`
	Pending       PendingInput `json:"pending"`
	// Revision increases on every applied change for idempotent resume.
	Revision  int64     `json:"revision"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// New creates a session at the listing step.
func New(targetID, name string) *Session {
	now := time.Now().UTC()
	return &Session{
		TargetID:      targetID,
		Name:          name,
		Step:          StepListing,
		SelectedIndex: -1,
		Pending:       PendingNone,
		Revision:      1,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

// CanTransition reports whether moving from the current step to the given
// step is legal.
func (s *Session) CanTransition(to Step) bool {
	targets, ok := allowedTransitions[s.Step]
	if !ok {
		return false
	}
	_, ok = targets[to]
	return ok
}

// Transition moves the session to a new step. The pending-input flag is
// re-derived from the destination (no destination expects text by itself),
// and the revision is bumped. On an illegal move the session is unchanged
// and ErrInvalidTransition is returned.
func (s *Session) Transition(to Step) error {
	if !ValidStep(to) {
		return fmt.Errorf("%w: unknown step %q", ErrInvalidTransition, to)
	}
	if !s.CanTransition(to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, s.Step, to)
	}
	s.Step = to
	s.Pending = PendingNone
	if to == StepListing {
		s.Candidates = nil
		s.SelectedIndex = -1
	}
	s.touch()
	return nil
}

// SetCandidates records an evaluation result; legal only in the listing and
// previewing steps where an evaluation has just run.
func (s *Session) SetCandidates(candidates []beets.Candidate) {
	s.Candidates = candidates
	s.SelectedIndex = -1
	s.touch()
}

// Select marks the chosen candidate (0-based). It does not transition.
func (s *Session) Select(index int) error {
	if index < 0 || index >= len(s.Candidates) {
		return fmt.Errorf("%w: candidate %d of %d", ErrInvalidTransition, index, len(s.Candidates))
	}
	s.SelectedIndex = index
	s.touch()
	return nil
}

// Selected returns the chosen candidate, or nil.
func (s *Session) Selected() *beets.Candidate {
	if s.SelectedIndex < 0 || s.SelectedIndex >= len(s.Candidates) {
		return nil
	}
	return &s.Candidates[s.SelectedIndex]
}

// AwaitInput arms the pending-input flag. Only the flow steps may prompt for
// free text.
func (s *Session) AwaitInput(kind PendingInput) error {
	if kind == PendingNone {
		s.Pending = PendingNone
		s.touch()
		return nil
	}
	for _, step := range flowSteps {
		if s.Step == step {
			s.Pending = kind
			s.touch()
			return nil
		}
	}
	return fmt.Errorf("%w: step %s cannot await input", ErrInvalidTransition, s.Step)
}

func (s *Session) touch() {
	s.Revision++
	s.UpdatedAt = time.Now().UTC()
}
