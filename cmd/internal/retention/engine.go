package retention

import (
	"errors"
	"fmt"

	"github.com/metal-stack/backup-rotator/pkg/constants"
)

// GapReference selects which backup of the finer tier is compared against the
// latest backup of the coarser tier when deciding about a promotion
type GapReference string

const (
	// GapReferenceSuccessor compares against the oldest backup left in the finer tier after removing the candidate
	GapReferenceSuccessor GapReference = "successor"
	// GapReferenceCandidate compares against the removed candidate itself
	GapReferenceCandidate GapReference = "candidate"
)

// Policy configures the rotation engine
type Policy struct {
	DailyCapacity   int
	WeeklyCapacity  int
	MonthlyCapacity int
	// WeeklyGapDays is the minimum distance in days between the latest weekly backup and
	// the reference daily backup for a daily backup to be promoted
	WeeklyGapDays int
	// MonthlyGapDays is the same as WeeklyGapDays for weekly to monthly promotions
	MonthlyGapDays int
	GapReference   GapReference
}

// DefaultPolicy returns the policy with default capacities and gaps
func DefaultPolicy() Policy {
	return Policy{
		DailyCapacity:   constants.DefaultDailyBackups,
		WeeklyCapacity:  constants.DefaultWeeklyBackups,
		MonthlyCapacity: constants.DefaultMonthlyBackups,
		WeeklyGapDays:   constants.DefaultWeeklyGapDays,
		MonthlyGapDays:  constants.DefaultMonthlyGapDays,
		GapReference:    GapReferenceSuccessor,
	}
}

func (p *Policy) validate() error {
	var errs []error
	for _, c := range []struct {
		name  string
		value int
	}{
		{name: "daily", value: p.DailyCapacity},
		{name: "weekly", value: p.WeeklyCapacity},
		{name: "monthly", value: p.MonthlyCapacity},
	} {
		if c.value < 1 {
			errs = append(errs, fmt.Errorf("%s capacity must be at least 1, got %d", c.name, c.value))
		}
	}
	if p.WeeklyGapDays < 0 {
		errs = append(errs, fmt.Errorf("weekly gap must not be negative, got %d", p.WeeklyGapDays))
	}
	if p.MonthlyGapDays < 0 {
		errs = append(errs, fmt.Errorf("monthly gap must not be negative, got %d", p.MonthlyGapDays))
	}
	switch p.GapReference {
	case GapReferenceSuccessor, GapReferenceCandidate:
	default:
		errs = append(errs, fmt.Errorf("unsupported gap reference: %q", p.GapReference))
	}
	return errors.Join(errs...)
}

// Engine decides which backups are promoted to a coarser tier and which are deleted.
// It does no I/O, the resulting actions are applied by the caller.
type Engine struct {
	policy Policy
}

// New returns a rotation engine for the given policy
func New(policy Policy) (*Engine, error) {
	if policy.GapReference == "" {
		policy.GapReference = GapReferenceSuccessor
	}
	if err := policy.validate(); err != nil {
		return nil, fmt.Errorf("invalid retention policy: %w", err)
	}
	return &Engine{policy: policy}, nil
}

// Policy returns the policy of the engine
func (e *Engine) Policy() Policy {
	return e.policy
}

func (e *Engine) capacity(t Tier) int {
	switch t {
	case Daily:
		return e.policy.DailyCapacity
	case Weekly:
		return e.policy.WeeklyCapacity
	default:
		return e.policy.MonthlyCapacity
	}
}

// gapDays returns the promotion gap from tier t into the next coarser tier
func (e *Engine) gapDays(t Tier) int {
	if t == Daily {
		return e.policy.WeeklyGapDays
	}
	return e.policy.MonthlyGapDays
}

// Rotate appends newDaily to the daily tier and resolves overflowing tiers.
// newDaily must be newer than the latest backup of every tier.
// The given state is not modified. Actions are ordered from fine to coarse tiers.
func (e *Engine) Rotate(state *State, newDaily Identifier) (*State, []Action, error) {
	// promotions append to coarser tiers, so newDaily must be newer than every retained backup
	for _, t := range Tiers {
		if latest, ok := state.Latest(t); ok && !newDaily.After(latest) {
			return nil, nil, OutOfOrderBackupError{New: newDaily, Latest: latest}
		}
	}

	next := state.Clone()
	next.push(Daily, newDaily)

	var actions []Action
	actions = append(actions, e.resolve(next, Daily, Weekly)...)
	actions = append(actions, e.resolve(next, Weekly, Monthly)...)
	actions = append(actions, e.trim(next, Monthly)...)

	return next, actions, nil
}

// resolve pops the oldest backups of tier from until it fits its capacity,
// promoting each into tier to when the gap test passes and deleting it otherwise
func (e *Engine) resolve(s *State, from, to Tier) []Action {
	var actions []Action
	for len(s.Tier(from)) > e.capacity(from) {
		candidate := s.popOldest(from)

		reference := candidate
		if e.policy.GapReference == GapReferenceSuccessor {
			reference = s.Tier(from)[0]
		}

		latest, ok := s.Latest(to)
		if !ok || e.gapReached(latest, reference, e.gapDays(from)) {
			s.push(to, candidate)
			actions = append(actions, Action{Kind: Promote, ID: candidate, From: from, To: to})
			continue
		}

		actions = append(actions, Action{Kind: Delete, ID: candidate, From: from})
	}
	return actions
}

// trim deletes the oldest backups of the coarsest tier until it fits its capacity
func (e *Engine) trim(s *State, t Tier) []Action {
	var actions []Action
	for len(s.Tier(t)) > e.capacity(t) {
		actions = append(actions, Action{Kind: Delete, ID: s.popOldest(t), From: t})
	}
	return actions
}

// gapReached reports whether latest lies at least days calendar days before reference
func (e *Engine) gapReached(latest, reference Identifier, days int) bool {
	return !latest.date().After(reference.date().AddDate(0, 0, -days))
}

// Plan returns the actions a rotation with newDaily would perform without returning the rotated state
func (e *Engine) Plan(state *State, newDaily Identifier) ([]Action, error) {
	_, actions, err := e.Rotate(state, newDaily)
	return actions, err
}
