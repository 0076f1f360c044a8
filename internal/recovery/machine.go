// Package recovery owns the password recovery state and its crash recovery snapshot.
//
// The state moves NORMAL -> RECOVERY_PENDING -> RECOVERY_ACTIVE -> RECOVERY_TERMINATING -> NORMAL.
// Pending may jump straight to terminating when the link turns out to be expired.
// Every transition is written to the key-value store before it is applied in memory.
package recovery

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"

	"github.com/nkiryanov/newsdesk/internal/apperrors"
	"github.com/nkiryanov/newsdesk/internal/kv"
	"github.com/nkiryanov/newsdesk/internal/logger"
	"github.com/nkiryanov/newsdesk/internal/models"
)

type State string

const (
	StateNormal      State = "NORMAL"
	StatePending     State = "RECOVERY_PENDING"
	StateActive      State = "RECOVERY_ACTIVE"
	StateTerminating State = "RECOVERY_TERMINATING"
)

// Keys of the persisted snapshot
const (
	KeyFlag        = "is_recovery_mode"
	KeyState       = "recovery_state"
	KeyCredentials = "recovery_credentials"
)

var ErrTransitionRejected = errors.New("recovery transition rejected")

var transitions = map[State][]State{
	StateNormal:      {StatePending},
	StatePending:     {StateActive, StateTerminating},
	StateActive:      {StateTerminating},
	StateTerminating: {StateNormal},
}

// Machine is not safe for concurrent use: it is owned by one goroutine
type Machine struct {
	store  kv.Store
	sealer *Sealer
	logger logger.Logger

	state State
}

func NewMachine(store kv.Store, sealer *Sealer, l logger.Logger) *Machine {
	return &Machine{
		store:  store,
		sealer: sealer,
		logger: l,
		state:  StateNormal,
	}
}

func (m *Machine) State() State {
	return m.state
}

// Recovering reports whether normal "signed in, go home" navigation must be suppressed
func (m *Machine) Recovering() bool {
	return m.state != StateNormal
}

// Load reads the snapshot left by previous run
// Anything but NORMAL means the process died mid-recovery: stale is true and caller has to tear it down
func (m *Machine) Load(ctx context.Context) (stale bool, err error) {
	state := StateNormal

	raw, err := m.store.Get(ctx, KeyState)
	switch {
	case err == nil:
		state = State(raw)
	case errors.Is(err, apperrors.ErrKeyNotFound):
		// Older snapshots have only the flag
		if _, err := m.store.Get(ctx, KeyFlag); err == nil {
			state = StatePending
		}
	default:
		return false, fmt.Errorf("cant read recovery state: %w", err)
	}

	if _, ok := transitions[state]; !ok {
		m.logger.Warn("unknown persisted recovery state", "state", raw)
		state = StatePending
	}

	m.state = state
	return state != StateNormal, nil
}

// Begin recovery with credentials from the link
// Returns ErrTransitionRejected when recovery is already in progress
func (m *Machine) Begin(ctx context.Context, creds models.TokenPair) error {
	if err := m.guard(StatePending); err != nil {
		return err
	}

	raw, err := json.Marshal(creds)
	if err != nil {
		return fmt.Errorf("cant encode credentials: %w", err)
	}
	sealed, err := m.sealer.Seal(raw)
	if err != nil {
		return err
	}

	if err := m.store.Set(ctx, KeyCredentials, sealed); err != nil {
		return fmt.Errorf("cant persist credentials: %w", err)
	}

	return m.apply(ctx, StatePending)
}

// Credentials persisted by Begin. Available only while pending
func (m *Machine) Credentials(ctx context.Context) (models.TokenPair, error) {
	var creds models.TokenPair

	if m.state != StatePending {
		return creds, fmt.Errorf("%w: credentials are available only in %s, state is %s", ErrTransitionRejected, StatePending, m.state)
	}

	sealed, err := m.store.Get(ctx, KeyCredentials)
	if err != nil {
		return creds, fmt.Errorf("cant read credentials: %w", err)
	}

	raw, err := m.sealer.Open(sealed)
	if err != nil {
		return creds, err
	}

	if err := json.Unmarshal(raw, &creds); err != nil {
		return creds, fmt.Errorf("cant decode credentials: %w", err)
	}
	return creds, nil
}

// Activate after temporary session established. Credentials are consumed
func (m *Machine) Activate(ctx context.Context) error {
	if err := m.guard(StateActive); err != nil {
		return err
	}
	if err := m.removeCredentials(ctx); err != nil {
		return err
	}
	return m.apply(ctx, StateActive)
}

// Terminate on success, cancellation or expired link
func (m *Machine) Terminate(ctx context.Context) error {
	if err := m.guard(StateTerminating); err != nil {
		return err
	}
	if err := m.removeCredentials(ctx); err != nil {
		return err
	}
	return m.apply(ctx, StateTerminating)
}

// Finish after temporary session signed out
func (m *Machine) Finish(ctx context.Context) error {
	if err := m.guard(StateNormal); err != nil {
		return err
	}
	return m.clear(ctx)
}

// Reset to NORMAL from any state: stale snapshot or sign out from outside the flow
func (m *Machine) Reset(ctx context.Context) error {
	return m.clear(ctx)
}

func (m *Machine) guard(to State) error {
	if !slices.Contains(transitions[m.state], to) {
		return fmt.Errorf("%w: %s -> %s", ErrTransitionRejected, m.state, to)
	}
	return nil
}

func (m *Machine) apply(ctx context.Context, to State) error {
	if err := m.store.Set(ctx, KeyFlag, "true"); err != nil {
		return fmt.Errorf("cant persist recovery flag: %w", err)
	}
	if err := m.store.Set(ctx, KeyState, string(to)); err != nil {
		return fmt.Errorf("cant persist recovery state: %w", err)
	}

	m.logger.Debug("recovery transition", "from", m.state, "to", to)
	m.state = to
	return nil
}

func (m *Machine) clear(ctx context.Context) error {
	var errs []error
	for _, key := range []string{KeyCredentials, KeyState, KeyFlag} {
		if err := m.store.Remove(ctx, key); err != nil {
			errs = append(errs, fmt.Errorf("cant remove %s: %w", key, err))
		}
	}

	if m.state != StateNormal {
		m.logger.Debug("recovery transition", "from", m.state, "to", StateNormal)
	}

	// In memory state is NORMAL even if store failed: next Load will see leftovers and tear them down again
	m.state = StateNormal
	return errors.Join(errs...)
}

func (m *Machine) removeCredentials(ctx context.Context) error {
	if err := m.store.Remove(ctx, KeyCredentials); err != nil {
		return fmt.Errorf("cant remove credentials: %w", err)
	}
	return nil
}
