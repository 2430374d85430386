// Package lockout throttles passphrase guessing against a database file.
//
// Failed attempts are counted in a small state file next to the database.
// After 5, 10 and 20 consecutive failures further attempts are refused for
// 30 seconds, 5 minutes and 30 minutes respectively. A successful open
// clears the state.
package lockout

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"
)

// StateSuffix is appended to the database path to name the state file.
const StateSuffix = ".lockstate"

// Cooldown thresholds
const (
	Threshold1 = 5
	Threshold2 = 10
	Threshold3 = 20

	Cooldown1 = 30 * time.Second
	Cooldown2 = 5 * time.Minute
	Cooldown3 = 30 * time.Minute
)

// ErrCooldownActive is returned while a cooldown is running.
var ErrCooldownActive = errors.New("lockout: cooldown period active")

// State tracks failed attempts for one database.
type State struct {
	FailedAttempts int       `json:"failed_attempts"`
	LastAttempt    time.Time `json:"last_attempt"`
	CooldownUntil  time.Time `json:"cooldown_until"`
}

// Tracker reads and updates the state file of one database.
type Tracker struct {
	path string
	now  func() time.Time
}

// New returns a tracker for the database at dbPath.
func New(dbPath string) *Tracker {
	return &Tracker{path: dbPath + StateSuffix, now: time.Now}
}

// WithClock replaces the time source.
func (t *Tracker) WithClock(now func() time.Time) *Tracker {
	t.now = now
	return t
}

// Path returns the state file path.
func (t *Tracker) Path() string {
	return t.path
}

// State reads the current state. A missing or corrupted file is an empty
// state.
func (t *Tracker) State() (*State, error) {
	data, err := os.ReadFile(t.path)
	if err != nil {
		if os.IsNotExist(err) {
			return &State{}, nil
		}
		return nil, fmt.Errorf("lockout: failed to read state: %w", err)
	}

	var state State
	if err := json.Unmarshal(data, &state); err != nil {
		return &State{}, nil
	}
	return &state, nil
}

// Check returns ErrCooldownActive and the remaining time while a cooldown
// is running.
func (t *Tracker) Check() (time.Duration, error) {
	state, err := t.State()
	if err != nil {
		return 0, err
	}
	now := t.now()
	if !state.CooldownUntil.IsZero() && now.Before(state.CooldownUntil) {
		return state.CooldownUntil.Sub(now), ErrCooldownActive
	}
	return 0, nil
}

// Fail records a failed attempt and returns the cooldown it triggered, if
// any.
func (t *Tracker) Fail() (time.Duration, error) {
	state, err := t.State()
	if err != nil {
		return 0, err
	}

	now := t.now()
	state.FailedAttempts++
	state.LastAttempt = now

	var cooldown time.Duration
	switch {
	case state.FailedAttempts >= Threshold3:
		cooldown = Cooldown3
	case state.FailedAttempts >= Threshold2:
		cooldown = Cooldown2
	case state.FailedAttempts >= Threshold1:
		cooldown = Cooldown1
	}
	if cooldown > 0 {
		state.CooldownUntil = now.Add(cooldown)
	}

	if err := t.save(state); err != nil {
		return cooldown, err
	}
	return cooldown, nil
}

// Reset removes the state file.
func (t *Tracker) Reset() error {
	err := os.Remove(t.path)
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("lockout: failed to clear state: %w", err)
	}
	return nil
}

func (t *Tracker) save(state *State) error {
	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("lockout: failed to marshal state: %w", err)
	}
	if err := os.WriteFile(t.path, data, 0600); err != nil {
		return fmt.Errorf("lockout: failed to write state: %w", err)
	}
	return nil
}
