// Package discovery walks the SFS number space forward, resolving each number
// against the register and queueing the ones whose base act text lags behind.
package discovery

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/coolbeans/lagen/pkg/sfs"
	"github.com/coolbeans/lagen/pkg/storage"
)

// State is what a scan needs to carry over between runs. It is passed into
// Scanner.Run and a new value is returned; nothing is kept in the Scanner.
type State struct {
	// NextIdentifier is where the forward scan starts. The zero value means
	// the first number of the current year.
	NextIdentifier sfs.Identifier
	// Revisit holds identifiers whose base act text was behind on an earlier
	// run, in the order they were queued.
	Revisit []sfs.Identifier
	// LastRunID identifies the run that produced this state.
	LastRunID string
	// UpdatedAt is when the state was produced.
	UpdatedAt time.Time
}

// stateDocument is the YAML form of State.
type stateDocument struct {
	NextSFSNr string    `yaml:"next_sfsnr,omitempty"`
	Revisit   []string  `yaml:"revisit,omitempty"`
	LastRunID string    `yaml:"last_run_id,omitempty"`
	UpdatedAt time.Time `yaml:"updated_at,omitempty"`
}

// Enqueue appends identifier to the revisit queue unless it is already there.
func (state *State) Enqueue(identifier sfs.Identifier) bool {
	for _, queued := range state.Revisit {
		if queued == identifier {
			return false
		}
	}
	state.Revisit = append(state.Revisit, identifier)
	return true
}

// SeedFrom points the forward scan of a fresh state just past the highest
// canonical identifier in known, usually the acts that already have a stored
// text. A state that has a cursor is returned unchanged.
func (state State) SeedFrom(known []sfs.Identifier) State {
	if !state.NextIdentifier.IsZero() {
		return state
	}
	var highest sfs.Identifier
	for _, identifier := range known {
		if identifier.IsCanonical() && (highest.IsZero() || highest.Before(identifier)) {
			highest = identifier
		}
	}
	if !highest.IsZero() {
		state.NextIdentifier = highest.Next()
	}
	return state
}

// SaveState writes state to statePath as YAML. The file is replaced
// atomically so an interrupted write never leaves a partial state behind.
func SaveState(statePath string, state State) error {
	document := stateDocument{
		LastRunID: state.LastRunID,
		UpdatedAt: state.UpdatedAt,
	}
	if !state.NextIdentifier.IsZero() {
		document.NextSFSNr = state.NextIdentifier.String()
	}
	for _, identifier := range state.Revisit {
		document.Revisit = append(document.Revisit, identifier.String())
	}

	stateYAML, err := yaml.Marshal(&document)
	if err != nil {
		return fmt.Errorf("failed to marshal scan state: %w", err)
	}
	if err := storage.WriteFileAtomic(statePath, stateYAML); err != nil {
		return fmt.Errorf("failed to write scan state to %s: %w", statePath, err)
	}
	return nil
}

// LoadState reads a scan state from statePath. A missing file is a fresh
// state, not an error.
func LoadState(statePath string) (State, error) {
	stateYAML, err := os.ReadFile(statePath)
	if errors.Is(err, fs.ErrNotExist) {
		return State{}, nil
	}
	if err != nil {
		return State{}, fmt.Errorf("failed to read scan state from %s: %w", statePath, err)
	}

	var document stateDocument
	if err := yaml.Unmarshal(stateYAML, &document); err != nil {
		return State{}, fmt.Errorf("failed to parse scan state: %w", err)
	}

	state := State{LastRunID: document.LastRunID, UpdatedAt: document.UpdatedAt}
	if document.NextSFSNr != "" {
		if state.NextIdentifier, err = sfs.Parse(document.NextSFSNr); err != nil {
			return State{}, fmt.Errorf("invalid next_sfsnr: %w", err)
		}
	}
	for _, text := range document.Revisit {
		identifier, err := sfs.Parse(text)
		if err != nil {
			return State{}, fmt.Errorf("invalid revisit entry: %w", err)
		}
		state.Enqueue(identifier)
	}
	return state, nil
}
