// Package scenario holds named snapshots of parameters, results and engine
// state.
package scenario

import (
	"fmt"
	"time"

	"github.com/leapstack-labs/leapcalc/pkg/core"
	"github.com/leapstack-labs/leapcalc/pkg/units"
	"github.com/mitchellh/copystructure"
)

// Names of the built-in scenario slots.
const (
	// Default holds the engine's validated default parameters. Read-only.
	Default = "* Default"
	// Current is the working copy edited by the user.
	Current = "* Active"
	// Converged holds the last scenario that was calculated successfully.
	Converged = "* Converged"
)

// IsBuiltin reports whether name is one of the built-in slots.
func IsBuiltin(name string) bool {
	return name == Default || name == Current || name == Converged
}

// Scenario is a snapshot of parameters and the results they produced.
// Results are either empty or consistent with Parameters: every parameter
// change clears them.
type Scenario struct {
	Parameters *core.Structure
	Results    *core.Structure
	// InternalState is opaque engine state made of JSON-compatible values.
	InternalState any
	// Modified is the UTC time of the last parameter change.
	Modified time.Time
}

// New returns a scenario without results, modified now.
func New(params *core.Structure) *Scenario {
	if params == nil {
		params = core.NewStructure()
	}
	return &Scenario{
		Parameters: params,
		Results:    core.NewStructure(),
		Modified:   now(),
	}
}

func now() time.Time {
	return time.Now().UTC().Round(0)
}

// SetParam writes one parameter, clears the results and bumps Modified.
// Modified strictly increases even when the clock does not advance.
func (s *Scenario) SetParam(path core.Path, value units.Quantity) error {
	if err := s.Parameters.Set(path, value); err != nil {
		return err
	}
	s.Results = core.NewStructure()
	s.touch()
	return nil
}

func (s *Scenario) touch() {
	t := now()
	if !t.After(s.Modified) {
		t = s.Modified.Add(time.Nanosecond)
	}
	s.Modified = t
}

// HasResults reports whether the scenario carries results.
func (s *Scenario) HasResults() bool {
	return s.Results.Len() > 0
}

// LocalModified returns Modified in the local time zone.
func (s *Scenario) LocalModified() time.Time {
	return s.Modified.Local()
}

// Clone returns a deep copy; mutating the copy never affects s.
func (s *Scenario) Clone() (*Scenario, error) {
	var state any
	if s.InternalState != nil {
		var err error
		if state, err = copystructure.Copy(s.InternalState); err != nil {
			return nil, fmt.Errorf("copy internal state: %w", err)
		}
	}
	return &Scenario{
		Parameters:    s.Parameters.Clone(),
		Results:       s.Results.Clone(),
		InternalState: state,
		Modified:      s.Modified,
	}, nil
}

// Data is the serialized form of a Scenario.
type Data struct {
	Parameters *core.JSONTree `json:"parameters"`
	State      any            `json:"state"`
	Results    *core.JSONTree `json:"results"`
	Modified   string         `json:"modified"`
}

// Serialize converts the scenario into its persisted form.
func (s *Scenario) Serialize() Data {
	return Data{
		Parameters: s.Parameters.ToJSONable(),
		State:      s.InternalState,
		Results:    s.Results.ToJSONable(),
		Modified:   s.Modified.UTC().Format(time.RFC3339Nano),
	}
}

// Deserialize rebuilds a scenario from Serialize output.
func Deserialize(reg *units.Registry, d Data) (*Scenario, error) {
	params, err := core.FromJSONable(reg, d.Parameters)
	if err != nil {
		return nil, fmt.Errorf("parameters: %w", err)
	}
	results, err := core.FromJSONable(reg, d.Results)
	if err != nil {
		return nil, fmt.Errorf("results: %w", err)
	}
	modified, err := time.Parse(time.RFC3339Nano, d.Modified)
	if err != nil {
		return nil, fmt.Errorf("modified: %w", err)
	}
	return &Scenario{
		Parameters:    params,
		Results:       results,
		InternalState: d.State,
		Modified:      modified.UTC(),
	}, nil
}
