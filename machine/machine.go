package machine

import (
	"context"
	"errors"
	"strings"

	"github.com/JoshAyersSBT/Fabmo-Desktop-ATC-APP/coord"
	"github.com/JoshAyersSBT/Fabmo-Desktop-ATC-APP/sbp"
)

// StatusIdle is the state reported by a machine that can accept a job.
const StatusIdle = "idle"

// ErrNotIdle is returned when a routine is requested while the machine is busy.
var ErrNotIdle = errors.New("machine not idle")

// Machine wraps an Adapter with the fixed ATC routines.
type Machine struct {
	Adapter
}

// State is a machine status report.
type State struct {
	Status string      `json:"status"`
	Pos    coord.Point `json:"pos"`
	File   string      `json:"file,omitempty"`
}

// Idle reports whether the machine is waiting for work.
func (s State) Idle() bool { return strings.EqualFold(s.Status, StatusIdle) }

// NewMachine returns a Machine using a.
func NewMachine(a Adapter) *Machine {
	return &Machine{Adapter: a}
}

// Run sends a program to the machine and waits for it to finish.
func (m *Machine) Run(ctx context.Context, p sbp.Program) error {
	if len(p) == 0 {
		return nil
	}
	return m.RunSBP(ctx, p.String())
}

func (m *Machine) checkIdle(ctx context.Context) error {
	st, err := m.Status(ctx)
	if err != nil {
		return err
	}
	if !st.Idle() {
		return ErrNotIdle
	}
	return nil
}
