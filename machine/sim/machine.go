// Package sim provides an in-memory machine for running the panel without hardware.
package sim

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/JoshAyersSBT/Fabmo-Desktop-ATC-APP/coord"
	"github.com/JoshAyersSBT/Fabmo-Desktop-ATC-APP/machine"
	"github.com/JoshAyersSBT/Fabmo-Desktop-ATC-APP/sbp"
)

// DefaultLength is the bit length reported for tools without a configured length.
const DefaultLength = 2.5

// ErrNoTool is returned when a routine needs a tool and none is selected.
var ErrNoTool = errors.New("no tool selected")

// Machine tracks position, tool selection and the programs it was sent.
type Machine struct {
	mx sync.Mutex

	pos coord.Point
	wco coord.Point

	vars     map[string]string
	assigned int
	loaded   int
	lengths  map[int]float64

	programs []string
}

var _ machine.Adapter = &Machine{}

// New returns an idle machine at the origin with no tool loaded.
func New() *Machine {
	return &Machine{
		vars:    make(map[string]string),
		lengths: make(map[int]float64),
	}
}

// SetLength sets the length reported when tool (1-based) is measured.
func (m *Machine) SetLength(tool int, h float64) {
	m.mx.Lock()
	m.lengths[tool] = h
	m.mx.Unlock()
}

// Loaded returns the tool in the spindle, 0 if none.
func (m *Machine) Loaded() int {
	m.mx.Lock()
	defer m.mx.Unlock()
	return m.loaded
}

// Programs returns every program received, in order.
func (m *Machine) Programs() []string {
	m.mx.Lock()
	defer m.mx.Unlock()
	return append([]string(nil), m.programs...)
}

// RunSBP interprets a program. Programs run to completion immediately.
func (m *Machine) RunSBP(ctx context.Context, code string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	prog, err := sbp.Parse(code)
	if err != nil {
		return err
	}

	m.mx.Lock()
	defer m.mx.Unlock()
	m.programs = append(m.programs, code)
	for _, st := range prog {
		err = m.run(st)
		if err != nil {
			return err
		}
	}
	return nil
}

// Status reports the work position. The machine is always idle between programs.
func (m *Machine) Status(ctx context.Context) (machine.State, error) {
	if err := ctx.Err(); err != nil {
		return machine.State{}, err
	}
	m.mx.Lock()
	defer m.mx.Unlock()
	return machine.State{Status: machine.StatusIdle, Pos: m.pos.Sub(m.wco)}, nil
}

func (m *Machine) length(tool int) float64 {
	if h, ok := m.lengths[tool]; ok {
		return h
	}
	return DefaultLength
}

func (m *Machine) run(st sbp.Statement) error {
	switch st.Kind {
	case sbp.KindAssign:
		name := strings.ToLower(st.Name)
		m.vars[name] = st.Args[0]
		if name == "tool" {
			n, err := strconv.Atoi(st.Args[0])
			if err != nil {
				return fmt.Errorf("invalid tool number %q", st.Args[0])
			}
			m.assigned = n
		}
		return nil
	case sbp.KindCall:
		return m.call(st.Name)
	case sbp.KindCommand:
		return m.move(st)
	}
	return errors.New("unsupported statement: " + st.String())
}

func (m *Machine) call(name string) error {
	switch name {
	case "C2":
		m.wco.Z = m.pos.Z
	case "C3":
		m.pos = coord.Point{}
		m.wco = coord.Point{}
	case "C71":
		if m.assigned <= 0 {
			return ErrNoTool
		}
		m.loaded = m.assigned
	case "C72":
		tool := m.loaded
		if tool == 0 {
			tool = m.assigned
		}
		if tool <= 0 {
			return ErrNoTool
		}
		m.pos.Z = m.wco.Z + m.length(tool)
	case "C73", "C74":
	default:
		return errors.New("unsupported routine: " + name)
	}
	return nil
}

func (m *Machine) move(st sbp.Statement) error {
	if len(st.Name) != 2 || (st.Name[0] != 'M' && st.Name[0] != 'J') || len(st.Args) != 1 {
		return errors.New("unsupported command: " + st.String())
	}
	v, err := strconv.ParseFloat(st.Args[0], 64)
	if err != nil {
		return err
	}
	switch st.Name[1] {
	case 'X':
		m.pos.X = v + m.wco.X
	case 'Y':
		m.pos.Y = v + m.wco.Y
	case 'Z':
		m.pos.Z = v + m.wco.Z
	default:
		return errors.New("unsupported axis: " + st.String())
	}
	return nil
}
