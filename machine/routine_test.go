package machine_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JoshAyersSBT/Fabmo-Desktop-ATC-APP/machine"
	"github.com/JoshAyersSBT/Fabmo-Desktop-ATC-APP/machine/sim"
)

type busyAdapter struct{ ran int }

func (b *busyAdapter) RunSBP(ctx context.Context, code string) error { b.ran++; return nil }
func (b *busyAdapter) Status(ctx context.Context) (machine.State, error) {
	return machine.State{Status: "running"}, nil
}

func TestPrograms(t *testing.T) {
	assert.Equal(t, "&Tool=3\nC71\n", machine.ToolChangeProgram(3).String())
	assert.Equal(t, "&Tool=8\nC72\n", machine.MeasureProgram(8).String())
	assert.Equal(t, "C72\n", machine.AutoMeasureProgram().String())
}

func TestParseRoutine(t *testing.T) {
	r, err := machine.ParseRoutine("plate-offset")
	require.NoError(t, err)
	assert.Equal(t, "C73\n", r.Program().String())

	_, err = machine.ParseRoutine("explode")
	assert.Error(t, err)
}

func TestMachine_RunRoutine(t *testing.T) {
	ctx := context.Background()
	s := sim.New()
	m := machine.NewMachine(s)

	for _, r := range []machine.Routine{
		machine.RoutineZero,
		machine.RoutineHome,
		machine.RoutinePlateOffset,
		machine.RoutineCalibrate,
	} {
		require.NoError(t, m.RunRoutine(ctx, r))
	}
	assert.Equal(t, []string{"C2\n", "C3\n", "C73\n", "C74\n"}, s.Programs())
}

func TestMachine_RunRoutine_NotIdle(t *testing.T) {
	b := &busyAdapter{}
	m := machine.NewMachine(b)

	err := m.RunRoutine(context.Background(), machine.RoutineHome)
	assert.ErrorIs(t, err, machine.ErrNotIdle)
	assert.Equal(t, 0, b.ran)
}
