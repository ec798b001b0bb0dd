package machine

import (
	"context"
	"fmt"

	"github.com/JoshAyersSBT/Fabmo-Desktop-ATC-APP/sbp"
)

// Custom cut numbers used by the ATC macros.
const (
	CutZero        = 2
	CutHome        = 3
	CutChangeTool  = 71
	CutMeasureTool = 72
	CutPlateOffset = 73
	CutCalibrate   = 74
)

// Routine is a fixed machine command that does not touch tool records.
type Routine string

// Fixed routines available from the panel.
const (
	RoutineZero        Routine = "zero"
	RoutineHome        Routine = "home"
	RoutineMeasureAll  Routine = "measure-all"
	RoutinePlateOffset Routine = "plate-offset"
	RoutineCalibrate   Routine = "calibrate"
)

var routineCuts = map[Routine]int{
	RoutineZero:        CutZero,
	RoutineHome:        CutHome,
	RoutineMeasureAll:  CutMeasureTool,
	RoutinePlateOffset: CutPlateOffset,
	RoutineCalibrate:   CutCalibrate,
}

// ParseRoutine validates a routine name.
func ParseRoutine(name string) (Routine, error) {
	r := Routine(name)
	if _, ok := routineCuts[r]; !ok {
		return "", fmt.Errorf("unknown routine %q", name)
	}
	return r, nil
}

// Program returns the program for the routine.
func (r Routine) Program() sbp.Program {
	return sbp.Program{sbp.Call(routineCuts[r])}
}

// RunRoutine runs a fixed routine once the machine is idle.
func (m *Machine) RunRoutine(ctx context.Context, r Routine) error {
	if _, ok := routineCuts[r]; !ok {
		return fmt.Errorf("unknown routine %q", r)
	}
	err := m.checkIdle(ctx)
	if err != nil {
		return err
	}
	return m.Run(ctx, r.Program())
}

// ToolChangeProgram selects tool (1-based) and runs the tool change macro.
func ToolChangeProgram(tool int) sbp.Program {
	return sbp.Program{sbp.Assign("Tool", float64(tool)), sbp.Call(CutChangeTool)}
}

// MeasureProgram selects tool (1-based) and runs the measure macro.
func MeasureProgram(tool int) sbp.Program {
	return sbp.Program{sbp.Assign("Tool", float64(tool)), sbp.Call(CutMeasureTool)}
}

// AutoMeasureProgram measures the tool currently in the spindle.
func AutoMeasureProgram() sbp.Program {
	return sbp.Program{sbp.Call(CutMeasureTool)}
}
