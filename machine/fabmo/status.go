package fabmo

import (
	"github.com/JoshAyersSBT/Fabmo-Desktop-ATC-APP/coord"
	"github.com/JoshAyersSBT/Fabmo-Desktop-ATC-APP/machine"
	"github.com/JoshAyersSBT/Fabmo-Desktop-ATC-APP/opensbp"
)

// status is the engine status report. Positions may arrive as strings.
type status struct {
	State       string         `json:"state"`
	PosX        opensbp.Number `json:"posx"`
	PosY        opensbp.Number `json:"posy"`
	PosZ        opensbp.Number `json:"posz"`
	CurrentFile *struct {
		Name string `json:"name"`
	} `json:"current_file"`
}

func (s status) state() machine.State {
	st := machine.State{
		Status: s.State,
		Pos: coord.Point{
			X: float64(s.PosX),
			Y: float64(s.PosY),
			Z: float64(s.PosZ),
		},
	}
	if s.CurrentFile != nil {
		st.File = s.CurrentFile.Name
	}
	return st
}
