package atc

import "strconv"

// SlotView is a tool as shown to the operator.
type SlotView struct {
	Tool

	// Index is the 0-based position within the bar or the off-bar list.
	Index int `json:"index"`

	// Number is the external tool number: slots first, then off-bar tools.
	Number int    `json:"number"`
	Label  string `json:"label"`
	OffBar bool   `json:"offBar"`
	Loaded bool   `json:"loaded"`
}

// Snapshot is a read-only copy of the registry for rendering.
type Snapshot struct {
	SlotCount   int        `json:"slotCount"`
	Slots       []SlotView `json:"slots"`
	OffBar      []SlotView `json:"offBar"`
	Current     *int       `json:"current"` // 1-based, nil when nothing is loaded
	Description string     `json:"description"`
	Bits        []string   `json:"bits"`
	Sizes       []string   `json:"sizes"`
}

// Snapshot returns the current state for the presentation layer.
func (r *Registry) Snapshot() Snapshot {
	r.mx.Lock()
	defer r.mx.Unlock()
	return r.snapshotLocked()
}

func (r *Registry) snapshotLocked() Snapshot {
	s := Snapshot{
		SlotCount:   r.slotCount,
		Slots:       make([]SlotView, len(r.slots)),
		OffBar:      make([]SlotView, len(r.offBar)),
		Description: r.describeLocked(),
		Bits:        append([]string(nil), r.bits...),
		Sizes:       append([]string(nil), SizeOptions...),
	}
	if len(s.Bits) == 0 {
		s.Bits = []string{NoTool}
	}
	if r.current >= 0 {
		n := r.current + 1
		s.Current = &n
	}
	for i, t := range r.slots {
		s.Slots[i] = SlotView{
			Tool:   t.clone(),
			Index:  i,
			Number: i + 1,
			Label:  "Slot " + strconv.Itoa(i+1),
			Loaded: i == r.current,
		}
	}
	for i, t := range r.offBar {
		n := r.slotCount + i + 1
		s.OffBar[i] = SlotView{
			Tool:   t.clone(),
			Index:  i,
			Number: n,
			Label:  "Off-Bar Tool " + strconv.Itoa(n),
			OffBar: true,
		}
	}
	return s
}

// Updates delivers a snapshot after each change. Only the latest pending
// snapshot is kept, so a slow reader skips intermediate states.
func (r *Registry) Updates() <-chan Snapshot { return r.updates }

func (r *Registry) publishLocked() {
	snap := r.snapshotLocked()
	select {
	case <-r.updates:
	default:
	}
	select {
	case r.updates <- snap:
	default:
	}
}

func (v SlotView) String() string {
	return v.Label + " - " + v.Tool.String()
}

// SetBits replaces the bit type catalog shown to the operator.
func (r *Registry) SetBits(bits []string) {
	r.mx.Lock()
	defer r.mx.Unlock()
	r.bits = append([]string(nil), bits...)
	r.publishLocked()
}
