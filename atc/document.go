package atc

import (
	"fmt"
	"strconv"
)

// ATC status values written to configuration.
const (
	StatusAttached    = "OK"
	StatusNotAttached = "NOT ATTACHED"
)

// Document is the full configuration payload written on every mutation.
// It always replaces the stored ATC and TOOLS values.
type Document struct {
	ATC   ATCState        `json:"ATC"`
	Tools map[string]Tool `json:"TOOLS"`
}

// ATCState is the ATC section of a Document.
type ATCState struct {
	NumClips int    `json:"NUMCLIPS"`
	ToolIn   int    `json:"TOOLIN"`
	Status   string `json:"STATUS"`
}

// StatusPolicy decides how STATUS is derived from the loaded slot.
type StatusPolicy int

const (
	// StatusLoaded reports OK whenever any slot is loaded, slot 1 included.
	StatusLoaded StatusPolicy = iota

	// StatusLegacy reproduces the older panel, which treated slot 1
	// (index 0) as not attached.
	StatusLegacy
)

// ParseStatusPolicy accepts "loaded" (or empty) and "legacy".
func ParseStatusPolicy(s string) (StatusPolicy, error) {
	switch s {
	case "", "loaded":
		return StatusLoaded, nil
	case "legacy":
		return StatusLegacy, nil
	}
	return StatusLoaded, fmt.Errorf("unknown status policy %q", s)
}

func (p StatusPolicy) String() string {
	if p == StatusLegacy {
		return "legacy"
	}
	return "loaded"
}

func (p StatusPolicy) status(current int) string {
	attached := current >= 0
	if p == StatusLegacy {
		attached = current > 0
	}
	if attached {
		return StatusAttached
	}
	return StatusNotAttached
}

// Document returns the persistence payload for the current state.
func (r *Registry) Document() Document {
	r.mx.Lock()
	defer r.mx.Unlock()
	return r.documentLocked()
}

func (r *Registry) documentLocked() Document {
	doc := Document{
		ATC: ATCState{
			NumClips: r.slotCount,
			ToolIn:   r.current + 1,
			Status:   r.policy.status(r.current),
		},
		Tools: make(map[string]Tool, len(r.slots)+len(r.offBar)),
	}
	i := 0
	for _, list := range [][]Tool{r.slots, r.offBar} {
		for _, t := range list {
			doc.Tools[strconv.Itoa(i)] = t.clone()
			i++
		}
	}
	return doc
}
