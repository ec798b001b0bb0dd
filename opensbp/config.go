// Package opensbp reads and writes the OpenSBP configuration that holds ATC tool data.
package opensbp

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
	"strconv"

	"github.com/JoshAyersSBT/Fabmo-Desktop-ATC-APP/atc"
)

// ErrNoSlots is returned when NUMCLIPS is missing or not positive.
var ErrNoSlots = errors.New("ATC NUMCLIPS not configured")

// Number is a JSON number that may also be stored as a numeric string.
type Number float64

// UnmarshalJSON accepts numbers, numeric strings, empty strings and null.
func (n *Number) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*n = 0
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		err := json.Unmarshal(data, &s)
		if err != nil {
			return err
		}
		if s == "" {
			*n = 0
			return nil
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return fmt.Errorf("invalid number %q", s)
		}
		*n = Number(f)
		return nil
	}
	var f float64
	err := json.Unmarshal(data, &f)
	if err != nil {
		return err
	}
	*n = Number(f)
	return nil
}

// Config is the part of the engine configuration used by the panel.
type Config struct {
	OpenSBP struct {
		Variables Variables `json:"variables"`
	} `json:"opensbp"`
}

// Variables holds the ATC and TOOLS variables.
type Variables struct {
	ATC   ATC             `json:"ATC"`
	Tools map[string]Tool `json:"TOOLS"`
}

// ATC is the stored tool changer state.
type ATC struct {
	NumClips Number `json:"NUMCLIPS"`
	ToolIn   Number `json:"TOOLIN"`
	Status   string `json:"STATUS,omitempty"`
}

// Tool is a stored tool record. Any field may be missing.
type Tool struct {
	Type string  `json:"type"`
	Size string  `json:"size"`
	H    *Number `json:"h"`
}

// Decode reads a Config from JSON.
func Decode(r io.Reader) (*Config, error) {
	var c Config
	err := json.NewDecoder(r).Decode(&c)
	if err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	return &c, nil
}

// SlotCount returns NUMCLIPS.
func (c *Config) SlotCount() int { return int(c.OpenSBP.Variables.ATC.NumClips) }

// ToolIn returns the stored 1-based loaded slot, or 0 if unset.
func (c *Config) ToolIn() int { return int(c.OpenSBP.Variables.ATC.ToolIn) }

// arrayIndex reports whether k is a canonical array index ("7", not "07"),
// the keys a JavaScript object enumerates first.
func arrayIndex(k string) (uint64, bool) {
	n, err := strconv.ParseUint(k, 10, 32)
	if err != nil || n == 1<<32-1 || strconv.FormatUint(n, 10) != k {
		return 0, false
	}
	return n, true
}

// Tools returns TOOLS values in object key order: array index keys
// ascending, then the rest sorted.
func (c *Config) Tools() []atc.PartialTool {
	tools := c.OpenSBP.Variables.Tools
	keys := make([]string, 0, len(tools))
	for k := range tools {
		keys = append(keys, k)
	}
	sort.SliceStable(keys, func(i, j int) bool {
		a, aOK := arrayIndex(keys[i])
		b, bOK := arrayIndex(keys[j])
		switch {
		case aOK && bOK:
			return a < b
		case aOK:
			return true
		case bOK:
			return false
		}
		return keys[i] < keys[j]
	})

	res := make([]atc.PartialTool, len(keys))
	for i, k := range keys {
		t := tools[k]
		res[i] = atc.PartialTool{Type: t.Type, Size: t.Size}
		if t.H != nil {
			h := float64(*t.H)
			res[i].H = &h
		}
	}
	return res
}

// NewRegistry builds and hydrates a registry from the configuration.
func (c *Config) NewRegistry(m atc.Machine, s atc.Store, opts ...atc.Option) (*atc.Registry, error) {
	n := c.SlotCount()
	if n <= 0 {
		return nil, ErrNoSlots
	}
	r, err := atc.New(n, m, s, opts...)
	if err != nil {
		return nil, err
	}
	r.Hydrate(c.Tools(), c.ToolIn())
	return r, nil
}
