package atc

import (
	"fmt"
	"strconv"
)

// Sentinel values used when a tool record is missing data.
const (
	NoTool      = "No tool"
	NoSizeSaved = "No Size Saved"
	DefaultSize = "Medium"
)

// SizeOptions are the size labels offered to the operator. Size is free text, these are suggestions.
var SizeOptions = []string{"Small", "Medium", "Large"}

// Tool is the metadata kept for one bit.
type Tool struct {
	Type string `json:"type"`
	Size string `json:"size"`

	// H is the measured bit length (machine Z). nil until measured.
	H *float64 `json:"h"`
}

// PartialTool is a tool record as read from configuration. Empty fields are defaulted on hydration.
type PartialTool struct {
	Type string
	Size string
	H    *float64
}

func defaultTool() Tool {
	return Tool{Type: NoTool, Size: DefaultSize}
}

func fromPartial(p PartialTool) Tool {
	t := Tool{Type: p.Type, Size: p.Size}
	if t.Type == "" {
		t.Type = NoTool
	}
	if t.Size == "" {
		t.Size = NoSizeSaved
	}
	if p.H != nil && *p.H != 0 {
		h := *p.H
		t.H = &h
	}
	return t
}

// Measured reports whether the bit length is known.
func (t Tool) Measured() bool { return t.H != nil }

// Length returns the bit length for display, or "Unknown".
func (t Tool) Length() string {
	if t.H == nil {
		return "Unknown"
	}
	return strconv.FormatFloat(*t.H, 'f', -1, 64)
}

func (t Tool) clone() Tool {
	if t.H != nil {
		h := *t.H
		t.H = &h
	}
	return t
}

func (t Tool) String() string {
	return fmt.Sprintf("%s (%s) Bit Length: %s", t.Type, t.Size, t.Length())
}

// Attribute names an editable tool field.
type Attribute string

// Editable attributes.
const (
	AttrType Attribute = "type"
	AttrSize Attribute = "size"
)

// ParseAttribute validates an attribute name.
func ParseAttribute(s string) (Attribute, error) {
	switch a := Attribute(s); a {
	case AttrType, AttrSize:
		return a, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownAttribute, s)
}
