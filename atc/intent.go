package atc

import (
	"context"
	"fmt"
)

// IntentKind names an operator action.
type IntentKind string

// Operator actions accepted by Handle.
const (
	IntentChangeTool         IntentKind = "change-tool"
	IntentSelectOffBar       IntentKind = "select-off-bar"
	IntentUpdateAttribute    IntentKind = "update-attribute"
	IntentRequestMeasurement IntentKind = "request-measurement"
)

// Intent is an action emitted by the presentation layer. Slot is 0-based
// within the bar, or within the off-bar list when OffBar is set.
type Intent struct {
	Kind      IntentKind `json:"kind"`
	Slot      int        `json:"slot"`
	OffBar    bool       `json:"offBar,omitempty"`
	Attribute Attribute  `json:"attribute,omitempty"`
	Value     string     `json:"value,omitempty"`
}

// Handle applies an intent to the registry.
func (r *Registry) Handle(ctx context.Context, in Intent) error {
	switch in.Kind {
	case IntentChangeTool:
		if in.OffBar {
			return r.SelectOffBar(in.Slot)
		}
		return r.ChangeTool(ctx, in.Slot)
	case IntentSelectOffBar:
		return r.SelectOffBar(in.Slot)
	case IntentUpdateAttribute:
		return r.UpdateAttribute(ctx, in.Slot, in.Attribute, in.Value, in.OffBar)
	case IntentRequestMeasurement:
		return r.RequestMeasurement(ctx, in.Slot, in.OffBar)
	}
	return fmt.Errorf("unknown intent %q", in.Kind)
}
