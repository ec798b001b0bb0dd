// Package atc tracks the tools held by an automatic tool changer and keeps
// the machine and the stored configuration in step with operator actions.
package atc

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/JoshAyersSBT/Fabmo-Desktop-ATC-APP/machine"
)

var (
	// ErrInvalidSlotCount is returned by New for a non-positive slot count.
	ErrInvalidSlotCount = errors.New("slot count must be positive")

	// ErrInvalidSlot is returned when an index is outside the bar or off-bar list.
	ErrInvalidSlot = errors.New("invalid tool slot")

	// ErrOffBarTool is returned when an off-bar tool is selected for loading.
	ErrOffBarTool = errors.New("off-bar tools can not be loaded by the tool changer")

	// ErrChangeInProgress is returned when a tool change is requested while another is running.
	ErrChangeInProgress = errors.New("tool change already in progress")

	// ErrUnknownAttribute is returned for an attribute other than type or size.
	ErrUnknownAttribute = errors.New("unknown tool attribute")

	// ErrPersist wraps configuration write failures. In-memory state is kept.
	ErrPersist = errors.New("update configuration")
)

// Machine runs OpenSBP programs and reports machine state.
type Machine interface {
	RunSBP(ctx context.Context, code string) error
	Status(ctx context.Context) (machine.State, error)
}

// Store receives the full configuration document.
type Store interface {
	Save(ctx context.Context, doc Document) error
}

// Option configures a Registry.
type Option func(*Registry)

// WithLogger sets the logger. The default discards output.
func WithLogger(l *zap.Logger) Option {
	return func(r *Registry) {
		if l != nil {
			r.log = l
		}
	}
}

// WithStatusPolicy sets how the STATUS field is derived.
func WithStatusPolicy(p StatusPolicy) Option {
	return func(r *Registry) { r.policy = p }
}

// WithBits sets the bit type catalog included in snapshots.
func WithBits(bits []string) Option {
	return func(r *Registry) { r.bits = append([]string(nil), bits...) }
}

// Registry holds the on-bar slots, the off-bar tools and the loaded slot.
type Registry struct {
	m     Machine
	store Store
	log   *zap.Logger

	policy StatusPolicy
	bits   []string

	mx        sync.Mutex
	slotCount int
	slots     []Tool
	offBar    []Tool
	current   int // -1 when no tool is loaded
	changing  bool

	updates chan Snapshot
}

// New creates a Registry with slotCount default slots and no tool loaded.
func New(slotCount int, m Machine, s Store, opts ...Option) (*Registry, error) {
	if slotCount <= 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidSlotCount, slotCount)
	}
	if m == nil || s == nil {
		return nil, errors.New("machine and store are required")
	}
	r := &Registry{
		m:         m,
		store:     s,
		log:       zap.NewNop(),
		slotCount: slotCount,
		slots:     make([]Tool, slotCount),
		current:   -1,
		updates:   make(chan Snapshot, 1),
	}
	for i := range r.slots {
		r.slots[i] = defaultTool()
	}
	for _, o := range opts {
		o(r)
	}
	return r, nil
}

// Hydrate replaces the registry contents with tools read from configuration.
//
// The first SlotCount entries fill the bar, the rest become off-bar tools in
// order. toolIn is the 1-based loaded slot; zero or negative means slot 1.
func (r *Registry) Hydrate(tools []PartialTool, toolIn int) {
	r.mx.Lock()
	defer r.mx.Unlock()

	r.offBar = r.offBar[:0]
	for i, p := range tools {
		if i < r.slotCount {
			r.slots[i] = fromPartial(p)
			continue
		}
		r.offBar = append(r.offBar, fromPartial(p))
	}
	for i := len(tools); i < r.slotCount; i++ {
		r.slots[i] = defaultTool()
	}

	if toolIn <= 0 {
		toolIn = 1
	}
	r.current = toolIn - 1
	if r.current >= r.slotCount {
		r.log.Warn("configured tool is not on the bar, treating as unloaded", zap.Int("toolIn", toolIn))
		r.current = -1
	}
	r.publishLocked()
}

// SlotCount returns the number of on-bar slots.
func (r *Registry) SlotCount() int { return r.slotCount }

// CurrentSlot returns the loaded slot index, if any.
func (r *Registry) CurrentSlot() (int, bool) {
	r.mx.Lock()
	defer r.mx.Unlock()
	return r.current, r.current >= 0
}

// Slots returns a copy of the on-bar tools.
func (r *Registry) Slots() []Tool {
	r.mx.Lock()
	defer r.mx.Unlock()
	return cloneTools(r.slots)
}

// OffBarTools returns a copy of the off-bar tools.
func (r *Registry) OffBarTools() []Tool {
	r.mx.Lock()
	defer r.mx.Unlock()
	return cloneTools(r.offBar)
}

func cloneTools(list []Tool) []Tool {
	res := make([]Tool, len(list))
	for i, t := range list {
		res[i] = t.clone()
	}
	return res
}

// DescribeCurrentTool returns a one-line summary of the loaded tool.
func (r *Registry) DescribeCurrentTool() string {
	r.mx.Lock()
	defer r.mx.Unlock()
	return r.describeLocked()
}

func (r *Registry) describeLocked() string {
	if r.current < 0 || r.current >= len(r.slots) {
		return "No tool is currently loaded."
	}
	return fmt.Sprintf("Current Tool: Slot %d - %s", r.current+1, r.slots[r.current])
}

// ChangeTool loads the tool in slot (0-based) and blocks until the machine is done.
//
// If the bit length for the slot is unknown, the tool is measured and the
// resulting Z position is stored. Only one change may run at a time.
func (r *Registry) ChangeTool(ctx context.Context, slot int) error {
	r.mx.Lock()
	if slot < 0 || slot >= r.slotCount {
		r.mx.Unlock()
		r.log.Error("invalid tool slot selected", zap.Int("slot", slot+1))
		return fmt.Errorf("%w: %d", ErrInvalidSlot, slot+1)
	}
	if r.changing {
		r.mx.Unlock()
		return ErrChangeInProgress
	}
	r.changing = true
	from := r.current
	measure := !r.slots[slot].Measured()
	r.mx.Unlock()

	defer func() {
		r.mx.Lock()
		r.changing = false
		r.mx.Unlock()
	}()

	r.log.Info("changing tool", zap.Int("from", from+1), zap.Int("to", slot+1))
	err := r.m.RunSBP(ctx, machine.ToolChangeProgram(slot+1).String())
	if err != nil {
		return fmt.Errorf("change to tool %d: %w", slot+1, err)
	}

	r.mx.Lock()
	r.current = slot
	r.publishLocked()
	r.mx.Unlock()

	var measureErr error
	if measure {
		measureErr = r.measureLoaded(ctx, slot)
	}

	return errors.Join(measureErr, r.Persist(ctx))
}

func (r *Registry) measureLoaded(ctx context.Context, slot int) error {
	err := r.m.RunSBP(ctx, machine.AutoMeasureProgram().String())
	if err != nil {
		return fmt.Errorf("measure tool %d: %w", slot+1, err)
	}
	st, err := r.m.Status(ctx)
	if err != nil {
		return fmt.Errorf("read tool %d length: %w", slot+1, err)
	}
	h := st.Pos.Z

	r.mx.Lock()
	r.slots[slot].H = &h
	r.publishLocked()
	r.mx.Unlock()

	r.log.Info("tool measured", zap.Int("slot", slot+1), zap.Float64("h", h))
	return nil
}

// SelectOffBar handles selection of an off-bar tool. Off-bar tools are only
// records, so this never reaches the machine: it returns ErrOffBarTool for a
// valid index and ErrInvalidSlot otherwise.
func (r *Registry) SelectOffBar(index int) error {
	r.mx.Lock()
	n := len(r.offBar)
	r.mx.Unlock()

	if index < 0 || index >= n {
		return fmt.Errorf("%w: off-bar tool %d", ErrInvalidSlot, index+1)
	}
	r.log.Info("changing to off-bar tool", zap.Int("tool", r.slotCount+index+1))
	return fmt.Errorf("%w: Off-Bar Tool %d", ErrOffBarTool, r.slotCount+index+1)
}

// UpdateAttribute sets the type or size of a tool and writes the full state back.
func (r *Registry) UpdateAttribute(ctx context.Context, index int, attr Attribute, value string, offBar bool) error {
	r.mx.Lock()
	list := r.slots
	if offBar {
		list = r.offBar
	}
	if index < 0 || index >= len(list) {
		r.mx.Unlock()
		return fmt.Errorf("%w: %d", ErrInvalidSlot, index+1)
	}
	switch attr {
	case AttrType:
		list[index].Type = value
	case AttrSize:
		list[index].Size = value
	default:
		r.mx.Unlock()
		return fmt.Errorf("%w: %q", ErrUnknownAttribute, attr)
	}
	r.publishLocked()
	r.mx.Unlock()

	return r.Persist(ctx)
}

// RequestMeasurement runs the measure routine for a tool. The result is not
// read back; use ChangeTool to record a length.
func (r *Registry) RequestMeasurement(ctx context.Context, index int, offBar bool) error {
	r.mx.Lock()
	n, num := len(r.slots), index+1
	if offBar {
		n, num = len(r.offBar), r.slotCount+index+1
	}
	r.mx.Unlock()

	if index < 0 || index >= n {
		return fmt.Errorf("%w: %d", ErrInvalidSlot, index+1)
	}
	r.log.Info("measuring tool", zap.Int("tool", num), zap.Bool("offBar", offBar))
	err := r.m.RunSBP(ctx, machine.MeasureProgram(num).String())
	if err != nil {
		return fmt.Errorf("measure tool %d: %w", num, err)
	}
	return nil
}

// Persist writes the full registry document to the store. Failures are
// logged and returned wrapped in ErrPersist; nothing is retried or rolled back.
func (r *Registry) Persist(ctx context.Context) error {
	doc := r.Document()
	err := r.store.Save(ctx, doc)
	if err != nil {
		r.log.Error("update configuration", zap.Error(err))
		return fmt.Errorf("%w: %w", ErrPersist, err)
	}
	r.log.Debug("configuration updated", zap.Int("toolIn", doc.ATC.ToolIn), zap.String("status", doc.ATC.Status))
	return nil
}
