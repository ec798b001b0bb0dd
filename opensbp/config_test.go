package opensbp

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JoshAyersSBT/Fabmo-Desktop-ATC-APP/atc"
	"github.com/JoshAyersSBT/Fabmo-Desktop-ATC-APP/machine"
)

const sampleConfig = `{
	"opensbp": {
		"variables": {
			"ATC": {"NUMCLIPS": "2", "TOOLIN": 2},
			"TOOLS": {
				"10": {"type": "Ball Nose"},
				"2": {"type": "V-Bit", "size": "Small", "h": "1.5"},
				"x": {"size": "Large"},
				"0": {"type": "Straight", "size": "Medium", "h": 2.25},
				"1": null
			}
		}
	}
}`

type nopMachine struct{}

func (nopMachine) RunSBP(ctx context.Context, code string) error { return nil }
func (nopMachine) Status(ctx context.Context) (machine.State, error) {
	return machine.State{Status: machine.StatusIdle}, nil
}

type nopStore struct{}

func (nopStore) Save(ctx context.Context, doc atc.Document) error { return nil }

func TestDecode(t *testing.T) {
	c, err := Decode(strings.NewReader(sampleConfig))
	require.NoError(t, err)

	assert.Equal(t, 2, c.SlotCount())
	assert.Equal(t, 2, c.ToolIn())

	tools := c.Tools()
	require.Len(t, tools, 5)
	assert.Equal(t, "Straight", tools[0].Type)
	require.NotNil(t, tools[0].H)
	assert.Equal(t, 2.25, *tools[0].H)
	assert.Equal(t, atc.PartialTool{}, tools[1])
	assert.Equal(t, "V-Bit", tools[2].Type)
	require.NotNil(t, tools[2].H)
	assert.Equal(t, 1.5, *tools[2].H)
	assert.Equal(t, "Ball Nose", tools[3].Type)
	assert.Equal(t, "Large", tools[4].Size)
}

func TestConfig_Tools_KeyOrder(t *testing.T) {
	c, err := Decode(strings.NewReader(`{"opensbp":{"variables":{"TOOLS":{
		"01": {"type": "a"}, "10": {"type": "b"}, "2": {"type": "c"},
		"a": {"type": "d"}, "0": {"type": "e"}, "-1": {"type": "f"}
	}}}}`))
	require.NoError(t, err)

	var order []string
	for _, tool := range c.Tools() {
		order = append(order, tool.Type)
	}
	assert.Equal(t, []string{"e", "c", "b", "f", "a", "d"}, order)
}

func TestDecode_BadNumber(t *testing.T) {
	_, err := Decode(strings.NewReader(`{"opensbp":{"variables":{"ATC":{"NUMCLIPS":"six"}}}}`))
	assert.Error(t, err)
}

func TestConfig_NewRegistry(t *testing.T) {
	c, err := Decode(strings.NewReader(sampleConfig))
	require.NoError(t, err)

	r, err := c.NewRegistry(nopMachine{}, nopStore{})
	require.NoError(t, err)

	assert.Len(t, r.Slots(), 2)
	assert.Len(t, r.OffBarTools(), 3)
	slot, ok := r.CurrentSlot()
	assert.True(t, ok)
	assert.Equal(t, 1, slot)
	assert.Equal(t, atc.NoTool, r.Slots()[1].Type)
	assert.Equal(t, atc.NoSizeSaved, r.Slots()[1].Size)
}

func TestConfig_NewRegistry_NoSlots(t *testing.T) {
	c, err := Decode(strings.NewReader(`{"opensbp":{"variables":{}}}`))
	require.NoError(t, err)

	_, err = c.NewRegistry(nopMachine{}, nopStore{})
	assert.ErrorIs(t, err, ErrNoSlots)
}
