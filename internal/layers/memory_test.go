package layers

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemorySurface_Errors(t *testing.T) {
	s := NewMemorySurface()

	assert.ErrorIs(t, s.SetData("missing", nil), ErrUnknownSource)
	assert.ErrorIs(t, s.AddLayer(LayerSpec{ID: "l", Source: "missing"}, ""), ErrUnknownSource)
	assert.ErrorIs(t, s.RemoveLayer("l"), ErrUnknownLayer)
	assert.ErrorIs(t, s.RemoveSource("missing"), ErrUnknownSource)
	assert.ErrorIs(t, s.SetPaintProperty("l", "fill-opacity", 1), ErrUnknownLayer)

	require.NoError(t, s.AddSource("src", nil))
	assert.ErrorIs(t, s.AddSource("src", nil), ErrDuplicate)
	require.NoError(t, s.AddLayer(LayerSpec{ID: "l", Source: "src"}, ""))
	assert.ErrorIs(t, s.AddLayer(LayerSpec{ID: "l", Source: "src"}, ""), ErrDuplicate)
	assert.ErrorIs(t, s.RemoveSource("src"), ErrSourceInUse)
}

func TestMemorySurface_EmitOnlyMatchingHandlers(t *testing.T) {
	s := NewMemorySurface()
	require.NoError(t, s.AddSource("src", nil))
	require.NoError(t, s.AddLayer(LayerSpec{ID: "a", Source: "src"}, ""))
	require.NoError(t, s.AddLayer(LayerSpec{ID: "b", Source: "src"}, ""))

	var got []Event
	s.On(EventClick, "a", func(ev Event) { got = append(got, ev) })
	sub := s.On(EventClick, "b", func(ev Event) { got = append(got, ev) })

	assert.Equal(t, 1, s.Emit(EventClick, "a", Event{Lon: 1, Lat: 2}))
	require.Len(t, got, 1)
	assert.Equal(t, "a", got[0].LayerID)
	assert.Equal(t, EventClick, got[0].Type)

	s.Off(sub)
	s.Off(sub)
	assert.Equal(t, 0, s.Emit(EventClick, "b", Event{}))
	assert.Equal(t, 0, s.Emit(EventClick, "missing", Event{}))
}
