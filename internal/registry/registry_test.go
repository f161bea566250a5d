package registry

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestObserveAndMark(t *testing.T) {
	r := New()

	d, err := r.Observe(KindLight, "u1", "1", "bulb-1")
	require.NoError(t, err)
	assert.False(t, d.Registered)
	assert.False(t, r.IsRegistered("u1"))

	r.MarkRegistered("u1")
	assert.True(t, r.IsRegistered("u1"))

	// observing again is idempotent
	d, err = r.Observe(KindLight, "u1", "1", "bulb-1")
	require.NoError(t, err)
	assert.True(t, d.Registered)
	assert.Equal(t, 1, r.Len())
}

func TestMarkUnknownIsNoop(t *testing.T) {
	r := New()
	r.MarkRegistered("ghost")
	assert.False(t, r.IsRegistered("ghost"))
	assert.Equal(t, 0, r.Len())
}

func TestOrdinalChangeKeepsIdentity(t *testing.T) {
	r := New()
	_, err := r.Observe(KindLight, "u1", "1", "bulb-1")
	require.NoError(t, err)
	r.MarkRegistered("u1")

	ordinal, ok := r.Routes().Resolve("bulb-1")
	require.True(t, ok)
	assert.Equal(t, "1", ordinal)

	d, err := r.Observe(KindLight, "u1", "4", "bulb-4")
	require.NoError(t, err)
	assert.True(t, d.Registered)
	assert.Equal(t, "1", d.Ordinal)
	assert.Equal(t, "4", d.Current)
	assert.Equal(t, "bulb-1", d.ChannelKey)
	assert.Equal(t, 1, r.Len())

	ordinal, ok = r.Routes().Resolve("bulb-1")
	require.True(t, ok)
	assert.Equal(t, "4", ordinal, "route follows the device")

	_, ok = r.Routes().Resolve("bulb-4")
	assert.False(t, ok)

	// moving back restores the route
	d, err = r.Observe(KindLight, "u1", "1", "bulb-1")
	require.NoError(t, err)
	assert.Equal(t, "1", d.Current)
	ordinal, _ = r.Routes().Resolve("bulb-1")
	assert.Equal(t, "1", ordinal)
}

func TestChannelConflict(t *testing.T) {
	r := New()
	_, err := r.Observe(KindLight, "u1", "1", "bulb-1")
	require.NoError(t, err)
	_, err = r.Observe(KindLight, "u1", "4", "bulb-4")
	require.NoError(t, err)

	_, err = r.Observe(KindLight, "u2", "1", "bulb-1")
	assert.ErrorIs(t, err, ErrChannelConflict)
	assert.Equal(t, 1, r.Len(), "refused devices are not recorded")

	ordinal, _ := r.Routes().Resolve("bulb-1")
	assert.Equal(t, "4", ordinal, "a refused device does not take over the route")
}
