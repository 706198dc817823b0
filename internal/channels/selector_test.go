package channels

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newSelectorFixture(t *testing.T) (*Table, *Selector, *fakeEngine) {
	t.Helper()
	tbl := newDefaultTable(t, nil)
	eng := &fakeEngine{}
	return tbl, NewSelector(tbl, eng, WithSelectorLogger(quietLogger())), eng
}

func TestSetActiveByIndex(t *testing.T) {
	ctx := context.Background()
	tbl, sel, eng := newSelectorFixture(t)
	require.NoError(t, tbl.SetChannel(ctx, secondary("Ops", repeat(5, 16)), 1))

	h := sel.SetActiveByIndex(ctx, 1)
	assert.Equal(t, tbl.Hash(1), h)
	assert.Equal(t, repeat(5, 16), eng.last().Bytes)
	assert.Equal(t, 1, tbl.ActiveIndex())

	t.Run("out of range leaves engine", func(t *testing.T) {
		calls := eng.calls()
		assert.Equal(t, NoHash, sel.SetActiveByIndex(ctx, 5))
		assert.Equal(t, calls, eng.calls())
		assert.Equal(t, 1, tbl.ActiveIndex())
	})

	t.Run("engine failure", func(t *testing.T) {
		eng.fail = errors.New("bad key")
		defer func() { eng.fail = nil }()
		assert.Equal(t, NoHash, sel.SetActiveByIndex(ctx, 0))
		assert.Equal(t, 1, tbl.ActiveIndex())
	})

	t.Run("crypto off arms empty key", func(t *testing.T) {
		require.NoError(t, tbl.SetChannel(ctx, secondary("Plain", []byte{0}), 2))
		assert.NotEqual(t, NoHash, sel.SetActiveByIndex(ctx, 2))
		assert.Zero(t, eng.last().Len())
	})
}

func TestDecryptForHash(t *testing.T) {
	ctx := context.Background()
	tbl, sel, eng := newSelectorFixture(t)

	// "ab" and "ba" fold to the same byte and share a key: both hash to 3.
	require.NoError(t, tbl.SetChannel(ctx, secondary("ab", make([]byte, 16)), 1))
	require.NoError(t, tbl.SetChannel(ctx, secondary("ba", make([]byte, 16)), 2))
	require.Equal(t, tbl.Hash(1), tbl.Hash(2))

	t.Run("requested slot wins", func(t *testing.T) {
		idx, err := sel.DecryptForHash(ctx, 2, 3)
		require.NoError(t, err)
		assert.Equal(t, 2, idx)
	})

	t.Run("collision picks lowest index", func(t *testing.T) {
		idx, err := sel.DecryptForHash(ctx, 0, 3)
		require.NoError(t, err)
		assert.Equal(t, 1, idx)
	})

	t.Run("excluding tried slots", func(t *testing.T) {
		idx, err := sel.DecryptForHashExcluding(ctx, 0, 3, map[int]bool{1: true})
		require.NoError(t, err)
		assert.Equal(t, 2, idx)
	})

	t.Run("primary hash", func(t *testing.T) {
		idx, err := sel.DecryptForHash(ctx, 0, 8)
		require.NoError(t, err)
		assert.Equal(t, 0, idx)
		assert.Equal(t, defaultPSK[:], eng.last().Bytes)
	})

	t.Run("unknown hash falls back to open default primary", func(t *testing.T) {
		idx, err := sel.DecryptForHash(ctx, 1, 0x55)
		require.NoError(t, err)
		assert.Equal(t, 0, idx)
		assert.True(t, sel.DecryptForHashOK(ctx, 1, 0x55))
	})

	t.Run("decrypt does not change active index", func(t *testing.T) {
		sel.SetActiveByIndex(ctx, 2)
		_, err := sel.DecryptForHash(ctx, 0, 8)
		require.NoError(t, err)
		assert.Equal(t, 2, tbl.ActiveIndex())
	})
}

func TestDecryptForHashNoCandidate(t *testing.T) {
	ctx := context.Background()
	tbl, sel, eng := newSelectorFixture(t)
	require.NoError(t, tbl.SetChannel(ctx, Channel{Role: RolePrimary, Settings: Settings{Name: "Ops", PSK: repeat(5, 16)}}, 0))

	calls := eng.calls()
	idx, err := sel.DecryptForHash(ctx, 0, 0x55)

	assert.Equal(t, -1, idx)
	assert.True(t, IsNoCryptoCandidate(err))
	assert.False(t, sel.DecryptForHashOK(ctx, 0, 0x55))
	assert.Equal(t, calls, eng.calls(), "engine untouched")
}

func TestDecryptForHashEngineFailure(t *testing.T) {
	ctx := context.Background()
	_, sel, eng := newSelectorFixture(t)
	eng.fail = errors.New("locked")

	_, err := sel.DecryptForHash(ctx, 0, 8)
	assert.True(t, IsNoCryptoCandidate(err))
}
