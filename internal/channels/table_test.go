package channels

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/radio-control/meshchan/internal/lora"
)

func TestInitDefaults(t *testing.T) {
	store := &memPersister{}
	tbl := newDefaultTable(t, store)

	require.Equal(t, 1, tbl.NumChannels())
	ch := tbl.GetByIndex(0)
	assert.Equal(t, RolePrimary, ch.Role)
	assert.Equal(t, []byte{DefaultPSKIndex}, ch.Settings.PSK)
	assert.Empty(t, ch.Settings.Name)
	assert.Equal(t, uint32(20), ch.Settings.ChannelNum)
	assert.Equal(t, DefaultPositionPrecision, ch.Settings.Module.PositionPrecision)

	assert.Equal(t, "LongFast", tbl.GetName(0))
	assert.Equal(t, int16(8), tbl.Hash(0))
	assert.Equal(t, NoHash, tbl.Hash(1))
	assert.True(t, tbl.HasDefaultChannel())
	assert.Equal(t, 0, tbl.PrimaryIndex())

	f, saves := store.stored()
	assert.Equal(t, 1, saves)
	assert.Equal(t, FileVersion, f.Version)
	assert.Len(t, f.Channels, 1)
}

func TestLoad(t *testing.T) {
	ctx := context.Background()

	t.Run("missing file writes defaults", func(t *testing.T) {
		store := &memPersister{}
		tbl := NewTable(usLongFast, WithPersister(store), WithLogger(quietLogger()))
		require.NoError(t, tbl.Load(ctx))

		assert.Equal(t, 1, tbl.NumChannels())
		_, saves := store.stored()
		assert.Equal(t, 1, saves)
	})

	t.Run("version mismatch writes defaults", func(t *testing.T) {
		store := &memPersister{file: &File{Version: FileVersion - 1, Channels: []Channel{
			{Role: RolePrimary, Settings: Settings{Name: "Old", PSK: repeat(3, 16)}},
			secondary("b", nil),
		}}}
		tbl := NewTable(usLongFast, WithPersister(store), WithLogger(quietLogger()))
		require.NoError(t, tbl.Load(ctx))

		assert.Equal(t, 1, tbl.NumChannels())
		assert.True(t, IsDefaultChannel(tbl.Primary()))
	})

	t.Run("read error keeps defaults in memory", func(t *testing.T) {
		store := &memPersister{loadErr: errors.New("io error")}
		tbl := NewTable(usLongFast, WithPersister(store), WithLogger(quietLogger()))
		err := tbl.Load(ctx)

		assert.True(t, IsPersistence(err))
		assert.Equal(t, 1, tbl.NumChannels())
		assert.Equal(t, int16(8), tbl.Hash(0))
		_, saves := store.stored()
		assert.Zero(t, saves)
	})

	t.Run("duplicate primaries demoted", func(t *testing.T) {
		store := &memPersister{file: &File{Version: FileVersion, Channels: []Channel{
			{Role: RolePrimary, Settings: Settings{Name: "One", PSK: repeat(1, 16), DownlinkEnabled: true}},
			{Role: RolePrimary, Settings: Settings{Name: "Two", PSK: repeat(2, 16), DownlinkEnabled: true}},
		}}}
		tbl := NewTable(usLongFast, WithPersister(store), WithLogger(quietLogger()))
		require.NoError(t, tbl.Load(ctx))

		assert.Equal(t, 0, tbl.PrimaryIndex())
		assert.Equal(t, RoleSecondary, tbl.GetByIndex(1).Role)
		assert.False(t, tbl.GetByIndex(1).Settings.DownlinkEnabled)
	})

	t.Run("first enabled slot promoted", func(t *testing.T) {
		store := &memPersister{file: &File{Version: FileVersion, Channels: []Channel{
			{Role: RoleDisabled},
			secondary("Ops", repeat(5, 16)),
		}}}
		tbl := NewTable(usLongFast, WithPersister(store), WithLogger(quietLogger()))
		require.NoError(t, tbl.Load(ctx))

		assert.Equal(t, 1, tbl.PrimaryIndex())
		assert.Equal(t, RolePrimary, tbl.GetByIndex(1).Role)
		assert.NotEqual(t, NoHash, tbl.Hash(1))
	})

	t.Run("all disabled writes defaults", func(t *testing.T) {
		store := &memPersister{file: &File{Version: FileVersion, Channels: []Channel{{Role: RoleDisabled}}}}
		tbl := NewTable(usLongFast, WithPersister(store), WithLogger(quietLogger()))
		require.NoError(t, tbl.Load(ctx))

		assert.True(t, tbl.HasDefaultChannel())
	})
}

func TestSetChannel(t *testing.T) {
	ctx := context.Background()

	t.Run("secondary inherits primary key", func(t *testing.T) {
		tbl := newDefaultTable(t, nil)
		require.NoError(t, tbl.SetChannel(ctx, secondary("ab", nil), 1))

		assert.Equal(t, 2, tbl.NumChannels())
		// fold("ab") ^ fold(default key)
		assert.Equal(t, int16(0x03^0x02), tbl.Hash(1))

		require.NoError(t, tbl.SetChannel(ctx, Channel{Role: RolePrimary, Settings: Settings{PSK: make([]byte, 16)}}, 0))
		assert.Equal(t, int16(0x03), tbl.Hash(1), "secondary hash follows the primary key")
	})

	t.Run("gap slots become disabled", func(t *testing.T) {
		tbl := newDefaultTable(t, nil)
		require.NoError(t, tbl.SetChannel(ctx, secondary("Ops", repeat(5, 16)), 3))

		assert.Equal(t, 4, tbl.NumChannels())
		for _, i := range []int{1, 2} {
			assert.Equal(t, RoleDisabled, tbl.GetByIndex(i).Role)
			assert.Equal(t, NoHash, tbl.Hash(i))
		}
	})

	t.Run("promotion demotes old primary", func(t *testing.T) {
		tbl := newDefaultTable(t, nil)
		// keyless slots inherit the primary key, so both hashes depend on the promotion
		require.NoError(t, tbl.SetChannel(ctx, Channel{Role: RolePrimary}, 0))
		require.NoError(t, tbl.SetChannel(ctx, secondary("Ops", nil), 2))
		oldPrimary, promoted := tbl.Hash(0), tbl.Hash(2)

		key := repeat(5, 16)
		key[0] = 6
		require.NoError(t, tbl.SetChannel(ctx, Channel{Role: RolePrimary, Settings: Settings{Name: "Ops", PSK: key}}, 2))

		assert.Equal(t, 2, tbl.PrimaryIndex())
		assert.NotEqual(t, promoted, tbl.Hash(2), "promoted slot hash recomputed")
		assert.NotEqual(t, oldPrimary, tbl.Hash(0), "demoted slot inherits the new primary key")
		assert.Equal(t, RoleSecondary, tbl.GetByIndex(0).Role)
		assertSinglePrimary(t, tbl)
	})

	t.Run("sole primary cannot be demoted", func(t *testing.T) {
		tbl := newDefaultTable(t, nil)
		err := tbl.SetChannel(ctx, secondary("x", nil), 0)

		assert.True(t, IsValidationFailed(err))
		assert.Equal(t, RolePrimary, tbl.GetByIndex(0).Role)
	})

	t.Run("first channel must be primary", func(t *testing.T) {
		tbl := NewTable(usLongFast, WithLogger(quietLogger()))
		err := tbl.SetChannel(ctx, secondary("x", nil), 0)
		assert.True(t, IsValidationFailed(err))
	})

	t.Run("invalid index", func(t *testing.T) {
		tbl := newDefaultTable(t, nil)
		for _, i := range []int{-1, MaxChannels} {
			err := tbl.SetChannel(ctx, secondary("x", nil), i)
			assert.True(t, IsInvalidIndex(err))
		}
		assert.Equal(t, 1, tbl.NumChannels())
	})

	t.Run("rejected proposal leaves table untouched", func(t *testing.T) {
		store := &memPersister{}
		tbl := newDefaultTable(t, store)
		before := tbl.Channels()

		err := tbl.SetChannel(ctx, secondary("name-too-long", nil), 1)
		assert.True(t, IsValidationFailed(err))
		assert.Equal(t, before, tbl.Channels())
		_, saves := store.stored()
		assert.Equal(t, 1, saves)
	})

	t.Run("downlink is exclusive", func(t *testing.T) {
		tbl := newDefaultTable(t, nil)
		a := secondary("a", nil)
		a.Settings.DownlinkEnabled = true
		b := secondary("b", nil)
		b.Settings.DownlinkEnabled = true

		require.NoError(t, tbl.SetChannel(ctx, a, 1))
		require.NoError(t, tbl.SetChannel(ctx, b, 2))

		assert.False(t, tbl.GetByIndex(1).Settings.DownlinkEnabled)
		assert.True(t, tbl.GetByIndex(2).Settings.DownlinkEnabled)
	})

	t.Run("persistence failure keeps change", func(t *testing.T) {
		store := &memPersister{}
		tbl := newDefaultTable(t, store)
		store.saveErr = errDiskFull

		err := tbl.SetChannel(ctx, secondary("Ops", repeat(5, 16)), 1)
		require.Error(t, err)
		assert.True(t, IsPersistence(err))
		assert.ErrorIs(t, err, errDiskFull)

		assert.Equal(t, "Ops", tbl.GetByIndex(1).Settings.Name)
		assert.NotEqual(t, NoHash, tbl.Hash(1))
	})

	t.Run("returned channels are copies", func(t *testing.T) {
		tbl := newDefaultTable(t, nil)
		ch := tbl.GetByIndex(0)
		ch.Settings.PSK[0] = 9
		assert.Equal(t, DefaultPSKIndex, tbl.GetByIndex(0).Settings.PSK[0])
	})
}

func TestLookups(t *testing.T) {
	ctx := context.Background()
	tbl := newDefaultTable(t, nil)
	require.NoError(t, tbl.SetChannel(ctx, secondary(AdminChannel, repeat(6, 16)), 1))
	require.NoError(t, tbl.SetChannel(ctx, Channel{Index: 2, Role: RoleDisabled, Settings: Settings{Name: "gone"}}, 2))

	assert.Equal(t, 1, tbl.GetByName("ADMIN").Index)
	assert.Equal(t, 0, tbl.GetByName("longfast").Index)
	assert.Equal(t, 0, tbl.GetByName("gone").Index, "disabled slots do not resolve")
	assert.Equal(t, 0, tbl.GetByName("missing").Index)

	assert.Equal(t, 0, tbl.GetByIndex(7).Index)
	assert.Equal(t, "LongFast", tbl.GetName(-1))
	assert.Equal(t, "admin", tbl.GlobalID(1))
}

func TestOnConfigChanged(t *testing.T) {
	tbl := newDefaultTable(t, nil)
	require.Equal(t, int16(8), tbl.Hash(0))

	tbl.OnConfigChanged(lora.Params{Region: lora.RegionUS, Preset: lora.PresetLongSlow, UsePreset: true})
	assert.Equal(t, "LongSlow", tbl.GetName(0))
	assert.Equal(t, int16(15), tbl.Hash(0))
}

func TestDefaultDetection(t *testing.T) {
	assert.True(t, IsDefaultChannel(Channel{Role: RolePrimary, Settings: Settings{PSK: []byte{1}}}))
	assert.False(t, IsDefaultChannel(Channel{Role: RolePrimary, Settings: Settings{PSK: []byte{2}}}))
	assert.False(t, IsDefaultChannel(Channel{Role: RolePrimary, Settings: Settings{PSK: []byte{1}, Name: "x"}}))

	ctx := context.Background()
	tbl := newDefaultTable(t, nil)
	require.NoError(t, tbl.SetChannel(ctx, Channel{Role: RolePrimary, Settings: Settings{Name: "Ops", PSK: repeat(5, 16)}}, 0))
	assert.False(t, tbl.HasDefaultChannel())
}

func TestCycleMqttDownlink(t *testing.T) {
	ctx := context.Background()
	tbl := newDefaultTable(t, nil)
	assert.False(t, tbl.AnyMqttEnabled())

	p := tbl.GetByIndex(0)
	p.Settings.UplinkEnabled = true
	p.Settings.DownlinkEnabled = true
	require.NoError(t, tbl.SetChannel(ctx, p, 0))

	next, err := tbl.CycleMqttDownlink(ctx)
	require.NoError(t, err)
	assert.Equal(t, -1, next, "single enabled channel is a no-op")

	s := secondary("b", nil)
	s.Settings.UplinkEnabled = true
	require.NoError(t, tbl.SetChannel(ctx, s, 1))
	assert.True(t, tbl.AnyMqttEnabled())

	next, err = tbl.CycleMqttDownlink(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, next)
	assert.False(t, tbl.GetByIndex(0).Settings.DownlinkEnabled)
	assert.True(t, tbl.GetByIndex(1).Settings.DownlinkEnabled)

	next, err = tbl.CycleMqttDownlink(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, next)
	assert.True(t, tbl.GetByIndex(0).Settings.DownlinkEnabled)
	assert.False(t, tbl.GetByIndex(1).Settings.DownlinkEnabled)
}

func TestCycleMqttDownlinkReturnsToDownlinkOnlyChannel(t *testing.T) {
	ctx := context.Background()
	tbl := newDefaultTable(t, nil)

	a := tbl.GetByIndex(0)
	a.Settings.DownlinkEnabled = true
	require.NoError(t, tbl.SetChannel(ctx, a, 0))

	b := secondary("b", nil)
	b.Settings.UplinkEnabled = true
	require.NoError(t, tbl.SetChannel(ctx, b, 1))

	next, err := tbl.CycleMqttDownlink(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, next)
	assert.False(t, tbl.GetByIndex(0).Settings.DownlinkEnabled)
	assert.True(t, tbl.GetByIndex(1).Settings.DownlinkEnabled)

	next, err = tbl.CycleMqttDownlink(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, next, "channel without uplink gets downlink back")
	assert.True(t, tbl.GetByIndex(0).Settings.DownlinkEnabled)
	assert.False(t, tbl.GetByIndex(1).Settings.DownlinkEnabled)

	// disabled slots never take the flag
	require.NoError(t, tbl.SetChannel(ctx, Channel{Role: RoleDisabled}, 2))
	next, err = tbl.CycleMqttDownlink(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, next)
	next, err = tbl.CycleMqttDownlink(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, next)
}

func TestConcurrentAccess(t *testing.T) {
	ctx := context.Background()
	store := &memPersister{}
	tbl := newDefaultTable(t, store)
	sel := NewSelector(tbl, &fakeEngine{}, WithSelectorLogger(quietLogger()))

	var wg sync.WaitGroup
	for w := 0; w < 4; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				_ = tbl.SetChannel(ctx, secondary("w", repeat(byte(w+1), 16)), 1+w)
				_, _ = sel.DecryptForHash(ctx, 0, 8)
				sel.SetActiveByIndex(ctx, i%MaxChannels)
				_ = tbl.Channels()
			}
		}(w)
	}
	wg.Wait()

	assertSinglePrimary(t, tbl)
	f, _ := store.stored()
	assert.Equal(t, tbl.File(), f, "last save matches final state")
}

func assertSinglePrimary(t *testing.T, tbl *Table) {
	t.Helper()
	n := 0
	for _, ch := range tbl.Channels() {
		if ch.Role == RolePrimary {
			n++
		}
	}
	assert.Equal(t, 1, n)
}
