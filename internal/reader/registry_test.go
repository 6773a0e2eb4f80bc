package reader

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nerrad567/rfidhub/internal/driver"
)

func TestRegistry_AddGetDeleteScenario(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.reg.AddReader(ctx, Fields{FieldReaderID: "A", FieldBusAddr: 1, FieldPortNumber: 1}))
	assert.Equal(t,
		map[string]ReaderInfo{"A": {BusAddr: 1, PortNumber: 1, State: false}},
		f.reg.ListReaders())

	info, err := f.reg.GetReader("A")
	require.NoError(t, err)
	assert.Equal(t, ReaderInfo{BusAddr: 1, PortNumber: 1}, info)
	assert.Equal(t, []Config{{ID: "A", BusAddr: 1, PortNumber: 1}}, f.store.stored())

	require.NoError(t, f.reg.DeleteReader(ctx, "A"))
	assert.Empty(t, f.reg.ListReaders())
	assert.Empty(t, f.store.stored())

	assert.Equal(t, []EventType{EventReaderAdded, EventReaderDeleted}, f.sink.types())
}

func TestRegistry_AddRoundTripsForValidInputs(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	for i, bus := range []int{0, 1, 128, 255} {
		id := string(rune('a' + i))
		require.NoError(t, f.reg.AddReader(ctx, Fields{FieldReaderID: id, FieldBusAddr: bus, FieldPortNumber: i * 7}))

		info, err := f.reg.GetReader(id)
		require.NoError(t, err)
		assert.Equal(t, ReaderInfo{BusAddr: bus, PortNumber: i * 7, State: false}, info)
	}
}

func TestRegistry_AddAcceptsJSONNumbers(t *testing.T) {
	f := newFixture(t)

	var body Fields
	require.NoError(t, json.Unmarshal([]byte(`{"reader_id":"gate","bus_addr":12,"port_number":3}`), &body))
	require.NoError(t, f.reg.AddReader(context.Background(), body))

	info, err := f.reg.GetReader("gate")
	require.NoError(t, err)
	assert.Equal(t, 12, info.BusAddr)
	assert.Equal(t, 3, info.PortNumber)
}

func TestRegistry_AddValidationOrder(t *testing.T) {
	tests := []struct {
		name string
		in   Fields
		want *Kind
	}{
		{"nil", nil, WrongRequestShape},
		{"missing port", Fields{FieldReaderID: "x", FieldBusAddr: 1}, WrongRequestShape},
		{"unknown key", Fields{FieldReaderID: "x", FieldBusAddr: 1, FieldPortNumber: 1, "speed": 9600}, WrongRequestShape},
		{"bad id beats bad bus", Fields{FieldReaderID: 7, FieldBusAddr: "x", FieldPortNumber: 1}, InvalidReaderID},
		{"exists beats bad bus", Fields{FieldReaderID: "taken", FieldBusAddr: "x", FieldPortNumber: 1}, ReaderExists},
		{"bus type before range", Fields{FieldReaderID: "x", FieldBusAddr: 1.5, FieldPortNumber: 1}, InvalidReaderBusAddr},
		{"bus range", Fields{FieldReaderID: "x", FieldBusAddr: 300, FieldPortNumber: 1}, ReaderBusAddrOutOfRange},
		{"bus range beats bad port", Fields{FieldReaderID: "x", FieldBusAddr: -1, FieldPortNumber: "COM1"}, ReaderBusAddrOutOfRange},
		{"port", Fields{FieldReaderID: "x", FieldBusAddr: 1, FieldPortNumber: "COM1"}, InvalidReaderPortNumber},
		{"state", Fields{FieldReaderID: "x", FieldBusAddr: 1, FieldPortNumber: 1, FieldState: "on"}, InvalidReaderState},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			ctx := context.Background()
			require.NoError(t, f.reg.AddReader(ctx, Fields{FieldReaderID: "taken", FieldBusAddr: 9, FieldPortNumber: 9}))
			before := f.reg.ListReaders()
			saves := f.store.saves

			err := f.reg.AddReader(ctx, tt.in)
			require.ErrorIs(t, err, tt.want)
			assert.Equal(t, before, f.reg.ListReaders(), "registry unchanged")
			assert.Equal(t, saves, f.store.saves, "nothing persisted")
			assert.Equal(t, 1, f.logger.count("warn", "request rejected"))
		})
	}
}

func TestRegistry_AddDuplicateLeavesExistingEntry(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.reg.AddReader(ctx, Fields{FieldReaderID: "A", FieldBusAddr: 1, FieldPortNumber: 1}))

	err := f.reg.AddReader(ctx, Fields{FieldReaderID: "A", FieldBusAddr: 2, FieldPortNumber: 2})
	require.ErrorIs(t, err, ReaderExists)

	info, _ := f.reg.GetReader("A")
	assert.Equal(t, ReaderInfo{BusAddr: 1, PortNumber: 1}, info)
}

func TestRegistry_AddWithStateConnects(t *testing.T) {
	f := newFixture(t)
	f.addConnected(t, "A", 1, 1)

	info, err := f.reg.GetReader("A")
	require.NoError(t, err)
	assert.True(t, info.State)
	assert.Equal(t, 1, f.sim.Live())
	assert.Equal(t, []EventType{EventReaderConnected, EventReaderAdded}, f.sink.types())
}

func TestRegistry_AddFailedConnectRegistersNothing(t *testing.T) {
	f := newFixture(t)

	err := f.reg.AddReader(context.Background(), Fields{
		FieldReaderID: "A", FieldBusAddr: 1, FieldPortNumber: 1, FieldState: true,
	})
	require.Error(t, err)
	assert.Equal(t, driver.CodeNoReaderFound, AsError(err).Code)
	assert.Empty(t, f.reg.ListReaders())
	assert.Zero(t, f.store.saves)
	assert.Zero(t, f.sim.Live(), "session released")
	assert.Equal(t, []EventType{EventDeviceError}, f.sink.types())
}

func TestRegistry_AddStorageFailureRollsBack(t *testing.T) {
	f := newFixture(t)
	f.sim.AddReader(driver.Address{Bus: 1, Port: 1})
	f.store.failing = true

	err := f.reg.AddReader(context.Background(), Fields{
		FieldReaderID: "A", FieldBusAddr: 1, FieldPortNumber: 1, FieldState: true,
	})
	require.ErrorIs(t, err, StorageFailure)
	assert.Empty(t, f.reg.ListReaders())
	assert.Zero(t, f.sim.Live())
}

func TestRegistry_GetMissing(t *testing.T) {
	f := newFixture(t)
	_, err := f.reg.GetReader("nope")
	require.ErrorIs(t, err, ReaderNotExists)
}

func TestRegistry_UpdateStructuralWhileDisconnected(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.reg.AddReader(ctx, Fields{FieldReaderID: "A", FieldBusAddr: 1, FieldPortNumber: 1}))

	require.NoError(t, f.reg.UpdateReader(ctx, "A", Fields{FieldBusAddr: 50, FieldPortNumber: 4}))
	info, _ := f.reg.GetReader("A")
	assert.Equal(t, ReaderInfo{BusAddr: 50, PortNumber: 4}, info)
	assert.Equal(t, []Config{{ID: "A", BusAddr: 50, PortNumber: 4}}, f.store.stored())
}

func TestRegistry_UpdateRename(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.reg.AddReader(ctx, Fields{FieldReaderID: "A", FieldBusAddr: 1, FieldPortNumber: 1}))
	require.NoError(t, f.reg.AddReader(ctx, Fields{FieldReaderID: "B", FieldBusAddr: 2, FieldPortNumber: 2}))

	err := f.reg.UpdateReader(ctx, "A", Fields{FieldReaderID: "B"})
	require.ErrorIs(t, err, ReaderExists)

	require.NoError(t, f.reg.UpdateReader(ctx, "A", Fields{FieldReaderID: "C"}))
	_, err = f.reg.GetReader("A")
	require.ErrorIs(t, err, ReaderNotExists)
	info, err := f.reg.GetReader("C")
	require.NoError(t, err)
	assert.Equal(t, ReaderInfo{BusAddr: 1, PortNumber: 1}, info)

	assert.Equal(t, []Config{
		{ID: "B", BusAddr: 2, PortNumber: 2},
		{ID: "C", BusAddr: 1, PortNumber: 1},
	}, f.store.stored())

	// Renaming to the same id is not a change.
	require.NoError(t, f.reg.UpdateReader(ctx, "C", Fields{FieldReaderID: "C"}))
}

func TestRegistry_UpdateStructuralWhileConnectedFails(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.addConnected(t, "A", 1, 1)

	for _, in := range []Fields{
		{FieldBusAddr: 2},
		{FieldPortNumber: 2},
		{FieldReaderID: "Z"},
		{FieldBusAddr: 2, FieldState: true},
	} {
		err := f.reg.UpdateReader(ctx, "A", in)
		require.ErrorIs(t, err, ReaderIsConnected, "%v", in)
	}

	info, _ := f.reg.GetReader("A")
	assert.Equal(t, ReaderInfo{BusAddr: 1, PortNumber: 1, State: true}, info)

	// Same values are not structural changes.
	require.NoError(t, f.reg.UpdateReader(ctx, "A", Fields{FieldBusAddr: 1, FieldPortNumber: 1}))
}

func TestRegistry_UpdateConnectPlusStructuralFailsBeforeDeviceCall(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.reg.AddReader(ctx, Fields{FieldReaderID: "A", FieldBusAddr: 1, FieldPortNumber: 1}))
	f.sim.AddReader(driver.Address{Bus: 1, Port: 1})

	err := f.reg.UpdateReader(ctx, "A", Fields{FieldState: true, FieldPortNumber: 5})
	require.ErrorIs(t, err, ReaderIsConnected)

	info, _ := f.reg.GetReader("A")
	assert.False(t, info.State)
	assert.Zero(t, f.sim.Live(), "no session was allocated")
}

func TestRegistry_UpdateDisconnectThenStructural(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.addConnected(t, "A", 1, 1)

	require.NoError(t, f.reg.UpdateReader(ctx, "A", Fields{FieldState: false, FieldBusAddr: 7, FieldReaderID: "B"}))

	info, err := f.reg.GetReader("B")
	require.NoError(t, err)
	assert.Equal(t, ReaderInfo{BusAddr: 7, PortNumber: 1, State: false}, info)
	assert.Zero(t, f.sim.Live())
}

func TestRegistry_UpdateConnectFailureLeavesEntry(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.reg.AddReader(ctx, Fields{FieldReaderID: "A", FieldBusAddr: 1, FieldPortNumber: 1}))
	f.sim.FailConnect(driver.Address{Bus: 1, Port: 1}, driver.CodePortOpen)

	err := f.reg.UpdateReader(ctx, "A", Fields{FieldState: true})
	require.Error(t, err)
	assert.Equal(t, driver.CodePortOpen, AsError(err).Code)
	assert.Equal(t, "port could not be opened", AsError(err).Message)

	info, _ := f.reg.GetReader("A")
	assert.False(t, info.State)
	assert.Zero(t, f.sim.Live())
}

func TestRegistry_UpdateValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.reg.AddReader(ctx, Fields{FieldReaderID: "A", FieldBusAddr: 1, FieldPortNumber: 1}))

	tests := []struct {
		name string
		id   string
		in   Fields
		want *Kind
	}{
		{"missing reader beats bad body", "nope", Fields{"junk": 1}, ReaderNotExists},
		{"empty body", "A", Fields{}, WrongRequestShape},
		{"unknown key", "A", Fields{"baud": 1}, WrongRequestShape},
		{"bad id", "A", Fields{FieldReaderID: ""}, InvalidReaderID},
		{"bad bus", "A", Fields{FieldBusAddr: "1"}, InvalidReaderBusAddr},
		{"bus range", "A", Fields{FieldBusAddr: 256}, ReaderBusAddrOutOfRange},
		{"bad port", "A", Fields{FieldPortNumber: "COM1"}, InvalidReaderPortNumber},
		{"bad state", "A", Fields{FieldState: 1}, InvalidReaderState},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.ErrorIs(t, f.reg.UpdateReader(ctx, tt.id, tt.in), tt.want)
		})
	}

	info, _ := f.reg.GetReader("A")
	assert.Equal(t, ReaderInfo{BusAddr: 1, PortNumber: 1}, info)
}

func TestRegistry_UpdateStorageFailureRollsBack(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.reg.AddReader(ctx, Fields{FieldReaderID: "A", FieldBusAddr: 1, FieldPortNumber: 1}))
	f.store.failing = true

	err := f.reg.UpdateReader(ctx, "A", Fields{FieldReaderID: "B", FieldBusAddr: 2})
	require.ErrorIs(t, err, StorageFailure)

	info, err := f.reg.GetReader("A")
	require.NoError(t, err)
	assert.Equal(t, ReaderInfo{BusAddr: 1, PortNumber: 1}, info)
	_, err = f.reg.GetReader("B")
	assert.ErrorIs(t, err, ReaderNotExists)
}

func TestRegistry_ConnectDisconnect(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.sim.AddReader(driver.Address{Bus: 4, Port: 2})
	require.NoError(t, f.reg.AddReader(ctx, Fields{FieldReaderID: "A", FieldBusAddr: 4, FieldPortNumber: 2}))
	saves := f.store.saves

	require.NoError(t, f.reg.Connect(ctx, "A"))
	require.NoError(t, f.reg.Connect(ctx, "A"))
	assert.Equal(t, 1, f.sim.Live())

	info, _ := f.reg.GetReader("A")
	assert.True(t, info.State)

	require.NoError(t, f.reg.Disconnect(ctx, "A"))
	info, _ = f.reg.GetReader("A")
	assert.False(t, info.State)
	assert.Zero(t, f.sim.Live())
	assert.Equal(t, saves, f.store.saves, "state is never persisted")

	require.ErrorIs(t, f.reg.Connect(ctx, "missing"), ReaderNotExists)
}

func TestRegistry_SetEventSinkWhileOperating(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.sim.AddReader(driver.Address{Bus: 4, Port: 2})
	require.NoError(t, f.reg.AddReader(ctx, Fields{FieldReaderID: "A", FieldBusAddr: 4, FieldPortNumber: 2}))

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 50; i++ {
			_ = f.reg.Connect(ctx, "A")
			_ = f.reg.Disconnect(ctx, "A")
		}
	}()
	late := &recordSink{}
	f.reg.SetEventSink(late)
	<-done

	require.NoError(t, f.reg.Connect(ctx, "A"))
	assert.Contains(t, late.types(), EventReaderConnected)
}

func TestRegistry_DeleteConnectedFails(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.addConnected(t, "A", 1, 1)

	require.ErrorIs(t, f.reg.DeleteReader(ctx, "A"), ReaderIsConnected)
	require.ErrorIs(t, f.reg.DeleteReader(ctx, "B"), ReaderNotExists)
	assert.Equal(t, 1, f.reg.Len())
}

func TestRegistry_DeleteStorageFailureRestores(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.reg.AddReader(ctx, Fields{FieldReaderID: "A", FieldBusAddr: 1, FieldPortNumber: 1}))
	f.store.failing = true

	require.ErrorIs(t, f.reg.DeleteReader(ctx, "A"), StorageFailure)
	_, err := f.reg.GetReader("A")
	assert.NoError(t, err)
}

func TestRegistry_DeleteAll(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.ErrorIs(t, f.reg.DeleteAllReaders(ctx), ReadersListAlreadyIsEmpty)

	require.NoError(t, f.reg.AddReader(ctx, Fields{FieldReaderID: "A", FieldBusAddr: 1, FieldPortNumber: 1}))
	require.NoError(t, f.reg.AddReader(ctx, Fields{FieldReaderID: "B", FieldBusAddr: 2, FieldPortNumber: 1}))
	f.addConnected(t, "C", 3, 1)

	require.ErrorIs(t, f.reg.DeleteAllReaders(ctx), OneOrMoreReadersAreConnected)
	assert.Equal(t, 3, f.reg.Len(), "all-or-nothing")

	require.NoError(t, f.reg.Disconnect(ctx, "C"))
	require.NoError(t, f.reg.DeleteAllReaders(ctx))
	assert.Zero(t, f.reg.Len())
	assert.Empty(t, f.store.stored())

	f.sink.mu.Lock()
	last := f.sink.events[len(f.sink.events)-1]
	f.sink.mu.Unlock()
	assert.Equal(t, EventReadersCleared, last.Type)
	assert.Equal(t, []string{"A", "B", "C"}, last.Details["reader_ids"])

	require.ErrorIs(t, f.reg.DeleteAllReaders(ctx), ReadersListAlreadyIsEmpty)
}

func TestRegistry_LoadStartsDisconnected(t *testing.T) {
	f := newFixture(t)
	f.store.cfgs = []Config{
		{ID: "A", BusAddr: 1, PortNumber: 1},
		{ID: "B", BusAddr: 2, PortNumber: 3},
		{ID: "[bad]", BusAddr: 2, PortNumber: 3},
	}

	require.NoError(t, f.reg.Load(context.Background()))
	assert.Equal(t, map[string]ReaderInfo{
		"A": {BusAddr: 1, PortNumber: 1},
		"B": {BusAddr: 2, PortNumber: 3},
	}, f.reg.ListReaders())
}

func TestRegistry_PersistsThroughINIStore(t *testing.T) {
	path := settingsPath(t)
	ctx := context.Background()

	reg := NewRegistry(RegistryConfig{Driver: driver.NewSimulator(), Store: NewINIStore(path)})
	require.NoError(t, reg.AddReader(ctx, Fields{FieldReaderID: "dock", FieldBusAddr: 3, FieldPortNumber: 2}))
	require.NoError(t, reg.AddReader(ctx, Fields{FieldReaderID: "gate", FieldBusAddr: 4, FieldPortNumber: 2}))

	reloaded := NewRegistry(RegistryConfig{Driver: driver.NewSimulator(), Store: NewINIStore(path)})
	require.NoError(t, reloaded.Load(ctx))
	assert.Equal(t, reg.ListReaders(), reloaded.ListReaders())
}

func TestRegistry_NegativePortNumberIsAccepted(t *testing.T) {
	path := settingsPath(t)
	ctx := context.Background()

	reg := NewRegistry(RegistryConfig{Driver: driver.NewSimulator(), Store: NewINIStore(path)})
	require.NoError(t, reg.AddReader(ctx, Fields{FieldReaderID: "dock", FieldBusAddr: 3, FieldPortNumber: -2}))

	reloaded := NewRegistry(RegistryConfig{Driver: driver.NewSimulator(), Store: NewINIStore(path)})
	require.NoError(t, reloaded.Load(ctx))
	info, err := reloaded.GetReader("dock")
	require.NoError(t, err)
	assert.Equal(t, -2, info.PortNumber)
}

func TestRegistry_CloseReleasesSessions(t *testing.T) {
	f := newFixture(t)
	f.addConnected(t, "A", 1, 1)
	f.addConnected(t, "B", 2, 1)
	require.Equal(t, 2, f.sim.Live())

	f.reg.Close(context.Background())
	assert.Zero(t, f.sim.Live())
	assert.Equal(t, 2, f.sim.Released())
	for _, info := range f.reg.ListReaders() {
		assert.False(t, info.State)
	}
}
