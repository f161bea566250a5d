package actuation

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/me-box/databox-driver-phillipshue/internal/channel"
	"github.com/me-box/databox-driver-phillipshue/internal/ledger"
	"github.com/me-box/databox-driver-phillipshue/internal/store"
)

type stateCall struct {
	LightID string
	Attrs   map[string]any
}

type fakeBridge struct {
	mu    sync.Mutex
	calls []stateCall
	err   error
}

func (f *fakeBridge) SetLightState(_ context.Context, lightID string, attrs map[string]any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, stateCall{LightID: lightID, Attrs: attrs})
	return f.err
}

func (f *fakeBridge) Calls() []stateCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]stateCall(nil), f.calls...)
}

type recordedOutcome struct {
	Type      ledger.EventType
	ChannelID string
	EventID   string
	Payload   map[string]any
}

type fakeRecorder struct {
	mu      sync.Mutex
	entries []recordedOutcome
}

func (f *fakeRecorder) Append(_ context.Context, eventType ledger.EventType, channelID, correlationID string, payload map[string]any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.entries = append(f.entries, recordedOutcome{eventType, channelID, correlationID, payload})
	return nil
}

func (f *fakeRecorder) Types() []ledger.EventType {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []ledger.EventType
	for _, e := range f.entries {
		out = append(out, e.Type)
	}
	return out
}

func TestDecode(t *testing.T) {
	tests := []struct {
		name      string
		channelID string
		payload   string
		wantLight string
		wantAttr  channel.Attribute
		wantValue any
		wantErr   error
	}{
		{"record hue", "set-bulb-hue-3", `{"data":1000}`, "3", channel.Hue, 1000, nil},
		{"bare on", "set-bulb-on-1", `true`, "1", channel.On, true, nil},
		{"string on", "set-bulb-on-1", `{"data":"off"}`, "1", channel.On, false, nil},
		{"numeric string bri", "set-bulb-bri-12", `"200"`, "12", channel.Bri, 200, nil},
		{"ct in range", "set-bulb-ct-2", `{"data":366}`, "2", channel.CT, 366, nil},
		{"hue above range", "set-bulb-hue-3", `{"data":70000}`, "", "", nil, ErrMalformedPayload},
		{"bri zero", "set-bulb-bri-3", `0`, "", "", nil, ErrMalformedPayload},
		{"fractional sat", "set-bulb-sat-3", `12.5`, "", "", nil, ErrMalformedPayload},
		{"not a boolean", "set-bulb-on-3", `"maybe"`, "", "", nil, ErrMalformedPayload},
		{"object without data", "set-bulb-on-3", `{"value":true}`, "", "", nil, ErrMalformedPayload},
		{"invalid json", "set-bulb-on-3", `{`, "", "", nil, ErrMalformedPayload},
		{"empty payload", "set-bulb-on-3", ``, "", "", nil, ErrMalformedPayload},
		{"unknown attribute", "set-bulb-xy-3", `1`, "", "", nil, ErrMalformedChannel},
		{"telemetry channel", "bulb-on-3", `true`, "", "", nil, ErrMalformedChannel},
		{"non numeric id", "set-bulb-on-abc", `true`, "", "", nil, ErrMalformedChannel},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cmd, err := Decode(store.Event{ID: "ev", ChannelID: tt.channelID, Payload: []byte(tt.payload)})
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantLight, cmd.LightID)
			assert.Equal(t, tt.wantAttr, cmd.Attribute)
			assert.Equal(t, tt.wantValue, cmd.Value)
			assert.Equal(t, map[string]any{string(tt.wantAttr): tt.wantValue}, cmd.State())
		})
	}
}

func TestHandleAppliesAndRecords(t *testing.T) {
	bridge := &fakeBridge{}
	recorder := &fakeRecorder{}
	relay := New(store.NewMemory(), bridge, recorder, nil, time.Second)

	relay.Handle(context.Background(), store.Event{ID: "e1", ChannelID: "set-bulb-hue-3", Payload: []byte(`{"data":1000}`)})

	assert.Equal(t, []stateCall{{LightID: "3", Attrs: map[string]any{"hue": 1000}}}, bridge.Calls())
	require.Len(t, recorder.entries, 1)
	assert.Equal(t, ledger.EventActuationApplied, recorder.entries[0].Type)
	assert.Equal(t, "e1", recorder.entries[0].EventID)
	assert.Equal(t, "set-bulb-hue-3", recorder.entries[0].ChannelID)
}

func TestHandleDropsMalformed(t *testing.T) {
	bridge := &fakeBridge{}
	recorder := &fakeRecorder{}
	relay := New(store.NewMemory(), bridge, recorder, nil, time.Second)

	relay.Handle(context.Background(), store.Event{ID: "e1", ChannelID: "set-bulb-hue-3", Payload: []byte(`{"data":"red"}`)})
	relay.Handle(context.Background(), store.Event{ID: "e2", ChannelID: "set-bulb-xy-3", Payload: []byte(`1`)})

	assert.Empty(t, bridge.Calls())
	assert.Equal(t, []ledger.EventType{ledger.EventActuationRejected, ledger.EventActuationRejected}, recorder.Types())
}

func TestHandleBridgeFailureIsNotRetried(t *testing.T) {
	bridge := &fakeBridge{err: errors.New("bridge unreachable")}
	recorder := &fakeRecorder{}
	relay := New(store.NewMemory(), bridge, recorder, nil, time.Second)

	relay.Handle(context.Background(), store.Event{ID: "e1", ChannelID: "set-bulb-on-1", Payload: []byte(`true`)})

	assert.Len(t, bridge.Calls(), 1)
	assert.Equal(t, []ledger.EventType{ledger.EventActuationFailed}, recorder.Types())
}

func TestWatchRelaysInOrder(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	mem := store.NewMemory()
	bridge := &fakeBridge{}
	relay := New(mem, bridge, nil, nil, time.Second)

	require.NoError(t, relay.Watch(ctx, "set-bulb-bri-2"))
	require.NoError(t, relay.Watch(ctx, "set-bulb-bri-2"))
	assert.True(t, relay.IsWatching("set-bulb-bri-2"))
	assert.Equal(t, 1, mem.Subscribers("set-bulb-bri-2"), "watching twice keeps one subscription")

	mem.Publish("set-bulb-bri-2", []byte(`{"data":10}`))
	mem.Publish("set-bulb-bri-2", []byte(`{"data":20}`))
	mem.Publish("set-bulb-bri-2", []byte(`{"data":30}`))

	require.Eventually(t, func() bool { return len(bridge.Calls()) == 3 }, time.Second, 5*time.Millisecond)
	var got []any
	for _, c := range bridge.Calls() {
		assert.Equal(t, "2", c.LightID)
		got = append(got, c.Attrs["bri"])
	}
	assert.Equal(t, []any{10, 20, 30}, got)

	cancel()
	relay.Wait()
	assert.False(t, relay.IsWatching("set-bulb-bri-2"))
}

func TestWatchSubscribeFailure(t *testing.T) {
	mem := store.NewMemory()
	mem.FailSubscribe("set-bulb-on-1", errors.New("broker down"))
	relay := New(mem, &fakeBridge{}, nil, nil, time.Second)

	err := relay.Watch(context.Background(), "set-bulb-on-1")
	assert.ErrorIs(t, err, store.ErrSubscribeFailed)
	assert.False(t, relay.IsWatching("set-bulb-on-1"))

	mem.FailSubscribe("set-bulb-on-1", nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, relay.Watch(ctx, "set-bulb-on-1"))
	assert.True(t, relay.IsWatching("set-bulb-on-1"))
}

type staticRoutes map[string]string

func (s staticRoutes) Resolve(channelKey string) (string, bool) {
	ordinal, ok := s[channelKey]
	return ordinal, ok
}

func TestHandleFollowsRenumberedLight(t *testing.T) {
	bridge := &fakeBridge{}
	recorder := &fakeRecorder{}
	relay := New(store.NewMemory(), bridge, recorder, staticRoutes{"bulb-1": "4"}, time.Second)

	relay.Handle(context.Background(), store.Event{ID: "e1", ChannelID: "set-bulb-on-1", Payload: []byte(`{"data":false}`)})
	relay.Handle(context.Background(), store.Event{ID: "e2", ChannelID: "set-bulb-on-2", Payload: []byte(`{"data":true}`)})

	assert.Equal(t, []stateCall{
		{LightID: "4", Attrs: map[string]any{"on": false}},
		{LightID: "2", Attrs: map[string]any{"on": true}},
	}, bridge.Calls(), "unknown channel keys fall back to the channel ordinal")
	require.Len(t, recorder.entries, 2)
	assert.Equal(t, "4", recorder.entries[0].Payload["light"])
}
