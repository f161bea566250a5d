package hue

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeBridge struct {
	mu       sync.Mutex
	requests []recordedRequest
	handler  http.HandlerFunc
}

type recordedRequest struct {
	Method string
	Path   string
	Body   string
}

func newFakeBridge(t *testing.T, handler http.HandlerFunc) (*fakeBridge, string) {
	t.Helper()
	fb := &fakeBridge{handler: handler}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		fb.mu.Lock()
		fb.requests = append(fb.requests, recordedRequest{Method: r.Method, Path: r.URL.Path, Body: string(body)})
		fb.mu.Unlock()
		r.Body = io.NopCloser(strings.NewReader(string(body)))
		fb.handler(w, r)
	}))
	t.Cleanup(srv.Close)
	return fb, strings.TrimPrefix(srv.URL, "http://")
}

func (fb *fakeBridge) last() recordedRequest {
	fb.mu.Lock()
	defer fb.mu.Unlock()
	return fb.requests[len(fb.requests)-1]
}

func TestSetLightStateSendsOnlyGivenAttributes(t *testing.T) {
	fb, addr := newFakeBridge(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[{"success":{"/lights/7/state/hue":1000}}]`))
	})

	client := NewClient(addr, "token", time.Second, 100)
	err := client.SetLightState(context.Background(), "7", map[string]any{"hue": 1000})
	require.NoError(t, err)

	req := fb.last()
	assert.Equal(t, http.MethodPut, req.Method)
	assert.Equal(t, "/api/token/lights/7/state", req.Path)
	assert.JSONEq(t, `{"hue":1000}`, req.Body)
}

func TestSetLightStateAPIError(t *testing.T) {
	_, addr := newFakeBridge(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[{"error":{"type":201,"address":"/lights/7/state/bri","description":"parameter, bri, is not modifiable. Device is set to off."}}]`))
	})

	client := NewClient(addr, "token", time.Second, 100)
	err := client.SetLightState(context.Background(), "7", map[string]any{"bri": 10})
	require.Error(t, err)

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, 201, apiErr.Type)
}

func TestSetLightStateHTTPFailure(t *testing.T) {
	_, addr := newFakeBridge(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	})

	client := NewClient(addr, "token", time.Second, 100)
	err := client.SetLightState(context.Background(), "1", map[string]any{"on": true})
	assert.Error(t, err)
}

func TestLightsAndSensors(t *testing.T) {
	_, addr := newFakeBridge(t, func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.HasSuffix(r.URL.Path, "/lights"):
			json.NewEncoder(w).Encode(map[string]any{
				"2": map[string]any{
					"name": "Kitchen", "uniqueid": "00:17:88:01:00:bd:c7:b9-0b", "type": "Extended color light",
					"state": map[string]any{"on": true, "bri": 254, "hue": 8402, "sat": 140, "ct": 366, "reachable": true},
				},
				"1": map[string]any{
					"name": "Hall", "uniqueid": "00:17:88:01:00:aa:aa:aa-0b", "type": "Dimmable light",
					"state": map[string]any{"on": false, "bri": 10, "reachable": true},
				},
			})
		case strings.HasSuffix(r.URL.Path, "/sensors"):
			json.NewEncoder(w).Encode(map[string]any{
				"1": map[string]any{"name": "Daylight", "type": "Daylight", "state": map[string]any{"daylight": true}},
				"5": map[string]any{
					"name": "Hall motion", "type": "ZLLPresence", "uniqueid": "00:17:88:01:02:03:04:05-02-0406",
					"state": map[string]any{"presence": false},
				},
			})
		default:
			http.NotFound(w, r)
		}
	})

	client := NewClient(addr, "token", time.Second, 100)

	lights, err := client.Lights(context.Background())
	require.NoError(t, err)
	require.Len(t, lights, 2)
	assert.Equal(t, "1", lights[0].ID)
	assert.Equal(t, "Hall", lights[0].Name)
	assert.Equal(t, "2", lights[1].ID)
	assert.Equal(t, LightState{On: true, Bri: 254, Hue: 8402, Sat: 140, CT: 366, Reachable: true}, lights[1].State)

	sensors, err := client.Sensors(context.Background())
	require.NoError(t, err)
	require.Len(t, sensors, 1, "sensors without a unique id are skipped")
	assert.Equal(t, "5", sensors[0].ID)
	assert.Equal(t, false, sensors[0].State["presence"])
}

func TestPair(t *testing.T) {
	tests := []struct {
		name     string
		response string
		want     string
		wantErr  error
	}{
		{
			name:     "success",
			response: `[{"success":{"username":"83b7780291a6ceffbe0bd049104df"}}]`,
			want:     "83b7780291a6ceffbe0bd049104df",
		},
		{
			name:     "link button not pressed",
			response: `[{"error":{"type":101,"address":"","description":"link button not pressed"}}]`,
			wantErr:  ErrLinkButton,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fb, addr := newFakeBridge(t, func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte(tt.response))
			})

			got, err := Pair(context.Background(), "http://"+addr+"/", "databox")
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)

			req := fb.last()
			assert.Equal(t, http.MethodPost, req.Method)
			assert.Contains(t, req.Body, "databox")
		})
	}
}

func TestPairEmptyAddress(t *testing.T) {
	_, err := Pair(context.Background(), "  ", "databox")
	assert.Error(t, err)
}
