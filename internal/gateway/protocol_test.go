package gateway

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/soyeahso/eventhost/internal/plugin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRequest(t *testing.T) {
	frame, err := NewRequest("req-1", "event.submit", SubmitParams{Payload: map[string]any{"k6": "run"}})
	require.NoError(t, err)
	assert.Equal(t, FrameTypeRequest, frame.Type)
	assert.Equal(t, "req-1", frame.ID)
	assert.Equal(t, "event.submit", frame.Method)
	assert.JSONEq(t, `{"payload":{"k6":"run"}}`, string(frame.Params))
}

func TestNewResponse(t *testing.T) {
	frame, err := NewResponse("req-1", HealthResponse{Status: "ok"})
	require.NoError(t, err)
	assert.Equal(t, FrameTypeResponse, frame.Type)
	require.NotNil(t, frame.OK)
	assert.True(t, *frame.OK)
	assert.JSONEq(t, `{"status":"ok"}`, string(frame.Payload))
	assert.Nil(t, frame.Error)
}

func TestNewErrorResponse(t *testing.T) {
	frame := NewErrorResponse("req-2", ErrorShape{Code: "unavailable", Message: "host is shutting down"})
	require.NotNil(t, frame.OK)
	assert.False(t, *frame.OK)
	require.NotNil(t, frame.Error)
	assert.Equal(t, "unavailable", frame.Error.Code)

	data, err := json.Marshal(frame)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "payload")
	assert.NotContains(t, string(data), "retryable")
}

func TestNewEvent(t *testing.T) {
	out := plugin.Outcome{
		EventID: "ev-1",
		Results: []plugin.Result{{Plugin: "file_logger", Status: plugin.StatusDelivered, Duration: time.Millisecond}},
	}
	frame, err := NewEvent(EventOutcome, out, 7)
	require.NoError(t, err)
	assert.Equal(t, FrameTypeEvent, frame.Type)
	assert.Equal(t, EventOutcome, frame.Event)
	assert.Equal(t, int64(7), frame.Seq)

	var decoded plugin.Outcome
	require.NoError(t, json.Unmarshal(frame.Payload, &decoded))
	assert.Equal(t, out, decoded)
}

func TestConnectParams_OmitsNilAuth(t *testing.T) {
	data, err := json.Marshal(ConnectParams{MinProtocol: 1, MaxProtocol: 1, Client: ClientInfo{ID: "evctl", Version: "dev"}})
	require.NoError(t, err)
	assert.NotContains(t, string(data), `"auth"`)
}

func TestSubmitParams_RequiresObject(t *testing.T) {
	var p SubmitParams
	assert.Error(t, json.Unmarshal([]byte(`{"payload":[1,2]}`), &p))
	assert.Error(t, json.Unmarshal([]byte(`{"payload":"text"}`), &p))

	p = SubmitParams{}
	require.NoError(t, json.Unmarshal([]byte(`{}`), &p))
	assert.Nil(t, p.Payload)
}

func TestPluginsResponse_JSON(t *testing.T) {
	resp := PluginsResponse{
		Plugins: []plugin.Descriptor{
			{Name: "recorder", Source: "/p/recorder_plugin.yaml", State: plugin.StateLoaded},
			{Name: "broken", Source: "/p/broken_plugin.lua", State: plugin.StateFailed, LastError: "load error"},
		},
		Stats: plugin.Stats{Events: 3, Delivered: 3},
	}
	data, err := json.Marshal(resp)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"state":"loaded"`)
	assert.Contains(t, string(data), `"state":"failed"`)

	var decoded PluginsResponse
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, resp, decoded)
}
