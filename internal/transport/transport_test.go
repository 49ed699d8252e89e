package transport

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/troubadour-audio/troubadour/internal/engine"
)

func newTestServer(t testing.TB) *Server {
	t.Helper()
	e, err := engine.New(engine.Config{SampleRate: 48000, FrameLength: 256}, nil)
	require.NoError(t, err)
	return &Server{Engine: e}
}

func TestDispatch_UnknownKindIsValidation(t *testing.T) {
	s := newTestServer(t)
	resp := s.Dispatch(Request{Kind: "not-a-real-command"})
	require.False(t, resp.Ok)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "validation", resp.Error.Kind)
	assert.NotEmpty(t, resp.RequestID)
}

func TestDispatch_AssignsRequestIDWhenMissing(t *testing.T) {
	s := newTestServer(t)
	resp := s.Dispatch(Request{Kind: "get-channels"})
	assert.NotEmpty(t, resp.RequestID)
}

func TestDispatch_PreservesCallerRequestID(t *testing.T) {
	s := newTestServer(t)
	resp := s.Dispatch(Request{Kind: "get-channels", RequestID: "caller-supplied-id"})
	assert.Equal(t, "caller-supplied-id", resp.RequestID)
}

func TestDispatch_AddChannelThenGetChannels(t *testing.T) {
	s := newTestServer(t)

	addParams, err := json.Marshal(idNameParams{ID: "mic", Name: "Mic"})
	require.NoError(t, err)
	resp := s.Dispatch(Request{Kind: "add-channel", Params: addParams})
	require.True(t, resp.Ok)

	resp = s.Dispatch(Request{Kind: "get-channels"})
	require.True(t, resp.Ok)
}

func TestDispatch_RemoveUnknownChannelIsNotFound(t *testing.T) {
	s := newTestServer(t)
	params, err := json.Marshal(idParams{ID: "ghost"})
	require.NoError(t, err)
	resp := s.Dispatch(Request{Kind: "remove-channel", Params: params})
	require.False(t, resp.Ok)
	assert.Equal(t, "not_found", resp.Error.Kind)
}

func TestDispatch_MalformedParamsIsValidation(t *testing.T) {
	s := newTestServer(t)
	resp := s.Dispatch(Request{Kind: "set-volume", Params: json.RawMessage(`{not json`)})
	require.False(t, resp.Ok)
	assert.Equal(t, "validation", resp.Error.Kind)
}

func TestDispatchJSON_RoundTrip(t *testing.T) {
	s := newTestServer(t)
	raw := []byte(`{"kind":"get-buses"}`)
	out := s.DispatchJSON(raw)

	var resp Response
	require.NoError(t, json.Unmarshal(out, &resp))
	assert.True(t, resp.Ok)
}

func TestDispatchJSON_MalformedRequestIsValidation(t *testing.T) {
	s := newTestServer(t)
	out := s.DispatchJSON([]byte(`{"kind": `))

	var resp Response
	require.NoError(t, json.Unmarshal(out, &resp))
	assert.False(t, resp.Ok)
	assert.Equal(t, "validation", resp.Error.Kind)
}

func TestDispatch_ListPresetsWithoutDirectoryIsConflict(t *testing.T) {
	s := newTestServer(t)
	resp := s.Dispatch(Request{Kind: "list-presets"})
	require.False(t, resp.Ok)
	assert.Equal(t, "conflict", resp.Error.Kind)
}

func TestDispatch_ListAudioDevicesWithoutContextIsDeviceError(t *testing.T) {
	s := newTestServer(t)
	resp := s.Dispatch(Request{Kind: "list-audio-devices"})
	require.False(t, resp.Ok)
	assert.Equal(t, "device", resp.Error.Kind)
}
