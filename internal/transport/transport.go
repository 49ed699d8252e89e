// Package transport carries the control/query command set across a
// process boundary as tagged JSON messages: {"kind": "...", "params":
// {...}} in, {"ok": true, "result": ...} or {"ok": false, "error": {...}}
// out.
package transport

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/troubadour-audio/troubadour/internal/config"
	"github.com/troubadour-audio/troubadour/internal/device"
	"github.com/troubadour-audio/troubadour/internal/engine"
)

// Request is one tagged command message. RequestID is optional; when a
// caller omits it, Dispatch assigns one so every response can still be
// correlated with its request in logs shared across multiple callers.
type Request struct {
	Kind      string          `json:"kind"`
	RequestID string          `json:"request_id,omitempty"`
	Params    json.RawMessage `json:"params,omitempty"`
}

// Response is the tagged reply: exactly one of Result or Error is set.
type Response struct {
	RequestID string     `json:"request_id"`
	Ok        bool       `json:"ok"`
	Result    any        `json:"result,omitempty"`
	Error     *WireError `json:"error,omitempty"`
}

// WireError is the typed failure shape carried over the wire.
type WireError struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// Server dispatches Requests against an engine, a device context, and a
// preset directory.
type Server struct {
	Engine  *engine.Engine
	DevCtx  *device.Context
	Presets *config.PresetDirectory
	Stream  device.StreamConfig
}

// Dispatch decodes, routes, and executes one request, returning its
// response. It never panics on malformed input: decode failures and
// unknown kinds both become a ValidationError response. The response
// always carries req.RequestID, generating one if the caller left it
// blank.
func (s *Server) Dispatch(req Request) Response {
	if req.RequestID == "" {
		req.RequestID = uuid.NewString()
	}

	var resp Response
	if handler, ok := handlers[req.Kind]; ok {
		resp = handler(s, req.Params)
	} else {
		resp = errorResponse(engine.KindValidation, fmt.Sprintf("unknown command kind %q", req.Kind))
	}
	resp.RequestID = req.RequestID
	return resp
}

// DispatchJSON is Dispatch's wire-level convenience form: parse raw into a
// Request, dispatch it, and marshal the Response back to JSON.
func (s *Server) DispatchJSON(raw []byte) []byte {
	var req Request
	if err := json.Unmarshal(raw, &req); err != nil {
		resp := errorResponse(engine.KindValidation, fmt.Sprintf("malformed request: %v", err))
		out, _ := json.Marshal(resp)
		return out
	}
	resp := s.Dispatch(req)
	out, err := json.Marshal(resp)
	if err != nil {
		out, _ = json.Marshal(errorResponse(engine.KindValidation, "failed to encode response"))
	}
	return out
}

type handlerFunc func(s *Server, params json.RawMessage) Response

func okResponse(result any) Response {
	return Response{Ok: true, Result: result}
}

func errorResponse(kind engine.Kind, message string) Response {
	return Response{Ok: false, Error: &WireError{Kind: kind.String(), Message: message}}
}

// fromEngineError maps an *engine.Error (or, failing that, any other
// error) to a WireError-bearing Response.
func fromEngineError(err error) Response {
	if engErr, ok := engine.AsEngineError(err); ok {
		return errorResponse(engErr.Kind, engErr.Message)
	}
	return errorResponse(engine.KindValidation, err.Error())
}

func decodeParams(params json.RawMessage, v any) error {
	if len(params) == 0 {
		return nil
	}
	if err := json.Unmarshal(params, v); err != nil {
		return fmt.Errorf("invalid params: %w", err)
	}
	return nil
}

var handlers = map[string]handlerFunc{
	"list-audio-devices":       handleListAudioDevices,
	"list-input-devices":       handleListInputDevices,
	"list-output-devices":      handleListOutputDevices,
	"get-channels":             handleGetChannels,
	"get-buses":                handleGetBuses,
	"add-channel":              handleAddChannel,
	"remove-channel":           handleRemoveChannel,
	"set-volume":               handleSetVolume,
	"toggle-mute":              handleToggleMute,
	"toggle-solo":              handleToggleSolo,
	"set-channel-input-device": handleSetChannelInputDevice,
	"get-channel-input-device": handleGetChannelInputDevice,
	"set-channel-buses":        handleSetChannelBuses,
	"get-channel-buses":        handleGetChannelBuses,
	"set-channel-effects":      handleSetChannelEffects,
	"get-channel-effects":      handleGetChannelEffects,
	"set-bus-output-device":    handleSetBusOutputDevice,
	"set-bus-volume":           handleSetBusVolume,
	"toggle-bus-mute":          handleToggleBusMute,
	"load-config":              handleLoadConfig,
	"save-config":              handleSaveConfig,
	"list-presets":             handleListPresets,
	"load-preset":              handleLoadPreset,
	"save-preset":              handleSavePreset,
	"delete-preset":            handleDeletePreset,
}
