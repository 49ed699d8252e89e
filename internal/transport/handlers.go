package transport

import (
	"encoding/json"
	"fmt"

	"github.com/troubadour-audio/troubadour/internal/engine"
	"github.com/troubadour-audio/troubadour/internal/mixer"
)

func handleListAudioDevices(s *Server, _ json.RawMessage) Response {
	if s.DevCtx == nil {
		return errorResponse(engine.KindDevice, "no audio context available")
	}
	captures, err := s.DevCtx.ListCaptureDevices()
	if err != nil {
		return errorResponse(engine.KindDevice, err.Error())
	}
	playbacks, err := s.DevCtx.ListPlaybackDevices()
	if err != nil {
		return errorResponse(engine.KindDevice, err.Error())
	}
	return okResponse(append(captures, playbacks...))
}

func handleListInputDevices(s *Server, _ json.RawMessage) Response {
	if s.DevCtx == nil {
		return errorResponse(engine.KindDevice, "no audio context available")
	}
	devs, err := s.DevCtx.ListCaptureDevices()
	if err != nil {
		return errorResponse(engine.KindDevice, err.Error())
	}
	return okResponse(devs)
}

func handleListOutputDevices(s *Server, _ json.RawMessage) Response {
	if s.DevCtx == nil {
		return errorResponse(engine.KindDevice, "no audio context available")
	}
	devs, err := s.DevCtx.ListPlaybackDevices()
	if err != nil {
		return errorResponse(engine.KindDevice, err.Error())
	}
	return okResponse(devs)
}

func handleGetChannels(s *Server, _ json.RawMessage) Response {
	snap := s.Engine.GetSnapshot()
	return okResponse(snap.Channels)
}

func handleGetBuses(s *Server, _ json.RawMessage) Response {
	snap := s.Engine.GetSnapshot()
	return okResponse(snap.Buses)
}

type idNameParams struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

func handleAddChannel(s *Server, params json.RawMessage) Response {
	var p idNameParams
	if err := decodeParams(params, &p); err != nil {
		return errorResponse(engine.KindValidation, err.Error())
	}
	res, err := s.Engine.AddChannel(p.ID, p.Name)
	if err != nil {
		return fromEngineError(err)
	}
	return okResponse(res)
}

type idParams struct {
	ID string `json:"id"`
}

func handleRemoveChannel(s *Server, params json.RawMessage) Response {
	var p idParams
	if err := decodeParams(params, &p); err != nil {
		return errorResponse(engine.KindValidation, err.Error())
	}
	res, err := s.Engine.RemoveChannel(p.ID)
	if err != nil {
		return fromEngineError(err)
	}
	return okResponse(res)
}

type volumeParams struct {
	ID       string  `json:"id"`
	VolumeDB float64 `json:"volume_db"`
}

func handleSetVolume(s *Server, params json.RawMessage) Response {
	var p volumeParams
	if err := decodeParams(params, &p); err != nil {
		return errorResponse(engine.KindValidation, err.Error())
	}
	res, err := s.Engine.SetVolume(p.ID, p.VolumeDB)
	if err != nil {
		return fromEngineError(err)
	}
	return okResponse(res)
}

func handleToggleMute(s *Server, params json.RawMessage) Response {
	var p idParams
	if err := decodeParams(params, &p); err != nil {
		return errorResponse(engine.KindValidation, err.Error())
	}
	res, err := s.Engine.ToggleMute(p.ID)
	if err != nil {
		return fromEngineError(err)
	}
	return okResponse(res)
}

func handleToggleSolo(s *Server, params json.RawMessage) Response {
	var p idParams
	if err := decodeParams(params, &p); err != nil {
		return errorResponse(engine.KindValidation, err.Error())
	}
	res, err := s.Engine.ToggleSolo(p.ID)
	if err != nil {
		return fromEngineError(err)
	}
	return okResponse(res)
}

type deviceAssignParams struct {
	ID       string  `json:"id"`
	DeviceID *string `json:"device_id"`
}

func handleSetChannelInputDevice(s *Server, params json.RawMessage) Response {
	var p deviceAssignParams
	if err := decodeParams(params, &p); err != nil {
		return errorResponse(engine.KindValidation, err.Error())
	}
	res, err := s.Engine.SetChannelInputDevice(p.ID, p.DeviceID, s.Stream)
	if err != nil {
		return fromEngineError(err)
	}
	return okResponse(res)
}

func handleGetChannelInputDevice(s *Server, params json.RawMessage) Response {
	var p idParams
	if err := decodeParams(params, &p); err != nil {
		return errorResponse(engine.KindValidation, err.Error())
	}
	snap := s.Engine.GetSnapshot()
	for _, ch := range snap.Channels {
		if ch.ID == p.ID {
			return okResponse(ch.InputDevice)
		}
	}
	return errorResponse(engine.KindNotFound, fmt.Sprintf("channel %q not found", p.ID))
}

type busMembershipParams struct {
	ID     string   `json:"id"`
	BusIDs []string `json:"bus_ids"`
}

func handleSetChannelBuses(s *Server, params json.RawMessage) Response {
	var p busMembershipParams
	if err := decodeParams(params, &p); err != nil {
		return errorResponse(engine.KindValidation, err.Error())
	}
	res, err := s.Engine.SetChannelBuses(p.ID, p.BusIDs)
	if err != nil {
		return fromEngineError(err)
	}
	return okResponse(res)
}

func handleGetChannelBuses(s *Server, params json.RawMessage) Response {
	var p idParams
	if err := decodeParams(params, &p); err != nil {
		return errorResponse(engine.KindValidation, err.Error())
	}
	snap := s.Engine.GetSnapshot()
	for _, ch := range snap.Channels {
		if ch.ID == p.ID {
			return okResponse(ch.BusIDs)
		}
	}
	return errorResponse(engine.KindNotFound, fmt.Sprintf("channel %q not found", p.ID))
}

type channelEffectsParams struct {
	ID      string               `json:"id"`
	Effects []mixer.EffectConfig `json:"effects"`
}

func handleSetChannelEffects(s *Server, params json.RawMessage) Response {
	var p channelEffectsParams
	if err := decodeParams(params, &p); err != nil {
		return errorResponse(engine.KindValidation, err.Error())
	}
	res, err := s.Engine.SetChannelEffects(p.ID, p.Effects)
	if err != nil {
		return fromEngineError(err)
	}
	return okResponse(res)
}

func handleGetChannelEffects(s *Server, params json.RawMessage) Response {
	var p idParams
	if err := decodeParams(params, &p); err != nil {
		return errorResponse(engine.KindValidation, err.Error())
	}
	snap := s.Engine.GetSnapshot()
	for _, ch := range snap.Channels {
		if ch.ID == p.ID {
			return okResponse(ch.Effects)
		}
	}
	return errorResponse(engine.KindNotFound, fmt.Sprintf("channel %q not found", p.ID))
}

func handleSetBusOutputDevice(s *Server, params json.RawMessage) Response {
	var p deviceAssignParams
	if err := decodeParams(params, &p); err != nil {
		return errorResponse(engine.KindValidation, err.Error())
	}
	res, err := s.Engine.SetBusOutputDevice(p.ID, p.DeviceID, s.Stream)
	if err != nil {
		return fromEngineError(err)
	}
	return okResponse(res)
}

func handleSetBusVolume(s *Server, params json.RawMessage) Response {
	var p volumeParams
	if err := decodeParams(params, &p); err != nil {
		return errorResponse(engine.KindValidation, err.Error())
	}
	res, err := s.Engine.SetBusVolume(p.ID, p.VolumeDB)
	if err != nil {
		return fromEngineError(err)
	}
	return okResponse(res)
}

func handleToggleBusMute(s *Server, params json.RawMessage) Response {
	var p idParams
	if err := decodeParams(params, &p); err != nil {
		return errorResponse(engine.KindValidation, err.Error())
	}
	res, err := s.Engine.ToggleBusMute(p.ID)
	if err != nil {
		return fromEngineError(err)
	}
	return okResponse(res)
}

func handleLoadConfig(s *Server, params json.RawMessage) Response {
	var p struct {
		Data string `json:"data"`
	}
	if err := decodeParams(params, &p); err != nil {
		return errorResponse(engine.KindValidation, err.Error())
	}
	snap, _, err := decodeConfig([]byte(p.Data))
	if err != nil {
		return errorResponse(engine.KindValidation, err.Error())
	}
	res, err := s.Engine.LoadSnapshot(snap, s.Stream)
	if err != nil {
		return fromEngineError(err)
	}
	return okResponse(res)
}

func handleSaveConfig(s *Server, _ json.RawMessage) Response {
	snap := s.Engine.GetSnapshot()
	data, err := encodeConfig(snap)
	if err != nil {
		return errorResponse(engine.KindValidation, err.Error())
	}
	return okResponse(string(data))
}

type presetNameParams struct {
	Name string `json:"name"`
}

func handleListPresets(s *Server, _ json.RawMessage) Response {
	if s.Presets == nil {
		return errorResponse(engine.KindConflict, "no preset directory configured")
	}
	names, err := s.Presets.List()
	if err != nil {
		return errorResponse(engine.KindDevice, err.Error())
	}
	return okResponse(names)
}

func handleLoadPreset(s *Server, params json.RawMessage) Response {
	if s.Presets == nil {
		return errorResponse(engine.KindConflict, "no preset directory configured")
	}
	var p presetNameParams
	if err := decodeParams(params, &p); err != nil {
		return errorResponse(engine.KindValidation, err.Error())
	}
	snap, _, err := s.Presets.Load(p.Name)
	if err != nil {
		return errorResponse(engine.KindNotFound, err.Error())
	}
	res, err := s.Engine.LoadSnapshot(snap, s.Stream)
	if err != nil {
		return fromEngineError(err)
	}
	return okResponse(res)
}

func handleSavePreset(s *Server, params json.RawMessage) Response {
	if s.Presets == nil {
		return errorResponse(engine.KindConflict, "no preset directory configured")
	}
	var p presetNameParams
	if err := decodeParams(params, &p); err != nil {
		return errorResponse(engine.KindValidation, err.Error())
	}
	snap := s.Engine.GetSnapshot()
	cfg := defaultPresetConfig()
	if err := s.Presets.Save(p.Name, snap, cfg); err != nil {
		return errorResponse(engine.KindDevice, err.Error())
	}
	return okResponse(nil)
}

func handleDeletePreset(s *Server, params json.RawMessage) Response {
	if s.Presets == nil {
		return errorResponse(engine.KindConflict, "no preset directory configured")
	}
	var p presetNameParams
	if err := decodeParams(params, &p); err != nil {
		return errorResponse(engine.KindValidation, err.Error())
	}
	if err := s.Presets.Delete(p.Name); err != nil {
		return errorResponse(engine.KindNotFound, err.Error())
	}
	return okResponse(nil)
}
