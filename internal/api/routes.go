package api

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/radio-control/meshchan/internal/audit"
	"github.com/radio-control/meshchan/internal/auth"
	"github.com/radio-control/meshchan/internal/channels"
	"github.com/radio-control/meshchan/internal/telemetry"
)

// maxBodyBytes caps request bodies; a channel update is a few hundred bytes.
const maxBodyBytes = 4096

// RegisterRoutes registers all v1 endpoints.
func (s *Server) RegisterRoutes(mux *http.ServeMux) {
	apiV1 := "/api/v1"
	m := s.authMiddleware

	// Health endpoint (no auth required)
	mux.HandleFunc("GET "+apiV1+"/health", s.handleHealth)

	mux.HandleFunc("GET "+apiV1+"/channels", m.Protect(s.handleListChannels, auth.ScopeRead))
	mux.HandleFunc("GET "+apiV1+"/channels/{index}", m.Protect(s.handleGetChannel, auth.ScopeRead))
	mux.HandleFunc("PUT "+apiV1+"/channels/{index}", m.Protect(s.handleSetChannel, auth.ScopeAdmin))
	mux.HandleFunc("POST "+apiV1+"/channels/mqtt/cycle", m.Protect(s.handleCycleDownlink, auth.ScopeAdmin))

	mux.HandleFunc("GET "+apiV1+"/events", m.Protect(s.handleEvents, auth.ScopeTelemetry))
}

// ChannelView is the wire form of a channel slot. Key material is never returned.
type ChannelView struct {
	Index             int    `json:"index"`
	Name              string `json:"name"`
	Role              string `json:"role"`
	Hash              int16  `json:"hash"`
	IsDefault         bool   `json:"isDefault"`
	PSKLen            int    `json:"pskLen"`
	ChannelNum        uint32 `json:"channelNum"`
	ID                uint32 `json:"id"`
	UplinkEnabled     bool   `json:"uplinkEnabled"`
	DownlinkEnabled   bool   `json:"downlinkEnabled"`
	PositionPrecision uint32 `json:"positionPrecision"`
	ClientMuted       bool   `json:"clientMuted"`
}

// ChannelRequest is the body of PUT /channels/{index}. PSK is base64; an empty string
// means no encryption and "AQ==" selects the public default key.
type ChannelRequest struct {
	Role              string `json:"role"`
	Name              string `json:"name"`
	PSK               string `json:"psk"`
	ChannelNum        uint32 `json:"channelNum"`
	ID                uint32 `json:"id"`
	UplinkEnabled     bool   `json:"uplinkEnabled"`
	DownlinkEnabled   bool   `json:"downlinkEnabled"`
	PositionPrecision uint32 `json:"positionPrecision"`
	ClientMuted       bool   `json:"clientMuted"`
}

func (req ChannelRequest) toChannel() (channels.Channel, error) {
	role, err := channels.ParseRole(strings.ToUpper(strings.TrimSpace(req.Role)))
	if err != nil {
		return channels.Channel{}, &channels.ValidationError{Field: "role", Reason: err.Error()}
	}
	psk, err := base64.StdEncoding.DecodeString(req.PSK)
	if err != nil {
		return channels.Channel{}, &channels.ValidationError{Field: "psk", Reason: "not valid base64"}
	}
	return channels.Channel{
		Role: role,
		Settings: channels.Settings{
			PSK:             psk,
			Name:            req.Name,
			ChannelNum:      req.ChannelNum,
			ID:              req.ID,
			UplinkEnabled:   req.UplinkEnabled,
			DownlinkEnabled: req.DownlinkEnabled,
			Module: channels.ModuleSettings{
				PositionPrecision: req.PositionPrecision,
				ClientMuted:       req.ClientMuted,
			},
		},
	}, nil
}

func (s *Server) view(ch channels.Channel) ChannelView {
	return ChannelView{
		Index:             ch.Index,
		Name:              s.channels.GetName(ch.Index),
		Role:              ch.Role.String(),
		Hash:              s.channels.Hash(ch.Index),
		IsDefault:         channels.IsDefaultChannel(ch),
		PSKLen:            len(ch.Settings.PSK),
		ChannelNum:        ch.Settings.ChannelNum,
		ID:                ch.Settings.ID,
		UplinkEnabled:     ch.Settings.UplinkEnabled,
		DownlinkEnabled:   ch.Settings.DownlinkEnabled,
		PositionPrecision: ch.Settings.Module.PositionPrecision,
		ClientMuted:       ch.Settings.Module.ClientMuted,
	}
}

// handleHealth handles GET /health
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	params := s.channels.Params()
	WriteSuccess(w, map[string]interface{}{
		"status":    "ok",
		"uptimeSec": int64(time.Since(s.startTime).Seconds()),
		"channels":  s.channels.NumChannels(),
		"primary":   s.channels.PrimaryIndex(),
		"region":    params.Region.String(),
		"preset":    params.Preset.String(),
	})
}

// handleListChannels handles GET /channels
func (s *Server) handleListChannels(w http.ResponseWriter, r *http.Request) {
	list := s.channels.Channels()
	views := make([]ChannelView, 0, len(list))
	for _, ch := range list {
		views = append(views, s.view(ch))
	}
	WriteSuccess(w, map[string]interface{}{
		"channels":          views,
		"primary":           s.channels.PrimaryIndex(),
		"active":            s.channels.ActiveIndex(),
		"hasDefaultChannel": s.channels.HasDefaultChannel(),
		"mqttEnabled":       s.channels.AnyMqttEnabled(),
	})
}

// handleGetChannel handles GET /channels/{index}
func (s *Server) handleGetChannel(w http.ResponseWriter, r *http.Request) {
	index, err := pathIndex(r)
	if err != nil {
		writeAPIError(w, err)
		return
	}

	list := s.channels.Channels()
	if index >= len(list) {
		writeAPIError(w, fmt.Errorf("channel %d: %w", index, ErrNotFound))
		return
	}
	WriteSuccess(w, s.view(list[index]))
}

// handleSetChannel handles PUT /channels/{index}
func (s *Server) handleSetChannel(w http.ResponseWriter, r *http.Request) {
	ctx := s.auditContext(r)

	index, err := pathIndex(r)
	if err != nil {
		s.recordAudit(r, "set_channel", -1, nil, err)
		writeAPIError(w, err)
		return
	}

	var req ChannelRequest
	if err := decodeStrict(r, &req); err != nil {
		WriteError(w, http.StatusBadRequest, "BAD_REQUEST", err.Error(), nil)
		return
	}

	ch, err := req.toChannel()
	if err != nil {
		s.recordAudit(r, "set_channel", index, auditParams(req), err)
		writeAPIError(w, err)
		return
	}

	before := s.channels.PrimaryIndex()
	beforeDownlink := downlinkHolder(s.channels.Channels())

	err = s.channels.SetChannel(ctx, ch, index)
	s.recordAudit(r, "set_channel", index, auditParams(req), err)

	persisted := true
	if err != nil {
		if !channels.IsPersistence(err) {
			writeAPIError(w, err)
			return
		}
		persisted = false
		s.log.WithError(err).WithField("index", index).Warn("Channel applied but not persisted")
	}

	list := s.channels.Channels()
	view := s.view(list[index])
	s.publish(telemetry.EventChannel, map[string]interface{}{
		"index":     index,
		"name":      view.Name,
		"role":      view.Role,
		"hash":      view.Hash,
		"persisted": persisted,
	})
	if after := s.channels.PrimaryIndex(); after != before {
		s.publish(telemetry.EventPrimary, map[string]interface{}{"from": before, "to": after})
	}
	if after := downlinkHolder(list); after != beforeDownlink {
		s.publish(telemetry.EventDownlink, map[string]interface{}{"from": beforeDownlink, "to": after})
	}

	resp := map[string]interface{}{"channel": view, "persisted": persisted}
	if !persisted {
		resp["warning"] = "channel applied in memory but could not be saved"
	}
	WriteSuccess(w, resp)
}

// handleCycleDownlink handles POST /channels/mqtt/cycle
func (s *Server) handleCycleDownlink(w http.ResponseWriter, r *http.Request) {
	before := downlinkHolder(s.channels.Channels())

	index, err := s.channels.CycleMqttDownlink(s.auditContext(r))
	s.recordAudit(r, "cycle_downlink", index, nil, err)

	persisted := true
	if err != nil {
		if !channels.IsPersistence(err) {
			writeAPIError(w, err)
			return
		}
		persisted = false
		s.log.WithError(err).Warn("Downlink moved but not persisted")
	}

	if index >= 0 && index != before {
		s.publish(telemetry.EventDownlink, map[string]interface{}{"from": before, "to": index})
	}
	WriteSuccess(w, map[string]interface{}{
		"downlink":  index,
		"changed":   index >= 0,
		"persisted": persisted,
	})
}

// handleEvents handles GET /events
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	if s.telemetryHub == nil {
		WriteError(w, http.StatusServiceUnavailable, "UNAVAILABLE", "Event stream not available", nil)
		return
	}

	// The stream outlives the server write timeout.
	_ = http.NewResponseController(w).SetWriteDeadline(time.Time{})

	if err := s.telemetryHub.Subscribe(r.Context(), w, r); err != nil {
		if errors.Is(err, telemetry.ErrStreamingUnsupported) {
			WriteError(w, http.StatusInternalServerError, "INTERNAL", "Streaming not supported", nil)
			return
		}
		s.log.WithError(err).Debug("Event stream ended")
	}
}

func (s *Server) publish(eventType string, data map[string]interface{}) {
	if s.telemetryHub != nil {
		s.telemetryHub.Publish(eventType, data)
	}
}

// auditContext carries the token subject so audit entries name the caller.
func (s *Server) auditContext(r *http.Request) context.Context {
	ctx := r.Context()
	if c := auth.ClaimsFrom(ctx); c != nil {
		ctx = audit.WithUser(ctx, c.Subject)
	}
	return ctx
}

func (s *Server) recordAudit(r *http.Request, action string, index int, params map[string]interface{}, err error) {
	if s.audit == nil {
		return
	}
	s.audit.LogChannelAction(s.auditContext(r), action, index, params, err)
	if err != nil {
		s.log.WithFields(logrus.Fields{"action": action, "index": index, "code": audit.CodeFor(err)}).Debug("Admin action failed")
	}
}

func auditParams(req ChannelRequest) map[string]interface{} {
	return map[string]interface{}{
		"role":            req.Role,
		"name":            req.Name,
		"psk":             req.PSK,
		"channelNum":      req.ChannelNum,
		"uplinkEnabled":   req.UplinkEnabled,
		"downlinkEnabled": req.DownlinkEnabled,
	}
}

// downlinkHolder returns the first enabled slot with downlink, or -1.
func downlinkHolder(list []channels.Channel) int {
	for _, ch := range list {
		if ch.Role != channels.RoleDisabled && ch.Settings.DownlinkEnabled {
			return ch.Index
		}
	}
	return -1
}

func pathIndex(r *http.Request) (int, error) {
	raw := r.PathValue("index")
	index, err := strconv.Atoi(raw)
	if err != nil || index < 0 || index >= channels.MaxChannels {
		return 0, fmt.Errorf("%w: %q", channels.ErrInvalidIndex, raw)
	}
	return index, nil
}

// decodeStrict decodes exactly one JSON object with no unknown fields.
func decodeStrict(r *http.Request, v interface{}) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return errors.New("malformed JSON or unknown fields")
	}
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		return errors.New("trailing data after JSON object")
	}
	return nil
}
