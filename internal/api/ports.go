package api

import (
	"context"
	"net/http"

	"github.com/radio-control/meshchan/internal/audit"
	"github.com/radio-control/meshchan/internal/channels"
	"github.com/radio-control/meshchan/internal/lora"
	"github.com/radio-control/meshchan/internal/telemetry"
)

// ChannelPort is what the API needs from the channel table.
type ChannelPort interface {
	Channels() []channels.Channel
	NumChannels() int
	GetName(index int) string
	Hash(index int) int16
	PrimaryIndex() int
	ActiveIndex() int
	Params() lora.Params
	HasDefaultChannel() bool
	AnyMqttEnabled() bool
	SetChannel(ctx context.Context, c channels.Channel, index int) error
	CycleMqttDownlink(ctx context.Context) (int, error)
}

// TelemetryPort is what the API needs from the event hub.
type TelemetryPort interface {
	Subscribe(ctx context.Context, w http.ResponseWriter, r *http.Request) error
	Publish(eventType string, data map[string]interface{}) telemetry.Event
	ClientCount() int
}

// AuditPort records admin mutations.
type AuditPort interface {
	LogChannelAction(ctx context.Context, action string, index int, params map[string]interface{}, err error)
}

// Compile-time assertions for port conformance
var _ ChannelPort = (*channels.Table)(nil)
var _ TelemetryPort = (*telemetry.Hub)(nil)
var _ AuditPort = (*audit.Logger)(nil)
