package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog/log"

	"github.com/fleetd/fleet-server/internal/config"
	"github.com/fleetd/fleet-server/internal/models"
)

// Publisher publishes fleet events to NATS. Publishing is fire-and-forget:
// a failure is logged and never fails the request that produced the event.
type Publisher struct {
	nc *nats.Conn
}

// Connect establishes the NATS connection from configuration
func Connect(cfg *config.NATSConfig) (*Publisher, error) {
	opts := []nats.Option{
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.ReconnectWait(cfg.ReconnectInterval),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info().Str("url", nc.ConnectedUrl()).Msg("NATS reconnected")
		}),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			log.Warn().Err(err).Msg("NATS disconnected")
		}),
	}
	if cfg.Username != "" {
		opts = append(opts, nats.UserInfo(cfg.Username, cfg.Password))
	}

	nc, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("connect NATS: %w", err)
	}

	log.Info().Str("url", cfg.URL).Msg("Connected to NATS")
	return &Publisher{nc: nc}, nil
}

// NewPublisher wraps an existing connection
func NewPublisher(nc *nats.Conn) *Publisher {
	return &Publisher{nc: nc}
}

// Close drains and closes the connection
func (p *Publisher) Close() {
	if p.nc != nil {
		p.nc.Drain()
	}
}

// communicationLogEvent is the wire shape of a published log entry
type communicationLogEvent struct {
	ID           string           `json:"id"`
	Time         time.Time        `json:"time"`
	RequestID    string           `json:"requestId"`
	DeviceID     string           `json:"deviceId,omitempty"`
	DeviceTypeID string           `json:"deviceTypeId,omitempty"`
	Level        models.CommLevel `json:"level"`
	Code         string           `json:"code"`
	Message      string           `json:"message"`
}

// PublishCommunicationLog publishes one persisted communication log entry on
// fleet.device.<uuid>.comm, or fleet.system.comm when no device is attached.
func (p *Publisher) PublishCommunicationLog(ctx context.Context, entry *models.CommunicationLog) {
	event := communicationLogEvent{
		ID:        entry.ID.String(),
		Time:      entry.CreatedAt,
		RequestID: entry.RequestID,
		Level:     entry.Level,
		Code:      entry.Code,
		Message:   entry.Message,
	}

	subject := "fleet.system.comm"
	if entry.DeviceID != nil {
		event.DeviceID = entry.DeviceID.String()
		subject = fmt.Sprintf("fleet.device.%s.comm", entry.DeviceID)
	}
	if entry.DeviceTypeID != nil {
		event.DeviceTypeID = entry.DeviceTypeID.String()
	}

	p.publish(subject, event)
}

// deviceEvent is the wire shape of a device lifecycle event
type deviceEvent struct {
	DeviceID string    `json:"deviceId"`
	Kind     string    `json:"kind"`
	Time     time.Time `json:"time"`
	Detail   string    `json:"detail,omitempty"`
}

// PublishDeviceEvent publishes a device lifecycle event on
// fleet.device.<uuid>.<kind>.
func (p *Publisher) PublishDeviceEvent(ctx context.Context, device *models.Device, kind, detail string) {
	p.publish(fmt.Sprintf("fleet.device.%s.%s", device.ID, kind), deviceEvent{
		DeviceID: device.ID.String(),
		Kind:     kind,
		Time:     time.Now(),
		Detail:   detail,
	})
}

func (p *Publisher) publish(subject string, event interface{}) {
	data, err := json.Marshal(event)
	if err != nil {
		log.Error().Err(err).Str("subject", subject).Msg("marshal event")
		return
	}
	if err := p.nc.Publish(subject, data); err != nil {
		log.Error().Err(err).Str("subject", subject).Msg("publish event")
	}
}
