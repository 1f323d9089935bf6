// Package events publishes describe outcomes to NATS so other services can
// react to detected hazards.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/c360studio/visionvoice/hazard"
)

// DefaultSubjectPrefix is the subject root for published events.
const DefaultSubjectPrefix = "visionvoice"

// Event is one completed describe request.
type Event struct {
	ID          string         `json:"id"`
	Time        time.Time      `json:"time"`
	Description string         `json:"description"`
	AudioURL    string         `json:"audio_url,omitempty"`
	Hazard      hazard.Verdict `json:"hazard"`
	DurationMS  int64          `json:"duration_ms"`
}

// Publisher delivers events.
type Publisher interface {
	Publish(ctx context.Context, ev Event) error
	Close() error
}

// NopPublisher discards events.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, Event) error { return nil }
func (NopPublisher) Close() error                         { return nil }

// conn is the subset of *nats.Conn the publisher uses.
type conn interface {
	PublishMsg(msg *nats.Msg) error
	Drain() error
	Close()
}

// NATSPublisher publishes JSON events to <prefix>.described and, for
// detected hazards, to <prefix>.hazard.p<priority>.
type NATSPublisher struct {
	nc     conn
	prefix string
	logger *slog.Logger
}

// Connect dials url and returns a publisher using prefix for subjects.
func Connect(url, prefix string, logger *slog.Logger) (*NATSPublisher, error) {
	if logger == nil {
		logger = slog.Default()
	}

	nc, err := nats.Connect(url,
		nats.Name("visionvoice"),
		nats.Timeout(5*time.Second),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("NATS disconnected", "error", err)
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			logger.Info("NATS reconnected", "url", c.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}

	logger.Info("Connected to NATS", "url", nc.ConnectedUrl(), "prefix", prefix)
	return newNATSPublisher(nc, prefix, logger), nil
}

func newNATSPublisher(nc conn, prefix string, logger *slog.Logger) *NATSPublisher {
	if prefix == "" {
		prefix = DefaultSubjectPrefix
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &NATSPublisher{nc: nc, prefix: prefix, logger: logger}
}

// DescribedSubject returns the subject every event is published to.
func (p *NATSPublisher) DescribedSubject() string {
	return p.prefix + ".described"
}

// HazardSubject returns the subject for hazards of the given priority.
func (p *NATSPublisher) HazardSubject(priority int) string {
	return fmt.Sprintf("%s.hazard.p%d", p.prefix, priority)
}

// Publish sends ev. The request ID is carried as the message ID header so
// JetStream consumers can deduplicate.
func (p *NATSPublisher) Publish(ctx context.Context, ev Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	subjects := []string{p.DescribedSubject()}
	if ev.Hazard.Detected {
		subjects = append(subjects, p.HazardSubject(ev.Hazard.Priority))
	}

	for _, subject := range subjects {
		msg := nats.NewMsg(subject)
		msg.Data = data
		if ev.ID != "" {
			msg.Header.Set(nats.MsgIdHdr, ev.ID)
		}
		if err := p.nc.PublishMsg(msg); err != nil {
			return fmt.Errorf("publish %s: %w", subject, err)
		}
	}

	p.logger.Debug("Published describe event", "id", ev.ID, "subjects", subjects)
	return nil
}

// Close drains pending messages and closes the connection.
func (p *NATSPublisher) Close() error {
	err := p.nc.Drain()
	p.nc.Close()
	return err
}
