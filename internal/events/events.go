// Package events publishes build notifications.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"
)

// BuildFinished is published after a package build has been persisted.
type BuildFinished struct {
	BuildID    string    `json:"build_id"`
	Name       string    `json:"name"`
	Version    string    `json:"version"`
	Successful bool      `json:"successful"`
	Targets    []string  `json:"targets"`
	Timestamp  time.Time `json:"timestamp"`
}

// Publisher delivers build notifications.
type Publisher interface {
	PublishBuildFinished(ctx context.Context, ev BuildFinished) error
	Close()
}

// NoopPublisher drops every event.
type NoopPublisher struct{}

func (NoopPublisher) PublishBuildFinished(context.Context, BuildFinished) error { return nil }
func (NoopPublisher) Close()                                                    {}

// NATSPublisher publishes events as JSON on a NATS subject.
type NATSPublisher struct {
	conn    *nats.Conn
	subject string
}

// NewNATSPublisher connects to url.
func NewNATSPublisher(url, subject string) (*NATSPublisher, error) {
	conn, err := nats.Connect(url, nats.Name("pkgdocs"), nats.Timeout(5*time.Second))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}
	slog.Info("NATS publisher initialized", "url", url, "subject", subject)
	return &NATSPublisher{conn: conn, subject: subject}, nil
}

// PublishBuildFinished publishes ev and waits for the server to acknowledge the flush.
func (p *NATSPublisher) PublishBuildFinished(ctx context.Context, ev BuildFinished) error {
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now()
	}
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	if err := p.conn.Publish(p.subject, data); err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := p.conn.FlushWithContext(ctx); err != nil {
		return fmt.Errorf("failed to flush event: %w", err)
	}
	slog.Debug("Published build event", "subject", p.subject, "package", ev.Name, "version", ev.Version)
	return nil
}

// Close drains and closes the connection.
func (p *NATSPublisher) Close() {
	if err := p.conn.Drain(); err != nil {
		p.conn.Close()
	}
}
