package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/melih/diskforge/internal/core/domain"
)

// DefaultSubject prefixes the subjects status events are published on;
// the build ID is appended.
const DefaultSubject = "diskforge.builds"

type publisher interface {
	Publish(subject string, data []byte) error
}

// StatusEvent is the payload published for every build status transition.
type StatusEvent struct {
	BuildID      string           `json:"buildId"`
	Status       domain.Status    `json:"status"`
	Type         domain.ImageType `json:"type"`
	Image        string           `json:"image"`
	ContainerID  string           `json:"buildContainerId,omitempty"`
	ArtifactPath string           `json:"artifactPath"`
	Error        string           `json:"error,omitempty"`
	Time         time.Time        `json:"time"`
}

// Publisher implements ports.StatusObserver by publishing to NATS.
type Publisher struct {
	conn    publisher
	subject string
	logger  *slog.Logger
	close   func()
}

// Connect dials the NATS server at url.
func Connect(url, subject string, logger *slog.Logger) (*Publisher, error) {
	nc, err := nats.Connect(url, nats.Name("diskforge"))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to nats: %w", err)
	}
	p := NewPublisher(nc, subject, logger)
	p.close = func() {
		if err := nc.Drain(); err != nil {
			nc.Close()
		}
	}
	return p, nil
}

// NewPublisher publishes status events through conn.
func NewPublisher(conn publisher, subject string, logger *slog.Logger) *Publisher {
	if subject == "" {
		subject = DefaultSubject
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Publisher{conn: conn, subject: subject, logger: logger}
}

// StatusChanged publishes rec. Publishing failures are logged only.
func (p *Publisher) StatusChanged(_ context.Context, rec domain.BuildRecord) {
	data, err := json.Marshal(StatusEvent{
		BuildID:      rec.ID,
		Status:       rec.Status,
		Type:         rec.Type,
		Image:        rec.ImageRef(),
		ContainerID:  rec.ContainerID,
		ArtifactPath: rec.ArtifactPath,
		Error:        rec.Error,
		Time:         rec.UpdatedAt,
	})
	if err != nil {
		p.logger.Warn("failed to encode status event", "build", rec.ID, "error", err)
		return
	}

	subject := p.subject + "." + rec.ID
	if err := p.conn.Publish(subject, data); err != nil {
		p.logger.Warn("failed to publish status event", "subject", subject, "error", err)
	}
}

// Close flushes pending events and closes the connection.
func (p *Publisher) Close() {
	if p.close != nil {
		p.close()
	}
}
