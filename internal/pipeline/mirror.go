package pipeline

import (
	"context"
	"log/slog"

	"github.com/cuongbtq/beanstalk-bridge/internal/entry"
	"github.com/cuongbtq/beanstalk-bridge/internal/queue"
)

// Publisher sends one message to the broker. *rabbitmq.Client implements it.
type Publisher interface {
	PublishWithRetry(ctx context.Context, body []byte, contentType string) error
}

var _ queue.Consumer = (*Mirror)(nil)

// Mirror publishes a copy of every accepted entry to RabbitMQ
type Mirror struct {
	publisher Publisher
	logger    *slog.Logger
}

// NewMirror returns a Mirror publishing through publisher
func NewMirror(publisher Publisher, logger *slog.Logger) *Mirror {
	return &Mirror{
		publisher: publisher,
		logger:    logger,
	}
}

// ConsumeEntries publishes accepted entries in the job payload format. An
// entry that cannot be published is marked failed.
func (m *Mirror) ConsumeEntries(ctx context.Context, v queue.Verdicts) error {
	published := 0
	for _, e := range v.Accepted {
		if e.IsFailed() {
			continue
		}
		if err := m.publish(ctx, e); err != nil {
			e.Fail(err)
			continue
		}
		published++
	}

	if len(v.Accepted) > 0 {
		m.logger.Info("Entries mirrored to RabbitMQ",
			slog.Int("published", published),
			slog.Int("accepted", len(v.Accepted)),
		)
	}

	return nil
}

func (m *Mirror) publish(ctx context.Context, e *entry.Entry) error {
	out := entry.Deserialize(e.Serialize())
	out.Delete(queue.JobIDField)

	body, err := queue.Encode(out)
	if err != nil {
		m.logger.Error("Could not encode entry",
			slog.String("title", e.Title()),
			slog.Any("error", err),
		)
		return err
	}

	if err := m.publisher.PublishWithRetry(ctx, body, "application/json"); err != nil {
		m.logger.Error("Failed to mirror entry",
			slog.String("title", e.Title()),
			slog.Any("error", err),
		)
		return err
	}

	return nil
}
