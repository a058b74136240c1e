package mail

import (
	"context"

	"github.com/goblog/apiserver/internal/mq"
	"github.com/rs/zerolog"
)

// QueueMailer publishes messages to a broker channel instead of delivering
// them itself; the mailworker command consumes the channel and sends over
// SMTP.
type QueueMailer struct {
	backend mq.Backend
	channel string
}

func NewQueueMailer(backend mq.Backend, channel string) *QueueMailer {
	return &QueueMailer{backend: backend, channel: channel}
}

func (q *QueueMailer) Send(ctx context.Context, msg Message) error {
	data, err := Encode(msg)
	if err != nil {
		return err
	}
	_, err = q.backend.Publish(ctx, q.channel, data, map[string]string{"to": msg.To})
	return err
}

// RunWorker consumes the mail channel and delivers each message via the
// given mailer until ctx is done. Delivery failures are returned to the
// broker for redelivery.
func RunWorker(ctx context.Context, backend mq.Backend, channel string, mailer Mailer, logger zerolog.Logger) error {
	return backend.Subscribe(ctx, channel, func(ctx context.Context, m mq.Message) error {
		msg, err := Decode(m.Data)
		if err != nil {
			// Drop unparseable payloads; requeueing them loops forever.
			logger.Error().Err(err).Str("message_id", m.ID).Msg("discarding malformed mail payload")
			return nil
		}
		if err := mailer.Send(ctx, msg); err != nil {
			logger.Error().Err(err).Str("to", msg.To).Msg("mail delivery failed")
			return err
		}
		logger.Info().Str("to", msg.To).Str("subject", msg.Subject).Msg("mail delivered")
		return nil
	})
}
