package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"go.uber.org/zap"

	"github.com/parley-ai/chat-platform/pkg/logger"
)

const (
	// streamName is the JetStream work queue holding dispatched jobs.
	streamName = "CONVERSATION_JOBS"

	// subjectPrefix is the prefix for all job subjects.
	subjectPrefix = "jobs"

	// consumerName is the durable consumer shared by worker processes.
	consumerName = "workers"
)

// NATSConfig holds NATS connection configuration.
type NATSConfig struct {
	URL   string
	Token string
}

// NATS is a JetStream-backed dispatcher. Jobs are published to a work
// queue stream and consumed by a durable consumer, so dispatch survives
// process restarts and can be shared across worker processes.
type NATS struct {
	conn    *nats.Conn
	js      jetstream.JetStream
	consume jetstream.ConsumeContext
	logger  *logger.Logger
}

// ConnectNATS establishes the NATS connection, ensures the job stream
// exists, and starts consuming with handler.
func ConnectNATS(ctx context.Context, cfg NATSConfig, handler Handler, log *logger.Logger) (*NATS, error) {
	opts := []nats.Option{
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2 * time.Second),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			log.Warn("NATS disconnected", zap.Error(err))
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info("NATS reconnected")
		}),
	}
	if cfg.Token != "" {
		opts = append(opts, nats.Token(cfg.Token))
	}

	nc, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("failed to create JetStream context: %w", err)
	}

	d := &NATS{conn: nc, js: js, logger: log}

	if err := d.ensureStream(ctx); err != nil {
		nc.Close()
		return nil, err
	}
	if err := d.startConsumer(ctx, handler); err != nil {
		nc.Close()
		return nil, err
	}

	return d, nil
}

func streamConfig() jetstream.StreamConfig {
	return jetstream.StreamConfig{
		Name:        streamName,
		Subjects:    []string{fmt.Sprintf("%s.>", subjectPrefix)},
		Retention:   jetstream.WorkQueuePolicy,
		MaxAge:      24 * time.Hour,
		Storage:     jetstream.FileStorage,
		Replicas:    1,
		Description: "Dispatched conversation jobs",
	}
}

// consumerConfig allows redelivery: a worker crash between pull and ack
// must not strand the job, or its conversation stays in processing
// forever. Re-runs are safe, the worker skips turns whose assistant
// reply already landed. Upstream retries stay inside the worker; this
// bound only covers crashed deliveries.
func consumerConfig() jetstream.ConsumerConfig {
	return jetstream.ConsumerConfig{
		Durable:       consumerName,
		AckPolicy:     jetstream.AckExplicitPolicy,
		AckWait:       5 * time.Minute,
		MaxDeliver:    3,
		FilterSubject: fmt.Sprintf("%s.>", subjectPrefix),
	}
}

func (d *NATS) ensureStream(ctx context.Context) error {
	_, err := d.js.Stream(ctx, streamName)
	if err == nil {
		return nil
	}

	_, err = d.js.CreateStream(ctx, streamConfig())
	if err != nil {
		return fmt.Errorf("failed to create job stream: %w", err)
	}
	return nil
}

func (d *NATS) startConsumer(ctx context.Context, handler Handler) error {
	consumer, err := d.js.CreateOrUpdateConsumer(ctx, streamName, consumerConfig())
	if err != nil {
		return fmt.Errorf("failed to create consumer: %w", err)
	}

	cc, err := consumer.Consume(func(msg jetstream.Msg) {
		var job Job
		if err := json.Unmarshal(msg.Data(), &job); err != nil {
			d.logger.Error("dropping undecodable job", zap.Error(err))
			msg.Term()
			return
		}
		handler(context.Background(), job)
		msg.Ack()
	})
	if err != nil {
		return fmt.Errorf("failed to start consuming: %w", err)
	}

	d.consume = cc
	return nil
}

// Enqueue publishes the job to the work queue.
func (d *NATS) Enqueue(ctx context.Context, job Job) error {
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to marshal job: %w", err)
	}

	subject := fmt.Sprintf("%s.%s.%s", subjectPrefix, job.Kind, job.ConversationID)
	if _, err := d.js.Publish(ctx, subject, data); err != nil {
		return fmt.Errorf("failed to publish job: %w", err)
	}

	d.logger.Debug("job enqueued",
		zap.String("job_id", job.ID),
		zap.String("kind", string(job.Kind)),
		zap.String("conversation_id", job.ConversationID),
	)
	return nil
}

// Close stops the consumer and closes the connection.
func (d *NATS) Close() error {
	if d.consume != nil {
		d.consume.Stop()
	}
	if d.conn != nil {
		d.conn.Close()
	}
	return nil
}

// IsConnected reports whether the NATS connection is up. Used by the
// readiness endpoint.
func (d *NATS) IsConnected() bool {
	return d.conn != nil && d.conn.IsConnected()
}
