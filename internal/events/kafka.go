package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/joseph-ayodele/fieldmedia/internal/common"
	"github.com/joseph-ayodele/fieldmedia/internal/processor"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPublisher writes process requests keyed by media id, so every
// request for one item lands on the same partition.
type KafkaPublisher struct {
	writer messageWriter
	logger *slog.Logger
}

func NewKafkaPublisher(cfg common.KafkaConfig, logger *slog.Logger) *KafkaPublisher {
	w := kafka.NewWriter(kafka.WriterConfig{
		Brokers:  cfg.Brokers,
		Topic:    cfg.Topic,
		Balancer: &kafka.Hash{},
	})
	return newKafkaPublisher(w, logger)
}

func newKafkaPublisher(w messageWriter, logger *slog.Logger) *KafkaPublisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &KafkaPublisher{writer: w, logger: logger}
}

func (p *KafkaPublisher) PublishProcess(ctx context.Context, req processor.Request) error {
	value, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("encode process request: %w", err)
	}
	if err := p.writer.WriteMessages(ctx, kafka.Message{Key: []byte(req.MediaID), Value: value}); err != nil {
		p.logger.Error("failed to publish process request", "media_id", req.MediaID, "error", err)
		return fmt.Errorf("publish process request: %w", err)
	}
	p.logger.Debug("process request published", "media_id", req.MediaID)
	return nil
}

func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}

// Consumer feeds process requests from a consumer group into a Handler.
// Offsets are committed once the handler returns, success or not: failures
// are already recorded on the media record and are retried by re-publishing.
type Consumer struct {
	reader  messageReader
	handler Handler
	timeout time.Duration
	logger  *slog.Logger
}

func NewKafkaConsumer(cfg common.KafkaConfig, handler Handler, timeout time.Duration, logger *slog.Logger) *Consumer {
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers: cfg.Brokers,
		Topic:   cfg.Topic,
		GroupID: cfg.GroupID,
	})
	return newConsumer(r, handler, timeout, logger)
}

func newConsumer(r messageReader, handler Handler, timeout time.Duration, logger *slog.Logger) *Consumer {
	if logger == nil {
		logger = slog.Default()
	}
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	return &Consumer{reader: r, handler: handler, timeout: timeout, logger: logger}
}

// Run consumes until ctx is cancelled.
func (c *Consumer) Run(ctx context.Context) error {
	c.logger.Info("process consumer started")
	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, context.Canceled) {
				c.logger.Info("process consumer stopped")
				return nil
			}
			c.logger.Error("error reading message", "error", err)
			continue
		}

		c.handle(ctx, msg)

		if err := c.reader.CommitMessages(ctx, msg); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			c.logger.Error("failed to commit offset", "offset", msg.Offset, "error", err)
		}
	}
}

func (c *Consumer) handle(ctx context.Context, msg kafka.Message) {
	logger := c.logger.With("partition", msg.Partition, "offset", msg.Offset)
	if err := ValidateProcessRequest(msg.Value); err != nil {
		logger.Warn("dropping invalid process request", "error", err)
		return
	}
	var req processor.Request
	if err := json.Unmarshal(msg.Value, &req); err != nil {
		logger.Warn("dropping undecodable process request", "error", err)
		return
	}

	pctx, cancel := context.WithTimeout(common.WithLogger(ctx, logger), c.timeout)
	defer cancel()
	if _, err := c.handler.Process(pctx, req); err != nil {
		logger.Warn("process request failed", "media_id", req.MediaID, "error", err,
			"retryable", common.IsRetryable(err))
	}
}

func (c *Consumer) Close() error {
	return c.reader.Close()
}
