package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/MrEthical07/sessioncore/internal/logging"
)

// LogSink writes each event as a structured warning.
type LogSink struct {
	logger *zap.Logger
}

func NewLogSink(logger *zap.Logger) *LogSink {
	return &LogSink{logger: logging.OrNop(logger)}
}

func (s *LogSink) Emit(_ context.Context, event Event) {
	s.logger.Warn("security alert",
		zap.String("event_id", event.ID),
		zap.String("kind", event.Kind),
		zap.String("severity", event.Severity),
		zap.String("subject_id", event.SubjectID),
		zap.String("ip", event.IP),
		zap.Any("detail", event.Detail),
		zap.Time("detected_at", event.DetectedAt),
	)
}

// WebhookSink POSTs each event as JSON. Delivery failures are logged and
// dropped.
type WebhookSink struct {
	url    string
	client *http.Client
	logger *zap.Logger
}

func NewWebhookSink(url string, timeout time.Duration, logger *zap.Logger) *WebhookSink {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &WebhookSink{
		url:    url,
		client: &http.Client{Timeout: timeout},
		logger: logging.OrNop(logger),
	}
}

func (s *WebhookSink) Emit(ctx context.Context, event Event) {
	if err := s.post(ctx, event); err != nil {
		s.logger.Error("alert webhook delivery failed",
			zap.String("kind", event.Kind),
			zap.Error(err),
		)
	}
}

func (s *WebhookSink) post(ctx context.Context, event Event) error {
	body, err := json.Marshal(event)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned %d", resp.StatusCode)
	}
	return nil
}

// KafkaWriter is the subset of kafka.Writer the sink needs.
type KafkaWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaSink publishes each event keyed by source IP so one address stays on
// one partition.
type KafkaSink struct {
	writer KafkaWriter
	logger *zap.Logger
}

// NewKafkaWriter returns a writer for topic on the given brokers.
func NewKafkaWriter(brokers []string, topic string) *kafka.Writer {
	return &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
	}
}

func NewKafkaSink(w KafkaWriter, logger *zap.Logger) *KafkaSink {
	return &KafkaSink{writer: w, logger: logging.OrNop(logger)}
}

func (s *KafkaSink) Emit(ctx context.Context, event Event) {
	value, err := json.Marshal(event)
	if err != nil {
		s.logger.Error("alert marshal failed", zap.Error(err))
		return
	}
	key := event.IP
	if key == "" {
		key = event.Kind
	}
	msg := kafka.Message{
		Key:   []byte(key),
		Value: value,
		Headers: []kafka.Header{
			{Key: "kind", Value: []byte(event.Kind)},
			{Key: "severity", Value: []byte(event.Severity)},
		},
		Time: event.DetectedAt,
	}
	if err := s.writer.WriteMessages(ctx, msg); err != nil {
		s.logger.Error("alert kafka publish failed",
			zap.String("kind", event.Kind),
			zap.Error(err),
		)
	}
}

func (s *KafkaSink) Close() error {
	return s.writer.Close()
}
