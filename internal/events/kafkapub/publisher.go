// Package kafkapub pushes scheduling changes to Kafka, keyed by provider.
package kafkapub

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"time"

	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"

	"slotengine/internal/events"
)

// MessageWriter is the subset of *kafka.Writer the publisher uses.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type Config struct {
	Brokers      string
	Topic        string
	WriteTimeout time.Duration
}

type Publisher struct {
	writer  MessageWriter
	topic   string
	timeout time.Duration
	logger  *slog.Logger
}

var _ events.Notifier = (*Publisher)(nil)

func SplitBrokers(raw string) []string {
	var out []string
	for _, b := range strings.Split(raw, ",") {
		if b = strings.TrimSpace(b); b != "" {
			out = append(out, b)
		}
	}
	return out
}

// New returns nil when no brokers are configured.
func New(cfg Config, logger *slog.Logger) *Publisher {
	brokers := SplitBrokers(cfg.Brokers)
	if len(brokers) == 0 {
		logger.Warn("kafka publisher disabled (no brokers configured)")
		return nil
	}
	writer := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
		Async:        false,
	}
	return NewWithWriter(writer, cfg.Topic, cfg.WriteTimeout, logger)
}

func NewWithWriter(w MessageWriter, topic string, timeout time.Duration, logger *slog.Logger) *Publisher {
	if topic == "" {
		topic = "slotengine.changes"
	}
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return &Publisher{writer: w, topic: topic, timeout: timeout, logger: logger}
}

func (p *Publisher) Notify(ctx context.Context, c events.Change) {
	payload, err := json.Marshal(c)
	if err != nil {
		p.logger.Warn("encode change failed", "err", err, "kind", c.Kind)
		return
	}

	msg := kafka.Message{
		Topic: p.topic,
		Key:   []byte(c.ProviderID),
		Value: payload,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(c.Kind)},
		},
	}
	msg.Headers = injectTraceHeaders(ctx, msg.Headers)

	// detached from the request so a finished request does not cancel delivery
	writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.timeout)
	defer cancel()
	if err := p.writer.WriteMessages(writeCtx, msg); err != nil {
		p.logger.Warn("publish change failed", "err", err, "kind", c.Kind, "provider_id", c.ProviderID)
	}
}

func (p *Publisher) Close() error {
	return p.writer.Close()
}

func injectTraceHeaders(ctx context.Context, headers []kafka.Header) []kafka.Header {
	carrier := &headerCarrier{headers: headers}
	otel.GetTextMapPropagator().Inject(ctx, carrier)
	return carrier.headers
}

type headerCarrier struct {
	headers []kafka.Header
}

func (c *headerCarrier) Get(key string) string {
	for _, h := range c.headers {
		if h.Key == key {
			return string(h.Value)
		}
	}
	return ""
}

func (c *headerCarrier) Keys() []string {
	keys := make([]string, 0, len(c.headers))
	for _, h := range c.headers {
		keys = append(keys, h.Key)
	}
	return keys
}

func (c *headerCarrier) Set(key, value string) {
	for i := range c.headers {
		if c.headers[i].Key == key {
			c.headers[i].Value = []byte(value)
			return
		}
	}
	c.headers = append(c.headers, kafka.Header{Key: key, Value: []byte(value)})
}

var _ propagation.TextMapCarrier = (*headerCarrier)(nil)
