package notify

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"

	"smartalarm/internal/config"
	"smartalarm/internal/model"
)

// Sink receives lifecycle events.
type Sink interface {
	Add(ev model.AlarmEvent)
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Publisher forwards lifecycle events to an inner sink and, when
// configured, publishes them to a Kafka topic keyed by alarm id. Broker
// writes happen on a background goroutine behind a bounded queue, so Add
// never blocks a caller holding alarm state locks. Events are dropped when
// the queue is full or a write fails; the alarm state machine never waits
// on the event stream.
type Publisher struct {
	inner  Sink
	writer messageWriter
	queue  chan model.AlarmEvent
	done   chan struct{}
	logger *slog.Logger
}

func NewPublisher(cfg config.KafkaConfig, inner Sink, logger *slog.Logger) *Publisher {
	p := &Publisher{inner: inner, logger: logger}
	if !cfg.Enabled {
		if logger != nil {
			logger.Info("kafka events disabled")
		}
		return p
	}
	if logger != nil {
		logger.Info("kafka events enabled", "brokers", cfg.Brokers, "topic", cfg.Topic)
	}
	p.writer = &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
	}
	p.start()
	return p
}

func (p *Publisher) start() {
	p.queue = make(chan model.AlarmEvent, 256)
	p.done = make(chan struct{})
	go p.publishLoop()
}

func (p *Publisher) publishLoop() {
	defer close(p.done)
	for ev := range p.queue {
		p.publish(ev)
	}
}

func (p *Publisher) publish(ev model.AlarmEvent) {
	value, err := json.Marshal(ev)
	if err != nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(ev.AlarmID),
		Value: value,
	}); err != nil && p.logger != nil {
		p.logger.Warn("kafka publish failed", "alarm_id", ev.AlarmID, "kind", ev.Kind, "err", err)
	}
}

func (p *Publisher) Add(ev model.AlarmEvent) {
	if p.inner != nil {
		p.inner.Add(ev)
	}
	if p.queue == nil {
		return
	}
	select {
	case p.queue <- ev:
	default:
		if p.logger != nil {
			p.logger.Warn("event queue full, dropping", "alarm_id", ev.AlarmID, "kind", ev.Kind)
		}
	}
}

// Close drains the queue and shuts the writer down.
func (p *Publisher) Close() error {
	if p.queue != nil {
		close(p.queue)
		<-p.done
	}
	if p.writer != nil {
		return p.writer.Close()
	}
	return nil
}
