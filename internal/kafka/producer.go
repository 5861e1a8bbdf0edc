package kafka

import (
	"context"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/sirupsen/logrus"
)

// Publisher is the producing side services depend on. Publish is best
// effort and must not block past ctx.
type Publisher interface {
	Publish(ctx context.Context, key, value []byte, headers ...kafka.Header)
}

type Producer struct {
	w       *kafka.Writer
	log     logrus.FieldLogger
	inbox   chan kafka.Message
	closeCh chan struct{}

	mu     sync.RWMutex
	closed bool
}

func NewProducer(brokers []string, topic string, buf int, log logrus.FieldLogger) *Producer {
	return &Producer{
		w: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			Balancer:     &kafka.Hash{},
			RequiredAcks: kafka.RequireAll,
			BatchTimeout: 50 * time.Millisecond,
		},
		log:     log.WithField("topic", topic),
		inbox:   make(chan kafka.Message, buf),
		closeCh: make(chan struct{}),
	}
}

// Start drains the inbox until Close, then flushes and closes the writer.
func (p *Producer) Start() {
	go func() {
		defer close(p.closeCh)
		for m := range p.inbox {
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			if err := p.w.WriteMessages(ctx, m); err != nil {
				p.log.WithError(err).WithField("key", string(m.Key)).Error("kafka write failed")
			}
			cancel()
		}
		if err := p.w.Close(); err != nil {
			p.log.WithError(err).Warn("kafka writer close")
		}
	}()
}

// Publish queues a message. When the inbox stays full until ctx is done, or
// the producer is closed, the message is dropped and logged.
func (p *Producer) Publish(ctx context.Context, key, value []byte, headers ...kafka.Header) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		p.log.WithField("key", string(key)).Warn("publish after close dropped")
		return
	}
	m := kafka.Message{
		Key:     key,
		Value:   value,
		Time:    time.Now(),
		Headers: headers,
	}
	select {
	case p.inbox <- m:
		return
	default:
	}
	select {
	case p.inbox <- m:
	case <-ctx.Done():
		p.log.WithError(ctx.Err()).WithField("key", string(key)).Error("kafka inbox full, event dropped")
	}
}

func (p *Producer) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.closed {
		p.closed = true
		close(p.inbox)
	}
}

func (p *Producer) WaitClosed() { <-p.closeCh }
