package kafka

import (
	"context"
	"hash/fnv"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/sirupsen/logrus"
)

// Handler must return nil only when the message was processed and its
// offset may be committed. An error is retried.
type Handler func(ctx context.Context, m kafka.Message) error

type Consumer struct {
	r       *kafka.Reader
	workers int
	log     logrus.FieldLogger

	backoff    time.Duration
	maxBackoff time.Duration
}

func NewConsumer(brokers []string, group string, topics []string, workers int, log logrus.FieldLogger) *Consumer {
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        brokers,
		GroupID:        group,
		GroupTopics:    topics,
		MinBytes:       1,
		MaxBytes:       10e6,
		CommitInterval: 0, // manual commit
	})
	if workers <= 0 {
		workers = 1
	}
	return &Consumer{
		r:          r,
		workers:    workers,
		log:        log.WithField("group", group),
		backoff:    200 * time.Millisecond,
		maxBackoff: 10 * time.Second,
	}
}

// Start fetches until ctx is done. Every partition is pinned to one worker,
// which handles its messages in order and commits each one only after the
// handler succeeded, so the group offset never passes an unprocessed message.
func (c *Consumer) Start(ctx context.Context, h Handler) error {
	defer c.r.Close()

	lanes := make([]chan kafka.Message, c.workers)
	var wg sync.WaitGroup
	for i := range lanes {
		lanes[i] = make(chan kafka.Message, 64)
		wg.Add(1)
		go func(in <-chan kafka.Message) {
			defer wg.Done()
			for m := range in {
				err := Retry(ctx, c.backoff, c.maxBackoff, func() error { return h(ctx, m) }, func(err error, attempt int) {
					c.log.WithError(err).WithFields(logrus.Fields{
						"topic":     m.Topic,
						"partition": m.Partition,
						"offset":    m.Offset,
						"attempt":   attempt,
					}).Warn("handler failed, retrying")
				})
				if err != nil {
					// shutting down; the rest of this lane is redelivered after restart
					return
				}
				if err := c.r.CommitMessages(ctx, m); err != nil {
					c.log.WithError(err).WithField("offset", m.Offset).Warn("commit failed")
				}
			}
		}(lanes[i])
	}
	stop := func() {
		for _, l := range lanes {
			close(l)
		}
		wg.Wait()
	}

	for {
		m, err := c.r.FetchMessage(ctx)
		if err != nil {
			stop()
			select {
			case <-ctx.Done():
				return nil
			default:
				return err
			}
		}
		select {
		case lanes[lane(m, len(lanes))] <- m:
		case <-ctx.Done():
			stop()
			return nil
		}
	}
}

// lane maps a topic partition to a fixed worker.
func lane(m kafka.Message, n int) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(m.Topic))
	_, _ = h.Write([]byte(strconv.Itoa(m.Partition)))
	return int(h.Sum32() % uint32(n))
}

// Retry calls fn until it returns nil, doubling the pause between attempts
// up to ceiling. It gives up only when ctx is done.
func Retry(ctx context.Context, initial, ceiling time.Duration, fn func() error, onErr func(err error, attempt int)) error {
	wait := initial
	for attempt := 1; ; attempt++ {
		err := fn()
		if err == nil {
			return nil
		}
		if onErr != nil {
			onErr(err, attempt)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
		if wait *= 2; wait > ceiling {
			wait = ceiling
		}
	}
}

// Mux routes messages to a handler by topic. Messages on unknown topics are
// acknowledged and skipped.
type Mux map[string]Handler

func (mx Mux) Handle(ctx context.Context, m kafka.Message) error {
	h, ok := mx[m.Topic]
	if !ok {
		return nil
	}
	return h(ctx, m)
}

func (mx Mux) Topics() []string {
	out := make([]string, 0, len(mx))
	for t := range mx {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}
