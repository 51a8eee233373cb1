package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/asaskevich/EventBus"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// Bus topics.
const (
	TopicOpened = "position:opened"
	TopicClosed = "position:closed"
)

// DefaultSinkTimeout bounds a single sink delivery.
const DefaultSinkTimeout = 10 * time.Second

// Sink receives events from the bus on its own goroutine.
type Sink interface {
	Name() string
	Opened(ctx context.Context, ev OpenedEvent) error
	Closed(ctx context.Context, ev ClosedEvent) error
}

// Bus fans events out to sinks asynchronously. Publishing never blocks on a
// sink and never fails.
type Bus struct {
	bus     EventBus.Bus
	log     *logrus.Logger
	timeout time.Duration
}

// NewBus subscribes every sink to both topics.
func NewBus(log *logrus.Logger, sinks ...Sink) (*Bus, error) {
	b := &Bus{
		bus:     EventBus.New(),
		log:     log,
		timeout: DefaultSinkTimeout,
	}
	for _, sink := range sinks {
		if err := b.subscribe(sink); err != nil {
			return nil, fmt.Errorf("subscribing %s: %w", sink.Name(), err)
		}
		log.Infof("Notification sink %s subscribed", sink.Name())
	}
	return b, nil
}

func (b *Bus) subscribe(sink Sink) error {
	opened := func(ev OpenedEvent) {
		b.deliver(sink, TopicOpened, ev.ID, func(ctx context.Context) error { return sink.Opened(ctx, ev) })
	}
	closed := func(ev ClosedEvent) {
		b.deliver(sink, TopicClosed, ev.ID, func(ctx context.Context) error { return sink.Closed(ctx, ev) })
	}
	if err := b.bus.SubscribeAsync(TopicOpened, opened, false); err != nil {
		return err
	}
	return b.bus.SubscribeAsync(TopicClosed, closed, false)
}

func (b *Bus) deliver(sink Sink, topic string, id uuid.UUID, send func(context.Context) error) {
	entry := b.log.WithFields(logrus.Fields{"sink": sink.Name(), "topic": topic, "event_id": id})
	defer func() {
		if r := recover(); r != nil {
			entry.Errorf("Notification sink panicked: %v", r)
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), b.timeout)
	defer cancel()
	if err := send(ctx); err != nil {
		entry.Warnf("Notification failed: %v", err)
	}
}

// PositionOpened publishes ev, assigning an id when it has none.
func (b *Bus) PositionOpened(ev OpenedEvent) {
	if ev.ID == uuid.Nil {
		ev.ID = uuid.New()
	}
	b.bus.Publish(TopicOpened, ev)
}

// PositionClosed publishes ev, assigning an id when it has none.
func (b *Bus) PositionClosed(ev ClosedEvent) {
	if ev.ID == uuid.Nil {
		ev.ID = uuid.New()
	}
	b.bus.Publish(TopicClosed, ev)
}

// Wait blocks until every in-flight delivery has finished.
func (b *Bus) Wait() {
	b.bus.WaitAsync()
}
