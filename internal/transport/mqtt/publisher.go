package mqtt

import (
	"context"
	"encoding/json"
	"strings"
	"sync/atomic"
	"time"

	"container_telemetry/internal/logger"
	"container_telemetry/internal/models"
	"container_telemetry/internal/observability/metrics"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

const (
	publisherSinkName      = "mqtt"
	publishTimeout         = 5 * time.Second
	defaultPublisherBuffer = 128
)

type publisherClient interface {
	IsConnectionOpen() bool
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
}

type outbound struct {
	id      string
	topic   string
	payload []byte
}

// EventPublisher is a telemetry.Sink that forwards events as JSON. Emit only
// enqueues; Run hands messages to the broker client on its own goroutine.
// Events are dropped and counted while the link is down or the queue is full.
type EventPublisher struct {
	client  publisherClient
	topic   string // may contain {category}
	qos     byte
	ch      chan outbound
	timeout time.Duration
	dropped atomic.Uint64
	log     *logger.Logger
}

// NewEventPublisher uses the default queue size when buffer <= 0.
func NewEventPublisher(client publisherClient, topic string, qos byte, buffer int, log *logger.Logger) *EventPublisher {
	if buffer <= 0 {
		buffer = defaultPublisherBuffer
	}
	return &EventPublisher{
		client:  client,
		topic:   topic,
		qos:     qos,
		ch:      make(chan outbound, buffer),
		timeout: publishTimeout,
		log:     logger.OrNop(log).Named("mqtt_publisher"),
	}
}

// Emit never blocks.
func (p *EventPublisher) Emit(ev models.Event) {
	if !p.client.IsConnectionOpen() {
		p.drop()
		return
	}
	payload, err := json.Marshal(ev)
	if err != nil {
		p.log.Errorw("event_marshal_failed", "event_id", ev.EventID, "err", err)
		metrics.IncSinkWrite(publisherSinkName, false)
		return
	}

	select {
	case p.ch <- outbound{id: ev.EventID, topic: formatTopic(p.topic, ev.Category), payload: payload}:
	default:
		if n := p.drop(); n == 1 || n%100 == 0 {
			p.log.Warnw("publish_queue_full", "capacity", cap(p.ch), "dropped", n)
		}
	}
}

// Dropped reports how many events never reached the broker client.
func (p *EventPublisher) Dropped() uint64 {
	return p.dropped.Load()
}

func (p *EventPublisher) drop() uint64 {
	metrics.IncSinkDropped(publisherSinkName)
	return p.dropped.Add(1)
}

// Run publishes queued events until ctx is canceled. Whatever is still queued
// at that point is discarded; the broker link is closing too.
func (p *EventPublisher) Run(ctx context.Context) {
	for {
		select {
		case msg := <-p.ch:
			p.publish(msg)
		case <-ctx.Done():
			return
		}
	}
}

func (p *EventPublisher) publish(msg outbound) {
	if !p.client.IsConnectionOpen() {
		p.drop()
		return
	}
	token := p.client.Publish(msg.topic, p.qos, false, msg.payload)
	if !token.WaitTimeout(p.timeout) {
		metrics.IncSinkWrite(publisherSinkName, false)
		p.log.Warnw("event_publish_timeout", "event_id", msg.id)
		return
	}
	if err := token.Error(); err != nil {
		metrics.IncSinkWrite(publisherSinkName, false)
		p.log.Warnw("event_publish_failed", "event_id", msg.id, "err", err)
		return
	}
	metrics.IncSinkWrite(publisherSinkName, true)
}

// formatTopic replaces the {category} placeholder, e.g.
// "container/events/{category}" -> "container/events/battery".
func formatTopic(pattern string, c models.Category) string {
	return strings.ReplaceAll(pattern, "{category}", strings.ToLower(string(c)))
}
