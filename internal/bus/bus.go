package bus

import (
	"context"
	"log"
	"sync"
)

// MessageBus decouples channels from the gateway and the escalation engine.
// Inbound is consumed by the gateway process loop; Outbound and Alerts are
// fanned out to per-channel subscribers.
type MessageBus struct {
	Inbound  chan InboundMessage
	Outbound chan OutboundMessage
	Alerts   chan AlertEvent

	mu        sync.RWMutex
	outSubs   map[string]func(OutboundMessage)
	alertSubs map[string]func(AlertEvent)
}

func NewMessageBus(bufSize int) *MessageBus {
	return &MessageBus{
		Inbound:   make(chan InboundMessage, bufSize),
		Outbound:  make(chan OutboundMessage, bufSize),
		Alerts:    make(chan AlertEvent, bufSize),
		outSubs:   make(map[string]func(OutboundMessage)),
		alertSubs: make(map[string]func(AlertEvent)),
	}
}

// SubscribeOutbound registers a handler for outbound messages addressed to
// the named channel.
func (b *MessageBus) SubscribeOutbound(channel string, fn func(OutboundMessage)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.outSubs[channel] = fn
}

// SubscribeAlerts registers a handler that receives every alert event.
func (b *MessageBus) SubscribeAlerts(name string, fn func(AlertEvent)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.alertSubs[name] = fn
}

// PublishAlert queues an alert event without blocking the caller. A full
// buffer drops the event; presenters recover on the next transition.
func (b *MessageBus) PublishAlert(ev AlertEvent) {
	select {
	case b.Alerts <- ev:
	default:
		log.Printf("[bus] alert buffer full, dropping %s/%s", ev.MedicationID, ev.Stage)
	}
}

// DispatchOutbound delivers outbound messages to their channel subscriber
// until the context is cancelled.
func (b *MessageBus) DispatchOutbound(ctx context.Context) {
	for {
		select {
		case msg := <-b.Outbound:
			b.mu.RLock()
			fn := b.outSubs[msg.Channel]
			b.mu.RUnlock()
			if fn == nil {
				log.Printf("[bus] no subscriber for channel %s", msg.Channel)
				continue
			}
			fn(msg)
		case <-ctx.Done():
			return
		}
	}
}

// DispatchAlerts delivers alert events to every subscriber until the context
// is cancelled.
func (b *MessageBus) DispatchAlerts(ctx context.Context) {
	for {
		select {
		case ev := <-b.Alerts:
			b.mu.RLock()
			fns := make([]func(AlertEvent), 0, len(b.alertSubs))
			for _, fn := range b.alertSubs {
				fns = append(fns, fn)
			}
			b.mu.RUnlock()
			for _, fn := range fns {
				fn(ev)
			}
		case <-ctx.Done():
			return
		}
	}
}
