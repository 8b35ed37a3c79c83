// Package live pushes appointment events to connected SSE and websocket
// clients. Delivery is at-most-once per connected subscriber: nothing is
// persisted and a slow client drops messages instead of blocking publishers.
package live

import (
	"context"
	"sync"

	"clinicbook_backend/platform/logger"

	"github.com/google/uuid"
)

// TopicAppointments receives every appointment event.
const TopicAppointments = "appointments"

// PatientTopic is the per-patient topic.
func PatientTopic(patientID uuid.UUID) string {
	return TopicAppointments + ".patient." + patientID.String()
}

// TopicsFor lists the topics an event about patientID is published to.
func TopicsFor(patientID *uuid.UUID) []string {
	if patientID == nil || *patientID == uuid.Nil {
		return []string{TopicAppointments}
	}
	return []string{TopicAppointments, PatientTopic(*patientID)}
}

// Publisher pushes a payload to a topic. *Hub publishes locally and
// *RedisRelay publishes to every replica.
type Publisher interface {
	Publish(ctx context.Context, topic string, payload []byte) error
}

// Message is one event as delivered to a subscriber.
type Message struct {
	Topic   string
	Payload []byte
}

// Subscriber is one connected client.
type Subscriber struct {
	ID     string
	Topics []string
	Send   chan Message
}

const subscriberBuffer = 64

// Hub tracks subscribers per topic.
type Hub struct {
	mu     sync.RWMutex
	topics map[string]map[*Subscriber]struct{}
	all    map[*Subscriber]struct{}
	log    *logger.Logger
}

func NewHub(log *logger.Logger) *Hub {
	return &Hub{
		topics: make(map[string]map[*Subscriber]struct{}),
		all:    make(map[*Subscriber]struct{}),
		log:    log,
	}
}

// Register adds a subscriber for topics.
func (h *Hub) Register(topics ...string) *Subscriber {
	sub := &Subscriber{
		ID:     uuid.NewString(),
		Topics: topics,
		Send:   make(chan Message, subscriberBuffer),
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	h.all[sub] = struct{}{}
	for _, topic := range topics {
		if h.topics[topic] == nil {
			h.topics[topic] = make(map[*Subscriber]struct{})
		}
		h.topics[topic][sub] = struct{}{}
	}
	return sub
}

// Unregister removes the subscriber and closes its channel. Safe to call twice.
func (h *Hub) Unregister(sub *Subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.all[sub]; !ok {
		return
	}
	for _, topic := range sub.Topics {
		if subs, ok := h.topics[topic]; ok {
			delete(subs, sub)
			if len(subs) == 0 {
				delete(h.topics, topic)
			}
		}
	}
	delete(h.all, sub)
	close(sub.Send)
}

// Publish fans payload out to the topic's current subscribers. It never blocks
// and never fails; full buffers drop the message.
func (h *Hub) Publish(_ context.Context, topic string, payload []byte) error {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for sub := range h.topics[topic] {
		select {
		case sub.Send <- Message{Topic: topic, Payload: payload}:
		default:
			h.log.Warn("live subscriber buffer full, dropping event", "subscriber", sub.ID, "topic", topic)
		}
	}
	return nil
}

// ClientCount returns the number of connected subscribers.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.all)
}

// TopicCount returns the number of subscribers on topic.
func (h *Hub) TopicCount(topic string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.topics[topic])
}

// Close disconnects every subscriber.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for sub := range h.all {
		close(sub.Send)
	}
	h.all = make(map[*Subscriber]struct{})
	h.topics = make(map[string]map[*Subscriber]struct{})
}
