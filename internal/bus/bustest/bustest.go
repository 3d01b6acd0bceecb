// Package bustest provides an in-memory bus.Client for tests.
package bustest

import (
	"strings"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// Published is one recorded Publish call.
type Published struct {
	Topic    string
	Retained bool
	Payload  []byte
}

// Client records publishes and routes them to matching subscriptions.
type Client struct {
	mu        sync.Mutex
	published []Published
	handlers  map[string]mqtt.MessageHandler
	retained  map[string][]byte

	// PublishErr, when set, is returned by every publish token.
	PublishErr error
}

// New returns an empty client.
func New() *Client {
	return &Client{
		handlers: make(map[string]mqtt.MessageHandler),
		retained: make(map[string][]byte),
	}
}

func (c *Client) Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token {
	var data []byte
	switch p := payload.(type) {
	case []byte:
		data = p
	case string:
		data = []byte(p)
	}

	c.mu.Lock()
	if c.PublishErr != nil {
		err := c.PublishErr
		c.mu.Unlock()
		return &Token{err: err}
	}
	c.published = append(c.published, Published{Topic: topic, Retained: retained, Payload: data})
	if retained {
		c.retained[topic] = data
	}
	handlers := c.matching(topic)
	c.mu.Unlock()

	for _, h := range handlers {
		h(nil, &Message{topic: topic, payload: data, retained: retained})
	}
	return &Token{}
}

func (c *Client) Subscribe(topic string, qos byte, callback mqtt.MessageHandler) mqtt.Token {
	c.mu.Lock()
	c.handlers[topic] = callback
	var replay []Message
	for t, data := range c.retained {
		if Match(topic, t) {
			replay = append(replay, Message{topic: t, payload: data, retained: true})
		}
	}
	c.mu.Unlock()

	for i := range replay {
		callback(nil, &replay[i])
	}
	return &Token{}
}

// Deliver injects an inbound message as if it came from the broker.
func (c *Client) Deliver(topic string, payload []byte) {
	c.mu.Lock()
	handlers := c.matching(topic)
	c.mu.Unlock()
	for _, h := range handlers {
		h(nil, &Message{topic: topic, payload: payload})
	}
}

// Published returns a copy of all publishes so far.
func (c *Client) Published() []Published {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Published(nil), c.published...)
}

// On returns the publishes made on topic.
func (c *Client) On(topic string) []Published {
	var out []Published
	for _, p := range c.Published() {
		if p.Topic == topic {
			out = append(out, p)
		}
	}
	return out
}

func (c *Client) matching(topic string) []mqtt.MessageHandler {
	var out []mqtt.MessageHandler
	for filter, h := range c.handlers {
		if Match(filter, topic) {
			out = append(out, h)
		}
	}
	return out
}

// Match reports whether topic matches the MQTT filter (+ and # wildcards).
func Match(filter, topic string) bool {
	fs := strings.Split(filter, "/")
	ts := strings.Split(topic, "/")
	for i, f := range fs {
		if f == "#" {
			return true
		}
		if i >= len(ts) {
			return false
		}
		if f != "+" && f != ts[i] {
			return false
		}
	}
	return len(fs) == len(ts)
}

// Token is an already-completed mqtt.Token.
type Token struct {
	err error
}

func (t *Token) Wait() bool                     { return true }
func (t *Token) WaitTimeout(time.Duration) bool { return true }
func (t *Token) Error() error                   { return t.err }

func (t *Token) Done() <-chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}

// Message is an inbound mqtt.Message.
type Message struct {
	topic    string
	payload  []byte
	retained bool
}

func (m *Message) Duplicate() bool   { return false }
func (m *Message) Qos() byte         { return 0 }
func (m *Message) Retained() bool    { return m.retained }
func (m *Message) Topic() string     { return m.topic }
func (m *Message) MessageID() uint16 { return 0 }
func (m *Message) Payload() []byte   { return m.payload }
func (m *Message) Ack()              {}
