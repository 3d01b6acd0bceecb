// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package tf

import (
	"context"
	"encoding/json"
	"strings"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/relabs-tech/usbl_position/internal/bus"
	"github.com/relabs-tech/usbl_position/internal/logging"
)

// Bridge mirrors the MQTT transform topics into a Buffer and publishes
// local transforms back out. Static transforms go retained to
// "<static topic>/<child>" so late subscribers receive every one.
type Bridge struct {
	client      bus.Client
	buf         *Buffer
	topic       string
	staticTopic string
	log         logging.Logger
}

// NewBridge wires buf to client. Call Start to subscribe.
func NewBridge(client bus.Client, buf *Buffer, topic, staticTopic string, log logging.Logger) *Bridge {
	if log == nil {
		log = logging.Noop()
	}
	return &Bridge{
		client:      client,
		buf:         buf,
		topic:       topic,
		staticTopic: strings.TrimSuffix(staticTopic, "/"),
		log:         log.With(logging.String("component", "tf_bridge")),
	}
}

// Start subscribes to the dynamic and static transform topics.
func (b *Bridge) Start() error {
	if err := bus.Subscribe(b.client, b.topic, b.handler(false)); err != nil {
		return err
	}
	return bus.Subscribe(b.client, b.staticTopic+"/#", b.handler(true))
}

func (b *Bridge) handler(static bool) mqtt.MessageHandler {
	return func(_ mqtt.Client, msg mqtt.Message) {
		var m Message
		if err := json.Unmarshal(msg.Payload(), &m); err != nil {
			b.log.Warn(context.Background(), "tf payload unmarshal error",
				logging.String("topic", msg.Topic()), logging.Err(err))
			return
		}
		for _, t := range m.Transforms {
			var err error
			if static {
				err = b.buf.SetStatic(t)
			} else {
				err = b.buf.Set(t)
			}
			if err != nil {
				b.log.Warn(context.Background(), "tf rejected",
					logging.String("topic", msg.Topic()), logging.Err(err))
			}
		}
	}
}

// Broadcast stores t locally and publishes it on the dynamic topic.
func (b *Bridge) Broadcast(t Transform) error {
	if err := b.buf.Set(t); err != nil {
		return err
	}
	return bus.PublishJSON(b.client, b.topic, false, Message{Transforms: []Transform{t}})
}

// BroadcastStatic stores t locally and publishes it retained.
func (b *Bridge) BroadcastStatic(t Transform) error {
	if err := b.buf.SetStatic(t); err != nil {
		return err
	}
	return PublishStatic(b.client, b.staticTopic, t)
}

// Lookup delegates to the buffer.
func (b *Bridge) Lookup(ctx context.Context, target, source string) (Transform, error) {
	return b.buf.Lookup(ctx, target, source)
}

// PublishStatic publishes t retained without a local buffer.
func PublishStatic(client bus.Client, staticTopic string, t Transform) error {
	topic := strings.TrimSuffix(staticTopic, "/") + "/" + t.Child
	return bus.PublishJSON(client, topic, true, Message{Transforms: []Transform{t}})
}
