package app

import (
	"fmt"
	"log"
	"time"

	"github.com/relabs-tech/usbl_position/internal/bus"
	"github.com/relabs-tech/usbl_position/internal/config"
	"github.com/relabs-tech/usbl_position/internal/tf"
)

// RunStaticTF publishes STATIC_TF_BUOY_USBL retained on the static
// transform topic and exits.
func RunStaticTF() error {
	cfg := config.Get()

	t, ok := StaticTransform(cfg)
	if !ok {
		return fmt.Errorf("STATIC_TF_BUOY_USBL is not set")
	}
	t.Stamp = time.Now()

	client, err := bus.Connect(cfg.MQTTBroker, cfg.MQTTClientIDTF)
	if err != nil {
		return err
	}
	defer client.Disconnect(250)

	if err := tf.PublishStatic(client, cfg.TopicTFStatic, t); err != nil {
		return err
	}
	log.Printf("static_tf: published %s -> %s t=(%.3f, %.3f, %.3f)", t.Parent, t.Child,
		t.Translation.X, t.Translation.Y, t.Translation.Z)
	return nil
}
