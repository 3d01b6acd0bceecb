package app

import (
	"encoding/json"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/relabs-tech/usbl_position/internal/bus"
	"github.com/relabs-tech/usbl_position/internal/config"
	"github.com/relabs-tech/usbl_position/internal/gps"
	"github.com/relabs-tech/usbl_position/internal/pose"
	"github.com/relabs-tech/usbl_position/internal/usbl"
)

// consoleHandlers maps each configured topic to a line printer writing to w.
func consoleHandlers(cfg *config.Config, w io.Writer) map[string]mqtt.MessageHandler {
	return map[string]mqtt.MessageHandler{
		cfg.TopicModem: func(_ mqtt.Client, msg mqtt.Message) {
			var s pose.Stamped
			if err := json.Unmarshal(msg.Payload(), &s); err != nil {
				log.Printf("console: modem unmarshal error: %v", err)
				return
			}
			xx, yy, zz := s.Pose.PositionVariance()
			p := s.Pose.Position
			fmt.Fprintf(w,
				"[MODEM] frame=%s x=%8.2f y=%8.2f z=%8.2f  var=(%.3f, %.3f, %.3f)\n",
				s.Frame, p.X, p.Y, p.Z, xx, yy, zz,
			)
		},
		cfg.TopicBuoy: func(_ mqtt.Client, msg mqtt.Message) {
			var f gps.Fix
			if err := json.Unmarshal(msg.Payload(), &f); err != nil {
				log.Printf("console: gps unmarshal error: %v", err)
				return
			}
			fmt.Fprintf(w,
				"[GPS ]  lat=%.7f lon=%.7f alt=%.1f quality=%s sats=%d hdop=%.1f validity=%s\n",
				f.Latitude, f.Longitude, f.Altitude, f.Quality, f.Satellites, f.HDOP, f.Validity,
			)
		},
		cfg.TopicUSBLLong: func(_ mqtt.Client, msg mqtt.Message) {
			var f usbl.DirectFix
			if err := json.Unmarshal(msg.Payload(), &f); err != nil {
				log.Printf("console: usbllong unmarshal error: %v", err)
				return
			}
			fmt.Fprintf(w,
				"[LONG]  addr=%d n=%7.2f e=%7.2f u=%7.2f  rssi=%s integrity=%s\n",
				f.RemoteAddress, f.North, f.East, f.Up, optional(f.RSSI), optional(f.Integrity),
			)
		},
		cfg.TopicUSBLAngles: func(_ mqtt.Client, msg mqtt.Message) {
			var f usbl.AngularFix
			if err := json.Unmarshal(msg.Payload(), &f); err != nil {
				log.Printf("console: usblangles unmarshal error: %v", err)
				return
			}
			fmt.Fprintf(w,
				"[ANGL]  addr=%d bearing=%6.3f elevation=%6.3f  rssi=%s integrity=%s\n",
				f.RemoteAddress, f.LocalBearing, f.LocalElevation, optional(f.RSSI), optional(f.Integrity),
			)
		},
	}
}

func optional(v *float64) string {
	if v == nil {
		return "-"
	}
	return fmt.Sprintf("%.1f", *v)
}

// RunConsoleMQTT prints every modem pose, buoy fix and acoustic fix.
func RunConsoleMQTT() error {
	cfg := config.Get()

	client, err := bus.Connect(cfg.MQTTBroker, cfg.MQTTClientIDConsole)
	if err != nil {
		return err
	}
	log.Printf("console: connected to MQTT broker at %s", cfg.MQTTBroker)

	for topic, handler := range consoleHandlers(cfg, os.Stdout) {
		if err := bus.Subscribe(client, topic, handler); err != nil {
			return err
		}
		log.Printf("console: subscribed to %s", topic)
	}

	// Wait for Ctrl+C
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	log.Println("console: shutting down")
	client.Disconnect(250)
	return nil
}
