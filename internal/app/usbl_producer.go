// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"bufio"
	"errors"
	"io"
	"log"
	"time"

	"github.com/relabs-tech/usbl_position/internal/bus"
	"github.com/relabs-tech/usbl_position/internal/config"
	"github.com/relabs-tech/usbl_position/internal/usbl"
)

// RunUSBLProducer reads interrogator notifications from the USBL serial
// line and publishes USBLLONG and USBLANGLES fixes as JSON.
func RunUSBLProducer() error {
	cfg := config.Get()

	client, err := bus.Connect(cfg.MQTTBroker, cfg.MQTTClientIDUSBL)
	if err != nil {
		return err
	}
	defer client.Disconnect(250)
	log.Printf("USBL producer connected to MQTT broker at %s", cfg.MQTTBroker)

	port, err := openSerial(cfg.USBLSerialPort, cfg.USBLBaudRate)
	if err != nil {
		return err
	}
	defer port.Close()
	log.Printf("USBL serial port opened on %s at %d baud", cfg.USBLSerialPort, cfg.USBLBaudRate)

	return produceUSBL(port, client, cfg.TopicUSBLLong, cfg.TopicUSBLAngles, time.Now)
}

func produceUSBL(r io.Reader, client bus.Client, longTopic, anglesTopic string, now func() time.Time) error {
	reader := bufio.NewReader(r)
	for {
		line, err := reader.ReadString('\n')
		if err != nil {
			log.Printf("USBL read error: %v", err)
			return err
		}

		s, err := usbl.ParseLine(line, now())
		if errors.Is(err, usbl.ErrUnknownSentence) {
			continue
		}
		if err != nil {
			log.Printf("USBL parse error: %v", err)
			continue
		}

		topic := longTopic
		if s.Kind() == usbl.KindAngles {
			topic = anglesTopic
		}
		if err := bus.PublishJSON(client, topic, false, s); err != nil {
			log.Printf("USBL publish error: %v", err)
			continue
		}
	}
}
