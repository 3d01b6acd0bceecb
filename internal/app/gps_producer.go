package app

import (
	"bufio"
	"io"
	"log"
	"time"

	serial "github.com/jacobsa/go-serial/serial"

	"github.com/relabs-tech/usbl_position/internal/bus"
	"github.com/relabs-tech/usbl_position/internal/config"
	"github.com/relabs-tech/usbl_position/internal/gps"
)

// RunGPSProducer opens the buoy GPS serial port, parses NMEA sentences, and
// publishes each GGA-based fix as JSON to the buoy topic.
func RunGPSProducer() error {
	cfg := config.Get()

	// ---- 1) Connect to MQTT broker ----
	client, err := bus.Connect(cfg.MQTTBroker, cfg.MQTTClientIDGPS)
	if err != nil {
		return err
	}
	defer client.Disconnect(250)
	log.Printf("GPS producer connected to MQTT broker at %s", cfg.MQTTBroker)

	// ---- 2) Open GPS serial port ----
	port, err := openSerial(cfg.GPSSerialPort, cfg.GPSBaudRate)
	if err != nil {
		return err
	}
	defer port.Close()
	log.Printf("GPS serial port opened on %s at %d baud", cfg.GPSSerialPort, cfg.GPSBaudRate)

	return produceGPS(port, client, cfg.TopicBuoy, time.Now)
}

// openSerial opens an 8N1 port.
func openSerial(name string, baud int) (io.ReadWriteCloser, error) {
	// NOTE: adjust the port to match your setup: /dev/serial0, /dev/ttyAMA0, /dev/ttyUSB0, etc.
	opts := serial.OpenOptions{
		PortName:              name,
		BaudRate:              uint(baud),
		DataBits:              8,
		StopBits:              1,
		MinimumReadSize:       1,
		ParityMode:            serial.PARITY_NONE,
		InterCharacterTimeout: 0,
	}
	return serial.Open(opts)
}

// produceGPS reads until r fails, publishing every completed fix.
func produceGPS(r io.Reader, client bus.Client, topic string, now func() time.Time) error {
	reader := bufio.NewReader(r)
	var parser gps.Parser

	for {
		line, err := reader.ReadString('\n')
		if err != nil {
			log.Printf("GPS read error: %v", err)
			return err
		}

		fix, ok, err := parser.Feed(line, now())
		if err != nil {
			// noisy GPS or partial sentences
			continue
		}
		if !ok {
			continue
		}

		if err := bus.PublishJSON(client, topic, true, fix); err != nil {
			log.Printf("GPS publish error: %v", err)
			continue
		}
		log.Printf("published GPS fix: lat=%.7f lon=%.7f quality=%s sats=%d", fix.Latitude, fix.Longitude, fix.Quality, fix.Satellites)
	}
}
