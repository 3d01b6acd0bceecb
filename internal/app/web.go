package app

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/gorilla/websocket"

	"github.com/relabs-tech/usbl_position/internal/bus"
	"github.com/relabs-tech/usbl_position/internal/config"
	"github.com/relabs-tech/usbl_position/internal/pose"
	"github.com/relabs-tech/usbl_position/internal/recorder"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all origins for local development
	},
}

// RecentFixes is the read side of the recorder.
type RecentFixes interface {
	Recent(ctx context.Context, limit int) ([]recorder.Entry, error)
}

// ModemView keeps the last modem pose and fans updates out to websocket
// clients.
type ModemView struct {
	mu       sync.RWMutex
	last     pose.Stamped
	haveLast bool
	conns    map[*websocket.Conn]struct{}
	writeMu  sync.Mutex // one writer per connection at a time

	// History, when set, backs /api/fixes.
	History RecentFixes
}

func NewModemView() *ModemView {
	return &ModemView{conns: make(map[*websocket.Conn]struct{})}
}

// Update stores s and pushes it to every connected client. Clients that
// fail to receive are dropped.
func (v *ModemView) Update(s pose.Stamped) {
	v.mu.Lock()
	v.last = s
	v.haveLast = true
	conns := make([]*websocket.Conn, 0, len(v.conns))
	for c := range v.conns {
		conns = append(conns, c)
	}
	v.mu.Unlock()

	v.writeMu.Lock()
	defer v.writeMu.Unlock()
	for _, c := range conns {
		c.SetWriteDeadline(time.Now().Add(time.Second))
		if err := c.WriteJSON(s); err != nil {
			log.Printf("web: websocket write error: %v", err)
			v.drop(c)
		}
	}
}

// Last returns the most recent pose, if any.
func (v *ModemView) Last() (pose.Stamped, bool) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.last, v.haveLast
}

func (v *ModemView) drop(c *websocket.Conn) {
	v.mu.Lock()
	delete(v.conns, c)
	v.mu.Unlock()
	c.Close()
}

// HandleMessage decodes an MQTT modem pose.
func (v *ModemView) HandleMessage(_ mqtt.Client, msg mqtt.Message) {
	var s pose.Stamped
	if err := json.Unmarshal(msg.Payload(), &s); err != nil {
		log.Printf("web: modem payload unmarshal error: %v", err)
		return
	}
	v.Update(s)
}

// ServeModem answers /api/modem with the last pose.
func (v *ModemView) ServeModem(w http.ResponseWriter, r *http.Request) {
	s, ok := v.Last()
	if !ok {
		http.Error(w, "no data yet", http.StatusServiceUnavailable)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(s); err != nil {
		log.Printf("web: json encode error: %v", err)
	}
}

type fixView struct {
	BundleID string          `json:"bundle_id"`
	Path     string          `json:"path"`
	Stamp    time.Time       `json:"stamp"`
	Frame    string          `json:"frame_id"`
	X        float64         `json:"x"`
	Y        float64         `json:"y"`
	Z        float64         `json:"z"`
	VarX     float64         `json:"var_x"`
	VarY     float64         `json:"var_y"`
	VarZ     float64         `json:"var_z"`
	BuoyLat  float64         `json:"buoy_lat"`
	BuoyLon  float64         `json:"buoy_lon"`
	RawFix   json.RawMessage `json:"raw_fix,omitempty"`
}

// ServeFixes answers /api/fixes?limit=N from the recorder, newest first.
func (v *ModemView) ServeFixes(w http.ResponseWriter, r *http.Request) {
	if v.History == nil {
		http.Error(w, "recorder disabled", http.StatusNotFound)
		return
	}
	limit := 50
	if s := r.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 1 {
			http.Error(w, "invalid limit", http.StatusBadRequest)
			return
		}
		limit = n
	}

	entries, err := v.History.Recent(r.Context(), limit)
	if err != nil {
		log.Printf("web: recorder query error: %v", err)
		http.Error(w, "query failed", http.StatusInternalServerError)
		return
	}
	out := make([]fixView, 0, len(entries))
	for _, e := range entries {
		out = append(out, fixView{
			BundleID: e.BundleID,
			Path:     e.Path,
			Stamp:    e.Stamp,
			Frame:    e.Frame,
			X:        e.Position.X,
			Y:        e.Position.Y,
			Z:        e.Position.Z,
			VarX:     e.Variance.X,
			VarY:     e.Variance.Y,
			VarZ:     e.Variance.Z,
			BuoyLat:  e.BuoyLat,
			BuoyLon:  e.BuoyLon,
			RawFix:   e.RawFix,
		})
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(out); err != nil {
		log.Printf("web: json encode error: %v", err)
	}
}

// ServeWS registers a websocket client. The last pose, if any, is sent
// right away.
func (v *ModemView) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("web: websocket upgrade error: %v", err)
		return
	}

	v.writeMu.Lock()
	v.mu.Lock()
	v.conns[conn] = struct{}{}
	last, ok := v.last, v.haveLast
	v.mu.Unlock()
	if ok {
		err = conn.WriteJSON(last)
	}
	v.writeMu.Unlock()
	if err != nil {
		v.drop(conn)
		return
	}

	// Reads only detect the close.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			v.drop(conn)
			return
		}
	}
}

// Routes returns the HTTP mux with the API, websocket and static files
// from staticDir.
func (v *ModemView) Routes(staticDir string) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/modem", v.ServeModem)
	mux.HandleFunc("/api/fixes", v.ServeFixes)
	mux.HandleFunc("/ws", v.ServeWS)
	mux.Handle("/", http.FileServer(http.Dir(staticDir)))
	return mux
}

// RunWeb subscribes to the modem topic and serves the viewer.
func RunWeb() error {
	cfg := config.Get()
	view := NewModemView()

	// 1) Connect to MQTT broker
	client, err := bus.Connect(cfg.MQTTBroker, cfg.MQTTClientIDWeb)
	if err != nil {
		return err
	}
	defer client.Disconnect(250)
	log.Printf("web: connected to MQTT broker at %s", cfg.MQTTBroker)

	// 2) Recorder history, read-only use of the positioner's database
	if cfg.RecordDBPath != "" {
		rec, err := recorder.Open(cfg.RecordDBPath)
		if err != nil {
			return err
		}
		defer rec.Close()
		view.History = rec
		log.Printf("web: serving fix history from %s", cfg.RecordDBPath)
	}

	// 3) Subscribe to the modem pose topic
	if err := bus.Subscribe(client, cfg.TopicModem, view.HandleMessage); err != nil {
		return err
	}
	log.Printf("web: subscribed to MQTT topic %s", cfg.TopicModem)

	addr := fmt.Sprintf(":%d", cfg.WebServerPort)
	log.Printf("web server listening on %s", addr)
	return http.ListenAndServe(addr, view.Routes("web"))
}
