package app

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/relabs-tech/usbl_position/internal/bus/bustest"
	"github.com/relabs-tech/usbl_position/internal/pose"
	"github.com/relabs-tech/usbl_position/internal/recorder"
)

type fakeHistory struct {
	entries []recorder.Entry
	limit   int
	err     error
}

func (f *fakeHistory) Recent(_ context.Context, limit int) ([]recorder.Entry, error) {
	f.limit = limit
	return f.entries, f.err
}

func modemPose(x float64) pose.Stamped {
	p := pose.Identity()
	p.Position = r3.Vec{X: x, Y: 2, Z: -30}
	return pose.Stamped{Frame: "map", Stamp: time.Date(2026, 4, 1, 12, 0, 0, 0, time.UTC), Pose: p}
}

func TestModemView_APIModem(t *testing.T) {
	v := NewModemView()
	srv := httptest.NewServer(v.Routes(t.TempDir()))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/api/modem")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)

	c := bustest.New()
	require.NoError(t, c.Subscribe("usbl/modem_delayed", 0, v.HandleMessage).Error())
	deliverJSON(t, c, "usbl/modem_delayed", modemPose(7))

	resp, err = http.Get(srv.URL + "/api/modem")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))

	var got pose.Stamped
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&got))
	assert.Equal(t, "map", got.Frame)
	assert.Equal(t, 7.0, got.Pose.Position.X)
}

func TestModemView_APIFixes(t *testing.T) {
	v := NewModemView()
	h := v.Routes(t.TempDir())

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/fixes", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	hist := &fakeHistory{entries: []recorder.Entry{{
		BundleID: "b1",
		Path:     "direct",
		Frame:    "map",
		Position: r3.Vec{X: 1, Y: 2, Z: 3},
		Variance: r3.Vec{X: 0.1, Y: 0.2, Z: 0.3},
		RawFix:   json.RawMessage(`{"north":1}`),
	}}}
	v.History = hist

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/fixes?limit=5", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 5, hist.limit)

	var out []map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	require.Len(t, out, 1)
	assert.Equal(t, "b1", out[0]["bundle_id"])
	assert.Equal(t, 0.3, out[0]["var_z"])
	assert.Equal(t, map[string]any{"north": 1.0}, out[0]["raw_fix"])

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/fixes?limit=zero", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	hist.err = errors.New("disk full")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/fixes", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, 50, hist.limit)
}

func TestModemView_WebsocketStream(t *testing.T) {
	v := NewModemView()
	v.Update(modemPose(1))

	srv := httptest.NewServer(v.Routes(t.TempDir()))
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))

	var got pose.Stamped
	require.NoError(t, conn.ReadJSON(&got))
	assert.Equal(t, 1.0, got.Pose.Position.X)

	// Each Update goes to every client registered at that moment.
	require.Eventually(t, func() bool {
		v.mu.RLock()
		defer v.mu.RUnlock()
		return len(v.conns) == 1
	}, time.Second, 5*time.Millisecond)
	v.Update(modemPose(2))

	require.NoError(t, conn.ReadJSON(&got))
	assert.Equal(t, 2.0, got.Pose.Position.X)
}
