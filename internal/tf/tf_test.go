package tf

import (
	"context"
	"encoding/json"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/num/quat"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/relabs-tech/usbl_position/internal/bus/bustest"
)

func yaw(rad float64) quat.Number {
	s, c := math.Sincos(rad / 2)
	return quat.Number{Real: c, Kmag: s}
}

func tr(parent, child string, x, y, z float64, q quat.Number) Transform {
	return Transform{Parent: parent, Child: child, Translation: r3.Vec{X: x, Y: y, Z: z}, Rotation: q}
}

func assertVec(t *testing.T, want, got r3.Vec) {
	t.Helper()
	assert.InDelta(t, want.X, got.X, 1e-9, "x")
	assert.InDelta(t, want.Y, got.Y, 1e-9, "y")
	assert.InDelta(t, want.Z, got.Z, 1e-9, "z")
}

func TestBuffer_ChainAndInverse(t *testing.T) {
	b := NewBuffer()
	require.NoError(t, b.Set(tr("map", "buoy", 10, 0, 0, yaw(math.Pi/2))))
	require.NoError(t, b.SetStatic(tr("buoy", "usbl", 1, 0, 2, quat.Number{Real: 1})))

	got, err := b.TryLookup("map", "usbl")
	require.NoError(t, err)
	assert.Equal(t, "map", got.Parent)
	assert.Equal(t, "usbl", got.Child)
	// buoy x axis points along map y.
	assertVec(t, r3.Vec{X: 10, Y: 1, Z: 2}, got.Translation)

	back, err := b.TryLookup("usbl", "map")
	require.NoError(t, err)
	p := back.Pose()
	q := got.Pose()
	// usbl->map then map->usbl is the identity.
	assertVec(t, r3.Vec{}, r3.Add(q.Position, rotate(q.Orientation, p.Position)))

	self, err := b.TryLookup("usbl", "usbl")
	require.NoError(t, err)
	assertVec(t, r3.Vec{}, self.Translation)
}

func TestBuffer_SiblingBranches(t *testing.T) {
	b := NewBuffer()
	require.NoError(t, b.Set(tr("map", "buoy", 5, 5, 0, quat.Number{Real: 1})))
	require.NoError(t, b.Set(tr("map", "dock", 2, 1, 0, quat.Number{Real: 1})))

	got, err := b.TryLookup("dock", "buoy")
	require.NoError(t, err)
	assertVec(t, r3.Vec{X: 3, Y: 4}, got.Translation)
}

func TestBuffer_NotFoundAndInvalid(t *testing.T) {
	b := NewBuffer()
	require.NoError(t, b.Set(tr("map", "buoy", 0, 0, 0, quat.Number{Real: 1})))

	_, err := b.TryLookup("map", "usbl")
	assert.ErrorIs(t, err, ErrNotFound)

	assert.ErrorIs(t, b.Set(tr("", "x", 0, 0, 0, quat.Number{})), ErrInvalid)
	assert.ErrorIs(t, b.Set(tr("x", "x", 0, 0, 0, quat.Number{})), ErrInvalid)
	assert.ErrorIs(t, b.Set(tr("buoy", "map", 0, 0, 0, quat.Number{})), ErrInvalid)

	assert.Equal(t, map[string]bool{"buoy": false}, b.Frames())
}

func TestBuffer_LookupWaitsForTransform(t *testing.T) {
	t.Parallel()
	b := NewBuffer()
	go func() {
		time.Sleep(20 * time.Millisecond)
		_ = b.SetStatic(tr("buoy", "usbl", 0, 0, 1, quat.Number{Real: 1}))
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	got, err := b.Lookup(ctx, "buoy", "usbl")
	require.NoError(t, err)
	assertVec(t, r3.Vec{Z: 1}, got.Translation)
}

func TestBuffer_LookupTimesOut(t *testing.T) {
	t.Parallel()
	b := NewBuffer()
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	_, err := b.Lookup(ctx, "buoy", "usbl")
	assert.ErrorIs(t, err, ErrTimeout)
}

func TestTransform_JSONShape(t *testing.T) {
	stamp := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	in := tr("buoy", "usbl", 1, 2, 3, yaw(math.Pi))
	in.Stamp = stamp

	data, err := json.Marshal(in)
	require.NoError(t, err)

	var raw map[string]any
	require.NoError(t, json.Unmarshal(data, &raw))
	assert.Equal(t, "usbl", raw["child_frame_id"])
	assert.Equal(t, "buoy", raw["header"].(map[string]any)["frame_id"])

	var out Transform
	require.NoError(t, json.Unmarshal(data, &out))
	assert.Equal(t, in.Parent, out.Parent)
	assert.True(t, stamp.Equal(out.Stamp))
	assertVec(t, in.Translation, out.Translation)
	assert.InDelta(t, 1, math.Abs(out.Rotation.Kmag), 1e-12)
}

func TestBridge_MirrorsTopics(t *testing.T) {
	c := bustest.New()
	require.NoError(t, PublishStatic(c, "tf_static", tr("buoy", "usbl", 0, 0, 1, quat.Number{Real: 1})))

	buf := NewBuffer()
	br := NewBridge(c, buf, "tf", "tf_static", nil)
	require.NoError(t, br.Start())

	// retained static transform replayed on subscribe
	frames := buf.Frames()
	assert.True(t, frames["usbl"])

	require.NoError(t, br.Broadcast(tr("map", "buoy", 3, 0, 0, quat.Number{Real: 1})))
	require.Len(t, c.On("tf"), 1)
	assert.False(t, c.On("tf")[0].Retained)

	got, err := br.Lookup(context.Background(), "map", "usbl")
	require.NoError(t, err)
	assertVec(t, r3.Vec{X: 3, Z: 1}, got.Translation)

	// remote updates land in the buffer
	data, err := json.Marshal(Message{Transforms: []Transform{tr("map", "buoy", 7, 0, 0, quat.Number{Real: 1})}})
	require.NoError(t, err)
	c.Deliver("tf", data)
	got, err = buf.TryLookup("map", "buoy")
	require.NoError(t, err)
	assertVec(t, r3.Vec{X: 7}, got.Translation)

	// garbage is dropped
	c.Deliver("tf", []byte("{"))
	got, err = buf.TryLookup("map", "buoy")
	require.NoError(t, err)
	assertVec(t, r3.Vec{X: 7}, got.Translation)

	require.NoError(t, br.BroadcastStatic(tr("usbl", "modem_head", 0, 0, 0.2, quat.Number{Real: 1})))
	pubs := c.On("tf_static/modem_head")
	require.Len(t, pubs, 1)
	assert.True(t, pubs[0].Retained)
}

func rotate(q quat.Number, v r3.Vec) r3.Vec {
	p := quat.Mul(quat.Mul(q, quat.Number{Imag: v.X, Jmag: v.Y, Kmag: v.Z}), quat.Conj(q))
	return r3.Vec{X: p.Imag, Y: p.Jmag, Z: p.Kmag}
}
