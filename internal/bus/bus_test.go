package bus_test

import (
	"encoding/json"
	"errors"
	"testing"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relabs-tech/usbl_position/internal/bus"
	"github.com/relabs-tech/usbl_position/internal/bus/bustest"
)

func TestPublishJSON(t *testing.T) {
	c := bustest.New()
	require.NoError(t, bus.PublishJSON(c, "a/b", true, map[string]int{"x": 1}))

	got := c.On("a/b")
	require.Len(t, got, 1)
	assert.True(t, got[0].Retained)
	assert.JSONEq(t, `{"x":1}`, string(got[0].Payload))
}

func TestPublishJSON_Errors(t *testing.T) {
	c := bustest.New()
	err := bus.PublishJSON(c, "a", false, func() {})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "marshal a payload")

	c.PublishErr = errors.New("offline")
	err = bus.PublishJSON(c, "a", false, 1)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "publish a: offline")
}

func TestSubscribe_RetainedReplayAndWildcards(t *testing.T) {
	c := bustest.New()
	require.NoError(t, bus.PublishJSON(c, "tf_static/usbl", true, 1))

	var topics []string
	require.NoError(t, bus.Subscribe(c, "tf_static/#", func(_ mqtt.Client, m mqtt.Message) {
		var v int
		require.NoError(t, json.Unmarshal(m.Payload(), &v))
		topics = append(topics, m.Topic())
	}))
	c.Deliver("tf_static/buoy", []byte("2"))
	c.Deliver("tf", []byte("3"))

	assert.Equal(t, []string{"tf_static/usbl", "tf_static/buoy"}, topics)
}

func TestMatch(t *testing.T) {
	cases := []struct {
		filter, topic string
		want          bool
	}{
		{"a/b", "a/b", true},
		{"a/b", "a/c", false},
		{"a/+", "a/c", true},
		{"a/+", "a/c/d", false},
		{"a/#", "a", true},
		{"a/#", "a/b/c", true},
		{"#", "x", true},
		{"a/b/c", "a/b", false},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, bustest.Match(tc.filter, tc.topic), "%s vs %s", tc.filter, tc.topic)
	}
}
