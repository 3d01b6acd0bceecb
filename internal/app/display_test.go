package app

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"gonum.org/v1/gonum/spatial/r3"
	"periph.io/x/devices/v3/ssd1306/image1bit"

	"github.com/relabs-tech/usbl_position/internal/bus/bustest"
	"github.com/relabs-tech/usbl_position/internal/gps"
	"github.com/relabs-tech/usbl_position/internal/pose"
)

func TestStatusLines_Waiting(t *testing.T) {
	assert.Equal(t, []string{"Modem", "Waiting...", "GPS", "Waiting..."}, statusLines(displaySnapshot{}))
}

func TestStatusLines_FromMessages(t *testing.T) {
	var d DisplayData
	c := bustest.New()
	c.Subscribe("modem", 0, d.handleModem)
	c.Subscribe("buoy", 0, d.handleBuoy)

	p := pose.Identity()
	p.Position = r3.Vec{X: 20.04, Y: -15, Z: 30}
	p.SetPositionVariance(0.09, 0.16, 1)
	deliverJSON(t, c, "modem", pose.Stamped{Frame: "map", Pose: p})
	deliverJSON(t, c, "buoy", gps.Fix{Latitude: 41.38, Longitude: -2.17, Quality: "1", Satellites: 9})

	lines := statusLines(d.snapshot())
	assert.Equal(t, []string{
		"N   20.0 E  -15.0",
		"Z   30.0 sd 0.50",
		"41.38000N  9sat",
		"2.17000W",
	}, lines)
	for _, l := range lines {
		assert.LessOrEqual(t, len(l), displayWidth/7, l)
	}

	deliverJSON(t, c, "buoy", gps.Fix{Latitude: -1, Quality: "0"})
	assert.Equal(t, "1.00000S NOFIX", statusLines(d.snapshot())[2])
}

func TestRenderLines_LightsPixels(t *testing.T) {
	blank := renderLines(nil)
	for _, b := range blank.Pix {
		assert.Zero(t, b)
	}

	img := renderLines([]string{"N 1.0"})
	lit := 0
	for y := 0; y < displayHeight; y++ {
		for x := 0; x < displayWidth; x++ {
			if img.BitAt(x, y) == image1bit.On {
				lit++
				assert.Less(t, y, lineHeight+3, "only the first row is drawn")
			}
		}
	}
	assert.Positive(t, lit)
}
