package notify

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"wallwatch/internal/model"
)

func TestFormatEventMessageEscapesSymbol(t *testing.T) {
	ev := model.WallEvent{
		Event:         model.EventWallConfirmed,
		Symbol:        "<script>",
		Side:          model.SideSell,
		Price:         123.45,
		Qty:           1000,
		RatioToMedian: 12.3,
		DistanceTicks: 2,
		DwellSeconds:  45,
		TS:            time.Now(),
	}
	msg := FormatEventMessage(ev)
	assert.Contains(t, msg, "&lt;script&gt;")
	assert.Contains(t, msg, "SELL (ask)")
	assert.Contains(t, msg, "123.45")
}

func TestBuildInstrumentURL(t *testing.T) {
	assert.Equal(t, "https://www.tbank.ru/invest/stocks/SBER/", BuildInstrumentURL(InstrumentShare, "SBER"))
	assert.Equal(t, "", BuildInstrumentURL(InstrumentType("UNKNOWN"), "X"))
}
