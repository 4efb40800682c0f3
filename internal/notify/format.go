package notify

import (
	"fmt"
	"html"
	"net/url"
	"strings"

	"wallwatch/internal/model"
)

var eventTitles = map[string]string{
	model.EventWallCandidate: "👀 Wall candidate",
	model.EventWallConfirmed: "✅ Wall confirmed",
	model.EventWallConsuming: "🔻 Wall consuming",
	model.EventWallLost:      "💨 Wall lost",
}

// InstrumentType distinguishes the deep-link path segment built for an
// instrument.
type InstrumentType string

const (
	InstrumentShare    InstrumentType = "SHARE"
	InstrumentBond     InstrumentType = "BOND"
	InstrumentETF      InstrumentType = "ETF"
	InstrumentFutures  InstrumentType = "FUTURES"
	InstrumentCurrency InstrumentType = "CURRENCY"
)

const instrumentBaseURL = "https://www.tbank.ru/invest"

// BuildInstrumentURL returns the deep link for an instrument, or "" when
// the type/ticker pair doesn't map to a known section.
func BuildInstrumentURL(kind InstrumentType, ticker string) string {
	switch kind {
	case InstrumentShare:
		return fmt.Sprintf("%s/stocks/%s/", instrumentBaseURL, ticker)
	case InstrumentBond:
		return fmt.Sprintf("%s/bonds/%s/", instrumentBaseURL, ticker)
	case InstrumentETF:
		return fmt.Sprintf("%s/etfs/%s/", instrumentBaseURL, url.PathEscape(ticker))
	case InstrumentFutures:
		return fmt.Sprintf("%s/futures/%s/", instrumentBaseURL, ticker)
	case InstrumentCurrency:
		return fmt.Sprintf("%s/currencies/%s/", instrumentBaseURL, ticker)
	default:
		return ""
	}
}

func formatDecimal(v float64) string {
	return strings.TrimRight(strings.TrimRight(fmt.Sprintf("%.8f", v), "0"), ".")
}

func formatSigned(v float64) string {
	if v >= 0 {
		return "+" + formatDecimal(v)
	}
	return formatDecimal(v)
}

func formatSide(s model.Side) string {
	if s == model.SideBuy {
		return "BUY (bid)"
	}
	return "SELL (ask)"
}

// FormatEventMessage renders an HTML-formatted Telegram message body for a
// lifecycle event. User-controlled fields (symbol) are escaped.
func FormatEventMessage(ev model.WallEvent) string {
	title, ok := eventTitles[ev.Event]
	if !ok {
		title = ev.Event
	}

	var b strings.Builder
	fmt.Fprintf(&b, "<b>%s</b>\n", title)
	fmt.Fprintf(&b, "Symbol: <code>%s</code>\n", html.EscapeString(ev.Symbol))
	fmt.Fprintf(&b, "Side: %s\n", formatSide(ev.Side))
	fmt.Fprintf(&b, "Price: %s\n", formatDecimal(ev.Price))
	fmt.Fprintf(&b, "Qty: %s\n", formatDecimal(ev.Qty))
	if ev.RatioToMedian > 0 {
		fmt.Fprintf(&b, "Ratio to median: %.1fx\n", ev.RatioToMedian)
	}
	if ev.DistanceTicks > 0 {
		fmt.Fprintf(&b, "Distance to spread: %d ticks\n", ev.DistanceTicks)
	}
	if ev.DwellSeconds > 0 {
		fmt.Fprintf(&b, "Dwell: %.0fs\n", ev.DwellSeconds)
	}
	if ev.QtyChangeLastInterval != 0 {
		fmt.Fprintf(&b, "Qty change: %s\n", formatSigned(ev.QtyChangeLastInterval))
	}
	if ev.Reason != "" {
		fmt.Fprintf(&b, "Reason: %s\n", ev.Reason)
	}
	return b.String()
}
