// Package resolver looks up tradable instruments by symbol, UID, FIGI or
// ISIN, applying a deterministic tie-break when a query matches more than
// one instrument, and converts the upstream's (units, nano) quotation
// format into a decimal tick size.
package resolver

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/shopspring/decimal"

	"wallwatch/internal/streamclient"
)

// InstrumentInfo is one candidate returned by the upstream lookup service.
type InstrumentInfo struct {
	InstrumentID string `json:"instrument_id"`
	Symbol       string `json:"symbol"`
	FIGI         string `json:"figi"`
	ISIN         string `json:"isin"`
	Currency     string `json:"currency"`
	// MinPriceIncrementUnits/Nano mirror the upstream's fixed-point
	// quotation format: real value = units + nano * 1e-9.
	MinPriceIncrementUnits int64 `json:"min_price_increment_units"`
	MinPriceIncrementNano  int32 `json:"min_price_increment_nano"`
	Tradable               bool  `json:"tradable"`
}

// quotationToDecimal converts the upstream's fixed-point quotation into a
// decimal value, avoiding the float rounding error a naive units+nano*1e-9
// float64 computation would introduce at small tick sizes.
func quotationToDecimal(units int64, nano int32) decimal.Decimal {
	return decimal.New(units, 0).Add(decimal.New(int64(nano), -9))
}

// TickSize returns the instrument's minimum price increment as a float64,
// computed via decimal to avoid binary floating point drift. A
// non-positive increment yields 0.01.
func (i InstrumentInfo) TickSize() float64 {
	d := quotationToDecimal(i.MinPriceIncrementUnits, i.MinPriceIncrementNano)
	f, _ := d.Float64()
	if f <= 0 {
		return 0.01
	}
	return f
}

// Client looks up instruments via the upstream HTTP lookup service.
type Client struct {
	http    *resty.Client
	baseURL string
}

// NewClient builds a resolver Client with retry-on-5xx, matching the
// pack's idiomatic resty configuration for outbound HTTP.
func NewClient(baseURL, token string) *Client {
	h := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(10 * time.Second).
		SetRetryCount(3).
		SetRetryWaitTime(500 * time.Millisecond).
		SetRetryMaxWaitTime(5 * time.Second).
		AddRetryCondition(func(r *resty.Response, err error) bool {
			if err != nil {
				return true
			}
			return r.StatusCode() >= 500
		})
	if token != "" {
		h.SetAuthToken(token)
	}
	return &Client{http: h, baseURL: baseURL}
}

type findInstrumentResponse struct {
	Instruments []InstrumentInfo `json:"instruments"`
}

// FindInstrument looks up every instrument matching query (symbol, UID,
// FIGI or ISIN).
func (c *Client) FindInstrument(ctx context.Context, query string) ([]InstrumentInfo, error) {
	var result findInstrumentResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParam("query", query).
		SetResult(&result).
		Get("/instruments/find")
	if err != nil {
		return nil, fmt.Errorf("resolver: find instrument %q: %w", query, err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("resolver: find instrument %q: status %d", query, resp.StatusCode())
	}
	return result.Instruments, nil
}

// ResolveInstruments resolves each symbol to its chosen instrument,
// applying the tie-break order: exact case-insensitive symbol match over
// a currency-agnostic match, then tradable instruments over non-tradable,
// then the lexicographically smallest instrument ID for determinism. When
// no candidate is tradable, the non-tradable candidates are used. Symbols
// with no candidate at all are returned in the failures slice; a lookup
// error fails the whole batch.
func (c *Client) ResolveInstruments(ctx context.Context, symbols []string) ([]streamclient.Instrument, []string, error) {
	var resolved []streamclient.Instrument
	var failures []string

	for _, symbol := range symbols {
		candidates, err := c.FindInstrument(ctx, symbol)
		if err != nil {
			return nil, nil, err
		}
		chosen, ok := chooseInstrument(symbol, candidates)
		if !ok {
			failures = append(failures, symbol)
			continue
		}
		resolved = append(resolved, streamclient.Instrument{
			InstrumentID: chosen.InstrumentID,
			Symbol:       symbol,
			TickSize:     chosen.TickSize(),
		})
	}
	return resolved, failures, nil
}

func chooseInstrument(query string, candidates []InstrumentInfo) (InstrumentInfo, bool) {
	if len(candidates) == 0 {
		return InstrumentInfo{}, false
	}

	exact := make([]InstrumentInfo, 0, len(candidates))
	for _, c := range candidates {
		if strings.EqualFold(c.Symbol, query) {
			exact = append(exact, c)
		}
	}
	pool := candidates
	if len(exact) > 0 {
		pool = exact
	}

	tradable := make([]InstrumentInfo, 0, len(pool))
	for _, c := range pool {
		if c.Tradable {
			tradable = append(tradable, c)
		}
	}
	if len(tradable) > 0 {
		pool = tradable
	}

	sort.Slice(pool, func(i, j int) bool { return pool[i].InstrumentID < pool[j].InstrumentID })
	return pool[0], true
}
