package broker

import (
	"context"
	"fmt"

	"ScalpPulse/internal/domain/models"
	drepo "ScalpPulse/internal/domain/repository"
	xhttp "ScalpPulse/pkg/http"
	xlogger "ScalpPulse/pkg/logger"
)

// Client implements ChainFetcher against the broker's Upstox-style v2 REST
// API. All calls are plain GETs authenticated with a bearer token.
type Client struct {
	baseURL     string
	accessToken string
	http        *xhttp.Client
	log         *xlogger.Logger
}

// New builds a broker REST client for one session's access token.
func New(baseURL, accessToken string, httpClient *xhttp.Client, log *xlogger.Logger) drepo.ChainFetcher {
	return &Client{
		baseURL:     baseURL,
		accessToken: accessToken,
		http:        httpClient,
		log:         log,
	}
}

func (c *Client) headers() map[string]string {
	return map[string]string{
		"Accept":        "application/json",
		"Authorization": "Bearer " + c.accessToken,
	}
}

type ltpResponse struct {
	Status string `json:"status"`
	Data   map[string]struct {
		LastPrice float64 `json:"last_price"`
	} `json:"data"`
}

// SpotPrice returns the last traded price of the instrument.
func (c *Client) SpotPrice(ctx context.Context, instrumentKey string) (float64, error) {
	var res ltpResponse
	err := c.http.SendAndParse(ctx, &xhttp.RequestOptions{
		Method:      xhttp.MethodGet,
		URL:         c.baseURL + "/market-quote/ltp",
		Headers:     c.headers(),
		QueryParams: map[string][]string{"instrument_key": {instrumentKey}},
	}, &res)
	if err != nil {
		return 0, fmt.Errorf("fetch ltp: %w", err)
	}

	quote, ok := res.Data[instrumentKey]
	if !ok {
		return 0, fmt.Errorf("ltp response missing instrument %q", instrumentKey)
	}
	return quote.LastPrice, nil
}

type chainLeg struct {
	InstrumentKey string `json:"instrument_key"`
	MarketData    struct {
		LTP      float64 `json:"ltp"`
		OI       float64 `json:"oi"`
		Volume   float64 `json:"volume"`
		BidPrice float64 `json:"bid_price"`
		AskPrice float64 `json:"ask_price"`
	} `json:"market_data"`
}

type chainRow struct {
	StrikePrice float64   `json:"strike_price"`
	CallOptions *chainLeg `json:"call_options"`
	PutOptions  *chainLeg `json:"put_options"`
}

type chainResponse struct {
	Status string     `json:"status"`
	Data   []chainRow `json:"data"`
}

// OptionChain returns the full chain for one expiry, one entry per strike.
// Rows with a missing leg are passed through as-is; the snapshot builder
// decides how to treat them.
func (c *Client) OptionChain(ctx context.Context, instrumentKey, expiry string) ([]models.ChainEntry, error) {
	var res chainResponse
	err := c.http.SendAndParse(ctx, &xhttp.RequestOptions{
		Method:  xhttp.MethodGet,
		URL:     c.baseURL + "/option/chain",
		Headers: c.headers(),
		QueryParams: map[string][]string{
			"instrument_key": {instrumentKey},
			"expiry_date":    {expiry},
		},
	}, &res)
	if err != nil {
		return nil, fmt.Errorf("fetch option chain: %w", err)
	}

	entries := make([]models.ChainEntry, 0, len(res.Data))
	for _, row := range res.Data {
		entries = append(entries, models.ChainEntry{
			StrikePrice: row.StrikePrice,
			Call:        row.CallOptions.toQuote(),
			Put:         row.PutOptions.toQuote(),
		})
	}
	c.log.Debug("option chain fetched",
		xlogger.String("instrument", instrumentKey),
		xlogger.String("expiry", expiry),
		xlogger.Int("rows", len(entries)),
	)
	return entries, nil
}

func (l *chainLeg) toQuote() *models.ChainQuote {
	if l == nil || l.InstrumentKey == "" {
		return nil
	}
	return &models.ChainQuote{
		InstrumentKey: l.InstrumentKey,
		LTP:           l.MarketData.LTP,
		OpenInterest:  l.MarketData.OI,
		Volume:        l.MarketData.Volume,
		Bid:           l.MarketData.BidPrice,
		Ask:           l.MarketData.AskPrice,
	}
}
