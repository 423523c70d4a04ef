package models

import "time"

// StrikeType classifies a strike relative to spot.
type StrikeType string

const (
	StrikeATM StrikeType = "ATM"
	StrikeITM StrikeType = "ITM"
	StrikeOTM StrikeType = "OTM"
)

// OptionSide distinguishes the two legs of a chain row.
type OptionSide string

const (
	SideCall OptionSide = "CE"
	SidePut  OptionSide = "PE"
)

// ChainQuote is the market data carried by one option leg of a chain row.
type ChainQuote struct {
	InstrumentKey string  `json:"instrument_key"`
	LTP           float64 `json:"ltp"`
	OpenInterest  float64 `json:"oi"`
	Volume        float64 `json:"volume"`
	Bid           float64 `json:"bid"`
	Ask           float64 `json:"ask"`
}

// ChainEntry is one strike row of the option chain snapshot returned by the
// broker's REST API. Either leg may be absent on sparse chains.
type ChainEntry struct {
	StrikePrice float64     `json:"strike_price"`
	Call        *ChainQuote `json:"call_options"`
	Put         *ChainQuote `json:"put_options"`
}

// Strike is one subscribable instrument selected from the chain.
type Strike struct {
	Strike        float64    `json:"strike"`
	Side          OptionSide `json:"side"`
	Type          StrikeType `json:"type"`
	InstrumentKey string     `json:"instrument_key"`
	LTP           float64    `json:"ltp"`
	OpenInterest  float64    `json:"oi"`
}

// ContextSnapshot is the periodically refreshed derivative-chain context.
// Replaced wholesale on each successful poll; read-only to consumers.
type ContextSnapshot struct {
	SpotPrice float64   `json:"spot_price"`
	PCR       float64   `json:"pcr"`
	CallOI    float64   `json:"call_oi"`
	PutOI     float64   `json:"put_oi"`
	Strikes   []Strike  `json:"strikes"`
	FetchedAt time.Time `json:"fetched_at"`
}

// InstrumentKeys returns the subscription keys of the target strikes,
// preserving order.
func (s ContextSnapshot) InstrumentKeys() []string {
	keys := make([]string, 0, len(s.Strikes))
	for _, st := range s.Strikes {
		keys = append(keys, st.InstrumentKey)
	}
	return keys
}
