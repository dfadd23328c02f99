package feed

import (
	"encoding/json"
	"errors"
	"fmt"

	"mngfx-livechart/internal/market"
)

const (
	ActionSubscribe = "subscribe"

	TypeTick       = "tick"
	TypeWelcome    = "welcome"
	TypeSubscribed = "subscribed"
	TypeError      = "error"
)

var (
	// ErrMalformed marks a frame that is not a JSON object.
	ErrMalformed = errors.New("malformed feed message")
	// ErrIgnored marks a well-formed frame that carries no tick.
	ErrIgnored = errors.New("feed message carries no tick")
)

type SubscribeCommand struct {
	Action string `json:"action"`
	Symbol string `json:"symbol"`
}

func Subscribe(symbol string) SubscribeCommand {
	return SubscribeCommand{Action: ActionSubscribe, Symbol: symbol}
}

type TickPayload struct {
	Symbol string  `json:"symbol"`
	Bid    float64 `json:"bid"`
	Ask    float64 `json:"ask"`
	TS     int64   `json:"ts"`
}

func (p TickPayload) Tick() market.Tick {
	return market.Tick{Symbol: p.Symbol, Bid: p.Bid, Ask: p.Ask, TimestampMillis: p.TS}
}

func NewTickPayload(t market.Tick) TickPayload {
	return TickPayload{Symbol: t.Symbol, Bid: t.Bid, Ask: t.Ask, TS: t.TimestampMillis}
}

// Envelope is every server to client frame.
type Envelope struct {
	Type    string       `json:"type"`
	Tick    *TickPayload `json:"tick,omitempty"`
	Symbol  string       `json:"symbol,omitempty"`
	Message string       `json:"message,omitempty"`
}

func TickMessage(t market.Tick) Envelope {
	payload := NewTickPayload(t)
	return Envelope{Type: TypeTick, Tick: &payload}
}

func Decode(data []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return Envelope{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return env, nil
}

// ParseTick extracts the tick from a "tick" frame. Other frame types and a
// missing tick field yield ErrIgnored; undecodable input yields ErrMalformed.
func ParseTick(data []byte) (market.Tick, Envelope, error) {
	env, err := Decode(data)
	if err != nil {
		return market.Tick{}, Envelope{}, err
	}
	if env.Type != TypeTick || env.Tick == nil {
		return market.Tick{}, env, ErrIgnored
	}
	return env.Tick.Tick(), env, nil
}
