package publisher

import (
	"bytes"
	"errors"

	"mngfx-livechart/internal/market"

	"github.com/vmihailenco/msgpack/v5"
)

type wireTick struct {
	Symbol string  `msgpack:"symbol"`
	Bid    float64 `msgpack:"bid"`
	Ask    float64 `msgpack:"ask"`
	TS     int64   `msgpack:"ts"`
}

// EncodeTick writes the tick as a msgpack map with fixed key order.
func EncodeTick(t market.Tick) ([]byte, error) {
	if t.Symbol == "" {
		return nil, errors.New("tick symbol is required")
	}
	var buf bytes.Buffer
	enc := msgpack.NewEncoder(&buf)
	if err := enc.EncodeMapLen(4); err != nil {
		return nil, err
	}
	if err := enc.EncodeString("symbol"); err != nil {
		return nil, err
	}
	if err := enc.EncodeString(t.Symbol); err != nil {
		return nil, err
	}
	if err := enc.EncodeString("bid"); err != nil {
		return nil, err
	}
	if err := enc.EncodeFloat64(t.Bid); err != nil {
		return nil, err
	}
	if err := enc.EncodeString("ask"); err != nil {
		return nil, err
	}
	if err := enc.EncodeFloat64(t.Ask); err != nil {
		return nil, err
	}
	if err := enc.EncodeString("ts"); err != nil {
		return nil, err
	}
	if err := enc.EncodeInt(t.TimestampMillis); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func DecodeTick(data []byte) (market.Tick, error) {
	var w wireTick
	if err := msgpack.Unmarshal(data, &w); err != nil {
		return market.Tick{}, err
	}
	if w.Symbol == "" {
		return market.Tick{}, errors.New("tick symbol is missing")
	}
	return market.Tick{Symbol: w.Symbol, Bid: w.Bid, Ask: w.Ask, TimestampMillis: w.TS}, nil
}
