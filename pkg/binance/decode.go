package binance

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

var (
	// ErrMalformed marks payloads that are not a JSON object or carry an
	// unparsable required field.
	ErrMalformed = errors.New("malformed payload")
	// ErrUnknownType marks payloads without a recognized "e" discriminator,
	// including subscription replies.
	ErrUnknownType = errors.New("unknown event type")
)

// DecodeError describes why a frame was rejected. errors.Is matches it
// against its Kind.
type DecodeError struct {
	Kind  error
	Type  EventType
	Field string
	Err   error
}

func (e *DecodeError) Error() string {
	msg := e.Kind.Error()
	if e.Type != "" {
		msg += " (" + string(e.Type) + ")"
	}
	if e.Field != "" {
		msg += ": field " + e.Field
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *DecodeError) Is(target error) bool { return target == e.Kind }

func (e *DecodeError) Unwrap() error { return e.Err }

// Decode parses one text frame into a typed event. It has no side effects.
func Decode(raw []byte) (Event, error) {
	fields, err := parseObject(raw)
	if err != nil {
		return nil, err
	}

	// Combined streams wrap the payload as {"stream": "...", "data": {...}}.
	if _, ok := fields["e"]; !ok {
		if data, ok := fields["data"]; ok {
			if _, ok := fields["stream"]; ok {
				if fields, err = parseObject(data); err != nil {
					return nil, err
				}
			}
		}
	}

	var typ string
	rawType, ok := fields["e"]
	if !ok || json.Unmarshal(rawType, &typ) != nil {
		return nil, &DecodeError{Kind: ErrUnknownType}
	}

	// a failed decode must not hand back a typed nil inside Event
	switch EventType(typ) {
	case EventTrade:
		t, err := decodeTrade(fields)
		if err != nil {
			return nil, err
		}
		return t, nil
	case EventMiniTicker:
		m, err := decodeMiniTicker(fields)
		if err != nil {
			return nil, err
		}
		return m, nil
	case EventKline:
		k, err := decodeKline(fields)
		if err != nil {
			return nil, err
		}
		return k, nil
	default:
		return nil, &DecodeError{Kind: ErrUnknownType, Type: EventType(typ)}
	}
}

// objectFields keys are matched exactly; encoding/json struct decoding folds
// case, and Binance payloads use both "e"/"E", "t"/"T", "v"/"V", "q"/"Q".
type objectFields map[string]json.RawMessage

func parseObject(raw []byte) (objectFields, error) {
	var fields objectFields
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, &DecodeError{Kind: ErrMalformed, Err: err}
	}
	return fields, nil
}

func decodeTrade(f objectFields) (*Trade, error) {
	d := fieldDecoder{fields: f, typ: EventTrade}
	t := &Trade{
		Symbol:     d.str("s", true),
		TradeID:    d.integer("t"),
		Price:      d.dec("p", true),
		Quantity:   d.dec("q", true),
		TradeTime:  d.millis("T", true),
		EventTime:  d.millis("E", false),
		BuyerMaker: d.boolean("m"),
	}
	if d.err != nil {
		return nil, d.err
	}
	return t, nil
}

func decodeMiniTicker(f objectFields) (*MiniTicker, error) {
	d := fieldDecoder{fields: f, typ: EventMiniTicker}
	m := &MiniTicker{
		Symbol:      d.str("s", true),
		Close:       d.dec("c", true),
		Open:        d.dec("o", true),
		High:        d.dec("h", true),
		Low:         d.dec("l", true),
		Volume:      d.dec("v", false),
		QuoteVolume: d.dec("q", false),
		EventTime:   d.millis("E", false),
	}
	if d.err != nil {
		return nil, d.err
	}
	return m, nil
}

func decodeKline(f objectFields) (*Kline, error) {
	d := fieldDecoder{fields: f, typ: EventKline}
	symbol := d.str("s", true)
	eventTime := d.millis("E", false)

	rawK, ok := f["k"]
	if !ok || isNull(rawK) {
		if d.err != nil {
			return nil, d.err
		}
		return nil, &DecodeError{Kind: ErrMalformed, Type: EventKline, Field: "k", Err: errMissing}
	}
	inner, err := parseObject(rawK)
	if err != nil {
		return nil, &DecodeError{Kind: ErrMalformed, Type: EventKline, Field: "k", Err: err}
	}

	kd := fieldDecoder{fields: inner, typ: EventKline, prefix: "k."}
	k := &Kline{
		Symbol:    symbol,
		Interval:  KlineInterval(kd.str("i", true)),
		Open:      kd.dec("o", true),
		High:      kd.dec("h", true),
		Low:       kd.dec("l", true),
		Close:     kd.dec("c", true),
		Volume:    kd.dec("v", true),
		StartTime: kd.millis("t", false),
		CloseTime: kd.millis("T", false),
		Closed:    kd.boolean("x"),
		EventTime: eventTime,
	}
	if d.err != nil {
		return nil, d.err
	}
	if kd.err != nil {
		return nil, kd.err
	}
	return k, nil
}

var errMissing = errors.New("missing")

// fieldDecoder keeps the first field error so decoders read straight through.
type fieldDecoder struct {
	fields objectFields
	typ    EventType
	prefix string
	err    error
}

func (d *fieldDecoder) fail(key string, err error) {
	if d.err == nil {
		d.err = &DecodeError{Kind: ErrMalformed, Type: d.typ, Field: d.prefix + key, Err: err}
	}
}

// lookup returns the raw value, or nil when the key is absent or null.
func (d *fieldDecoder) lookup(key string, required bool) json.RawMessage {
	raw, ok := d.fields[key]
	if !ok || isNull(raw) {
		if required {
			d.fail(key, errMissing)
		}
		return nil
	}
	return raw
}

func (d *fieldDecoder) str(key string, required bool) string {
	raw := d.lookup(key, required)
	if raw == nil {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		d.fail(key, err)
		return ""
	}
	if required && s == "" {
		d.fail(key, errMissing)
	}
	return s
}

func (d *fieldDecoder) dec(key string, required bool) decimal.Decimal {
	raw := d.lookup(key, required)
	if raw == nil {
		return decimal.Zero
	}
	var v decimal.Decimal
	if err := v.UnmarshalJSON(raw); err != nil {
		d.fail(key, err)
		return decimal.Zero
	}
	return v
}

func (d *fieldDecoder) integer(key string) int64 {
	raw := d.lookup(key, false)
	if raw == nil {
		return 0
	}
	var n int64
	if err := json.Unmarshal(raw, &n); err != nil {
		d.fail(key, err)
	}
	return n
}

func (d *fieldDecoder) millis(key string, required bool) time.Time {
	raw := d.lookup(key, required)
	if raw == nil {
		return time.Time{}
	}
	var ms int64
	if err := json.Unmarshal(raw, &ms); err != nil {
		d.fail(key, fmt.Errorf("timestamp: %w", err))
		return time.Time{}
	}
	return time.UnixMilli(ms).UTC()
}

func (d *fieldDecoder) boolean(key string) bool {
	raw := d.lookup(key, false)
	if raw == nil {
		return false
	}
	var b bool
	if err := json.Unmarshal(raw, &b); err != nil {
		d.fail(key, err)
	}
	return b
}

func isNull(raw json.RawMessage) bool {
	return bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
}
