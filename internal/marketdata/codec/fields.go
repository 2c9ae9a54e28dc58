package codec

import (
	"bytes"
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/segmentio/encoding/json"
	"github.com/shopspring/decimal"
	"mdstream.com/internal/marketdata/model"
)

// fields is one decoded JSON object, values kept raw until a variant asks for them.
type fields map[string]json.RawMessage

var null = []byte("null")

func (f fields) raw(name string) (json.RawMessage, error) {
	v, ok := f[name]
	if !ok || len(v) == 0 || bytes.Equal(bytes.TrimSpace(v), null) {
		return nil, fmt.Errorf("%w: %s", ErrMissingField, name)
	}
	return v, nil
}

func (f fields) str(name string) (string, error) {
	v, err := f.raw(name)
	if err != nil {
		return "", err
	}
	var s string
	if err := json.Unmarshal(v, &s); err != nil {
		return "", fmt.Errorf("%w: %s is not a string", ErrInvalidField, name)
	}
	return s, nil
}

// num accepts a JSON number or a decimal string ("50000.10"); venues use both.
// No range checks: negative values pass through untouched.
func (f fields) num(name string) (float64, error) {
	v, err := f.raw(name)
	if err != nil {
		return 0, err
	}
	n, err := parseNumber(v)
	if err != nil {
		return 0, fmt.Errorf("%w: %s: %v", ErrInvalidField, name, err)
	}
	return n, nil
}

func (f fields) side(name string) (model.Side, error) {
	s, err := f.str(name)
	if err != nil {
		return model.SideUnknown, err
	}
	side, ok := model.ParseSide(s)
	if !ok {
		return model.SideUnknown, fmt.Errorf("%w: %s=%q", ErrInvalidField, name, s)
	}
	return side, nil
}

// timestamp accepts RFC3339 (nano) strings or integer epoch milliseconds.
func (f fields) timestamp(name string) (time.Time, error) {
	v, err := f.raw(name)
	if err != nil {
		return time.Time{}, err
	}
	if v[0] == '"' {
		var s string
		if err := json.Unmarshal(v, &s); err != nil {
			return time.Time{}, fmt.Errorf("%w: %s", ErrInvalidField, name)
		}
		ts, err := time.Parse(time.RFC3339Nano, s)
		if err != nil {
			return time.Time{}, fmt.Errorf("%w: %s: %v", ErrInvalidField, name, err)
		}
		return ts, nil
	}
	ms, err := strconv.ParseInt(string(v), 10, 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %s is neither RFC3339 nor epoch ms", ErrInvalidField, name)
	}
	return time.UnixMilli(ms).UTC(), nil
}

func (f fields) levels(name string) ([]model.PriceLevel, error) {
	v, err := f.raw(name)
	if err != nil {
		return nil, err
	}
	var items []fields
	if err := json.Unmarshal(v, &items); err != nil {
		return nil, fmt.Errorf("%w: %s is not an array of levels", ErrInvalidField, name)
	}
	out := make([]model.PriceLevel, 0, len(items))
	for i, it := range items {
		price, err := it.num("price")
		if err != nil {
			return nil, fmt.Errorf("%s[%d]: %w", name, i, err)
		}
		size, err := it.num("size")
		if err != nil {
			return nil, fmt.Errorf("%s[%d]: %w", name, i, err)
		}
		orders, err := it.count("num_orders")
		if err != nil {
			return nil, fmt.Errorf("%s[%d]: %w", name, i, err)
		}
		out = append(out, model.PriceLevel{Price: price, Size: size, OrderCount: orders})
	}
	return out, nil
}

func (f fields) count(name string) (uint32, error) {
	n, err := f.num(name)
	if err != nil {
		return 0, err
	}
	if n < 0 || n > math.MaxUint32 || n != math.Trunc(n) {
		return 0, fmt.Errorf("%w: %s=%v is not a count", ErrInvalidField, name, n)
	}
	return uint32(n), nil
}

func parseNumber(v json.RawMessage) (float64, error) {
	if len(v) > 0 && v[0] == '"' {
		var s string
		if err := json.Unmarshal(v, &s); err != nil {
			return 0, err
		}
		d, err := decimal.NewFromString(s)
		if err != nil {
			return 0, err
		}
		return d.InexactFloat64(), nil
	}
	var n float64
	if err := json.Unmarshal(v, &n); err != nil {
		return 0, err
	}
	return n, nil
}
