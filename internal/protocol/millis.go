package protocol

import (
	"bytes"
	"encoding/json"
	"strconv"
	"time"
)

// Millis is a Unix timestamp in milliseconds. Inbound values may be JSON
// numbers or RFC 3339 strings; a zero value means "not supplied".
type Millis int64

func MillisFrom(t time.Time) Millis { return Millis(t.UnixMilli()) }

func (m Millis) Time() time.Time { return time.UnixMilli(int64(m)) }

func (m Millis) IsZero() bool { return m == 0 }

func (m *Millis) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		*m = 0
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		if s == "" {
			*m = 0
			return nil
		}
		if n, err := strconv.ParseInt(s, 10, 64); err == nil {
			*m = Millis(n)
			return nil
		}
		t, err := time.Parse(time.RFC3339Nano, s)
		if err != nil {
			return err
		}
		*m = MillisFrom(t)
		return nil
	}
	var f float64
	if err := json.Unmarshal(b, &f); err != nil {
		return err
	}
	*m = Millis(int64(f))
	return nil
}
