package rest

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
	"time"
)

// flexibleID accepts the backend's mixed id encodings: numbers and
// strings both land as a string.
type flexibleID string

func (f *flexibleID) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		*f = ""

		return nil
	}

	if trimmed[0] == '"' {
		var s string
		if err := json.Unmarshal(trimmed, &s); err != nil {
			return err
		}
		*f = flexibleID(s)

		return nil
	}

	var n json.Number
	if err := json.Unmarshal(trimmed, &n); err != nil {
		return err
	}
	*f = flexibleID(n.String())

	return nil
}

// flexibleTime accepts ISO strings and epoch numbers (seconds or
// milliseconds). Unparsable values decode to the zero time rather than
// failing the whole payload.
type flexibleTime struct {
	time.Time
}

func (f *flexibleTime) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		f.Time = time.Time{}

		return nil
	}

	if trimmed[0] == '"' {
		var s string
		if err := json.Unmarshal(trimmed, &s); err != nil {
			return err
		}
		for _, layout := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02T15:04:05"} {
			if parsed, err := time.Parse(layout, s); err == nil {
				f.Time = parsed

				return nil
			}
		}
		f.Time = time.Time{}

		return nil
	}

	epoch, err := strconv.ParseFloat(string(trimmed), 64)
	if err != nil {
		f.Time = time.Time{}

		return nil
	}

	// Values past the year 2286 in seconds are millisecond epochs.
	if epoch > 1e12 {
		f.Time = time.UnixMilli(int64(epoch))
	} else {
		f.Time = time.Unix(int64(epoch), 0)
	}

	return nil
}

// normalizeKey lowercases and trims an identifier coming off the wire.
func normalizeKey(raw string) string {
	return strings.ToLower(strings.TrimSpace(raw))
}
