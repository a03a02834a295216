package identity

import (
	"encoding/json"
	"strings"
)

// qrKeys are checked in order when a QR payload is a JSON object.
var qrKeys = []string{
	"token_number", "tokenNumber", "token",
	"household_id",
	"card_number", "cardNumber",
	"qrCode",
}

// ParseQRPayload extracts the identifier carried by a QR code. Printed cards
// encode either a bare token or a small JSON object; anything that is not a
// JSON object with a known key is returned trimmed.
func ParseQRPayload(raw string) string {
	trimmed := strings.TrimSpace(raw)
	if !strings.HasPrefix(trimmed, "{") {
		return trimmed
	}

	dec := json.NewDecoder(strings.NewReader(trimmed))
	dec.UseNumber()
	var fields map[string]any
	if err := dec.Decode(&fields); err != nil {
		return trimmed
	}
	for _, key := range qrKeys {
		switch v := fields[key].(type) {
		case string:
			if s := strings.TrimSpace(v); s != "" {
				return s
			}
		case json.Number:
			return v.String()
		}
	}
	return trimmed
}
