package exports

import (
	"bytes"
	"crypto/sha256"
	"encoding/csv"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"cdpchain/services/cdpd/indexer"
)

var csvHeader = []string{"seq", "id", "type", "position", "related", "account", "attributes", "created_at"}

// EventsCSV builds a CSV export of indexed events and returns the serialised
// data alongside a SHA-256 checksum of the payload.
func EventsCSV(records []indexer.EventRecord) ([]byte, string, error) {
	buffer := &bytes.Buffer{}
	writer := csv.NewWriter(buffer)
	if err := writer.Write(csvHeader); err != nil {
		return nil, "", err
	}
	for _, rec := range records {
		attrs, err := attributesJSON(rec.Attributes)
		if err != nil {
			return nil, "", err
		}
		row := []string{
			fmt.Sprintf("%d", rec.Seq),
			rec.ID.String(),
			rec.Type,
			rec.Position,
			rec.Related,
			rec.Account,
			attrs,
			formatTime(rec.CreatedAt),
		}
		if err := writer.Write(row); err != nil {
			return nil, "", err
		}
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, "", err
	}
	return withChecksum(buffer.Bytes())
}

// EventsJSONL builds a JSON Lines export of indexed events.
func EventsJSONL(records []indexer.EventRecord) ([]byte, string, error) {
	buffer := &bytes.Buffer{}
	encoder := json.NewEncoder(buffer)
	encoder.SetEscapeHTML(false)
	for _, rec := range records {
		payload := map[string]interface{}{
			"seq":        rec.Seq,
			"id":         rec.ID.String(),
			"type":       rec.Type,
			"position":   rec.Position,
			"related":    rec.Related,
			"account":    rec.Account,
			"attributes": rec.Attributes,
			"created_at": formatTime(rec.CreatedAt),
		}
		if err := encoder.Encode(payload); err != nil {
			return nil, "", err
		}
	}
	return withChecksum(buffer.Bytes())
}

func withChecksum(data []byte) ([]byte, string, error) {
	checksum := sha256.Sum256(data)
	return data, hex.EncodeToString(checksum[:]), nil
}

func attributesJSON(attrs map[string]string) (string, error) {
	if len(attrs) == 0 {
		return "{}", nil
	}
	raw, err := json.Marshal(attrs)
	if err != nil {
		return "", err
	}
	return string(raw), nil
}

func formatTime(ts time.Time) string {
	if ts.IsZero() {
		return ""
	}
	return ts.UTC().Format(time.RFC3339Nano)
}
