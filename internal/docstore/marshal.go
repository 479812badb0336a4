package docstore

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/roach88/crudq/internal/query"
)

// encodeDocument converts a document to JSON TEXT for storage.
// json.Marshal sorts map keys, so equal documents are stored identically.
func encodeDocument(doc query.Document) (string, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(doc); err != nil {
		return "", fmt.Errorf("encode document: %w", err)
	}
	// Encoder adds a trailing newline
	return strings.TrimSuffix(buf.String(), "\n"), nil
}

// decodeDocument parses stored JSON TEXT. Numbers decode to int64 when they
// are integers that fit, float64 otherwise, so values compare the same way
// they do inside SQLite.
func decodeDocument(body string) (query.Document, error) {
	dec := json.NewDecoder(strings.NewReader(body))
	dec.UseNumber()
	var raw map[string]any
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("decode document: %w", err)
	}
	return query.Document(normalizeNumbers(raw).(map[string]any)), nil
}

func normalizeNumbers(v any) any {
	switch val := v.(type) {
	case json.Number:
		if i, err := val.Int64(); err == nil {
			return i
		}
		if f, err := val.Float64(); err == nil {
			return f
		}
		return val.String()
	case map[string]any:
		for k, e := range val {
			val[k] = normalizeNumbers(e)
		}
		return val
	case []any:
		for i, e := range val {
			val[i] = normalizeNumbers(e)
		}
		return val
	}
	return v
}

// idText is the text form of an _id used as the row key: strings as they
// are, anything else as JSON.
func idText(id any) (string, error) {
	if s, ok := id.(string); ok {
		return s, nil
	}
	data, err := json.Marshal(id)
	if err != nil {
		return "", fmt.Errorf("encode _id: %w", err)
	}
	return string(data), nil
}
