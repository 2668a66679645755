// Package metadata converts market metadata to and from the UTF-8 JSON blob
// stored on-chain with each market.
package metadata

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"unicode/utf8"

	"github.com/kunalatmosoft/MetaMarket/internal/domain"
)

// MaxSize bounds the blob size accepted by Encode. The contract stores it as
// dynamic bytes, so large blobs are expensive rather than invalid.
const MaxSize = 16 << 10

// Encode serializes m as compact JSON with the field order question,
// description, category, resolutionSource. HTML characters are not escaped,
// so the output matches a browser's JSON.stringify except that U+2028 and
// U+2029 are still written as \u2028 and \u2029. Decode reads both forms.
func Encode(m domain.MarketMetadata) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(m); err != nil {
		return nil, fmt.Errorf("metadata: encode: %w", err)
	}
	out := bytes.TrimSuffix(buf.Bytes(), []byte("\n"))
	if len(out) > MaxSize {
		return nil, fmt.Errorf("metadata: encoded size %d exceeds %d: %w", len(out), MaxSize, domain.ErrInvalidInput)
	}
	return out, nil
}

// Decode parses an on-chain blob. The payload must be valid UTF-8 holding a
// JSON object; the four known fields, when present, must be strings. Unknown
// keys are ignored and missing ones decode as empty.
func Decode(b []byte) (domain.MarketMetadata, error) {
	if !utf8.Valid(b) {
		return domain.MarketMetadata{}, &domain.MetadataDecodeError{Err: errors.New("payload is not valid UTF-8")}
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(b, &fields); err != nil {
		return domain.MarketMetadata{}, &domain.MetadataDecodeError{Err: err}
	}
	if fields == nil {
		return domain.MarketMetadata{}, &domain.MetadataDecodeError{Err: errors.New("payload is not a JSON object")}
	}

	var m domain.MarketMetadata
	for key, dst := range map[string]*string{
		"question":         &m.Question,
		"description":      &m.Description,
		"category":         &m.Category,
		"resolutionSource": &m.ResolutionSource,
	} {
		raw, ok := fields[key]
		if !ok || string(raw) == "null" {
			continue
		}
		if err := json.Unmarshal(raw, dst); err != nil {
			return domain.MarketMetadata{}, &domain.MetadataDecodeError{
				Err: fmt.Errorf("field %q is not a string", key),
			}
		}
	}
	return m, nil
}
