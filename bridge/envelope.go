package bridge

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Outcomes reported for an envelope.
const (
	OutcomeSuccess = "success"
	OutcomePartial = "partial"
	OutcomeFailed  = "failed"
)

// ErrorEntry is one element of the envelope's errors array.
type ErrorEntry struct {
	Message string `json:"message"`
}

// Envelope is the response to every query. Data is present only when the
// engine produced data; Errors only when at least one error occurred.
type Envelope struct {
	Data   map[string]any
	Errors []ErrorEntry
}

// HasData reports whether the data field is present.
func (e Envelope) HasData() bool {
	return e.Data != nil
}

// Outcome classifies the envelope for metrics.
func (e Envelope) Outcome() string {
	switch {
	case len(e.Errors) == 0:
		return OutcomeSuccess
	case e.Data != nil:
		return OutcomePartial
	default:
		return OutcomeFailed
	}
}

// MarshalJSON writes "data" iff Data is non-nil (an empty object is still
// data) and "errors" iff there is at least one error.
func (e Envelope) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	if e.Data != nil {
		data, err := json.Marshal(e.Data)
		if err != nil {
			return nil, fmt.Errorf("marshal data: %w", err)
		}
		buf.WriteString(`"data":`)
		buf.Write(data)
	}
	if len(e.Errors) > 0 {
		errs, err := json.Marshal(e.Errors)
		if err != nil {
			return nil, fmt.Errorf("marshal errors: %w", err)
		}
		if e.Data != nil {
			buf.WriteByte(',')
		}
		buf.WriteString(`"errors":`)
		buf.Write(errs)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON reads an envelope written by MarshalJSON. A null data field
// counts as absent.
func (e *Envelope) UnmarshalJSON(raw []byte) error {
	var wire struct {
		Data   map[string]any `json:"data"`
		Errors []ErrorEntry   `json:"errors"`
	}
	if err := json.Unmarshal(raw, &wire); err != nil {
		return err
	}
	e.Data = wire.Data
	e.Errors = wire.Errors
	return nil
}

// ErrorAggregator collects engine errors in order and folds them with any
// partial data into an Envelope.
type ErrorAggregator struct {
	entries []ErrorEntry
}

// Add records one error message.
func (a *ErrorAggregator) Add(message string) {
	a.entries = append(a.entries, ErrorEntry{Message: message})
}

// AddError records err's message. Nil errors are ignored.
func (a *ErrorAggregator) AddError(err error) {
	if err != nil {
		a.Add(err.Error())
	}
}

// Len returns the number of collected errors.
func (a *ErrorAggregator) Len() int {
	return len(a.entries)
}

// Envelope builds the response. Non-nil data is re-shaped into a generic
// JSON object; the returned error reports data that cannot be re-shaped.
func (a *ErrorAggregator) Envelope(data any) (Envelope, error) {
	var env Envelope
	if data != nil {
		shaped, err := reshape(data)
		if err != nil {
			return Envelope{}, err
		}
		env.Data = shaped
	}
	if len(a.entries) > 0 {
		env.Errors = append([]ErrorEntry(nil), a.entries...)
	}
	return env, nil
}

// reshape converts typed data into plain JSON structure through a
// marshal/unmarshal round-trip.
func reshape(data any) (map[string]any, error) {
	if m, ok := data.(map[string]any); ok && m == nil {
		return nil, nil
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("encode result data: %w", err)
	}
	if bytes.Equal(raw, []byte("null")) {
		return nil, nil
	}
	var shaped map[string]any
	if err := json.Unmarshal(raw, &shaped); err != nil {
		return nil, fmt.Errorf("result data is not an object: %w", err)
	}
	return shaped, nil
}

// ErrorEnvelope is a failed response: one error and no data.
func ErrorEnvelope(message string) Envelope {
	return Envelope{Errors: []ErrorEntry{{Message: message}}}
}
