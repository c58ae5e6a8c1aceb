package bridge

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/c360/metaquery/errors"
)

// Request is a decoded query request.
type Request struct {
	Query         string         `json:"query"`
	Variables     map[string]any `json:"variables,omitempty"`
	OperationName string         `json:"operationName,omitempty"`
}

// ParseRequest decodes a request body. The body must be one JSON object with
// a string "query"; "variables" must be an object when present and
// "operationName" a string. Unknown fields are ignored.
func ParseRequest(body []byte) (Request, error) {
	var wire struct {
		Query         json.RawMessage `json:"query"`
		Variables     json.RawMessage `json:"variables"`
		OperationName json.RawMessage `json:"operationName"`
	}
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return Request{}, errors.WrapInvalid(errors.ErrInvalidRequest, "Bridge", "ParseRequest", "decode body as object")
	}
	if err := json.Unmarshal(trimmed, &wire); err != nil {
		return Request{}, errors.WrapInvalid(fmt.Errorf("%w: %v", errors.ErrInvalidRequest, err),
			"Bridge", "ParseRequest", "decode body")
	}

	var req Request
	if isAbsent(wire.Query) {
		return Request{}, errors.WrapInvalid(errors.ErrMissingQuery, "Bridge", "ParseRequest", "read query")
	}
	if err := json.Unmarshal(wire.Query, &req.Query); err != nil {
		return Request{}, errors.WrapInvalid(fmt.Errorf("%w: query must be a string", errors.ErrInvalidRequest),
			"Bridge", "ParseRequest", "read query")
	}

	if !isAbsent(wire.Variables) {
		if err := json.Unmarshal(wire.Variables, &req.Variables); err != nil {
			return Request{}, errors.WrapInvalid(fmt.Errorf("%w: variables must be an object", errors.ErrInvalidRequest),
				"Bridge", "ParseRequest", "read variables")
		}
	}

	if !isAbsent(wire.OperationName) {
		if err := json.Unmarshal(wire.OperationName, &req.OperationName); err != nil {
			return Request{}, errors.WrapInvalid(fmt.Errorf("%w: operationName must be a string", errors.ErrInvalidRequest),
				"Bridge", "ParseRequest", "read operationName")
		}
	}

	return req, nil
}

func isAbsent(raw json.RawMessage) bool {
	return len(raw) == 0 || bytes.Equal(raw, []byte("null"))
}
