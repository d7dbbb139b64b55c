package bridge

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ErrMalformedMessage reports an envelope that cannot be encoded or decoded.
var ErrMalformedMessage = errors.New("malformed message")

// Envelope is the wire message exchanged with browser contexts. Payload is
// passed through untouched.
type Envelope struct {
	Kind    string          `json:"kind"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// NewEnvelope marshals payload into an envelope of the given kind.
func NewEnvelope(kind string, payload any) (Envelope, error) {
	if payload == nil {
		return Envelope{Kind: kind}, nil
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, fmt.Errorf("%w: marshal %s payload: %w", ErrMalformedMessage, kind, err)
	}
	return Envelope{Kind: kind, Payload: raw}, nil
}

// Encode returns the JSON frame for e.
func (e Envelope) Encode() ([]byte, error) {
	if e.Kind == "" {
		return nil, fmt.Errorf("%w: empty kind", ErrMalformedMessage)
	}
	if len(e.Payload) > 0 && !json.Valid(e.Payload) {
		return nil, fmt.Errorf("%w: %s payload is not valid JSON", ErrMalformedMessage, e.Kind)
	}
	data, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedMessage, err)
	}
	return data, nil
}

// DecodeEnvelope parses a JSON frame.
func DecodeEnvelope(data []byte) (Envelope, error) {
	var e Envelope
	if err := json.Unmarshal(data, &e); err != nil {
		return Envelope{}, fmt.Errorf("%w: %w", ErrMalformedMessage, err)
	}
	if e.Kind == "" {
		return Envelope{}, fmt.Errorf("%w: missing kind", ErrMalformedMessage)
	}
	return e, nil
}
