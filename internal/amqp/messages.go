package amqp

import (
	"encoding/json"
	"errors"
	"fmt"

	"estudio/internal/core"
)

const contentTypeJSON = "application/json"

// ErrMalformedEvent marks a message body that can never be processed.
var ErrMalformedEvent = errors.New("malformed ledger event")

// EncodeLedgerEvent serializes an event for the wire.
func EncodeLedgerEvent(ev core.LedgerEvent) ([]byte, error) {
	if err := validateEvent(ev); err != nil {
		return nil, err
	}
	return json.Marshal(ev)
}

// DecodeLedgerEvent parses and validates a message body.
func DecodeLedgerEvent(data []byte) (core.LedgerEvent, error) {
	var ev core.LedgerEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		return core.LedgerEvent{}, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}
	if err := validateEvent(ev); err != nil {
		return core.LedgerEvent{}, err
	}
	return ev, nil
}

func validateEvent(ev core.LedgerEvent) error {
	switch {
	case ev.ID == "":
		return fmt.Errorf("%w: missing id", ErrMalformedEvent)
	case ev.Action == "":
		return fmt.Errorf("%w: missing action", ErrMalformedEvent)
	case ev.ClientID <= 0:
		return fmt.Errorf("%w: missing client id", ErrMalformedEvent)
	}
	return nil
}
