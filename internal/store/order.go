// This code is available on the terms of the project LICENSE.md file,
// also available online at https://blueoakcouncil.org/license/1.0.0.

package store

import "encoding/json"

// Order is a published offer to swap. Payload holds every field the
// creator sent beyond id and address - amounts, currencies, the
// counter-address, timestamps - preserved verbatim for redistribution.
// Orders are never mutated after creation.
type Order struct {
	ID      int64
	Address string
	Payload json.RawMessage
}

// MarshalJSON merges ID into the creator-supplied payload so a client sees
// exactly the fields it sent plus the assigned id, not a server-invented
// envelope.
func (o *Order) MarshalJSON() ([]byte, error) {
	merged := map[string]json.RawMessage{}
	if len(o.Payload) > 0 {
		if err := json.Unmarshal(o.Payload, &merged); err != nil {
			return nil, err
		}
	}
	idBytes, err := json.Marshal(o.ID)
	if err != nil {
		return nil, err
	}
	merged["id"] = idBytes
	return json.Marshal(merged)
}

// UnmarshalJSON stores raw input as Payload and extracts the address field
// the engine uses for routing. Used when replaying a create_order command
// from the durable log.
func (o *Order) UnmarshalJSON(data []byte) error {
	o.Payload = append(o.Payload[:0:0], data...)
	var addr struct {
		Address string `json:"getAddress_"`
	}
	if err := json.Unmarshal(data, &addr); err != nil {
		return err
	}
	o.Address = addr.Address
	return nil
}
