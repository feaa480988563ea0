package protocol

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Event is a named application event addressed to the entity that sent it.
// Arguments are positionally typed: the payload itself is type-erased and the
// receiving handler's declared schema narrows each value at invocation time.
//
// Numbers are decoded as json.Number so that whole numbers survive as int64
// and decimals as float64 instead of everything collapsing to float64.
type Event struct {
	Name     string `json:"name"`
	Args     []any  `json:"args"`
	SenderID int    `json:"senderId"`
}

// UnmarshalJSON decodes the event with number preservation enabled.
func (e *Event) UnmarshalJSON(data []byte) error {
	type wire Event
	var w wire
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&w); err != nil {
		return fmt.Errorf("protocol: decode event: %w", err)
	}
	*e = Event(w)
	return nil
}
