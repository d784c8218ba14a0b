package command

import "encoding/json"

// Encode serializes a Command to the JSON form used as the WAL's per-op
// payload. The textual SQL surface plays no part here: this is purely an
// internal wire format between Execute and the write-ahead log.
func Encode(c Command) ([]byte, error) {
	return json.Marshal(c)
}

// Decode parses a Command back out of its WAL JSON payload.
func Decode(data []byte) (Command, error) {
	var c Command
	if err := json.Unmarshal(data, &c); err != nil {
		return Command{}, err
	}
	return c, nil
}
