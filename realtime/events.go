package realtime

import (
	"encoding/json"
)

// Wire-level message names. These are the platform's realtime contract.
const (
	eventJoinRoom    = "joinRestaurantRoom"
	eventNewOrder    = "newOrder"
	eventOrderUpdate = "orderUpdate"
)

// wireMessage is the frame shape both directions use on the socket.
type wireMessage struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

func joinMessage(room string) (*wireMessage, error) {
	data, err := json.Marshal(room)
	if err != nil {
		return nil, err
	}

	return &wireMessage{Event: eventJoinRoom, Data: data}, nil
}
