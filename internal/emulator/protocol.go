// Package emulator is the agent's side of the control surface: a websocket
// client that fetches formatted state and presses buttons, a handler serving
// any Backend over the same protocol, and an in-memory grid world.
//
// The protocol is strict request/response. Every request carries an id and
// is answered by exactly one response with the same id:
//
//	{"id":1,"type":"state"}                -> {"id":1,"state":"..."}
//	{"id":2,"type":"press","button":"UP"}  -> {"id":2,"ok":true}
//	                                       -> {"id":2,"error":"..."}
package emulator

import "github.com/tatianab/overworld-agent/internal/models"

const (
	typeState = "state"
	typePress = "press"
)

type message struct {
	ID     uint64 `json:"id"`
	Type   string `json:"type,omitempty"`
	Button string `json:"button,omitempty"`
	State  string `json:"state,omitempty"`
	OK     bool   `json:"ok,omitempty"`
	Error  string `json:"error,omitempty"`
}

// Backend is the game being controlled.
type Backend interface {
	State() (string, error)
	Press(token models.Token) error
}
