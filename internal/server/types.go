package server

import (
	"github.com/josephgoksu/ProbeWing/internal/chat"
	"github.com/josephgoksu/ProbeWing/internal/evolve"
)

// ScanRequest is the payload for POST /api/scan.
type ScanRequest struct {
	Target    string `json:"target"`
	Dump      string `json:"dump,omitempty"`      // System dump text
	MaxCycles int    `json:"maxCycles,omitempty"` // Zero keeps the configured cap
}

// ScanResponse is the response for POST /api/scan.
type ScanResponse struct {
	*evolve.Run
	Interrupted bool `json:"interrupted,omitempty"`
}

// SessionRequest is the payload for POST /api/sessions.
type SessionRequest struct {
	Backend    string `json:"backend,omitempty"`
	AutoSwitch *bool  `json:"autoSwitch,omitempty"`
}

// SessionResponse describes a live session.
type SessionResponse struct {
	ID      string `json:"id"`
	Backend string `json:"backend"`
}

// MessageRequest is the payload for POST /api/sessions/{id}/messages.
type MessageRequest struct {
	Text string `json:"text"`
}

// MessageResponse carries the turn result and any switches it caused.
type MessageResponse struct {
	chat.Result
	Switches []chat.SwitchEvent `json:"switches,omitempty"`
}

type errorResponse struct {
	Error string `json:"error"`
}
