package broadcast

import (
	"flowscan/internal/config"
	"flowscan/internal/session"
)

// Message types of the telemetry protocol.
const (
	TypeInit            = "init"
	TypeSettings        = "settings"
	TypeChangeSettings  = "change-settings"
	TypeSettingsChanged = "settings-changed"
	TypeStartScan       = "start-scan"
	TypeStopScan        = "stop-scan"
	TypeLogs            = "logs"
	TypeStatus          = "status"
	TypeEnd             = "end"
	TypeCommandRejected = "command-rejected"
)

// Message is one frame sent to an observer.
type Message struct {
	Type    string `json:"type"`
	Payload any    `json:"payload,omitempty"`
}

type InitPayload struct {
	Config config.Settings `json:"config"`
	Status session.Status  `json:"status"`
}

type StatusPayload struct {
	Text       []string `json:"text"`
	Percentage int      `json:"percentage"`
}

type EndPayload struct {
	Code    int  `json:"code"`
	Stopped bool `json:"stopped"`
}

// RejectedPayload tells the requester why a command was not applied.
type RejectedPayload struct {
	Command string `json:"command"`
	Reason  string `json:"reason"`
}

func Rejected(command string, err error) Message {
	return Message{Type: TypeCommandRejected, Payload: RejectedPayload{Command: command, Reason: err.Error()}}
}

func SettingsChanged(ok bool) Message {
	return Message{Type: TypeSettingsChanged, Payload: ok}
}
