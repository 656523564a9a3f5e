package model

import (
	"encoding/json"
	"fmt"
)

// Signal is a push message delivered to a user's live connections.
type Signal struct {
	SignalType    SignalType      `json:"signalType"`
	SignalPayload json.RawMessage `json:"signalPayload,omitempty"`
}

type SignalType string

const (
	// Session state of the client changed, payload is the new state.
	SignalTypeSession SignalType = "SESSION"
	// New activity on the user's content, payload is a Notification.
	SignalTypeNotification SignalType = "NOTIFICATION"
)

var AllSignalType = []SignalType{
	SignalTypeSession,
	SignalTypeNotification,
}

func (e SignalType) IsValid() bool {
	switch e {
	case SignalTypeSession, SignalTypeNotification:
		return true
	}
	return false
}

func (e SignalType) String() string {
	return string(e)
}

func (e *SignalType) UnmarshalJSON(b []byte) error {
	var str string
	if err := json.Unmarshal(b, &str); err != nil {
		return fmt.Errorf("enums must be strings")
	}

	*e = SignalType(str)
	if !e.IsValid() {
		return fmt.Errorf("%s is not a valid SignalType", str)
	}
	return nil
}

// NewSignal builds a signal with payload marshalled as JSON.
func NewSignal(t SignalType, payload interface{}) (*Signal, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return &Signal{SignalType: t, SignalPayload: data}, nil
}
