package core

import (
	"encoding/json"

	"github.com/dkeye/StreamRelay/internal/domain"
)

// Server messages that are not lifecycle notifications.
const (
	MessageHello   = "hello"
	MessagePong    = "pong"
	MessageStreams = "streams"
	MessageError   = "error"
)

type Hello struct {
	Type         string                 `json:"type"`
	Version      int                    `json:"version"`
	SubscriberID domain.SubscriberID    `json:"subscriber_id"`
	Streams      []domain.StreamSession `json:"streams"`
}

type StreamList struct {
	Type    string                 `json:"type"`
	Streams []domain.StreamSession `json:"streams"`
}

type ErrorMessage struct {
	Type  string `json:"type"`
	Error string `json:"error"`
}

func NewHello(id domain.SubscriberID, live []domain.StreamSession) Hello {
	if live == nil {
		live = []domain.StreamSession{}
	}
	return Hello{Type: MessageHello, Version: NotificationVersion, SubscriberID: id, Streams: live}
}

func NewStreamList(sessions []domain.StreamSession) StreamList {
	if sessions == nil {
		sessions = []domain.StreamSession{}
	}
	return StreamList{Type: MessageStreams, Streams: sessions}
}

func NewErrorMessage(reason string) ErrorMessage {
	return ErrorMessage{Type: MessageError, Error: reason}
}

// EncodeMessage marshals any server message to a frame.
func EncodeMessage(v any) (Frame, error) {
	return json.Marshal(v)
}
