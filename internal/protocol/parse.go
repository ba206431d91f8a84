package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ErrInvalidJSON is returned for frames that are not a JSON object.
var ErrInvalidJSON = errors.New("invalid json")

// UnknownTypeError is returned for a well-formed frame whose type is not part
// of the protocol.
type UnknownTypeError struct {
	Type string
}

func (e *UnknownTypeError) Error() string { return fmt.Sprintf("unknown message type %q", e.Type) }

// InvalidMessageError is returned when a known message type is missing a
// required field or carries a malformed one.
type InvalidMessageError struct {
	Type   Type
	Reason string
}

func (e *InvalidMessageError) Error() string {
	if e.Type == "" {
		return "invalid message: " + e.Reason
	}
	return fmt.Sprintf("invalid %s message: %s", e.Type, e.Reason)
}

// Parse decodes one inbound frame. Fields not named by the message type are
// ignored.
func Parse(data []byte) (Message, error) {
	var envelope struct {
		Type *string `json:"type"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidJSON, err)
	}
	if envelope.Type == nil || *envelope.Type == "" {
		return nil, &InvalidMessageError{Reason: "missing type"}
	}

	msg := newMessage(Type(*envelope.Type))
	if msg == nil {
		return nil, &UnknownTypeError{Type: *envelope.Type}
	}
	if err := json.Unmarshal(data, msg); err != nil {
		return nil, &InvalidMessageError{Type: msg.Type(), Reason: err.Error()}
	}
	if err := msg.validate(); err != nil {
		return nil, &InvalidMessageError{Type: msg.Type(), Reason: err.Error()}
	}
	return msg, nil
}

func newMessage(t Type) Message {
	switch t {
	case TypeBroadcasterJoin:
		return &BroadcasterJoin{}
	case TypeViewerJoin:
		return &ViewerJoin{}
	case TypeStreamStart:
		return &StreamStart{}
	case TypeStreamEnd:
		return &StreamEnd{}
	case TypeTitleUpdate:
		return &TitleUpdate{}
	case TypeOffer:
		return &Offer{}
	case TypeAnswer:
		return &Answer{}
	case TypeICECandidate:
		return &ICECandidate{}
	case TypeChatJoin:
		return &ChatJoin{}
	case TypeChat:
		return &Chat{}
	case TypeHeartbeat:
		return &Heartbeat{}
	default:
		return nil
	}
}

// ErrorCode maps a Parse error to the code sent back in an error envelope.
func ErrorCode(err error) string {
	var unknown *UnknownTypeError
	var invalid *InvalidMessageError
	switch {
	case errors.Is(err, ErrInvalidJSON):
		return ErrCodeInvalidJSON
	case errors.As(err, &unknown):
		return ErrCodeUnknownType
	case errors.As(err, &invalid):
		return ErrCodeInvalidMessage
	default:
		return ErrCodeInternal
	}
}
