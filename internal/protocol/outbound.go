package protocol

import (
	"encoding/json"
)

// Error codes carried by error envelopes.
const (
	ErrCodeInvalidJSON    = "invalid_json"
	ErrCodeUnknownType    = "unknown_type"
	ErrCodeInvalidMessage = "invalid_message"
	ErrCodeInternal       = "internal_error"
	ErrCodeRateLimited    = "rate_limited"
)

// Stream status values carried by stream_start and stream_status.
const (
	StatusStarting = "starting"
	StatusLive     = "live"
	StatusEnded    = "ended"
)

type BroadcasterJoined struct {
	Type          Type   `json:"type"`
	BroadcasterID string `json:"broadcasterId"`
	Message       string `json:"message"`
}

type BroadcasterInfo struct {
	Type            Type     `json:"type"`
	BroadcasterID   string   `json:"broadcasterId"`
	BroadcasterInfo UserInfo `json:"broadcasterInfo"`
}

// ViewerJoined is the reply to viewer_join. BroadcasterInfo is null when no
// broadcaster is registered.
type ViewerJoined struct {
	Type            Type      `json:"type"`
	ViewerID        string    `json:"viewerId"`
	UserInfo        UserInfo  `json:"userInfo"`
	BroadcasterID   string    `json:"broadcasterId,omitempty"`
	BroadcasterInfo *UserInfo `json:"broadcasterInfo"`
	StreamerID      string    `json:"streamerId"`
}

// ViewerArrived tells the broadcaster a viewer is ready for an offer.
type ViewerArrived struct {
	Type       Type     `json:"type"`
	ViewerID   string   `json:"viewerId"`
	UserInfo   UserInfo `json:"userInfo"`
	StreamerID string   `json:"streamerId"`
}

type ViewerLeft struct {
	Type     Type   `json:"type"`
	ViewerID string `json:"viewerId"`
}

type ViewerCount struct {
	Type  Type `json:"type"`
	Count int  `json:"count"`
}

type StreamStartEvent struct {
	Type   Type   `json:"type"`
	Title  string `json:"title"`
	Status string `json:"status"`
}

type StreamStatus struct {
	Type        Type   `json:"type"`
	Status      string `json:"status"`
	Title       string `json:"title"`
	IsStreaming bool   `json:"isStreaming"`
}

type StreamEndEvent struct {
	Type    Type   `json:"type"`
	Message string `json:"message"`
}

type TitleUpdateEvent struct {
	Type      Type   `json:"type"`
	Title     string `json:"title"`
	Timestamp Millis `json:"timestamp"`
}

type OfferEvent struct {
	Type          Type            `json:"type"`
	Offer         json.RawMessage `json:"offer"`
	BroadcasterID string          `json:"broadcasterId"`
	ViewerID      string          `json:"viewerId"`
}

type AnswerEvent struct {
	Type     Type            `json:"type"`
	Answer   json.RawMessage `json:"answer"`
	ViewerID string          `json:"viewerId"`
}

type ICECandidateEvent struct {
	Type          Type            `json:"type"`
	Candidate     json.RawMessage `json:"candidate"`
	ViewerID      string          `json:"viewerId,omitempty"`
	BroadcasterID string          `json:"broadcasterId,omitempty"`
}

type ChatJoinAck struct {
	Type      Type   `json:"type"`
	Role      Role   `json:"role"`
	Username  string `json:"username"`
	Timestamp Millis `json:"timestamp"`
}

type ChatEvent struct {
	Type      Type   `json:"type"`
	Role      Role   `json:"role"`
	Username  string `json:"username"`
	Text      string `json:"text"`
	Timestamp Millis `json:"timestamp"`
	TempID    string `json:"tempId"`
}

type ChatHistory struct {
	Type     Type        `json:"type"`
	Messages []ChatEvent `json:"messages"`
}

type HeartbeatAck struct {
	Type      Type   `json:"type"`
	Timestamp Millis `json:"timestamp"`
}

// Ack answers a state-changing inbound message. Delivered is only set for an
// accepted chat message.
type Ack struct {
	Type      Type   `json:"type"`
	Event     Type   `json:"event"`
	OK        bool   `json:"ok"`
	Error     string `json:"error,omitempty"`
	TempID    string `json:"tempId,omitempty"`
	Delivered *int   `json:"delivered,omitempty"`
	ViewerID  string `json:"viewerId,omitempty"`
}

type ErrorEvent struct {
	Type    Type   `json:"type"`
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

func NewBroadcasterJoined(broadcasterID string) BroadcasterJoined {
	return BroadcasterJoined{Type: TypeBroadcasterJoined, BroadcasterID: broadcasterID, Message: "broadcaster registered"}
}

func NewBroadcasterInfo(broadcasterID string, info UserInfo) BroadcasterInfo {
	return BroadcasterInfo{Type: TypeBroadcasterInfo, BroadcasterID: broadcasterID, BroadcasterInfo: info}
}

func NewViewerArrived(viewerID, streamerID string, info UserInfo) ViewerArrived {
	return ViewerArrived{Type: TypeViewerJoined, ViewerID: viewerID, UserInfo: info, StreamerID: streamerID}
}

func NewViewerLeft(viewerID string) ViewerLeft {
	return ViewerLeft{Type: TypeViewerLeft, ViewerID: viewerID}
}

func NewViewerCount(n int) ViewerCount {
	return ViewerCount{Type: TypeViewerCount, Count: n}
}

func NewStreamStart(title string) StreamStartEvent {
	return StreamStartEvent{Type: TypeStreamStart, Title: title, Status: StatusStarting}
}

func NewStreamStatus(status, title string, streaming bool) StreamStatus {
	return StreamStatus{Type: TypeStreamStatus, Status: status, Title: title, IsStreaming: streaming}
}

func NewStreamEnd(message string) StreamEndEvent {
	return StreamEndEvent{Type: TypeStreamEnd, Message: message}
}

func NewTitleUpdate(title string, ts Millis) TitleUpdateEvent {
	return TitleUpdateEvent{Type: TypeTitleUpdate, Title: title, Timestamp: ts}
}

func NewHeartbeatAck(ts Millis) HeartbeatAck {
	return HeartbeatAck{Type: TypeHeartbeatAck, Timestamp: ts}
}

func NewAck(event Type) Ack {
	return Ack{Type: TypeAck, Event: event, OK: true}
}

func NewNack(event Type, code string) Ack {
	return Ack{Type: TypeAck, Event: event, OK: false, Error: code}
}

func NewError(code, message string) ErrorEvent {
	return ErrorEvent{Type: TypeError, Error: code, Message: message}
}

// Encode marshals an outbound message.
func Encode(v any) ([]byte, error) {
	return json.Marshal(v)
}
