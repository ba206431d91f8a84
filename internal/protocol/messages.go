package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/pion/webrtc/v4"
)

type Type string

const (
	TypeBroadcasterJoin Type = "broadcaster_join"
	TypeViewerJoin      Type = "viewer_join"
	TypeStreamStart     Type = "stream_start"
	TypeStreamEnd       Type = "stream_end"
	TypeTitleUpdate     Type = "title_update"
	TypeOffer           Type = "offer"
	TypeAnswer          Type = "answer"
	TypeICECandidate    Type = "ice_candidate"
	TypeChatJoin        Type = "chat_join"
	TypeChat            Type = "chat"
	TypeHeartbeat       Type = "heartbeat"

	TypeBroadcasterJoined Type = "broadcaster_joined"
	TypeBroadcasterInfo   Type = "broadcaster_info"
	TypeViewerJoined      Type = "viewer_joined"
	TypeViewerLeft        Type = "viewer_left"
	TypeViewerCount       Type = "viewer_count"
	TypeStreamStatus      Type = "stream_status"
	TypeChatJoinAck       Type = "chat_join_ack"
	TypeChatHistory       Type = "chat_history"
	TypeHeartbeatAck      Type = "heartbeat_ack"
	TypeAck               Type = "ack"
	TypeError             Type = "error"
)

type Role string

const (
	RoleBroadcaster Role = "broadcaster"
	RoleViewer      Role = "viewer"
)

func (r Role) valid() bool {
	return r == RoleBroadcaster || r == RoleViewer
}

// UserInfo is the profile attached to a join by the identity service. The
// relay trusts IsLoggedIn as given.
type UserInfo struct {
	DisplayName string `json:"displayName"`
	AvatarURL   string `json:"avatarUrl"`
	IsLoggedIn  bool   `json:"isLoggedIn"`
}

// Message is a parsed inbound frame. Implementations are the pointer types
// declared in this file and nothing else.
type Message interface {
	Type() Type
	validate() error
}

type BroadcasterJoin struct {
	BroadcasterID string   `json:"broadcasterId"`
	UserInfo      UserInfo `json:"userInfo"`
}

type ViewerJoin struct {
	ViewerID   string    `json:"viewerId"`
	StreamerID string    `json:"streamerId"`
	UserInfo   *UserInfo `json:"userInfo"`
}

type StreamStart struct {
	Title string `json:"title"`
}

type StreamEnd struct{}

type TitleUpdate struct {
	Title *string `json:"title"`
}

// Offer carries an SDP offer from the broadcaster to one viewer. The SDP is
// kept as raw JSON so it can be forwarded byte for byte.
type Offer struct {
	ViewerID      string          `json:"viewerId"`
	BroadcasterID string          `json:"broadcasterId"`
	Offer         json.RawMessage `json:"offer"`
}

type Answer struct {
	ViewerID string          `json:"viewerId"`
	Answer   json.RawMessage `json:"answer"`
}

// ICECandidate travels viewer -> broadcaster when BroadcasterID is empty and
// broadcaster -> viewer otherwise.
type ICECandidate struct {
	ViewerID      string          `json:"viewerId"`
	BroadcasterID string          `json:"broadcasterId"`
	Candidate     json.RawMessage `json:"candidate"`
}

// FromBroadcaster reports whether the candidate carries the broadcaster marker.
func (m *ICECandidate) FromBroadcaster() bool {
	return m.BroadcasterID != ""
}

type ChatJoin struct {
	Role          Role   `json:"role"`
	Username      string `json:"username"`
	BroadcasterID string `json:"broadcasterId"`
}

type Chat struct {
	Role      Role   `json:"role"`
	Username  string `json:"username"`
	ViewerID  string `json:"viewerId"`
	Text      string `json:"text"`
	Message   string `json:"message"`
	TempID    string `json:"tempId"`
	Timestamp Millis `json:"timestamp"`
}

// Body returns the chat text, accepting the legacy "message" field.
func (m *Chat) Body() string {
	if m.Text != "" {
		return m.Text
	}
	return m.Message
}

type Heartbeat struct{}

func (*BroadcasterJoin) Type() Type { return TypeBroadcasterJoin }
func (*ViewerJoin) Type() Type      { return TypeViewerJoin }
func (*StreamStart) Type() Type     { return TypeStreamStart }
func (*StreamEnd) Type() Type       { return TypeStreamEnd }
func (*TitleUpdate) Type() Type     { return TypeTitleUpdate }
func (*Offer) Type() Type           { return TypeOffer }
func (*Answer) Type() Type          { return TypeAnswer }
func (*ICECandidate) Type() Type    { return TypeICECandidate }
func (*ChatJoin) Type() Type        { return TypeChatJoin }
func (*Chat) Type() Type            { return TypeChat }
func (*Heartbeat) Type() Type       { return TypeHeartbeat }

func (*BroadcasterJoin) validate() error { return nil }
func (*StreamStart) validate() error     { return nil }
func (*StreamEnd) validate() error       { return nil }
func (*Heartbeat) validate() error       { return nil }

func (m *ViewerJoin) validate() error {
	if strings.TrimSpace(m.ViewerID) == "" {
		return errors.New("missing viewerId")
	}
	return nil
}

func (m *TitleUpdate) validate() error {
	if m.Title == nil {
		return errors.New("missing title")
	}
	return nil
}

func (m *Offer) validate() error {
	if m.ViewerID == "" {
		return errors.New("missing viewerId")
	}
	return validateSDP(m.Offer, webrtc.SDPTypeOffer)
}

func (m *Answer) validate() error {
	if m.ViewerID == "" {
		return errors.New("missing viewerId")
	}
	return validateSDP(m.Answer, webrtc.SDPTypeAnswer)
}

func (m *ICECandidate) validate() error {
	if m.BroadcasterID != "" && m.ViewerID == "" {
		return errors.New("broadcaster candidate missing viewerId")
	}
	if isNullJSON(m.Candidate) {
		return errors.New("missing candidate")
	}
	var init webrtc.ICECandidateInit
	if err := json.Unmarshal(m.Candidate, &init); err != nil {
		return fmt.Errorf("candidate: %w", err)
	}
	return nil
}

func (m *ChatJoin) validate() error {
	if !m.Role.valid() {
		return fmt.Errorf("invalid role %q", m.Role)
	}
	return nil
}

func (m *Chat) validate() error {
	if !m.Role.valid() {
		return fmt.Errorf("invalid role %q", m.Role)
	}
	return nil
}

func validateSDP(raw json.RawMessage, want webrtc.SDPType) error {
	if isNullJSON(raw) {
		return fmt.Errorf("missing %s", want)
	}
	var desc webrtc.SessionDescription
	if err := json.Unmarshal(raw, &desc); err != nil {
		return fmt.Errorf("%s: %w", want, err)
	}
	if desc.Type != want {
		return fmt.Errorf("%s has sdp type %q", want, desc.Type)
	}
	if strings.TrimSpace(desc.SDP) == "" {
		return fmt.Errorf("%s has empty sdp", want)
	}
	return nil
}

func isNullJSON(raw json.RawMessage) bool {
	trimmed := strings.TrimSpace(string(raw))
	return trimmed == "" || trimmed == "null"
}
