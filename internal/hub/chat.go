package hub

import (
	"context"

	"github.com/wilsonzlin/aero/proxy/live-signaling/internal/chatstore"
	"github.com/wilsonzlin/aero/proxy/live-signaling/internal/metrics"
	"github.com/wilsonzlin/aero/proxy/live-signaling/internal/moderation"
	"github.com/wilsonzlin/aero/proxy/live-signaling/internal/protocol"
)

// onChatJoin acks the join and then replies with chat history. The history
// snapshot is taken in accept order by the persistence worker, so it holds
// exactly the messages accepted before the join; anything later is delivered
// live and may reach the joiner before chat_history does.
func (h *Hub) onChatJoin(conn Conn, m *protocol.ChatJoin) {
	joined := false
	var pending <-chan historyResult
	h.apply(func() []Result {
		if m.Role == protocol.RoleBroadcaster && !h.reg.isBroadcaster(conn) {
			return h.refuse(conn, protocol.TypeChatJoin, string(moderation.ReasonNotAuthorized))
		}
		username := m.Username
		if username == "" {
			if v, ok := h.reg.boundViewer(conn); ok {
				username = v.UserInfo.DisplayName
			}
		}
		h.reg.joinChat(conn, ChatIdentity{Role: m.Role, Username: username})
		joined = true
		h.log.Info("chat joined", "conn_id", conn.ID(), "role", m.Role, "username", username, "members", len(h.reg.chat))

		pending = h.requestHistoryLocked()
		return h.reply(conn, protocol.ChatJoinAck{
			Type:      protocol.TypeChatJoinAck,
			Role:      m.Role,
			Username:  username,
			Timestamp: protocol.MillisFrom(h.clock.Now()),
		})
	})
	if !joined || h.store == nil {
		return
	}

	history, err := h.awaitHistory(pending)
	if err != nil {
		h.log.Warn("load chat history", "conn_id", conn.ID(), "err", err)
		return
	}
	h.apply(func() []Result {
		if _, member := h.reg.chat[conn]; !member {
			return nil
		}
		return h.reply(conn, protocol.ChatHistory{Type: protocol.TypeChatHistory, Messages: history})
	})
}

// chatSenderLocked resolves the moderation identity and display name for a
// chat message from conn. Unbound connections are trusted to name
// themselves, as with senderViewerID.
func (h *Hub) chatSenderLocked(conn Conn, m *protocol.Chat) (id, username string) {
	username = m.Username
	if ident, ok := h.reg.chat[conn]; ok && ident.Username != "" {
		username = ident.Username
	}
	if v, ok := h.reg.boundViewer(conn); ok {
		if username == "" {
			username = v.UserInfo.DisplayName
		}
		return v.ID, username
	}
	if m.ViewerID != "" {
		return m.ViewerID, username
	}
	return username, username
}

func (h *Hub) onChat(conn Conn, m *protocol.Chat) {
	h.apply(func() []Result {
		sender, username := h.chatSenderLocked(conn, m)
		d := h.moderator.Check(moderation.Submission{
			Sender:            sender,
			ClaimsBroadcaster: m.Role == protocol.RoleBroadcaster,
			IsBroadcaster:     h.reg.isBroadcaster(conn),
			Text:              m.Body(),
		})
		if !d.OK() {
			h.metrics.Inc(metrics.ChatRejectedPrefix + string(d.Reason))
			h.log.Info("chat rejected", "conn_id", conn.ID(), "sender", sender, "reason", d.Reason)
			nack := protocol.NewNack(protocol.TypeChat, string(d.Reason))
			nack.TempID = m.TempID
			return h.reply(conn, nack)
		}

		ts := m.Timestamp
		if ts.IsZero() {
			ts = protocol.MillisFrom(d.At)
		}
		event := protocol.ChatEvent{
			Type:      protocol.TypeChat,
			Role:      m.Role,
			Username:  username,
			Text:      d.Text,
			Timestamp: ts,
			TempID:    m.TempID,
		}
		out := h.toAllChatIdentities(event)
		if _, member := h.reg.chat[conn]; !member {
			out = append(out, h.reply(conn, event)...)
		}
		n := delivered(out)
		h.metrics.Inc(metrics.ChatAccepted)

		ack := protocol.NewAck(protocol.TypeChat)
		ack.TempID = m.TempID
		ack.Delivered = &n
		out = append(out, h.reply(conn, ack)...)

		h.saveLocked(chatstore.Message{
			Username:  username,
			Role:      string(m.Role),
			Content:   d.Text,
			TempID:    m.TempID,
			CreatedAt: ts.Time(),
		})
		return out
	})
}

// RecentChat returns up to limit stored messages, oldest first, in their
// outbound form.
func (h *Hub) RecentChat(ctx context.Context, limit int) ([]protocol.ChatEvent, error) {
	if h.store == nil {
		return []protocol.ChatEvent{}, nil
	}
	if limit <= 0 || limit > h.historyLimit {
		limit = h.historyLimit
	}
	msgs, err := h.store.Recent(ctx, limit)
	if err != nil {
		return nil, err
	}
	out := make([]protocol.ChatEvent, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, protocol.ChatEvent{
			Type:      protocol.TypeChat,
			Role:      protocol.Role(m.Role),
			Username:  m.Username,
			Text:      m.Content,
			Timestamp: protocol.MillisFrom(m.CreatedAt),
			TempID:    m.TempID,
		})
	}
	return out, nil
}
