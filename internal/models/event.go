package models

import "encoding/json"

// Inbound event types.
const (
	EventHistory      = "history"
	EventMessage      = "message"
	EventEdit         = "edit_message"
	EventDelete       = "delete"
	EventReaction     = "reaction"
	EventMarkRead     = "mark_read"
	EventPin          = "pin"
	EventUnpin        = "unpin"
	EventForward      = "forward"
	EventTyping       = "typing"
	EventCallOffer    = "call_offer"
	EventCallAnswer   = "call_answer"
	EventICECandidate = "new_ice_candidate"
	EventHangUp       = "hang_up"
	EventBan          = "ban_user"
	EventSpyViewed    = "spy_viewed"
)

// Outbound event types.
const (
	OutInitialStatus   = "initial_status"
	OutStatus          = "status"
	OutStatusUpdate    = "status_update"
	OutHistory         = "history"
	OutEditUpdate      = "edit_update"
	OutDelete          = "delete"
	OutReadUpdate      = "read_update"
	OutReactionUpdate  = "reaction_update"
	OutMessagePinned   = "message_pinned"
	OutMention         = "mention"
	OutNewRequest      = "new_request"
	OutRequestAccepted = "request_accepted"
	OutBan             = "ban"
	OutSystem          = "system"
	OutSpyStart        = "spy_start"
)

// InboundEvent is a decoded client frame. Raw keeps the original bytes for
// relayed events.
type InboundEvent struct {
	Type          string          `json:"type"`
	Channel       string          `json:"channel,omitempty"`
	Content       string          `json:"content,omitempty"`
	MessageID     int64           `json:"message_id,omitempty"`
	NewContent    string          `json:"new_content,omitempty"`
	Emoji         string          `json:"emoji,omitempty"`
	ReplyTo       *int64          `json:"reply_to,omitempty"`
	Timer         int             `json:"timer,omitempty"`
	Target        string          `json:"target,omitempty"`
	TargetChannel string          `json:"target_channel,omitempty"`
	Raw           json.RawMessage `json:"-"`
}

// DecodeEvent parses a text frame.
func DecodeEvent(raw []byte) (InboundEvent, error) {
	var ev InboundEvent
	if err := json.Unmarshal(raw, &ev); err != nil {
		return InboundEvent{}, err
	}
	ev.Raw = append(json.RawMessage(nil), raw...)
	return ev, nil
}

// Relay returns the raw frame as an object with key forced to value.
func (e InboundEvent) Relay(key, value string) (map[string]any, error) {
	out := map[string]any{}
	if err := json.Unmarshal(e.Raw, &out); err != nil {
		return nil, err
	}
	out[key] = value
	return out, nil
}

// StatusEvent announces a presence transition.
type StatusEvent struct {
	Type     string `json:"type"`
	Username string `json:"username"`
	Status   string `json:"status"`
}

// Presence values.
const (
	StatusOnline  = "online"
	StatusOffline = "offline"
)

// InitialStatusEvent is the online snapshot sent on connect.
type InitialStatusEvent struct {
	Type   string   `json:"type"`
	Online []string `json:"online"`
}

// HistoryEvent answers a history request.
type HistoryEvent struct {
	Type     string        `json:"type"`
	Channel  string        `json:"channel"`
	Messages []MessageView `json:"messages"`
}

// EditUpdateEvent carries an edit delta.
type EditUpdateEvent struct {
	Type       string `json:"type"`
	MessageID  int64  `json:"message_id"`
	Channel    string `json:"channel"`
	NewContent string `json:"new_content"`
}

// DeleteEvent announces a removed message.
type DeleteEvent struct {
	Type      string `json:"type"`
	MessageID int64  `json:"message_id"`
	Channel   string `json:"channel"`
}

// ReadUpdateEvent carries the read-by list of a message.
type ReadUpdateEvent struct {
	Type      string       `json:"type"`
	MessageID int64        `json:"message_id"`
	Channel   string       `json:"channel"`
	Readers   UsernameList `json:"readers"`
}

// ReactionUpdateEvent carries the reaction map of a message.
type ReactionUpdateEvent struct {
	Type      string    `json:"type"`
	MessageID int64     `json:"message_id"`
	Channel   string    `json:"channel"`
	Reactions Reactions `json:"reactions"`
}

// PinEvent announces a pin state change.
type PinEvent struct {
	Type      string `json:"type"`
	MessageID int64  `json:"message_id"`
	Channel   string `json:"channel"`
	Pinned    bool   `json:"pinned"`
	By        string `json:"by"`
}

// MentionEvent notifies a mentioned user.
type MentionEvent struct {
	Type      string `json:"type"`
	From      string `json:"from"`
	MessageID int64  `json:"message_id"`
	Channel   string `json:"channel"`
	Content   string `json:"content"`
}

// SpyStartEvent announces the start of a self-destruct countdown.
type SpyStartEvent struct {
	Type      string  `json:"type"`
	MessageID int64   `json:"message_id"`
	Channel   string  `json:"channel"`
	StartTime float64 `json:"start_time"`
	Timer     int     `json:"timer"`
}

// SystemEvent is a server notice.
type SystemEvent struct {
	Type    string `json:"type"`
	Content string `json:"content"`
}

// BanEvent is the final frame sent to a banned user.
type BanEvent struct {
	Type string `json:"type"`
	By   string `json:"by"`
}

// NewRequestEvent notifies a friend request receiver.
type NewRequestEvent struct {
	Type      string `json:"type"`
	RequestID int64  `json:"request_id"`
	Sender    string `json:"sender"`
}

// RequestAcceptedEvent notifies the original sender.
type RequestAcceptedEvent struct {
	Type   string `json:"type"`
	Friend string `json:"friend"`
}

// StatusUpdateEvent carries a changed profile status line.
type StatusUpdateEvent struct {
	Type      string `json:"type"`
	Username  string `json:"username"`
	Status    string `json:"status"`
	AvatarURL string `json:"avatar_url"`
}
