package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"sort"
	"time"
)

// DisplayTimeLayout is the minute-resolution form sent to clients.
const DisplayTimeLayout = "15:04"

// Message is a row of the channel history.
type Message struct {
	ID            int64        `db:"id"`
	Username      string       `db:"username"`
	Content       string       `db:"content"`
	Channel       string       `db:"channel"`
	CreatedAt     time.Time    `db:"created_at"`
	IsEdited      bool         `db:"is_edited"`
	Reactions     Reactions    `db:"reactions"`
	ReplyTo       *int64       `db:"reply_to"`
	ReadBy        UsernameList `db:"read_by"`
	Mentions      UsernameList `db:"mentions"`
	Links         UsernameList `db:"links"`
	ForwardedFrom *string      `db:"forwarded_from"`
	Pinned        bool         `db:"pinned"`
	Timer         int          `db:"timer"`
	ViewedAt      *time.Time   `db:"viewed_at"`
}

// AuthorProfile is the author snapshot joined onto history rows.
type AuthorProfile struct {
	AvatarURL string `db:"avatar_url" json:"avatar_url"`
	Bio       string `db:"bio" json:"bio"`
	IsAdmin   bool   `db:"is_admin" json:"is_admin"`
}

// MessageWithAuthor is a history row joined with the author's profile.
type MessageWithAuthor struct {
	Message
	AuthorProfile
}

// ReplyPreview is the resolved parent of a reply.
type ReplyPreview struct {
	Username string `json:"username"`
	Content  string `json:"content"`
}

// MessageView is the wire form of a message broadcast to clients.
type MessageView struct {
	Type          string        `json:"type"`
	ID            int64         `json:"id"`
	Username      string        `json:"username"`
	Content       string        `json:"content"`
	Channel       string        `json:"channel"`
	CreatedAt     string        `json:"created_at"`
	SentAt        time.Time     `json:"sent_at"`
	AvatarURL     string        `json:"avatar_url"`
	Bio           string        `json:"bio"`
	IsAdmin       bool          `json:"is_admin"`
	IsEdited      bool          `json:"is_edited"`
	Reactions     Reactions     `json:"reactions"`
	ReplyTo       *int64        `json:"reply_to"`
	ReplyPreview  *ReplyPreview `json:"reply_preview"`
	ReadBy        UsernameList  `json:"read_by"`
	Mentions      UsernameList  `json:"mentions"`
	Links         UsernameList  `json:"links"`
	ForwardedFrom *string       `json:"forwarded_from"`
	Pinned        bool          `json:"pinned"`
	Timer         int           `json:"timer"`
	ViewedAt      *float64      `json:"viewed_at"`
}

// NewMessageView builds the client representation of a stored message.
func NewMessageView(m Message, author AuthorProfile, preview *ReplyPreview) MessageView {
	view := MessageView{
		Type:          "message",
		ID:            m.ID,
		Username:      m.Username,
		Content:       m.Content,
		Channel:       m.Channel,
		CreatedAt:     m.CreatedAt.Format(DisplayTimeLayout),
		SentAt:        m.CreatedAt,
		AvatarURL:     author.AvatarURL,
		Bio:           author.Bio,
		IsAdmin:       author.IsAdmin,
		IsEdited:      m.IsEdited,
		Reactions:     m.Reactions.Clone(),
		ReplyTo:       m.ReplyTo,
		ReplyPreview:  preview,
		ReadBy:        m.ReadBy.Clone(),
		Mentions:      m.Mentions.Clone(),
		Links:         m.Links.Clone(),
		ForwardedFrom: m.ForwardedFrom,
		Pinned:        m.Pinned,
		Timer:         m.Timer,
	}
	if m.ViewedAt != nil {
		ts := UnixSeconds(*m.ViewedAt)
		view.ViewedAt = &ts
	}
	return view
}

// UnixSeconds renders t as fractional unix seconds.
func UnixSeconds(t time.Time) float64 {
	return float64(t.UnixNano()) / float64(time.Second)
}

// Reactions maps an emoji to the set of usernames that reacted with it.
type Reactions map[string][]string

// Toggle flips username's membership for emoji and reports whether the user
// is now a reactor. Empty emoji keys are removed.
func (r Reactions) Toggle(emoji, username string) bool {
	users := r[emoji]
	for i, u := range users {
		if u == username {
			users = append(users[:i:i], users[i+1:]...)
			if len(users) == 0 {
				delete(r, emoji)
			} else {
				r[emoji] = users
			}
			return false
		}
	}
	users = append(append([]string(nil), users...), username)
	sort.Strings(users)
	r[emoji] = users
	return true
}

// Has reports whether username reacted with emoji.
func (r Reactions) Has(emoji, username string) bool {
	for _, u := range r[emoji] {
		if u == username {
			return true
		}
	}
	return false
}

// Clone returns a deep copy; nil becomes an empty map.
func (r Reactions) Clone() Reactions {
	out := make(Reactions, len(r))
	for emoji, users := range r {
		out[emoji] = append([]string(nil), users...)
	}
	return out
}

// Value implements driver.Valuer.
func (r Reactions) Value() (driver.Value, error) {
	if r == nil {
		return "{}", nil
	}
	b, err := json.Marshal(map[string][]string(r))
	return string(b), err
}

// Scan implements sql.Scanner.
func (r *Reactions) Scan(src any) error {
	raw, err := jsonBytes(src)
	if err != nil {
		return err
	}
	out := Reactions{}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, (*map[string][]string)(&out)); err != nil {
			return fmt.Errorf("scan reactions: %w", err)
		}
	}
	*r = out
	return nil
}

// UsernameList is an ordered list of names stored as a JSON array.
type UsernameList []string

// Contains reports whether name is present.
func (l UsernameList) Contains(name string) bool {
	for _, v := range l {
		if v == name {
			return true
		}
	}
	return false
}

// Clone returns a copy; nil becomes an empty list.
func (l UsernameList) Clone() UsernameList {
	return append(UsernameList{}, l...)
}

// Value implements driver.Valuer.
func (l UsernameList) Value() (driver.Value, error) {
	if l == nil {
		return "[]", nil
	}
	b, err := json.Marshal([]string(l))
	return string(b), err
}

// Scan implements sql.Scanner.
func (l *UsernameList) Scan(src any) error {
	raw, err := jsonBytes(src)
	if err != nil {
		return err
	}
	out := UsernameList{}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, (*[]string)(&out)); err != nil {
			return fmt.Errorf("scan username list: %w", err)
		}
	}
	*l = out
	return nil
}

func jsonBytes(src any) ([]byte, error) {
	switch v := src.(type) {
	case nil:
		return nil, nil
	case []byte:
		return v, nil
	case string:
		return []byte(v), nil
	default:
		return nil, fmt.Errorf("unsupported json column type %T", src)
	}
}
