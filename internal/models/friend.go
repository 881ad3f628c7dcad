package models

import "time"

// FriendRequest is a pending directed request.
type FriendRequest struct {
	ID        int64     `db:"id" json:"id"`
	Sender    string    `db:"sender" json:"sender"`
	Receiver  string    `db:"receiver" json:"receiver"`
	Status    string    `db:"status" json:"status"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// RequestPending is the only status stored; resolved requests are deleted.
const RequestPending = "pending"
