package models

import "time"

// Group represents a named group channel.
type Group struct {
	ID        int64     `db:"id" json:"id"`
	Name      string    `db:"name" json:"name"`
	Owner     string    `db:"owner" json:"owner"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// Channel returns the history channel key of the group.
func (g Group) Channel() string {
	return GroupChannel(g.ID)
}
