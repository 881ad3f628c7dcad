package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"chat-server/internal/models"
)

// FriendRepository abstracts friend requests and DM edges.
type FriendRepository interface {
	CreateRequest(ctx context.Context, sender, receiver string) (models.FriendRequest, error)
	ListPending(ctx context.Context, receiver string) ([]models.FriendRequest, error)
	GetRequest(ctx context.Context, requestID int64) (models.FriendRequest, error)
	AcceptRequest(ctx context.Context, requestID int64) error
	DeleteRequest(ctx context.Context, requestID int64) error
	AreFriends(ctx context.Context, a, b string) (bool, error)
	ListDMs(ctx context.Context, username string) ([]string, error)
}

// FriendRepo is a sqlx implementation of FriendRepository.
type FriendRepo struct {
	db *sqlx.DB
}

// NewFriendRepo constructs a FriendRepo.
func NewFriendRepo(db *sqlx.DB) *FriendRepo {
	return &FriendRepo{db: db}
}

// CreateRequest stores a pending request after checking that the receiver
// exists and that no DM edge or pending request already links the pair.
func (r *FriendRepo) CreateRequest(ctx context.Context, sender, receiver string) (req models.FriendRequest, err error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return models.FriendRequest{}, err
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	var exists bool
	if err = tx.GetContext(ctx, &exists, `SELECT EXISTS(SELECT 1 FROM users WHERE username=$1)`, receiver); err != nil {
		return models.FriendRequest{}, err
	}
	if !exists {
		err = ErrUserNotFound
		return models.FriendRequest{}, err
	}

	u1, u2 := models.DMPair(sender, receiver)
	if err = tx.GetContext(ctx, &exists, `SELECT EXISTS(SELECT 1 FROM dms WHERE user1=$1 AND user2=$2)`, u1, u2); err != nil {
		return models.FriendRequest{}, err
	}
	if exists {
		err = ErrAlreadyFriends
		return models.FriendRequest{}, err
	}

	err = tx.QueryRowxContext(ctx, `INSERT INTO friend_requests (sender, receiver, status) VALUES ($1, $2, $3)
        RETURNING id, sender, receiver, status, created_at`, sender, receiver, models.RequestPending).
		Scan(&req.ID, &req.Sender, &req.Receiver, &req.Status, &req.CreatedAt)
	if isUniqueViolation(err) {
		err = ErrDuplicateRequest
		return models.FriendRequest{}, err
	}
	if err != nil {
		return models.FriendRequest{}, fmt.Errorf("insert friend request: %w", err)
	}
	if err = tx.Commit(); err != nil {
		return models.FriendRequest{}, err
	}
	return req, nil
}

// ListPending returns requests waiting for receiver.
func (r *FriendRepo) ListPending(ctx context.Context, receiver string) ([]models.FriendRequest, error) {
	var reqs []models.FriendRequest
	err := r.db.SelectContext(ctx, &reqs, `SELECT id, sender, receiver, status, created_at FROM friend_requests
        WHERE receiver=$1 AND status=$2 ORDER BY id ASC`, receiver, models.RequestPending)
	return reqs, err
}

// GetRequest fetches a request by id.
func (r *FriendRepo) GetRequest(ctx context.Context, requestID int64) (models.FriendRequest, error) {
	var req models.FriendRequest
	err := r.db.GetContext(ctx, &req, `SELECT id, sender, receiver, status, created_at FROM friend_requests WHERE id=$1`, requestID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.FriendRequest{}, ErrRequestNotFound
	}
	return req, err
}

// AcceptRequest converts the request into a DM edge and deletes it.
func (r *FriendRepo) AcceptRequest(ctx context.Context, requestID int64) (err error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	var req models.FriendRequest
	err = tx.GetContext(ctx, &req, `DELETE FROM friend_requests WHERE id=$1 RETURNING id, sender, receiver, status, created_at`, requestID)
	if errors.Is(err, sql.ErrNoRows) {
		err = ErrRequestNotFound
		return err
	}
	if err != nil {
		return err
	}

	u1, u2 := models.DMPair(req.Sender, req.Receiver)
	if _, err = tx.ExecContext(ctx, `INSERT INTO dms (user1, user2) VALUES ($1, $2) ON CONFLICT (user1, user2) DO NOTHING`, u1, u2); err != nil {
		return err
	}
	return tx.Commit()
}

// DeleteRequest removes a request (rejection).
func (r *FriendRepo) DeleteRequest(ctx context.Context, requestID int64) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM friend_requests WHERE id=$1`, requestID)
	if err != nil {
		return err
	}
	count, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if count == 0 {
		return ErrRequestNotFound
	}
	return nil
}

// AreFriends reports whether a DM edge links a and b.
func (r *FriendRepo) AreFriends(ctx context.Context, a, b string) (bool, error) {
	u1, u2 := models.DMPair(a, b)
	var exists bool
	err := r.db.GetContext(ctx, &exists, `SELECT EXISTS(SELECT 1 FROM dms WHERE user1=$1 AND user2=$2)`, u1, u2)
	return exists, err
}

// ListDMs returns the DM partners of username; the user's own name stands
// for the notepad.
func (r *FriendRepo) ListDMs(ctx context.Context, username string) ([]string, error) {
	rows, err := r.db.QueryxContext(ctx, `SELECT user1, user2 FROM dms WHERE user1=$1 OR user2=$1 ORDER BY id ASC`, username)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	partners := []string{}
	for rows.Next() {
		var u1, u2 string
		if err := rows.Scan(&u1, &u2); err != nil {
			return nil, err
		}
		if u1 == username {
			partners = append(partners, u2)
		} else {
			partners = append(partners, u1)
		}
	}
	return partners, rows.Err()
}
