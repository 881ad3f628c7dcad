package repositories

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"

	"chat-server/internal/models"
)

// GroupRepository abstracts group persistence.
type GroupRepository interface {
	CreateGroup(ctx context.Context, owner, name string) (models.Group, error)
	AddMember(ctx context.Context, groupID int64, username string) error
	ListGroupsForUser(ctx context.Context, username string) ([]models.Group, error)
	IsMember(ctx context.Context, groupID int64, username string) (bool, error)
	ListMembers(ctx context.Context, groupID int64) ([]string, error)
	GetGroup(ctx context.Context, groupID int64) (models.Group, error)
}

// GroupRepo is a sqlx implementation of GroupRepository.
type GroupRepo struct {
	db *sqlx.DB
}

// NewGroupRepo constructs a GroupRepo.
func NewGroupRepo(db *sqlx.DB) *GroupRepo {
	return &GroupRepo{db: db}
}

// CreateGroup creates a group with its owner as first member.
func (r *GroupRepo) CreateGroup(ctx context.Context, owner, name string) (group models.Group, err error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return models.Group{}, err
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	if err = tx.QueryRowxContext(ctx, `INSERT INTO groups (name, owner) VALUES ($1, $2) RETURNING id, name, owner, created_at`, name, owner).
		Scan(&group.ID, &group.Name, &group.Owner, &group.CreatedAt); err != nil {
		return models.Group{}, err
	}
	if _, err = tx.ExecContext(ctx, `INSERT INTO group_members (group_id, username) VALUES ($1, $2)`, group.ID, owner); err != nil {
		return models.Group{}, err
	}
	if err = tx.Commit(); err != nil {
		return models.Group{}, err
	}
	return group, nil
}

// AddMember adds username to the group.
func (r *GroupRepo) AddMember(ctx context.Context, groupID int64, username string) error {
	_, err := r.db.ExecContext(ctx, `INSERT INTO group_members (group_id, username) VALUES ($1, $2)`, groupID, username)
	if isUniqueViolation(err) {
		return ErrAlreadyMember
	}
	if isForeignKeyViolation(err) {
		return ErrGroupNotFound
	}
	return err
}

// ListGroupsForUser returns groups that include the user.
func (r *GroupRepo) ListGroupsForUser(ctx context.Context, username string) ([]models.Group, error) {
	groups := []models.Group{}
	err := r.db.SelectContext(ctx, &groups, `SELECT g.id, g.name, g.owner, g.created_at FROM groups g
        INNER JOIN group_members gm ON gm.group_id = g.id
        WHERE gm.username=$1 ORDER BY g.id ASC`, username)
	return groups, err
}

// IsMember checks membership.
func (r *GroupRepo) IsMember(ctx context.Context, groupID int64, username string) (bool, error) {
	var exists bool
	err := r.db.GetContext(ctx, &exists, `SELECT EXISTS(SELECT 1 FROM group_members WHERE group_id=$1 AND username=$2)`, groupID, username)
	return exists, err
}

// ListMembers returns the usernames of a group, sorted.
func (r *GroupRepo) ListMembers(ctx context.Context, groupID int64) ([]string, error) {
	members := []string{}
	err := r.db.SelectContext(ctx, &members, `SELECT username FROM group_members WHERE group_id=$1 ORDER BY username ASC`, groupID)
	return members, err
}

// GetGroup fetches a single group.
func (r *GroupRepo) GetGroup(ctx context.Context, groupID int64) (models.Group, error) {
	var group models.Group
	err := r.db.GetContext(ctx, &group, `SELECT id, name, owner, created_at FROM groups WHERE id=$1`, groupID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Group{}, ErrGroupNotFound
	}
	return group, err
}
