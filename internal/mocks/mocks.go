package mocks

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"chat-server/internal/models"
)

type UserRepositoryMock struct {
	mock.Mock
}

func (m *UserRepositoryMock) CreateUser(ctx context.Context, username, passwordHash string, profile models.Profile) error {
	args := m.Called(ctx, username, passwordHash, profile)
	return args.Error(0)
}

func (m *UserRepositoryMock) GetUser(ctx context.Context, username string) (models.User, error) {
	args := m.Called(ctx, username)
	var user models.User
	if val := args.Get(0); val != nil {
		user = val.(models.User)
	}
	return user, args.Error(1)
}

func (m *UserRepositoryMock) GetProfile(ctx context.Context, username string) (models.Profile, error) {
	args := m.Called(ctx, username)
	var profile models.Profile
	if val := args.Get(0); val != nil {
		profile = val.(models.Profile)
	}
	return profile, args.Error(1)
}

func (m *UserRepositoryMock) UpdateProfile(ctx context.Context, username string, profile models.Profile) (models.Profile, error) {
	args := m.Called(ctx, username, profile)
	var out models.Profile
	if val := args.Get(0); val != nil {
		out = val.(models.Profile)
	}
	return out, args.Error(1)
}

func (m *UserRepositoryMock) IsAdmin(ctx context.Context, username string) (bool, error) {
	args := m.Called(ctx, username)
	return args.Bool(0), args.Error(1)
}

func (m *UserRepositoryMock) SetAdmin(ctx context.Context, username string, admin bool) error {
	args := m.Called(ctx, username, admin)
	return args.Error(0)
}

func (m *UserRepositoryMock) DeleteUser(ctx context.Context, username string) error {
	args := m.Called(ctx, username)
	return args.Error(0)
}

type FriendRepositoryMock struct {
	mock.Mock
}

func (m *FriendRepositoryMock) CreateRequest(ctx context.Context, sender, receiver string) (models.FriendRequest, error) {
	args := m.Called(ctx, sender, receiver)
	var req models.FriendRequest
	if val := args.Get(0); val != nil {
		req = val.(models.FriendRequest)
	}
	return req, args.Error(1)
}

func (m *FriendRepositoryMock) ListPending(ctx context.Context, receiver string) ([]models.FriendRequest, error) {
	args := m.Called(ctx, receiver)
	var list []models.FriendRequest
	if val := args.Get(0); val != nil {
		list = val.([]models.FriendRequest)
	}
	return list, args.Error(1)
}

func (m *FriendRepositoryMock) GetRequest(ctx context.Context, requestID int64) (models.FriendRequest, error) {
	args := m.Called(ctx, requestID)
	var req models.FriendRequest
	if val := args.Get(0); val != nil {
		req = val.(models.FriendRequest)
	}
	return req, args.Error(1)
}

func (m *FriendRepositoryMock) AcceptRequest(ctx context.Context, requestID int64) error {
	args := m.Called(ctx, requestID)
	return args.Error(0)
}

func (m *FriendRepositoryMock) DeleteRequest(ctx context.Context, requestID int64) error {
	args := m.Called(ctx, requestID)
	return args.Error(0)
}

func (m *FriendRepositoryMock) AreFriends(ctx context.Context, a, b string) (bool, error) {
	args := m.Called(ctx, a, b)
	return args.Bool(0), args.Error(1)
}

func (m *FriendRepositoryMock) ListDMs(ctx context.Context, username string) ([]string, error) {
	args := m.Called(ctx, username)
	var names []string
	if val := args.Get(0); val != nil {
		names = val.([]string)
	}
	return names, args.Error(1)
}

type MessageRepositoryMock struct {
	mock.Mock
}

func (m *MessageRepositoryMock) InsertMessage(ctx context.Context, msg models.Message) (models.Message, error) {
	args := m.Called(ctx, msg)
	var out models.Message
	if val := args.Get(0); val != nil {
		out = val.(models.Message)
	}
	return out, args.Error(1)
}

func (m *MessageRepositoryMock) GetMessage(ctx context.Context, messageID int64) (models.Message, error) {
	args := m.Called(ctx, messageID)
	var out models.Message
	if val := args.Get(0); val != nil {
		out = val.(models.Message)
	}
	return out, args.Error(1)
}

func (m *MessageRepositoryMock) ListRecent(ctx context.Context, channel string, limit int) ([]models.MessageWithAuthor, error) {
	args := m.Called(ctx, channel, limit)
	var rows []models.MessageWithAuthor
	if val := args.Get(0); val != nil {
		rows = val.([]models.MessageWithAuthor)
	}
	return rows, args.Error(1)
}

func (m *MessageRepositoryMock) UpdateContent(ctx context.Context, messageID int64, content string) error {
	args := m.Called(ctx, messageID, content)
	return args.Error(0)
}

func (m *MessageRepositoryMock) UpdateReactions(ctx context.Context, messageID int64, reactions models.Reactions) error {
	args := m.Called(ctx, messageID, reactions)
	return args.Error(0)
}

func (m *MessageRepositoryMock) UpdateReadBy(ctx context.Context, messageID int64, readers models.UsernameList) error {
	args := m.Called(ctx, messageID, readers)
	return args.Error(0)
}

func (m *MessageRepositoryMock) SetPinned(ctx context.Context, messageID int64, channel, by string, pinned bool) (bool, error) {
	args := m.Called(ctx, messageID, channel, by, pinned)
	return args.Bool(0), args.Error(1)
}

func (m *MessageRepositoryMock) MarkViewed(ctx context.Context, messageID int64, at time.Time) (bool, error) {
	args := m.Called(ctx, messageID, at)
	return args.Bool(0), args.Error(1)
}

func (m *MessageRepositoryMock) DeleteMessage(ctx context.Context, messageID int64) error {
	args := m.Called(ctx, messageID)
	return args.Error(0)
}

func (m *MessageRepositoryMock) Search(ctx context.Context, channel, query string, limit int) ([]models.Message, error) {
	args := m.Called(ctx, channel, query, limit)
	var out []models.Message
	if val := args.Get(0); val != nil {
		out = val.([]models.Message)
	}
	return out, args.Error(1)
}

func (m *MessageRepositoryMock) ListExpired(ctx context.Context, now time.Time) ([]models.Message, error) {
	args := m.Called(ctx, now)
	var out []models.Message
	if val := args.Get(0); val != nil {
		out = val.([]models.Message)
	}
	return out, args.Error(1)
}
