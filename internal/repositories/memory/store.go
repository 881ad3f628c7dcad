// Package memory is a process-local implementation of the repository
// interfaces. It backs the server's --memory mode and the tests.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"chat-server/internal/models"
	"chat-server/internal/repositories"
)

// Store keeps every table in maps guarded by one mutex.
type Store struct {
	mu sync.Mutex

	now func() time.Time

	users    map[string]models.User
	messages map[int64]models.Message
	pins     map[int64]string
	nextMsg  int64

	dms      map[[2]string]struct{}
	requests map[int64]models.FriendRequest
	nextReq  int64

	groups    map[int64]models.Group
	members   map[int64]map[string]struct{}
	nextGroup int64
}

// New returns an empty store.
func New() *Store {
	return &Store{
		now:      time.Now,
		users:    map[string]models.User{},
		messages: map[int64]models.Message{},
		pins:     map[int64]string{},
		dms:      map[[2]string]struct{}{},
		requests: map[int64]models.FriendRequest{},
		groups:   map[int64]models.Group{},
		members:  map[int64]map[string]struct{}{},
	}
}

// SetClock overrides the time source.
func (s *Store) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

var (
	_ repositories.MessageRepository = (*Store)(nil)
	_ repositories.UserRepository    = (*Store)(nil)
	_ repositories.FriendRepository  = (*Store)(nil)
	_ repositories.GroupRepository   = (*Store)(nil)
)

func copyMessage(m models.Message) models.Message {
	m.Reactions = m.Reactions.Clone()
	m.ReadBy = m.ReadBy.Clone()
	m.Mentions = m.Mentions.Clone()
	m.Links = m.Links.Clone()
	if m.ViewedAt != nil {
		at := *m.ViewedAt
		m.ViewedAt = &at
	}
	return m
}

// InsertMessage implements repositories.MessageRepository.
func (s *Store) InsertMessage(_ context.Context, msg models.Message) (models.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextMsg++
	msg.ID = s.nextMsg
	msg.CreatedAt = s.now()
	msg.IsEdited = false
	msg.Pinned = false
	msg.ViewedAt = nil
	msg = copyMessage(msg)
	s.messages[msg.ID] = msg
	return copyMessage(msg), nil
}

// GetMessage implements repositories.MessageRepository.
func (s *Store) GetMessage(_ context.Context, messageID int64) (models.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	msg, ok := s.messages[messageID]
	if !ok {
		return models.Message{}, repositories.ErrMessageNotFound
	}
	return copyMessage(msg), nil
}

// ListRecent implements repositories.MessageRepository.
func (s *Store) ListRecent(_ context.Context, channel string, limit int) ([]models.MessageWithAuthor, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.MessageWithAuthor
	for _, m := range s.sortedDesc() {
		if m.Channel != channel {
			continue
		}
		if len(out) == limit {
			break
		}
		out = append(out, models.MessageWithAuthor{
			Message:       copyMessage(m),
			AuthorProfile: s.users[m.Username].Author(),
		})
	}
	return out, nil
}

func (s *Store) sortedDesc() []models.Message {
	msgs := make([]models.Message, 0, len(s.messages))
	for _, m := range s.messages {
		msgs = append(msgs, m)
	}
	sort.Slice(msgs, func(i, j int) bool { return msgs[i].ID > msgs[j].ID })
	return msgs
}

func (s *Store) mutate(messageID int64, fn func(*models.Message)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	msg, ok := s.messages[messageID]
	if !ok {
		return repositories.ErrMessageNotFound
	}
	fn(&msg)
	s.messages[messageID] = msg
	return nil
}

// UpdateContent implements repositories.MessageRepository.
func (s *Store) UpdateContent(_ context.Context, messageID int64, content string) error {
	return s.mutate(messageID, func(m *models.Message) {
		m.Content = content
		m.IsEdited = true
	})
}

// UpdateReactions implements repositories.MessageRepository.
func (s *Store) UpdateReactions(_ context.Context, messageID int64, reactions models.Reactions) error {
	return s.mutate(messageID, func(m *models.Message) { m.Reactions = reactions.Clone() })
}

// UpdateReadBy implements repositories.MessageRepository.
func (s *Store) UpdateReadBy(_ context.Context, messageID int64, readers models.UsernameList) error {
	return s.mutate(messageID, func(m *models.Message) { m.ReadBy = readers.Clone() })
}

// SetPinned implements repositories.MessageRepository.
func (s *Store) SetPinned(_ context.Context, messageID int64, _ string, by string, pinned bool) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	msg, ok := s.messages[messageID]
	if !ok {
		return false, repositories.ErrMessageNotFound
	}
	_, isPinned := s.pins[messageID]
	if isPinned == pinned {
		return false, nil
	}
	if pinned {
		s.pins[messageID] = by
	} else {
		delete(s.pins, messageID)
	}
	msg.Pinned = pinned
	s.messages[messageID] = msg
	return true, nil
}

// MarkViewed implements repositories.MessageRepository.
func (s *Store) MarkViewed(_ context.Context, messageID int64, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	msg, ok := s.messages[messageID]
	if !ok || msg.ViewedAt != nil {
		return false, nil
	}
	msg.ViewedAt = &at
	s.messages[messageID] = msg
	return true, nil
}

// DeleteMessage implements repositories.MessageRepository.
func (s *Store) DeleteMessage(_ context.Context, messageID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.messages[messageID]; !ok {
		return repositories.ErrMessageNotFound
	}
	delete(s.messages, messageID)
	delete(s.pins, messageID)
	return nil
}

// Search implements repositories.MessageRepository.
func (s *Store) Search(_ context.Context, channel, query string, limit int) ([]models.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []models.Message{}
	needle := strings.ToLower(query)
	for _, m := range s.sortedDesc() {
		if len(out) == limit {
			break
		}
		if m.Channel == channel && strings.Contains(strings.ToLower(m.Content), needle) {
			out = append(out, copyMessage(m))
		}
	}
	return out, nil
}

// ListExpired implements repositories.MessageRepository.
func (s *Store) ListExpired(_ context.Context, now time.Time) ([]models.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Message
	for _, m := range s.messages {
		if m.Timer <= 0 || m.ViewedAt == nil {
			continue
		}
		if !m.ViewedAt.Add(time.Duration(m.Timer) * time.Second).After(now) {
			out = append(out, copyMessage(m))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// CreateUser implements repositories.UserRepository.
func (s *Store) CreateUser(_ context.Context, username, passwordHash string, profile models.Profile) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[username]; ok {
		return repositories.ErrUsernameTaken
	}
	s.users[username] = models.User{Username: username, PasswordHash: passwordHash, Profile: profile}
	s.dms[[2]string{username, username}] = struct{}{}
	return nil
}

// GetUser implements repositories.UserRepository.
func (s *Store) GetUser(_ context.Context, username string) (models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[username]
	if !ok {
		return models.User{}, repositories.ErrUserNotFound
	}
	return u, nil
}

// GetProfile implements repositories.UserRepository.
func (s *Store) GetProfile(ctx context.Context, username string) (models.Profile, error) {
	u, err := s.GetUser(ctx, username)
	return u.Profile, err
}

// UpdateProfile implements repositories.UserRepository.
func (s *Store) UpdateProfile(_ context.Context, username string, p models.Profile) (models.Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[username]
	if !ok {
		return models.Profile{}, repositories.ErrUserNotFound
	}
	p.IsAdmin = p.IsAdmin || u.IsAdmin
	u.Profile = p
	s.users[username] = u
	return p, nil
}

// IsAdmin implements repositories.UserRepository.
func (s *Store) IsAdmin(_ context.Context, username string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.users[username].IsAdmin, nil
}

// SetAdmin implements repositories.UserRepository.
func (s *Store) SetAdmin(_ context.Context, username string, admin bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[username]
	if !ok {
		return repositories.ErrUserNotFound
	}
	u.IsAdmin = admin
	s.users[username] = u
	return nil
}

// DeleteUser implements repositories.UserRepository.
func (s *Store) DeleteUser(_ context.Context, username string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, m := range s.messages {
		if m.Username == username || models.ParseChannel(m.Channel).Involves(username) {
			delete(s.messages, id)
			delete(s.pins, id)
		}
	}
	for pair := range s.dms {
		if pair[0] == username || pair[1] == username {
			delete(s.dms, pair)
		}
	}
	for _, set := range s.members {
		delete(set, username)
	}
	for id, req := range s.requests {
		if req.Sender == username || req.Receiver == username {
			delete(s.requests, id)
		}
	}
	delete(s.users, username)
	return nil
}

// CreateRequest implements repositories.FriendRepository.
func (s *Store) CreateRequest(_ context.Context, sender, receiver string) (models.FriendRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[receiver]; !ok {
		return models.FriendRequest{}, repositories.ErrUserNotFound
	}
	u1, u2 := models.DMPair(sender, receiver)
	if _, ok := s.dms[[2]string{u1, u2}]; ok {
		return models.FriendRequest{}, repositories.ErrAlreadyFriends
	}
	for _, req := range s.requests {
		if req.Sender == sender && req.Receiver == receiver {
			return models.FriendRequest{}, repositories.ErrDuplicateRequest
		}
	}
	s.nextReq++
	req := models.FriendRequest{ID: s.nextReq, Sender: sender, Receiver: receiver, Status: models.RequestPending, CreatedAt: s.now()}
	s.requests[req.ID] = req
	return req, nil
}

// ListPending implements repositories.FriendRepository.
func (s *Store) ListPending(_ context.Context, receiver string) ([]models.FriendRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []models.FriendRequest{}
	for _, req := range s.requests {
		if req.Receiver == receiver && req.Status == models.RequestPending {
			out = append(out, req)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// GetRequest implements repositories.FriendRepository.
func (s *Store) GetRequest(_ context.Context, requestID int64) (models.FriendRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	req, ok := s.requests[requestID]
	if !ok {
		return models.FriendRequest{}, repositories.ErrRequestNotFound
	}
	return req, nil
}

// AcceptRequest implements repositories.FriendRepository.
func (s *Store) AcceptRequest(_ context.Context, requestID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	req, ok := s.requests[requestID]
	if !ok {
		return repositories.ErrRequestNotFound
	}
	delete(s.requests, requestID)
	u1, u2 := models.DMPair(req.Sender, req.Receiver)
	s.dms[[2]string{u1, u2}] = struct{}{}
	return nil
}

// DeleteRequest implements repositories.FriendRepository.
func (s *Store) DeleteRequest(_ context.Context, requestID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.requests[requestID]; !ok {
		return repositories.ErrRequestNotFound
	}
	delete(s.requests, requestID)
	return nil
}

// AreFriends implements repositories.FriendRepository.
func (s *Store) AreFriends(_ context.Context, a, b string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u1, u2 := models.DMPair(a, b)
	_, ok := s.dms[[2]string{u1, u2}]
	return ok, nil
}

// ListDMs implements repositories.FriendRepository.
func (s *Store) ListDMs(_ context.Context, username string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []string{}
	for pair := range s.dms {
		switch username {
		case pair[0]:
			out = append(out, pair[1])
		case pair[1]:
			out = append(out, pair[0])
		}
	}
	sort.Strings(out)
	return out, nil
}

// CreateGroup implements repositories.GroupRepository.
func (s *Store) CreateGroup(_ context.Context, owner, name string) (models.Group, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextGroup++
	g := models.Group{ID: s.nextGroup, Name: name, Owner: owner, CreatedAt: s.now()}
	s.groups[g.ID] = g
	s.members[g.ID] = map[string]struct{}{owner: {}}
	return g, nil
}

// AddMember implements repositories.GroupRepository.
func (s *Store) AddMember(_ context.Context, groupID int64, username string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	set, ok := s.members[groupID]
	if !ok {
		return repositories.ErrGroupNotFound
	}
	if _, dup := set[username]; dup {
		return repositories.ErrAlreadyMember
	}
	set[username] = struct{}{}
	return nil
}

// ListGroupsForUser implements repositories.GroupRepository.
func (s *Store) ListGroupsForUser(_ context.Context, username string) ([]models.Group, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []models.Group{}
	for id, set := range s.members {
		if _, ok := set[username]; ok {
			out = append(out, s.groups[id])
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// IsMember implements repositories.GroupRepository.
func (s *Store) IsMember(_ context.Context, groupID int64, username string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.members[groupID][username]
	return ok, nil
}

// ListMembers implements repositories.GroupRepository.
func (s *Store) ListMembers(_ context.Context, groupID int64) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.members[groupID]))
	for name := range s.members[groupID] {
		out = append(out, name)
	}
	sort.Strings(out)
	return out, nil
}

// GetGroup implements repositories.GroupRepository.
func (s *Store) GetGroup(_ context.Context, groupID int64) (models.Group, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	g, ok := s.groups[groupID]
	if !ok {
		return models.Group{}, repositories.ErrGroupNotFound
	}
	return g, nil
}
