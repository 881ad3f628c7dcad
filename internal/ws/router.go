package ws

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"chat-server/internal/models"
	"chat-server/internal/observability"
	"chat-server/internal/repositories"
)

var (
	mentionPattern = regexp.MustCompile(`@([A-Za-z0-9_.-]{2,32})`)
	linkPattern    = regexp.MustCompile(`https?://[^\s<>"']+`)
)

// errDropped marks events that are ignored on purpose: unauthorized, stale or
// pointing at something that no longer exists. The client gets no reply.
var errDropped = errors.New("event dropped")

func dropped(reason string) error {
	return fmt.Errorf("%w: %s", errDropped, reason)
}

// Auditor records security-relevant actions.
type Auditor interface {
	Emit(ctx context.Context, level, text, requestID string, username *string)
}

type eventHandler func(ctx context.Context, sender *Client, ev models.InboundEvent) error

// Router executes inbound events. Events of one connection are dispatched
// sequentially by its read loop; events of different connections run
// concurrently, so read-modify-write paths lock per message id.
type Router struct {
	hub          *Hub
	presence     *Presence
	messages     repositories.MessageRepository
	users        repositories.UserRepository
	groups       repositories.GroupRepository
	audit        Auditor
	locks        *keyedMutex[int64]
	historyLimit int
	now          func() time.Time
	logger       *zap.Logger
	handlers     map[string]eventHandler
}

func NewRouter(
	hub *Hub,
	presence *Presence,
	messages repositories.MessageRepository,
	users repositories.UserRepository,
	groups repositories.GroupRepository,
	audit Auditor,
	historyLimit int,
	logger *zap.Logger,
) *Router {
	if historyLimit <= 0 {
		historyLimit = 50
	}
	r := &Router{
		hub:          hub,
		presence:     presence,
		messages:     messages,
		users:        users,
		groups:       groups,
		audit:        audit,
		locks:        newKeyedMutex[int64](),
		historyLimit: historyLimit,
		now:          time.Now,
		logger:       logger,
	}
	r.handlers = map[string]eventHandler{
		models.EventHistory:      r.handleHistory,
		models.EventMessage:      r.handleMessage,
		models.EventEdit:         r.handleEdit,
		models.EventDelete:       r.handleDelete,
		models.EventReaction:     r.handleReaction,
		models.EventMarkRead:     r.handleMarkRead,
		models.EventPin:          r.handlePin,
		models.EventUnpin:        r.handlePin,
		models.EventForward:      r.handleForward,
		models.EventTyping:       r.handleTyping,
		models.EventCallOffer:    r.handleCallSignal,
		models.EventCallAnswer:   r.handleCallSignal,
		models.EventICECandidate: r.handleCallSignal,
		models.EventHangUp:       r.handleCallSignal,
		models.EventBan:          r.handleBan,
		models.EventSpyViewed:    r.handleSpyViewed,
	}
	return r
}

// Dispatch decodes and runs one frame. It never panics and never returns an
// error: failures are logged and the connection keeps reading.
func (r *Router) Dispatch(ctx context.Context, sender *Client, raw []byte) {
	logger := r.logger.With(zap.String("username", sender.Username()))
	defer func() {
		if rec := recover(); rec != nil {
			observability.IncRouterPanic()
			logger.Error("event handler panic", zap.Any("panic", rec), zap.Stack("stack"))
		}
	}()

	ev, err := models.DecodeEvent(raw)
	if err != nil {
		logger.Debug("malformed frame", zap.Error(err))
		return
	}
	handler, ok := r.handlers[ev.Type]
	if !ok {
		logger.Debug("unknown event type", zap.String("type", ev.Type))
		return
	}
	observability.IncWSEvent(ev.Type)

	ctx, span := observability.Tracer().Start(ctx, "ws.event."+ev.Type)
	span.SetAttributes(attribute.String("chat.username", sender.Username()))
	defer span.End()

	if err := handler(ctx, sender, ev); err != nil {
		if errors.Is(err, errDropped) {
			logger.Debug("event dropped", zap.String("type", ev.Type), zap.Error(err))
			return
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		logger.Warn("event failed", zap.String("type", ev.Type), zap.Error(err))
	}
}

// CanAccess reports whether username may read and write channel. DM channels
// belong to their two participants, group channels to members; any other
// name is public.
func (r *Router) CanAccess(ctx context.Context, username, channel string) (bool, error) {
	parsed := models.ParseChannel(channel)
	switch parsed.Kind {
	case models.ChannelPublic:
		return true, nil
	case models.ChannelDM:
		return parsed.Involves(username), nil
	case models.ChannelGroup:
		return r.groups.IsMember(ctx, parsed.GroupID, username)
	default:
		return false, nil
	}
}

func (r *Router) requireAccess(ctx context.Context, username, channel string) error {
	ok, err := r.CanAccess(ctx, username, channel)
	if err != nil {
		return fmt.Errorf("check channel access: %w", err)
	}
	if !ok {
		return dropped("no access to " + channel)
	}
	return nil
}

// authorize allows the author, or an admin checked against the store now.
func (r *Router) authorize(ctx context.Context, username string, msg models.Message) error {
	if msg.Username == username {
		return nil
	}
	admin, err := r.users.IsAdmin(ctx, username)
	if err != nil {
		return fmt.Errorf("check admin: %w", err)
	}
	if !admin {
		return dropped("not author or admin")
	}
	return nil
}

func (r *Router) loadMessage(ctx context.Context, id int64) (models.Message, error) {
	if id <= 0 {
		return models.Message{}, dropped("missing message id")
	}
	msg, err := r.messages.GetMessage(ctx, id)
	if errors.Is(err, repositories.ErrMessageNotFound) {
		return models.Message{}, dropped("message not found")
	}
	return msg, err
}

func (r *Router) replyPreview(ctx context.Context, replyTo *int64) *models.ReplyPreview {
	if replyTo == nil {
		return nil
	}
	parent, err := r.messages.GetMessage(ctx, *replyTo)
	if err != nil {
		return nil
	}
	return &models.ReplyPreview{Username: parent.Username, Content: parent.Content}
}

// NotifyChannel delivers payload to the audience of channel: both sides of a
// DM, the online members of a group, everyone for a public channel.
func (r *Router) NotifyChannel(ctx context.Context, channel string, payload any) int {
	parsed := models.ParseChannel(channel)
	switch parsed.Kind {
	case models.ChannelDM:
		return r.hub.Multicast(parsed.Members[:], payload)
	case models.ChannelGroup:
		members, err := r.groups.ListMembers(ctx, parsed.GroupID)
		if err != nil {
			r.logger.Warn("list group members", zap.Int64("group_id", parsed.GroupID), zap.Error(err))
			return 0
		}
		return r.hub.Multicast(members, payload)
	default:
		return r.hub.Broadcast(payload)
	}
}

func extractMentions(content string) models.UsernameList {
	out := models.UsernameList{}
	for _, m := range mentionPattern.FindAllStringSubmatch(content, -1) {
		// "@bob." ends a sentence
		name := strings.TrimRight(m[1], ".")
		if models.ValidUsername(name) && !out.Contains(name) {
			out = append(out, name)
		}
	}
	return out
}

func extractLinks(content string) models.UsernameList {
	out := models.UsernameList{}
	for _, link := range linkPattern.FindAllString(content, -1) {
		if !out.Contains(link) {
			out = append(out, link)
		}
	}
	return out
}
