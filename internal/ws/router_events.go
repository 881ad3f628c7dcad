package ws

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"chat-server/internal/models"
	"chat-server/internal/repositories"
	"chat-server/internal/telemetry"
)

func (r *Router) handleHistory(ctx context.Context, sender *Client, ev models.InboundEvent) error {
	if ev.Channel == "" {
		return dropped("missing channel")
	}
	if err := r.requireAccess(ctx, sender.Username(), ev.Channel); err != nil {
		return err
	}
	rows, err := r.messages.ListRecent(ctx, ev.Channel, r.historyLimit)
	if err != nil {
		return fmt.Errorf("list history: %w", err)
	}
	views := make([]models.MessageView, 0, len(rows))
	for _, row := range rows {
		views = append(views, models.NewMessageView(row.Message, row.AuthorProfile, r.replyPreview(ctx, row.ReplyTo)))
	}
	r.hub.SendTo(sender, models.HistoryEvent{Type: models.OutHistory, Channel: ev.Channel, Messages: views})
	return nil
}

func (r *Router) handleMessage(ctx context.Context, sender *Client, ev models.InboundEvent) error {
	content := strings.TrimSpace(ev.Content)
	if content == "" {
		return dropped("empty content")
	}
	if ev.Channel == "" {
		return dropped("missing channel")
	}
	if err := r.requireAccess(ctx, sender.Username(), ev.Channel); err != nil {
		return err
	}
	timer := ev.Timer
	if timer < 0 {
		timer = 0
	}
	return r.publishMessage(ctx, models.Message{
		Username: sender.Username(),
		Content:  content,
		Channel:  ev.Channel,
		ReplyTo:  ev.ReplyTo,
		Mentions: extractMentions(content),
		Links:    extractLinks(content),
		Timer:    timer,
	})
}

// publishMessage commits msg, then fans the enriched view out to the channel
// and notifies online mentioned users who can read it.
func (r *Router) publishMessage(ctx context.Context, msg models.Message) error {
	stored, err := r.messages.InsertMessage(ctx, msg)
	if err != nil {
		return fmt.Errorf("insert message: %w", err)
	}

	profile, err := r.users.GetProfile(ctx, stored.Username)
	if err != nil && !errors.Is(err, repositories.ErrUserNotFound) {
		r.logger.Warn("load author profile", zap.String("username", stored.Username), zap.Error(err))
	}
	view := models.NewMessageView(stored, profile.Author(), r.replyPreview(ctx, stored.ReplyTo))
	r.NotifyChannel(ctx, stored.Channel, view)

	for _, name := range stored.Mentions {
		if name == stored.Username {
			continue
		}
		if ok, err := r.CanAccess(ctx, name, stored.Channel); err != nil || !ok {
			continue
		}
		r.hub.Unicast(name, models.MentionEvent{
			Type:      models.OutMention,
			From:      stored.Username,
			MessageID: stored.ID,
			Channel:   stored.Channel,
			Content:   stored.Content,
		})
	}
	return nil
}

func (r *Router) handleEdit(ctx context.Context, sender *Client, ev models.InboundEvent) error {
	content := strings.TrimSpace(ev.NewContent)
	if content == "" {
		return dropped("empty content")
	}
	msg, err := r.loadMessage(ctx, ev.MessageID)
	if err != nil {
		return err
	}
	if err := r.authorize(ctx, sender.Username(), msg); err != nil {
		return err
	}
	if err := r.messages.UpdateContent(ctx, msg.ID, content); err != nil {
		return fmt.Errorf("update content: %w", err)
	}
	r.NotifyChannel(ctx, msg.Channel, models.EditUpdateEvent{
		Type:       models.OutEditUpdate,
		MessageID:  msg.ID,
		Channel:    msg.Channel,
		NewContent: content,
	})
	return nil
}

func (r *Router) handleDelete(ctx context.Context, sender *Client, ev models.InboundEvent) error {
	msg, err := r.loadMessage(ctx, ev.MessageID)
	if err != nil {
		return err
	}
	if err := r.authorize(ctx, sender.Username(), msg); err != nil {
		return err
	}
	if err := r.messages.DeleteMessage(ctx, msg.ID); err != nil {
		if errors.Is(err, repositories.ErrMessageNotFound) {
			return dropped("message already deleted")
		}
		return fmt.Errorf("delete message: %w", err)
	}
	r.NotifyChannel(ctx, msg.Channel, models.DeleteEvent{Type: models.OutDelete, MessageID: msg.ID, Channel: msg.Channel})
	return nil
}

func (r *Router) handleReaction(ctx context.Context, sender *Client, ev models.InboundEvent) error {
	emoji := strings.TrimSpace(ev.Emoji)
	if emoji == "" {
		return dropped("empty emoji")
	}
	unlock := r.locks.Lock(ev.MessageID)
	defer unlock()

	msg, err := r.loadMessage(ctx, ev.MessageID)
	if err != nil {
		return err
	}
	if err := r.requireAccess(ctx, sender.Username(), msg.Channel); err != nil {
		return err
	}
	reactions := msg.Reactions.Clone()
	reactions.Toggle(emoji, sender.Username())
	if err := r.messages.UpdateReactions(ctx, msg.ID, reactions); err != nil {
		return fmt.Errorf("update reactions: %w", err)
	}
	r.NotifyChannel(ctx, msg.Channel, models.ReactionUpdateEvent{
		Type:      models.OutReactionUpdate,
		MessageID: msg.ID,
		Channel:   msg.Channel,
		Reactions: reactions,
	})
	return nil
}

func (r *Router) handleMarkRead(ctx context.Context, sender *Client, ev models.InboundEvent) error {
	unlock := r.locks.Lock(ev.MessageID)
	defer unlock()

	msg, err := r.loadMessage(ctx, ev.MessageID)
	if err != nil {
		return err
	}
	if err := r.requireAccess(ctx, sender.Username(), msg.Channel); err != nil {
		return err
	}
	if msg.ReadBy.Contains(sender.Username()) {
		return dropped("already read")
	}
	readers := append(msg.ReadBy.Clone(), sender.Username())
	if err := r.messages.UpdateReadBy(ctx, msg.ID, readers); err != nil {
		return fmt.Errorf("update read_by: %w", err)
	}
	r.NotifyChannel(ctx, msg.Channel, models.ReadUpdateEvent{
		Type:      models.OutReadUpdate,
		MessageID: msg.ID,
		Channel:   msg.Channel,
		Readers:   readers,
	})
	return nil
}

func (r *Router) handlePin(ctx context.Context, sender *Client, ev models.InboundEvent) error {
	pin := ev.Type == models.EventPin
	msg, err := r.loadMessage(ctx, ev.MessageID)
	if err != nil {
		return err
	}
	if err := r.requireAccess(ctx, sender.Username(), msg.Channel); err != nil {
		return err
	}
	if err := r.authorize(ctx, sender.Username(), msg); err != nil {
		return err
	}
	changed, err := r.messages.SetPinned(ctx, msg.ID, msg.Channel, sender.Username(), pin)
	if err != nil {
		return fmt.Errorf("set pinned: %w", err)
	}
	if !changed {
		return dropped("pin state unchanged")
	}
	r.NotifyChannel(ctx, msg.Channel, models.PinEvent{
		Type:      models.OutMessagePinned,
		MessageID: msg.ID,
		Channel:   msg.Channel,
		Pinned:    pin,
		By:        sender.Username(),
	})
	return nil
}

func (r *Router) handleForward(ctx context.Context, sender *Client, ev models.InboundEvent) error {
	src, err := r.loadMessage(ctx, ev.MessageID)
	if err != nil {
		return err
	}
	if err := r.requireAccess(ctx, sender.Username(), src.Channel); err != nil {
		return err
	}
	target := ev.TargetChannel
	if target == "" {
		target = ev.Channel
	}
	if target == "" {
		return dropped("missing target channel")
	}
	if err := r.requireAccess(ctx, sender.Username(), target); err != nil {
		return err
	}
	origin := src.Username
	if src.ForwardedFrom != nil {
		origin = *src.ForwardedFrom
	}
	return r.publishMessage(ctx, models.Message{
		Username:      sender.Username(),
		Content:       src.Content,
		Channel:       target,
		Links:         src.Links.Clone(),
		Timer:         src.Timer,
		ForwardedFrom: &origin,
	})
}

func (r *Router) handleTyping(ctx context.Context, sender *Client, ev models.InboundEvent) error {
	payload, err := ev.Relay("username", sender.Username())
	if err != nil {
		return dropped("typing frame is not an object")
	}
	if ev.Channel == "" {
		r.hub.Broadcast(payload)
		return nil
	}
	if err := r.requireAccess(ctx, sender.Username(), ev.Channel); err != nil {
		return err
	}
	r.NotifyChannel(ctx, ev.Channel, payload)
	return nil
}

func (r *Router) handleCallSignal(_ context.Context, sender *Client, ev models.InboundEvent) error {
	target := strings.TrimSpace(ev.Target)
	if target == "" {
		return dropped("missing call target")
	}
	payload, err := ev.Relay("from", sender.Username())
	if err != nil {
		return dropped("call frame is not an object")
	}
	if !r.hub.Unicast(target, payload) {
		return dropped("call target offline")
	}
	return nil
}

func (r *Router) handleBan(ctx context.Context, sender *Client, ev models.InboundEvent) error {
	requester := sender.Username()
	target := strings.TrimSpace(ev.Target)
	if target == "" || target == requester {
		return dropped("invalid ban target")
	}
	admin, err := r.users.IsAdmin(ctx, requester)
	if err != nil {
		return fmt.Errorf("check admin: %w", err)
	}
	if !admin {
		return dropped("ban requires admin")
	}
	if _, err := r.users.GetUser(ctx, target); err != nil {
		if errors.Is(err, repositories.ErrUserNotFound) {
			return dropped("ban target not found")
		}
		return fmt.Errorf("load ban target: %w", err)
	}
	if err := r.users.DeleteUser(ctx, target); err != nil {
		return fmt.Errorf("delete user: %w", err)
	}

	r.presence.Evict(target, models.BanEvent{Type: models.OutBan, By: requester})
	r.hub.Broadcast(models.SystemEvent{Type: models.OutSystem, Content: fmt.Sprintf("User %s was banned", target)})
	if r.audit != nil {
		r.audit.Emit(ctx, telemetry.LevelSecurity, fmt.Sprintf("user %s banned by %s", target, requester), sender.Info().RequestID, &requester)
	}
	r.logger.Info("user banned", zap.String("target", target), zap.String("by", requester))
	return nil
}

func (r *Router) handleSpyViewed(ctx context.Context, sender *Client, ev models.InboundEvent) error {
	msg, err := r.loadMessage(ctx, ev.MessageID)
	if err != nil {
		return err
	}
	if msg.Timer <= 0 {
		return dropped("message has no timer")
	}
	if err := r.requireAccess(ctx, sender.Username(), msg.Channel); err != nil {
		return err
	}
	at := r.now()
	won, err := r.messages.MarkViewed(ctx, msg.ID, at)
	if err != nil {
		return fmt.Errorf("mark viewed: %w", err)
	}
	if !won {
		return dropped("already viewed")
	}
	r.NotifyChannel(ctx, msg.Channel, models.SpyStartEvent{
		Type:      models.OutSpyStart,
		MessageID: msg.ID,
		Channel:   msg.Channel,
		StartTime: models.UnixSeconds(at),
		Timer:     msg.Timer,
	})
	return nil
}
