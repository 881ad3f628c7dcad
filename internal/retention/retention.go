package retention

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/adhocore/gronx"
	"go.uber.org/zap"

	"chat-server/internal/models"
	"chat-server/internal/observability"
	"chat-server/internal/repositories"
)

// DefaultSchedule sweeps once a minute.
const DefaultSchedule = "* * * * *"

// Notifier fans an event out to a channel's audience.
type Notifier interface {
	NotifyChannel(ctx context.Context, channel string, payload any) int
}

// Sweeper deletes self-destruct messages whose timer ran out after the first
// view and tells the channel about each deletion.
type Sweeper struct {
	messages repositories.MessageRepository
	notifier Notifier
	schedule string
	now      func() time.Time
	logger   *zap.Logger
}

func New(messages repositories.MessageRepository, notifier Notifier, schedule string, logger *zap.Logger) (*Sweeper, error) {
	if schedule == "" {
		schedule = DefaultSchedule
	}
	if !gronx.IsValid(schedule) {
		return nil, fmt.Errorf("invalid retention schedule: %q", schedule)
	}
	return &Sweeper{
		messages: messages,
		notifier: notifier,
		schedule: schedule,
		now:      time.Now,
		logger:   logger,
	}, nil
}

// Start runs the sweep on schedule until ctx is done or the returned cancel
// func is called.
func (s *Sweeper) Start(ctx context.Context) context.CancelFunc {
	ctx, cancel := context.WithCancel(ctx)
	go s.run(ctx)
	s.logger.Info("retention sweeper started", zap.String("schedule", s.schedule))
	return cancel
}

func (s *Sweeper) run(ctx context.Context) {
	for {
		next, err := gronx.NextTickAfter(s.schedule, s.now().UTC(), false)
		if err != nil {
			s.logger.Error("retention next tick", zap.String("schedule", s.schedule), zap.Error(err))
			next = s.now().Add(30 * time.Second)
		}

		timer := time.NewTimer(time.Until(next))
		select {
		case <-ctx.Done():
			timer.Stop()
			s.logger.Info("retention sweeper stopping")
			return
		case <-timer.C:
		}

		if n, err := s.RunOnce(ctx); err != nil {
			s.logger.Error("retention sweep failed", zap.Error(err))
		} else if n > 0 {
			s.logger.Info("retention sweep", zap.Int("purged", n))
		}
	}
}

// RunOnce purges every expired message and returns how many were removed.
func (s *Sweeper) RunOnce(ctx context.Context) (int, error) {
	expired, err := s.messages.ListExpired(ctx, s.now())
	if err != nil {
		return 0, fmt.Errorf("list expired: %w", err)
	}

	purged := 0
	for _, msg := range expired {
		if err := s.messages.DeleteMessage(ctx, msg.ID); err != nil {
			if errors.Is(err, repositories.ErrMessageNotFound) {
				continue
			}
			return purged, fmt.Errorf("delete message %d: %w", msg.ID, err)
		}
		purged++
		s.notifier.NotifyChannel(ctx, msg.Channel, models.DeleteEvent{
			Type:      models.OutDelete,
			MessageID: msg.ID,
			Channel:   msg.Channel,
		})
	}
	observability.AddRetentionPurged(purged)
	return purged, nil
}
