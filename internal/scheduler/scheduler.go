// Package scheduler contains the dispatch loop: it drains the campaign queue
// one recipient at a time, oldest first across all active campaigns, pacing
// sends so the traffic profile looks like a person working through a list
// rather than a burst sender.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/lalithlochan/courier/internal/compose"
	"github.com/lalithlochan/courier/internal/db"
	"github.com/lalithlochan/courier/internal/events"
	"github.com/lalithlochan/courier/internal/gateway"
	"github.com/lalithlochan/courier/internal/metrics"
	"github.com/lalithlochan/courier/internal/quota"
)

// Store is the queue and log surface the dispatch loop needs. *db.Repository
// satisfies it.
type Store interface {
	NextPendingItem(ctx context.Context) (*db.QueueItem, error)
	ContactByID(ctx context.Context, id uuid.UUID) (*db.Contact, error)
	CampaignByID(ctx context.Context, id uuid.UUID) (*db.Campaign, error)
	TemplateByID(ctx context.Context, id uuid.UUID) (*db.Template, error)
	VariationsByTemplate(ctx context.Context, templateID uuid.UUID) ([]db.TemplateVariation, error)
	UpdateQueueItemStatus(ctx context.Context, id uuid.UUID, status string) error
	AppendDeliveryLog(ctx context.Context, entry *db.DeliveryLog) error
	PendingCount(ctx context.Context, campaignID uuid.UUID) (int, error)
	PendingTotal(ctx context.Context) (int, error)
	SetCampaignStatus(ctx context.Context, id uuid.UUID, status string) error
	PauseActiveCampaigns(ctx context.Context) ([]uuid.UUID, error)
	CompleteDrainedCampaigns(ctx context.Context) ([]uuid.UUID, error)
}

// Config holds the pacing knobs. Zero values fall back to the defaults the
// product shipped with; tests shrink them to milliseconds.
type Config struct {
	MinMessageDelay time.Duration // delay before each send, lower bound
	MaxMessageDelay time.Duration // delay before each send, upper bound
	MinBatchSize    int           // successful sends before an extended pause, lower bound
	MaxBatchSize    int           // successful sends before an extended pause, upper bound
	MinLongPause    time.Duration // extended pause, lower bound
	MaxLongPause    time.Duration // extended pause, upper bound
	SendTimeout     time.Duration // per-send gateway deadline
}

func (c Config) withDefaults() Config {
	if c.MinMessageDelay == 0 {
		c.MinMessageDelay = 8 * time.Second
	}
	if c.MaxMessageDelay == 0 {
		c.MaxMessageDelay = 25 * time.Second
	}
	if c.MinBatchSize == 0 {
		c.MinBatchSize = 5
	}
	if c.MaxBatchSize == 0 {
		c.MaxBatchSize = 7
	}
	if c.MinLongPause == 0 {
		c.MinLongPause = 1 * time.Minute
	}
	if c.MaxLongPause == 0 {
		c.MaxLongPause = 3 * time.Minute
	}
	if c.SendTimeout == 0 {
		c.SendTimeout = 30 * time.Second
	}
	return c
}

// Scheduler runs at most one dispatch loop at a time. Start and Stop are safe
// to call from any goroutine; the loop itself only checks for stop at safe
// points, so an in-flight send always reaches a terminal status.
type Scheduler struct {
	store    Store
	quota    *quota.Tracker
	composer *compose.Composer
	gw       gateway.Gateway
	sink     events.Sink
	logger   *zap.Logger
	rng      *rand.Rand
	config   Config

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
}

// New creates a scheduler. A nil rng gets a time-seeded one; tests pass a
// fixed seed for deterministic pacing draws.
func New(store Store, tracker *quota.Tracker, composer *compose.Composer, gw gateway.Gateway, sink events.Sink, cfg Config, logger *zap.Logger, rng *rand.Rand) *Scheduler {
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	if sink == nil {
		sink = events.NewZapSink(logger)
	}
	return &Scheduler{
		store:    store,
		quota:    tracker,
		composer: composer,
		gw:       gw,
		sink:     sink,
		logger:   logger,
		rng:      rng,
		config:   cfg.withDefaults(),
	}
}

// Start launches the dispatch loop. Calling Start while a loop is already
// running is a no-op; there is never more than one loop draining the queue.
func (s *Scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		s.logger.Debug("dispatch already running, start ignored")
		return
	}
	s.running = true
	s.stopCh = make(chan struct{})

	go s.run(s.stopCh)
}

// Stop signals the loop to halt at the next safe point. The item being
// processed, if any, still reaches sent or failed; everything after it stays
// pending. Stop is idempotent.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return
	}
	s.running = false
	close(s.stopCh)
}

// Running reports whether a dispatch loop is active.
func (s *Scheduler) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// halt clears the running flag when the loop exits on its own (queue drained,
// quota reached, internal error). Safe against a concurrent Stop.
func (s *Scheduler) halt() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.running = false
}

func (s *Scheduler) run(stopCh chan struct{}) {
	defer s.halt()

	ctx := context.Background()

	s.publishStatus(ctx, events.StatusRunning, nil)
	s.logger.Info("dispatch loop started")

	breakAfter := s.batchThreshold()
	sent := 0

	for {
		if stopped(stopCh) {
			s.publishStatus(ctx, events.StatusStopped, nil)
			s.logger.Info("dispatch loop stopped")
			return
		}

		count, err := s.quota.TodayCount(ctx)
		if err != nil {
			s.logger.Error("quota check failed", zap.Error(err))
			s.publishStatus(ctx, events.StatusStopped, nil)
			return
		}
		metrics.SetQuota(count, s.quota.Limit())
		if count >= s.quota.Limit() {
			paused, err := s.store.PauseActiveCampaigns(ctx)
			if err != nil {
				s.logger.Error("failed to pause campaigns at quota", zap.Error(err))
			}
			s.logger.Info("daily limit reached",
				zap.Int("limit", s.quota.Limit()),
				zap.Int("campaigns_paused", len(paused)),
			)
			s.publishStatus(ctx, events.StatusLimitReached, nil)
			return
		}

		item, err := s.store.NextPendingItem(ctx)
		if err != nil {
			s.logger.Error("failed to fetch next queue item", zap.Error(err))
			s.publishStatus(ctx, events.StatusStopped, nil)
			return
		}
		if item == nil {
			completed, err := s.store.CompleteDrainedCampaigns(ctx)
			if err != nil {
				s.logger.Error("failed to complete drained campaigns", zap.Error(err))
			}
			for _, id := range completed {
				cid := id
				s.sink.Publish(ctx, events.Event{
					Kind:       events.KindStatus,
					Status:     events.StatusCompleted,
					CampaignID: &cid,
					At:         time.Now().UTC(),
				})
			}
			s.publishStatus(ctx, events.StatusIdle, nil)
			s.logger.Info("queue drained, dispatch loop exiting")
			return
		}

		if sent >= breakAfter {
			pause := s.longPause()
			metrics.RecordExtendedPause()
			s.publishStatus(ctx, events.StatusPaused, nil)
			s.publishSystem(ctx, "taking a break for "+pause.Round(time.Second).String())
			s.logger.Info("extended pause", zap.Duration("pause", pause))

			if !s.sleep(stopCh, pause) {
				s.publishStatus(ctx, events.StatusStopped, nil)
				s.logger.Info("dispatch loop stopped during pause")
				return
			}
			sent = 0
			breakAfter = s.batchThreshold()
			s.publishStatus(ctx, events.StatusRunning, nil)
		}

		outcome := s.processItem(ctx, stopCh, item)
		switch outcome {
		case itemStopped:
			s.publishStatus(ctx, events.StatusStopped, nil)
			s.logger.Info("dispatch loop stopped")
			return
		case itemSent:
			sent++
		}

		s.publishQueueDepth(ctx)
		if outcome != itemStopped {
			s.completeCampaignIfDrained(ctx, item.CampaignID)
		}
	}
}

type itemOutcome int

const (
	itemSent itemOutcome = iota
	itemFailed
	itemStopped
)

// processItem takes one queue item to a terminal status, or leaves it pending
// when the loop is stopped before the send begins.
func (s *Scheduler) processItem(ctx context.Context, stopCh chan struct{}, item *db.QueueItem) itemOutcome {
	contact, err := s.store.ContactByID(ctx, item.ContactID)
	if err != nil {
		s.logger.Error("failed to load contact", zap.Error(err), zap.String("item_id", item.ID.String()))
		return s.failItem(ctx, item, nil, "contact lookup failed: "+err.Error())
	}
	if contact == nil {
		return s.failItem(ctx, item, nil, "contact no longer exists")
	}

	campaign := item.CampaignID
	tmpl, variations, err := s.loadTemplate(ctx, campaign)
	if err != nil {
		return s.failItem(ctx, item, contact, err.Error())
	}

	body := s.composer.Compose(tmpl, variations, contact)
	recipient := gateway.NormalizeRecipient(contact.Phone)
	mediaPath := ""
	if tmpl.MediaPath != nil {
		mediaPath = *tmpl.MediaPath
	}

	delay := s.messageDelay()
	metrics.RecordPacingDelay(delay)
	s.publishSystem(ctx, "waiting "+delay.Round(time.Second).String()+" before next message")

	if !s.sleep(stopCh, delay) {
		// Leave the item pending so a later run picks it up.
		return itemStopped
	}

	sendCtx, cancel := context.WithTimeout(ctx, s.config.SendTimeout)
	err = s.gw.Send(sendCtx, recipient, body, mediaPath)
	cancel()

	if err != nil {
		s.logger.Warn("send failed",
			zap.String("contact", contact.Phone),
			zap.String("campaign_id", campaign.String()),
			zap.Error(err),
		)
		outcome := s.failItem(ctx, item, contact, err.Error())
		if !s.gw.Ready() {
			s.publishStatus(ctx, events.StatusDisconnected, &campaign)
		}
		return outcome
	}

	if err := s.store.UpdateQueueItemStatus(ctx, item.ID, db.ItemSent); err != nil {
		s.logger.Error("failed to mark item sent", zap.Error(err), zap.String("item_id", item.ID.String()))
	}
	s.appendLog(ctx, item, db.OutcomeSent, nil)
	metrics.RecordSend(db.OutcomeSent)

	s.logger.Info("message sent",
		zap.String("contact", contact.Phone),
		zap.String("campaign_id", campaign.String()),
	)
	s.sink.Publish(ctx, events.Event{
		Kind:       events.KindOutcome,
		Outcome:    db.OutcomeSent,
		Contact:    contact.Phone,
		CampaignID: &campaign,
		At:         time.Now().UTC(),
	})
	return itemSent
}

func (s *Scheduler) loadTemplate(ctx context.Context, campaignID uuid.UUID) (*db.Template, []db.TemplateVariation, error) {
	campaign, err := s.store.CampaignByID(ctx, campaignID)
	if err != nil {
		return nil, nil, fmt.Errorf("campaign lookup failed: %w", err)
	}
	if campaign == nil || campaign.TemplateID == nil {
		return nil, nil, errors.New("campaign has no template assigned")
	}
	tmpl, err := s.store.TemplateByID(ctx, *campaign.TemplateID)
	if err != nil {
		return nil, nil, fmt.Errorf("template lookup failed: %w", err)
	}
	if tmpl == nil {
		return nil, nil, errors.New("template no longer exists")
	}
	variations, err := s.store.VariationsByTemplate(ctx, tmpl.ID)
	if err != nil {
		s.logger.Warn("failed to load variations, using base body", zap.Error(err))
		variations = nil
	}
	return tmpl, variations, nil
}

// failItem marks the queue item failed and records the outcome. The rest of
// the queue is untouched; one bad recipient never stalls a campaign.
func (s *Scheduler) failItem(ctx context.Context, item *db.QueueItem, contact *db.Contact, reason string) itemOutcome {
	if err := s.store.UpdateQueueItemStatus(ctx, item.ID, db.ItemFailed); err != nil {
		s.logger.Error("failed to mark item failed", zap.Error(err), zap.String("item_id", item.ID.String()))
	}
	s.appendLog(ctx, item, db.OutcomeFailed, &reason)
	metrics.RecordSend(db.OutcomeFailed)

	campaignID := item.CampaignID
	phone := ""
	if contact != nil {
		phone = contact.Phone
	}
	s.sink.Publish(ctx, events.Event{
		Kind:       events.KindOutcome,
		Outcome:    db.OutcomeFailed,
		Contact:    phone,
		CampaignID: &campaignID,
		Error:      reason,
		At:         time.Now().UTC(),
	})
	return itemFailed
}

func (s *Scheduler) appendLog(ctx context.Context, item *db.QueueItem, outcome string, errMsg *string) {
	contactID := item.ContactID
	campaignID := item.CampaignID
	entry := &db.DeliveryLog{
		ContactID:  &contactID,
		CampaignID: &campaignID,
		Outcome:    outcome,
		Error:      errMsg,
	}
	if err := s.store.AppendDeliveryLog(ctx, entry); err != nil {
		s.logger.Error("failed to append delivery log", zap.Error(err))
	}
}

func (s *Scheduler) completeCampaignIfDrained(ctx context.Context, campaignID uuid.UUID) {
	remaining, err := s.store.PendingCount(ctx, campaignID)
	if err != nil {
		s.logger.Error("failed to count pending items", zap.Error(err), zap.String("campaign_id", campaignID.String()))
		return
	}
	if remaining > 0 {
		return
	}
	if err := s.store.SetCampaignStatus(ctx, campaignID, db.CampaignCompleted); err != nil {
		s.logger.Error("failed to complete campaign", zap.Error(err), zap.String("campaign_id", campaignID.String()))
		return
	}
	s.logger.Info("campaign completed", zap.String("campaign_id", campaignID.String()))
	cid := campaignID
	s.sink.Publish(ctx, events.Event{
		Kind:       events.KindStatus,
		Status:     events.StatusCompleted,
		CampaignID: &cid,
		At:         time.Now().UTC(),
	})
}

func (s *Scheduler) publishStatus(ctx context.Context, status events.Status, campaignID *uuid.UUID) {
	s.sink.Publish(ctx, events.Event{
		Kind:       events.KindStatus,
		Status:     status,
		CampaignID: campaignID,
		At:         time.Now().UTC(),
	})
}

func (s *Scheduler) publishSystem(ctx context.Context, msg string) {
	s.sink.Publish(ctx, events.Event{
		Kind:    events.KindSystem,
		Message: msg,
		At:      time.Now().UTC(),
	})
}

func (s *Scheduler) publishQueueDepth(ctx context.Context) {
	depth, err := s.store.PendingTotal(ctx)
	if err != nil {
		s.logger.Error("failed to read queue depth", zap.Error(err))
		return
	}
	metrics.SetQueueDepth(depth)
	s.sink.Publish(ctx, events.Event{
		Kind:       events.KindQueue,
		QueueDepth: depth,
		At:         time.Now().UTC(),
	})
}

// sleep waits for d or until the loop is stopped, whichever comes first. It
// returns false when stopped.
func (s *Scheduler) sleep(stopCh chan struct{}, d time.Duration) bool {
	tmr := time.NewTimer(d)
	defer tmr.Stop()
	select {
	case <-stopCh:
		return false
	case <-tmr.C:
		return true
	}
}

func stopped(stopCh chan struct{}) bool {
	select {
	case <-stopCh:
		return true
	default:
		return false
	}
}
