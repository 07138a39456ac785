// internal/infra/notifcenter/center.go
package notifcenter

import (
	"context"
	"fmt"
	"html"
	"sort"
	"sync"
	"time"

	"clinic_notification_engine/internal/domain/notification"
	"clinic_notification_engine/internal/domain/telegram"

	"github.com/sirupsen/logrus"
	"gopkg.in/telebot.v3"
)

// MaxSendAttempts bounds retries of one delivery before it is dropped.
const MaxSendAttempts = 3

type entry struct {
	delivery notification.PendingDelivery
	failures int
}

// LocalCenter is the pending-delivery list of this device. Due entries are
// sent to one Telegram chat and recorded in the ledger.
type LocalCenter struct {
	mu      sync.Mutex
	pending map[string]*entry
	max     int

	client telegram.Client
	chatID int64
	ledger notification.Ledger
	logger *logrus.Entry
	now    func() time.Time
}

func NewLocalCenter(client telegram.Client, chatID int64, ledger notification.Ledger, maxPending int, logger *logrus.Entry) *LocalCenter {
	return &LocalCenter{
		pending: make(map[string]*entry),
		max:     maxPending,
		client:  client,
		chatID:  chatID,
		ledger:  ledger,
		logger:  logger,
		now:     time.Now,
	}
}

// Schedule adds d, replacing any entry with the same identifier. A new
// identifier is rejected once the center is full.
func (c *LocalCenter) Schedule(_ context.Context, d notification.PendingDelivery) error {
	if d.Identifier == "" {
		return fmt.Errorf("%w: empty identifier", notification.ErrDeliveryRejected)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.pending[d.Identifier]; !exists && len(c.pending) >= c.max {
		return fmt.Errorf("%w: %d deliveries already pending", notification.ErrDeliveryRejected, len(c.pending))
	}
	c.pending[d.Identifier] = &entry{delivery: d}
	return nil
}

// Cancel ignores unknown identifiers.
func (c *LocalCenter) Cancel(_ context.Context, ids []string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, id := range ids {
		delete(c.pending, id)
	}
	return nil
}

// ListPending returns entries ordered by trigger time.
func (c *LocalCenter) ListPending(context.Context) ([]notification.PendingDelivery, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]notification.PendingDelivery, 0, len(c.pending))
	for _, e := range c.pending {
		out = append(out, e.delivery)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].TriggerAt.Equal(out[j].TriggerAt) {
			return out[i].TriggerAt.Before(out[j].TriggerAt)
		}
		return out[i].Identifier < out[j].Identifier
	})
	return out, nil
}

// DispatchDue sends every entry whose trigger time has come and returns how
// many were delivered.
func (c *LocalCenter) DispatchDue(ctx context.Context) int {
	now := c.now()

	c.mu.Lock()
	var due []*entry
	for _, e := range c.pending {
		if !e.delivery.TriggerAt.After(now) {
			due = append(due, e)
		}
	}
	c.mu.Unlock()

	sort.Slice(due, func(i, j int) bool { return due[i].delivery.TriggerAt.Before(due[j].delivery.TriggerAt) })

	sent := 0
	for _, e := range due {
		if ctx.Err() != nil {
			break
		}
		if c.dispatch(ctx, e) {
			sent++
		}
	}
	return sent
}

func (c *LocalCenter) dispatch(ctx context.Context, e *entry) bool {
	d := e.delivery
	log := c.logger.WithFields(logrus.Fields{"identifier": d.Identifier, "kind": d.Kind, "date": d.Date.String()})

	already, err := c.ledger.WasSent(ctx, d.Marker())
	if err != nil {
		log.WithError(err).Warn("Ledger unavailable; retrying delivery on next tick")
		return false
	}
	if already {
		log.Info("Delivery already recorded as sent; dropping")
		c.remove(e)
		return false
	}

	if err := c.client.SendMessage(c.chatID, render(d), &telebot.SendOptions{ParseMode: telebot.ModeHTML}); err != nil {
		c.mu.Lock()
		e.failures++
		failures := e.failures
		c.mu.Unlock()
		if failures >= MaxSendAttempts {
			log.WithError(err).WithField("attempts", failures).Error("Delivery failed repeatedly; dropping")
			c.remove(e)
		} else {
			log.WithError(err).WithField("attempts", failures).Warn("Delivery failed; will retry")
		}
		return false
	}

	if err := c.ledger.MarkSent(ctx, d.Marker()); err != nil {
		log.WithError(err).Error("Delivered but could not record it in the ledger")
	}
	c.remove(e)
	log.Info("Notification delivered")
	return true
}

// remove deletes e unless it was replaced while being dispatched.
func (c *LocalCenter) remove(e *entry) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if cur, ok := c.pending[e.delivery.Identifier]; ok && cur == e {
		delete(c.pending, e.delivery.Identifier)
	}
}

func render(d notification.PendingDelivery) string {
	if d.Title == "" {
		return html.EscapeString(d.Body)
	}
	return "<b>" + html.EscapeString(d.Title) + "</b>\n" + html.EscapeString(d.Body)
}

// Run dispatches due entries every interval until ctx is done.
func (c *LocalCenter) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	c.logger.WithField("interval", interval.String()).Info("Dispatch loop started")
	for {
		select {
		case <-ctx.Done():
			c.logger.Info("Dispatch loop stopped")
			return
		case <-ticker.C:
			c.DispatchDue(ctx)
		}
	}
}
