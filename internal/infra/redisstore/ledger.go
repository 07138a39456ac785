package redisstore

import (
	"context"
	"fmt"
	"strings"
	"time"

	"clinic_notification_engine/internal/domain/calendar"
	"clinic_notification_engine/internal/domain/notification"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

const (
	ledgerPrefix   = "sent:"
	pruneScanCount = 200
)

// Ledger records delivered notifications as "sent:{kind}:{identifier}:{date}"
// keys. Every key expires after the retention window; Prune removes keys
// older than a given day without waiting for expiry.
type Ledger struct {
	client    *redis.Client
	retention time.Duration
	logger    *logrus.Entry
	now       func() time.Time
}

func NewLedger(client *redis.Client, retention time.Duration, logger *logrus.Entry) *Ledger {
	return &Ledger{client: client, retention: retention, logger: logger, now: time.Now}
}

func markerKey(m notification.SentMarker) string {
	return ledgerPrefix + string(m.Kind) + ":" + m.Identifier + ":" + m.Date.String()
}

// markerDate extracts the trailing date of a ledger key.
func markerDate(key string) (calendar.Date, bool) {
	i := strings.LastIndexByte(key, ':')
	if i < 0 {
		return calendar.Date{}, false
	}
	d, err := calendar.Parse(key[i+1:], time.UTC)
	if err != nil {
		return calendar.Date{}, false
	}
	return d, true
}

func (l *Ledger) WasSent(ctx context.Context, m notification.SentMarker) (bool, error) {
	n, err := l.client.Exists(ctx, markerKey(m)).Result()
	if err != nil {
		return false, fmt.Errorf("check sent marker: %w", err)
	}
	return n > 0, nil
}

// MarkSent is idempotent; the first write wins.
func (l *Ledger) MarkSent(ctx context.Context, m notification.SentMarker) error {
	_, err := l.client.SetNX(ctx, markerKey(m), l.now().UTC().Format(time.RFC3339), l.retention).Result()
	if err != nil {
		return fmt.Errorf("write sent marker: %w", err)
	}
	return nil
}

// Prune deletes markers whose date is before the given day.
func (l *Ledger) Prune(ctx context.Context, before calendar.Date) (int, error) {
	var (
		cursor  uint64
		removed int
	)
	for {
		keys, next, err := l.client.Scan(ctx, cursor, ledgerPrefix+"*", pruneScanCount).Result()
		if err != nil {
			return removed, fmt.Errorf("scan sent markers: %w", err)
		}

		var stale []string
		for _, key := range keys {
			d, ok := markerDate(key)
			if !ok {
				l.logger.WithField("key", key).Warn("Unreadable ledger key")
				continue
			}
			if d.Before(before) {
				stale = append(stale, key)
			}
		}
		if len(stale) > 0 {
			n, err := l.client.Del(ctx, stale...).Result()
			if err != nil {
				return removed, fmt.Errorf("delete sent markers: %w", err)
			}
			removed += int(n)
		}

		cursor = next
		if cursor == 0 {
			break
		}
	}
	return removed, nil
}
