package redisstore

import (
	"context"
	"fmt"
	"strconv"

	"clinic_notification_engine/internal/infra/config"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// SettingsStore keeps the device settings in one Redis hash.
type SettingsStore struct {
	client *redis.Client
	key    string
	logger *logrus.Entry
}

func NewSettingsStore(client *redis.Client, key string, logger *logrus.Entry) *SettingsStore {
	return &SettingsStore{client: client, key: key, logger: logger}
}

// Load resolves the stored values over the defaults.
func (s *SettingsStore) Load(ctx context.Context) (config.Settings, error) {
	kv, err := s.client.HGetAll(ctx, s.key).Result()
	if err != nil {
		return config.Settings{}, fmt.Errorf("read settings: %w", err)
	}
	settings, problems := config.ResolveSettings(kv)
	for _, p := range problems {
		s.logger.WithError(p).Warn("Invalid stored setting; using default")
	}
	return settings, nil
}

func (s *SettingsStore) Set(ctx context.Context, values map[string]string) error {
	if len(values) == 0 {
		return nil
	}
	if err := s.client.HSet(ctx, s.key, pairs(values)...).Err(); err != nil {
		return fmt.Errorf("write settings: %w", err)
	}
	return nil
}

// Migrate fills absent keys with defaults and stamps the schema version.
// Existing values are never overwritten. Returns the number of keys added.
func (s *SettingsStore) Migrate(ctx context.Context) (int, error) {
	defaults := config.DefaultSettings().KV()
	delete(defaults, config.KeySchemaVersion)

	pipe := s.client.TxPipeline()
	cmds := make([]*redis.BoolCmd, 0, len(defaults))
	for k, v := range defaults {
		cmds = append(cmds, pipe.HSetNX(ctx, s.key, k, v))
	}
	pipe.HSet(ctx, s.key, config.KeySchemaVersion, strconv.Itoa(config.SettingsSchemaVersion))
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, fmt.Errorf("migrate settings: %w", err)
	}

	added := 0
	for _, c := range cmds {
		if c.Val() {
			added++
		}
	}
	if added > 0 {
		s.logger.WithFields(logrus.Fields{"added": added, "version": config.SettingsSchemaVersion}).Info("Settings migrated")
	}
	return added, nil
}

func pairs(values map[string]string) []any {
	out := make([]any, 0, len(values)*2)
	for k, v := range values {
		out = append(out, k, v)
	}
	return out
}
