package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/learngate/apiserver/types"
	"github.com/redis/go-redis/v9"
)

// SettingsReader reads the externally-owned institution settings for a
// user. Implementations must be total: missing or malformed settings
// report ok = false, never an error.
type SettingsReader interface {
	Institution(ctx context.Context, userID int) (types.InstitutionSettings, bool)
}

// RedisSettingsReader reads institution settings blobs from the shared
// settings store. The blobs are written by the institution service; this
// server never writes them.
type RedisSettingsReader struct {
	client *redis.Client
}

func NewRedisSettingsReader(client *redis.Client) *RedisSettingsReader {
	return &RedisSettingsReader{client: client}
}

func settingsKey(userID int) string {
	return fmt.Sprintf("institution:%d", userID)
}

func (r *RedisSettingsReader) Institution(ctx context.Context, userID int) (types.InstitutionSettings, bool) {
	raw, err := r.client.Get(ctx, settingsKey(userID)).Result()
	if err != nil {
		// redis.Nil (no settings) and transport errors both resolve to
		// "no institution functions"; the store is advisory.
		return types.InstitutionSettings{}, false
	}
	var settings types.InstitutionSettings
	if err := json.Unmarshal([]byte(raw), &settings); err != nil {
		return types.InstitutionSettings{}, false
	}
	return settings, true
}

// MemorySettingsReader is an in-process SettingsReader for tests.
type MemorySettingsReader struct {
	mu       sync.RWMutex
	settings map[int]types.InstitutionSettings
}

func NewMemorySettingsReader() *MemorySettingsReader {
	return &MemorySettingsReader{settings: make(map[int]types.InstitutionSettings)}
}

// Put seeds settings for a user.
func (m *MemorySettingsReader) Put(userID int, settings types.InstitutionSettings) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.settings[userID] = settings
}

func (m *MemorySettingsReader) Institution(ctx context.Context, userID int) (types.InstitutionSettings, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	settings, ok := m.settings[userID]
	return settings, ok
}
