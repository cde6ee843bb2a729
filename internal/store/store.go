package store

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/identifyhq/identify/internal/telemetry"
)

// Stable keys for client-side durable state.
const (
	deviceKey   = "identify.device_id"
	scorePrefix = "identify.impatience."
)

// Record is the persisted impatience state for one device.
type Record struct {
	Score       float64   `json:"score"`
	LastUpdated time.Time `json:"last_updated"`
}

// Store maps a device id to its impatience record on top of a KV backend.
// Reads fall back to defaults and writes degrade to logged no-ops when the
// backend is unavailable, so the store never blocks orchestration.
type Store struct {
	kv     KV
	logger *slog.Logger

	mu       sync.Mutex
	deviceID string // cached so repeated calls stay idempotent even when the KV is down
}

// New creates a store. A non-empty deviceID pins the device identity
// instead of reading or generating one (injected configuration override).
func New(kv KV, deviceID string, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{kv: kv, deviceID: deviceID, logger: logger}
}

// DeviceID returns the stable device identifier, generating and persisting
// one on first use. Repeated calls return the same id. Storage failures
// degrade to a process-lifetime id.
func (s *Store) DeviceID(ctx context.Context) string {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.deviceID != "" {
		return s.deviceID
	}

	if v, ok, err := s.kv.Get(ctx, deviceKey); err != nil {
		s.logger.Warn("device id read failed, generating ephemeral id", "error", err)
	} else if ok && v != "" {
		s.deviceID = v
		return s.deviceID
	}

	s.deviceID = uuid.New().String()
	if err := s.kv.Set(ctx, deviceKey, s.deviceID); err != nil {
		s.logger.Warn("device id write failed, id will not survive restart", "error", err)
	}
	return s.deviceID
}

// Score returns the stored impatience score for deviceID, or the bootstrap
// default when absent, corrupt, or unreadable.
func (s *Store) Score(ctx context.Context, deviceID string) float64 {
	v, ok, err := s.kv.Get(ctx, scorePrefix+deviceID)
	if err != nil {
		s.logger.Warn("score read failed, using default", "device_id", deviceID, "error", err)
		return telemetry.DefaultScore
	}
	if !ok {
		return telemetry.DefaultScore
	}

	var rec Record
	if err := json.Unmarshal([]byte(v), &rec); err != nil {
		s.logger.Warn("score record corrupt, using default", "device_id", deviceID, "error", err)
		return telemetry.DefaultScore
	}
	if rec.Score < 0 || rec.Score > 1 {
		return telemetry.DefaultScore
	}
	return rec.Score
}

// SetScore overwrites the impatience record for deviceID, last-write-wins.
// The write is best-effort: failures are logged and swallowed.
func (s *Store) SetScore(ctx context.Context, deviceID string, score float64) {
	rec := Record{
		Score:       telemetry.Clamp(score),
		LastUpdated: time.Now().UTC(),
	}
	data, err := json.Marshal(rec)
	if err != nil {
		s.logger.Warn("score record marshal failed", "device_id", deviceID, "error", err)
		return
	}
	if err := s.kv.Set(ctx, scorePrefix+deviceID, string(data)); err != nil {
		s.logger.Warn("score write failed", "device_id", deviceID, "score", rec.Score, "error", err)
		return
	}
	s.logger.Debug("score persisted", "device_id", deviceID, "score", rec.Score)
}
