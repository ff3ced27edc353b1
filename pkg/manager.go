package keystore

// manager.go implements the process-wide layering a signalling service
// needs on top of a bare Keystore: one instance per call ID, created on
// first use. Manager deduplicates concurrent creation races with
// singleflight so two goroutines racing to set up the same call never
// construct two separate keystores.
//
// © 2025 e2ee-keystore authors. MIT License.

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// Manager owns one Keystore per call ID and hands out shared references to
// concurrent callers racing to create the same call's keystore.
type Manager struct {
	mu    sync.RWMutex
	calls map[string]*Keystore

	group singleflight.Group

	logger   *zap.Logger
	registry *prometheus.Registry
}

// NewManager returns an empty Manager. opts configure every keystore the
// Manager subsequently creates via GetOrCreate.
func NewManager(opts ...ManagerOption) *Manager {
	m := &Manager{
		calls:  make(map[string]*Keystore),
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithManagerLogger plugs an external zap.Logger, used both by the Manager
// and passed through to every keystore it creates.
func WithManagerLogger(l *zap.Logger) ManagerOption {
	return func(m *Manager) {
		if l != nil {
			m.logger = l
		}
	}
}

// WithManagerMetrics enables Prometheus metrics on every keystore the
// Manager creates.
func WithManagerMetrics(reg *prometheus.Registry) ManagerOption {
	return func(m *Manager) {
		m.registry = reg
	}
}

// Get returns the keystore for callID, if one already exists.
func (m *Manager) Get(callID string) (*Keystore, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ks, ok := m.calls[callID]
	return ks, ok
}

// GetOrCreate returns the existing keystore for callID, or creates one.
// Concurrent calls for the same callID are deduplicated: only one caller
// constructs the Keystore, the rest observe the same instance.
func (m *Manager) GetOrCreate(callID string) (*Keystore, error) {
	if ks, ok := m.Get(callID); ok {
		return ks, nil
	}

	v, err, _ := m.group.Do(callID, func() (any, error) {
		if ks, ok := m.Get(callID); ok {
			return ks, nil
		}

		ks, err := New(WithID(callID), WithLogger(m.logger), WithMetrics(m.registry))
		if err != nil {
			return nil, err
		}

		m.mu.Lock()
		m.calls[callID] = ks
		m.mu.Unlock()

		m.logger.Debug("manager: created keystore", zap.String("call_id", callID))
		return ks, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Keystore), nil
}

// Close destroys and forgets the keystore for callID. A no-op if none
// exists.
func (m *Manager) Close(callID string) error {
	m.mu.Lock()
	ks, ok := m.calls[callID]
	delete(m.calls, callID)
	m.mu.Unlock()

	if !ok {
		return nil
	}
	return ks.Close()
}

// CallSnapshot is a diagnostic view of one call's keystore, suitable for
// JSON encoding by the inspector CLI or a debug HTTP handler.
type CallSnapshot struct {
	CallID   string `json:"call_id"`
	Index    uint32 `json:"index"`
	UpdateTS int64  `json:"update_ts"`
	HasKeys  bool   `json:"has_keys"`
}

// Snapshot returns a diagnostic view of every call the Manager currently
// tracks.
func (m *Manager) Snapshot() []CallSnapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]CallSnapshot, 0, len(m.calls))
	for callID, ks := range m.calls {
		index, ts, err := ks.Current()
		snap := CallSnapshot{
			CallID:  callID,
			HasKeys: ks.HasKeys(),
		}
		if err == nil {
			snap.Index, snap.UpdateTS = index, ts
		}
		out = append(out, snap)
	}
	return out
}
