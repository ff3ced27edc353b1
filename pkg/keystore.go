// Package keystore implements the group-call end-to-end media keystore: a
// per-call object holding the current and upcoming media-encryption keys,
// ratcheting forward through a key-index space, deriving per-frame media
// keys from session keys with HKDF, and notifying subscribers when the
// "current" key rotates.
//
// The keystore performs no AEAD encryption or decryption, transports no
// keys between peers, and persists no state: it accepts already-agreed key
// material from the signalling layer and hands derived keys to an external
// media path.
//
// © 2025 e2ee-keystore authors. MIT License.
package keystore

import (
	"bytes"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/Voskan/e2ee-keystore/internal/kdf"
	"github.com/Voskan/e2ee-keystore/internal/ring"
	"github.com/Voskan/e2ee-keystore/internal/zeroize"
)

// anonCounter names keystores that were not given an explicit WithID.
var anonCounter atomic.Uint64

// Keystore holds the current and upcoming media-encryption keys for one
// call. It is safe for concurrent use by multiple goroutines.
type Keystore struct {
	mu sync.RWMutex

	ring *ring.Ring

	init    bool
	hasKeys bool

	salt []byte

	decryptAttempted  bool
	decryptSuccessful bool

	updateTS int64 // monotonic milliseconds

	listeners []listenerEntry

	logger  *zap.Logger
	metrics metricsSink
	id      string
}

// New returns an empty keystore: uninitialised, no salt, no listeners.
func New(opts ...Option) (*Keystore, error) {
	cfg := defaultConfig()
	if err := applyOptions(cfg, opts); err != nil {
		return nil, err
	}

	id := cfg.id
	if id == "" {
		id = fmt.Sprintf("ks-%d", anonCounter.Add(1))
	}

	ks := &Keystore{
		ring:     ring.New(),
		logger:   cfg.logger,
		metrics:  newMetricsSink(cfg.registry),
		id:       id,
		updateTS: nowMillis(),
	}

	if cfg.salt != nil {
		if err := ks.SetSalt(cfg.salt); err != nil {
			return nil, err
		}
	}

	return ks, nil
}

// ID returns this keystore's diagnostic identifier (metric/log label).
func (ks *Keystore) ID() string { return ks.id }

func nowMillis() int64 { return time.Now().UnixMilli() }

// Close destroys the keystore's secrets: every slot and the salt are
// overwritten with zeros and all listeners are dropped. Safe to call even if
// no salt was ever set, and safe to call more than once. Close does not mark
// the Keystore as closed; later calls operate on the emptied state.
func (ks *Keystore) Close() error {
	ks.mu.Lock()
	defer ks.mu.Unlock()

	ks.ring.Reset()
	if ks.salt != nil {
		zeroize.Bytes(ks.salt)
		ks.salt = nil
	}
	ks.init = false
	ks.hasKeys = false
	ks.decryptAttempted = false
	ks.decryptSuccessful = false
	ks.listeners = nil

	ks.logger.Debug("keystore closed", zap.String("id", ks.id))
	return nil
}

// ResetKeys zeroises all slots and clears current/head/init/has_keys and
// the decrypt flags. Salt and listeners survive.
func (ks *Keystore) ResetKeys() {
	ks.mu.Lock()
	defer ks.mu.Unlock()
	ks.resetKeysLocked()
	ks.logger.Debug("reset_keys", zap.String("id", ks.id))
}

func (ks *Keystore) resetKeysLocked() {
	ks.ring.Reset()
	ks.init = false
	ks.hasKeys = false
	ks.decryptAttempted = false
	ks.decryptSuccessful = false
}

// Reset performs ResetKeys and additionally frees the salt.
func (ks *Keystore) Reset() {
	ks.mu.Lock()
	defer ks.mu.Unlock()
	ks.resetKeysLocked()
	if ks.salt != nil {
		zeroize.Bytes(ks.salt)
		ks.salt = nil
	}
	ks.logger.Debug("reset", zap.String("id", ks.id))
}

// SetSalt replaces the HKDF salt used for all future session/media key
// derivation. The bytes are copied, so the caller's buffer lifetime is
// irrelevant once SetSalt returns.
func (ks *Keystore) SetSalt(salt []byte) error {
	if len(salt) == 0 {
		return wrapErr("set_salt", ErrInvalid)
	}

	ks.mu.Lock()
	defer ks.mu.Unlock()

	if ks.salt != nil {
		zeroize.Bytes(ks.salt)
	}
	ks.salt = append([]byte(nil), salt...)
	ks.updateTS = nowMillis()

	ks.logger.Debug("set_salt", zap.String("id", ks.id), zap.Int("len", len(salt)))
	return nil
}

// SetSessionKey admits a session key under the caller-chosen index,
// implementing the monotonic ratchet with a grace window for retransmits
// and corrections described by the keystore's admission rules.
//
// It returns an error wrapping ErrAlready for a stale index or a
// byte-identical re-admission (not a failure — a signal to skip), and an
// error wrapping ErrFatalInternal if HKDF derivation fails.
func (ks *Keystore) SetSessionKey(index uint32, key []byte) error {
	if len(key) == 0 {
		return wrapErr("set_session_key", ErrInvalid)
	}

	ks.mu.Lock()
	defer ks.mu.Unlock()

	sz := len(key)
	if sz > kdf.SessionKeySize {
		sz = kdf.SessionKeySize
	}

	if ks.init && index < ks.ring.Current().Index {
		ks.logger.Debug("set_session_key ignoring stale index",
			zap.String("id", ks.id), zap.Uint32("index", index),
			zap.Uint32("current", ks.ring.Current().Index))
		ks.metrics.incAdmission(ks.id, outcomeAlready)
		return wrapErr("set_session_key", ErrAlready)
	}

	if pos, ok := ks.ring.FindByIndex(index); ok {
		return ks.admitAtExistingIndexLocked(pos, index, key, sz)
	}

	dest := ks.chooseDestinationLocked(index)
	return ks.admitAtNewDestinationLocked(dest, index, key, sz)
}

// admitAtExistingIndexLocked handles the case where a slot with this index
// already exists: idempotent no-op if the key is unchanged, otherwise the
// newer value overwrites it (a peer re-sent a different key under the same
// index).
func (ks *Keystore) admitAtExistingIndexLocked(pos int, index uint32, key []byte, sz int) error {
	slot := ks.ring.Slot(pos)

	if bytes.Equal(slot.SessionKey[:sz], key[:sz]) {
		ks.metrics.incAdmission(ks.id, outcomeAlready)
		return wrapErr("set_session_key", ErrAlready)
	}

	ks.logger.Debug("set_session_key overwriting changed key at existing index",
		zap.String("id", ks.id), zap.Uint32("index", index))

	zeroize.Array32(&slot.SessionKey)
	copy(slot.SessionKey[:], key[:sz])

	if err := kdf.MediaKey(&slot.MediaKey, slot.SessionKey[:], ks.salt); err != nil {
		ks.logger.Warn("set_session_key media key derivation failed on correction",
			zap.String("id", ks.id), zap.Uint32("index", index), zap.Error(err))
		ks.metrics.incAdmission(ks.id, outcomeFatal)
		return wrapErr("set_session_key", fmt.Errorf("%w: %v", ErrFatalInternal, err))
	}

	ks.updateTS = nowMillis()
	ks.metrics.incAdmission(ks.id, outcomeCorrection)
	return nil
}

// chooseDestinationLocked picks the ring position a brand-new index should
// land on, per the head/current placement rule: an index older than head
// but newer than current is inserted right after current, truncating
// whatever tail followed it; otherwise the index is appended after head.
func (ks *Keystore) chooseDestinationLocked(index uint32) int {
	head := ks.ring.Head()
	if ks.ring.HeadPos() != ks.ring.CurrentPos() && head.Occupied && index < head.Index {
		ks.logger.Warn("set_session_key index older than head, truncating head-side tail",
			zap.String("id", ks.id), zap.Uint32("index", index), zap.Uint32("head", head.Index))
		return ks.ring.Next(ks.ring.CurrentPos())
	}
	return ks.ring.Next(ks.ring.HeadPos())
}

// admitAtNewDestinationLocked writes a freshly admitted key into dest,
// firing listeners on first-key admission before deriving the media key —
// matching the signalling layer's original ordering (the state snapshot a
// first-key listener observes is "current is set" but not yet "occupied").
func (ks *Keystore) admitAtNewDestinationLocked(dest int, index uint32, key []byte, sz int) error {
	slot := ks.ring.Slot(dest)
	zeroize.Array32(&slot.SessionKey)
	copy(slot.SessionKey[:], key[:sz])
	slot.Index = index

	firstKey := false
	if !ks.init {
		ks.ring.SetCurrent(dest)
		ks.init = true
		firstKey = true
		ks.fireListenersLocked()
	}
	ks.ring.SetHead(dest)
	ks.updateTS = nowMillis()

	if err := kdf.MediaKey(&slot.MediaKey, slot.SessionKey[:], ks.salt); err != nil {
		ks.logger.Error("set_session_key media key derivation failed",
			zap.String("id", ks.id), zap.Uint32("index", index), zap.Error(err))
		ks.metrics.incAdmission(ks.id, outcomeFatal)
		return wrapErr("set_session_key", fmt.Errorf("%w: %v", ErrFatalInternal, err))
	}

	slot.Occupied = true
	ks.hasKeys = true
	ks.metrics.incAdmission(ks.id, outcomeOK)
	ks.metrics.setHeadIndex(ks.id, ks.ring.Head().Index)

	ks.logger.Debug("set_session_key",
		zap.String("id", ks.id), zap.Uint32("index", index), zap.Bool("first_key", firstKey))
	return nil
}

// SetFreshSessionKey hashes externally supplied raw key material with HKDF
// (info="cs") before feeding it through SetSessionKey.
func (ks *Keystore) SetFreshSessionKey(index uint32, key, freshSalt []byte) error {
	if len(key) == 0 || len(freshSalt) == 0 {
		return wrapErr("set_fresh_session_key", ErrInvalid)
	}

	var hashed [32]byte
	if err := kdf.FreshSessionKey(&hashed, key, freshSalt); err != nil {
		return wrapErr("set_fresh_session_key", fmt.Errorf("%w: %v", ErrInvalid, err))
	}
	defer zeroize.Array32(&hashed)

	return ks.SetSessionKey(index, hashed[:])
}

// CurrentSessionKey returns the index and session key the sender should
// use right now.
func (ks *Keystore) CurrentSessionKey() (index uint32, key [32]byte, err error) {
	ks.mu.RLock()
	defer ks.mu.RUnlock()

	cur := ks.ring.Current()
	if !cur.Occupied {
		return 0, key, wrapErr("get_current_session_key", ErrNotFound)
	}
	return cur.Index, cur.SessionKey, nil
}

// NextSessionKey previews the upcoming, already-admitted session key before
// its rotation has been signalled. Returns ErrNotFound if head has not
// advanced past current.
func (ks *Keystore) NextSessionKey() (index uint32, key [32]byte, err error) {
	ks.mu.RLock()
	defer ks.mu.RUnlock()

	if ks.ring.HeadPos() == ks.ring.CurrentPos() {
		return 0, key, wrapErr("get_next_session_key", ErrNotFound)
	}
	head := ks.ring.Head()
	if !head.Occupied {
		return 0, key, wrapErr("get_next_session_key", ErrNotFound)
	}
	return head.Index, head.SessionKey, nil
}

// HasKeys reports whether at least one admission has succeeded since the
// last reset.
func (ks *Keystore) HasKeys() bool {
	ks.mu.Lock()
	defer ks.mu.Unlock()
	return ks.hasKeys
}

// SetDecryptAttempted latches the decrypt-attempted flag, exposed by the
// media receiver for UI liveness.
func (ks *Keystore) SetDecryptAttempted() {
	ks.mu.Lock()
	defer ks.mu.Unlock()
	ks.decryptAttempted = true
}

// SetDecryptSuccessful latches the decrypt-successful flag.
func (ks *Keystore) SetDecryptSuccessful() {
	ks.mu.Lock()
	defer ks.mu.Unlock()
	ks.decryptSuccessful = true
}

// DecryptStates returns a snapshot of the decrypt-attempted and
// decrypt-successful flags.
func (ks *Keystore) DecryptStates() (attempted, successful bool) {
	ks.mu.Lock()
	defer ks.mu.Unlock()
	return ks.decryptAttempted, ks.decryptSuccessful
}

// MaxKeyIndex returns the head slot's index, or 0 if nothing has been
// admitted yet — callers must consult HasKeys to disambiguate a genuine
// index-0 generation from an empty keystore.
func (ks *Keystore) MaxKeyIndex() uint32 {
	ks.mu.RLock()
	defer ks.mu.RUnlock()
	return ks.ring.Head().Index
}

// Current returns the current slot's index and the timestamp of the last
// state-changing admission. Returns ErrNotFound if not yet initialised.
func (ks *Keystore) Current() (index uint32, updateTS int64, err error) {
	ks.mu.RLock()
	defer ks.mu.RUnlock()

	cur := ks.ring.Current()
	if !cur.Occupied {
		return 0, 0, wrapErr("get_current", ErrNotFound)
	}
	return cur.Index, ks.updateTS, nil
}
