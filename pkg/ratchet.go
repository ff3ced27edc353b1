package keystore

// ratchet.go implements the forward-ratchet operations: explicit Rotate,
// on-demand MediaKey derivation, and the internal ratchetToIndex helper
// they share.
//
// © 2025 e2ee-keystore authors. MIT License.

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/Voskan/e2ee-keystore/internal/kdf"
	"github.com/Voskan/e2ee-keystore/internal/ring"
)

// Rotate advances current to head. If head has not been pre-admitted ahead
// of current, it ratchets forward by one generation first — a local sender
// must be able to advance the generation unilaterally, for example on
// membership change.
//
// Listeners fire on every successful Rotate, on both paths. If the ratchet
// step fails, Rotate returns the error without moving current or firing
// listeners.
func (ks *Keystore) Rotate() error {
	ks.mu.Lock()
	defer ks.mu.Unlock()

	if ks.ring.CurrentPos() == ks.ring.HeadPos() {
		target := ks.ring.Head().Index + 1
		if err := ks.ratchetToIndexLocked(target); err != nil {
			return wrapErr("rotate", err)
		}
	}
	ks.ring.SetCurrent(ks.ring.HeadPos())
	ks.metrics.incRotation(ks.id)
	ks.fireListenersLocked()

	ks.logger.Debug("rotate", zap.String("id", ks.id), zap.Uint32("index", ks.ring.Current().Index))
	return nil
}

// MediaKey returns the media key for the given index, ratcheting forward
// on demand when the index is up to Capacity-1 generations ahead of head.
// Requests further ahead are refused to bound per-call derivation work and
// prevent attacker-driven precomputation.
func (ks *Keystore) MediaKey(index uint32) ([32]byte, error) {
	ks.mu.Lock()
	defer ks.mu.Unlock()

	var out [32]byte

	if pos, ok := ks.ring.FindByIndex(index); ok {
		slot := ks.ring.Slot(pos)
		out = slot.MediaKey
		if index > ks.ring.Current().Index {
			ks.ring.SetCurrent(pos)
		}
		return out, nil
	}

	head := ks.ring.Head()
	if head.Occupied && index > head.Index && index < head.Index+uint32(ring.Capacity) {
		if err := ks.ratchetToIndexLocked(index); err != nil {
			return out, wrapErr("get_media_key", err)
		}
		newHead := ks.ring.Head()
		out = newHead.MediaKey
		if index > ks.ring.Current().Index {
			ks.ring.SetCurrent(ks.ring.HeadPos())
		}
		return out, nil
	}

	return out, wrapErr("get_media_key", ErrNotFound)
}

// ratchetToIndexLocked derives forward session/media keys one ring slot at
// a time until head reaches target. Any existing slot at the destination
// position is silently overwritten — the forward-secrecy property:
// receivers lagging more than Capacity-1 generations cannot recover past
// keys.
func (ks *Keystore) ratchetToIndexLocked(target uint32) error {
	for ks.ring.Head().Index < target {
		h := ks.ring.HeadPos()
		n := ks.ring.Next(h)
		prev := ks.ring.Slot(h)
		next := ks.ring.Slot(n)

		if err := kdf.NextSessionKey(&next.SessionKey, prev.SessionKey[:], ks.salt); err != nil {
			ks.logger.Error("ratchet session key derivation failed",
				zap.String("id", ks.id), zap.Error(err))
			return fmt.Errorf("%w: %v", ErrFatalInternal, err)
		}
		if err := kdf.MediaKey(&next.MediaKey, next.SessionKey[:], ks.salt); err != nil {
			ks.logger.Error("ratchet media key derivation failed",
				zap.String("id", ks.id), zap.Error(err))
			return fmt.Errorf("%w: %v", ErrFatalInternal, err)
		}

		next.Index = prev.Index + 1
		next.Occupied = true
		ks.ring.SetHead(n)
		ks.metrics.incRatchetStep(ks.id)
	}
	ks.metrics.setHeadIndex(ks.id, ks.ring.Head().Index)
	return nil
}
