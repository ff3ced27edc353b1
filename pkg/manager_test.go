package keystore

import (
	"sync"
	"testing"
)

func TestGetOrCreateReturnsSameInstance(t *testing.T) {
	m := NewManager()

	a, err := m.GetOrCreate("call-1")
	if err != nil {
		t.Fatalf("GetOrCreate: %v", err)
	}
	b, err := m.GetOrCreate("call-1")
	if err != nil {
		t.Fatalf("GetOrCreate: %v", err)
	}
	if a != b {
		t.Fatal("GetOrCreate returned different instances for the same call ID")
	}

	if _, ok := m.Get("call-1"); !ok {
		t.Fatal("Get did not find a previously created call")
	}
	if _, ok := m.Get("call-2"); ok {
		t.Fatal("Get found a call that was never created")
	}
}

func TestGetOrCreateDeduplicatesConcurrentCreation(t *testing.T) {
	m := NewManager()

	const n = 32
	results := make([]*Keystore, n)
	var wg sync.WaitGroup
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func(i int) {
			defer wg.Done()
			ks, err := m.GetOrCreate("shared-call")
			if err != nil {
				t.Errorf("GetOrCreate: %v", err)
				return
			}
			results[i] = ks
		}(i)
	}
	wg.Wait()

	first := results[0]
	for i, ks := range results {
		if ks != first {
			t.Fatalf("goroutine %d got a different keystore instance", i)
		}
	}
}

func TestManagerCloseForgetsCall(t *testing.T) {
	m := NewManager()
	ks, err := m.GetOrCreate("call-1")
	if err != nil {
		t.Fatalf("GetOrCreate: %v", err)
	}
	_ = ks.SetSalt([]byte{0x01})

	if err := m.Close("call-1"); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if _, ok := m.Get("call-1"); ok {
		t.Fatal("call still tracked after Close")
	}

	// A second Close on an already-forgotten call is a no-op, not an error.
	if err := m.Close("call-1"); err != nil {
		t.Fatalf("second Close: %v", err)
	}
}

func TestManagerSnapshotReflectsEachCall(t *testing.T) {
	m := NewManager()

	a, _ := m.GetOrCreate("call-a")
	b, _ := m.GetOrCreate("call-b")
	_ = a.SetSalt([]byte{0x01})
	_ = a.SetSessionKey(3, key32(0x01))
	_ = b.SetSalt([]byte{0x02})

	snaps := m.Snapshot()
	if len(snaps) != 2 {
		t.Fatalf("Snapshot returned %d entries, want 2", len(snaps))
	}

	byID := map[string]CallSnapshot{}
	for _, s := range snaps {
		byID[s.CallID] = s
	}

	sa, ok := byID["call-a"]
	if !ok || !sa.HasKeys || sa.Index != 3 {
		t.Fatalf("call-a snapshot = %+v, want HasKeys=true Index=3", sa)
	}
	sb, ok := byID["call-b"]
	if !ok || sb.HasKeys {
		t.Fatalf("call-b snapshot = %+v, want HasKeys=false", sb)
	}
}
