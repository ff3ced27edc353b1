package ring

import "testing"

func TestNewRingStartsAtZero(t *testing.T) {
	r := New()
	if r.CurrentPos() != 0 || r.HeadPos() != 0 {
		t.Fatalf("new ring cursors = (%d, %d), want (0, 0)", r.CurrentPos(), r.HeadPos())
	}
	if r.Current().Occupied || r.Head().Occupied {
		t.Fatal("new ring slots should be unoccupied")
	}
}

func TestNextWrapsModuloCapacity(t *testing.T) {
	r := New()
	pos := 0
	for i := 0; i < Capacity*2; i++ {
		pos = r.Next(pos)
		if pos < 0 || pos >= Capacity {
			t.Fatalf("Next produced out-of-range position %d", pos)
		}
	}
	if pos != 0 {
		t.Fatalf("after 2*Capacity steps, pos = %d, want 0", pos)
	}
}

func TestFindByIndexOnlyMatchesOccupiedSlots(t *testing.T) {
	r := New()
	if _, ok := r.FindByIndex(0); ok {
		t.Fatal("FindByIndex found a match in an empty ring")
	}

	slot := r.Slot(2)
	slot.Index = 7
	slot.Occupied = false
	if _, ok := r.FindByIndex(7); ok {
		t.Fatal("FindByIndex matched an unoccupied slot")
	}

	slot.Occupied = true
	pos, ok := r.FindByIndex(7)
	if !ok || pos != 2 {
		t.Fatalf("FindByIndex(7) = (%d, %v), want (2, true)", pos, ok)
	}
}

func TestResetClearsSlotsAndCursors(t *testing.T) {
	r := New()
	slot := r.Slot(1)
	slot.Index = 3
	slot.Occupied = true
	slot.SessionKey[0] = 0xFF
	slot.MediaKey[0] = 0xEE
	r.SetCurrent(1)
	r.SetHead(1)

	r.Reset()

	if r.CurrentPos() != 0 || r.HeadPos() != 0 {
		t.Fatalf("cursors after Reset = (%d, %d), want (0, 0)", r.CurrentPos(), r.HeadPos())
	}
	for i := 0; i < Capacity; i++ {
		s := r.Slot(i)
		if s.Occupied {
			t.Fatalf("slot %d still occupied after Reset", i)
		}
		for _, b := range s.SessionKey {
			if b != 0 {
				t.Fatalf("slot %d session key not wiped after Reset", i)
			}
		}
		for _, b := range s.MediaKey {
			if b != 0 {
				t.Fatalf("slot %d media key not wiped after Reset", i)
			}
		}
	}
}

func TestSetCurrentAndSetHeadAreIndependent(t *testing.T) {
	r := New()
	r.SetHead(3)
	r.SetCurrent(1)
	if r.HeadPos() != 3 {
		t.Fatalf("HeadPos = %d, want 3", r.HeadPos())
	}
	if r.CurrentPos() != 1 {
		t.Fatalf("CurrentPos = %d, want 1", r.CurrentPos())
	}
}
