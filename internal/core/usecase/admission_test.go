package usecase

import (
	"sync"
	"testing"
)

func TestAdmissionEnforcesCaps(t *testing.T) {
	a := NewAdmission(2, 3)

	for i := 0; i < 2; i++ {
		if ok, _ := a.TryAcquire("alice"); !ok {
			t.Fatalf("acquire %d for alice should succeed", i)
		}
	}
	if ok, reason := a.TryAcquire("alice"); ok || reason != DeferUserCap {
		t.Fatalf("expected user cap, got ok=%v reason=%q", ok, reason)
	}
	if ok, _ := a.TryAcquire("bob"); !ok {
		t.Fatalf("bob should get the last global slot")
	}
	if ok, reason := a.TryAcquire("carol"); ok || reason != DeferGlobalCap {
		t.Fatalf("expected global cap, got ok=%v reason=%q", ok, reason)
	}

	a.Release("alice")
	if a.Active("alice") != 1 || a.ActiveGlobal() != 2 {
		t.Fatalf("unexpected counters after release: user=%d global=%d", a.Active("alice"), a.ActiveGlobal())
	}
	if ok, _ := a.TryAcquire("carol"); !ok {
		t.Fatalf("carol should be admitted after a release")
	}
}

func TestAdmissionReleaseWithoutAcquireIsNoop(t *testing.T) {
	a := NewAdmission(1, 1)
	a.Release("ghost")
	if a.ActiveGlobal() != 0 {
		t.Fatalf("release without acquire changed the global counter")
	}
}

func TestAdmissionCountersStayConsistentUnderContention(t *testing.T) {
	a := NewAdmission(3, 5)
	var wg sync.WaitGroup
	for i := 0; i < 200; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			user := []string{"alice", "bob", "carol"}[i%3]
			if ok, _ := a.TryAcquire(user); ok {
				if a.Active(user) > 3 || a.ActiveGlobal() > 5 {
					t.Errorf("caps exceeded: user=%d global=%d", a.Active(user), a.ActiveGlobal())
				}
				a.Release(user)
			}
		}(i)
	}
	wg.Wait()
	if a.ActiveGlobal() != 0 {
		t.Fatalf("expected all slots released, global=%d", a.ActiveGlobal())
	}
}
