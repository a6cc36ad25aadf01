package usecase

import "sync"

const (
	DeferUserCap   = "user_cap"
	DeferGlobalCap = "global_cap"
	DeferBackend   = "backend_unavailable"
)

// Admission caps concurrent document jobs per user and globally. Both
// counters change together under one lock, so a slot is either fully
// acquired or not at all.
type Admission struct {
	maxPerUser int
	maxGlobal  int

	mu      sync.Mutex
	global  int
	perUser map[string]int
}

func NewAdmission(maxPerUser, maxGlobal int) *Admission {
	if maxPerUser <= 0 {
		maxPerUser = 3
	}
	if maxGlobal <= 0 {
		maxGlobal = 10
	}
	return &Admission{
		maxPerUser: maxPerUser,
		maxGlobal:  maxGlobal,
		perUser:    make(map[string]int),
	}
}

// TryAcquire takes a slot for userID. When it returns false, reason names the cap that was hit.
func (a *Admission) TryAcquire(userID string) (ok bool, reason string) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.global >= a.maxGlobal {
		return false, DeferGlobalCap
	}
	if a.perUser[userID] >= a.maxPerUser {
		return false, DeferUserCap
	}
	a.global++
	a.perUser[userID]++
	return true, ""
}

func (a *Admission) Release(userID string) {
	a.mu.Lock()
	defer a.mu.Unlock()

	n, ok := a.perUser[userID]
	if !ok {
		return
	}
	if n <= 1 {
		delete(a.perUser, userID)
	} else {
		a.perUser[userID] = n - 1
	}
	if a.global > 0 {
		a.global--
	}
}

func (a *Admission) Active(userID string) int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.perUser[userID]
}

func (a *Admission) ActiveGlobal() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.global
}
