package convo

import (
	"sync"
	"time"
)

// Step identifies where a user is inside the conversation flow.
type Step int

const (
	// StepSelectingCrop awaits a crop choice during registration.
	StepSelectingCrop Step = iota + 1
	// StepAwaitingSowingDate awaits a date expression.
	StepAwaitingSowingDate
	// StepAwaitingLocation awaits a free-text location.
	StepAwaitingLocation
	// StepAwaitingFeedback awaits a yes/no rating of the last advisory.
	StepAwaitingFeedback
)

// cropOption is one entry of the crop menu shown during registration.
type cropOption struct {
	Code      string `json:"code"`
	Name      string `json:"name"`
	CycleDays int    `json:"cycle_days"`
}

// State is the transient per-user conversation record. It lives only in
// process memory; a restart drops all in-flight registrations.
type State struct {
	Step Step

	// Registration fields, accumulated step by step.
	Menu        []cropOption
	CropCode    string
	CropName    string
	CycleDays   int
	SowingDate  time.Time
	ElapsedDays int

	// Feedback fields, set after a report with a recommendation.
	PlantingID     string
	Recommendation string
}

// stateStore keeps per-user conversation state with per-user mutual
// exclusion, so two near-simultaneous messages from the same user cannot
// race on a read-modify-write of the entry. Different users never contend
// beyond the short map access.
type stateStore struct {
	mu      sync.Mutex
	states  map[string]State
	locks   map[string]*sync.Mutex
	reports map[string]int
}

func newStateStore() *stateStore {
	return &stateStore{
		states:  make(map[string]State),
		locks:   make(map[string]*sync.Mutex),
		reports: make(map[string]int),
	}
}

// lock acquires the per-user mutex and returns its release function.
func (s *stateStore) lock(userID string) func() {
	s.mu.Lock()
	l, ok := s.locks[userID]
	if !ok {
		l = &sync.Mutex{}
		s.locks[userID] = l
	}
	s.mu.Unlock()

	l.Lock()
	return l.Unlock
}

func (s *stateStore) get(userID string) (State, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.states[userID]
	return st, ok
}

func (s *stateStore) set(userID string, st State) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.states[userID] = st
}

func (s *stateStore) clear(userID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.states, userID)
}

// nextReportCount increments and returns the user's report counter. It
// survives state clears so the feedback cadence keeps its rhythm.
func (s *stateStore) nextReportCount(userID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reports[userID]++
	return s.reports[userID]
}
