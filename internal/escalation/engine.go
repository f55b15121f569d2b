package escalation

import (
	"fmt"
	"log"
	"sort"
	"sync"
	"time"
)

// ScheduleStore is the engine's view of the medication schedule. The sqlite
// store implements it; tests use an in-memory fake.
type ScheduleStore interface {
	ListUntaken() ([]Medication, error)
	UpdateStage(id string, stage Stage) error
	MarkTaken(id string, at time.Time) error
	MarkUntaken(id string) error
	ResetDay() error
}

// Presenter renders the single active alert and owns the audio side. It must
// show exactly one alert surface at a time and stop any in-flight audio on
// StopAlert. Presenters are invoked with the engine lock held and must not
// call back into the engine; user actions come back through the bus instead.
type Presenter interface {
	PresentAlert(a Alert)
	StopAlert()
}

// Alert is the ephemeral active-alert value: which medication, at which
// stage, fired when.
type Alert struct {
	Medication Medication
	Stage      Stage
	FiredAt    time.Time
}

// Policy decides what happens when more than one medication qualifies while
// an alert is already showing.
type Policy string

const (
	// PolicySingle gives the slot to the earliest-scheduled qualifying
	// medication; others wait for it to clear.
	PolicySingle Policy = "single"
	// PolicyHighest lets a strictly higher stage on any medication preempt
	// the active alert.
	PolicyHighest Policy = "highest"
)

// Engine is the escalation evaluator and acknowledgment handler. Both run
// under one mutex so the single active-alert slot has a single writer, and
// every decision is recomputed from (schedule, now) each tick.
type Engine struct {
	mu        sync.Mutex
	store     ScheduleStore
	presenter Presenter
	dismissed *DismissalMemory
	policy    Policy
	now       func() time.Time

	active    *Alert
	observers []func(*Alert)
}

func NewEngine(store ScheduleStore, presenter Presenter, policy Policy) *Engine {
	if policy != PolicyHighest {
		policy = PolicySingle
	}
	return &Engine{
		store:     store,
		presenter: presenter,
		dismissed: NewDismissalMemory(),
		policy:    policy,
		now:       time.Now,
	}
}

// Subscribe registers an observer of the active-alert slot. It is called
// with the new alert on fire and with nil on clear.
func (e *Engine) Subscribe(fn func(*Alert)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.observers = append(e.observers, fn)
}

// Active returns a copy of the current alert, or nil.
func (e *Engine) Active() *Alert {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.active == nil {
		return nil
	}
	a := *e.active
	return &a
}

type candidate struct {
	med      Medication
	stage    Stage
	schedMin int
}

// Evaluate runs one tick: scan untaken medications, decide whether an alert
// fires, persist late-stage transitions. A failed schedule read makes the
// tick a no-op.
func (e *Engine) Evaluate() {
	meds, err := e.store.ListUntaken()
	if err != nil {
		log.Printf("[engine] schedule read failed, skipping tick: %v", err)
		return
	}
	now := e.now()
	nowMin := minutesOfDay(now)

	e.mu.Lock()

	untaken := make(map[string]bool, len(meds))
	var cands []candidate
	for _, med := range meds {
		// Recorded before the time parse: a malformed entry is still
		// untaken, and must not free the slot as if it were taken.
		untaken[med.ID] = true
		schedMin, err := clockMinutes(med.TimeOfDay)
		if err != nil {
			log.Printf("[engine] skipping %s: %v", med.ID, err)
			continue
		}
		diff := nowMin - schedMin
		if target := stageForOverdue(diff); target > med.AlertStage {
			cands = append(cands, candidate{med: med, stage: target, schedMin: schedMin})
			continue
		}
		if diff >= -preAlertWindowMinutes && diff < 0 &&
			med.AlertStage == StageNone && !e.dismissed.Has(med.ID) {
			cands = append(cands, candidate{med: med, stage: StagePreAlert, schedMin: schedMin})
		}
	}
	sort.Slice(cands, func(i, j int) bool {
		if cands[i].schedMin != cands[j].schedMin {
			return cands[i].schedMin < cands[j].schedMin
		}
		return cands[i].med.ID < cands[j].med.ID
	})

	// A dose taken outside the acknowledgment path frees the slot.
	if e.active != nil && !untaken[e.active.Medication.ID] {
		e.clearActiveLocked()
		e.mu.Unlock()
		return
	}

	if e.active != nil {
		// The active medication escalating past its own alert always wins.
		for _, c := range cands {
			if c.med.ID == e.active.Medication.ID && c.stage > e.active.Stage {
				e.fireLocked(c, now)
				e.mu.Unlock()
				return
			}
		}
		if e.policy == PolicyHighest {
			if best, ok := highestCandidate(cands); ok && best.stage > e.active.Stage {
				e.fireLocked(best, now)
			}
		}
		e.mu.Unlock()
		return
	}

	if len(cands) == 0 {
		e.mu.Unlock()
		return
	}

	pick := cands[0]
	if e.policy == PolicyHighest {
		pick, _ = highestCandidate(cands)
	}
	e.fireLocked(pick, now)
	e.mu.Unlock()
}

// highestCandidate picks the highest stage; ties go to the earliest
// scheduled time (cands are already in schedule order).
func highestCandidate(cands []candidate) (candidate, bool) {
	if len(cands) == 0 {
		return candidate{}, false
	}
	best := cands[0]
	for _, c := range cands[1:] {
		if c.stage > best.stage {
			best = c
		}
	}
	return best, true
}

// fireLocked persists a late-stage transition and activates the alert.
// Pre-alerts are a pure nudge and never touch the store.
func (e *Engine) fireLocked(c candidate, now time.Time) {
	if c.stage > StagePreAlert {
		if err := e.store.UpdateStage(c.med.ID, c.stage); err != nil {
			// The alert still fires; a lost write can only re-fire the
			// same stage after the slot clears.
			log.Printf("[engine] persist stage %s for %s failed: %v", c.stage, c.med.ID, err)
		}
		c.med.AlertStage = c.stage
	}
	a := Alert{Medication: c.med, Stage: c.stage, FiredAt: now}
	e.active = &a
	log.Printf("[engine] alert %s for %s (%s)", c.stage, c.med.DisplayName(), c.med.ID)
	copyAlert := a
	e.notifyLocked(&copyAlert)
	e.presenter.PresentAlert(a)
}

func (e *Engine) clearActiveLocked() {
	e.active = nil
	e.presenter.StopAlert()
	e.notifyLocked(nil)
}

func (e *Engine) notifyLocked(a *Alert) {
	for _, fn := range e.observers {
		fn(a)
	}
}

// AcknowledgeTaken records the dose as taken and clears the active alert.
// When the write fails the alert stays up: the persisted stage would stop
// the evaluator from re-firing, and an emergency has no higher stage left
// to cross, so clearing here could silence it for the whole occurrence.
func (e *Engine) AcknowledgeTaken(id string) error {
	now := e.now()
	e.mu.Lock()
	err := e.store.MarkTaken(id, now)
	if err == nil {
		e.dismissed.Forget(id)
		if e.active != nil && e.active.Medication.ID == id {
			e.clearActiveLocked()
		}
	}
	e.mu.Unlock()
	if err != nil {
		return fmt.Errorf("mark taken %s: %w", id, err)
	}
	return nil
}

// Dismiss clears the active alert without taking the dose. A dismissed
// pre-alert stays quiet for the rest of the occurrence; a dismissed late
// stage is only a snooze, the stage stays put and re-escalation continues.
func (e *Engine) Dismiss(id string, stage Stage) {
	e.mu.Lock()
	if stage == StagePreAlert {
		e.dismissed.Add(id)
	}
	if e.active != nil && e.active.Medication.ID == id {
		e.clearActiveLocked()
	}
	e.mu.Unlock()
}

// MarkUntaken undoes a mistaken acknowledgment and gives the evaluator a
// clean slate, pre-alert included.
func (e *Engine) MarkUntaken(id string) error {
	e.mu.Lock()
	err := e.store.MarkUntaken(id)
	e.dismissed.Forget(id)
	e.mu.Unlock()
	if err != nil {
		return fmt.Errorf("mark untaken %s: %w", id, err)
	}
	return nil
}

// StartNewOccurrence resets the schedule for a new day: all doses untaken,
// stages cleared, dismissals forgotten, any active alert dropped.
func (e *Engine) StartNewOccurrence() error {
	e.mu.Lock()
	err := e.store.ResetDay()
	e.dismissed.Reset()
	if e.active != nil {
		e.clearActiveLocked()
	}
	e.mu.Unlock()
	if err != nil {
		return fmt.Errorf("reset day: %w", err)
	}
	return nil
}

// Shutdown silences any in-flight audio. State is left untouched; the store
// already holds everything needed to resume.
func (e *Engine) Shutdown() {
	e.presenter.StopAlert()
}
