package store

import (
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/careloop/eldermed/internal/escalation"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestAddAndGet(t *testing.T) {
	s := newTestStore(t)

	added, err := s.Add(escalation.Medication{
		Name:       "Amlodipine",
		CommonName: "blood pressure pill",
		Dosage:     "5mg",
		TimeOfDay:  "08:00",
		Quantity:   30,
		ReorderAt:  5,
	})
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
	if added.ID == "" {
		t.Fatal("expected generated id")
	}

	got, err := s.Get(added.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Name != "Amlodipine" || got.CommonName != "blood pressure pill" {
		t.Errorf("unexpected medication: %+v", got)
	}
	if got.Taken || got.AlertStage != escalation.StageNone {
		t.Errorf("new medication should be untaken at stage none, got %+v", got)
	}
	if got.DoseForm != "pills" {
		t.Errorf("expected default dose form pills, got %q", got.DoseForm)
	}
}

func TestGet_NotFound(t *testing.T) {
	s := newTestStore(t)
	if _, err := s.Get("missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestListUntaken_OrderAndFilter(t *testing.T) {
	s := newTestStore(t)

	evening, _ := s.Add(escalation.Medication{Name: "Metformin", TimeOfDay: "18:00"})
	morning, _ := s.Add(escalation.Medication{Name: "Amlodipine", TimeOfDay: "08:00"})
	noon, _ := s.Add(escalation.Medication{Name: "Aspirin", TimeOfDay: "12:00"})

	if err := s.MarkTaken(noon.ID, time.Now()); err != nil {
		t.Fatalf("MarkTaken: %v", err)
	}

	meds, err := s.ListUntaken()
	if err != nil {
		t.Fatalf("ListUntaken: %v", err)
	}
	if len(meds) != 2 {
		t.Fatalf("expected 2 untaken, got %d", len(meds))
	}
	if meds[0].ID != morning.ID || meds[1].ID != evening.ID {
		t.Errorf("expected time-of-day order, got %s then %s", meds[0].Name, meds[1].Name)
	}
}

func TestMarkTaken_DecrementsStock(t *testing.T) {
	s := newTestStore(t)
	m, _ := s.Add(escalation.Medication{Name: "Amlodipine", TimeOfDay: "08:00", Quantity: 2})

	if err := s.UpdateStage(m.ID, escalation.StageCaregiver); err != nil {
		t.Fatalf("UpdateStage: %v", err)
	}
	at := time.Date(2026, 8, 31, 8, 40, 0, 0, time.UTC)
	if err := s.MarkTaken(m.ID, at); err != nil {
		t.Fatalf("MarkTaken: %v", err)
	}

	got, _ := s.Get(m.ID)
	if !got.Taken {
		t.Error("expected taken")
	}
	if got.TakenAt == nil || !got.TakenAt.Equal(at) {
		t.Errorf("expected taken_at %v, got %v", at, got.TakenAt)
	}
	if got.AlertStage != escalation.StageNone {
		t.Errorf("expected stage reset, got %v", got.AlertStage)
	}
	if got.Quantity != 1 {
		t.Errorf("expected quantity 1, got %d", got.Quantity)
	}

	// Never goes negative.
	_ = s.MarkUntaken(m.ID)
	_ = s.MarkTaken(m.ID, at)
	_ = s.MarkUntaken(m.ID)
	_ = s.MarkTaken(m.ID, at)
	got, _ = s.Get(m.ID)
	if got.Quantity != 0 {
		t.Errorf("expected quantity floor at 0, got %d", got.Quantity)
	}
}

func TestMarkUntaken_ClearsState(t *testing.T) {
	s := newTestStore(t)
	m, _ := s.Add(escalation.Medication{Name: "Metformin", TimeOfDay: "18:00"})

	_ = s.MarkTaken(m.ID, time.Now())
	if err := s.SetTakenNote(m.ID, "took with dinner"); err != nil {
		t.Fatalf("SetTakenNote: %v", err)
	}
	if err := s.MarkUntaken(m.ID); err != nil {
		t.Fatalf("MarkUntaken: %v", err)
	}

	got, _ := s.Get(m.ID)
	if got.Taken || got.TakenAt != nil || got.TakenNote != "" || got.AlertStage != escalation.StageNone {
		t.Errorf("expected clean slate, got %+v", got)
	}
}

func TestSetTakenNote_RequiresTaken(t *testing.T) {
	s := newTestStore(t)
	m, _ := s.Add(escalation.Medication{Name: "Aspirin", TimeOfDay: "12:00"})

	if err := s.SetTakenNote(m.ID, "note"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound for untaken dose, got %v", err)
	}
}

func TestUpdateAndRemove(t *testing.T) {
	s := newTestStore(t)
	m, _ := s.Add(escalation.Medication{Name: "Aspirin", TimeOfDay: "12:00"})

	m.Dosage = "100mg"
	m.TimeOfDay = "13:30"
	if err := s.Update(m); err != nil {
		t.Fatalf("Update: %v", err)
	}
	got, _ := s.Get(m.ID)
	if got.Dosage != "100mg" || got.TimeOfDay != "13:30" {
		t.Errorf("update not applied: %+v", got)
	}

	if err := s.Remove(m.ID); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if _, err := s.Get(m.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound after remove, got %v", err)
	}
	if err := s.Remove(m.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound on double remove, got %v", err)
	}
}

func TestResetDay(t *testing.T) {
	s := newTestStore(t)
	a, _ := s.Add(escalation.Medication{Name: "Amlodipine", TimeOfDay: "08:00"})
	b, _ := s.Add(escalation.Medication{Name: "Metformin", TimeOfDay: "18:00"})

	_ = s.MarkTaken(a.ID, time.Now())
	_ = s.UpdateStage(b.ID, escalation.StageEmergency)

	if err := s.ResetDay(); err != nil {
		t.Fatalf("ResetDay: %v", err)
	}

	meds, _ := s.ListUntaken()
	if len(meds) != 2 {
		t.Fatalf("expected all medications untaken, got %d", len(meds))
	}
	for _, m := range meds {
		if m.AlertStage != escalation.StageNone {
			t.Errorf("%s: expected stage none, got %v", m.Name, m.AlertStage)
		}
	}
}

func TestLowStock(t *testing.T) {
	s := newTestStore(t)
	low, _ := s.Add(escalation.Medication{Name: "Amlodipine", TimeOfDay: "08:00", Quantity: 3, ReorderAt: 5})
	s.Add(escalation.Medication{Name: "Metformin", TimeOfDay: "18:00", Quantity: 40, ReorderAt: 5})
	s.Add(escalation.Medication{Name: "Aspirin", TimeOfDay: "12:00", Quantity: 0, ReorderAt: 0})

	meds, err := s.LowStock()
	if err != nil {
		t.Fatalf("LowStock: %v", err)
	}
	if len(meds) != 1 || meds[0].ID != low.ID {
		t.Errorf("expected only tracked low-stock medication, got %+v", meds)
	}
}

func TestAdherence(t *testing.T) {
	s := newTestStore(t)
	a, _ := s.Add(escalation.Medication{Name: "Amlodipine", TimeOfDay: "08:00"})
	s.Add(escalation.Medication{Name: "Metformin", TimeOfDay: "18:00"})

	_ = s.MarkTaken(a.ID, time.Now())

	taken, total, err := s.Adherence()
	if err != nil {
		t.Fatalf("Adherence: %v", err)
	}
	if taken != 1 || total != 2 {
		t.Errorf("expected 1/2, got %d/%d", taken, total)
	}
}
