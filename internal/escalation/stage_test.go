package escalation

import (
	"strings"
	"testing"
)

func TestStageString(t *testing.T) {
	tests := []struct {
		stage Stage
		want  string
	}{
		{StageNone, "none"},
		{StagePreAlert, "prealert"},
		{StageRemind, "remind"},
		{StageCaregiver, "caregiver"},
		{StageEmergency, "emergency"},
		{Stage(42), "stage(42)"},
	}
	for _, tt := range tests {
		if got := tt.stage.String(); got != tt.want {
			t.Errorf("String(%d) = %q, want %q", int(tt.stage), got, tt.want)
		}
	}
}

func TestStageProfiles_Complete(t *testing.T) {
	for _, s := range []Stage{StagePreAlert, StageRemind, StageCaregiver, StageEmergency} {
		p := s.Profile()
		if p.Urgency == "" || p.Template == "" || p.PrimaryAction == "" {
			t.Errorf("profile for %s is incomplete: %+v", s, p)
		}
		if p.RepeatInterval <= 0 {
			t.Errorf("profile for %s has no repeat interval", s)
		}
		if !strings.Contains(p.Template, "%s") {
			t.Errorf("template for %s has no name slot: %q", s, p.Template)
		}
	}
}

func TestStageProfiles_CaregiverEscalation(t *testing.T) {
	if StagePreAlert.Profile().NotifyCaregiver || StageRemind.Profile().NotifyCaregiver {
		t.Error("early stages must not notify the caregiver")
	}
	if !StageCaregiver.Profile().NotifyCaregiver || !StageEmergency.Profile().NotifyCaregiver {
		t.Error("late stages must notify the caregiver")
	}
	if StageCaregiver.Profile().Emergency {
		t.Error("caregiver stage is not yet an emergency")
	}
	if !StageEmergency.Profile().Emergency {
		t.Error("emergency stage must be flagged")
	}
}

func TestSpokenMessage(t *testing.T) {
	m := Medication{Name: "Metformin", CommonName: "diabetes pill"}
	got := StageRemind.SpokenMessage(m)
	if !strings.Contains(got, "diabetes pill") {
		t.Errorf("spoken message %q should use the common name", got)
	}
	if StageNone.SpokenMessage(m) != "" {
		t.Error("no message for StageNone")
	}
}

func TestMedicationDisplayName(t *testing.T) {
	if got := (Medication{Name: "Amlodipine"}).DisplayName(); got != "Amlodipine" {
		t.Errorf("DisplayName = %q", got)
	}
	m := Medication{Name: "Amlodipine", CommonName: "blood pressure pill"}
	if got := m.DisplayName(); got != "blood pressure pill" {
		t.Errorf("DisplayName = %q", got)
	}
}

func TestMedicationLowStock(t *testing.T) {
	tests := []struct {
		name string
		m    Medication
		want bool
	}{
		{"no tracking", Medication{Quantity: 2}, false},
		{"above threshold", Medication{Quantity: 10, ReorderAt: 5}, false},
		{"at threshold", Medication{Quantity: 5, ReorderAt: 5}, true},
		{"below threshold", Medication{Quantity: 1, ReorderAt: 5}, true},
	}
	for _, tt := range tests {
		if got := tt.m.LowStock(); got != tt.want {
			t.Errorf("%s: LowStock = %v, want %v", tt.name, got, tt.want)
		}
	}
}

func TestClockMinutes(t *testing.T) {
	tests := []struct {
		in      string
		want    int
		wantErr bool
	}{
		{"08:00", 480, false},
		{"00:00", 0, false},
		{"23:59", 1439, false},
		{" 12:30 ", 750, false},
		{"24:00", 0, true},
		{"12:60", 0, true},
		{"noon", 0, true},
		{"", 0, true},
	}
	for _, tt := range tests {
		got, err := clockMinutes(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("clockMinutes(%q) err = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if err == nil && got != tt.want {
			t.Errorf("clockMinutes(%q) = %d, want %d", tt.in, got, tt.want)
		}
	}
}
