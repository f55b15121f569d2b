package escalation

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Medication is one entry of the daily schedule. The store owns persistence;
// the engine only ever mutates Taken, TakenAt and AlertStage.
type Medication struct {
	ID          string     `json:"id"`
	Name        string     `json:"name"`
	CommonName  string     `json:"commonName,omitempty"`
	Dosage      string     `json:"dosage"`
	DoseForm    string     `json:"doseForm"` // pills, liquid, injection
	Appearance  string     `json:"appearance,omitempty"`
	TimeOfDay   string     `json:"timeOfDay"` // "HH:MM", recurring daily
	Instruction string     `json:"instruction,omitempty"`
	Taken       bool       `json:"taken"`
	TakenAt     *time.Time `json:"takenAt,omitempty"`
	TakenNote   string     `json:"takenNote,omitempty"`
	AlertStage  Stage      `json:"alertStage"`
	VoiceClip   string     `json:"voiceClip,omitempty"` // caregiver-recorded WAV for this medication
	Quantity    int        `json:"quantity,omitempty"`
	ReorderAt   int        `json:"reorderAt,omitempty"`
}

// DisplayName prefers the caregiver-friendly name over the scientific one.
func (m Medication) DisplayName() string {
	if m.CommonName != "" {
		return m.CommonName
	}
	return m.Name
}

// LowStock reports whether the remaining quantity has fallen to the reorder
// threshold. Medications without stock tracking never report low.
func (m Medication) LowStock() bool {
	return m.ReorderAt > 0 && m.Quantity <= m.ReorderAt
}

// clockMinutes parses "HH:MM" into minutes of day.
func clockMinutes(s string) (int, error) {
	parts := strings.SplitN(strings.TrimSpace(s), ":", 2)
	if len(parts) != 2 {
		return 0, fmt.Errorf("malformed time of day %q", s)
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil {
		return 0, fmt.Errorf("malformed time of day %q", s)
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil {
		return 0, fmt.Errorf("malformed time of day %q", s)
	}
	if h < 0 || h > 23 || m < 0 || m > 59 {
		return 0, fmt.Errorf("time of day %q out of range", s)
	}
	return h*60 + m, nil
}

func minutesOfDay(t time.Time) int {
	return t.Hour()*60 + t.Minute()
}
