package escalation

import (
	"fmt"
	"time"
)

// Stage is the severity of an unacknowledged dose alert. Stages only move
// up while a dose stays untaken; taking (or untaking) the dose resets to
// StageNone.
type Stage int

const (
	StageNone Stage = iota
	StagePreAlert
	StageRemind
	StageCaregiver
	StageEmergency
)

func (s Stage) String() string {
	switch s {
	case StageNone:
		return "none"
	case StagePreAlert:
		return "prealert"
	case StageRemind:
		return "remind"
	case StageCaregiver:
		return "caregiver"
	case StageEmergency:
		return "emergency"
	default:
		return fmt.Sprintf("stage(%d)", int(s))
	}
}

// Escalation thresholds in minutes relative to the scheduled time. Each
// interval is half-open: a dose exactly 60 minutes late is already an
// emergency.
const (
	preAlertWindowMinutes = 10
	remindAfterMinutes    = 15
	caregiverAfterMinutes = 30
	emergencyAfterMinutes = 60
)

// stageForOverdue maps elapsed minutes since the scheduled time to the late
// stage the dose qualifies for. It depends only on elapsed time, never on
// which transitions were observed, so a restart lands on the right stage
// immediately.
func stageForOverdue(diffMinutes int) Stage {
	switch {
	case diffMinutes >= emergencyAfterMinutes:
		return StageEmergency
	case diffMinutes >= caregiverAfterMinutes:
		return StageCaregiver
	case diffMinutes >= remindAfterMinutes:
		return StageRemind
	default:
		return StageNone
	}
}

// StageProfile is the static presentation row for a stage: how urgent it
// looks, what is spoken, how often the cue repeats, and the action labels.
type StageProfile struct {
	Urgency         string
	Template        string
	RepeatInterval  time.Duration
	PrimaryAction   string
	SecondaryAction string
	NotifyCaregiver bool
	Emergency       bool
}

var stageProfiles = map[Stage]StageProfile{
	StagePreAlert: {
		Urgency:         "gentle",
		Template:        "It will soon be time to take %s.",
		RepeatInterval:  3 * time.Second,
		PrimaryAction:   "I took it",
		SecondaryAction: "Not yet",
	},
	StageRemind: {
		Urgency:         "reminder",
		Template:        "It is time to take %s now.",
		RepeatInterval:  3 * time.Second,
		PrimaryAction:   "I took it",
		SecondaryAction: "Snooze",
	},
	StageCaregiver: {
		Urgency:         "caregiver",
		Template:        "%s is overdue. Your caregiver has been notified.",
		RepeatInterval:  3 * time.Second,
		PrimaryAction:   "I took it",
		SecondaryAction: "Snooze",
		NotifyCaregiver: true,
	},
	StageEmergency: {
		Urgency:         "emergency",
		Template:        "Urgent: %s is more than an hour overdue. Your family is being contacted.",
		RepeatInterval:  3 * time.Second,
		PrimaryAction:   "I am taking it now",
		SecondaryAction: "Snooze",
		NotifyCaregiver: true,
		Emergency:       true,
	},
}

// Profile returns the presentation row for the stage. StageNone has no
// profile; callers only look up firing stages.
func (s Stage) Profile() StageProfile {
	return stageProfiles[s]
}

// SpokenMessage renders the stage template for a medication.
func (s Stage) SpokenMessage(m Medication) string {
	p, ok := stageProfiles[s]
	if !ok {
		return ""
	}
	return fmt.Sprintf(p.Template, m.DisplayName())
}
