package gateway

import (
	"fmt"
	"log"

	"github.com/careloop/eldermed/internal/bus"
	"github.com/careloop/eldermed/internal/escalation"
	"github.com/careloop/eldermed/internal/voice"
)

// alertPresenter fans the active alert out to every surface: the speaker,
// the dashboard (via alert events), and the caregiver chat for the stages
// that warrant it. It never blocks; the engine calls it with its lock held.
type alertPresenter struct {
	announcer        *voice.Announcer
	bus              *bus.MessageBus
	caregiverChat    string
	emergencyContact string
}

func (p *alertPresenter) PresentAlert(a escalation.Alert) {
	if p.announcer != nil {
		p.announcer.PresentAlert(a)
	}

	p.bus.PublishAlert(alertEvent(a, true))

	if a.Stage.Profile().NotifyCaregiver && p.caregiverChat != "" {
		p.sendOutbound(bus.OutboundMessage{
			Channel: "telegram",
			ChatID:  p.caregiverChat,
			Content: p.caregiverNotice(a),
		})
	}
}

func (p *alertPresenter) StopAlert() {
	if p.announcer != nil {
		p.announcer.StopAlert()
	}
	p.bus.PublishAlert(bus.AlertEvent{Active: false})
}

// sendOutbound drops the message when the buffer is full rather than stall
// the engine. A lost notice is re-sent when the next stage fires.
func (p *alertPresenter) sendOutbound(msg bus.OutboundMessage) {
	select {
	case p.bus.Outbound <- msg:
	default:
		log.Printf("[gateway] outbound buffer full, dropping caregiver notice")
	}
}

func (p *alertPresenter) caregiverNotice(a escalation.Alert) string {
	m := a.Medication
	switch a.Stage {
	case escalation.StageEmergency:
		return fmt.Sprintf(
			"🚨 **EMERGENCY**: %s (%s) scheduled at %s has not been taken for over an hour and there is no response. Please check on them now or call %s.",
			m.DisplayName(), m.Dosage, m.TimeOfDay, p.emergencyContact)
	default:
		return fmt.Sprintf(
			"⚠️ %s (%s) scheduled at %s is overdue and has not been acknowledged. A check-in call may help.",
			m.DisplayName(), m.Dosage, m.TimeOfDay)
	}
}

func alertEvent(a escalation.Alert, active bool) bus.AlertEvent {
	prof := a.Stage.Profile()
	return bus.AlertEvent{
		MedicationID:    a.Medication.ID,
		MedicationName:  a.Medication.DisplayName(),
		Stage:           a.Stage.String(),
		Urgency:         prof.Urgency,
		Message:         a.Stage.SpokenMessage(a.Medication),
		PrimaryAction:   prof.PrimaryAction,
		SecondaryAction: prof.SecondaryAction,
		Active:          active,
		FiredAt:         a.FiredAt,
	}
}
