package bus

import "time"

// InboundMessage is a user action or chat message arriving from a channel.
type InboundMessage struct {
	Channel   string
	SenderID  string
	ChatID    string
	Content   string
	Timestamp time.Time
	Metadata  map[string]any
}

func (m *InboundMessage) SessionKey() string {
	return m.Channel + ":" + m.ChatID
}

// OutboundMessage is text pushed to a channel (caregiver notice, chat reply).
type OutboundMessage struct {
	Channel  string
	ChatID   string
	Content  string
	ReplyTo  string
	Metadata map[string]any
}

// AlertEvent mirrors the active-alert slot for presenters. Active=false
// means the alert was cleared.
type AlertEvent struct {
	MedicationID    string    `json:"medicationId"`
	MedicationName  string    `json:"medicationName"`
	Stage           string    `json:"stage"`
	Urgency         string    `json:"urgency"`
	Message         string    `json:"message"`
	PrimaryAction   string    `json:"primaryAction"`
	SecondaryAction string    `json:"secondaryAction"`
	Active          bool      `json:"active"`
	FiredAt         time.Time `json:"firedAt"`
}
