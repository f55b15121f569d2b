package companion

import (
	"context"
	"fmt"
	"strings"

	"github.com/cexll/agentsdk-go/pkg/api"
	"github.com/cexll/agentsdk-go/pkg/model"

	"github.com/careloop/eldermed/internal/config"
	"github.com/careloop/eldermed/internal/escalation"
)

// Runtime interface for agent runtime (allows mocking in tests)
type Runtime interface {
	Run(ctx context.Context, req api.Request) (*api.Response, error)
	Close()
}

// runtimeAdapter wraps api.Runtime to implement Runtime interface
type runtimeAdapter struct {
	rt *api.Runtime
}

func (r *runtimeAdapter) Run(ctx context.Context, req api.Request) (*api.Response, error) {
	return r.rt.Run(ctx, req)
}

func (r *runtimeAdapter) Close() {
	r.rt.Close()
}

// RuntimeFactory creates a Runtime instance
type RuntimeFactory func(cfg *config.Config, sysPrompt string) (Runtime, error)

// DefaultRuntimeFactory creates the default agentsdk-go runtime
func DefaultRuntimeFactory(cfg *config.Config, sysPrompt string) (Runtime, error) {
	var provider api.ModelFactory
	switch cfg.Provider.Type {
	case "openai":
		provider = &model.OpenAIProvider{
			APIKey:    cfg.Provider.APIKey,
			BaseURL:   cfg.Provider.BaseURL,
			ModelName: cfg.Companion.Model,
			MaxTokens: cfg.Companion.MaxTokens,
		}
	default: // "anthropic" or empty
		provider = &model.AnthropicProvider{
			APIKey:    cfg.Provider.APIKey,
			BaseURL:   cfg.Provider.BaseURL,
			ModelName: cfg.Companion.Model,
			MaxTokens: cfg.Companion.MaxTokens,
		}
	}

	rt, err := api.New(context.Background(), api.Options{
		ProjectRoot:   cfg.Companion.Workspace,
		ModelFactory:  provider,
		SystemPrompt:  sysPrompt,
		MaxIterations: cfg.Companion.MaxToolIterations,
	})
	if err != nil {
		return nil, fmt.Errorf("create runtime: %w", err)
	}
	return &runtimeAdapter{rt: rt}, nil
}

// Companion is the conversational side of the app: a patient, warm assistant
// for the elder, with a hard safety short-circuit for emergency phrases.
type Companion struct {
	runtime          Runtime
	emergencyWords   []string
	emergencyContact string
}

type Options struct {
	RuntimeFactory RuntimeFactory
}

func New(cfg *config.Config, opts Options) (*Companion, error) {
	sysPrompt := systemPrompt(cfg.Profile)

	factory := opts.RuntimeFactory
	if factory == nil {
		factory = DefaultRuntimeFactory
	}
	rt, err := factory(cfg, sysPrompt)
	if err != nil {
		return nil, err
	}

	words := cfg.Companion.EmergencyKeywords
	if len(words) == 0 {
		words = DefaultEmergencyKeywords()
	}
	contact := cfg.Profile.EmergencyContact
	if contact == "" {
		contact = config.DefaultEmergencyContact
	}

	return &Companion{
		runtime:          rt,
		emergencyWords:   words,
		emergencyContact: contact,
	}, nil
}

// DefaultEmergencyKeywords covers the phrases that must never wait for a
// model round trip, in Thai and English.
func DefaultEmergencyKeywords() []string {
	return []string{
		"แน่นหน้าอก", "chest pain",
		"เวียนหัวมาก", "severe dizziness",
		"ล้ม", "fell", "fall down",
		"หายใจไม่ออก", "can't breathe", "cannot breathe",
	}
}

// CheckEmergency scans a message for emergency phrases. When one matches it
// returns the canned escalation reply; the model is bypassed entirely.
func (c *Companion) CheckEmergency(content string) (string, bool) {
	lower := strings.ToLower(content)
	for _, w := range c.emergencyWords {
		if strings.Contains(lower, strings.ToLower(w)) {
			reply := fmt.Sprintf(
				"This sounds serious. Please call %s right away or press the emergency button. I am notifying your caregiver now.",
				c.emergencyContact)
			return reply, true
		}
	}
	return "", false
}

// Chat sends one user message to the model and returns the reply text.
// Schedule context is prepended so the companion answers from today's actual
// medication state instead of guessing.
func (c *Companion) Chat(ctx context.Context, content, sessionID string, schedule []escalation.Medication) (string, error) {
	prompt := content
	if len(schedule) > 0 {
		prompt = fmt.Sprintf("[Today's Schedule]\n%s\n[User Message]\n%s", formatSchedule(schedule), content)
	}

	resp, err := c.runtime.Run(ctx, api.Request{
		Prompt:    prompt,
		SessionID: sessionID,
	})
	if err != nil {
		return "", err
	}
	if resp == nil || resp.Result == nil {
		return "", nil
	}
	return resp.Result.Output, nil
}

func (c *Companion) Close() {
	if c.runtime != nil {
		c.runtime.Close()
	}
}

func formatSchedule(meds []escalation.Medication) string {
	var sb strings.Builder
	for _, m := range meds {
		status := "pending"
		if m.Taken {
			status = "taken"
		}
		fmt.Fprintf(&sb, "- %s (%s) at %s: %s\n", m.DisplayName(), m.Dosage, m.TimeOfDay, status)
	}
	return sb.String()
}

func systemPrompt(profile config.ProfileConfig) string {
	contact := profile.EmergencyContact
	if contact == "" {
		contact = config.DefaultEmergencyContact
	}

	var sb strings.Builder
	sb.WriteString(`Role: You are "ElderMed Companion", a caring assistant for elderly patients.
Tone: Extremely polite, patient, warm, and respectful.
Style: Use simple language and short sentences. Bold key points. Avoid medical jargon.
Context: The user is an elderly person managing chronic conditions.

Core Rules:
1. Medication: Prioritize safety. If a dose is missed, suggest standard safety steps and never advise doubling a dose.
2. Emergency: If the user describes chest pain, severe dizziness, a fall, or trouble breathing, IMMEDIATELY tell them to call ` + contact + ` or contact their caregiver.
3. Disclaimer: ALWAYS end medical advice with a reminder to consult a doctor or pharmacist before changing any treatment.

Output Format:
1. Acknowledgment (greeting, empathy)
2. Main information (key terms bolded)
3. Encouragement
4. Disclaimer (when medical advice is given)
`)
	if profile.Name != "" {
		fmt.Fprintf(&sb, "\nThe user's name is %s. Address them by name.\n", profile.Name)
	}
	if profile.WakeUpTime != "" {
		fmt.Fprintf(&sb, "They usually wake up around %s; today's schedule starts after that.\n", profile.WakeUpTime)
	}
	return sb.String()
}
