package gateway

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/careloop/eldermed/internal/bus"
	"github.com/careloop/eldermed/internal/channel"
	"github.com/careloop/eldermed/internal/companion"
	"github.com/careloop/eldermed/internal/config"
	"github.com/careloop/eldermed/internal/escalation"
	"github.com/careloop/eldermed/internal/store"
	"github.com/careloop/eldermed/internal/voice"
)

// Options for creating a Gateway
type Options struct {
	RuntimeFactory companion.RuntimeFactory
	SignalChan     chan os.Signal // for testing signal handling
}

// Gateway wires the whole daemon together: the sqlite schedule, the
// escalation engine with its tick monitor, the channels, the voice
// announcer, and the chat companion.
type Gateway struct {
	cfg        *config.Config
	bus        *bus.MessageBus
	store      *store.Store
	engine     *escalation.Engine
	monitor    *escalation.Monitor
	channels   *channel.ChannelManager
	companion  *companion.Companion
	announcer  *voice.Announcer
	signalChan chan os.Signal // for testing
}

// New creates a Gateway with default options
func New(cfg *config.Config) (*Gateway, error) {
	return NewWithOptions(cfg, Options{})
}

// NewWithOptions creates a Gateway with custom options for testing
func NewWithOptions(cfg *config.Config, opts Options) (*Gateway, error) {
	g := &Gateway{cfg: cfg}

	g.bus = bus.NewMessageBus(config.DefaultBufSize)

	dbPath := strings.TrimSpace(cfg.Store.DBPath)
	if dbPath == "" {
		dbPath = filepath.Join(config.ConfigDir(), "data", "eldermed.db")
	}
	st, err := store.Open(dbPath)
	if err != nil {
		return nil, fmt.Errorf("open schedule store: %w", err)
	}
	g.store = st

	chMgr, err := channel.NewChannelManager(cfg.Channels, cfg.Gateway, g.bus)
	if err != nil {
		_ = g.store.Close()
		return nil, fmt.Errorf("create channel manager: %w", err)
	}
	g.channels = chMgr

	if cfg.Voice.Enabled {
		g.announcer = voice.NewAnnouncer(&voice.SystemSpeaker{
			SpeechCommand: cfg.Voice.SpeechCommand,
			SpeechArgs:    cfg.Voice.SpeechArgs,
		}, cfg.Voice.GlobalClip)
	}

	caregiverChat := ""
	if tg := chMgr.Telegram(); tg != nil {
		caregiverChat = tg.CaregiverChatID()
	}
	presenter := &alertPresenter{
		announcer:        g.announcer,
		bus:              g.bus,
		caregiverChat:    caregiverChat,
		emergencyContact: cfg.Profile.EmergencyContact,
	}

	g.engine = escalation.NewEngine(g.store, presenter, escalation.Policy(cfg.Engine.AlertPolicy))
	g.monitor = escalation.NewMonitor(g.engine,
		time.Duration(cfg.Engine.TickSeconds)*time.Second, cfg.Engine.RolloverTime)

	if cfg.Companion.Enabled {
		comp, err := companion.New(cfg, companion.Options{RuntimeFactory: opts.RuntimeFactory})
		if err != nil {
			_ = g.store.Close()
			return nil, fmt.Errorf("create companion: %w", err)
		}
		g.companion = comp
	}

	g.signalChan = opts.SignalChan

	return g, nil
}

// Engine exposes the escalation engine, mainly for tests and the CLI.
func (g *Gateway) Engine() *escalation.Engine { return g.engine }

// Store exposes the schedule store.
func (g *Gateway) Store() *store.Store { return g.store }

func (g *Gateway) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	go g.bus.DispatchOutbound(ctx)
	go g.bus.DispatchAlerts(ctx)

	if err := g.channels.StartAll(ctx); err != nil {
		return fmt.Errorf("start channels: %w", err)
	}
	log.Printf("[gateway] channels started: %v", g.channels.EnabledChannels())

	if err := g.monitor.Start(ctx); err != nil {
		return fmt.Errorf("start monitor: %w", err)
	}

	go g.processLoop(ctx)

	log.Printf("[gateway] running on %s:%d", g.cfg.Gateway.Host, g.cfg.Gateway.Port)

	// Use injected signal channel for testing, or create default
	sigCh := g.signalChan
	if sigCh == nil {
		sigCh = make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	}
	<-sigCh

	log.Printf("[gateway] shutting down...")
	return g.Shutdown()
}

func (g *Gateway) processLoop(ctx context.Context) {
	for {
		select {
		case msg := <-g.bus.Inbound:
			g.handleInbound(ctx, msg)
		case <-ctx.Done():
			return
		}
	}
}

func (g *Gateway) handleInbound(ctx context.Context, msg bus.InboundMessage) {
	if action, ok := msg.Metadata["action"].(string); ok {
		id, _ := msg.Metadata["medication_id"].(string)
		g.handleAction(msg, action, id)
		return
	}

	log.Printf("[gateway] inbound from %s/%s: %s", msg.Channel, msg.SenderID, truncate(msg.Content, 80))

	if g.handleTextCommand(msg) {
		return
	}
	g.handleChat(ctx, msg)
}

// handleAction processes a dashboard button press.
func (g *Gateway) handleAction(msg bus.InboundMessage, action, id string) {
	if id == "" {
		return
	}
	switch action {
	case "take":
		if err := g.engine.AcknowledgeTaken(id); err != nil {
			log.Printf("[gateway] acknowledge %s: %v", id, err)
			g.reply(msg, "I could not record that dose. Please try again.")
			return
		}
		g.reply(msg, "Well done! Dose recorded.")
		g.checkStock(id)
	case "dismiss":
		stage := escalation.StageNone
		if active := g.engine.Active(); active != nil && active.Medication.ID == id {
			stage = active.Stage
		}
		g.engine.Dismiss(id, stage)
	}
}

// handleTextCommand recognizes plain acknowledgment phrases aimed at the
// active alert, so "taken" in the caregiver chat works like the button.
func (g *Gateway) handleTextCommand(msg bus.InboundMessage) bool {
	active := g.engine.Active()
	if active == nil {
		return false
	}

	switch strings.ToLower(strings.TrimSpace(msg.Content)) {
	case "taken", "took it", "i took it", "done":
		if err := g.engine.AcknowledgeTaken(active.Medication.ID); err != nil {
			log.Printf("[gateway] acknowledge %s: %v", active.Medication.ID, err)
			g.reply(msg, "I could not record that dose. Please try again.")
			return true
		}
		g.reply(msg, fmt.Sprintf("Recorded: %s taken.", active.Medication.DisplayName()))
		g.checkStock(active.Medication.ID)
		return true
	case "snooze", "later", "not yet":
		g.engine.Dismiss(active.Medication.ID, active.Stage)
		g.reply(msg, fmt.Sprintf("Alright, I will stay quiet about %s for a bit.", active.Medication.DisplayName()))
		return true
	}
	return false
}

func (g *Gateway) handleChat(ctx context.Context, msg bus.InboundMessage) {
	if g.companion == nil {
		return
	}

	if reply, emergency := g.companion.CheckEmergency(msg.Content); emergency {
		log.Printf("[gateway] emergency keyword from %s/%s", msg.Channel, msg.SenderID)
		g.reply(msg, reply)
		g.notifyCaregiver(fmt.Sprintf(
			"🚨 **EMERGENCY** message from %s: %q. Please call them immediately.",
			msg.Channel, msg.Content))
		return
	}

	schedule, err := g.store.List()
	if err != nil {
		log.Printf("[gateway] schedule read for chat: %v", err)
	}

	result, err := g.companion.Chat(ctx, msg.Content, msg.SessionKey(), schedule)
	if err != nil {
		log.Printf("[gateway] companion error: %v", err)
		result = "Sorry, I had trouble answering that. Please try again."
	}
	if result != "" {
		g.reply(msg, result)
	}
}

// checkStock warns the caregiver when an acknowledged dose leaves the bottle
// at or below the reorder threshold.
func (g *Gateway) checkStock(id string) {
	med, err := g.store.Get(id)
	if err != nil {
		log.Printf("[gateway] stock check %s: %v", id, err)
		return
	}
	if med.LowStock() {
		g.notifyCaregiver(fmt.Sprintf(
			"📦 %s is running low: %d left (reorder at %d). Time to refill.",
			med.DisplayName(), med.Quantity, med.ReorderAt))
	}
}

func (g *Gateway) notifyCaregiver(content string) {
	tg := g.channels.Telegram()
	if tg == nil || tg.CaregiverChatID() == "" {
		return
	}
	g.bus.Outbound <- bus.OutboundMessage{
		Channel: tg.Name(),
		ChatID:  tg.CaregiverChatID(),
		Content: content,
	}
}

func (g *Gateway) reply(msg bus.InboundMessage, content string) {
	g.bus.Outbound <- bus.OutboundMessage{
		Channel: msg.Channel,
		ChatID:  msg.ChatID,
		Content: content,
	}
}

func (g *Gateway) Shutdown() error {
	g.monitor.Stop()
	if g.announcer != nil {
		g.announcer.Wait()
	}
	_ = g.channels.StopAll()
	if g.companion != nil {
		g.companion.Close()
	}
	if g.store != nil {
		if err := g.store.Close(); err != nil {
			log.Printf("[gateway] close store warning: %v", err)
		}
	}
	log.Printf("[gateway] shutdown complete")
	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
