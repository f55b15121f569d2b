package voice

import (
	"log"
	"sync"
	"time"

	"github.com/careloop/eldermed/internal/escalation"
)

const defaultRepeatInterval = 3 * time.Second

// Announcer turns an active alert into a repeating audio cue. Each cue
// tries the medication's own recorded clip first, then the household's
// global clip, then synthesized speech.
//
// PresentAlert and StopAlert return immediately; playback runs on its own
// goroutine so callers holding locks are never blocked on audio.
type Announcer struct {
	speaker    Speaker
	globalClip string

	mu     sync.Mutex
	stopCh chan struct{}
	done   chan struct{}
}

func NewAnnouncer(speaker Speaker, globalClip string) *Announcer {
	return &Announcer{speaker: speaker, globalClip: globalClip}
}

func (a *Announcer) PresentAlert(alert escalation.Alert) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.stopLocked()

	stopCh := make(chan struct{})
	done := make(chan struct{})
	a.stopCh = stopCh
	a.done = done

	go a.announceLoop(alert, stopCh, done)
}

func (a *Announcer) StopAlert() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.stopLocked()
}

func (a *Announcer) stopLocked() {
	if a.stopCh != nil {
		close(a.stopCh)
		a.stopCh = nil
	}
}

// Wait blocks until the current announcement loop exits. Used on shutdown.
func (a *Announcer) Wait() {
	a.mu.Lock()
	done := a.done
	a.mu.Unlock()
	if done != nil {
		<-done
	}
}

func (a *Announcer) announceLoop(alert escalation.Alert, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	interval := alert.Stage.Profile().RepeatInterval
	if interval <= 0 {
		interval = defaultRepeatInterval
	}

	for {
		a.cue(alert, stop)
		select {
		case <-stop:
			return
		case <-time.After(interval):
		}
	}
}

// cue plays one pass of the alert sound, falling back down the chain when a
// source is missing or fails.
func (a *Announcer) cue(alert escalation.Alert, stop <-chan struct{}) {
	if clip := alert.Medication.VoiceClip; clip != "" {
		if err := a.speaker.PlayClip(clip, stop); err == nil {
			return
		} else {
			log.Printf("[voice] medication clip %s: %v", clip, err)
		}
	}

	if a.globalClip != "" {
		if err := a.speaker.PlayClip(a.globalClip, stop); err == nil {
			return
		} else {
			log.Printf("[voice] global clip %s: %v", a.globalClip, err)
		}
	}

	msg := alert.Stage.SpokenMessage(alert.Medication)
	if err := a.speaker.Speak(msg, stop); err != nil {
		log.Printf("[voice] speech synthesis: %v", err)
	}
}
