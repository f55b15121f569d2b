package voice

import (
	"fmt"
	"os"
	"os/exec"
)

// Speaker produces a single audio cue. Both calls block until the cue
// finishes or stop closes.
type Speaker interface {
	PlayClip(path string, stop <-chan struct{}) error
	Speak(text string, stop <-chan struct{}) error
}

// SystemSpeaker plays WAV clips through the sound card and shells out to a
// text-to-speech command (espeak, say, piper) for synthesized messages.
type SystemSpeaker struct {
	SpeechCommand string
	SpeechArgs    []string
}

func (s *SystemSpeaker) PlayClip(path string, stop <-chan struct{}) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read clip: %w", err)
	}
	if err := playWAV(data, stop); err != nil {
		return fmt.Errorf("play clip: %w", err)
	}
	return nil
}

func (s *SystemSpeaker) Speak(text string, stop <-chan struct{}) error {
	if s.SpeechCommand == "" {
		return fmt.Errorf("no speech command configured")
	}

	args := append(append([]string{}, s.SpeechArgs...), text)
	cmd := exec.Command(s.SpeechCommand, args...)
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start speech command: %w", err)
	}

	done := make(chan error, 1)
	go func() { done <- cmd.Wait() }()

	select {
	case <-stop:
		_ = cmd.Process.Kill()
		<-done
		return nil
	case err := <-done:
		if err != nil {
			return fmt.Errorf("speech command: %w", err)
		}
		return nil
	}
}
