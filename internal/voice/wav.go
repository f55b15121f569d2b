package voice

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
	"log"
	"sync"
	"time"

	"github.com/ebitengine/oto/v3"
)

var (
	audioCtx      *oto.Context
	audioCtxOnce  sync.Once
	audioCtxReady bool
)

type wavFormat struct {
	SampleRate int
	Channels   int
	BitDepth   int
}

// initAudioContext initializes the process-wide audio context once. The
// first clip's format decides the context parameters.
func initAudioContext(format *wavFormat) {
	audioCtxOnce.Do(func() {
		op := &oto.NewContextOptions{
			SampleRate:   format.SampleRate,
			ChannelCount: format.Channels,
			Format:       oto.FormatSignedInt16LE,
		}

		ctx, readyChan, err := oto.NewContext(op)
		if err != nil {
			log.Printf("[voice] failed to initialize audio context: %v", err)
			return
		}

		<-readyChan

		audioCtx = ctx
		audioCtxReady = true
	})
}

// playWAV plays one pass of the clip, honoring stop mid-playback.
func playWAV(wavData []byte, stop <-chan struct{}) error {
	format, audioData, err := parseWAV(wavData)
	if err != nil {
		return err
	}

	initAudioContext(format)
	if !audioCtxReady || audioCtx == nil {
		return errors.New("audio context not ready")
	}

	player := audioCtx.NewPlayer(bytes.NewReader(audioData))
	player.Play()

	for player.IsPlaying() {
		select {
		case <-stop:
			player.Pause()
			return player.Close()
		case <-time.After(10 * time.Millisecond):
		}
	}
	return player.Close()
}

// parseWAV parses a WAV file and returns the format and raw sample data.
func parseWAV(data []byte) (*wavFormat, []byte, error) {
	reader := bytes.NewReader(data)

	riff := make([]byte, 4)
	if _, err := reader.Read(riff); err != nil {
		return nil, nil, err
	}
	if string(riff) != "RIFF" {
		return nil, nil, errors.New("not a RIFF file")
	}

	// Skip file size.
	reader.Seek(4, io.SeekCurrent)

	wave := make([]byte, 4)
	if _, err := reader.Read(wave); err != nil {
		return nil, nil, err
	}
	if string(wave) != "WAVE" {
		return nil, nil, errors.New("not a WAVE file")
	}

	format := &wavFormat{}
	var dataStart int64
	var dataSize uint32

	for {
		chunkID := make([]byte, 4)
		if _, err := reader.Read(chunkID); err != nil {
			if err == io.EOF {
				break
			}
			return nil, nil, err
		}

		var chunkSize uint32
		if err := binary.Read(reader, binary.LittleEndian, &chunkSize); err != nil {
			return nil, nil, err
		}

		switch string(chunkID) {
		case "fmt ":
			var audioFormat uint16
			binary.Read(reader, binary.LittleEndian, &audioFormat)

			var numChannels uint16
			binary.Read(reader, binary.LittleEndian, &numChannels)
			format.Channels = int(numChannels)

			var sampleRate uint32
			binary.Read(reader, binary.LittleEndian, &sampleRate)
			format.SampleRate = int(sampleRate)

			// Skip byte rate and block align.
			reader.Seek(6, io.SeekCurrent)

			var bitsPerSample uint16
			binary.Read(reader, binary.LittleEndian, &bitsPerSample)
			format.BitDepth = int(bitsPerSample)

			if remaining := chunkSize - 16; remaining > 0 {
				reader.Seek(int64(remaining), io.SeekCurrent)
			}
		case "data":
			dataStart, _ = reader.Seek(0, io.SeekCurrent)
			dataSize = chunkSize
		default:
			reader.Seek(int64(chunkSize), io.SeekCurrent)
		}

		if dataSize > 0 {
			break
		}
	}

	if dataSize == 0 {
		return nil, nil, errors.New("no data chunk")
	}

	audioData := make([]byte, dataSize)
	reader.Seek(dataStart, io.SeekStart)
	if _, err := io.ReadFull(reader, audioData); err != nil {
		return nil, nil, err
	}

	return format, audioData, nil
}
