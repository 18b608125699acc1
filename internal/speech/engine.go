// Package speech turns chapter text into audio and drives its playback.
package speech

import (
	"context"
	"time"
)

// SynthesizeRequest contains parameters for TTS synthesis.
type SynthesizeRequest struct {
	Text  string
	Voice string
	// Rate is the speaking speed multiplier; 1.0 is normal speed.
	Rate float64
}

// AudioResult represents synthesized audio output.
type AudioResult struct {
	// Data contains the audio bytes in WAV format.
	Data []byte
	// Format describes the audio format (e.g., "wav").
	Format string
	// SampleRate is the audio sample rate in Hz.
	SampleRate int
	// Channels is the number of audio channels.
	Channels int
	// BitsPerSample is the PCM bit depth.
	BitsPerSample int
}

// PCM returns the sample data without the WAV header.
func (a *AudioResult) PCM() []byte {
	if len(a.Data) < WAVHeaderSize {
		return nil
	}
	return a.Data[WAVHeaderSize:]
}

// ByteRate returns the number of PCM bytes per second of audio.
func (a *AudioResult) ByteRate() int {
	return a.SampleRate * a.Channels * a.BitsPerSample / 8
}

// Duration returns the playing time of the audio at normal speed.
func (a *AudioResult) Duration() time.Duration {
	br := a.ByteRate()
	if br <= 0 {
		return 0
	}
	return time.Duration(len(a.PCM())) * time.Second / time.Duration(br)
}

// Engine is the interface for text-to-speech synthesis.
type Engine interface {
	// Synthesize converts text to audio.
	Synthesize(ctx context.Context, req SynthesizeRequest) (*AudioResult, error)
	// Name returns the engine identifier.
	Name() string
}
