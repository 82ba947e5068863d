package audio

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"math"

	"github.com/go-audio/wav"
)

// SilenceFloorDB is reported as the volume of silent or empty recordings.
const SilenceFloorDB = -120.0

// samplesPerWord is the coarse interleaved sample count treated as one spoken word.
const samplesPerWord = 16000

var ErrInvalidWAV = errors.New("not a valid WAV stream")

// Features are the acoustic measurements of a canonical recording.
type Features struct {
	DurationSeconds float64 `json:"duration_seconds"`
	DurationMS      int64   `json:"duration_ms"`
	VolumeDB        float64 `json:"volume_db"` // dBFS
	VolumeLinear    float64 `json:"volume_linear"`
	SampleRate      int     `json:"sample_rate"`
	Channels        int     `json:"channels"`
	SpeechRate      float64 `json:"speech_rate_estimate"` // word proxy per minute
}

// ExtractFeatures decodes a PCM WAV stream and measures it.
func ExtractFeatures(r io.ReadSeeker) (Features, error) {
	d := wav.NewDecoder(r)
	if !d.IsValidFile() {
		return Features{}, ErrInvalidWAV
	}

	buf, err := d.FullPCMBuffer()
	if err != nil {
		return Features{}, fmt.Errorf("failed to decode PCM data: %w", err)
	}

	channels := int(d.NumChans)
	sampleRate := int(d.SampleRate)
	if channels <= 0 || sampleRate <= 0 {
		return Features{}, fmt.Errorf("%w: %d channels at %d Hz", ErrInvalidWAV, channels, sampleRate)
	}

	frames := len(buf.Data) / channels
	duration := float64(frames) / float64(sampleRate)

	f := Features{
		DurationSeconds: duration,
		DurationMS:      int64(duration * 1000),
		SampleRate:      sampleRate,
		Channels:        channels,
	}
	f.VolumeDB = dBFS(buf.Data, int(d.BitDepth))
	f.VolumeLinear = math.Pow(10, f.VolumeDB/20)
	if duration > 0 {
		words := len(buf.Data) / samplesPerWord
		f.SpeechRate = float64(words) / (duration / 60)
	}
	return f, nil
}

// ExtractFeaturesFromBytes is ExtractFeatures over an in-memory recording.
func ExtractFeaturesFromBytes(data []byte) (Features, error) {
	return ExtractFeatures(bytes.NewReader(data))
}

// dBFS is the RMS level relative to full scale, floored at SilenceFloorDB.
func dBFS(samples []int, bitDepth int) float64 {
	if len(samples) == 0 || bitDepth <= 0 {
		return SilenceFloorDB
	}
	full := float64(int64(1) << (bitDepth - 1))
	offset := 0.0
	if bitDepth == 8 {
		// 8-bit PCM is unsigned
		offset = full
	}

	var sum float64
	for _, s := range samples {
		v := (float64(s) - offset) / full
		sum += v * v
	}
	rms := math.Sqrt(sum / float64(len(samples)))
	if rms == 0 {
		return SilenceFloorDB
	}
	return math.Max(SilenceFloorDB, 20*math.Log10(rms))
}
