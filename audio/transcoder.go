package audio

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strings"
)

// Artifact is a canonical WAV recording backed by a temporary file.
// Release must be called on every exit path of the submission that produced it.
type Artifact struct {
	Path  string
	Bytes []byte
	temp  bool
}

// Release removes the backing temp file, if any. Safe to call more than once.
func (a *Artifact) Release() {
	if a == nil || !a.temp || a.Path == "" {
		return
	}
	if err := os.Remove(a.Path); err != nil && !os.IsNotExist(err) {
		slog.Warn("Failed to remove transcoded audio", "path", a.Path, "error", err)
	}
	a.temp = false
}

// TempArtifact wraps a converted recording stored at path; Release removes the file.
func TempArtifact(path string, data []byte) *Artifact {
	return &Artifact{Path: path, Bytes: data, temp: true}
}

// Transcoder converts a recording to canonical WAV.
type Transcoder interface {
	Transcode(ctx context.Context, data []byte, from Format) (*Artifact, error)
}

// FFmpegTranscoder shells out to ffmpeg, producing 16 kHz mono 16-bit PCM.
type FFmpegTranscoder struct {
	Binary  string // defaults to "ffmpeg"
	TempDir string // defaults to os.TempDir()
}

func NewFFmpegTranscoder(binary, tempDir string) *FFmpegTranscoder {
	return &FFmpegTranscoder{Binary: binary, TempDir: tempDir}
}

// Transcode writes data to a temp input file and converts it. WAV input is passed through
// without invoking ffmpeg.
func (t *FFmpegTranscoder) Transcode(ctx context.Context, data []byte, from Format) (*Artifact, error) {
	if from == Canonical {
		return &Artifact{Bytes: data}, nil
	}

	binary := t.Binary
	if binary == "" {
		binary = "ffmpeg"
	}

	inputFile, err := os.CreateTemp(t.TempDir, "input-*."+string(from))
	if err != nil {
		return nil, fmt.Errorf("failed to create input temp file: %w", err)
	}
	defer os.Remove(inputFile.Name())

	if _, err := inputFile.Write(data); err != nil {
		inputFile.Close()
		return nil, fmt.Errorf("failed to write %s data: %w", from, err)
	}
	if err := inputFile.Close(); err != nil {
		return nil, fmt.Errorf("failed to close input temp file: %w", err)
	}

	outputFile, err := os.CreateTemp(t.TempDir, "output-*.wav")
	if err != nil {
		return nil, fmt.Errorf("failed to create output temp file: %w", err)
	}
	outputFile.Close()
	out := TempArtifact(outputFile.Name(), nil)

	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, binary,
		"-hide_banner", "-loglevel", "error",
		"-i", inputFile.Name(),
		"-acodec", "pcm_s16le",
		"-ar", "16000",
		"-ac", "1",
		"-y",
		out.Path,
	)
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		out.Release()
		if ctx.Err() != nil {
			return nil, fmt.Errorf("ffmpeg conversion interrupted: %w", ctx.Err())
		}
		return nil, fmt.Errorf("ffmpeg conversion failed: %w: %s", err, strings.TrimSpace(stderr.String()))
	}

	wavData, err := os.ReadFile(out.Path)
	if err != nil {
		out.Release()
		return nil, fmt.Errorf("failed to read converted WAV file: %w", err)
	}
	out.Bytes = wavData

	slog.Debug("Audio conversion completed", "format", from, "input_size", len(data), "wav_size", len(wavData))
	return out, nil
}
