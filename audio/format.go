// Package audio handles candidate recordings: format checks, transcoding to WAV and acoustic features.
package audio

import (
	"fmt"
	"strings"
)

// Format is a declared recording container.
type Format string

const (
	FormatWAV  Format = "wav"
	FormatMP3  Format = "mp3"
	FormatM4A  Format = "m4a"
	FormatFLAC Format = "flac"
)

// Canonical is the format features and transcription are computed on.
const Canonical = FormatWAV

// DefaultFormats are the formats accepted when none are configured.
func DefaultFormats() []Format {
	return []Format{FormatWAV, FormatMP3, FormatM4A, FormatFLAC}
}

// ParseFormat normalizes a declared format such as "MP3" or ".m4a".
func ParseFormat(s string) (Format, error) {
	f := Format(strings.TrimPrefix(strings.ToLower(strings.TrimSpace(s)), "."))
	if f == "" {
		return "", fmt.Errorf("audio format is required")
	}
	return f, nil
}

// ParseFormats parses a comma-separated list, skipping blanks.
// Every entry must be one of DefaultFormats.
func ParseFormats(list string) ([]Format, error) {
	var formats []Format
	for _, part := range strings.Split(list, ",") {
		if strings.TrimSpace(part) == "" {
			continue
		}
		f, err := ParseFormat(part)
		if err != nil {
			return nil, err
		}
		if !Supported(f, DefaultFormats()) {
			return nil, fmt.Errorf("audio format %q cannot be transcoded", f)
		}
		formats = append(formats, f)
	}
	if len(formats) == 0 {
		return nil, fmt.Errorf("no audio formats in %q", list)
	}
	return formats, nil
}

// Supported reports whether f is in the allowed set.
func Supported(f Format, allowed []Format) bool {
	for _, a := range allowed {
		if a == f {
			return true
		}
	}
	return false
}

// MIMEType is the media type used when sending audio inline to a model.
func (f Format) MIMEType() string {
	switch f {
	case FormatWAV:
		return "audio/wav"
	case FormatMP3:
		return "audio/mp3"
	case FormatM4A:
		return "audio/mp4"
	case FormatFLAC:
		return "audio/flac"
	}
	return "application/octet-stream"
}
