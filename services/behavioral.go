package services

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/krshsl/praxis/grader/audio"
	"github.com/krshsl/praxis/grader/models"
	"github.com/krshsl/praxis/grader/scoring"
	"gorm.io/datatypes"
)

type BehavioralSubmission struct {
	SessionID  string
	QuestionID string
	Audio      []byte
	Format     string
	Replace    bool
}

// SubmitBehavioral transcribes a recorded answer, analyses its tone and scores it.
func (p *SubmissionPipeline) SubmitBehavioral(ctx context.Context, sub BehavioralSubmission) (*SubmissionResult, error) {
	format, err := p.checkMedia(sub)
	if err != nil {
		return nil, err
	}

	release, session, question, firstAnswer, err := p.begin(ctx, sub.SessionID, sub.QuestionID, models.InterviewBehavioral, sub.Replace)
	if err != nil {
		return nil, err
	}
	defer release()

	canonical, err := p.transcode(ctx, sub.Audio, format)
	if err != nil {
		return nil, p.abort(ctx, sub.SessionID, sub.QuestionID, nil, err)
	}
	defer canonical.Release()

	features, err := audio.ExtractFeaturesFromBytes(canonical.Bytes)
	if err != nil {
		return nil, p.abort(ctx, sub.SessionID, sub.QuestionID, nil, &Error{Kind: KindExternal, Err: ErrMediaProcessing, Msg: "could not read audio features", Cause: err})
	}
	slog.Debug("Audio features extracted", "session_id", sub.SessionID, "duration", features.DurationSeconds, "volume_db", features.VolumeDB)

	transcript, recognized, err := p.transcribe(ctx, canonical.Bytes)
	if err != nil {
		return nil, p.abort(ctx, sub.SessionID, sub.QuestionID, nil, err)
	}
	p.events.Publish(Event{
		Type:       EventSubmissionTranscribed,
		SessionID:  sub.SessionID,
		QuestionID: sub.QuestionID,
		Data:       map[string]any{"transcription": transcript, "recognized": recognized},
	})

	tone := p.tone.Analyze(transcript)

	now := p.now()
	response := &models.Response{
		InterviewID:     session.InterviewID,
		SessionID:       sub.SessionID,
		QuestionID:      sub.QuestionID,
		TextResponse:    transcript,
		StartTime:       now.Add(-time.Duration(features.DurationSeconds * float64(time.Second))),
		EndTime:         now,
		DurationSeconds: features.DurationSeconds,
	}
	a, err := p.persistResponse(ctx, response, sub.Replace)
	if err != nil {
		return nil, err
	}

	artifact := &models.AudioArtifact{
		ResponseID:      response.ID,
		Format:          string(format),
		FileSize:        int64(len(sub.Audio)),
		DurationSeconds: features.DurationSeconds,
		DurationMS:      features.DurationMS,
		VolumeDB:        features.VolumeDB,
		VolumeLinear:    features.VolumeLinear,
		SampleRate:      features.SampleRate,
		Channels:        features.Channels,
		SpeechRate:      features.SpeechRate,
		Transcription:   transcript,
		Tone:            datatypes.NewJSONType(toneMetrics(tone)),
		Status:          models.ProcessingCompleted,
		ProcessedAt:     &now,
	}
	if err := p.repo.CreateAudioArtifact(ctx, artifact); err != nil {
		return nil, p.abort(ctx, sub.SessionID, sub.QuestionID, a, persistenceError(err, "failed to store audio artifact"))
	}
	response.Audio = artifact

	judgment, err := p.evaluate(ctx, scoring.KindBehavioral, EvaluationRequest{
		Question:  behavioralQuestion(question),
		Response:  transcript,
		KeyPoints: question.KeyPoints,
	})
	if err != nil {
		return nil, p.abort(ctx, sub.SessionID, sub.QuestionID, a, err)
	}

	result := p.engine.ComputeBehavioral(judgment, tone)
	if !recognized {
		result.Warnings = append(result.Warnings, "no intelligible speech was recognized")
	}

	out, err := p.finalize(ctx, a, result, judgment, firstAnswer)
	if err != nil {
		return nil, p.abort(ctx, sub.SessionID, sub.QuestionID, a, err)
	}
	out.Transcription = &transcript
	out.Tone = &tone
	out.Audio = &features
	return out, nil
}

// checkMedia validates the declared format and payload size before any work is done.
func (p *SubmissionPipeline) checkMedia(sub BehavioralSubmission) (audio.Format, error) {
	format, err := audio.ParseFormat(sub.Format)
	if err != nil {
		return "", validationError(ErrUnsupportedMedia, "%v", err)
	}
	if !audio.Supported(format, p.audio.SupportedFormats) {
		return "", validationError(ErrUnsupportedMedia, "format %q", format)
	}
	if len(sub.Audio) == 0 {
		return "", validationError(ErrInvalidInput, "audio is empty")
	}
	if p.audio.MaxBytes > 0 && int64(len(sub.Audio)) > p.audio.MaxBytes {
		return "", validationError(ErrPayloadTooLarge, "%d bytes exceeds the %d byte limit", len(sub.Audio), p.audio.MaxBytes)
	}
	return format, nil
}

// transcode converts to canonical WAV. Codec failures are fatal and never retried.
func (p *SubmissionPipeline) transcode(ctx context.Context, data []byte, format audio.Format) (*audio.Artifact, error) {
	ctx, cancel := withTimeout(ctx, p.cfg.CodecTimeout)
	defer cancel()

	artifact, err := p.transcoder.Transcode(ctx, data, format)
	if err != nil {
		return nil, &Error{Kind: KindExternal, Err: ErrMediaProcessing, Msg: "could not convert " + string(format), Cause: err}
	}
	return artifact, nil
}

// transcribe returns the transcript; unrecognized speech is not an error and yields empty text.
func (p *SubmissionPipeline) transcribe(ctx context.Context, wav []byte) (string, bool, error) {
	ctx, cancel := withTimeout(ctx, p.cfg.TranscriptionTimeout)
	defer cancel()

	var transcript string
	err := p.cfg.Retry.Do(ctx, "transcribe", func(ctx context.Context) error {
		text, err := p.transcriber.Transcribe(ctx, wav, audio.Canonical)
		if err != nil {
			return err
		}
		transcript = text
		return nil
	})
	switch {
	case errors.Is(err, ErrUnrecognized):
		slog.Info("No speech recognized in recording", "size", len(wav))
		return "", false, nil
	case err != nil:
		return "", false, externalError(ErrTranscriberFailed, err, "transcription failed")
	}
	transcript = strings.TrimSpace(transcript)
	return transcript, transcript != "", nil
}

func behavioralQuestion(q *models.Question) string {
	if q.Scenario == "" {
		return q.Content
	}
	return q.Content + "\n\nScenario: " + q.Scenario
}

func toneMetrics(t scoring.ToneAnalysis) models.ToneMetrics {
	return models.ToneMetrics{
		SentimentLabel:        t.SentimentLabel,
		SentimentScore:        t.SentimentScore,
		ClarityScore:          t.ClarityScore,
		ProfessionalismScore:  t.ProfessionalismScore,
		AvgSentenceLength:     t.AvgSentenceLength,
		TotalWords:            t.TotalWords,
		ProfessionalWordCount: t.ProfessionalWordCount,
	}
}
