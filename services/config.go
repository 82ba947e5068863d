package services

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/krshsl/praxis/grader/audio"
	"github.com/krshsl/praxis/grader/repository"
	"github.com/krshsl/praxis/grader/scoring"
	"github.com/spf13/viper"
)

// Config holds application configuration. It is loaded once at startup and not mutated afterwards.
type Config struct {
	Server    ServerConfig
	Log       LogConfig
	Database  DatabaseConfig
	AI        AIConfig
	Scoring   ScoringConfig
	Audio     AudioConfig
	Pipeline  PipelineConfig
	WebSocket WebSocketConfig
	CORS      CORSConfig
}

type ServerConfig struct {
	Port string
}

type LogConfig struct {
	Level string
}

type DatabaseConfig struct {
	URL          string
	Seed         bool
	LogLevel     string
	MaxIdleConns int
	MaxOpenConns int
}

type AIConfig struct {
	GeminiAPIKey  string
	Model         string
	Temperature   float32
	MaxConcurrent int64
}

type ScoringConfig struct {
	Technical          scoring.TechnicalWeights
	Behavioral         scoring.BehavioralWeights
	Window             scoring.TimeWindow
	WindowByDifficulty bool
	MissingScorePolicy scoring.MissingScorePolicy
}

type AudioConfig struct {
	MaxBytes         int64
	SupportedFormats []audio.Format
	FFmpegPath       string
	TempDir          string
}

type PipelineConfig struct {
	EvaluationTimeout    time.Duration
	TranscriptionTimeout time.Duration
	CodecTimeout         time.Duration
	Retry                RetryPolicy
}

type WebSocketConfig struct {
	AllowedOrigins string
}

type CORSConfig struct {
	AllowedOrigins []string
}

// LoadConfig loads configuration from environment variables and config files
func LoadConfig() (*Config, error) {
	viper.SetConfigName(".env")
	viper.SetConfigType("env")
	viper.AddConfigPath(".")
	viper.AutomaticEnv()

	// Set defaults
	viper.SetDefault("server.port", "8080")
	viper.SetDefault("log.level", "info")
	viper.SetDefault("database.url", "")
	viper.SetDefault("database.seed", "true")
	viper.SetDefault("database.log_level", "silent")
	viper.SetDefault("database.max_idle_conns", "10")
	viper.SetDefault("database.max_open_conns", "100")
	viper.SetDefault("gemini.api_key", "")
	viper.SetDefault("gemini.model", "gemini-2.5-flash")
	viper.SetDefault("gemini.temperature", "0.2")
	viper.SetDefault("gemini.max_concurrent", "8")
	viper.SetDefault("scoring.technical.accuracy_weight", "0.5")
	viper.SetDefault("scoring.technical.time_weight", "0.2")
	viper.SetDefault("scoring.technical.optimality_weight", "0.2")
	viper.SetDefault("scoring.technical.process_weight", "0.1")
	viper.SetDefault("scoring.behavioral.evaluator_weight", "0.8")
	viper.SetDefault("scoring.behavioral.tone_weight", "0.2")
	viper.SetDefault("scoring.time_window.min", "60")
	viper.SetDefault("scoring.time_window.max", "300")
	viper.SetDefault("scoring.window_by_difficulty", "false")
	viper.SetDefault("scoring.missing_score_policy", string(scoring.ZeroFill))
	viper.SetDefault("audio.max_bytes", "52428800")
	viper.SetDefault("audio.supported_formats", "wav,mp3,m4a,flac")
	viper.SetDefault("audio.ffmpeg_path", "ffmpeg")
	viper.SetDefault("audio.temp_dir", os.TempDir())
	viper.SetDefault("pipeline.evaluation_timeout", "60s")
	viper.SetDefault("pipeline.transcription_timeout", "30s")
	viper.SetDefault("pipeline.codec_timeout", "30s")
	viper.SetDefault("pipeline.retry.max_attempts", "3")
	viper.SetDefault("pipeline.retry.initial_backoff", "500ms")
	viper.SetDefault("pipeline.retry.max_backoff", "5s")
	viper.SetDefault("websocket.allowed_origins", "")
	viper.SetDefault("cors.allowed_origins", "*")

	// Map environment variables to config keys
	viper.BindEnv("server.port", "SERVER_PORT")
	viper.BindEnv("log.level", "LOG_LEVEL")
	viper.BindEnv("database.url", "DATABASE_URL")
	viper.BindEnv("database.seed", "DATABASE_SEED")
	viper.BindEnv("database.log_level", "DATABASE_LOG_LEVEL")
	viper.BindEnv("database.max_idle_conns", "DATABASE_MAX_IDLE_CONNS")
	viper.BindEnv("database.max_open_conns", "DATABASE_MAX_OPEN_CONNS")
	viper.BindEnv("gemini.api_key", "GEMINI_API_KEY")
	viper.BindEnv("gemini.model", "GEMINI_MODEL")
	viper.BindEnv("gemini.temperature", "GEMINI_TEMPERATURE")
	viper.BindEnv("gemini.max_concurrent", "GEMINI_MAX_CONCURRENT")
	viper.BindEnv("scoring.technical.accuracy_weight", "SCORING_TECHNICAL_ACCURACY_WEIGHT")
	viper.BindEnv("scoring.technical.time_weight", "SCORING_TECHNICAL_TIME_WEIGHT")
	viper.BindEnv("scoring.technical.optimality_weight", "SCORING_TECHNICAL_OPTIMALITY_WEIGHT")
	viper.BindEnv("scoring.technical.process_weight", "SCORING_TECHNICAL_PROCESS_WEIGHT")
	viper.BindEnv("scoring.behavioral.evaluator_weight", "SCORING_BEHAVIORAL_EVALUATOR_WEIGHT")
	viper.BindEnv("scoring.behavioral.tone_weight", "SCORING_BEHAVIORAL_TONE_WEIGHT")
	viper.BindEnv("scoring.time_window.min", "SCORING_TIME_WINDOW_MIN")
	viper.BindEnv("scoring.time_window.max", "SCORING_TIME_WINDOW_MAX")
	viper.BindEnv("scoring.window_by_difficulty", "SCORING_WINDOW_BY_DIFFICULTY")
	viper.BindEnv("scoring.missing_score_policy", "SCORING_MISSING_SCORE_POLICY")
	viper.BindEnv("audio.max_bytes", "AUDIO_MAX_BYTES")
	viper.BindEnv("audio.supported_formats", "AUDIO_SUPPORTED_FORMATS")
	viper.BindEnv("audio.ffmpeg_path", "AUDIO_FFMPEG_PATH")
	viper.BindEnv("audio.temp_dir", "AUDIO_TEMP_DIR")
	viper.BindEnv("pipeline.evaluation_timeout", "PIPELINE_EVALUATION_TIMEOUT")
	viper.BindEnv("pipeline.transcription_timeout", "PIPELINE_TRANSCRIPTION_TIMEOUT")
	viper.BindEnv("pipeline.codec_timeout", "PIPELINE_CODEC_TIMEOUT")
	viper.BindEnv("pipeline.retry.max_attempts", "PIPELINE_RETRY_MAX_ATTEMPTS")
	viper.BindEnv("pipeline.retry.initial_backoff", "PIPELINE_RETRY_INITIAL_BACKOFF")
	viper.BindEnv("pipeline.retry.max_backoff", "PIPELINE_RETRY_MAX_BACKOFF")
	viper.BindEnv("websocket.allowed_origins", "WEBSOCKET_ALLOWED_ORIGINS")
	viper.BindEnv("cors.allowed_origins", "CORS_ALLOWED_ORIGINS")

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			slog.Warn("Config file not found, using defaults and environment variables")
		} else {
			slog.Error("Error reading config file", "error", err)
		}
	}

	policy, err := scoring.ParseMissingScorePolicy(viper.GetString("scoring.missing_score_policy"))
	if err != nil {
		return nil, err
	}
	formats, err := audio.ParseFormats(viper.GetString("audio.supported_formats"))
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		Server: ServerConfig{
			Port: viper.GetString("server.port"),
		},
		Log: LogConfig{
			Level: viper.GetString("log.level"),
		},
		Database: DatabaseConfig{
			URL:          viper.GetString("database.url"),
			Seed:         viper.GetBool("database.seed"),
			LogLevel:     viper.GetString("database.log_level"),
			MaxIdleConns: viper.GetInt("database.max_idle_conns"),
			MaxOpenConns: viper.GetInt("database.max_open_conns"),
		},
		AI: AIConfig{
			GeminiAPIKey:  viper.GetString("gemini.api_key"),
			Model:         viper.GetString("gemini.model"),
			Temperature:   float32(viper.GetFloat64("gemini.temperature")),
			MaxConcurrent: viper.GetInt64("gemini.max_concurrent"),
		},
		Scoring: ScoringConfig{
			Technical: scoring.TechnicalWeights{
				Accuracy:   viper.GetFloat64("scoring.technical.accuracy_weight"),
				Time:       viper.GetFloat64("scoring.technical.time_weight"),
				Optimality: viper.GetFloat64("scoring.technical.optimality_weight"),
				Process:    viper.GetFloat64("scoring.technical.process_weight"),
			},
			Behavioral: scoring.BehavioralWeights{
				Evaluator: viper.GetFloat64("scoring.behavioral.evaluator_weight"),
				Tone:      viper.GetFloat64("scoring.behavioral.tone_weight"),
			},
			Window: scoring.TimeWindow{
				Min: viper.GetFloat64("scoring.time_window.min"),
				Max: viper.GetFloat64("scoring.time_window.max"),
			},
			WindowByDifficulty: viper.GetBool("scoring.window_by_difficulty"),
			MissingScorePolicy: policy,
		},
		Audio: AudioConfig{
			MaxBytes:         viper.GetInt64("audio.max_bytes"),
			SupportedFormats: formats,
			FFmpegPath:       viper.GetString("audio.ffmpeg_path"),
			TempDir:          viper.GetString("audio.temp_dir"),
		},
		Pipeline: PipelineConfig{
			EvaluationTimeout:    viper.GetDuration("pipeline.evaluation_timeout"),
			TranscriptionTimeout: viper.GetDuration("pipeline.transcription_timeout"),
			CodecTimeout:         viper.GetDuration("pipeline.codec_timeout"),
			Retry: RetryPolicy{
				MaxAttempts:    viper.GetInt("pipeline.retry.max_attempts"),
				InitialBackoff: viper.GetDuration("pipeline.retry.initial_backoff"),
				MaxBackoff:     viper.GetDuration("pipeline.retry.max_backoff"),
			},
		},
		WebSocket: WebSocketConfig{
			AllowedOrigins: viper.GetString("websocket.allowed_origins"),
		},
		CORS: CORSConfig{
			AllowedOrigins: splitList(viper.GetString("cors.allowed_origins")),
		},
	}

	if cfg.Audio.MaxBytes <= 0 {
		return nil, fmt.Errorf("AUDIO_MAX_BYTES must be positive, got %d", cfg.Audio.MaxBytes)
	}
	return cfg, nil
}

// ScoringEngine builds the immutable engine for the configured weights and windows.
func (c *Config) ScoringEngine() (*scoring.Engine, error) {
	opts := []scoring.Option{
		scoring.WithTechnicalWeights(c.Scoring.Technical),
		scoring.WithBehavioralWeights(c.Scoring.Behavioral),
		scoring.WithTimeWindow(c.Scoring.Window),
	}
	if c.Scoring.WindowByDifficulty {
		opts = append(opts, scoring.WithDifficultyWindows(scoring.DifficultyWindows()))
	}
	return scoring.NewEngine(opts...)
}

func (c *Config) DatabaseOptions() repository.DatabaseOptions {
	return repository.DatabaseOptions{
		URL:          c.Database.URL,
		LogLevel:     c.Database.LogLevel,
		MaxIdleConns: c.Database.MaxIdleConns,
		MaxOpenConns: c.Database.MaxOpenConns,
	}
}

// SlogLevel maps LOG_LEVEL to a slog level, defaulting to info.
func (c *Config) SlogLevel() slog.Level {
	switch strings.ToLower(c.Log.Level) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}
	return slog.LevelInfo
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
