// Package config loads assistant configuration from a YAML file with
// environment variable overrides.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/meetscout/platform/internal/errors"
)

// Config is the root configuration for the assistant.
type Config struct {
	HTTP       HTTPConfig       `yaml:"http"`
	Audio      AudioConfig      `yaml:"audio"`
	VAD        VADConfig        `yaml:"vad"`
	Utterance  UtteranceConfig  `yaml:"utterance"`
	Recognizer RecognizerConfig `yaml:"recognizer"`
	Research   ResearchConfig   `yaml:"research"`
	Triggers   TriggersConfig   `yaml:"triggers"`
	Note       NoteConfig       `yaml:"note"`
	Overlay    OverlayConfig    `yaml:"overlay"`
	Session    SessionConfig    `yaml:"session"`
	Store      StoreConfig      `yaml:"store"`
	Logging    LoggingConfig    `yaml:"logging"`
}

// HTTPConfig holds the local control server settings.
type HTTPConfig struct {
	Host           string   `yaml:"host"`
	Port           int      `yaml:"port"`
	AllowedOrigins []string `yaml:"allowed_origins"`
	RateLimit      int      `yaml:"rate_limit"` // requests per minute per client
}

// AudioConfig holds microphone capture settings.
type AudioConfig struct {
	Device          string `yaml:"device"` // substring match, empty = default input
	SampleRate      int    `yaml:"sample_rate"`
	FrameDurationMS int    `yaml:"frame_duration_ms"`
	QueueSize       int    `yaml:"queue_size"`
	PreRollFrames   int    `yaml:"pre_roll_frames"`
}

// FrameSamples returns the number of samples per frame.
func (a AudioConfig) FrameSamples() int {
	return a.SampleRate * a.FrameDurationMS / 1000
}

// VADConfig holds voice activity detection settings.
type VADConfig struct {
	EnergyThreshold float64 `yaml:"energy_threshold"`
	OnsetFrames     int     `yaml:"onset_frames"`
	HangoverFrames  int     `yaml:"hangover_frames"`
}

// UtteranceConfig holds utterance assembly settings.
type UtteranceConfig struct {
	SilenceTimeoutMS int `yaml:"silence_timeout_ms"`
	MaxDurationS     int `yaml:"max_duration_s"`
}

// SilenceTimeout returns the flush timeout as a duration.
func (u UtteranceConfig) SilenceTimeout() time.Duration {
	return time.Duration(u.SilenceTimeoutMS) * time.Millisecond
}

// MaxDuration returns the forced flush cap as a duration.
func (u UtteranceConfig) MaxDuration() time.Duration {
	return time.Duration(u.MaxDurationS) * time.Second
}

// RecognizerConfig holds speech-to-text provider settings.
type RecognizerConfig struct {
	Endpoint      string  `yaml:"endpoint"`
	APIKey        string  `yaml:"api_key"`
	Model         string  `yaml:"model"`
	Language      string  `yaml:"language"`
	TimeoutS      int     `yaml:"timeout_s"`
	MaxRetries    int     `yaml:"max_retries"`
	MinConfidence float64 `yaml:"min_confidence"`
}

// Timeout returns the per-request timeout.
func (r RecognizerConfig) Timeout() time.Duration {
	return time.Duration(r.TimeoutS) * time.Second
}

// ResearchConfig holds research provider settings.
type ResearchConfig struct {
	Endpoint       string  `yaml:"endpoint"`
	APIKey         string  `yaml:"api_key"`
	Model          string  `yaml:"model"`
	MaxTokens      int     `yaml:"max_tokens"`
	Temperature    float64 `yaml:"temperature"`
	TimeoutS       int     `yaml:"timeout_s"`
	MeetingContext string  `yaml:"meeting_context"`
}

// Timeout returns the per-query timeout.
func (r ResearchConfig) Timeout() time.Duration {
	return time.Duration(r.TimeoutS) * time.Second
}

// TriggersConfig holds the trigger phrase lists.
type TriggersConfig struct {
	Research  []string `yaml:"research"`
	NoteStart []string `yaml:"note_start"`
	Stop      []string `yaml:"stop"`
	Custom    []string `yaml:"custom"` // user-added research phrases
}

// AllResearch returns the research phrases with custom phrases merged in.
func (t TriggersConfig) AllResearch() []string {
	if len(t.Custom) == 0 {
		return t.Research
	}
	return append(append([]string{}, t.Research...), t.Custom...)
}

// NoteConfig holds note-taking settings.
type NoteConfig struct {
	MaxDurationS     int `yaml:"max_duration_s"`
	AutoStopSilenceS int `yaml:"auto_stop_silence_s"`
}

// MaxDuration returns the note recording cap.
func (n NoteConfig) MaxDuration() time.Duration {
	return time.Duration(n.MaxDurationS) * time.Second
}

// AutoStopSilence returns how long silence runs before a note auto-stops.
func (n NoteConfig) AutoStopSilence() time.Duration {
	return time.Duration(n.AutoStopSilenceS) * time.Second
}

// OverlayConfig holds overlay display settings.
type OverlayConfig struct {
	DismissS int `yaml:"dismiss_s"`
}

// DismissAfter returns how long an answer stays visible.
func (o OverlayConfig) DismissAfter() time.Duration {
	return time.Duration(o.DismissS) * time.Second
}

// SessionConfig holds session state machine settings.
type SessionConfig struct {
	TopicGraceMS int `yaml:"topic_grace_ms"`
}

// TopicGrace returns the window for a follow-up utterance to supply a topic.
func (s SessionConfig) TopicGrace() time.Duration {
	return time.Duration(s.TopicGraceMS) * time.Millisecond
}

// StoreConfig holds session log persistence settings.
type StoreConfig struct {
	Path string `yaml:"path"` // sqlite file, empty disables persistence
}

// LoggingConfig holds logger settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // text or json
}

// Defaults returns the built-in configuration.
func Defaults() *Config {
	return &Config{
		HTTP: HTTPConfig{
			Host:           "127.0.0.1",
			Port:           8765,
			AllowedOrigins: []string{"http://localhost:3000"},
			RateLimit:      120,
		},
		Audio: AudioConfig{
			SampleRate:      16000,
			FrameDurationMS: 100,
			QueueSize:       64,
			PreRollFrames:   5,
		},
		VAD: VADConfig{
			EnergyThreshold: 0.005,
			OnsetFrames:     3,
			HangoverFrames:  10,
		},
		Utterance: UtteranceConfig{
			SilenceTimeoutMS: 1000,
			MaxDurationS:     30,
		},
		Recognizer: RecognizerConfig{
			Endpoint:      "https://api.openai.com/v1/audio/transcriptions",
			Model:         "whisper-1",
			Language:      "en",
			TimeoutS:      30,
			MaxRetries:    2,
			MinConfidence: 0.3,
		},
		Research: ResearchConfig{
			Endpoint:    "https://api.openai.com/v1/chat/completions",
			Model:       "gpt-4o-mini",
			MaxTokens:   250,
			Temperature: 0.3,
			TimeoutS:    15,
		},
		Triggers: TriggersConfig{
			Research:  []string{"did you say", "what is", "tell me about", "look up", "search for"},
			NoteStart: []string{"can you repeat that", "let me note that down", "that's important"},
			Stop:      []string{"thank you", "that helps", "got it", "end note", "stop recording"},
		},
		Note: NoteConfig{
			MaxDurationS:     60,
			AutoStopSilenceS: 5,
		},
		Overlay: OverlayConfig{
			DismissS: 30,
		},
		Session: SessionConfig{
			TopicGraceMS: 1500,
		},
		Store: StoreConfig{
			Path: "assistant.db",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load reads configuration from path (optional), applies environment
// overrides, and validates the result.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, errors.Wrap(err, errors.CodeConfigMissing, "reading config file")
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, errors.Wrap(err, errors.CodeConfigInvalid, "parsing config file")
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnv overrides fields from environment variables. Secrets are
// typically supplied this way rather than in the file.
func (c *Config) applyEnv() {
	c.HTTP.Host = getEnv("ASSISTANT_HOST", c.HTTP.Host)
	c.HTTP.Port = getEnvInt("ASSISTANT_PORT", c.HTTP.Port)
	c.Audio.Device = getEnv("ASSISTANT_AUDIO_DEVICE", c.Audio.Device)
	c.Audio.SampleRate = getEnvInt("ASSISTANT_SAMPLE_RATE", c.Audio.SampleRate)
	c.VAD.EnergyThreshold = getEnvFloat("ASSISTANT_VAD_THRESHOLD", c.VAD.EnergyThreshold)
	c.Recognizer.Endpoint = getEnv("ASSISTANT_STT_ENDPOINT", c.Recognizer.Endpoint)
	c.Recognizer.APIKey = getEnv("ASSISTANT_STT_API_KEY", c.Recognizer.APIKey)
	c.Recognizer.Model = getEnv("ASSISTANT_STT_MODEL", c.Recognizer.Model)
	c.Research.Endpoint = getEnv("ASSISTANT_RESEARCH_ENDPOINT", c.Research.Endpoint)
	c.Research.APIKey = getEnv("ASSISTANT_RESEARCH_API_KEY", c.Research.APIKey)
	c.Research.Model = getEnv("ASSISTANT_RESEARCH_MODEL", c.Research.Model)
	c.Store.Path = getEnv("ASSISTANT_STORE_PATH", c.Store.Path)
	c.Logging.Level = getEnv("ASSISTANT_LOG_LEVEL", c.Logging.Level)
	c.Logging.Format = getEnv("ASSISTANT_LOG_FORMAT", c.Logging.Format)
	c.Triggers.Research = getEnvList("ASSISTANT_TRIGGERS_RESEARCH", c.Triggers.Research)
	c.Triggers.NoteStart = getEnvList("ASSISTANT_TRIGGERS_NOTE", c.Triggers.NoteStart)
	c.Triggers.Stop = getEnvList("ASSISTANT_TRIGGERS_STOP", c.Triggers.Stop)
}

// Validate checks every section and returns the first problem found.
func (c *Config) Validate() error {
	validators := []func() error{
		c.HTTP.validate,
		c.Audio.validate,
		c.VAD.validate,
		c.Utterance.validate,
		c.Recognizer.validate,
		c.Research.validate,
		c.Triggers.validate,
		c.Note.validate,
		c.Logging.validate,
	}
	for _, v := range validators {
		if err := v(); err != nil {
			return err
		}
	}
	return nil
}

func (h HTTPConfig) validate() error {
	if h.Port < 1 || h.Port > 65535 {
		return invalidf("http.port must be 1-65535, got %d", h.Port)
	}
	return nil
}

func (a AudioConfig) validate() error {
	if a.SampleRate <= 0 {
		return invalidf("audio.sample_rate must be positive, got %d", a.SampleRate)
	}
	if a.FrameDurationMS < 10 || a.FrameDurationMS > 1000 {
		return invalidf("audio.frame_duration_ms must be 10-1000, got %d", a.FrameDurationMS)
	}
	if a.QueueSize <= 0 {
		return invalidf("audio.queue_size must be positive, got %d", a.QueueSize)
	}
	if a.PreRollFrames < 0 {
		return invalidf("audio.pre_roll_frames must not be negative, got %d", a.PreRollFrames)
	}
	return nil
}

func (v VADConfig) validate() error {
	if v.EnergyThreshold <= 0 || v.EnergyThreshold >= 1 {
		return invalidf("vad.energy_threshold must be in (0, 1), got %g", v.EnergyThreshold)
	}
	if v.OnsetFrames < 1 {
		return invalidf("vad.onset_frames must be at least 1, got %d", v.OnsetFrames)
	}
	if v.HangoverFrames < 1 {
		return invalidf("vad.hangover_frames must be at least 1, got %d", v.HangoverFrames)
	}
	return nil
}

func (u UtteranceConfig) validate() error {
	if u.SilenceTimeoutMS <= 0 {
		return invalidf("utterance.silence_timeout_ms must be positive, got %d", u.SilenceTimeoutMS)
	}
	if u.MaxDurationS <= 0 {
		return invalidf("utterance.max_duration_s must be positive, got %d", u.MaxDurationS)
	}
	return nil
}

func (r RecognizerConfig) validate() error {
	if r.Endpoint == "" {
		return invalidf("recognizer.endpoint is required")
	}
	if r.TimeoutS <= 0 {
		return invalidf("recognizer.timeout_s must be positive, got %d", r.TimeoutS)
	}
	if r.MinConfidence < 0 || r.MinConfidence > 1 {
		return invalidf("recognizer.min_confidence must be 0-1, got %g", r.MinConfidence)
	}
	return nil
}

func (r ResearchConfig) validate() error {
	if r.Endpoint == "" {
		return invalidf("research.endpoint is required")
	}
	if r.MaxTokens <= 0 {
		return invalidf("research.max_tokens must be positive, got %d", r.MaxTokens)
	}
	if r.Temperature < 0 || r.Temperature > 2 {
		return invalidf("research.temperature must be 0-2, got %g", r.Temperature)
	}
	if r.TimeoutS <= 0 {
		return invalidf("research.timeout_s must be positive, got %d", r.TimeoutS)
	}
	return nil
}

func (t TriggersConfig) validate() error {
	if len(t.Research) == 0 && len(t.NoteStart) == 0 {
		return invalidf("triggers: at least one research or note_start phrase is required")
	}
	for _, list := range [][]string{t.Research, t.NoteStart, t.Stop, t.Custom} {
		for _, p := range list {
			if strings.TrimSpace(p) == "" {
				return invalidf("triggers: empty phrase")
			}
		}
	}
	return nil
}

func (n NoteConfig) validate() error {
	if n.MaxDurationS <= 0 {
		return invalidf("note.max_duration_s must be positive, got %d", n.MaxDurationS)
	}
	if n.AutoStopSilenceS < 0 {
		return invalidf("note.auto_stop_silence_s must not be negative, got %d", n.AutoStopSilenceS)
	}
	return nil
}

func (l LoggingConfig) validate() error {
	switch l.Level {
	case "debug", "info", "warn", "error":
	default:
		return invalidf("logging.level must be debug, info, warn or error, got %q", l.Level)
	}
	switch l.Format {
	case "text", "json":
	default:
		return invalidf("logging.format must be text or json, got %q", l.Format)
	}
	return nil
}

func invalidf(format string, args ...any) error {
	return errors.New(errors.CodeConfigInvalid, fmt.Sprintf(format, args...))
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func getEnvList(key string, fallback []string) []string {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		out := make([]string, 0, len(parts))
		for _, p := range parts {
			if s := strings.TrimSpace(p); s != "" {
				out = append(out, s)
			}
		}
		if len(out) > 0 {
			return out
		}
	}
	return fallback
}
