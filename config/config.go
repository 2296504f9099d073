// Package config loads the rhythm tool configuration from defaults, an
// optional YAML file and RHYTHM_* environment variables.
package config

import (
	"github.com/ieee0824/rhythm-go/duration"
	"github.com/ieee0824/rhythm-go/internal/logger"
	"github.com/ieee0824/rhythm-go/segment"
)

// Config is the complete configuration.
type Config struct {
	Audio      AudioConfig      `yaml:"audio" env:"AUDIO"`
	Vocabulary VocabularyConfig `yaml:"vocabulary" env:"VOCABULARY"`
	Fit        FitConfig        `yaml:"fit" env:"FIT"`
	Store      StoreConfig      `yaml:"store" env:"STORE"`
	Log        LogConfig        `yaml:"log" env:"LOG"`
	Metrics    MetricsConfig    `yaml:"metrics" env:"METRICS"`
}

// AudioConfig is the frame geometry of the segmenter output.
type AudioConfig struct {
	HopLength  int `yaml:"hop_length" env:"HOP_LENGTH" validate:"gt=0"`
	SampleRate int `yaml:"sample_rate" env:"SAMPLE_RATE" validate:"gt=0"`
}

// VocabularyConfig partitions the sound-type labels.
type VocabularyConfig struct {
	Silence  []string `yaml:"silence" env:"SILENCE" validate:"dive,required"`
	Sonorant []string `yaml:"sonorant" env:"SONORANT" validate:"min=1,dive,required"`
}

// FitConfig controls distribution fitting.
type FitConfig struct {
	// Degenerate is "skip" or "error".
	Degenerate string `yaml:"degenerate" env:"DEGENERATE" validate:"oneof=skip error"`
}

// StoreConfig locates the profile database.
type StoreConfig struct {
	// Path is the Badger directory; empty keeps profiles in memory.
	Path string `yaml:"path" env:"PATH"`
}

// LogConfig configures the logger.
type LogConfig struct {
	Level  string `yaml:"level" env:"LEVEL" validate:"oneof=debug info warn error"`
	Format string `yaml:"format" env:"FORMAT" validate:"oneof=json console"`
}

// MetricsConfig configures the Prometheus collector.
type MetricsConfig struct {
	Namespace string `yaml:"namespace" env:"NAMESPACE" validate:"required"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	frame := segment.DefaultFrameConfig()
	vocab := segment.DefaultVocabulary()
	return &Config{
		Audio: AudioConfig{
			HopLength:  frame.HopLength,
			SampleRate: frame.SampleRate,
		},
		Vocabulary: VocabularyConfig{
			Silence:  labels(vocab.SilenceTypes()),
			Sonorant: labels(vocab.SonorantTypes()),
		},
		Fit:     FitConfig{Degenerate: duration.PolicySkip.String()},
		Store:   StoreConfig{Path: "data/profiles"},
		Log:     LogConfig{Level: "info", Format: "console"},
		Metrics: MetricsConfig{Namespace: "rhythm"},
	}
}

func labels(types []segment.SoundType) []string {
	out := make([]string, len(types))
	for i, t := range types {
		out[i] = string(t)
	}
	return out
}

func soundTypes(labels []string) []segment.SoundType {
	out := make([]segment.SoundType, len(labels))
	for i, l := range labels {
		out[i] = segment.SoundType(l)
	}
	return out
}

// Frame returns the frame geometry.
func (c *Config) Frame() segment.FrameConfig {
	return segment.FrameConfig{HopLength: c.Audio.HopLength, SampleRate: c.Audio.SampleRate}
}

// HopRate returns seconds per frame.
func (c *Config) HopRate() float64 { return c.Frame().HopRate() }

// Vocab returns the configured label partition.
func (c *Config) Vocab() segment.Vocabulary {
	return segment.NewVocabulary(soundTypes(c.Vocabulary.Silence), soundTypes(c.Vocabulary.Sonorant))
}

// DegeneratePolicy returns the configured degenerate-fit policy.
func (c *Config) DegeneratePolicy() duration.DegeneratePolicy {
	// Validated by Load.
	p, _ := duration.ParsePolicy(c.Fit.Degenerate)
	return p
}

// Logger returns the logger settings.
func (c *Config) Logger() logger.Config {
	return logger.Config{Level: c.Log.Level, Format: c.Log.Format}
}
