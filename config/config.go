package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v2"
)

type Config struct {
	Server struct {
		Port string `yaml:"port"`
	} `yaml:"server"`
	MySQL struct {
		DSN string `yaml:"dsn"`
	} `yaml:"mysql"`
	Redis struct {
		Addr     string `yaml:"addr"`
		Password string `yaml:"password"`
	} `yaml:"redis"`
	MinIO struct {
		Endpoint  string `yaml:"endpoint"`
		AccessKey string `yaml:"access_key"`
		SecretKey string `yaml:"secret_key"`
		Bucket    string `yaml:"bucket"`
		UseSSL    bool   `yaml:"use_ssl"`
		Domain    string `yaml:"domain"`
	} `yaml:"minio"`
	Providers struct {
		// Sync is the synchronous-poll provider: submit a job, then hold
		// a poll loop open until the operation reports done.
		Sync struct {
			Addr   string `yaml:"addr"`
			APIKey string `yaml:"api_key"`
		} `yaml:"sync"`
		// Async is the async-task provider: submit a job, get an external
		// task id, learn completion later via the status endpoint.
		Async struct {
			Addr   string `yaml:"addr"`
			APIKey string `yaml:"api_key"`
		} `yaml:"async"`
		PollIntervalSeconds int `yaml:"poll_interval_seconds"`
		SyncTimeoutMinutes  int `yaml:"sync_timeout_minutes"`
	} `yaml:"providers"`
	Compositor struct {
		FFmpegPath   string `yaml:"ffmpeg_path"`
		FFprobePath  string `yaml:"ffprobe_path"`
		WorkDir      string `yaml:"work_dir"`
		FrameRate    int    `yaml:"frame_rate"`
		VideoBitrate string `yaml:"video_bitrate"`
		AudioBitrate string `yaml:"audio_bitrate"`
	} `yaml:"compositor"`
}

var AppConfig *Config

// Load reads a yaml config file and fills in defaults for tunables that
// are safe to leave unset.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open config: %w", err)
	}
	defer f.Close()

	cfg := &Config{}
	if err := yaml.NewDecoder(f).Decode(cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	if cfg.Providers.PollIntervalSeconds == 0 {
		cfg.Providers.PollIntervalSeconds = 5
	}
	if cfg.Providers.SyncTimeoutMinutes == 0 {
		cfg.Providers.SyncTimeoutMinutes = 30
	}
	if cfg.Compositor.FFmpegPath == "" {
		cfg.Compositor.FFmpegPath = "ffmpeg"
	}
	if cfg.Compositor.FFprobePath == "" {
		cfg.Compositor.FFprobePath = "ffprobe"
	}
	if cfg.Compositor.FrameRate == 0 {
		cfg.Compositor.FrameRate = 30
	}
	if cfg.Compositor.VideoBitrate == "" {
		cfg.Compositor.VideoBitrate = "8M"
	}
	if cfg.Compositor.AudioBitrate == "" {
		cfg.Compositor.AudioBitrate = "192k"
	}
	return cfg, nil
}

// InitConfig loads config/config.yaml into the package-level AppConfig.
func InitConfig() error {
	cfg, err := Load("config/config.yaml")
	if err != nil {
		return err
	}
	AppConfig = cfg
	return nil
}
