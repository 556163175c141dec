// Package config loads fingerspell settings from defaults, the environment and flags.
package config

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"go.uber.org/multierr"
)

// Environment variable prefix.
const envPrefix = "FINGERSPELL_"

// Config holds every runtime setting.
type Config struct {
	PredictURL     string        `validate:"required,url"`
	MinConfidence  float64       `validate:"gte=0,lte=1"`
	SampleEvery    int           `validate:"gte=1"`
	RequestTimeout time.Duration `validate:"gte=0"`
	CameraID       int           `validate:"gte=0"`
	FPS            int           `validate:"gte=1,lte=60"`
	Listen         string        `validate:"required"`
	DataDir        string        `validate:"required"`
	HookDir        string
	WebDir         string
	ScriptDir      string
	LogLevel       string `validate:"oneof=debug info warn error"`
	Tray           bool
}

// Default returns the settings the trainer ships with.
func Default() Config {
	dataDir := ".fingerspell"
	if home, err := os.UserHomeDir(); err == nil {
		dataDir = filepath.Join(home, ".fingerspell")
	}
	return Config{
		PredictURL:     "http://localhost:8080/predict",
		MinConfidence:  0.6,
		SampleEvery:    40,
		RequestTimeout: 5 * time.Second,
		CameraID:       0,
		FPS:            15,
		Listen:         ":8090",
		DataDir:        dataDir,
		LogLevel:       "info",
	}
}

// Load builds a Config from defaults, then .env and the environment, then args.
// A missing .env file is not an error.
func Load(args []string) (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}

	cfg := Default()
	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return Config{}, err
	}

	fs := flag.NewFlagSet("fingerspell", flag.ContinueOnError)
	cfg.bindFlags(fs)
	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}

	if cfg.HookDir == "" {
		cfg.HookDir = filepath.Join(cfg.DataDir, "hooks")
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks field constraints.
func (c Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// DBPath is the SQLite file inside DataDir.
func (c Config) DBPath() string {
	return filepath.Join(c.DataDir, "fingerspell.db")
}

// LogDir is where rotated log files are written.
func (c Config) LogDir() string {
	return filepath.Join(c.DataDir, "logs")
}

func (c *Config) bindFlags(fs *flag.FlagSet) {
	fs.StringVar(&c.PredictURL, "predict-url", c.PredictURL, "prediction endpoint URL")
	fs.Float64Var(&c.MinConfidence, "min-confidence", c.MinConfidence, "default assessment confidence threshold")
	fs.IntVar(&c.SampleEvery, "sample-every", c.SampleEvery, "send one prediction every N detections")
	fs.DurationVar(&c.RequestTimeout, "request-timeout", c.RequestTimeout, "prediction request timeout (0 for default)")
	fs.IntVar(&c.CameraID, "camera", c.CameraID, "camera device ID")
	fs.IntVar(&c.FPS, "fps", c.FPS, "capture frame rate")
	fs.StringVar(&c.Listen, "listen", c.Listen, "HTTP listen address")
	fs.StringVar(&c.DataDir, "data-dir", c.DataDir, "data directory")
	fs.StringVar(&c.HookDir, "hook-dir", c.HookDir, "notification hook directory (default <data-dir>/hooks)")
	fs.StringVar(&c.WebDir, "web-dir", c.WebDir, "static web directory")
	fs.StringVar(&c.ScriptDir, "script-dir", c.ScriptDir, "directory containing hand_landmarks.py")
	fs.StringVar(&c.LogLevel, "log-level", c.LogLevel, "debug, info, warn or error")
	fs.BoolVar(&c.Tray, "tray", c.Tray, "show a system tray icon")
}

type lookupFunc func(string) (string, bool)

func (c *Config) applyEnv(lookup lookupFunc) error {
	str := func(name string, dst *string) {
		if v, ok := lookup(envPrefix + name); ok && v != "" {
			*dst = v
		}
	}
	var errs []error
	num := func(name string, parse func(string) error) {
		if v, ok := lookup(envPrefix + name); ok && v != "" {
			if err := parse(v); err != nil {
				errs = append(errs, fmt.Errorf("%s%s: %w", envPrefix, name, err))
			}
		}
	}

	str("PREDICT_URL", &c.PredictURL)
	str("LISTEN", &c.Listen)
	str("DATA_DIR", &c.DataDir)
	str("HOOK_DIR", &c.HookDir)
	str("WEB_DIR", &c.WebDir)
	str("SCRIPT_DIR", &c.ScriptDir)
	str("LOG_LEVEL", &c.LogLevel)

	num("MIN_CONFIDENCE", func(v string) (err error) {
		c.MinConfidence, err = strconv.ParseFloat(v, 64)
		return err
	})
	num("SAMPLE_EVERY", func(v string) (err error) {
		c.SampleEvery, err = strconv.Atoi(v)
		return err
	})
	num("REQUEST_TIMEOUT", func(v string) (err error) {
		c.RequestTimeout, err = time.ParseDuration(v)
		return err
	})
	num("CAMERA", func(v string) (err error) {
		c.CameraID, err = strconv.Atoi(v)
		return err
	})
	num("FPS", func(v string) (err error) {
		c.FPS, err = strconv.Atoi(v)
		return err
	})
	num("TRAY", func(v string) (err error) {
		c.Tray, err = strconv.ParseBool(v)
		return err
	})

	return multierr.Combine(errs...)
}
