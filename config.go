package main

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds process-wide settings. Values come from .env, then the
// environment, then command line flags.
type Config struct {
	Addr        string
	DBPath      string
	LogFile     string
	LogLevel    string
	JWTSecret   string
	AdminToken  string
	MapFile     string
	MapSeed     int64
	PublicURL   string
	DefaultRoom string

	TickRate     int
	MaxPlayers   int
	MaxRooms     int
	Validate     bool
	StepInterval time.Duration
}

// DefaultConfig returns the settings used when nothing is configured
func DefaultConfig() Config {
	return Config{
		Addr:         ":10000",
		LogFile:      "mythica.log",
		LogLevel:     "info",
		MapSeed:      1,
		PublicURL:    "http://localhost:10000/",
		DefaultRoom:  DefaultRoomName,
		TickRate:     DefaultTickRate,
		MaxPlayers:   DefaultMaxPlayers,
		MaxRooms:     DefaultMaxRooms,
		Validate:     true,
		StepInterval: DefaultStepInterval,
	}
}

var errBadConfig = errors.New("invalid configuration")

// LoadConfig builds a Config from an optional .env file, the environment and
// the given command line arguments.
func LoadConfig(args []string) (Config, error) {
	// A missing .env is fine; a malformed one is not.
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}

	cfg := DefaultConfig()
	if port := os.Getenv("PORT"); port != "" {
		cfg.Addr = ":" + port
	}
	envString(&cfg.DBPath, "MYTHICA_DB")
	envString(&cfg.LogFile, "MYTHICA_LOG_FILE")
	envString(&cfg.LogLevel, "MYTHICA_LOG_LEVEL")
	envString(&cfg.JWTSecret, "MYTHICA_JWT_SECRET")
	envString(&cfg.AdminToken, "MYTHICA_ADMIN_TOKEN")
	envString(&cfg.MapFile, "MYTHICA_MAP_FILE")
	envString(&cfg.PublicURL, "MYTHICA_PUBLIC_URL")
	envString(&cfg.DefaultRoom, "MYTHICA_DEFAULT_ROOM")

	var errs []error
	errs = append(errs, envInt64(&cfg.MapSeed, "MYTHICA_MAP_SEED"))
	errs = append(errs, envInt(&cfg.TickRate, "MYTHICA_TICK_RATE"))
	errs = append(errs, envInt(&cfg.MaxPlayers, "MYTHICA_MAX_PLAYERS"))
	errs = append(errs, envBool(&cfg.Validate, "MYTHICA_VALIDATE_MOVES"))
	errs = append(errs, envDuration(&cfg.StepInterval, "MYTHICA_STEP_INTERVAL"))
	if err := errors.Join(errs...); err != nil {
		return Config{}, err
	}

	fs := flag.NewFlagSet("mythica-server", flag.ContinueOnError)
	fs.StringVar(&cfg.Addr, "addr", cfg.Addr, "HTTP listen address")
	fs.StringVar(&cfg.DBPath, "db", cfg.DBPath, "SQLite database path (empty disables accounts)")
	fs.StringVar(&cfg.LogFile, "log", cfg.LogFile, "Log file path (empty logs to stderr only)")
	fs.StringVar(&cfg.MapFile, "map", cfg.MapFile, "JSON map file (empty generates the default map)")
	fs.IntVar(&cfg.TickRate, "tick", cfg.TickRate, "Room ticks per second")
	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}

	if err := cfg.Check(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Check reports settings that cannot work
func (c Config) Check() error {
	switch {
	case c.TickRate <= 0 || c.TickRate > 120:
		return fmt.Errorf("%w: tick rate %d out of range 1-120", errBadConfig, c.TickRate)
	case c.MaxPlayers <= 0:
		return fmt.Errorf("%w: max players must be positive", errBadConfig)
	case c.MaxRooms <= 0:
		return fmt.Errorf("%w: max rooms must be positive", errBadConfig)
	case c.StepInterval < 0:
		return fmt.Errorf("%w: negative step interval", errBadConfig)
	case c.DefaultRoom == "":
		return fmt.Errorf("%w: default room name is empty", errBadConfig)
	}
	return nil
}

func envString(dst *string, key string) {
	if v, ok := os.LookupEnv(key); ok {
		*dst = v
	}
}

func envInt(dst *int, key string) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("%w: %s=%q: %v", errBadConfig, key, v, err)
	}
	*dst = n
	return nil
}

func envInt64(dst *int64, key string) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return fmt.Errorf("%w: %s=%q: %v", errBadConfig, key, v, err)
	}
	*dst = n
	return nil
}

func envBool(dst *bool, key string) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fmt.Errorf("%w: %s=%q: %v", errBadConfig, key, v, err)
	}
	*dst = b
	return nil
}

func envDuration(dst *time.Duration, key string) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fmt.Errorf("%w: %s=%q: %v", errBadConfig, key, v, err)
	}
	*dst = d
	return nil
}
