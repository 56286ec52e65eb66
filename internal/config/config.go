// Package config loads server and agent settings from an optional TOML
// file with environment-variable overrides.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/BurntSushi/toml"
)

// Server holds the fleet server settings. Interval knobs are expressed
// in seconds in the file and environment, matching how they are
// deployed.
type Server struct {
	ListenAddr        string `toml:"listen_addr"`
	DBPath            string `toml:"db_path"`
	NATSURL           string `toml:"nats_url"`
	JWTSecret         string `toml:"jwt_secret"`
	StaleAfterSec     int    `toml:"stale_after_seconds"`
	SweepPeriodSec    int    `toml:"sweep_period_seconds"`
	AdmissionRequired bool   `toml:"admission_required"`
	ObserverQueueSize int    `toml:"observer_queue_size"`
}

// Agent holds the reporting agent settings.
type Agent struct {
	ServerURL   string `toml:"server_url"`
	Name        string `toml:"name"`
	Location    string `toml:"location"`
	IntervalSec int    `toml:"interval_seconds"`
}

// File is the on-disk layout.
type File struct {
	Server Server `toml:"server"`
	Agent  Agent  `toml:"agent"`
}

func defaults() File {
	return File{
		Server: Server{
			ListenAddr:        ":8080",
			DBPath:            "./data/fleet",
			JWTSecret:         "fleetmon-dev-secret",
			StaleAfterSec:     5,
			SweepPeriodSec:    2,
			AdmissionRequired: true,
			ObserverQueueSize: 64,
		},
		Agent: Agent{
			ServerURL:   "http://localhost:8080",
			IntervalSec: 2,
		},
	}
}

// Load reads path (if non-empty) over the defaults, then applies
// environment overrides.
func Load(path string) (File, error) {
	cfg := defaults()
	if path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return File{}, fmt.Errorf("load config %s: %w", path, err)
		}
	}
	cfg.applyEnvOverrides()
	if cfg.Server.StaleAfterSec <= 0 || cfg.Server.SweepPeriodSec <= 0 {
		return File{}, fmt.Errorf("stale_after_seconds and sweep_period_seconds must be positive")
	}
	return cfg, nil
}

func (f *File) applyEnvOverrides() {
	setString(&f.Server.ListenAddr, "FLEET_LISTEN_ADDR")
	setString(&f.Server.DBPath, "FLEET_DB_PATH")
	setString(&f.Server.NATSURL, "FLEET_NATS_URL")
	setString(&f.Server.JWTSecret, "FLEET_JWT_SECRET")
	setInt(&f.Server.StaleAfterSec, "FLEET_STALE_AFTER")
	setInt(&f.Server.SweepPeriodSec, "FLEET_SWEEP_PERIOD")
	setBool(&f.Server.AdmissionRequired, "FLEET_ADMISSION_REQUIRED")
	setInt(&f.Server.ObserverQueueSize, "FLEET_OBSERVER_QUEUE")

	setString(&f.Agent.ServerURL, "FLEET_AGENT_SERVER_URL")
	setString(&f.Agent.Name, "FLEET_AGENT_NAME")
	setString(&f.Agent.Location, "FLEET_AGENT_LOCATION")
	setInt(&f.Agent.IntervalSec, "FLEET_AGENT_INTERVAL")
}

// StaleAfter is the liveness threshold T.
func (s Server) StaleAfter() time.Duration {
	return time.Duration(s.StaleAfterSec) * time.Second
}

// SweepPeriod is the sweeper tick period P.
func (s Server) SweepPeriod() time.Duration {
	return time.Duration(s.SweepPeriodSec) * time.Second
}

// Interval is the agent report period.
func (a Agent) Interval() time.Duration {
	return time.Duration(a.IntervalSec) * time.Second
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}
