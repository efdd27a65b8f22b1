package config

// Config is the on-disk daemon configuration (JSON or YAML).
type Config struct {
	Logging LoggingConfig  `json:"logging"`
	Reactor ReactorConfig  `json:"reactor"`
	Storage *StorageConfig `json:"storage,omitempty"`
	HTTP    *HTTPConfig    `json:"http,omitempty"`
	Plans   []PlanConfig   `json:"plans" validate:"dive"`
}

type LoggingConfig struct {
	Level   string         `json:"level" validate:"omitempty,oneof=trace debug info warn warning error TRACE DEBUG INFO WARN WARNING ERROR"`
	Console bool           `json:"console"`
	File    LoggingFile    `json:"file"`
	Journal LoggingJournal `json:"journal"`
}

// LoggingFile writes JSON lines to Path, rotated by size.
type LoggingFile struct {
	Enabled    bool   `json:"enabled"`
	Path       string `json:"path"`
	MaxSizeMB  int    `json:"max_size_mb,omitempty" validate:"gte=0"`
	MaxBackups int    `json:"max_backups,omitempty" validate:"gte=0"`
	MaxAgeDays int    `json:"max_age_days,omitempty" validate:"gte=0"`
	Compress   bool   `json:"compress,omitempty"`
}

// LoggingJournal mirrors records to the systemd journal.
type LoggingJournal struct {
	Enabled    bool   `json:"enabled"`
	MinLevel   string `json:"min_level"`
	RatePerSec int    `json:"rate_per_sec" validate:"gte=0"`
}

// ReactorConfig controls the scheduling loop.
type ReactorConfig struct {
	// IANA TZ, e.g. "Asia/Jakarta". Empty means Local.
	Timezone string `json:"timezone,omitempty"`
	// StartupSpread starts interval plans at a random offset within one
	// period so many plans loaded together do not fire in lockstep.
	StartupSpread bool `json:"startup_spread,omitempty"`
}

// StorageConfig controls the optional run history.
//
// Example:
//
//	"storage": { "driver": "file", "path": "./tickd_store" }
type StorageConfig struct {
	Driver      string `json:"driver" validate:"omitempty,oneof=none file sqlite sqlite3 postgres postgresql badger"`
	Path        string `json:"path"`
	DSN         string `json:"dsn,omitempty" validate:"required_if=Driver postgres,required_if=Driver postgresql"`
	Retain      int    `json:"retain,omitempty" validate:"gte=0"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // Go duration string (sqlite)
}

// HTTPConfig enables the read-only status endpoint. Empty Listen disables it.
// A non-loopback Listen needs Token unless AllowInsecure is set.
type HTTPConfig struct {
	Listen        string `json:"listen" validate:"omitempty,hostname_port"`
	Token         string `json:"token,omitempty"`
	AllowInsecure bool   `json:"allow_insecure,omitempty"`
	Pprof         bool   `json:"pprof,omitempty"`
}

// PlanConfig declares work run on a schedule: either a command or a systemd
// unit job.
//
// Schedule accepts the forms understood by schedule.ParseSpec, e.g.
// "every:30s", "daily:07:30", "cron:0 */5 * * * *", "once:2025-01-02T15:04:05Z".
type PlanConfig struct {
	Name          string   `json:"name"`
	Schedule      string   `json:"schedule"`
	Command       []string `json:"command,omitempty"`
	Unit          *UnitJob `json:"unit,omitempty"`
	Dir           string   `json:"dir,omitempty"`
	Env           []string `json:"env,omitempty"`
	EnvFile       string   `json:"env_file,omitempty"` // dotenv file merged under Env
	Background    bool     `json:"background,omitempty"`
	AllowMultiple bool     `json:"allow_multiple,omitempty"`
	// Timeout is a Go duration string; "" or "0s" disables it.
	Timeout  string `json:"timeout,omitempty"`
	Disabled bool   `json:"disabled,omitempty"`
}

// UnitJob queues a systemd job, e.g. {name: nginx, op: restart}.
type UnitJob struct {
	Name string `json:"name"`
	Op   string `json:"op"`
}
