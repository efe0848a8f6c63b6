package config

import "time"

// Config holds all application configuration.
// It organizes settings into logical groups for better maintainability.
type Config struct {
	Server   ServerConfig   `mapstructure:"server" validate:"required"`
	Database DatabaseConfig `mapstructure:"database"`
	Pipeline PipelineConfig `mapstructure:"pipeline" validate:"required"`
}

// ServerConfig contains all server-related configuration settings.
type ServerConfig struct {
	Port            int           `mapstructure:"port" validate:"required,gt=0,lt=65536"`
	LogLevel        string        `mapstructure:"log_level" validate:"required,oneof=debug info warn error"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" validate:"gt=0"`
}

// DatabaseConfig contains all database-related configuration settings.
// An empty URL selects the in-memory run store.
type DatabaseConfig struct {
	URL string `mapstructure:"url" validate:"omitempty,url"`
}

// UsesPostgres reports whether a database URL is configured.
func (c DatabaseConfig) UsesPostgres() bool {
	return c.URL != ""
}

// PipelineConfig controls how runs are fetched and analyzed.
type PipelineConfig struct {
	// MaxWorkers is the default worker pool size of the analysis stage.
	MaxWorkers int `mapstructure:"max_workers" validate:"gt=0"`
	// CompletionMode is the default completion mode of the fetch batch.
	CompletionMode string `mapstructure:"completion_mode" validate:"oneof=wait_all fail_fast"`
	// MaxInFlight bounds concurrent fetches per run; 0 means unbounded.
	MaxInFlight  int           `mapstructure:"max_in_flight" validate:"gte=0"`
	FetchTimeout time.Duration `mapstructure:"fetch_timeout" validate:"gt=0"`
	MaxBodyBytes int64         `mapstructure:"max_body_bytes" validate:"gt=0"`
	// DispatcherWorkers is the number of runs executed at the same time.
	DispatcherWorkers int `mapstructure:"dispatcher_workers" validate:"gt=0"`
	QueueSize         int `mapstructure:"queue_size" validate:"gt=0"`
}
