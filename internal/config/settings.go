package config

import (
	"time"

	"github.com/bjaus/mergeload"
)

// DefaultAPIURL is the sink the loader targets when none is configured
const DefaultAPIURL = "http://localhost:7000/api"

// Settings are the run options that may come from the environment. Command
// line flags override them.
type Settings struct {
	APIURL        string
	Authz         string
	SchemaID      string
	SchemaPath    string
	JobPath       string
	DeadLetter    string
	MaxAttempts   int
	RetryWaitMin  time.Duration
	RetryWaitMax  time.Duration
	HTTPTimeout   time.Duration
	ProgressEvery time.Duration
	DrainTimeout  time.Duration
	LogLevel      string
	LogFormat     string
}

// FromEnv reads Settings from MERGELOAD_* variables, falling back to defaults
func FromEnv() Settings {
	c := New().Prefix(EnvPrefix)
	return Settings{
		APIURL:        c.MayString("API_URL", DefaultAPIURL),
		Authz:         c.MayString("AUTHZ", ""),
		SchemaID:      c.MayString("SCHEMA_ID", ""),
		SchemaPath:    c.MayString("SCHEMA_PATH", ""),
		JobPath:       c.MayString("JOB", ""),
		DeadLetter:    c.MayString("DEAD_LETTER", ""),
		MaxAttempts:   c.MayInt("MAX_ATTEMPTS", mergeload.DefaultMaxAttempts),
		RetryWaitMin:  c.MayDuration("RETRY_WAIT_MIN", mergeload.DefaultRetryWaitMin),
		RetryWaitMax:  c.MayDuration("RETRY_WAIT_MAX", mergeload.DefaultRetryWaitMax),
		HTTPTimeout:   c.MayDuration("HTTP_TIMEOUT", mergeload.DefaultHTTPTimeout),
		ProgressEvery: c.MayDuration("PROGRESS_EVERY", mergeload.DefaultReportInterval),
		DrainTimeout:  c.MayDuration("DRAIN_TIMEOUT", mergeload.DefaultDrainTimeout),
		LogLevel:      c.Prefix("LOG_").MayString("LEVEL", "info"),
		LogFormat:     c.Prefix("LOG_").MayString("FORMAT", "console"),
	}
}
