package cfg

import (
	"cmp"
	"fmt"
	"time"

	"github.com/jessevdk/go-flags"
)

// Version is set at build time via -ldflags
var Version = "dev"

func GetVersion() string {
	return cmp.Or(Version, "unknown")
}

type rawCfg struct {
	// Storage configuration
	DBPath       string `long:"db-path" env:"DB_PATH" default:"./data/crosspost.db" description:"SQLite database file"`
	PlatformsDir string `long:"platforms-dir" env:"PLATFORMS_DIR" default:"./platforms" description:"Directory containing platform settings files"`

	// Application configuration
	Port              string `long:"port" env:"PORT" default:"8080" description:"HTTP server port"`
	WorkerCount       int    `long:"worker-count" env:"WORKER_COUNT" default:"5" description:"Maximum number of concurrent publish calls"`
	SchedulerInterval int    `long:"scheduler-interval" env:"SCHEDULER_INTERVAL" default:"5" description:"Scheduler interval in seconds"`
	APIAccessKey      string `long:"api-key" env:"API_ACCESS_KEY" description:"API access key for authentication (optional)"`

	// Retry and housekeeping
	MaxRetries     int    `long:"max-retries" env:"MAX_RETRIES" default:"3" description:"Retries of a recoverable publish failure"`
	RetryBaseDelay int    `long:"retry-base-delay" env:"RETRY_BASE_DELAY" default:"2" description:"Base retry delay in seconds"`
	RetryMaxDelay  int    `long:"retry-max-delay" env:"RETRY_MAX_DELAY" default:"300" description:"Maximum retry delay in seconds"`
	RetentionHours int    `long:"retention" env:"RETENTION_HOURS" default:"168" description:"Hours finished queue items are kept (0 keeps them forever)"`
	PurgeSchedule  string `long:"purge-schedule" env:"PURGE_SCHEDULE" default:"@hourly" description:"Cron schedule of the queue purge"`

	// Backlink context
	SiteURL     string `long:"site-url" env:"SITE_URL" description:"Canonical site that internal links point to"`
	InsertLinks bool   `long:"insert-links" env:"INSERT_LINKS" description:"Insert planned links into published bodies"`

	// Application metadata
	UserAgent string `long:"user-agent" env:"USER_AGENT" default:"crosspost/1.0" description:"User agent string for HTTP requests"`
	Timezone  string `long:"timezone" env:"TZ" default:"UTC" description:"Timezone for timestamps (e.g., UTC, America/New_York)"`
	Debug     bool   `long:"debug" env:"DEBUG" description:"Enable debug logging"`
}

var globalCfg *Cfg

func Load() (*Cfg, error) {
	return LoadArgs(nil)
}

// LoadArgs parses args instead of the process arguments when args is not
// nil. A nil config without error means help was shown.
func LoadArgs(args []string) (*Cfg, error) {
	var raw rawCfg

	parser := flags.NewParser(&raw, flags.Default)

	var err error
	if args == nil {
		_, err = parser.Parse()
	} else {
		_, err = parser.ParseArgs(args)
	}
	if err != nil {
		if flagsErr, ok := err.(*flags.Error); ok {
			if flagsErr.Type == flags.ErrHelp {
				return nil, nil
			}
		}
		return nil, fmt.Errorf("failed to parse configuration: %w", err)
	}

	cfg := &Cfg{
		DBPath:            raw.DBPath,
		PlatformsDir:      raw.PlatformsDir,
		Port:              raw.Port,
		WorkerCount:       raw.WorkerCount,
		SchedulerInterval: raw.SchedulerInterval,
		APIAccessKey:      raw.APIAccessKey,
		MaxRetries:        raw.MaxRetries,
		RetryBaseDelay:    raw.RetryBaseDelay,
		RetryMaxDelay:     raw.RetryMaxDelay,
		RetentionHours:    raw.RetentionHours,
		PurgeSchedule:     raw.PurgeSchedule,
		SiteURL:           raw.SiteURL,
		InsertLinks:       raw.InsertLinks,
		UserAgent:         raw.UserAgent,
		Timezone:          raw.Timezone,
		Debug:             raw.Debug,
		Version:           GetVersion(),
	}

	if err := validate(cfg); err != nil {
		return nil, err
	}

	if err := applyTimezone(cfg.Timezone); err != nil {
		fmt.Printf("Warning: Invalid timezone '%s', using system default: %v\n", cfg.Timezone, err)
	}

	globalCfg = cfg

	return cfg, nil
}

func Get() *Cfg {
	if globalCfg == nil {
		panic("configuration not loaded - call cfg.Load() first")
	}
	return globalCfg
}

func validate(c *Cfg) error {
	positiveFields := map[string]int{
		"worker-count":       c.WorkerCount,
		"scheduler-interval": c.SchedulerInterval,
		"retry-base-delay":   c.RetryBaseDelay,
		"retry-max-delay":    c.RetryMaxDelay,
	}
	for name, value := range positiveFields {
		if value <= 0 {
			return fmt.Errorf("%s must be positive", name)
		}
	}

	if c.MaxRetries < 0 {
		return fmt.Errorf("max-retries must be non-negative")
	}
	if c.RetentionHours < 0 {
		return fmt.Errorf("retention must be non-negative")
	}
	if c.RetryMaxDelay < c.RetryBaseDelay {
		return fmt.Errorf("retry-max-delay must not be less than retry-base-delay")
	}
	return nil
}

func applyTimezone(timezone string) error {
	if timezone != "" {
		if loc, err := time.LoadLocation(timezone); err != nil {
			return err
		} else {
			time.Local = loc
		}
	}
	return nil
}
