package cfg

import "time"

type Cfg struct {
	// Storage configuration
	DBPath       string
	PlatformsDir string

	// Application configuration
	Port              string
	WorkerCount       int
	SchedulerInterval int // seconds
	APIAccessKey      string

	// Retry and housekeeping
	MaxRetries     int
	RetryBaseDelay int // seconds
	RetryMaxDelay  int // seconds
	RetentionHours int
	PurgeSchedule  string

	// Backlink context
	SiteURL     string
	InsertLinks bool

	// Application metadata
	UserAgent string
	Timezone  string
	Debug     bool
	Version   string
}

func (c *Cfg) SchedulerIntervalDuration() time.Duration {
	return time.Duration(c.SchedulerInterval) * time.Second
}

func (c *Cfg) RetryBaseDelayDuration() time.Duration {
	return time.Duration(c.RetryBaseDelay) * time.Second
}

func (c *Cfg) RetryMaxDelayDuration() time.Duration {
	return time.Duration(c.RetryMaxDelay) * time.Second
}

func (c *Cfg) Retention() time.Duration {
	return time.Duration(c.RetentionHours) * time.Hour
}
