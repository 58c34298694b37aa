package adapters

import (
	"errors"
	"net/http"

	"github.com/lysyi3m/crosspost/app/content"
	"github.com/lysyi3m/crosspost/app/platform"
)

type Options struct {
	Settings   *platform.SettingsCache
	UserAgent  string
	HTTPClient *http.Client
}

type constructor func(*platform.Client) platform.Adapter

var builtin = map[string]constructor{
	WebflowName:   func(c *platform.Client) platform.Adapter { return NewWebflow(c) },
	WordPressName: func(c *platform.Client) platform.Adapter { return NewWordPress(c) },
	MediumName:    func(c *platform.Client) platform.Adapter { return NewMedium(c) },
	DevToName:     func(c *platform.Client) platform.Adapter { return NewDevTo(c) },
}

// Register adds every built-in adapter enabled in the settings to reg.
func Register(reg *platform.Registry, opts Options) {
	for name, build := range builtin {
		settings := platform.DefaultSettings(name)
		if opts.Settings != nil {
			settings = opts.Settings.Get(name)
		}
		if !settings.Enabled {
			continue
		}

		reg.Register(name, func() platform.Adapter {
			return build(platform.NewClient(name, platform.ClientOptions{
				HTTPClient: opts.HTTPClient,
				RateLimit:  settings.RateLimit,
				UserAgent:  opts.UserAgent,
				Timeout:    settings.TimeoutDuration(),
			}))
		})
	}
}

func bearer(cfg platform.Config) http.Header {
	return http.Header{"Authorization": {"Bearer " + cfg.Credentials}}
}

func isNotFound(err error) bool {
	return errors.Is(err, content.ErrNotFound)
}
