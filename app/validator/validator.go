package validator

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/lysyi3m/crosspost/app/content"
	"github.com/lysyi3m/crosspost/app/platform"
)

// Score penalties per finding of a dry-run transform.
const (
	maxScore          = 100
	hardErrorPenalty  = 25
	minorErrorPenalty = 10
	seoWarningPenalty = 5
	warningPenalty    = 3
)

// Result is the compatibility verdict of one platform for one piece of
// content. Issues lists errors first, then warnings.
type Result struct {
	Platform     string           `json:"platform"`
	IsCompatible bool             `json:"is_compatible"`
	Score        int              `json:"score"`
	Issues       []string         `json:"issues"`
	Suggestions  []string         `json:"suggestions"`
	Errors       []platform.Issue `json:"errors,omitempty"`
	Warnings     []platform.Issue `json:"warnings,omitempty"`
}

type Validator struct {
	registry *platform.Registry
	now      func() time.Time
}

func New(registry *platform.Registry) *Validator {
	return &Validator{registry: registry, now: time.Now}
}

// TestForPlatform dry-runs the platform transform and scores the outcome.
func (v *Validator) TestForPlatform(c *content.Universal, name string, opts platform.TransformOptions) (Result, error) {
	adapter, err := v.registry.Get(name)
	if err != nil {
		return Result{}, err
	}

	opts.DryRun = true
	if opts.Now.IsZero() {
		opts.Now = v.now()
	}

	res := adapter.Transform(c, opts)
	out := Evaluate(res)
	out.Platform = adapter.Name()

	slog.Debug("Compatibility tested", "platform", out.Platform, "score", out.Score, "compatible", out.IsCompatible)
	return out, nil
}

// TestAll validates every platform in parallel. Unknown platforms fail the
// whole call.
func (v *Validator) TestAll(ctx context.Context, c *content.Universal, names []string, opts platform.TransformOptions) (map[string]Result, error) {
	var mu sync.Mutex
	results := make(map[string]Result, len(names))

	g, gctx := errgroup.WithContext(ctx)
	for _, name := range names {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			r, err := v.TestForPlatform(c, name, opts)
			if err != nil {
				return fmt.Errorf("failed to validate %s: %w", name, err)
			}
			mu.Lock()
			results[name] = r
			mu.Unlock()
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// Evaluate derives the score and verdict from a transform result.
func Evaluate(res platform.TransformResult) Result {
	out := Result{
		Issues:      []string{},
		Suggestions: []string{},
		Errors:      res.Errors,
		Warnings:    res.Warnings,
	}

	score := maxScore
	hard := 0
	for _, e := range res.Errors {
		if e.Severity == platform.SeverityMinor {
			score -= minorErrorPenalty
		} else {
			score -= hardErrorPenalty
			hard++
		}
		out.add(e)
	}
	for _, w := range res.Warnings {
		if w.SEO {
			score -= seoWarningPenalty
		} else {
			score -= warningPenalty
		}
		out.add(w)
	}

	out.Score = max(0, min(maxScore, score))
	out.IsCompatible = hard == 0
	return out
}

func (r *Result) add(i platform.Issue) {
	msg := i.Message
	if i.Field != "" {
		msg = i.Field + ": " + msg
	}
	r.Issues = append(r.Issues, msg)

	if i.Suggestion == "" {
		return
	}
	for _, s := range r.Suggestions {
		if s == i.Suggestion {
			return
		}
	}
	r.Suggestions = append(r.Suggestions, i.Suggestion)
}
