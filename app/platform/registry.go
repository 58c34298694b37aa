package platform

import (
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
)

type Factory func() Adapter

type UnknownPlatformError struct {
	Name      string
	Available []string
}

func (e *UnknownPlatformError) Error() string {
	return fmt.Sprintf("unknown platform %q (available: %s)", e.Name, strings.Join(e.Available, ", "))
}

// Registry maps platform names to adapter factories. Adapters are built on
// first use and cached.
type Registry struct {
	mu         sync.RWMutex
	factories  map[string]Factory
	instances  map[string]Adapter
	scoring    ScoringPolicy
	complexity ComplexityPolicy
}

func NewRegistry() *Registry {
	return &Registry{
		factories:  make(map[string]Factory),
		instances:  make(map[string]Adapter),
		scoring:    DefaultScoringPolicy,
		complexity: DefaultComplexityPolicy,
	}
}

// WithPolicies replaces the scoring and complexity weights.
func (r *Registry) WithPolicies(s ScoringPolicy, c ComplexityPolicy) *Registry {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.scoring = s
	r.complexity = c
	return r
}

// Register adds or replaces the factory for name.
func (r *Registry) Register(name string, f Factory) {
	name = strings.ToLower(strings.TrimSpace(name))

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.factories[name]; exists {
		slog.Warn("Overwriting registered platform adapter", "platform", name)
	}
	r.factories[name] = f
	delete(r.instances, name)
}

func (r *Registry) Get(name string) (Adapter, error) {
	name = strings.ToLower(strings.TrimSpace(name))

	r.mu.RLock()
	a, ok := r.instances[name]
	f, known := r.factories[name]
	r.mu.RUnlock()
	if ok {
		return a, nil
	}
	if !known {
		return nil, &UnknownPlatformError{Name: name, Available: r.Names()}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if a, ok := r.instances[name]; ok {
		return a, nil
	}
	a = f()
	r.instances[name] = a
	return a, nil
}

func (r *Registry) IsSupported(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.factories[strings.ToLower(strings.TrimSpace(name))]
	return ok
}

// Names returns the registered platform names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	r.mu.RUnlock()

	sort.Strings(names)
	return names
}

// All returns every registered adapter in name order.
func (r *Registry) All() []Adapter {
	names := r.Names()
	adapters := make([]Adapter, 0, len(names))
	for _, name := range names {
		if a, err := r.Get(name); err == nil {
			adapters = append(adapters, a)
		}
	}
	return adapters
}

// ScoringPolicy holds the weights of Recommend.
type ScoringPolicy struct {
	Required       int
	Optional       int
	LengthExceeded int
	MinimumScore   int
}

var DefaultScoringPolicy = ScoringPolicy{
	Required:       2,
	Optional:       1,
	LengthExceeded: -2,
	MinimumScore:   3,
}

type Requirements struct {
	Required []Feature `json:"required,omitempty"`
	Optional []Feature `json:"optional,omitempty"`
	// MaxContentLength is the longest body the caller expects to publish.
	MaxContentLength int `json:"max_content_length,omitempty"`
}

type Recommendation struct {
	Platform          string    `json:"platform"`
	Score             int       `json:"score"`
	SupportedFeatures int       `json:"supported_features"`
	Matched           []Feature `json:"matched,omitempty"`
	Missing           []Feature `json:"missing,omitempty"`
}

// Recommend scores every platform against req and returns those reaching
// the policy minimum, best first. Ties go to the platform with more
// supported features, then to the name.
func (r *Registry) Recommend(req Requirements) []Recommendation {
	r.mu.RLock()
	policy := r.scoring
	r.mu.RUnlock()

	var recs []Recommendation
	for _, a := range r.All() {
		caps := a.Capabilities()
		rec := Recommendation{Platform: a.Name(), SupportedFeatures: caps.SupportedFeatureCount()}

		for _, f := range req.Required {
			if caps.Has(f) {
				rec.Score += policy.Required
				rec.Matched = append(rec.Matched, f)
			} else {
				rec.Missing = append(rec.Missing, f)
			}
		}
		for _, f := range req.Optional {
			if caps.Has(f) {
				rec.Score += policy.Optional
				rec.Matched = append(rec.Matched, f)
			}
		}
		if req.MaxContentLength > 0 && exceeds(req.MaxContentLength, caps.MaxContentLength) {
			rec.Score += policy.LengthExceeded
		}

		if rec.Score >= policy.MinimumScore {
			recs = append(recs, rec)
		}
	}

	sort.SliceStable(recs, func(i, j int) bool {
		if recs[i].Score != recs[j].Score {
			return recs[i].Score > recs[j].Score
		}
		if recs[i].SupportedFeatures != recs[j].SupportedFeatures {
			return recs[i].SupportedFeatures > recs[j].SupportedFeatures
		}
		return recs[i].Platform < recs[j].Platform
	})
	return recs
}

// CompatibilityThreshold is the share of agreeing capability flags above
// which two platforms are considered compatible.
const CompatibilityThreshold = 0.7

// CompatibilityMatrix reports, for every ordered pair of platforms, whether
// they agree on at least 70% of their boolean capabilities. Advisory only.
func (r *Registry) CompatibilityMatrix() map[string]map[string]bool {
	adapters := r.All()
	matrix := make(map[string]map[string]bool, len(adapters))

	for _, a := range adapters {
		row := make(map[string]bool, len(adapters))
		fa := a.Capabilities().Flags()
		for _, b := range adapters {
			fb := b.Capabilities().Flags()
			agree := 0
			for i := range fa {
				if fa[i] == fb[i] {
					agree++
				}
			}
			row[b.Name()] = float64(agree)/float64(len(fa)) >= CompatibilityThreshold
		}
		matrix[a.Name()] = row
	}
	return matrix
}

// ComplexityPolicy holds the weights of AdaptationComplexity.
type ComplexityPolicy struct {
	LosingInternalLinks int
	FormatConversion    int
	LosingGalleries     int
	LosingSEOMeta       int
	Max                 int
}

var DefaultComplexityPolicy = ComplexityPolicy{
	LosingInternalLinks: 3,
	FormatConversion:    2,
	LosingGalleries:     2,
	LosingSEOMeta:       1,
	Max:                 10,
}

// AdaptationComplexity estimates how much content written for from loses
// when cross-posted to to, in [0, policy.Max].
func (r *Registry) AdaptationComplexity(from, to string) (int, error) {
	src, err := r.Get(from)
	if err != nil {
		return 0, err
	}
	dst, err := r.Get(to)
	if err != nil {
		return 0, err
	}

	r.mu.RLock()
	policy := r.complexity
	r.mu.RUnlock()

	a, b := src.Capabilities(), dst.Capabilities()
	score := 0
	if a.SupportsInternalLinks && !b.SupportsInternalLinks {
		score += policy.LosingInternalLinks
	}
	if !b.Accepts(a.PreferredFormat()) {
		score += policy.FormatConversion
	}
	if a.SupportsImageGalleries && !b.SupportsImageGalleries {
		score += policy.LosingGalleries
	}
	if a.SupportsMetaDescription && !b.SupportsMetaDescription {
		score += policy.LosingSEOMeta
	}

	if score > policy.Max {
		score = policy.Max
	}
	return score, nil
}
