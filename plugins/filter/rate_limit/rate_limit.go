package rate_limit

import (
	"fmt"
	"sync"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/yanayukhimuk/Logging/core"
	"golang.org/x/time/rate"
)

func init() {
	// Auto-register this plugin
	core.RegisterFilter("rate_limit", NewRateLimitFilterFromConfig)
}

// Config represents rate limit filter configuration
type Config struct {
	Rate      float64 `yaml:"rate"`                 // records per second
	Burst     int     `yaml:"burst"`                // maximum burst size
	PerLogger bool    `yaml:"per_logger,omitempty"` // one bucket per logger name
}

// Validate validates the Config
func (c Config) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.Rate, validation.Required.Error("must be greater than 0"), validation.Min(0.0).Exclusive()),
		validation.Field(&c.Burst, validation.Required.Error("must be at least 1"), validation.Min(1)),
	)
}

// NewRateLimitFilterFromConfig creates a rate limit filter from configuration map
func NewRateLimitFilterFromConfig(config map[string]any) (core.Filter, error) {
	var cfg Config
	if err := core.GetPluginConfig(config, &cfg); err != nil {
		return nil, err
	}

	return NewRateLimitFilter(cfg)
}

// RateLimitFilter is a token bucket: it starts full and refills at rate
// tokens per second up to burst
type RateLimitFilter struct {
	rate      float64
	burst     int
	perLogger bool
	now       func() time.Time

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

// NewRateLimitFilter creates a new rate limit filter
func NewRateLimitFilter(config Config) (*RateLimitFilter, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid rate limit config: %w", err)
	}
	return &RateLimitFilter{
		rate:      config.Rate,
		burst:     config.Burst,
		perLogger: config.PerLogger,
		now:       time.Now,
		limiters:  make(map[string]*rate.Limiter),
	}, nil
}

func (f *RateLimitFilter) limiter(record *core.Record) *rate.Limiter {
	key := ""
	if f.perLogger {
		key = record.LoggerName()
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	l, ok := f.limiters[key]
	if !ok {
		l = rate.NewLimiter(rate.Limit(f.rate), f.burst)
		f.limiters[key] = l
	}
	return l
}

// Process keeps the record if a token is available
func (f *RateLimitFilter) Process(record *core.Record) bool {
	return f.limiter(record).AllowN(f.now(), 1)
}
