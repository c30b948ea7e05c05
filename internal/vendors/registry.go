package vendors

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"github.com/fleetsafety/immobilizer/internal/models"
	"github.com/fleetsafety/immobilizer/pkg/errs"
	"github.com/fleetsafety/immobilizer/pkg/logger"
	"github.com/fleetsafety/immobilizer/pkg/metrics"
	"github.com/fleetsafety/immobilizer/pkg/vault"
)

// ProviderGetter loads vendor provider configurations
type ProviderGetter interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.VendorProvider, error)
}

// Options tunes outbound vendor call behavior
type Options struct {
	Timeout       time.Duration
	RatePerSecond float64
	RateBurst     int
}

// DefaultOptions returns the recommended vendor call bounds
func DefaultOptions() Options {
	return Options{
		Timeout:       30 * time.Second,
		RatePerSecond: 5,
		RateBurst:     10,
	}
}

// Registry dispatches immobilization commands to the adapter matching a
// vehicle's configured vendor. Every call is bounded by a timeout, rate
// limited per vendor, and guarded by a per-vendor circuit breaker. The
// stored credential is decrypted immediately before the call and the
// plaintext never leaves this package.
type Registry struct {
	adapters  map[string]Adapter
	providers ProviderGetter
	vault     *vault.Vault
	opts      Options
	logger    *logger.Logger
	metrics   *metrics.Metrics

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	breakers map[string]*gobreaker.CircuitBreaker
}

// NewRegistry creates a registry with all built-in vendor adapters
func NewRegistry(providers ProviderGetter, v *vault.Vault, opts Options, log *logger.Logger, m *metrics.Metrics) *Registry {
	client := &http.Client{Timeout: opts.Timeout}

	r := &Registry{
		adapters:  make(map[string]Adapter),
		providers: providers,
		vault:     v,
		opts:      opts,
		logger:    log,
		metrics:   m,
		limiters:  make(map[string]*rate.Limiter),
		breakers:  make(map[string]*gobreaker.CircuitBreaker),
	}

	r.Register(NewGeotabAdapter(client))
	r.Register(NewSamsaraAdapter(client))
	r.Register(NewVerizonAdapter(client))
	r.Register(NewFleetCompleteAdapter(client))
	r.Register(NewTeletracAdapter(client))
	r.Register(NewGenericAdapter(client))

	return r
}

// Register adds or replaces an adapter
func (r *Registry) Register(a Adapter) {
	r.adapters[a.Vendor()] = a
}

// Dispatch sends action to the vehicle's configured vendor
func (r *Registry) Dispatch(ctx context.Context, action Action, vehicle *models.Vehicle) (*Response, error) {
	if !vehicle.HasVendorConfig() {
		return nil, errs.Configuration("vehicle %s has no vendor configuration", vehicle.ID)
	}

	provider, err := r.providers.GetByID(ctx, *vehicle.ProviderID)
	if err != nil {
		return nil, err
	}

	adapter, ok := r.adapters[provider.Vendor]
	if !ok {
		return nil, errs.Configuration("no adapter registered for vendor %q", provider.Vendor)
	}

	if err := r.limiter(provider.Vendor).Wait(ctx); err != nil {
		return nil, errs.Integration(provider.Vendor, "rate limit wait cancelled", err)
	}

	cred, err := r.decryptCredential(provider)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, r.opts.Timeout)
	defer cancel()

	start := time.Now()
	result, err := r.breaker(provider.Vendor).Execute(func() (interface{}, error) {
		return adapter.Send(ctx, action, vehicle, cred)
	})

	if r.metrics != nil {
		r.metrics.VendorCallDuration.With(prometheus.Labels{
			"vendor": provider.Vendor,
			"action": string(action),
		}).Observe(time.Since(start).Seconds())
	}

	if err != nil {
		if r.metrics != nil {
			r.metrics.VendorCallErrors.With(prometheus.Labels{
				"vendor": provider.Vendor,
				"action": string(action),
			}).Inc()
		}
		r.logger.Error("Vendor command failed",
			logger.String("vendor", provider.Vendor),
			logger.String("action", string(action)),
			logger.String("vehicle_id", vehicle.ID.String()),
			logger.Err(err),
		)
		if errs.IsIntegration(err) || errs.IsNotFound(err) {
			return nil, err
		}
		// Breaker-open and context errors normalize to integration errors
		return nil, errs.Integration(provider.Vendor, "command dispatch failed", err)
	}

	resp := result.(*Response)
	r.logger.Info("Vendor command sent",
		logger.String("vendor", provider.Vendor),
		logger.String("action", string(action)),
		logger.String("vehicle_id", vehicle.ID.String()),
		logger.Int("status_code", resp.StatusCode),
	)

	return resp, nil
}

// decryptCredential decrypts the stored credential blob into a transient
// Credential carrying the provider endpoint and extra configuration
func (r *Registry) decryptCredential(provider *models.VendorProvider) (*Credential, error) {
	plaintext, err := r.vault.Decrypt(provider.EncryptedCredential)
	if err != nil {
		return nil, err
	}

	cred := &Credential{}
	if err := json.Unmarshal(plaintext, cred); err != nil {
		return nil, errs.Configuration("credential for provider %s is not valid JSON: %v", provider.ID, err)
	}

	cred.Endpoint = provider.Endpoint
	cred.Extra = provider.Config
	return cred, nil
}

func (r *Registry) limiter(vendor string) *rate.Limiter {
	r.mu.Lock()
	defer r.mu.Unlock()

	l, ok := r.limiters[vendor]
	if !ok {
		l = rate.NewLimiter(rate.Limit(r.opts.RatePerSecond), r.opts.RateBurst)
		r.limiters[vendor] = l
	}
	return l
}

func (r *Registry) breaker(vendor string) *gobreaker.CircuitBreaker {
	r.mu.Lock()
	defer r.mu.Unlock()

	b, ok := r.breakers[vendor]
	if !ok {
		log := r.logger
		b = gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        "vendor:" + vendor,
			MaxRequests: 3,
			Interval:    30 * time.Second,
			Timeout:     60 * time.Second,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
				return counts.Requests >= 5 && failureRatio >= 0.6
			},
			OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
				log.Warnf("Circuit breaker %s state changed: %s -> %s", name, from.String(), to.String())
			},
		})
		r.breakers[vendor] = b
	}
	return b
}
