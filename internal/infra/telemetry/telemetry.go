package telemetry

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/zvaradi/flipgate/internal/infra/config"
)

// CacheMetrics instruments the offline cache manager.
type CacheMetrics struct {
	Hits       *prometheus.CounterVec
	Misses     *prometheus.CounterVec
	Fallbacks  prometheus.Counter
	Installs   prometheus.Counter
	Activation prometheus.Counter
}

// ActivationMetrics instruments the activation state machine.
type ActivationMetrics struct {
	Validations *prometheus.CounterVec
	Bindings    *prometheus.CounterVec
}

// Provider bundles the service's Prometheus collectors.
type Provider struct {
	cache      *CacheMetrics
	activation *ActivationMetrics
}

// Attach registers the collectors on the default registry.
func Attach(cfg *config.AppConfig) (*Provider, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is nil")
	}

	namespace := cfg.Telemetry.ServiceName
	if namespace == "" {
		namespace = "flipgate"
	}

	cache := &CacheMetrics{
		Hits: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_hits_total",
			Help:      "Cache hits per resolve strategy",
		}, []string{"strategy"}),
		Misses: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_misses_total",
			Help:      "Cache misses per resolve strategy",
		}, []string{"strategy"}),
		Fallbacks: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_offline_fallbacks_total",
			Help:      "Navigations served by the reserved offline fallback page",
		}),
		Installs: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_installs_total",
			Help:      "Cache generation install cycles",
		}),
		Activation: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_activations_total",
			Help:      "Cache generation activations",
		}),
	}

	activation := &ActivationMetrics{
		Validations: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "activation_validations_total",
			Help:      "Code validation outcomes",
		}, []string{"result"}),
		Bindings: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "activation_bindings_total",
			Help:      "Device binding outcomes",
		}, []string{"path"}),
	}

	return &Provider{cache: cache, activation: activation}, nil
}

// Cache exposes the cache manager collectors.
func (p *Provider) Cache() *CacheMetrics {
	if p == nil {
		return nil
	}
	return p.cache
}

// Activation exposes the activation collectors.
func (p *Provider) Activation() *ActivationMetrics {
	if p == nil {
		return nil
	}
	return p.activation
}
