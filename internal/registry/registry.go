// Package registry resolves the monitored service list from the endpoint
// descriptor file, environment variables, and the optional services file,
// and validates every probe parameter at startup.
package registry

import (
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/net/http/httpguts"

	"github.com/sla-monitor/watch-server/internal/config"
)

// ServiceConfig carries everything the prober needs for one service.
type ServiceConfig struct {
	ID               string
	Name             string
	Description      string
	URL              string
	Method           string
	Headers          map[string]string
	ExpectedStatuses []int
	Timeout          time.Duration
	Retries          int
	RetryDelay       time.Duration
	Body             string
}

// ExpectsStatus reports whether code is in the acceptable status list.
func (s ServiceConfig) ExpectsStatus(code int) bool {
	for _, c := range s.ExpectedStatuses {
		if c == code {
			return true
		}
	}
	return false
}

// Registry is the immutable set of monitored services plus the cycle
// interval they share. It is read-only after Load.
type Registry struct {
	services []ServiceConfig
	index    map[string]int
	interval time.Duration
}

// NewStatic builds a registry from an explicit service list, bypassing
// file and environment resolution. Callers are responsible for passing
// valid services.
func NewStatic(services []ServiceConfig, interval time.Duration) *Registry {
	index := make(map[string]int, len(services))
	for i, sc := range services {
		index[sc.ID] = i
	}
	return &Registry{services: services, index: index, interval: interval}
}

// Services returns the registered services in resolution order.
func (r *Registry) Services() []ServiceConfig {
	out := make([]ServiceConfig, len(r.services))
	copy(out, r.services)
	return out
}

// Get returns the service with the given id.
func (r *Registry) Get(id string) (ServiceConfig, bool) {
	i, ok := r.index[id]
	if !ok {
		return ServiceConfig{}, false
	}
	return r.services[i], true
}

// Size returns the number of registered services.
func (r *Registry) Size() int {
	return len(r.services)
}

// Interval returns the cycle interval shared by all services.
func (r *Registry) Interval() time.Duration {
	return r.interval
}

var knownMethods = map[string]bool{
	http.MethodGet:     true,
	http.MethodHead:    true,
	http.MethodPost:    true,
	http.MethodPut:     true,
	http.MethodPatch:   true,
	http.MethodDelete:  true,
	http.MethodOptions: true,
}

// Load resolves the monitored services. Resolution order per field: the
// endpoint descriptor file wins over `<SERVICE>_URL` variables, which win
// over the services file, which wins over built-in defaults. Services
// without a URL from any source are skipped with a notice. All failures
// are reported as one aggregated error.
func Load(cfg *config.Config, log *logrus.Entry) (*Registry, error) {
	services := make(map[string]*ServiceConfig)
	var order []string
	var errs []string

	add := func(id string) *ServiceConfig {
		if sc, ok := services[id]; ok {
			return sc
		}
		sc := &ServiceConfig{
			ID:               id,
			Name:             displayNameFromID(id),
			Method:           http.MethodGet,
			Headers:          map[string]string{},
			ExpectedStatuses: []int{http.StatusOK},
			Timeout:          cfg.RequestTimeout,
			Retries:          cfg.MaxRetries,
			RetryDelay:       cfg.RetryDelay,
		}
		services[id] = sc
		order = append(order, id)
		return sc
	}

	for _, entry := range builtinCatalog {
		sc := add(entry.ID)
		sc.Name = entry.Name
		sc.Description = entry.Description
	}

	if cfg.ServicesConfig != "" {
		file, err := loadServicesFile(cfg.ServicesConfig)
		if err != nil {
			return nil, err
		}
		seen := make(map[string]bool)
		for i, entry := range file.Services {
			id := strings.TrimSpace(entry.ID)
			if id == "" {
				errs = append(errs, fmt.Sprintf("services file entry %d: missing id", i))
				continue
			}
			if seen[id] {
				errs = append(errs, fmt.Sprintf("services file entry %d: duplicate id %q", i, id))
				continue
			}
			seen[id] = true

			sc := add(id)
			if entry.Name != "" {
				sc.Name = entry.Name
			}
			if entry.Description != "" {
				sc.Description = entry.Description
			}
			if entry.URL != "" {
				sc.URL = entry.URL
			}
			if entry.Method != "" {
				sc.Method = strings.ToUpper(strings.TrimSpace(entry.Method))
			}
			if entry.Timeout != nil {
				sc.Timeout = entry.Timeout.Std()
			}
			if entry.Retries != nil {
				sc.Retries = *entry.Retries
			}
			if entry.RetryDelay != nil {
				sc.RetryDelay = entry.RetryDelay.Std()
			}
			if len(entry.ExpectedStatuses) > 0 {
				sc.ExpectedStatuses = append([]int(nil), entry.ExpectedStatuses...)
			}
			for k, v := range entry.Headers {
				sc.Headers[k] = v
			}
			if entry.Body != "" {
				sc.Body = entry.Body
			}
		}
	}

	// Environment URLs override the services file.
	for _, id := range order {
		if v := strings.TrimSpace(os.Getenv(urlEnvKey(id))); v != "" {
			services[id].URL = v
		}
	}

	// The descriptor file overrides everything else.
	apiKey := cfg.ServiceAPIKey
	if cfg.EndpointsFile != "" {
		desc, err := LoadDescriptor(cfg.EndpointsFile)
		if err != nil {
			return nil, err
		}
		if desc.APIKey != "" {
			apiKey = desc.APIKey
		}
		for _, id := range order {
			if v, ok := desc.URLs[urlEnvKey(id)]; ok && v != "" {
				services[id].URL = v
			}
		}
	}

	// Attach the shared API key unless the service set the header itself.
	if apiKey != "" {
		for _, id := range order {
			sc := services[id]
			if _, exists := sc.Headers[cfg.ServiceAuthHeader]; !exists {
				sc.Headers[cfg.ServiceAuthHeader] = apiKey
			}
		}
	}

	var kept []ServiceConfig
	for _, id := range order {
		sc := services[id]
		if sc.URL == "" {
			log.Infof("skipping %s: no URL configured", sc.ID)
			continue
		}
		kept = append(kept, *sc)
	}
	if len(kept) == 0 {
		errs = append(errs, "no services with a configured URL; set <SERVICE>_URL variables or provide a services file")
	}

	for _, sc := range kept {
		errs = append(errs, validateService(sc, cfg.MonitoringInterval)...)
	}

	if len(errs) > 0 {
		return nil, fmt.Errorf("endpoint registry validation failed:\n  %s", strings.Join(errs, "\n  "))
	}

	index := make(map[string]int, len(kept))
	for i, sc := range kept {
		index[sc.ID] = i
	}
	return &Registry{services: kept, index: index, interval: cfg.MonitoringInterval}, nil
}

func validateService(sc ServiceConfig, interval time.Duration) []string {
	var errs []string
	tag := fmt.Sprintf("service %s", sc.ID)

	if err := validateServiceURL(sc.URL); err != nil {
		errs = append(errs, fmt.Sprintf("%s: %v", tag, err))
	}
	if !knownMethods[sc.Method] {
		errs = append(errs, fmt.Sprintf("%s: unknown HTTP method %q", tag, sc.Method))
	}
	if sc.Timeout <= 0 {
		errs = append(errs, fmt.Sprintf("%s: timeout must be positive, got %v", tag, sc.Timeout))
	}
	if sc.Timeout >= interval {
		errs = append(errs, fmt.Sprintf(
			"%s: timeout %v must be strictly less than the monitoring interval %v", tag, sc.Timeout, interval))
	}
	if sc.Retries < 0 {
		errs = append(errs, fmt.Sprintf("%s: retries must not be negative, got %d", tag, sc.Retries))
	}
	if sc.RetryDelay < 0 {
		errs = append(errs, fmt.Sprintf("%s: retry delay must not be negative, got %v", tag, sc.RetryDelay))
	}
	for _, code := range sc.ExpectedStatuses {
		if code < 100 || code > 599 {
			errs = append(errs, fmt.Sprintf("%s: expected status %d out of range", tag, code))
		}
	}
	for name := range sc.Headers {
		if !httpguts.ValidHeaderFieldName(name) {
			errs = append(errs, fmt.Sprintf("%s: invalid header name %q", tag, name))
		}
	}
	return errs
}

func validateServiceURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid URL %q: %v", raw, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("URL %q must use http or https", raw)
	}
	if u.Host == "" {
		return fmt.Errorf("URL %q has no host", raw)
	}
	return nil
}
