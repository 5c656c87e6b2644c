// Package registry loads the service registry, the catalog of product
// services that own requirement pages. Platform services contribute
// shared fragments to every analysis regardless of the target service.
package registry

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/reqlens/reqlens/internal/log"
)

// Service describes one entry of the registry file.
type Service struct {
	Code     string `json:"code"`
	Name     string `json:"name"`
	Platform bool   `json:"platform"`
}

// Registry holds the loaded services indexed by code.
type Registry struct {
	services []Service
	byCode   map[string]Service
	logger   log.Logger
}

// Load reads a services JSON file, an array of Service objects.
func Load(path string, logger log.Logger) (*Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read services file: %w", err)
	}

	return Parse(data, logger)
}

// Parse builds a Registry from raw JSON. Entries without a code are
// rejected, duplicate codes keep the first occurrence.
func Parse(data []byte, logger log.Logger) (*Registry, error) {
	var services []Service
	if err := json.Unmarshal(data, &services); err != nil {
		return nil, fmt.Errorf("parse services: %w", err)
	}

	r := &Registry{
		byCode: make(map[string]Service, len(services)),
		logger: logger,
	}

	for _, svc := range services {
		if svc.Code == "" {
			return nil, fmt.Errorf("service %q has empty code", svc.Name)
		}
		if _, ok := r.byCode[svc.Code]; ok {
			logger.Warn("duplicate service code, keeping first", "code", svc.Code)
			continue
		}
		r.services = append(r.services, svc)
		r.byCode[svc.Code] = svc
	}

	logger.Debug("service registry loaded", "services", len(r.services))

	return r, nil
}

// Get returns the service with the given code.
func (r *Registry) Get(code string) (Service, bool) {
	svc, ok := r.byCode[code]
	return svc, ok
}

// Valid reports whether code names a registered service.
func (r *Registry) Valid(code string) bool {
	_, ok := r.byCode[code]
	return ok
}

// IsPlatform reports whether the service is a platform service.
// Unknown codes are not platform services.
func (r *Registry) IsPlatform(code string) bool {
	return r.byCode[code].Platform
}

// PlatformCodes returns the codes of all platform services in file order.
func (r *Registry) PlatformCodes() []string {
	var codes []string
	for _, svc := range r.services {
		if svc.Platform {
			codes = append(codes, svc.Code)
		}
	}

	return codes
}

// Services returns all registered services in file order.
func (r *Registry) Services() []Service {
	out := make([]Service, len(r.services))
	copy(out, r.services)
	return out
}
