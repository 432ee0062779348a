// Package services tracks the external cloud services the pipeline depends
// on and which of them are actually configured. A missing credential is
// reported, not fatal: the call using it fails at call time.
package services

import (
	"log/slog"
	"sort"
)

// Category classifies an external service by pipeline stage.
type Category string

const (
	CategorySTT Category = "stt"
	CategoryNLU Category = "nlu"
	CategoryLLM Category = "llm"
	CategoryTTS Category = "tts"
)

// ServiceMeta holds static metadata for one external service.
type ServiceMeta struct {
	Category   Category
	URL        string
	Configured bool
}

// ServiceInfo is the reportable state of one external service.
type ServiceInfo struct {
	Name       string   `json:"name"`
	Category   Category `json:"category"`
	Configured bool     `json:"configured"`
	URL        string   `json:"url,omitempty"`
}

// Registry is the fixed set of external services this process talks to.
type Registry struct {
	services map[string]ServiceMeta
}

// NewRegistry creates a registry from a map of service metadata.
func NewRegistry(services map[string]ServiceMeta) *Registry {
	return &Registry{services: services}
}

// Lookup returns metadata for a service, or false if unknown.
func (r *Registry) Lookup(name string) (ServiceMeta, bool) {
	m, ok := r.services[name]
	return m, ok
}

// Names returns all registered service names, sorted.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.services))
	for k := range r.services {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// StatusAll reports every service's configuration state, sorted by name.
func (r *Registry) StatusAll() []ServiceInfo {
	infos := make([]ServiceInfo, 0, len(r.services))
	for _, name := range r.Names() {
		m := r.services[name]
		infos = append(infos, ServiceInfo{
			Name:       name,
			Category:   m.Category,
			Configured: m.Configured,
			URL:        m.URL,
		})
	}
	return infos
}

// LogStartup logs which credentials are present or absent, one line per
// service.
func (r *Registry) LogStartup() {
	for _, info := range r.StatusAll() {
		slog.Info("external service", "name", info.Name, "category", info.Category, "configured", info.Configured)
	}
}
