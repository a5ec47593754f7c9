package provider

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/gridprobe/gridprobe/internal/core"
	"github.com/gridprobe/gridprobe/internal/logging"
)

// Protocol names accepted in configuration.
const (
	ProtocolResponses = "responses"
	ProtocolChat      = "chat"
)

// Factory builds an adapter for one configured provider.
type Factory func(settings Settings, logger *logging.Logger) Adapter

// Info is the externally visible description of a configured provider.
type Info struct {
	Name         string       `json:"name"`
	Protocol     string       `json:"protocol"`
	DefaultModel string       `json:"default_model"`
	Capabilities Capabilities `json:"capabilities"`
}

// Registry holds the configured provider adapters, built lazily on first
// use so a misconfigured provider only fails when actually requested.
type Registry struct {
	mu        sync.Mutex
	logger    *logging.Logger
	factories map[string]Factory
	settings  map[string]registration
	adapters  map[string]Adapter
}

type registration struct {
	protocol string
	settings Settings
}

func NewRegistry(logger *logging.Logger) *Registry {
	return &Registry{
		logger: logger,
		factories: map[string]Factory{
			ProtocolResponses: func(s Settings, l *logging.Logger) Adapter { return NewResponsesAdapter(s, l) },
			ProtocolChat:      func(s Settings, l *logging.Logger) Adapter { return NewChatAdapter(s, l) },
		},
		settings: make(map[string]registration),
		adapters: make(map[string]Adapter),
	}
}

// Register adds or replaces a provider. Replacing drops any cached adapter
// so the next Get rebuilds from the new settings.
func (r *Registry) Register(protocol string, settings Settings) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.factories[protocol]; !ok {
		return core.ErrValidation(core.CodeInvalidConfig,
			fmt.Sprintf("provider %s: unknown protocol %q", settings.Name, protocol))
	}
	r.settings[settings.Name] = registration{protocol: protocol, settings: settings}
	delete(r.adapters, settings.Name)
	return nil
}

// Get returns the adapter for a provider id.
func (r *Registry) Get(name string) (Adapter, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if adapter, ok := r.adapters[name]; ok {
		return adapter, nil
	}
	reg, ok := r.settings[name]
	if !ok {
		return nil, core.ErrNotFound("provider", name)
	}
	adapter := r.factories[reg.protocol](reg.settings, r.logger)
	r.adapters[name] = adapter
	return adapter, nil
}

// Timeout returns the configured call timeout for a provider, zero when the
// provider is unknown or carries none.
func (r *Registry) Timeout(name string) time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.settings[name].settings.Timeout
}

// List returns the configured providers sorted by name.
func (r *Registry) List() []Info {
	r.mu.Lock()
	defer r.mu.Unlock()
	infos := make([]Info, 0, len(r.settings))
	for name, reg := range r.settings {
		caps := Capabilities{SupportsReasoning: true}
		if reg.protocol == ProtocolResponses {
			caps.SupportsContinuation = true
		}
		infos = append(infos, Info{
			Name:         name,
			Protocol:     reg.protocol,
			DefaultModel: reg.settings.DefaultModel,
			Capabilities: caps,
		})
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Name < infos[j].Name })
	return infos
}
