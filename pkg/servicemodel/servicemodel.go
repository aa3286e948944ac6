// Package servicemodel describes the operations a service plane exposes and how each maps
// onto an HTTP request. Models are YAML documents; defaults for both planes are embedded.
package servicemodel

import (
	"embed"
	"fmt"
	"net/http"
	"os"
	"regexp"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"agentcore/pkg/config"
)

//go:embed models/*.yaml
var embedded embed.FS

var placeholderRegex = regexp.MustCompile(`\{([^{}]*)\}`)

// Operation maps a named operation onto an HTTP request.
type Operation struct {
	Method           string   `yaml:"method"`
	Path             string   `yaml:"path"`
	Query            []string `yaml:"query,omitempty"`
	IdempotencyToken string   `yaml:"idempotency_token,omitempty"`
}

// PathParams returns the distinct placeholder names in the operation path, in order of
// first appearance.
func (o *Operation) PathParams() []string {
	matches := placeholderRegex.FindAllStringSubmatch(o.Path, -1)
	params := make([]string, 0, len(matches))
	seen := make(map[string]bool, len(matches))
	for _, m := range matches {
		if seen[m[1]] {
			continue
		}
		seen[m[1]] = true
		params = append(params, m[1])
	}
	return params
}

// Model is one service's operation catalog.
type Model struct {
	Service       string               `yaml:"service"`
	Endpoint      string               `yaml:"endpoint"`
	Documentation string               `yaml:"documentation"`
	Operations    map[string]Operation `yaml:"operations"`
}

// Parse decodes and validates a YAML model.
func Parse(data []byte) (*Model, error) {
	var m Model
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("failed to parse service model: %w", err)
	}
	if m.Endpoint == "" {
		m.Endpoint = config.DefaultEndpointTemplate
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return &m, nil
}

// Load reads a model from a YAML file.
func Load(path string) (*Model, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read service model: %w", err)
	}
	m, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return m, nil
}

// Builtin returns the embedded model for a service identity.
func Builtin(service string) (*Model, error) {
	data, err := embedded.ReadFile("models/" + service + ".yaml")
	if err != nil {
		return nil, fmt.Errorf("no builtin service model for %s", service)
	}
	return Parse(data)
}

// LoadOrBuiltin loads path when set, otherwise the embedded model for service.
func LoadOrBuiltin(path, service string) (*Model, error) {
	if path != "" {
		return Load(path)
	}
	return Builtin(service)
}

// Validate checks the model is usable.
func (m *Model) Validate() error {
	if m.Service == "" {
		return fmt.Errorf("service model: service is required")
	}
	for name, op := range m.Operations {
		switch op.Method {
		case http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodPatch:
		default:
			return fmt.Errorf("service model %s: operation %s has unsupported method %q", m.Service, name, op.Method)
		}
		if !strings.HasPrefix(op.Path, "/") {
			return fmt.Errorf("service model %s: operation %s path must start with /", m.Service, name)
		}
		for _, param := range op.PathParams() {
			if param == "" {
				return fmt.Errorf("service model %s: operation %s has an empty path placeholder", m.Service, name)
			}
		}
	}
	return nil
}

// Operation returns the named operation.
func (m *Model) Operation(name string) (Operation, bool) {
	op, ok := m.Operations[name]
	return op, ok
}

// Names returns all operation names, sorted.
func (m *Model) Names() []string {
	names := make([]string, 0, len(m.Operations))
	for name := range m.Operations {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// EndpointFor expands the endpoint template for region.
func (m *Model) EndpointFor(region string) string {
	return strings.NewReplacer("{service}", m.Service, "{region}", region).Replace(m.Endpoint)
}
