// Package delegate adapts plain Go values into agentcore delegates.
package delegate

import (
	"context"
	"reflect"
	"sort"
	"strings"
	"unicode"

	"agentcore/pkg/agentcore"
)

//nolint:gochecknoglobals // reflect types used for method signature matching
var (
	contextType = reflect.TypeOf((*context.Context)(nil)).Elem()
	argsType    = reflect.TypeOf(map[string]any(nil))
	errorType   = reflect.TypeOf((*error)(nil)).Elem()
)

// Methods exposes the exported methods of a value as operations.
type Methods struct {
	service string
	value   reflect.Value
}

// FromMethods returns a delegate exposing every exported method of v with the signature
//
//	func(context.Context, map[string]any) (map[string]any, error)
//
// under its snake_case name, so CreateWidget is reachable as "create_widget".
// Methods are probed at lookup time, never cached.
func FromMethods(service string, v any) *Methods {
	return &Methods{service: service, value: reflect.ValueOf(v)}
}

// Service returns the service identity.
func (m *Methods) Service() string {
	return m.service
}

// Lookup returns the method whose snake_case name is name.
func (m *Methods) Lookup(name string) (agentcore.Operation, bool) {
	if !m.value.IsValid() {
		return nil, false
	}
	t := m.value.Type()
	for i := 0; i < t.NumMethod(); i++ {
		method := m.value.Method(i)
		if SnakeCase(t.Method(i).Name) != name || !isOperation(method.Type()) {
			continue
		}
		return func(ctx context.Context, args map[string]any) (map[string]any, error) {
			out := method.Call([]reflect.Value{reflect.ValueOf(&ctx).Elem(), reflect.ValueOf(args)})
			result, _ := out[0].Interface().(map[string]any)
			err, _ := out[1].Interface().(error)
			return result, err
		}, true
	}
	return nil, false
}

// Operations lists the snake_case names of all operation-shaped methods.
func (m *Methods) Operations() []string {
	if !m.value.IsValid() {
		return nil
	}
	t := m.value.Type()
	names := make([]string, 0, t.NumMethod())
	for i := 0; i < t.NumMethod(); i++ {
		method := t.Method(i)
		if isOperation(m.value.Method(i).Type()) {
			names = append(names, SnakeCase(method.Name))
		}
	}
	sort.Strings(names)
	return names
}

func isOperation(t reflect.Type) bool {
	return t.NumIn() == 2 && t.NumOut() == 2 &&
		t.In(0) == contextType &&
		t.In(1) == argsType &&
		t.Out(0) == argsType &&
		t.Out(1) == errorType
}

// Static is a delegate backed by a fixed operation table.
type Static struct {
	service    string
	operations map[string]agentcore.Operation
}

// NewStatic returns a delegate exposing exactly the given operations.
func NewStatic(service string, operations map[string]agentcore.Operation) *Static {
	ops := make(map[string]agentcore.Operation, len(operations))
	for name, op := range operations {
		ops[name] = op
	}
	return &Static{service: service, operations: ops}
}

// Service returns the service identity.
func (s *Static) Service() string {
	return s.service
}

// Lookup returns the named operation.
func (s *Static) Lookup(name string) (agentcore.Operation, bool) {
	op, ok := s.operations[name]
	return op, ok
}

// Operations lists the operation names, sorted.
func (s *Static) Operations() []string {
	names := make([]string, 0, len(s.operations))
	for name := range s.operations {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// SnakeCase converts a Go method name to an operation name: "GetWorkloadAccessToken"
// becomes "get_workload_access_token", "GetAPIKey" becomes "get_api_key".
func SnakeCase(name string) string {
	runes := []rune(name)
	var b strings.Builder
	for i, r := range runes {
		if unicode.IsUpper(r) {
			if i > 0 {
				prevLower := unicode.IsLower(runes[i-1]) || unicode.IsDigit(runes[i-1])
				nextLower := i+1 < len(runes) && unicode.IsLower(runes[i+1])
				if prevLower || (unicode.IsUpper(runes[i-1]) && nextLower) {
					b.WriteByte('_')
				}
			}
			b.WriteRune(unicode.ToLower(r))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
