package core

import (
	"fmt"
	"net"
	"sync"

	"arrayd/internal/capability"
	ncerr "arrayd/internal/errors"
)

// Kind tags what an endpoint carries.
type Kind string

const (
	KindArray Kind = "array"
	KindCode  Kind = "code"
)

// EndpointSpec describes an endpoint before it is bound.
type EndpointSpec struct {
	Name string
	Kind Kind
	Host string
	Port int // 0 = ephemeral
}

// Endpoint is one bound address paired with exactly one capability.
type Endpoint struct {
	EndpointSpec
	Capability capability.Capability

	ln net.Listener
}

// Addr returns the bound address, or nil before the listener starts.
func (e *Endpoint) Addr() net.Addr {
	if e.ln == nil {
		return nil
	}
	return e.ln.Addr()
}

// Registry holds the endpoints a Listener will serve, in registration
// order.
type Registry struct {
	mu        sync.Mutex
	endpoints []*Endpoint
	frozen    bool
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// Register adds an endpoint.  Names must be unique, and registration
// closes once a listener has started with this registry.
func (r *Registry) Register(spec EndpointSpec, c capability.Capability) error {
	if spec.Name == "" {
		return fmt.Errorf("endpoint name is required")
	}
	if c == nil {
		return fmt.Errorf("endpoint %q: capability is required", spec.Name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.frozen {
		return ncerr.ErrAlreadyStarted
	}
	for _, ep := range r.endpoints {
		if ep.Name == spec.Name {
			return fmt.Errorf("endpoint %q already registered", spec.Name)
		}
	}
	r.endpoints = append(r.endpoints, &Endpoint{EndpointSpec: spec, Capability: c})
	return nil
}

// Lookup returns the endpoint with the given name.
func (r *Registry) Lookup(name string) (*Endpoint, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, ep := range r.endpoints {
		if ep.Name == name {
			return ep, true
		}
	}
	return nil, false
}

// Endpoints returns the registered endpoints.
func (r *Registry) Endpoints() []*Endpoint {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*Endpoint(nil), r.endpoints...)
}

func (r *Registry) freeze() []*Endpoint {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.frozen = true
	return append([]*Endpoint(nil), r.endpoints...)
}
