package component

import (
	"sort"
	"sync"

	"github.com/alexisbeaulieu97/dft/internal/config"
	"github.com/alexisbeaulieu97/dft/internal/template"
	dfterrors "github.com/alexisbeaulieu97/dft/pkg/errors"
)

// ConnectionKey is the reserved config sub-key rendered connection fields
// are merged under before instantiation.
const ConnectionKey = "connection"

// Spec carries everything a constructor needs: the rendered config plus the
// pipeline/step identity for error context.
type Spec struct {
	Pipeline string
	StepID   string
	Config   map[string]any
}

// Constructor functions, one per kind.
type (
	SourceFactory    func(spec Spec) (Source, error)
	ProcessorFactory func(spec Spec) (Processor, error)
	EndpointFactory  func(spec Spec) (Endpoint, error)
)

// Factory instantiates components from typed step config. It holds three
// registries, one per kind, keyed by snake-case component tags. Instances
// are never cached across invocations.
type Factory struct {
	mu         sync.RWMutex
	sources    map[string]SourceFactory
	processors map[string]ProcessorFactory
	endpoints  map[string]EndpointFactory
}

// NewFactory creates an empty factory.
func NewFactory() *Factory {
	return &Factory{
		sources:    make(map[string]SourceFactory),
		processors: make(map[string]ProcessorFactory),
		endpoints:  make(map[string]EndpointFactory),
	}
}

// RegisterSource adds a source constructor under tag.
func (f *Factory) RegisterSource(tag string, fn SourceFactory) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sources[tag] = fn
}

// RegisterProcessor adds a processor constructor under tag.
func (f *Factory) RegisterProcessor(tag string, fn ProcessorFactory) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.processors[tag] = fn
}

// RegisterEndpoint adds an endpoint constructor under tag.
func (f *Factory) RegisterEndpoint(tag string, fn EndpointFactory) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.endpoints[tag] = fn
}

// Knows reports whether a tag is registered for the given kind.
func (f *Factory) Knows(kind, tag string) bool {
	f.mu.RLock()
	defer f.mu.RUnlock()

	switch kind {
	case config.KindSource:
		_, ok := f.sources[tag]
		return ok
	case config.KindProcessor:
		_, ok := f.processors[tag]
		return ok
	case config.KindEndpoint:
		_, ok := f.endpoints[tag]
		return ok
	}
	return false
}

// Tags lists the registered tags for a kind, sorted.
func (f *Factory) Tags(kind string) []string {
	f.mu.RLock()
	defer f.mu.RUnlock()

	var m map[string]struct{}
	switch kind {
	case config.KindSource:
		m = keys(f.sources)
	case config.KindProcessor:
		m = keys(f.processors)
	case config.KindEndpoint:
		m = keys(f.endpoints)
	}

	out := make([]string, 0, len(m))
	for tag := range m {
		out = append(out, tag)
	}
	sort.Strings(out)
	return out
}

// NewSource renders the step's config against ctx and instantiates the
// source component.
func (f *Factory) NewSource(project *config.Project, pipeline string, step config.Step, ctx *template.Context) (Source, error) {
	spec, err := f.buildSpec(project, pipeline, step, ctx)
	if err != nil {
		return nil, err
	}

	f.mu.RLock()
	fn, ok := f.sources[step.ComponentType]
	f.mu.RUnlock()
	if !ok {
		return nil, dfterrors.NewUnknownComponentError(config.KindSource, step.ComponentType)
	}
	return fn(spec)
}

// NewProcessor renders the step's config against ctx and instantiates the
// processor component.
func (f *Factory) NewProcessor(project *config.Project, pipeline string, step config.Step, ctx *template.Context) (Processor, error) {
	spec, err := f.buildSpec(project, pipeline, step, ctx)
	if err != nil {
		return nil, err
	}

	f.mu.RLock()
	fn, ok := f.processors[step.ComponentType]
	f.mu.RUnlock()
	if !ok {
		return nil, dfterrors.NewUnknownComponentError(config.KindProcessor, step.ComponentType)
	}
	return fn(spec)
}

// NewEndpoint renders the step's config against ctx and instantiates the
// endpoint component.
func (f *Factory) NewEndpoint(project *config.Project, pipeline string, step config.Step, ctx *template.Context) (Endpoint, error) {
	spec, err := f.buildSpec(project, pipeline, step, ctx)
	if err != nil {
		return nil, err
	}

	f.mu.RLock()
	fn, ok := f.endpoints[step.ComponentType]
	f.mu.RUnlock()
	if !ok {
		return nil, dfterrors.NewUnknownComponentError(config.KindEndpoint, step.ComponentType)
	}
	return fn(spec)
}

// buildSpec renders string leaves of the step config and, when the step
// references a connection, renders the connection's fields and merges them
// under the reserved sub-key.
func (f *Factory) buildSpec(project *config.Project, pipeline string, step config.Step, ctx *template.Context) (Spec, error) {
	rendered, err := template.RenderMap(step.Config, ctx)
	if err != nil {
		return Spec{}, err
	}

	if step.Connection != "" {
		conn, err := project.ConnectionFor(step)
		if err != nil {
			return Spec{}, err
		}

		fields, err := template.RenderMap(conn.Fields, ctx)
		if err != nil {
			return Spec{}, err
		}
		fields["type"] = conn.Type
		rendered[ConnectionKey] = fields
	}

	return Spec{Pipeline: pipeline, StepID: step.ID, Config: rendered}, nil
}

func keys[V any](m map[string]V) map[string]struct{} {
	out := make(map[string]struct{}, len(m))
	for k := range m {
		out[k] = struct{}{}
	}
	return out
}
