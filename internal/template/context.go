package template

import (
	"os"
	"time"
)

// Layer names, ordered from lowest to highest precedence.
const (
	LayerBuiltin  = "builtin"
	LayerProject  = "project"
	LayerPipeline = "pipeline"
	LayerBatch    = "batch"
	LayerOverride = "override"
)

// StateReader is the slice of the state store the renderer may consult.
type StateReader interface {
	Get(key string) (any, bool)
}

// Layer is one named scope of variable bindings.
type Layer struct {
	Name string
	Vars map[string]any
}

// Context is the immutable layered variable context expressions evaluate
// against. Lookup walks layers from highest precedence to lowest. Push
// returns a derived context; the receiver is never mutated.
type Context struct {
	layers []Layer
	state  StateReader
	env    func(string) (string, bool)
	now    func() time.Time
}

// NewContext creates a context holding only the builtin layer.
func NewContext() *Context {
	return &Context{
		layers: []Layer{{Name: LayerBuiltin, Vars: map[string]any{}}},
		env:    os.LookupEnv,
		now:    time.Now,
	}
}

// Push returns a new context with vars stacked on top as the named layer.
func (c *Context) Push(name string, vars map[string]any) *Context {
	copied := make(map[string]any, len(vars))
	for k, v := range vars {
		copied[k] = v
	}

	derived := *c
	derived.layers = append(append([]Layer(nil), c.layers...), Layer{Name: name, Vars: copied})
	return &derived
}

// WithState returns a new context whose state.get reads from reader.
func (c *Context) WithState(reader StateReader) *Context {
	derived := *c
	derived.state = reader
	return &derived
}

// WithClock returns a new context whose date helpers use the supplied clock.
// Tests freeze now() through this.
func (c *Context) WithClock(now func() time.Time) *Context {
	derived := *c
	derived.now = now
	return &derived
}

// WithEnv returns a new context whose env_var lookups use fn.
func (c *Context) WithEnv(fn func(string) (string, bool)) *Context {
	derived := *c
	derived.env = fn
	return &derived
}

// Lookup resolves name against the layers, highest precedence first.
func (c *Context) Lookup(name string) (any, bool) {
	for i := len(c.layers) - 1; i >= 0; i-- {
		if v, ok := c.layers[i].Vars[name]; ok {
			return v, true
		}
	}
	return nil, false
}

// Flatten merges all layers into one map, higher precedence winning. The
// result is a fresh snapshot; mutating it does not touch the context.
func (c *Context) Flatten() map[string]any {
	out := make(map[string]any)
	for _, layer := range c.layers {
		for k, v := range layer.Vars {
			out[k] = v
		}
	}
	return out
}

// LayerNames lists the layers that a failed lookup searched, for error text.
func (c *Context) LayerNames() []string {
	names := make([]string, 0, len(c.layers))
	for i := len(c.layers) - 1; i >= 0; i-- {
		names = append(names, c.layers[i].Name)
	}
	return names
}

func (c *Context) clock() func() time.Time {
	if c.now != nil {
		return c.now
	}
	return time.Now
}

func (c *Context) lookupEnv(name string) (string, bool) {
	if c.env != nil {
		return c.env(name)
	}
	return os.LookupEnv(name)
}
