package config

import (
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"

	dfterrors "github.com/alexisbeaulieu97/dft/pkg/errors"
)

// Step kinds.
const (
	KindSource    = "source"
	KindProcessor = "processor"
	KindEndpoint  = "endpoint"
)

// Project represents the full project configuration document. It is immutable
// after load.
type Project struct {
	ProjectName string                `yaml:"project_name" validate:"required,min=1,max=100"`
	State       StateOptions          `yaml:"state,omitempty"`
	Connections map[string]Connection `yaml:"connections,omitempty"`
	Variables   map[string]any        `yaml:"variables,omitempty"`
	Logging     LoggingOptions        `yaml:"logging,omitempty"`

	// Root is the directory holding dft_project.yml. Not part of the document.
	Root string `yaml:"-"`
}

// UnmarshalYAML applies the project defaults: state files are kept out of
// version control unless the document says otherwise.
func (p *Project) UnmarshalYAML(value *yaml.Node) error {
	type rawProject struct {
		ProjectName string                `yaml:"project_name"`
		State       *StateOptions         `yaml:"state"`
		Connections map[string]Connection `yaml:"connections"`
		Variables   map[string]any        `yaml:"variables"`
		Logging     LoggingOptions        `yaml:"logging"`
	}

	var raw rawProject
	if err := value.Decode(&raw); err != nil {
		return err
	}

	p.ProjectName = raw.ProjectName
	p.Connections = raw.Connections
	p.Variables = raw.Variables
	p.Logging = raw.Logging
	if raw.State != nil {
		p.State = *raw.State
	} else {
		p.State = StateOptions{IgnoreInGit: true}
	}
	return nil
}

// StateOptions holds the durable-state settings.
type StateOptions struct {
	IgnoreInGit bool `yaml:"ignore_in_git"`
}

// UnmarshalYAML defaults ignore_in_git to true when the key is absent.
func (s *StateOptions) UnmarshalYAML(value *yaml.Node) error {
	type rawState StateOptions
	temp := rawState{IgnoreInGit: true}
	if err := value.Decode(&temp); err != nil {
		return err
	}
	if hasYAMLKey(value, "ignore_in_git") {
		*s = StateOptions(temp)
		return nil
	}
	*s = StateOptions{IgnoreInGit: true}
	return nil
}

// LoggingOptions holds project-level logging settings.
type LoggingOptions struct {
	Level string `yaml:"level,omitempty" validate:"omitempty,oneof=trace debug info warn error"`
}

// Connection is a reusable configuration record consumed by components. The
// discriminating type tag is kept separate; every other key lands in Fields
// verbatim so the factory can render and merge them at instantiation time.
type Connection struct {
	Type   string
	Fields map[string]any
}

// UnmarshalYAML splits the type tag from the driver-specific fields.
func (c *Connection) UnmarshalYAML(value *yaml.Node) error {
	var raw map[string]any
	if err := value.Decode(&raw); err != nil {
		return err
	}

	typ, ok := raw["type"].(string)
	if !ok || typ == "" {
		return fmt.Errorf("connection requires a string %q key", "type")
	}
	delete(raw, "type")

	c.Type = typ
	c.Fields = raw
	return nil
}

// Pipeline is one declaration unit: steps, tags, dependencies, variables.
type Pipeline struct {
	Name        string         `yaml:"-" validate:"required,pipeline_name"`
	Description string         `yaml:"description,omitempty"`
	Tags        []string       `yaml:"tags,omitempty"`
	DependsOn   []string       `yaml:"depends_on,omitempty"`
	Variables   map[string]any `yaml:"variables,omitempty"`
	Microbatch  *Microbatch    `yaml:"-"`
	Steps       []Step         `yaml:"steps" validate:"required,min=1,dive"`

	// File records which declaration file the pipeline came from.
	File string `yaml:"-"`
}

// UnmarshalYAML accepts pipeline_name with name as an alias and lifts the
// optional microbatch sub-record out of variables.
func (p *Pipeline) UnmarshalYAML(value *yaml.Node) error {
	type rawPipeline struct {
		PipelineName string         `yaml:"pipeline_name"`
		Name         string         `yaml:"name"`
		Description  string         `yaml:"description"`
		Tags         []string       `yaml:"tags"`
		DependsOn    []string       `yaml:"depends_on"`
		Variables    map[string]any `yaml:"variables"`
		Steps        []Step         `yaml:"steps"`
	}

	var raw rawPipeline
	if err := value.Decode(&raw); err != nil {
		return err
	}

	name := raw.PipelineName
	if name == "" {
		name = raw.Name
	}

	p.Name = name
	p.Description = raw.Description
	p.Tags = append([]string(nil), raw.Tags...)
	p.DependsOn = append([]string(nil), raw.DependsOn...)
	p.Variables = raw.Variables
	p.Steps = raw.Steps
	p.Microbatch = nil

	if raw.Variables != nil {
		if sub, ok := raw.Variables["microbatch"]; ok {
			mb, err := decodeMicrobatch(sub)
			if err != nil {
				return err
			}
			p.Microbatch = mb
			delete(raw.Variables, "microbatch")
		}
	}

	return nil
}

// HasTag reports whether the pipeline carries the given tag.
func (p *Pipeline) HasTag(tag string) bool {
	for _, t := range p.Tags {
		if t == tag {
			return true
		}
	}
	return false
}

// Microbatch configures the time-windowed execution strategy. Begin and End
// stay verbatim strings here; the planner parses them so errors carry
// pipeline context.
type Microbatch struct {
	EventTimeColumn string `yaml:"event_time_column" validate:"required"`
	BatchSize       string `yaml:"batch_size" validate:"required,oneof=10min hour day week month year"`
	Lookback        int    `yaml:"lookback" validate:"min=0"`
	Begin           string `yaml:"begin"`
	End             string `yaml:"end,omitempty"`
}

func decodeMicrobatch(sub any) (*Microbatch, error) {
	encoded, err := yaml.Marshal(sub)
	if err != nil {
		return nil, fmt.Errorf("microbatch: %w", err)
	}
	var mb Microbatch
	if err := yaml.Unmarshal(encoded, &mb); err != nil {
		return nil, fmt.Errorf("microbatch: %w", err)
	}
	return &mb, nil
}

// Step describes an individual node of a pipeline's DAG.
type Step struct {
	ID            string         `yaml:"id" validate:"required,step_id"`
	Kind          string         `yaml:"type" validate:"required,oneof=source processor endpoint"`
	ComponentType string         `yaml:"-" validate:"required"`
	Connection    string         `yaml:"connection,omitempty"`
	DependsOn     []string       `yaml:"depends_on,omitempty"`
	Config        map[string]any `yaml:"config,omitempty"`
}

// UnmarshalYAML resolves the kind-specific component tag (source_type,
// processor_type, endpoint_type) alongside the shared fields.
func (s *Step) UnmarshalYAML(value *yaml.Node) error {
	type rawStep struct {
		ID            string         `yaml:"id"`
		Kind          string         `yaml:"type"`
		SourceType    string         `yaml:"source_type"`
		ProcessorType string         `yaml:"processor_type"`
		EndpointType  string         `yaml:"endpoint_type"`
		Connection    string         `yaml:"connection"`
		DependsOn     []string       `yaml:"depends_on"`
		Config        map[string]any `yaml:"config"`
	}

	var raw rawStep
	if err := value.Decode(&raw); err != nil {
		return err
	}

	s.ID = raw.ID
	s.Kind = raw.Kind
	s.Connection = raw.Connection
	s.DependsOn = append([]string(nil), raw.DependsOn...)
	s.Config = raw.Config
	if s.Config == nil {
		s.Config = map[string]any{}
	}

	switch raw.Kind {
	case KindSource:
		s.ComponentType = raw.SourceType
	case KindProcessor:
		s.ComponentType = raw.ProcessorType
	case KindEndpoint:
		s.ComponentType = raw.EndpointType
	}

	return nil
}

// StepMap builds a lookup table for steps by ID.
func StepMap(steps []Step) map[string]Step {
	out := make(map[string]Step, len(steps))
	for _, step := range steps {
		out[step.ID] = step
	}
	return out
}

// PipelineMap builds a lookup table for pipelines by name.
func PipelineMap(pipelines []*Pipeline) map[string]*Pipeline {
	out := make(map[string]*Pipeline, len(pipelines))
	for _, p := range pipelines {
		out[p.Name] = p
	}
	return out
}

// ConnectionFor resolves a step's connection reference against the project.
func (p *Project) ConnectionFor(step Step) (Connection, error) {
	conn, ok := p.Connections[step.Connection]
	if !ok {
		return Connection{}, dfterrors.NewDependencyError("", "connection", fmt.Sprintf("unknown connection %q", step.Connection))
	}
	return conn, nil
}

func hasYAMLKey(node *yaml.Node, key string) bool {
	if node == nil || node.Kind != yaml.MappingNode {
		return false
	}
	for i := 0; i < len(node.Content); i += 2 {
		if strings.EqualFold(node.Content[i].Value, key) {
			return true
		}
	}
	return false
}
