package config

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"

	dfterrors "github.com/alexisbeaulieu97/dft/pkg/errors"
)

var (
	validatorOnce sync.Once
	validateInst  *validator.Validate

	namePattern   = regexp.MustCompile(`^[a-z][a-z0-9_]*$`)
	stepIDPattern = regexp.MustCompile(`^[a-z0-9_]+$`)
)

func validatorInstance() *validator.Validate {
	validatorOnce.Do(func() {
		v := validator.New()

		_ = v.RegisterValidation("pipeline_name", func(fl validator.FieldLevel) bool {
			return namePattern.MatchString(fl.Field().String())
		})

		_ = v.RegisterValidation("step_id", func(fl validator.FieldLevel) bool {
			return stepIDPattern.MatchString(fl.Field().String())
		})

		validateInst = v
	})

	return validateInst
}

// ValidateProjectDocument performs schema validation on the project file.
func ValidateProjectDocument(project *Project) error {
	if project == nil {
		return dfterrors.NewProjectError("", "project is nil", nil)
	}

	if err := validatorInstance().Struct(project); err != nil {
		return dfterrors.NewProjectError("", convertFieldErrors(err), nil)
	}
	return nil
}

// ValidatePipelineDocument performs schema validation on one declaration:
// field shapes, unique step ids, intra-pipeline depends_on references, and
// that every processor and endpoint has at least one upstream source or
// processor. Sources with depends_on entries and steps with several
// producers are not rejected.
func ValidatePipelineDocument(pipeline *Pipeline) error {
	if err := validatorInstance().Struct(pipeline); err != nil {
		return dfterrors.NewParseError(pipeline.File, 0, fmt.Errorf("pipeline %q: %s", pipeline.Name, convertFieldErrors(err)))
	}

	if pipeline.Microbatch != nil {
		if err := validatorInstance().Struct(pipeline.Microbatch); err != nil {
			return dfterrors.NewParseError(pipeline.File, 0, fmt.Errorf("pipeline %q: microbatch: %s", pipeline.Name, convertFieldErrors(err)))
		}
	}

	stepIndex := make(map[string]int, len(pipeline.Steps))
	for i, step := range pipeline.Steps {
		if _, exists := stepIndex[step.ID]; exists {
			return dfterrors.NewParseError(pipeline.File, 0, fmt.Errorf("pipeline %q: duplicate step id %q", pipeline.Name, step.ID))
		}
		stepIndex[step.ID] = i

		if step.ComponentType == "" {
			return dfterrors.NewParseError(pipeline.File, 0, fmt.Errorf("pipeline %q: step %q is missing %s_type", pipeline.Name, step.ID, step.Kind))
		}
	}

	for _, step := range pipeline.Steps {
		for _, dep := range step.DependsOn {
			if _, ok := stepIndex[dep]; !ok {
				return dfterrors.NewDependencyError(pipeline.Name, "steps."+step.ID+".depends_on", fmt.Sprintf("references unknown step %q", dep))
			}
		}

		switch step.Kind {
		case KindProcessor, KindEndpoint:
			if countProducers(pipeline, step) == 0 {
				return dfterrors.NewDependencyError(pipeline.Name, "steps."+step.ID, fmt.Sprintf("%s has no upstream packet producer", step.Kind))
			}
		}
	}

	return nil
}

// CrossValidate checks the references that span documents: depends_on
// pipeline names and connection ids. All problems found are returned, not
// just the first.
func CrossValidate(project *Project, pipelines []*Pipeline) []error {
	var errs []error

	byName := PipelineMap(pipelines)
	for _, pipeline := range pipelines {
		for _, dep := range pipeline.DependsOn {
			if _, ok := byName[dep]; !ok {
				errs = append(errs, dfterrors.NewDependencyError(pipeline.Name, "depends_on", fmt.Sprintf("references unknown pipeline %q", dep)))
			}
		}

		for _, step := range pipeline.Steps {
			if step.Connection == "" {
				continue
			}
			if _, ok := project.Connections[step.Connection]; !ok {
				errs = append(errs, dfterrors.NewDependencyError(pipeline.Name, "steps."+step.ID+".connection", fmt.Sprintf("unknown connection %q", step.Connection)))
			}
		}
	}

	return errs
}

// countProducers counts the step's upstream sources and processors, the
// nodes that can feed it a packet.
func countProducers(pipeline *Pipeline, step Step) int {
	steps := StepMap(pipeline.Steps)
	count := 0
	for _, dep := range step.DependsOn {
		upstream, ok := steps[dep]
		if !ok {
			continue
		}
		if upstream.Kind == KindSource || upstream.Kind == KindProcessor {
			count++
		}
	}
	return count
}

func convertFieldErrors(err error) string {
	var fieldErrs validator.ValidationErrors
	if !asValidationErrors(err, &fieldErrs) {
		return err.Error()
	}

	parts := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		parts = append(parts, fmt.Sprintf("%s failed %q", strings.ToLower(fe.Namespace()), fe.Tag()))
	}
	sort.Strings(parts)
	return strings.Join(parts, "; ")
}

func asValidationErrors(err error, target *validator.ValidationErrors) bool {
	fieldErrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return false
	}
	*target = fieldErrs
	return true
}
