package config

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	dfterrors "github.com/alexisbeaulieu97/dft/pkg/errors"
)

// ProjectFileName is the fixed name of the project configuration document.
const ProjectFileName = "dft_project.yml"

// PipelinesDirName is the directory scanned recursively for declarations.
const PipelinesDirName = "pipelines"

var yamlLineRegex = regexp.MustCompile(`line (\d+)`)

// LoadProject reads the project file at root and every pipeline declaration
// under root/pipelines. Template expressions are captured verbatim; rendering
// happens later, against the full variable context.
func LoadProject(root string) (*Project, []*Pipeline, error) {
	project, err := ParseProjectFile(filepath.Join(root, ProjectFileName))
	if err != nil {
		return nil, nil, err
	}
	project.Root = root

	pipelines, err := LoadPipelines(filepath.Join(root, PipelinesDirName))
	if err != nil {
		return nil, nil, err
	}

	return project, pipelines, nil
}

// ParseProjectFile loads and validates the project document.
func ParseProjectFile(path string) (*Project, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, dfterrors.NewProjectError(path, "", err)
	}

	var project Project
	if err := yaml.Unmarshal(data, &project); err != nil {
		return nil, dfterrors.NewProjectError(path, "", err)
	}

	if err := ValidateProjectDocument(&project); err != nil {
		return nil, err
	}

	return &project, nil
}

// LoadPipelines walks dir recursively and parses every .yml/.yaml file. A
// file may hold several declarations separated by the YAML document
// delimiter; each becomes one Pipeline.
func LoadPipelines(dir string) ([]*Pipeline, error) {
	var pipelines []*Pipeline
	seen := make(map[string]string)

	walkErr := filepath.WalkDir(dir, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if entry.IsDir() {
			return nil
		}
		ext := strings.ToLower(filepath.Ext(path))
		if ext != ".yml" && ext != ".yaml" {
			return nil
		}

		parsed, err := ParsePipelineFile(path)
		if err != nil {
			return err
		}

		for _, p := range parsed {
			if prev, exists := seen[p.Name]; exists {
				return dfterrors.NewDuplicatePipelineError(p.Name, prev, path)
			}
			seen[p.Name] = path
			pipelines = append(pipelines, p)
		}
		return nil
	})

	if walkErr != nil {
		if errors.Is(walkErr, fs.ErrNotExist) {
			return nil, dfterrors.NewProjectError(dir, "pipelines directory not found", walkErr)
		}
		return nil, walkErr
	}

	sort.Slice(pipelines, func(i, j int) bool { return pipelines[i].Name < pipelines[j].Name })
	return pipelines, nil
}

// ParsePipelineFile decodes every document in one declaration file.
func ParsePipelineFile(path string) ([]*Pipeline, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, dfterrors.NewParseError(path, 0, err)
	}
	defer f.Close() //nolint:errcheck

	decoder := yaml.NewDecoder(f)
	var pipelines []*Pipeline

	for {
		var pipeline Pipeline
		err := decoder.Decode(&pipeline)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, dfterrors.NewParseError(path, extractLine(err), err)
		}

		if pipeline.Name == "" {
			return nil, dfterrors.NewParseError(path, 0, fmt.Errorf("declaration is missing pipeline_name"))
		}

		pipeline.File = path
		if err := ValidatePipelineDocument(&pipeline); err != nil {
			return nil, err
		}
		pipelines = append(pipelines, &pipeline)
	}

	return pipelines, nil
}

func extractLine(err error) int {
	if err == nil {
		return 0
	}

	matches := yamlLineRegex.FindStringSubmatch(err.Error())
	if len(matches) != 2 {
		return 0
	}

	var line int
	if _, scanErr := fmt.Sscanf(matches[1], "%d", &line); scanErr != nil {
		return 0
	}
	return line
}
