// Package schemaloader parses cube definitions from a directory of
// YAML files, validates their invariants, and compiles them into a
// schema.Schema. Errors are accumulated across every cube and reported
// together; any error aborts the compilation, leaving a previously
// loaded schema generation current.
package schemaloader

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/cubedlayer/cubed/internal/cubederr"
	"github.com/cubedlayer/cubed/internal/schema"
)

// cubeFile mirrors the on-disk YAML cube schema. Shorthand forms
// (a bare string for a dimension) are normalized in rawDimension's
// UnmarshalYAML before reaching these richer fields.
type cubeFile struct {
	Name          string                    `yaml:"name"`
	Table         string                    `yaml:"table"`
	SQL           string                    `yaml:"sql"`
	Dimensions    map[string]rawDimension   `yaml:"dimensions"`
	Measures      map[string]rawMeasure     `yaml:"measures"`
	Relationships map[string]rawRelationship `yaml:"relationships"`
	Security      *rawSecurity              `yaml:"security"`
	PreAggregations []rawPreAggregation     `yaml:"pre_aggregations"`
}

type rawDimension struct {
	Type          string   `yaml:"type"`
	SQL           string   `yaml:"sql"`
	PrimaryKey    bool     `yaml:"primary_key"`
	Granularities []string `yaml:"granularities"`
}

// UnmarshalYAML accepts either the shorthand form (a bare scalar string,
// meaning "that is this dimension's SQL expression") or the full
// mapping form.
func (d *rawDimension) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind == yaml.ScalarNode {
		d.SQL = value.Value
		d.Type = string(schema.DimString)
		return nil
	}
	type plain rawDimension
	var p plain
	if err := value.Decode(&p); err != nil {
		return err
	}
	*d = rawDimension(p)
	return nil
}

type rawMeasure struct {
	Type       string `yaml:"type"`
	SQL        string `yaml:"sql"`
	Expression string `yaml:"expression"`
	Formula    string `yaml:"formula"`
}

func (m *rawMeasure) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind == yaml.ScalarNode {
		m.SQL = value.Value
		m.Type = string(schema.MeasureNumber)
		return nil
	}
	type plain rawMeasure
	var p plain
	if err := value.Decode(&p); err != nil {
		return err
	}
	*m = rawMeasure(p)
	return nil
}

type rawRelationship struct {
	Type       string `yaml:"type"`
	Cube       string `yaml:"cube"`
	ForeignKey string `yaml:"foreign_key"`
	PrimaryKey string `yaml:"primary_key"`
}

type rawSecurity struct {
	RowFilter string `yaml:"row_filter"`
}

type rawPreAggregation struct {
	Name          string         `yaml:"name"`
	Dimensions    []string       `yaml:"dimensions"`
	Measures      []string       `yaml:"measures"`
	TimeDimension string         `yaml:"time_dimension"`
	Granularity   string         `yaml:"granularity"`
	RefreshKey    *rawRefreshKey `yaml:"refresh_key"`
}

type rawRefreshKey struct {
	Every string `yaml:"every"`
}

// Load reads every *.yaml/*.yml file in dir (one or more cubes per
// file), validates each cube's invariants, resolves relationships, and
// returns a compiled schema. version tags the returned schema
// generation (used by the cache-key generator).
func Load(dir, version string) (*schema.Schema, error) {
	files, err := yamlFiles(dir)
	if err != nil {
		return nil, cubederr.Configuration("reading schema directory %q: %v", dir, err)
	}
	if len(files) == 0 {
		return nil, cubederr.Configuration("no cube definitions found in %q", dir)
	}

	builder := schema.NewBuilder()
	errs := &cubederr.ModelErrors{}

	for _, path := range files {
		cubes, err := parseFile(path)
		if err != nil {
			errs.Add(filepath.Base(path), err.Error())
			continue
		}
		for _, raw := range cubes {
			cube, problems := compileCube(raw)
			for _, p := range problems {
				errs.Add(raw.Name, p)
			}
			if len(problems) == 0 {
				builder.AddCube(cube)
			}
		}
	}

	if errs.HasErrors() {
		return nil, errs
	}

	compiled, missing := builder.Build(version)
	for _, m := range missing {
		errs.Add(m.Cube, fmt.Sprintf("relationship %q targets unknown cube %q", m.Relationship, m.Target))
	}
	if errs.HasErrors() {
		return nil, errs
	}

	return compiled, nil
}

func yamlFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var files []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(e.Name()))
		if ext == ".yaml" || ext == ".yml" {
			files = append(files, filepath.Join(dir, e.Name()))
		}
	}
	sort.Strings(files)
	return files, nil
}

// parseFile decodes one or more YAML documents from a file, each
// expected to contain a single cube. Multiple cubes in one file means
// multiple `---`-separated documents.
func parseFile(path string) ([]*cubeFile, error) {
	data, err := os.ReadFile(path) // #nosec G304 -- path comes from a trusted schema directory, not user input
	if err != nil {
		return nil, err
	}

	var cubes []*cubeFile
	dec := yaml.NewDecoder(strings.NewReader(string(data)))
	for {
		var cf cubeFile
		if err := dec.Decode(&cf); err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, err
		}
		if cf.Name == "" {
			continue
		}
		cubes = append(cubes, &cf)
	}
	return cubes, nil
}
