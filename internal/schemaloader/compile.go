package schemaloader

import (
	"fmt"

	"github.com/cubedlayer/cubed/internal/schema"
)

// compileCube turns one parsed YAML cube into a schema.Cube, returning
// a problem per invariant violation instead of failing fast — the
// caller batches these across every cube in the directory.
func compileCube(raw *cubeFile) (*schema.Cube, []string) {
	var problems []string

	if raw.Table == "" && raw.SQL == "" {
		problems = append(problems, "must have either 'table' or 'sql' defined")
	}
	if len(raw.Dimensions) == 0 && len(raw.Measures) == 0 {
		problems = append(problems, "must have at least one dimension or measure")
	}

	cube := &schema.Cube{
		Name:          raw.Name,
		Table:         raw.Table,
		SQL:           raw.SQL,
		Dimensions:    make(map[string]*schema.Dimension, len(raw.Dimensions)),
		Measures:      make(map[string]*schema.Measure, len(raw.Measures)),
		Relationships: make(map[string]*schema.Relationship, len(raw.Relationships)),
	}

	for name, d := range raw.Dimensions {
		dt, ok := validDimensionType(d.Type)
		if !ok {
			problems = append(problems, fmt.Sprintf("dimension %q has unknown type %q", name, d.Type))
			continue
		}
		if d.SQL == "" {
			problems = append(problems, fmt.Sprintf("dimension %q has no sql expression", name))
			continue
		}
		cube.Dimensions[name] = &schema.Dimension{
			Name:          name,
			Type:          dt,
			SQL:           d.SQL,
			PrimaryKey:    d.PrimaryKey,
			Granularities: d.Granularities,
		}
	}

	for name, m := range raw.Measures {
		mk, ok := validMeasureKind(m.Type)
		if !ok {
			problems = append(problems, fmt.Sprintf("measure %q has unknown type %q", name, m.Type))
			continue
		}
		if mk == schema.MeasureCalculated {
			formula := m.Formula
			if formula == "" {
				formula = m.Expression
			}
			if formula == "" {
				problems = append(problems, fmt.Sprintf("calculated measure %q has no formula/expression", name))
				continue
			}
			cube.Measures[name] = &schema.Measure{Name: name, Kind: mk, Expression: formula}
			continue
		}
		if m.SQL == "" && mk != schema.MeasureCount {
			problems = append(problems, fmt.Sprintf("measure %q has no sql expression", name))
			continue
		}
		sql := m.SQL
		if sql == "" {
			sql = "*"
		}
		cube.Measures[name] = &schema.Measure{Name: name, Kind: mk, SQL: sql}
	}

	for name, r := range raw.Relationships {
		rk, ok := validRelationshipKind(r.Type)
		if !ok {
			problems = append(problems, fmt.Sprintf("relationship %q has unknown type %q", name, r.Type))
			continue
		}
		if r.Cube == "" {
			problems = append(problems, fmt.Sprintf("relationship %q has no target cube", name))
			continue
		}
		pk := r.PrimaryKey
		if pk == "" {
			pk = "id"
		}
		if rk == schema.BelongsTo && r.ForeignKey == "" {
			problems = append(problems, fmt.Sprintf("relationship %q (belongs_to) has no foreign_key", name))
			continue
		}
		cube.Relationships[name] = &schema.Relationship{
			Name:       name,
			Kind:       rk,
			TargetCube: r.Cube,
			ForeignKey: r.ForeignKey,
			PrimaryKey: pk,
		}
	}

	if raw.Security != nil && raw.Security.RowFilter != "" {
		cube.Security = &schema.Security{RowFilter: raw.Security.RowFilter}
	}

	for _, pa := range raw.PreAggregations {
		interval := ""
		if pa.RefreshKey != nil {
			interval = pa.RefreshKey.Every
		}
		cube.PreAggregations = append(cube.PreAggregations, &schema.PreAggregation{
			Name:            pa.Name,
			Cube:            raw.Name,
			Dimensions:      pa.Dimensions,
			Measures:        pa.Measures,
			TimeDimension:   pa.TimeDimension,
			Granularity:     pa.Granularity,
			RefreshInterval: interval,
		})
	}

	return cube, problems
}

func validDimensionType(t string) (schema.DimensionType, bool) {
	switch schema.DimensionType(t) {
	case schema.DimString, schema.DimNumber, schema.DimTime, schema.DimBoolean:
		return schema.DimensionType(t), true
	}
	return "", false
}

func validMeasureKind(t string) (schema.MeasureKind, bool) {
	switch schema.MeasureKind(t) {
	case schema.MeasureCount, schema.MeasureCountDistinct, schema.MeasureSum,
		schema.MeasureAvg, schema.MeasureMin, schema.MeasureMax,
		schema.MeasureNumber, schema.MeasureCalculated:
		return schema.MeasureKind(t), true
	}
	return "", false
}

func validRelationshipKind(t string) (schema.RelationshipKind, bool) {
	switch schema.RelationshipKind(t) {
	case schema.BelongsTo, schema.HasOne, schema.HasMany:
		return schema.RelationshipKind(t), true
	}
	return "", false
}
