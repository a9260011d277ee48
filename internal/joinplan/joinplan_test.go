package joinplan_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cubedlayer/cubed/internal/joinplan"
	"github.com/cubedlayer/cubed/internal/schema"
)

func buildSchema(t *testing.T) *schema.Schema {
	t.Helper()
	b := schema.NewBuilder()
	b.AddCube(&schema.Cube{
		Name: "orders",
		Table: "orders",
		Dimensions: map[string]*schema.Dimension{"id": {Name: "id", Type: schema.DimNumber, SQL: "id", PrimaryKey: true}},
		Measures:   map[string]*schema.Measure{"count": {Name: "count", Kind: schema.MeasureCount, SQL: "id"}},
		Relationships: map[string]*schema.Relationship{
			"customer": {Name: "customer", Kind: schema.BelongsTo, TargetCube: "customers", ForeignKey: "customer_id", PrimaryKey: "id"},
		},
	})
	b.AddCube(&schema.Cube{
		Name: "customers",
		Table: "customers",
		Dimensions: map[string]*schema.Dimension{"id": {Name: "id", Type: schema.DimNumber, SQL: "id", PrimaryKey: true}},
		Relationships: map[string]*schema.Relationship{
			"country": {Name: "country", Kind: schema.BelongsTo, TargetCube: "countries", ForeignKey: "country_id", PrimaryKey: "id"},
		},
	})
	b.AddCube(&schema.Cube{
		Name:       "countries",
		Table:      "countries",
		Dimensions: map[string]*schema.Dimension{"name": {Name: "name", Type: schema.DimString, SQL: "name"}},
	})
	s, missing := b.Build("v1")
	require.Empty(t, missing)
	return s
}

func TestBuildNoJoinsNeeded(t *testing.T) {
	s := buildSchema(t)
	plan, err := joinplan.Build(s.Graph(), "orders", nil)
	require.NoError(t, err)
	assert.Equal(t, "t0", plan.Alias("orders"))
	assert.Empty(t, plan.Hops)
}

func TestBuildTwoHop(t *testing.T) {
	s := buildSchema(t)
	plan, err := joinplan.Build(s.Graph(), "orders", []string{"countries"})
	require.NoError(t, err)
	require.Len(t, plan.Hops, 2)
	assert.Equal(t, "customers", plan.Hops[0].ToCube)
	assert.Equal(t, "countries", plan.Hops[1].ToCube)
	assert.Equal(t, "t1", plan.Alias("customers"))
	assert.Equal(t, "t2", plan.Alias("countries"))
}

func TestBuildReverseDirection(t *testing.T) {
	s := buildSchema(t)
	plan, err := joinplan.Build(s.Graph(), "customers", []string{"orders"})
	require.NoError(t, err)
	require.Len(t, plan.Hops, 1)
	assert.Equal(t, joinplan.Reverse, plan.Hops[0].Direction)
}

func TestBuildNoPath(t *testing.T) {
	b := schema.NewBuilder()
	b.AddCube(&schema.Cube{Name: "a", Table: "a", Dimensions: map[string]*schema.Dimension{"x": {Name: "x", Type: schema.DimString, SQL: "x"}}})
	b.AddCube(&schema.Cube{Name: "b", Table: "b", Dimensions: map[string]*schema.Dimension{"y": {Name: "y", Type: schema.DimString, SQL: "y"}}})
	s, _ := b.Build("v1")

	_, err := joinplan.Build(s.Graph(), "a", []string{"b"})
	require.Error(t, err)
}
