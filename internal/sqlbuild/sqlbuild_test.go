package sqlbuild_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cubedlayer/cubed/internal/query"
	"github.com/cubedlayer/cubed/internal/schema"
	"github.com/cubedlayer/cubed/internal/sqlbuild"
)

func ordersOnlySchema(t *testing.T) *schema.Schema {
	t.Helper()
	b := schema.NewBuilder()
	b.AddCube(&schema.Cube{
		Name:  "orders",
		Table: "orders",
		Dimensions: map[string]*schema.Dimension{
			"id":        {Name: "id", Type: schema.DimNumber, SQL: "id", PrimaryKey: true},
			"status":    {Name: "status", Type: schema.DimString, SQL: "status"},
			"createdAt": {Name: "createdAt", Type: schema.DimTime, SQL: "created_at"},
		},
		Measures: map[string]*schema.Measure{
			"count":         {Name: "count", Kind: schema.MeasureCount, SQL: "id"},
			"total_revenue": {Name: "total_revenue", Kind: schema.MeasureSum, SQL: "total_amount"},
		},
	})
	s, missing := b.Build("v1")
	require.Empty(t, missing)
	return s
}

func joinedSchema(t *testing.T) *schema.Schema {
	t.Helper()
	b := schema.NewBuilder()
	b.AddCube(&schema.Cube{
		Name:  "orders",
		Table: "orders",
		Dimensions: map[string]*schema.Dimension{
			"id": {Name: "id", Type: schema.DimNumber, SQL: "id", PrimaryKey: true},
		},
		Measures: map[string]*schema.Measure{
			"count": {Name: "count", Kind: schema.MeasureCount, SQL: "id"},
		},
		Relationships: map[string]*schema.Relationship{
			"customer": {Name: "customer", Kind: schema.BelongsTo, TargetCube: "customers", ForeignKey: "customer_id", PrimaryKey: "id"},
		},
	})
	b.AddCube(&schema.Cube{
		Name:  "customers",
		Table: "customers",
		Dimensions: map[string]*schema.Dimension{
			"id": {Name: "id", Type: schema.DimNumber, SQL: "id", PrimaryKey: true},
		},
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

func TestBuildSimpleAggregation(t *testing.T) {
	s := ordersOnlySchema(t)
	result, err := sqlbuild.Build(s, &query.Request{Measures: []string{"orders.count"}}, sqlbuild.Options{})
	require.NoError(t, err)
	assert.Equal(t, "SELECT COUNT(t0.id) AS orders_count\nFROM orders AS t0", result.SQL)
}

func TestBuildGroupByWithFilter(t *testing.T) {
	s := ordersOnlySchema(t)
	req := &query.Request{
		Dimensions: []string{"orders.status"},
		Measures:   []string{"orders.count", "orders.total_revenue"},
		Filters: []query.Filter{
			&query.LeafFilter{Field: "orders.status", Operator: query.OpEquals, Values: []string{"completed"}},
		},
	}
	result, err := sqlbuild.Build(s, req, sqlbuild.Options{})
	require.NoError(t, err)
	assert.Contains(t, result.SQL, "WHERE t0.status = 'completed'\nGROUP BY t0.status")
}

func TestBuildTwoHopJoin(t *testing.T) {
	s := joinedSchema(t)
	req := &query.Request{
		Dimensions: []string{"countries.name"},
		Measures:   []string{"orders.count"},
	}
	result, err := sqlbuild.Build(s, req, sqlbuild.Options{})
	require.NoError(t, err)
	iJoinCustomers := indexOf(result.SQL, "LEFT JOIN customers AS t1 ON t0.customer_id = t1.id")
	iJoinCountries := indexOf(result.SQL, "LEFT JOIN countries AS t2 ON t1.country_id = t2.id")
	require.NotEqual(t, -1, iJoinCustomers)
	require.NotEqual(t, -1, iJoinCountries)
	assert.Less(t, iJoinCustomers, iJoinCountries)
}

func TestBuildHavingVsWherePartition(t *testing.T) {
	s := ordersOnlySchema(t)
	req := &query.Request{
		Dimensions: []string{"orders.status"},
		Measures:   []string{"orders.total_revenue"},
		Filters: []query.Filter{
			&query.LeafFilter{Field: "orders.status", Operator: query.OpEquals, Values: []string{"completed"}},
		},
		MeasureFilters: []query.Filter{
			&query.LeafFilter{Field: "orders.total_revenue", Operator: query.OpGt, Values: []string{"1000"}},
		},
	}
	result, err := sqlbuild.Build(s, req, sqlbuild.Options{})
	require.NoError(t, err)

	whereIdx := indexOf(result.SQL, "WHERE t0.status = 'completed'")
	groupByIdx := indexOf(result.SQL, "GROUP BY t0.status")
	havingIdx := indexOf(result.SQL, "HAVING SUM(t0.total_amount) > 1000")
	require.NotEqual(t, -1, whereIdx)
	require.NotEqual(t, -1, groupByIdx)
	require.NotEqual(t, -1, havingIdx)
	assert.Less(t, whereIdx, groupByIdx)
	assert.Less(t, groupByIdx, havingIdx)
}

func TestBuildNestedLogicalFilter(t *testing.T) {
	s := ordersOnlySchema(t)
	req := &query.Request{
		Measures: []string{"orders.total_revenue"},
		Filters: []query.Filter{
			&query.LogicalFilter{
				Kind: query.LogicalOr,
				Children: []query.Filter{
					&query.LeafFilter{Field: "orders.status", Operator: query.OpEquals, Values: []string{"completed"}},
					&query.LogicalFilter{
						Kind: query.LogicalAnd,
						Children: []query.Filter{
							&query.LeafFilter{Field: "orders.status", Operator: query.OpEquals, Values: []string{"pending"}},
						},
					},
				},
			},
		},
		MeasureFilters: []query.Filter{
			&query.LeafFilter{Field: "orders.total_revenue", Operator: query.OpGt, Values: []string{"50"}},
		},
	}
	result, err := sqlbuild.Build(s, req, sqlbuild.Options{})
	require.NoError(t, err)
	assert.Contains(t, result.SQL, "WHERE t0.status = 'completed' OR (t0.status = 'pending')")
	assert.Contains(t, result.SQL, "HAVING SUM(t0.total_amount) > 50")
}

func indexOf(haystack, needle string) int {
	for i := 0; i+len(needle) <= len(haystack); i++ {
		if haystack[i:i+len(needle)] == needle {
			return i
		}
	}
	return -1
}
