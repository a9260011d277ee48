package preagg_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cubedlayer/cubed/internal/preagg"
	"github.com/cubedlayer/cubed/internal/query"
	"github.com/cubedlayer/cubed/internal/schema"
)

func buildSchema(t *testing.T, defs ...*schema.PreAggregation) *schema.Schema {
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
			"count":    {Name: "count", Kind: schema.MeasureCount, SQL: "id"},
			"totalRev": {Name: "totalRev", Kind: schema.MeasureSum, SQL: "revenue"},
		},
		PreAggregations: defs,
	})
	s, missing := b.Build("v1")
	require.Empty(t, missing)
	return s
}

func dailyRollup() *schema.PreAggregation {
	return &schema.PreAggregation{
		Name:            "daily",
		Cube:            "orders",
		Dimensions:      []string{"status"},
		Measures:        []string{"count", "totalRev"},
		TimeDimension:   "createdAt",
		Granularity:     "day",
		RefreshInterval: "every 1 hour",
	}
}

func TestMatchExact(t *testing.T) {
	d := dailyRollup()
	s := buildSchema(t, d)
	reg := preagg.NewRegistry(s)

	req := &query.Request{
		Dimensions: []string{"orders.status"},
		Measures:   []string{"orders.count"},
		TimeDimensions: []query.TimeDimension{
			{Dimension: "orders.createdAt", Granularity: query.GranularityDay},
		},
	}
	got, ok := reg.Match("orders", req)
	require.True(t, ok)
	assert.Equal(t, "daily", got.Name)
}

func TestMatchSubsetOfWiderRollup(t *testing.T) {
	d := dailyRollup()
	s := buildSchema(t, d)
	reg := preagg.NewRegistry(s)

	req := &query.Request{
		Measures: []string{"orders.count"},
	}
	got, ok := reg.Match("orders", req)
	require.True(t, ok)
	assert.Equal(t, "daily", got.Name)
}

func TestMatchRejectsMeasureNotInRollup(t *testing.T) {
	d := &schema.PreAggregation{
		Name:       "counts",
		Cube:       "orders",
		Dimensions: []string{"status"},
		Measures:   []string{"count"},
	}
	s := buildSchema(t, d)
	reg := preagg.NewRegistry(s)

	req := &query.Request{
		Dimensions: []string{"orders.status"},
		Measures:   []string{"orders.totalRev"},
	}
	_, ok := reg.Match("orders", req)
	assert.False(t, ok)
}

func TestMatchRejectsGranularityMismatch(t *testing.T) {
	d := dailyRollup()
	s := buildSchema(t, d)
	reg := preagg.NewRegistry(s)

	req := &query.Request{
		Measures: []string{"orders.count"},
		TimeDimensions: []query.TimeDimension{
			{Dimension: "orders.createdAt", Granularity: query.GranularityMonth},
		},
	}
	_, ok := reg.Match("orders", req)
	assert.False(t, ok)
}

func TestMatchRejectsDifferentCube(t *testing.T) {
	d := dailyRollup()
	s := buildSchema(t, d)
	reg := preagg.NewRegistry(s)

	req := &query.Request{Measures: []string{"orders.count"}}
	_, ok := reg.Match("customers", req)
	assert.False(t, ok)
}

func TestRollupTableAndOverride(t *testing.T) {
	d := dailyRollup()
	assert.Equal(t, "pre_aggregations.orders_daily", preagg.RollupTable(d))
	assert.Equal(t, map[string]string{"orders": "pre_aggregations.orders_daily"}, preagg.TableOverride(d))
}

func TestParseIntervalUnits(t *testing.T) {
	cases := map[string]time.Duration{
		"every 30 seconds": 30 * time.Second,
		"every 1 minute":   time.Minute,
		"every 2 hours":    2 * time.Hour,
		"every 1 day":      24 * time.Hour,
		"":                 0,
	}
	for spec, want := range cases {
		got, err := preagg.ParseInterval(spec)
		require.NoError(t, err, spec)
		assert.Equal(t, want, got, spec)
	}
}

func TestParseIntervalRejectsMalformed(t *testing.T) {
	for _, spec := range []string{"hourly", "every hour", "every 0 hours", "every -1 hours", "every 1 fortnight"} {
		_, err := preagg.ParseInterval(spec)
		assert.Error(t, err, spec)
	}
}
