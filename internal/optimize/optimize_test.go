package optimize_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/cubedlayer/cubed/internal/optimize"
	"github.com/cubedlayer/cubed/internal/query"
)

func TestOptimizeDedupes(t *testing.T) {
	r := &query.Request{
		Dimensions: []string{"orders.status", "orders.status"},
		Measures:   []string{"orders.count"},
		OrderBy: []query.OrderBy{
			{Field: "orders.status", Direction: query.OrderAsc},
			{Field: "orders.status", Direction: query.OrderAsc},
			{Field: "orders.status", Direction: query.OrderDesc},
		},
	}
	out := optimize.Optimize(r)
	assert.Equal(t, []string{"orders.status"}, out.Dimensions)
	assert.Len(t, out.OrderBy, 2)
}

func TestOptimizeIdempotent(t *testing.T) {
	r := &query.Request{Dimensions: []string{"orders.status", "orders.status"}}
	once := optimize.Optimize(r)
	twice := optimize.Optimize(once)
	assert.Equal(t, once.Dimensions, twice.Dimensions)
}

func TestOptimizeDoesNotMutateInput(t *testing.T) {
	r := &query.Request{Dimensions: []string{"orders.status", "orders.status"}}
	_ = optimize.Optimize(r)
	assert.Len(t, r.Dimensions, 2)
}

func TestCost(t *testing.T) {
	r := &query.Request{
		Dimensions: []string{"a.x"},
		Measures:   []string{"a.m1", "a.m2"},
		Filters: []query.Filter{
			&query.LeafFilter{Field: "a.x", Operator: query.OpEquals, Values: []string{"1"}},
		},
	}
	// 10 + 2*1 + 5*2 + 3*1 + 20*1(two cubes) = 10+2+10+3+20 = 45
	assert.Equal(t, 45, optimize.Cost(r, 2))
	assert.Equal(t, 25, optimize.Cost(r, 1))
}
