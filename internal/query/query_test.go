package query

import "testing"

func TestRequestIsEmpty(t *testing.T) {
	cases := []struct {
		name string
		req  Request
		want bool
	}{
		{"nothing", Request{}, true},
		{"dimension", Request{Dimensions: []string{"orders.status"}}, false},
		{"measure", Request{Measures: []string{"orders.count"}}, false},
		{"bare time dimension no granularity", Request{TimeDimensions: []TimeDimension{{Dimension: "orders.created_at"}}}, true},
		{"time dimension with granularity", Request{TimeDimensions: []TimeDimension{{Dimension: "orders.created_at", Granularity: GranularityDay}}}, false},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			if got := c.req.IsEmpty(); got != c.want {
				t.Fatalf("IsEmpty() = %v, want %v", got, c.want)
			}
		})
	}
}

func TestRequestValidateRejectsUnqualifiedField(t *testing.T) {
	r := Request{Dimensions: []string{"status"}}
	if err := r.Validate(); err == nil {
		t.Fatal("expected an error for an unqualified dimension")
	}
}

func TestRequestValidateRejectsInDateRangeWithWrongArity(t *testing.T) {
	r := Request{
		Dimensions: []string{"orders.status"},
		Filters: []Filter{
			&LeafFilter{Field: "orders.created_at", Operator: OpInDateRange, Values: []string{"2024-01-01"}},
		},
	}
	if err := r.Validate(); err == nil {
		t.Fatal("expected an error for in_date_range with one value")
	}
}

func TestRequestValidateRejectsMultipleCompareDateRanges(t *testing.T) {
	r := Request{
		Dimensions: []string{"orders.status"},
		TimeDimensions: []TimeDimension{
			{Dimension: "orders.created_at", CompareDateRange: []DateRange{{Start: "2024-01-01", End: "2024-01-01"}}},
			{Dimension: "orders.updated_at", CompareDateRange: []DateRange{{Start: "2024-01-02", End: "2024-01-02"}}},
		},
	}
	if err := r.Validate(); err == nil {
		t.Fatal("expected an error for two time dimensions bearing compare_date_range")
	}
}

func TestReferencedCubesOrderAndDedup(t *testing.T) {
	r := Request{
		Dimensions: []string{"orders.status"},
		Measures:   []string{"orders.count", "customers.count"},
		Filters: []Filter{
			&LogicalFilter{Kind: LogicalOr, Children: []Filter{
				&LeafFilter{Field: "customers.region", Operator: OpEquals, Values: []string{"us"}},
				&LeafFilter{Field: "products.category", Operator: OpEquals, Values: []string{"books"}},
			}},
		},
	}

	got := r.ReferencedCubes()
	want := []string{"orders", "customers", "products"}
	if len(got) != len(want) {
		t.Fatalf("ReferencedCubes() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("ReferencedCubes()[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestLeafFilterSortedValuesDoesNotMutateOriginal(t *testing.T) {
	l := &LeafFilter{Field: "orders.status", Operator: OpIn, Values: []string{"c", "a", "b"}}
	sorted := l.SortedValues()
	if sorted[0] != "a" || sorted[1] != "b" || sorted[2] != "c" {
		t.Fatalf("SortedValues() = %v", sorted)
	}
	if l.Values[0] != "c" {
		t.Fatalf("original Values mutated: %v", l.Values)
	}
}
