package schema

import "testing"

func TestCubeTableNameHonorsOverride(t *testing.T) {
	cube := &Cube{Name: "orders", Table: "public.orders"}

	if got := cube.TableName(nil); got != "public.orders" {
		t.Fatalf("TableName(nil) = %q, want %q", got, "public.orders")
	}

	overrides := map[string]string{"orders": "pre_aggregations.orders_daily"}
	if got := cube.TableName(overrides); got != "pre_aggregations.orders_daily" {
		t.Fatalf("TableName(override) = %q, want %q", got, "pre_aggregations.orders_daily")
	}

	// An override for a different cube must not leak through.
	overrides = map[string]string{"customers": "pre_aggregations.customers_daily"}
	if got := cube.TableName(overrides); got != "public.orders" {
		t.Fatalf("TableName(unrelated override) = %q, want %q", got, "public.orders")
	}
}

func TestCubeTableNameFallsBackToRawSQL(t *testing.T) {
	cube := &Cube{Name: "derived", SQL: "SELECT * FROM orders WHERE total > 100"}
	want := "(SELECT * FROM orders WHERE total > 100)"
	if got := cube.TableName(nil); got != want {
		t.Fatalf("TableName() = %q, want %q", got, want)
	}
}

func TestPrimaryKeyDimension(t *testing.T) {
	cube := &Cube{
		Name: "orders",
		Dimensions: map[string]*Dimension{
			"id":     {Name: "id", Type: DimNumber, SQL: "id", PrimaryKey: true},
			"status": {Name: "status", Type: DimString, SQL: "status"},
		},
	}

	pk, ok := cube.PrimaryKeyDimension()
	if !ok {
		t.Fatal("expected a primary key dimension")
	}
	if pk.Name != "id" {
		t.Fatalf("PrimaryKeyDimension() = %q, want %q", pk.Name, "id")
	}

	cube2 := &Cube{Name: "no_pk", Dimensions: map[string]*Dimension{
		"status": {Name: "status", Type: DimString, SQL: "status"},
	}}
	if _, ok := cube2.PrimaryKeyDimension(); ok {
		t.Fatal("expected no primary key dimension")
	}
}

func TestSchemaCubeNamesSorted(t *testing.T) {
	b := NewBuilder()
	b.AddCube(&Cube{Name: "orders", Table: "orders", Measures: map[string]*Measure{"count": {Name: "count", Kind: MeasureCount, SQL: "id"}}})
	b.AddCube(&Cube{Name: "customers", Table: "customers", Dimensions: map[string]*Dimension{"id": {Name: "id", Type: DimNumber, SQL: "id"}}})

	s, missing := b.Build("v1")
	if len(missing) != 0 {
		t.Fatalf("unexpected missing targets: %v", missing)
	}

	got := s.CubeNames()
	want := []string{"customers", "orders"}
	if len(got) != len(want) {
		t.Fatalf("CubeNames() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("CubeNames()[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestBuilderReportsMissingRelationshipTarget(t *testing.T) {
	b := NewBuilder()
	b.AddCube(&Cube{
		Name:       "orders",
		Table:      "orders",
		Measures:   map[string]*Measure{"count": {Name: "count", Kind: MeasureCount, SQL: "id"}},
		Relationships: map[string]*Relationship{
			"customer": {Name: "customer", Kind: BelongsTo, TargetCube: "customers", ForeignKey: "customer_id"},
		},
	})

	_, missing := b.Build("v1")
	if len(missing) != 1 {
		t.Fatalf("expected 1 missing target, got %d", len(missing))
	}
	if missing[0].Target != "customers" {
		t.Fatalf("missing target = %q, want %q", missing[0].Target, "customers")
	}
}

func TestGraphForwardAndReverse(t *testing.T) {
	b := NewBuilder()
	b.AddCube(&Cube{
		Name:     "orders",
		Table:    "orders",
		Measures: map[string]*Measure{"count": {Name: "count", Kind: MeasureCount, SQL: "id"}},
		Relationships: map[string]*Relationship{
			"customer": {Name: "customer", Kind: BelongsTo, TargetCube: "customers", ForeignKey: "customer_id", PrimaryKey: "id"},
		},
	})
	b.AddCube(&Cube{
		Name:       "customers",
		Table:      "customers",
		Dimensions: map[string]*Dimension{"id": {Name: "id", Type: DimNumber, SQL: "id", PrimaryKey: true}},
	})

	s, missing := b.Build("v1")
	if len(missing) != 0 {
		t.Fatalf("unexpected missing targets: %v", missing)
	}

	fwd := s.Graph().Forward("orders")
	if len(fwd) != 1 || fwd[0].TargetCube != "customers" {
		t.Fatalf("Forward(orders) = %+v", fwd)
	}

	rev := s.Graph().ReverseOwners("customers")
	if len(rev) != 1 || rev[0].Owner != "orders" {
		t.Fatalf("ReverseOwners(customers) = %+v", rev)
	}
}
