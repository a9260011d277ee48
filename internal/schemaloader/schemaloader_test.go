package schemaloader

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/cubedlayer/cubed/internal/cubederr"
)

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
		t.Fatalf("writing fixture %s: %v", name, err)
	}
}

func TestLoadShorthandDimensionAndMeasure(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "orders.yaml", `
name: orders
table: public.orders
dimensions:
  status: status
  created_at:
    type: time
    sql: created_at
measures:
  count:
    type: count
  total: total
`)

	s, err := Load(dir, "v1")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	cube, ok := s.Cube("orders")
	if !ok {
		t.Fatal("expected orders cube")
	}

	status, ok := cube.GetDimension("status")
	if !ok || status.Type != "string" || status.SQL != "status" {
		t.Fatalf("status dimension = %+v, ok=%v", status, ok)
	}

	total, ok := cube.GetMeasure("total")
	if !ok || total.SQL != "total" {
		t.Fatalf("total measure = %+v, ok=%v", total, ok)
	}
}

func TestLoadReportsMissingRelationshipTarget(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "orders.yaml", `
name: orders
table: public.orders
measures:
  count:
    type: count
relationships:
  customer:
    type: belongs_to
    cube: customers
    foreign_key: customer_id
`)

	_, err := Load(dir, "v1")
	if err == nil {
		t.Fatal("expected an error for a dangling relationship target")
	}
	modelErr, ok := err.(*cubederr.ModelErrors)
	if !ok {
		t.Fatalf("error type = %T, want *cubederr.ModelErrors", err)
	}
	if len(modelErr.Problems) != 1 {
		t.Fatalf("Problems = %v, want 1 entry", modelErr.Problems)
	}
}

func TestLoadRejectsCubeWithNoTableOrSQL(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "broken.yaml", `
name: broken
measures:
  count:
    type: count
`)

	_, err := Load(dir, "v1")
	if err == nil {
		t.Fatal("expected an error for a cube missing both table and sql")
	}
}

func TestLoadRejectsCubeWithNoDimensionsOrMeasures(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "empty.yaml", `
name: empty
table: public.empty
`)

	_, err := Load(dir, "v1")
	if err == nil {
		t.Fatal("expected an error for a cube with no dimensions or measures")
	}
}

func TestLoadResolvesRelationshipGraphAcrossFiles(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "orders.yaml", `
name: orders
table: public.orders
measures:
  count:
    type: count
relationships:
  customer:
    type: belongs_to
    cube: customers
    foreign_key: customer_id
`)
	writeFile(t, dir, "customers.yaml", `
name: customers
table: public.customers
dimensions:
  id:
    type: number
    sql: id
    primary_key: true
  name: name
`)

	s, err := Load(dir, "v1")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	fwd := s.Graph().Forward("orders")
	if len(fwd) != 1 || fwd[0].TargetCube != "customers" {
		t.Fatalf("Forward(orders) = %+v", fwd)
	}
}

func TestLoadMultipleCubesInOneFile(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "all.yaml", `
name: a
table: a
measures:
  count:
    type: count
---
name: b
table: b
measures:
  count:
    type: count
`)

	s, err := Load(dir, "v1")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	names := s.CubeNames()
	if len(names) != 2 || names[0] != "a" || names[1] != "b" {
		t.Fatalf("CubeNames() = %v", names)
	}
}

func TestLoadRejectsEmptyDirectory(t *testing.T) {
	dir := t.TempDir()
	if _, err := Load(dir, "v1"); err == nil {
		t.Fatal("expected an error for an empty schema directory")
	}
}
