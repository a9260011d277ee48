package cubed

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/cubedlayer/cubed/internal/lifecycle"
	"github.com/cubedlayer/cubed/internal/preagg"
	"github.com/cubedlayer/cubed/internal/schemaloader"
)

func writeFixture(t *testing.T, dir, name, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
		t.Fatalf("writing fixture %s: %v", name, err)
	}
}

func newTestService(t *testing.T, dir string) *Service {
	t.Helper()
	s, err := schemaloader.Load(dir, "v1")
	if err != nil {
		t.Fatalf("schemaloader.Load: %v", err)
	}
	return &Service{
		manager: lifecycle.NewManager(),
		current: s,
		preaggs: preagg.NewRegistry(s),
	}
}

func TestWatchSchemaTriggersReloadOnWrite(t *testing.T) {
	dir := t.TempDir()
	writeFixture(t, dir, "orders.yaml", `
name: orders
table: public.orders
dimensions:
  status: status
measures:
  count:
    type: count
`)

	svc := newTestService(t, dir)
	before := svc.CurrentSchema().Version

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := svc.WatchSchema(ctx, dir); err != nil {
		t.Fatalf("WatchSchema: %v", err)
	}

	writeFixture(t, dir, "orders.yaml", `
name: orders
table: public.orders
dimensions:
  status: status
  region: region
measures:
  count:
    type: count
`)

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		cube, ok := svc.CurrentSchema().Cube("orders")
		if ok {
			if _, ok := cube.Dimensions["region"]; ok {
				return
			}
		}
		if svc.CurrentSchema().Version != before {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatal("schema was not reloaded after a watched file changed")
}
