package analyze

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/gurre/csvfusion/config"
)

func TestRunRetailSmall(t *testing.T) {
	dir := t.TempDir()
	content := "id,name,price\n1,widget,10\n2,gadget,20\n3,gizmo,30\n4,doohickey,40\n5,thingamajig,50\n6,contraption,60\n"
	if err := os.WriteFile(filepath.Join(dir, "retail.csv"), []byte(content), 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}

	profile := config.LowMemory()
	profile.BlockSize = 100
	o := New(profile)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	res, err := o.Run(ctx, dir, nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(res.Mapping.Schemas) != 1 {
		t.Fatalf("expected one schema, got %d", len(res.Mapping.Schemas))
	}
	if len(res.Mapping.Blocks) == 0 {
		t.Fatal("expected at least one block")
	}
}

func TestThrottleAdjustsTarget(t *testing.T) {
	th := newThrottle(4)
	if th.target() != 4 {
		t.Fatalf("expected target 4, got %d", th.target())
	}
	th.setTarget(2)
	if th.target() != 2 {
		t.Fatalf("expected target 2, got %d", th.target())
	}
	th.setTarget(8)
	if th.target() != 8 {
		t.Fatalf("expected target 8, got %d", th.target())
	}
}
