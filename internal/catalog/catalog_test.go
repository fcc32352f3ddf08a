package catalog

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/agentgate/agentgate/gateway/pkg/models"
)

func TestRegisterAndGet(t *testing.T) {
	c := NewCatalog()

	if err := c.Register(models.ToolDefinition{ID: "search", Description: "web search"}); err != nil {
		t.Fatal(err)
	}

	tool, ok := c.Get("search")
	if !ok {
		t.Fatal("registered tool not found")
	}
	if tool.Name != "search" {
		t.Errorf("name = %q, want id used as default", tool.Name)
	}

	if err := c.Register(models.ToolDefinition{}); err == nil {
		t.Error("empty id should be rejected")
	}
}

func TestListSorted(t *testing.T) {
	c := NewCatalog()
	for _, id := range []string{"zeta", "alpha", "mid"} {
		if err := c.Register(models.ToolDefinition{ID: id}); err != nil {
			t.Fatal(err)
		}
	}

	list := c.List()
	want := []string{"alpha", "mid", "zeta"}
	for i, id := range want {
		if list[i].ID != id {
			t.Errorf("list[%d] = %s, want %s", i, list[i].ID, id)
		}
	}
}

func TestRemove(t *testing.T) {
	c := NewCatalog()
	c.Register(models.ToolDefinition{ID: "gone"})

	if !c.Remove("gone") {
		t.Error("remove of existing tool returned false")
	}
	if c.Remove("gone") {
		t.Error("second remove returned true")
	}
	if c.Count() != 0 {
		t.Errorf("count = %d, want 0", c.Count())
	}
}

func TestLoadFile(t *testing.T) {
	tools := []models.ToolDefinition{
		{ID: "a", Description: "first"},
		{ID: "b", Description: "second"},
	}
	data, err := json.Marshal(tools)
	if err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(t.TempDir(), "tools.json")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}

	c := NewCatalog()
	if err := c.LoadFile(path); err != nil {
		t.Fatal(err)
	}
	if c.Count() != 2 {
		t.Errorf("count = %d, want 2", c.Count())
	}

	if err := c.LoadFile(filepath.Join(t.TempDir(), "missing.json")); err == nil {
		t.Error("missing file should error")
	}
}
