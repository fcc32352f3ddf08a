// Package catalog provides the thread-safe in-memory tool registry the
// router ranks against. Entries can be seeded from a JSON file and are
// snapshotted per routing call so a catalog update never mutates an
// in-flight decision.
package catalog

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/agentgate/agentgate/gateway/pkg/models"
)

// Catalog is a thread-safe registry of tool definitions.
type Catalog struct {
	mu    sync.RWMutex
	tools map[string]models.ToolDefinition
}

// NewCatalog creates an empty catalog.
func NewCatalog() *Catalog {
	return &Catalog{tools: make(map[string]models.ToolDefinition)}
}

// Register adds or replaces a tool definition.
func (c *Catalog) Register(tool models.ToolDefinition) error {
	if tool.ID == "" {
		return fmt.Errorf("tool id is required")
	}
	if tool.Name == "" {
		tool.Name = tool.ID
	}

	c.mu.Lock()
	c.tools[tool.ID] = tool
	c.mu.Unlock()

	log.Info().Str("tool", tool.ID).Msg("Tool registered")
	return nil
}

// Get returns the tool by id.
func (c *Catalog) Get(id string) (models.ToolDefinition, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	t, ok := c.tools[id]
	return t, ok
}

// Remove deletes a tool. Returns whether it existed.
func (c *Catalog) Remove(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.tools[id]
	delete(c.tools, id)
	return ok
}

// List snapshots every definition, ordered by id.
func (c *Catalog) List() []models.ToolDefinition {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]models.ToolDefinition, 0, len(c.tools))
	for _, t := range c.tools {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Count returns the number of registered tools.
func (c *Catalog) Count() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.tools)
}

// LoadFile seeds the catalog from a JSON array of tool definitions.
func (c *Catalog) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read catalog file: %w", err)
	}

	var tools []models.ToolDefinition
	if err := json.Unmarshal(data, &tools); err != nil {
		return fmt.Errorf("unmarshal catalog file: %w", err)
	}

	for _, t := range tools {
		if err := c.Register(t); err != nil {
			return fmt.Errorf("register tool from %s: %w", path, err)
		}
	}

	log.Info().Int("tools", len(tools)).Str("path", path).Msg("Catalog loaded from file")
	return nil
}
