package dataset

import (
	"context"
	"fmt"
	"os"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// ViewDef declares one compatibility view over the dataset.
type ViewDef struct {
	Name  string `yaml:"name"`
	Query string `yaml:"query"`
}

type viewsFile struct {
	Views []ViewDef `yaml:"views"`
}

// DefaultViews maps the generated queries' lowercase table vocabulary onto the
// Northwind dataset's mixed-case tables.
var DefaultViews = []ViewDef{
	{Name: "orders", Query: "SELECT * FROM Orders"},
	{Name: "order_items", Query: `SELECT * FROM "Order Details"`},
	{Name: "products", Query: "SELECT * FROM Products"},
	{Name: "customers", Query: "SELECT * FROM Customers"},
}

// LoadViewDefs reads view definitions from a YAML file. An empty path yields
// the built-in defaults.
func LoadViewDefs(path string) ([]ViewDef, error) {
	if path == "" {
		return DefaultViews, nil
	}
	buf, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read view definitions: %w", err)
	}
	var f viewsFile
	if err := yaml.Unmarshal(buf, &f); err != nil {
		return nil, fmt.Errorf("parse view definitions: %w", err)
	}
	if len(f.Views) == 0 {
		return DefaultViews, nil
	}
	return f.Views, nil
}

// CreateCompatViews creates the compatibility views if they do not exist.
// A view that fails to create (for example when its base table is absent from
// a trimmed dataset) is logged and skipped.
func (s *Store) CreateCompatViews(ctx context.Context, defs []ViewDef) error {
	for _, def := range defs {
		stmt := fmt.Sprintf(`CREATE VIEW IF NOT EXISTS %q AS %s`, def.Name, def.Query)
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			s.logger.Warn("Compat view skipped",
				zap.String("view", def.Name),
				zap.Error(err),
			)
		}
	}
	return nil
}
