package catalog

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/K-PaaS/cp-portal-service-broker/internal/domain"
)

// Compile-time check: Catalog implements domain.PlanCatalog.
var _ domain.PlanCatalog = (*Catalog)(nil)

type planFile struct {
	Plans []planEntry `yaml:"plans"`
}

type planEntry struct {
	ID     string `yaml:"id"`
	Name   string `yaml:"name"`
	Weight int    `yaml:"weight"`
	Memory string `yaml:"memory"`
	Disk   string `yaml:"disk"`
}

// Catalog holds the sizing tiers loaded from the plan file. The catalog
// is immutable after loading; plan changes are an operator concern
// handled by restarting the broker.
type Catalog struct {
	plans map[string]domain.Plan
	order []domain.Plan
}

// Load reads and validates a plan catalog from a YAML file.
func Load(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading plan catalog: %w", err)
	}
	return Parse(data)
}

// Parse builds a catalog from raw YAML.
func Parse(data []byte) (*Catalog, error) {
	var file planFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parsing plan catalog: %w", err)
	}
	if len(file.Plans) == 0 {
		return nil, fmt.Errorf("plan catalog is empty")
	}

	c := &Catalog{plans: make(map[string]domain.Plan, len(file.Plans))}
	for _, entry := range file.Plans {
		if entry.ID == "" {
			return nil, fmt.Errorf("plan with empty id")
		}
		if entry.Memory == "" || entry.Disk == "" {
			return nil, fmt.Errorf("plan %q is missing memory or disk", entry.ID)
		}
		if _, dup := c.plans[entry.ID]; dup {
			return nil, fmt.Errorf("duplicate plan id %q", entry.ID)
		}

		plan := domain.Plan{
			ID:     entry.ID,
			Name:   entry.Name,
			Weight: entry.Weight,
			Memory: entry.Memory,
			Disk:   entry.Disk,
		}
		c.plans[entry.ID] = plan
		c.order = append(c.order, plan)
	}
	return c, nil
}

// Plan resolves a plan id to its sizing tier.
func (c *Catalog) Plan(id string) (domain.Plan, error) {
	plan, ok := c.plans[id]
	if !ok {
		return domain.Plan{}, domain.ErrPlanNotFound
	}
	return plan, nil
}

// Plans returns every plan in file order.
func (c *Catalog) Plans() []domain.Plan {
	out := make([]domain.Plan, len(c.order))
	copy(out, c.order)
	return out
}
