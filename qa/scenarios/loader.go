// Package scenarios runs YAML described fleets through the scheduling
// engine and checks the outcome.
package scenarios

import (
	"os"

	"gopkg.in/yaml.v3"

	"github.com/yatrik/scheduler/core/model"
	"github.com/yatrik/scheduler/core/scheduler"
)

type RouteDef struct {
	ID       string  `yaml:"id"`
	Number   string  `yaml:"number"`
	Depot    string  `yaml:"depot"`
	Duration int     `yaml:"duration"`
	Fare     float64 `yaml:"fare"`
	Demand   int     `yaml:"demand,omitempty"`
	Status   string  `yaml:"status,omitempty"`
}

func (r RouteDef) ToModel() model.Route {
	number := r.Number
	if number == "" {
		number = r.ID
	}
	return model.Route{
		ID:                r.ID,
		Number:            number,
		DepotID:           r.Depot,
		EstimatedDuration: r.Duration,
		BaseFare:          r.Fare,
		ExpectedDemand:    r.Demand,
		Status:            r.Status,
	}
}

type BusDef struct {
	ID       string `yaml:"id"`
	Depot    string `yaml:"depot"`
	Capacity int    `yaml:"capacity"`
	Status   string `yaml:"status,omitempty"`
}

type StaffDef struct {
	ID     string `yaml:"id"`
	Depot  string `yaml:"depot"`
	Status string `yaml:"status,omitempty"`
}

func (s StaffDef) ToModel() model.Staff {
	return model.Staff{ID: s.ID, DepotID: s.Depot, Status: s.Status}
}

type Expected struct {
	Created int            `yaml:"created"`
	Skipped int            `yaml:"skipped"`
	Reasons map[string]int `yaml:"reasons,omitempty"`
	// Starts lists the trip start times per route, in slot order.
	Starts map[string][]string `yaml:"starts,omitempty"`
}

type Scenario struct {
	Name        string            `yaml:"name"`
	Description string            `yaml:"description,omitempty"`
	Options     scheduler.Options `yaml:"options"`
	Depots      []string          `yaml:"depots"`
	Routes      []RouteDef        `yaml:"routes"`
	Buses       []BusDef          `yaml:"buses"`
	Drivers     []StaffDef        `yaml:"drivers"`
	Conductors  []StaffDef        `yaml:"conductors"`
	// FailRoutes makes every trip write of these routes fail with a 422.
	FailRoutes []string `yaml:"fail_routes,omitempty"`
	Expected   Expected `yaml:"expected"`
}

// Load reads a scenario. Options absent from the file keep their defaults.
func Load(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	sc := Scenario{Options: scheduler.DefaultOptions()}
	if err := yaml.Unmarshal(data, &sc); err != nil {
		return nil, err
	}
	return &sc, nil
}
