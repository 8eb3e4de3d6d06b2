package config

import (
	"fmt"
	"os"

	"salonsched/internal/model"

	"gopkg.in/yaml.v3"
)

// HoursConfig is the root of hours.yaml: branch opening hours and staff shifts.
type HoursConfig struct {
	BusinessHours []model.BusinessHours `yaml:"business_hours"`
	StaffShifts   []model.StaffShift    `yaml:"staff_shifts"`
}

// LoadHours loads and validates the hours file.
func LoadHours(path string) (*HoursConfig, error) {
	if path == "" {
		path = "configs/hours.yaml"
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read hours config: %w", err)
	}

	var cfg HoursConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse hours config: %w", err)
	}

	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate hours config: %w", err)
	}
	return &cfg, nil
}

// Validate checks every entry and rejects duplicate branches or staff.
func (c *HoursConfig) Validate() error {
	branches := make(map[string]bool)
	for i, h := range c.BusinessHours {
		if err := h.Validate(); err != nil {
			return fmt.Errorf("business_hours[%d]: %w", i, err)
		}
		if branches[h.BranchID] {
			return fmt.Errorf("business_hours[%d]: duplicate branch '%s'", i, h.BranchID)
		}
		branches[h.BranchID] = true
	}

	staff := make(map[string]bool)
	for i, s := range c.StaffShifts {
		if err := s.Validate(); err != nil {
			return fmt.Errorf("staff_shifts[%d]: %w", i, err)
		}
		if staff[s.StaffID] {
			return fmt.Errorf("staff_shifts[%d]: duplicate staff '%s'", i, s.StaffID)
		}
		staff[s.StaffID] = true
	}
	return nil
}

// applyDefaults gives shifts without a branch the branch of the only configured one.
func (c *HoursConfig) applyDefaults() {
	if len(c.BusinessHours) != 1 {
		return
	}
	for i := range c.StaffShifts {
		if c.StaffShifts[i].BranchID == "" {
			c.StaffShifts[i].BranchID = c.BusinessHours[0].BranchID
		}
	}
}

// String returns a summary of the configuration.
func (c *HoursConfig) String() string {
	return fmt.Sprintf("HoursConfig: %d branches, %d staff shifts", len(c.BusinessHours), len(c.StaffShifts))
}
