package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/mshogin/reasonguard/internal/application/services"
)

// RolesYAMLConfig is the layout of a standalone persona file.
type RolesYAMLConfig struct {
	Roles []RoleConfig `yaml:"roles"`
}

// RoleConfig defines one persona. Disabled personas are skipped on load.
type RoleConfig struct {
	Name       string `yaml:"name"`
	Constraint string `yaml:"constraint"`
	Enabled    *bool  `yaml:"enabled,omitempty"` // nil means enabled
}

// LoadRoles loads agent personas from a YAML file.
func LoadRoles(path string) ([]services.AgentRole, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read roles file: %w", err)
	}

	var yamlConfig RolesYAMLConfig
	if err := yaml.Unmarshal(data, &yamlConfig); err != nil {
		return nil, fmt.Errorf("failed to parse roles file: %w", err)
	}

	roles := make([]services.AgentRole, 0, len(yamlConfig.Roles))
	for _, r := range yamlConfig.Roles {
		if r.Enabled != nil && !*r.Enabled {
			continue
		}
		roles = append(roles, services.AgentRole{
			Name:       strings.TrimSpace(r.Name),
			Constraint: strings.TrimSpace(r.Constraint),
		})
	}

	if err := validateRoles(roles); err != nil {
		return nil, fmt.Errorf("invalid roles file %s: %w", path, err)
	}
	return roles, nil
}

// SaveRoles writes personas to a YAML file.
func SaveRoles(roles []services.AgentRole, path string) error {
	yamlConfig := RolesYAMLConfig{Roles: make([]RoleConfig, 0, len(roles))}
	for _, r := range roles {
		yamlConfig.Roles = append(yamlConfig.Roles, RoleConfig{Name: r.Name, Constraint: r.Constraint})
	}

	data, err := yaml.Marshal(yamlConfig)
	if err != nil {
		return fmt.Errorf("failed to marshal roles: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write roles file: %w", err)
	}
	return nil
}

// validateRoles requires at least MinAgents uniquely named personas.
func validateRoles(roles []services.AgentRole) error {
	if len(roles) < services.MinAgents {
		return fmt.Errorf("at least %d agent roles are required, got %d", services.MinAgents, len(roles))
	}

	seen := make(map[string]bool)
	for _, r := range roles {
		if r.Name == "" {
			return fmt.Errorf("agent role name cannot be empty")
		}
		if r.Constraint == "" {
			return fmt.Errorf("agent role %s has no constraint", r.Name)
		}
		if seen[r.Name] {
			return fmt.Errorf("duplicate agent role: %s", r.Name)
		}
		seen[r.Name] = true
	}
	return nil
}
