package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Config models hrline.yml.
type Config struct {
	Org struct {
		ID   string `yaml:"id"`
		Name string `yaml:"name"`
	} `yaml:"org"`
	Approvals struct {
		// Chains maps an entity type to the ordered list of approver roles.
		// The first active employee holding each role becomes the step
		// approver, in order.
		Chains map[string][]string `yaml:"chains"`
	} `yaml:"approvals"`
	Leave struct {
		Types map[string]LeaveType `yaml:"types"`
	} `yaml:"leave"`
	RBAC struct {
		Roles map[string]RBACRole `yaml:"roles"`
	} `yaml:"rbac"`
	Webhooks []Webhook `yaml:"webhooks"`
}

type LeaveType struct {
	Description     string `yaml:"description"`
	AnnualAllowance int    `yaml:"annual_allowance"`
}

type RBACRole struct {
	Description string   `yaml:"description"`
	Permissions []string `yaml:"permissions"`
}

type Webhook struct {
	ID     string   `yaml:"id"`
	URL    string   `yaml:"url"`
	Events []string `yaml:"events"`
	Secret string   `yaml:"secret"`
}

// Load reads and validates config from workspace.
func Load(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config %s not found; import with hrl org config import --file <path>", path)
		}
		return nil, err
	}
	return FromYAML(data)
}

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	if c.Org.ID == "" {
		return fmt.Errorf("config.org.id is required")
	}
	for entityType, roles := range c.Approvals.Chains {
		if entityType == "" {
			return fmt.Errorf("config.approvals.chains contains empty entity type")
		}
		if len(roles) == 0 {
			return fmt.Errorf("approval chain for %s is empty", entityType)
		}
		for _, roleID := range roles {
			if roleID == "" {
				return fmt.Errorf("approval chain for %s has empty role id", entityType)
			}
			if len(c.RBAC.Roles) > 0 {
				if _, ok := c.RBAC.Roles[roleID]; !ok {
					return fmt.Errorf("approval chain for %s references unknown role %s", entityType, roleID)
				}
			}
		}
	}
	for name, lt := range c.Leave.Types {
		if name == "" {
			return fmt.Errorf("config.leave.types contains empty type name")
		}
		if lt.AnnualAllowance < 0 {
			return fmt.Errorf("leave type %s has negative annual allowance", name)
		}
	}
	if len(c.RBAC.Roles) > 0 {
		if _, ok := c.RBAC.Roles["hr_admin"]; !ok {
			return fmt.Errorf("config.rbac.roles must include hr_admin")
		}
		for roleID, role := range c.RBAC.Roles {
			if roleID == "" {
				return fmt.Errorf("config.rbac.roles contains empty role id")
			}
			for _, perm := range role.Permissions {
				if perm == "" {
					return fmt.Errorf("role %s has empty permission id", roleID)
				}
			}
		}
	}
	for i, wh := range c.Webhooks {
		if wh.ID == "" {
			return fmt.Errorf("webhook %d has empty id", i)
		}
		if wh.URL == "" {
			return fmt.Errorf("webhook %s has empty url", wh.ID)
		}
	}
	return nil
}

// ChainFor returns the approver role chain for an entity type, falling back
// to a single hr_manager step when no chain is configured.
func (c *Config) ChainFor(entityType string) []string {
	if roles, ok := c.Approvals.Chains[entityType]; ok {
		return roles
	}
	return []string{"hr_manager"}
}

// AllowanceFor returns the annual allowance for a leave type, or -1 when the
// type is not in the catalog.
func (c *Config) AllowanceFor(leaveType string) int {
	if lt, ok := c.Leave.Types[leaveType]; ok {
		return lt.AnnualAllowance
	}
	return -1
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, "hrline.yml")
}

// GenerateDefault returns default config YAML.
func GenerateDefault(orgID string) string {
	return fmt.Sprintf(defaultTemplate, orgID)
}

// LoadOptional returns nil,nil if the config file does not exist.
func LoadOptional(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	return FromYAML(data)
}

// Default returns the default Config struct for an org.
func Default(orgID string) *Config {
	var cfg Config
	cfg.Org.ID = orgID
	_ = yaml.NewDecoder(bytes.NewBufferString(fmt.Sprintf(defaultTemplate, orgID))).Decode(&cfg)
	return &cfg
}

// FromYAML parses and validates config from raw YAML bytes.
func FromYAML(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("invalid config yaml: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// FromFile reads YAML config from the given path.
func FromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return FromYAML(data)
}

const defaultTemplate = `org:
  id: %s
  name: ""

approvals:
  chains:
    leave_request: [hr_manager]
    expense_claim: [hr_manager, finance_manager]

leave:
  types:
    annual:
      description: "Paid annual leave"
      annual_allowance: 25
    sick:
      description: "Sick leave"
      annual_allowance: 10
    unpaid:
      description: "Unpaid leave"
      annual_allowance: 0

rbac:
  roles:
    hr_admin:
      description: "Full administrative access"
      permissions: ["*"]
    hr_manager:
      description: "Approves leave and manages employee records"
      permissions:
        - employee.read
        - employee.write
        - approval.decide
        - approval.read
        - leave.read
        - attendance.read
        - attendance.write
    finance_manager:
      description: "Second-stage approver for spending entities"
      permissions:
        - approval.decide
        - approval.read
    employee:
      description: "Self-service access"
      permissions:
        - employee.read
        - approval.read
        - leave.submit
        - leave.read
        - attendance.write
`
