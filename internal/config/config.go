package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config models questlog.yml. It is stored per workspace in the database and
// seeded from the default template on first use.
type Config struct {
	Workspace struct {
		ID   string `yaml:"id"`
		Kind string `yaml:"kind"`
	} `yaml:"workspace"`
	Reports struct {
		Daily struct {
			Goals struct {
				Min int `yaml:"min"`
				Max int `yaml:"max"`
			} `yaml:"goals"`
			Mood struct {
				Min int `yaml:"min"`
				Max int `yaml:"max"`
			} `yaml:"mood"`
		} `yaml:"daily"`
		Weekly struct {
			Window []string `yaml:"window"`
		} `yaml:"weekly"`
	} `yaml:"reports"`
	Stats struct {
		StrugglingThreshold float64 `yaml:"struggling_threshold"`
	} `yaml:"stats"`
	Quests struct {
		Categories       []string `yaml:"categories"`
		AutoAssignGlobal bool     `yaml:"auto_assign_global"`
	} `yaml:"quests"`
	Invitations struct {
		TTLHours int `yaml:"ttl_hours"`
	} `yaml:"invitations"`
	Roles    map[string]Role `yaml:"roles"`
	Webhooks []WebhookConfig `yaml:"webhooks,omitempty"`
}

type Role struct {
	Description string   `yaml:"description"`
	Oversight   bool     `yaml:"oversight"`
	Permissions []string `yaml:"permissions"`
}

// WebhookConfig describes an event-log subscriber.
type WebhookConfig struct {
	URL            string   `yaml:"url"`
	Events         []string `yaml:"events,omitempty"`
	Secret         string   `yaml:"secret,omitempty"`
	TimeoutSeconds int      `yaml:"timeout_seconds,omitempty"`
	Enabled        *bool    `yaml:"enabled,omitempty"`
}

var weekdayNames = map[string]time.Weekday{
	"Sunday":    time.Sunday,
	"Monday":    time.Monday,
	"Tuesday":   time.Tuesday,
	"Wednesday": time.Wednesday,
	"Thursday":  time.Thursday,
	"Friday":    time.Friday,
	"Saturday":  time.Saturday,
}

// WeeklyWindow converts the configured weekday names.
func (c *Config) WeeklyWindow() []time.Weekday {
	var out []time.Weekday
	for _, name := range c.Reports.Weekly.Window {
		if d, ok := weekdayNames[name]; ok {
			out = append(out, d)
		}
	}
	return out
}

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	if c.Workspace.ID == "" {
		return fmt.Errorf("config.workspace.id is required")
	}
	if c.Workspace.Kind != "learning-workspace" {
		return fmt.Errorf("config.workspace.kind must be 'learning-workspace'")
	}
	g := c.Reports.Daily.Goals
	if g.Min < 1 || g.Max < g.Min {
		return fmt.Errorf("config.reports.daily.goals must satisfy 1 <= min <= max")
	}
	m := c.Reports.Daily.Mood
	if m.Min < 1 || m.Max <= m.Min {
		return fmt.Errorf("config.reports.daily.mood must satisfy 1 <= min < max")
	}
	if len(c.Reports.Weekly.Window) == 0 {
		return fmt.Errorf("config.reports.weekly.window is required")
	}
	for _, name := range c.Reports.Weekly.Window {
		if _, ok := weekdayNames[name]; !ok {
			return fmt.Errorf("config.reports.weekly.window contains unknown weekday %q", name)
		}
	}
	if c.Stats.StrugglingThreshold <= 0 || c.Stats.StrugglingThreshold > 1 {
		return fmt.Errorf("config.stats.struggling_threshold must be in (0,1]")
	}
	if c.Invitations.TTLHours <= 0 {
		return fmt.Errorf("config.invitations.ttl_hours must be positive")
	}
	if len(c.Roles) > 0 {
		if _, ok := c.Roles["admin"]; !ok {
			return fmt.Errorf("config.roles must include admin")
		}
		for roleID, role := range c.Roles {
			if roleID == "" {
				return fmt.Errorf("config.roles contains empty role id")
			}
			for _, perm := range role.Permissions {
				if perm == "" {
					return fmt.Errorf("role %s has empty permission id", roleID)
				}
			}
		}
	}
	for i, wh := range c.Webhooks {
		if wh.URL == "" {
			return fmt.Errorf("config.webhooks[%d].url is required", i)
		}
	}
	return nil
}

// Path returns the config file path for a workspace directory.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, "questlog.yml")
}

// Load reads and validates config from a workspace directory.
func Load(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config %s not found; import with ql workspace config import --file <path>", path)
		}
		return nil, err
	}
	return FromYAML(data)
}

// Default returns the default Config struct for a workspace.
func Default(workspaceID string) *Config {
	var cfg Config
	cfg.Workspace.ID = workspaceID
	cfg.Workspace.Kind = "learning-workspace"
	_ = yaml.NewDecoder(bytes.NewBufferString(fmt.Sprintf(defaultTemplate, workspaceID))).Decode(&cfg)
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

const defaultTemplate = `workspace:
  id: %s
  kind: learning-workspace

reports:
  daily:
    goals:
      min: 3
      max: 5
    mood:
      min: 1
      max: 5
  weekly:
    window: [Wednesday, Thursday]

stats:
  struggling_threshold: 0.5

quests:
  categories: [onboarding, learning, collaboration, delivery]
  auto_assign_global: true

invitations:
  ttl_hours: 168

roles:
  member:
    description: "Submits reports and progresses own quest tasks"
    oversight: false
    permissions: [report.submit, quest.progress, dashboard.read]
  mentor:
    description: "Oversees mentees: may force task transitions and comment"
    oversight: true
    permissions: [report.read, quest.override, quest.comment, dashboard.read]
  admin:
    description: "Manages the workspace: tasks, invitations, memberships"
    oversight: true
    permissions: [workspace.manage, task.manage, invite.manage, quest.override, quest.comment, report.read, dashboard.read]
`
