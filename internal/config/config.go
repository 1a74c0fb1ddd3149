package config

import (
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/dyluth/copse/internal/coordinator"
	apperrors "github.com/dyluth/copse/internal/errors"
	"github.com/dyluth/copse/pkg/blackboard"
	"gopkg.in/yaml.v3"
)

// Defaults applied by Validate when copse.yml leaves a field out.
const (
	DefaultInstance   = "default"
	DefaultHealthAddr = ":8080"
)

// CopseConfig represents the top-level copse.yml configuration
type CopseConfig struct {
	Version      string                 `yaml:"version"`
	Instance     string                 `yaml:"instance,omitempty"`      // Namespace for all blackboard keys
	RedisURL     string                 `yaml:"redis_url,omitempty"`     // Empty runs the tree on an in-process blackboard
	HealthAddr   string                 `yaml:"health_addr,omitempty"`   // Listen address of /healthz and /metrics
	PollInterval time.Duration          `yaml:"poll_interval,omitempty"` // Default for coordinators that set none
	Root         string                 `yaml:"root,omitempty"`          // Coordinator triggered by `copse run`
	Coordinators map[string]Coordinator `yaml:"coordinators"`
}

// Coordinator represents a single coordinator configuration
type Coordinator struct {
	Kind         string        `yaml:"kind"` // sequence, parallel or repeat
	RecordKey    string        `yaml:"record_key,omitempty"`
	SignalKey    string        `yaml:"signal_key,omitempty"`
	PollInterval time.Duration `yaml:"poll_interval,omitempty"`
	MaxWaitTicks int           `yaml:"max_wait_ticks,omitempty"`
	Reentry      string        `yaml:"reentry,omitempty"` // reject or restart

	// Parallel
	Completion string `yaml:"completion,omitempty"`

	// Repeat
	Condition string `yaml:"condition,omitempty"`
	Count     int    `yaml:"count,omitempty"`
	CountKey  string `yaml:"count_key,omitempty"`

	Children []Child `yaml:"children"`
}

// Child is one output of a coordinator. Exactly one of Command, Coordinator
// or Script must be set.
type Child struct {
	Command     []string `yaml:"command,omitempty"`
	Dir         string   `yaml:"dir,omitempty"`
	Environment []string `yaml:"environment,omitempty"`

	// SelfReport hands the command COPSE_REPLY; it reports with `copse report`
	SelfReport bool `yaml:"self_report,omitempty"`

	// Coordinator nests another coordinator from the same file
	Coordinator string `yaml:"coordinator,omitempty"`

	// Script replays fixed outcomes, one per dispatch
	Script []string      `yaml:"script,omitempty"`
	Delay  time.Duration `yaml:"delay,omitempty"`
}

// Validate performs strict validation on the configuration and fills defaults
func (c *CopseConfig) Validate() error {
	// Required: version
	if c.Version != "1.0" {
		return fmt.Errorf("unsupported version: %s (expected: 1.0)", c.Version)
	}

	// Required: at least one coordinator
	if len(c.Coordinators) == 0 {
		return fmt.Errorf("no coordinators defined")
	}

	if c.Instance == "" {
		c.Instance = DefaultInstance
	}
	if c.HealthAddr == "" {
		c.HealthAddr = DefaultHealthAddr
	}
	if c.PollInterval < 0 {
		return fmt.Errorf("poll_interval must be >= 0, got %s", c.PollInterval)
	}

	for _, name := range c.Names() {
		coord := c.Coordinators[name]
		if err := coord.Validate(name, c); err != nil {
			return err
		}
	}

	// Two coordinators on one key would overwrite each other
	recordKeys := make(map[string]string)
	signalKeys := make(map[string]string)
	for _, name := range c.Names() {
		cc := c.CoordinatorConfig(name)
		if other, exists := recordKeys[cc.RecordKey]; exists {
			return fmt.Errorf("coordinators '%s' and '%s' share record_key '%s'", other, name, cc.RecordKey)
		}
		recordKeys[cc.RecordKey] = name

		if cc.SignalKey == "" {
			continue
		}
		if other, exists := signalKeys[cc.SignalKey]; exists {
			return fmt.Errorf("coordinators '%s' and '%s' share signal_key '%s'", other, name, cc.SignalKey)
		}
		signalKeys[cc.SignalKey] = name
	}

	if err := c.checkCycles(); err != nil {
		return err
	}

	if c.Root != "" {
		if _, ok := c.Coordinators[c.Root]; !ok {
			return fmt.Errorf("root coordinator '%s' is not defined", c.Root)
		}
	} else if roots := c.Roots(); len(roots) == 1 {
		c.Root = roots[0]
	}

	return nil
}

// Validate performs validation on a single coordinator configuration
func (co *Coordinator) Validate(name string, c *CopseConfig) error {
	kind := blackboard.Kind(co.Kind)
	if err := kind.Validate(); err != nil {
		return fmt.Errorf("coordinator '%s': %w", name, err)
	}

	if len(co.Children) == 0 && kind != blackboard.KindSequence {
		return fmt.Errorf("coordinator '%s': children are required for kind %s", name, kind)
	}

	for i, child := range co.Children {
		if err := child.Validate(); err != nil {
			return fmt.Errorf("coordinator '%s' child %d: %w", name, i, err)
		}
		if child.Coordinator != "" {
			if _, ok := c.Coordinators[child.Coordinator]; !ok {
				return fmt.Errorf("coordinator '%s' child %d: unknown coordinator '%s'", name, i, child.Coordinator)
			}
		}
	}

	if err := c.CoordinatorConfig(name).Validate(kind); err != nil {
		return fmt.Errorf("coordinator '%s': %w", name, err)
	}
	return nil
}

// Validate performs validation on a single child
func (ch *Child) Validate() error {
	set := 0
	if len(ch.Command) > 0 {
		set++
	}
	if ch.Coordinator != "" {
		set++
	}
	if len(ch.Script) > 0 {
		set++
	}
	if set != 1 {
		return fmt.Errorf("exactly one of command, coordinator or script is required")
	}
	if ch.SelfReport && len(ch.Command) == 0 {
		return fmt.Errorf("self_report is only valid for command children")
	}

	for _, raw := range ch.Script {
		st, err := blackboard.ParseStatus(raw)
		if err != nil {
			return fmt.Errorf("invalid script outcome: %w", err)
		}
		if !st.Terminal() {
			return fmt.Errorf("script outcome must be success or failure, got %s", st)
		}
	}
	if ch.Delay < 0 {
		return fmt.Errorf("delay must be >= 0")
	}
	return nil
}

// Names returns the coordinator names in a stable order.
func (c *CopseConfig) Names() []string {
	names := make([]string, 0, len(c.Coordinators))
	for name := range c.Coordinators {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Roots returns the coordinators that no other coordinator nests.
func (c *CopseConfig) Roots() []string {
	nested := make(map[string]bool)
	for _, co := range c.Coordinators {
		for _, child := range co.Children {
			if child.Coordinator != "" {
				nested[child.Coordinator] = true
			}
		}
	}

	var roots []string
	for _, name := range c.Names() {
		if !nested[name] {
			roots = append(roots, name)
		}
	}
	return roots
}

// CoordinatorConfig converts the named entry into the runtime configuration.
// Outputs is the number of children.
func (c *CopseConfig) CoordinatorConfig(name string) coordinator.Config {
	co := c.Coordinators[name]

	interval := co.PollInterval
	if interval == 0 {
		interval = c.PollInterval
	}

	return coordinator.Config{
		Name:         name,
		Outputs:      len(co.Children),
		RecordKey:    co.RecordKey,
		SignalKey:    co.SignalKey,
		PollInterval: interval,
		MaxWaitTicks: co.MaxWaitTicks,
		Reentry:      coordinator.ReentryPolicy(co.Reentry),
		Completion:   coordinator.CompletionType(co.Completion),
		Condition:    coordinator.Condition(co.Condition),
		Count:        co.Count,
		CountKey:     co.CountKey,
	}.WithDefaults(blackboard.Kind(co.Kind))
}

// checkCycles rejects a coordinator that nests itself, directly or not.
func (c *CopseConfig) checkCycles() error {
	const (
		unvisited = iota
		visiting
		done
	)
	state := make(map[string]int)

	var visit func(name string, path []string) error
	visit = func(name string, path []string) error {
		switch state[name] {
		case visiting:
			return fmt.Errorf("coordinator cycle: %v", append(path, name))
		case done:
			return nil
		}
		state[name] = visiting
		for _, child := range c.Coordinators[name].Children {
			if child.Coordinator == "" {
				continue
			}
			if err := visit(child.Coordinator, append(path, name)); err != nil {
				return err
			}
		}
		state[name] = done
		return nil
	}

	for _, name := range c.Names() {
		if err := visit(name, nil); err != nil {
			return err
		}
	}
	return nil
}

// Load reads, overrides from the environment and validates copse.yml
func Load(path string) (*CopseConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, apperrors.NewConfigError("failed to read config: %v", err)
	}

	var config CopseConfig
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, apperrors.NewConfigError("failed to parse YAML: %v", err)
	}

	ApplyEnv(&config)

	if err := config.Validate(); err != nil {
		return nil, apperrors.NewConfigError("invalid configuration: %v", err)
	}

	return &config, nil
}
