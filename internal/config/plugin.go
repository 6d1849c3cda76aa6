package config

import (
	"fmt"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/cuongbtq/beanstalk-bridge/internal/queue"
)

// BeanstalkdPlugin configures one beanstalkd plugin of a task. In YAML it is
// either a mapping or a plain boolean; false leaves the plugin disabled.
// Timeout, delay and ttr are whole seconds.
type BeanstalkdPlugin struct {
	Enabled bool `yaml:"-"`

	Host            string `yaml:"host"`
	Port            int    `yaml:"port"`
	Tube            string `yaml:"tube"`
	ChunkSize       int    `yaml:"chunk_size"`
	Timeout         int    `yaml:"timeout"`
	Delay           int    `yaml:"delay"`
	DeleteOnReserve bool   `yaml:"delete_on_reserve"`
	Priority        uint32 `yaml:"priority"`
	TTR             int    `yaml:"ttr"`
}

// plain breaks the UnmarshalYAML recursion
type plain BeanstalkdPlugin

// UnmarshalYAML accepts either a boolean or a mapping. false leaves the plugin
// disabled, true enables it with defaults.
func (p *BeanstalkdPlugin) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.ScalarNode:
		var enabled bool
		if err := node.Decode(&enabled); err != nil {
			return fmt.Errorf("line %d: expected a boolean or a mapping: %w", node.Line, err)
		}
		*p = BeanstalkdPlugin{Enabled: enabled}
		return nil
	case yaml.MappingNode:
		var v plain
		if err := node.Decode(&v); err != nil {
			return err
		}
		*p = BeanstalkdPlugin(v)
		p.Enabled = true
		return nil
	default:
		return fmt.Errorf("line %d: expected a boolean or a mapping", node.Line)
	}
}

func (p *BeanstalkdPlugin) applyDefaults() {
	if !p.Enabled {
		return
	}
	if p.ChunkSize == 0 {
		p.ChunkSize = queue.DefaultChunkSize
	}
	if p.Timeout == 0 {
		p.Timeout = int(queue.DefaultTimeout / time.Second)
	}
	if p.Delay == 0 {
		p.Delay = int(queue.DefaultDelay / time.Second)
	}
}

func (p BeanstalkdPlugin) validate() error {
	if p.Host == "" {
		return fmt.Errorf("host is required")
	}
	if p.Port < MinPort || p.Port > MaxPort {
		return fmt.Errorf("invalid port: %d (must be between %d and %d)", p.Port, MinPort, MaxPort)
	}
	if p.Tube == "" {
		return fmt.Errorf("tube is required")
	}
	if p.ChunkSize < 1 {
		return fmt.Errorf("chunk_size must be greater than 0")
	}
	if p.Timeout < 0 {
		return fmt.Errorf("timeout must not be negative")
	}
	if p.Delay < 0 {
		return fmt.Errorf("delay must not be negative")
	}
	if p.TTR < 0 {
		return fmt.Errorf("ttr must not be negative")
	}
	return nil
}

// Queue converts the plugin settings into a queue configuration
func (p BeanstalkdPlugin) Queue() queue.Config {
	return queue.Config{
		Host:            p.Host,
		Port:            p.Port,
		Tube:            p.Tube,
		ChunkSize:       p.ChunkSize,
		Timeout:         time.Duration(p.Timeout) * time.Second,
		Delay:           time.Duration(p.Delay) * time.Second,
		DeleteOnReserve: p.DeleteOnReserve,
		Priority:        p.Priority,
		TTR:             time.Duration(p.TTR) * time.Second,
	}
}
