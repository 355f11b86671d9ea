package mcp

import (
	"fmt"
	"sort"
)

// ServerConfig defines the tool server launched for each search.
type ServerConfig struct {
	Name    string            `yaml:"name"`
	Command string            `yaml:"command"`
	Args    []string          `yaml:"args"`
	Env     map[string]string `yaml:"env"`
}

// Environ renders Env as KEY=VALUE pairs sorted by key so the subprocess
// environment is deterministic. Values are passed through verbatim.
func (c ServerConfig) Environ() []string {
	keys := make([]string, 0, len(c.Env))
	for k := range c.Env {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make([]string, 0, len(keys))
	for _, k := range keys {
		out = append(out, fmt.Sprintf("%s=%s", k, c.Env[k]))
	}
	return out
}

func (c ServerConfig) displayName() string {
	if c.Name != "" {
		return c.Name
	}
	return c.Command
}
