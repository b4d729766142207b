package statusfeed

import (
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/pass/deposit-services/internal/domain/deposit"
	"gopkg.in/yaml.v3"
)

// Document formats understood by the parser
const (
	FormatAuto = ""
	FormatAtom = "atom"
	FormatJSON = "json"
)

// DefaultJSONPath is the gjson path used when a JSON repository sets none
const DefaultJSONPath = "status"

// BasicAuth holds credentials sent with status document requests
type BasicAuth struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// StatusMapping translates repository status terms to deposit statuses.
// Terms are matched exactly; Default applies to any other present term.
type StatusMapping struct {
	Terms   map[string]deposit.DepositStatus `yaml:"terms"`
	Default deposit.DepositStatus            `yaml:"default"`
}

// Map returns the status for term and whether the term is recognized
func (m StatusMapping) Map(term string) (deposit.DepositStatus, bool) {
	if term == "" {
		return "", false
	}
	if s, ok := m.Terms[term]; ok {
		return s, true
	}
	if m.Default != "" {
		return m.Default, true
	}
	return "", false
}

// RepositoryConfig describes how to read one repository's status documents
type RepositoryConfig struct {
	Key           string            `yaml:"key"`
	Name          string            `yaml:"name"`
	Format        string            `yaml:"format"`
	JSONPath      string            `yaml:"json_path"`
	Timeout       time.Duration     `yaml:"timeout"`
	Auth          BasicAuth         `yaml:"auth"`
	Headers       map[string]string `yaml:"headers"`
	StatusMapping StatusMapping     `yaml:"status_mapping"`
}

func (c *RepositoryConfig) normalize() error {
	if c.Key == "" {
		return fmt.Errorf("repository key is required")
	}
	c.Format = strings.ToLower(strings.TrimSpace(c.Format))
	switch c.Format {
	case FormatAuto, FormatAtom, FormatJSON:
	default:
		return fmt.Errorf("repository %s: unknown format %q", c.Key, c.Format)
	}
	if c.JSONPath == "" {
		c.JSONPath = DefaultJSONPath
	}
	if c.Timeout < 0 {
		return fmt.Errorf("repository %s: timeout cannot be negative", c.Key)
	}

	terms := make(map[string]deposit.DepositStatus, len(c.StatusMapping.Terms))
	for term, raw := range c.StatusMapping.Terms {
		s, err := deposit.ParseDepositStatus(string(raw))
		if err != nil {
			return fmt.Errorf("repository %s: term %q: %w", c.Key, term, err)
		}
		terms[term] = s
	}
	c.StatusMapping.Terms = terms

	if c.StatusMapping.Default != "" {
		s, err := deposit.ParseDepositStatus(string(c.StatusMapping.Default))
		if err != nil {
			return fmt.Errorf("repository %s: default mapping: %w", c.Key, err)
		}
		c.StatusMapping.Default = s
	}
	return nil
}

// Registry holds the repository configurations keyed by repository key
type Registry struct {
	repos map[string]RepositoryConfig
}

type registryFile struct {
	Repositories []RepositoryConfig `yaml:"repositories"`
}

// NewRegistry validates and indexes configurations
func NewRegistry(configs ...RepositoryConfig) (*Registry, error) {
	r := &Registry{repos: make(map[string]RepositoryConfig, len(configs))}
	for _, c := range configs {
		if err := c.normalize(); err != nil {
			return nil, err
		}
		if _, dup := r.repos[c.Key]; dup {
			return nil, fmt.Errorf("duplicate repository key %q", c.Key)
		}
		r.repos[c.Key] = c
	}
	return r, nil
}

// ParseRegistry parses a repositories YAML document. ${VAR} references are
// expanded from the environment so credentials stay out of the file.
func ParseRegistry(data []byte) (*Registry, error) {
	var f registryFile
	if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(data))), &f); err != nil {
		return nil, fmt.Errorf("failed to parse repositories config: %w", err)
	}
	return NewRegistry(f.Repositories...)
}

// LoadRegistry reads a repositories YAML file
func LoadRegistry(path string) (*Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read repositories config: %w", err)
	}
	return ParseRegistry(data)
}

// Lookup returns the configuration for a repository key
func (r *Registry) Lookup(key string) (RepositoryConfig, bool) {
	c, ok := r.repos[key]
	return c, ok
}

// Keys returns the configured repository keys in sorted order
func (r *Registry) Keys() []string {
	keys := make([]string, 0, len(r.repos))
	for k := range r.repos {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
