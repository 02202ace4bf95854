package registry

import (
	_ "embed"
	"fmt"
	"sort"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/avrbridge/avrbridge-go/pkg/wire"
)

//go:embed commands.yaml
var defaultCatalogue []byte

// yamlCatalogue is the on-disk layout of a command catalogue.
type yamlCatalogue struct {
	Commands []yamlCommand `yaml:"commands"`
}

type yamlCommand struct {
	Name        string     `yaml:"name"`
	Operators   string     `yaml:"operators"`
	Description string     `yaml:"description"`
	Values      []string   `yaml:"values"`
	Range       *yamlRange `yaml:"range"`
}

type yamlRange struct {
	Min  float64 `yaml:"min"`
	Max  float64 `yaml:"max"`
	Step float64 `yaml:"step"`
}

// Registry is a read-only set of command definitions.
type Registry struct {
	defs  map[string]Definition
	names []string
}

var (
	defaultOnce     sync.Once
	defaultRegistry *Registry
)

// Default returns the embedded command registry.
// The catalogue is parsed on first call; a broken catalogue is a build defect
// and panics.
func Default() *Registry {
	defaultOnce.Do(func() {
		r, err := Load(defaultCatalogue)
		if err != nil {
			panic(fmt.Sprintf("failed to load embedded command registry: %v", err))
		}
		defaultRegistry = r
	})
	return defaultRegistry
}

// Load parses a YAML command catalogue.
func Load(data []byte) (*Registry, error) {
	var y yamlCatalogue
	if err := yaml.Unmarshal(data, &y); err != nil {
		return nil, fmt.Errorf("YAML parse error: %w", err)
	}

	r := &Registry{defs: make(map[string]Definition, len(y.Commands))}
	for i, c := range y.Commands {
		def, err := c.definition()
		if err != nil {
			return nil, fmt.Errorf("command %d: %w", i, err)
		}
		if _, dup := r.defs[def.Name]; dup {
			return nil, fmt.Errorf("command %d: duplicate name %q", i, def.Name)
		}
		r.defs[def.Name] = def
		r.names = append(r.names, def.Name)
	}
	sort.Strings(r.names)
	return r, nil
}

func (c yamlCommand) definition() (Definition, error) {
	if c.Name == "" {
		return Definition{}, fmt.Errorf("missing name")
	}
	if strings.ContainsAny(c.Name, "?=+-\r\n") {
		return Definition{}, fmt.Errorf("name %q contains an operator or delimiter", c.Name)
	}
	if c.Operators == "" {
		return Definition{}, fmt.Errorf("%s: no operators", c.Name)
	}

	def := Definition{Name: c.Name, Description: c.Description}
	for i := 0; i < len(c.Operators); i++ {
		op := wire.Operator(c.Operators[i])
		if !op.IsValid() {
			return Definition{}, fmt.Errorf("%s: invalid operator %q", c.Name, c.Operators[i])
		}
		if def.Supports(op) {
			return Definition{}, fmt.Errorf("%s: operator %q listed twice", c.Name, c.Operators[i])
		}
		def.Operators = append(def.Operators, op)
	}

	switch {
	case len(c.Values) > 0 && c.Range != nil:
		return Definition{}, fmt.Errorf("%s: values and range are mutually exclusive", c.Name)
	case len(c.Values) > 0:
		def.Domain = Domain{Kind: DomainEnum, Values: c.Values}
	case c.Range != nil:
		if c.Range.Min > c.Range.Max {
			return Definition{}, fmt.Errorf("%s: range min %v > max %v", c.Name, c.Range.Min, c.Range.Max)
		}
		step := c.Range.Step
		if step <= 0 {
			step = 1
		}
		def.Domain = Domain{Kind: DomainRange, Min: c.Range.Min, Max: c.Range.Max, Step: step}
	}
	return def, nil
}

// Lookup returns the definition for name.
func (r *Registry) Lookup(name string) (Definition, bool) {
	def, ok := r.defs[name]
	return def, ok
}

// Names returns every command name in sorted order.
func (r *Registry) Names() []string {
	out := make([]string, len(r.names))
	copy(out, r.names)
	return out
}

// Len returns the number of commands.
func (r *Registry) Len() int {
	return len(r.names)
}

// IsOperatorValid reports whether name is registered and accepts op.
func (r *Registry) IsOperatorValid(name string, op wire.Operator) bool {
	def, ok := r.defs[name]
	return ok && def.Supports(op)
}

// Validate checks that name is registered, accepts op and, for OpSet, that
// value lies in the command's domain.
func (r *Registry) Validate(name string, op wire.Operator, value string) error {
	def, ok := r.defs[name]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownCommand, name)
	}
	if !def.Supports(op) {
		return fmt.Errorf("%w: %s does not accept %q", ErrInvalidOperator, name, op.String())
	}
	if op == wire.OpSet {
		return def.ValidateValue(value)
	}
	return nil
}

// IsOperatorValid reports whether the default registry has name and it
// accepts op.
func IsOperatorValid(name string, op wire.Operator) bool {
	return Default().IsOperatorValid(name, op)
}

// BuildCommand concatenates name, operator and value. No validation is done.
func BuildCommand(name string, op wire.Operator, value string) string {
	return name + op.String() + value
}
