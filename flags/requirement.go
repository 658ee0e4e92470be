package flags

import (
	"encoding/json"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// Requirement is a boolean gate over one or more named feature flags.
// Exactly one of Flag, Any or All is set: a bare flag name, an OR over Any, or
// an AND over All.
type Requirement struct {
	Flag string   `json:"-" yaml:"-"`
	Any  []string `json:"any,omitempty" yaml:"any,omitempty"`
	All  []string `json:"all,omitempty" yaml:"all,omitempty"`
}

func Flag(name string) *Requirement {
	return &Requirement{Flag: name}
}

// AnyOf with no names is never satisfied.
func AnyOf(names ...string) *Requirement {
	return &Requirement{Any: append([]string{}, names...)}
}

// AllOf with no names is always satisfied.
func AllOf(names ...string) *Requirement {
	return &Requirement{All: append([]string{}, names...)}
}

// Flags lists every flag the requirement refers to.
func (r Requirement) Flags() []string {
	switch {
	case r.Flag != "":
		return []string{r.Flag}
	case r.Any != nil:
		return r.Any
	default:
		return r.All
	}
}

func (r Requirement) String() string {
	switch {
	case r.Flag != "":
		return r.Flag
	case r.Any != nil:
		return "any(" + strings.Join(r.Any, ",") + ")"
	case r.All != nil:
		return "all(" + strings.Join(r.All, ",") + ")"
	default:
		return "none"
	}
}

func (r Requirement) validate() error {
	set := 0
	if r.Flag != "" {
		set++
	}
	if r.Any != nil {
		set++
	}
	if r.All != nil {
		set++
	}
	if set > 1 {
		return fmt.Errorf("flag requirement must be a flag name, {any: [...]} or {all: [...]}, not a mix")
	}
	return nil
}

// UnmarshalYAML accepts either a scalar flag name or a mapping with any/all.
func (r *Requirement) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.ScalarNode {
		*r = Requirement{Flag: node.Value}
		return nil
	}
	var raw struct {
		Any []string `yaml:"any"`
		All []string `yaml:"all"`
	}
	if err := node.Decode(&raw); err != nil {
		return fmt.Errorf("decode flag requirement: %w", err)
	}
	*r = Requirement{Any: raw.Any, All: raw.All}
	return r.validate()
}

func (r Requirement) MarshalJSON() ([]byte, error) {
	if r.Flag != "" {
		return json.Marshal(r.Flag)
	}
	type plain Requirement
	return json.Marshal(plain(r))
}

// UnmarshalJSON accepts either a JSON string or an object with any/all.
func (r *Requirement) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err == nil {
		*r = Requirement{Flag: name}
		return nil
	}
	var raw struct {
		Any []string `json:"any"`
		All []string `json:"all"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("decode flag requirement: %w", err)
	}
	*r = Requirement{Any: raw.Any, All: raw.All}
	return r.validate()
}
