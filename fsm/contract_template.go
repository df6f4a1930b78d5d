package fsm

import (
	"os"

	"gopkg.in/yaml.v3"

	"github.com/itsneelabh/contractengine/core"
)

// Subtask is one ordered step in a ContractTemplate: it tracks whether
// a particular milestone (search performed, preferences collected,
// order confirmed) has been completed. The negotiation flow is always
// linear, so subtasks carry no dependency edges.
type Subtask struct {
	Name      string `yaml:"name"`
	Completed bool   `yaml:"completed"`
}

// ContractTemplate is the declarative template consumed at FSM
// construction.
type ContractTemplate struct {
	ContractType string                 `yaml:"contract_type"`
	Version      string                 `yaml:"version"`
	Description  string                 `yaml:"description"`
	Parameters   map[string]interface{} `yaml:"parameters"`
	Subtasks     []Subtask              `yaml:"subtasks"`
}

// LoadContractTemplate reads and parses a ContractTemplate from path.
// A template load failure sinks the FSM into the error/failed state;
// callers should treat an error here as fatal for the session being
// constructed.
func LoadContractTemplate(path string) (*ContractTemplate, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, core.NewFrameworkError("fsm.LoadContractTemplate", "template_load_failure", err).WithID(path)
	}
	var tpl ContractTemplate
	if err := yaml.Unmarshal(data, &tpl); err != nil {
		return nil, core.NewFrameworkError("fsm.LoadContractTemplate", "template_load_failure", err).WithID(path)
	}
	return &tpl, nil
}

// Param returns the named parameter from the template, defaulting to
// fallback when unset.
func (t *ContractTemplate) Param(name string, fallback interface{}) interface{} {
	if t == nil || t.Parameters == nil {
		return fallback
	}
	if v, ok := t.Parameters[name]; ok {
		return v
	}
	return fallback
}
