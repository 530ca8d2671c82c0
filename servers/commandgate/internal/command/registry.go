// Package command models the closed set of workflow-step record types and
// their validation rules. Validation returns violations rather than erroring;
// callers decide whether a non-empty list is fatal.
package command

import (
	"encoding/json"
	"fmt"

	"github.com/pathwaylabs/commandgate/pkg/commandgate/api"
)

// Violation names one failed validation rule on a command payload.
type Violation struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func (v Violation) String() string {
	return fmt.Sprintf("%s: %s", v.Field, v.Message)
}

type validateFunc func(api.Command) []Violation

// Registry maps command type discriminators to their validators. Unknown
// types construct the base variant; this is the documented open-by-default
// branch, not an accident, and base validation still applies to them.
type Registry struct {
	validators map[api.CommandType]validateFunc
}

func NewRegistry() *Registry {
	return &Registry{validators: map[api.CommandType]validateFunc{
		api.CommandTypeRoot:     validateRoot,
		api.CommandTypeFrontend: validateFrontend,
		api.CommandTypeScript:   validateScript,
		api.CommandTypeAI:       validateAI,
		api.CommandTypeIf:       validateIf,
		api.CommandTypeTimer:    validateTimer,
		api.CommandTypeGoto:     validateGoto,
		api.CommandTypeAlert:    validateBaseOnly,
		api.CommandTypeDatabase: validateBaseOnly,
	}}
}

// Construct decodes raw payload data into the variant named by commandType.
// The discriminator in the payload is overridden by the explicit argument.
func (r *Registry) Construct(commandType api.CommandType, data json.RawMessage) (api.Command, error) {
	var cmd api.Command
	if len(data) > 0 {
		if err := json.Unmarshal(data, &cmd); err != nil {
			return api.Command{}, fmt.Errorf("decode command payload: %w", err)
		}
	}
	cmd.CommandType = commandType
	return cmd, nil
}

// Validate runs base rules, then the type-specific rules when the type is
// known. An empty result means the command is valid.
func (r *Registry) Validate(cmd api.Command) []Violation {
	violations := validateBase(cmd)
	if validate, ok := r.validators[cmd.CommandType]; ok {
		violations = append(violations, validate(cmd)...)
	}
	return violations
}

func validateBase(cmd api.Command) []Violation {
	var violations []Violation
	if cmd.Name == "" {
		violations = append(violations, Violation{Field: "name", Message: "name is required"})
	}
	if cmd.CommandType == "" {
		violations = append(violations, Violation{Field: "commandType", Message: "commandType is required"})
	}
	return violations
}

func validateBaseOnly(api.Command) []Violation {
	return nil
}

func validateRoot(cmd api.Command) []Violation {
	var violations []Violation
	if cmd.Parameters == nil {
		violations = append(violations, Violation{Field: "parameters", Message: "parameters must be an array"})
	}
	if cmd.Bags == nil {
		violations = append(violations, Violation{Field: "bags", Message: "bags must be an array"})
	}
	return violations
}

func validateFrontend(cmd api.Command) []Violation {
	var violations []Violation
	if cmd.Title == "" {
		violations = append(violations, Violation{Field: "title", Message: "title is required"})
	}
	if cmd.Fields == nil {
		violations = append(violations, Violation{Field: "fields", Message: "fields must be an array"})
	}
	for i, field := range cmd.Fields {
		if field.Name == "" || field.Type == "" || field.BagName == "" {
			violations = append(violations, Violation{
				Field:   fmt.Sprintf("fields[%d]", i),
				Message: "field entries require name, type, and bagName",
			})
		}
	}
	return violations
}

func validateScript(cmd api.Command) []Violation {
	var violations []Violation
	if cmd.Code == "" {
		violations = append(violations, Violation{Field: "code", Message: "code is required"})
	}
	if cmd.OutputBag == "" {
		violations = append(violations, Violation{Field: "outputBag", Message: "outputBag is required"})
	}
	return violations
}

func validateAI(cmd api.Command) []Violation {
	var violations []Violation
	if cmd.PromptTemplate == "" {
		violations = append(violations, Violation{Field: "promptTemplate", Message: "promptTemplate is required"})
	}
	if cmd.OutputBag == "" {
		violations = append(violations, Violation{Field: "outputBag", Message: "outputBag is required"})
	}
	return violations
}

func validateIf(cmd api.Command) []Violation {
	var violations []Violation
	if len(cmd.Conditions) == 0 {
		violations = append(violations, Violation{Field: "conditions", Message: "at least one condition is required"})
	}
	for i, condition := range cmd.Conditions {
		if condition.BagName == "" {
			violations = append(violations, Violation{
				Field:   fmt.Sprintf("conditions[%d].bagName", i),
				Message: "bagName is required",
			})
		}
		if condition.Value == nil {
			violations = append(violations, Violation{
				Field:   fmt.Sprintf("conditions[%d].value", i),
				Message: "value must be defined",
			})
		}
	}
	if cmd.LogicType != api.LogicTypeAnd && cmd.LogicType != api.LogicTypeOr {
		violations = append(violations, Violation{Field: "logicType", Message: "logicType must be and or or"})
	}
	if cmd.TruePath == "" {
		violations = append(violations, Violation{Field: "truePath", Message: "truePath is required"})
	}
	if cmd.FalsePath == "" {
		violations = append(violations, Violation{Field: "falsePath", Message: "falsePath is required"})
	}
	return violations
}

func validateTimer(cmd api.Command) []Violation {
	var violations []Violation
	if cmd.Duration <= 0 {
		violations = append(violations, Violation{Field: "duration", Message: "duration must be positive"})
	}
	if !cmd.Unit.Valid() {
		violations = append(violations, Violation{Field: "unit", Message: "unit must be seconds, minutes, hours, or days"})
	}
	return violations
}

func validateGoto(cmd api.Command) []Violation {
	if cmd.TargetStep == "" {
		return []Violation{{Field: "targetStep", Message: "targetStep is required"}}
	}
	return nil
}
