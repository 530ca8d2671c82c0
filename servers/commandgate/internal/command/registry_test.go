package command

import (
	"encoding/json"
	"testing"

	"github.com/pathwaylabs/commandgate/pkg/commandgate/api"
)

func TestConstructOverridesDiscriminator(t *testing.T) {
	t.Parallel()
	registry := NewRegistry()

	payload := json.RawMessage(`{"name":"wait","commandType":"script","duration":5,"unit":"minutes"}`)
	cmd, err := registry.Construct(api.CommandTypeTimer, payload)
	if err != nil {
		t.Fatalf("construct: %v", err)
	}
	if cmd.CommandType != api.CommandTypeTimer {
		t.Fatalf("expected explicit type to win, got %s", cmd.CommandType)
	}
	if cmd.Duration != 5 || cmd.Unit != api.UnitMinutes {
		t.Fatalf("variant fields lost in construction: %+v", cmd)
	}
}

func TestConstructUnknownTypeKeepsBaseFields(t *testing.T) {
	t.Parallel()
	registry := NewRegistry()

	cmd, err := registry.Construct(api.CommandType("plugin-custom"), json.RawMessage(`{"name":"custom","tags":["x"]}`))
	if err != nil {
		t.Fatalf("construct: %v", err)
	}
	if cmd.CommandType != "plugin-custom" {
		t.Fatalf("unexpected type %s", cmd.CommandType)
	}
	if cmd.Name != "custom" || len(cmd.Tags) != 1 {
		t.Fatalf("base fields must survive unknown types: %+v", cmd)
	}

	// Unknown types validate base rules only.
	if violations := registry.Validate(cmd); len(violations) != 0 {
		t.Fatalf("unknown type with base fields must validate clean, got %v", violations)
	}
}

func TestValidateVariants(t *testing.T) {
	t.Parallel()
	registry := NewRegistry()

	cases := []struct {
		name       string
		cmd        api.Command
		wantFields []string
	}{
		{
			name:       "missing base fields",
			cmd:        api.Command{},
			wantFields: []string{"name", "commandType"},
		},
		{
			name:       "root requires arrays",
			cmd:        api.Command{Name: "start", CommandType: api.CommandTypeRoot},
			wantFields: []string{"parameters", "bags"},
		},
		{
			name: "root valid with empty arrays",
			cmd: api.Command{
				Name:        "start",
				CommandType: api.CommandTypeRoot,
				Parameters:  []api.CommandParameter{},
				Bags:        []string{},
			},
		},
		{
			name:       "frontend field entries checked",
			cmd:        api.Command{Name: "form", CommandType: api.CommandTypeFrontend, Title: "Form", Fields: []api.FrontendField{{Name: "age"}}},
			wantFields: []string{"fields[0]"},
		},
		{
			name:       "script needs code and output bag",
			cmd:        api.Command{Name: "calc", CommandType: api.CommandTypeScript},
			wantFields: []string{"code", "outputBag"},
		},
		{
			name:       "ai needs prompt and output bag",
			cmd:        api.Command{Name: "summarize", CommandType: api.CommandTypeAI, PromptTemplate: "x"},
			wantFields: []string{"outputBag"},
		},
		{
			name: "if checks conditions and paths",
			cmd: api.Command{
				Name:        "branch",
				CommandType: api.CommandTypeIf,
				Conditions:  []api.Condition{{BagName: "total"}},
				LogicType:   "xor",
				TruePath:    "yes",
			},
			wantFields: []string{"conditions[0].value", "logicType", "falsePath"},
		},
		{
			name:       "timer rejects zero duration and bad unit",
			cmd:        api.Command{Name: "wait", CommandType: api.CommandTypeTimer, Duration: 0, Unit: "weeks"},
			wantFields: []string{"duration", "unit"},
		},
		{
			name: "timer valid",
			cmd:  api.Command{Name: "wait", CommandType: api.CommandTypeTimer, Duration: 30, Unit: api.UnitSeconds},
		},
		{
			name:       "goto needs target step",
			cmd:        api.Command{Name: "jump", CommandType: api.CommandTypeGoto},
			wantFields: []string{"targetStep"},
		},
		{
			name: "alert has no extra rules",
			cmd:  api.Command{Name: "notify", CommandType: api.CommandTypeAlert},
		},
		{
			name: "database has no extra rules",
			cmd:  api.Command{Name: "persist", CommandType: api.CommandTypeDatabase},
		},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			violations := registry.Validate(tc.cmd)
			if len(tc.wantFields) == 0 {
				if len(violations) != 0 {
					t.Fatalf("expected valid, got %v", violations)
				}
				return
			}
			for _, field := range tc.wantFields {
				if !hasViolation(violations, field) {
					t.Errorf("missing violation for field %q in %v", field, violations)
				}
			}
		})
	}
}

func hasViolation(violations []Violation, field string) bool {
	for _, violation := range violations {
		if violation.Field == field {
			return true
		}
	}
	return false
}
