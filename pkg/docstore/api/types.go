package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// ProcedureExecute is the single path-addressed document operation the store
// exposes. The gate constructs the path and verb; the store owns everything
// behind them.
const ProcedureExecute = "/docstore.v1.StoreService/Execute"

type JSONCodec struct{}

func (JSONCodec) Name() string { return "json" }

func (JSONCodec) Marshal(v any) ([]byte, error) {
	return json.Marshal(v)
}

func (JSONCodec) Unmarshal(data []byte, v any) error {
	return json.Unmarshal(data, v)
}

type Verb string

const (
	VerbSet    Verb = "set"
	VerbGet    Verb = "get"
	VerbList   Verb = "list"
	VerbSearch Verb = "search"
	VerbRemove Verb = "remove"
	VerbTag    Verb = "tag"
	VerbUntag  Verb = "untag"
	VerbDrop   Verb = "drop"
)

func ParseVerb(value string) (Verb, error) {
	switch Verb(strings.ToLower(strings.TrimSpace(value))) {
	case VerbSet:
		return VerbSet, nil
	case VerbGet, "view":
		return VerbGet, nil
	case VerbList:
		return VerbList, nil
	case VerbSearch:
		return VerbSearch, nil
	case VerbRemove:
		return VerbRemove, nil
	case VerbTag:
		return VerbTag, nil
	case VerbUntag:
		return VerbUntag, nil
	case VerbDrop:
		return VerbDrop, nil
	default:
		return "", fmt.Errorf("unknown verb: %s", value)
	}
}

// Path addresses database.namespace.entity records. Trailing segments may be
// empty: a path naming only a database addresses the database itself, and so
// on down to a single record id.
type Path struct {
	Database  string `json:"database"`
	Namespace string `json:"namespace,omitempty"`
	Entity    string `json:"entity,omitempty"`
	ID        string `json:"id,omitempty"`
}

func (p Path) Validate() error {
	if strings.TrimSpace(p.Database) == "" {
		return errors.New("path database is required")
	}
	if p.Entity != "" && p.Namespace == "" {
		return errors.New("path entity requires a namespace")
	}
	if p.ID != "" && p.Entity == "" {
		return errors.New("path id requires an entity")
	}
	return nil
}

func (p Path) String() string {
	segments := []string{p.Database}
	for _, segment := range []string{p.Namespace, p.Entity, p.ID} {
		if segment == "" {
			break
		}
		segments = append(segments, segment)
	}
	return strings.Join(segments, ".")
}

// Filter narrows list and search results. All fields are optional.
type Filter struct {
	Name  string   `json:"name,omitempty"`
	Tags  []string `json:"tags,omitempty"`
	Limit uint32   `json:"limit,omitempty"`
}

type ExecuteRequest struct {
	Path    Path            `json:"path"`
	Verb    Verb            `json:"verb"`
	Payload json.RawMessage `json:"payload,omitempty"`
	Filter  *Filter         `json:"filter,omitempty"`
}

// ExecuteResponse carries whichever result shape the verb produces: a single
// document for get/set/tag/untag, a document list for list/search on an
// entity, or a name list when listing the namespaces of a database.
type ExecuteResponse struct {
	Document  json.RawMessage   `json:"document,omitempty"`
	Documents []json.RawMessage `json:"documents,omitempty"`
	Names     []string          `json:"names,omitempty"`
}
