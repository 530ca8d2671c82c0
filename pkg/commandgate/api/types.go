package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

const (
	ProcedureCreateCommand  = "/commandgate.v1.CommandService/CreateCommand"
	ProcedureGetCommand     = "/commandgate.v1.CommandService/GetCommand"
	ProcedureUpdateCommand  = "/commandgate.v1.CommandService/UpdateCommand"
	ProcedureDeleteCommand  = "/commandgate.v1.CommandService/DeleteCommand"
	ProcedureListCommands   = "/commandgate.v1.CommandService/ListCommands"
	ProcedureSearchCommands = "/commandgate.v1.CommandService/SearchCommands"

	ProcedureCreateDatabase  = "/commandgate.v1.PathService/CreateDatabase"
	ProcedureDropDatabase    = "/commandgate.v1.PathService/DropDatabase"
	ProcedureCreateNamespace = "/commandgate.v1.PathService/CreateNamespace"
	ProcedureDropNamespace   = "/commandgate.v1.PathService/DropNamespace"
	ProcedureListNamespaces  = "/commandgate.v1.PathService/ListNamespaces"
	ProcedureTagCommand      = "/commandgate.v1.PathService/TagCommand"
	ProcedureUntagCommand    = "/commandgate.v1.PathService/UntagCommand"

	ProcedureCheckCapability = "/commandgate.v1.AccessService/CheckCapability"
)

type JSONCodec struct{}

func (JSONCodec) Name() string { return "json" }

func (JSONCodec) Marshal(v any) ([]byte, error) {
	return json.Marshal(v)
}

func (JSONCodec) Unmarshal(data []byte, v any) error {
	return json.Unmarshal(data, v)
}

// AccessLevel is the path-level permission rank. Levels are cumulative:
// write implies read, admin implies both plus container create/drop.
type AccessLevel int32

const (
	LevelUnspecified AccessLevel = iota
	LevelRead
	LevelWrite
	LevelAdmin
)

func (l AccessLevel) String() string {
	switch l {
	case LevelRead:
		return "read"
	case LevelWrite:
		return "write"
	case LevelAdmin:
		return "admin"
	default:
		return "unspecified"
	}
}

func ParseAccessLevel(value string) (AccessLevel, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "read":
		return LevelRead, nil
	case "write":
		return LevelWrite, nil
	case "admin":
		return LevelAdmin, nil
	default:
		return LevelUnspecified, fmt.Errorf("unknown access level: %s", value)
	}
}

// WildcardNamespace marks a database-wide grant or candidate entry. It is a
// matcher, never a literal storage location.
const WildcardNamespace = "*"

// PermissionGrant scopes an access level to a database, optionally narrowed to
// one namespace. An empty or wildcard namespace matches every namespace in the
// database.
type PermissionGrant struct {
	Database  string      `json:"database"`
	Namespace string      `json:"namespace,omitempty"`
	Level     AccessLevel `json:"level"`
}

// Principal is the authenticated caller. Permissions and groups are read-only
// input for the lifetime of a request; the gate never mutates them.
type Principal struct {
	Email        string            `json:"email"`
	Groups       []string          `json:"groups,omitempty"`
	Capabilities []string          `json:"capabilities,omitempty"`
	Permissions  []PermissionGrant `json:"permissions,omitempty"`
}

// AdminGroup membership satisfies every path-level check.
const AdminGroup = "admin"

func (p Principal) InGroup(name string) bool {
	for _, group := range p.Groups {
		if group == name {
			return true
		}
	}
	return false
}

// Location addresses a (database, namespace) pair in the store.
type Location struct {
	Database  string `json:"database"`
	Namespace string `json:"namespace"`
}

func (l Location) Validate() error {
	if strings.TrimSpace(l.Database) == "" {
		return errors.New("database is required")
	}
	if strings.TrimSpace(l.Namespace) == "" {
		return errors.New("namespace is required")
	}
	return nil
}

func (l Location) String() string {
	return l.Database + "." + l.Namespace
}

type CommandType string

const (
	CommandTypeRoot     CommandType = "root"
	CommandTypeFrontend CommandType = "frontend"
	CommandTypeScript   CommandType = "script"
	CommandTypeAI       CommandType = "ai"
	CommandTypeIf       CommandType = "if"
	CommandTypeTimer    CommandType = "timer"
	CommandTypeGoto     CommandType = "goto"
	CommandTypeAlert    CommandType = "alert"
	CommandTypeDatabase CommandType = "database"
)

// Known reports whether the type is one of the closed variant set. Unknown
// types are still constructed, as the base variant.
func (t CommandType) Known() bool {
	switch t {
	case CommandTypeRoot, CommandTypeFrontend, CommandTypeScript, CommandTypeAI,
		CommandTypeIf, CommandTypeTimer, CommandTypeGoto, CommandTypeAlert, CommandTypeDatabase:
		return true
	default:
		return false
	}
}

type LogicType string

const (
	LogicTypeAnd LogicType = "and"
	LogicTypeOr  LogicType = "or"
)

type DurationUnit string

const (
	UnitSeconds DurationUnit = "seconds"
	UnitMinutes DurationUnit = "minutes"
	UnitHours   DurationUnit = "hours"
	UnitDays    DurationUnit = "days"
)

func (u DurationUnit) Valid() bool {
	switch u {
	case UnitSeconds, UnitMinutes, UnitHours, UnitDays:
		return true
	default:
		return false
	}
}

type CommandParameter struct {
	Name    string `json:"name"`
	Type    string `json:"type,omitempty"`
	Default any    `json:"default,omitempty"`
}

type FrontendField struct {
	Name    string `json:"name"`
	Type    string `json:"type"`
	BagName string `json:"bagName"`
}

type Condition struct {
	BagName string `json:"bagName"`
	Value   any    `json:"value"`
}

// Command is one stored workflow step. The variant fields past Tags are
// populated according to CommandType; absent fields marshal away.
type Command struct {
	ID          string      `json:"id,omitempty"`
	Name        string      `json:"name"`
	CommandType CommandType `json:"commandType"`
	CreatedBy   string      `json:"createdBy,omitempty"`
	CreatedAt   time.Time   `json:"createdAt,omitzero"`
	UpdatedAt   time.Time   `json:"updatedAt,omitzero"`
	IsSystem    bool        `json:"isSystem,omitempty"`
	Tags        []string    `json:"tags,omitempty"`

	Parameters []CommandParameter `json:"parameters,omitempty"`
	Bags       []string           `json:"bags,omitempty"`

	Title  string          `json:"title,omitempty"`
	Fields []FrontendField `json:"fields,omitempty"`

	Code      string `json:"code,omitempty"`
	OutputBag string `json:"outputBag,omitempty"`

	PromptTemplate string `json:"promptTemplate,omitempty"`
	Model          string `json:"model,omitempty"`
	Behavior       string `json:"behavior,omitempty"`

	Conditions []Condition `json:"conditions,omitempty"`
	LogicType  LogicType   `json:"logicType,omitempty"`
	TruePath   string      `json:"truePath,omitempty"`
	FalsePath  string      `json:"falsePath,omitempty"`

	Duration int64        `json:"duration,omitempty"`
	Unit     DurationUnit `json:"unit,omitempty"`

	TargetStep string `json:"targetStep,omitempty"`
}

func (c Command) HasTag(tag string) bool {
	for _, existing := range c.Tags {
		if existing == tag {
			return true
		}
	}
	return false
}

// CommandMatch pairs a command with the location it was found in.
type CommandMatch struct {
	Command  Command  `json:"command"`
	Location Location `json:"location"`
}

type CreateCommandRequest struct {
	Location *Location `json:"location,omitempty"`
	Command  Command   `json:"command"`
}

type CreateCommandResponse struct {
	Command  Command  `json:"command"`
	Location Location `json:"location"`
}

type GetCommandRequest struct {
	ID       string    `json:"id"`
	Location *Location `json:"location,omitempty"`
}

type GetCommandResponse struct {
	Command  Command  `json:"command"`
	Location Location `json:"location"`
}

type UpdateCommandRequest struct {
	ID       string    `json:"id"`
	Location *Location `json:"location,omitempty"`
	Command  Command   `json:"command"`
}

type UpdateCommandResponse struct {
	Command  Command  `json:"command"`
	Location Location `json:"location"`
}

type DeleteCommandRequest struct {
	ID       string    `json:"id"`
	Location *Location `json:"location,omitempty"`
}

type DeleteCommandResponse struct {
	Location Location `json:"location"`
}

type ListCommandsRequest struct {
	Location *Location `json:"location,omitempty"`
	Limit    uint32    `json:"limit,omitempty"`
}

type ListCommandsResponse struct {
	Results []CommandMatch `json:"results"`
}

type SearchCommandsRequest struct {
	Name     string    `json:"name,omitempty"`
	Tags     []string  `json:"tags,omitempty"`
	Location *Location `json:"location,omitempty"`
	Limit    uint32    `json:"limit,omitempty"`
}

type SearchCommandsResponse struct {
	Results []CommandMatch `json:"results"`
}

type CreateDatabaseRequest struct {
	Database string `json:"database"`
}

type CreateDatabaseResponse struct {
	Database string `json:"database"`
}

type DropDatabaseRequest struct {
	Database string `json:"database"`
}

type DropDatabaseResponse struct {
	Database string `json:"database"`
}

type CreateNamespaceRequest struct {
	Database  string `json:"database"`
	Namespace string `json:"namespace"`
}

type CreateNamespaceResponse struct {
	Location Location `json:"location"`
}

type DropNamespaceRequest struct {
	Database  string `json:"database"`
	Namespace string `json:"namespace"`
}

type DropNamespaceResponse struct {
	Location Location `json:"location"`
}

type ListNamespacesRequest struct {
	Database string `json:"database"`
}

type ListNamespacesResponse struct {
	Database   string   `json:"database"`
	Namespaces []string `json:"namespaces"`
}

type TagCommandRequest struct {
	ID       string    `json:"id"`
	Tag      string    `json:"tag"`
	Location *Location `json:"location,omitempty"`
}

type TagCommandResponse struct {
	Command  Command  `json:"command"`
	Location Location `json:"location"`
}

type UntagCommandRequest struct {
	ID       string    `json:"id"`
	Tag      string    `json:"tag"`
	Location *Location `json:"location,omitempty"`
}

type UntagCommandResponse struct {
	Command  Command  `json:"command"`
	Location Location `json:"location"`
}

type CheckCapabilityRequest struct {
	Capability string `json:"capability"`
}

type CheckCapabilityResponse struct {
	Capability string `json:"capability"`
	Allowed    bool   `json:"allowed"`
}

// ErrorKind classifies a failed operation so callers can map it to a status
// code without re-deriving policy.
type ErrorKind string

const (
	ErrorKindAuthentication ErrorKind = "authentication"
	ErrorKindAuthorization  ErrorKind = "authorization"
	ErrorKindValidation     ErrorKind = "validation"
	ErrorKindNotFound       ErrorKind = "not_found"
	ErrorKindStore          ErrorKind = "store"
)

// ErrorBody is the stable error shape every failed request maps to.
type ErrorBody struct {
	Error   bool      `json:"error"`
	Message string    `json:"message"`
	Kind    ErrorKind `json:"kind"`
}
