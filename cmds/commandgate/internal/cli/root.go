// Package cli dispatches the commandgate CLI subcommands. Each subcommand
// parses its own flag set, calls the gate, and prints a JSON result.
package cli

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"

	"connectrpc.com/connect"

	"github.com/pathwaylabs/commandgate/cmds/commandgate/internal/client"
	"github.com/pathwaylabs/commandgate/pkg/commandgate/api"
)

func Execute(args []string) int {
	if len(args) == 0 {
		printUsage()
		return 2
	}

	switch args[0] {
	case "create":
		return executeCreate(args[1:])
	case "get":
		return executeGet(args[1:])
	case "update":
		return executeUpdate(args[1:])
	case "delete":
		return executeDelete(args[1:])
	case "list":
		return executeList(args[1:])
	case "search":
		return executeSearch(args[1:])
	case "tag":
		return executeTag(args[1:], true)
	case "untag":
		return executeTag(args[1:], false)
	case "namespaces":
		return executeNamespaces(args[1:])
	case "can":
		return executeCheckCapability(args[1:])
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", args[0])
		printUsage()
		return 2
	}
}

type commonFlags struct {
	serverURL string
	token     string
	database  string
	namespace string
}

func registerCommonFlags(fs *flag.FlagSet, common *commonFlags) {
	fs.StringVar(&common.serverURL, "server", resolveServerURL(), "commandgate server base URL")
	fs.StringVar(&common.token, "token", resolveToken(), "bearer token")
	fs.StringVar(&common.database, "database", "", "target database (optional; defaults to your own namespace)")
	fs.StringVar(&common.namespace, "namespace", "", "target namespace (optional)")
}

func (f commonFlags) validate() error {
	if strings.TrimSpace(f.serverURL) == "" {
		return errors.New("--server is required")
	}
	if strings.TrimSpace(f.token) == "" {
		return errors.New("--token is required")
	}
	return nil
}

// location returns nil when neither half is set, so the gate falls back to
// the caller's default location.
func (f commonFlags) location() *api.Location {
	database := strings.TrimSpace(f.database)
	namespace := strings.TrimSpace(f.namespace)
	if database == "" && namespace == "" {
		return nil
	}
	return &api.Location{Database: database, Namespace: namespace}
}

func (f commonFlags) client() (*client.Client, error) {
	return client.New(f.serverURL, f.token)
}

func executeCreate(args []string) int {
	fs := flag.NewFlagSet("create", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	common := commonFlags{}
	registerCommonFlags(fs, &common)

	var commandFile string
	fs.StringVar(&commandFile, "file", "", "path to a JSON command definition")

	if err := fs.Parse(args); err != nil {
		return 2
	}
	if err := common.validate(); err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		return 2
	}
	if strings.TrimSpace(commandFile) == "" {
		fmt.Fprintln(os.Stderr, "create requires --file")
		return 2
	}

	payload, err := os.ReadFile(commandFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "read --file: %v\n", err)
		return 1
	}
	var cmd api.Command
	if err := json.Unmarshal(payload, &cmd); err != nil {
		fmt.Fprintf(os.Stderr, "parse command definition: %v\n", err)
		return 1
	}

	gateClient, err := common.client()
	if err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		return 2
	}

	response, err := gateClient.CreateCommand(context.Background(), api.CreateCommandRequest{
		Location: common.location(),
		Command:  cmd,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "create failed: %s\n", renderError(err))
		return 1
	}
	printJSON(response)
	return 0
}

func executeGet(args []string) int {
	fs := flag.NewFlagSet("get", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	common := commonFlags{}
	registerCommonFlags(fs, &common)

	var id string
	fs.StringVar(&id, "id", "", "command id")

	if err := fs.Parse(args); err != nil {
		return 2
	}
	if err := common.validate(); err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		return 2
	}
	if strings.TrimSpace(id) == "" {
		fmt.Fprintln(os.Stderr, "get requires --id")
		return 2
	}

	gateClient, err := common.client()
	if err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		return 2
	}

	response, err := gateClient.GetCommand(context.Background(), api.GetCommandRequest{ID: id, Location: common.location()})
	if err != nil {
		fmt.Fprintf(os.Stderr, "get failed: %s\n", renderError(err))
		return 1
	}
	printJSON(response)
	return 0
}

func executeUpdate(args []string) int {
	fs := flag.NewFlagSet("update", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	common := commonFlags{}
	registerCommonFlags(fs, &common)

	var id string
	var commandFile string
	fs.StringVar(&id, "id", "", "command id")
	fs.StringVar(&commandFile, "file", "", "path to a JSON command definition")

	if err := fs.Parse(args); err != nil {
		return 2
	}
	if err := common.validate(); err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		return 2
	}
	if strings.TrimSpace(id) == "" || strings.TrimSpace(commandFile) == "" {
		fmt.Fprintln(os.Stderr, "update requires --id and --file")
		return 2
	}

	payload, err := os.ReadFile(commandFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "read --file: %v\n", err)
		return 1
	}
	var cmd api.Command
	if err := json.Unmarshal(payload, &cmd); err != nil {
		fmt.Fprintf(os.Stderr, "parse command definition: %v\n", err)
		return 1
	}

	gateClient, err := common.client()
	if err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		return 2
	}

	response, err := gateClient.UpdateCommand(context.Background(), api.UpdateCommandRequest{
		ID:       id,
		Location: common.location(),
		Command:  cmd,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "update failed: %s\n", renderError(err))
		return 1
	}
	printJSON(response)
	return 0
}

func executeDelete(args []string) int {
	fs := flag.NewFlagSet("delete", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	common := commonFlags{}
	registerCommonFlags(fs, &common)

	var id string
	fs.StringVar(&id, "id", "", "command id")

	if err := fs.Parse(args); err != nil {
		return 2
	}
	if err := common.validate(); err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		return 2
	}
	if strings.TrimSpace(id) == "" {
		fmt.Fprintln(os.Stderr, "delete requires --id")
		return 2
	}

	gateClient, err := common.client()
	if err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		return 2
	}

	response, err := gateClient.DeleteCommand(context.Background(), api.DeleteCommandRequest{ID: id, Location: common.location()})
	if err != nil {
		fmt.Fprintf(os.Stderr, "delete failed: %s\n", renderError(err))
		return 1
	}
	printJSON(response)
	return 0
}

func executeList(args []string) int {
	fs := flag.NewFlagSet("list", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	common := commonFlags{}
	registerCommonFlags(fs, &common)

	var limit int
	fs.IntVar(&limit, "limit", 50, "maximum results per location")

	if err := fs.Parse(args); err != nil {
		return 2
	}
	if err := common.validate(); err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		return 2
	}

	gateClient, err := common.client()
	if err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		return 2
	}

	response, err := gateClient.ListCommands(context.Background(), api.ListCommandsRequest{
		Location: common.location(),
		Limit:    uint32(limit),
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "list failed: %s\n", renderError(err))
		return 1
	}
	printJSON(response)
	return 0
}

func executeSearch(args []string) int {
	fs := flag.NewFlagSet("search", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	common := commonFlags{}
	registerCommonFlags(fs, &common)

	var name string
	var tags string
	var limit int
	fs.StringVar(&name, "name", "", "name substring filter")
	fs.StringVar(&tags, "tags", "", "comma separated tag filter")
	fs.IntVar(&limit, "limit", 50, "maximum results per location")

	if err := fs.Parse(args); err != nil {
		return 2
	}
	if err := common.validate(); err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		return 2
	}

	gateClient, err := common.client()
	if err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		return 2
	}

	response, err := gateClient.SearchCommands(context.Background(), api.SearchCommandsRequest{
		Name:     strings.TrimSpace(name),
		Tags:     splitTags(tags),
		Location: common.location(),
		Limit:    uint32(limit),
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "search failed: %s\n", renderError(err))
		return 1
	}
	printJSON(response)
	return 0
}

func executeTag(args []string, add bool) int {
	verb := "tag"
	if !add {
		verb = "untag"
	}
	fs := flag.NewFlagSet(verb, flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	common := commonFlags{}
	registerCommonFlags(fs, &common)

	var id string
	var tag string
	fs.StringVar(&id, "id", "", "command id")
	fs.StringVar(&tag, "tag", "", "tag name")

	if err := fs.Parse(args); err != nil {
		return 2
	}
	if err := common.validate(); err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		return 2
	}
	if strings.TrimSpace(id) == "" || strings.TrimSpace(tag) == "" {
		fmt.Fprintf(os.Stderr, "%s requires --id and --tag\n", verb)
		return 2
	}

	gateClient, err := common.client()
	if err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		return 2
	}

	ctx := context.Background()
	var result any
	if add {
		result, err = gateClient.TagCommand(ctx, api.TagCommandRequest{ID: id, Tag: tag, Location: common.location()})
	} else {
		result, err = gateClient.UntagCommand(ctx, api.UntagCommandRequest{ID: id, Tag: tag, Location: common.location()})
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s failed: %s\n", verb, renderError(err))
		return 1
	}
	printJSON(result)
	return 0
}

func executeNamespaces(args []string) int {
	fs := flag.NewFlagSet("namespaces", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	common := commonFlags{}
	registerCommonFlags(fs, &common)

	if err := fs.Parse(args); err != nil {
		return 2
	}
	if err := common.validate(); err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		return 2
	}
	if strings.TrimSpace(common.database) == "" {
		fmt.Fprintln(os.Stderr, "namespaces requires --database")
		return 2
	}

	gateClient, err := common.client()
	if err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		return 2
	}

	response, err := gateClient.ListNamespaces(context.Background(), api.ListNamespacesRequest{Database: common.database})
	if err != nil {
		fmt.Fprintf(os.Stderr, "namespaces failed: %s\n", renderError(err))
		return 1
	}
	printJSON(response)
	return 0
}

func executeCheckCapability(args []string) int {
	fs := flag.NewFlagSet("can", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	common := commonFlags{}
	registerCommonFlags(fs, &common)

	var capability string
	fs.StringVar(&capability, "capability", "", "capability name, e.g. ai.use")

	if err := fs.Parse(args); err != nil {
		return 2
	}
	if err := common.validate(); err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		return 2
	}
	if strings.TrimSpace(capability) == "" {
		fmt.Fprintln(os.Stderr, "can requires --capability")
		return 2
	}

	gateClient, err := common.client()
	if err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		return 2
	}

	response, err := gateClient.CheckCapability(context.Background(), api.CheckCapabilityRequest{Capability: capability})
	if err != nil {
		fmt.Fprintf(os.Stderr, "can failed: %s\n", renderError(err))
		return 1
	}
	printJSON(response)
	return 0
}

func splitTags(raw string) []string {
	var tags []string
	for _, tag := range strings.Split(raw, ",") {
		if tag = strings.TrimSpace(tag); tag != "" {
			tags = append(tags, tag)
		}
	}
	return tags
}

func printJSON(value any) {
	_ = json.NewEncoder(os.Stdout).Encode(value)
}

func resolveServerURL() string {
	if fromEnv := strings.TrimSpace(os.Getenv("COMMANDGATE_SERVER_URL")); fromEnv != "" {
		return fromEnv
	}
	return "http://127.0.0.1:8080"
}

func resolveToken() string {
	return strings.TrimSpace(os.Getenv("COMMANDGATE_TOKEN"))
}

func renderError(err error) string {
	var connectErr *connect.Error
	if errors.As(err, &connectErr) {
		return fmt.Sprintf("%s (%s)", connectErr.Message(), connectErr.Code().String())
	}
	return err.Error()
}

func printUsage() {
	_, _ = fmt.Fprintln(os.Stderr, "usage:")
	_, _ = fmt.Fprintln(os.Stderr, "  commandgate create --file <path> [--database <db> --namespace <ns>]")
	_, _ = fmt.Fprintln(os.Stderr, "  commandgate get --id <id> [--database <db> --namespace <ns>]")
	_, _ = fmt.Fprintln(os.Stderr, "  commandgate update --id <id> --file <path> [--database <db> --namespace <ns>]")
	_, _ = fmt.Fprintln(os.Stderr, "  commandgate delete --id <id> [--database <db> --namespace <ns>]")
	_, _ = fmt.Fprintln(os.Stderr, "  commandgate list [--limit <n>] [--database <db> --namespace <ns>]")
	_, _ = fmt.Fprintln(os.Stderr, "  commandgate search [--name <substr>] [--tags <a,b>] [--limit <n>]")
	_, _ = fmt.Fprintln(os.Stderr, "  commandgate tag --id <id> --tag <name>")
	_, _ = fmt.Fprintln(os.Stderr, "  commandgate untag --id <id> --tag <name>")
	_, _ = fmt.Fprintln(os.Stderr, "  commandgate namespaces --database <db>")
	_, _ = fmt.Fprintln(os.Stderr, "  commandgate can --capability <name>")
	_, _ = fmt.Fprintln(os.Stderr, "flags also honor COMMANDGATE_SERVER_URL and COMMANDGATE_TOKEN")
}
