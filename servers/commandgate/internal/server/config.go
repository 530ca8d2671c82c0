package server

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"

	"github.com/pathwaylabs/commandgate/servers/commandgate/internal/identity"
	"github.com/pathwaylabs/commandgate/servers/commandgate/internal/names"
	"github.com/pathwaylabs/commandgate/servers/commandgate/internal/policy"
)

// Config is the full environment surface of the gate. Either an identity
// service URL or a local JWT secret must be set; the policy file and Redis
// address are optional.
type Config struct {
	ListenAddr string `env:"COMMANDGATE_LISTEN_ADDR" envDefault:":8080"`
	LogLevel   string `env:"COMMANDGATE_LOG_LEVEL" envDefault:"info"`

	IdentityURL string `env:"COMMANDGATE_IDENTITY_URL"`
	JWTSecret   string `env:"COMMANDGATE_JWT_SECRET"`

	StoreURL        string        `env:"COMMANDGATE_STORE_URL"`
	StoreToken      string        `env:"COMMANDGATE_STORE_TOKEN"`
	StoreTimeout    time.Duration `env:"COMMANDGATE_STORE_TIMEOUT" envDefault:"15s"`
	CredentialsTTL  time.Duration `env:"COMMANDGATE_CREDENTIALS_TTL" envDefault:"5m"`
	IdentityTimeout time.Duration `env:"COMMANDGATE_IDENTITY_TIMEOUT" envDefault:"10s"`

	RedisAddr    string        `env:"COMMANDGATE_REDIS_ADDR"`
	PrincipalTTL time.Duration `env:"COMMANDGATE_PRINCIPAL_TTL" envDefault:"60s"`

	PolicyFile string `env:"COMMANDGATE_POLICY_FILE"`
}

func LoadConfig() (Config, error) {
	cfg, err := env.ParseAs[Config]()
	if err != nil {
		return Config{}, fmt.Errorf("parse environment: %w", err)
	}
	if strings.TrimSpace(cfg.IdentityURL) == "" && strings.TrimSpace(cfg.JWTSecret) == "" {
		return Config{}, fmt.Errorf("either COMMANDGATE_IDENTITY_URL or COMMANDGATE_JWT_SECRET is required")
	}
	if strings.TrimSpace(cfg.StoreURL) == "" {
		return Config{}, fmt.Errorf("COMMANDGATE_STORE_URL is required")
	}
	return cfg, nil
}

// PolicyFile is the optional operator-managed policy document. It can extend
// the built-in reserved names, define group capability allow-lists, and map
// gate tokens to dedicated store credentials.
type PolicyFile struct {
	ReservedNames struct {
		Databases  []string `yaml:"databases"`
		Namespaces []string `yaml:"namespaces"`
		Tags       []string `yaml:"tags"`
	} `yaml:"reservedNames"`
	GroupCapabilities map[string][]string `yaml:"groupCapabilities"`
	StoreCredentials  []struct {
		GateToken string `yaml:"gateToken"`
		URL       string `yaml:"url"`
		Token     string `yaml:"token"`
	} `yaml:"storeCredentials"`
}

// Policy is the loaded result: a name guard, the capability map, and any
// per-token store credentials layered over the deployment-wide fallback.
type Policy struct {
	Guard             *names.Guard
	GroupCapabilities map[string][]string
	Credentials       identity.Credentials
}

func LoadPolicy(cfg Config) (Policy, error) {
	fallback := identity.StoreCredential{URL: cfg.StoreURL, Token: cfg.StoreToken}
	loaded := Policy{
		Guard:             names.NewDefaultGuard(),
		GroupCapabilities: policy.DefaultGroupCapabilities(),
		Credentials: identity.Credentials{
			ByToken:  map[string]identity.StoreCredential{},
			Fallback: fallback,
		},
	}
	if strings.TrimSpace(cfg.PolicyFile) == "" {
		return loaded, nil
	}

	raw, err := os.ReadFile(cfg.PolicyFile)
	if err != nil {
		return Policy{}, fmt.Errorf("read policy file: %w", err)
	}
	var file PolicyFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return Policy{}, fmt.Errorf("parse policy file: %w", err)
	}

	reserved := names.DefaultReserved()
	reserved[names.KindDatabase] = append(reserved[names.KindDatabase], file.ReservedNames.Databases...)
	reserved[names.KindNamespace] = append(reserved[names.KindNamespace], file.ReservedNames.Namespaces...)
	reserved[names.KindTag] = append(reserved[names.KindTag], file.ReservedNames.Tags...)
	loaded.Guard = names.NewGuard(reserved)

	if len(file.GroupCapabilities) > 0 {
		loaded.GroupCapabilities = file.GroupCapabilities
	}
	for _, entry := range file.StoreCredentials {
		token := strings.TrimSpace(entry.GateToken)
		if token == "" {
			return Policy{}, fmt.Errorf("policy file: store credential entry is missing gateToken")
		}
		credential := identity.StoreCredential{URL: entry.URL, Token: entry.Token}
		if strings.TrimSpace(credential.URL) == "" {
			credential.URL = fallback.URL
		}
		loaded.Credentials.ByToken[token] = credential
	}
	return loaded, nil
}

func ParseLogLevel(raw string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
