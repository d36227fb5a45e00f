package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
	"github.com/labstack/gommon/bytes"
	"go-simpler.org/env"
	"golang.org/x/text/language"
	"gopkg.in/yaml.v3"

	"github.com/pscheid92/pagegate/internal/domain"
)

// Config is loaded once at startup and treated as read-only afterwards.
type Config struct {
	AppEnv string `env:"APP_ENV" default:"development"`
	Port   string `env:"PORT" default:"3000"`

	PageIDs     string `env:"PAGE_IDS"`
	AppID       string `env:"APP_ID"`
	AppSecret   string `env:"APP_SECRET"`
	VerifyToken string `env:"VERIFY_TOKEN"`
	AppURL      string `env:"APP_URL"`
	ShopURL     string `env:"SHOP_URL"`

	GraphAPIBase    string        `env:"GRAPH_API_BASE" default:"https://graph.facebook.com"`
	GraphAPIVersion string        `env:"GRAPH_API_VERSION" default:"13.0"`
	GraphTimeout    time.Duration `env:"GRAPH_TIMEOUT" default:"10s"`
	TargetAppID     int64         `env:"TARGET_APP_ID" default:"263902037430900"`

	DefaultLocale     string `env:"DEFAULT_LOCALE" default:"en_US"`
	SignatureRequired bool   `env:"SIGNATURE_REQUIRED" default:"false"`

	WebhookProcessingTimeout time.Duration `env:"WEBHOOK_PROCESSING_TIMEOUT" default:"30s"`
	WebhookMaxBody           string        `env:"WEBHOOK_MAX_BODY" default:"1M"`
	WebhookRateLimit         float64       `env:"WEBHOOK_RATE_LIMIT" default:"0"`
	WebhookRateBurst         int           `env:"WEBHOOK_RATE_BURST" default:"100"`

	SessionTTL        time.Duration `env:"SESSION_TTL" default:"24h"`
	SessionMaxEntries int           `env:"SESSION_MAX_ENTRIES" default:"10000"`

	RedisURL        string        `env:"REDIS_URL"`
	ProfileCacheTTL time.Duration `env:"PROFILE_CACHE_TTL" default:"168h"` // 7 days
	DedupeTTL       time.Duration `env:"DEDUPE_TTL" default:"24h"`

	PersonasFile   string `env:"PERSONAS_FILE"`
	PersonaSales   string `env:"PERSONA_SALES"`
	PersonaBilling string `env:"PERSONA_BILLING"`
	PersonaOrder   string `env:"PERSONA_ORDER"`
	PersonaReturns string `env:"PERSONA_RETURNS"`
	PersonaStock   string `env:"PERSONA_STOCK"`
	PersonaCare    string `env:"PERSONA_CARE"`

	LogLevel  string `env:"LOG_LEVEL" default:"info"`
	LogFormat string `env:"LOG_FORMAT" default:"text"`

	credentials *domain.PageCredentials
	personas    *domain.PersonaRegistry
}

// builtinPersonas are registered on every start; PERSONAS_FILE and
// PERSONA_* variables refine them.
var builtinPersonas = []domain.Persona{
	{Name: "Alma", ID: "3"},
	{Name: "Reed", ID: "2"},
	{Name: "Val", ID: "1"},
}

func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		slog.Info("No .env file found, using environment variables")
	}

	var cfg Config
	if err := env.Load(&cfg, nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if err := validate(&cfg); err != nil {
		return nil, err
	}
	warnInsecureURLs(&cfg)

	cfg.credentials = loadCredentials(cfg.PageIDList(), os.Getenv)

	personas, err := loadPersonas(cfg.PersonasFile)
	if err != nil {
		return nil, err
	}
	cfg.personas = domain.NewPersonaRegistry(personas, cfg.personaOverrides())

	return &cfg, nil
}

func validate(cfg *Config) error {
	required := map[string]string{
		"PAGE_IDS":     cfg.PageIDs,
		"APP_ID":       cfg.AppID,
		"APP_SECRET":   cfg.AppSecret,
		"VERIFY_TOKEN": cfg.VerifyToken,
	}
	for name, value := range required {
		if value == "" {
			return fmt.Errorf("%s is required", name)
		}
	}

	if _, err := language.Parse(strings.ReplaceAll(cfg.DefaultLocale, "_", "-")); err != nil {
		return fmt.Errorf("DEFAULT_LOCALE must be a valid locale: %w", err)
	}

	if n, err := bytes.Parse(cfg.WebhookMaxBody); err != nil || n <= 0 {
		return fmt.Errorf("WEBHOOK_MAX_BODY must be a positive size such as 1M, got %q", cfg.WebhookMaxBody)
	}

	if cfg.SessionMaxEntries < 1 {
		return errors.New("SESSION_MAX_ENTRIES must be at least 1")
	}

	return nil
}

func warnInsecureURLs(cfg *Config) {
	for name, value := range map[string]string{"APP_URL": cfg.AppURL, "SHOP_URL": cfg.ShopURL} {
		switch {
		case value == "":
			slog.Warn("Missing environment variable", "name", name)
		case !strings.HasPrefix(value, "https://"):
			slog.Warn("URL does not begin with https://", "name", name, "value", value)
		}
	}
}

// loadCredentials pairs PAGE_IDS entries with PAGE_ACCESS_TOKEN_<n> (1-based).
func loadCredentials(pageIDs []string, getenv func(string) string) *domain.PageCredentials {
	tokens := make(map[string]string, len(pageIDs))
	for i, id := range pageIDs {
		token := getenv("PAGE_ACCESS_TOKEN_" + strconv.Itoa(i+1))
		if token == "" {
			slog.Warn("Missing page access token", "page_id", id, "variable", "PAGE_ACCESS_TOKEN_"+strconv.Itoa(i+1))
			continue
		}
		tokens[id] = token
	}
	return domain.NewPageCredentials(pageIDs, tokens)
}

type personasFile struct {
	Personas []domain.Persona `yaml:"personas" toml:"personas"`
}

func loadPersonas(path string) ([]domain.Persona, error) {
	personas := append([]domain.Persona(nil), builtinPersonas...)
	if path == "" {
		return personas, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read PERSONAS_FILE: %w", err)
	}

	var file personasFile
	switch filepath.Ext(path) {
	case ".toml":
		err = toml.Unmarshal(data, &file)
	default:
		err = yaml.Unmarshal(data, &file)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse PERSONAS_FILE: %w", err)
	}

	for _, p := range file.Personas {
		if p.Name == "" {
			return nil, errors.New("PERSONAS_FILE: persona without name")
		}
		personas = append(personas, p)
	}
	return personas, nil
}

func (c *Config) personaOverrides() map[domain.PersonaRole]string {
	return map[domain.PersonaRole]string{
		domain.RoleSales:   c.PersonaSales,
		domain.RoleBilling: c.PersonaBilling,
		domain.RoleOrder:   c.PersonaOrder,
		domain.RoleReturns: c.PersonaReturns,
		domain.RoleStock:   c.PersonaStock,
		domain.RoleCare:    c.PersonaCare,
	}
}

// PersonasConfigured reports whether persona ids come from PERSONAS_FILE or
// PERSONA_* rather than the built-in defaults.
func (c *Config) PersonasConfigured() bool {
	if c.PersonasFile != "" {
		return true
	}
	for _, id := range c.personaOverrides() {
		if id != "" {
			return true
		}
	}
	return false
}

// PageIDList returns the configured page ids.
func (c *Config) PageIDList() []string {
	var ids []string
	for _, id := range strings.Split(c.PageIDs, ",") {
		if id = strings.TrimSpace(id); id != "" {
			ids = append(ids, id)
		}
	}
	return ids
}

// APIURL is the versioned Graph API base URL.
func (c *Config) APIURL() string {
	return strings.TrimRight(c.GraphAPIBase, "/") + "/v" + strings.TrimPrefix(c.GraphAPIVersion, "v")
}

// WebhookMaxBodyBytes is WEBHOOK_MAX_BODY in bytes. Load has validated it.
func (c *Config) WebhookMaxBodyBytes() int64 {
	n, _ := bytes.Parse(c.WebhookMaxBody)
	return n
}

// WebhookURL is the public URL the platform delivers webhooks to.
func (c *Config) WebhookURL() string {
	return strings.TrimRight(c.AppURL, "/") + "/webhook"
}

// WhitelistedDomains lists the domains the Messenger profile allows.
func (c *Config) WhitelistedDomains() []string {
	var domains []string
	for _, u := range []string{c.AppURL, c.ShopURL} {
		if u != "" {
			domains = append(domains, u)
		}
	}
	return domains
}

func (c *Config) Credentials() *domain.PageCredentials {
	if c.credentials == nil {
		return domain.NewPageCredentials(nil, nil)
	}
	return c.credentials
}

func (c *Config) Personas() *domain.PersonaRegistry {
	if c.personas == nil {
		return domain.NewPersonaRegistry(builtinPersonas, nil)
	}
	return c.personas
}

// AppAccessToken is the app-level token used for app-scoped endpoints.
func (c *Config) AppAccessToken() string {
	return c.AppID + "|" + c.AppSecret
}
