package config

import (
	"fmt"
	"os"
	"strings"
	"time"
)

// Provider IDs as they appear under the api section of the config file.
const (
	ProviderOllama     = "ollama"
	ProviderOpenAI     = "openai"
	ProviderAnthropic  = "anthropic"
	ProviderOpenRouter = "openrouter"
)

// CloudProviders lists the providers that need an API key, in registration order.
var CloudProviders = []string{ProviderOpenAI, ProviderAnthropic, ProviderOpenRouter}

const (
	DefaultOllamaURL     = "http://localhost:11434"
	DefaultModel         = "llama2"
	DefaultTimeout       = 60 // seconds
	DefaultTheme         = "dark"
	DefaultSidebarWidth  = 35
	DefaultMessagePad    = 2
	DefaultSearchDBName  = "search.db"
	conversationsDirName = "conversations"
)

// apiKeyEnv maps cloud providers to the environment variable holding their key.
var apiKeyEnv = map[string]string{
	ProviderOpenAI:     "OPENAI_API_KEY",
	ProviderAnthropic:  "ANTHROPIC_API_KEY",
	ProviderOpenRouter: "OPENROUTER_API_KEY",
}

// Endpoint is the resolved connection settings of one provider.
type Endpoint struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

// Config is the runtime configuration: the file layer with environment,
// .env and keyring values applied on top.
type Config struct {
	DataDirectory    string
	ConversationsDir string
	DefaultModel     string
	LastModel        string
	Theme            string
	SidebarWidth     int
	MessagePadding   int

	endpoints map[string]Endpoint
	keySource map[string]string // provider -> "file", "env" or "keyring"

	path string      // file the config was loaded from, or will be saved to
	file *FileConfig // persisted layer; env values never leak into it
}

// Path returns the file the config is persisted to.
func (c *Config) Path() string {
	return c.path
}

func (c *Config) DataDir() string {
	return ExpandPath(c.DataDirectory)
}

// SearchIndexPath returns the location of the conversation search database.
func (c *Config) SearchIndexPath() string {
	return joinPath(c.DataDir(), DefaultSearchDBName)
}

// Endpoint returns the resolved settings for provider id.
func (c *Config) Endpoint(id string) Endpoint {
	return c.endpoints[id]
}

func (c *Config) OllamaURL() string {
	return c.endpoints[ProviderOllama].BaseURL
}

// APIKey returns the resolved API key for provider id, or "" when unset.
func (c *Config) APIKey(id string) string {
	key := c.endpoints[id].APIKey
	if !isSet(key) {
		return ""
	}
	return key
}

// HasAPIKey reports whether provider id has a usable API key. Empty values and
// the literal "null" (any case) count as unset.
func (c *Config) HasAPIKey(id string) bool {
	return isSet(c.endpoints[id].APIKey)
}

// KeySource reports where the API key of provider id came from.
func (c *Config) KeySource(id string) string {
	return c.keySource[id]
}

// Model returns the model to start with: the last used model, else the default.
func (c *Config) Model() string {
	if c.LastModel != "" {
		return c.LastModel
	}
	return c.DefaultModel
}

func isSet(key string) bool {
	return key != "" && !strings.EqualFold(key, "null")
}

func (c *Config) applyEnvOverrides() {
	if host := os.Getenv("CMDAI_OLLAMA_HOST"); host != "" {
		ep := c.endpoints[ProviderOllama]
		ep.BaseURL = host
		c.endpoints[ProviderOllama] = ep
	}
	if model := os.Getenv("CMDAI_DEFAULT_MODEL"); model != "" {
		c.DefaultModel = model
	}
	if dataDir := os.Getenv("CMDAI_DATA_DIR"); dataDir != "" {
		c.DataDirectory = dataDir
	}
	for id, env := range apiKeyEnv {
		if key := os.Getenv(env); isSet(key) {
			ep := c.endpoints[id]
			ep.APIKey = key
			c.endpoints[id] = ep
			c.keySource[id] = "env"
		}
	}
}

// applyKeyring fills API keys still missing after file and environment.
func (c *Config) applyKeyring() {
	for _, id := range CloudProviders {
		if c.HasAPIKey(id) {
			continue
		}
		key, err := GetStoredKey(id)
		if err != nil {
			DebugLog.Debug().Str("provider", id).Err(err).Msg("keyring lookup failed")
			continue
		}
		if isSet(key) {
			ep := c.endpoints[id]
			ep.APIKey = key
			c.endpoints[id] = ep
			c.keySource[id] = "keyring"
		}
	}
}

// Load resolves the configuration.
//
// The file is explicitPath when given, else the first existing candidate from
// CandidatePaths. A missing file yields defaults. Environment variables
// override file values and the OS keyring supplies API keys that are still
// missing.
func Load(explicitPath string) (*Config, error) {
	path := explicitPath
	if path == "" {
		path = FindConfigFile()
	}
	path = ExpandPath(path)

	file := DefaultFileConfig()
	if FileExists(path) {
		loaded, err := LoadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to load config: %w", err)
		}
		file = loaded
	}

	cfg := fromFile(file, path)
	cfg.applyEnvOverrides()
	cfg.applyKeyring()

	if cfg.ConversationsDir == "" {
		cfg.ConversationsDir = joinPath(cfg.DataDir(), conversationsDirName)
	}

	if err := EnsureDir(cfg.DataDir()); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	return cfg, nil
}

// fromFile builds the runtime config from the persisted layer.
func fromFile(file *FileConfig, path string) *Config {
	cfg := &Config{
		DataDirectory:    GetDefaultDataDir(),
		ConversationsDir: ExpandPath(file.Storage.ConversationsDir),
		DefaultModel:     orDefault(file.DefaultModel, DefaultModel),
		LastModel:        file.LastModel,
		Theme:            orDefault(file.UI.Theme, DefaultTheme),
		SidebarWidth:     orDefaultInt(file.UI.SidebarWidth, DefaultSidebarWidth),
		MessagePadding:   orDefaultInt(file.UI.MessagePadding, DefaultMessagePad),
		endpoints:        make(map[string]Endpoint),
		keySource:        make(map[string]string),
		path:             path,
		file:             file,
	}

	for id, ep := range file.API.byID() {
		cfg.endpoints[id] = Endpoint{
			BaseURL: ep.BaseURL,
			APIKey:  ep.APIKey,
			Timeout: time.Duration(orDefaultInt(ep.Timeout, DefaultTimeout)) * time.Second,
		}
		if isSet(ep.APIKey) {
			cfg.keySource[id] = "file"
		}
	}
	if cfg.endpoints[ProviderOllama].BaseURL == "" {
		ep := cfg.endpoints[ProviderOllama]
		ep.BaseURL = DefaultOllamaURL
		cfg.endpoints[ProviderOllama] = ep
	}

	return cfg
}

// UpdateLastModel records modelID as the last used model and saves the file.
func (c *Config) UpdateLastModel(modelID string) error {
	c.LastModel = modelID
	c.file.LastModel = modelID
	return c.Save()
}

// Save writes the persisted layer back to Path with 0600 permissions.
func (c *Config) Save() error {
	if c.path == "" {
		c.path = DefaultConfigPath()
	}
	return SaveFile(c.path, c.file)
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

func orDefaultInt(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}
