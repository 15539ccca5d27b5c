package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/goccy/go-yaml"
)

// EndpointConfig is one entry of the api section.
type EndpointConfig struct {
	APIKey  string `toml:"api_key,omitempty" yaml:"api_key,omitempty"`
	BaseURL string `toml:"base_url,omitempty" yaml:"base_url,omitempty"`
	Timeout int    `toml:"timeout,omitempty" yaml:"timeout,omitempty"` // seconds
}

type APIConfig struct {
	Ollama     EndpointConfig `toml:"ollama" yaml:"ollama"`
	OpenAI     EndpointConfig `toml:"openai" yaml:"openai"`
	Anthropic  EndpointConfig `toml:"anthropic" yaml:"anthropic"`
	OpenRouter EndpointConfig `toml:"openrouter" yaml:"openrouter"`
}

func (a *APIConfig) byID() map[string]EndpointConfig {
	return map[string]EndpointConfig{
		ProviderOllama:     a.Ollama,
		ProviderOpenAI:     a.OpenAI,
		ProviderAnthropic:  a.Anthropic,
		ProviderOpenRouter: a.OpenRouter,
	}
}

type UIConfig struct {
	Theme          string `toml:"theme,omitempty" yaml:"theme,omitempty"`
	SidebarWidth   int    `toml:"sidebar_width,omitempty" yaml:"sidebar_width,omitempty"`
	MessagePadding int    `toml:"message_padding,omitempty" yaml:"message_padding,omitempty"`
}

type StorageConfig struct {
	ConversationsDir string `toml:"conversations_dir,omitempty" yaml:"conversations_dir,omitempty"`
}

// FileConfig is the on-disk configuration layout.
type FileConfig struct {
	API          APIConfig     `toml:"api" yaml:"api"`
	UI           UIConfig      `toml:"ui" yaml:"ui"`
	Storage      StorageConfig `toml:"storage" yaml:"storage"`
	DefaultModel string        `toml:"default_model,omitempty" yaml:"default_model,omitempty"`
	LastModel    string        `toml:"last_model,omitempty" yaml:"last_model,omitempty"`
}

// DefaultFileConfig is used when no config file exists.
func DefaultFileConfig() *FileConfig {
	return &FileConfig{
		API: APIConfig{
			Ollama:     EndpointConfig{BaseURL: DefaultOllamaURL, Timeout: DefaultTimeout},
			OpenAI:     EndpointConfig{Timeout: DefaultTimeout},
			Anthropic:  EndpointConfig{Timeout: DefaultTimeout},
			OpenRouter: EndpointConfig{Timeout: DefaultTimeout},
		},
		UI: UIConfig{
			Theme:          DefaultTheme,
			SidebarWidth:   DefaultSidebarWidth,
			MessagePadding: DefaultMessagePad,
		},
		DefaultModel: DefaultModel,
	}
}

// LoadFile decodes a config file, choosing the format by extension.
func LoadFile(path string) (*FileConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}

	cfg := &FileConfig{}
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yml", ".yaml":
		err = yaml.Unmarshal(data, cfg)
	case ".toml":
		_, err = toml.Decode(string(data), cfg)
	default:
		return nil, fmt.Errorf("unsupported config file format: %s", ext)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}

	return cfg, nil
}

// SaveFile encodes cfg in the format matching the path's extension.
func SaveFile(path string, cfg *FileConfig) error {
	var data []byte
	var err error

	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yml", ".yaml":
		data, err = yaml.Marshal(cfg)
	case ".toml":
		var buf bytes.Buffer
		err = toml.NewEncoder(&buf).Encode(cfg)
		data = buf.Bytes()
	default:
		return fmt.Errorf("unsupported config file format: %s", ext)
	}
	if err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}

	if err := EnsureDir(filepath.Dir(path)); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	// 0600: may contain API keys
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}
