package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
)

const (
	DefaultModel             = "claude-sonnet-4-5-20250929"
	DefaultMaxTokens         = 4096
	DefaultMaxToolIterations = 10
	DefaultHost              = "0.0.0.0"
	DefaultPort              = 18890
	DefaultBufSize           = 100
	DefaultTickSeconds       = 5
	DefaultAlertPolicy       = "single"
	DefaultRolloverTime      = "00:00"
	DefaultEmergencyContact  = "1669"
)

type Config struct {
	Profile   ProfileConfig   `json:"profile"`
	Engine    EngineConfig    `json:"engine"`
	Store     StoreConfig     `json:"store"`
	Voice     VoiceConfig     `json:"voice"`
	Channels  ChannelsConfig  `json:"channels"`
	Companion CompanionConfig `json:"companion"`
	Provider  ProviderConfig  `json:"provider"`
	Gateway   GatewayConfig   `json:"gateway"`
}

type ProfileConfig struct {
	Name             string `json:"name"`
	WakeUpTime       string `json:"wakeUpTime,omitempty"` // "HH:MM"
	EmergencyContact string `json:"emergencyContact"`
}

type EngineConfig struct {
	TickSeconds  int    `json:"tickSeconds"`
	AlertPolicy  string `json:"alertPolicy"`  // "single" or "highest"
	RolloverTime string `json:"rolloverTime"` // "HH:MM", start of a new occurrence
}

type StoreConfig struct {
	DBPath string `json:"dbPath,omitempty"`
}

type VoiceConfig struct {
	Enabled       bool     `json:"enabled"`
	GlobalClip    string   `json:"globalClip,omitempty"` // caregiver-recorded WAV
	SpeechCommand string   `json:"speechCommand,omitempty"`
	SpeechArgs    []string `json:"speechArgs,omitempty"`
}

type ChannelsConfig struct {
	Telegram  TelegramConfig  `json:"telegram"`
	Dashboard DashboardConfig `json:"dashboard"`
}

type TelegramConfig struct {
	Enabled         bool     `json:"enabled"`
	Token           string   `json:"token"`
	CaregiverChatID string   `json:"caregiverChatId"`
	AllowFrom       []string `json:"allowFrom"`
}

type DashboardConfig struct {
	Enabled   bool     `json:"enabled"`
	AllowFrom []string `json:"allowFrom"`
}

type CompanionConfig struct {
	Enabled           bool     `json:"enabled"`
	Model             string   `json:"model"`
	MaxTokens         int      `json:"maxTokens"`
	MaxToolIterations int      `json:"maxToolIterations"`
	Workspace         string   `json:"workspace,omitempty"`
	EmergencyKeywords []string `json:"emergencyKeywords,omitempty"`
}

type ProviderConfig struct {
	Type    string `json:"type,omitempty"` // "anthropic" (default) or "openai"
	APIKey  string `json:"apiKey"`
	BaseURL string `json:"baseUrl,omitempty"`
}

type GatewayConfig struct {
	Host string `json:"host"`
	Port int    `json:"port"`
}

func DefaultConfig() *Config {
	home, _ := os.UserHomeDir()
	return &Config{
		Profile: ProfileConfig{
			EmergencyContact: DefaultEmergencyContact,
		},
		Engine: EngineConfig{
			TickSeconds:  DefaultTickSeconds,
			AlertPolicy:  DefaultAlertPolicy,
			RolloverTime: DefaultRolloverTime,
		},
		Store: StoreConfig{},
		Voice: VoiceConfig{},
		Channels: ChannelsConfig{
			Dashboard: DashboardConfig{Enabled: true},
		},
		Companion: CompanionConfig{
			Enabled:           false,
			Model:             DefaultModel,
			MaxTokens:         DefaultMaxTokens,
			MaxToolIterations: DefaultMaxToolIterations,
			Workspace:         filepath.Join(home, ".eldermed", "workspace"),
			EmergencyKeywords: []string{"chest pain", "can't breathe", "cannot breathe", "fell down", "dizzy"},
		},
		Provider: ProviderConfig{},
		Gateway: GatewayConfig{
			Host: DefaultHost,
			Port: DefaultPort,
		},
	}
}

func ConfigDir() string {
	home := os.Getenv("HOME")
	if home == "" {
		home, _ = os.UserHomeDir()
	}
	return filepath.Join(home, ".eldermed")
}

func ConfigPath() string {
	return filepath.Join(ConfigDir(), "config.json")
}

func LoadConfig() (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(ConfigPath())
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	} else {
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	// Environment variable overrides
	if key := os.Getenv("ELDERMED_API_KEY"); key != "" {
		cfg.Provider.APIKey = key
	}
	if key := os.Getenv("ANTHROPIC_API_KEY"); key != "" && cfg.Provider.APIKey == "" {
		cfg.Provider.APIKey = key
	}
	if key := os.Getenv("OPENAI_API_KEY"); key != "" && cfg.Provider.APIKey == "" {
		cfg.Provider.APIKey = key
		if cfg.Provider.Type == "" {
			cfg.Provider.Type = "openai"
		}
	}
	if url := os.Getenv("ELDERMED_BASE_URL"); url != "" {
		cfg.Provider.BaseURL = url
	}
	if token := os.Getenv("ELDERMED_TELEGRAM_TOKEN"); token != "" {
		cfg.Channels.Telegram.Token = token
	}
	if dbPath := os.Getenv("ELDERMED_DB_PATH"); dbPath != "" {
		cfg.Store.DBPath = dbPath
	}
	if tick := os.Getenv("ELDERMED_TICK_SECONDS"); tick != "" {
		if parsed, err := strconv.Atoi(tick); err == nil && parsed > 0 {
			cfg.Engine.TickSeconds = parsed
		}
	}
	if policy := os.Getenv("ELDERMED_ALERT_POLICY"); policy != "" {
		cfg.Engine.AlertPolicy = policy
	}

	if cfg.Engine.TickSeconds <= 0 {
		cfg.Engine.TickSeconds = DefaultTickSeconds
	}
	if cfg.Engine.AlertPolicy == "" {
		cfg.Engine.AlertPolicy = DefaultAlertPolicy
	}
	if cfg.Engine.RolloverTime == "" {
		cfg.Engine.RolloverTime = DefaultRolloverTime
	}
	if cfg.Profile.EmergencyContact == "" {
		cfg.Profile.EmergencyContact = DefaultEmergencyContact
	}
	if cfg.Store.DBPath == "" {
		cfg.Store.DBPath = filepath.Join(ConfigDir(), "data", "eldermed.db")
	}

	return cfg, nil
}

func SaveConfig(cfg *Config) error {
	dir := ConfigDir()
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	return os.WriteFile(ConfigPath(), data, 0644)
}
