// Package botconfig defines the VPN bot configuration on top of the core config.
package botconfig

import (
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/go-playground/validator/v10"

	coreconfig "github.com/m3rciful/vpnbot/core/config"
	coredatabase "github.com/m3rciful/vpnbot/core/database"
)

// BackendConfig points the bot at the subscription backend.
type BackendConfig struct {
	BaseURL string        `yaml:"base_url" envconfig:"BACKEND_URL" validate:"required,url"`
	Token   string        `yaml:"token" envconfig:"BACKEND_TOKEN"`
	Timeout time.Duration `yaml:"timeout" envconfig:"BACKEND_TIMEOUT"`
	// TrialErrorPrefix and PromoErrorPrefix classify backend error texts.
	TrialErrorPrefix string `yaml:"trial_error_prefix"`
	PromoErrorPrefix string `yaml:"promo_error_prefix"`
}

// AdminConfig configures the administrative HTTP listener.
type AdminConfig struct {
	Listen string `yaml:"listen" envconfig:"ADMIN_LISTEN"`
	Token  string `yaml:"token" envconfig:"ADMIN_TOKEN"`
	// RateLimit is the global request rate in requests per second; 0 disables it.
	RateLimit float64 `yaml:"rate_limit" validate:"gte=0"`
	RateBurst int     `yaml:"rate_burst" validate:"gte=0"`
	// LogTailBytes bounds GET /logs output.
	LogTailBytes int64 `yaml:"log_tail_bytes" validate:"gte=0"`
}

// CooldownConfig holds the gate windows.
type CooldownConfig struct {
	NewOffer  time.Duration `yaml:"new_offer" validate:"gte=0"`
	UpdateQR  time.Duration `yaml:"update_qr" validate:"gte=0"`
	OfferInfo time.Duration `yaml:"offer_info" validate:"gte=0"`
}

// OfferConfig tunes the offer workflow.
type OfferConfig struct {
	TrialPlanID    string `yaml:"trial_plan_id"`
	MaxPromoLength int    `yaml:"max_promo_length" validate:"gte=0"`
}

// SettingsConfig selects where runtime-editable settings live.
// A configured database wins over File; with neither they are kept in memory.
type SettingsConfig struct {
	File     string         `yaml:"file" envconfig:"SETTINGS_FILE"`
	Defaults SettingsValues `yaml:"defaults"`
}

// SettingsValues are the initial runtime settings.
type SettingsValues struct {
	DefaultErrorMessage string `yaml:"default_error_message"`
	AdminContacts       string `yaml:"admin_contacts"`
}

// Device describes one entry of the connection instructions chooser.
type Device struct {
	Name        string `yaml:"name" validate:"required"`
	VideoURL    string `yaml:"video_url" validate:"omitempty,url"`
	Instruction string `yaml:"instruction" validate:"omitempty,url"`
}

// PaymentConfig describes the manual payment step.
type PaymentConfig struct {
	ImagePath    string `yaml:"image_path"`
	Instructions string `yaml:"instructions"`
}

// Config is the full application configuration.
type Config struct {
	coreconfig.Config `yaml:",inline"`

	Database    coredatabase.Config `yaml:"database"`
	Backend     BackendConfig       `yaml:"backend"`
	Admin       AdminConfig         `yaml:"admin"`
	Cooldowns   CooldownConfig      `yaml:"cooldowns"`
	Offers      OfferConfig         `yaml:"offers"`
	Settings    SettingsConfig      `yaml:"settings"`
	Devices     []Device            `yaml:"devices" validate:"dive"`
	Payment     PaymentConfig       `yaml:"payment"`
	BotUsername string              `yaml:"bot_username" envconfig:"BOT_USERNAME"`
}

// CoreConfig exposes the embedded core configuration to the shared runner.
func (c *Config) CoreConfig() *coreconfig.Config {
	if c == nil {
		return nil
	}
	return &c.Config
}

// Load reads the YAML file, overlays the environment and normalizes the result.
func Load(path string) (*Config, error) {
	var cfg Config
	if err := coreconfig.LoadInto(path, &cfg); err != nil {
		return nil, err
	}
	if err := Normalize(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Normalize validates the core part, fills defaults and validates the bot part.
func Normalize(cfg *Config) error {
	if cfg == nil {
		return errors.New("nil config")
	}
	if err := coreconfig.Normalize(&cfg.Config); err != nil {
		return err
	}
	applyDefaults(cfg)
	if err := validate.Struct(cfg); err != nil {
		return errors.Wrap(err, "invalid config")
	}
	return nil
}

func applyDefaults(cfg *Config) {
	cfg.Backend.BaseURL = strings.TrimRight(strings.TrimSpace(cfg.Backend.BaseURL), "/")
	if cfg.Backend.Timeout <= 0 {
		cfg.Backend.Timeout = 10 * time.Second
	}
	if cfg.Backend.TrialErrorPrefix == "" {
		cfg.Backend.TrialErrorPrefix = "Пробная подписка"
	}
	if cfg.Backend.PromoErrorPrefix == "" {
		cfg.Backend.PromoErrorPrefix = "Промокод"
	}

	if cfg.Admin.Listen == "" {
		cfg.Admin.Listen = ":4040"
	}
	if cfg.Admin.RateLimit > 0 && cfg.Admin.RateBurst <= 0 {
		cfg.Admin.RateBurst = 1
	}
	if cfg.Admin.LogTailBytes == 0 {
		cfg.Admin.LogTailBytes = 1 << 20
	}

	if cfg.Cooldowns.NewOffer == 0 {
		cfg.Cooldowns.NewOffer = 18 * time.Hour
	}
	if cfg.Cooldowns.UpdateQR == 0 {
		cfg.Cooldowns.UpdateQR = 6 * time.Hour
	}
	if cfg.Cooldowns.OfferInfo == 0 {
		cfg.Cooldowns.OfferInfo = 5 * time.Minute
	}

	if cfg.Offers.TrialPlanID == "" {
		cfg.Offers.TrialPlanID = "free"
	}
	if cfg.Offers.MaxPromoLength == 0 {
		cfg.Offers.MaxPromoLength = 10
	}

	if cfg.Settings.Defaults.DefaultErrorMessage == "" {
		cfg.Settings.Defaults.DefaultErrorMessage = "Что-то пошло не так, попробуйте позже ℹ️"
	}

	if len(cfg.Devices) == 0 {
		cfg.Devices = DefaultDevices()
	}
	if cfg.Payment.ImagePath == "" {
		cfg.Payment.ImagePath = "payments/payqrcode.png"
	}
	if cfg.BotUsername == "" {
		cfg.BotUsername = "KrakenVPNbot"
	}
}

// DefaultDevices returns the built-in instruction set.
func DefaultDevices() []Device {
	const doc = "https://docs.google.com/document/d/17c6bFx-AWRTZ_2HjutzQYSUGllZ6xIAb/edit"
	return []Device{
		{Name: "Android", VideoURL: "https://t.me/vpnnnn12345/4?single", Instruction: doc + "#heading=h.30j0zll"},
		{Name: "iPhone IOS", VideoURL: "https://t.me/vpnnnn12345/3?single", Instruction: doc + "#heading=h.1fob9te"},
		{Name: "Windows", VideoURL: "https://t.me/vpnnnn12345/2?single", Instruction: doc + "#heading=h.gjdgxs"},
		{Name: "Linux", Instruction: doc + "#heading=h.gjdgxs"},
	}
}
