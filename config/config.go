// Package config loads the bot's config_rs.json (or .yaml/.toml
// equivalent) via viper, the same merge-by-SetConfigFile idiom the
// teacher's service config used, adapted to this bot's own key layout.
package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// MySQLConfig points at the queue/gateway database.
type MySQLConfig struct {
	Host   string `mapstructure:"host"`
	Port   int    `mapstructure:"port"`
	Schema string `mapstructure:"schema"`
	User   string `mapstructure:"user"`
	Pass   string `mapstructure:"pass"`
}

func (c MySQLConfig) withDefaults() MySQLConfig {
	if c.Port == 0 {
		c.Port = 3306
	}
	return c
}

// DSN builds the gorm mysql driver DSN for this connection.
func (c MySQLConfig) DSN() string {
	c = c.withDefaults()
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=utf8mb4&parseTime=true&loc=Local",
		c.User, c.Pass, c.Host, c.Port, c.Schema)
}

// SiteConfig is one wiki's API endpoint, keyed by short site name
// ("wikidata", "commons", ...) under config.sites.
type SiteConfig struct {
	API string `mapstructure:"api"`
}

// BotConfig is the `config` sub-object of config_rs.json: which site to
// default to, the per-site endpoint table, and the legacy INI credential
// fallback path.
type BotConfig struct {
	Site          string                `mapstructure:"site"`
	Sites         map[string]SiteConfig `mapstructure:"sites"`
	BotConfigFile string                `mapstructure:"bot_config_file"`
}

// Config is the full decoded shape of config_rs.json.
type Config struct {
	MySQL       MySQLConfig `mapstructure:"mysql"`
	ConfigFile  string      `mapstructure:"config_file"`
	Bot         BotConfig   `mapstructure:"config"`
	EditDelayMs int64       `mapstructure:"edit_delay_ms"`
	SetMaxlag   int64       `mapstructure:"set_maxlag"`
}

func (c Config) withDefaults() Config {
	if c.EditDelayMs == 0 {
		c.EditDelayMs = 1000
	}
	if c.SetMaxlag == 0 {
		c.SetMaxlag = 5
	}
	c.MySQL = c.MySQL.withDefaults()
	return c
}

// EditDelay returns edit_delay_ms as a time.Duration.
func (c Config) EditDelay() time.Duration {
	return time.Duration(c.EditDelayMs) * time.Millisecond
}

// SiteAPI returns the API URL for the given site key, or the configured
// default site if key is empty.
func (c Config) SiteAPI(site string) (string, error) {
	if site == "" {
		site = c.Bot.Site
	}
	sc, ok := c.Bot.Sites[site]
	if !ok || sc.API == "" {
		return "", fmt.Errorf("config: no api url configured for site %q", site)
	}
	return sc.API, nil
}

// Load reads path (config_rs.json, or any format viper supports by
// extension) into a Config, merging in the secondary config_file if one
// is named, and applying QS_-prefixed environment variable overrides.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetEnvPrefix("QS")
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return Config{}, fmt.Errorf("config: read %s: %w", path, err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("config: decode %s: %w", path, err)
	}

	if cfg.ConfigFile != "" {
		sub := viper.New()
		sub.SetConfigFile(cfg.ConfigFile)
		if err := sub.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("config: read secondary config %s: %w", cfg.ConfigFile, err)
		}
		var bot BotConfig
		if err := sub.Unmarshal(&bot); err != nil {
			return Config{}, fmt.Errorf("config: decode secondary config %s: %w", cfg.ConfigFile, err)
		}
		cfg.Bot = bot
	}

	return cfg.withDefaults(), nil
}
