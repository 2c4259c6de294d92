package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/commonshub/hubdoor/internal/hubdoor/access"
)

type DiscordConfig struct {
	Disabled          bool
	Token             string
	GuildID           string
	ChannelID         string
	PresentRoleID     string
	FunFactsChannelID string
}

type Config struct {
	HTTPAddr string
	LogLevel string

	// DB
	Env    string // "dev" | "prod"
	DBPath string // e.g. "./data/hubdoor.db"

	DataDir    string
	AccessFile string
	TZ         string
	Location   *time.Location

	// Secret authenticates /token and /audit, keys the day and shortcut
	// tokens and enables the signed-link bypass. Empty disables all of them.
	Secret     string
	PrivateKey string

	Discord             DiscordConfig
	WalletCommunityFile string

	ShortcutEnforceSchedule bool
	DryRun                  bool

	RefreshIntervalMinutes  int
	HeartbeatRetentionHours int // 0 = keep forever
	PruneIntervalMinutes    int

	Access AccessFile
}

func FromEnv() Config {
	env := strings.ToLower(getenvDefault("HUBDOOR_ENV", "dev"))
	if env != "dev" && env != "prod" {
		// fail-soft: treat unknown as dev
		env = "dev"
	}

	dataDir := getenvDefault("HUBDOOR_DATA_DIR", "./data")

	return Config{
		HTTPAddr: getenvDefault("HUBDOOR_HTTP_ADDR", ":3000"),
		LogLevel: strings.ToLower(getenvDefault("HUBDOOR_LOG_LEVEL", "info")),
		Env:      env,
		DBPath:   getenvDefault("HUBDOOR_DB_PATH", filepath.Join(dataDir, "hubdoor.db")),

		DataDir:    dataDir,
		AccessFile: getenvDefault("HUBDOOR_ACCESS_FILE", "./access.yaml"),
		TZ:         getenvDefault("HUBDOOR_TZ", "Europe/Brussels"),

		Secret:     os.Getenv("HUBDOOR_SECRET"),
		PrivateKey: os.Getenv("HUBDOOR_PRIVATE_KEY"),

		Discord: DiscordConfig{
			Disabled:          getenvBool("HUBDOOR_DISCORD_DISABLED"),
			Token:             os.Getenv("HUBDOOR_DISCORD_TOKEN"),
			GuildID:           os.Getenv("HUBDOOR_DISCORD_GUILD_ID"),
			ChannelID:         os.Getenv("HUBDOOR_DISCORD_CHANNEL_ID"),
			PresentRoleID:     os.Getenv("HUBDOOR_DISCORD_PRESENT_ROLE_ID"),
			FunFactsChannelID: os.Getenv("HUBDOOR_DISCORD_FUNFACTS_CHANNEL_ID"),
		},
		WalletCommunityFile: os.Getenv("HUBDOOR_WALLET_COMMUNITY_FILE"),

		ShortcutEnforceSchedule: getenvBool("HUBDOOR_SHORTCUT_ENFORCE_SCHEDULE"),
		DryRun:                  getenvBool("HUBDOOR_DRY_RUN"),

		RefreshIntervalMinutes:  getenvInt("HUBDOOR_REFRESH_INTERVAL_MINUTES", 60),
		HeartbeatRetentionHours: getenvInt("HUBDOOR_HEARTBEAT_RETENTION_HOURS", 24),
		PruneIntervalMinutes:    getenvInt("HUBDOOR_PRUNE_INTERVAL_MINUTES", 60),
	}
}

// Load reads the environment and the access file and validates both. Any
// error is fatal for the server.
func Load() (Config, error) {
	cfg := FromEnv()

	af, err := LoadAccessFile(cfg.AccessFile)
	if err != nil {
		return Config{}, configError(err)
	}
	cfg.Access = af

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks required settings and resolves Location.
func (c *Config) Validate() error {
	var errs []error

	if !c.Discord.Disabled {
		if c.Discord.Token == "" {
			errs = append(errs, errors.New("HUBDOOR_DISCORD_TOKEN is required (or set HUBDOOR_DISCORD_DISABLED=true)"))
		}
		if c.Discord.GuildID == "" {
			errs = append(errs, errors.New("HUBDOOR_DISCORD_GUILD_ID is required (or set HUBDOOR_DISCORD_DISABLED=true)"))
		}
	}

	loc, err := time.LoadLocation(c.TZ)
	if err != nil {
		errs = append(errs, fmt.Errorf("HUBDOOR_TZ: %w", err))
	} else {
		c.Location = loc
	}

	if _, err := c.Access.AccessRoles(); err != nil {
		errs = append(errs, err)
	}

	if err := errors.Join(errs...); err != nil {
		return configError(err)
	}
	return nil
}

// TenantID keys the daily tokens. It is the guild id, so tokens stay the
// same when the bot is disabled for maintenance.
func (c Config) TenantID() string {
	if c.Discord.GuildID != "" {
		return c.Discord.GuildID
	}
	return "hubdoor"
}

func (c Config) KeyPath() string { return filepath.Join(c.DataDir, ".privateKey") }

func configError(err error) error {
	return &access.Error{Kind: access.KindConfig, Reason: "invalid configuration", Err: err}
}

func getenvDefault(key, def string) string {
	v := os.Getenv(key)
	if strings.TrimSpace(v) == "" {
		return def
	}
	return v
}

func getenvInt(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return def
	}
	return n
}

func getenvBool(key string) bool {
	v := strings.TrimSpace(os.Getenv(key))
	return strings.EqualFold(v, "true") || v == "1"
}
