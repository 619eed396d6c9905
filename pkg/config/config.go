// Package config loads runtime settings from the environment. A .env
// file in the working directory is applied first, so a den can be
// configured without touching the shell.
package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"

	"github.com/InvictusNavarchus/snakegame-coop/pkg/discovery"
	"github.com/InvictusNavarchus/snakegame-coop/pkg/game"
)

// Config carries everything the process needs to run either side of a
// session. Every field has a working default; SNAKE_* environment
// variables override them and malformed values fall back silently.
type Config struct {
	ListenAddr string
	StaticDir  string
	LogFile    string
	Debug      bool

	GridWidth          int
	GridHeight         int
	FoodCount          int
	InitialSnakeLength int
	MaxPlayers         int
	TickInterval       time.Duration

	AnnounceName   string
	MulticastGroup string
}

// Load reads the optional .env file and then the environment.
func Load() Config {
	_ = godotenv.Load() // a missing .env just means env-only config

	return Config{
		ListenAddr: envStr("SNAKE_LISTEN_ADDR", ":8080"),
		StaticDir:  envStr("SNAKE_STATIC_DIR", ""),
		LogFile:    envStr("SNAKE_LOG_FILE", "snakegame.log"),
		Debug:      envBool("SNAKE_DEBUG", false),

		GridWidth:          envInt("SNAKE_GRID_WIDTH", game.DefaultGridWidth),
		GridHeight:         envInt("SNAKE_GRID_HEIGHT", game.DefaultGridHeight),
		FoodCount:          envInt("SNAKE_FOOD_COUNT", game.DefaultFoodCount),
		InitialSnakeLength: envInt("SNAKE_SNAKE_LENGTH", game.DefaultSnakeLength),
		MaxPlayers:         envInt("SNAKE_MAX_PLAYERS", game.DefaultMaxPlayers),
		TickInterval:       envDur("SNAKE_TICK_INTERVAL", game.DefaultTickInterval),

		AnnounceName:   envStr("SNAKE_ANNOUNCE_NAME", defaultAnnounceName()),
		MulticastGroup: envStr("SNAKE_MULTICAST_GROUP", discovery.DefaultGroup),
	}
}

// Settings maps the match fields onto engine settings.
func (c Config) Settings() game.Settings {
	return game.Settings{
		GridWidth:          c.GridWidth,
		GridHeight:         c.GridHeight,
		FoodCount:          c.FoodCount,
		InitialSnakeLength: c.InitialSnakeLength,
		MaxPlayers:         c.MaxPlayers,
		TickInterval:       c.TickInterval,
	}
}

func defaultAnnounceName() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		return "snake den"
	}
	return "snakes @ " + host
}

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func envBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}

func envDur(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}
