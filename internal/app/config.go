package app

import (
	"os"
	"strconv"
	"strings"
	"time"

	"torrentcast/internal/domain/ports"
)

// PasswordPolicy selects when the main menu's single-slot password is
// regenerated. The historic behaviors all exist in the wild, so the trigger is
// an explicit choice instead of a guess.
type PasswordPolicy string

const (
	// PasswordNever generates one password at construction and keeps it.
	PasswordNever PasswordPolicy = "never"
	// PasswordOnStart regenerates on every conversation entry.
	PasswordOnStart PasswordPolicy = "start"
	// PasswordOnFailure regenerates after every failed attempt.
	PasswordOnFailure PasswordPolicy = "failure"
)

type Config struct {
	TelegramToken   string
	TransmissionURL string

	DirTVShows string
	DirMovies  string

	MediaAddr    string // listen address of the media server
	MediaWorkers int
	AdvertiseIP  string // externally reachable IP handed to renderers; "" = per-device interface IP

	LogLevel  string
	LogFormat string

	UserDataTTL     time.Duration
	UserDataMaxSize int

	PasswordPolicy     PasswordPolicy
	AuthenticatedUsers []ports.UserID
	AdminUsers         []ports.UserID

	FFmpegPath       string
	DiscoveryTimeout time.Duration

	RateLimitRPS   float64
	RateLimitBurst int
}

func LoadConfig() Config {
	return Config{
		TelegramToken:      getEnv("TELEGRAM_TOKEN", ""),
		TransmissionURL:    getEnv("TRANSMISSION_URL", "http://127.0.0.1:9091/transmission/rpc"),
		DirTVShows:         getEnv("DIR_TV_SHOWS", "/plex/media/TV Shows"),
		DirMovies:          getEnv("DIR_MOVIES", "/plex/media/Movies"),
		MediaAddr:          getEnv("MEDIA_ADDR", ":0"),
		MediaWorkers:       int(getEnvInt64("MEDIA_WORKERS", 10)),
		AdvertiseIP:        getEnv("MEDIA_ADVERTISE_IP", ""),
		LogLevel:           strings.ToLower(getEnv("LOG_LEVEL", "info")),
		LogFormat:          strings.ToLower(getEnv("LOG_FORMAT", "text")),
		UserDataTTL:        time.Duration(getEnvInt64("USERDATA_TTL_SECONDS", 300)) * time.Second,
		UserDataMaxSize:    int(getEnvInt64("USERDATA_MAX_SIZE", 128)),
		PasswordPolicy:     parsePasswordPolicy(getEnv("BOT_PASSWORD_POLICY", string(PasswordNever))),
		AuthenticatedUsers: parseUserIDs(getEnv("AUTHENTICATED_USER_IDS", "")),
		AdminUsers:         parseUserIDs(getEnv("ADMIN_USER_IDS", "")),
		FFmpegPath:         getEnv("FFMPEG_PATH", "ffmpeg"),
		DiscoveryTimeout:   time.Duration(getEnvInt64("UPNP_DISCOVERY_TIMEOUT_SECONDS", 10)) * time.Second,
		RateLimitRPS:       getEnvFloat("MEDIA_RATE_LIMIT_RPS", 0),
		RateLimitBurst:     int(getEnvInt64("MEDIA_RATE_LIMIT_BURST", 50)),
	}
}

func parsePasswordPolicy(raw string) PasswordPolicy {
	switch PasswordPolicy(strings.ToLower(strings.TrimSpace(raw))) {
	case PasswordOnStart:
		return PasswordOnStart
	case PasswordOnFailure:
		return PasswordOnFailure
	default:
		return PasswordNever
	}
}

// parseUserIDs splits a comma-separated id list; malformed entries are dropped.
func parseUserIDs(raw string) []ports.UserID {
	var ids []ports.UserID
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, err := strconv.ParseInt(part, 10, 64)
		if err != nil {
			continue
		}
		ids = append(ids, ports.UserID(id))
	}
	return ids
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getEnvInt64(key string, fallback int64) int64 {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return fallback
	}
	if parsed < 0 {
		return fallback
	}
	return parsed
}

func getEnvFloat(key string, fallback float64) float64 {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil || parsed < 0 {
		return fallback
	}
	return parsed
}
