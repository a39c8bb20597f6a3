package app

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

// ApplyEnvOverrides overrides cfg fields with environment variables that are
// set. Call it after ApplyFileConfig and before applying flags so that flags
// stay highest precedence.
func ApplyEnvOverrides(cfg *Config) {
	if cfg == nil {
		return
	}
	var env Config
	env.RegistryPath = os.Getenv("CATALOG_REGISTRY")
	env.OutputDir = os.Getenv("CATALOG_OUTPUT_DIR")
	env.SourceMode = os.Getenv("CATALOG_SOURCE")
	env.SourceDir = os.Getenv("CATALOG_SOURCE_DIR")
	env.GitHubRawURL = os.Getenv("GITHUB_RAW_URL")
	env.GitHubToken = os.Getenv("GITHUB_TOKEN")
	env.CacheDir = os.Getenv("CACHE_DIR")
	env.MetricsFile = os.Getenv("METRICS_FILE")
	env.CacheMaxAge = envDuration("CACHE_MAX_AGE")
	env.FetchTimeout = envDuration("FETCH_TIMEOUT")
	env.FetchAttempts = envInt("FETCH_ATTEMPTS")
	env.MaxConcurrent = envInt("MAX_CONCURRENT")
	env.ProjectWorkers = envInt("PROJECT_WORKERS")
	env.AttributeWorkers = envInt("ATTRIBUTE_WORKERS")
	if v := strings.TrimSpace(os.Getenv("RENDER_EXTENSIONS")); v != "" {
		for _, name := range strings.Split(v, ",") {
			if name = strings.TrimSpace(name); name != "" {
				env.RenderExtensions = append(env.RenderExtensions, name)
			}
		}
	}
	Overlay(cfg, env)

	// Booleans override in both directions when the variable is present.
	setBool := func(dst *bool, key string) {
		switch strings.ToLower(strings.TrimSpace(os.Getenv(key))) {
		case "1", "true", "yes", "on":
			*dst = true
		case "0", "false", "no", "off":
			*dst = false
		}
	}
	setBool(&cfg.CacheClear, "CACHE_CLEAR")
	setBool(&cfg.Strict, "STRICT")
	setBool(&cfg.Verbose, "VERBOSE")
	setBool(&cfg.NoRevalidate, "CACHE_NO_REVALIDATE")
	setBool(&cfg.RenderHardWraps, "RENDER_HARD_WRAPS")
}

func envDuration(key string) time.Duration {
	s := strings.TrimSpace(os.Getenv(key))
	if s == "" {
		return 0
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		log.Warn().Str("env", key).Str("value", s).Msg("ignoring invalid duration")
		return 0
	}
	return d
}

func envInt(key string) int {
	s := strings.TrimSpace(os.Getenv(key))
	if s == "" {
		return 0
	}
	n, err := strconv.Atoi(s)
	if err != nil || n <= 0 {
		log.Warn().Str("env", key).Str("value", s).Msg("ignoring invalid count")
		return 0
	}
	return n
}
