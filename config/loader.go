package config

import (
	"encoding/json"
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"
)

// envVarPattern matches ${VAR_NAME} or ${VAR_NAME:-default} syntax
var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(?::-([^}]*))?\}`)

// fileConfig is the on-disk JSON form. Pointer fields distinguish "unset"
// from zero values; durations are Go duration strings ("10s").
type fileConfig struct {
	RecursionLevel  *int     `json:"recursion_level"`
	Threads         *int     `json:"threads"`
	InternPatterns  []string `json:"intern_patterns"`
	Timeout         string   `json:"timeout"`
	Proxy           string   `json:"proxy"`
	UserAgent       string   `json:"user_agent"`
	MaxBodySize     *int64   `json:"max_body_size"`
	RateLimit       *int     `json:"rate_limit"`
	AdaptiveRate    *bool    `json:"adaptive_rate"`
	TargetRTT       string   `json:"target_rtt"`
	Retries         *int     `json:"retries"`
	RetryBaseDelay  string   `json:"retry_base_delay"`
	RetryMaxDelay   string   `json:"retry_max_delay"`
	RespectRobots   *bool    `json:"respect_robots"`
	CheckMX         *bool    `json:"check_mx"`
	VisitedStore    string   `json:"visited_store"`
	VisitedFile     string   `json:"visited_file"`
	VisitedCapacity *uint    `json:"visited_capacity"`
	MemoryLimitMB   *int64   `json:"memory_limit_mb"`
	Verbose         *bool    `json:"verbose"`
	Debug           *bool    `json:"debug"`
}

// LoadFile loads configuration from a JSON file, merged over Default().
// Supports environment variable substitution using ${VAR_NAME} syntax.
// Optional default values can be specified with ${VAR_NAME:-default}.
func LoadFile(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config file %s: %w", path, err)
	}
	return Parse(data)
}

// Parse decodes JSON configuration merged over Default().
func Parse(data []byte) (Config, error) {
	expanded, err := substituteEnvVars(string(data))
	if err != nil {
		return Config{}, fmt.Errorf("environment variable substitution: %w", err)
	}

	var fc fileConfig
	if err := json.Unmarshal([]byte(expanded), &fc); err != nil {
		return Config{}, fmt.Errorf("invalid JSON config: %w", err)
	}

	cfg := Default()
	if err := fc.mergeInto(&cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (fc fileConfig) mergeInto(cfg *Config) error {
	setInt(&cfg.RecursionLevel, fc.RecursionLevel)
	setInt(&cfg.Threads, fc.Threads)
	setInt(&cfg.RateLimit, fc.RateLimit)
	setInt(&cfg.Retries, fc.Retries)
	if fc.InternPatterns != nil {
		cfg.InternPatterns = fc.InternPatterns
	}
	if fc.Proxy != "" {
		cfg.Proxy = fc.Proxy
	}
	if fc.UserAgent != "" {
		cfg.UserAgent = fc.UserAgent
	}
	if fc.MaxBodySize != nil {
		cfg.MaxBodySize = *fc.MaxBodySize
	}
	if fc.VisitedStore != "" {
		cfg.VisitedStore = fc.VisitedStore
	}
	if fc.VisitedFile != "" {
		cfg.VisitedFile = fc.VisitedFile
	}
	if fc.VisitedCapacity != nil {
		cfg.VisitedCapacity = *fc.VisitedCapacity
	}
	if fc.MemoryLimitMB != nil {
		cfg.MemoryLimitMB = *fc.MemoryLimitMB
	}
	setBool(&cfg.AdaptiveRate, fc.AdaptiveRate)
	setBool(&cfg.RespectRobots, fc.RespectRobots)
	setBool(&cfg.CheckMX, fc.CheckMX)
	setBool(&cfg.Verbose, fc.Verbose)
	setBool(&cfg.Debug, fc.Debug)

	durations := []struct {
		name string
		raw  string
		dst  *time.Duration
	}{
		{"timeout", fc.Timeout, &cfg.Timeout},
		{"target_rtt", fc.TargetRTT, &cfg.TargetRTT},
		{"retry_base_delay", fc.RetryBaseDelay, &cfg.RetryBaseDelay},
		{"retry_max_delay", fc.RetryMaxDelay, &cfg.RetryMaxDelay},
	}
	for _, d := range durations {
		if d.raw == "" {
			continue
		}
		parsed, err := time.ParseDuration(d.raw)
		if err != nil {
			return fmt.Errorf("parse %s %q: %w", d.name, d.raw, err)
		}
		*d.dst = parsed
	}
	return nil
}

func setInt(dst *int, src *int) {
	if src != nil {
		*dst = *src
	}
}

func setBool(dst *bool, src *bool) {
	if src != nil {
		*dst = *src
	}
}

// substituteEnvVars replaces ${VAR_NAME} patterns with environment variable values.
// Returns an error if a required env var (no default) is not set.
// ${VAR:-} with an empty default means "use empty string if VAR is unset".
func substituteEnvVars(content string) (string, error) {
	var missingVars []string

	result := envVarPattern.ReplaceAllStringFunc(content, func(match string) string {
		submatches := envVarPattern.FindStringSubmatch(match)
		if len(submatches) < 2 {
			return match
		}

		varName := submatches[1]
		hasDefault := strings.Contains(match, ":-")
		defaultValue := ""
		if hasDefault && len(submatches) > 2 {
			defaultValue = submatches[2]
		}

		// LookupEnv distinguishes unset from empty
		value, isSet := os.LookupEnv(varName)
		if !isSet {
			if hasDefault {
				return defaultValue
			}
			missingVars = append(missingVars, varName)
			return match
		}
		return value
	})

	if len(missingVars) > 0 {
		return "", fmt.Errorf("missing required environment variables: %v", missingVars)
	}

	return result, nil
}
