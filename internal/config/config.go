package config // package config loads application configuration from environment variables

import (
	"log"     // log is used to report configuration errors and halt execution
	"os"      // os provides access to environment variables
	"strconv" // strconv converts strings to other types
	"time"    // time is used for TTL durations
)

// Config holds all runtime configuration values. Each field corresponds to
// an environment variable. The types reflect how the values are used in the
// application: strings for identifiers and secrets, durations for cache and
// token lifetimes.
type Config struct {
	Env              string        // application environment (e.g. "dev", "prod")
	Port             string        // HTTP port to listen on
	AppName          string        // application name reported on the root endpoint
	AppVersion       string        // application version reported on the root endpoint
	DBUser           string        // database username
	DBPass           string        // database password (optional)
	DBHost           string        // database host address
	DBPort           string        // database port number
	DBName           string        // database name
	JWTSecret        string        // secret used to sign access tokens (min 32 chars)
	AdminSecret      string        // shared secret guarding admin endpoints (min 24 chars)
	AccessTTLMin     int           // access token time-to-live in minutes
	UserCacheTTL     time.Duration // lifetime of cached user projections
	DashboardTTL     time.Duration // lifetime of cached dashboard projections
	TxHintTTL        time.Duration // lifetime of duplicate pre-check hint keys
	EnforceSignature bool          // whether the signed-request protocol is enforced on ingest
}

// Load reads configuration values from environment variables and returns a
// Config. Required variables are enforced by must() and missing or invalid
// values cause the program to exit with a fatal log message. Secrets get a
// minimum-length check so a weak deployment fails at startup rather than at
// the first forged request.
func Load() Config {
	cfg := Config{
		Env:              getenv("APP_ENV", "dev"),
		Port:             getenv("APP_PORT", "8000"),
		AppName:          getenv("APP_NAME", "Paylite Payment Gateway"),
		AppVersion:       getenv("APP_VERSION", "1.0.0"),
		DBUser:           must("DB_USER"),
		DBPass:           os.Getenv("DB_PASS"), // empty allowed
		DBHost:           must("DB_HOST"),
		DBPort:           must("DB_PORT"),
		DBName:           must("DB_NAME"),
		JWTSecret:        must("JWT_SECRET"),
		AdminSecret:      must("ADMIN_SECRET"),
		AccessTTLMin:     envInt("ACCESS_TOKEN_TTL_MIN", 1440),
		UserCacheTTL:     envSeconds("USER_CACHE_TTL_SEC", 300),
		DashboardTTL:     envSeconds("DASHBOARD_CACHE_TTL_SEC", 10),
		TxHintTTL:        envSeconds("TX_HINT_TTL_SEC", 900),
		EnforceSignature: envBool("ENFORCE_SIGNATURE", false),
	}
	if len(cfg.JWTSecret) < 32 {
		log.Fatal("JWT_SECRET must be at least 32 characters")
	}
	if len(cfg.AdminSecret) < 24 {
		log.Fatal("ADMIN_SECRET must be at least 24 characters")
	}
	return cfg
}

// must retrieves the value of a required environment variable. If the
// variable is unset or empty, the application logs a fatal error and exits.
func must(key string) string {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		log.Fatalf("missing required env var: %s", key)
	}
	return v
}

// getenv returns the value of an environment variable or a default when it
// is unset or empty.
func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		log.Fatalf("invalid int for %s: %q", key, v)
	}
	return n
}

func envSeconds(key string, def int) time.Duration {
	return time.Duration(envInt(key, def)) * time.Second
}

func envBool(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	switch v {
	case "1", "true", "TRUE", "True", "yes", "YES", "on", "ON":
		return true
	case "0", "false", "FALSE", "False", "no", "NO", "off", "OFF":
		return false
	}
	return def
}
