/*
Package config builds the process-wide settings struct once at
startup from environment variables, replacing the original
system's merged settings blob (spec §9) with an explicit, typed value
threaded through constructors instead of read from globals.
*/
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config is the full set of tunables named in spec §6.
type Config struct {
	ListenAddr string

	DatabaseDSN string
	RedisAddr   string
	RedisDB     int

	VoidWindow           time.Duration
	QRTokenTTL           time.Duration
	QRTokenEntropyBytes  int
	MaxDailyClaimsPerOffer int64
	VelocityLimit        int64
	VelocityWindow       time.Duration
	DailyLimit           int64
	LocalTimezone        string

	// AllowFakeAuth must be explicitly opted into; it lets serve wire
	// auth.Fake (bearer tokens of the literal form "<role>:<user_id>")
	// in place of a real identity verifier. Defaults closed.
	AllowFakeAuth bool
}

// Default returns the defaults enumerated in spec §6.
func Default() Config {
	return Config{
		ListenAddr:             ":8080",
		DatabaseDSN:            "sqlite://redemption.db",
		RedisAddr:              "127.0.0.1:6379",
		RedisDB:                0,
		VoidWindow:             2 * time.Hour,
		QRTokenTTL:             30 * time.Second,
		QRTokenEntropyBytes:    24,
		MaxDailyClaimsPerOffer: 1,
		VelocityLimit:          10,
		VelocityWindow:         60 * time.Second,
		DailyLimit:             150,
		LocalTimezone:          "Asia/Dubai",
		AllowFakeAuth:          false,
	}
}

// FromEnv overlays environment variables onto the defaults. Unset
// variables leave the default untouched; malformed ones are reported.
func FromEnv() (Config, error) {
	c := Default()

	if v, ok := os.LookupEnv("REDEMPTION_LISTEN_ADDR"); ok {
		c.ListenAddr = v
	}
	if v, ok := os.LookupEnv("REDEMPTION_DATABASE_DSN"); ok {
		c.DatabaseDSN = v
	}
	if v, ok := os.LookupEnv("REDEMPTION_REDIS_ADDR"); ok {
		c.RedisAddr = v
	}
	if v, ok := os.LookupEnv("REDEMPTION_REDIS_DB"); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return Config{}, fmt.Errorf("config: REDEMPTION_REDIS_DB: %w", err)
		}
		c.RedisDB = n
	}
	if v, ok := os.LookupEnv("REDEMPTION_VOID_WINDOW_HOURS"); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return Config{}, fmt.Errorf("config: REDEMPTION_VOID_WINDOW_HOURS: %w", err)
		}
		c.VoidWindow = time.Duration(n) * time.Hour
	}
	if v, ok := os.LookupEnv("REDEMPTION_QR_TOKEN_TTL_SECONDS"); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return Config{}, fmt.Errorf("config: REDEMPTION_QR_TOKEN_TTL_SECONDS: %w", err)
		}
		c.QRTokenTTL = time.Duration(n) * time.Second
	}
	if v, ok := os.LookupEnv("REDEMPTION_QR_TOKEN_ENTROPY_BYTES"); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return Config{}, fmt.Errorf("config: REDEMPTION_QR_TOKEN_ENTROPY_BYTES: %w", err)
		}
		c.QRTokenEntropyBytes = n
	}
	if v, ok := os.LookupEnv("REDEMPTION_MAX_DAILY_CLAIMS_PER_OFFER"); ok {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return Config{}, fmt.Errorf("config: REDEMPTION_MAX_DAILY_CLAIMS_PER_OFFER: %w", err)
		}
		c.MaxDailyClaimsPerOffer = n
	}
	if v, ok := os.LookupEnv("REDEMPTION_VELOCITY_LIMIT"); ok {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return Config{}, fmt.Errorf("config: REDEMPTION_VELOCITY_LIMIT: %w", err)
		}
		c.VelocityLimit = n
	}
	if v, ok := os.LookupEnv("REDEMPTION_VELOCITY_WINDOW_SECONDS"); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return Config{}, fmt.Errorf("config: REDEMPTION_VELOCITY_WINDOW_SECONDS: %w", err)
		}
		c.VelocityWindow = time.Duration(n) * time.Second
	}
	if v, ok := os.LookupEnv("REDEMPTION_DAILY_LIMIT"); ok {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return Config{}, fmt.Errorf("config: REDEMPTION_DAILY_LIMIT: %w", err)
		}
		c.DailyLimit = n
	}
	if v, ok := os.LookupEnv("REDEMPTION_LOCAL_TIMEZONE"); ok {
		c.LocalTimezone = v
	}
	if v, ok := os.LookupEnv("REDEMPTION_ALLOW_FAKE_AUTH"); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return Config{}, fmt.Errorf("config: REDEMPTION_ALLOW_FAKE_AUTH: %w", err)
		}
		c.AllowFakeAuth = b
	}
	return c, nil
}

// Location loads the configured IANA timezone.
func (c Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.LocalTimezone)
	if err != nil {
		return nil, fmt.Errorf("config: local_timezone %q: %w", c.LocalTimezone, err)
	}
	return loc, nil
}
