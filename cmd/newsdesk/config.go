package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"

	"github.com/nkiryanov/newsdesk/internal/logger"
)

const (
	defaultListenAddr            = "localhost:8000"
	defaultLoggingLevel          = logger.LevelInfo
	defaultEnvironment           = logger.EnvProduction
	defaultKVPath                = "newsdesk.db"
	defaultDeeplinkScheme        = "newsdesk"
	defaultSignedURLTTL          = time.Hour
	defaultPasswordUpdateTimeout = 15 * time.Second
	defaultOrphanCleanupInterval = time.Hour
	defaultOrphanGrace           = 24 * time.Hour
)

type Config struct {
	// Default logging level
	LogLevel string

	// Address on which the api for the UI shell will be run
	ListenAddr string

	// Database to connect to
	DatabaseDSN string

	// Device local key value store (sqlite file)
	KVPath string

	// Secret key
	// Recovery credentials are sealed at rest with the key derived from it
	SecretKey string

	// Environment
	Environment string

	// Auth provider (GoTrue compatible) base url and anon key
	AuthURL    string
	AuthAPIKey string

	// Secret to verify access tokens. Tokens are decoded without verification when empty
	JWTSecret string

	// S3 compatible object storage. Storage is disabled without credentials
	S3Endpoint       string
	S3Region         string
	S3AccessKey      string
	S3SecretKey      string
	PublicStorageURL string

	// E-paper files are served by plain public url instead of signed one
	EpaperPublicBucket bool
	SignedURLTTL       time.Duration

	// Scheme of the app links: <scheme>://reset-password, <scheme>://news/<id>
	DeeplinkScheme string

	// Where password recovery email links lead
	ResetRedirectURL string

	// URI the app was opened with
	OpenURL string

	PasswordUpdateTimeout time.Duration

	OrphanCleanupInterval time.Duration
	OrphanGrace           time.Duration
}

func NewConfig() *Config {
	return &Config{
		LogLevel:              defaultLoggingLevel,
		ListenAddr:            defaultListenAddr,
		Environment:           defaultEnvironment,
		KVPath:                defaultKVPath,
		DeeplinkScheme:        defaultDeeplinkScheme,
		SignedURLTTL:          defaultSignedURLTTL,
		PasswordUpdateTimeout: defaultPasswordUpdateTimeout,
		OrphanCleanupInterval: defaultOrphanCleanupInterval,
		OrphanGrace:           defaultOrphanGrace,
	}
}

// Load variable from '.env' file (should be located at working directory)
func (c *Config) LoadDotEnv(getwd func() (string, error)) error {
	wd, err := getwd()
	if err != nil {
		return err
	}

	envMap, err := godotenv.Read(filepath.Join(wd, ".env"))

	switch {
	case err == nil:
		return c.LoadEnv(func(key string) string {
			return envMap[key]
		})
	case errors.Is(err, os.ErrNotExist):
		return nil
	default:
		return err
	}
}

func (c *Config) LoadEnv(getenv func(string) string) error {
	// Set option to value if it not empty
	setString := func(o *string) func(value string) error {
		return func(value string) error {
			if value != "" {
				*o = value
			}
			return nil
		}
	}
	setDuration := func(o *time.Duration) func(value string) error {
		return func(value string) error {
			if value == "" {
				return nil
			}
			d, err := time.ParseDuration(value)
			if err != nil {
				return err
			}
			*o = d
			return nil
		}
	}
	setBool := func(o *bool) func(value string) error {
		return func(value string) error {
			if value == "" {
				return nil
			}
			b, err := strconv.ParseBool(value)
			if err != nil {
				return err
			}
			*o = b
			return nil
		}
	}

	envMap := map[string]func(string) error{
		"RUN_ADDRESS":             setString(&c.ListenAddr),
		"DATABASE_URI":            setString(&c.DatabaseDSN),
		"KV_PATH":                 setString(&c.KVPath),
		"SECRET_KEY":              setString(&c.SecretKey),
		"LOG_LEVEL":               setString(&c.LogLevel),
		"ENVIRONMENT":             setString(&c.Environment),
		"AUTH_URL":                setString(&c.AuthURL),
		"AUTH_API_KEY":            setString(&c.AuthAPIKey),
		"JWT_SECRET":              setString(&c.JWTSecret),
		"S3_ENDPOINT":             setString(&c.S3Endpoint),
		"S3_REGION":               setString(&c.S3Region),
		"S3_ACCESS_KEY":           setString(&c.S3AccessKey),
		"S3_SECRET_KEY":           setString(&c.S3SecretKey),
		"PUBLIC_STORAGE_URL":      setString(&c.PublicStorageURL),
		"EPAPER_PUBLIC_BUCKET":    setBool(&c.EpaperPublicBucket),
		"SIGNED_URL_TTL":          setDuration(&c.SignedURLTTL),
		"DEEPLINK_SCHEME":         setString(&c.DeeplinkScheme),
		"RESET_REDIRECT_URL":      setString(&c.ResetRedirectURL),
		"OPEN_URL":                setString(&c.OpenURL),
		"PASSWORD_UPDATE_TIMEOUT": setDuration(&c.PasswordUpdateTimeout),
		"ORPHAN_CLEANUP_INTERVAL": setDuration(&c.OrphanCleanupInterval),
		"ORPHAN_GRACE":            setDuration(&c.OrphanGrace),
	}

	for key, parseFn := range envMap {
		if err := parseFn(getenv(key)); err != nil {
			return fmt.Errorf("invalid %s: %w", key, err)
		}
	}

	return nil
}

func (c *Config) ParseFlags(args []string) error {
	fs := pflag.NewFlagSet("newsdesk", pflag.ContinueOnError)

	fs.StringVarP(&c.ListenAddr, "address", "a", c.ListenAddr, "Server listen address")
	fs.StringVarP(&c.DatabaseDSN, "database", "d", c.DatabaseDSN, "Database connection string")
	fs.StringVarP(&c.KVPath, "kv-path", "k", c.KVPath, "Local key value store path")
	fs.StringVarP(&c.SecretKey, "secret-key", "s", c.SecretKey, "Secret key")
	fs.StringVarP(&c.LogLevel, "log-level", "l", c.LogLevel, "Logging level (debug, info, warn, error)")
	fs.StringVarP(&c.Environment, "environment", "e", c.Environment, "Environment (dev, prod)")
	fs.StringVar(&c.AuthURL, "auth-url", c.AuthURL, "Auth provider base url")
	fs.StringVar(&c.AuthAPIKey, "auth-api-key", c.AuthAPIKey, "Auth provider api key")
	fs.StringVar(&c.JWTSecret, "jwt-secret", c.JWTSecret, "Secret to verify access tokens")
	fs.StringVar(&c.S3Endpoint, "s3-endpoint", c.S3Endpoint, "Object storage endpoint")
	fs.StringVar(&c.S3Region, "s3-region", c.S3Region, "Object storage region")
	fs.StringVar(&c.S3AccessKey, "s3-access-key", c.S3AccessKey, "Object storage access key")
	fs.StringVar(&c.S3SecretKey, "s3-secret-key", c.S3SecretKey, "Object storage secret key")
	fs.StringVar(&c.PublicStorageURL, "public-storage-url", c.PublicStorageURL, "Base of public object urls")
	fs.BoolVar(&c.EpaperPublicBucket, "epaper-public-bucket", c.EpaperPublicBucket, "Serve e-papers by public url")
	fs.DurationVar(&c.SignedURLTTL, "signed-url-ttl", c.SignedURLTTL, "Signed url lifetime")
	fs.StringVar(&c.DeeplinkScheme, "deeplink-scheme", c.DeeplinkScheme, "App link scheme")
	fs.StringVar(&c.ResetRedirectURL, "reset-redirect-url", c.ResetRedirectURL, "Password recovery redirect url")
	fs.StringVarP(&c.OpenURL, "open-url", "o", c.OpenURL, "URI the app was opened with")
	fs.DurationVar(&c.PasswordUpdateTimeout, "password-update-timeout", c.PasswordUpdateTimeout, "Password update timeout")
	fs.DurationVar(&c.OrphanCleanupInterval, "orphan-cleanup-interval", c.OrphanCleanupInterval, "How often orphan media is removed")
	fs.DurationVar(&c.OrphanGrace, "orphan-grace", c.OrphanGrace, "Orphan media younger than this is kept")

	return fs.Parse(args)
}
