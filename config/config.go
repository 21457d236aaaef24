package config

import (
	"crypto/rand"
	"encoding/hex"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Config holds all configuration settings for the application.
type Config struct {
	// Server settings
	ListenAddress string
	ListenPort    string

	// Store settings
	DataFilePath  string
	UsersFilePath string
	UploadsDir    string
	EnableBackup  bool

	// Static client
	PublicDir string

	// Authentication settings
	JwtSecret     string // The actual secret key
	JwtSecretFile string // Path to the file containing the secret
	TokenLifetime time.Duration
}

const (
	defaultAddress       = "0.0.0.0"
	defaultPort          = "3000"
	defaultDataFile      = "./data.json"  // Relative to working dir
	defaultUsersFile     = "./users.json" // Relative to working dir
	defaultUploadsDir    = "./uploads"
	defaultPublicDir     = "./public"
	defaultEnableBackup  = true
	defaultJwtSecretFile = ""           // No default file
	defaultJwtKeyFile    = "./data.key" // Default file if we generate a key
	defaultTokenLifetime = 12 * time.Hour
)

// LoadConfig loads configuration from defaults, environment variables, and
// command-line flags. Flags take precedence over environment variables, which
// take precedence over defaults.
func LoadConfig() (*Config, error) {
	return loadConfig(os.Args[1:])
}

// loadConfig does the actual work on an explicit argument list so tests can
// drive it without touching the process-wide flag set.
func loadConfig(args []string) (*Config, error) {
	cfg := &Config{}
	fs := flag.NewFlagSet("kecantiere", flag.ContinueOnError)

	// Use KECANTIERE_ prefix for environment variables to avoid conflicts
	fs.StringVar(&cfg.ListenAddress, "address", getEnv("KECANTIERE_LISTEN_ADDRESS", defaultAddress), "Server listen address (Env: KECANTIERE_LISTEN_ADDRESS)")
	fs.StringVar(&cfg.ListenPort, "port", getEnv("KECANTIERE_LISTEN_PORT", defaultPort), "Server listen port (Env: KECANTIERE_LISTEN_PORT)")
	fs.StringVar(&cfg.DataFilePath, "data-file", getEnv("KECANTIERE_DATA_FILE", defaultDataFile), "Path to the primary JSON data file (Env: KECANTIERE_DATA_FILE)")
	fs.StringVar(&cfg.UsersFilePath, "users-file", getEnv("KECANTIERE_USERS_FILE", defaultUsersFile), "Path to the JSON users file (Env: KECANTIERE_USERS_FILE)")
	fs.StringVar(&cfg.UploadsDir, "uploads-dir", getEnv("KECANTIERE_UPLOADS_DIR", defaultUploadsDir), "Root directory for uploaded worker documents (Env: KECANTIERE_UPLOADS_DIR)")
	fs.StringVar(&cfg.PublicDir, "public-dir", getEnv("KECANTIERE_PUBLIC_DIR", defaultPublicDir), "Directory holding the static web client (Env: KECANTIERE_PUBLIC_DIR)")
	fs.BoolVar(&cfg.EnableBackup, "enable-backup", getEnvBool("KECANTIERE_ENABLE_BACKUP", defaultEnableBackup), "Keep a .bak copy of the data file before each save (Env: KECANTIERE_ENABLE_BACKUP)")
	fs.StringVar(&cfg.JwtSecretFile, "jwt-secret-file", getEnv("KECANTIERE_JWT_SECRET_FILE", defaultJwtSecretFile), "Path to file containing JWT secret key (overrides KECANTIERE_JWT_SECRET env var) (Env: KECANTIERE_JWT_SECRET_FILE)")

	cfg.TokenLifetime = defaultTokenLifetime

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	// --- JWT Secret Handling ---
	// Priority: File (flag/env) > Env Var > Default Key File > Generate
	var secretSource string

	if cfg.JwtSecretFile != "" {
		secretBytes, err := os.ReadFile(cfg.JwtSecretFile)
		if err == nil {
			cfg.JwtSecret = strings.TrimSpace(string(secretBytes))
			if cfg.JwtSecret != "" {
				secretSource = fmt.Sprintf("File (%s)", cfg.JwtSecretFile)
			} else {
				log.Printf("WARN: Specified JWT secret file '%s' is empty. Ignoring.", cfg.JwtSecretFile)
			}
		} else {
			log.Printf("WARN: Failed to read specified JWT secret file '%s': %v. Checking other sources.", cfg.JwtSecretFile, err)
		}
	}

	if cfg.JwtSecret == "" {
		cfg.JwtSecret = strings.TrimSpace(getEnv("KECANTIERE_JWT_SECRET", ""))
		if cfg.JwtSecret != "" {
			secretSource = "Environment Variable (KECANTIERE_JWT_SECRET)"
		}
	}

	if cfg.JwtSecret == "" {
		secretBytes, err := os.ReadFile(defaultJwtKeyFile)
		if err == nil {
			cfg.JwtSecret = strings.TrimSpace(string(secretBytes))
			if cfg.JwtSecret != "" {
				secretSource = fmt.Sprintf("Default Key File (%s)", defaultJwtKeyFile)
			}
		} else if !os.IsNotExist(err) {
			log.Printf("WARN: Failed to read default JWT key file '%s': %v. Will attempt generation.", defaultJwtKeyFile, err)
		}
	}

	if cfg.JwtSecret == "" {
		log.Printf("INFO: JWT secret not found via file or environment. Generating a new secret...")
		newSecret, err := generateRandomKey(32)
		if err != nil {
			return nil, fmt.Errorf("failed to generate JWT secret: %w", err)
		}
		cfg.JwtSecret = newSecret
		secretSource = "Generated (In Memory)"

		if err := os.WriteFile(defaultJwtKeyFile, []byte(newSecret), 0600); err != nil {
			log.Printf("WARN: Failed to save generated JWT secret to '%s': %v. The key is valid for this session only.", defaultJwtKeyFile, err)
		} else {
			secretSource = fmt.Sprintf("Generated & Saved (%s)", defaultJwtKeyFile)
		}
	}

	// --- Path Validation ---
	for _, p := range []*string{&cfg.DataFilePath, &cfg.UsersFilePath, &cfg.UploadsDir, &cfg.PublicDir} {
		abs, err := filepath.Abs(*p)
		if err != nil {
			return nil, fmt.Errorf("could not determine absolute path for '%s': %w", *p, err)
		}
		*p = abs
	}

	// A data or users path pointing at an existing directory can never be
	// written; fail startup instead of failing the first save.
	for _, p := range []string{cfg.DataFilePath, cfg.UsersFilePath} {
		if info, err := os.Stat(p); err == nil && info.IsDir() {
			return nil, fmt.Errorf("path '%s' points to a directory, not a file", p)
		}
	}

	logConfiguration(cfg, secretSource)

	return cfg, nil
}

// getEnv retrieves an environment variable or returns a default value.
func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

// getEnvBool retrieves a boolean environment variable or returns a default value.
// Recognizes "true", "1", "yes" (case-insensitive) as true.
func getEnvBool(key string, fallback bool) bool {
	if value, exists := os.LookupEnv(key); exists {
		switch strings.ToLower(value) {
		case "true", "1", "yes":
			return true
		case "false", "0", "no":
			return false
		}
		log.Printf("WARN: Invalid boolean value for environment variable %s: '%s'. Using default: %t", key, value, fallback)
	}
	return fallback
}

// logConfiguration prints the loaded configuration settings.
func logConfiguration(cfg *Config, secretSource string) {
	log.Println("--- Configuration ---")
	log.Printf("Server Address: %s", cfg.ListenAddress)
	log.Printf("Server Port: %s", cfg.ListenPort)
	log.Printf("Data File: %s", cfg.DataFilePath)
	log.Printf("Users File: %s", cfg.UsersFilePath)
	log.Printf("Uploads Directory: %s", cfg.UploadsDir)
	log.Printf("Public Directory: %s", cfg.PublicDir)
	log.Printf("Backup Enabled: %t", cfg.EnableBackup)
	log.Printf("JWT Secret Source: %s", secretSource)
	log.Printf("JWT Token Lifetime: %s", cfg.TokenLifetime)
	log.Println("---------------------")
}

// generateRandomKey generates a cryptographically secure random key of the
// specified byte length and returns it as a hex-encoded string.
func generateRandomKey(length int) (string, error) {
	bytes := make([]byte, length)
	if _, err := rand.Read(bytes); err != nil {
		return "", fmt.Errorf("failed to read random bytes: %w", err)
	}
	return hex.EncodeToString(bytes), nil
}
