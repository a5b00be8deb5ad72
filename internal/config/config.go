// Package config loads the application configuration from defaults, a JSON
// config file, a .env file, environment variables and command line flags.
// Later sources override earlier ones (flags > env > JSON file > defaults).
package config

import (
	"encoding/json"
	"flag"
	"log"
	"os"
	"time"

	env "github.com/caarlos0/env/v6"
	validator "github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

// Config holds all runtime settings of the service.
type Config struct {
	RunAddr                    string        `env:"SERVER_ADDRESS" json:"server_address" validate:"hostname_port"`
	LogLevel                   string        `env:"LOG_LEVEL" json:"log_level" validate:"loglevel"`
	DBFileName                 string        `env:"FILE_STORAGE_PATH" json:"file_storage_path" validate:"filepath"`
	DatabaseDSN                string        `env:"DATABASE_DSN" json:"database_dsn"`
	DBConnectionTimeout        time.Duration `env:"DB_CONNECTION_TIMEOUT" json:"db_connection_timeout"`
	MigrationsDir              string        `env:"MIGRATIONS_DIR" json:"migrations_dir"`
	AuthCookieName             string        `env:"AUTH_COOKIE_NAME" json:"auth_cookie_name"`
	AuthCookieSigningSecretKey string        `env:"AUTH_COOKIE_SIGNING_SECRET_KEY" json:"auth_cookie_signing_secret_key"`
	TrustedSubnet              string        `env:"TRUSTED_SUBNET" json:"trusted_subnet" validate:"omitempty,cidr"`
	ConfigFile                 string        `env:"CONFIG" json:"-"`
}

var defaultConfig = Config{
	RunAddr:                    ":8080",
	LogLevel:                   "info",
	DBFileName:                 "",
	DatabaseDSN:                "",
	DBConnectionTimeout:        10 * time.Second,
	MigrationsDir:              "migrations",
	AuthCookieName:             "auth",
	AuthCookieSigningSecretKey: "c3VwZXJzZWNyZXRrZXk=",
	TrustedSubnet:              "",
}

func applyDefaults(values *Config, defaults Config) {
	if values.RunAddr == "" {
		values.RunAddr = defaults.RunAddr
	}
	if values.LogLevel == "" {
		values.LogLevel = defaults.LogLevel
	}
	if values.DBFileName == "" {
		values.DBFileName = defaults.DBFileName
	}
	if values.DatabaseDSN == "" {
		values.DatabaseDSN = defaults.DatabaseDSN
	}
	if values.DBConnectionTimeout == 0 {
		values.DBConnectionTimeout = defaults.DBConnectionTimeout
	}
	if values.MigrationsDir == "" {
		values.MigrationsDir = defaults.MigrationsDir
	}
	if values.AuthCookieName == "" {
		values.AuthCookieName = defaults.AuthCookieName
	}
	if values.AuthCookieSigningSecretKey == "" {
		values.AuthCookieSigningSecretKey = defaults.AuthCookieSigningSecretKey
	}
	if values.TrustedSubnet == "" {
		values.TrustedSubnet = defaults.TrustedSubnet
	}
}

func overlay(values *Config, layer Config) {
	if layer.RunAddr != "" {
		values.RunAddr = layer.RunAddr
	}
	if layer.LogLevel != "" {
		values.LogLevel = layer.LogLevel
	}
	if layer.DBFileName != "" {
		values.DBFileName = layer.DBFileName
	}
	if layer.DatabaseDSN != "" {
		values.DatabaseDSN = layer.DatabaseDSN
	}
	if layer.DBConnectionTimeout != 0 {
		values.DBConnectionTimeout = layer.DBConnectionTimeout
	}
	if layer.MigrationsDir != "" {
		values.MigrationsDir = layer.MigrationsDir
	}
	if layer.AuthCookieName != "" {
		values.AuthCookieName = layer.AuthCookieName
	}
	if layer.AuthCookieSigningSecretKey != "" {
		values.AuthCookieSigningSecretKey = layer.AuthCookieSigningSecretKey
	}
	if layer.TrustedSubnet != "" {
		values.TrustedSubnet = layer.TrustedSubnet
	}
}

func validateFilePath(fieldLevel validator.FieldLevel) bool {
	path := fieldLevel.Field().String()
	_, err := os.Stat(path)

	return err == nil || os.IsNotExist(err)
}

func validateLogLevel(fieldLevel validator.FieldLevel) bool {
	value := fieldLevel.Field().String()

	allowedLogLevels := map[string]bool{
		"debug":   true,
		"info":    true,
		"warning": true,
		"error":   true,
		"fatal":   true,
	}

	return allowedLogLevels[value]
}

func (c *Config) validate() error {
	validate := validator.New()

	err := validate.RegisterValidation("loglevel", validateLogLevel)
	if err != nil {
		return err
	}

	err = validate.RegisterValidation("filepath", validateFilePath)
	if err != nil {
		return err
	}

	return validate.Struct(c)
}

func readJSONConfig(path string, into *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	return json.Unmarshal(data, into)
}

// InitOption customizes the behavior of New.
type InitOption func(*initOptions)

type initOptions struct {
	disableFlagsParsing bool
}

// WithDisableFlagsParsing turns off command line flag parsing.
// Tests use it to keep the test binary's own flags intact.
func WithDisableFlagsParsing(disableFlagsParsing bool) InitOption {
	return func(options *initOptions) {
		options.disableFlagsParsing = disableFlagsParsing
	}
}

// New builds the configuration from all the sources and validates it.
func New(optionsProto ...InitOption) (*Config, error) {
	options := &initOptions{
		disableFlagsParsing: false,
	}
	for _, protoOption := range optionsProto {
		protoOption(options)
	}

	if err := godotenv.Load(); err != nil {
		log.Printf("Unable to load .env file: %v", err)
	}

	var fromFlags Config
	if !options.disableFlagsParsing {
		flagSet := flag.NewFlagSet(os.Args[0], flag.ContinueOnError)
		flagSet.StringVar(&fromFlags.RunAddr, "a", "", "address and port to run server")
		flagSet.StringVar(&fromFlags.LogLevel, "l", "", "logger level")
		flagSet.StringVar(&fromFlags.DBFileName, "f", "", "JSON file name with database")
		flagSet.StringVar(&fromFlags.DatabaseDSN, "d", "", "a string with the database connection details")
		flagSet.StringVar(&fromFlags.TrustedSubnet, "t", "", "trusted subnet for internal endpoints in CIDR notation")
		flagSet.StringVar(&fromFlags.ConfigFile, "c", "", "path to the JSON config file")
		flagSet.StringVar(&fromFlags.ConfigFile, "config", fromFlags.ConfigFile, "path to the JSON config file")
		if err := flagSet.Parse(os.Args[1:]); err != nil {
			return nil, err
		}
	}

	var fromEnv Config
	if err := env.Parse(&fromEnv); err != nil {
		return nil, err
	}

	configFile := fromEnv.ConfigFile
	if fromFlags.ConfigFile != "" {
		configFile = fromFlags.ConfigFile
	}

	values := Config{}
	if configFile != "" {
		if err := readJSONConfig(configFile, &values); err != nil {
			return nil, err
		}
	}

	overlay(&values, fromEnv)
	overlay(&values, fromFlags)
	applyDefaults(&values, defaultConfig)

	if err := values.validate(); err != nil {
		return nil, err
	}

	return &values, nil
}
