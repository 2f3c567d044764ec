package config

import (
	"fmt"
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/joho/godotenv"
)

type Config struct {
	Env         string      `yaml:"env" env:"APP_ENV" env-default:"local" env-description:"Environment: local, dev or prod"`
	HTTP        HTTPServer  `yaml:"http"`
	Storage     Storage     `yaml:"storage"`
	Auth        Auth        `yaml:"auth"`
	FrontendURL string      `yaml:"frontend_url" env:"FRONTEND_URL" env-default:"http://localhost:5173"`
	CORS        CORS        `yaml:"cors"`
	Transcriber Transcriber `yaml:"transcriber"`
	Admin       Admin       `yaml:"admin"`
}

type HTTPServer struct {
	Host              string        `yaml:"host" env:"HOST" env-default:"0.0.0.0"`
	Port              int           `yaml:"port" env:"PORT" env-default:"8080"`
	ReadHeaderTimeout time.Duration `yaml:"read_header_timeout" env:"READ_HEADER_TIMEOUT" env-default:"10s"`
	ShutdownTimeout   time.Duration `yaml:"shutdown_timeout" env:"SHUTDOWN_TIMEOUT" env-default:"5s"`
}

type Storage struct {
	Driver string `yaml:"driver" env:"DB_DRIVER" env-default:"sqlite" env-description:"sqlite or postgres"`
	DSN    string `yaml:"dsn" env:"DB_PATH" env-default:"expenses.db"`
}

type Auth struct {
	Secret             string        `yaml:"secret" env:"SECRET_KEY" env-default:"dev-secret-key-change-this-in-production"`
	SessionTTL         time.Duration `yaml:"session_ttl" env:"SESSION_TTL" env-default:"720h"`
	TokenTTL           time.Duration `yaml:"token_ttl" env:"TOKEN_TTL" env-default:"168h"`
	VerificationMaxAge time.Duration `yaml:"verification_max_age" env:"VERIFICATION_MAX_AGE" env-default:"24h"`
	SecureCookie       bool          `yaml:"secure_cookie" env:"SECURE_COOKIE" env-default:"false"`
}

// Admin is an account created at startup when it does not exist yet.
type Admin struct {
	User     string `yaml:"user" env:"ADMIN_USER"`
	Password string `yaml:"password" env:"ADMIN_PASSWORD"`
}

type CORS struct {
	Origins []string `yaml:"origins" env:"CORS_ORIGIN" env-separator:"," env-default:"http://localhost:5173"`
}

type Transcriber struct {
	Host           string        `yaml:"host" env:"TRANSCRIBER_HOST" env-default:"0.0.0.0"`
	Port           int           `yaml:"port" env:"TRANSCRIBER_PORT" env-default:"5000"`
	Driver         string        `yaml:"driver" env:"TRANSCRIBER_DB_DRIVER" env-default:"sqlite" env-description:"sqlite or postgres"`
	DSN            string        `yaml:"dsn" env:"TRANSCRIBER_DB_PATH" env-default:"speech.db"`
	UploadDir      string        `yaml:"upload_dir" env:"UPLOAD_DIR" env-default:"uploads"`
	APIURL         string        `yaml:"api_url" env:"TRANSCRIBE_API_URL" env-default:"https://api.deepinfra.com/v1/inference/openai/whisper-large-v3"`
	APIKey         string        `yaml:"api_key" env:"DEEPINFRA_API_KEY"`
	Timeout        time.Duration `yaml:"timeout" env:"TRANSCRIBE_TIMEOUT" env-default:"2m"`
	MaxUploadBytes int64         `yaml:"max_upload_bytes" env:"MAX_UPLOAD_BYTES" env-default:"26214400"`
}

// Addr is the listen address of the expense API.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.HTTP.Host, c.HTTP.Port)
}

// TranscriberAddr is the listen address of the speech-to-text API.
func (c *Config) TranscriberAddr() string {
	return fmt.Sprintf("%s:%d", c.Transcriber.Host, c.Transcriber.Port)
}

// MustLoad is Load that panics on failure.
func MustLoad(path string) *Config {
	cfg, err := Load(path)
	if err != nil {
		panic("failed to load config: " + err.Error())
	}
	return cfg
}

// Load reads configuration from the YAML file at path (falling back to
// CONFIG_PATH), with environment variables taking precedence. Without a file
// only the environment and defaults are used. A .env file in the working
// directory is loaded first when present.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	if path == "" {
		path = os.Getenv("CONFIG_PATH")
	}

	var cfg Config
	if path != "" {
		if _, err := os.Stat(path); err != nil {
			return nil, fmt.Errorf("config file: %w", err)
		}
		if err := cleanenv.ReadConfig(path, &cfg); err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
	} else if err := cleanenv.ReadEnv(&cfg); err != nil {
		return nil, fmt.Errorf("read env: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if err := checkDriver("storage.driver", c.Storage.Driver); err != nil {
		return err
	}
	if err := checkDriver("transcriber.driver", c.Transcriber.Driver); err != nil {
		return err
	}
	if c.Auth.Secret == "" {
		return fmt.Errorf("auth.secret is required")
	}
	if c.Auth.VerificationMaxAge <= 0 {
		return fmt.Errorf("auth.verification_max_age must be positive")
	}
	return nil
}

func checkDriver(field, driver string) error {
	switch driver {
	case "sqlite", "postgres":
		return nil
	}
	return fmt.Errorf("%s must be sqlite or postgres, got %q", field, driver)
}
