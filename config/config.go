package config

import (
	"log"
	"time"

	"github.com/caarlos0/env/v10"
	"github.com/joho/godotenv"
)

type Config struct {
	AppName      string `env:"APP_NAME" envDefault:"eportofolio-auth"`
	AppEnv       string `env:"APP_ENV" envDefault:"local"`
	HTTPHost     string `env:"HTTP_HOST" envDefault:"0.0.0.0"`
	HTTPPort     string `env:"HTTP_PORT" envDefault:"8080"`
	HTTPBasePath string `env:"HTTP_BASE_PATH" envDefault:"/api/v1"`

	DBHost       string        `env:"DB_HOST" envDefault:"localhost"`
	DBPort       string        `env:"DB_PORT" envDefault:"5432"`
	DBUser       string        `env:"DB_USER" envDefault:"app"`
	DBPassword   string        `env:"DB_PASSWORD" envDefault:"app_password"`
	DBName       string        `env:"DB_NAME" envDefault:"eportofolio"`
	DBSSLMode    string        `env:"DB_SSLMODE" envDefault:"disable"`
	DBMaxOpen    int           `env:"DB_MAX_OPEN" envDefault:"25"`
	DBMaxIdle    int           `env:"DB_MAX_IDLE" envDefault:"25"`
	DBMaxLife    time.Duration `env:"DB_MAX_LIFETIME" envDefault:"5m"`
	DBRetryMax   int           `env:"DB_RETRY_MAX_ATTEMPTS" envDefault:"3"`
	DBRetryDelay time.Duration `env:"DB_RETRY_BASE_DELAY" envDefault:"100ms"`

	JWTSecret        string        `env:"JWT_SECRET"`
	JWTRefreshSecret string        `env:"JWT_REFRESH_SECRET"`
	JWTIssuer        string        `env:"JWT_ISSUER" envDefault:"eportofolio-auth"`
	AccessTTL        time.Duration `env:"JWT_EXPIRATION" envDefault:"15m"`
	RefreshTTL       time.Duration `env:"JWT_REFRESH_EXPIRATION" envDefault:"168h"`

	BcryptCost int `env:"BCRYPT_COST" envDefault:"10"`

	NATSURL            string `env:"NATS_URL" envDefault:"nats://localhost:4222"`
	NATSVerifySubject  string `env:"NATS_SUBJECT_VERIFY_JWT" envDefault:"auth.verifyJWT"`
	NATSUserRegistered string `env:"NATS_SUBJECT_USER_REGISTERED" envDefault:"auth.user-registered"`

	MediaBaseURL string        `env:"MEDIA_BASE_URL"`
	MediaAPIKey  string        `env:"MEDIA_API_KEY"`
	MediaTimeout time.Duration `env:"MEDIA_TIMEOUT" envDefault:"10s"`
}

func Load() (*Config, error) {
	_ = godotenv.Load()
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	return cfg
}
