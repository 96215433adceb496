// server/config/config.go
package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// --- Sub-configs, mirroring config.yaml ---

type ServerConfig struct {
	Port             string   `mapstructure:"port"`
	CorsAllowOrigins []string `mapstructure:"corsAllowOrigins"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type StoreConfig struct {
	Backend string `mapstructure:"backend"` // memory | mongo
}

type MongoConfig struct {
	URI    string `mapstructure:"uri"`
	DBName string `mapstructure:"dbName"`
}

type JWTConfig struct {
	Secret     string `mapstructure:"secret"`
	Expiration string `mapstructure:"expiration"`
}

type DeviceConfig struct {
	TokenSecret string `mapstructure:"tokenSecret"`
}

type RoutingConfig struct {
	OSRMBaseURL string `mapstructure:"osrmBaseURL"`
	Profile     string `mapstructure:"profile"`
	Timeout     string `mapstructure:"timeout"`
	Candidates  int    `mapstructure:"candidates"`
}

type LocationConfig struct {
	Backend string `mapstructure:"backend"` // memory | redis
	TTL     string `mapstructure:"ttl"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type S3Config struct {
	Bucket           string `mapstructure:"bucket"`
	Region           string `mapstructure:"region"`
	AccessKeyID      string `mapstructure:"accessKeyID"`
	SecretAccessKey  string `mapstructure:"secretAccessKey"`
	CloudFrontDomain string `mapstructure:"cloudFrontDomain"`
}

type SeedConfig struct {
	AdminEmail    string `mapstructure:"adminEmail"`
	AdminPassword string `mapstructure:"adminPassword"`
	CentresFile   string `mapstructure:"centresFile"`
}

// Config is the full service configuration.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Log      LogConfig      `mapstructure:"log"`
	Store    StoreConfig    `mapstructure:"store"`
	Mongo    MongoConfig    `mapstructure:"mongo"`
	JWT      JWTConfig      `mapstructure:"jwt"`
	Device   DeviceConfig   `mapstructure:"device"`
	Routing  RoutingConfig  `mapstructure:"routing"`
	Location LocationConfig `mapstructure:"location"`
	Redis    RedisConfig    `mapstructure:"redis"`
	S3       S3Config       `mapstructure:"s3"`
	Seed     SeedConfig     `mapstructure:"seed"`
	Supplies []string       `mapstructure:"supplies"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", "8000")
	v.SetDefault("server.corsAllowOrigins", []string{"http://localhost:3000", "http://127.0.0.1:3000"})
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
	v.SetDefault("store.backend", "memory")
	v.SetDefault("mongo.uri", "mongodb://localhost:27017")
	v.SetDefault("mongo.dbName", "relief")
	v.SetDefault("jwt.secret", "change-me")
	v.SetDefault("jwt.expiration", "24h")
	v.SetDefault("device.tokenSecret", "change-me-too")
	v.SetDefault("routing.osrmBaseURL", "http://localhost:4000")
	v.SetDefault("routing.profile", "driving")
	v.SetDefault("routing.timeout", "5s")
	v.SetDefault("routing.candidates", 5)
	v.SetDefault("location.backend", "memory")
	v.SetDefault("location.ttl", "12h")
	v.SetDefault("redis.addr", "127.0.0.1:6379")
	v.SetDefault("seed.adminEmail", "admin@relief.local")
	v.SetDefault("seed.adminPassword", "adminpassword")
	v.SetDefault("supplies", []string{
		"food", "clothes", "clothing", "medicine", "medical", "shelter",
		"blankets", "hygiene", "batteries", "communication", "emergency_services",
	})
}

// LoadConfig reads config.yaml from path (optional) and overlays environment variables.
func LoadConfig(path string) (config Config, err error) {
	v := viper.New()
	v.AddConfigPath(path)
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	setDefaults(v)

	v.AutomaticEnv()
	bindings := map[string]string{
		"server.port":             "SERVER_PORT",
		"server.corsAllowOrigins": "CORS_ALLOW_ORIGINS",
		"log.level":               "LOG_LEVEL",
		"log.format":              "LOG_FORMAT",
		"store.backend":           "STORE_BACKEND",
		"mongo.uri":               "MONGO_URI",
		"mongo.dbName":            "MONGO_DBNAME",
		"jwt.secret":              "JWT_SECRET",
		"jwt.expiration":          "JWT_EXPIRATION",
		"device.tokenSecret":      "DEVICE_TOKEN_SECRET",
		"routing.osrmBaseURL":     "OSRM_BASE_URL",
		"routing.profile":         "OSRM_PROFILE",
		"routing.timeout":         "ROUTING_TIMEOUT",
		"routing.candidates":      "ROUTING_CANDIDATES",
		"location.backend":        "LOCATION_BACKEND",
		"location.ttl":            "LOCATION_TTL",
		"redis.addr":              "REDIS_ADDR",
		"redis.password":          "REDIS_PASSWORD",
		"redis.db":                "REDIS_DB",
		"s3.bucket":               "S3_BUCKET",
		"s3.region":               "S3_REGION",
		"s3.accessKeyID":          "S3_ACCESS_KEY_ID",
		"s3.secretAccessKey":      "S3_SECRET_ACCESS_KEY",
		"s3.cloudFrontDomain":     "S3_CLOUDFRONT_DOMAIN",
		"seed.adminEmail":         "SEED_ADMIN_EMAIL",
		"seed.adminPassword":      "SEED_ADMIN_PASSWORD",
		"seed.centresFile":        "SEED_CENTRES_FILE",
		"supplies":                "SUPPLIES",
	}
	for key, env := range bindings {
		if err = v.BindEnv(key, env); err != nil {
			return
		}
	}

	// A missing config.yaml is fine; env + defaults are enough.
	if err = v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return
		}
		err = nil
	}

	if err = v.Unmarshal(&config); err != nil {
		return
	}
	err = config.Validate()
	return
}

// Validate checks values viper cannot type-check.
func (c Config) Validate() error {
	for name, d := range map[string]string{
		"jwt.expiration":  c.JWT.Expiration,
		"routing.timeout": c.Routing.Timeout,
		"location.ttl":    c.Location.TTL,
	} {
		if _, err := time.ParseDuration(d); err != nil {
			return fmt.Errorf("config %s: %w", name, err)
		}
	}
	switch c.Store.Backend {
	case "memory", "mongo":
	default:
		return fmt.Errorf("config store.backend: unsupported %q", c.Store.Backend)
	}
	switch c.Location.Backend {
	case "memory", "redis":
	default:
		return fmt.Errorf("config location.backend: unsupported %q", c.Location.Backend)
	}
	if c.Routing.Candidates <= 0 {
		return fmt.Errorf("config routing.candidates must be positive")
	}
	return nil
}

func (c JWTConfig) TTL() time.Duration {
	d, _ := time.ParseDuration(c.Expiration)
	return d
}

func (c RoutingConfig) TimeoutDuration() time.Duration {
	d, _ := time.ParseDuration(c.Timeout)
	return d
}

func (c LocationConfig) TTLDuration() time.Duration {
	d, _ := time.ParseDuration(c.TTL)
	return d
}
