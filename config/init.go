package config

import (
	"log"

	"github.com/caarlos0/env/v6"
	"github.com/joho/godotenv"

	"github.com/h2linker/sendqueue/internal/logger"
	"github.com/h2linker/sendqueue/internal/tracing"
)

type Config struct {
	AppConfig      *AppConfig
	Logger         *logger.Config
	Tracing        *tracing.JaegerConfig
	DatabaseConfig *DatabaseConfig
	RedisConfig    *RedisConfig
	AIConfig       *AIConfig
	DNSConfig      *DNSConfig
	DrainConfig    *DrainConfig
	RadarConfig    *RadarConfig
}

func InitConfig() (*Config, error) {
	config := &Config{
		AppConfig:      &AppConfig{},
		Logger:         &logger.Config{},
		Tracing:        &tracing.JaegerConfig{},
		DatabaseConfig: &DatabaseConfig{},
		RedisConfig:    &RedisConfig{},
		AIConfig:       &AIConfig{},
		DNSConfig:      &DNSConfig{},
		DrainConfig:    &DrainConfig{},
		RadarConfig:    &RadarConfig{},
	}

	err := godotenv.Load()
	if err != nil {
		log.Print("Unable to load .env file")
	}

	err = env.Parse(config)
	if err != nil {
		log.Fatalf("Error loading sendqueue config: %v", err)
	}

	return config, nil
}
