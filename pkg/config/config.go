package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type DBConfig struct {
	Host         string
	Port         int
	User         string
	Password     string
	Name         string
	MaxOpenConns int
	MaxIdleConns int
}

type GatewayConfig struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

func LoadConfigDB() (*DBConfig, error) {
	err := godotenv.Load(filepath.Join("config.env"))
	if err != nil {
		return nil, err
	}

	port, err := strconv.Atoi(os.Getenv("DB_PORT"))
	if err != nil {
		return nil, fmt.Errorf("invalid DB_PORT: %w", err)
	}

	maxOpen, err := strconv.Atoi(os.Getenv("DB_MAX_OPEN_CONNS"))
	if err != nil {
		return nil, fmt.Errorf("invalid DB_MAX_OPEN_CONNS: %w", err)
	}

	maxIdle, err := strconv.Atoi(os.Getenv("DB_MAX_IDLE_CONNS"))
	if err != nil {
		return nil, fmt.Errorf("invalid DB_MAX_IDLE_CONNS: %w", err)
	}

	return &DBConfig{
		Host:         os.Getenv("DB_HOST"),
		Port:         port,
		User:         os.Getenv("DB_USER"),
		Password:     os.Getenv("DB_PASSWORD"),
		Name:         os.Getenv("DB_NAME"),
		MaxOpenConns: maxOpen,
		MaxIdleConns: maxIdle,
	}, nil
}

// LoadConfigGateway reads the payment gateway settings. The timeout bounds
// every outbound call; reconciliation must never block a request handler
// indefinitely.
func LoadConfigGateway() (*GatewayConfig, error) {
	_ = godotenv.Load(filepath.Join("config.env"))

	baseURL := os.Getenv("GATEWAY_BASE_URL")
	if baseURL == "" {
		return nil, fmt.Errorf("GATEWAY_BASE_URL is required")
	}

	timeout := 12 * time.Second
	if raw := os.Getenv("GATEWAY_TIMEOUT_SECONDS"); raw != "" {
		seconds, err := strconv.Atoi(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid GATEWAY_TIMEOUT_SECONDS: %w", err)
		}
		timeout = time.Duration(seconds) * time.Second
	}

	return &GatewayConfig{
		BaseURL: baseURL,
		APIKey:  os.Getenv("GATEWAY_API_KEY"),
		Timeout: timeout,
	}, nil
}
