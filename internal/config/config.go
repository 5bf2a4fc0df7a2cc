// internal/config/config.go

package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration
type Config struct {
	Environment string
	Server      ServerConfig
	Database    DatabaseConfig
	NATS        NATSConfig
	Clustering  ClusteringConfig
	Merge       MergeConfig
}

// ServerConfig holds server configuration
type ServerConfig struct {
	Host            string
	Port            int
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
	CorsOrigins     []string
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Host         string
	Port         int
	User         string
	Password     string
	Database     string
	MaxOpenConns int
	MaxIdleConns int
	MaxLifetime  time.Duration
	SSLMode      string
}

// NATSConfig holds NATS configuration
type NATSConfig struct {
	URL            string
	MaxReconnects  int
	ReconnectWait  time.Duration
	ConnectTimeout time.Duration
}

// ClusteringConfig holds the daily cluster-analysis configuration
type ClusteringConfig struct {
	GeocodingThresholdPct float64
	DateFloorDays         int
	TimeWindowDays        int
	MinClusterSize        int
	GISRadiusMeters       float64
	MatchLookbackDays     int
	AcceptDistanceMeters  float64
	MergeDistanceMeters   float64
	AutoAcceptTimeoutDays int
	EventsTopic           string
}

// MergeConfig holds the periodic merge-pass configuration
type MergeConfig struct {
	WindowDays              int
	EligibilityLookbackDays int
	EligibilityWalkDays     int
	MaxPendingRatio         float64
	AutoMergeThreshold      float64
	ReviewThreshold         float64
	EventsTopic             string
}

// Load loads configuration from environment variables
func Load() (Config, error) {
	config := Config{
		Environment: getEnv("APP_ENV", "development"),
		Server: ServerConfig{
			Host:            getEnv("SERVER_HOST", "0.0.0.0"),
			Port:            getEnvAsInt("SERVER_PORT", 8080),
			ReadTimeout:     getEnvAsDuration("SERVER_READ_TIMEOUT", 10*time.Second),
			WriteTimeout:    getEnvAsDuration("SERVER_WRITE_TIMEOUT", 30*time.Second),
			ShutdownTimeout: getEnvAsDuration("SERVER_SHUTDOWN_TIMEOUT", 10*time.Second),
			CorsOrigins:     getEnvAsSlice("SERVER_CORS_ORIGINS", []string{"*"}),
		},
		Database: DatabaseConfig{
			Host:         getEnv("DB_HOST", "localhost"),
			Port:         getEnvAsInt("DB_PORT", 5432),
			User:         getEnv("DB_USER", "postgres"),
			Password:     getEnv("DB_PASSWORD", "postgres"),
			Database:     getEnv("DB_NAME", "sentinel"),
			MaxOpenConns: getEnvAsInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns: getEnvAsInt("DB_MAX_IDLE_CONNS", 25),
			MaxLifetime:  getEnvAsDuration("DB_MAX_LIFETIME", 5*time.Minute),
			SSLMode:      getEnv("DB_SSL_MODE", "disable"),
		},
		NATS: NATSConfig{
			URL:            getEnv("NATS_URL", "nats://localhost:4222"),
			MaxReconnects:  getEnvAsInt("NATS_MAX_RECONNECTS", 10),
			ReconnectWait:  getEnvAsDuration("NATS_RECONNECT_WAIT", 1*time.Second),
			ConnectTimeout: getEnvAsDuration("NATS_CONNECT_TIMEOUT", 2*time.Second),
		},
		Clustering: ClusteringConfig{
			GeocodingThresholdPct: getEnvAsFloat("CLUSTER_GEOCODING_THRESHOLD_PCT", 90.0),
			DateFloorDays:         getEnvAsInt("CLUSTER_DATE_FLOOR_DAYS", 15),
			TimeWindowDays:        getEnvAsInt("CLUSTER_TIME_WINDOW_DAYS", 7),
			MinClusterSize:        getEnvAsInt("CLUSTER_MIN_SIZE", 2),
			GISRadiusMeters:       getEnvAsFloat("CLUSTER_GIS_RADIUS_METERS", 350.0),
			MatchLookbackDays:     getEnvAsInt("CLUSTER_MATCH_LOOKBACK_DAYS", 14),
			AcceptDistanceMeters:  getEnvAsFloat("CLUSTER_ACCEPT_DISTANCE_METERS", 50.0),
			MergeDistanceMeters:   getEnvAsFloat("CLUSTER_MERGE_DISTANCE_METERS", 150.0),
			AutoAcceptTimeoutDays: getEnvAsInt("CLUSTER_AUTO_ACCEPT_TIMEOUT_DAYS", 3),
			EventsTopic:           getEnv("CLUSTER_EVENTS_TOPIC", "cluster"),
		},
		Merge: MergeConfig{
			WindowDays:              getEnvAsInt("MERGE_WINDOW_DAYS", 6),
			EligibilityLookbackDays: getEnvAsInt("MERGE_ELIGIBILITY_LOOKBACK_DAYS", 4),
			EligibilityWalkDays:     getEnvAsInt("MERGE_ELIGIBILITY_WALK_DAYS", 10),
			MaxPendingRatio:         getEnvAsFloat("MERGE_MAX_PENDING_RATIO", 0.10),
			AutoMergeThreshold:      getEnvAsFloat("MERGE_AUTO_THRESHOLD", 0.60),
			ReviewThreshold:         getEnvAsFloat("MERGE_REVIEW_THRESHOLD", 0.20),
			EventsTopic:             getEnv("MERGE_EVENTS_TOPIC", "cluster.merge"),
		},
	}

	return config, validate(config)
}

// validate checks if config is valid
func validate(config Config) error {
	if config.Clustering.MinClusterSize < 2 {
		return fmt.Errorf("minimum cluster size must be at least 2, got %d", config.Clustering.MinClusterSize)
	}

	if config.Clustering.GISRadiusMeters <= 0 {
		return fmt.Errorf("GIS radius must be positive, got %f", config.Clustering.GISRadiusMeters)
	}

	if config.Merge.ReviewThreshold >= config.Merge.AutoMergeThreshold {
		return fmt.Errorf("merge review threshold %f must be below auto-merge threshold %f",
			config.Merge.ReviewThreshold, config.Merge.AutoMergeThreshold)
	}

	return nil
}

// Helper functions

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseFloat(valueStr, 64); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsSlice(key string, defaultValue []string) []string {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	return strings.Split(valueStr, ",")
}
