package main

import (
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cast"
)

// envConfig holds flag defaults read from the environment or a .env file
// next to the binary, so the trap's systemd unit only needs an env file
type envConfig struct {
	TileSize    int
	Overlap     float64
	Confidence  float64
	IoU         float64
	Workers     int
	TileTimeout time.Duration
	Model       string
	Labels      string
	DB          string
	Platform    string
}

// loadEnvConfig reads SAHI_* variables, a missing .env file is not an error
func loadEnvConfig(envFile string) envConfig {

	_ = godotenv.Load(envFile)

	return envConfig{
		TileSize:    getEnvAsInt("SAHI_TILE_SIZE", 640),
		Overlap:     getEnvAsFloat("SAHI_OVERLAP", 0.2),
		Confidence:  getEnvAsFloat("SAHI_CONF", 0.25),
		IoU:         getEnvAsFloat("SAHI_IOU", 0.5),
		Workers:     getEnvAsInt("SAHI_WORKERS", 1),
		TileTimeout: getEnvAsDuration("SAHI_TILE_TIMEOUT", 0),
		Model:       getEnv("SAHI_MODEL", "../data/models/yolo11s.onnx"),
		Labels:      getEnv("SAHI_LABELS", "../data/coco_80_labels_list.txt"),
		DB:          getEnv("SAHI_DB", ""),
		Platform:    getEnv("SAHI_PLATFORM", "bcm2712"),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := cast.ToIntE(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := cast.ToFloat64E(value); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := cast.ToDurationE(value); err == nil {
			return d
		}
	}
	return defaultValue
}
