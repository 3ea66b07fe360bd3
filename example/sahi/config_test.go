package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadEnvConfig(t *testing.T) {

	envFile := filepath.Join(t.TempDir(), ".env")
	data := "SAHI_TILE_SIZE=512\nSAHI_OVERLAP=0.25\nSAHI_TILE_TIMEOUT=2s\nSAHI_WORKERS=notanumber\n"

	if err := os.WriteFile(envFile, []byte(data), 0o644); err != nil {
		t.Fatalf("error writing env file: %v", err)
	}

	// godotenv does not override variables already set, so start clean
	for _, key := range []string{"SAHI_TILE_SIZE", "SAHI_OVERLAP", "SAHI_TILE_TIMEOUT", "SAHI_WORKERS"} {
		t.Setenv(key, "")
		os.Unsetenv(key)
	}

	t.Setenv("SAHI_CONF", "0.4")

	cfg := loadEnvConfig(envFile)

	if cfg.TileSize != 512 || cfg.Overlap != 0.25 || cfg.TileTimeout != 2*time.Second {
		t.Errorf("Test failed: env file values not applied %+v", cfg)
	}

	if cfg.Confidence != 0.4 {
		t.Errorf("Test failed: expected confidence from environment, got %v", cfg.Confidence)
	}

	if cfg.Workers != 1 {
		t.Errorf("Test failed: invalid worker count should fall back to default, got %d", cfg.Workers)
	}

	if cfg.IoU != 0.5 || cfg.Platform != "bcm2712" {
		t.Errorf("Test failed: unexpected defaults %+v", cfg)
	}
}

func TestSupportedImage(t *testing.T) {

	tests := []struct {
		name     string
		expected bool
	}{
		{"trap.jpg", true},
		{"trap.JPEG", true},
		{"trap.webp", true},
		{"trap.tiff", true},
		{"trap.gif", false},
		{"notes.txt", false},
		{"noext", false},
	}

	for _, tc := range tests {
		if got := supportedImage(tc.name); got != tc.expected {
			t.Errorf("Test failed for %s: expected %v, got %v", tc.name, tc.expected, got)
		}
	}
}

func TestListImages(t *testing.T) {

	dir := t.TempDir()

	for _, name := range []string{"b.png", "a.jpg", "c.txt", "d.webp"} {
		if err := os.WriteFile(filepath.Join(dir, name), nil, 0o644); err != nil {
			t.Fatalf("error writing file: %v", err)
		}
	}

	if err := os.Mkdir(filepath.Join(dir, "sub.jpg"), 0o755); err != nil {
		t.Fatalf("error creating dir: %v", err)
	}

	files, skipped, err := listImages(dir)

	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	expected := []string{
		filepath.Join(dir, "a.jpg"),
		filepath.Join(dir, "b.png"),
		filepath.Join(dir, "d.webp"),
	}

	if len(files) != len(expected) {
		t.Fatalf("Test failed: expected %v, got %v", expected, files)
	}

	for i := range expected {
		if files[i] != expected[i] {
			t.Errorf("Test failed: expected %s at %d, got %s", expected[i], i, files[i])
		}
	}

	if len(skipped) != 1 || filepath.Base(skipped[0]) != "c.txt" {
		t.Errorf("Test failed: expected c.txt to be skipped, got %v", skipped)
	}
}

func TestInputImages(t *testing.T) {

	tests := []struct {
		name    string
		img     string
		wantErr bool
	}{
		{"jpeg image", "trap.JPG", false},
		{"webp image", "trap.webp", false},
		{"gif image", "trap.gif", true},
		{"no extension", "trap", true},
	}

	for _, tc := range tests {
		files, _, err := inputImages(tc.img, "")

		if (err != nil) != tc.wantErr {
			t.Errorf("Test failed for %s: expected error %v, got %v", tc.name, tc.wantErr, err)
			continue
		}

		if !tc.wantErr && (len(files) != 1 || files[0] != tc.img) {
			t.Errorf("Test failed for %s: expected [%s], got %v", tc.name, tc.img, files)
		}
	}

	// a directory with nothing supported is an error
	dir := t.TempDir()

	if err := os.WriteFile(filepath.Join(dir, "notes.txt"), nil, 0o644); err != nil {
		t.Fatalf("error writing file: %v", err)
	}

	_, skipped, err := inputImages("ignored.gif", dir)

	if err == nil || len(skipped) != 1 {
		t.Errorf("Test failed: expected error and 1 skipped file, got %v %v", err, skipped)
	}
}
