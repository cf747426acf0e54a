// Package config loads server configuration from the environment and the
// optional block-type registry file (TOML, or YAML by extension).
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"github.com/alfredjeanlab/kodblock/internal/model"
)

type Config struct {
	DatabaseURL string // KODBLOCK_DATABASE_URL (optional, empty = in-memory store)
	GRPCAddr    string // KODBLOCK_GRPC_ADDR (default ":9090")
	HTTPAddr    string // KODBLOCK_HTTP_ADDR (default ":8080")
	NATSURL     string // KODBLOCK_NATS_URL (optional, empty = no events)
	AuthToken   string // KODBLOCK_AUTH_TOKEN (optional, empty = auth disabled)
	BlocksFile  string // KODBLOCK_BLOCKS_FILE (optional TOML/YAML registry; empty = built-in)

	// Sync settings
	SyncInterval   time.Duration // KODBLOCK_SYNC_INTERVAL (default 3m; 0 = disabled)
	SyncS3Bucket   string        // KODBLOCK_SYNC_S3_BUCKET (enables S3 when set)
	SyncS3Endpoint string        // KODBLOCK_SYNC_S3_ENDPOINT (custom endpoint for MinIO)
	SyncS3Region   string        // KODBLOCK_SYNC_S3_REGION (default "us-east-1")
	SyncS3Key      string        // KODBLOCK_SYNC_S3_KEY (default "kodblock/drafts.jsonl")
	SyncGitRepo    string        // KODBLOCK_SYNC_GIT_REPO (enables git when set; path to clone)
	SyncGitFile    string        // KODBLOCK_SYNC_GIT_FILE (default "drafts.jsonl")
	SyncGitBranch  string        // KODBLOCK_SYNC_GIT_BRANCH (default "main")
}

func Load() (*Config, error) {
	c := &Config{
		DatabaseURL:    os.Getenv("KODBLOCK_DATABASE_URL"),
		GRPCAddr:       envOrDefault("KODBLOCK_GRPC_ADDR", ":9090"),
		HTTPAddr:       envOrDefault("KODBLOCK_HTTP_ADDR", ":8080"),
		NATSURL:        os.Getenv("KODBLOCK_NATS_URL"),
		AuthToken:      os.Getenv("KODBLOCK_AUTH_TOKEN"),
		BlocksFile:     os.Getenv("KODBLOCK_BLOCKS_FILE"),
		SyncS3Bucket:   os.Getenv("KODBLOCK_SYNC_S3_BUCKET"),
		SyncS3Endpoint: os.Getenv("KODBLOCK_SYNC_S3_ENDPOINT"),
		SyncS3Region:   envOrDefault("KODBLOCK_SYNC_S3_REGION", "us-east-1"),
		SyncS3Key:      envOrDefault("KODBLOCK_SYNC_S3_KEY", "kodblock/drafts.jsonl"),
		SyncGitRepo:    os.Getenv("KODBLOCK_SYNC_GIT_REPO"),
		SyncGitFile:    envOrDefault("KODBLOCK_SYNC_GIT_FILE", "drafts.jsonl"),
		SyncGitBranch:  envOrDefault("KODBLOCK_SYNC_GIT_BRANCH", "main"),
	}

	intervalStr := envOrDefault("KODBLOCK_SYNC_INTERVAL", "3m")
	d, err := time.ParseDuration(intervalStr)
	if err != nil {
		return nil, fmt.Errorf("KODBLOCK_SYNC_INTERVAL: %w", err)
	}
	c.SyncInterval = d

	return c, nil
}

// Registry returns the block-type registry named by BlocksFile, or the
// built-in registry when no file is configured.
func (c *Config) Registry() (*model.Registry, error) {
	if c.BlocksFile == "" {
		return model.DefaultRegistry(), nil
	}
	return LoadRegistry(c.BlocksFile)
}

// registryFile is the on-disk shape of a block registry:
//
//	builtin = true          # start from the built-in vocabulary
//
//	[[block]]
//	name    = "farg-multi"
//	kind    = "multi"
//	field   = "FARG"
//	options = ["RÖD", "BLÅ"]
//
// The YAML form uses the same keys with a "blocks" list.
type registryFile struct {
	Builtin bool              `toml:"builtin" yaml:"builtin"`
	Blocks  []model.BlockType `toml:"block" yaml:"blocks"`
}

// LoadRegistry decodes a registry file. Files ending in .yaml or .yml are
// read as YAML, anything else as TOML. Entries whose name matches a
// built-in type replace it in place; new entries are appended.
func LoadRegistry(path string) (*model.Registry, error) {
	if !isYAML(path) {
		var f registryFile
		if _, err := toml.DecodeFile(path, &f); err != nil {
			return nil, fmt.Errorf("decode %s: %w", path, err)
		}
		return buildRegistry(f)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	r, err := ParseRegistryYAML(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return r, nil
}

func isYAML(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return true
	}
	return false
}

// ParseRegistry is LoadRegistry for in-memory TOML.
func ParseRegistry(data string) (*model.Registry, error) {
	var f registryFile
	if _, err := toml.Decode(data, &f); err != nil {
		return nil, fmt.Errorf("decode registry: %w", err)
	}
	return buildRegistry(f)
}

// ParseRegistryYAML is LoadRegistry for in-memory YAML.
func ParseRegistryYAML(data []byte) (*model.Registry, error) {
	var f registryFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("decode registry: %w", err)
	}
	return buildRegistry(f)
}

func buildRegistry(f registryFile) (*model.Registry, error) {
	var types []model.BlockType
	if f.Builtin {
		types = model.DefaultTypes()
	}
	pos := make(map[string]int, len(types))
	for i, t := range types {
		pos[t.Name] = i
	}
	for _, t := range f.Blocks {
		if i, ok := pos[t.Name]; ok {
			types[i] = t
			continue
		}
		pos[t.Name] = len(types)
		types = append(types, t)
	}
	return model.NewRegistry(types)
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
