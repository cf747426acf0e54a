package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/alfredjeanlab/kodblock/internal/model"
)

// allEnvVars lists every variable Load reads; each test starts from a clean slate.
var allEnvVars = []string{
	"KODBLOCK_DATABASE_URL", "KODBLOCK_GRPC_ADDR", "KODBLOCK_HTTP_ADDR", "KODBLOCK_NATS_URL",
	"KODBLOCK_AUTH_TOKEN", "KODBLOCK_BLOCKS_FILE",
	"KODBLOCK_SYNC_INTERVAL", "KODBLOCK_SYNC_S3_BUCKET", "KODBLOCK_SYNC_S3_ENDPOINT",
	"KODBLOCK_SYNC_S3_REGION", "KODBLOCK_SYNC_S3_KEY", "KODBLOCK_SYNC_GIT_REPO",
	"KODBLOCK_SYNC_GIT_FILE", "KODBLOCK_SYNC_GIT_BRANCH",
}

func clearAllEnv(t *testing.T) {
	t.Helper()
	for _, key := range allEnvVars {
		t.Setenv(key, "")
	}
}

func TestLoad(t *testing.T) {
	for _, tc := range []struct {
		name         string
		env          map[string]string
		wantDB       string
		wantGRPCAddr string
		wantHTTPAddr string
		wantNATSURL  string
		wantToken    string
	}{
		{
			name:         "Defaults",
			env:          map[string]string{},
			wantGRPCAddr: ":9090",
			wantHTTPAddr: ":8080",
		},
		{
			name: "Custom",
			env: map[string]string{
				"KODBLOCK_DATABASE_URL": "postgres://db:5432/kodblock",
				"KODBLOCK_GRPC_ADDR":    ":5050",
				"KODBLOCK_HTTP_ADDR":    ":3000",
				"KODBLOCK_NATS_URL":     "nats://localhost:4222",
				"KODBLOCK_AUTH_TOKEN":   "s3cret",
			},
			wantDB:       "postgres://db:5432/kodblock",
			wantGRPCAddr: ":5050",
			wantHTTPAddr: ":3000",
			wantNATSURL:  "nats://localhost:4222",
			wantToken:    "s3cret",
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			clearAllEnv(t)
			for k, v := range tc.env {
				t.Setenv(k, v)
			}

			cfg, err := Load()
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if cfg.DatabaseURL != tc.wantDB {
				t.Errorf("DatabaseURL = %q, want %q", cfg.DatabaseURL, tc.wantDB)
			}
			if cfg.GRPCAddr != tc.wantGRPCAddr {
				t.Errorf("GRPCAddr = %q, want %q", cfg.GRPCAddr, tc.wantGRPCAddr)
			}
			if cfg.HTTPAddr != tc.wantHTTPAddr {
				t.Errorf("HTTPAddr = %q, want %q", cfg.HTTPAddr, tc.wantHTTPAddr)
			}
			if cfg.NATSURL != tc.wantNATSURL {
				t.Errorf("NATSURL = %q, want %q", cfg.NATSURL, tc.wantNATSURL)
			}
			if cfg.AuthToken != tc.wantToken {
				t.Errorf("AuthToken = %q, want %q", cfg.AuthToken, tc.wantToken)
			}
		})
	}
}

func TestLoadSyncDefaults(t *testing.T) {
	clearAllEnv(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.SyncInterval != 3*time.Minute {
		t.Errorf("SyncInterval = %v, want 3m", cfg.SyncInterval)
	}
	if cfg.SyncS3Region != "us-east-1" {
		t.Errorf("SyncS3Region = %q, want %q", cfg.SyncS3Region, "us-east-1")
	}
	if cfg.SyncS3Key != "kodblock/drafts.jsonl" {
		t.Errorf("SyncS3Key = %q, want %q", cfg.SyncS3Key, "kodblock/drafts.jsonl")
	}
	if cfg.SyncGitFile != "drafts.jsonl" {
		t.Errorf("SyncGitFile = %q, want %q", cfg.SyncGitFile, "drafts.jsonl")
	}
	if cfg.SyncGitBranch != "main" {
		t.Errorf("SyncGitBranch = %q, want %q", cfg.SyncGitBranch, "main")
	}
}

func TestLoadSyncCustom(t *testing.T) {
	clearAllEnv(t)
	t.Setenv("KODBLOCK_SYNC_INTERVAL", "10m")
	t.Setenv("KODBLOCK_SYNC_S3_BUCKET", "my-bucket")
	t.Setenv("KODBLOCK_SYNC_S3_ENDPOINT", "http://minio:9000")
	t.Setenv("KODBLOCK_SYNC_GIT_REPO", "/tmp/repo")
	t.Setenv("KODBLOCK_SYNC_GIT_BRANCH", "backup")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.SyncInterval != 10*time.Minute {
		t.Errorf("SyncInterval = %v, want 10m", cfg.SyncInterval)
	}
	if cfg.SyncS3Bucket != "my-bucket" {
		t.Errorf("SyncS3Bucket = %q", cfg.SyncS3Bucket)
	}
	if cfg.SyncS3Endpoint != "http://minio:9000" {
		t.Errorf("SyncS3Endpoint = %q", cfg.SyncS3Endpoint)
	}
	if cfg.SyncGitRepo != "/tmp/repo" {
		t.Errorf("SyncGitRepo = %q", cfg.SyncGitRepo)
	}
	if cfg.SyncGitBranch != "backup" {
		t.Errorf("SyncGitBranch = %q", cfg.SyncGitBranch)
	}
}

func TestLoadSyncInvalidInterval(t *testing.T) {
	clearAllEnv(t)
	t.Setenv("KODBLOCK_SYNC_INTERVAL", "not-a-duration")

	if _, err := Load(); err == nil {
		t.Fatal("expected error for invalid KODBLOCK_SYNC_INTERVAL")
	}
}

func TestEnvOrDefault(t *testing.T) {
	for _, tc := range []struct {
		name     string
		key      string
		envVal   string
		fallback string
		want     string
	}{
		{"EmptyUsesDefault", "TEST_ENVDEFAULT_EMPTY", "", "default-val", "default-val"},
		{"SetUsesEnv", "TEST_ENVDEFAULT_SET", "custom", "default-val", "custom"},
	} {
		t.Run(tc.name, func(t *testing.T) {
			t.Setenv(tc.key, tc.envVal)
			if got := envOrDefault(tc.key, tc.fallback); got != tc.want {
				t.Errorf("envOrDefault(%q, %q) = %q, want %q", tc.key, tc.fallback, got, tc.want)
			}
		})
	}
}

func TestRegistryBuiltin(t *testing.T) {
	cfg := &Config{}
	r, err := cfg.Registry()
	if err != nil {
		t.Fatalf("Registry: %v", err)
	}
	if _, ok := r.Lookup("regnr"); !ok {
		t.Error("built-in registry missing regnr")
	}
}

func TestParseRegistry(t *testing.T) {
	for _, tc := range []struct {
		name     string
		data     string
		wantErr  bool
		wantLen  int
		wantName string
		wantKind model.Kind
	}{
		{
			name: "StandaloneBlocks",
			data: `
[[block]]
name = "farg-multi"
kind = "multi"
field = "FARG"
options = ["RÖD", "BLÅ"]
`,
			wantLen:  1,
			wantName: "farg-multi",
			wantKind: model.KindMulti,
		},
		{
			name: "OverrideBuiltin",
			data: `
builtin = true

[[block]]
name = "drivmedel"
kind = "field"
field = "DRIVMEDEL"
options = ["EL"]
`,
			wantLen:  len(model.DefaultTypes()),
			wantName: "drivmedel",
			wantKind: model.KindField,
		},
		{
			name: "UnknownKind",
			data: `
[[block]]
name = "x"
kind = "bogus"
`,
			wantErr: true,
		},
		{
			name:    "Malformed",
			data:    `[[block]`,
			wantErr: true,
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			r, err := ParseRegistry(tc.data)
			if tc.wantErr {
				if err == nil {
					t.Fatal("expected error, got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got := len(r.Types()); got != tc.wantLen {
				t.Errorf("len(Types) = %d, want %d", got, tc.wantLen)
			}
			bt, ok := r.Lookup(tc.wantName)
			if !ok {
				t.Fatalf("Lookup(%q) missing", tc.wantName)
			}
			if bt.Kind != tc.wantKind {
				t.Errorf("Kind = %q, want %q", bt.Kind, tc.wantKind)
			}
		})
	}
}

func TestLoadRegistryFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "blocks.toml")
	data := "[[block]]\nname = \"effekt\"\nkind = \"numeric\"\nfield = \"EFFEKT\"\n"
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg := &Config{BlocksFile: path}
	r, err := cfg.Registry()
	if err != nil {
		t.Fatalf("Registry: %v", err)
	}
	bt, ok := r.Lookup("effekt")
	if !ok || bt.Field != "EFFEKT" {
		t.Errorf("Lookup(effekt) = %+v, %v", bt, ok)
	}

	if _, err := LoadRegistry(filepath.Join(t.TempDir(), "missing.toml")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestParseRegistryYAML(t *testing.T) {
	fromTOML, err := ParseRegistry(`
builtin = true

[[block]]
name = "farg-multi"
label = "Färg (flera)"
kind = "multi"
field = "FARG"
options = ["RÖD", "BLÅ"]
`)
	if err != nil {
		t.Fatalf("ParseRegistry: %v", err)
	}
	fromYAML, err := ParseRegistryYAML([]byte(`
builtin: true
blocks:
  - name: farg-multi
    label: Färg (flera)
    kind: multi
    field: FARG
    options: [RÖD, BLÅ]
`))
	if err != nil {
		t.Fatalf("ParseRegistryYAML: %v", err)
	}
	if diff := cmp.Diff(fromTOML.Types(), fromYAML.Types()); diff != "" {
		t.Errorf("YAML registry differs from TOML (-toml +yaml):\n%s", diff)
	}

	if _, err := ParseRegistryYAML([]byte("blocks:\n  - name: x\n    kind: bogus\n")); err == nil {
		t.Error("expected error for unknown kind")
	}
	if _, err := ParseRegistryYAML([]byte("blocks: [")); err == nil {
		t.Error("expected error for malformed YAML")
	}
}

func TestLoadRegistryYAMLFile(t *testing.T) {
	for _, name := range []string{"blocks.yaml", "blocks.YML"} {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), name)
			data := "blocks:\n  - name: effekt\n    kind: numeric\n    field: EFFEKT\n"
			if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
				t.Fatal(err)
			}
			r, err := LoadRegistry(path)
			if err != nil {
				t.Fatalf("LoadRegistry: %v", err)
			}
			want := []model.BlockType{{Name: "effekt", Kind: model.KindNumeric, Field: "EFFEKT"}}
			if diff := cmp.Diff(want, r.Types()); diff != "" {
				t.Errorf("Types mismatch (-want +got):\n%s", diff)
			}
		})
	}
}
