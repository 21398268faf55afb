package factory

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/mikey/phish-detector/internal/adapters/artifacts"
	"github.com/mikey/phish-detector/internal/adapters/filter"
	"github.com/mikey/phish-detector/internal/adapters/store"
	"github.com/mikey/phish-detector/internal/config"
	"github.com/mikey/phish-detector/internal/utils"
	"github.com/mikey/phish-detector/internal/whitelist"
	"go.uber.org/zap/zaptest"
)

func newConfig(settings map[string]any) *config.Config {
	v := config.NewEmptyViper()
	for k, val := range settings {
		v.Set(k, val)
	}
	return config.NewFromViper(v)
}

func TestCreateResultStore(t *testing.T) {
	dir := t.TempDir()
	logger := zaptest.NewLogger(t)

	tests := []struct {
		name     string
		settings map[string]any
		wantKind string
		wantErr  bool
	}{
		{"memory", map[string]any{"store.type": "memory"}, "", false},
		{"sqlite", map[string]any{"store.type": "sqlite", "store.sqlite_path": filepath.Join(dir, "a", "results.db")}, "sqlite", false},
		{"sqlite-pure", map[string]any{"store.type": "sqlite-pure", "store.sqlite_path": filepath.Join(dir, "b", "results.db")}, "sqlite-pure", false},
		{"mysql", map[string]any{"store.type": "mysql"}, "mysql", false},
		{"unknown", map[string]any{"store.type": "redis"}, "", true},
		{"bad timeout", map[string]any{"store.type": "memory", "store.busy_timeout": "soon"}, "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := NewStoreFactory(newConfig(tt.settings), logger).CreateResultStore()
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected an error")
				}
				return
			}
			if err != nil {
				t.Fatalf("CreateResultStore: %v", err)
			}
			switch got := s.(type) {
			case *store.MemoryStore:
				if tt.wantKind != "" {
					t.Fatalf("got memory store, want %s", tt.wantKind)
				}
			case *store.SQLStore:
				if got.Kind() != tt.wantKind {
					t.Fatalf("kind = %s, want %s", got.Kind(), tt.wantKind)
				}
			default:
				t.Fatalf("unexpected store type %T", s)
			}
		})
	}

	if _, err := os.Stat(filepath.Join(dir, "b")); err != nil {
		t.Fatalf("sqlite directory was not created: %v", err)
	}
}

func TestCreateArtifactRepository(t *testing.T) {
	logger := zaptest.NewLogger(t)

	repo, err := NewArtifactFactory(newConfig(nil), logger).CreateArtifactRepository()
	if err != nil {
		t.Fatalf("CreateArtifactRepository: %v", err)
	}
	if _, ok := repo.(*artifacts.FileRepository); !ok {
		t.Fatalf("expected file repository without a TTL, got %T", repo)
	}

	repo, err = NewArtifactFactory(newConfig(map[string]any{"artifacts.cache_ttl": "5m"}), logger).CreateArtifactRepository()
	if err != nil {
		t.Fatalf("CreateArtifactRepository: %v", err)
	}
	if _, ok := repo.(*artifacts.CachedRepository); !ok {
		t.Fatalf("expected cached repository with a TTL, got %T", repo)
	}
}

func TestCreateNormalizerWithStopwordsFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "stopwords.yaml")
	if err := os.WriteFile(path, []byte("terms:\n  - invoice\n"), 0644); err != nil {
		t.Fatal(err)
	}

	f := NewPreprocessFactory(newConfig(map[string]any{"normalizer.stopwords_file": path}), zaptest.NewLogger(t))
	n, err := f.CreateNormalizer()
	if err != nil {
		t.Fatalf("CreateNormalizer: %v", err)
	}
	if !n.IsStopword("invoice") {
		t.Fatal("configured stop word was not loaded")
	}

	f = NewPreprocessFactory(newConfig(map[string]any{"normalizer.stopwords_file": filepath.Join(t.TempDir(), "missing.yaml")}), zaptest.NewLogger(t))
	if _, err := f.CreateNormalizer(); err == nil {
		t.Fatal("expected an error for a missing stop word file")
	}
}

func TestCreateEmailFilter(t *testing.T) {
	logger := zaptest.NewLogger(t)
	screener := filter.NewScreener(nil, whitelist.NewChecker(nil, logger), utils.NewTextProcessor(logger), 1024, logger)

	tests := []struct {
		filterType string
		check      func(any) bool
	}{
		{"postfix", func(f any) bool { _, ok := f.(*filter.PostfixFilter); return ok }},
		{"cli", func(f any) bool { _, ok := f.(*filter.CliFilter); return ok }},
		{"milter", nil},
	}
	for _, tt := range tests {
		cfg := newConfig(map[string]any{"server.filter_type": tt.filterType})
		f, err := NewFilterFactory(cfg, logger, screener).CreateEmailFilter()
		if tt.check == nil {
			if err == nil {
				t.Errorf("%s: expected an error", tt.filterType)
			}
			continue
		}
		if err != nil {
			t.Fatalf("%s: %v", tt.filterType, err)
		}
		if !tt.check(f) {
			t.Errorf("%s: unexpected filter type %T", tt.filterType, f)
		}
	}
}
