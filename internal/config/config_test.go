package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
debug: true
server:
  port: 9001
retrieval:
  corpus_path: ./corpus.txt
  index_dir: ./indices
  chunk_size: 300
  top_k: 6
memory:
  dir: ./memory
llm:
  model: some-model
narrative:
  style: republican
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if !cfg.Debug {
		t.Error("debug should be true")
	}
	if cfg.Server.Port != 9001 {
		t.Errorf("port = %d", cfg.Server.Port)
	}
	if cfg.Server.Host != "localhost" {
		t.Errorf("host default = %q", cfg.Server.Host)
	}
	if cfg.Retrieval.ChunkSize != 300 || cfg.Retrieval.TopK != 6 {
		t.Errorf("retrieval = %+v", cfg.Retrieval)
	}
	if cfg.Retrieval.CorpusPath != filepath.Join(dir, "corpus.txt") {
		t.Errorf("corpus path not expanded: %q", cfg.Retrieval.CorpusPath)
	}
	if cfg.Memory.Dir != filepath.Join(dir, "memory") {
		t.Errorf("memory dir not expanded: %q", cfg.Memory.Dir)
	}
	if cfg.LLM.Model != "some-model" {
		t.Errorf("llm model = %q", cfg.LLM.Model)
	}
	if cfg.Narrative.Style != StyleRepublican {
		t.Errorf("style = %q", cfg.Narrative.Style)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestApplyDefaults(t *testing.T) {
	var cfg Config
	ApplyDefaults(&cfg)
	if cfg.Retrieval.TopK != 4 {
		t.Errorf("default top_k = %d", cfg.Retrieval.TopK)
	}
	if cfg.Retrieval.ChunkSize != 500 {
		t.Errorf("default chunk_size = %d", cfg.Retrieval.ChunkSize)
	}
	if cfg.Embedding.Dimensions != 1024 {
		t.Errorf("default dimensions = %d", cfg.Embedding.Dimensions)
	}
	if cfg.Narrative.Style != StyleAuto {
		t.Errorf("default style = %q", cfg.Narrative.Style)
	}
	if cfg.LLM.StoryMaxTokens != 3000 {
		t.Errorf("default story max tokens = %d", cfg.LLM.StoryMaxTokens)
	}
}

func TestAPIKeyLookup(t *testing.T) {
	var cfg Config
	ApplyDefaults(&cfg)
	t.Setenv("EMBEDDING_API_KEY", "ek")
	t.Setenv("LLM_API_KEY", "lk")
	if cfg.EmbeddingAPIKey() != "ek" {
		t.Errorf("embedding key = %q", cfg.EmbeddingAPIKey())
	}
	if cfg.LLMAPIKey() != "lk" {
		t.Errorf("llm key = %q", cfg.LLMAPIKey())
	}
}
