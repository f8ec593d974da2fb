package utils

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestReadConfigDefaults(t *testing.T) {
	cfg, err := ReadConfig("")
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Threads != 16 || cfg.SourceExt != ".fa.gz" {
		t.Errorf("cfg = %+v", cfg)
	}
	if cfg.Busco.FaaDir != filepath.Join("Annotation", "bakta_faa") {
		t.Errorf("faa dir = %q", cfg.Busco.FaaDir)
	}
	if cfg.Busco.OutDir != filepath.Join("Annotation", "bakta_faa_busco") {
		t.Errorf("busco out = %q", cfg.Busco.OutDir)
	}
	if cfg.Antismash.OutDir != filepath.Join("Annotation", "bakta_antismash") {
		t.Errorf("antismash out = %q", cfg.Antismash.OutDir)
	}
	if cfg.Bakta.Env.Mode != EnvModeRun || cfg.Bakta.Env.Exe != "micromamba" {
		t.Errorf("bakta env = %+v", cfg.Bakta.Env)
	}
	if cfg.BuscoLog() != filepath.Join("Annotation", "bakta_faa_busco.log") {
		t.Errorf("busco log = %q", cfg.BuscoLog())
	}
}

func TestReadConfigFileAndEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cfg.yaml")
	writeFile(t, path, `
threads: 8
annotation_root: /data/Annotation/bakta
bakta:
  db: /db/bakta
  env:
    prefix: /envs/bakta
    mode: activate
rename:
  source_dir: /data/raw
`)
	t.Setenv("GENOME_BATCH_ANTISMASH_TAXON", "fungi")

	cfg, err := ReadConfig(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Threads != 8 || cfg.Bakta.DB != "/db/bakta" {
		t.Errorf("cfg = %+v", cfg)
	}
	if cfg.Bakta.Env.Mode != EnvModeActivate || cfg.Bakta.Env.Exe != "micromamba" {
		t.Errorf("env = %+v", cfg.Bakta.Env)
	}
	if cfg.Antismash.Taxon != "fungi" {
		t.Errorf("taxon = %q, want env override", cfg.Antismash.Taxon)
	}
	if cfg.Busco.FaaDir != "/data/Annotation/bakta_faa" {
		t.Errorf("faa dir = %q", cfg.Busco.FaaDir)
	}
	if cfg.Rename.Exceptions != "/data/raw/exceptions-find-strain.tsv" {
		t.Errorf("exceptions = %q", cfg.Rename.Exceptions)
	}
}

func TestReadConfigInvalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cfg.yaml")
	writeFile(t, path, "threads: 0\nantismash:\n  completeness: 7\nbusco:\n  env:\n    mode: conda\n")
	_, err := ReadConfig(path)
	if err == nil {
		t.Fatal("expected validation errors")
	}
	for _, want := range []string{"threads", "completeness", "conda"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error %q does not mention %s", err, want)
		}
	}
}

func TestWriteConfigRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out", "genome-batch.yaml")
	if err := WriteConfig(path, DefaultConfig(), false); err != nil {
		t.Fatal(err)
	}
	if err := WriteConfig(path, DefaultConfig(), false); err == nil {
		t.Error("second write without overwrite should fail")
	}
	cfg, err := ReadConfig(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Busco.Lineage != "bacteria_odb12" || len(cfg.Cleanup.Keep) != 2 {
		t.Errorf("cfg = %+v", cfg)
	}
}

func TestLoggerWritesJSONFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "stage.log")
	l, err := NewLogger(path, "bakta", slog.LevelInfo)
	if err != nil {
		t.Fatal(err)
	}
	l.Info("Completed", "item", "a.fa.gz")
	l.Debug("hidden")
	if err := l.Close(); err != nil {
		t.Fatal(err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	lines := bytes.Split(bytes.TrimSpace(data), []byte("\n"))
	if len(lines) != 1 {
		t.Fatalf("got %d lines: %s", len(lines), data)
	}
	var rec map[string]any
	if err := json.Unmarshal(lines[0], &rec); err != nil {
		t.Fatal(err)
	}
	if rec["stage"] != "bakta" || rec["item"] != "a.fa.gz" || rec["run_id"] == "" {
		t.Errorf("record = %v", rec)
	}
}

func TestParseLevel(t *testing.T) {
	if l, err := ParseLevel("warn"); err != nil || l != slog.LevelWarn {
		t.Errorf("warn -> %v, %v", l, err)
	}
	if _, err := ParseLevel("loud"); err == nil {
		t.Error("unknown level should fail")
	}
}
