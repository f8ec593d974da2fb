package utils

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// EnvPrefix is the prefix for environment variable overrides, e.g. GENOME_BATCH_THREADS=32.
const EnvPrefix = "GENOME_BATCH"

type Config struct {
	Threads        int           `mapstructure:"threads" yaml:"threads"`
	AnnotationRoot string        `mapstructure:"annotation_root" yaml:"annotation_root"`
	SourceDir      string        `mapstructure:"source_dir" yaml:"source_dir"`
	SourceExt      string        `mapstructure:"source_ext" yaml:"source_ext"`
	ToolTimeout    time.Duration `mapstructure:"tool_timeout" yaml:"tool_timeout"`
	LogLevel       string        `mapstructure:"log_level" yaml:"log_level"`

	Bakta     BaktaConfig     `mapstructure:"bakta" yaml:"bakta"`
	Cleanup   CleanupConfig   `mapstructure:"cleanup" yaml:"cleanup"`
	Busco     BuscoConfig     `mapstructure:"busco" yaml:"busco"`
	Antismash AntismashConfig `mapstructure:"antismash" yaml:"antismash"`
	Rename    RenameConfig    `mapstructure:"rename" yaml:"rename"`
}

type BaktaConfig struct {
	DB             string  `mapstructure:"db" yaml:"db"`
	Gram           string  `mapstructure:"gram" yaml:"gram"`
	LocusTagPrefix string  `mapstructure:"locus_tag_prefix" yaml:"locus_tag_prefix"`
	Complete       bool    `mapstructure:"complete" yaml:"complete"`
	Env            EnvSpec `mapstructure:"env" yaml:"env"`
}

type CleanupConfig struct {
	Keep          []string `mapstructure:"keep" yaml:"keep"`
	ArchiveSuffix string   `mapstructure:"archive_suffix" yaml:"archive_suffix"`
}

type BuscoConfig struct {
	DB      string  `mapstructure:"db" yaml:"db"`
	Lineage string  `mapstructure:"lineage" yaml:"lineage"`
	FaaDir  string  `mapstructure:"faa_dir" yaml:"faa_dir"`
	OutDir  string  `mapstructure:"out_dir" yaml:"out_dir"`
	Exclude string  `mapstructure:"exclude" yaml:"exclude"`
	Env     EnvSpec `mapstructure:"env" yaml:"env"`
}

type AntismashConfig struct {
	OutDir       string  `mapstructure:"out_dir" yaml:"out_dir"`
	GeneFinding  string  `mapstructure:"gene_finding" yaml:"gene_finding"`
	Taxon        string  `mapstructure:"taxon" yaml:"taxon"`
	Completeness int     `mapstructure:"completeness" yaml:"completeness"`
	Env          EnvSpec `mapstructure:"env" yaml:"env"`
}

type RenameConfig struct {
	Spreadsheet string       `mapstructure:"spreadsheet" yaml:"spreadsheet"`
	Sheet       string       `mapstructure:"sheet" yaml:"sheet"`
	SourceDir   string       `mapstructure:"source_dir" yaml:"source_dir"`
	LinkDir     string       `mapstructure:"link_dir" yaml:"link_dir"`
	LinkPrefix  string       `mapstructure:"link_prefix" yaml:"link_prefix"`
	Ext         string       `mapstructure:"ext" yaml:"ext"`
	Exceptions  string       `mapstructure:"exceptions" yaml:"exceptions"`
	RenameList  string       `mapstructure:"rename_list" yaml:"rename_list"`
	ManualLinks []ManualLink `mapstructure:"manual_links" yaml:"manual_links"`
}

// ManualLink is a symlink created verbatim after the spreadsheet mapping.
type ManualLink struct {
	Link   string `mapstructure:"link" yaml:"link"`
	Target string `mapstructure:"target" yaml:"target"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("threads", 16)
	v.SetDefault("annotation_root", "Annotation/bakta")
	v.SetDefault("source_dir", "Genome_fastas")
	v.SetDefault("source_ext", ".fa.gz")
	v.SetDefault("tool_timeout", time.Duration(0))
	v.SetDefault("log_level", "info")

	v.SetDefault("bakta.db", "")
	v.SetDefault("bakta.gram", "+")
	v.SetDefault("bakta.locus_tag_prefix", "")
	v.SetDefault("bakta.complete", false)
	v.SetDefault("bakta.env.prefix", "")
	v.SetDefault("bakta.env.exe", "micromamba")
	v.SetDefault("bakta.env.shell", "bash")
	v.SetDefault("bakta.env.mode", EnvModeRun)

	v.SetDefault("cleanup.keep", []string{".gbff", ".faa"})
	v.SetDefault("cleanup.archive_suffix", "_bakta.tar.xz")

	v.SetDefault("busco.db", "")
	v.SetDefault("busco.lineage", "bacteria_odb12")
	v.SetDefault("busco.faa_dir", "")
	v.SetDefault("busco.out_dir", "")
	v.SetDefault("busco.exclude", "hypothetical")
	v.SetDefault("busco.env.prefix", "")
	v.SetDefault("busco.env.exe", "micromamba")
	v.SetDefault("busco.env.shell", "bash")
	v.SetDefault("busco.env.mode", EnvModeRun)

	v.SetDefault("antismash.out_dir", "")
	v.SetDefault("antismash.gene_finding", "none")
	v.SetDefault("antismash.taxon", "bacteria")
	v.SetDefault("antismash.completeness", 2)
	v.SetDefault("antismash.env.prefix", "")
	v.SetDefault("antismash.env.exe", "micromamba")
	v.SetDefault("antismash.env.shell", "bash")
	v.SetDefault("antismash.env.mode", EnvModeRun)

	v.SetDefault("rename.spreadsheet", "")
	v.SetDefault("rename.sheet", "")
	v.SetDefault("rename.source_dir", "")
	v.SetDefault("rename.link_dir", "")
	v.SetDefault("rename.link_prefix", "Paenibacillus_sp")
	v.SetDefault("rename.ext", ".fa.gz")
	v.SetDefault("rename.exceptions", "")
	v.SetDefault("rename.rename_list", "")
}

// NewViper returns a viper instance carrying defaults and environment overrides,
// ready for flags to be bound on top.
func NewViper() *viper.Viper {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// ReadConfig loads configPath (YAML) on top of the defaults. An empty path yields
// the defaults plus environment overrides.
func ReadConfig(configPath string) (Config, error) {
	return ReadConfigWith(NewViper(), configPath)
}

func ReadConfigWith(v *viper.Viper, configPath string) (Config, error) {
	if configPath != "" {
		v.SetConfigFile(configPath)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("reading config %s: %w", configPath, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decoding config: %w", err)
	}
	cfg.deriveDefaults()
	return cfg, cfg.Validate()
}

// deriveDefaults fills paths that default to siblings of the annotation root,
// e.g. Annotation/bakta -> Annotation/bakta_faa, Annotation/bakta_faa_busco.
func (c *Config) deriveDefaults() {
	root := filepath.Clean(c.AnnotationRoot)
	parent, name := filepath.Dir(root), filepath.Base(root)

	if c.Busco.FaaDir == "" {
		c.Busco.FaaDir = filepath.Join(parent, name+"_faa")
	}
	if c.Busco.OutDir == "" {
		c.Busco.OutDir = filepath.Join(parent, name+"_faa_busco")
	}
	if c.Antismash.OutDir == "" {
		c.Antismash.OutDir = filepath.Join(parent, name+"_antismash")
	}

	if c.Rename.LinkDir == "" {
		c.Rename.LinkDir = c.SourceDir
	}
	if c.Rename.SourceDir != "" {
		if c.Rename.Exceptions == "" {
			c.Rename.Exceptions = filepath.Join(c.Rename.SourceDir, "exceptions-find-strain.tsv")
		}
		if c.Rename.RenameList == "" {
			c.Rename.RenameList = filepath.Join(c.Rename.SourceDir, "file_rename_list.tsv")
		}
	}
}

func (c Config) Validate() error {
	var errs []error
	if c.Threads < 1 {
		errs = append(errs, fmt.Errorf("threads must be >= 1, got %d", c.Threads))
	}
	if c.AnnotationRoot == "" {
		errs = append(errs, errors.New("annotation_root is required"))
	}
	if c.Antismash.Completeness < 0 || c.Antismash.Completeness > 3 {
		errs = append(errs, fmt.Errorf("antismash.completeness must be 0-3, got %d", c.Antismash.Completeness))
	}
	for _, env := range []EnvSpec{c.Bakta.Env, c.Busco.Env, c.Antismash.Env} {
		if err := env.Validate(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// AnnotationLog etc. name the per-stage log files the way the lab scripts always did.
func (c Config) AnnotationLog() string {
	return filepath.Join(c.AnnotationRoot, "Annotation_using_bakta.log")
}

func (c Config) CleanupLog() string {
	return filepath.Join(c.AnnotationRoot, "Annotation_using_bakta_cleanup.log")
}

func (c Config) BuscoLog() string {
	root := filepath.Clean(c.AnnotationRoot)
	return filepath.Join(filepath.Dir(root), filepath.Base(root)+"_faa_busco.log")
}

func (c Config) AntismashLog() string {
	root := filepath.Clean(c.AnnotationRoot)
	return filepath.Join(filepath.Dir(root), filepath.Base(root)+"_antismash.log")
}

// DefaultConfig is what initConfig writes.
func DefaultConfig() Config {
	v := viper.New()
	setDefaults(v)
	var cfg Config
	_ = v.Unmarshal(&cfg)
	return cfg
}

// WriteConfig serialises cfg as YAML. Existing files are only replaced when overwrite is set.
func WriteConfig(path string, cfg Config, overwrite bool) error {
	if !overwrite {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("config file %s already exists", path)
		}
	}
	out, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return err
		}
	}
	return os.WriteFile(path, out, 0644)
}
