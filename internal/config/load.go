package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-viper/mapstructure/v2"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes environment overrides, e.g. NORMALIZE_STORAGE_DB_DSN.
const EnvPrefix = "NORMALIZE"

// Keys that may be set from the environment even when the pipeline file
// leaves them out. Secrets belong here rather than in pipeline files.
var envKeys = []string{
	"job",
	"store.kind",
	"store.dir",
	"storage.kind",
	"storage.db.dsn",
	"storage.db.table",
	"source.s3.access_key",
	"source.s3.secret_key",
}

// Defaults applied before the pipeline file is read.
var defaults = map[string]any{
	"source.kind":          "file",
	"source.compression":   "auto",
	"parser.kind":          "csv",
	"store.kind":           "memory",
	"storage.db.mode":      ModeUpdate,
	"runtime.batch_size":   5000,
	"runtime.load_workers": 4,
}

// Load reads a JSON or YAML pipeline (chosen by extension). A .env file next
// to the pipeline, or in the working directory, is loaded first; variables
// already set in the environment win.
func Load(path string) (*Pipeline, error) {
	for _, env := range []string{filepath.Join(filepath.Dir(path), ".env"), ".env"} {
		if _, err := os.Stat(env); err == nil {
			if err := godotenv.Load(env); err != nil {
				return nil, fmt.Errorf("config: load %s: %w", env, err)
			}
		}
	}

	v := viper.New()
	for k, d := range defaults {
		v.SetDefault(k, d)
	}
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for _, k := range envKeys {
		if err := v.BindEnv(k); err != nil {
			return nil, fmt.Errorf("config: bind %s: %w", k, err)
		}
	}

	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	var p Pipeline
	if err := v.Unmarshal(&p, func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "json"
	}); err != nil {
		return nil, fmt.Errorf("config: decode %s: %w", path, err)
	}
	p.ApplyDefaults()
	return &p, nil
}

// ApplyDefaults fills values that depend on other values.
func (p *Pipeline) ApplyDefaults() {
	if p.Parser.Options == nil {
		p.Parser.Options = Options{}
	}
	if p.Storage.DB.Mode == "" {
		p.Storage.DB.Mode = ModeUpdate
	}
	if p.Resource.Name == "" {
		p.Resource.Name = p.Storage.DB.Table
	}
	if p.Resource.Name == "" {
		p.Resource.Name = p.Job
	}
	for i := range p.Normalize.Groups {
		if p.Normalize.Groups[i].Index == "" {
			p.Normalize.Groups[i].Index = "id"
		}
	}
}

// Persist reports whether the pipeline writes to a database.
func (p *Pipeline) Persist() bool {
	k := strings.ToLower(strings.TrimSpace(p.Storage.Kind))
	return k != "" && k != "none"
}
