package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/loykin/respawn/internal/logger"
	"github.com/loykin/respawn/internal/process"
	"github.com/spf13/viper"
)

// FileConfig represents the top-level TOML structure.
//
//	env = ["KEY=VALUE"]
//	env_files = [".env"]
//	use_os_env = true
//	programs_directory = "programs"
//
//	[log.slog]
//	level = "info"
//
//	[log.file]
//	dir = "/var/log/respawn"
//
//	[server]
//	listen = "127.0.0.1:8080"
//
//	[store]
//	dsn = "sqlite:///var/lib/respawn/respawn.db"
//
//	[history]
//	sinks = ["clickhouse://localhost:9000/respawn_history"]
//
//	[[processes]]
//	name = "web"
//	command = "python -m http.server"
type FileConfig struct {
	Env         []string       `toml:"env" mapstructure:"env"`
	EnvFiles    []string       `toml:"env_files" mapstructure:"env_files"`
	UseOSEnv    bool           `toml:"use_os_env" mapstructure:"use_os_env"`
	ProgramsDir string         `toml:"programs_directory" mapstructure:"programs_directory"`
	Log         *logger.Config `toml:"log" mapstructure:"log"`
	Server      *ServerConfig  `toml:"server" mapstructure:"server"`
	Metrics     *MetricsConfig `toml:"metrics" mapstructure:"metrics"`
	Store       *StoreConfig   `toml:"store" mapstructure:"store"`
	History     *HistoryConfig `toml:"history" mapstructure:"history"`
	Processes   []ProcConfig   `toml:"processes" mapstructure:"processes"`
}

// ServerConfig configures the management HTTP server.
type ServerConfig struct {
	Listen   string `toml:"listen" mapstructure:"listen"`
	BasePath string `toml:"base_path" mapstructure:"base_path"`
	PIDFile  string `toml:"pidfile" mapstructure:"pidfile"`
	LogFile  string `toml:"logfile" mapstructure:"logfile"`
}

// MetricsConfig configures prometheus exposure. When Listen is empty
// the metrics handler is mounted on the management server instead.
type MetricsConfig struct {
	Enabled bool   `toml:"enabled" mapstructure:"enabled"`
	Listen  string `toml:"listen" mapstructure:"listen"`
}

// StoreConfig selects the run-record store by DSN.
type StoreConfig struct {
	DSN string `toml:"dsn" mapstructure:"dsn"`
}

// HistoryConfig lists event sink DSNs. Each entry is dispatched by
// scheme (sqlite, postgres, clickhouse, opensearch).
type HistoryConfig struct {
	Sinks []string `toml:"sinks" mapstructure:"sinks"`
}

// ProcConfig is one [[processes]] entry. Interval and StopWait accept
// duration strings ("5s", "200ms").
type ProcConfig struct {
	Name     string         `toml:"name" mapstructure:"name"`
	Command  string         `toml:"command" mapstructure:"command"`
	WorkDir  string         `toml:"workdir" mapstructure:"workdir"`
	Env      []string       `toml:"env" mapstructure:"env"`
	PIDFile  string         `toml:"pidfile" mapstructure:"pidfile"`
	Interval time.Duration  `toml:"interval" mapstructure:"interval"`
	StopWait time.Duration  `toml:"stop_wait" mapstructure:"stop_wait"`
	Log      *logger.Config `toml:"log" mapstructure:"log"`
}

// Config is the loaded and resolved configuration: merged environment,
// validated specs with log defaults applied, and the optional service
// sections.
type Config struct {
	Logger    logger.Config
	GlobalEnv []string
	Specs     []process.Spec
	Server    *ServerConfig
	Metrics   *MetricsConfig
	Store     *StoreConfig
	History   *HistoryConfig
}

// LoadConfig reads the unified configuration from a TOML file.
func LoadConfig(path string) (*Config, error) {
	fc, err := readFile(path)
	if err != nil {
		return nil, err
	}
	specs, err := buildSpecs(fc, filepath.Dir(path))
	if err != nil {
		return nil, err
	}
	globalEnv, err := mergeGlobalEnv(fc)
	if err != nil {
		return nil, err
	}
	cfg := &Config{
		GlobalEnv: globalEnv,
		Specs:     specs,
		Server:    fc.Server,
		Metrics:   fc.Metrics,
		Store:     fc.Store,
		History:   fc.History,
	}
	if fc.Log != nil {
		cfg.Logger = *fc.Log
	}
	return cfg, nil
}

// LoadSpecsFromTOML parses a TOML config file into a slice of
// process.Spec, applying global log defaults and per-process overrides.
func LoadSpecsFromTOML(path string) ([]process.Spec, error) {
	fc, err := readFile(path)
	if err != nil {
		return nil, err
	}
	return buildSpecs(fc, filepath.Dir(path))
}

// LoadGlobalEnv merges env from config: optionally the OS environment,
// then env_files contents, then the top-level env list last.
func LoadGlobalEnv(path string) ([]string, error) {
	fc, err := readFile(path)
	if err != nil {
		return nil, err
	}
	return mergeGlobalEnv(fc)
}

// LoadEnvFile parses a simple .env file and returns "KEY=VALUE" entries.
func LoadEnvFile(path string) ([]string, error) {
	m, err := loadEnvFile(path)
	if err != nil {
		return nil, err
	}
	return pairsFromMap(m), nil
}

func readFile(path string) (*FileConfig, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("toml")
	if err := v.ReadInConfig(); err != nil {
		return nil, err
	}
	var fc FileConfig
	if err := v.Unmarshal(&fc); err != nil {
		return nil, err
	}
	return &fc, nil
}

func buildSpecs(fc *FileConfig, baseDir string) ([]process.Spec, error) {
	procs := fc.Processes
	if fc.ProgramsDir != "" {
		extra, err := loadProgramsDir(fc.ProgramsDir, baseDir)
		if err != nil {
			return nil, err
		}
		procs = append(procs, extra...)
	}
	specs := make([]process.Spec, 0, len(procs))
	seen := make(map[string]bool, len(procs))
	for _, pc := range procs {
		if seen[pc.Name] {
			return nil, fmt.Errorf("duplicate process name %q", pc.Name)
		}
		seen[pc.Name] = true
		s := process.Spec{
			Name:     pc.Name,
			Command:  pc.Command,
			WorkDir:  pc.WorkDir,
			Env:      pc.Env,
			PIDFile:  pc.PIDFile,
			Interval: pc.Interval,
			StopWait: pc.StopWait,
			Log:      overlayLog(fc.Log, pc.Log),
		}
		if err := s.Validate(); err != nil {
			return nil, err
		}
		specs = append(specs, s)
	}
	return specs, nil
}

// loadProgramsDir reads every *.toml in dir as a single flat process
// entry (supervisord-style include directory). A relative dir resolves
// against the main config file's directory.
func loadProgramsDir(dir, baseDir string) ([]ProcConfig, error) {
	if !filepath.IsAbs(dir) {
		dir = filepath.Join(baseDir, dir)
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("programs_directory %s: %w", dir, err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".toml") {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)
	procs := make([]ProcConfig, 0, len(names))
	for _, name := range names {
		p := filepath.Join(dir, name)
		v := viper.New()
		v.SetConfigFile(p)
		v.SetConfigType("toml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("program file %s: %w", p, err)
		}
		var pc ProcConfig
		if err := v.Unmarshal(&pc); err != nil {
			return nil, fmt.Errorf("program file %s: %w", p, err)
		}
		procs = append(procs, pc)
	}
	return procs, nil
}

// overlayLog starts from the global log defaults and overrides the
// file-sink fields a process sets explicitly. The slog half only
// applies globally.
func overlayLog(global, per *logger.Config) logger.Config {
	var out logger.Config
	if global != nil {
		out = *global
	}
	if per == nil {
		return out
	}
	if per.File.Path != "" {
		out.File.Path = per.File.Path
	}
	if per.File.Dir != "" {
		out.File.Dir = per.File.Dir
	}
	if per.File.MaxSizeMB != 0 {
		out.File.MaxSizeMB = per.File.MaxSizeMB
	}
	if per.File.MaxBackups != 0 {
		out.File.MaxBackups = per.File.MaxBackups
	}
	if per.File.MaxAgeDays != 0 {
		out.File.MaxAgeDays = per.File.MaxAgeDays
	}
	if per.File.Compress {
		out.File.Compress = true
	}
	return out
}

func mergeGlobalEnv(fc *FileConfig) ([]string, error) {
	m := make(map[string]string)
	if fc.UseOSEnv {
		for _, kv := range os.Environ() {
			if i := strings.IndexByte(kv, '='); i >= 0 {
				m[kv[:i]] = kv[i+1:]
			}
		}
	}
	for _, p := range fc.EnvFiles {
		pairs, err := loadEnvFile(p)
		if err != nil {
			return nil, err
		}
		for k, v := range pairs {
			m[k] = v
		}
	}
	for _, kv := range fc.Env {
		if i := strings.IndexByte(kv, '='); i >= 0 {
			m[kv[:i]] = kv[i+1:]
		}
	}
	return pairsFromMap(m), nil
}

// loadEnvFile parses a simple .env file with KEY=VALUE lines (no
// export, no quotes). Lines starting with # are ignored.
func loadEnvFile(path string) (map[string]string, error) {
	clean := filepath.Clean(path)
	b, err := os.ReadFile(clean)
	if err != nil {
		return nil, err
	}
	m := make(map[string]string)
	for _, line := range strings.Split(string(b), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if i := strings.IndexByte(line, '='); i >= 0 {
			k := strings.TrimSpace(line[:i])
			v := strings.TrimSpace(line[i+1:])
			m[k] = v
		}
	}
	return m, nil
}

func pairsFromMap(m map[string]string) []string {
	out := make([]string, 0, len(m))
	for k, v := range m {
		out = append(out, k+"="+v)
	}
	return out
}
