// Package template scaffolds [[processes]] config snippets for common
// service shapes.
package template

import (
	"encoding/json"
	"fmt"

	toml "github.com/pelletier/go-toml/v2"
)

// Type selects the template to generate.
type Type string

const (
	TypeWeb        Type = "web"
	TypeWebapp     Type = "webapp"
	TypeAPI        Type = "api"
	TypeService    Type = "service"
	TypeWorker     Type = "worker"
	TypeBackground Type = "background"
	TypeDatabase   Type = "database"
	TypeDB         Type = "db"
	TypeSimple     Type = "simple"
	TypeBasic      Type = "basic"
)

// ProcessTemplate is one scaffolded [[processes]] entry. Interval and
// StopWait are duration strings so the snippet pastes straight into a
// config file.
type ProcessTemplate struct {
	Name     string     `json:"name" toml:"name"`
	Command  string     `json:"command" toml:"command"`
	WorkDir  string     `json:"workdir,omitempty" toml:"workdir,omitempty"`
	Interval string     `json:"interval,omitempty" toml:"interval,omitempty"`
	StopWait string     `json:"stop_wait,omitempty" toml:"stop_wait,omitempty"`
	Env      []string   `json:"env,omitempty" toml:"env,omitempty"`
	Log      *LogConfig `json:"log,omitempty" toml:"log,omitempty"`
}

// LogConfig nests the child output sink settings.
type LogConfig struct {
	File *FileLogConfig `json:"file,omitempty" toml:"file,omitempty"`
}

// FileLogConfig points child output at a directory; the sink becomes
// <dir>/<name>.log.
type FileLogConfig struct {
	Dir string `json:"dir" toml:"dir"`
}

// Generator provides template generation functionality.
type Generator struct{}

// NewGenerator creates a new template generator.
func NewGenerator() *Generator {
	return &Generator{}
}

// Generate creates a process template based on the specified type and name.
func (g *Generator) Generate(templateType Type, name string) (*ProcessTemplate, error) {
	switch templateType {
	case TypeWeb, TypeWebapp:
		return g.generateWebTemplate(name), nil
	case TypeAPI, TypeService:
		return g.generateAPITemplate(name), nil
	case TypeWorker, TypeBackground:
		return g.generateWorkerTemplate(name), nil
	case TypeDatabase, TypeDB:
		return g.generateDatabaseTemplate(name), nil
	case TypeSimple, TypeBasic:
		return g.generateSimpleTemplate(name), nil
	default:
		return nil, fmt.Errorf("unknown template type: %s (supported: web, api, worker, database, simple)", templateType)
	}
}

// GenerateJSON renders the template as indented JSON.
func (g *Generator) GenerateJSON(templateType Type, name string) ([]byte, error) {
	tpl, err := g.Generate(templateType, name)
	if err != nil {
		return nil, err
	}
	data, err := json.MarshalIndent(tpl, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal template: %w", err)
	}
	return data, nil
}

// GenerateTOML renders the template as a [[processes]] snippet ready
// to append to a config file.
func (g *Generator) GenerateTOML(templateType Type, name string) ([]byte, error) {
	tpl, err := g.Generate(templateType, name)
	if err != nil {
		return nil, err
	}
	doc := struct {
		Processes []ProcessTemplate `toml:"processes"`
	}{Processes: []ProcessTemplate{*tpl}}
	data, err := toml.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal template: %w", err)
	}
	return data, nil
}

// GetSupportedTypes returns a list of all supported template types.
func (g *Generator) GetSupportedTypes() []string {
	return []string{
		string(TypeWeb),
		string(TypeAPI),
		string(TypeWorker),
		string(TypeDatabase),
		string(TypeSimple),
	}
}

func (g *Generator) generateWebTemplate(name string) *ProcessTemplate {
	return &ProcessTemplate{
		Name:     name,
		Command:  "python -m http.server 8000",
		WorkDir:  "/app",
		Interval: "5s",
		Log:      &LogConfig{File: &FileLogConfig{Dir: "/var/log/" + name}},
		Env: []string{
			"PORT=8000",
			"ENV=production",
		},
	}
}

func (g *Generator) generateAPITemplate(name string) *ProcessTemplate {
	return &ProcessTemplate{
		Name:     name,
		Command:  "./api-server",
		WorkDir:  "/app",
		Interval: "3s",
		StopWait: "10s",
		Log:      &LogConfig{File: &FileLogConfig{Dir: "/var/log/" + name}},
		Env: []string{
			"PORT=3000",
			"LOG_LEVEL=info",
		},
	}
}

func (g *Generator) generateWorkerTemplate(name string) *ProcessTemplate {
	return &ProcessTemplate{
		Name:     name,
		Command:  "./worker",
		WorkDir:  "/app",
		Interval: "10s",
		Log:      &LogConfig{File: &FileLogConfig{Dir: "/var/log/" + name}},
		Env: []string{
			"WORKER_THREADS=4",
			"LOG_LEVEL=info",
		},
	}
}

func (g *Generator) generateDatabaseTemplate(name string) *ProcessTemplate {
	// Databases want a long drain before SIGKILL.
	return &ProcessTemplate{
		Name:     name,
		Command:  "mongod --dbpath /data/db --port 27017",
		WorkDir:  "/data",
		Interval: "5s",
		StopWait: "30s",
		Log:      &LogConfig{File: &FileLogConfig{Dir: "/var/log/" + name}},
		Env: []string{
			"DB_PORT=27017",
			"DB_PATH=/data/db",
		},
	}
}

func (g *Generator) generateSimpleTemplate(name string) *ProcessTemplate {
	return &ProcessTemplate{
		Name:    name,
		Command: "echo 'Hello from " + name + "'",
	}
}
