package template

import (
	"encoding/json"
	"strings"
	"testing"
)

func TestGenerator_Generate(t *testing.T) {
	generator := NewGenerator()

	tests := []struct {
		name         string
		templateType Type
		processName  string
		expectError  bool
		validate     func(*testing.T, *ProcessTemplate)
	}{
		{
			name:         "web_template",
			templateType: TypeWeb,
			processName:  "my-web-app",
			validate: func(t *testing.T, tpl *ProcessTemplate) {
				if tpl.Name != "my-web-app" {
					t.Errorf("expected name 'my-web-app', got '%s'", tpl.Name)
				}
				if tpl.Command != "python -m http.server 8000" {
					t.Errorf("unexpected command: %s", tpl.Command)
				}
				if tpl.Interval != "5s" {
					t.Errorf("expected interval 5s, got %q", tpl.Interval)
				}
				if len(tpl.Env) != 2 {
					t.Errorf("expected 2 env vars, got %d", len(tpl.Env))
				}
			},
		},
		{
			name:         "api_template",
			templateType: TypeAPI,
			processName:  "user-service",
			validate: func(t *testing.T, tpl *ProcessTemplate) {
				if tpl.Name != "user-service" {
					t.Errorf("expected name 'user-service', got '%s'", tpl.Name)
				}
				if tpl.StopWait != "10s" {
					t.Errorf("expected stop_wait 10s, got %q", tpl.StopWait)
				}
				if tpl.Log == nil || tpl.Log.File == nil {
					t.Error("expected log configuration")
				}
			},
		},
		{
			name:         "worker_template",
			templateType: TypeWorker,
			processName:  "data-worker",
			validate: func(t *testing.T, tpl *ProcessTemplate) {
				if tpl.Command != "./worker" {
					t.Errorf("unexpected command: %s", tpl.Command)
				}
				if tpl.Interval != "10s" {
					t.Errorf("expected interval 10s, got %q", tpl.Interval)
				}
			},
		},
		{
			name:         "database_template",
			templateType: TypeDatabase,
			processName:  "mongo-db",
			validate: func(t *testing.T, tpl *ProcessTemplate) {
				if !strings.Contains(tpl.Command, "mongod") {
					t.Errorf("expected mongod command, got: %s", tpl.Command)
				}
				if tpl.StopWait != "30s" {
					t.Errorf("expected long stop_wait for database, got %q", tpl.StopWait)
				}
			},
		},
		{
			name:         "simple_template",
			templateType: TypeSimple,
			processName:  "hello",
			validate: func(t *testing.T, tpl *ProcessTemplate) {
				if tpl.Log != nil || tpl.WorkDir != "" {
					t.Errorf("simple template must stay minimal: %+v", tpl)
				}
			},
		},
		{
			name:         "alias_types",
			templateType: TypeWebapp,
			processName:  "aliased",
			validate: func(t *testing.T, tpl *ProcessTemplate) {
				if tpl.Command != "python -m http.server 8000" {
					t.Errorf("webapp must alias web: %s", tpl.Command)
				}
			},
		},
		{
			name:         "unknown_type",
			templateType: Type("bogus"),
			processName:  "x",
			expectError:  true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tpl, err := generator.Generate(tt.templateType, tt.processName)
			if tt.expectError {
				if err == nil {
					t.Fatalf("expected error for type %q", tt.templateType)
				}
				return
			}
			if err != nil {
				t.Fatalf("Generate: %v", err)
			}
			tt.validate(t, tpl)
		})
	}
}

func TestGenerateJSON(t *testing.T) {
	generator := NewGenerator()
	data, err := generator.GenerateJSON(TypeWeb, "web-1")
	if err != nil {
		t.Fatalf("GenerateJSON: %v", err)
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if m["name"] != "web-1" || m["command"] == "" {
		t.Fatalf("unexpected JSON: %v", m)
	}
	if _, ok := m["stop_wait"]; ok {
		t.Fatalf("unset fields must be omitted: %v", m)
	}
}

func TestGenerateTOMLSnippet(t *testing.T) {
	generator := NewGenerator()
	data, err := generator.GenerateTOML(TypeDatabase, "pg")
	if err != nil {
		t.Fatalf("GenerateTOML: %v", err)
	}
	s := string(data)
	if !strings.Contains(s, "[[processes]]") {
		t.Fatalf("expected [[processes]] table, got:\n%s", s)
	}
	if !strings.Contains(s, "stop_wait") || !strings.Contains(s, "30s") {
		t.Fatalf("expected stop_wait in snippet, got:\n%s", s)
	}
	if !strings.Contains(s, "pg") {
		t.Fatalf("expected name in snippet, got:\n%s", s)
	}
}

func TestGetSupportedTypes(t *testing.T) {
	types := NewGenerator().GetSupportedTypes()
	if len(types) != 5 {
		t.Fatalf("expected 5 canonical types, got %d: %v", len(types), types)
	}
	for _, typ := range types {
		if _, err := NewGenerator().Generate(Type(typ), "x"); err != nil {
			t.Fatalf("supported type %q must generate: %v", typ, err)
		}
	}
}

func TestGenerateJSONUnknownType(t *testing.T) {
	if _, err := NewGenerator().GenerateJSON(Type("nope"), "x"); err == nil {
		t.Fatalf("expected error")
	}
	if _, err := NewGenerator().GenerateTOML(Type("nope"), "x"); err == nil {
		t.Fatalf("expected error")
	}
}
