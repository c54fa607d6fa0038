package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/loykin/respawn/pkg/template"
)

// TemplateCreate writes a process config scaffold for a service type.
func (c *command) TemplateCreate(f TemplateCreateFlags) error {
	// Use provided name or default based on type
	templateName := f.Name
	if templateName == "" {
		templateName = f.Type + "-sample"
	}

	format := strings.ToLower(f.Format)
	if format == "" {
		format = "toml"
	}
	var ext string
	switch format {
	case "toml":
		ext = ".toml"
	case "json":
		ext = ".json"
	default:
		return fmt.Errorf("unknown template format %q (supported: toml, json)", f.Format)
	}

	// Determine output file path
	outputPath := f.Output
	if outputPath == "" {
		templatesDir := c.getTemplatesDirectory()
		if err := os.MkdirAll(templatesDir, 0o755); err != nil {
			return fmt.Errorf("failed to create templates directory: %w", err)
		}
		outputPath = filepath.Join(templatesDir, templateName+ext)
	}

	// Check if file already exists and force flag not set
	if _, err := os.Stat(outputPath); err == nil && !f.Force {
		return fmt.Errorf("template file '%s' already exists (use --force to overwrite)", outputPath)
	}

	// Generate template content based on type
	generator := template.NewGenerator()
	var content []byte
	var err error
	if format == "json" {
		content, err = generator.GenerateJSON(template.Type(f.Type), templateName)
	} else {
		content, err = generator.GenerateTOML(template.Type(f.Type), templateName)
	}
	if err != nil {
		return fmt.Errorf("failed to generate template: %w", err)
	}

	// Write template file
	if err := os.WriteFile(outputPath, content, 0o644); err != nil {
		return fmt.Errorf("failed to write template file: %w", err)
	}

	_, _ = fmt.Fprintf(c.out, "Template '%s' created: %s\n", templateName, outputPath)
	_, _ = fmt.Fprintf(c.out, "Edit it and add it to your config's [[processes]] or programs directory\n")
	return nil
}

// getTemplatesDirectory returns the directory where templates are stored
func (c *command) getTemplatesDirectory() string {
	return "templates"
}
