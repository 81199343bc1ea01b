package templates

import (
	"embed"
	"html/template"
)

//go:embed templates/*
var resources embed.FS

// TemplateExecutor holds every page under templates/, looked up by file name.
var TemplateExecutor = template.Must(template.ParseFS(resources, "templates/*"))
