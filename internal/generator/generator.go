package generator

import (
	"bytes"
	"context"
	"fmt"
	"text/template"

	"github.com/fleetd/fleet-server/internal/models"
)

// Artifact is one rendered configuration for a feature slot
type Artifact struct {
	Content []byte
	// Generated is false when no template applies to the slot, which is not
	// an error: the engine declines to push instead.
	Generated bool
}

// Generator renders configuration artifacts. The engine only consumes the
// artifact bytes; template semantics live entirely behind this boundary.
type Generator interface {
	Generate(ctx context.Context, deviceType *models.DeviceType, device *models.Device, slot models.Slot, assignment *models.ConfigAssignment, variables map[string]string) (*Artifact, error)
}

// TemplateGenerator renders assignments from a named template set
type TemplateGenerator struct {
	templates map[string]*template.Template
}

// NewTemplateGenerator creates a generator over named template bodies
func NewTemplateGenerator(bodies map[string]string) (*TemplateGenerator, error) {
	templates := make(map[string]*template.Template, len(bodies))
	for name, body := range bodies {
		tmpl, err := template.New(name).Option("missingkey=zero").Parse(body)
		if err != nil {
			return nil, fmt.Errorf("parse template %s: %w", name, err)
		}
		templates[name] = tmpl
	}
	return &TemplateGenerator{templates: templates}, nil
}

// Generate renders the assigned template with the resolved variables
func (g *TemplateGenerator) Generate(ctx context.Context, deviceType *models.DeviceType, device *models.Device, slot models.Slot, assignment *models.ConfigAssignment, variables map[string]string) (*Artifact, error) {
	if assignment == nil || assignment.TemplateName == "" {
		return &Artifact{Generated: false}, nil
	}

	tmpl, ok := g.templates[assignment.TemplateName]
	if !ok {
		return &Artifact{Generated: false}, nil
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, variables); err != nil {
		return nil, fmt.Errorf("render template %s: %w", assignment.TemplateName, err)
	}

	return &Artifact{Content: buf.Bytes(), Generated: true}, nil
}
