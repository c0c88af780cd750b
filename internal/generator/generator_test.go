package generator

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fleetd/fleet-server/internal/models"
)

func TestGenerateRendersAssignedTemplate(t *testing.T) {
	gen, err := NewTemplateGenerator(map[string]string{
		"main": "hostname {{.name}}\nserial {{.serial}}\n",
	})
	require.NoError(t, err)

	artifact, err := gen.Generate(context.Background(), &models.DeviceType{}, &models.Device{},
		models.SlotPrimary, &models.ConfigAssignment{TemplateName: "main"},
		map[string]string{"name": "unit-1", "serial": "RX100"})
	require.NoError(t, err)
	assert.True(t, artifact.Generated)
	assert.Equal(t, "hostname unit-1\nserial RX100\n", string(artifact.Content))
}

func TestGenerateDeclinesWithoutAssignment(t *testing.T) {
	gen, err := NewTemplateGenerator(map[string]string{"main": "x"})
	require.NoError(t, err)

	artifact, err := gen.Generate(context.Background(), &models.DeviceType{}, &models.Device{},
		models.SlotPrimary, nil, nil)
	require.NoError(t, err)
	assert.False(t, artifact.Generated)

	artifact, err = gen.Generate(context.Background(), &models.DeviceType{}, &models.Device{},
		models.SlotPrimary, &models.ConfigAssignment{TemplateName: "unknown"}, nil)
	require.NoError(t, err)
	assert.False(t, artifact.Generated)
}

func TestGenerateMissingVariableRendersZero(t *testing.T) {
	gen, err := NewTemplateGenerator(map[string]string{"main": "v={{.missing}}"})
	require.NoError(t, err)

	artifact, err := gen.Generate(context.Background(), &models.DeviceType{}, &models.Device{},
		models.SlotPrimary, &models.ConfigAssignment{TemplateName: "main"}, map[string]string{})
	require.NoError(t, err)
	assert.Equal(t, "v=", string(artifact.Content))
}

func TestNewTemplateGeneratorRejectsBadTemplate(t *testing.T) {
	_, err := NewTemplateGenerator(map[string]string{"broken": "{{.unclosed"})
	assert.Error(t, err)
}
