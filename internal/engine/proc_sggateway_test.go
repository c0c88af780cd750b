package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStartupConfigContentType(t *testing.T) {
	cases := map[string]string{
		"2.1.0":  "configuration/Startup-config",
		"v2.0":   "configuration/Startup-config",
		"3":      "configuration/Startup-config",
		"1.9.5":  "configuration/startup-config",
		"v1.0":   "configuration/startup-config",
		"0.9":    "configuration/startup-config",
		"":       "configuration/startup-config",
		"beta":   "configuration/startup-config",
		"10.0.1": "configuration/Startup-config",
	}
	for version, want := range cases {
		assert.Equal(t, want, startupConfigContentType(version), "version %q", version)
	}
}
