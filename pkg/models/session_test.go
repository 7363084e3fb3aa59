package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDetectEnvironment(t *testing.T) {
	assert.Equal(t, EnvStaging, DetectEnvironment("https://staging.example.com/login", "staging."))
	assert.Equal(t, EnvProduction, DetectEnvironment("https://app.example.com/login", "staging."))
	assert.Equal(t, EnvProduction, DetectEnvironment("https://staging.example.com/login", ""))
}
