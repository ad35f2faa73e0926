package main

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"posbackoffice/backend/internal/config"
)

const strongSecret = "0123456789abcdef0123456789abcdef"

func TestValidateSecurityConfigRejectsWeakValues(t *testing.T) {
	err := validateSecurityConfig(config.Config{AuthSecret: "short", ManagerPIN: "739154"})
	assert.ErrorContains(t, err, "AUTH_SECRET")

	err = validateSecurityConfig(config.Config{AuthSecret: strongSecret, ManagerPIN: "1234"})
	assert.ErrorContains(t, err, "MANAGER_PIN")
}

func TestValidateSecurityConfigAcceptsStrongValues(t *testing.T) {
	require.NoError(t, validateSecurityConfig(config.Config{AuthSecret: strongSecret, ManagerPIN: "739154"}))
}

func TestValidatePINStrength(t *testing.T) {
	tests := []struct {
		pin     string
		wantErr string
	}{
		{"123456", "common"},
		{"777777", "all-same"},
		{"345678", "sequential"},
		{"876543", "sequential"},
		{"12a456", "digits"},
		{"739154", ""},
		{"48291573", ""},
	}
	for _, tt := range tests {
		t.Run(tt.pin, func(t *testing.T) {
			err := validatePINStrength(tt.pin)
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			assert.ErrorContains(t, err, tt.wantErr)
		})
	}
}

func TestCheckConfigCommand(t *testing.T) {
	t.Setenv("AUTH_SECRET", strongSecret)
	t.Setenv("MANAGER_PIN", "739154")
	t.Setenv("DATABASE_URL", "")
	t.Setenv("REDIS_ADDR", "localhost:6379")
	t.Setenv("LOG_LEVEL", "error")

	var out bytes.Buffer
	root := newRootCmd()
	root.SetOut(&out)
	root.SetArgs([]string{"check-config"})

	require.NoError(t, root.Execute())
	assert.Contains(t, out.String(), "repository=memory cache=redis")
}

func TestCheckConfigCommandFailsOnWeakPIN(t *testing.T) {
	t.Setenv("AUTH_SECRET", strongSecret)
	t.Setenv("MANAGER_PIN", "000000")
	t.Setenv("LOG_LEVEL", "error")

	root := newRootCmd()
	root.SetOut(&bytes.Buffer{})
	root.SetArgs([]string{"check-config"})

	assert.Error(t, root.Execute())
}

func TestMigrateRequiresDatabaseURL(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	t.Setenv("LOG_LEVEL", "error")

	root := newRootCmd()
	root.SetArgs([]string{"migrate"})

	assert.ErrorContains(t, root.Execute(), "DATABASE_URL")
}
