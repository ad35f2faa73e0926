package main

import (
	"errors"
	"fmt"
	"strings"

	"posbackoffice/backend/internal/config"
)

const (
	minSecretLen = 32
	minPINLen    = 6
)

// validateSecurityConfig refuses to start with secrets that protect money
// movements (voids, refunds, returns) poorly.
func validateSecurityConfig(cfg config.Config) error {
	if len(cfg.AuthSecret) < minSecretLen {
		return fmt.Errorf("AUTH_SECRET needs at least %d characters", minSecretLen)
	}
	if len(cfg.ManagerPIN) < minPINLen {
		return fmt.Errorf("MANAGER_PIN needs at least %d digits", minPINLen)
	}
	if err := validatePINStrength(cfg.ManagerPIN); err != nil {
		return fmt.Errorf("MANAGER_PIN rejected: %w", err)
	}
	return nil
}

var commonPINs = []string{
	"000000", "101010", "112233", "121212", "123123",
	"123456", "147258", "159753", "654321", "696969",
}

func validatePINStrength(pin string) error {
	if pin == "" || strings.Trim(pin, "0123456789") != "" {
		return errors.New("PIN may contain digits only")
	}
	for _, weak := range commonPINs {
		if pin == weak {
			return errors.New("common PIN")
		}
	}
	if strings.Count(pin, pin[:1]) == len(pin) {
		return errors.New("all-same digits")
	}

	up, down := true, true
	for i := 1; i < len(pin); i++ {
		step := int(pin[i]) - int(pin[i-1])
		up = up && step == 1
		down = down && step == -1
	}
	if up || down {
		return errors.New("sequential digits")
	}
	return nil
}
