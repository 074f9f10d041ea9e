package migrate

import (
	"strings"
	"testing"
)

func TestRun_EmptyDSN(t *testing.T) {
	err := Run("", "up")
	if err == nil {
		t.Fatal("Run with empty DSN should return error")
	}
	if !strings.Contains(err.Error(), "DATABASE_URL is not set") {
		t.Errorf("error message = %q, should mention DATABASE_URL", err.Error())
	}
}

func TestRun_InvalidDirection(t *testing.T) {
	for _, direction := range []string{"", "invalid", "UP", "Up", "sideways"} {
		t.Run(direction, func(t *testing.T) {
			err := Run("postgres://localhost/test", direction)
			if err == nil {
				t.Errorf("Run with direction %q should return error", direction)
			}
		})
	}
}
