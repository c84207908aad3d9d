package migrate

import (
	"strings"
	"testing"
)

func TestRun_EmptyDSN(t *testing.T) {
	if err := Run("", "up"); err == nil {
		t.Fatal("Run with empty DSN should return error")
	}
}

func TestRun_InvalidDirection(t *testing.T) {
	for _, dir := range []string{"", "sideways", "UP", "Down"} {
		err := Run("postgres://localhost/test", dir)
		if err == nil {
			t.Errorf("Run with direction %q should return error", dir)
			continue
		}
		if !strings.Contains(err.Error(), "direction") {
			t.Errorf("error %q should mention direction", err)
		}
	}
}
