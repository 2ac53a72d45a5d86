// Package update tells the user when the CLI and the server it talks to were
// built from different releases.
package update

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"
)

const checkTimeout = 3 * time.Second

// HealthChecker reports the server's health document.
type HealthChecker interface {
	Health(ctx context.Context) (map[string]any, error)
}

// ServerVersion asks the server which version it runs.
func ServerVersion(ctx context.Context, hc HealthChecker) (string, error) {
	health, err := hc.Health(ctx)
	if err != nil {
		return "", err
	}
	v, _ := health["version"].(string)
	if v == "" {
		return "", fmt.Errorf("server did not report a version")
	}
	return v, nil
}

// CheckServer reports whether the server runs a different release than the
// CLI.
func CheckServer(ctx context.Context, hc HealthChecker, currentVersion string) (bool, string, error) {
	serverVersion, err := ServerVersion(ctx, hc)
	if err != nil {
		return false, "", err
	}
	return versionsDiffer(currentVersion, serverVersion), serverVersion, nil
}

// versionsDiffer compares release versions. Development builds match
// everything.
func versionsDiffer(current, server string) bool {
	current = strings.TrimPrefix(current, "v")
	server = strings.TrimPrefix(server, "v")

	if current == "dev" || server == "dev" {
		return false
	}

	// Simple string comparison (works for semver like "1.0.0")
	return current != server
}

// PrintNotification writes a notice to w when the versions differ. Errors
// are ignored; the check is advisory.
func PrintNotification(ctx context.Context, w io.Writer, hc HealthChecker, currentVersion string) {
	ctx, cancel := context.WithTimeout(ctx, checkTimeout)
	defer cancel()

	differ, serverVersion, err := CheckServer(ctx, hc, currentVersion)
	if err != nil || !differ {
		return
	}
	fmt.Fprintf(w, "Server runs %s, this CLI is %s. Some commands may not work as expected.\n\n", serverVersion, currentVersion)
}
