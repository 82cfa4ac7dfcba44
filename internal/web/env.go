package web

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/joho/godotenv"

	appLog "inkycal/internal/log"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		appLog.Error("provisioning: response encode failed", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// loadEnv reads the .env file; a missing file is an empty environment.
func (s *Server) loadEnv() map[string]string {
	env, err := godotenv.Read(s.envPath)
	if err != nil {
		return map[string]string{}
	}
	return env
}

// updateEnv merges the updates into the .env file and rewrites it with
// sorted KEY="value" lines, atomically and owner-only.
func (s *Server) updateEnv(updates map[string]string) error {
	env := s.loadEnv()
	for k, v := range updates {
		if v == "" {
			delete(env, k)
			continue
		}
		env[k] = v
	}

	keys := make([]string, 0, len(env))
	for k := range env {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for _, k := range keys {
		fmt.Fprintf(&b, "%s=%q\n", k, env[k])
	}

	dir := filepath.Dir(s.envPath)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("create env dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".env-*")
	if err != nil {
		return fmt.Errorf("create temp env: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if _, err := tmp.WriteString(b.String()); err != nil {
		tmp.Close()
		return fmt.Errorf("write temp env: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync temp env: %w", err)
	}
	if err := tmp.Chmod(0o600); err != nil {
		tmp.Close()
		return fmt.Errorf("chmod temp env: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp env: %w", err)
	}
	if err := os.Rename(tmpPath, s.envPath); err != nil {
		return fmt.Errorf("replace env file: %w", err)
	}
	return nil
}
