// Package web is the local provisioning control plane: a small HTTP API
// that reads and edits the YAML config and the credentials .env file, and
// drives nmcli/systemctl for Wi-Fi setup and service restarts. It is pure
// CRUD over local files; the render pipeline never depends on it.
package web

import (
	"crypto/subtle"
	"encoding/json"
	"net/http"
	"os/exec"
	"strings"

	"inkycal/internal/config"
	appLog "inkycal/internal/log"
)

// CommandRunner executes an external command and returns combined stdout,
// stderr, and whether it succeeded. Injectable so tests never shell out.
type CommandRunner func(name string, args ...string) (stdout, stderr string, ok bool)

func defaultRunner(name string, args ...string) (string, string, bool) {
	cmd := exec.Command(name, args...)
	var out, errOut strings.Builder
	cmd.Stdout = &out
	cmd.Stderr = &errOut
	err := cmd.Run()
	return out.String(), errOut.String(), err == nil
}

// Server provides the provisioning HTTP API.
type Server struct {
	configPath string
	envPath    string
	runner     CommandRunner
	mux        *http.ServeMux
}

// NewServer constructs a provisioning server over the given config and
// .env paths. A nil runner uses real command execution.
func NewServer(configPath, envPath string, runner CommandRunner) *Server {
	if runner == nil {
		runner = defaultRunner
	}
	s := &Server{
		configPath: configPath,
		envPath:    envPath,
		runner:     runner,
		mux:        http.NewServeMux(),
	}
	s.registerRoutes()
	return s
}

// Handler returns the HTTP handler, wrapped with basic auth when the
// config enables it. /health stays unauthenticated for probes.
func (s *Server) Handler() http.Handler {
	h := http.Handler(s.mux)
	cfg, err := config.Load(s.configPath)
	if err == nil && cfg.BasicAuth != nil && cfg.BasicAuth.Username != "" && cfg.BasicAuth.Password != "" {
		appLog.Info("provisioning basic auth enabled")
		return s.basicAuthMiddleware(h, cfg.BasicAuth.Username, cfg.BasicAuth.Password)
	}
	return h
}

func (s *Server) basicAuthMiddleware(next http.Handler, username, password string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			next.ServeHTTP(w, r)
			return
		}
		u, p, ok := r.BasicAuth()
		if !ok || !secureCompare(u, username) || !secureCompare(p, password) {
			w.Header().Set("WWW-Authenticate", `Basic realm="inkycal", charset="UTF-8"`)
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func secureCompare(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

func (s *Server) registerRoutes() {
	s.mux.HandleFunc("/health", s.handleHealth)
	s.mux.HandleFunc("/api/status", s.handleStatus)
	s.mux.HandleFunc("/api/settings", s.handleSettings)
	s.mux.HandleFunc("/api/wifi", s.handleWifi)
	s.mux.HandleFunc("/api/credentials/icloud", s.handleICloudCredentials)
	s.mux.HandleFunc("/api/google/paths", s.handleGooglePaths)
	s.mux.HandleFunc("/api/apply", s.handleApply)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// handleStatus reports Wi-Fi connectivity, the current config, and which
// credentials exist. Secret values themselves are never echoed back.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "GET only")
		return
	}

	cfg, err := config.Load(s.configPath)
	if err != nil {
		appLog.Error("provisioning status: config load failed", err)
		cfg = config.DefaultConfig()
	}
	env := s.loadEnv()

	writeJSON(w, http.StatusOK, map[string]any{
		"wifi":   s.wifiStatus(),
		"config": cfg,
		"env": map[string]bool{
			"has_icloud_username":         env["ICLOUD_USERNAME"] != "",
			"has_icloud_app_password":     env["ICLOUD_APP_PASSWORD"] != "",
			"has_google_credentials_path": env["GOOGLE_CREDENTIALS_JSON"] != "",
			"has_google_token_path":       env["GOOGLE_TOKEN_JSON"] != "",
		},
	})
}

// settingsRequest is the merge-patch shape for /api/settings; nil fields
// are left untouched.
type settingsRequest struct {
	Timezone            *string `json:"timezone"`
	PollIntervalMinutes *int    `json:"poll_interval_minutes"`
	Sleep               *struct {
		Enabled    *bool   `json:"enabled"`
		Start      *string `json:"start"`
		End        *string `json:"end"`
		BannerText *string `json:"banner_text"`
	} `json:"sleep"`
	Display *struct {
		RotateDegrees *int     `json:"rotate_degrees"`
		Saturation    *float64 `json:"saturation"`
		Border        *string  `json:"border"`
	} `json:"display"`
}

func (s *Server) handleSettings(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "POST only")
		return
	}

	var req settingsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON payload")
		return
	}

	cfg, err := config.Load(s.configPath)
	if err != nil {
		cfg = config.DefaultConfig()
	}

	if req.Timezone != nil {
		cfg.Timezone = *req.Timezone
	}
	if req.PollIntervalMinutes != nil {
		cfg.PollIntervalMinutes = *req.PollIntervalMinutes
	}
	if req.Sleep != nil {
		if req.Sleep.Enabled != nil {
			cfg.Sleep.Enabled = *req.Sleep.Enabled
		}
		if req.Sleep.Start != nil {
			cfg.Sleep.Start = *req.Sleep.Start
		}
		if req.Sleep.End != nil {
			cfg.Sleep.End = *req.Sleep.End
		}
		if req.Sleep.BannerText != nil {
			cfg.Sleep.BannerText = *req.Sleep.BannerText
		}
	}
	if req.Display != nil {
		if req.Display.RotateDegrees != nil {
			cfg.Display.RotateDegrees = *req.Display.RotateDegrees
		}
		if req.Display.Saturation != nil {
			cfg.Display.Saturation = *req.Display.Saturation
		}
		if req.Display.Border != nil {
			cfg.Display.Border = *req.Display.Border
		}
	}

	if err := cfg.Save(s.configPath); err != nil {
		appLog.Error("provisioning settings: save failed", err)
		writeError(w, http.StatusInternalServerError, "failed to save config")
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"saved": true})
}

func (s *Server) handleWifi(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "POST only")
		return
	}

	var req struct {
		SSID     string `json:"ssid"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON payload")
		return
	}
	req.SSID = strings.TrimSpace(req.SSID)
	if req.SSID == "" {
		writeError(w, http.StatusBadRequest, "Wi-Fi SSID is required")
		return
	}

	args := []string{"device", "wifi", "connect", req.SSID}
	if req.Password != "" {
		args = append(args, "password", req.Password)
	}
	stdout, stderr, ok := s.runner("nmcli", args...)

	writeJSON(w, http.StatusOK, map[string]any{
		"connected": ok,
		"stdout":    strings.TrimSpace(stdout),
		"stderr":    strings.TrimSpace(stderr),
	})
}

func (s *Server) handleICloudCredentials(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "POST only")
		return
	}

	var req struct {
		Username    string `json:"username"`
		AppPassword string `json:"app_password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON payload")
		return
	}

	err := s.updateEnv(map[string]string{
		"ICLOUD_USERNAME":     strings.TrimSpace(req.Username),
		"ICLOUD_APP_PASSWORD": strings.TrimSpace(req.AppPassword),
	})
	if err != nil {
		appLog.Error("provisioning icloud: env update failed", err)
		writeError(w, http.StatusInternalServerError, "failed to update credentials")
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"saved": true})
}

func (s *Server) handleGooglePaths(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "POST only")
		return
	}

	var req struct {
		CredentialsJSON string `json:"credentials_json"`
		TokenJSON       string `json:"token_json"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON payload")
		return
	}

	updates := map[string]string{}
	if req.CredentialsJSON != "" {
		updates["GOOGLE_CREDENTIALS_JSON"] = req.CredentialsJSON
	}
	if req.TokenJSON != "" {
		updates["GOOGLE_TOKEN_JSON"] = req.TokenJSON
	}
	if len(updates) > 0 {
		if err := s.updateEnv(updates); err != nil {
			appLog.Error("provisioning google: env update failed", err)
			writeError(w, http.StatusInternalServerError, "failed to update paths")
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]bool{"saved": true})
}

// handleApply restarts the render timers so edited settings take effect.
func (s *Server) handleApply(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "POST only")
		return
	}

	stdout, stderr, ok := s.runner("systemctl", "restart", "inkycal.timer", "inkycal-deepclean.timer")
	writeJSON(w, http.StatusOK, map[string]any{
		"restarted": ok,
		"stdout":    strings.TrimSpace(stdout),
		"stderr":    strings.TrimSpace(stderr),
	})
}

func (s *Server) wifiStatus() map[string]any {
	stdout, stderr, ok := s.runner("nmcli", "-t", "-f", "active,ssid", "dev", "wifi")
	if !ok {
		return map[string]any{"connected": false, "error": strings.TrimSpace(stderr)}
	}
	for _, line := range strings.Split(stdout, "\n") {
		if strings.HasPrefix(line, "yes:") {
			return map[string]any{"connected": true, "ssid": strings.SplitN(line, ":", 2)[1]}
		}
	}
	return map[string]any{"connected": false}
}
