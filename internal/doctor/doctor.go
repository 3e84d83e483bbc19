// Package doctor runs runtime readiness diagnostics for config, audio, and
// the collection server.
package doctor

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/korvolabs/korvod/internal/audio"
	"github.com/korvolabs/korvod/internal/config"
)

// Check is one doctor assertion result.
type Check struct {
	Name    string
	Pass    bool
	Message string
}

// Report is the full doctor output contract.
type Report struct {
	Checks []Check
}

// OK returns true when all checks pass.
func (r Report) OK() bool {
	for _, check := range r.Checks {
		if !check.Pass {
			return false
		}
	}
	return true
}

// String renders the report as user-facing text output.
func (r Report) String() string {
	var b strings.Builder
	for _, check := range r.Checks {
		status := "OK"
		if !check.Pass {
			status = "FAIL"
		}
		b.WriteString(fmt.Sprintf("[%s] %s: %s\n", status, check.Name, check.Message))
	}
	return strings.TrimSuffix(b.String(), "\n")
}

// Run executes environment/config/runtime checks for a loaded config.
func Run(cfg config.Loaded) Report {
	checks := []Check{{
		Name:    "config",
		Pass:    true,
		Message: fmt.Sprintf("loaded %q", cfg.Path),
	}}

	checks = append(checks, checkAudioDriver(cfg.Config))
	checks = append(checks, checkUploadServer(cfg.Config.Record.ServerURI))
	if cfg.Config.Playback.URL != "" {
		checks = append(checks, checkPlaybackURL(cfg.Config.Playback.URL))
	}

	return Report{Checks: checks}
}

// checkAudioDriver runs live device selection to surface selection/fallback
// issues. The null driver always passes.
func checkAudioDriver(cfg config.Config) Check {
	if cfg.Audio.Driver == "null" {
		return Check{Name: "audio.device", Pass: true, Message: "null driver configured; no hardware required"}
	}
	selection, err := audio.SelectDevice(context.Background(), cfg.Audio.Input, cfg.Audio.Fallback)
	if err != nil {
		return Check{Name: "audio.device", Pass: false, Message: err.Error()}
	}
	message := fmt.Sprintf("selected %q", selection.Device.ID)
	if selection.Warning != "" {
		message = message + " (" + selection.Warning + ")"
	}
	return Check{Name: "audio.device", Pass: true, Message: message}
}

// checkUploadServer probes TCP reachability of the collection server.
func checkUploadServer(uri string) Check {
	u, err := url.Parse(uri)
	if err != nil || u.Host == "" {
		return Check{Name: "record.server", Pass: false, Message: fmt.Sprintf("invalid record.server_uri %q", uri)}
	}
	host := u.Host
	if u.Port() == "" {
		host = net.JoinHostPort(u.Hostname(), "80")
	}

	conn, err := net.DialTimeout("tcp", host, 2*time.Second)
	if err != nil {
		return Check{Name: "record.server", Pass: false, Message: fmt.Sprintf("connect failed: %v", err)}
	}
	conn.Close()
	return Check{Name: "record.server", Pass: true, Message: fmt.Sprintf("reachable at %s", host)}
}

// checkPlaybackURL probes the playback stream endpoint.
func checkPlaybackURL(rawURL string) Check {
	client := http.Client{Timeout: 2 * time.Second}
	req, err := http.NewRequest(http.MethodHead, rawURL, nil)
	if err != nil {
		return Check{Name: "playback.url", Pass: false, Message: fmt.Sprintf("invalid playback.url %q", rawURL)}
	}
	resp, err := client.Do(req)
	if err != nil {
		return Check{Name: "playback.url", Pass: false, Message: fmt.Sprintf("request failed: %v", err)}
	}
	resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 400 {
		return Check{Name: "playback.url", Pass: false, Message: fmt.Sprintf("HTTP %d from %s", resp.StatusCode, rawURL)}
	}
	return Check{Name: "playback.url", Pass: true, Message: fmt.Sprintf("HTTP %d from %s", resp.StatusCode, rawURL)}
}
