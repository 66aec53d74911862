package main

import (
	"bytes"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/beekhof/astrocal/internal/auth"
	"github.com/beekhof/astrocal/internal/config"
)

func TestChooseCommand(t *testing.T) {
	tests := []struct {
		name        string
		args        []string
		interactive bool
		want        string
		wantErr     bool
	}{
		{name: "terminal default", interactive: true, want: "tui"},
		{name: "pipe default", interactive: false, want: "print"},
		{name: "explicit serve", args: []string{"serve"}, want: "serve"},
		{name: "hash-password with user", args: []string{"hash-password", "bob"}, want: "hash-password"},
		{name: "unknown", args: []string{"sync"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := chooseCommand(tt.args, tt.interactive)
			if (err != nil) != tt.wantErr {
				t.Fatalf("chooseCommand() error = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("chooseCommand() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestWriteAuthLine(t *testing.T) {
	line, err := auth.FormatAuthLine("admin", "hunter2")
	if err != nil {
		t.Fatalf("FormatAuthLine() returned an error: %v", err)
	}

	var stdout bytes.Buffer
	if err := writeAuthLine("", line, &stdout); err != nil {
		t.Fatalf("writeAuthLine() to stdout returned an error: %v", err)
	}
	if !strings.HasPrefix(stdout.String(), "admin:$argon2id$") {
		t.Errorf("Unexpected auth line: %q", stdout.String())
	}

	path := filepath.Join(t.TempDir(), "auth")
	if err := writeAuthLine(path, line, &stdout); err != nil {
		t.Fatalf("writeAuthLine() to file returned an error: %v", err)
	}
	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("Failed to stat auth file: %v", err)
	}
	if info.Mode().Perm() != 0600 {
		t.Errorf("Expected auth file mode 0600, got %v", info.Mode().Perm())
	}

	basicAuth, err := auth.LoadBasicAuth(path)
	if err != nil {
		t.Fatalf("LoadBasicAuth() returned an error: %v", err)
	}
	if ok, _ := auth.VerifyPassword("hunter2", basicAuth.Hash); !ok {
		t.Error("Stored hash does not verify")
	}
}

func TestRun_PrintExitStatus(t *testing.T) {
	for _, name := range []string{
		"ASTRO_API_BASE_URL", "ASTRO_AUTH_MODE", "ASTRO_API_KEY", "ASTRO_APP_ID",
		"ASTRO_APP_SECRET", "ASTRO_TOKEN_CACHE", "ASTRO_TOKEN_TTL", "ASTRO_REQUEST_TIMEOUT",
		"ASTRO_LISTEN", "ASTRO_AUTH_FILE", "GOOGLE_CALENDAR_ID", "GOOGLE_API_KEY",
	} {
		t.Setenv(name, "")
	}
	log.SetOutput(io.Discard)
	t.Cleanup(func() { log.SetOutput(os.Stderr) })

	tests := []struct {
		name    string
		handler http.HandlerFunc
		month   string
		want    int
	}{
		{
			name: "events fetched",
			handler: func(w http.ResponseWriter, r *http.Request) {
				io.WriteString(w, `{"data":{"events":[{"date":"2024-03-20","name":"March equinox"}]}}`)
			},
			month: "2024-03",
			want:  0,
		},
		{
			name: "fetch failed",
			handler: func(w http.ResponseWriter, r *http.Request) {
				http.Error(w, "unavailable", http.StatusServiceUnavailable)
			},
			month: "2024-03",
			want:  1,
		},
		{
			name:    "bad month",
			handler: func(w http.ResponseWriter, r *http.Request) {},
			month:   "2024-13",
			want:    1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(tt.handler)
			defer srv.Close()

			got := run("print", nil, "", tt.month, config.Overrides{APIBaseURL: srv.URL}, false)
			if got != tt.want {
				t.Errorf("run() = %d, want %d", got, tt.want)
			}
		})
	}
}
