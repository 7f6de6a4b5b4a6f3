package browser

import (
	"encoding/base64"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"kanmonconnect/internal/domain"
	"kanmonconnect/internal/permission"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func TestExtensionsScript(t *testing.T) {
	script := extensionsScript()
	for _, want := range []string{downloadBinding, permissionBinding, "downloadBase64File", "__kanmonPermissionResult"} {
		if !strings.Contains(script, want) {
			t.Errorf("script missing %q", want)
		}
	}
	if strings.Contains(script, "{{") {
		t.Error("script has unreplaced placeholders")
	}
}

func TestPermissionResultScript(t *testing.T) {
	got := permissionResultScript(`7"`, true)
	want := `window.__kanmonPermissionResult && window.__kanmonPermissionResult("7\"", true);`
	if got != want {
		t.Errorf("got %s", got)
	}
}

func TestDecodeDataURL(t *testing.T) {
	raw := base64.StdEncoding.EncodeToString([]byte("%PDF-1.4"))
	tests := []struct {
		name    string
		in      string
		wantErr bool
	}{
		{"data url", "data:application/pdf;base64," + raw, false},
		{"bare base64", raw, false},
		{"not base64 url", "data:text/plain,hello", true},
		{"garbage", "data:application/pdf;base64,!!!", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := decodeDataURL(tt.in)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				return
			}
			if err != nil {
				t.Fatal(err)
			}
			if string(got) != "%PDF-1.4" {
				t.Errorf("got %q", got)
			}
		})
	}
}

func TestSanitizeFileName(t *testing.T) {
	tests := map[string]string{
		"statement.pdf":     "statement.pdf",
		"../../etc/passwd":  "passwd",
		`..\..\boot.ini`:    "boot.ini",
		"":                  "download",
		"..":                "download",
		"a:b?.csv":          "a_b_.csv",
		"  agreement.pdf  ": "agreement.pdf",
		"line\nbreak.txt":   "line_break.txt",
	}
	for in, want := range tests {
		if got := sanitizeFileName(in); got != want {
			t.Errorf("sanitizeFileName(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestSaveDownload(t *testing.T) {
	dir := t.TempDir()
	payload := `{"dataUrl":"data:text/plain;base64,` + base64.StdEncoding.EncodeToString([]byte("hi")) + `","fileName":"note.txt"}`

	first, err := saveDownload(dir, payload)
	if err != nil {
		t.Fatal(err)
	}
	second, err := saveDownload(dir, payload)
	if err != nil {
		t.Fatal(err)
	}
	if first != filepath.Join(dir, "note.txt") || second != filepath.Join(dir, "note (1).txt") {
		t.Errorf("paths = %s, %s", first, second)
	}
	data, err := os.ReadFile(second)
	if err != nil || string(data) != "hi" {
		t.Errorf("content = %q, %v", data, err)
	}

	if _, err := saveDownload(dir, "not json"); err == nil {
		t.Error("expected error for malformed payload")
	}
}

func TestPolicyPrompter(t *testing.T) {
	for _, tc := range []struct {
		policy string
		want   bool
	}{{PolicyGrant, true}, {PolicyDeny, false}, {"", false}} {
		reg := permission.NewRegistry(testLogger())
		p, err := NewPolicyPrompter(tc.policy, reg, testLogger())
		if err != nil {
			t.Fatal(err)
		}
		var got []bool
		tok := reg.Register(func(granted bool) { got = append(got, granted) })
		p.RequestPermission(tok, domain.PermissionRequest{Origin: "https://connect.kanmon.dev", Resources: []string{resourceVideoCapture}})
		if len(got) != 1 || got[0] != tc.want {
			t.Errorf("policy %q: answers = %v", tc.policy, got)
		}
		if reg.Pending() != 0 {
			t.Errorf("policy %q left %d pending", tc.policy, reg.Pending())
		}
	}

	if _, err := NewPolicyPrompter("ask-nicely", permission.NewRegistry(testLogger()), nil); err == nil {
		t.Error("expected error for unknown policy")
	}
}

func TestNewHostDefaults(t *testing.T) {
	h := NewHost(HostConfig{UserAgentPrefix: "KanmonWebView", Logger: testLogger()})
	if h.Permissions() == nil {
		t.Fatal("host should create a registry")
	}
	if h.cfg.ProfileDir == "" || h.cfg.DownloadsDir == "" {
		t.Error("dirs should default")
	}
	if _, err := h.NewSurface(t.Context(), domain.SurfaceConfig{ID: "x"}); err != ErrNotStarted {
		t.Errorf("NewSurface before Start: %v", err)
	}
}
