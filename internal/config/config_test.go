package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// --- Validate ---

func TestValidate_ValidConfig(t *testing.T) {
	cfg := Defaults()
	if err := Validate(cfg); err != nil {
		t.Fatalf("expected valid config, got: %v", err)
	}
}

func TestValidate_LogLevel(t *testing.T) {
	for _, level := range []string{"debug", "info", "warn", "error", "INFO"} {
		cfg := Defaults()
		cfg.General.LogLevel = level
		if err := Validate(cfg); err != nil {
			t.Fatalf("logLevel %q should be valid: %v", level, err)
		}
	}

	cfg := Defaults()
	cfg.General.LogLevel = "verbose"
	if err := Validate(cfg); err == nil {
		t.Fatal("expected error for logLevel=verbose")
	}
}

func TestValidate_Environment(t *testing.T) {
	for _, env := range []string{"", "production", "sandbox", "staging", "development"} {
		cfg := Defaults()
		cfg.Connect.Environment = env
		if err := Validate(cfg); err != nil {
			t.Fatalf("environment %q should be valid: %v", env, err)
		}
	}

	cfg := Defaults()
	cfg.Connect.Environment = "qa"
	if err := Validate(cfg); err == nil {
		t.Fatal("expected error for unknown environment")
	}
}

func TestValidate_ProductSubset(t *testing.T) {
	cfg := Defaults()
	cfg.Connect.ProductSubset = []string{"TERM_LOAN", "MCA"}
	if err := Validate(cfg); err != nil {
		t.Fatalf("known products should be valid: %v", err)
	}

	cfg.Connect.ProductSubset = []string{"TERM_LOAN", "GIFT_CARD"}
	err := Validate(cfg)
	if err == nil || !strings.Contains(err.Error(), "GIFT_CARD") {
		t.Fatalf("expected error naming GIFT_CARD, got %v", err)
	}
}

func TestValidate_CameraPolicy(t *testing.T) {
	cfg := Defaults()
	cfg.Browser.CameraPolicy = "ask"
	if err := Validate(cfg); err == nil {
		t.Fatal("expected error for cameraPolicy=ask")
	}
}

func TestValidate_InvalidPort(t *testing.T) {
	cfg := Defaults()
	cfg.Server.Port = -1
	if err := Validate(cfg); err == nil {
		t.Fatal("expected error for negative port")
	}

	cfg.Server.Port = 70000
	if err := Validate(cfg); err == nil {
		t.Fatal("expected error for port > 65535")
	}
}

func TestValidate_Journal(t *testing.T) {
	cfg := Defaults()
	cfg.Journal.RetentionDays = 0
	if err := Validate(cfg); err == nil {
		t.Fatal("expected error for retentionDays=0")
	}

	cfg = Defaults()
	cfg.Journal.DBPath = ""
	if err := Validate(cfg); err == nil {
		t.Fatal("expected error for enabled journal without dbPath")
	}
	cfg.Journal.Enabled = false
	if err := Validate(cfg); err != nil {
		t.Fatalf("disabled journal needs no dbPath: %v", err)
	}
}

func TestValidate_MetricsEndpoint(t *testing.T) {
	cfg := Defaults()
	cfg.Metrics.Enabled = true
	cfg.Metrics.Endpoint = "metrics"
	if err := Validate(cfg); err == nil {
		t.Fatal("expected error for relative metrics endpoint")
	}
}

// --- Load / Save ---

func TestLoadSave_RoundTrip(t *testing.T) {
	for _, name := range []string{"config.json", "config.yaml"} {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), name)

			original := Defaults()
			original.Connect.ConnectToken = "tok_round_trip"
			original.Connect.ProductSubset = []string{"LINE_OF_CREDIT"}
			original.Server.Port = 9999

			if err := Save(path, original); err != nil {
				t.Fatalf("save: %v", err)
			}

			loaded, err := Load(path)
			if err != nil {
				t.Fatalf("load: %v", err)
			}
			if loaded.Connect.ConnectToken != "tok_round_trip" {
				t.Fatalf("expected 'tok_round_trip', got %q", loaded.Connect.ConnectToken)
			}
			if len(loaded.Connect.ProductSubset) != 1 || loaded.Connect.ProductSubset[0] != "LINE_OF_CREDIT" {
				t.Fatalf("productSubset = %v", loaded.Connect.ProductSubset)
			}
			if loaded.Server.Port != 9999 {
				t.Fatalf("port = %d", loaded.Server.Port)
			}
		})
	}
}

func TestSave_RestrictsPermissions(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	if err := Save(path, Defaults()); err != nil {
		t.Fatal(err)
	}
	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	if perm := info.Mode().Perm(); perm != 0o600 {
		t.Fatalf("expected 0600, got %o", perm)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load("/nonexistent/path/config.json")
	if err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestLoad_InvalidJSON(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bad.json")
	os.WriteFile(path, []byte("{not json}"), 0o644)

	_, err := Load(path)
	if err == nil {
		t.Fatal("expected error for invalid JSON")
	}
}

func TestLoad_YAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yml")
	content := `
general:
  logLevel: debug
connect:
  environment: staging
  productSubset: [TERM_LOAN]
browser:
  headless: true
  cameraPolicy: grant
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.General.LogLevel != "debug" || cfg.Connect.Environment != "staging" {
		t.Fatalf("unexpected config: %+v", cfg)
	}
	if !cfg.Browser.Headless || cfg.Browser.CameraPolicy != "grant" {
		t.Fatalf("unexpected browser config: %+v", cfg.Browser)
	}
	// Unset sections keep their defaults.
	if cfg.Journal.RetentionDays != 30 {
		t.Fatalf("expected default retention, got %d", cfg.Journal.RetentionDays)
	}
}

func TestLoad_ValidatesConfig(t *testing.T) {
	dir := t.TempDir()
	cfgFile := filepath.Join(dir, "config.json")
	content := `{
		"connect": {
			"environment": "mars"
		}
	}`
	if err := os.WriteFile(cfgFile, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	_, err := Load(cfgFile)
	if err == nil {
		t.Fatal("expected validation error for environment=mars")
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("KANMON_CONNECT_TOKEN", "tok_from_env")
	t.Setenv("KANMON_HEADLESS", "true")
	t.Setenv("KANMON_PRODUCT_SUBSET", "TERM_LOAN,MCA")
	t.Setenv("KANMON_SERVER_PORT", "9100")

	path := filepath.Join(t.TempDir(), "config.json")
	if err := os.WriteFile(path, []byte(`{"connect":{"connectToken":"tok_from_file"}}`), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Connect.ConnectToken != "tok_from_env" {
		t.Errorf("token = %q, env should win", cfg.Connect.ConnectToken)
	}
	if !cfg.Browser.Headless {
		t.Error("headless should be overridden")
	}
	if len(cfg.Connect.ProductSubset) != 2 || cfg.Connect.ProductSubset[1] != "MCA" {
		t.Errorf("productSubset = %v", cfg.Connect.ProductSubset)
	}
	if cfg.Server.Port != 9100 {
		t.Errorf("port = %d", cfg.Server.Port)
	}
	// Unset variables leave file and default values alone.
	if cfg.Connect.Environment != "sandbox" {
		t.Errorf("environment = %q", cfg.Connect.Environment)
	}
}

func TestLoad_EnvOverrideBadValue(t *testing.T) {
	t.Setenv("KANMON_SERVER_PORT", "eighty")
	path := filepath.Join(t.TempDir(), "config.json")
	os.WriteFile(path, []byte(`{}`), 0o644)

	if _, err := Load(path); err == nil {
		t.Fatal("expected error for non-numeric port override")
	}
}

// --- Accessor ---

func TestGetByPath_ValidPaths(t *testing.T) {
	cfg := Defaults()

	val, err := GetByPath(cfg, "connect.environment")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if val != "sandbox" {
		t.Fatalf("expected 'sandbox', got %v", val)
	}
}

func TestGetByPath_InvalidPath(t *testing.T) {
	cfg := Defaults()
	_, err := GetByPath(cfg, "nonexistent.path")
	if err == nil {
		t.Fatal("expected error for nonexistent path")
	}
}

func TestSetByPath_ValidPath(t *testing.T) {
	cfg := Defaults()
	if err := SetByPath(cfg, "connect.environment", "production"); err != nil {
		t.Fatalf("set: %v", err)
	}
	if cfg.Connect.Environment != "production" {
		t.Fatalf("expected 'production', got %q", cfg.Connect.Environment)
	}
}

func TestSetByPath_BoolConversion(t *testing.T) {
	cfg := Defaults()
	if err := SetByPath(cfg, "journal.enabled", "false"); err != nil {
		t.Fatalf("set bool: %v", err)
	}
	if cfg.Journal.Enabled {
		t.Fatal("expected journal.enabled=false")
	}
}

func TestSetByPath_IntConversion(t *testing.T) {
	cfg := Defaults()
	if err := SetByPath(cfg, "server.port", "9000"); err != nil {
		t.Fatalf("set int: %v", err)
	}
	if cfg.Server.Port != 9000 {
		t.Fatalf("expected 9000, got %d", cfg.Server.Port)
	}
}

func TestSetByPath_NumericStringStaysString(t *testing.T) {
	cfg := Defaults()
	if err := SetByPath(cfg, "connect.connectToken", "123456"); err != nil {
		t.Fatalf("set numeric token: %v", err)
	}
	if cfg.Connect.ConnectToken != "123456" {
		t.Fatalf("token = %q", cfg.Connect.ConnectToken)
	}
	if err := SetByPath(cfg, "browser.userAgentPrefix", "true"); err != nil {
		t.Fatalf("set bool-looking string: %v", err)
	}
	if cfg.Browser.UserAgentPrefix != "true" {
		t.Fatalf("userAgentPrefix = %q", cfg.Browser.UserAgentPrefix)
	}
}

func TestSetByPath_ProductList(t *testing.T) {
	cfg := Defaults()
	if err := SetByPath(cfg, "connect.productSubset", "TERM_LOAN, MCA,"); err != nil {
		t.Fatalf("set list: %v", err)
	}
	want := []string{"TERM_LOAN", "MCA"}
	if len(cfg.Connect.ProductSubset) != 2 || cfg.Connect.ProductSubset[0] != want[0] || cfg.Connect.ProductSubset[1] != want[1] {
		t.Fatalf("productSubset = %v, want %v", cfg.Connect.ProductSubset, want)
	}

	if err := SetByPath(cfg, "connect.productSubset", ""); err != nil {
		t.Fatalf("clear list: %v", err)
	}
	if len(cfg.Connect.ProductSubset) != 0 {
		t.Fatalf("expected empty list, got %v", cfg.Connect.ProductSubset)
	}
}

func TestSetByPath_Errors(t *testing.T) {
	cases := []struct{ path, value string }{
		{"server.port", "eighty"},
		{"journal.enabled", "maybe"},
		{"browser", "x"},
		{"browser.nope", "x"},
		{"connect.environment.inner", "x"},
		{"", "x"},
	}
	for _, tc := range cases {
		if err := SetByPath(Defaults(), tc.path, tc.value); err == nil {
			t.Errorf("SetByPath(%q, %q): expected error", tc.path, tc.value)
		}
	}
}

// --- SetInFile ---

func TestSetInFile_KeepsFileAsWritten(t *testing.T) {
	t.Setenv("KANMON_CONNECT_TOKEN", "secret-from-env")
	path := filepath.Join(t.TempDir(), "config.json")
	body := `{"connect":{"connectToken":"${MY_CONNECT_TOKEN}"},"browser":{"profileDir":"~/.kanmonconnect/chrome-profile"}}`
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}

	if err := SetInFile(path, "browser.cameraPolicy", "grant"); err != nil {
		t.Fatalf("set: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	written := string(data)
	if strings.Contains(written, "secret-from-env") {
		t.Errorf("environment override leaked into the file:\n%s", written)
	}
	for _, want := range []string{"${MY_CONNECT_TOKEN}", "~/.kanmonconnect/chrome-profile", `"cameraPolicy": "grant"`} {
		if !strings.Contains(written, want) {
			t.Errorf("file missing %s:\n%s", want, written)
		}
	}
}

func TestSetInFile_RejectsInvalidValue(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	if err := Save(path, Defaults()); err != nil {
		t.Fatal(err)
	}
	before, _ := os.ReadFile(path)

	if err := SetInFile(path, "browser.cameraPolicy", "ask"); err == nil {
		t.Fatal("expected validation error")
	}
	after, _ := os.ReadFile(path)
	if string(before) != string(after) {
		t.Error("file should be unchanged after a rejected set")
	}
}

func TestEffective_AppliesEnvWithoutTouchingRaw(t *testing.T) {
	t.Setenv("KANMON_CONNECT_TOKEN", "tok_env")
	raw := Defaults()
	raw.Connect.ConnectToken = "tok_file"

	cfg, err := Effective(raw)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Connect.ConnectToken != "tok_env" {
		t.Errorf("effective token = %q", cfg.Connect.ConnectToken)
	}
	if raw.Connect.ConnectToken != "tok_file" || raw.Browser.ProfileDir != "~/.kanmonconnect/chrome-profile" {
		t.Errorf("raw config was modified: %+v", raw)
	}
}

// --- Sanitize ---

func TestSanitize_MasksConnectToken(t *testing.T) {
	cfg := Defaults()
	cfg.Connect.ConnectToken = "ct_1234567890abcdefghij"

	sanitized := Sanitize(cfg)

	if sanitized.Connect.ConnectToken == cfg.Connect.ConnectToken {
		t.Fatal("connect token should be masked")
	}
	if !strings.HasPrefix(sanitized.Connect.ConnectToken, "ct_1") {
		t.Fatalf("mask should keep a short prefix, got %q", sanitized.Connect.ConnectToken)
	}
	if cfg.Connect.ConnectToken != "ct_1234567890abcdefghij" {
		t.Fatal("original config should not be modified")
	}
}

func TestSanitize_ShortSecret(t *testing.T) {
	cfg := Defaults()
	cfg.Connect.ConnectToken = "short"
	sanitized := Sanitize(cfg)
	if sanitized.Connect.ConnectToken != "***" {
		t.Fatalf("short secret should be '***', got %q", sanitized.Connect.ConnectToken)
	}
}

// --- ListPaths ---

func TestListPaths_ReturnsAllLeaves(t *testing.T) {
	cfg := Defaults()
	paths := ListPaths(cfg)
	if len(paths) == 0 {
		t.Fatal("expected non-empty paths")
	}

	for _, expected := range []string{"general.logLevel", "connect.environment", "connect.connectToken", "browser.cameraPolicy", "journal.enabled", "server.allowedOrigins"} {
		if _, ok := paths[expected]; !ok {
			t.Errorf("missing expected path: %s", expected)
		}
	}
}

// --- ExpandEnvVars ---

func TestExpandEnvVars_SimpleSubstitution(t *testing.T) {
	t.Setenv("TEST_CONNECT_TOKEN", "tok-abc123")
	result := ExpandEnvVars(`{"connectToken": "${TEST_CONNECT_TOKEN}"}`)
	expected := `{"connectToken": "tok-abc123"}`
	if result != expected {
		t.Fatalf("expected %q, got %q", expected, result)
	}
}

func TestExpandEnvVars_DefaultValue(t *testing.T) {
	os.Unsetenv("NONEXISTENT_VAR_12345")
	result := ExpandEnvVars(`{"port": "${NONEXISTENT_VAR_12345:-8080}"}`)
	expected := `{"port": "8080"}`
	if result != expected {
		t.Fatalf("expected %q, got %q", expected, result)
	}
}

func TestExpandEnvVars_SetVarOverridesDefault(t *testing.T) {
	t.Setenv("MY_PORT", "9090")
	result := ExpandEnvVars(`{"port": "${MY_PORT:-8080}"}`)
	expected := `{"port": "9090"}`
	if result != expected {
		t.Fatalf("expected %q, got %q", expected, result)
	}
}

func TestExpandEnvVars_UnsetVarNoDefault_KeepsOriginal(t *testing.T) {
	os.Unsetenv("TOTALLY_UNSET_VAR_XYZ")
	result := ExpandEnvVars(`"${TOTALLY_UNSET_VAR_XYZ}"`)
	expected := `"${TOTALLY_UNSET_VAR_XYZ}"`
	if result != expected {
		t.Fatalf("expected %q, got %q", expected, result)
	}
}

func TestExpandEnvVars_DollarSignWithoutBraces(t *testing.T) {
	input := `"$HOME is not substituted"`
	result := ExpandEnvVars(input)
	if result != input {
		t.Fatalf("expected no change for bare $VAR, got %q", result)
	}
}

func TestLoad_WithEnvVarSubstitution(t *testing.T) {
	t.Setenv("TEST_KANMON_DOWNLOADS", "/tmp/test-downloads")

	dir := t.TempDir()
	cfgFile := filepath.Join(dir, "config.json")
	content := `{
		"browser": {
			"downloadsDir": "${TEST_KANMON_DOWNLOADS}",
			"cameraPolicy": "deny"
		}
	}`
	if err := os.WriteFile(cfgFile, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(cfgFile)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Browser.DownloadsDir != "/tmp/test-downloads" {
		t.Fatalf("expected downloadsDir '/tmp/test-downloads', got %q", cfg.Browser.DownloadsDir)
	}
}

// --- Defaults ---

func TestDefaults_ReturnsValidConfig(t *testing.T) {
	cfg := Defaults()
	if cfg == nil {
		t.Fatal("defaults returned nil")
	}
	if err := Validate(cfg); err != nil {
		t.Fatalf("defaults should be valid: %v", err)
	}
	if cfg.Connect.Environment != "sandbox" {
		t.Fatalf("default environment should be 'sandbox', got %q", cfg.Connect.Environment)
	}
	if cfg.Browser.UserAgentPrefix != "KanmonWebView" {
		t.Fatalf("unexpected user agent prefix %q", cfg.Browser.UserAgentPrefix)
	}
}
