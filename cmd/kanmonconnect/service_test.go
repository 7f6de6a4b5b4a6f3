package main

import (
	"strings"
	"testing"
)

func TestServiceFile(t *testing.T) {
	path, unit, err := serviceFile("linux", "/usr/local/bin/kanmonconnect", "/etc/kanmon.yaml")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasSuffix(path, systemdUnit) {
		t.Errorf("unexpected unit path %s", path)
	}
	if !strings.Contains(unit, "ExecStart=/usr/local/bin/kanmonconnect serve --headless --config /etc/kanmon.yaml") {
		t.Errorf("unit missing ExecStart:\n%s", unit)
	}

	path, plist, err := serviceFile("darwin", "/bin/k", "/c.json")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasSuffix(path, launchdLabel+".plist") || !strings.Contains(plist, "<string>serve</string>") {
		t.Errorf("unexpected plist at %s:\n%s", path, plist)
	}
	if strings.Contains(plist, "{{") {
		t.Errorf("unreplaced placeholder in plist:\n%s", plist)
	}

	if _, _, err := serviceFile("plan9", "", ""); err == nil {
		t.Error("expected error for unsupported OS")
	}
}
