package home

import (
	"os"
	"path/filepath"
	"testing"
)

func TestNewWithPath(t *testing.T) {
	d, err := New("/tmp/formfill-test")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if d.Path() != "/tmp/formfill-test" {
		t.Errorf("Path = %q", d.Path())
	}
}

func TestNewDefaultsToUserHome(t *testing.T) {
	d, err := New("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skipf("no user home dir: %v", err)
	}
	if d.Path() != filepath.Join(home, DefaultDirName) {
		t.Errorf("Path = %q, want under %q", d.Path(), home)
	}
}

func TestSubdirectoryPaths(t *testing.T) {
	d, _ := New("/srv/ff")

	tests := []struct {
		name string
		got  string
		want string
	}{
		{name: "templates", got: d.TemplatesPath(), want: "/srv/ff/templates"},
		{name: "output", got: d.OutputPath(), want: "/srv/ff/output"},
		{name: "uploads", got: d.UploadsPath(), want: "/srv/ff/uploads"},
		{name: "config", got: d.ConfigPath(), want: "/srv/ff/config.yaml"},
		{name: "output pdf", got: d.OutputPDFPath("run1"), want: "/srv/ff/output/run1.pdf"},
		{name: "output report", got: d.OutputReportPath("run1"), want: "/srv/ff/output/run1.report.yaml"},
		{name: "upload file", got: d.UploadPath("run1", "scan.pdf"), want: "/srv/ff/uploads/run1/scan.pdf"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.want {
				t.Errorf("got %q, want %q", tt.got, tt.want)
			}
		})
	}
}

func TestUploadPathStripsDirectories(t *testing.T) {
	d, _ := New("/srv/ff")
	if got := d.UploadPath("run1", "../../etc/passwd"); got != "/srv/ff/uploads/run1/passwd" {
		t.Errorf("UploadPath = %q, traversal should be stripped", got)
	}
}

func TestEnsureExists(t *testing.T) {
	root := filepath.Join(t.TempDir(), "home")
	d, _ := New(root)

	if d.Exists() {
		t.Fatal("home should not exist yet")
	}
	if err := d.EnsureExists(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !d.Exists() {
		t.Error("home should exist")
	}
	for _, p := range []string{d.TemplatesPath(), d.OutputPath(), d.UploadsPath()} {
		info, err := os.Stat(p)
		if err != nil || !info.IsDir() {
			t.Errorf("%s should be a directory: %v", p, err)
		}
	}

	// Idempotent.
	if err := d.EnsureExists(); err != nil {
		t.Errorf("second EnsureExists failed: %v", err)
	}
}

func TestEnsureUploadDir(t *testing.T) {
	d, _ := New(t.TempDir())
	if err := d.EnsureUploadDir("run42"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	info, err := os.Stat(filepath.Join(d.UploadsPath(), "run42"))
	if err != nil || !info.IsDir() {
		t.Errorf("upload dir missing: %v", err)
	}
}

func TestConfigExists(t *testing.T) {
	d, _ := New(t.TempDir())
	if d.ConfigExists() {
		t.Fatal("config should not exist yet")
	}
	if err := os.WriteFile(d.ConfigPath(), []byte("# test\n"), 0o644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	if !d.ConfigExists() {
		t.Error("config should exist")
	}
}
