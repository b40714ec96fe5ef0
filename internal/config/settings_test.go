package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/pflag"
)

// isolate points the XDG directories and HOME at a temp dir so tests never
// read the developer's real settings.
func isolate(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("HOME", dir)
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(dir, "config"))
	t.Setenv("XDG_STATE_HOME", filepath.Join(dir, "state"))
	t.Setenv("VMW_CONNECTION", "")
	t.Setenv("VMW_SSH_PORT", "")
	t.Setenv("VMW_DEFAULT_USER", "")
	return dir
}

func writeSettings(t *testing.T, dir, body string) string {
	t.Helper()
	path := filepath.Join(dir, "settings.yaml")
	if err := os.WriteFile(path, []byte(body), 0644); err != nil {
		t.Fatalf("Failed to write settings: %v", err)
	}
	return path
}

func TestLoad_Defaults(t *testing.T) {
	dir := isolate(t)

	s, err := Load("", nil)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if s.Connection != ConnectionSystem {
		t.Errorf("Expected connection %q, got %q", ConnectionSystem, s.Connection)
	}
	if s.SSHPort != 22 {
		t.Errorf("Expected ssh_port 22, got %d", s.SSHPort)
	}
	if s.Transfer != TransferRsync {
		t.Errorf("Expected transfer %q, got %q", TransferRsync, s.Transfer)
	}
	if s.StartTimeout != 60*time.Second || s.StopTimeout != 60*time.Second {
		t.Errorf("Expected 60s timeouts, got %v / %v", s.StartTimeout, s.StopTimeout)
	}
	wantState := filepath.Join(dir, "state", "vmw")
	if s.StateDir != wantState {
		t.Errorf("Expected state_dir %q, got %q", wantState, s.StateDir)
	}
	if s.Virsh != "virsh" || s.Viewer != "virt-viewer" || s.QemuImg != "qemu-img" {
		t.Errorf("Unexpected program defaults: %q %q %q", s.Virsh, s.Viewer, s.QemuImg)
	}
}

func TestLoad_DefaultFileLocation(t *testing.T) {
	dir := isolate(t)
	cfgDir := filepath.Join(dir, "config", "vmw")
	if err := os.MkdirAll(cfgDir, 0755); err != nil {
		t.Fatal(err)
	}
	writeSettings(t, cfgDir, "default_user: fedora\n")

	s, err := Load("", nil)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if s.DefaultUser != "fedora" {
		t.Errorf("Expected default_user 'fedora', got %q", s.DefaultUser)
	}
}

func TestLoad_File(t *testing.T) {
	dir := isolate(t)
	path := writeSettings(t, dir, `connection: Session
default_user: cloud-user
ssh_port: 2222
ssh_identity: ~/.ssh/vmw_ed25519
ssh_public_keys:
  - ~/.ssh/id_ed25519.pub
ssh_options:
  - ServerAliveInterval=30
transfer: scp
start_timeout: 2m
stop_timeout: 15s
state_dir: /var/tmp/vmw
`)

	s, err := Load(path, nil)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if s.Connection != ConnectionSession {
		t.Errorf("Expected normalized connection %q, got %q", ConnectionSession, s.Connection)
	}
	if s.DefaultUser != "cloud-user" {
		t.Errorf("Expected default_user 'cloud-user', got %q", s.DefaultUser)
	}
	if s.SSHPort != 2222 {
		t.Errorf("Expected ssh_port 2222, got %d", s.SSHPort)
	}
	if s.SSHIdentity != filepath.Join(dir, ".ssh", "vmw_ed25519") {
		t.Errorf("Expected expanded identity, got %q", s.SSHIdentity)
	}
	if len(s.SSHPublicKeys) != 1 || s.SSHPublicKeys[0] != filepath.Join(dir, ".ssh", "id_ed25519.pub") {
		t.Errorf("Unexpected ssh_public_keys: %v", s.SSHPublicKeys)
	}
	if len(s.SSHOptions) != 1 || s.SSHOptions[0] != "ServerAliveInterval=30" {
		t.Errorf("Unexpected ssh_options: %v", s.SSHOptions)
	}
	if s.Transfer != TransferSCP {
		t.Errorf("Expected transfer scp, got %q", s.Transfer)
	}
	if s.StartTimeout != 2*time.Minute {
		t.Errorf("Expected start_timeout 2m, got %v", s.StartTimeout)
	}
	if s.StopTimeout != 15*time.Second {
		t.Errorf("Expected stop_timeout 15s, got %v", s.StopTimeout)
	}
	if s.StateDir != "/var/tmp/vmw" {
		t.Errorf("Expected state_dir /var/tmp/vmw, got %q", s.StateDir)
	}
}

func TestLoad_MissingExplicitFile(t *testing.T) {
	dir := isolate(t)

	_, err := Load(filepath.Join(dir, "nope.yaml"), nil)
	if err == nil {
		t.Fatal("Expected error for missing explicit settings file, got nil")
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	dir := isolate(t)
	path := writeSettings(t, dir, "connection: [unterminated\n")

	_, err := Load(path, nil)
	if err == nil {
		t.Fatal("Expected parse error, got nil")
	}
}

func TestLoad_InvalidSettings(t *testing.T) {
	dir := isolate(t)
	path := writeSettings(t, dir, "connection: remote\n")

	_, err := Load(path, nil)
	if err == nil || !strings.Contains(err.Error(), "connection") {
		t.Fatalf("Expected connection validation error, got %v", err)
	}
}

func TestLoad_EnvOverride(t *testing.T) {
	dir := isolate(t)
	path := writeSettings(t, dir, "ssh_port: 2222\n")
	t.Setenv("VMW_SSH_PORT", "2200")
	t.Setenv("VMW_DEFAULT_USER", "admin")

	s, err := Load(path, nil)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if s.SSHPort != 2200 {
		t.Errorf("Expected env ssh_port 2200, got %d", s.SSHPort)
	}
	if s.DefaultUser != "admin" {
		t.Errorf("Expected env default_user 'admin', got %q", s.DefaultUser)
	}
}

func TestLoad_ConnectFlag(t *testing.T) {
	dir := isolate(t)
	path := writeSettings(t, dir, "connection: system\n")

	flags := pflag.NewFlagSet("vmw", pflag.ContinueOnError)
	flags.String("connect", "system", "")

	// Unchanged flag keeps the file value.
	s, err := Load(path, flags)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if s.Connection != ConnectionSystem {
		t.Errorf("Expected connection from file, got %q", s.Connection)
	}

	if err := flags.Parse([]string{"--connect", "session"}); err != nil {
		t.Fatal(err)
	}
	s, err = Load(path, flags)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if s.Connection != ConnectionSession {
		t.Errorf("Expected connection from flag, got %q", s.Connection)
	}
}

func TestSettings_Validate(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(*Settings)
		wantErr string
	}{
		{name: "defaults are valid", modify: func(*Settings) {}},
		{name: "bad connection", modify: func(s *Settings) { s.Connection = "tcp" }, wantErr: "connection"},
		{name: "bad user", modify: func(s *Settings) { s.DefaultUser = "Not A User" }, wantErr: "default_user"},
		{name: "port zero", modify: func(s *Settings) { s.SSHPort = 0 }, wantErr: "ssh_port"},
		{name: "port too large", modify: func(s *Settings) { s.SSHPort = 70000 }, wantErr: "ssh_port"},
		{name: "option without value", modify: func(s *Settings) { s.SSHOptions = []string{"Compression"} }, wantErr: "ssh_options[0]"},
		{name: "bad transfer", modify: func(s *Settings) { s.Transfer = "ftp" }, wantErr: "transfer"},
		{name: "zero start timeout", modify: func(s *Settings) { s.StartTimeout = 0 }, wantErr: "start_timeout"},
		{name: "negative stop timeout", modify: func(s *Settings) { s.StopTimeout = -time.Second }, wantErr: "stop_timeout"},
		{name: "empty state dir", modify: func(s *Settings) { s.StateDir = "" }, wantErr: "state_dir"},
		{name: "empty program", modify: func(s *Settings) { s.QemuImg = "" }, wantErr: "qemu_img"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := DefaultSettings()
			s.StateDir = "/tmp/vmw-test"
			tt.modify(s)

			err := s.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Validate() unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() error = %v, want containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestSettings_Normalize(t *testing.T) {
	isolate(t)
	s := &Settings{
		Connection:    " SYSTEM ",
		Transfer:      "RSYNC",
		DefaultUser:   " fedora ",
		SSHPublicKeys: []string{"", " /keys/a.pub ", "  "},
		SSHOptions:    []string{" Compression=yes ", ""},
	}

	s.Normalize()

	if s.Connection != "system" || s.Transfer != "rsync" || s.DefaultUser != "fedora" {
		t.Errorf("Unexpected normalized scalars: %+v", s)
	}
	if len(s.SSHPublicKeys) != 1 || s.SSHPublicKeys[0] != "/keys/a.pub" {
		t.Errorf("Unexpected keys: %v", s.SSHPublicKeys)
	}
	if len(s.SSHOptions) != 1 || s.SSHOptions[0] != "Compression=yes" {
		t.Errorf("Unexpected options: %v", s.SSHOptions)
	}
}

func TestSettings_URIAndSocket(t *testing.T) {
	dir := isolate(t)

	s := DefaultSettings()
	if got := s.URI(); got != "qemu:///system" {
		t.Errorf("URI() = %q, want qemu:///system", got)
	}
	if got := s.SocketPath(); got != SystemSocket {
		t.Errorf("SocketPath() = %q, want %q", got, SystemSocket)
	}

	s.Connection = ConnectionSession
	if got := s.URI(); got != "qemu:///session" {
		t.Errorf("URI() = %q, want qemu:///session", got)
	}

	t.Setenv("XDG_RUNTIME_DIR", "/run/user/1000")
	if got := s.SocketPath(); got != "/run/user/1000/libvirt/libvirt-sock" {
		t.Errorf("SocketPath() = %q", got)
	}

	t.Setenv("XDG_RUNTIME_DIR", "")
	want := filepath.Join(dir, ".cache", "libvirt", "libvirt-sock")
	if got := s.SocketPath(); got != want {
		t.Errorf("SocketPath() = %q, want %q", got, want)
	}
}

func TestSettings_VMConfigDir(t *testing.T) {
	s := &Settings{StateDir: "/var/lib/vmw"}
	if got := s.VMConfigDir(); got != "/var/lib/vmw/vms" {
		t.Errorf("VMConfigDir() = %q", got)
	}
}
