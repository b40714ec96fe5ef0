package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Connection modes.
const (
	ConnectionSystem  = "system"
	ConnectionSession = "session"
)

// Transfer tools for push and pull.
const (
	TransferRsync = "rsync"
	TransferSCP   = "scp"
)

// SystemSocket is the libvirtd socket for qemu:///system.
const SystemSocket = "/var/run/libvirt/libvirt-sock"

// Settings holds user-editable vmw settings.
type Settings struct {
	// Connection selects the libvirt daemon: "system" or "session".
	Connection string `mapstructure:"connection"`

	// DefaultUser is the SSH user for VMs without a recorded user.
	DefaultUser string `mapstructure:"default_user"`

	// SSHPort is the SSH port inside guests.
	SSHPort int `mapstructure:"ssh_port"`

	// SSHIdentity is an optional private key passed to ssh with -i.
	SSHIdentity string `mapstructure:"ssh_identity"`

	// SSHPublicKeys are the keys installed by sshkeys. Empty means ~/.ssh/id_*.pub.
	SSHPublicKeys []string `mapstructure:"ssh_public_keys"`

	// SSHOptions are extra "Key=Value" options passed to ssh with -o.
	SSHOptions []string `mapstructure:"ssh_options"`

	// Transfer is the file transfer tool: "rsync" or "scp".
	Transfer string `mapstructure:"transfer"`

	StartTimeout time.Duration `mapstructure:"start_timeout"`
	StopTimeout  time.Duration `mapstructure:"stop_timeout"`

	// StateDir holds sidecar VM config files for session connections.
	StateDir string `mapstructure:"state_dir"`

	// Program names or paths of wrapped tools.
	Virsh   string `mapstructure:"virsh"`
	Viewer  string `mapstructure:"viewer"`
	QemuImg string `mapstructure:"qemu_img"`
}

// DefaultSettings returns Settings with defaults applied.
func DefaultSettings() *Settings {
	stateDir := "/tmp/vmw"
	if paths, err := GetPaths(); err == nil {
		stateDir = paths.StateDir
	}

	return &Settings{
		Connection:    ConnectionSystem,
		DefaultUser:   "",
		SSHPort:       22,
		SSHIdentity:   "",
		SSHPublicKeys: []string{},
		SSHOptions:    []string{},
		Transfer:      TransferRsync,
		StartTimeout:  60 * time.Second,
		StopTimeout:   60 * time.Second,
		StateDir:      stateDir,
		Virsh:         "virsh",
		Viewer:        "virt-viewer",
		QemuImg:       "qemu-img",
	}
}

// Load reads settings from file, VMW_* environment variables, and defaults.
//
// If file is empty, the default settings file is used. A missing default
// file is not an error, but an explicitly named file must exist. When flags
// is non-nil its "connect" flag overrides the connection setting.
func Load(file string, flags *pflag.FlagSet) (*Settings, error) {
	v := viper.New()

	defaults := DefaultSettings()
	v.SetDefault("connection", defaults.Connection)
	v.SetDefault("default_user", defaults.DefaultUser)
	v.SetDefault("ssh_port", defaults.SSHPort)
	v.SetDefault("ssh_identity", defaults.SSHIdentity)
	v.SetDefault("ssh_public_keys", defaults.SSHPublicKeys)
	v.SetDefault("ssh_options", defaults.SSHOptions)
	v.SetDefault("transfer", defaults.Transfer)
	v.SetDefault("start_timeout", defaults.StartTimeout)
	v.SetDefault("stop_timeout", defaults.StopTimeout)
	v.SetDefault("state_dir", defaults.StateDir)
	v.SetDefault("virsh", defaults.Virsh)
	v.SetDefault("viewer", defaults.Viewer)
	v.SetDefault("qemu_img", defaults.QemuImg)

	v.SetConfigType("yaml")
	if file != "" {
		v.SetConfigFile(file)
	} else {
		paths, err := GetPaths()
		if err != nil {
			return nil, fmt.Errorf("failed to determine paths: %w", err)
		}
		v.SetConfigName("settings")
		v.AddConfigPath(paths.ConfigDir)
	}

	// VMW_CONNECTION, VMW_SSH_PORT, etc.
	v.SetEnvPrefix("VMW")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if flags != nil {
		if f := flags.Lookup("connect"); f != nil {
			if err := v.BindPFlag("connection", f); err != nil {
				return nil, fmt.Errorf("failed to bind connect flag: %w", err)
			}
		}
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read settings: %w", err)
		}
	}

	s := &Settings{}
	if err := v.Unmarshal(s); err != nil {
		return nil, fmt.Errorf("failed to parse settings: %w", err)
	}

	s.Normalize()

	if err := s.Validate(); err != nil {
		return nil, fmt.Errorf("invalid settings: %w", err)
	}

	return s, nil
}

// Normalize sanitizes user input to consistent formats.
// This is called automatically by Load before validation.
func (s *Settings) Normalize() {
	s.Connection = strings.ToLower(strings.TrimSpace(s.Connection))
	s.Transfer = strings.ToLower(strings.TrimSpace(s.Transfer))
	s.DefaultUser = strings.TrimSpace(s.DefaultUser)

	s.SSHIdentity = expandHome(strings.TrimSpace(s.SSHIdentity))
	s.StateDir = expandHome(strings.TrimSpace(s.StateDir))

	keys := make([]string, 0, len(s.SSHPublicKeys))
	for _, k := range s.SSHPublicKeys {
		if k = strings.TrimSpace(k); k != "" {
			keys = append(keys, expandHome(k))
		}
	}
	s.SSHPublicKeys = keys

	opts := make([]string, 0, len(s.SSHOptions))
	for _, o := range s.SSHOptions {
		if o = strings.TrimSpace(o); o != "" {
			opts = append(opts, o)
		}
	}
	s.SSHOptions = opts
}

var userPattern = regexp.MustCompile(`^[a-z_][a-z0-9_.-]*\$?$`)

// Validate checks the settings for errors.
func (s *Settings) Validate() error {
	switch s.Connection {
	case ConnectionSystem, ConnectionSession:
	default:
		return fmt.Errorf("connection must be %q or %q, got %q", ConnectionSystem, ConnectionSession, s.Connection)
	}

	if s.DefaultUser != "" && !userPattern.MatchString(s.DefaultUser) {
		return fmt.Errorf("default_user is not a valid user name: %q", s.DefaultUser)
	}

	if s.SSHPort <= 0 || s.SSHPort > 65535 {
		return fmt.Errorf("ssh_port must be between 1 and 65535, got %d", s.SSHPort)
	}

	for i, o := range s.SSHOptions {
		if !strings.Contains(o, "=") {
			return fmt.Errorf("ssh_options[%d] must be Key=Value, got %q", i, o)
		}
	}

	switch s.Transfer {
	case TransferRsync, TransferSCP:
	default:
		return fmt.Errorf("transfer must be %q or %q, got %q", TransferRsync, TransferSCP, s.Transfer)
	}

	if s.StartTimeout <= 0 {
		return fmt.Errorf("start_timeout must be > 0, got %v", s.StartTimeout)
	}
	if s.StopTimeout <= 0 {
		return fmt.Errorf("stop_timeout must be > 0, got %v", s.StopTimeout)
	}

	if s.StateDir == "" {
		return fmt.Errorf("state_dir is required")
	}

	if s.Virsh == "" || s.Viewer == "" || s.QemuImg == "" {
		return fmt.Errorf("virsh, viewer and qemu_img must not be empty")
	}

	return nil
}

// URI returns the libvirt connection URI for the configured mode.
func (s *Settings) URI() string {
	return "qemu:///" + s.Connection
}

// SocketPath returns the libvirtd unix socket for the configured mode.
func (s *Settings) SocketPath() string {
	if s.Connection == ConnectionSystem {
		return SystemSocket
	}

	if runtime := os.Getenv("XDG_RUNTIME_DIR"); runtime != "" {
		return filepath.Join(runtime, "libvirt", "libvirt-sock")
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join("/run/user", fmt.Sprint(os.Getuid()), "libvirt", "libvirt-sock")
	}
	return filepath.Join(home, ".cache", "libvirt", "libvirt-sock")
}

// VMConfigDir returns the directory holding sidecar VM config files.
func (s *Settings) VMConfigDir() string {
	return filepath.Join(s.StateDir, "vms")
}

func expandHome(path string) string {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~"))
}
