package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jbweber/vmw/internal/command"
)

var virshCmd = &cobra.Command{
	Use:   "virsh [args...]",
	Short: "Run virsh against the configured connection",
	Long: `Run virsh with -c set to the configured libvirt connection.

Example:
  vmw virsh dominfo web1
  vmw --connect session virsh list --all`,
	Args: cobra.ArbitraryArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := loadSettings(cmd)
		if err != nil {
			return err
		}

		runner := command.NewExec()
		virshArgs := append([]string{"-c", s.URI()}, args...)
		return runner.Interactive(cmd.Context(), command.Cmd{Name: s.Virsh, Args: virshArgs})
	},
}

func init() {
	// Everything after the first virsh argument belongs to virsh.
	virshCmd.Flags().SetInterspersed(false)
}

var viewCmd = &cobra.Command{
	Use:   "view <vm>",
	Short: "Open a VM's graphical console",
	Long:  `Start a VM if needed and open its console with virt-viewer.`,
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		name := args[0]
		if err := a.vms.EnsureRunning(cmd.Context(), name, a.settings.StartTimeout); err != nil {
			return err
		}

		return a.runner.Interactive(cmd.Context(), command.Cmd{
			Name: a.settings.Viewer,
			Args: []string{"--connect", a.settings.URI(), name},
		})
	},
}

var testConnCmd = &cobra.Command{
	Use:   "test-conn",
	Short: "Test libvirt connection",
	Long:  `Test connectivity to the libvirt daemon and display version information.`,
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		fmt.Printf("✓ Connected to libvirt daemon at %s\n", a.client.Socket())

		// Ping the connection
		if err := a.client.Ping(); err != nil {
			return fmt.Errorf("connection test failed: %w", err)
		}

		version, err := a.client.Libvirt().ConnectGetLibVersion()
		if err != nil {
			return fmt.Errorf("failed to get libvirt version: %w", err)
		}

		// Format version (libvirt returns version as an integer like 8006000 for 8.6.0)
		major := version / 1000000
		minor := (version % 1000000) / 1000
		patch := version % 1000

		fmt.Printf("✓ Libvirt version: %d.%d.%d\n", major, minor, patch)

		hostname, err := a.client.Libvirt().ConnectGetHostname()
		if err != nil {
			return fmt.Errorf("failed to get hostname: %w", err)
		}

		fmt.Printf("✓ Hypervisor hostname: %s\n", hostname)
		fmt.Printf("✓ Connection URI: %s\n", a.client.URI())
		return nil
	},
}
