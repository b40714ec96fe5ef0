package main

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/jbweber/vmw/internal/vm"
)

// Lifecycle command flags
var (
	cloneUser    string
	cloneStart   bool
	stopForce    bool
	stopTimeout  time.Duration
	startTimeout time.Duration
	trashForce   bool
	trashYes     bool
)

var cloneCmd = &cobra.Command{
	Use:   "clone <base> <name>",
	Short: "Clone a VM as an overlay of a base VM",
	Long: `Create a new VM whose disk is a qcow2 overlay of the base VM's disk.

The base VM is shut down first so its disk is not written while clones
depend on it. The clone gets a fresh UUID and MAC address and inherits
the base VM's SSH user unless --user is given.

Example:
  vmw clone fedora-43 web1 --start`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		opts := vm.CloneOptions{
			User:         cloneUser,
			Start:        cloneStart,
			StartTimeout: a.settings.StartTimeout,
		}
		if err := a.vms.Clone(cmd.Context(), args[0], args[1], opts); err != nil {
			return fmt.Errorf("failed to clone %s: %w", args[0], err)
		}

		fmt.Printf("✓ Cloned %s from %s\n", args[1], args[0])
		return nil
	},
}

var startCmd = &cobra.Command{
	Use:   "start <vm>...",
	Short: "Start VMs and wait until they run",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		timeout := startTimeout
		if timeout == 0 {
			timeout = a.settings.StartTimeout
		}
		for _, name := range args {
			if err := a.vms.EnsureRunning(cmd.Context(), name, timeout); err != nil {
				return err
			}
			fmt.Printf("✓ %s is running\n", name)
		}
		return nil
	},
}

var stopCmd = &cobra.Command{
	Use:   "stop <vm>...",
	Short: "Shut down VMs and wait until they stop",
	Long: `Gracefully shut down VMs and wait until libvirt reports them shut off.

With --force, a VM that has not stopped when the timeout elapses is
destroyed (powered off).`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		timeout := stopTimeout
		if timeout == 0 {
			timeout = a.settings.StopTimeout
		}
		for _, name := range args {
			if err := a.vms.EnsureStopped(cmd.Context(), name, timeout, stopForce); err != nil {
				return err
			}
			fmt.Printf("✓ %s is stopped\n", name)
		}
		return nil
	},
}

var stopAllCmd = &cobra.Command{
	Use:   "stop-all",
	Short: "Shut down every running VM",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		timeout := stopTimeout
		if timeout == 0 {
			timeout = a.settings.StopTimeout
		}
		return a.vms.StopAll(cmd.Context(), timeout, stopForce)
	},
}

var trashCmd = &cobra.Command{
	Use:   "trash <vm>",
	Short: "Delete a VM and its disks",
	Long: `Delete a VM: power it off, undefine it, and delete its disk images.

A base VM that other VMs were cloned from is refused unless --force is
given, since their overlays would lose their backing file.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		name := args[0]

		if !trashYes {
			prompt := fmt.Sprintf("Trash %s and delete its disks?", name)
			if !confirm(os.Stdin, os.Stdout, prompt) {
				fmt.Println("Aborted")
				return nil
			}
		}

		a, err := newApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.vms.Trash(cmd.Context(), name, trashForce); err != nil {
			return fmt.Errorf("failed to trash %s: %w", name, err)
		}

		fmt.Printf("✓ Trashed %s\n", name)
		return nil
	},
}

func init() {
	cloneCmd.Flags().StringVarP(&cloneUser, "user", "u", "", "SSH user for the clone (default: the base VM's user)")
	cloneCmd.Flags().BoolVar(&cloneStart, "start", false, "start the clone after creating it")

	startCmd.Flags().DurationVar(&startTimeout, "timeout", 0, "how long to wait (default: start_timeout setting)")

	stopCmd.Flags().BoolVarP(&stopForce, "force", "f", false, "power off VMs that do not shut down in time")
	stopCmd.Flags().DurationVar(&stopTimeout, "timeout", 0, "how long to wait (default: stop_timeout setting)")
	stopAllCmd.Flags().BoolVarP(&stopForce, "force", "f", false, "power off VMs that do not shut down in time")
	stopAllCmd.Flags().DurationVar(&stopTimeout, "timeout", 0, "how long to wait per VM (default: stop_timeout setting)")

	trashCmd.Flags().BoolVarP(&trashForce, "force", "f", false, "trash a base VM even if clones depend on it")
	trashCmd.Flags().BoolVarP(&trashYes, "yes", "y", false, "do not ask for confirmation")
}

// confirm asks a yes/no question and reports whether the answer was yes.
func confirm(in io.Reader, out io.Writer, prompt string) bool {
	_, _ = fmt.Fprintf(out, "%s [y/N] ", prompt)

	answer, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && answer == "" {
		return false
	}
	switch strings.ToLower(strings.TrimSpace(answer)) {
	case "y", "yes":
		return true
	default:
		return false
	}
}
