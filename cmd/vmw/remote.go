package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jbweber/vmw/internal/remote"
)

var setuserClear bool

var shellCmd = &cobra.Command{
	Use:   "shell <vm> [-- command...]",
	Short: "Open an SSH session to a VM",
	Long: `Open an SSH session to a VM, starting it and waiting for SSH first.

Arguments after -- are run as a remote command instead of a login shell.
The exit status of ssh becomes the exit status of vmw.

Example:
  vmw shell web1
  vmw shell web1 -- sudo dnf -y upgrade`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		t, err := a.target(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		return a.remote().Shell(cmd.Context(), t, args[1:])
	},
}

var sshkeysCmd = &cobra.Command{
	Use:   "sshkeys <vm>",
	Short: "Install your SSH public keys on a VM",
	Long: `Append your SSH public keys to ~/.ssh/authorized_keys on a VM.

Keys come from the ssh_public_keys setting, or ~/.ssh/id_*.pub when it is
empty. Keys already present are not added again.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		paths := a.settings.SSHPublicKeys
		if len(paths) == 0 {
			if paths, err = remote.DefaultPublicKeys(); err != nil {
				return err
			}
		}
		keys, err := remote.ReadPublicKeys(paths)
		if err != nil {
			return err
		}

		t, err := a.target(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		if err := a.remote().InstallKeys(cmd.Context(), t, keys); err != nil {
			return err
		}

		fmt.Printf("✓ Installed %d key(s) for %s\n", len(keys), t)
		return nil
	},
}

var pushCmd = &cobra.Command{
	Use:   "push <vm> <src>... <dest>",
	Short: "Copy local files to a VM",
	Long: `Copy local files or directories to dest on a VM with rsync (or scp when
the transfer setting is scp).

Example:
  vmw push web1 ./site /var/www`,
	Args: cobra.MinimumNArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		t, err := a.target(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		last := len(args) - 1
		return a.remote().Push(cmd.Context(), t, args[1:last], args[last])
	},
}

var pullCmd = &cobra.Command{
	Use:   "pull <vm> <src>... <dest>",
	Short: "Copy files from a VM",
	Long: `Copy files or directories from a VM to a local dest with rsync (or scp
when the transfer setting is scp).

Example:
  vmw pull web1 /var/log/messages .`,
	Args: cobra.MinimumNArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		t, err := a.target(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		last := len(args) - 1
		return a.remote().Pull(cmd.Context(), t, args[1:last], args[last])
	},
}

var setuserCmd = &cobra.Command{
	Use:   "setuser <vm> [user]",
	Short: "Set the SSH user of a VM",
	Long: `Record the user that shell, sshkeys, push and pull log in as.

With --clear, the recorded user is removed and the default_user setting
applies again.`,
	Args: func(cmd *cobra.Command, args []string) error {
		if setuserClear {
			return cobra.ExactArgs(1)(cmd, args)
		}
		return cobra.ExactArgs(2)(cmd, args)
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		name := args[0]
		if setuserClear {
			if err := a.vms.ClearUser(cmd.Context(), name); err != nil {
				return err
			}
			fmt.Printf("✓ Cleared user of %s\n", name)
			return nil
		}

		if err := a.vms.SetUser(cmd.Context(), name, args[1]); err != nil {
			return err
		}
		fmt.Printf("✓ User of %s set to %s\n", name, args[1])
		return nil
	},
}

func init() {
	setuserCmd.Flags().BoolVar(&setuserClear, "clear", false, "remove the recorded user")
}
