package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/jbweber/vmw/internal/command"
)

var (
	version = "dev"
	commit  = "unknown"
)

// Global flags
var (
	settingsFile string
	connectMode  string
	verbose      bool
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	err := rootCmd.ExecuteContext(ctx)
	stop()

	if err != nil {
		code, quiet := exitStatus(err)
		if !quiet {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
		os.Exit(code)
	}
}

// exitStatus maps an error to the process exit code. A program that ran
// attached to the terminal already showed its own output, so its exit is
// passed through without another message.
func exitStatus(err error) (code int, quiet bool) {
	var exitErr *command.ExitError
	if !errors.As(err, &exitErr) || exitErr.Code <= 0 {
		return 1, false
	}
	_, direct := err.(*command.ExitError)
	return exitErr.Code, direct && exitErr.Stderr == ""
}

var rootCmd = &cobra.Command{
	Use:   "vmw",
	Short: "vmw - libvirt VM workflow tool",
	Long: `vmw is a CLI tool for working with local libvirt VMs.

It clones VMs as copy-on-write overlays of a base VM's disk, starts and
stops them, finds their addresses, and opens shells and copies files
over SSH.`,
	Version:       fmt.Sprintf("%s (commit: %s)", version, commit),
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		setupLogging(verbose)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&settingsFile, "settings", "", "settings file (default $XDG_CONFIG_HOME/vmw/settings.yaml)")
	rootCmd.PersistentFlags().StringVar(&connectMode, "connect", "", "libvirt connection: system or session")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")

	rootCmd.AddCommand(cloneCmd)
	rootCmd.AddCommand(startCmd)
	rootCmd.AddCommand(stopCmd)
	rootCmd.AddCommand(stopAllCmd)
	rootCmd.AddCommand(trashCmd)
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(ipaddrCmd)
	rootCmd.AddCommand(shellCmd)
	rootCmd.AddCommand(sshkeysCmd)
	rootCmd.AddCommand(pushCmd)
	rootCmd.AddCommand(pullCmd)
	rootCmd.AddCommand(setuserCmd)
	rootCmd.AddCommand(virshCmd)
	rootCmd.AddCommand(viewCmd)
	rootCmd.AddCommand(testConnCmd)
}

func setupLogging(debug bool) {
	log.SetOutput(os.Stderr)
	log.SetFormatter(&log.TextFormatter{
		DisableTimestamp: true,
	})
	if debug {
		log.SetLevel(log.DebugLevel)
	} else {
		log.SetLevel(log.InfoLevel)
	}
}
