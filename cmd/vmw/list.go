package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jbweber/vmw/internal/output"
)

var (
	outputFormat string
	noHeaders    bool
)

var listCmd = &cobra.Command{
	Use:     "list [vm]",
	Aliases: []string{"ls"},
	Short:   "List VMs",
	Long: `List all VMs known to libvirt, running or not, or show a single VM.

Shows each VM's state, address (running VMs only), SSH user and base VM.

Output formats:
  -o table  Human-readable table (default)
  -o yaml   YAML sequence
  -o json   JSON array`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		// Validate output format
		if err := output.ValidateFormat(outputFormat); err != nil {
			return err
		}

		a, err := newApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		formatter, err := output.NewFormatter(output.Options{
			Format:    output.Format(outputFormat),
			NoHeaders: noHeaders,
		})
		if err != nil {
			return err
		}

		var result string
		if len(args) == 1 {
			result, err = formatOne(cmd, a, formatter, args[0])
		} else {
			result, err = formatAll(cmd, a, formatter)
		}
		if err != nil {
			return err
		}

		fmt.Print(result)
		return nil
	},
}

func formatOne(cmd *cobra.Command, a *app, formatter output.Formatter, name string) (string, error) {
	info, err := a.vms.Get(cmd.Context(), name)
	if err != nil {
		return "", err
	}
	result, err := formatter.FormatVM(info)
	if err != nil {
		return "", fmt.Errorf("failed to format output: %w", err)
	}
	return result, nil
}

func formatAll(cmd *cobra.Command, a *app, formatter output.Formatter) (string, error) {
	vms, err := a.vms.List(cmd.Context())
	if err != nil {
		return "", fmt.Errorf("failed to list VMs: %w", err)
	}
	result, err := formatter.FormatVMList(vms)
	if err != nil {
		return "", fmt.Errorf("failed to format output: %w", err)
	}
	return result, nil
}

var ipaddrCmd = &cobra.Command{
	Use:   "ipaddr <vm>",
	Short: "Print a VM's IP address",
	Long: `Print the IP address of a VM, starting it first if needed.

Waits until libvirt reports an address from a DHCP lease or the ARP
table.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		ip, err := a.vms.WaitForAddress(cmd.Context(), args[0], a.settings.StartTimeout)
		if err != nil {
			return err
		}

		fmt.Println(ip)
		return nil
	},
}

func init() {
	listCmd.Flags().StringVarP(&outputFormat, "output", "o", "table", "output format: table, yaml, json")
	listCmd.Flags().BoolVar(&noHeaders, "no-headers", false, "omit the table header")
}
