package output

import (
	"bytes"
	"fmt"
	"text/tabwriter"

	"github.com/jbweber/vmw/internal/vm"
)

// TableFormatter formats VMs as human-readable tables.
type TableFormatter struct {
	// NoHeaders omits the header row.
	NoHeaders bool
}

// FormatVM formats a single VM as a table row.
func (f *TableFormatter) FormatVM(info vm.Info) (string, error) {
	return f.FormatVMList([]vm.Info{info})
}

// FormatVMList formats a list of VMs as a table.
func (f *TableFormatter) FormatVMList(vms []vm.Info) (string, error) {
	if len(vms) == 0 {
		if f.NoHeaders {
			return "", nil
		}
		return "No VMs found\n", nil
	}

	var buf bytes.Buffer
	w := tabwriter.NewWriter(&buf, 0, 0, 2, ' ', 0)

	// Write header unless NoHeaders is set
	if !f.NoHeaders {
		_, _ = fmt.Fprintln(w, "NAME\tSTATE\tIP\tUSER\tBASE")
	}

	for _, info := range vms {
		base := dash(info.Base)
		if info.IsBase {
			base = "(base)"
			if info.Base != "" {
				base = info.Base + " (base)"
			}
		}

		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
			info.Name, dash(string(info.State)), dash(info.IP), dash(info.User), base)
	}

	_ = w.Flush()
	return buf.String(), nil
}

func dash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
