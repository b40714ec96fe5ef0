package output

import (
	"encoding/json"
	"fmt"

	"github.com/jbweber/vmw/internal/vm"
)

// JSONFormatter formats VMs as JSON.
type JSONFormatter struct{}

// FormatVM formats a single VM as a JSON object.
func (f *JSONFormatter) FormatVM(info vm.Info) (string, error) {
	data, err := json.MarshalIndent(info, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal VM to JSON: %w", err)
	}

	return string(data) + "\n", nil
}

// FormatVMList formats a list of VMs as a JSON array.
func (f *JSONFormatter) FormatVMList(vms []vm.Info) (string, error) {
	if len(vms) == 0 {
		return "[]\n", nil
	}

	data, err := json.MarshalIndent(vms, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal VMs to JSON: %w", err)
	}

	return string(data) + "\n", nil
}
