package output

import (
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/jbweber/vmw/internal/vm"
)

// YAMLFormatter formats VMs as YAML.
type YAMLFormatter struct{}

// FormatVM formats a single VM as a YAML mapping.
func (f *YAMLFormatter) FormatVM(info vm.Info) (string, error) {
	data, err := yaml.Marshal(info)
	if err != nil {
		return "", fmt.Errorf("failed to marshal VM to YAML: %w", err)
	}

	return string(data), nil
}

// FormatVMList formats a list of VMs as a YAML sequence.
func (f *YAMLFormatter) FormatVMList(vms []vm.Info) (string, error) {
	if len(vms) == 0 {
		return "[]\n", nil
	}

	data, err := yaml.Marshal(vms)
	if err != nil {
		return "", fmt.Errorf("failed to marshal VMs to YAML: %w", err)
	}

	return string(data), nil
}
