package remote

import (
	"bufio"
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"golang.org/x/crypto/ssh"
)

// DefaultPublicKeys returns the user's ~/.ssh/id_*.pub files, sorted.
func DefaultPublicKeys() ([]string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("failed to get home directory: %w", err)
	}
	paths, err := filepath.Glob(filepath.Join(home, ".ssh", "id_*.pub"))
	if err != nil {
		return nil, err
	}
	sort.Strings(paths)
	return paths, nil
}

// ReadPublicKeys reads authorized_keys lines from files. Every key is
// validated; blank lines and comments are skipped and duplicates dropped.
func ReadPublicKeys(paths []string) ([]string, error) {
	var keys []string
	seen := make(map[string]bool)

	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read public key: %w", err)
		}

		scanner := bufio.NewScanner(bytes.NewReader(data))
		line := 0
		for scanner.Scan() {
			line++
			text := strings.TrimSpace(scanner.Text())
			if text == "" || strings.HasPrefix(text, "#") {
				continue
			}

			// ParseAuthorizedKey validates the key format and can parse all standard SSH key types
			if _, _, _, _, err := ssh.ParseAuthorizedKey([]byte(text)); err != nil {
				return nil, fmt.Errorf("%s:%d is not a valid SSH public key: %w", path, line, err)
			}
			if !seen[text] {
				seen[text] = true
				keys = append(keys, text)
			}
		}
		if err := scanner.Err(); err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", path, err)
		}
	}

	if len(keys) == 0 {
		return nil, fmt.Errorf("no public keys found in %v", paths)
	}
	return keys, nil
}
