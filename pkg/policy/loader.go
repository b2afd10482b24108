package policy

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// LoadFromDir loads every .rego file in a directory (recursively) as a
// policy. The policy name is derived from the file name and the default
// severity is error; the policy's own deny results may lower it.
func LoadFromDir(dir string) ([]Policy, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("stat policy dir: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("policy path %s is not a directory", dir)
	}

	var policies []Policy
	err = filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.HasSuffix(path, ".rego") {
			return nil
		}
		if strings.HasSuffix(path, "_test.rego") {
			return nil
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("reading policy file %s: %w", path, err)
		}

		name := strings.TrimSuffix(filepath.Base(path), ".rego")
		policies = append(policies, Policy{
			Name:        name,
			Description: fmt.Sprintf("Loaded from %s", path),
			Rego:        string(data),
			Severity:    SeverityError,
			Enabled:     true,
		})
		return nil
	})
	if err != nil {
		return nil, err
	}

	return policies, nil
}
