package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	regerrors "github.com/felixgeelhaar/ckdreg/internal/errors"
)

// Set writes a single dotted key to the YAML file at path, keeping every
// other key in the file untouched. Values are parsed as YAML scalars so
// "3" is stored as an integer and "30s" as a string.
func Set(path, key, value string) error {
	if !IsKnownKey(key) {
		return regerrors.NewConfigInvalidError(key, "unknown key")
	}
	if key == "store.passphrase" {
		return regerrors.NewConfigInvalidError(key, "set CKDREG_STORE_PASSPHRASE in the environment instead")
	}

	doc, err := readFile(path)
	if err != nil {
		return err
	}

	var typed any
	if err := yaml.Unmarshal([]byte(value), &typed); err != nil || typed == nil {
		typed = value
	}

	setNested(doc, strings.Split(key, "."), typed)

	return writeFile(path, doc)
}

// Save writes cfg as YAML to path. The passphrase is never persisted.
func Save(cfg *Config, path string) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return regerrors.Wrap(regerrors.ErrCodeConfigSave, "failed to encode configuration", err)
	}
	return writeBytes(path, data)
}

func readFile(path string) (map[string]any, error) {
	doc := map[string]any{}

	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return doc, nil
	}
	if err != nil {
		return nil, regerrors.Wrap(regerrors.ErrCodeConfigLoad, fmt.Sprintf("failed to read %s", path), err)
	}

	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, regerrors.Wrap(regerrors.ErrCodeConfigLoad, fmt.Sprintf("failed to parse %s", path), err)
	}
	if doc == nil {
		doc = map[string]any{}
	}
	return doc, nil
}

func writeFile(path string, doc map[string]any) error {
	data, err := yaml.Marshal(doc)
	if err != nil {
		return regerrors.Wrap(regerrors.ErrCodeConfigSave, "failed to encode configuration", err)
	}
	return writeBytes(path, data)
}

func writeBytes(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return regerrors.Wrap(regerrors.ErrCodeConfigSave, "failed to create configuration directory", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return regerrors.Wrap(regerrors.ErrCodeConfigSave, fmt.Sprintf("failed to write %s", path), err)
	}
	return nil
}

func setNested(doc map[string]any, parts []string, value any) {
	if len(parts) == 1 {
		doc[parts[0]] = value
		return
	}
	child, ok := doc[parts[0]].(map[string]any)
	if !ok {
		child = map[string]any{}
		doc[parts[0]] = child
	}
	setNested(child, parts[1:], value)
}
