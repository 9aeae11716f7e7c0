// Package encoding provides JSON helpers shared across the tool.
package encoding

import (
	"encoding/json"
	"fmt"
	"os"
)

// LoadJSON reads a JSON file and unmarshals it into the provided type.
// Returns nil, nil if the file does not exist.
// Returns an error for other file access or parsing issues.
func LoadJSON[T any](path string) (*T, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}

		return nil, fmt.Errorf("failed to read file %s: %w", path, err)
	}

	var result T
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, fmt.Errorf("failed to parse JSON from %s: %w", path, err)
	}

	return &result, nil
}

// SaveJSON marshals the value to indented JSON and writes it to the
// specified path, creating parent directories as needed. Files are
// written with 0600 permissions since they may hold credentials.
func SaveJSON[T any](path string, value T) error {
	data, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}

	if err := EnsureParentDir(path); err != nil {
		return err
	}

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write file %s: %w", path, err)
	}

	return nil
}

// ParseJSON unmarshals JSON data into the provided type.
// Returns an error if parsing fails.
func ParseJSON[T any](data []byte) (*T, error) {
	var result T
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, fmt.Errorf("failed to parse JSON: %w", err)
	}

	return &result, nil
}

// ToJSON marshals a value to JSON bytes.
// Returns an error if marshaling fails.
func ToJSON[T any](value T) ([]byte, error) {
	return json.Marshal(value)
}

// ToJSONIndent marshals a value to indented JSON bytes.
// Returns an error if marshaling fails.
func ToJSONIndent[T any](value T) ([]byte, error) {
	return json.MarshalIndent(value, "", "  ")
}

// CanonicalJSON marshals a value to the registry's canonical artifact
// form: two-space indent with a trailing newline. The same value always
// yields byte-identical output.
func CanonicalJSON[T any](value T) ([]byte, error) {
	data, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		return nil, err
	}

	return append(data, '\n'), nil
}
