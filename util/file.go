package util

import (
	"encoding/json"
	"fmt"
	"os"
)

// MakeDirs creates every directory (and its parents) if missing
func MakeDirs(dirs ...string) error {
	for _, d := range dirs {
		if err := os.MkdirAll(d, 0755); err != nil {
			return fmt.Errorf("create %s: %w", d, err)
		}
	}
	return nil
}

// WriteJSON writes v as indented json
func WriteJSON(savePath string, v interface{}) error {
	bs, err := json.MarshalIndent(v, "", "    ")
	if err != nil {
		return err
	}
	return os.WriteFile(savePath, bs, 0644)
}

// AppendToFile appends each string as a line of the file
func AppendToFile(savePath string, content ...string) error {
	f, err := os.OpenFile(savePath, os.O_APPEND|os.O_WRONLY|os.O_CREATE, 0644)
	if err != nil {
		return err
	}

	defer f.Close()

	for _, s := range content {
		if _, err = f.WriteString(s + "\n"); err != nil {
			return err
		}
	}
	return nil
}
