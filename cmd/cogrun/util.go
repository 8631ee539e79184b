package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
)

func readAll(r io.Reader) ([]byte, error) {
	return io.ReadAll(r)
}

func printJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encoding output: %w", err)
	}
	return nil
}
