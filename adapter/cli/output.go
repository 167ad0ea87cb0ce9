package cli

import (
	"encoding/json"
	"fmt"
	"io"
)

// NoStorageMessage is printed by commands that need the database.
const NoStorageMessage = "This command requires database connection."

// PrintJSON writes v as indented JSON.
func PrintJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encode output: %w", err)
	}
	return nil
}
