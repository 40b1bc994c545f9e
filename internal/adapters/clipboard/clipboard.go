// Package clipboard wraps the system clipboard.
package clipboard

import (
	"fmt"

	"github.com/atotto/clipboard"

	"kiln/internal/ports"
)

// Writer puts text on the system clipboard.
type Writer struct{}

// Compile-time interface verification
var _ ports.Clipboard = (*Writer)(nil)

// NewWriter creates a clipboard writer
func NewWriter() *Writer {
	return &Writer{}
}

// Write copies text to the clipboard. Headless machines without a
// clipboard utility surface an error the caller can downgrade to a
// warning.
func (w *Writer) Write(text string) error {
	if err := clipboard.WriteAll(text); err != nil {
		return fmt.Errorf("failed to write to clipboard: %w", err)
	}
	return nil
}

// Disabled satisfies the clipboard port without touching the system
// clipboard, for users who turned clipboard_on_complete off.
type Disabled struct{}

// Compile-time interface verification
var _ ports.Clipboard = Disabled{}

// Write discards the text.
func (Disabled) Write(string) error {
	return nil
}
