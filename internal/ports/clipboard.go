package ports

// Clipboard writes text to the system clipboard
type Clipboard interface {
	Write(text string) error
}
