//go:build windows

package telnetcore

import "fmt"

// Copyover is not supported on Windows: there is no exec() that preserves
// inherited socket handles the way this package's POSIX implementation
// relies on. Callers on Windows should restart cleanly instead (drain
// connections, Stop, exit).
func (m *Manager) Copyover() (*Document, error) {
	return nil, fmt.Errorf("telnetcore: copyover is not supported on windows")
}

// Recover is not supported on Windows; see Copyover.
func (m *Manager) Recover(doc *Document) error {
	return fmt.Errorf("telnetcore: copyover is not supported on windows")
}
