package ui

import (
	"io"
	"sync"
)

// Console serializes writes to the operator's terminal. On a TTY it can
// hold one transient status line, which is erased before any other output
// so log lines and prompts never land in the middle of it.
type Console struct {
	mu     sync.Mutex
	w      io.Writer
	tty    bool
	status string
	paused bool
}

// NewConsole wraps w. Status lines are only drawn when tty is true.
func NewConsole(w io.Writer, tty bool) *Console {
	return &Console{w: w, tty: tty}
}

// Write erases the status line, if any, then writes p.
func (c *Console) Write(p []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.clearLocked()
	return c.w.Write(p)
}

// SetStatus replaces the transient status line.
func (c *Console) SetStatus(line string) {
	if !c.tty {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.paused {
		return
	}
	io.WriteString(c.w, "\r\033[K"+line) //nolint:errcheck // terminal output
	c.status = line
}

// ClearStatus erases the status line.
func (c *Console) ClearStatus() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.clearLocked()
}

// Suspend erases the status line and keeps it hidden until Resume, so an
// operator prompt stays readable while it waits for input.
func (c *Console) Suspend() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.clearLocked()
	c.paused = true
}

// Resume allows status lines again.
func (c *Console) Resume() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.paused = false
}

func (c *Console) clearLocked() {
	if c.status == "" {
		return
	}
	io.WriteString(c.w, "\r\033[K") //nolint:errcheck // terminal output
	c.status = ""
}

// TTY reports whether the console draws status lines.
func (c *Console) TTY() bool { return c.tty }
