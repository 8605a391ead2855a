package volume

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"sync"
)

// Prompter asks the operator to perform a physical action and waits for
// confirmation. There is no timeout; only ctx ends the wait.
type Prompter interface {
	Confirm(ctx context.Context, message string) error
}

// suspender is implemented by outputs that draw transient status lines.
type suspender interface {
	Suspend()
	Resume()
}

// LinePrompter prints a message and waits for a line on its input.
type LinePrompter struct {
	out   io.Writer
	mu    sync.Mutex
	lines chan struct{}
}

// NewLinePrompter reads confirmations from in and writes prompts to out.
func NewLinePrompter(in io.Reader, out io.Writer) *LinePrompter {
	p := &LinePrompter{out: out, lines: make(chan struct{})}
	go p.readLines(bufio.NewReader(in))
	return p
}

// readLines owns the reader so a Confirm abandoned through ctx leaves no
// half-consumed line behind for the next prompt.
func (p *LinePrompter) readLines(r *bufio.Reader) {
	defer close(p.lines)
	for {
		if _, err := r.ReadString('\n'); err != nil {
			return
		}
		p.lines <- struct{}{}
	}
}

func (p *LinePrompter) Confirm(ctx context.Context, message string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if s, ok := p.out.(suspender); ok {
		s.Suspend()
		defer s.Resume()
	}

	fmt.Fprintf(p.out, "%s, then press Enter ", message)
	select {
	case <-ctx.Done():
		fmt.Fprintln(p.out)
		return ctx.Err()
	case _, ok := <-p.lines:
		if !ok {
			return fmt.Errorf("confirmation: %w", io.ErrUnexpectedEOF)
		}
		return nil
	}
}
