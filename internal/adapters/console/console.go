package console

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
)

// Console implements ports.Notifier and ports.Progress on a terminal.
type Console struct {
	in        *bufio.Reader
	out       io.Writer
	assumeYes bool

	promptMu sync.Mutex
	pending  chan answer // Read left running by a cancelled prompt.

	mu      sync.Mutex
	percent int
}

type answer struct {
	line string
	err  error
}

// New creates a console reading answers from in and writing to out. With
// assumeYes every question is answered yes without prompting.
func New(in io.Reader, out io.Writer, assumeYes bool) *Console {
	return &Console{
		in:        bufio.NewReader(in),
		out:       out,
		assumeYes: assumeYes,
	}
}

func (c *Console) Info(msg string)  { c.println(msg) }
func (c *Console) Warn(msg string)  { c.println("Warning: " + msg) }
func (c *Console) Error(msg string) { c.println("Error: " + msg) }

// Confirm prompts until the user answers yes or no. End of input is a no.
// A cancelled ctx abandons the question and returns ctx.Err().
func (c *Console) Confirm(ctx context.Context, msg string) (bool, error) {
	if c.assumeYes {
		return true, nil
	}

	c.promptMu.Lock()
	defer c.promptMu.Unlock()

	for {
		if err := ctx.Err(); err != nil {
			return false, err
		}
		c.print(msg + " [Yes/No]: ")

		line, err := c.readLine(ctx)
		if ctx.Err() != nil {
			c.print("\n")
			return false, ctx.Err()
		}
		switch strings.ToLower(strings.TrimSpace(line)) {
		case "y", "yes":
			return true, nil
		case "n", "no":
			return false, nil
		}
		if err == io.EOF {
			c.print("\n")
			return false, nil
		}
		if err != nil {
			return false, fmt.Errorf("failed to read answer: %w", err)
		}
	}
}

// Reads one line without blocking past ctx. An abandoned read is picked up
// by the next prompt.
func (c *Console) readLine(ctx context.Context) (string, error) {
	if c.pending == nil {
		ch := make(chan answer, 1)
		go func() {
			line, err := c.in.ReadString('\n')
			ch <- answer{line, err}
		}()
		c.pending = ch
	}

	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case a := <-c.pending:
		c.pending = nil
		return a.line, a.err
	}
}

// Increment shows build progress. Builder milestones are positions, so the
// display only moves forward; a negative delta ends the display.
func (c *Console) Increment(delta int) {
	c.mu.Lock()
	if delta < 0 {
		c.mu.Unlock()
		c.println("Build task finished.")
		return
	}
	if delta <= c.percent {
		c.mu.Unlock()
		return
	}
	c.percent = min(delta, 100)
	p := c.percent
	c.mu.Unlock()

	c.println(fmt.Sprintf("Building... %3d%%", p))
}

func (c *Console) println(msg string) {
	c.print(msg + "\n")
}

func (c *Console) print(msg string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	io.WriteString(c.out, msg)
}
