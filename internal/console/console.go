// Package console is the interactive terminal front end of the host: it
// reads control commands from a reader and prints delivered events.
package console

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"

	"kanmonconnect/internal/connect"
	"kanmonconnect/internal/protocol"
)

const prompt = "kanmon> "

// Controller is the session the console drives.
type Controller interface {
	Start(ctx context.Context) error
	Show(args connect.ShowArgs) error
	Stop()
}

type Config struct {
	Logger     *slog.Logger
	In         io.Reader
	Out        io.Writer
	Controller Controller
	Status     func() string // optional one-line status
}

// Console is a line-oriented REPL. Print may be called from any goroutine.
type Console struct {
	logger *slog.Logger
	in     io.Reader
	ctrl   Controller
	status func() string

	outMu sync.Mutex
	out   io.Writer
}

func New(cfg Config) *Console {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.In == nil {
		cfg.In = os.Stdin
	}
	if cfg.Out == nil {
		cfg.Out = os.Stdout
	}
	return &Console{
		logger: cfg.Logger,
		in:     cfg.In,
		out:    cfg.Out,
		ctrl:   cfg.Controller,
		status: cfg.Status,
	}
}

// Command is one parsed input line.
type Command struct {
	Name string
	Show connect.ShowArgs
}

// ParseCommand parses "show [component] [sessionToken] [invoiceId]",
// "start", "stop", "status", "help" and "quit".
func ParseCommand(line string) (Command, error) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return Command{}, fmt.Errorf("empty command")
	}
	name := strings.ToLower(strings.TrimPrefix(fields[0], "/"))
	args := fields[1:]

	switch name {
	case "show":
		if len(args) > 3 {
			return Command{}, fmt.Errorf("usage: show [component] [sessionToken] [invoiceId]")
		}
		cmd := Command{Name: name}
		if len(args) > 0 {
			cmd.Show.Component = protocol.Component(strings.ToUpper(args[0]))
		}
		if len(args) > 1 {
			cmd.Show.SessionToken = args[1]
		}
		if len(args) > 2 {
			cmd.Show.InvoiceID = args[2]
		}
		return cmd, nil
	case "start", "stop", "status", "help":
		if len(args) > 0 {
			return Command{}, fmt.Errorf("%s takes no arguments", name)
		}
		return Command{Name: name}, nil
	case "quit", "exit", "q":
		return Command{Name: "quit"}, nil
	}
	return Command{}, fmt.Errorf("unknown command %q (try help)", fields[0])
}

// Run reads commands until quit, EOF or ctx is done. End of input is
// reported as io.EOF so callers can tell it apart from quit.
func (c *Console) Run(ctx context.Context) error {
	c.println("Kanmon Connect host. Type help for commands.")
	c.printPrompt()

	scanner := bufio.NewScanner(c.in)
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		if !scanner.Scan() {
			if err := scanner.Err(); err != nil {
				return err
			}
			return io.EOF
		}

		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			c.printPrompt()
			continue
		}

		cmd, err := ParseCommand(line)
		if err != nil {
			c.println(err.Error())
			c.printPrompt()
			continue
		}
		if cmd.Name == "quit" {
			c.logger.Info("user requested quit")
			return nil
		}
		c.execute(ctx, cmd)
		c.printPrompt()
	}
}

func (c *Console) execute(ctx context.Context, cmd Command) {
	switch cmd.Name {
	case "start":
		if err := c.ctrl.Start(ctx); err != nil {
			c.println("start failed: " + err.Error())
			return
		}
		c.println("loading")
	case "show":
		if err := c.ctrl.Show(cmd.Show); err != nil {
			c.println("show failed: " + err.Error())
		}
	case "stop":
		c.ctrl.Stop()
		c.println("stopped")
	case "status":
		if c.status == nil {
			c.println("status unavailable")
			return
		}
		c.println(c.status())
	case "help":
		c.println(strings.Join([]string{
			"  start                                        load a fresh session",
			"  show [component] [sessionToken] [invoiceId]  open the widget",
			"  stop                                         release the session",
			"  status                                       print the session state",
			"  quit                                         exit",
		}, "\n"))
	}
}

// Print writes one labelled line, e.g. an encoded event.
func (c *Console) Print(label string, payload []byte) {
	c.outMu.Lock()
	defer c.outMu.Unlock()
	_, _ = fmt.Fprintf(c.out, "\r\033[K%s %s\n%s", label, payload, prompt)
}

func (c *Console) println(s string) {
	c.outMu.Lock()
	defer c.outMu.Unlock()
	_, _ = fmt.Fprintln(c.out, s)
}

func (c *Console) printPrompt() {
	c.outMu.Lock()
	defer c.outMu.Unlock()
	_, _ = fmt.Fprint(c.out, prompt)
}
