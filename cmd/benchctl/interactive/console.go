// Package interactive provides the interactive console for an instrument
// session.
package interactive

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/chzyer/readline"

	"github.com/benchlink/benchlink-go/pkg/register"
	"github.com/benchlink/benchlink-go/pkg/scpi"
	"github.com/benchlink/benchlink-go/pkg/session"
	"github.com/benchlink/benchlink-go/pkg/srq"
)

// Console handles interactive mode for one session.
type Console struct {
	m  *session.Manager
	rl *readline.Instance
}

// New creates a console for an open session.
func New(m *session.Manager) (*Console, error) {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "bench> ",
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create readline: %w", err)
	}

	c := &Console{m: m, rl: rl}
	m.OnServiceRequest(func(n srq.Notification) {
		writeNotification(c.rl.Stdout(), n)
	})
	return c, nil
}

// Stdout returns a writer that coordinates with the readline prompt.
func (c *Console) Stdout() io.Writer {
	return c.rl.Stdout()
}

// Stderr returns a writer that coordinates with the readline prompt.
func (c *Console) Stderr() io.Writer {
	return c.rl.Stderr()
}

// Run reads commands until quit, EOF or ctx is done.
func (c *Console) Run(ctx context.Context) {
	defer c.rl.Close()

	printHelp(c.rl.Stdout())

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		line, err := c.rl.Readline()
		if err != nil {
			if errors.Is(err, readline.ErrInterrupt) {
				continue
			}
			fmt.Fprintln(c.rl.Stdout(), "Exiting...")
			return
		}
		if Execute(ctx, c.m, line, c.rl.Stdout()) {
			return
		}
	}
}

// Execute runs one console command line against m, writing output to w.
// It reports whether the console should exit.
func Execute(ctx context.Context, m *session.Manager, line string, w io.Writer) bool {
	input := strings.TrimSpace(line)
	if input == "" {
		return false
	}

	parts := strings.Fields(input)
	cmd := strings.ToLower(parts[0])
	args := parts[1:]
	rest := strings.TrimSpace(input[len(parts[0]):])

	var err error
	switch cmd {
	case "help", "?":
		printHelp(w)
	case "write", "w":
		err = cmdWrite(ctx, m, rest)
	case "query", "q":
		err = cmdQuery(ctx, m, rest, w)
	case "stb":
		err = cmdStatusByte(ctx, m, w)
	case "regs", "r":
		WriteRegisters(w, m.Registers())
	case "enable", "e":
		err = cmdEnable(ctx, m, args, w)
	case "opc":
		err = cmdOperationComplete(ctx, m, args, w)
	case "poll", "p":
		err = cmdPoll(ctx, m, w)
	case "srq":
		err = cmdMode(ctx, m, args, w)
	case "reset":
		err = m.Reset(ctx)
		if err == nil {
			fmt.Fprintln(w, "Reset complete")
		}
	case "status", "s":
		WriteSummary(w, m)
	case "quit", "exit":
		fmt.Fprintln(w, "Exiting...")
		return true
	default:
		fmt.Fprintf(w, "Unknown command: %s (type 'help' for commands)\n", cmd)
	}
	if err != nil {
		fmt.Fprintf(w, "Error: %v\n", err)
	}
	return false
}

func printHelp(w io.Writer) {
	fmt.Fprint(w, `
Commands:
  write, w <command>        Send a command
  query, q <query>          Send a query and print the response
  stb                       Read the status byte
  regs, r                   Show cached register masks
  enable, e <family> <mask> Set a family's enable mask (e.g. enable operation 0x10)
  opc [timeout]             Enable SRQ on operation complete, send *OPC and wait
  poll, p                   Poll the status byte and handle it
  srq <none|srq|poll>       Change the service request mode
  reset                     Run the reset/clear/init sequence
  status, s                 Show session state
  help, ?                   Show this help
  quit, exit                Exit

`)
}

func cmdWrite(ctx context.Context, m *session.Manager, command string) error {
	if command == "" {
		return errors.New("usage: write <command>")
	}
	return m.Write(ctx, command)
}

func cmdQuery(ctx context.Context, m *session.Manager, query string, w io.Writer) error {
	if query == "" {
		return errors.New("usage: query <query>")
	}
	resp, err := m.Query(ctx, query)
	if err != nil {
		return err
	}
	fmt.Fprintln(w, resp)
	return nil
}

func cmdStatusByte(ctx context.Context, m *session.Manager, w io.Writer) error {
	stb, err := m.ReadStatusByte(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "STB: 0x%02X (%s)\n", stb, describe(stb))
	return nil
}

func cmdEnable(ctx context.Context, m *session.Manager, args []string, w io.Writer) error {
	if len(args) != 2 {
		return errors.New("usage: enable <family> <mask>")
	}
	f, err := register.ParseFamily(args[0])
	if err != nil {
		return err
	}
	mask, err := strconv.ParseUint(args[1], 0, 16)
	if err != nil {
		return fmt.Errorf("invalid mask %q: %w", args[1], err)
	}
	e := m.Registers()
	if e == nil {
		return session.ErrNotOpen
	}
	got, err := e.ApplyEnable(ctx, f, uint16(mask))
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "%s enable: 0x%04X\n", f, got)
	return nil
}

func cmdOperationComplete(ctx context.Context, m *session.Manager, args []string, w io.Writer) error {
	timeout := 5 * time.Second
	if len(args) > 0 {
		d, err := time.ParseDuration(args[0])
		if err != nil {
			return fmt.Errorf("invalid timeout %q: %w", args[0], err)
		}
		timeout = d
	}
	e, d := m.Registers(), m.Dispatcher()
	if e == nil || d == nil {
		return session.ErrNotOpen
	}
	if err := e.EnableServiceRequestOnOperationCompletion(ctx,
		uint16(scpi.EventOperationComplete), uint16(scpi.StatusEventSummary), true); err != nil {
		return err
	}
	d.ResetCompletion()
	start := time.Now()
	if err := m.Write(ctx, scpi.CmdOperationComplete); err != nil {
		return err
	}
	if err := d.AwaitOperationComplete(ctx, timeout); err != nil {
		return err
	}
	fmt.Fprintf(w, "Operation complete after %s\n", time.Since(start).Round(time.Millisecond))
	return nil
}

func cmdPoll(ctx context.Context, m *session.Manager, w io.Writer) error {
	st, err := m.Poll(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "STB: 0x%02X (%s)\n", st.StatusByte, describe(st.StatusByte))
	return nil
}

func cmdMode(ctx context.Context, m *session.Manager, args []string, w io.Writer) error {
	d := m.Dispatcher()
	if d == nil {
		return session.ErrNotOpen
	}
	if len(args) == 0 {
		fmt.Fprintf(w, "Mode: %s\n", d.Mode())
		return nil
	}
	mode, err := srq.ParseMode(args[0])
	if err != nil {
		return err
	}
	if err := d.SetMode(ctx, mode); err != nil {
		return err
	}
	fmt.Fprintf(w, "Mode: %s\n", d.Mode())
	return nil
}

func writeNotification(w io.Writer, n srq.Notification) {
	fmt.Fprintf(w, "\n[SRQ] %s STB 0x%02X (%s)", n.Source, n.StatusByte, describe(n.StatusByte))
	if n.HasReading {
		fmt.Fprintf(w, " reading %q", n.Reading)
	}
	fmt.Fprintln(w)
}

func describe(stb byte) string {
	if d := srq.DescribeStatusByte(stb); d != "" {
		return d
	}
	return "no bits set"
}
