// Package interactive provides the avrctl command console.
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

	"github.com/avrbridge/avrbridge-go/pkg/connection"
	"github.com/avrbridge/avrbridge-go/pkg/discovery"
	"github.com/avrbridge/avrbridge-go/pkg/log"
	"github.com/avrbridge/avrbridge-go/pkg/registry"
	"github.com/avrbridge/avrbridge-go/pkg/session"
	"github.com/avrbridge/avrbridge-go/pkg/wire"
)

// DefaultHistory is the number of wire lines kept for the history command.
const DefaultHistory = 200

// Options configures a Console.
type Options struct {
	// History receives protocol events for the history command. It should
	// also be wired into the session's protocol logger.
	History *log.MemoryLogger

	// Registry lists known commands (default: registry.Default()).
	Registry *registry.Registry

	// Browser is used by the discover command; nil disables it.
	Browser *discovery.Browser

	// CommandTimeout bounds each device command (default: 10s).
	CommandTimeout time.Duration
}

// Console runs interactive commands against one session.
type Console struct {
	sess    *session.Session
	opts    Options
	out     io.Writer
	history *log.MemoryLogger
}

// New creates a console writing to out.
func New(sess *session.Session, out io.Writer, opts Options) *Console {
	if opts.Registry == nil {
		opts.Registry = registry.Default()
	}
	if opts.CommandTimeout <= 0 {
		opts.CommandTimeout = 10 * time.Second
	}
	return &Console{sess: sess, opts: opts, out: out, history: opts.History}
}

// Run starts the interactive loop on the terminal. It returns when the user
// quits or ctx ends.
func (c *Console) Run(ctx context.Context) error {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "avr> ",
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
		AutoComplete:    c.completer(),
	})
	if err != nil {
		return fmt.Errorf("failed to create readline: %w", err)
	}
	defer rl.Close()

	c.out = rl.Stdout()
	c.sess.OnTelemetry(func(l wire.Line) {
		fmt.Fprintf(rl.Stdout(), "[TELEMETRY] %s\n", l)
	})
	c.sess.OnStateChange(func(old, next connection.State) {
		fmt.Fprintf(rl.Stdout(), "[STATE] %s -> %s\n", old, next)
	})

	c.printHelp()

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		line, err := rl.Readline()
		if err != nil {
			if errors.Is(err, readline.ErrInterrupt) {
				continue
			}
			fmt.Fprintln(c.out, "Exiting...")
			return nil
		}

		if quit := c.Execute(ctx, line); quit {
			fmt.Fprintln(c.out, "Exiting...")
			return nil
		}
	}
}

func (c *Console) completer() *readline.PrefixCompleter {
	names := readline.PcItemDynamic(func(string) []string { return c.opts.Registry.Names() })
	return readline.NewPrefixCompleter(
		readline.PcItem("help"),
		readline.PcItem("status"),
		readline.PcItem("connect"),
		readline.PcItem("send"),
		readline.PcItem("get", names),
		readline.PcItem("set", names),
		readline.PcItem("up", names),
		readline.PcItem("down", names),
		readline.PcItem("commands"),
		readline.PcItem("introspect"),
		readline.PcItem("reconnect"),
		readline.PcItem("discover"),
		readline.PcItem("history"),
		readline.PcItem("quit"),
	)
}

// Execute runs one command line and reports whether the console should exit.
func (c *Console) Execute(ctx context.Context, line string) bool {
	input := strings.TrimSpace(line)
	if input == "" {
		return false
	}

	parts := strings.Fields(input)
	cmd := strings.ToLower(parts[0])
	args := parts[1:]

	switch cmd {
	case "help", "h":
		c.printHelp()
	case "status", "s":
		c.cmdStatus()
	case "connect", "c":
		c.cmdConnect(ctx)
	case "send":
		c.cmdSend(ctx, strings.TrimSpace(strings.TrimPrefix(input, parts[0])))
	case "get", "g":
		c.cmdGet(ctx, args)
	case "set":
		c.cmdSet(ctx, args)
	case "up", "+":
		c.cmdStep(ctx, args, wire.OpIncrement)
	case "down", "-":
		c.cmdStep(ctx, args, wire.OpDecrement)
	case "commands", "ls":
		c.cmdCommands(args)
	case "introspect":
		c.cmdIntrospect()
	case "reconnect":
		c.cmdReconnect(ctx)
	case "discover":
		c.cmdDiscover(ctx)
	case "history":
		c.cmdHistory(args)
	case "quit", "exit", "q":
		return true
	default:
		// Anything containing an operator is treated as a raw command,
		// e.g. "Main.Volume+".
		if strings.ContainsAny(parts[0], "?=+-") {
			c.cmdSend(ctx, input)
			return false
		}
		fmt.Fprintf(c.out, "Unknown command: %s (type 'help' for commands)\n", cmd)
	}
	return false
}

func (c *Console) printHelp() {
	fmt.Fprintln(c.out, `
Receiver Commands:
  Control:
    get <name>           - Query a value (Main.Volume?)
    set <name> <value>   - Set a value (Main.Power=On)
    up <name>            - Increment (Main.Volume+)
    down <name>          - Decrement (Main.Volume-)
    send <raw>           - Send a raw command line
    <raw>                - Same as send, e.g. Main.Mute=On

  Device:
    connect              - Open the connection if it is down
    status               - Connection state and health
    commands [prefix]    - List known commands
    introspect           - List commands the receiver reported
    reconnect            - Drop and re-establish the connection
    discover             - Browse the network for receivers
    history [n]          - Show recent protocol lines

    help                 - Show this help
    quit                 - Exit`)
}

func (c *Console) commandContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, c.opts.CommandTimeout)
}

func (c *Console) printError(err error) {
	fmt.Fprintf(c.out, "Error (%s): %v\n", session.Classify(err), err)
}

func (c *Console) cmdSend(ctx context.Context, raw string) {
	if raw == "" {
		fmt.Fprintln(c.out, "Usage: send <command>")
		return
	}
	ctx, cancel := c.commandContext(ctx)
	defer cancel()

	resp, err := c.sess.Send(ctx, raw)
	if err != nil {
		c.printError(err)
		return
	}
	for _, l := range strings.Split(resp, "\n") {
		fmt.Fprintf(c.out, "  %s\n", l)
	}
}

func (c *Console) cmdGet(ctx context.Context, args []string) {
	if len(args) != 1 {
		fmt.Fprintln(c.out, "Usage: get <name>")
		return
	}
	ctx, cancel := c.commandContext(ctx)
	defer cancel()

	v, err := c.sess.Get(ctx, args[0])
	if err != nil {
		c.printError(err)
		return
	}
	fmt.Fprintf(c.out, "%s = %s\n", args[0], v)
}

func (c *Console) cmdSet(ctx context.Context, args []string) {
	if len(args) < 2 {
		fmt.Fprintln(c.out, "Usage: set <name> <value>")
		return
	}
	ctx, cancel := c.commandContext(ctx)
	defer cancel()

	v, err := c.sess.Set(ctx, args[0], strings.Join(args[1:], " "))
	if err != nil {
		c.printError(err)
		return
	}
	fmt.Fprintf(c.out, "%s = %s\n", args[0], v)
}

func (c *Console) cmdStep(ctx context.Context, args []string, op wire.Operator) {
	if len(args) != 1 {
		fmt.Fprintln(c.out, "Usage: up|down <name>")
		return
	}
	ctx, cancel := c.commandContext(ctx)
	defer cancel()

	v, err := c.sess.Step(ctx, args[0], op)
	if err != nil {
		c.printError(err)
		return
	}
	fmt.Fprintf(c.out, "%s = %s\n", args[0], v)
}

func (c *Console) cmdStatus() {
	h := c.sess.Health()
	conn := c.sess.Connection()

	fmt.Fprintln(c.out, "Receiver Status:")
	if conn == nil {
		fmt.Fprintln(c.out, "  Connection:   none")
	} else {
		fmt.Fprintf(c.out, "  Address:      %s:%d\n", conn.Host(), conn.Port())
		fmt.Fprintf(c.out, "  State:        %s\n", conn.State())
		fmt.Fprintf(c.out, "  Connection:   %s\n", conn.ID())
	}
	model := h.Model
	if model == "" {
		model = "(unknown)"
	}
	fmt.Fprintf(c.out, "  Model:        %s\n", model)
	fmt.Fprintf(c.out, "  Health:       %s\n", h.Status)
	fmt.Fprintf(c.out, "  Failures:     %d\n", h.ConsecutiveFailures)
	fmt.Fprintf(c.out, "  Reconnects:   %d\n", h.Reconnects)
	if !h.LastSuccess.IsZero() {
		fmt.Fprintf(c.out, "  Last success: %s\n", h.LastSuccess.Format(time.TimeOnly))
	}
	if h.LastError != "" {
		fmt.Fprintf(c.out, "  Last error:   %s\n", h.LastError)
	}
}

func (c *Console) cmdCommands(args []string) {
	prefix := ""
	if len(args) > 0 {
		prefix = args[0]
	}
	conn := c.sess.Connection()
	introspected := conn != nil && conn.Introspected()

	for _, name := range c.opts.Registry.Names() {
		if !strings.HasPrefix(name, prefix) {
			continue
		}
		def, _ := c.opts.Registry.Lookup(name)
		mark := " "
		if introspected && conn.Supports(name) {
			mark = "*"
		}
		line := fmt.Sprintf("%s %-22s %-5s", mark, name, def.OperatorString())
		if def.Domain.Kind != registry.DomainNone {
			line += " " + def.Domain.String()
		}
		fmt.Fprintln(c.out, strings.TrimRight(line, " "))
	}
	if introspected {
		fmt.Fprintln(c.out, "(* reported by receiver)")
	}
}

func (c *Console) cmdIntrospect() {
	conn := c.sess.Connection()
	if conn == nil || !conn.Introspected() {
		fmt.Fprintln(c.out, "Not introspected (reconnect to introspect)")
		return
	}
	names := conn.Supported()
	fmt.Fprintf(c.out, "%d commands reported:\n", len(names))
	for _, n := range names {
		fmt.Fprintf(c.out, "  %s\n", n)
	}
}

func (c *Console) cmdConnect(ctx context.Context) {
	if err := c.sess.Open(ctx); err != nil {
		c.printError(err)
		return
	}
	fmt.Fprintf(c.out, "Connected (model %s)\n", c.sess.Health().Model)
}

func (c *Console) cmdReconnect(ctx context.Context) {
	if err := c.sess.Reconnect(ctx); err != nil {
		c.printError(err)
		return
	}
	fmt.Fprintln(c.out, "Reconnected")
}

func (c *Console) cmdDiscover(ctx context.Context) {
	if c.opts.Browser == nil {
		fmt.Fprintln(c.out, "Discovery disabled")
		return
	}
	fmt.Fprintln(c.out, "Browsing...")
	found, err := c.opts.Browser.FindAll(ctx)
	if err != nil {
		c.printError(err)
		return
	}
	if len(found) == 0 {
		fmt.Fprintln(c.out, "No receivers found")
		return
	}
	for _, r := range found {
		fmt.Fprintf(c.out, "  %-20s %-8s %s\n", r.Instance, r.Model, r.Address())
	}
}

func (c *Console) cmdHistory(args []string) {
	if c.history == nil {
		fmt.Fprintln(c.out, "History disabled")
		return
	}
	n := 20
	if len(args) > 0 {
		v, err := strconv.Atoi(args[0])
		if err != nil || v <= 0 {
			fmt.Fprintln(c.out, "Usage: history [n]")
			return
		}
		n = v
	}

	layer := log.LayerWire
	events := c.history.Filter(log.Filter{Layer: &layer})
	if len(events) > n {
		events = events[len(events)-n:]
	}
	for _, e := range events {
		if e.Line == nil {
			continue
		}
		arrow := "<-"
		if e.Direction == log.DirectionOut {
			arrow = "->"
		}
		suffix := ""
		if e.Line.Unsolicited {
			suffix = "  (unsolicited)"
		}
		fmt.Fprintf(c.out, "%s %s %s%s\n", e.Timestamp.Format("15:04:05.000"), arrow, e.Line.Text(), suffix)
	}
}
