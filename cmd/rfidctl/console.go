package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/chzyer/readline"
)

// errUsage marks a command invoked with the wrong arguments.
var errUsage = errors.New("usage")

// Console executes operator commands against one hub.
type Console struct {
	client *hubClient
	out    io.Writer
}

// NewConsole creates a console writing results to out.
func NewConsole(client *hubClient, out io.Writer) *Console {
	return &Console{client: client, out: out}
}

type command struct {
	usage string
	help  string
	run   func(ctx context.Context, c *Console, args []string) (reply, error)
}

var commands = map[string]command{
	"health": {"health", "Show hub health", func(ctx context.Context, c *Console, _ []string) (reply, error) {
		return c.client.do(ctx, http.MethodGet, "/health", nil, nil)
	}},
	"list": {"list", "List readers", func(ctx context.Context, c *Console, _ []string) (reply, error) {
		return c.client.do(ctx, http.MethodGet, "/readers", nil, nil)
	}},
	"get": {"get <reader>", "Show one reader", func(ctx context.Context, c *Console, args []string) (reply, error) {
		if len(args) != 1 {
			return reply{}, errUsage
		}
		return c.client.do(ctx, http.MethodGet, readerPath(args[0]), nil, nil)
	}},
	"add": {"add <reader> <bus_addr> <port_number> [on|off]", "Register a reader", cmdAdd},
	"update": {"update <reader> key=value...", "Change reader_id, bus_addr, port_number or state", cmdUpdate},
	"delete": {"delete <reader>|--all", "Remove one or every reader", func(ctx context.Context, c *Console, args []string) (reply, error) {
		if len(args) != 1 {
			return reply{}, errUsage
		}
		if args[0] == "--all" {
			return c.client.do(ctx, http.MethodDelete, "/readers", nil, nil)
		}
		return c.client.do(ctx, http.MethodDelete, readerPath(args[0]), nil, nil)
	}},
	"start": {"start <reader>", "Connect a reader", func(ctx context.Context, c *Console, args []string) (reply, error) {
		if len(args) != 1 {
			return reply{}, errUsage
		}
		return c.client.do(ctx, http.MethodPut, readerPath(args[0], "start"), nil, nil)
	}},
	"stop": {"stop <reader>", "Disconnect a reader", func(ctx context.Context, c *Console, args []string) (reply, error) {
		if len(args) != 1 {
			return reply{}, errUsage
		}
		return c.client.do(ctx, http.MethodPut, readerPath(args[0], "stop"), nil, nil)
	}},
	"inventory": {"inventory <reader>", "List tags in the field", func(ctx context.Context, c *Console, args []string) (reply, error) {
		if len(args) != 1 {
			return reply{}, errUsage
		}
		return c.client.do(ctx, http.MethodGet, readerPath(args[0], "tags", "inventory"), nil, nil)
	}},
	"read": {"read <reader> [tag...]", "Read tag payloads (all tags when none given)", func(ctx context.Context, c *Console, args []string) (reply, error) {
		if len(args) < 1 {
			return reply{}, errUsage
		}
		return c.client.do(ctx, http.MethodGet, readerPath(args[0], "tags"), tagQuery(args[1:]), nil)
	}},
	"write": {"write <reader> tag=text...", "Write payload text to tags", cmdWrite},
	"clear": {"clear <reader> [tag...]", "Blank tag payloads (all tags when none given)", func(ctx context.Context, c *Console, args []string) (reply, error) {
		if len(args) < 1 {
			return reply{}, errUsage
		}
		return c.client.do(ctx, http.MethodDelete, readerPath(args[0], "tags"), tagQuery(args[1:]), nil)
	}},
	"ports": {"ports", "List serial ports seen by the driver", func(ctx context.Context, c *Console, _ []string) (reply, error) {
		return c.client.do(ctx, http.MethodGet, "/ports", nil, nil)
	}},
	"audit": {"audit [reader]", "Show recent audit entries", func(ctx context.Context, c *Console, args []string) (reply, error) {
		q := url.Values{"limit": {"20"}}
		if len(args) > 0 {
			q.Set("reader_id", args[0])
		}
		return c.client.do(ctx, http.MethodGet, "/audit", q, nil)
	}},
}

var aliases = map[string]string{
	"ls":  "list",
	"rm":  "delete",
	"inv": "inventory",
	"r":   "read",
	"w":   "write",
}

func cmdAdd(ctx context.Context, c *Console, args []string) (reply, error) {
	if len(args) < 3 || len(args) > 4 {
		return reply{}, errUsage
	}
	fields := map[string]any{
		"reader_id":   args[0],
		"bus_addr":    fieldValue(args[1]),
		"port_number": fieldValue(args[2]),
	}
	if len(args) == 4 {
		fields["state"] = fieldValue(args[3])
	}
	return c.client.do(ctx, http.MethodPost, "/readers", nil, fields)
}

func cmdUpdate(ctx context.Context, c *Console, args []string) (reply, error) {
	if len(args) < 2 {
		return reply{}, errUsage
	}
	fields := make(map[string]any, len(args)-1)
	for _, kv := range args[1:] {
		k, v, ok := strings.Cut(kv, "=")
		if !ok || k == "" {
			return reply{}, errUsage
		}
		if k == "reader_id" {
			fields[k] = v
			continue
		}
		fields[k] = fieldValue(v)
	}
	return c.client.do(ctx, http.MethodPut, readerPath(args[0]), nil, fields)
}

func cmdWrite(ctx context.Context, c *Console, args []string) (reply, error) {
	if len(args) < 2 {
		return reply{}, errUsage
	}
	data := make(map[string]any, len(args)-1)
	for _, kv := range args[1:] {
		id, text, ok := strings.Cut(kv, "=")
		if !ok || id == "" {
			return reply{}, errUsage
		}
		data[id] = text
	}
	return c.client.do(ctx, http.MethodPut, readerPath(args[0], "tags"), nil, data)
}

// fieldValue types a console argument: integers become numbers and on/off
// or true/false become booleans. Anything else stays a string so the hub
// reports the validation error.
func fieldValue(s string) any {
	switch strings.ToLower(s) {
	case "on", "true":
		return true
	case "off", "false":
		return false
	}
	if n, err := strconv.Atoi(s); err == nil {
		return n
	}
	return s
}

// Exec runs one command line. It returns false when the console should
// exit.
func (c *Console) Exec(ctx context.Context, line string) bool {
	parts := strings.Fields(line)
	if len(parts) == 0 {
		return true
	}
	name := strings.ToLower(parts[0])
	if alias, ok := aliases[name]; ok {
		name = alias
	}

	switch name {
	case "quit", "exit", "q":
		return false
	case "help", "?":
		c.printHelp()
		return true
	}

	cmd, ok := commands[name]
	if !ok {
		fmt.Fprintf(c.out, "Unknown command: %s (type 'help' for commands)\n", parts[0])
		return true
	}

	resp, err := cmd.run(ctx, c, parts[1:])
	switch {
	case errors.Is(err, errUsage):
		fmt.Fprintf(c.out, "Usage: %s\n", cmd.usage)
	case err != nil:
		fmt.Fprintf(c.out, "Error: %v\n", err)
	default:
		c.printReply(resp)
	}
	return true
}

func (c *Console) printReply(r reply) {
	if r.failed() {
		fmt.Fprintf(c.out, "FAILED (HTTP %d)\n", r.Status)
	}
	var buf bytes.Buffer
	if err := json.Indent(&buf, r.Body, "", "  "); err != nil {
		fmt.Fprintln(c.out, string(r.Body))
		return
	}
	fmt.Fprintln(c.out, buf.String())
}

func (c *Console) printHelp() {
	fmt.Fprintln(c.out, "rfidhub commands:")
	for _, name := range commandNames() {
		cmd := commands[name]
		fmt.Fprintf(c.out, "  %-48s %s\n", cmd.usage, cmd.help)
	}
	fmt.Fprintf(c.out, "  %-48s %s\n", "help", "Show this help")
	fmt.Fprintf(c.out, "  %-48s %s\n", "quit", "Exit")
}

// commandNames lists commands in help order.
func commandNames() []string {
	return []string{
		"health", "list", "get", "add", "update", "delete", "start", "stop",
		"inventory", "read", "write", "clear", "ports", "audit",
	}
}

func completer() *readline.PrefixCompleter {
	items := make([]readline.PrefixCompleterInterface, 0, len(commands)+2)
	for _, name := range commandNames() {
		items = append(items, readline.PcItem(name))
	}
	items = append(items, readline.PcItem("help"), readline.PcItem("quit"))
	return readline.NewPrefixCompleter(items...)
}

// Run reads commands from the terminal until quit, EOF or ctx is done.
func (c *Console) Run(ctx context.Context, prompt string) error {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          prompt,
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
		AutoComplete:    completer(),
	})
	if err != nil {
		return fmt.Errorf("failed to create readline: %w", err)
	}
	defer rl.Close()
	c.out = rl.Stdout()

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
			return nil
		}
		if !c.Exec(ctx, line) {
			return nil
		}
	}
}
