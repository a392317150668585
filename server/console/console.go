package console

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"
	"strconv"
	"strings"

	"github.com/df-mc/worldcore/server"
	"github.com/df-mc/worldcore/server/world"
)

// errStop is returned by the stop command to end Run.
var errStop = errors.New("stop requested")

type command struct {
	usage string
	run   func(c *Console, args []string) (string, error)
}

var commands map[string]command

func init() {
	commands = map[string]command{
		"help":    {usage: "help", run: (*Console).help},
		"save":    {usage: "save [world]", run: (*Console).save},
		"time":    {usage: "time [world] [value]", run: (*Console).time},
		"players": {usage: "players [world]", run: (*Console).players},
		"worlds":  {usage: "worlds", run: (*Console).worlds},
		"chunk":   {usage: "chunk <world> <x> <z>", run: (*Console).chunk},
		"plugins": {usage: "plugins", run: (*Console).plugins},
		"stop":    {usage: "stop", run: (*Console).stop},
	}
}

// Console provides a simple CLI that reads commands from an io.Reader
// (defaulting to os.Stdin) and executes them on the provided server.
type Console struct {
	srv    *server.Server
	log    *slog.Logger
	reader io.Reader
}

// New returns a Console bound to the provided server. The console reads from
// os.Stdin and writes command output to the supplied logger.
func New(srv *server.Server, log *slog.Logger) *Console {
	if log == nil {
		log = slog.Default()
	}
	return &Console{
		srv:    srv,
		log:    log,
		reader: os.Stdin,
	}
}

// WithReader sets a custom reader for the console input. It enables testing the
// console without relying on os.Stdin.
func (c *Console) WithReader(r io.Reader) *Console {
	if r != nil {
		c.reader = r
	}
	return c
}

// Run starts consuming commands from the console. It blocks until the context
// is cancelled, the underlying reader reaches EOF or the stop command closed
// the server.
func (c *Console) Run(ctx context.Context) {
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(c.reader)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
		if err := scanner.Err(); err != nil {
			c.log.Error("console input: " + err.Error())
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case <-c.srv.Done():
			return
		case line, ok := <-lines:
			if !ok {
				return
			}
			out, err := c.Execute(line)
			for _, l := range strings.Split(out, "\n") {
				if l != "" {
					c.log.Info(l)
				}
			}
			if errors.Is(err, errStop) {
				return
			}
			if err != nil {
				c.log.Error(err.Error())
			}
		}
	}
}

// Execute runs a single command line and returns its output.
func (c *Console) Execute(line string) (string, error) {
	fields := strings.Fields(strings.TrimPrefix(strings.TrimSpace(line), "/"))
	if len(fields) == 0 {
		return "", nil
	}
	cmd, ok := commands[strings.ToLower(fields[0])]
	if !ok {
		return "", fmt.Errorf("unknown command %q, try help", fields[0])
	}
	return cmd.run(c, fields[1:])
}

// world resolves the world named in args[0] or the default world if args is
// empty.
func (c *Console) world(args []string) (*world.World, error) {
	if len(args) == 0 {
		return c.srv.DefaultWorld(), nil
	}
	w, ok := c.srv.World(args[0])
	if !ok {
		return nil, fmt.Errorf("%w: %s", server.ErrUnknownWorld, args[0])
	}
	return w, nil
}

func (c *Console) help([]string) (string, error) {
	usages := make([]string, 0, len(commands))
	for _, cmd := range commands {
		usages = append(usages, cmd.usage)
	}
	slices.Sort(usages)
	return "Commands: " + strings.Join(usages, ", "), nil
}

func (c *Console) save(args []string) (string, error) {
	if len(args) == 0 {
		if err := c.srv.Save(); err != nil {
			return "", err
		}
		return fmt.Sprintf("Saved %d world(s).", len(c.srv.Worlds())), nil
	}
	w, err := c.world(args)
	if err != nil {
		return "", err
	}
	if err := w.Save(); err != nil {
		return "", fmt.Errorf("save %s: %w", w.Name(), err)
	}
	return "Saved world " + w.Name() + ".", nil
}

func (c *Console) time(args []string) (string, error) {
	var (
		w     *world.World
		value string
		err   error
	)
	switch len(args) {
	case 0:
		w = c.srv.DefaultWorld()
	case 1:
		if _, nErr := strconv.Atoi(args[0]); nErr == nil {
			w, value = c.srv.DefaultWorld(), args[0]
		} else if w, err = c.world(args); err != nil {
			return "", err
		}
	case 2:
		if w, err = c.world(args); err != nil {
			return "", err
		}
		value = args[1]
	default:
		return "", errors.New("usage: " + commands["time"].usage)
	}
	if value == "" {
		return fmt.Sprintf("Time of %s is %d.", w.Name(), w.Time()), nil
	}
	t, err := strconv.Atoi(value)
	if err != nil {
		return "", fmt.Errorf("invalid time %q", value)
	}
	w.SetTime(t)
	return fmt.Sprintf("Time of %s set to %d.", w.Name(), w.Time()), nil
}

func (c *Console) players(args []string) (string, error) {
	worlds := c.srv.Worlds()
	if len(args) > 0 {
		w, err := c.world(args)
		if err != nil {
			return "", err
		}
		worlds = []*world.World{w}
	}
	var sb strings.Builder
	for _, w := range worlds {
		names := make([]string, 0, w.PlayerCount())
		for _, p := range w.Players() {
			names = append(names, p.Name())
		}
		slices.Sort(names)
		fmt.Fprintf(&sb, "%s (%d): %s\n", w.Name(), len(names), strings.Join(names, ", "))
	}
	return sb.String(), nil
}

func (c *Console) worlds([]string) (string, error) {
	var sb strings.Builder
	for i, w := range c.srv.Worlds() {
		def := ""
		if i == 0 {
			def = ", default"
		}
		fmt.Fprintf(&sb, "%s (%s%s): %d players, %d chunks loaded, time %d\n", w.Name(), w.Dimension(), def, w.PlayerCount(), w.LoadedChunkCount(), w.Time())
	}
	return sb.String(), nil
}

func (c *Console) chunk(args []string) (string, error) {
	if len(args) != 3 {
		return "", errors.New("usage: " + commands["chunk"].usage)
	}
	w, err := c.world(args)
	if err != nil {
		return "", err
	}
	x, xErr := strconv.ParseInt(args[1], 10, 32)
	z, zErr := strconv.ParseInt(args[2], 10, 32)
	if xErr != nil || zErr != nil {
		return "", fmt.Errorf("invalid chunk position %s %s", args[1], args[2])
	}
	pos := world.ChunkPos{int32(x), int32(z)}
	ch, err := w.Chunk(pos)
	if err != nil {
		return "", fmt.Errorf("load chunk %v: %w", pos, err)
	}
	return fmt.Sprintf("Chunk %v of %s: height %d at 0,0.", pos, w.Name(), ch.Height(0, 0)), nil
}

func (c *Console) plugins([]string) (string, error) {
	infos := c.srv.Plugins().Infos()
	if len(infos) == 0 {
		return "No plugins enabled.", nil
	}
	var sb strings.Builder
	for _, info := range infos {
		sb.WriteString(info.Name)
		if info.Version != "" {
			sb.WriteString(" v" + info.Version)
		}
		if info.Builtin {
			sb.WriteString(" (built-in)")
		} else {
			sb.WriteString(" (" + info.Path + ")")
		}
		sb.WriteByte('\n')
	}
	return sb.String(), nil
}

func (c *Console) stop([]string) (string, error) {
	if err := c.srv.Close(); err != nil {
		c.log.Error("close server: " + err.Error())
	}
	return "Server stopped.", errStop
}
