// Command gopit-mon is an interactive console for the PIT monitor
// firmware. It dials the board over serial, reads the firmware identity
// and then accepts commands to program, start, stop and inspect the
// timer channels.
package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/shlex"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"

	"gopit/host/config"
	"gopit/host/link"
	"gopit/protocol"
)

const projectName = "gopit monitor"

var projectVersion = "dev"

func main() {
	var device string
	var baud int
	var configPath string
	var levelFlag string
	var cmdTimeout time.Duration

	pflag.StringVarP(&device, "device", "d", "", "Serial device path (overrides the config file)")
	pflag.IntVarP(&baud, "baud", "b", 0, "Baud rate, 0 keeps the config value (ignored for USB CDC)")
	pflag.StringVarP(&configPath, "config", "c", "", "JSON config file with device and presets")
	pflag.StringVarP(&levelFlag, "level", "l", "info", "Set log level")
	pflag.DurationVar(&cmdTimeout, "timeout", 2*time.Second, "Reply timeout per command")
	pflag.Parse()

	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()
	if lvl, err := zerolog.ParseLevel(levelFlag); err == nil {
		logger = logger.Level(lvl)
	}

	cfg := config.Default()
	if configPath != "" {
		loaded, err := config.Load(configPath)
		if err != nil {
			Exitf("Failed to load config %s: %v\n", configPath, err)
		}
		cfg = loaded
	}
	if device != "" {
		cfg.Device = device
	}
	if baud > 0 {
		cfg.Baud = baud
	}

	fmt.Printf("%s (version %s)\n", projectName, projectVersion)

	ln, err := link.Dial(cfg.Device, cfg.Baud, logger)
	if err != nil {
		Exitf("Failed to open %s: %v\n", cfg.Device, err)
	}
	defer ln.Close()

	id, err := ln.Identify(cmdTimeout)
	if err != nil {
		Exitf("No identity from %s: %v\n", cfg.Device, err)
	}
	fmt.Printf("Connected: firmware %s, %d channels, bus clock %s Hz\n",
		id.Version, id.Channels, humanize.Comma(int64(id.BusHz)))
	fmt.Println("Type 'help' for commands, 'quit' to exit.")

	ctx, cancel := context.WithCancel(context.Background())
	g, ctx := errgroup.WithContext(ctx)
	con := &console{
		link:    ln,
		cfg:     cfg,
		id:      id,
		timeout: cmdTimeout,
		log:     logger,
	}
	g.Go(func() error {
		defer cancel()
		return con.run(ctx)
	})
	g.Go(func() error {
		// Spot an unplugged device even while the console sits at the
		// prompt. The console itself only notices on its next command.
		select {
		case <-ctx.Done():
			return nil
		case <-ln.Done():
			logger.Error().Msg("serial link went down")
			return errors.New("serial link closed")
		}
	})
	if err := g.Wait(); err != nil && err != context.Canceled {
		Exitf("%v\n", err)
	}
}

// Exitf prints the given error message and exits with code 1.
func Exitf(message string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, message, args...)
	os.Exit(1)
}

// console reads commands from stdin and talks to the firmware.
type console struct {
	link    *link.Link
	cfg     *config.Config
	id      protocol.Identity
	timeout time.Duration
	log     zerolog.Logger
}

func (c *console) run(ctx context.Context) error {
	scanner := bufio.NewScanner(os.Stdin)
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		fmt.Print("> ")
		if !scanner.Scan() {
			fmt.Println()
			return scanner.Err()
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		args, err := shlex.Split(line)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			continue
		}
		if len(args) == 0 {
			continue
		}
		c.log.Debug().Str("line", line).Msg("command")
		if args[0] == "quit" || args[0] == "exit" || args[0] == "q" {
			return nil
		}
		if err := c.dispatch(ctx, args); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
	}
}

func (c *console) dispatch(ctx context.Context, args []string) error {
	switch args[0] {
	case "help", "?":
		printHelp()
		return nil
	case "identify":
		return c.identify()
	case "query":
		return c.query(args[1:])
	case "set":
		return c.set(args[1:])
	case "start":
		return c.lifecycle(c.link.Start, args[1:])
	case "stop":
		return c.lifecycle(c.link.Stop, args[1:])
	case "reset":
		return c.lifecycle(c.link.Reset, args[1:])
	case "preset":
		return c.preset(args[1:])
	case "presets":
		c.listPresets()
		return nil
	case "trace":
		return c.trace()
	case "watch":
		return c.watch(ctx, args[1:])
	case "save":
		return c.save(args[1:])
	default:
		return errors.Errorf("unknown command %q (type 'help' for available commands)", args[0])
	}
}

func (c *console) identify() error {
	id, err := c.link.Identify(c.timeout)
	if err != nil {
		return err
	}
	c.id = id
	fmt.Printf("firmware %s, %d channels, bus clock %s Hz\n",
		id.Version, id.Channels, humanize.Comma(int64(id.BusHz)))
	return nil
}

func (c *console) query(args []string) error {
	// The firmware answers a query with every channel's status, so a
	// single-channel view just filters the full set.
	stats, err := c.link.Query(int(c.id.Channels), c.timeout)
	if err != nil {
		return err
	}
	if len(args) == 1 {
		ch, err := c.parseChannel(args[0])
		if err != nil {
			return err
		}
		for _, st := range stats {
			if st.Channel == ch {
				c.printStatus(st)
			}
		}
		return nil
	}
	for _, st := range stats {
		c.printStatus(st)
	}
	return nil
}

func (c *console) set(args []string) error {
	if len(args) != 3 {
		return errors.New("usage: set <channel> value|period|freq <n>")
	}
	ch, err := c.parseChannel(args[0])
	if err != nil {
		return err
	}
	var st protocol.ChannelStatus
	switch args[1] {
	case "value":
		cycles, err := strconv.ParseUint(args[2], 10, 32)
		if err != nil {
			return errors.Wrapf(err, "bad cycle count %q", args[2])
		}
		st, err = c.link.SetValue(ch, uint32(cycles), c.timeout)
		if err != nil {
			return err
		}
	case "period":
		d, err := time.ParseDuration(args[2])
		if err != nil {
			return errors.Wrapf(err, "bad period %q", args[2])
		}
		st, err = c.link.SetPeriod(ch, d, c.timeout)
		if err != nil {
			return err
		}
	case "freq", "frequency":
		hz, err := strconv.ParseFloat(args[2], 64)
		if err != nil {
			return errors.Wrapf(err, "bad frequency %q", args[2])
		}
		st, err = c.link.SetFrequency(ch, hz, c.timeout)
		if err != nil {
			return err
		}
	default:
		return errors.Errorf("unknown unit %q (value, period or freq)", args[1])
	}
	c.printStatus(st)
	return nil
}

func (c *console) lifecycle(op func(uint8, time.Duration) (protocol.ChannelStatus, error), args []string) error {
	if len(args) != 1 {
		return errors.New("usage: start|stop|reset <channel>")
	}
	ch, err := c.parseChannel(args[0])
	if err != nil {
		return err
	}
	st, err := op(ch, c.timeout)
	if err != nil {
		return err
	}
	c.printStatus(st)
	return nil
}

func (c *console) preset(args []string) error {
	if len(args) != 1 {
		return errors.New("usage: preset <name>")
	}
	p, ok := c.cfg.Presets[args[0]]
	if !ok {
		return errors.Errorf("no preset %q (try 'presets')", args[0])
	}
	cmd, err := p.Command()
	if err != nil {
		return err
	}
	st, err := c.link.Exec(cmd, c.timeout)
	if err != nil {
		return err
	}
	if p.Start {
		st, err = c.link.Start(p.Channel, c.timeout)
		if err != nil {
			return err
		}
	}
	c.printStatus(st)
	return nil
}

func (c *console) listPresets() {
	if len(c.cfg.Presets) == 0 {
		fmt.Println("no presets configured")
		return
	}
	names := make([]string, 0, len(c.cfg.Presets))
	for name := range c.cfg.Presets {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		p := c.cfg.Presets[name]
		fmt.Printf("  %-12s ch%d %s=%d start=%v\n", name, p.Channel, p.Mode, p.Arg, p.Start)
	}
}

// latTally aggregates dispatch latencies for one channel.
type latTally struct {
	count    int
	min, max uint32
	sum      uint64
}

func (c *console) trace() error {
	stats, err := c.link.Query(int(c.id.Channels), c.timeout)
	if err != nil {
		return err
	}
	loads := make(map[uint8]uint32, len(stats))
	for _, st := range stats {
		loads[st.Channel] = st.Load
	}

	entries, err := c.link.Trace(c.timeout, 50*time.Millisecond)
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		fmt.Println("trace ring empty")
		return nil
	}

	// CVAL was sampled when the handler ran, so load minus CVAL is the
	// dispatch latency in bus cycles. Stale if the load changed since.
	tally := make(map[uint8]*latTally)
	for _, e := range entries {
		load, ok := loads[e.Channel]
		if !ok || load < e.Current {
			fmt.Printf("  ch%d current %d\n", e.Channel, e.Current)
			continue
		}
		cycles := load - e.Current
		fmt.Printf("  ch%d current %-10d latency %d cycles (%v)\n",
			e.Channel, e.Current, cycles, c.cyclesToTime(cycles))
		t := tally[e.Channel]
		if t == nil {
			t = &latTally{min: cycles, max: cycles}
			tally[e.Channel] = t
		}
		if cycles < t.min {
			t.min = cycles
		}
		if cycles > t.max {
			t.max = cycles
		}
		t.sum += uint64(cycles)
		t.count++
	}
	for ch := uint8(0); ch < c.id.Channels; ch++ {
		t := tally[ch]
		if t == nil {
			continue
		}
		avg := uint32(t.sum / uint64(t.count))
		fmt.Printf("ch%d latency over %d fires: min %v avg %v max %v\n",
			ch, t.count, c.cyclesToTime(t.min), c.cyclesToTime(avg), c.cyclesToTime(t.max))
	}
	return nil
}

func (c *console) watch(ctx context.Context, args []string) error {
	ticks := 10
	if len(args) == 1 {
		n, err := strconv.Atoi(args[0])
		if err != nil || n <= 0 {
			return errors.Errorf("bad tick count %q", args[0])
		}
		ticks = n
	}

	stats, err := c.link.Query(int(c.id.Channels), c.timeout)
	if err != nil {
		return err
	}
	prev := make(map[uint8]uint32, len(stats))
	for _, st := range stats {
		prev[st.Channel] = st.Fires
	}

	for i := 0; i < ticks; i++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Second):
		}
		stats, err := c.link.Query(int(c.id.Channels), c.timeout)
		if err != nil {
			return err
		}
		var b strings.Builder
		fmt.Fprintf(&b, "%s ", time.Now().Format("15:04:05"))
		for _, st := range stats {
			delta := st.Fires - prev[st.Channel]
			prev[st.Channel] = st.Fires
			state := " "
			if st.Running {
				state = "*"
			}
			fmt.Fprintf(&b, " ch%d%s %s (+%s/s)", st.Channel, state,
				humanize.Comma(int64(st.Fires)), humanize.Comma(int64(delta)))
		}
		fmt.Println(b.String())
	}
	return nil
}

func (c *console) save(args []string) error {
	if len(args) != 1 {
		return errors.New("usage: save <path>")
	}
	if err := c.cfg.Save(args[0]); err != nil {
		return err
	}
	fmt.Printf("wrote %s\n", args[0])
	return nil
}

func (c *console) parseChannel(s string) (uint8, error) {
	n, err := strconv.ParseUint(s, 10, 8)
	if err != nil || n >= uint64(c.id.Channels) {
		return 0, errors.Errorf("bad channel %q, device has 0..%d", s, c.id.Channels-1)
	}
	return uint8(n), nil
}

func (c *console) printStatus(st protocol.ChannelStatus) {
	state := "stopped"
	if st.Running {
		state = "running"
	}
	period := c.cyclesToTime(st.Load + 1)
	rate := float64(c.id.BusHz) / (float64(st.Load) + 1)
	fmt.Printf("  ch%d %-7s load %-10d period %v (%s) current %-10d fires %s\n",
		st.Channel, state, st.Load, period, humanize.SI(rate, "Hz"),
		st.Current, humanize.Comma(int64(st.Fires)))
}

// cyclesToTime converts bus cycles to wall time using the identified bus
// clock.
func (c *console) cyclesToTime(cycles uint32) time.Duration {
	if c.id.BusHz == 0 {
		return 0
	}
	return time.Duration(uint64(cycles) * uint64(time.Second) / uint64(c.id.BusHz))
}

func printHelp() {
	fmt.Println("\nAvailable commands:")
	fmt.Println("  identify                - Re-read the firmware identity")
	fmt.Println("  query [ch]              - Show channel state and fire counts")
	fmt.Println("  set <ch> value <cycles> - Program the load value in bus cycles")
	fmt.Println("  set <ch> period <dur>   - Program the period (e.g. 250ms, 1.5s)")
	fmt.Println("  set <ch> freq <hz>      - Program the rate in hertz (e.g. 0.5, 1000)")
	fmt.Println("  start <ch>              - Start counting fires on a channel")
	fmt.Println("  stop <ch>               - Stop a channel")
	fmt.Println("  reset <ch>              - Restart the current countdown")
	fmt.Println("  preset <name>           - Apply a named preset from the config")
	fmt.Println("  presets                 - List configured presets")
	fmt.Println("  trace                   - Dump the fire trace with latencies")
	fmt.Println("  watch [ticks]           - Poll fire counts once a second")
	fmt.Println("  save <path>             - Write the active config to a file")
	fmt.Println("  help                    - Show this help message")
	fmt.Println("  quit/exit/q             - Exit the program")
	fmt.Println()
}
