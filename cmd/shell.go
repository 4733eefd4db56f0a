// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync/atomic"

	"github.com/abiosoft/ishell"
	"github.com/spf13/cobra"

	"github.com/Thermoquad/tandem/pkg/body"
	"github.com/Thermoquad/tandem/pkg/engine"
	"github.com/Thermoquad/tandem/pkg/hal"
	"github.com/Thermoquad/tandem/pkg/protocol"
)

var shellGate string

var shellCmd = &cobra.Command{
	Use:   "shell [command...]",
	Short: "Drive an in-process Body and Engine by hand",
	Long: `Start both controllers with software inputs and open an interactive
shell to press switches, select gears, set ADC readings and send client
commands. Type "help" for the command list.

When arguments are given they are run as one shell command and the shell
exits, e.g. "tandem shell state".`,
	RunE: runShell,
}

func init() {
	rootCmd.AddCommand(shellCmd)
	shellCmd.Flags().StringVar(&shellGate, "gate", "uniform", "Busy gate policy on Body's link port (uniform, legacy, none)")
}

const (
	shellKey    = "$sim"
	shellPrompt = "tandem > "
)

// simShell is the state shared by shell commands
type simShell struct {
	sim   *simulator
	shell *ishell.Shell
	trace atomic.Bool // print relayed frames
}

func shellFrom(c *ishell.Context) *simShell {
	return c.Get(shellKey).(*simShell)
}

func runShell(cmd *cobra.Command, args []string) error {
	gate, err := parseGate(shellGate)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	s := &simShell{shell: ishell.New()}
	sim, err := newSimulator(ctx, configPath, simOptions{gate: gate}, func(f *protocol.Frame) {
		if s.trace.Load() {
			s.shell.Print(protocol.FormatFrame(f))
		}
	})
	if err != nil {
		return err
	}
	defer sim.close()
	s.sim = sim

	done := make(chan error, 1)
	go func() { done <- sim.run(ctx, nil) }()

	s.shell.Set(shellKey, s)
	s.shell.SetPrompt(shellPrompt)
	for _, c := range shellCommands {
		s.shell.AddCmd(c)
	}

	if len(args) > 0 {
		err = s.shell.Process(args...)
	} else {
		s.shell.Println("Tandem shell, type help for commands")
		s.shell.Run()
	}

	cancel()
	if runErr := <-done; err == nil {
		err = runErr
	}
	return err
}

// withSense parses the sense argument for fn
func withSense(fn func(c *ishell.Context, l *hal.SenseLatch, name string) error) func(c *ishell.Context) {
	return func(c *ishell.Context) {
		if len(c.Args) != 1 {
			c.Err(fmt.Errorf("expected one sense: %s", strings.Join(hal.SenseList(), ", ")))
			return
		}
		if err := fn(c, shellFrom(c).sim.senses, c.Args[0]); err != nil {
			c.Err(err)
		}
	}
}

// adcChannels maps channel names to ADC channels
var adcChannels = map[string]int{
	"accel_x": engine.ChAccelX,
	"accel_y": engine.ChAccelY,
	"accel_z": engine.ChAccelZ,
	"battery": engine.ChBattery,
	"current": engine.ChCurrent,
	"temp":    engine.ChTemperature,
}

func parseChannel(s string) (int, error) {
	if ch, ok := adcChannels[s]; ok {
		return ch, nil
	}
	ch, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("unknown adc channel %q", s)
	}
	return ch, nil
}

func parseMask(s string) (uint16, error) {
	if s == "all" {
		return 0xFFFF, nil
	}
	return parseSenseWord(s)
}

var shellCommands = []*ishell.Cmd{
	{
		Name: "press",
		Help: "SENSE - assert a switch input",
		Func: withSense(func(c *ishell.Context, l *hal.SenseLatch, name string) error {
			return l.Press(name)
		}),
	},
	{
		Name: "release",
		Help: "SENSE - release a switch input",
		Func: withSense(func(c *ishell.Context, l *hal.SenseLatch, name string) error {
			return l.Release(name)
		}),
	},
	{
		Name:    "toggle",
		Aliases: []string{"t"},
		Help:    "SENSE - flip a switch input",
		Func: withSense(func(c *ishell.Context, l *hal.SenseLatch, name string) error {
			on, err := l.Toggle(name)
			if err == nil {
				c.Printf("%s %v\n", name, on)
			}
			return err
		}),
	},
	{
		Name:    "gear",
		Aliases: []string{"g"},
		Help:    "N - engage gear N (0 for neutral)",
		Func: func(c *ishell.Context) {
			if len(c.Args) != 1 {
				c.Err(fmt.Errorf("expected a gear 0-%d", engine.Gears))
				return
			}
			n, err := strconv.Atoi(c.Args[0])
			if err != nil {
				c.Err(err)
				return
			}
			if err := shellFrom(c).sim.gears.Select(n); err != nil {
				c.Err(err)
			}
		},
	},
	{
		Name: "adc",
		Help: "CHANNEL VALUE - set a raw 10-bit reading (accel_x, accel_y, accel_z, battery, current, temp)",
		Func: func(c *ishell.Context) {
			if len(c.Args) != 2 {
				c.Err(fmt.Errorf("expected channel and value"))
				return
			}
			ch, err := parseChannel(c.Args[0])
			if err != nil {
				c.Err(err)
				return
			}
			v, err := strconv.ParseUint(c.Args[1], 0, 16)
			if err != nil {
				c.Err(err)
				return
			}
			if err := shellFrom(c).sim.adc.Set(ch, uint16(v)); err != nil {
				c.Err(err)
			}
		},
	},
	{
		Name: "pulse",
		Help: "TICKS - record an ignition pulse TICKS x 10us after the previous one",
		Func: func(c *ishell.Context) {
			if len(c.Args) != 1 {
				c.Err(fmt.Errorf("expected the pulse interval"))
				return
			}
			n, err := strconv.ParseUint(c.Args[0], 10, 32)
			if err != nil {
				c.Err(err)
				return
			}
			s := shellFrom(c)
			s.sim.engine.Pulse(uint32(n))
			c.Printf("rpm %d\n", engine.RPM(uint32(n)))
		},
	},
	{
		Name:    "state",
		Aliases: []string{"s"},
		Help:    "show Body's state and inputs",
		Func: func(c *ishell.Context) {
			s := shellFrom(c)
			st := s.sim.body.State()
			c.Printf("state   0x%03X %s\n", uint16(st), body.StateString(st))
			c.Printf("senses  0x%03X\n", s.sim.senses.Word())
			c.Printf("dynamic 0x%03X\n", s.sim.body.DynamicStatus())
			c.Printf("gear    %d (pin %d)\n", s.sim.engine.Gear(), s.sim.engine.CurrentGear())
		},
	},
	{
		Name:    "relays",
		Aliases: []string{"r"},
		Help:    "show relay outputs",
		Func: func(c *ishell.Context) {
			levels := shellFrom(c).sim.relays.Levels()
			for r := body.Relay(0); r < body.RelayCount; r++ {
				on := "off"
				if levels[r] {
					on = "ON"
				}
				c.Printf("%-10s %s\n", r, on)
			}
		},
	},
	{
		Name: "stats",
		Help: "show Engine telemetry and link counters",
		Func: func(c *ishell.Context) {
			s := shellFrom(c)
			c.Printf("engine  %s\n", protocol.FormatStats(s.sim.engine.Telemetry()))
			if st, ok := s.sim.body.Engine(); ok {
				c.Printf("body    %s\n", protocol.FormatStats(st))
			} else {
				c.Println("body    no stats reply yet")
			}
			c.Printf("link    replies=%d errors=%d polls=%d relayed=%d\n",
				s.sim.body.StatsReceived(), s.sim.body.LinkErrors(), s.sim.engine.Polls(), s.sim.engine.Relayed())
			fs := s.sim.fanout.Stats()
			c.Printf("relay   observed=%d published=%d failed=%d dropped=%d\n",
				fs.Observed, fs.Published, fs.Failed, fs.Dropped)
		},
	},
	{
		Name: "sound",
		Help: "CODE - play a sound on Engine (0-5, beep, off, random)",
		Func: func(c *ishell.Context) {
			code, err := parseSound(strings.Join(c.Args, " "))
			if err != nil {
				c.Err(err)
				return
			}
			shellFrom(c).sim.engine.FeedExternal(protocol.NewSoundCommand(code))
		},
	},
	{
		Name: "send",
		Help: "COMMAND... - feed a client command to Engine (stats, sound, sense, msg)",
		Func: func(c *ishell.Context) {
			frame, err := buildFrame(c.Args)
			if err != nil {
				c.Err(err)
				return
			}
			shellFrom(c).sim.engine.FeedExternal(frame)
		},
	},
	{
		Name: "physical",
		Help: "MASK - select the senses read from pins (names, number or all)",
		Func: func(c *ishell.Context) {
			mask, err := parseMask(strings.Join(c.Args, ""))
			if err != nil {
				c.Err(err)
				return
			}
			if err := shellFrom(c).sim.body.SetPhysicalSenses(mask); err != nil {
				c.Err(err)
			}
		},
	},
	{
		Name: "dynamic",
		Help: "MASK - select the senses driven by the sense command (names, number or all)",
		Func: func(c *ishell.Context) {
			mask, err := parseMask(strings.Join(c.Args, ""))
			if err != nil {
				c.Err(err)
				return
			}
			if err := shellFrom(c).sim.body.SetDynamicSenses(mask); err != nil {
				c.Err(err)
			}
		},
	},
	{
		Name: "trace",
		Help: "on|off - print every frame Engine relays",
		Func: func(c *ishell.Context) {
			s := shellFrom(c)
			if len(c.Args) == 1 {
				s.trace.Store(c.Args[0] == "on")
			}
			c.Printf("trace %v\n", s.trace.Load())
		},
	},
}
