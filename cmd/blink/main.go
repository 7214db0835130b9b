// cmd/blink runs the LED blink program on the simulator and reports the
// square wave it produced.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"periphio/board"
	"periphio/hal"
	"periphio/platform/sim"
	"periphio/supervisor"
)

var (
	cycles int
	half   time.Duration
	pin    string

	rootCmd = &cobra.Command{
		Use:   "blink",
		Short: "Blink the LED on the simulated board",
		RunE: func(cmd *cobra.Command, args []string) error {
			return blink(cmd.Context(), cmd.OutOrStdout(), pin, cycles, half)
		},
	}
)

func init() {
	rootCmd.Flags().IntVarP(&cycles, "cycles", "n", 10, "number of on/off cycles")
	rootCmd.Flags().DurationVar(&half, "half", 500*time.Millisecond, "half period")
	rootCmd.Flags().StringVarP(&pin, "pin", "p", "LED", "pin name")
}

func main() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}

func blink(ctx context.Context, w io.Writer, name string, n int, half time.Duration) error {
	desc := board.Sim()
	be := sim.New(desc)
	logger := log.NewWithOptions(os.Stderr, log.Options{Prefix: "blink", ReportTimestamp: true})
	hc, err := hal.New(desc, be, hal.WithLogger(logger.WithPrefix("hal")))
	if err != nil {
		return err
	}
	defer hc.Close()

	var led *hal.DigitalInOut
	done := 0
	prog := supervisor.Program{
		Setup: func(rt *supervisor.Runtime) error {
			p, err := rt.HAL().Pin(name)
			if err != nil {
				return err
			}
			if led, err = hal.NewDigitalInOut(rt.HAL(), p); err != nil {
				return err
			}
			return led.SwitchToOutput(false, hal.PushPull)
		},
		Loop: func(rt *supervisor.Runtime) error {
			if done == n {
				return supervisor.Stop
			}
			if err := led.SetValue(true); err != nil {
				return err
			}
			if err := rt.Sleep(half); err != nil {
				return err
			}
			if err := led.SetValue(false); err != nil {
				return err
			}
			done++
			return rt.Sleep(half)
		},
	}
	rt := supervisor.New(hc, prog, supervisor.WithLogger(logger))
	if err := rt.Run(ctx); err != nil {
		return err
	}

	p, _ := hc.Pin(name)
	edges := be.PinState(p.Number()).Edges()
	fmt.Fprintf(w, "%s: %d cycles, %d edges\n", name, done, len(edges))
	for i := 1; i+1 < len(edges); i += 2 {
		fmt.Fprintf(w, "  high %v\n", edges[i+1].At.Sub(edges[i].At).Round(time.Millisecond))
	}
	return nil
}
