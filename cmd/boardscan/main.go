// cmd/boardscan lists a board's pin table and probes its I2C wiring on the
// simulator.
package main

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"
	"periph.io/x/conn/v3/physic"

	"periphio/board"
	"periphio/hal"
	"periphio/platform/sim"
)

var (
	boardName string
	devices   []string
	verbose   bool

	rootCmd = &cobra.Command{
		Use:   "boardscan",
		Short: "Inspect board pin tables",
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if verbose {
				log.SetLevel(log.DebugLevel)
			}
		},
	}

	boardsCmd = &cobra.Command{
		Use:   "boards",
		Short: "List built-in boards",
		Run: func(cmd *cobra.Command, args []string) {
			for _, n := range board.Known() {
				fmt.Fprintln(cmd.OutOrStdout(), n)
			}
		},
	}

	pinsCmd = &cobra.Command{
		Use:   "pins",
		Short: "List pin names, aliases and capabilities",
		RunE: func(cmd *cobra.Command, args []string) error {
			tb, err := table(boardName)
			if err != nil {
				return err
			}
			listPins(cmd.OutOrStdout(), tb)
			return nil
		},
	}

	i2cCmd = &cobra.Command{
		Use:   "i2c",
		Short: "Find clock/data pairs that form an I2C bus and scan each one",
		RunE: func(cmd *cobra.Command, args []string) error {
			addrs, err := parseAddrs(devices)
			if err != nil {
				return err
			}
			return scanI2C(cmd.OutOrStdout(), boardName, addrs)
		},
	}
)

func init() {
	rootCmd.PersistentFlags().StringVarP(&boardName, "board", "b", "sim", "board name (see 'boardscan boards')")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")
	i2cCmd.Flags().StringSliceVarP(&devices, "device", "d", []string{"0x77"}, "simulated device addresses to attach to every bus")
	rootCmd.AddCommand(boardsCmd, pinsCmd, i2cCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func table(name string) (*board.Table, error) {
	d, ok := board.Lookup(name)
	if !ok {
		return nil, fmt.Errorf("unknown board %q (known: %s)", name, strings.Join(board.Known(), ", "))
	}
	return board.NewTable(d)
}

func listPins(w io.Writer, tb *board.Table) {
	for _, e := range tb.Entries() {
		if e.Alias {
			fmt.Fprintf(w, "%-10s -> %s\n", e.Name, tb.Name(e.Pin))
			continue
		}
		fmt.Fprintf(w, "%-10s gpio%-3d %s\n", e.Name, e.Pin.Number(), tb.Caps(e.Pin))
	}
}

func parseAddrs(in []string) ([]uint16, error) {
	out := make([]uint16, 0, len(in))
	for _, s := range in {
		v, err := strconv.ParseUint(s, 0, 7)
		if err != nil {
			return nil, fmt.Errorf("bad address %q: %w", s, err)
		}
		out = append(out, uint16(v))
	}
	return out, nil
}

// scanI2C tries every ordered pin pair with I2C capability. Pairs that
// construct are scanned and reported.
func scanI2C(w io.Writer, name string, addrs []uint16) error {
	d, ok := board.Lookup(name)
	if !ok {
		return fmt.Errorf("unknown board %q", name)
	}
	be := sim.New(d)
	for c := 0; c < d.I2C; c++ {
		for _, a := range addrs {
			be.AttachI2C(c, a, sim.NewRegisters(nil))
		}
	}
	ctx, err := hal.New(d, be, hal.WithLogger(log.Default().WithPrefix("hal")))
	if err != nil {
		return err
	}
	defer ctx.Close()

	tb := ctx.Board()
	var cand []board.Pin
	for _, p := range tb.Pins() {
		if tb.Caps(p).Has(board.I2C) {
			cand = append(cand, p)
		}
	}
	found := 0
	for _, scl := range cand {
		for _, sda := range cand {
			if scl == sda {
				continue
			}
			bus, err := hal.NewI2C(ctx, scl, sda, 100*physic.KiloHertz)
			if err != nil {
				continue
			}
			found++
			line := fmt.Sprintf("SCL %-6s SDA %-6s i2c%d", tb.Name(scl), tb.Name(sda), bus.Controller())
			if l, ok := bus.TryLock(); ok {
				seen, err := l.Scan()
				l.Unlock()
				if err != nil {
					line += " scan failed: " + err.Error()
				} else {
					hex := make([]string, len(seen))
					for i, a := range seen {
						hex[i] = fmt.Sprintf("0x%02x", a)
					}
					line += " [" + strings.Join(hex, " ") + "]"
				}
			}
			fmt.Fprintln(w, line)
			bus.Deinit()
		}
	}
	if found == 0 {
		fmt.Fprintln(w, "no I2C pin pairs")
	}
	return nil
}
