// cmd/preview shows the simulated board's display in a desktop window and
// animates a small scene on it.
package main

import (
	"context"
	"image/color"
	"os"
	"time"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"periphio/board"
	"periphio/display"
	"periphio/display/window"
	"periphio/hal"
	"periphio/platform/sim"
)

var (
	scale    int
	rotation int
	fps      int

	rootCmd = &cobra.Command{
		Use:   "preview",
		Short: "Render the simulated display in a window",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context())
		},
	}
)

func init() {
	rootCmd.Flags().IntVarP(&scale, "scale", "s", 3, "window pixels per display pixel")
	rootCmd.Flags().IntVarP(&rotation, "rotation", "r", 0, "display rotation in degrees")
	rootCmd.Flags().IntVar(&fps, "fps", display.DefaultFrameRate, "auto refresh rate")
}

func main() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	logger := log.NewWithOptions(os.Stderr, log.Options{Prefix: "preview"})
	desc := board.Sim()
	win := window.New(desc.Display.Width, desc.Display.Height, scale, "periphio "+desc.Name)
	hc, err := hal.New(desc, sim.New(desc, sim.WithDisplay(win)), hal.WithLogger(logger.WithPrefix("hal")))
	if err != nil {
		return err
	}
	defer hc.Close()

	d, err := hc.Display(display.Config{Rotation: rotation, FrameRate: fps, Background: color.Black})
	if err != nil {
		return err
	}
	box, err := scene(d.Root(), d.Width())
	if err != nil {
		return err
	}
	d.SetAutoRefresh(true)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go animate(ctx, box, d.Width()-16)

	// ebiten owns the main goroutine until the window closes.
	return win.Run()
}

// scene builds a title label above a bouncing palette tile.
func scene(root *display.Group, width int) (*display.TileGrid, error) {
	title := display.NewLabel(display.DefaultFont, "periphio", color.RGBA{0xFF, 0xD0, 0x40, 0xFF})
	title.SetPosition(4, 4)
	if err := root.Append(title); err != nil {
		return nil, err
	}

	bm, err := display.NewBitmap(16, 16, 2)
	if err != nil {
		return nil, err
	}
	for i := 0; i < 16; i++ {
		_ = bm.Set(i, i, 1)
		_ = bm.Set(15-i, i, 1)
	}
	pal := display.NewPalette(2)
	_ = pal.Set(0, color.RGBA{0x20, 0x60, 0xC0, 0xFF})
	_ = pal.Set(1, color.White)
	box, err := display.NewTileGrid(bm, pal, display.TileGridConfig{TileWidth: 16, TileHeight: 16, Width: 1, Height: 1, Y: 40})
	if err != nil {
		return nil, err
	}
	return box, root.Append(box)
}

func animate(ctx context.Context, box *display.TileGrid, max int) {
	t := time.NewTicker(20 * time.Millisecond)
	defer t.Stop()
	x, dx := 0, 2
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
		}
		if x+dx < 0 || x+dx > max {
			dx = -dx
		}
		x += dx
		_, y := box.Position()
		box.SetPosition(x, y)
	}
}
