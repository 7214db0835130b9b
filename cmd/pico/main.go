//go:build rp2040

// cmd/pico is the firmware entrypoint for a Raspberry Pi Pico. It blinks
// the LED and, when an AHT20 answers on the default I2C pins, logs and
// publishes a reading every few blinks.
package main

import (
	"context"
	"os"
	"time"

	"github.com/charmbracelet/log"
	"periph.io/x/conn/v3/physic"

	"periphio/board"
	"periphio/drivers/aht20"
	"periphio/hal"
	"periphio/hub"
	"periphio/platform/rp2"
	"periphio/supervisor"
)

func main() {
	// Allow USB CDC to enumerate before we print.
	time.Sleep(2 * time.Second)

	logger := log.NewWithOptions(os.Stdout, log.Options{Prefix: "pico"})
	desc := board.Pico()
	h := hub.New(4)
	hc, err := hal.New(desc, rp2.New(desc), hal.WithLogger(logger.WithPrefix("hal")), hal.WithHub(h))
	if err != nil {
		logger.Fatal("hal", "err", err)
	}

	var (
		led    *hal.DigitalInOut
		sensor *aht20.Device
		ticks  int
		every  int
		half   time.Duration
	)
	prog := supervisor.Program{
		Setup: func(rt *supervisor.Runtime) error {
			env := rt.Env()
			half = time.Duration(env.Int("BLINK_MS", 500)) * time.Millisecond
			every = env.Int("SAMPLE_EVERY", 4)

			tb := rt.HAL().Board()
			if led, err = hal.NewDigitalInOut(rt.HAL(), tb.MustPin("LED")); err != nil {
				return err
			}
			if err := led.SwitchToOutput(false, hal.PushPull); err != nil {
				return err
			}
			bus, err := hal.NewI2C(rt.HAL(), tb.MustPin("SCL"), tb.MustPin("SDA"), 100*physic.KiloHertz)
			if err != nil {
				return err
			}
			d := aht20.New(bus, aht20.Config{})
			if err := d.Init(rt.Context()); err != nil {
				rt.Log().Warn("no aht20", "err", err)
				bus.Deinit()
				return nil
			}
			sensor = d
			return nil
		},
		Loop: func(rt *supervisor.Runtime) error {
			ticks++
			if err := led.SetValue(ticks%2 == 1); err != nil {
				return err
			}
			if sensor != nil && every > 0 && ticks%every == 0 {
				ctx, cancel := context.WithTimeout(rt.Context(), time.Second)
				s, err := sensor.Measure(ctx)
				cancel()
				if err != nil {
					rt.Log().Warn("aht20", "err", err)
				} else {
					rt.Log().Info("aht20", "dC", s.DeciCelsius(), "dRH", s.DeciRelHumidity())
					rt.Hub().Publish(rt.Hub().NewMessage(hub.Topic{"sensor", "aht20"}, s, true))
				}
			}
			return rt.Sleep(half)
		},
	}

	rt := supervisor.New(hc, prog, supervisor.WithLogger(logger))
	if err := rt.Run(context.Background()); err != nil {
		logger.Error("run", "err", err)
	}
	for {
		time.Sleep(time.Hour)
	}
}
