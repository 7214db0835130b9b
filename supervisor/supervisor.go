// Package supervisor runs a user program the way a board runs its scripts:
// a boot step once, then setup and a paced loop until the program stops,
// fails or is reset.
package supervisor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/pkg/errors"
	"github.com/spf13/afero"

	"periphio/errcode"
	"periphio/hal"
	"periphio/hub"
	"periphio/settings"
	"periphio/storage"
	"periphio/types"
)

// Stop ends the program normally when returned from Setup or Loop.
var Stop = errors.New("stop")

var errReset = errors.New("reset")

var (
	topicState    = hub.Topic{"runtime", "state"}
	topicUSB      = hub.Topic{"runtime", "usb"}
	topicSettings = "settings"
)

// Program is a user script. Boot runs once per Run; Setup and Loop run
// again after every Reset. A nil Loop ends the program after Setup.
type Program struct {
	Boot     func(b *Boot) error
	Setup    func(rt *Runtime) error
	Loop     func(rt *Runtime) error
	Interval time.Duration
}

// Cadence is an LED pattern: Flashes pulses then a pause.
type Cadence struct {
	Flashes int
	On      time.Duration
	Off     time.Duration
	Pause   time.Duration
}

var (
	ErrorCadence      = Cadence{Flashes: 2, On: 100 * time.Millisecond, Off: 150 * time.Millisecond, Pause: time.Second}
	FilesystemCadence = Cadence{Flashes: 5, On: 50 * time.Millisecond, Off: 50 * time.Millisecond, Pause: 500 * time.Millisecond}
)

type Option func(*Runtime)

func WithLogger(l *log.Logger) Option { return func(rt *Runtime) { rt.log = l } }

// WithFs sets the volume behind Storage. The default is an empty in-memory
// filesystem.
func WithFs(fs afero.Fs) Option { return func(rt *Runtime) { rt.fs = fs } }

// WithStatusLED names the pin blinked after a failure. "" disables it.
func WithStatusLED(name string) Option { return func(rt *Runtime) { rt.led = name } }

func WithCadences(failure, filesystem Cadence) Option {
	return func(rt *Runtime) { rt.errC, rt.fsC = failure, filesystem }
}

// WithUSB sets the roles presented when Boot leaves them alone.
func WithUSB(r types.USBRoles) Option { return func(rt *Runtime) { rt.usb = r } }

type phase uint8

const (
	phaseIdle phase = iota
	phaseBoot
	phaseMain
)

type Runtime struct {
	hal   *hal.Context
	prog  Program
	log   *log.Logger
	hub   *hub.Hub
	conn  *hub.Connection
	fs    afero.Fs
	store *storage.Storage
	led   string
	errC  Cadence
	fsC   Cadence
	reset chan struct{}

	mu     sync.Mutex
	phase  phase
	usb    types.USBRoles
	env    *settings.Settings
	state  types.RuntimeState
	runCtx context.Context
}

func New(hc *hal.Context, prog Program, opts ...Option) *Runtime {
	rt := &Runtime{
		hal:   hc,
		prog:  prog,
		led:   "LED",
		errC:  ErrorCadence,
		fsC:   FilesystemCadence,
		usb:   types.USBRoles{CDC: true, MSC: true},
		reset: make(chan struct{}, 1),
	}
	for _, o := range opts {
		o(rt)
	}
	if rt.log == nil {
		rt.log = hc.Log().WithPrefix("supervisor")
	}
	if rt.hub = hc.Hub(); rt.hub == nil {
		rt.hub = hub.New(8)
	}
	rt.conn = rt.hub.NewConnection("supervisor")
	if rt.fs == nil {
		rt.fs = afero.NewMemMapFs()
	}
	rt.store = storage.New(rt.fs, storage.WithHostAccess(rt.hostHoldsVolume))
	rt.env, _ = settings.Parse(nil)
	return rt
}

func (rt *Runtime) HAL() *hal.Context         { return rt.hal }
func (rt *Runtime) Storage() *storage.Storage { return rt.store }
func (rt *Runtime) Log() *log.Logger          { return rt.log }
func (rt *Runtime) Hub() *hub.Hub             { return rt.hub }

// Env returns the settings read at boot.
func (rt *Runtime) Env() *settings.Settings {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	return rt.env
}

func (rt *Runtime) USB() types.USBRoles {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	return rt.usb
}

func (rt *Runtime) State() types.RuntimeState {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	return rt.state
}

// Context is cancelled when the current run of the program ends.
func (rt *Runtime) Context() context.Context {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	if rt.runCtx == nil {
		return context.Background()
	}
	return rt.runCtx
}

// Reset asks the runtime to release everything and start again from
// Setup. It takes effect at the program's next Sleep or between loop
// iterations.
func (rt *Runtime) Reset() {
	select {
	case rt.reset <- struct{}{}:
	default:
	}
}

// Sleep blocks for d. It returns early with an error when the run is
// cancelled or reset; Loop bodies should return that error.
func (rt *Runtime) Sleep(d time.Duration) error {
	return rt.pause(rt.Context(), d)
}

func (rt *Runtime) pause(ctx context.Context, d time.Duration) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-rt.reset:
		return errReset
	default:
	}
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-rt.reset:
		return errReset
	case <-t.C:
		return nil
	}
}

// Run boots the program and runs it until it stops or ctx ends. After an
// uncaught error the status LED blinks until ctx ends, which makes Run
// return that error, or until Reset restarts the program from Setup.
func (rt *Runtime) Run(ctx context.Context) error {
	err := rt.boot()
	for {
		if err == nil {
			err = rt.script(ctx)
			rt.hal.ReleaseAll()
			if errors.Is(err, errReset) {
				rt.log.Info("soft reset")
				err = nil
				continue
			}
			if err == nil || errors.Is(err, Stop) {
				rt.setState(types.LevelDone, nil)
				return nil
			}
			if cerr := ctx.Err(); cerr != nil && errors.Is(err, cerr) {
				rt.setState(types.LevelDone, nil)
				return cerr
			}
		}
		rt.crash(err)
		if e := rt.blink(ctx, rt.cadence(err)); !errors.Is(e, errReset) {
			return err
		}
		rt.log.Info("reset after failure")
		err = nil
	}
}

func (rt *Runtime) boot() (err error) {
	rt.setState(types.LevelBooting, nil)
	if env, lerr := settings.Load(rt.store.Fs(), settings.DefaultPath); lerr != nil {
		rt.log.Warn("settings unreadable", "err", lerr)
	} else {
		rt.mu.Lock()
		rt.env = env
		rt.mu.Unlock()
		for _, k := range env.Keys() {
			rt.conn.Publish(rt.hub.NewMessage(hub.Topic{topicSettings, k}, env.Getenv(k, ""), true))
		}
	}

	rt.mu.Lock()
	rt.phase = phaseBoot
	rt.mu.Unlock()
	if rt.prog.Boot != nil {
		err = guard(func() error { return rt.prog.Boot(&Boot{rt: rt}) })
	}
	rt.mu.Lock()
	rt.phase = phaseMain
	usb := rt.usb
	rt.mu.Unlock()

	rt.conn.Publish(rt.hub.NewMessage(topicUSB, usb, true))
	if merr := rt.store.Remount(!usb.MSC); merr != nil {
		rt.log.Warn("remount failed", "err", merr)
	}
	rt.log.Debug("booted", "msc", usb.MSC, "writable", rt.store.Writable())
	return err
}

func (rt *Runtime) script(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	rt.mu.Lock()
	rt.runCtx = runCtx
	rt.mu.Unlock()
	rt.setState(types.LevelRunning, nil)

	if rt.prog.Setup != nil {
		if err := guard(func() error { return rt.prog.Setup(rt) }); err != nil {
			return err
		}
	}
	if rt.prog.Loop == nil {
		return nil
	}
	for {
		if err := guard(func() error { return rt.prog.Loop(rt) }); err != nil {
			return err
		}
		if err := rt.pause(runCtx, rt.prog.Interval); err != nil {
			return err
		}
	}
}

// guard runs f, turning a panic into an error with a stack.
func guard(f func() error) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = errors.Errorf("panic: %v", p)
		}
	}()
	return f()
}

func (rt *Runtime) crash(err error) {
	rt.hal.ReleaseAll()
	rt.log.Error("program stopped", "err", err, "class", errcode.ClassOf(err))
	rt.log.Print(traceback(err))
	rt.setState(types.LevelStopped, err)
}

// traceback formats err with the deepest stack it carries, adding one at
// the call site when it has none.
func traceback(err error) string {
	type stackTracer interface{ StackTrace() errors.StackTrace }
	var st stackTracer
	if !errors.As(err, &st) {
		err = errors.WithStack(err)
	}
	return fmt.Sprintf("%+v", err)
}

func (rt *Runtime) cadence(err error) Cadence {
	if errcode.ClassOf(err) == errcode.ClassFilesystem {
		return rt.fsC
	}
	return rt.errC
}

// blink repeats c on the status LED until ctx ends or Reset is called, and
// returns which of the two happened.
func (rt *Runtime) blink(ctx context.Context, c Cadence) error {
	var led *hal.DigitalInOut
	if rt.led != "" {
		if p, err := rt.hal.Pin(rt.led); err == nil {
			if d, err := hal.NewDigitalInOut(rt.hal, p); err == nil {
				if d.SwitchToOutput(false, hal.PushPull) == nil {
					led = d
				} else {
					d.Deinit()
				}
			}
		}
	}
	if led != nil {
		defer led.Deinit()
	}
	set := func(v bool) {
		if led != nil {
			_ = led.SetValue(v)
		}
	}
	for {
		for i := 0; i < c.Flashes; i++ {
			set(true)
			if err := rt.pause(ctx, c.On); err != nil {
				return err
			}
			set(false)
			if err := rt.pause(ctx, c.Off); err != nil {
				return err
			}
		}
		if err := rt.pause(ctx, c.Pause); err != nil {
			return err
		}
	}
}

func (rt *Runtime) setState(l types.RuntimeLevel, err error) {
	st := types.RuntimeState{Level: l, TS: time.Now().UnixMilli()}
	if err != nil {
		st.Error = err.Error()
		st.Class = errcode.ClassOf(err).String()
	}
	rt.mu.Lock()
	rt.state = st
	rt.mu.Unlock()
	rt.conn.Publish(rt.hub.NewMessage(topicState, st, true))
}

func (rt *Runtime) hostHoldsVolume() bool {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	return rt.phase != phaseBoot && rt.usb.MSC
}

// Boot is handed to Program.Boot. Its setters fail with boot_only once
// Boot has returned.
type Boot struct {
	rt *Runtime
}

func (b *Boot) HAL() *hal.Context         { return b.rt.hal }
func (b *Boot) Storage() *storage.Storage { return b.rt.store }
func (b *Boot) Env() *settings.Settings   { return b.rt.Env() }
func (b *Boot) USB() types.USBRoles       { return b.rt.USB() }

func (b *Boot) SetUSB(r types.USBRoles) error {
	b.rt.mu.Lock()
	defer b.rt.mu.Unlock()
	if b.rt.phase != phaseBoot {
		return errcode.New(errcode.BootOnly, "supervisor.SetUSB", "usb roles are fixed after boot")
	}
	b.rt.usb = r
	return nil
}

// DisableMassStorage hides the volume from the host, which leaves it
// writable by the program.
func (b *Boot) DisableMassStorage() error {
	r := b.USB()
	r.MSC = false
	return b.SetUSB(r)
}
