// Package hal is the capability layer: digital, analog, PWM, pulse and bus
// objects constructed against a Context that owns the board table, the
// ownership registry and the platform backend.
package hal

import (
	"os"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"

	"periphio/board"
	"periphio/errcode"
	"periphio/hal/internal/claims"
	"periphio/hub"
	"periphio/platform"
	"periphio/types"
)

// Pull and Drive are re-exported from platform for callers.
type (
	Pull  = platform.Pull
	Drive = platform.Drive
)

const (
	PullNone  = platform.PullNone
	PullUp    = platform.PullUp
	PullDown  = platform.PullDown
	PushPull  = platform.PushPull
	OpenDrain = platform.OpenDrain
)

type Option func(*Context)

func WithLogger(l *log.Logger) Option { return func(c *Context) { c.log = l } }

// WithHub publishes claim changes on h.
func WithHub(h *hub.Hub) Option { return func(c *Context) { c.hub = h } }

// Context is the process-wide peripheral context. It is created once at
// startup and passed to every constructor.
type Context struct {
	table *board.Table
	be    platform.Backend
	reg   *claims.Registry
	log   *log.Logger
	hub   *hub.Hub
	conn  *hub.Connection

	mu     sync.Mutex
	nextID uint32
	live   map[claims.Owner]*Claim
	disp   *Claim
	closed bool
}

// New builds a context for the board described by desc on backend be.
func New(desc board.Descriptor, be platform.Backend, opts ...Option) (*Context, error) {
	tb, err := board.NewTable(desc)
	if err != nil {
		return nil, err
	}
	c := &Context{
		table: tb,
		be:    be,
		reg:   claims.New(),
		live:  make(map[claims.Owner]*Claim),
	}
	for _, o := range opts {
		o(c)
	}
	if c.log == nil {
		c.log = log.NewWithOptions(os.Stderr, log.Options{Prefix: "hal", Level: log.InfoLevel})
	}
	if c.hub != nil {
		c.conn = c.hub.NewConnection("hal")
	}
	c.log.Debug("context ready", "board", desc.Name, "backend", be.Name())
	return c, nil
}

func (c *Context) Board() *board.Table       { return c.table }
func (c *Context) Backend() platform.Backend { return c.be }
func (c *Context) Log() *log.Logger          { return c.log }
func (c *Context) Hub() *hub.Hub             { return c.hub }

// Pin is shorthand for c.Board().Pin.
func (c *Context) Pin(name string) (board.Pin, error) { return c.table.Pin(name) }

// Require fails with unsupported unless p has every capability in want.
func (c *Context) Require(op string, p board.Pin, want board.Caps) error {
	if !p.Valid() {
		return &errcode.E{C: errcode.InvalidParams, Op: op, Msg: "no pin"}
	}
	have := c.table.Caps(p)
	if !have.Has(want) {
		return &errcode.E{C: errcode.Unsupported, Op: op, Msg: c.table.Name(p) + " lacks " + (want &^ have).String()}
	}
	return nil
}

// Claim is one live capability's hold on the context. Release runs the
// bound closer once and frees everything the claim took.
type Claim struct {
	ctx    *Context
	id     claims.Owner
	kind   string
	pins   []board.Pin
	alive  atomic.Bool
	closer func()
}

// Claim registers a new capability of kind holding pins. It fails with
// pin_in_use when any pin is owned.
func (c *Context) Claim(kind string, pins ...board.Pin) (*Claim, error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, &errcode.E{C: errcode.Deinitialized, Op: kind, Msg: "context closed"}
	}
	c.nextID++
	id := claims.Owner(c.nextID)
	c.mu.Unlock()

	if err := c.reg.ClaimPins(id, pins...); err != nil {
		if e, ok := err.(*errcode.E); ok {
			e.Op = kind
		}
		return nil, err
	}
	cl := &Claim{ctx: c, id: id, kind: kind, pins: pins}
	cl.alive.Store(true)

	c.mu.Lock()
	c.live[id] = cl
	c.mu.Unlock()

	c.publishClaim(cl, true)
	return cl, nil
}

func (cl *Claim) ID() uint32        { return uint32(cl.id) }
func (cl *Claim) Kind() string      { return cl.kind }
func (cl *Claim) Pins() []board.Pin { return cl.pins }
func (cl *Claim) Context() *Context { return cl.ctx }
func (cl *Claim) Alive() bool       { return cl.alive.Load() }

// Bind sets the hardware teardown run by Release.
func (cl *Claim) Bind(closer func()) { cl.closer = closer }

// Check returns deinitialized once the claim is released.
func (cl *Claim) Check(op string) error {
	if !cl.alive.Load() {
		return &errcode.E{C: errcode.Deinitialized, Op: op}
	}
	return nil
}

// Release is idempotent.
func (cl *Claim) Release() {
	if !cl.alive.CompareAndSwap(true, false) {
		return
	}
	if cl.closer != nil {
		cl.closer()
	}
	c := cl.ctx
	c.reg.ReleaseOwner(cl.id)
	c.mu.Lock()
	delete(c.live, cl.id)
	if c.disp == cl {
		c.disp = nil
	}
	c.mu.Unlock()
	c.publishClaim(cl, false)
}

func (c *Context) publishClaim(cl *Claim, held bool) {
	if c.conn == nil {
		return
	}
	for _, p := range cl.pins {
		if !p.Valid() {
			continue
		}
		name := c.table.Name(p)
		var payload any
		if held {
			payload = types.ClaimState{Pin: name, Kind: cl.kind, Owner: uint32(cl.id)}
		}
		c.conn.Publish(c.hub.NewMessage(hub.Topic{"claims", name}, payload, true))
	}
}

// Owner describes one live capability for diagnostics.
type Owner struct {
	ID   uint32
	Kind string
	Pins []string
	Held []string
}

// Owners lists live capabilities ordered by id.
func (c *Context) Owners() []Owner {
	held := map[claims.Owner][]string{}
	for _, h := range c.reg.Snapshot() {
		held[h.Owner] = append(held[h.Owner], h.Resource)
	}
	c.mu.Lock()
	out := make([]Owner, 0, len(c.live))
	for id, cl := range c.live {
		o := Owner{ID: uint32(id), Kind: cl.kind, Held: held[id]}
		for _, p := range cl.pins {
			if p.Valid() {
				o.Pins = append(o.Pins, c.table.Name(p))
			}
		}
		out = append(out, o)
	}
	c.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// ReleaseAll releases every live capability, newest first.
func (c *Context) ReleaseAll() {
	c.mu.Lock()
	live := make([]*Claim, 0, len(c.live))
	for _, cl := range c.live {
		live = append(live, cl)
	}
	c.mu.Unlock()
	sort.Slice(live, func(i, j int) bool { return live[i].id > live[j].id })
	for _, cl := range live {
		cl.Release()
	}
	if n := len(live); n > 0 {
		c.log.Debug("released capabilities", "count", n)
	}
}

// Close releases everything and shuts the backend down.
func (c *Context) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()
	c.ReleaseAll()
	if c.conn != nil {
		c.conn.Disconnect()
	}
	return c.be.Close()
}

// pollInterval paces Lock and blocking reads.
const pollInterval = time.Millisecond
