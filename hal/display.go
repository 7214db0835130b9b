package hal

import (
	"periphio/display"
	"periphio/errcode"
)

// Display returns the board's built-in panel as a scene display. Only one
// holder may exist; closing the display releases it.
func (c *Context) Display(cfg display.Config) (*display.Display, error) {
	const op = "display"
	geom := c.table.Descriptor().Display
	if geom == nil {
		return nil, &errcode.E{C: errcode.Unsupported, Op: op, Msg: "board has no display"}
	}
	c.mu.Lock()
	busy := c.disp != nil
	c.mu.Unlock()
	if busy {
		return nil, &errcode.E{C: errcode.DisplayInUse, Op: op}
	}
	cl, err := c.Claim(op)
	if err != nil {
		return nil, err
	}
	c.mu.Lock()
	if c.disp != nil {
		c.mu.Unlock()
		cl.Release()
		return nil, &errcode.E{C: errcode.DisplayInUse, Op: op}
	}
	c.disp = cl
	c.mu.Unlock()

	target, err := c.be.Display()
	if err != nil {
		cl.Release()
		return nil, errcode.Wrap(errcode.Of(err), op, err)
	}
	if cfg.Rotation == 0 {
		cfg.Rotation = geom.Rotation
	}
	if cfg.Logger == nil {
		cfg.Logger = c.log.WithPrefix("display")
	}
	user := cfg.OnClose
	cfg.OnClose = func() {
		cl.Release()
		if user != nil {
			user()
		}
	}
	d, err := display.New(target, cfg)
	if err != nil {
		cl.Release()
		return nil, err
	}
	cl.Bind(d.Close)
	return d, nil
}
