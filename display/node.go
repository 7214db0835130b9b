package display

import (
	"image"
	"image/draw"
	"sync"
	"sync/atomic"

	xdraw "golang.org/x/image/draw"

	"periphio/errcode"
)

// mutations counts scene changes; displays compare it to skip rendering.
var mutations atomic.Uint64

func touch() { mutations.Add(1) }

// Node is anything a Group can hold: *Group, *TileGrid or *Label.
type Node interface {
	// Bounds reports the node's extent in its parent's coordinates.
	Bounds() image.Rectangle
	render(dst *image.RGBA, at image.Point)
	link() *nodeLink
}

type nodeLink struct {
	lmu    sync.Mutex
	parent *Group
}

func (l *nodeLink) link() *nodeLink { return l }

func (l *nodeLink) Parent() *Group {
	l.lmu.Lock()
	defer l.lmu.Unlock()
	return l.parent
}

// Group positions, scales and orders its children. Later children draw on
// top of earlier ones.
type Group struct {
	nodeLink
	mu       sync.Mutex
	x, y     int
	scale    int
	hidden   bool
	children []Node
}

func NewGroup(x, y, scale int) *Group {
	if scale < 1 {
		scale = 1
	}
	return &Group{x: x, y: y, scale: scale}
}

func (g *Group) Position() (x, y int) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.x, g.y
}

func (g *Group) SetPosition(x, y int) {
	g.mu.Lock()
	g.x, g.y = x, y
	g.mu.Unlock()
	touch()
}

func (g *Group) Scale() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.scale
}

// SetScale fails with out_of_range below 1.
func (g *Group) SetScale(s int) error {
	if s < 1 {
		return &errcode.E{C: errcode.OutOfRange, Op: "group.SetScale", Msg: "scale must be at least 1"}
	}
	g.mu.Lock()
	g.scale = s
	g.mu.Unlock()
	touch()
	return nil
}

func (g *Group) Hidden() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.hidden
}

func (g *Group) SetHidden(h bool) {
	g.mu.Lock()
	g.hidden = h
	g.mu.Unlock()
	touch()
}

func (g *Group) Len() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.children)
}

func (g *Group) At(i int) (Node, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	i, ok := index(i, len(g.children))
	if !ok {
		return nil, &errcode.E{C: errcode.OutOfRange, Op: "group.At"}
	}
	return g.children[i], nil
}

func (g *Group) Append(n Node) error { return g.Insert(g.Len(), n) }

// Insert places n before position i. A node belongs to at most one group
// and a group may not contain itself.
func (g *Group) Insert(i int, n Node) error {
	const op = "group.Insert"
	if n == nil {
		return &errcode.E{C: errcode.InvalidParams, Op: op, Msg: "nil node"}
	}
	if sub, ok := n.(*Group); ok && sub.contains(g) {
		return &errcode.E{C: errcode.InvalidParams, Op: op, Msg: "cycle"}
	}
	l := n.link()
	l.lmu.Lock()
	defer l.lmu.Unlock()
	if l.parent != nil {
		return &errcode.E{C: errcode.InGroup, Op: op, Msg: "node already in a group"}
	}
	g.mu.Lock()
	if i < 0 {
		i += len(g.children) + 1
	}
	if i < 0 || i > len(g.children) {
		g.mu.Unlock()
		return &errcode.E{C: errcode.OutOfRange, Op: op}
	}
	g.children = append(g.children, nil)
	copy(g.children[i+1:], g.children[i:])
	g.children[i] = n
	g.mu.Unlock()
	l.parent = g
	touch()
	return nil
}

// Remove detaches n; not_found if n is not a child.
func (g *Group) Remove(n Node) error {
	g.mu.Lock()
	idx := -1
	for i, c := range g.children {
		if c == n {
			idx = i
			break
		}
	}
	g.mu.Unlock()
	if idx < 0 {
		return &errcode.E{C: errcode.NotFound, Op: "group.Remove"}
	}
	_, err := g.Pop(idx)
	return err
}

// Pop removes and returns the child at i; negative i counts from the end.
func (g *Group) Pop(i int) (Node, error) {
	g.mu.Lock()
	i, ok := index(i, len(g.children))
	if !ok {
		g.mu.Unlock()
		return nil, &errcode.E{C: errcode.OutOfRange, Op: "group.Pop"}
	}
	n := g.children[i]
	g.children = append(g.children[:i], g.children[i+1:]...)
	g.mu.Unlock()
	l := n.link()
	l.lmu.Lock()
	l.parent = nil
	l.lmu.Unlock()
	touch()
	return n, nil
}

func (g *Group) contains(target *Group) bool {
	if g == target {
		return true
	}
	g.mu.Lock()
	kids := append([]Node(nil), g.children...)
	g.mu.Unlock()
	for _, k := range kids {
		if sub, ok := k.(*Group); ok && sub.contains(target) {
			return true
		}
	}
	return false
}

func (g *Group) snapshot() (x, y, scale int, hidden bool, kids []Node) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.x, g.y, g.scale, g.hidden, append([]Node(nil), g.children...)
}

func (g *Group) Bounds() image.Rectangle {
	x, y, s, hidden, kids := g.snapshot()
	if hidden {
		return image.Rectangle{}
	}
	var r image.Rectangle
	for _, k := range kids {
		r = r.Union(k.Bounds())
	}
	if r.Empty() {
		return image.Rectangle{}
	}
	r.Min = r.Min.Mul(s)
	r.Max = r.Max.Mul(s)
	return r.Add(image.Pt(x, y))
}

func (g *Group) render(dst *image.RGBA, at image.Point) {
	x, y, s, hidden, kids := g.snapshot()
	if hidden {
		return
	}
	at = at.Add(image.Pt(x, y))
	if s == 1 {
		for _, k := range kids {
			k.render(dst, at)
		}
		return
	}
	var r image.Rectangle
	for _, k := range kids {
		r = r.Union(k.Bounds())
	}
	if r.Empty() {
		return
	}
	tmp := image.NewRGBA(r)
	for _, k := range kids {
		k.render(tmp, image.Point{})
	}
	out := image.Rectangle{Min: r.Min.Mul(s), Max: r.Max.Mul(s)}.Add(at)
	xdraw.NearestNeighbor.Scale(dst, out, tmp, r, draw.Over, nil)
}

func index(i, n int) (int, bool) {
	if i < 0 {
		i += n
	}
	return i, i >= 0 && i < n
}
