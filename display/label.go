package display

import (
	"image"
	"image/color"
	"strings"
	"sync"

	"tinygo.org/x/tinyfont"
	"tinygo.org/x/tinyfont/proggy"
)

// DefaultFont is used by labels created without a font.
var DefaultFont tinyfont.Fonter = &proggy.TinySZ8pt7b

// Label draws text with its top-left corner at (x, y). Lines split on '\n'.
type Label struct {
	nodeLink
	mu     sync.Mutex
	font   tinyfont.Fonter
	text   string
	fg     color.RGBA
	bg     *color.RGBA
	x, y   int
	hidden bool
}

func NewLabel(font tinyfont.Fonter, text string, fg color.Color) *Label {
	if font == nil {
		font = DefaultFont
	}
	return &Label{font: font, text: text, fg: rgba(fg)}
}

func (l *Label) Text() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.text
}

func (l *Label) SetText(s string) {
	l.mu.Lock()
	same := l.text == s
	l.text = s
	l.mu.Unlock()
	if !same {
		touch()
	}
}

func (l *Label) SetColor(c color.Color) {
	l.mu.Lock()
	l.fg = rgba(c)
	l.mu.Unlock()
	touch()
}

// SetBackground fills the text box behind the glyphs; nil is transparent.
func (l *Label) SetBackground(c color.Color) {
	l.mu.Lock()
	if c == nil {
		l.bg = nil
	} else {
		bg := rgba(c)
		l.bg = &bg
	}
	l.mu.Unlock()
	touch()
}

func (l *Label) SetPosition(x, y int) {
	l.mu.Lock()
	l.x, l.y = x, y
	l.mu.Unlock()
	touch()
}

func (l *Label) SetHidden(h bool) {
	l.mu.Lock()
	l.hidden = h
	l.mu.Unlock()
	touch()
}

func (l *Label) lines() []string { return strings.Split(l.text, "\n") }

func (l *Label) box() image.Rectangle {
	if l.hidden || l.text == "" {
		return image.Rectangle{}
	}
	lines := l.lines()
	w := 0
	for _, s := range lines {
		_, ow := tinyfont.LineWidth(l.font, s)
		if int(ow) > w {
			w = int(ow)
		}
	}
	h := int(l.font.GetYAdvance()) * len(lines)
	return image.Rect(l.x, l.y, l.x+w, l.y+h)
}

func (l *Label) Bounds() image.Rectangle {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.box()
}

func (l *Label) render(dst *image.RGBA, at image.Point) {
	l.mu.Lock()
	defer l.mu.Unlock()
	r := l.box()
	if r.Empty() {
		return
	}
	r = r.Add(at)
	if l.bg != nil {
		bg := *l.bg
		clip := r.Intersect(dst.Bounds())
		for y := clip.Min.Y; y < clip.Max.Y; y++ {
			for x := clip.Min.X; x < clip.Max.X; x++ {
				dst.SetRGBA(x, y, bg)
			}
		}
	}
	adv := int(l.font.GetYAdvance())
	ascent := adv - adv/4
	cv := canvas{dst: dst}
	for i, s := range l.lines() {
		tinyfont.WriteLine(cv, l.font, int16(r.Min.X), int16(r.Min.Y+i*adv+ascent), s, l.fg)
	}
}

// canvas adapts an RGBA image to the drivers.Displayer tinyfont draws on.
type canvas struct{ dst *image.RGBA }

func (c canvas) Size() (x, y int16) {
	b := c.dst.Bounds()
	return int16(b.Max.X), int16(b.Max.Y)
}

func (c canvas) SetPixel(x, y int16, col color.RGBA) {
	col.A = 0xFF
	c.dst.SetRGBA(int(x), int(y), col)
}

func (c canvas) Display() error { return nil }
