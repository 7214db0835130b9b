package display

import (
	"image"
	"sync"

	"periphio/errcode"
)

// TileGridConfig describes how a bitmap is cut into tiles. Zero tile
// sizes take the whole bitmap; zero grid sizes mean one cell.
type TileGridConfig struct {
	TileWidth, TileHeight int
	Width, Height         int
	DefaultTile           uint16
	X, Y                  int
}

// TileGrid draws cells, each showing one tile of a shared bitmap.
type TileGrid struct {
	nodeLink
	bm     *Bitmap
	shader Shader
	tw, th int
	gw, gh int
	ntiles int

	mu           sync.Mutex
	x, y         int
	hidden       bool
	flipX, flipY bool
	cells        []uint16
}

func NewTileGrid(bm *Bitmap, shader Shader, cfg TileGridConfig) (*TileGrid, error) {
	const op = "tilegrid"
	if bm == nil || shader == nil {
		return nil, &errcode.E{C: errcode.InvalidParams, Op: op, Msg: "bitmap and shader required"}
	}
	if cfg.TileWidth == 0 {
		cfg.TileWidth = bm.Width()
	}
	if cfg.TileHeight == 0 {
		cfg.TileHeight = bm.Height()
	}
	if cfg.Width == 0 {
		cfg.Width = 1
	}
	if cfg.Height == 0 {
		cfg.Height = 1
	}
	if cfg.TileWidth < 0 || cfg.TileHeight < 0 || cfg.Width < 0 || cfg.Height < 0 ||
		bm.Width()%cfg.TileWidth != 0 || bm.Height()%cfg.TileHeight != 0 {
		return nil, &errcode.E{C: errcode.InvalidParams, Op: op, Msg: "tile size must divide the bitmap"}
	}
	n := (bm.Width() / cfg.TileWidth) * (bm.Height() / cfg.TileHeight)
	if int(cfg.DefaultTile) >= n {
		return nil, &errcode.E{C: errcode.OutOfRange, Op: op, Msg: "default tile"}
	}
	t := &TileGrid{
		bm:     bm,
		shader: shader,
		tw:     cfg.TileWidth,
		th:     cfg.TileHeight,
		gw:     cfg.Width,
		gh:     cfg.Height,
		ntiles: n,
		x:      cfg.X,
		y:      cfg.Y,
		cells:  make([]uint16, cfg.Width*cfg.Height),
	}
	for i := range t.cells {
		t.cells[i] = cfg.DefaultTile
	}
	return t, nil
}

func (t *TileGrid) Tiles() int { return t.ntiles }

func (t *TileGrid) SetTile(cx, cy int, tile uint16) error {
	const op = "tilegrid.SetTile"
	if cx < 0 || cy < 0 || cx >= t.gw || cy >= t.gh {
		return &errcode.E{C: errcode.OutOfRange, Op: op, Msg: "cell"}
	}
	if int(tile) >= t.ntiles {
		return &errcode.E{C: errcode.OutOfRange, Op: op, Msg: "tile index"}
	}
	t.mu.Lock()
	t.cells[cy*t.gw+cx] = tile
	t.mu.Unlock()
	touch()
	return nil
}

func (t *TileGrid) Tile(cx, cy int) (uint16, error) {
	if cx < 0 || cy < 0 || cx >= t.gw || cy >= t.gh {
		return 0, &errcode.E{C: errcode.OutOfRange, Op: "tilegrid.Tile"}
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.cells[cy*t.gw+cx], nil
}

func (t *TileGrid) SetPosition(x, y int) {
	t.mu.Lock()
	t.x, t.y = x, y
	t.mu.Unlock()
	touch()
}

func (t *TileGrid) Position() (x, y int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.x, t.y
}

func (t *TileGrid) SetHidden(h bool) {
	t.mu.Lock()
	t.hidden = h
	t.mu.Unlock()
	touch()
}

// SetFlip mirrors every tile.
func (t *TileGrid) SetFlip(x, y bool) {
	t.mu.Lock()
	t.flipX, t.flipY = x, y
	t.mu.Unlock()
	touch()
}

func (t *TileGrid) Bounds() image.Rectangle {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.hidden {
		return image.Rectangle{}
	}
	return image.Rect(t.x, t.y, t.x+t.gw*t.tw, t.y+t.gh*t.th)
}

func (t *TileGrid) render(dst *image.RGBA, at image.Point) {
	t.mu.Lock()
	if t.hidden {
		t.mu.Unlock()
		return
	}
	x0, y0 := at.X+t.x, at.Y+t.y
	fx, fy := t.flipX, t.flipY
	cells := append([]uint16(nil), t.cells...)
	t.mu.Unlock()

	clip := dst.Bounds()
	perRow := t.bm.Width() / t.tw
	t.bm.mu.Lock()
	defer t.bm.mu.Unlock()
	for cy := 0; cy < t.gh; cy++ {
		for cx := 0; cx < t.gw; cx++ {
			tile := int(cells[cy*t.gw+cx])
			bx, by := (tile%perRow)*t.tw, (tile/perRow)*t.th
			for py := 0; py < t.th; py++ {
				sy := py
				if fy {
					sy = t.th - 1 - py
				}
				dy := y0 + cy*t.th + py
				for px := 0; px < t.tw; px++ {
					dx := x0 + cx*t.tw + px
					if !image.Pt(dx, dy).In(clip) {
						continue
					}
					sx := px
					if fx {
						sx = t.tw - 1 - px
					}
					if c, ok := t.shader.Color(t.bm.at(bx+sx, by+sy)); ok {
						dst.SetRGBA(dx, dy, c)
					}
				}
			}
		}
	}
}
