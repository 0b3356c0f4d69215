package space

import (
	"errors"
	"math"
)

var (
	ErrAlreadyAdded  = errors.New("space: element already belongs to a space")
	ErrNotMember     = errors.New("space: element is not in this space")
	ErrInvalidBounds = errors.New("space: bounds contain NaN")
)

const (
	// 单元坐标的取值范围；超出时截断，保证 float64 到 int64 的转换不溢出
	maxCellCoord = 1 << 52
	// 覆盖单元数超过该值的元素不进网格，放入每次查询都检查的宽元素表
	maxElementCells = 4096
)

// CellKey 标识某一层级上的一个网格单元
type CellKey struct {
	Level int
	X, Y  int64
}

// cellRange 元素在其层级上覆盖的单元范围（闭区间）
type cellRange struct {
	level          int
	x0, y0, x1, y1 int64
	wide           bool
}

func (c cellRange) count() float64 {
	return float64(c.x1-c.x0+1) * float64(c.y1-c.y0+1)
}

func (c cellRange) has(k CellKey) bool {
	return k.X >= c.x0 && k.X <= c.x1 && k.Y >= c.y0 && k.Y <= c.y1
}

// Element 空间索引中的条目：包围盒 + 用户对象
type Element struct {
	bounds Rect
	user   any

	space *HashSpace
	cells cellRange
	gen   uint64
}

// NewElement 创建尚未加入任何空间的元素
func NewElement(bounds Rect, user any) *Element {
	return &Element{bounds: bounds, user: user}
}

func (e *Element) Bounds() Rect    { return e.bounds }
func (e *Element) UserObject() any { return e.user }

// SetBounds 修改包围盒；若已在空间中则同步更新其单元
func (e *Element) SetBounds(b Rect) {
	e.bounds = b
	if e.space != nil {
		e.space.Update(e)
	}
}

// Cells 返回元素当前记录的全部单元
func (e *Element) Cells() []CellKey {
	if e.space == nil || e.cells.wide {
		return nil
	}
	out := make([]CellKey, 0, int(e.cells.count()))
	for x := e.cells.x0; x <= e.cells.x1; x++ {
		for y := e.cells.y0; y <= e.cells.y1; y++ {
			out = append(out, CellKey{Level: e.cells.level, X: x, Y: y})
		}
	}
	return out
}

// HashSpace 多层均匀网格哈希。第 ℓ 层单元边长为 cell·2^ℓ，
// 元素放在边长不小于其最大尺寸的最细层级（上限为最粗层）。
// 非并发安全：只在场景线程访问。
type HashSpace struct {
	cellSize float64
	levels   []map[CellKey][]*Element
	counts   []int
	wide     []*Element
	size     int
	gen      uint64
}

// NewHashSpace 创建网格；cell 为最细层单元边长，levels 为层数
func NewHashSpace(cell float64, levels int) *HashSpace {
	if cell <= 0 {
		cell = 64
	}
	if levels <= 0 {
		levels = 1
	}
	h := &HashSpace{
		cellSize: cell,
		levels:   make([]map[CellKey][]*Element, levels),
		counts:   make([]int, levels),
	}
	for i := range h.levels {
		h.levels[i] = make(map[CellKey][]*Element)
	}
	return h
}

// Size 当前元素数量
func (h *HashSpace) Size() int { return h.size }

// Add 将元素插入其层级上所有重叠的单元
func (h *HashSpace) Add(e *Element) error {
	if e.space != nil {
		return ErrAlreadyAdded
	}
	if e.bounds.HasNaN() {
		return ErrInvalidBounds
	}
	e.space = h
	e.cells = h.rangeFor(e.bounds)
	h.link(e)
	h.size++
	return nil
}

// Update 包围盒变化后调用；层级与单元集合不变时无操作
func (h *HashSpace) Update(e *Element) {
	if e.space != h {
		return
	}
	next := h.rangeFor(e.bounds)
	if next == e.cells {
		return
	}
	h.unlink(e)
	e.cells = next
	h.link(e)
}

// Remove 从所有记录的单元中移除元素；不在本空间时返回 false
func (h *HashSpace) Remove(e *Element) bool {
	if e.space != h {
		return false
	}
	h.unlink(e)
	e.space = nil
	e.cells = cellRange{}
	h.size--
	return true
}

// Query 将包围盒与 rect 相交的元素追加到 out，每次查询内去重
func (h *HashSpace) Query(rect Rect, out []*Element) []*Element {
	if rect.Empty() || rect.HasNaN() || h.size == 0 {
		return out
	}
	h.gen++
	gen := h.gen
	visit := func(list []*Element) {
		for _, e := range list {
			if e.gen == gen {
				continue
			}
			e.gen = gen
			if e.bounds.Intersects(rect) {
				out = append(out, e)
			}
		}
	}
	visit(h.wide)
	for level, cells := range h.levels {
		if h.counts[level] == 0 {
			continue
		}
		qr := h.rangeAt(level, rect)
		// 查询范围比已占用单元还多时直接遍历占用单元
		if qr.count() > float64(len(cells)) {
			for k, list := range cells {
				if qr.has(k) {
					visit(list)
				}
			}
			continue
		}
		for x := qr.x0; x <= qr.x1; x++ {
			for y := qr.y0; y <= qr.y1; y++ {
				visit(cells[CellKey{Level: level, X: x, Y: y}])
			}
		}
	}
	return out
}

// LevelFor 返回包围盒应放入的层级：min(L-1, ceil(log2(extent/cell)))
func (h *HashSpace) LevelFor(b Rect) int {
	extent := math.Max(b.Width(), b.Height())
	if !(extent > h.cellSize) {
		return 0
	}
	top := len(h.levels) - 1
	ratio := math.Log2(extent / h.cellSize)
	if ratio >= float64(top) {
		return top
	}
	return int(math.Ceil(ratio))
}

func (h *HashSpace) rangeFor(b Rect) cellRange {
	if b.HasNaN() {
		return cellRange{wide: true}
	}
	r := h.rangeAt(h.LevelFor(b), b)
	if r.count() > maxElementCells {
		return cellRange{wide: true}
	}
	return r
}

func (h *HashSpace) rangeAt(level int, b Rect) cellRange {
	size := h.cellSize * float64(int64(1)<<uint(level))
	return cellRange{
		level: level,
		x0:    cellCoord(b.MinX, size),
		y0:    cellCoord(b.MinY, size),
		x1:    cellCoord(b.MaxX, size),
		y1:    cellCoord(b.MaxY, size),
	}
}

func cellCoord(v, size float64) int64 {
	c := math.Floor(v / size)
	switch {
	case c > maxCellCoord:
		return maxCellCoord
	case c < -maxCellCoord:
		return -maxCellCoord
	case c != c:
		return 0
	}
	return int64(c)
}

func (h *HashSpace) link(e *Element) {
	if e.cells.wide {
		h.wide = append(h.wide, e)
		return
	}
	cells := h.levels[e.cells.level]
	for x := e.cells.x0; x <= e.cells.x1; x++ {
		for y := e.cells.y0; y <= e.cells.y1; y++ {
			k := CellKey{Level: e.cells.level, X: x, Y: y}
			cells[k] = append(cells[k], e)
		}
	}
	h.counts[e.cells.level]++
}

func (h *HashSpace) unlink(e *Element) {
	if e.cells.wide {
		for i, o := range h.wide {
			if o == e {
				last := len(h.wide) - 1
				h.wide[i] = h.wide[last]
				h.wide[last] = nil
				h.wide = h.wide[:last]
				break
			}
		}
		return
	}
	cells := h.levels[e.cells.level]
	for x := e.cells.x0; x <= e.cells.x1; x++ {
		for y := e.cells.y0; y <= e.cells.y1; y++ {
			k := CellKey{Level: e.cells.level, X: x, Y: y}
			list := cells[k]
			for i, o := range list {
				if o == e {
					last := len(list) - 1
					list[i] = list[last]
					list[last] = nil
					list = list[:last]
					break
				}
			}
			if len(list) == 0 {
				delete(cells, k)
			} else {
				cells[k] = list
			}
		}
	}
	h.counts[e.cells.level]--
}
