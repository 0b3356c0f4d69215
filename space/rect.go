package space

import "math"

// Rect 轴对齐矩形（世界坐标），Min 与 Max 均为闭区间
type Rect struct {
	MinX float64 `json:"minX" msgpack:"x0"`
	MinY float64 `json:"minY" msgpack:"y0"`
	MaxX float64 `json:"maxX" msgpack:"x1"`
	MaxY float64 `json:"maxY" msgpack:"y1"`
}

// NewRect 由两个角点构造矩形（自动规范化顺序）
func NewRect(x0, y0, x1, y1 float64) Rect {
	return Rect{
		MinX: math.Min(x0, x1),
		MinY: math.Min(y0, y1),
		MaxX: math.Max(x0, x1),
		MaxY: math.Max(y0, y1),
	}
}

// Around 以 (cx, cy) 为中心、半宽 hw、半高 hh 的矩形
func Around(cx, cy, hw, hh float64) Rect {
	return Rect{MinX: cx - hw, MinY: cy - hh, MaxX: cx + hw, MaxY: cy + hh}
}

func (r Rect) Width() float64  { return r.MaxX - r.MinX }
func (r Rect) Height() float64 { return r.MaxY - r.MinY }

// Empty 报告矩形是否无效（Min 大于 Max）
func (r Rect) Empty() bool {
	return r.MinX > r.MaxX || r.MinY > r.MaxY
}

// HasNaN 报告是否有坐标为 NaN；这样的矩形不与任何矩形相交
func (r Rect) HasNaN() bool {
	return math.IsNaN(r.MinX) || math.IsNaN(r.MinY) || math.IsNaN(r.MaxX) || math.IsNaN(r.MaxY)
}

// Finite 报告四个坐标是否都是有限值
func (r Rect) Finite() bool {
	for _, v := range [...]float64{r.MinX, r.MinY, r.MaxX, r.MaxY} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

// Intersects 盒-盒相交测试，边界接触也算相交
func (r Rect) Intersects(o Rect) bool {
	if r.Empty() || o.Empty() {
		return false
	}
	return r.MinX <= o.MaxX && o.MinX <= r.MaxX && r.MinY <= o.MaxY && o.MinY <= r.MaxY
}

// Contains 报告点是否在矩形内
func (r Rect) Contains(x, y float64) bool {
	return x >= r.MinX && x <= r.MaxX && y >= r.MinY && y <= r.MaxY
}

// Translate 返回平移后的矩形
func (r Rect) Translate(dx, dy float64) Rect {
	return Rect{MinX: r.MinX + dx, MinY: r.MinY + dy, MaxX: r.MaxX + dx, MaxY: r.MaxY + dy}
}
