package board

import (
	"bytes"
	"fmt"
)

var colorMarks = map[Color]string{
	White: "W",
	Black: "B",
}

// String draws the position as text, top half 12..23 left to right and
// bottom half 11..0, followed by the pending and removed counts.
func (b *Board) String() string {
	var t bytes.Buffer

	row := func(points []int) {
		for i, p := range points {
			if i == QuadrantSize {
				t.WriteString(" |")
			}
			t.WriteString(fmt.Sprintf("%4d", p))
		}
		t.WriteByte('\n')
		for i, p := range points {
			if i == QuadrantSize {
				t.WriteString(" |")
			}
			pt := b.points[p]
			if pt.Count == 0 {
				t.WriteString("   .")
				continue
			}
			t.WriteString(fmt.Sprintf("%4s", fmt.Sprintf("%s%d", colorMarks[pt.Color], pt.Count)))
		}
		t.WriteByte('\n')
	}

	top := make([]int, 0, Width/2)
	for p := Width / 2; p < Width; p++ {
		top = append(top, p)
	}
	bottom := make([]int, 0, Width/2)
	for p := Width/2 - 1; p >= 0; p-- {
		bottom = append(bottom, p)
	}

	row(top)
	row(bottom)
	t.WriteString(fmt.Sprintf("pending W%d B%d  removed W%d B%d\n",
		b.Pending(White), b.Pending(Black), b.Removed(White), b.Removed(Black)))

	return t.String()
}
