package perception

import (
	"strings"

	"github.com/tatianab/overworld-agent/internal/models"
)

// RenderGrid draws the visible tiles of obs using the map section symbols,
// with P at the player's position. Tiles missing from the observation are
// drawn as blanks. It returns "" when no tiles are known.
func RenderGrid(obs models.Observation) string {
	if len(obs.Tiles) == 0 {
		return ""
	}
	minX, minY := obs.Position.X, obs.Position.Y
	maxX, maxY := minX, minY
	for c := range obs.Tiles {
		minX, maxX = min(minX, c.X), max(maxX, c.X)
		minY, maxY = min(minY, c.Y), max(maxY, c.Y)
	}

	var b strings.Builder
	for y := minY; y <= maxY; y++ {
		row := make([]string, 0, maxX-minX+1)
		for x := minX; x <= maxX; x++ {
			c := models.Coord{X: x, Y: y}
			switch t, ok := obs.Tiles[c]; {
			case c == obs.Position:
				row = append(row, "P")
			case !ok:
				row = append(row, " ")
			default:
				row = append(row, Symbol(t))
			}
		}
		b.WriteString(strings.TrimRight(strings.Join(row, " "), " "))
		if y < maxY {
			b.WriteByte('\n')
		}
	}
	return b.String()
}
