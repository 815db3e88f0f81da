// Package perception turns the formatted text snapshot produced by the state
// formatter into a typed Observation.
package perception

import (
	"bufio"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/tatianab/overworld-agent/internal/models"
)

// Section markers of the formatted state. The formatter and this table must
// change together.
const (
	MapMarker      = "--- MAP:"
	PreviewMarker  = "--- MOVEMENT PREVIEW"
	BattleMarker   = "--- BATTLE"
	DialogueMarker = "--- DIALOGUE"
)

type sectionKind int

const (
	sectionUnknown sectionKind = iota
	sectionMap
	sectionPreview
	sectionBattle
	sectionDialogue
)

var markers = []struct {
	prefix   string
	kind     sectionKind
	required bool
}{
	{MapMarker, sectionMap, true},
	{PreviewMarker, sectionPreview, true},
	{BattleMarker, sectionBattle, false},
	{DialogueMarker, sectionDialogue, false},
}

type section struct {
	kind   sectionKind
	header string
	lines  []string
}

// Parse reads a formatted state block. Unknown sections are ignored; a missing
// or unreadable required section yields a *MalformedStateError.
func Parse(text string) (models.Observation, error) {
	sections := split(text)

	for _, m := range markers {
		if m.required {
			if _, ok := sections[m.kind]; !ok {
				return models.Observation{}, &MalformedStateError{Marker: m.prefix, Reason: "section missing"}
			}
		}
	}

	obs := models.Observation{Facing: models.Down}
	grid, err := parseMap(sections[sectionMap], &obs)
	if err != nil {
		return models.Observation{}, err
	}
	preview, err := parsePreview(sections[sectionPreview])
	if err != nil {
		return models.Observation{}, err
	}
	obs.Preview = preview

	if _, ok := sections[sectionBattle]; ok {
		obs.InBattle = true
	}
	if s, ok := sections[sectionDialogue]; ok {
		obs.InDialogue = true
		obs.DialogueText = dialogueText(s)
	}

	obs.Walkable = walkable(obs, grid)
	return obs, nil
}

func split(text string) map[sectionKind]*section {
	out := make(map[sectionKind]*section)
	var cur *section

	sc := bufio.NewScanner(strings.NewReader(text))
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		line := strings.TrimRight(sc.Text(), "\r")
		trimmed := strings.TrimSpace(line)
		if isHeader(trimmed) {
			kind := classify(trimmed)
			if kind == sectionUnknown {
				cur = nil
				continue
			}
			cur = &section{kind: kind, header: trimmed}
			// first occurrence wins
			if _, dup := out[kind]; !dup {
				out[kind] = cur
			}
			continue
		}
		if cur != nil && trimmed != "" {
			cur.lines = append(cur.lines, trimmed)
		}
	}
	return out
}

func isHeader(line string) bool {
	return strings.HasPrefix(line, "---") || strings.HasPrefix(line, "===")
}

func classify(header string) sectionKind {
	for _, m := range markers {
		if strings.HasPrefix(header, m.prefix) {
			return m.kind
		}
	}
	return sectionUnknown
}

// tileGrid holds the map rows relative to the player tile.
type tileGrid struct {
	rows   [][]string
	pr, pc int
}

func (g tileGrid) at(dr, dc int) (string, bool) {
	r, c := g.pr+dr, g.pc+dc
	if r < 0 || r >= len(g.rows) || c < 0 || c >= len(g.rows[r]) {
		return "", false
	}
	return g.rows[r][c], true
}

func parseMap(s *section, obs *models.Observation) (tileGrid, error) {
	obs.MapName = mapName(s.header)

	var (
		grid      tileGrid
		havePos   bool
		foundP    bool
		gridEnded bool
	)
	for _, line := range s.lines {
		switch {
		case strings.HasPrefix(line, "Position:"):
			p, err := positionParser.ParseString("", line)
			if err != nil {
				return grid, &MalformedStateError{Marker: MapMarker, Reason: "unreadable position", Err: err}
			}
			obs.Position = models.Coord{X: p.X, Y: p.Y}
			havePos = true
		case strings.HasPrefix(line, "Facing:"):
			f, err := facingParser.ParseString("", line)
			if err != nil {
				return grid, &MalformedStateError{Marker: MapMarker, Reason: "unreadable facing", Err: err}
			}
			obs.Facing = models.Direction(f.Direction)
		case strings.HasPrefix(line, "Legend:"):
			gridEnded = true
		case gridEnded:
			// trailing notes after the legend
		default:
			row := strings.Fields(line)
			if !isTileRow(row) {
				// notes before the grid are skipped, anything else ends it
				gridEnded = len(grid.rows) > 0
				continue
			}
			for c, tok := range row {
				if tok == "P" {
					if foundP {
						return grid, &MalformedStateError{Marker: MapMarker, Reason: "more than one player tile"}
					}
					grid.pr, grid.pc = len(grid.rows), c
					foundP = true
				}
			}
			grid.rows = append(grid.rows, row)
		}
	}
	if !havePos {
		return grid, &MalformedStateError{Marker: MapMarker, Reason: "position line missing"}
	}
	if !foundP {
		return grid, &MalformedStateError{Marker: MapMarker, Reason: "player tile not found"}
	}

	obs.Tiles = make(map[models.Coord]models.Terrain)
	for r, row := range grid.rows {
		for c, tok := range row {
			at := models.Coord{X: obs.Position.X + c - grid.pc, Y: obs.Position.Y + r - grid.pr}
			obs.Tiles[at] = Classify(tok)
		}
	}
	return grid, nil
}

func isTileRow(fields []string) bool {
	for _, f := range fields {
		if utf8.RuneCountInString(f) != 1 {
			return false
		}
	}
	return len(fields) > 0
}

func mapName(header string) string {
	name := strings.TrimPrefix(header, MapMarker)
	name = strings.TrimSpace(name)
	name = strings.TrimSuffix(name, "---")
	return strings.TrimSpace(name)
}

// Classify maps a single map-grid character onto a terrain class.
func Classify(tok string) models.Terrain {
	switch tok {
	case ".", "P":
		return models.TerrainFloor
	case "#":
		return models.TerrainWall
	case "D":
		return models.TerrainDoor
	case "S":
		return models.TerrainStairs
	case "G", "~":
		return models.TerrainGrass
	case "W":
		return models.TerrainWater
	case "L":
		return models.TerrainLedge
	case "N":
		return models.TerrainNPC
	case "T":
		return models.TerrainTree
	}
	return models.TerrainUnknown
}

// Symbol is the inverse of Classify, used by state formatters.
func Symbol(t models.Terrain) string {
	switch t {
	case models.TerrainFloor:
		return "."
	case models.TerrainWall:
		return "#"
	case models.TerrainDoor:
		return "D"
	case models.TerrainStairs:
		return "S"
	case models.TerrainGrass:
		return "G"
	case models.TerrainWater:
		return "W"
	case models.TerrainLedge:
		return "L"
	case models.TerrainNPC:
		return "N"
	case models.TerrainTree:
		return "T"
	}
	return "?"
}

func parsePreview(s *section) (map[models.Direction]models.Preview, error) {
	out := make(map[models.Direction]models.Preview)
	for _, line := range s.lines {
		pl, err := previewParser.ParseString("", line)
		if err != nil {
			return nil, &MalformedStateError{Marker: PreviewMarker, Reason: fmt.Sprintf("unreadable line %q", line), Err: err}
		}
		out[models.Direction(pl.Direction)] = models.Preview{
			Walkable: pl.Status == "WALKABLE",
			Detail:   pl.detail(),
		}
	}
	return out, nil
}

func dialogueText(s *section) string {
	for _, line := range s.lines {
		if strings.HasPrefix(line, "Text:") {
			return strings.TrimSpace(strings.TrimPrefix(line, "Text:"))
		}
	}
	return strings.Join(s.lines, " ")
}

// walkable derives the walkable set from the neighbour tiles, narrowed by what
// the movement preview reports. Ledges never count.
func walkable(obs models.Observation, grid tileGrid) []models.Direction {
	var out []models.Direction
	for _, d := range models.Directions {
		dx, dy := d.Delta()
		tok, ok := grid.at(dy, dx)
		if !ok || !Classify(tok).Traversable() {
			continue
		}
		if p, ok := obs.Preview[d]; ok {
			if !p.Walkable || strings.Contains(strings.ToLower(p.Detail), "ledge") {
				continue
			}
		}
		out = append(out, d)
	}
	return out
}
