package emulator

import (
	"fmt"
	"strings"
	"sync"

	"github.com/tatianab/overworld-agent/internal/models"
	"github.com/tatianab/overworld-agent/internal/perception"
)

// Map is one area of a simulated world. Rows use the map-section symbols
// without spaces; N marks an NPC and D or S a warp.
type Map struct {
	Name     string
	Rows     []string
	Warps    map[models.Coord]Warp
	Dialogue map[models.Coord][]string // lines spoken by the NPC at that tile
}

// Warp sends the player to another map.
type Warp struct {
	Map string
	To  models.Coord
}

// World describes a simulated game.
type World struct {
	Maps   []Map
	Start  string
	At     models.Coord
	Facing models.Direction

	// BattleEvery starts a battle on every n-th step into grass. Zero disables battles.
	BattleEvery int
	// BattleTurns is how many A presses a battle lasts.
	BattleTurns int
	// View is how many tiles around the player are rendered.
	View int
}

// Sim is an in-memory Backend rendering the formatted state text.
type Sim struct {
	mu          sync.Mutex
	maps        map[string]*Map
	current     *Map
	pos         models.Coord
	facing      models.Direction
	steps       int
	grassSteps  int
	battleLeft  int
	dialogue    []string
	corrupt     int
	presses     []models.Token
	battleEvery int
	battleTurns int
	view        int
}

func NewSim(w World) (*Sim, error) {
	s := &Sim{
		maps:        make(map[string]*Map),
		pos:         w.At,
		facing:      w.Facing,
		battleEvery: w.BattleEvery,
		battleTurns: w.BattleTurns,
		view:        w.View,
	}
	for i := range w.Maps {
		m := w.Maps[i]
		s.maps[m.Name] = &m
	}
	cur, ok := s.maps[w.Start]
	if !ok {
		return nil, fmt.Errorf("start map %q not found", w.Start)
	}
	s.current = cur
	if t := cur.at(w.At); !t.Traversable() {
		return nil, fmt.Errorf("start %s on %s is %s", w.At, w.Start, t)
	}
	if s.facing == "" {
		s.facing = models.Down
	}
	if s.battleTurns <= 0 {
		s.battleTurns = 2
	}
	if s.view <= 0 {
		s.view = 3
	}
	return s, nil
}

func (m *Map) at(c models.Coord) models.Terrain {
	if c.Y < 0 || c.Y >= len(m.Rows) || c.X < 0 || c.X >= len(m.Rows[c.Y]) {
		return models.TerrainUnknown
	}
	return perception.Classify(string(m.Rows[c.Y][c.X]))
}

// Corrupt makes the next n State calls return unreadable text.
func (s *Sim) Corrupt(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.corrupt = n
}

// Position returns the current map name and player tile.
func (s *Sim) Position() (string, models.Coord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current.Name, s.pos
}

// Presses returns every button received so far.
func (s *Sim) Presses() []models.Token {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.Token(nil), s.presses...)
}

func (s *Sim) Press(token models.Token) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := models.ParseToken(string(token)); !ok {
		return fmt.Errorf("unknown button %q", token)
	}
	s.presses = append(s.presses, token)
	s.steps++

	switch {
	case len(s.dialogue) > 0:
		if token == models.TokenA || token == models.TokenB {
			s.dialogue = s.dialogue[1:]
		}
	case s.battleLeft > 0:
		if token == models.TokenA {
			s.battleLeft--
		}
	case token.IsDirectional():
		d, _ := token.Direction()
		s.walk(d)
	case token == models.TokenA:
		if lines := s.current.Dialogue[s.pos.Step(s.facing)]; len(lines) > 0 {
			s.dialogue = append([]string(nil), lines...)
		}
	}
	return nil
}

func (s *Sim) walk(d models.Direction) {
	s.facing = d
	next := s.pos.Step(d)
	t := s.current.at(next)

	switch {
	case t == models.TerrainLedge && d == models.Down:
		landing := next.Step(d)
		if s.current.at(landing).Traversable() {
			s.pos = landing
		}
		return
	case !t.Traversable():
		return
	}

	if w, ok := s.current.Warps[next]; ok && t.Warp() {
		if m, ok := s.maps[w.Map]; ok {
			s.current = m
			s.pos = w.To
			return
		}
	}
	s.pos = next
	if t == models.TerrainGrass && s.battleEvery > 0 {
		s.grassSteps++
		if s.grassSteps%s.battleEvery == 0 {
			s.battleLeft = s.battleTurns
		}
	}
}

func (s *Sim) State() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.corrupt > 0 {
		s.corrupt--
		return "=== GAME STATE ===\n<signal lost>\n", nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "=== GAME STATE ===\nStep: %d\n", s.steps)
	fmt.Fprintf(&b, "%s %s ---\n", perception.MapMarker, s.current.Name)
	fmt.Fprintf(&b, "Position: (%d, %d)\nFacing: %s\n", s.pos.X, s.pos.Y, s.facing)
	for y := s.pos.Y - s.view; y <= s.pos.Y+s.view; y++ {
		if y < 0 || y >= len(s.current.Rows) {
			continue
		}
		row := make([]string, 0, 2*s.view+1)
		for x := s.pos.X - s.view; x <= s.pos.X+s.view; x++ {
			if x < 0 || x >= len(s.current.Rows[y]) {
				continue
			}
			if (models.Coord{X: x, Y: y}) == s.pos {
				row = append(row, "P")
				continue
			}
			row = append(row, string(s.current.Rows[y][x]))
		}
		b.WriteString(strings.Join(row, " "))
		b.WriteByte('\n')
	}
	b.WriteString("Legend: # wall, . path, D door, S stairs, G grass, L ledge, N npc\n")

	fmt.Fprintf(&b, "%s ---\n", perception.PreviewMarker)
	for _, d := range models.Directions {
		fmt.Fprintf(&b, "%-5s: %s\n", d, s.preview(d))
	}

	if s.battleLeft > 0 {
		fmt.Fprintf(&b, "%s ---\nWild encounter! Turns left: %d\n", perception.BattleMarker, s.battleLeft)
	}
	if len(s.dialogue) > 0 {
		fmt.Fprintf(&b, "%s ---\nText: %s\n", perception.DialogueMarker, s.dialogue[0])
	}
	return b.String(), nil
}

func (s *Sim) preview(d models.Direction) string {
	next := s.pos.Step(d)
	switch t := s.current.at(next); t {
	case models.TerrainDoor, models.TerrainStairs:
		return "WALKABLE (Door/Entrance)"
	case models.TerrainFloor, models.TerrainGrass:
		return "WALKABLE"
	case models.TerrainLedge:
		if d == models.Down {
			return "WALKABLE - Jump ledge (can jump)"
		}
		return "BLOCKED (Ledge)"
	case models.TerrainUnknown:
		return "BLOCKED (Edge)"
	default:
		return fmt.Sprintf("BLOCKED (%s)", strings.ToUpper(string(t[:1]))+string(t[1:]))
	}
}
