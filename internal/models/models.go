package models

import "fmt"

// Token is a single control input understood by the emulator control surface.
type Token string

const (
	TokenA      Token = "A"
	TokenB      Token = "B"
	TokenStart  Token = "START"
	TokenSelect Token = "SELECT"
	TokenUp     Token = "UP"
	TokenDown   Token = "DOWN"
	TokenLeft   Token = "LEFT"
	TokenRight  Token = "RIGHT"
	TokenL      Token = "L"
	TokenR      Token = "R"
	TokenWait   Token = "WAIT"
)

// Vocabulary is the full, case-sensitive set of tokens the agent may emit.
var Vocabulary = []Token{
	TokenA, TokenB, TokenStart, TokenSelect,
	TokenUp, TokenDown, TokenLeft, TokenRight,
	TokenL, TokenR, TokenWait,
}

// ParseToken returns the Token for s, or false when s is outside the vocabulary.
func ParseToken(s string) (Token, bool) {
	for _, t := range Vocabulary {
		if string(t) == s {
			return t, true
		}
	}
	return "", false
}

// Direction returns the movement direction of a directional token.
func (t Token) Direction() (Direction, bool) {
	switch t {
	case TokenUp:
		return Up, true
	case TokenDown:
		return Down, true
	case TokenLeft:
		return Left, true
	case TokenRight:
		return Right, true
	}
	return "", false
}

// IsDirectional reports whether t moves the player.
func (t Token) IsDirectional() bool {
	_, ok := t.Direction()
	return ok
}

// Direction is one of the four facing/movement directions.
type Direction string

const (
	Up    Direction = "UP"
	Down  Direction = "DOWN"
	Left  Direction = "LEFT"
	Right Direction = "RIGHT"
)

// Directions is the fixed priority order used whenever a direction has to be picked.
var Directions = []Direction{Up, Down, Left, Right}

// ParseDirection accepts the upper-case direction names.
func ParseDirection(s string) (Direction, bool) {
	for _, d := range Directions {
		if string(d) == s {
			return d, true
		}
	}
	return "", false
}

// Token converts d into the control token that moves the player that way.
func (d Direction) Token() Token {
	return Token(d)
}

// Delta is the coordinate offset of one step in direction d. Y grows downwards.
func (d Direction) Delta() (dx, dy int) {
	switch d {
	case Up:
		return 0, -1
	case Down:
		return 0, 1
	case Left:
		return -1, 0
	case Right:
		return 1, 0
	}
	return 0, 0
}

// Coord is a tile coordinate on the current map.
type Coord struct {
	X int `yaml:"x"`
	Y int `yaml:"y"`
}

// Step returns the neighbouring coordinate in direction d.
func (c Coord) Step(d Direction) Coord {
	dx, dy := d.Delta()
	return Coord{X: c.X + dx, Y: c.Y + dy}
}

// Neighbors returns the four adjacent coordinates in priority order.
func (c Coord) Neighbors() []Coord {
	out := make([]Coord, 0, len(Directions))
	for _, d := range Directions {
		out = append(out, c.Step(d))
	}
	return out
}

func (c Coord) String() string {
	return fmt.Sprintf("(%d,%d)", c.X, c.Y)
}

// Terrain classifies a tile of the nearby map.
type Terrain string

const (
	TerrainFloor   Terrain = "floor"
	TerrainWall    Terrain = "wall"
	TerrainDoor    Terrain = "door"
	TerrainStairs  Terrain = "stairs"
	TerrainGrass   Terrain = "grass"
	TerrainWater   Terrain = "water"
	TerrainLedge   Terrain = "ledge"
	TerrainNPC     Terrain = "npc"
	TerrainTree    Terrain = "tree"
	TerrainUnknown Terrain = "unknown"
)

// Traversable reports whether the player can step onto the tile. Ledges are
// one-way and never count.
func (t Terrain) Traversable() bool {
	switch t {
	case TerrainFloor, TerrainDoor, TerrainStairs, TerrainGrass:
		return true
	}
	return false
}

// Warp reports whether stepping onto the tile may move the player to another map.
func (t Terrain) Warp() bool {
	return t == TerrainDoor || t == TerrainStairs
}

// Outcome describes what happened after a dispatched input.
type Outcome string

const (
	OutcomeMoved   Outcome = "moved"
	OutcomeBlocked Outcome = "blocked"
	OutcomeWarped  Outcome = "warped"
	OutcomePressed Outcome = "pressed" // non-directional input, player stayed put
)

// Preview is what the movement-preview section says about one direction.
type Preview struct {
	Walkable bool   `yaml:"walkable"`
	Detail   string `yaml:"detail,omitempty"`
}

// Observation is an immutable snapshot of the game for one step.
type Observation struct {
	MapName      string                `yaml:"map_name"`
	Position     Coord                 `yaml:"position"`
	Facing       Direction             `yaml:"facing"`
	Walkable     []Direction           `yaml:"walkable"`
	Tiles        map[Coord]Terrain     `yaml:"-"`
	Preview      map[Direction]Preview `yaml:"preview,omitempty"`
	InBattle     bool                  `yaml:"in_battle"`
	InDialogue   bool                  `yaml:"in_dialogue"`
	DialogueText string                `yaml:"dialogue_text,omitempty"`
}

// CanWalk reports whether d is in the walkable set.
func (o Observation) CanWalk(d Direction) bool {
	for _, w := range o.Walkable {
		if w == d {
			return true
		}
	}
	return false
}

// FirstWalkable returns the first walkable direction in priority order.
func (o Observation) FirstWalkable() (Direction, bool) {
	for _, d := range Directions {
		if o.CanWalk(d) {
			return d, true
		}
	}
	return "", false
}

// TerrainAt returns the classification of c, or TerrainUnknown when c is not on the visible grid.
func (o Observation) TerrainAt(c Coord) Terrain {
	if t, ok := o.Tiles[c]; ok {
		return t
	}
	return TerrainUnknown
}

// Free reports whether neither battle nor dialogue is in progress.
func (o Observation) Free() bool {
	return !o.InBattle && !o.InDialogue
}

// GoalStatus is the lifecycle state of a Goal.
type GoalStatus string

const (
	GoalPending   GoalStatus = "pending"
	GoalActive    GoalStatus = "active"
	GoalCompleted GoalStatus = "completed"
	GoalFailed    GoalStatus = "failed"
)

// Terminal reports whether no further transition is allowed.
func (s GoalStatus) Terminal() bool {
	return s == GoalCompleted || s == GoalFailed
}

// Target is the place a navigation goal wants the player to reach.
type Target struct {
	X   int    `yaml:"x"`
	Y   int    `yaml:"y"`
	Map string `yaml:"map,omitempty"` // empty matches any map
}

// Goal is one unit of work the agent is pursuing.
type Goal struct {
	ID             string     `yaml:"id"`
	Description    string     `yaml:"description"`
	Status         GoalStatus `yaml:"status"`
	Target         *Target    `yaml:"target,omitempty"`
	CompletionCues []string   `yaml:"completion_cues,omitempty"`
	FailureCues    []string   `yaml:"failure_cues,omitempty"`
	CompleteWhen   string     `yaml:"complete_when,omitempty"` // CEL
	FailWhen       string     `yaml:"fail_when,omitempty"`     // CEL
	MaxSteps       int        `yaml:"max_steps,omitempty"`
	Steps          int        `yaml:"steps,omitempty"`
}

// LongTermPlan is the ordered list of milestones the agent works towards.
type LongTermPlan struct {
	Milestones []string `yaml:"milestones"`
}
