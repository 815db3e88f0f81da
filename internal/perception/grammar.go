package perception

import (
	"strings"

	"github.com/alecthomas/participle/v2"
	"github.com/alecthomas/participle/v2/lexer"
)

// lineLexer tokenises the individual lines inside map and preview sections.
var lineLexer = lexer.MustSimple([]lexer.SimpleRule{
	{Name: "Direction", Pattern: `\b(?:UP|DOWN|LEFT|RIGHT)\b`},
	{Name: "Status", Pattern: `\b(?:WALKABLE|BLOCKED)\b`},
	{Name: "Int", Pattern: `-?[0-9]+`},
	{Name: "Punct", Pattern: `[:(),/.'!\-]`},
	{Name: "Word", Pattern: `[^\s:(),/.'!\-]+`},
	{Name: "Whitespace", Pattern: `[ \t]+`},
})

// previewLine is one direction of the movement preview: "UP : WALKABLE (Normal path)".
type previewLine struct {
	Direction string   `parser:"@Direction \":\""`
	Status    string   `parser:"@Status"`
	Detail    []string `parser:"( @Word | @Punct | @Int | @Direction | @Status )*"`
}

// positionLine is "Position: (x, y)".
type positionLine struct {
	X int `parser:"\"Position\" \":\" \"(\" @Int \",\""`
	Y int `parser:"@Int \")\""`
}

// facingLine is "Facing: DOWN".
type facingLine struct {
	Direction string `parser:"\"Facing\" \":\" @Direction"`
}

var (
	previewParser  = build[previewLine]()
	positionParser = build[positionLine]()
	facingParser   = build[facingLine]()
)

func build[T any]() *participle.Parser[T] {
	return participle.MustBuild[T](
		participle.Lexer(lineLexer),
		participle.Elide("Whitespace"),
	)
}

// detail joins the free-form tail of a preview line back into readable text.
func (p *previewLine) detail() string {
	return strings.Join(p.Detail, " ")
}
