package oracle

import (
	"bytes"
	_ "embed"
	"fmt"
	"strings"
	"text/template"

	"github.com/tatianab/overworld-agent/internal/models"
	"github.com/tatianab/overworld-agent/internal/perception"
)

//go:embed prompts/propose.txt
var proposePrompt string

//go:embed prompts/system.txt
var systemPrompt string

var proposeTemplate = template.Must(template.New("propose").Funcs(template.FuncMap{
	"inc":  func(i int) int { return i + 1 },
	"join": strings.Join,
}).Parse(proposePrompt))

// RenderPrompt builds the user prompt sent to every backend.
func RenderPrompt(req Request) (string, error) {
	walkable := make([]string, 0, len(req.Observation.Walkable))
	for _, d := range req.Observation.Walkable {
		walkable = append(walkable, string(d))
	}
	vocabulary := make([]string, 0, len(models.Vocabulary))
	for _, t := range models.Vocabulary {
		vocabulary = append(vocabulary, string(t))
	}
	maxActions := req.MaxActions
	if maxActions <= 0 {
		maxActions = 1
	}

	data := struct {
		Goal       *models.Goal
		Milestones []string
		Obs        models.Observation
		Walkable   []string
		Grid       string
		Memory     string
		History    []string
		Vocabulary []string
		MaxActions int
	}{
		Goal:       req.Goal,
		Milestones: req.Plan.Milestones,
		Obs:        req.Observation,
		Walkable:   walkable,
		Grid:       perception.RenderGrid(req.Observation),
		Memory:     req.Memory,
		History:    req.History,
		Vocabulary: vocabulary,
		MaxActions: maxActions,
	}

	var buf bytes.Buffer
	if err := proposeTemplate.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("failed to render prompt: %w", err)
	}
	return buf.String(), nil
}
