package oracle

import (
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// ParseProposal reads a YAML proposal from raw model output. Code fences are
// tolerated, as is a reply consisting of a single button name.
func ParseProposal(text string) (Proposal, error) {
	clean := strings.TrimSpace(text)
	clean = strings.TrimPrefix(clean, "```yaml")
	clean = strings.TrimPrefix(clean, "```yml")
	clean = strings.TrimPrefix(clean, "```")
	clean = strings.TrimSuffix(clean, "```")
	clean = strings.TrimSpace(clean)
	if clean == "" {
		return Proposal{}, fmt.Errorf("%w: empty reply", ErrMalformedResponse)
	}

	if !strings.ContainsAny(clean, ":\n[") {
		return Proposal{Actions: []string{normalize(clean)}}, nil
	}

	var raw struct {
		Actions   []string `yaml:"actions"`
		Action    string   `yaml:"action"`
		Rationale string   `yaml:"rationale"`
	}
	if err := yaml.Unmarshal([]byte(clean), &raw); err != nil {
		return Proposal{}, fmt.Errorf("%w: %v\nOutput was: %s", ErrMalformedResponse, err, clean)
	}
	if raw.Action != "" {
		raw.Actions = append([]string{raw.Action}, raw.Actions...)
	}

	p := Proposal{Rationale: strings.TrimSpace(raw.Rationale)}
	for _, a := range raw.Actions {
		if a = normalize(a); a != "" {
			p.Actions = append(p.Actions, a)
		}
	}
	if len(p.Actions) == 0 {
		return Proposal{}, fmt.Errorf("%w: no actions in reply", ErrMalformedResponse)
	}
	return p, nil
}

func normalize(token string) string {
	return strings.ToUpper(strings.TrimSpace(token))
}
