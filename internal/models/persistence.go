package models

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// SaveDir is where session snapshots are written. The CLI overrides it from config.
var SaveDir = ".saves"

// PlanFile is the on-disk description of what a session should work towards.
type PlanFile struct {
	Milestones []string `yaml:"milestones"`
	Goals      []Goal   `yaml:"goals"`
}

// Plan returns the long-term plan part of the file.
func (p *PlanFile) Plan() LongTermPlan {
	return LongTermPlan{Milestones: p.Milestones}
}

// LoadPlanFile reads a YAML plan file.
func LoadPlanFile(path string) (*PlanFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var pf PlanFile
	if err := yaml.Unmarshal(data, &pf); err != nil {
		return nil, fmt.Errorf("failed to parse plan file %s: %w", path, err)
	}
	for i := range pf.Goals {
		if pf.Goals[i].Status == "" {
			pf.Goals[i].Status = GoalPending
		}
	}
	return &pf, nil
}

// MovementRecord is one remembered attempt at a location.
type MovementRecord struct {
	From    Coord   `yaml:"from"`
	Token   Token   `yaml:"token"`
	Outcome Outcome `yaml:"outcome"`
	To      Coord   `yaml:"to"`
	Map     string  `yaml:"map,omitempty"`
}

// Snapshot is the persisted view of a session at some point in time.
type Snapshot struct {
	SessionID string           `yaml:"session_id"`
	Steps     int              `yaml:"steps"`
	Plan      LongTermPlan     `yaml:"plan"`
	Goals     []Goal           `yaml:"goals"`
	Movements []MovementRecord `yaml:"movements"`
	Queue     []Token          `yaml:"queue"`
}

// Save writes the snapshot under SaveDir/name as three YAML files.
func (s *Snapshot) Save(name string) error {
	dir := filepath.Join(SaveDir, name)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	// Save session.yaml
	header := struct {
		SessionID string       `yaml:"session_id"`
		Steps     int          `yaml:"steps"`
		Plan      LongTermPlan `yaml:"plan"`
		Queue     []Token      `yaml:"queue"`
	}{s.SessionID, s.Steps, s.Plan, s.Queue}
	headerData, err := yaml.Marshal(header)
	if err != nil {
		return err
	}
	if err := os.WriteFile(filepath.Join(dir, "session.yaml"), headerData, 0644); err != nil {
		return err
	}

	// Save goals.yaml
	goalsData, err := yaml.Marshal(s.Goals)
	if err != nil {
		return err
	}
	if err := os.WriteFile(filepath.Join(dir, "goals.yaml"), goalsData, 0644); err != nil {
		return err
	}

	// Save movements.yaml
	movementData, err := yaml.Marshal(s.Movements)
	if err != nil {
		return err
	}
	if err := os.WriteFile(filepath.Join(dir, "movements.yaml"), movementData, 0644); err != nil {
		return err
	}

	return nil
}

// LoadSnapshot reads a snapshot previously written by Save.
func LoadSnapshot(name string) (*Snapshot, error) {
	dir := filepath.Join(SaveDir, name)

	headerData, err := os.ReadFile(filepath.Join(dir, "session.yaml"))
	if err != nil {
		return nil, err
	}
	var snap Snapshot
	if err := yaml.Unmarshal(headerData, &snap); err != nil {
		return nil, err
	}

	goalsData, err := os.ReadFile(filepath.Join(dir, "goals.yaml"))
	if err != nil {
		return nil, err
	}
	if err := yaml.Unmarshal(goalsData, &snap.Goals); err != nil {
		return nil, err
	}

	movementData, err := os.ReadFile(filepath.Join(dir, "movements.yaml"))
	if err != nil {
		return nil, err
	}
	if err := yaml.Unmarshal(movementData, &snap.Movements); err != nil {
		return nil, err
	}

	return &snap, nil
}

// ListSnapshots returns the names of saved snapshots.
func ListSnapshots() ([]string, error) {
	if _, err := os.Stat(SaveDir); os.IsNotExist(err) {
		return []string{}, nil
	}

	entries, err := os.ReadDir(SaveDir)
	if err != nil {
		return nil, err
	}

	var names []string
	for _, entry := range entries {
		if entry.IsDir() {
			// session.yaml marks a complete snapshot
			marker := filepath.Join(SaveDir, entry.Name(), "session.yaml")
			if _, err := os.Stat(marker); err == nil {
				names = append(names, entry.Name())
			}
		}
	}
	return names, nil
}
