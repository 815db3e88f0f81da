package emulator

import "github.com/tatianab/overworld-agent/internal/models"

// DemoWorld is a small starting area: the player's house with a bedroom
// upstairs, the town outside with a grass patch above a ledge, and the lab
// next door.
func DemoWorld() World {
	return World{
		Maps: []Map{
			{
				Name: "Player House",
				Rows: []string{
					"#######",
					"#..S..#",
					"#.....#",
					"#..N..#",
					"#.....#",
					"###D###",
				},
				Warps: map[models.Coord]Warp{
					{X: 3, Y: 1}: {Map: "Bedroom", To: models.Coord{X: 2, Y: 1}},
					{X: 3, Y: 5}: {Map: "Littleroot Town", To: models.Coord{X: 3, Y: 2}},
				},
				Dialogue: map[models.Coord][]string{
					{X: 3, Y: 3}: {"MOM: Did you set the clock? It's upstairs.", "MOM: Then go say hi to PROF. BIRCH next door."},
				},
			},
			{
				Name: "Bedroom",
				Rows: []string{
					"#####",
					"#S..#",
					"#..N#",
					"#####",
				},
				Warps: map[models.Coord]Warp{
					{X: 1, Y: 1}: {Map: "Player House", To: models.Coord{X: 3, Y: 2}},
				},
				Dialogue: map[models.Coord][]string{
					{X: 3, Y: 2}: {"The clock is set!"},
				},
			},
			{
				Name: "Littleroot Town",
				Rows: []string{
					"##########",
					"#.#D##D#.#",
					"#........#",
					"#......N.#",
					"#GGGG....#",
					"#LLLL....#",
					"#........#",
					"##########",
				},
				Warps: map[models.Coord]Warp{
					{X: 3, Y: 1}: {Map: "Player House", To: models.Coord{X: 3, Y: 4}},
					{X: 6, Y: 1}: {Map: "Birch Lab", To: models.Coord{X: 2, Y: 2}},
				},
				Dialogue: map[models.Coord][]string{
					{X: 7, Y: 3}: {"Welcome to Littleroot Town!"},
				},
			},
			{
				Name: "Birch Lab",
				Rows: []string{
					"#####",
					"#.N.#",
					"#...#",
					"##D##",
				},
				Warps: map[models.Coord]Warp{
					{X: 2, Y: 3}: {Map: "Littleroot Town", To: models.Coord{X: 6, Y: 2}},
				},
				Dialogue: map[models.Coord][]string{
					{X: 2, Y: 1}: {"PROF. BIRCH: So you're the new kid!", "PROF. BIRCH: Here, take this POKEMON."},
				},
			},
		},
		Start:       "Player House",
		At:          models.Coord{X: 1, Y: 4},
		Facing:      models.Up,
		BattleEvery: 3,
		BattleTurns: 2,
		View:        4,
	}
}

// DemoPlan is a goal list that can be completed in DemoWorld.
func DemoPlan() models.PlanFile {
	return models.PlanFile{
		Milestones: []string{"Leave the house", "Meet PROF. BIRCH"},
		Goals: []models.Goal{
			{
				ID:          "leave_house",
				Description: "Walk out of the front door at the bottom of the house.",
				Target:      &models.Target{X: 3, Y: 2, Map: "Littleroot Town"},
				MaxSteps:    60,
			},
			{
				ID:             "meet_birch",
				Description:    "Enter the lab to the right of the house and talk to PROF. BIRCH.",
				CompletionCues: []string{"so you're the new kid"},
				MaxSteps:       120,
			},
		},
	}
}
