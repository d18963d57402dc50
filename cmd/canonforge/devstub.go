package main

import "github.com/myrjola/canonforge/internal/llm"

// newDevStub answers every built-in template with a fixed entity so that the whole pipeline can be run offline.
// The keys are phrases of the default user prompts.
func newDevStub() *llm.Stub {
	return &llm.Stub{
		Responses: map[string]string{
			"Create a player character": `{"name": "Ilsa Vane", "race": "half-elf", "class": "rogue",
  "background": "Former smuggler turned informant.",
  "stat_block": {"ac": 14, "hp": 18, "str": 10, "dex": 16}}`,
			"non-player character": "```json\n" + `{"npcs": [{"name": "Brother Aldous", "role": "innkeeper",
  "location": "The Drowned Lantern", "personality": "Warm, nosy, keeps a ledger of every rumour.",
  "motivation": "Pay off his debts to the harbour guild.", "stat_block": {"ac": 10, "hp": 9}}]}` + "\n```",
			"Create a location": `{"name": "The Drowned Lantern", "location_type": "tavern",
  "description": "A half-flooded tavern on stilts above the harbour.",
  "lore": "Built from the hull of a wrecked privateer."}`,
			"Plan the next session": `{"title": "Smoke over the Harbour", "summary": "The party traces a fire to the guild.",
  "scenes": [{"name": "The fire"}, {"name": "The guild hall"}]}`,
			"Outline a story arc": `{"title": "The Harbour Guild", "premise": "A guild buys the city one debt at a time.",
  "acts": [{"name": "Debts"}, {"name": "Collectors"}, {"name": "Foreclosure"}]}`,
			"Analyse the party composition": `{"summary": "A stealthy party that lacks healing.",
  "strengths": ["scouting", "social"], "gaps": ["healing", "area damage"]}`,
		},
		Default: `{"name": "Nameless"}`,
	}
}
