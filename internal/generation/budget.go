package generation

import (
	"github.com/myrjola/canonforge/internal/assembler"
	"github.com/myrjola/canonforge/internal/models"
)

// DefaultBudgets sizes the context per generation type. Rules-heavy types reserve more citation tokens than the
// narrative session plans and arcs.
func DefaultBudgets() map[models.GenerationType]assembler.Budget {
	return map[models.GenerationType]assembler.Budget{
		models.GenerationTypeCharacter:     {Total: 6000, MaxCitationTokens: 3000},
		models.GenerationTypeNPC:           {Total: 6000, MaxCitationTokens: 3000},
		models.GenerationTypeLocation:      {Total: 5000, MaxCitationTokens: 2000},
		models.GenerationTypeSessionPlan:   {Total: 8000, MaxCitationTokens: 2000},
		models.GenerationTypeArc:           {Total: 8000, MaxCitationTokens: 1500},
		models.GenerationTypePartyAnalysis: {Total: 6000, MaxCitationTokens: 3500},
	}
}

const fallbackTotal = 8000

// budgetFor returns the budget of the generation type. A positive override replaces the total and scales the
// section caps with it.
func budgetFor(budgets map[models.GenerationType]assembler.Budget, t models.GenerationType, override int) assembler.Budget {
	base, ok := budgets[t]
	if !ok {
		base = assembler.Budget{Total: fallbackTotal}
	}
	if override <= 0 || base.Total == 0 {
		return base
	}
	scale := func(limit int) int {
		return limit * override / base.Total
	}
	return assembler.Budget{
		Total:                 override,
		MaxCitationTokens:     scale(base.MaxCitationTokens),
		MaxConversationTokens: scale(base.MaxConversationTokens),
	}
}
