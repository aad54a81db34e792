package tournament

import (
	"cmp"
	"math/bits"
	"slices"

	"gamification/internal/db"
)

type RankedItem struct {
	ID        uint   `json:"id"`
	Name      string `json:"name"`
	FileName  string `json:"file_name"`
	SortOrder int    `json:"sort_order"`
	Wins      int    `json:"wins"`
}

// Summary is the computed leaderboard of a game, either global or scoped to a
// single play-through.
type Summary struct {
	GameID     uint         `json:"game_id"`
	ChoiceID   *uint        `json:"choice_id"`
	TotalItems int          `json:"total_items"`
	Round      int          `json:"round"`
	Champion   *RankedItem  `json:"champion"`
	Ranking    []RankedItem `json:"ranking"`
}

// Rank orders items by wins descending, then sort_order ascending, then id
// ascending. Items missing from wins have zero wins.
func Rank(items []db.GameItem, wins map[uint]int) []RankedItem {
	ranked := make([]RankedItem, 0, len(items))
	for _, item := range items {
		ranked = append(ranked, RankedItem{
			ID:        item.ID,
			Name:      item.Name,
			FileName:  item.FileName,
			SortOrder: item.SortOrder,
			Wins:      wins[item.ID],
		})
	}
	slices.SortFunc(ranked, func(a, b RankedItem) int {
		if c := cmp.Compare(b.Wins, a.Wins); c != 0 {
			return c
		}
		if c := cmp.Compare(a.SortOrder, b.SortOrder); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	return ranked
}

// RoundCount is ceil(log2(n)) for n >= 1 and 0 otherwise.
func RoundCount(n int) int {
	if n <= 1 {
		return 0
	}
	return bits.Len(uint(n - 1))
}

func buildSummary(gameID uint, choiceID *uint, items []db.GameItem, wins map[uint]int) *Summary {
	ranking := Rank(items, wins)
	summary := &Summary{
		GameID:     gameID,
		ChoiceID:   choiceID,
		TotalItems: len(ranking),
		Round:      RoundCount(len(ranking)),
		Ranking:    ranking,
	}
	if len(ranking) > 0 {
		champion := ranking[0]
		summary.Champion = &champion
	}
	return summary
}
