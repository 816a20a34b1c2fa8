// Package trend maps keys to upstream trend feeds and forwards calls to them.
package trend

import "sort"

// Feed is one upstream trend feed: a game type at a round duration.
type Feed struct {
	GameType string `json:"game_type"`
	Duration string `json:"duration"`
	TypeID   int    `json:"type_id"`
}

// Game types.
const (
	WinGo   = "wingo"
	K3      = "k3"
	FiveD   = "5d"
	TRX     = "trx"
	Numeric = "numeric"
)

var catalogue = []Feed{
	{WinGo, "30s", 30},
	{WinGo, "1m", 1},
	{WinGo, "3m", 2},
	{WinGo, "5m", 3},

	{FiveD, "1m", 5},
	{FiveD, "3m", 6},
	{FiveD, "5m", 7},
	{FiveD, "10m", 8},

	{K3, "1m", 9},
	{K3, "3m", 10},
	{K3, "5m", 11},
	{K3, "10m", 12},

	{TRX, "1m", 13},
	{TRX, "3m", 14},
	{TRX, "5m", 15},
	{TRX, "10m", 16},

	{Numeric, "1m", 20},
	{Numeric, "3m", 21},
	{Numeric, "5m", 22},
}

var (
	byPair   = make(map[[2]string]Feed, len(catalogue))
	byTypeID = make(map[int]Feed, len(catalogue))
)

func init() {
	for _, f := range catalogue {
		byPair[[2]string{f.GameType, f.Duration}] = f
		byTypeID[f.TypeID] = f
	}
}

// Lookup resolves a game type and duration to its feed.
func Lookup(gameType, duration string) (Feed, bool) {
	f, ok := byPair[[2]string{gameType, duration}]
	return f, ok
}

// ByTypeID resolves a typeId back to its feed.
func ByTypeID(id int) (Feed, bool) {
	f, ok := byTypeID[id]
	return f, ok
}

// Feeds returns the whole catalogue ordered by typeId.
func Feeds() []Feed {
	out := append([]Feed(nil), catalogue...)
	sort.Slice(out, func(i, j int) bool { return out[i].TypeID < out[j].TypeID })
	return out
}

// GameTypes lists the game types in catalogue order.
func GameTypes() []string {
	return []string{WinGo, K3, FiveD, TRX, Numeric}
}
