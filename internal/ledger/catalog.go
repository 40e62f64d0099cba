package ledger

import (
	"time"

	"growtube/internal/game"
)

// Catalog is the static reference data a fresh store starts with. It mirrors
// the seed rows in internal/db/schema.sql.
type Catalog struct {
	Items     []game.Item
	Careers   []game.Career
	Positions []game.Position
}

// CollectableItemIDs and CollectWeights drive the collect command.
var (
	CollectableItemIDs = []int64{1, 2, 3, 4, 5, 6}
	CollectWeights     = []int{50, 45, 30, 50, 15, 15}
)

func DefaultCatalog() Catalog {
	return Catalog{
		Items: []game.Item{
			{ID: 1, Name: "Dirt", Value: 10, Demand: 1, Supply: 1, Stock: 100, Buyable: true},
			{ID: 2, Name: "Rock", Value: 12, Demand: 1, Supply: 1, Stock: 100, Buyable: true},
			{ID: 3, Name: "Cave Background", Value: 20, Demand: 1, Supply: 1, Stock: 100, Buyable: true},
			{ID: 4, Name: "Dirt Seed", Value: 8, Demand: 1, Supply: 1, Stock: 100, Buyable: true},
			{ID: 5, Name: "Lava", Value: 45, Demand: 1, Supply: 1, Stock: 50, Buyable: true},
			{ID: 6, Name: "Wooden Sign", Value: 40, Demand: 1, Supply: 1, Stock: 50, Buyable: true},
			{ID: 7, Name: "World Lock", Value: 2_000, Demand: 1, Supply: 1, Stock: 25, Buyable: true},
			{ID: 8, Name: "Diamond Lock", Value: 200_000, Demand: 1, Supply: 1, Stock: 5, Buyable: true},
			{ID: 9, Name: "Legendary Wings", Value: 1_000_000, Demand: 1, Supply: 1, Stock: 0, Buyable: false},
		},
		Careers: []game.Career{
			{ID: 1, Name: "Farmer"},
			{ID: 2, Name: "Builder"},
			{ID: 3, Name: "Trader"},
		},
		Positions: []game.Position{
			{ID: 1, CareerID: 1, Name: "Harvester", Privilege: 3, Pay: 150, Duration: 10 * time.Minute},
			{ID: 2, CareerID: 1, Name: "Foreman", Privilege: 2, Pay: 400, Duration: 20 * time.Minute},
			{ID: 3, CareerID: 1, Name: "Landowner", Privilege: 1, Pay: 1_000, Duration: 30 * time.Minute},
			{ID: 4, CareerID: 2, Name: "Apprentice", Privilege: 3, Pay: 200, Duration: 15 * time.Minute},
			{ID: 5, CareerID: 2, Name: "Architect", Privilege: 1, Pay: 900, Duration: 30 * time.Minute},
			{ID: 6, CareerID: 3, Name: "Peddler", Privilege: 3, Pay: 250, Duration: 20 * time.Minute},
			{ID: 7, CareerID: 3, Name: "Broker", Privilege: 2, Pay: 600, Duration: 30 * time.Minute},
		},
	}
}
