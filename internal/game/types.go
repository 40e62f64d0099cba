package game

import "time"

type Account struct {
	UserID      int64      `json:"user_id"`
	Currency    int64      `json:"currency"`
	CareerID    int64      `json:"career_id,omitempty"`
	PositionID  int64      `json:"position_id,omitempty"`
	WorkStarted *time.Time `json:"work_started,omitempty"`
	WorkChannel string     `json:"work_channel,omitempty"`
}

func (a Account) Employed() bool { return a.PositionID != 0 }

func (a Account) Working() bool { return a.WorkStarted != nil }

type Item struct {
	ID      int64  `json:"id"`
	Name    string `json:"name"`
	Value   int64  `json:"value"`
	Demand  int64  `json:"demand"`
	Supply  int64  `json:"supply"`
	Stock   int64  `json:"stock"`
	Buyable bool   `json:"buyable"`
}

// CurrentPrice is the clearing price with no in-flight deltas.
func (it Item) CurrentPrice() int64 {
	return Price(it.Value, it.Demand, it.Supply, 0, 0)
}

type Holding struct {
	Item     Item  `json:"item"`
	Quantity int64 `json:"quantity"`
}

type InventoryLine struct {
	Name           string `json:"name"`
	Quantity       int64  `json:"quantity"`
	EstimatedValue int64  `json:"estimated_value"`
}

type InventoryView struct {
	UserID     int64           `json:"user_id"`
	Lines      []InventoryLine `json:"lines"`
	TotalValue int64           `json:"total_value"`
}

type Listing struct {
	ID    int64  `json:"id"`
	Name  string `json:"name"`
	Price int64  `json:"price"`
	Stock int64  `json:"stock"`
}

type LeaderboardRow struct {
	Rank     int64 `json:"rank"`
	UserID   int64 `json:"user_id"`
	Currency int64 `json:"currency"`
}

// PriceChange is the payload broadcast on the market channel after a
// buy or sell commits.
type PriceChange struct {
	ID     int64  `json:"id"`
	Name   string `json:"name"`
	Value  int64  `json:"value"`
	Demand int64  `json:"demand"`
	Supply int64  `json:"supply"`
	Stock  int64  `json:"stock"`
}

func PriceChangeOf(it Item) PriceChange {
	return PriceChange{
		ID:     it.ID,
		Name:   it.Name,
		Value:  it.Value,
		Demand: it.Demand,
		Supply: it.Supply,
		Stock:  it.Stock,
	}
}

type SellInput struct {
	UserID   int64
	ItemName string
	Quantity int64
	All      bool
}

type SellResult struct {
	Item       Item  `json:"item"`
	Quantity   int64 `json:"quantity"`
	UnitPrice  int64 `json:"unit_price"`
	Proceeds   int64 `json:"proceeds"`
	TaxPercent int64 `json:"tax_percent"`
	Balance    int64 `json:"balance"`
}

type BuyInput struct {
	UserID   int64
	ItemName string
	Quantity int64
}

type BuyResult struct {
	Item       Item  `json:"item"`
	Quantity   int64 `json:"quantity"`
	UnitPrice  int64 `json:"unit_price"`
	Total      int64 `json:"total"`
	TaxPercent int64 `json:"tax_percent"`
	Balance    int64 `json:"balance"`
}

type Career struct {
	ID        int64  `json:"id"`
	Name      string `json:"name"`
	Positions int64  `json:"positions"`
}

type Position struct {
	ID        int64         `json:"id"`
	CareerID  int64         `json:"career_id"`
	Career    string        `json:"career"`
	Name      string        `json:"name"`
	Privilege int64         `json:"privilege"`
	Pay       int64         `json:"pay"`
	Duration  time.Duration `json:"duration"`
}

type WorkSession struct {
	UserID    int64
	Position  Position
	StartedAt time.Time
	// ChannelID is where the shift was started, empty if unknown.
	ChannelID string
}
