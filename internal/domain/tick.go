package domain

import "time"

// PriceTick is a normalized price update for a single symbol. The feed adapter
// guarantees Price > 0; downstream components may assume it.
type PriceTick struct {
	Symbol string
	Price  float64
	Time   time.Time
}

// TickerSnapshot is a pull-based 24-hour ticker summary, used to seed
// last-known prices before the stream delivers its first tick.
type TickerSnapshot struct {
	Symbol    string
	LastPrice float64
	HighPrice float64
	LowPrice  float64
	Volume    float64
	Time      time.Time
}
