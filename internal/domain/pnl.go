package domain

// ComputePnl is the single P&L formula shared by unrealized, realized-full,
// and realized-partial computations. For a partial close, pass the closed
// slice's notional and the matching slice of the entry amount.
//
//	long:  pnl = (price - entry) / entry * notional
//	short: pnl = (entry - price) / entry * notional
//	pnlPercentage = pnl / entryAmount * 100
func ComputePnl(direction Direction, entryPrice, price, notional, entryAmount float64) (pnl, pnlPercentage float64) {
	if entryPrice == 0 || entryAmount == 0 {
		return 0, 0
	}
	if direction == Short {
		pnl = (entryPrice - price) / entryPrice * notional
	} else {
		pnl = (price - entryPrice) / entryPrice * notional
	}
	return pnl, pnl / entryAmount * 100
}
