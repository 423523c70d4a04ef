package util

import "time"

// TradingDay formats t as the YYYY-MM-DD bucket used in risk keys and
// day-scoped state.
func TradingDay(t time.Time) string {
	return t.Format("2006-01-02")
}

// NextWeeklyExpiry returns the next Thursday (today included when today is
// Thursday) formatted YYYY-MM-DD, the weekly index option expiry.
func NextWeeklyExpiry(t time.Time) string {
	days := (int(time.Thursday) - int(t.Weekday()) + 7) % 7
	return TradingDay(t.AddDate(0, 0, days))
}
