package alert

// Counts holds unread alert counts keyed by category, plus All.
type Counts map[Category]int

// UnreadCounts derives per-category unread counts from seq. Every storable
// category is present (possibly zero) and All is their sum.
func UnreadCounts(seq []Alert) Counts {
	counts := Counts{All: 0}
	for _, c := range Categories() {
		counts[c] = 0
	}
	for _, a := range seq {
		if a.Read {
			continue
		}
		counts[a.Type]++
		counts[All]++
	}
	return counts
}

// Visible returns the alerts shown under the active tab, keeping seq order.
// With unreadOnly set, read alerts are dropped.
func Visible(seq []Alert, active Category, unreadOnly bool) []Alert {
	out := make([]Alert, 0, len(seq))
	for _, a := range seq {
		if active != All && a.Type != active {
			continue
		}
		if unreadOnly && a.Read {
			continue
		}
		out = append(out, a)
	}
	return out
}
