package reminder

import "time"

// IsFutureTrigger reports whether trigger is strictly after now.
func IsFutureTrigger(trigger, now time.Time) bool {
	return trigger.After(now)
}

// sameDay compares calendar days in a's location.
func sameDay(a, b time.Time) bool {
	b = b.In(a.Location())
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}
