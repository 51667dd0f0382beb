package service

import "time"

// Observer receives outcome events from the session and housekeeping
// services. Outcomes are ErrorCode values.
type Observer interface {
	LoginAttempt(outcome string)
	RefreshAttempt(outcome string)
	LogoutAttempt(outcome string)
	Purged(kind string, n int64)
}

type nopObserver struct{}

func (nopObserver) LoginAttempt(string)   {}
func (nopObserver) RefreshAttempt(string) {}
func (nopObserver) LogoutAttempt(string)  {}
func (nopObserver) Purged(string, int64)  {}

func observerOrNop(o Observer) Observer {
	if o == nil {
		return nopObserver{}
	}
	return o
}

func clockNow(now func() time.Time) time.Time {
	if now == nil {
		return time.Now().UTC()
	}
	return now().UTC()
}
