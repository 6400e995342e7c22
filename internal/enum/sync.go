package enum

// SyncOutcome is the recorded result of the most recent sync cycle for an
// account.
type SyncOutcome string

const (
	SyncOutcomeSuccess SyncOutcome = "success"
	SyncOutcomePartial SyncOutcome = "partial"
	SyncOutcomeFailed  SyncOutcome = "failed"
)

func (s SyncOutcome) String() string {
	return string(s)
}
