package funnel

// Stage is the funnel position of a session.
type Stage string

const (
	StageSelectingDate     Stage = "selecting_date"
	StageAwaitingIntent    Stage = "awaiting_intent"
	StageConfirmingPayment Stage = "confirming_payment"
	StageSucceeded         Stage = "succeeded"
	StageFailed            Stage = "failed"
)

func (s Stage) Valid() bool {
	switch s {
	case StageSelectingDate, StageAwaitingIntent, StageConfirmingPayment, StageSucceeded, StageFailed:
		return true
	}
	return false
}

// Terminal reports whether no further payment can happen from s.
func (s Stage) Terminal() bool {
	return s == StageSucceeded || s == StageFailed
}

// DraftEditable reports whether the user may change the draft in s.
func (s Stage) DraftEditable() bool {
	return s == StageSelectingDate || s == StageConfirmingPayment
}

// CalendarEditable reports whether the month picker accepts navigation in s.
func (s Stage) CalendarEditable() bool {
	return s == StageSelectingDate
}
