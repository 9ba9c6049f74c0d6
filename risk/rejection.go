package risk

import "fmt"

// Reason identifies which rule blocked a trade. Rejections are decision
// outcomes, not failures; callers must be able to observe them.
type Reason string

const (
	GlobalCapReached  Reason = "GlobalCapReached"
	PairCapReached    Reason = "PairCapReached"
	DailyLossBreached Reason = "DailyLossBreached"
	DrawdownBreached  Reason = "DrawdownBreached"
	CooldownActive    Reason = "CooldownActive"
	OverRisk          Reason = "OverRisk"
)

// Rejection is the typed error returned by SizePosition when a policy rule
// blocks the trade.
type Rejection struct {
	Reason Reason
	Detail string
}

func (r Rejection) Error() string {
	if r.Detail == "" {
		return string(r.Reason)
	}
	return fmt.Sprintf("%s: %s", r.Reason, r.Detail)
}

// IsRejection reports whether err is a policy rejection and returns it.
func IsRejection(err error) (Rejection, bool) {
	rej, ok := err.(Rejection)
	return rej, ok
}
