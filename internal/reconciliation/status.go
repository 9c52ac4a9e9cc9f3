package reconciliation

import (
	"strings"

	"github.com/paylane/settlement/internal/domain"
)

// externalStatuses maps provider vocabulary onto canonical statuses.
var externalStatuses = map[string]domain.OrderStatus{
	"approved":        domain.StatusApproved,
	"paid":            domain.StatusApproved,
	"confirmed":       domain.StatusApproved,
	"authorized":      domain.StatusApproved,
	"refused":         domain.StatusRefused,
	"refunded":        domain.StatusRefunded,
	"chargeback":      domain.StatusChargeback,
	"cancelled":       domain.StatusCancelled,
	"canceled":        domain.StatusCancelled,
	"expired":         domain.StatusExpired,
	"pending":         domain.StatusPending,
	"waiting_payment": domain.StatusPending,
	"processing":      domain.StatusPending,
}

// MapExternalStatus maps a raw provider status, case-insensitively. Unknown
// values map to pending with known=false so the caller can warn.
func MapExternalStatus(raw string) (status domain.OrderStatus, known bool) {
	s, ok := externalStatuses[strings.ToLower(strings.TrimSpace(raw))]
	if !ok {
		return domain.StatusPending, false
	}
	return s, true
}

var priorities = map[domain.OrderStatus]int{
	domain.StatusPending:    1,
	domain.StatusRefused:    2,
	domain.StatusCancelled:  2,
	domain.StatusExpired:    2,
	domain.StatusApproved:   3,
	domain.StatusRefunded:   4,
	domain.StatusChargeback: 5,
}

// Priority ranks canonical statuses for the anti-regression rule.
func Priority(s domain.OrderStatus) int {
	return priorities[s]
}

// reversalPriority is the lowest priority of a post-approval reversal.
const reversalPriority = 4

// ShouldApply reports whether moving from old to next is allowed. Equal
// statuses are no-ops and reversals always apply. Anything else must not
// lower the priority. A refund and a chargeback may replace each other any
// number of times; each flip is audited and re-runs the hooks, which reverse
// a commission only once.
func ShouldApply(old, next domain.OrderStatus) bool {
	if old == next {
		return false
	}
	np := Priority(next)
	if np >= reversalPriority {
		return true
	}
	return np >= Priority(old)
}
