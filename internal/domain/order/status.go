package order

import (
	"fmt"
	"strings"
)

// Status is the lifecycle state of an order header or of a single line item.
// Line items use the WAIT_CHECK..DELIVERY_COMPLETED subset.
type Status string

const (
	StatusBeforePaid        Status = "BEFORE_PAID"
	StatusPaid              Status = "PAID"
	StatusWaitCheck         Status = "WAIT_CHECK"
	StatusCheck             Status = "CHECK"
	StatusInDelivery        Status = "IN_DELIVERY"
	StatusDeliveryCompleted Status = "DELIVERY_COMPLETED"
	StatusCancelled         Status = "CANCELLED"
	StatusPurchaseConfirmed Status = "PURCHASE_CONFIRMED"
	StatusReturnRequested   Status = "RETURN_REQUESTED"
	StatusReturnCompleted   Status = "RETURN_COMPLETED"
)

// transitions is the allowed-edge table for the header state machine.
// CANCELLED, PURCHASE_CONFIRMED and RETURN_COMPLETED are sinks.
var transitions = map[Status][]Status{
	StatusBeforePaid:        {StatusPaid, StatusCancelled},
	StatusPaid:              {StatusWaitCheck, StatusCancelled},
	StatusWaitCheck:         {StatusCheck},
	StatusCheck:             {StatusInDelivery},
	StatusInDelivery:        {StatusDeliveryCompleted},
	StatusDeliveryCompleted: {StatusPurchaseConfirmed, StatusReturnRequested},
	StatusReturnRequested:   {StatusReturnCompleted},
}

// InvalidTransitionError reports a transition request outside the allowed
// edge table, identifying both the current and the requested state.
type InvalidTransitionError struct {
	From Status
	To   Status
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid order transition from %s to %s", e.From, e.To)
}

// Transition validates a header status change. Requesting the current status
// again is a no-op, not an error, so duplicate client retries are absorbed.
func Transition(cur, next Status) (Status, error) {
	if cur == next {
		return cur, nil
	}
	for _, allowed := range transitions[cur] {
		if allowed == next {
			return next, nil
		}
	}
	return cur, &InvalidTransitionError{From: cur, To: next}
}

// detailOrder ranks the seller-actionable stages of a line item. Statuses not
// in this map are platform-level and not yet seller-actionable.
var detailOrder = map[Status]int{
	StatusWaitCheck:         0,
	StatusCheck:             1,
	StatusInDelivery:        2,
	StatusDeliveryCompleted: 3,
	StatusPurchaseConfirmed: 4,
}

// Sentinel errors for seller-scoped line item transitions.
var (
	ErrNotYetActionable    = fmt.Errorf("order line is not yet seller-actionable")
	ErrMissingShippingInfo = fmt.Errorf("carrier and tracking number are required before shipping")
)

// AdvanceDetail validates and applies a seller-scoped status change on one
// line item, returning the updated value. The line item moves strictly
// forward through WAIT_CHECK, CHECK, IN_DELIVERY, DELIVERY_COMPLETED; it
// never regresses. Moving to IN_DELIVERY requires carrier and tracking number
// to be recorded already.
func AdvanceDetail(d OrderDetail, next Status) (OrderDetail, error) {
	curRank, ok := detailOrder[d.Status]
	if !ok {
		return d, ErrNotYetActionable
	}
	if d.Status == next {
		return d, nil
	}
	nextRank, ok := detailOrder[next]
	if !ok || nextRank != curRank+1 {
		return d, &InvalidTransitionError{From: d.Status, To: next}
	}
	if next == StatusInDelivery && (d.Carrier == "" || strings.TrimSpace(d.TrackingNumber) == "") {
		return d, ErrMissingShippingInfo
	}
	d.Status = next
	return d, nil
}

// mainChain is the canonical forward path of the header machine, used to
// derive the intermediate steps when the header catches up with its line
// items.
var mainChain = []Status{
	StatusBeforePaid,
	StatusPaid,
	StatusWaitCheck,
	StatusCheck,
	StatusInDelivery,
	StatusDeliveryCompleted,
	StatusPurchaseConfirmed,
}

// StepsTo returns the single-edge steps that move a header from cur to
// target along the canonical chain. It returns an empty slice when target is
// not strictly ahead of cur, and an error when either status lies outside
// the chain.
func StepsTo(cur, target Status) ([]Status, error) {
	ci, ti := -1, -1
	for i, s := range mainChain {
		if s == cur {
			ci = i
		}
		if s == target {
			ti = i
		}
	}
	if ci < 0 || ti < 0 {
		return nil, &InvalidTransitionError{From: cur, To: target}
	}
	if ti <= ci {
		return nil, nil
	}
	return mainChain[ci+1 : ti+1], nil
}

// HeaderStage maps the slowest line item stage to the matching header status.
// The header only reaches a delivery stage once every line item has reached
// at least that stage.
func HeaderStage(details []OrderDetail) (Status, bool) {
	if len(details) == 0 {
		return "", false
	}
	min := StatusPurchaseConfirmed
	for _, d := range details {
		rank, ok := detailOrder[d.Status]
		if !ok {
			return "", false
		}
		if rank < detailOrder[min] {
			min = d.Status
		}
	}
	return min, true
}
