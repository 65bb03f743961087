package engine

import (
	"sync/atomic"

	"github.com/0xtitan6/hft-marketmaker/pkg/fixedpoint"
)

// ErrorKind is the taxonomy every engine-surfaced error is tagged with.
// RISK and ORDER_REJECT feed the kill-switch thresholds (via
// risk.Manager.RecordError/RecordReject); INTERNAL is fatal and forces
// shutdown. BOOK_INCONSISTENCY is counted and logged like the other kinds;
// no resync request is sent to the adapter.
type ErrorKind int

const (
	KindConfig ErrorKind = iota
	KindConnection
	KindProtocol
	KindRisk
	KindOrderReject
	KindBookInconsistency
	KindInternal
	numErrorKinds
)

func (k ErrorKind) String() string {
	switch k {
	case KindConfig:
		return "CONFIG"
	case KindConnection:
		return "CONNECTION"
	case KindProtocol:
		return "PROTOCOL"
	case KindRisk:
		return "RISK"
	case KindOrderReject:
		return "ORDER_REJECT"
	case KindBookInconsistency:
		return "BOOK_INCONSISTENCY"
	case KindInternal:
		return "INTERNAL"
	default:
		return "UNKNOWN"
	}
}

// ErrorEvent is what a worker pushes onto the control queue instead of
// returning an error across a goroutine boundary — the hot path never
// throws across worker boundaries.
type ErrorEvent struct {
	Kind    ErrorKind
	Message string
	Time    fixedpoint.Timestamp
}

// ErrorCounters is a per-kind atomic running total of recorded error
// events. The kill-switch thresholds are counted separately by
// risk.Manager, and /metrics exports its own errors_total counter by kind.
type ErrorCounters struct {
	counts [numErrorKinds]atomic.Int64
}

func (c *ErrorCounters) Record(kind ErrorKind) int64 {
	return c.counts[kind].Add(1)
}

func (c *ErrorCounters) Count(kind ErrorKind) int64 {
	return c.counts[kind].Load()
}
