package service

import (
	"fmt"
	"time"

	"github.com/ayo6706/retail-banking/internal/observability"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	transferSubmitted  = "SUBMITTED"
	transferPinPending = "PIN_PENDING"
	transferVerified   = "VERIFIED"
	transferDebited    = "DEBITED"
	transferRecorded   = "RECORDED"
	transferComplete   = "COMPLETE"
	transferRejected   = "REJECTED"
	transferDeclined   = "DECLINED"
	transferFailed     = "FAILED"
)

var transferTransitions = map[string]map[string]struct{}{
	transferSubmitted: {
		transferPinPending: {},
		transferRejected:   {},
		transferFailed:     {},
	},
	transferPinPending: {
		transferVerified: {},
		transferRejected: {},
		transferDeclined: {},
		transferFailed:   {},
	},
	transferVerified: {
		transferDebited:  {},
		transferRejected: {},
		transferDeclined: {},
		transferFailed:   {},
	},
	transferDebited: {
		transferRecorded: {},
		transferFailed:   {},
	},
	transferRecorded: {
		transferComplete: {},
		transferFailed:   {},
	},
	transferComplete: {},
	transferRejected: {},
	transferDeclined: {},
	transferFailed:   {},
}

func canTransition(current, next string) bool {
	nextStates, ok := transferTransitions[current]
	if !ok {
		return false
	}
	_, ok = nextStates[next]
	return ok
}

// transferFlow tracks one transfer request through its states. It is owned by
// a single request goroutine.
type transferFlow struct {
	accountID uuid.UUID
	state     string
	started   time.Time
}

func newTransferFlow(accountID uuid.UUID) *transferFlow {
	return &transferFlow{accountID: accountID, state: transferSubmitted, started: time.Now()}
}

func (f *transferFlow) advance(next string) error {
	if !canTransition(f.state, next) {
		return fmt.Errorf("invalid transfer state transition: %s -> %s", f.state, next)
	}
	f.state = next
	return nil
}

// fail moves the flow to a terminal state chosen from the error that ended it.
// A flow that already reached a terminal state is left unchanged.
func (f *transferFlow) fail(terminal string) {
	if canTransition(f.state, terminal) {
		f.state = terminal
		return
	}
	if canTransition(f.state, transferFailed) {
		f.state = transferFailed
	}
}

func (f *transferFlow) terminal() bool {
	return len(transferTransitions[f.state]) == 0
}

// finish logs and counts the outcome.
func (f *transferFlow) finish(err error) {
	if !f.terminal() {
		f.fail(transferFailed)
	}
	observability.IncrementTransferOutcome(f.state)

	fields := []zap.Field{
		zap.String("account_id", f.accountID.String()),
		zap.String("state", f.state),
		zap.Duration("duration", time.Since(f.started)),
	}
	switch f.state {
	case transferComplete:
		zap.L().Info("transfer completed", fields...)
	case transferFailed:
		zap.L().Error("transfer failed", append(fields, zap.Error(err))...)
	default:
		zap.L().Info("transfer not completed", append(fields, zap.Error(err))...)
	}
}
