package tracker

import (
	"near-intents/pkg/bridge"
	"near-intents/pkg/client"
	"near-intents/pkg/relay"
)

// State is a settlement tracker state.
type State string

const (
	StatePending          State = "pending"
	StateSubmittingTxHash State = "submitting_tx_hash"
	StateChecking         State = "checking"
	StateWaiting          State = "waiting"
	StatePolling          State = "polling"
	StateSettled          State = "settled"
	StateWaitingForBridge State = "waiting_for_bridge"
	StateSuccess          State = "success"
	StateError            State = "error"
	StateNotValid         State = "not_valid"
)

// Final reports whether no further transition is possible.
func (s State) Final() bool {
	return s == StateSuccess || s == StateNotValid
}

// Class is the tracker's reading of a raw status string.
type Class int

const (
	ClassPending Class = iota
	// ClassBroadcasted means the settlement transaction is in flight.
	ClassBroadcasted
	ClassSettled
	ClassInvalid
)

func (c Class) String() string {
	switch c {
	case ClassBroadcasted:
		return "broadcasted"
	case ClassSettled:
		return "settled"
	case ClassInvalid:
		return "invalid"
	default:
		return "pending"
	}
}

// Classifier maps a source's raw status to a Class. It must be pure.
type Classifier func(status string) Class

// ClassifyIntentStatus reads solver relay statuses.
func ClassifyIntentStatus(status string) Class {
	switch status {
	case relay.StatusSettled:
		return ClassSettled
	case relay.StatusNotFoundOrNotValid:
		return ClassInvalid
	case relay.StatusTxBroadcasted:
		return ClassBroadcasted
	default:
		return ClassPending
	}
}

// ClassifyOneClickStatus reads 1Click execution statuses. FAILED stays
// tracked because 1Click follows it with a refund; REFUNDED is final.
func ClassifyOneClickStatus(status string) Class {
	switch status {
	case client.StatusSuccess:
		return ClassSettled
	case client.StatusRefunded:
		return ClassInvalid
	default:
		// KNOWN_DEPOSIT_TX, PENDING_DEPOSIT, INCOMPLETE_DEPOSIT, PROCESSING, FAILED and unknown values.
		return ClassPending
	}
}

// ClassifyDepositStatus reads POA bridge deposit statuses.
func ClassifyDepositStatus(status string) Class {
	switch status {
	case bridge.StatusCompleted:
		return ClassSettled
	case bridge.StatusFailed:
		return ClassInvalid
	default:
		return ClassPending
	}
}
