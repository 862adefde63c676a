package intent

// OperationKind selects which intent is built for a submission.
type OperationKind string

const (
	KindSwap     OperationKind = "swap"
	KindDeposit  OperationKind = "deposit"
	KindWithdraw OperationKind = "withdraw"
	KindGift     OperationKind = "gift"
	KindOTCFill  OperationKind = "otc_fill"
)

// NeedsBridgeWait reports whether settlement is followed by a bridge transfer.
func (k OperationKind) NeedsBridgeWait() bool {
	return k == KindWithdraw
}

func (k OperationKind) Valid() bool {
	switch k {
	case KindSwap, KindDeposit, KindWithdraw, KindGift, KindOTCFill:
		return true
	}
	return false
}

// HandleKind tells which identifier a settlement handle carries.
type HandleKind string

const (
	HandleIntentHash     HandleKind = "intent_hash"
	HandleDepositAddress HandleKind = "deposit_address"
	// HandleDepositTx is an origin-chain transaction funding a POA deposit.
	HandleDepositTx      HandleKind = "deposit_tx"
)

// Handle identifies a published operation for status tracking.
type Handle struct {
	Kind  HandleKind
	Value string
}

func (h Handle) String() string { return string(h.Kind) + ":" + h.Value }
