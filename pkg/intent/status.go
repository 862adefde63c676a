package intent

// StatusReport is one answer from a settlement status source.
type StatusReport struct {
	Status string
	// TxHash is the settlement transaction on NEAR, when known.
	TxHash string
	// DestinationTxHash is the transfer on the destination chain, when known.
	DestinationTxHash string
}
