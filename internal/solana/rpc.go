package solana

import "context"

// RPCClient defines the Solana RPC HTTP interface used for pricing.
type RPCClient interface {
	// GetTransaction retrieves a transaction by signature. Returns nil, nil
	// when the node does not know the transaction.
	GetTransaction(ctx context.Context, signature string) (*Transaction, error)

	// GetSignaturesForAddress retrieves signatures for an address with pagination.
	GetSignaturesForAddress(ctx context.Context, address string, opts *SignaturesOpts) ([]SignatureInfo, error)

	// GetSlot retrieves the current slot.
	GetSlot(ctx context.Context) (int64, error)
}

// Transaction represents a Solana transaction.
type Transaction struct {
	Slot      int64
	Signature string
	BlockTime int64 // Unix timestamp (seconds)
	Meta      *TransactionMeta
	Message   *TransactionMessage
}

// Failed reports whether the transaction was executed with an error.
func (t *Transaction) Failed() bool {
	return t.Meta != nil && t.Meta.Err != nil
}

// FeePayer returns the first account key, or "" if the message is missing.
func (t *Transaction) FeePayer() string {
	if t.Message == nil || len(t.Message.AccountKeys) == 0 {
		return ""
	}
	return t.Message.AccountKeys[0]
}

// TransactionMeta contains transaction metadata.
type TransactionMeta struct {
	Err               interface{}
	PreTokenBalances  []UITokenBalance
	PostTokenBalances []UITokenBalance
}

// TransactionMessage contains parsed transaction message.
type TransactionMessage struct {
	AccountKeys []string
}
