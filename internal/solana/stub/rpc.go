package stub

import (
	"context"
	"sync"

	"solana-swap-pricer/internal/solana"
)

// RPCClient implements solana.RPCClient for testing.
type RPCClient struct {
	mu           sync.RWMutex
	Transactions map[string]*solana.Transaction
	Signatures   map[string][]solana.SignatureInfo // newest first, like the node
	Errors       map[string]error                  // forced GetTransaction errors
	Calls        map[string]int                    // GetTransaction calls per signature
	Slot         int64                             // returned by GetSlot
	SlotErr      error
}

// NewRPCClient creates a new stub RPC client.
func NewRPCClient() *RPCClient {
	return &RPCClient{
		Transactions: make(map[string]*solana.Transaction),
		Signatures:   make(map[string][]solana.SignatureInfo),
		Errors:       make(map[string]error),
		Calls:        make(map[string]int),
	}
}

// GetTransaction returns the stored transaction, or nil when unknown.
func (c *RPCClient) GetTransaction(_ context.Context, signature string) (*solana.Transaction, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.Calls[signature]++
	if err, ok := c.Errors[signature]; ok {
		return nil, err
	}
	return c.Transactions[signature], nil
}

// GetSignaturesForAddress pages through stored signatures honoring Before,
// Until and Limit.
func (c *RPCClient) GetSignaturesForAddress(_ context.Context, address string, opts *solana.SignaturesOpts) ([]solana.SignatureInfo, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	sigs := c.Signatures[address]

	if opts != nil && opts.Before != "" {
		start := len(sigs)
		for i, s := range sigs {
			if s.Signature == opts.Before {
				start = i + 1
				break
			}
		}
		sigs = sigs[start:]
	}

	if opts != nil && opts.Until != "" {
		for i, s := range sigs {
			if s.Signature == opts.Until {
				sigs = sigs[:i]
				break
			}
		}
	}

	if opts != nil && opts.Limit > 0 && opts.Limit < len(sigs) {
		sigs = sigs[:opts.Limit]
	}

	out := make([]solana.SignatureInfo, len(sigs))
	copy(out, sigs)
	return out, nil
}

// GetSlot returns Slot, or SlotErr when set.
func (c *RPCClient) GetSlot(_ context.Context) (int64, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.SlotErr != nil {
		return 0, c.SlotErr
	}
	return c.Slot, nil
}

// AddTransaction adds a transaction to the stub store.
func (c *RPCClient) AddTransaction(tx *solana.Transaction) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Transactions[tx.Signature] = tx
}

// AddSignatures sets signatures for an address, newest first.
func (c *RPCClient) AddSignatures(address string, sigs []solana.SignatureInfo) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Signatures[address] = sigs
}

// FailTransaction makes GetTransaction return err for signature.
func (c *RPCClient) FailTransaction(signature string, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Errors[signature] = err
}

// CallCount returns how many times GetTransaction was called for signature.
func (c *RPCClient) CallCount(signature string) int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.Calls[signature]
}

var _ solana.RPCClient = (*RPCClient)(nil)

// Balance builds a token balance entry with a reported UI amount.
func Balance(index int, mint, owner string, uiAmount float64) solana.UITokenBalance {
	o := owner
	return solana.UITokenBalance{
		AccountIndex:  index,
		Mint:          mint,
		Owner:         &o,
		UITokenAmount: solana.UITokenAmount{UIAmount: &uiAmount},
	}
}

// Transaction builds a successful transaction with the given balance snapshots.
func Transaction(signature string, slot, blockTime int64, pre, post []solana.UITokenBalance) *solana.Transaction {
	return &solana.Transaction{
		Slot:      slot,
		Signature: signature,
		BlockTime: blockTime,
		Meta: &solana.TransactionMeta{
			PreTokenBalances:  pre,
			PostTokenBalances: post,
		},
	}
}

// WithSigner sets the fee payer of tx and returns it.
func WithSigner(tx *solana.Transaction, signer string) *solana.Transaction {
	tx.Message = &solana.TransactionMessage{AccountKeys: []string{signer}}
	return tx
}
