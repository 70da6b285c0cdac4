package solana

// SignatureInfo from getSignaturesForAddress.
type SignatureInfo struct {
	Signature string
	Slot      int64
	BlockTime *int64
	Err       interface{}
}

// SignaturesOpts defines optional pagination parameters for getSignaturesForAddress.
type SignaturesOpts struct {
	Before string // Start searching backwards from this signature
	Until  string // Search until this signature
	Limit  int    // Maximum number of signatures to return
}

// UITokenAmount is the amount block of a token balance entry.
type UITokenAmount struct {
	Amount         string   `json:"amount"`   // raw base units
	Decimals       uint8    `json:"decimals"` // mint precision
	UIAmount       *float64 `json:"uiAmount"` // nil when not reported
	UIAmountString string   `json:"uiAmountString,omitempty"`
}

// TokenBalance is the canonical token balance record as stored by
// ledger-side producers. Owner is always present.
type TokenBalance struct {
	AccountIndex  int           `json:"account_index"`
	Mint          string        `json:"mint"`
	Owner         string        `json:"owner"`
	ProgramID     string        `json:"program_id,omitempty"`
	UITokenAmount UITokenAmount `json:"ui_token_amount"`
}

// TokenMint returns the mint address.
func (b TokenBalance) TokenMint() string { return b.Mint }

// UIAmount returns the decimal-scaled amount if reported.
func (b TokenBalance) UIAmount() (float64, bool) { return b.UITokenAmount.ui() }

// TokenOwner returns the owner address.
func (b TokenBalance) TokenOwner() string { return b.Owner }

// UITokenBalance is the token balance record returned by the JSON-RPC API.
// Owner is optional on older transactions.
type UITokenBalance struct {
	AccountIndex  int           `json:"accountIndex"`
	Mint          string        `json:"mint"`
	Owner         *string       `json:"owner,omitempty"`
	ProgramID     *string       `json:"programId,omitempty"`
	UITokenAmount UITokenAmount `json:"uiTokenAmount"`
}

// TokenMint returns the mint address.
func (b UITokenBalance) TokenMint() string { return b.Mint }

// UIAmount returns the decimal-scaled amount if reported.
func (b UITokenBalance) UIAmount() (float64, bool) { return b.UITokenAmount.ui() }

// TokenOwner returns the owner address, or "" when the RPC omitted it.
func (b UITokenBalance) TokenOwner() string {
	if b.Owner == nil {
		return ""
	}
	return *b.Owner
}

func (a UITokenAmount) ui() (float64, bool) {
	if a.UIAmount == nil {
		return 0, false
	}
	return *a.UIAmount, true
}
