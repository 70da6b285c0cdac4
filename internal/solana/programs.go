package solana

import "strings"

// Known DEX program IDs.
const (
	// RaydiumAMMV4 is the Raydium AMM v4 program ID.
	RaydiumAMMV4 = "675kPX9MHTjS2zt1qfr1NYHuzeLXfQM9H24wFSUt1Mp8"
	// RaydiumCLMM is the Raydium concentrated liquidity program ID.
	RaydiumCLMM = "CAMMCzo5YL8w4VFF8KVHrK22GGUsp5VTaW7grrKgrWqK"
	// PumpFun is the pump.fun program ID.
	PumpFun = "6EF8rrecthR5Dkzon8Nwu78hRvfCKubJ14M5uBEwF6P"
	// OrcaWhirlpool is the Orca Whirlpool program ID.
	OrcaWhirlpool = "whirLbMiicVdio4qvUfM5KAg6Ct8VwpYzGff3uctyCc"
	// JupiterV6 is the Jupiter aggregator v6 program ID.
	JupiterV6 = "JUP6LkbZbjS1jKKwapdHNy74zcZ3tLUZoi5QNyVTaV4"
)

// DEXAliases maps short names to program IDs.
var DEXAliases = map[string]string{
	"raydium":      RaydiumAMMV4,
	"raydium-clmm": RaydiumCLMM,
	"pumpfun":      PumpFun,
	"orca":         OrcaWhirlpool,
	"jupiter":      JupiterV6,
}

// ResolvePrograms merges explicit program IDs with DEX aliases, dropping
// duplicates, unknown aliases and malformed IDs. Order follows the input.
func ResolvePrograms(programs, aliases string) []string {
	seen := make(map[string]bool)
	var out []string

	add := func(id string) {
		if id == "" || seen[id] || !IsValidPubkey(id) {
			return
		}
		seen[id] = true
		out = append(out, id)
	}

	for _, p := range strings.Split(programs, ",") {
		add(strings.TrimSpace(p))
	}
	for _, a := range strings.Split(aliases, ",") {
		add(DEXAliases[strings.ToLower(strings.TrimSpace(a))])
	}
	return out
}
