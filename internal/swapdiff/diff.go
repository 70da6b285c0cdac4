// Package swapdiff reconstructs token movements from pre/post balance
// snapshots and prices two-leg swaps against a reference asset.
package swapdiff

import "sort"

// BalanceRecord is a single token balance entry of a transaction snapshot.
type BalanceRecord interface {
	// TokenMint returns the asset identifier.
	TokenMint() string
	// UIAmount returns the decimal-scaled amount. ok is false when the
	// amount is absent.
	UIAmount() (amount float64, ok bool)
	// TokenOwner returns the owner identifier ("" when unknown).
	TokenOwner() string
}

// Diff is the balance change of one asset between two snapshots.
type Diff struct {
	Mint       string
	PreAmount  float64
	PostAmount float64
	Delta      float64 // PostAmount - PreAmount
	Owner      string
}

type entry struct {
	amount float64
	owner  string
}

type ownerKey struct {
	mint  string
	owner string
}

// Reconcile diffs pre and post snapshots keyed by mint.
//
// When a snapshot holds several records for the same mint the last one wins,
// so the result is only meaningful when each snapshot carries at most one
// record per mint. Use ReconcileByOwner otherwise. Records without a UI amount
// are skipped and mints missing from either side yield no Diff.
func Reconcile[T BalanceRecord](pre, post []T) []Diff {
	preByMint := indexByMint(pre)
	postByMint := indexByMint(post)

	diffs := make([]Diff, 0, len(preByMint))
	for mint, before := range preByMint {
		after, ok := postByMint[mint]
		if !ok {
			continue
		}
		diffs = append(diffs, Diff{
			Mint:       mint,
			PreAmount:  before.amount,
			PostAmount: after.amount,
			Delta:      after.amount - before.amount,
			Owner:      before.owner,
		})
	}

	sortDiffs(diffs)
	return diffs
}

// ReconcileByOwner diffs pre and post snapshots keyed by (mint, owner), so
// several holders of the same mint each get their own Diff.
func ReconcileByOwner[T BalanceRecord](pre, post []T) []Diff {
	preByKey := indexByOwner(pre)
	postByKey := indexByOwner(post)

	diffs := make([]Diff, 0, len(preByKey))
	for key, before := range preByKey {
		after, ok := postByKey[key]
		if !ok {
			continue
		}
		diffs = append(diffs, Diff{
			Mint:       key.mint,
			PreAmount:  before,
			PostAmount: after,
			Delta:      after - before,
			Owner:      key.owner,
		})
	}

	sortDiffs(diffs)
	return diffs
}

func indexByMint[T BalanceRecord](records []T) map[string]entry {
	m := make(map[string]entry, len(records))
	for _, r := range records {
		amount, ok := r.UIAmount()
		if !ok {
			continue
		}
		m[r.TokenMint()] = entry{amount: amount, owner: r.TokenOwner()}
	}
	return m
}

func indexByOwner[T BalanceRecord](records []T) map[ownerKey]float64 {
	m := make(map[ownerKey]float64, len(records))
	for _, r := range records {
		amount, ok := r.UIAmount()
		if !ok {
			continue
		}
		m[ownerKey{mint: r.TokenMint(), owner: r.TokenOwner()}] = amount
	}
	return m
}

// sortDiffs orders by mint, then owner, for reproducible output.
func sortDiffs(diffs []Diff) {
	sort.Slice(diffs, func(i, j int) bool {
		if diffs[i].Mint != diffs[j].Mint {
			return diffs[i].Mint < diffs[j].Mint
		}
		return diffs[i].Owner < diffs[j].Owner
	})
}

// FilterOwners returns the diffs whose owner satisfies keep.
func FilterOwners(diffs []Diff, keep func(owner string) bool) []Diff {
	var out []Diff
	for _, d := range diffs {
		if keep(d.Owner) {
			out = append(out, d)
		}
	}
	return out
}
