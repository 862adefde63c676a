package intent

import (
	"math/big"
	"sort"
)

// TokenDeltas maps asset ids to signed amounts in minimal units. Negative means
// the signer gives, positive means the signer receives. Methods never mutate
// the receiver.
type TokenDeltas map[string]*big.Int

// DeltasFromAmounts builds the two-leg diff for a swap of amountIn of tokenIn into amountOut of tokenOut.
func DeltasFromAmounts(tokenIn string, amountIn *big.Int, tokenOut string, amountOut *big.Int) TokenDeltas {
	d := TokenDeltas{}
	d = d.Add(TokenDeltas{tokenIn: new(big.Int).Neg(amountIn)})
	return d.Add(TokenDeltas{tokenOut: new(big.Int).Set(amountOut)})
}

func (d TokenDeltas) Clone() TokenDeltas {
	out := make(TokenDeltas, len(d))
	for k, v := range d {
		if v == nil {
			continue
		}
		out[k] = new(big.Int).Set(v)
	}
	return out
}

// Add returns the element-wise sum, dropping entries that cancel out.
func (d TokenDeltas) Add(other TokenDeltas) TokenDeltas {
	out := d.Clone()
	for k, v := range other {
		if v == nil {
			continue
		}
		cur, ok := out[k]
		if !ok {
			cur = new(big.Int)
		}
		cur = new(big.Int).Add(cur, v)
		if cur.Sign() == 0 {
			delete(out, k)
			continue
		}
		out[k] = cur
	}
	return out
}

func (d TokenDeltas) Negate() TokenDeltas {
	out := make(TokenDeltas, len(d))
	for k, v := range d {
		if v == nil {
			continue
		}
		out[k] = new(big.Int).Neg(v)
	}
	return out
}

// Get returns the delta for asset, zero when absent.
func (d TokenDeltas) Get(asset string) *big.Int {
	if v, ok := d[asset]; ok && v != nil {
		return new(big.Int).Set(v)
	}
	return new(big.Int)
}

// Sum adds all deltas regardless of asset. A balanced swap between equal-unit
// assets sums to the negated protocol fee.
func (d TokenDeltas) Sum() *big.Int {
	total := new(big.Int)
	for _, v := range d {
		if v != nil {
			total.Add(total, v)
		}
	}
	return total
}

// Diff renders the deltas as decimal strings, the form the intents contract expects.
func (d TokenDeltas) Diff() map[string]string {
	out := make(map[string]string, len(d))
	for k, v := range d {
		if v == nil {
			continue
		}
		out[k] = v.String()
	}
	return out
}

// Assets returns the asset ids in sorted order.
func (d TokenDeltas) Assets() []string {
	keys := make([]string, 0, len(d))
	for k := range d {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
