// Package weighted implements the weighted-pool (Balancer-V1-family)
// variant: n tokens with denormalized weights and a single swap fee, using
// the standard weighted-product output formula.
//
// Per the design notes this is the weakest-specified sync surface of the
// four variants: Balancer V1's LOG_SWAP event only covers swaps, not
// joins/exits, so a pool whose balance changes only via join/exit calls
// will silently drift from chain state between periodic resyncs. Callers
// that need strict correctness should treat NeedsPeriodicResync as a
// signal to re-poll via the state reader on a timer rather than relying
// purely on events.
package weighted

import (
	"math"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/defistate/statespace/errs"
	"github.com/defistate/statespace/pool"
)

var (
	// LOG_SWAP(address,address,address,uint256,uint256) — tokenIn,
	// tokenOut indexed; tokenAmountIn, tokenAmountOut in data.
	LogSwapEventSignature = crypto.Keccak256Hash([]byte("LOG_SWAP(address,address,address,uint256,uint256)"))
	// LOG_CALL(bytes4,address,bytes) — used for reweight/fee-change admin
	// calls; only the selector in topics[1] distinguishes which.
	LogCallEventSignature = crypto.Keccak256Hash([]byte("LOG_CALL(bytes4,address,bytes)"))
)

const feeDenominator = 1e18 // Balancer fees are expressed as an 18-decimal fraction of 1.

// Pool is the weighted-pool variant. Tokens, balances, and weights are
// parallel slices in a fixed order established at discovery.
type Pool struct {
	address common.Address

	tokens   []common.Address
	decimals []uint8
	balances []*big.Int
	weights  []*big.Int // denormalized, i.e. sum need not be 1
	feeWad   *big.Int   // swap fee as an 18-decimal fraction of 1
}

// New constructs a pool shell. Per spec §3, balances.len() == weights.len()
// == tokens.len() >= 2 is required; New panics if violated, the same
// programmer-error philosophy tokenpoolregistry.AddPools uses for
// mismatched slice lengths.
func New(address common.Address, tokens []common.Address, decimals []uint8, weights []*big.Int, feeWad *big.Int) *Pool {
	if len(tokens) < 2 || len(tokens) != len(weights) || len(tokens) != len(decimals) {
		panic("weighted.New: tokens, decimals, and weights must have equal length >= 2")
	}
	balances := make([]*big.Int, len(tokens))
	for i := range balances {
		balances[i] = new(big.Int)
	}
	w := make([]*big.Int, len(weights))
	for i, x := range weights {
		w[i] = new(big.Int).Set(x)
	}
	return &Pool{
		address:  address,
		tokens:   append([]common.Address(nil), tokens...),
		decimals: append([]uint8(nil), decimals...),
		balances: balances,
		weights:  w,
		feeWad:   new(big.Int).Set(feeWad),
	}
}

// Seed installs the dynamic balances produced by the state reader.
func (p *Pool) Seed(balances []*big.Int) {
	for i, b := range balances {
		if i >= len(p.balances) {
			break
		}
		p.balances[i] = new(big.Int).Set(b)
	}
}

func (p *Pool) Address() common.Address  { return p.address }
func (p *Pool) Kind() pool.Kind          { return pool.KindWeighted }
func (p *Pool) Tokens() []common.Address { return append([]common.Address(nil), p.tokens...) }
func (p *Pool) SyncEvents() []common.Hash {
	return []common.Hash{LogSwapEventSignature, LogCallEventSignature}
}

// NeedsPeriodicResync reports whether this pool's balances can drift from
// chain state through calls that LOG_SWAP does not cover (joins, exits).
// It is always true for this variant; see the package doc.
func (p *Pool) NeedsPeriodicResync() bool { return true }

func (p *Pool) Clone() pool.AMM {
	balances := make([]*big.Int, len(p.balances))
	for i, b := range p.balances {
		balances[i] = new(big.Int).Set(b)
	}
	weights := make([]*big.Int, len(p.weights))
	for i, w := range p.weights {
		weights[i] = new(big.Int).Set(w)
	}
	return &Pool{
		address:  p.address,
		tokens:   append([]common.Address(nil), p.tokens...),
		decimals: append([]uint8(nil), p.decimals...),
		balances: balances,
		weights:  weights,
		feeWad:   new(big.Int).Set(p.feeWad),
	}
}

func (p *Pool) indexOf(addr common.Address) int {
	for i, t := range p.tokens {
		if t == addr {
			return i
		}
	}
	return -1
}

// Sync applies a LOG_SWAP event to the balances, or ignores a LOG_CALL
// event: its selector and calldata are not decoded, so reweights and fee
// changes are not applied and weights and fee keep the values the pool was
// built with (see NeedsPeriodicResync).
func (p *Pool) Sync(log *types.Log) error {
	if len(log.Topics) == 0 {
		return errs.ErrLogMismatch
	}
	switch log.Topics[0] {
	case LogSwapEventSignature:
		return p.syncLogSwap(log)
	case LogCallEventSignature:
		return nil
	default:
		return &errs.LogMismatchError{Pool: p.address, Topic0: log.Topics[0]}
	}
}

func (p *Pool) syncLogSwap(log *types.Log) error {
	if len(log.Topics) < 3 || len(log.Data) < 64 {
		return errs.ErrInvalidInput
	}
	tokenIn := common.BytesToAddress(log.Topics[1].Bytes())
	tokenOut := common.BytesToAddress(log.Topics[2].Bytes())
	amountIn := new(big.Int).SetBytes(log.Data[0:32])
	amountOut := new(big.Int).SetBytes(log.Data[32:64])

	in := p.indexOf(tokenIn)
	out := p.indexOf(tokenOut)
	if in < 0 || out < 0 {
		return &errs.LogMismatchError{Pool: p.address, Topic0: log.Topics[0]}
	}
	p.balances[in].Add(p.balances[in], amountIn)
	p.balances[out].Sub(p.balances[out], amountOut)
	return nil
}

func (p *Pool) Price(base, quote common.Address) (float64, error) {
	in, out := p.indexOf(base), p.indexOf(quote)
	if in < 0 || out < 0 {
		return 0, errs.ErrInvalidInput
	}
	bIn, _ := new(big.Float).SetInt(p.balances[in]).Float64()
	bOut, _ := new(big.Float).SetInt(p.balances[out]).Float64()
	wIn, _ := new(big.Float).SetInt(p.weights[in]).Float64()
	wOut, _ := new(big.Float).SetInt(p.weights[out]).Float64()
	if bIn == 0 || wOut == 0 {
		return 0, errs.ErrInvalidInput
	}
	// quote tokens per base token, standard weighted-pool spot price,
	// adjusted for the two tokens' decimals.
	return (bOut / wOut) / (bIn / wIn) * math.Pow10(int(p.decimals[in])-int(p.decimals[out])), nil
}

// SimulateSwap implements the standard weighted-product output formula:
//
//	out = balanceOut * (1 - (balanceIn / (balanceIn + amountIn*(1-fee)))^(weightIn/weightOut))
func (p *Pool) SimulateSwap(base, quote common.Address, amountIn *big.Int) (*big.Int, error) {
	out, _, _, err := p.simulate(base, quote, amountIn)
	return out, err
}

func (p *Pool) SimulateSwapMut(base, quote common.Address, amountIn *big.Int) (*big.Int, error) {
	out, in, outIdx, err := p.simulate(base, quote, amountIn)
	if err != nil {
		return nil, err
	}
	p.balances[in].Add(p.balances[in], amountIn)
	p.balances[outIdx].Sub(p.balances[outIdx], out)
	return out, nil
}

func (p *Pool) simulate(base, quote common.Address, amountIn *big.Int) (amountOut *big.Int, inIdx, outIdx int, err error) {
	inIdx, outIdx = p.indexOf(base), p.indexOf(quote)
	if inIdx < 0 || outIdx < 0 {
		return nil, 0, 0, errs.ErrInvalidInput
	}
	if amountIn == nil || amountIn.Sign() == 0 {
		return big.NewInt(0), inIdx, outIdx, nil
	}
	if amountIn.Sign() < 0 || p.balances[inIdx].Sign() <= 0 || p.balances[outIdx].Sign() <= 0 {
		return nil, 0, 0, errs.ErrInvalidInput
	}

	balIn, _ := new(big.Float).SetInt(p.balances[inIdx]).Float64()
	balOut, _ := new(big.Float).SetInt(p.balances[outIdx]).Float64()
	wIn, _ := new(big.Float).SetInt(p.weights[inIdx]).Float64()
	wOut, _ := new(big.Float).SetInt(p.weights[outIdx]).Float64()
	feeFrac, _ := new(big.Float).Quo(new(big.Float).SetInt(p.feeWad), big.NewFloat(feeDenominator)).Float64()
	amtIn, _ := new(big.Float).SetInt(amountIn).Float64()

	amountInAfterFee := amtIn * (1 - feeFrac)
	base0 := balIn / (balIn + amountInAfterFee)
	exponent := wIn / wOut
	factor := 1 - math.Pow(base0, exponent)
	out := balOut * factor

	outInt, _ := new(big.Float).SetFloat64(out).Int(nil)
	if outInt == nil {
		outInt = big.NewInt(0)
	}
	return outInt, inIdx, outIdx, nil
}
