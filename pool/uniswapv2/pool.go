// Package uniswapv2 implements the constant-product pool variant shared by
// the Uniswap-V2 family of forks: two reserves, a per-factory fee in basis
// points, and the exact `x*y=k` swap formula.
package uniswapv2

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/defistate/statespace/errs"
	"github.com/defistate/statespace/pool"
)

// SyncEventSignature is the protocol-wide Sync(uint112,uint112) event every
// V2-family pair emits after a mutating call.
var SyncEventSignature = crypto.Keccak256Hash([]byte("Sync(uint112,uint112)"))

const bpsDenominator = 10000

// Pool is the constant-product pool variant.
type Pool struct {
	address common.Address

	tokenA, tokenB       common.Address
	decimalsA, decimalsB uint8
	reserveA, reserveB   *big.Int
	feeBps               uint16
}

// New constructs a pool shell with only the immutable fields populated.
func New(address, tokenA, tokenB common.Address, decimalsA, decimalsB uint8, feeBps uint16) *Pool {
	return &Pool{
		address:   address,
		tokenA:    tokenA,
		tokenB:    tokenB,
		decimalsA: decimalsA,
		decimalsB: decimalsB,
		feeBps:    feeBps,
		reserveA:  new(big.Int),
		reserveB:  new(big.Int),
	}
}

// Seed installs the reserves produced by the state reader during discovery.
func (p *Pool) Seed(reserveA, reserveB *big.Int) {
	p.reserveA = new(big.Int).Set(reserveA)
	p.reserveB = new(big.Int).Set(reserveB)
}

func (p *Pool) Address() common.Address  { return p.address }
func (p *Pool) Kind() pool.Kind          { return pool.KindConstantProduct }
func (p *Pool) Tokens() []common.Address { return []common.Address{p.tokenA, p.tokenB} }
func (p *Pool) SyncEvents() []common.Hash {
	return []common.Hash{SyncEventSignature}
}

func (p *Pool) Clone() pool.AMM {
	return &Pool{
		address:   p.address,
		tokenA:    p.tokenA,
		tokenB:    p.tokenB,
		decimalsA: p.decimalsA,
		decimalsB: p.decimalsB,
		feeBps:    p.feeBps,
		reserveA:  new(big.Int).Set(p.reserveA),
		reserveB:  new(big.Int).Set(p.reserveB),
	}
}

// Sync applies the pair's Sync event, replacing both reserves with the
// decoded post-state. Any other topic is a LogMismatch.
func (p *Pool) Sync(log *types.Log) error {
	if len(log.Topics) == 0 || log.Topics[0] != SyncEventSignature {
		topic0 := common.Hash{}
		if len(log.Topics) > 0 {
			topic0 = log.Topics[0]
		}
		return &errs.LogMismatchError{Pool: p.address, Topic0: topic0}
	}
	if len(log.Data) < 64 {
		return errs.ErrInvalidInput
	}
	p.reserveA = new(big.Int).SetBytes(log.Data[0:32])
	p.reserveB = new(big.Int).SetBytes(log.Data[32:64])
	return nil
}

func (p *Pool) direction(base, quote common.Address) (reserveIn, reserveOut *big.Int, decimalsIn, decimalsOut uint8, err error) {
	switch {
	case base == p.tokenA && quote == p.tokenB:
		return p.reserveA, p.reserveB, p.decimalsA, p.decimalsB, nil
	case base == p.tokenB && quote == p.tokenA:
		return p.reserveB, p.reserveA, p.decimalsB, p.decimalsA, nil
	default:
		return nil, nil, 0, 0, errs.ErrInvalidInput
	}
}

// Price returns (reserve_quote * 10^decimals_base) / (reserve_base *
// 10^decimals_quote) as the spec requires.
func (p *Pool) Price(base, quote common.Address) (float64, error) {
	reserveIn, reserveOut, decIn, decOut, err := p.direction(base, quote)
	if err != nil {
		return 0, err
	}
	if reserveIn.Sign() == 0 {
		return 0, errs.ErrInvalidInput
	}
	num := new(big.Float).SetInt(new(big.Int).Mul(reserveOut, pow10(decIn)))
	den := new(big.Float).SetInt(new(big.Int).Mul(reserveIn, pow10(decOut)))
	result := new(big.Float).Quo(num, den)
	f, _ := result.Float64()
	return f, nil
}

func pow10(n uint8) *big.Int {
	return new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(n)), nil)
}

// SimulateSwap computes out = in*(10000-fee)*R_out / (R_in*10000 + in*(10000-fee))
// without mutating reserves.
func (p *Pool) SimulateSwap(base, quote common.Address, amountIn *big.Int) (*big.Int, error) {
	out, _, _, err := p.simulate(base, quote, amountIn)
	return out, err
}

// SimulateSwapMut computes the same output and writes
// (reserve_in += amountIn, reserve_out -= out) back into the pool.
func (p *Pool) SimulateSwapMut(base, quote common.Address, amountIn *big.Int) (*big.Int, error) {
	out, reserveIn, reserveOut, err := p.simulate(base, quote, amountIn)
	if err != nil {
		return nil, err
	}
	reserveIn.Add(reserveIn, amountIn)
	reserveOut.Sub(reserveOut, out)
	return out, nil
}

func (p *Pool) simulate(base, quote common.Address, amountIn *big.Int) (amountOut *big.Int, reserveIn, reserveOut *big.Int, err error) {
	reserveIn, reserveOut, _, _, err = p.direction(base, quote)
	if err != nil {
		return nil, nil, nil, err
	}
	if amountIn == nil || amountIn.Sign() == 0 {
		return big.NewInt(0), reserveIn, reserveOut, nil
	}
	if amountIn.Sign() < 0 || reserveIn.Sign() <= 0 || reserveOut.Sign() <= 0 {
		return nil, nil, nil, errs.ErrInvalidInput
	}

	amountInWithFee := new(big.Int).Mul(amountIn, big.NewInt(bpsDenominator-int64(p.feeBps)))
	numerator := new(big.Int).Mul(amountInWithFee, reserveOut)
	denominator := new(big.Int).Add(new(big.Int).Mul(reserveIn, big.NewInt(bpsDenominator)), amountInWithFee)
	if denominator.Sign() == 0 {
		return nil, nil, nil, errs.ErrArithmeticOverflow
	}
	amountOut = new(big.Int).Div(numerator, denominator)
	if amountOut.Cmp(reserveOut) >= 0 {
		return nil, nil, nil, errs.ErrArithmeticOverflow
	}
	return amountOut, reserveIn, reserveOut, nil
}
