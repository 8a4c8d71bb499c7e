// Package erc4626 implements the ERC4626 vault pool variant: a share
// token and an asset token related by total_supply/total_assets, with a
// linear deposit/withdraw fee derived once during discovery from the
// reader's fee-delta probes.
package erc4626

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/defistate/statespace/errs"
	"github.com/defistate/statespace/pool"
)

var (
	DepositEventSignature  = crypto.Keccak256Hash([]byte("Deposit(address,address,uint256,uint256)"))
	WithdrawEventSignature = crypto.Keccak256Hash([]byte("Withdraw(address,address,address,uint256,uint256)"))
)

const bpsDenominator = 10000

// Pool is the ERC4626 vault pool variant.
type Pool struct {
	address common.Address // the vault/share token's own address

	vaultToken, assetToken           common.Address
	vaultDecimals, assetDecimals     uint8
	totalSupply, totalAssets         *big.Int
	depositFeeBps, withdrawFeeBps    uint16
}

// New constructs a pool shell with only the immutable fields populated.
// depositFeeBps/withdrawFeeBps are the per-unit fees the reader derives
// from the two deposit-size and two redeem-size probes spec'd for 4626
// vaults; the engine treats them as already-reduced inputs.
func New(vaultToken, assetToken common.Address, vaultDecimals, assetDecimals uint8, depositFeeBps, withdrawFeeBps uint16) *Pool {
	return &Pool{
		address:        vaultToken,
		vaultToken:     vaultToken,
		assetToken:     assetToken,
		vaultDecimals:  vaultDecimals,
		assetDecimals:  assetDecimals,
		depositFeeBps:  depositFeeBps,
		withdrawFeeBps: withdrawFeeBps,
		totalSupply:    new(big.Int),
		totalAssets:    new(big.Int),
	}
}

// Seed installs the dynamic totals produced by the state reader.
func (p *Pool) Seed(totalSupply, totalAssets *big.Int) {
	p.totalSupply = new(big.Int).Set(totalSupply)
	p.totalAssets = new(big.Int).Set(totalAssets)
}

func (p *Pool) Address() common.Address  { return p.address }
func (p *Pool) Kind() pool.Kind          { return pool.KindERC4626Vault }
func (p *Pool) Tokens() []common.Address { return []common.Address{p.vaultToken, p.assetToken} }
func (p *Pool) SyncEvents() []common.Hash {
	return []common.Hash{DepositEventSignature, WithdrawEventSignature}
}

func (p *Pool) Clone() pool.AMM {
	return &Pool{
		address:        p.address,
		vaultToken:     p.vaultToken,
		assetToken:     p.assetToken,
		vaultDecimals:  p.vaultDecimals,
		assetDecimals:  p.assetDecimals,
		depositFeeBps:  p.depositFeeBps,
		withdrawFeeBps: p.withdrawFeeBps,
		totalSupply:    new(big.Int).Set(p.totalSupply),
		totalAssets:    new(big.Int).Set(p.totalAssets),
	}
}

func (p *Pool) Sync(log *types.Log) error {
	if len(log.Topics) == 0 {
		return errs.ErrLogMismatch
	}
	if t := log.Topics[0]; t != DepositEventSignature && t != WithdrawEventSignature {
		return &errs.LogMismatchError{Pool: p.address, Topic0: t}
	}
	if len(log.Data) < 64 {
		return errs.ErrInvalidInput
	}
	assets := new(big.Int).SetBytes(log.Data[0:32])
	shares := new(big.Int).SetBytes(log.Data[32:64])

	switch log.Topics[0] {
	case DepositEventSignature:
		p.totalAssets.Add(p.totalAssets, assets)
		p.totalSupply.Add(p.totalSupply, shares)
		return nil
	case WithdrawEventSignature:
		p.totalAssets.Sub(p.totalAssets, assets)
		p.totalSupply.Sub(p.totalSupply, shares)
		return nil
	default:
		return &errs.LogMismatchError{Pool: p.address, Topic0: log.Topics[0]}
	}
}

// direction resolves which leg of the vault is being priced/swapped, and
// which fee applies: the withdraw fee when moving from shares to assets
// (reserveIn is the share-denominated total_supply), the deposit fee
// otherwise.
func (p *Pool) direction(base, quote common.Address) (reserveIn, reserveOut *big.Int, feeBps uint16, err error) {
	switch {
	case base == p.vaultToken && quote == p.assetToken:
		return p.totalSupply, p.totalAssets, p.withdrawFeeBps, nil
	case base == p.assetToken && quote == p.vaultToken:
		return p.totalAssets, p.totalSupply, p.depositFeeBps, nil
	default:
		return nil, nil, 0, errs.ErrInvalidInput
	}
}

func (p *Pool) Price(base, quote common.Address) (float64, error) {
	reserveIn, reserveOut, _, err := p.direction(base, quote)
	if err != nil {
		return 0, err
	}
	if reserveIn.Sign() == 0 {
		return 0, errs.ErrInvalidInput
	}
	decIn, decOut := p.assetDecimals, p.vaultDecimals
	if base == p.vaultToken {
		decIn, decOut = p.vaultDecimals, p.assetDecimals
	}
	num := new(big.Int).Mul(reserveOut, new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decIn)), nil))
	den := new(big.Int).Mul(reserveIn, new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decOut)), nil))
	r := new(big.Float).Quo(new(big.Float).SetInt(num), new(big.Float).SetInt(den))
	f, _ := r.Float64()
	return f, nil
}

func (p *Pool) SimulateSwap(base, quote common.Address, amountIn *big.Int) (*big.Int, error) {
	out, _, _, _, err := p.simulate(base, quote, amountIn)
	return out, err
}

func (p *Pool) SimulateSwapMut(base, quote common.Address, amountIn *big.Int) (*big.Int, error) {
	out, isDeposit, assets, shares, err := p.simulate(base, quote, amountIn)
	if err != nil {
		return nil, err
	}
	if isDeposit {
		p.totalAssets.Add(p.totalAssets, assets)
		p.totalSupply.Add(p.totalSupply, shares)
	} else {
		p.totalAssets.Sub(p.totalAssets, assets)
		p.totalSupply.Sub(p.totalSupply, shares)
	}
	return out, nil
}

// simulate returns (amountOut, isDeposit, assetsDelta, sharesDelta, err).
func (p *Pool) simulate(base, quote common.Address, amountIn *big.Int) (amountOut *big.Int, isDeposit bool, assetsDelta, sharesDelta *big.Int, err error) {
	reserveIn, reserveOut, feeBps, err := p.direction(base, quote)
	if err != nil {
		return nil, false, nil, nil, err
	}
	isDeposit = base == p.assetToken

	if amountIn == nil || amountIn.Sign() == 0 {
		return big.NewInt(0), isDeposit, big.NewInt(0), big.NewInt(0), nil
	}
	if amountIn.Sign() < 0 {
		return nil, false, nil, nil, errs.ErrInvalidInput
	}
	if p.totalSupply.Sign() == 0 {
		// An empty vault converts 1:1 until the first deposit.
		amountOut = new(big.Int).Set(amountIn)
	} else {
		num := new(big.Int).Mul(amountIn, reserveOut)
		amountOut = new(big.Int).Div(num, reserveIn)
		amountOut.Mul(amountOut, big.NewInt(bpsDenominator-int64(feeBps)))
		amountOut.Div(amountOut, big.NewInt(bpsDenominator))
	}

	if isDeposit {
		return amountOut, true, amountIn, amountOut, nil
	}
	return amountOut, false, amountOut, amountIn, nil
}
