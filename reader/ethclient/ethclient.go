// Package ethclient is the reference implementation of reader.StateReader
// (spec §4.4) against a live EVM node, using go-ethereum's ethclient.Client
// for the eth_call transport and hand-rolled 4-byte-selector calldata
// instead of a generated ABI binding — the spec treats "batch-call
// encoding and ABI decoding" as an external collaborator's concern, so this
// adapter keeps its own encoding minimal rather than pulling in a second
// ABI library on top of go-ethereum.
//
// This is a reference adapter, not the product: it demonstrates that
// reader.StateReader is satisfiable end-to-end, at the cost of a few
// documented simplifications (no batched multicall, constant-product fee
// defaulted rather than read from the factory, concentrated-liquidity tick
// data limited to the word containing the current tick). A production
// adapter would batch these calls (e.g. via Multicall3) and read the
// per-factory fee and the full tick range. discovery.Engine passes
// ReadStatic only pool addresses, so the factory's fee does not reach this
// adapter.
package ethclient

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/defistate/statespace/errs"
	"github.com/defistate/statespace/pool"
	"github.com/defistate/statespace/pool/erc4626"
	"github.com/defistate/statespace/pool/uniswapv2"
	"github.com/defistate/statespace/pool/uniswapv3"
	"github.com/defistate/statespace/pool/weighted"
)

// DefaultConstantProductFeeBps is used when the on-chain pair itself has no
// fee() accessor (the common case for V2-family forks, whose fee lives on
// the factory, not the pair). Discovery normally already knows the
// factory's fee from the creation context; this adapter falls back to the
// canonical 30 bps (0.3%) default when no override is supplied.
const DefaultConstantProductFeeBps = 30

// Reader implements reader.StateReader against a single EVM node.
type Reader struct {
	client *ethclient.Client

	// ConstantProductFeeBps overrides DefaultConstantProductFeeBps for
	// ReadStatic calls against constant-product pools, keyed by pool
	// address. Populated by the caller from factory config; pools not
	// present here get the default.
	ConstantProductFeeBps map[common.Address]uint16
}

// New wraps an already-dialed ethclient.Client.
func New(client *ethclient.Client) *Reader {
	return &Reader{client: client, ConstantProductFeeBps: map[common.Address]uint16{}}
}

var (
	selDecimals            = selector("decimals()")
	selToken0               = selector("token0()")
	selToken1               = selector("token1()")
	selGetReserves          = selector("getReserves()")
	selFee                  = selector("fee()")
	selTickSpacing          = selector("tickSpacing()")
	selSlot0                = selector("slot0()")
	selLiquidity            = selector("liquidity()")
	selTickBitmap           = selector("tickBitmap(int16)")
	selTicks                = selector("ticks(int24)")
	selAsset                = selector("asset()")
	selTotalSupply          = selector("totalSupply()")
	selTotalAssets          = selector("totalAssets()")
	selGetFinalTokens       = selector("getFinalTokens()")
	selGetDenormalizedWeight = selector("getDenormalizedWeight(address)")
	selGetBalance           = selector("getBalance(address)")
	selGetSwapFee           = selector("getSwapFee()")
)

func selector(sig string) []byte {
	return crypto.Keccak256([]byte(sig))[:4]
}

func (r *Reader) call(ctx context.Context, to common.Address, data []byte, block uint64) ([]byte, error) {
	msg := ethereum.CallMsg{To: &to, Data: data}
	var blockNumber *big.Int
	if block != 0 {
		blockNumber = new(big.Int).SetUint64(block)
	}
	out, err := r.client.CallContract(ctx, msg, blockNumber)
	if err != nil {
		return nil, &errs.ReaderError{Op: "eth_call", Attempt: 1, Err: err}
	}
	return out, nil
}

func encodeAddress(a common.Address) []byte {
	word := make([]byte, 32)
	copy(word[12:], a.Bytes())
	return word
}

func encodeInt16(v int16) []byte {
	word := make([]byte, 32)
	b := new(big.Int).SetInt64(int64(v))
	if v < 0 {
		b = new(big.Int).Add(new(big.Int).Lsh(big.NewInt(1), 256), b)
	}
	b.FillBytes(word)
	return word
}

func encodeInt24(v int64) []byte {
	word := make([]byte, 32)
	b := big.NewInt(v)
	if v < 0 {
		b = new(big.Int).Add(new(big.Int).Lsh(big.NewInt(1), 256), b)
	}
	b.FillBytes(word)
	return word
}

func (r *Reader) decimalsOf(ctx context.Context, token common.Address, block uint64) (uint8, error) {
	out, err := r.call(ctx, token, selDecimals, block)
	if err != nil || len(out) < 32 {
		return 0, fmt.Errorf("%w: decimals() for %s", errs.ErrPopulateFailed, token)
	}
	return uint8(new(big.Int).SetBytes(out[len(out)-1:]).Uint64()), nil
}

// ReadStatic implements reader.StateReader.
func (r *Reader) ReadStatic(ctx context.Context, addrs []common.Address, kind pool.Kind) ([]pool.AMM, error) {
	out := make([]pool.AMM, len(addrs))
	for i, addr := range addrs {
		p, err := r.readStaticOne(ctx, addr, kind)
		if err != nil {
			out[i] = nil
			continue
		}
		out[i] = p
	}
	return out, nil
}

func (r *Reader) readStaticOne(ctx context.Context, addr common.Address, kind pool.Kind) (pool.AMM, error) {
	switch kind {
	case pool.KindConstantProduct:
		t0, err := r.call(ctx, addr, selToken0, 0)
		if err != nil || len(t0) < 32 {
			return nil, errs.ErrPopulateFailed
		}
		t1, err := r.call(ctx, addr, selToken1, 0)
		if err != nil || len(t1) < 32 {
			return nil, errs.ErrPopulateFailed
		}
		tokenA := common.BytesToAddress(t0[12:32])
		tokenB := common.BytesToAddress(t1[12:32])
		decA, err := r.decimalsOf(ctx, tokenA, 0)
		if err != nil {
			return nil, err
		}
		decB, err := r.decimalsOf(ctx, tokenB, 0)
		if err != nil {
			return nil, err
		}
		feeBps := uint16(DefaultConstantProductFeeBps)
		if fee, ok := r.ConstantProductFeeBps[addr]; ok {
			feeBps = fee
		}
		return uniswapv2.New(addr, tokenA, tokenB, decA, decB, feeBps), nil

	case pool.KindConcentratedLiquidity:
		t0, err := r.call(ctx, addr, selToken0, 0)
		if err != nil || len(t0) < 32 {
			return nil, errs.ErrPopulateFailed
		}
		t1, err := r.call(ctx, addr, selToken1, 0)
		if err != nil || len(t1) < 32 {
			return nil, errs.ErrPopulateFailed
		}
		feeOut, err := r.call(ctx, addr, selFee, 0)
		if err != nil || len(feeOut) < 32 {
			return nil, errs.ErrPopulateFailed
		}
		spacingOut, err := r.call(ctx, addr, selTickSpacing, 0)
		if err != nil || len(spacingOut) < 32 {
			return nil, errs.ErrPopulateFailed
		}
		tokenA := common.BytesToAddress(t0[12:32])
		tokenB := common.BytesToAddress(t1[12:32])
		decA, err := r.decimalsOf(ctx, tokenA, 0)
		if err != nil {
			return nil, err
		}
		decB, err := r.decimalsOf(ctx, tokenB, 0)
		if err != nil {
			return nil, err
		}
		fee := uint32(new(big.Int).SetBytes(feeOut[28:32]).Uint64())
		spacing := new(big.Int).SetBytes(spacingOut).Int64()
		return uniswapv3.New(addr, tokenA, tokenB, decA, decB, fee, spacing), nil

	case pool.KindERC4626Vault:
		assetOut, err := r.call(ctx, addr, selAsset, 0)
		if err != nil || len(assetOut) < 32 {
			return nil, errs.ErrPopulateFailed
		}
		asset := common.BytesToAddress(assetOut[12:32])
		vaultDec, err := r.decimalsOf(ctx, addr, 0)
		if err != nil {
			return nil, err
		}
		assetDec, err := r.decimalsOf(ctx, asset, 0)
		if err != nil {
			return nil, err
		}
		// Fee-delta probing (spec §3's four signed probes at two deposit
		// and two redeem sizes) requires a simulated preview call this
		// reference adapter does not implement; it seeds zero fees and
		// documents the gap rather than guessing.
		return erc4626.New(addr, asset, vaultDec, assetDec, 0, 0), nil

	case pool.KindWeighted:
		tokensOut, err := r.call(ctx, addr, selGetFinalTokens, 0)
		if err != nil {
			return nil, errs.ErrPopulateFailed
		}
		tokens, err := decodeAddressArray(tokensOut)
		if err != nil || len(tokens) < 2 {
			return nil, errs.ErrPopulateFailed
		}
		decimals := make([]uint8, len(tokens))
		weights := make([]*big.Int, len(tokens))
		for i, tok := range tokens {
			d, err := r.decimalsOf(ctx, tok, 0)
			if err != nil {
				return nil, err
			}
			decimals[i] = d
			wOut, err := r.call(ctx, addr, append(append([]byte{}, selGetDenormalizedWeight...), encodeAddress(tok)...), 0)
			if err != nil || len(wOut) < 32 {
				return nil, errs.ErrPopulateFailed
			}
			weights[i] = new(big.Int).SetBytes(wOut)
		}
		feeOut, err := r.call(ctx, addr, selGetSwapFee, 0)
		if err != nil || len(feeOut) < 32 {
			return nil, errs.ErrPopulateFailed
		}
		return weighted.New(addr, tokens, decimals, weights, new(big.Int).SetBytes(feeOut)), nil

	default:
		return nil, fmt.Errorf("%w: unsupported kind %s", errs.ErrPopulateFailed, kind)
	}
}

// decodeAddressArray decodes a dynamic address[] ABI return value: offset
// word, length word, then one right-aligned address per word.
func decodeAddressArray(data []byte) ([]common.Address, error) {
	if len(data) < 64 {
		return nil, fmt.Errorf("short address[] return")
	}
	length := new(big.Int).SetBytes(data[32:64]).Uint64()
	out := make([]common.Address, 0, length)
	base := 64
	for i := uint64(0); i < length; i++ {
		start := base + int(i)*32
		if start+32 > len(data) {
			return nil, fmt.Errorf("truncated address[] return")
		}
		out = append(out, common.BytesToAddress(data[start+12:start+32]))
	}
	return out, nil
}

// ReadDynamic implements reader.StateReader.
func (r *Reader) ReadDynamic(ctx context.Context, addrs []common.Address, kind pool.Kind, block uint64) ([]pool.AMM, error) {
	out := make([]pool.AMM, len(addrs))
	// ReadDynamic is documented as taking the survivors of ReadStatic; this
	// reference adapter re-derives static fields too, keeping the two
	// calls independently usable (and trivially testable) at the cost of
	// one extra round of eth_calls, which a production caller would avoid
	// by threading the ReadStatic result through instead.
	statics, err := r.ReadStatic(ctx, addrs, kind)
	if err != nil {
		return nil, err
	}
	for i, addr := range addrs {
		shell := statics[i]
		if shell == nil {
			continue
		}
		p, err := r.readDynamicOne(ctx, addr, shell, block)
		if err != nil {
			out[i] = nil
			continue
		}
		out[i] = p
	}
	return out, nil
}

func (r *Reader) readDynamicOne(ctx context.Context, addr common.Address, shell pool.AMM, block uint64) (pool.AMM, error) {
	switch p := shell.(type) {
	case *uniswapv2.Pool:
		reservesOut, err := r.call(ctx, addr, selGetReserves, block)
		if err != nil || len(reservesOut) < 64 {
			return nil, errs.ErrPopulateFailed
		}
		reserveA := new(big.Int).SetBytes(reservesOut[0:32])
		reserveB := new(big.Int).SetBytes(reservesOut[32:64])
		if reserveA.Sign() == 0 || reserveB.Sign() == 0 {
			return nil, errs.ErrPopulateFailed
		}
		p.Seed(reserveA, reserveB)
		return p, nil

	case *uniswapv3.Pool:
		slot0Out, err := r.call(ctx, addr, selSlot0, block)
		if err != nil || len(slot0Out) < 64 {
			return nil, errs.ErrPopulateFailed
		}
		sqrtPriceX96 := new(big.Int).SetBytes(slot0Out[0:32])
		tick := decodeInt24(slot0Out[32:64])
		liqOut, err := r.call(ctx, addr, selLiquidity, block)
		if err != nil || len(liqOut) < 32 {
			return nil, errs.ErrPopulateFailed
		}
		liquidity := new(big.Int).SetBytes(liqOut)
		spacingOut, err := r.call(ctx, addr, selTickSpacing, block)
		if err != nil || len(spacingOut) < 32 {
			return nil, errs.ErrPopulateFailed
		}
		spacing := decodeInt24(spacingOut[0:32])
		if spacing <= 0 {
			return nil, errs.ErrPopulateFailed
		}
		compressedTick := tick / spacing
		if tick < 0 && tick%spacing != 0 {
			compressedTick--
		}

		ticks := map[int64]uniswapv3.TickInfo{}
		wordIdx := int16(compressedTick >> 8)
		bitmapOut, err := r.call(ctx, addr, append(append([]byte{}, selTickBitmap...), encodeInt16(wordIdx)...), block)
		if err == nil && len(bitmapOut) >= 32 {
			word := new(big.Int).SetBytes(bitmapOut)
			for bit := 0; bit < 256; bit++ {
				if word.Bit(bit) == 0 {
					continue
				}
				tickIdx := (int64(wordIdx)*256 + int64(bit)) * spacing
				tickInfoOut, err := r.call(ctx, addr, append(append([]byte{}, selTicks...), encodeInt24(tickIdx)...), block)
				if err != nil || len(tickInfoOut) < 64 {
					continue
				}
				ticks[tickIdx] = uniswapv3.TickInfo{
					LiquidityGross: new(big.Int).SetBytes(tickInfoOut[0:32]),
					LiquidityNet:   decodeInt128(tickInfoOut[32:64]),
				}
			}
		}
		p.Seed(tick, sqrtPriceX96, liquidity, ticks)
		return p, nil

	case *erc4626.Pool:
		supplyOut, err := r.call(ctx, addr, selTotalSupply, block)
		if err != nil || len(supplyOut) < 32 {
			return nil, errs.ErrPopulateFailed
		}
		assetsOut, err := r.call(ctx, addr, selTotalAssets, block)
		if err != nil || len(assetsOut) < 32 {
			return nil, errs.ErrPopulateFailed
		}
		p.Seed(new(big.Int).SetBytes(supplyOut), new(big.Int).SetBytes(assetsOut))
		return p, nil

	case *weighted.Pool:
		tokens := p.Tokens()
		balances := make([]*big.Int, len(tokens))
		for i, tok := range tokens {
			balOut, err := r.call(ctx, addr, append(append([]byte{}, selGetBalance...), encodeAddress(tok)...), block)
			if err != nil || len(balOut) < 32 {
				return nil, errs.ErrPopulateFailed
			}
			balances[i] = new(big.Int).SetBytes(balOut)
		}
		p.Seed(balances)
		return p, nil

	default:
		return nil, fmt.Errorf("%w: unsupported shell type", errs.ErrPopulateFailed)
	}
}

func decodeInt24(word []byte) int64 {
	v := new(big.Int).SetBytes(word)
	max := new(big.Int).Lsh(big.NewInt(1), 23)
	if v.Cmp(max) >= 0 {
		mod := new(big.Int).Lsh(big.NewInt(1), 256)
		v.Sub(v, mod)
	}
	return v.Int64()
}

func decodeInt128(word []byte) *big.Int {
	v := new(big.Int).SetBytes(word)
	max := new(big.Int).Lsh(big.NewInt(1), 127)
	if v.Cmp(max) >= 0 {
		mod := new(big.Int).Lsh(big.NewInt(1), 256)
		v.Sub(v, mod)
	}
	return v
}
