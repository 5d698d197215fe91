package bitcoin

import (
	"errors"
	"fmt"
	"strings"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/shopspring/decimal"
)

var ErrInvalidAddress = errors.New("invalid bitcoin address")

// SatsPerBTC is the number of satoshis in one bitcoin.
const SatsPerBTC = btcutil.SatoshiPerBitcoin

// Params returns the chain parameters for a network name.
func Params(network string) (*chaincfg.Params, error) {
	switch strings.ToLower(strings.TrimSpace(network)) {
	case "", "mainnet", "main":
		return &chaincfg.MainNetParams, nil
	case "testnet", "testnet3":
		return &chaincfg.TestNet3Params, nil
	case "signet":
		return &chaincfg.SigNetParams, nil
	case "regtest":
		return &chaincfg.RegressionNetParams, nil
	}
	return nil, fmt.Errorf("unknown bitcoin network %q", network)
}

// NormalizeAddress decodes addr for the given network and returns its canonical
// encoding (bech32 addresses come back lower-case).
func NormalizeAddress(addr string, params *chaincfg.Params) (string, error) {
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidAddress)
	}

	decoded, err := btcutil.DecodeAddress(addr, params)
	if err != nil {
		return "", fmt.Errorf("%w: %s: %v", ErrInvalidAddress, addr, err)
	}
	if !decoded.IsForNet(params) {
		return "", fmt.Errorf("%w: %s is not a %s address", ErrInvalidAddress, addr, params.Name)
	}

	return decoded.EncodeAddress(), nil
}

// SatsToBTC converts satoshis to BTC
func SatsToBTC(sats int64) decimal.Decimal {
	return decimal.New(sats, -8)
}

// SatsToUSD converts satoshis to USD at the given BTC price.
func SatsToUSD(sats int64, btcUSD decimal.Decimal) decimal.Decimal {
	return SatsToBTC(sats).Mul(btcUSD)
}

// ShortAddr returns a shortened address for display
func ShortAddr(addr string, n int) string {
	if addr == "" {
		return "unknown"
	}
	if len(addr) < n*2+3 {
		return addr
	}
	return addr[:n] + "..." + addr[len(addr)-n:]
}
