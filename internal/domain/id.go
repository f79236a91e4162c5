package domain

import (
	"fmt"
	"math/big"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// MustABIType panics on a malformed type literal; only used for package-level vars
func MustABIType(t string) abi.Type {
	typ, err := abi.NewType(t, "", nil)
	if err != nil {
		panic(fmt.Sprintf("abi type %q: %v", t, err))
	}
	return typ
}

var poolKeyArgs = abi.Arguments{
	{Type: MustABIType("address")},
	{Type: MustABIType("address")},
	{Type: MustABIType("uint24")},
	{Type: MustABIType("int24")},
	{Type: MustABIType("address")},
}

// ID = keccak256(abi.encode(currency0, currency1, fee, tickSpacing, hooks))
func (k PoolKey) ID() PoolID {
	enc, err := poolKeyArgs.Pack(
		k.Currency0,
		k.Currency1,
		new(big.Int).SetUint64(uint64(k.Fee)),
		big.NewInt(int64(k.TickSpacing)),
		k.Hooks,
	)
	if err != nil {
		// arguments are fixed-width and statically typed
		panic(fmt.Sprintf("pack pool key: %v", err))
	}
	return crypto.Keccak256Hash(enc)
}

func ParsePoolID(s string) (PoolID, error) {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "0x") || len(s) != 66 {
		return PoolID{}, fmt.Errorf("invalid pool id: %q", s)
	}
	b := common.FromHex(s)
	if len(b) != common.HashLength {
		return PoolID{}, fmt.Errorf("invalid pool id: %q", s)
	}
	return common.BytesToHash(b), nil
}

func ParseAddress(s string) (common.Address, error) {
	if !common.IsHexAddress(s) {
		return common.Address{}, fmt.Errorf("invalid address: %q", s)
	}
	return common.HexToAddress(s), nil
}

// NotificationID = "<chain_id>:<tx_hash>:<log_index>"
func MakeNotificationID(chainID uint64, txHash string, logIndex uint32) string {
	return fmt.Sprintf("%d:%s:%d", chainID, strings.ToLower(txHash), logIndex)
}

func ValidNotificationID(id string) bool {
	parts := strings.Split(id, ":")
	if len(parts) != 3 || parts[1] == "" {
		return false
	}
	if _, err := strconv.ParseUint(parts[0], 10, 64); err != nil {
		return false
	}
	_, err := strconv.ParseUint(parts[2], 10, 32)
	return err == nil
}
