package util

import (
	"fmt"
	"math/big"

	tbtypes "github.com/tigerbeetle/tigerbeetle-go/pkg/types"
)

// StringToUint128 parses a decimal account id string into the ledger's
// 128-bit integer form.
func StringToUint128(s string) (tbtypes.Uint128, error) {
	bi, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return tbtypes.Uint128{}, fmt.Errorf("invalid uint128 string: %s", s)
	}
	return tbtypes.BigIntToUint128(*bi), nil
}

// Uint128ToString renders a 128-bit ledger id back to its decimal form.
func Uint128ToString(v tbtypes.Uint128) string {
	bi := v.BigInt()
	return bi.String()
}
