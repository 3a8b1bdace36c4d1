package entities

import "math/big"

// AssetNative marks a plain value transfer in the chain's native currency.
const AssetNative = "ETH"

// Transfer is a value transfer read from the ledger. Transfers are transient
// query results and are never persisted directly.
type Transfer struct {
	Hash        string   `json:"hash"`
	From        string   `json:"from"`
	To          string   `json:"to"`
	ValueWei    *big.Int `json:"value_wei"`
	BlockNumber *int64   `json:"block_number"` // nil while the transfer is unconfirmed
	Asset       string   `json:"asset"`
}

// Confirmed reports whether the transfer has been included in a block.
func (t Transfer) Confirmed() bool {
	return t.BlockNumber != nil
}
