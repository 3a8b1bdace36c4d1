package usecases

import (
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/params"
)

// WeiToEther converts a wei amount to ether for display purposes only.
// Comparisons always happen on the wei integers.
func WeiToEther(wei *big.Int) *big.Float {
	return new(big.Float).Quo(
		new(big.Float).SetInt(wei),
		new(big.Float).SetInt(big.NewInt(params.Ether)),
	)
}

// FormatEther renders a wei amount as a trimmed decimal ether string,
// e.g. 2000000000000000 -> "0.002".
func FormatEther(wei *big.Int) string {
	text := WeiToEther(wei).Text('f', 18)
	text = strings.TrimRight(text, "0")
	text = strings.TrimSuffix(text, ".")
	if text == "" {
		return "0"
	}
	return text
}
