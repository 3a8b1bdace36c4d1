package usecases

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"go.openly.dev/pointy"

	"github.com/opendev/membership-app/backend/internal/entities"
)

// ChainClient is a thin wrapper over an Ethereum JSON-RPC endpoint. Every
// call is bounded by queryTimeout and returns an explicit error on provider
// failure; callers decide whether that is fail-soft or fail-hard.
type ChainClient struct {
	logger       *slog.Logger
	client       *ethclient.Client
	queryTimeout time.Duration
}

// NewChainClient dials the chain endpoint. For HTTP endpoints the dial is
// lazy, so a misconfigured URL surfaces on the first query instead.
func NewChainClient(ctx context.Context, logger *slog.Logger, rpcURL string, queryTimeout time.Duration) (*ChainClient, error) {
	client, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Ethereum client: %w", err)
	}

	return &ChainClient{
		logger:       logger,
		client:       client,
		queryTimeout: queryTimeout,
	}, nil
}

func (c *ChainClient) Close() {
	c.client.Close()
}

func (c *ChainClient) bound(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, c.queryTimeout)
}

// LatestBlock returns the current chain head height.
func (c *ChainClient) LatestBlock(ctx context.Context) (uint64, error) {
	ctx, cancel := c.bound(ctx)
	defer cancel()

	height, err := c.client.BlockNumber(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to get latest block number: %w", err)
	}
	return height, nil
}

// GetTransaction fetches a single transaction by hash. An unmined transaction
// comes back with a nil block number and an empty sender.
func (c *ChainClient) GetTransaction(ctx context.Context, hash string) (*entities.Transfer, error) {
	ctx, cancel := c.bound(ctx)
	defer cancel()

	txHash := common.HexToHash(hash)

	tx, isPending, err := c.client.TransactionByHash(ctx, txHash)
	if err != nil {
		return nil, fmt.Errorf("failed to get transaction %s: %w", txHash.Hex(), err)
	}

	transfer := &entities.Transfer{
		Hash:     txHash.Hex(),
		ValueWei: tx.Value(),
		Asset:    entities.AssetNative,
	}
	if tx.To() != nil {
		transfer.To = tx.To().Hex()
	}

	if isPending {
		return transfer, nil
	}

	receipt, err := c.client.TransactionReceipt(ctx, txHash)
	if err != nil {
		return nil, fmt.Errorf("failed to get receipt for %s: %w", txHash.Hex(), err)
	}

	transfer.BlockNumber = pointy.Int64(receipt.BlockNumber.Int64())

	sender, err := c.client.TransactionSender(ctx, tx, receipt.BlockHash, receipt.TransactionIndex)
	if err != nil {
		c.logger.Error("Failed to recover transaction sender", "error", err, "tx_hash", txHash.Hex())
	} else {
		transfer.From = sender.Hex()
	}

	return transfer, nil
}

// GetIncomingTransfers walks the block window and returns the plain native
// value transfers addressed to toAddress. Token transfers are contract calls
// with calldata and never show up here.
func (c *ChainClient) GetIncomingTransfers(ctx context.Context, toAddress string, fromBlock, toBlock uint64) ([]entities.Transfer, error) {
	var transfers []entities.Transfer

	for blockNum := fromBlock; blockNum <= toBlock; blockNum++ {
		callCtx, cancel := c.bound(ctx)
		block, err := c.client.BlockByNumber(callCtx, new(big.Int).SetUint64(blockNum))
		cancel()
		if err != nil {
			return transfers, fmt.Errorf("failed to get block %d: %w", blockNum, err)
		}

		for i, tx := range block.Transactions() {
			if tx.To() == nil || !strings.EqualFold(tx.To().Hex(), toAddress) {
				continue
			}
			if len(tx.Data()) != 0 || tx.Value().Sign() <= 0 {
				continue
			}

			senderCtx, cancel := c.bound(ctx)
			sender, err := c.client.TransactionSender(senderCtx, tx, block.Hash(), uint(i))
			cancel()
			if err != nil {
				c.logger.Error("Failed to get transaction sender", "error", err, "tx_hash", tx.Hash().Hex())
				continue
			}

			transfers = append(transfers, entities.Transfer{
				Hash:        tx.Hash().Hex(),
				From:        sender.Hex(),
				To:          tx.To().Hex(),
				ValueWei:    tx.Value(),
				BlockNumber: pointy.Int64(int64(blockNum)),
				Asset:       entities.AssetNative,
			})
		}
	}

	return transfers, nil
}
