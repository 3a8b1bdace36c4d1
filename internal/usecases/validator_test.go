package usecases

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"math/big"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.openly.dev/pointy"

	cfg "github.com/opendev/membership-app/backend/config"
	"github.com/opendev/membership-app/backend/internal/entities"
)

const (
	testReceivingAddress = "0x742d35Cc6634C0532925a3b844Bc454e4438f44e"
	testFeeWei           = "2000000000000000" // 0.002 ETH
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testConfig() *cfg.Config {
	config := &cfg.Config{}
	config.Blockchain.RPCURL = "http://localhost:8545"
	config.Payments.ReceivingAddress = testReceivingAddress
	config.Payments.MembershipFeeWei = testFeeWei
	config.Payments.ScanBlockWindow = 100
	return config
}

func testHash(fill string) string {
	return "0x" + strings.Repeat(fill, 64/len(fill))
}

func confirmedTransfer(hash string, valueWei *big.Int) *entities.Transfer {
	return &entities.Transfer{
		Hash:        hash,
		From:        "0x1111111111111111111111111111111111111111",
		To:          testReceivingAddress,
		ValueWei:    valueWei,
		BlockNumber: pointy.Int64(19000000),
		Asset:       entities.AssetNative,
	}
}

func newTestValidator(config *cfg.Config, ledger *fakeLedger, users *fakeUserStore, memberships *fakeMembershipStore) *ValidatorService {
	activator := NewActivationService(testLogger(), users, memberships, stubTransactor{})
	return NewValidatorService(testLogger(), config, ledger, memberships, users, activator)
}

func claimantFor(githubLogin string) Claimant {
	return Claimant{Identity: &entities.NewIdentity{
		Username:    githubLogin,
		GithubLogin: &githubLogin,
	}}
}

func TestValidateTransactionRejectsMalformedHash(t *testing.T) {
	validator := newTestValidator(testConfig(), &fakeLedger{}, newFakeUserStore(), newFakeMembershipStore())

	for _, hash := range []string{"", "0x123", "not-a-hash", testHash("a") + "ff", "0x" + strings.Repeat("zz", 32)} {
		_, err := validator.ValidateAndActivate(context.Background(), ValidationRequest{
			TransactionHash: hash,
			Claimant:        claimantFor("octocat"),
		})
		require.Error(t, err, "hash %q", hash)
		assert.Equal(t, KindValidation, KindOf(err))
	}
}

func TestValidateTransactionAlreadyProcessed(t *testing.T) {
	hash := testHash("ab")
	memberships := newFakeMembershipStore(entities.Membership{TxHash: hash})
	validator := newTestValidator(testConfig(), &fakeLedger{}, newFakeUserStore(), memberships)

	_, err := validator.ValidateAndActivate(context.Background(), ValidationRequest{
		TransactionHash: hash,
		Claimant:        claimantFor("octocat"),
	})
	require.Error(t, err)
	assert.Equal(t, KindConflict, KindOf(err))
	assert.Equal(t, "Transaction already processed", UserMessage(err))
}

func TestValidateTransactionClaimantAlreadyPaid(t *testing.T) {
	users := newFakeUserStore(entities.User{
		ID:               "user-1",
		Username:         "octocat",
		GithubLogin:      pointy.String("octocat"),
		MembershipStatus: entities.MembershipPaid,
	})
	validator := newTestValidator(testConfig(), &fakeLedger{}, users, newFakeMembershipStore())

	_, err := validator.ValidateAndActivate(context.Background(), ValidationRequest{
		TransactionHash: testHash("ab"),
		Claimant:        claimantFor("octocat"),
	})
	require.Error(t, err)
	assert.Equal(t, KindConflict, KindOf(err))
	assert.Equal(t, "User already has paid membership", UserMessage(err))
}

func TestValidateTransactionMissingConfiguration(t *testing.T) {
	config := testConfig()
	config.Payments.ReceivingAddress = ""
	validator := newTestValidator(config, &fakeLedger{}, newFakeUserStore(), newFakeMembershipStore())

	_, err := validator.ValidateAndActivate(context.Background(), ValidationRequest{
		TransactionHash: testHash("ab"),
		Claimant:        claimantFor("octocat"),
	})
	require.Error(t, err)
	assert.Equal(t, KindConfiguration, KindOf(err))
}

func TestValidateTransactionChainQueryFailure(t *testing.T) {
	ledger := &fakeLedger{txErr: errors.New("rpc: connection refused")}
	validator := newTestValidator(testConfig(), ledger, newFakeUserStore(), newFakeMembershipStore())

	_, err := validator.ValidateAndActivate(context.Background(), ValidationRequest{
		TransactionHash: testHash("ab"),
		Claimant:        claimantFor("octocat"),
	})
	require.Error(t, err)
	assert.Equal(t, KindChainQuery, KindOf(err))
	// Provider detail stays server-side.
	assert.Equal(t, "Failed to query transaction from chain", UserMessage(err))
}

func TestValidateTransactionUnconfirmed(t *testing.T) {
	hash := testHash("ab")
	transfer := confirmedTransfer(hash, big.NewInt(2000000000000000))
	transfer.BlockNumber = nil

	ledger := &fakeLedger{byHash: map[string]*entities.Transfer{strings.ToLower(hash): transfer}}
	validator := newTestValidator(testConfig(), ledger, newFakeUserStore(), newFakeMembershipStore())

	_, err := validator.ValidateAndActivate(context.Background(), ValidationRequest{
		TransactionHash: hash,
		Claimant:        claimantFor("octocat"),
	})
	require.Error(t, err)
	assert.Equal(t, KindUnconfirmed, KindOf(err))
	assert.Equal(t, "Transaction not yet confirmed", UserMessage(err))
}

func TestValidateTransactionWrongAmount(t *testing.T) {
	hash := testHash("ab")
	// 0.001 ETH instead of the expected 0.002
	transfer := confirmedTransfer(hash, big.NewInt(1000000000000000))

	ledger := &fakeLedger{byHash: map[string]*entities.Transfer{strings.ToLower(hash): transfer}}
	validator := newTestValidator(testConfig(), ledger, newFakeUserStore(), newFakeMembershipStore())

	_, err := validator.ValidateAndActivate(context.Background(), ValidationRequest{
		TransactionHash: hash,
		Claimant:        claimantFor("octocat"),
	})
	require.Error(t, err)
	assert.Equal(t, KindValidation, KindOf(err))
	assert.Equal(t, "Invalid amount. Expected 0.002 ETH", UserMessage(err))
}

func TestValidateTransactionWrongRecipient(t *testing.T) {
	hash := testHash("ab")
	transfer := confirmedTransfer(hash, big.NewInt(2000000000000000))
	transfer.To = "0x9999999999999999999999999999999999999999"

	ledger := &fakeLedger{byHash: map[string]*entities.Transfer{strings.ToLower(hash): transfer}}
	validator := newTestValidator(testConfig(), ledger, newFakeUserStore(), newFakeMembershipStore())

	_, err := validator.ValidateAndActivate(context.Background(), ValidationRequest{
		TransactionHash: hash,
		Claimant:        claimantFor("octocat"),
	})
	require.Error(t, err)
	assert.Equal(t, "Invalid recipient address", UserMessage(err))
}

func TestValidateTransactionActivatesMembership(t *testing.T) {
	hash := testHash("ab")
	ledger := &fakeLedger{byHash: map[string]*entities.Transfer{
		strings.ToLower(hash): confirmedTransfer(hash, big.NewInt(2000000000000000)),
	}}
	users := newFakeUserStore()
	memberships := newFakeMembershipStore()
	validator := newTestValidator(testConfig(), ledger, users, memberships)

	result, err := validator.ValidateAndActivate(context.Background(), ValidationRequest{
		TransactionHash: hash,
		Claimant:        claimantFor("octocat"),
	})
	require.NoError(t, err)
	require.NotEmpty(t, result.UserID)
	assert.Equal(t, "Membership activated successfully", result.Message)

	user, err := users.FindUserByID(context.Background(), result.UserID)
	require.NoError(t, err)
	require.NotNil(t, user)
	assert.Equal(t, entities.MembershipPaid, user.MembershipStatus)
	require.NotNil(t, user.WalletAddress)
	assert.Equal(t, "0x1111111111111111111111111111111111111111", *user.WalletAddress)
	assert.Equal(t, 1, memberships.count())

	// The same hash a second time resolves to the idempotent conflict.
	_, err = validator.ValidateAndActivate(context.Background(), ValidationRequest{
		TransactionHash: hash,
		Claimant:        claimantFor("someone-else"),
	})
	require.Error(t, err)
	assert.Equal(t, KindConflict, KindOf(err))
	assert.Equal(t, "Transaction already processed", UserMessage(err))
	assert.Equal(t, 1, memberships.count())
}

func TestValidateTransactionConcurrentDuplicate(t *testing.T) {
	hash := testHash("cd")
	ledger := &fakeLedger{byHash: map[string]*entities.Transfer{
		strings.ToLower(hash): confirmedTransfer(hash, big.NewInt(2000000000000000)),
	}}
	users := newFakeUserStore()
	memberships := newFakeMembershipStore()
	validator := newTestValidator(testConfig(), ledger, users, memberships)

	const attempts = 2

	var wg sync.WaitGroup
	results := make([]error, attempts)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, results[i] = validator.ValidateAndActivate(context.Background(), ValidationRequest{
				TransactionHash: hash,
				Claimant:        claimantFor("octocat"),
			})
		}(i)
	}
	wg.Wait()

	successes, conflicts := 0, 0
	for _, err := range results {
		switch {
		case err == nil:
			successes++
		case KindOf(err) == KindConflict:
			conflicts++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}

	assert.Equal(t, 1, successes, "exactly one request may create the membership")
	assert.Equal(t, attempts-1, conflicts)
	assert.Equal(t, 1, memberships.count(), "never two membership rows for one hash")
}
