package adapter

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rlp"
	"github.com/holiman/uint256"
	"lukechampine.com/blake3"

	flasherrors "flashsettle/core/errors"
	"flashsettle/core/state"
	"flashsettle/native/bank"
)

// PoolAddress derives the ledger account holding a back-end's liquidity for
// the named market.
func PoolAddress(location, market string) common.Address {
	return common.BytesToAddress(ethcrypto.Keccak256([]byte("flash/pool/" + location + "/" + market)))
}

// Digest binds a ticket handle to the ticket's contents.
func Digest(fields ...interface{}) ([32]byte, error) {
	encoded, err := rlp.EncodeToBytes(fields)
	if err != nil {
		return [32]byte{}, fmt.Errorf("adapter: encode ticket: %w", err)
	}
	return blake3.Sum256(encoded), nil
}

// Lend withdraws amount from the pool, reporting a shortfall as
// ErrInsufficientLiquidity.
func Lend(ledger Ledger, pool common.Address, asset string, amount *uint256.Int) (bank.Coin, error) {
	funds, err := ledger.Withdraw(pool, asset, amount)
	if errors.Is(err, bank.ErrInsufficientBalance) {
		return bank.Coin{}, fmt.Errorf("%w: %v", flasherrors.ErrInsufficientLiquidity, err)
	}
	return funds, err
}

// CheckRepayment fails with ErrInsufficientRepayment when repayment is worth
// less than due.
func CheckRepayment(repayment bank.Coin, due *uint256.Int) error {
	if value := repayment.Value(); value.Lt(due) {
		return fmt.Errorf("%w: repaid %s, due %s", flasherrors.ErrInsufficientRepayment, value.Dec(), due.Dec())
	}
	return nil
}

// Collect retires the ticket, moves due from repayment into the pool and
// returns what is left of repayment.
func Collect(ledger Ledger, tracker Tracker, pool common.Address, handle state.ResourceID, digest [32]byte, due *uint256.Int, repayment bank.Coin) (bank.Coin, error) {
	if err := CheckRepayment(repayment, due); err != nil {
		return bank.Coin{}, err
	}
	if err := tracker.ConsumeResource(handle, digest); err != nil {
		return bank.Coin{}, err
	}
	owed, err := repayment.Split(due)
	if err != nil {
		return bank.Coin{}, err
	}
	if err := ledger.Deposit(pool, owed); err != nil {
		return bank.Coin{}, err
	}
	return repayment, nil
}
