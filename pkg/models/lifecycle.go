package models

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

var (
	ErrInvalidTransition  = errors.New("invalid state transition")
	ErrOutstandingBalance = errors.New("contract has an outstanding balance")
)

// MayClose reports whether the contract can be closed given its outstanding balance.
func (c Contract) MayClose(outstanding decimal.Decimal) bool {
	return c.State == ContractStateActive && !outstanding.IsPositive()
}

// Close returns the contract in CLOSED state. Remaining balance is never waived.
func (c Contract) Close(outstanding decimal.Decimal, now time.Time) (Contract, error) {
	if c.State != ContractStateActive {
		return c, fmt.Errorf("%w: cannot close a %s contract", ErrInvalidTransition, c.State)
	}
	if outstanding.IsPositive() {
		return c, fmt.Errorf("%w: %s still owed", ErrOutstandingBalance, outstanding.StringFixed(2))
	}
	c.State = ContractStateClosed
	c.UpdatedAt = now
	return c, nil
}

// Cancel, Return and Void end an ACTIVE contract at any balance and stamp the cancellation date.
func (c Contract) Cancel(now time.Time) (Contract, error) {
	return c.terminate(ContractStateCancelled, now)
}

func (c Contract) Return(now time.Time) (Contract, error) {
	return c.terminate(ContractStateReturned, now)
}

func (c Contract) Void(now time.Time) (Contract, error) {
	return c.terminate(ContractStateVoided, now)
}

func (c Contract) terminate(to ContractState, now time.Time) (Contract, error) {
	if c.State != ContractStateActive {
		return c, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, c.State, to)
	}
	on := DateOf(now)
	c.State = to
	c.CancellationDate = &on
	c.UpdatedAt = now
	return c, nil
}

// Sell marks an available lot as sold.
func (l Lot) Sell(now time.Time) (Lot, error) {
	if l.Status != LotStatusAvailable {
		return l, fmt.Errorf("%w: lot is %s", ErrInvalidTransition, l.Status)
	}
	l.Status = LotStatusSold
	l.UpdatedAt = now
	return l, nil
}

// Release puts a lot back on the market.
func (l Lot) Release(now time.Time) Lot {
	l.Status = LotStatusAvailable
	l.UpdatedAt = now
	return l
}
