package wallet

import "errors"

// Service errors
var (
	ErrWalletNotFound     = errors.New("wallet not found")
	ErrInsufficientFunds  = errors.New("insufficient funds")
	ErrInvalidAmount      = errors.New("invalid amount")
	ErrDuplicateReference = errors.New("reference already processed")
	ErrLedgerUnavailable  = errors.New("ledger unavailable")
)
