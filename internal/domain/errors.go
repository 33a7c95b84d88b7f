package domain

import "errors"

var (
	ErrInvalidAmount     = errors.New("invalid amount")
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrInvalidRecipient  = errors.New("invalid recipient")
	ErrSelfTransfer      = errors.New("self transfer")
	ErrTransferFailed    = errors.New("transfer failed")
	ErrNoFunds           = errors.New("no funds")
	ErrUnauthorized      = errors.New("unauthorized")
	ErrInvalidInterval   = errors.New("invalid interval")
	ErrUpkeepNotDue      = errors.New("upkeep not due")
)
