package coloyalty

import "errors"

var (
	ErrNotFound           = errors.New("not found")
	ErrBlacklisted        = errors.New("account is blocked")
	ErrInsufficientEscrow = errors.New("insufficient merchant escrow")
	ErrInsufficientPoints = errors.New("insufficient points")
	ErrReceiverNotFound   = errors.New("receiver not found")
	ErrSelfTransfer       = errors.New("cannot transfer points to yourself")
	ErrInvalidAmount      = errors.New("amount must be positive")
	ErrUnsupportedType    = errors.New("unsupported transaction type")
	ErrAlreadyCheckedIn   = errors.New("already checked in today")
	ErrNoSpins            = errors.New("no lucky spins left")
	ErrForbidden          = errors.New("forbidden")
	ErrOutOfStock         = errors.New("product is out of stock")
)

// Код причины отказа для клиента
func Reason(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrBlacklisted):
		return "BlacklistedActor"
	case errors.Is(err, ErrInsufficientEscrow):
		return "InsufficientMerchantEscrow"
	case errors.Is(err, ErrInsufficientPoints):
		return "InsufficientUserPoints"
	case errors.Is(err, ErrReceiverNotFound):
		return "ReceiverNotFound"
	case errors.Is(err, ErrSelfTransfer):
		return "SelfTransferRejected"
	case errors.Is(err, ErrInvalidAmount):
		return "InvalidAmount"
	case errors.Is(err, ErrUnsupportedType):
		return "UnsupportedType"
	case errors.Is(err, ErrAlreadyCheckedIn):
		return "AlreadyCheckedIn"
	case errors.Is(err, ErrNoSpins):
		return "NoLuckySpins"
	case errors.Is(err, ErrOutOfStock):
		return "OutOfStock"
	case errors.Is(err, ErrForbidden):
		return "Forbidden"
	case errors.Is(err, ErrNotFound):
		return "NotFound"
	}
	return "Internal"
}
