package errors

import stderrors "errors"

// Settlement failure kinds. Every failure aborts the enclosing unit of
// execution; callers distinguish kinds with errors.Is.
var (
	ErrInvalidProtocol       = stderrors.New("flash: invalid protocol")
	ErrAmountTooLow          = stderrors.New("flash: amount too low")
	ErrInsufficientRepayment = stderrors.New("flash: insufficient repayment")
	ErrPaused                = stderrors.New("flash: paused")
	ErrForbidden             = stderrors.New("flash: forbidden")
	ErrUnallowedAsset        = stderrors.New("flash: asset not allowed")
	ErrIndexOutOfBounds      = stderrors.New("flash: index out of bounds")
	ErrInvalidFeeRate        = stderrors.New("flash: invalid fee rate")
	ErrAssetTypeMismatch     = stderrors.New("flash: asset type mismatch")
)

// Invariants enforced by the execution environment itself.
var (
	ErrLoanOutstanding       = stderrors.New("flash: loan ticket not settled")
	ErrReceiptInvalid        = stderrors.New("flash: receipt unknown or already consumed")
	ErrInsufficientLiquidity = stderrors.New("flash: insufficient liquidity")
	ErrAmountOverflow        = stderrors.New("flash: amount overflow")
)

var kinds = []struct {
	err  error
	name string
}{
	{ErrInvalidProtocol, "InvalidProtocol"},
	{ErrAmountTooLow, "AmountTooLow"},
	{ErrInsufficientRepayment, "InsufficientRepayment"},
	{ErrPaused, "Paused"},
	{ErrForbidden, "Forbidden"},
	{ErrUnallowedAsset, "UnallowedAsset"},
	{ErrIndexOutOfBounds, "IndexOutOfBounds"},
	{ErrInvalidFeeRate, "InvalidFeeRate"},
	{ErrAssetTypeMismatch, "AssetTypeMismatch"},
	{ErrLoanOutstanding, "LoanOutstanding"},
	{ErrReceiptInvalid, "ReceiptInvalid"},
	{ErrInsufficientLiquidity, "InsufficientLiquidity"},
	{ErrAmountOverflow, "AmountOverflow"},
}

// Kind returns the taxonomy name of err, "" for nil and "Internal" for
// errors outside the taxonomy.
func Kind(err error) string {
	if err == nil {
		return ""
	}
	for _, k := range kinds {
		if stderrors.Is(err, k.err) {
			return k.name
		}
	}
	return "Internal"
}
