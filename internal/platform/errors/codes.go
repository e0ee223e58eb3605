// Package errors provides structured domain errors with machine-readable codes.
package errors

import "google.golang.org/grpc/codes"

// Code is a machine-readable error code.
type Code string

const (
	// CodeUnknown represents an unknown error.
	CodeUnknown Code = "UNKNOWN"

	// Validation errors
	CodeOwnerEmpty          Code = "OWNER_EMPTY"
	CodeRecordKindInvalid   Code = "RECORD_KIND_INVALID"
	CodeAmountInvalid       Code = "AMOUNT_INVALID"
	CodeAmountUnparseable   Code = "AMOUNT_UNPARSEABLE"
	CodeTaxTypeInvalid      Code = "TAX_TYPE_INVALID"
	CodeTaxInputMissing     Code = "TAX_INPUT_MISSING"
	CodeWHTUnknownTransaction Code = "WHT_UNKNOWN_TRANSACTION_TYPE"
	CodeCorrectionNoFields  Code = "CORRECTION_NO_FIELDS"

	// Lifecycle state errors
	CodeRecordNotActive       Code = "RECORD_NOT_ACTIVE"
	CodeRecordArchived        Code = "RECORD_ARCHIVED"
	CodeRecordNotArchived     Code = "RECORD_NOT_ARCHIVED"
	CodeRecordAlreadyArchived Code = "RECORD_ALREADY_ARCHIVED"
	CodeCalculationFinalized  Code = "CALCULATION_FINALIZED"
	CodeNotACalculation       Code = "NOT_A_TAX_CALCULATION"

	// Finalization errors
	CodeAlreadyFinalized Code = "ALREADY_FINALIZED"

	// Concurrency errors
	CodeCorrectionConflict Code = "CORRECTION_CONFLICT"

	// Missing-resource errors
	CodeRecordNotFound      Code = "RECORD_NOT_FOUND"
	CodeRuleVersionNotFound Code = "RULE_VERSION_NOT_FOUND"
)

// GRPCCode maps domain codes to gRPC status codes for the calling layer.
func (c Code) GRPCCode() codes.Code {
	switch c {
	// InvalidArgument - validation failures, bad input
	case CodeOwnerEmpty,
		CodeRecordKindInvalid,
		CodeAmountInvalid,
		CodeAmountUnparseable,
		CodeTaxTypeInvalid,
		CodeTaxInputMissing,
		CodeWHTUnknownTransaction,
		CodeCorrectionNoFields:
		return codes.InvalidArgument

	// FailedPrecondition - lifecycle state doesn't allow the operation
	case CodeRecordNotActive,
		CodeRecordArchived,
		CodeRecordNotArchived,
		CodeRecordAlreadyArchived,
		CodeCalculationFinalized,
		CodeNotACalculation,
		CodeAlreadyFinalized:
		return codes.FailedPrecondition

	// Aborted - lost a concurrent race; caller must re-fetch before retrying
	case CodeCorrectionConflict:
		return codes.Aborted

	// NotFound - resource doesn't exist
	case CodeRecordNotFound,
		CodeRuleVersionNotFound:
		return codes.NotFound

	default:
		return codes.Internal
	}
}

// IsValidation reports whether err carries a validation code.
func IsValidation(err error) bool {
	return GetCode(err).GRPCCode() == codes.InvalidArgument
}

// IsInvalidState reports whether err carries a lifecycle-state code other
// than the finalization repeat.
func IsInvalidState(err error) bool {
	code := GetCode(err)
	return code.GRPCCode() == codes.FailedPrecondition && code != CodeAlreadyFinalized
}

// IsConflict reports whether err indicates a lost concurrent race.
func IsConflict(err error) bool {
	return GetCode(err) == CodeCorrectionConflict
}

// IsAlreadyFinalized reports whether err indicates a repeated finalize call.
func IsAlreadyFinalized(err error) bool {
	return GetCode(err) == CodeAlreadyFinalized
}

// IsNotFound reports whether err indicates a missing resource.
func IsNotFound(err error) bool {
	return GetCode(err).GRPCCode() == codes.NotFound
}
