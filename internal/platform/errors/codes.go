// Package errors provides structured error handling for codetrail services.
package errors

import "google.golang.org/grpc/codes"

// Code is a machine-readable error code.
type Code string

const (
	// CodeUnknown represents an unknown error.
	CodeUnknown Code = "UNKNOWN"

	// Ledger errors
	CodeLedgerNotInitialized Code = "LEDGER_NOT_INITIALIZED"
	CodeEntryInvalid         Code = "ENTRY_INVALID"
	CodeEntryTypeEmpty       Code = "ENTRY_TYPE_EMPTY"
	CodeImportInvalid        Code = "IMPORT_INVALID"

	// Storage errors
	CodeNotFound         Code = "NOT_FOUND"
	CodeStorageFailure   Code = "STORAGE_FAILURE"
	CodeSessionCompacted Code = "SESSION_ALREADY_COMPACTED"

	// Compaction errors
	CodeCompactionFailed  Code = "COMPACTION_FAILED"
	CodeIntegrityMismatch Code = "INTEGRITY_MISMATCH"
)

// GRPCCode maps domain codes to gRPC status codes.
func (c Code) GRPCCode() codes.Code {
	switch c {
	case CodeEntryInvalid,
		CodeEntryTypeEmpty,
		CodeImportInvalid:
		return codes.InvalidArgument
	case CodeNotFound:
		return codes.NotFound
	case CodeSessionCompacted:
		return codes.AlreadyExists
	case CodeLedgerNotInitialized:
		return codes.FailedPrecondition
	case CodeStorageFailure,
		CodeCompactionFailed:
		return codes.Internal
	case CodeIntegrityMismatch:
		return codes.DataLoss
	default:
		return codes.Unknown
	}
}
