package consensus

import "fmt"

type ErrorCode string

const (
	SC_MISSING              ErrorCode = "SC_MISSING"
	SC_ALREADY_EXISTS       ErrorCode = "SC_ALREADY_EXISTS"
	SC_NOT_CEASED           ErrorCode = "SC_NOT_CEASED"
	SC_NO_CSW_SUPPORT       ErrorCode = "SC_NO_CSW_SUPPORT"
	CSW_NULLIFIER_REUSED    ErrorCode = "CSW_NULLIFIER_REUSED"
	PROOF_FAILED            ErrorCode = "PROOF_FAILED"
	QUALITY_REJECTED        ErrorCode = "QUALITY_REJECTED"
	EPOCH_INVALID           ErrorCode = "EPOCH_INVALID"
	END_EPOCH_BLOCK_INVALID ErrorCode = "END_EPOCH_BLOCK_INVALID"
	BALANCE_EXCEEDED        ErrorCode = "BALANCE_EXCEEDED"
	UNKNOWN_OUTPUT_TYPE     ErrorCode = "UNKNOWN_OUTPUT_TYPE"
	INTERNAL_ASSERTION      ErrorCode = "INTERNAL_ASSERTION"
)

type StateError struct {
	Code ErrorCode
	Msg  string
}

func (e *StateError) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Msg == "" {
		return string(e.Code)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Msg)
}

func Errf(code ErrorCode, format string, args ...any) error {
	return &StateError{Code: code, Msg: fmt.Sprintf(format, args...)}
}

func scerr(code ErrorCode, msg string) error {
	return &StateError{Code: code, Msg: msg}
}

// ErrCode extracts the ErrorCode carried by err, or "" for foreign errors.
func ErrCode(err error) ErrorCode {
	if se, ok := err.(*StateError); ok {
		return se.Code
	}
	return ""
}
