package domain

import "strings"

// Transfer codes as stored on the ledger record. Code 0 is reserved for
// UNKNOWN and is never written.
const (
	CodeUnknown    uint16 = 0
	CodeDeposit    uint16 = 1
	CodeWithdrawal uint16 = 2
	CodeRefund     uint16 = 3
)

var typeToCode = map[TransferType]uint16{
	TransferTypeDeposit:    CodeDeposit,
	TransferTypeWithdrawal: CodeWithdrawal,
	TransferTypeRefund:     CodeRefund,
	TransferTypeUnknown:    CodeUnknown,
}

var codeToType = map[uint16]TransferType{
	CodeDeposit:    TransferTypeDeposit,
	CodeWithdrawal: TransferTypeWithdrawal,
	CodeRefund:     TransferTypeRefund,
	CodeUnknown:    TransferTypeUnknown,
}

// CodeFor returns the stored code for t. Types outside the registry map to CodeUnknown.
func CodeFor(t TransferType) uint16 {
	if code, ok := typeToCode[t]; ok {
		return code
	}
	return CodeUnknown
}

// TypeFor returns the transfer type for a stored code. Codes written by a newer
// version of the system read back as UNKNOWN.
func TypeFor(code uint16) TransferType {
	if t, ok := codeToType[code]; ok {
		return t
	}
	return TransferTypeUnknown
}

// ParseTransferType reads a case-insensitive type name.
func ParseTransferType(s string) (TransferType, bool) {
	t := TransferType(strings.ToUpper(strings.TrimSpace(s)))
	_, ok := typeToCode[t]
	return t, ok
}
