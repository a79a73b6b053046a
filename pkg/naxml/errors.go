package naxml

import (
	"errors"
	"fmt"
)

// Code identifies a parse or validation failure class. Codes are part of
// the operator-visible surface: they land in file logs and audit records.
type Code string

const (
	CodeInvalidXML          Code = "NAXML_INVALID_XML"
	CodeUnsupportedVersion  Code = "NAXML_UNSUPPORTED_VERSION"
	CodeUnknownDocumentType Code = "UNKNOWN_DOCUMENT_TYPE"
	CodeMissingField        Code = "MISSING_REQUIRED_FIELD"
	CodeInvalidFieldValue   Code = "INVALID_FIELD_VALUE"

	CodeFGMMissingGradeID     Code = "FGM_MISSING_GRADE_ID"
	CodeFGMInvalidTenderCode  Code = "FGM_INVALID_TENDER_CODE"
	CodeFGMInvalidSalesVolume Code = "FGM_INVALID_SALES_VOLUME"
	CodeFGMInvalidSalesAmount Code = "FGM_INVALID_SALES_AMOUNT"
	CodeFGMInvalidPeriod      Code = "FGM_INVALID_REPORT_PERIOD"

	CodeFPMMissingProductID  Code = "FPM_MISSING_PRODUCT_ID"
	CodeFPMMissingPositionID Code = "FPM_MISSING_POSITION_ID"
	CodeFPMInvalidVolume     Code = "FPM_INVALID_VOLUME"
	CodeFPMInvalidAmount     Code = "FPM_INVALID_AMOUNT"

	CodeMSMMissingSummaryCode Code = "MSM_MISSING_SUMMARY_CODE"
	CodeMSMInvalidAmount      Code = "MSM_INVALID_AMOUNT"
)

// Error is a typed parse/validation failure.
type Error struct {
	Code  Code
	Field string
	Msg   string
	Cause error
}

func (e *Error) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("naxml: %s: field %s: %s", e.Code, e.Field, e.Msg)
	}
	return fmt.Sprintf("naxml: %s: %s", e.Code, e.Msg)
}

func (e *Error) Unwrap() error { return e.Cause }

func errf(code Code, field, format string, args ...any) *Error {
	return &Error{Code: code, Field: field, Msg: fmt.Sprintf(format, args...)}
}

// ErrorCode extracts the typed code from err, or "" when err is not a
// naxml error.
func ErrorCode(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}
