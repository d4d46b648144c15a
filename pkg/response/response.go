package response

import "errors"

type Response struct {
	ResponseError `json:"error,omitzero"`
}

type ResponseError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

//Error Codes
type ErrCode string

var (
	FAILED_REQUEST ErrCode = "REQUEST_FAILED"
	BAD_REQUEST    ErrCode = "FAILED_TO_DECODE"
	VALIDATION     ErrCode = "VALIDATION_FAILED"
	NOT_FOUND      ErrCode = "NOT_FOUND"
	NOT_AUTHORIZED ErrCode = "NOT_AUTHORIZED"
	LOCKED         ErrCode = "LOCKED"
	CONFLICT       ErrCode = "CONFLICT"
	CAPACITY       ErrCode = "SLOT_FULL"
	STATE          ErrCode = "INVALID_TRANSITION"
)

var (
	ErrBadRequest    = errors.New("bad request")
	ErrValidation    = errors.New("validation failed")
	ErrNotFound      = errors.New("resource not found")
	ErrNotAuthorized = errors.New("actor not authorized")
	ErrLocked        = errors.New("resource is locked")
	ErrConflict      = errors.New("conflict")
	ErrCapacity      = errors.New("slot is full")
	ErrState         = errors.New("transition not allowed")
)

func Error(code, msg string) Response {
	return Response{
		ResponseError: ResponseError{
			Code:    code,
			Message: msg,
		},
	}
}
