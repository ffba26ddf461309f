package ghttp

import "encoding/json"

type Error struct {
	StatusCode   int
	ResponseBody []byte
	cause        error
}

func NewError(statusCode int, body []byte, cause error) *Error {
	return &Error{
		StatusCode:   statusCode,
		ResponseBody: body,
		cause:        cause,
	}
}

func (e *Error) Cause() error {
	return e.cause
}

func (e *Error) Unwrap() error {
	return e.cause
}

// Message returns the "msg" field of a JSON error body, or the raw body.
func (e *Error) Message() string {
	if len(e.ResponseBody) == 0 {
		return e.cause.Error()
	}
	var body struct {
		Msg string `json:"msg"`
	}
	if err := json.Unmarshal(e.ResponseBody, &body); err != nil || body.Msg == "" {
		return string(e.ResponseBody)
	}
	return body.Msg
}

// Code returns the "code" field of a JSON error body, if any.
func (e *Error) Code() string {
	var body struct {
		Code string `json:"code"`
	}
	if err := json.Unmarshal(e.ResponseBody, &body); err != nil {
		return ""
	}
	return body.Code
}

func (e *Error) Error() string {
	if e.ResponseBody != nil {
		return e.cause.Error() + ": " + e.Message()
	}

	return e.cause.Error()
}
