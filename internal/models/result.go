package models

import "net/http"

// Result is the structured outcome of an API call. Expected failures such as
// a missing route or an unauthenticated caller are reported here rather than
// as Go errors.
type Result struct {
	Success bool   `json:"success"`
	Code    int    `json:"code"`
	Message string `json:"message,omitempty"`
	Data    any    `json:"data,omitempty"`
}

// OK wraps data in a successful result.
func OK(data any) Result {
	return Result{Success: true, Code: http.StatusOK, Data: data}
}

// Created wraps data in a 201 result.
func Created(data any) Result {
	return Result{Success: true, Code: http.StatusCreated, Data: data}
}

// Fail builds an unsuccessful result.
func Fail(code int, message string) Result {
	return Result{Success: false, Code: code, Message: message}
}
