package directory

import (
	"errors"
	"fmt"
	"net/http"
)

// 目录服务错误分类
var (
	ErrUnauthorized = errors.New("directory: unauthorized")
	ErrForbidden    = errors.New("directory: forbidden")
	ErrNotFound     = errors.New("directory: not found")
	ErrNetwork      = errors.New("directory: network error")
	ErrBadRequest   = errors.New("directory: bad request")
)

// APIError 一次目录请求的失败
type APIError struct {
	Method     string
	Path       string
	StatusCode int // 0 表示请求未得到响应
	Message    string
	Err        error
}

// Error implements the error interface
func (e *APIError) Error() string {
	if e.StatusCode == 0 {
		return fmt.Sprintf("directory %s %s: %v", e.Method, e.Path, e.Err)
	}
	if e.Message != "" {
		return fmt.Sprintf("directory %s %s: status %d: %s", e.Method, e.Path, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("directory %s %s: status %d", e.Method, e.Path, e.StatusCode)
}

// Unwrap implements errors.Unwrap
func (e *APIError) Unwrap() error {
	return e.Err
}

// Is 按状态码归类，支持 errors.Is(err, ErrUnauthorized) 等判断
func (e *APIError) Is(target error) bool {
	return target == e.Kind()
}

// Kind 返回错误分类
func (e *APIError) Kind() error {
	switch {
	case e.StatusCode == 0:
		return ErrNetwork
	case e.StatusCode == http.StatusUnauthorized:
		return ErrUnauthorized
	case e.StatusCode == http.StatusForbidden:
		return ErrForbidden
	case e.StatusCode == http.StatusNotFound:
		return ErrNotFound
	case e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500:
		return ErrNetwork
	default:
		return ErrBadRequest
	}
}

// UserMessage 面向用户的错误提示，每类错误单独一条
func UserMessage(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrUnauthorized):
		return "The directory rejected the API token. Check the configured directory token."
	case errors.Is(err, ErrForbidden):
		return "The directory token is valid but lacks permission to read teams and services."
	case errors.Is(err, ErrNotFound):
		return "The requested directory entry does not exist."
	case errors.Is(err, ErrNetwork):
		return "The directory service could not be reached. Check the network and try again."
	case errors.Is(err, ErrBadRequest):
		return "The directory refused the request."
	default:
		return "Directory request failed: " + err.Error()
	}
}
