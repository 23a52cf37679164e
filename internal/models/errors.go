package models

import "fmt"

// ErrorKind 错误分类
type ErrorKind int

const (
	KindNotFound ErrorKind = iota + 1
	KindOutOfRange
	KindInvalidRequest
	KindConflict
	KindUnsupported
)

// 协议错误码
const (
	CodeNoDevice       = "NO_DEVICE"
	CodeInvalidXPath   = "INVALID_XPATH"
	CodeAssetNotFound  = "ASSET_NOT_FOUND"
	CodeOutOfRange     = "OUT_OF_RANGE"
	CodeInvalidRequest = "INVALID_REQUEST"
	CodeAssetExists    = "ASSET_EXISTS"
	CodeUnsupported    = "UNSUPPORTED"
)

// Error 带分类和协议错误码的错误
type Error struct {
	Kind    ErrorKind
	Code    string
	Message string
}

func (e *Error) Error() string {
	return e.Message
}

// Is 同 Kind 即匹配，便于 errors.Is(err, ErrNotFound)
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && (t.Code == "" || t.Code == e.Code)
}

var (
	ErrNotFound       = &Error{Kind: KindNotFound, Message: "not found"}
	ErrOutOfRange     = &Error{Kind: KindOutOfRange, Message: "out of range"}
	ErrInvalidRequest = &Error{Kind: KindInvalidRequest, Message: "invalid request"}
	ErrConflict       = &Error{Kind: KindConflict, Message: "conflict"}
	ErrUnsupported    = &Error{Kind: KindUnsupported, Message: "unsupported"}
)

// NewError 创建错误
func NewError(kind ErrorKind, code string, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Code: code, Message: fmt.Sprintf(format, args...)}
}

// DeviceNotFound NO_DEVICE
func DeviceNotFound(key string) *Error {
	return NewError(KindNotFound, CodeNoDevice, "Could not find the device %s.", key)
}

// AssetNotFound ASSET_NOT_FOUND
func AssetNotFound(id string) *Error {
	return NewError(KindNotFound, CodeAssetNotFound, "Could not find asset: %s", id)
}
