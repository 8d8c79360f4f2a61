package service

import "errors"

// 业务层通用错误，事件路由与 HTTP handler 都据此分类。
var (
	ErrValidation         = errors.New("validation failed")
	ErrDuplicate          = errors.New("duplicate entity")
	ErrNotFound           = errors.New("not found")
	ErrStorageUnavailable = errors.New("storage unavailable")
)
