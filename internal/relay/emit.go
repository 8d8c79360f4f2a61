package relay

import (
	"errors"

	"chatrelay/internal/crypto"
	"chatrelay/internal/service"
)

// Emit 是一条待投递的出站事件；Broadcast 为 true 时发给所有连接。
type Emit struct {
	Broadcast bool
	ConnID    string
	Event     string
	Payload   any
}

func ToConn(connID, event string, payload any) Emit {
	return Emit{ConnID: connID, Event: event, Payload: payload}
}

func ToAll(event string, payload any) Emit {
	return Emit{Broadcast: true, Event: event, Payload: payload}
}

// Result 是一次事件处理的结果。失败前已产生的 emit 仍会投递。
type Result struct {
	Event string
	Emits []Emit
	Err   error
}

func (r Result) Kind() Kind { return Classify(r.Err) }

type Kind string

const (
	KindOK                 Kind = "ok"
	KindValidation         Kind = "validation"
	KindDuplicate          Kind = "duplicate"
	KindCryptoIntegrity    Kind = "crypto_integrity"
	KindStorageUnavailable Kind = "storage_unavailable"
	KindNotFound           Kind = "not_found"
	KindInternal           Kind = "internal"
)

// Classify 把错误归入固定的分类，供日志与指标使用。
func Classify(err error) Kind {
	switch {
	case err == nil:
		return KindOK
	case errors.Is(err, service.ErrValidation):
		return KindValidation
	case errors.Is(err, service.ErrDuplicate):
		return KindDuplicate
	case errors.Is(err, crypto.ErrIntegrity):
		return KindCryptoIntegrity
	case errors.Is(err, service.ErrNotFound):
		return KindNotFound
	case errors.Is(err, service.ErrStorageUnavailable):
		return KindStorageUnavailable
	default:
		return KindInternal
	}
}
