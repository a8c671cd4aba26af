package errno

import "errors"

// Kind 错误分类，决定对账引擎如何处理
type Kind int

const (
	KindUnknown   Kind = iota
	KindTransient      // RPC 超时、数据库暂不可用: 放弃本轮该网络，下轮自然重试
	KindData           // 单条数据无法解析: 跳过该条，不影响批次
	KindFatal          // 配置错误: 需要人工介入
)

func (k Kind) String() string {
	switch k {
	case KindTransient:
		return "transient"
	case KindData:
		return "data"
	case KindFatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// Errno defines the error code logic
type Errno struct {
	Code    int
	Message string
	Kind    Kind
}

func (e Errno) Error() string {
	return e.Message
}

// Wrap 给底层错误打上错误码，errors.Is(err, ErrXxx) 依然成立
func Wrap(e Errno, cause error) error {
	if cause == nil {
		return e
	}
	return &wrapped{Errno: e, cause: cause}
}

type wrapped struct {
	Errno
	cause error
}

func (w *wrapped) Error() string { return w.Message + ": " + w.cause.Error() }

func (w *wrapped) Unwrap() error { return w.cause }

func (w *wrapped) Is(target error) bool {
	t, ok := target.(Errno)
	return ok && t.Code == w.Code
}

func (w *wrapped) As(target any) bool {
	if p, ok := target.(*Errno); ok {
		*p = w.Errno
		return true
	}
	return false
}

// KindOf 返回错误链上第一个错误码的分类，没有错误码的视为 transient
func KindOf(err error) Kind {
	if err == nil {
		return KindUnknown
	}
	var e Errno
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindTransient
}

// Decode tries to convert an error to Errno
func Decode(err error) (int, string) {
	if err == nil {
		return OK.Code, OK.Message
	}

	var e Errno
	if errors.As(err, &e) {
		return e.Code, err.Error()
	}
	return InternalServerError.Code, err.Error()
}

// Common Errors
var (
	OK                  = Errno{Code: 0, Message: "Success"}
	InternalServerError = Errno{Code: 10001, Message: "Internal server error"}
	ErrBind             = Errno{Code: 10002, Message: "Error occurred while binding the request body to the struct"}
	ErrDatabase         = Errno{Code: 10004, Message: "Database error", Kind: KindTransient}
)

// Reconciliation Errors (30000+)
var (
	ErrChainUnavailable  = Errno{Code: 30101, Message: "Chain RPC unavailable", Kind: KindTransient}
	ErrChainTimeout      = Errno{Code: 30102, Message: "Chain RPC timeout", Kind: KindTransient}
	ErrMalformedTransfer = Errno{Code: 30201, Message: "Malformed transfer event", Kind: KindData}
	ErrNoActiveWallets   = Errno{Code: 30301, Message: "No active main wallets configured", Kind: KindFatal}
	ErrInvalidConfig     = Errno{Code: 30302, Message: "Invalid reconciler configuration", Kind: KindFatal}
	ErrUnknownNetwork    = Errno{Code: 30303, Message: "No chain adapter for network", Kind: KindFatal}
	ErrLockHeld          = Errno{Code: 30401, Message: "Network pass already running elsewhere", Kind: KindTransient}
)
