package signals

import (
	"errors"
	"fmt"

	"auto-trader/pkg/types"
)

var (
	// ErrInsufficientHistory 序列长度不足以覆盖回看窗口
	ErrInsufficientHistory = errors.New("历史数据不足")
	// ErrMissingIndicator 必需指标为 NaN / 缺失
	ErrMissingIndicator = errors.New("指标缺失")
	// ErrInvalidConfig 规则配置非法
	ErrInvalidConfig = errors.New("规则配置非法")
)

// InsufficientHistoryError 历史数据不足
type InsufficientHistoryError struct {
	Required  int
	Available int
}

func (e *InsufficientHistoryError) Error() string {
	return fmt.Sprintf("%v: 需要 %d 个交易日, 实际 %d", ErrInsufficientHistory, e.Required, e.Available)
}

func (e *InsufficientHistoryError) Is(target error) bool {
	return target == ErrInsufficientHistory
}

// MissingIndicatorError 指标缺失，Offset=0 表示当前交易日
type MissingIndicatorError struct {
	Field  types.IndicatorField
	Offset int
}

func (e *MissingIndicatorError) Error() string {
	if e.Offset == 0 {
		return fmt.Sprintf("%v: %s", ErrMissingIndicator, e.Field)
	}
	return fmt.Sprintf("%v: %s[t-%d]", ErrMissingIndicator, e.Field, e.Offset)
}

func (e *MissingIndicatorError) Is(target error) bool {
	return target == ErrMissingIndicator
}

// ErrorKind 错误分类，用于审计和监控标签
func ErrorKind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrInsufficientHistory):
		return "insufficient_history"
	case errors.Is(err, ErrMissingIndicator):
		return "missing_indicator"
	case errors.Is(err, ErrInvalidConfig):
		return "invalid_config"
	}
	return "other"
}
