package scheduler

import (
	"errors"
	"fmt"
)

var (
	ErrConfig     = errors.New("参数配置错误")
	ErrInput      = errors.New("输入数据错误")
	ErrEvaluation = errors.New("适应度计算错误")
	ErrRunFailure = errors.New("排班任务执行失败")

	ErrRunNotFound = errors.New("排班任务不存在")
	ErrRunFinished = errors.New("排班任务已结束")
	ErrShutdown    = errors.New("排班服务正在关闭")
)

// ConfigError 表示算法参数或日历配置不合法，任务不会开始
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("%s: %s %s", ErrConfig, e.Field, e.Reason)
}

func (e *ConfigError) Unwrap() error { return ErrConfig }

func configErrorf(field, format string, args ...any) error {
	return &ConfigError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

// InputError 表示实体数据无法构成有效的排班问题，任务不会开始
type InputError struct {
	Entity string
	ID     int64
	Reason string
}

func (e *InputError) Error() string {
	if e.ID != 0 {
		return fmt.Sprintf("%s: %s %d %s", ErrInput, e.Entity, e.ID, e.Reason)
	}
	return fmt.Sprintf("%s: %s %s", ErrInput, e.Entity, e.Reason)
}

func (e *InputError) Unwrap() error { return ErrInput }

func inputErrorf(entity string, id int64, format string, args ...any) error {
	return &InputError{Entity: entity, ID: id, Reason: fmt.Sprintf(format, args...)}
}

// EvaluationError 只影响单个染色体，该染色体适应度记为 0 并排在最后
type EvaluationError struct {
	Gene   int
	Reason string
}

func (e *EvaluationError) Error() string {
	if e.Gene >= 0 {
		return fmt.Sprintf("%s: 基因 %d %s", ErrEvaluation, e.Gene, e.Reason)
	}
	return fmt.Sprintf("%s: %s", ErrEvaluation, e.Reason)
}

func (e *EvaluationError) Unwrap() error { return ErrEvaluation }

// RunFailure 表示整个任务无法继续，已有的中间结果会被丢弃
type RunFailure struct {
	Generation int
	Reason     string
}

func (e *RunFailure) Error() string {
	return fmt.Sprintf("%s: 第 %d 代 %s", ErrRunFailure, e.Generation, e.Reason)
}

func (e *RunFailure) Unwrap() error { return ErrRunFailure }
