package scheduler

import (
	"fmt"
	"math"
)

// Fitness 是染色体的评估结果
type Fitness struct {
	Value      float64 // [0, 100]
	Hard       int
	Soft       float64
	Violations []Violation
	Err        error
}

func (f Fitness) Feasible() bool {
	return f.Err == nil && f.Hard == 0
}

// Better 判断 f 是否严格排在 o 之前：先比较硬约束违反数，再比较适应度
// 计算出错的染色体排在最后
func (f Fitness) Better(o Fitness) bool {
	if f.Err != nil {
		return false
	}
	if o.Err != nil {
		return true
	}
	if f.Hard != o.Hard {
		return f.Hard < o.Hard
	}
	return f.Value > o.Value
}

type evaluator struct {
	catalog          *Catalog
	conflictWeight   float64
	preferenceWeight float64
}

/**
 * 计算染色体的适应度
 * value = 100 - conflictWeight * (hard / genes) * 100 - preferenceWeight * (soft / genes) * 100
 * 其中:
 * 		1. hard 为硬约束的违反次数
 * 		2. soft 为软约束惩罚之和，按课时数归一化后不超过 1
 * 		3. 结果截断到 [0, 100]
 */
func (e *evaluator) evaluate(genes []Gene) (f Fitness) {
	defer func() {
		if r := recover(); r != nil {
			f = Fitness{Err: &EvaluationError{Gene: -1, Reason: fmt.Sprintf("panic: %v", r)}}
		}
	}()

	violations, err := e.catalog.Evaluate(genes)
	if err != nil {
		return Fitness{Err: err}
	}

	hard, soft := 0, 0.0
	for _, v := range violations {
		if v.Hard {
			hard++
		} else {
			soft += v.Penalty
		}
	}

	n := float64(len(genes))
	value := 100.0
	if n > 0 {
		value -= e.conflictWeight * float64(hard) / n * 100
		value -= e.preferenceWeight * math.Min(1, soft/n) * 100
	}

	return Fitness{
		Value:      math.Max(0, math.Min(100, value)),
		Hard:       hard,
		Soft:       soft,
		Violations: violations,
	}
}
