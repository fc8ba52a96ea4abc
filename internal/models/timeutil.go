package models

import (
	"math"

	"github.com/simularium/simularium-viewer-sub001/internal/config"
)

// CompareTimes 带容差比较两个时间, 容差为 timeStepSize * 0.01
// 返回 -1 (a < b), 0 (相等), 1 (a > b)
func CompareTimes(a, b, timeStepSize float64) int {
	tol := timeStepSize * config.TimeToleranceFactor
	if tol <= 0 {
		tol = config.FallbackTimeTolerance
	}
	if math.Abs(a-b) < tol {
		return 0
	}
	if a < b {
		return -1
	}
	return 1
}
