// Package gain 在逻辑音量刻度 0..100 与设备增益之间换算
package gain

import "math"

const (
	MinLevel     = 0
	MaxLevel     = 100
	DefaultLevel = 50
)

// ClampLevel 把逻辑音量限制在 0..100
func ClampLevel(level int) int {
	if level < MinLevel {
		return MinLevel
	}
	if level > MaxLevel {
		return MaxLevel
	}
	return level
}

// DBFromLevel 逻辑音量换算为 dB：50 为 0 dB，0 与 100 分别为 -maxAbsDB 与 +maxAbsDB
func DBFromLevel(level int, maxAbsDB float64) float64 {
	fraction := float64(ClampLevel(level)-DefaultLevel) / float64(DefaultLevel)
	return fraction * maxAbsDB
}

// LevelFromDB 是 DBFromLevel 的逆运算，超出范围的增益取边界值
func LevelFromDB(db, maxAbsDB float64) int {
	if maxAbsDB <= 0 {
		return DefaultLevel
	}
	fraction := db / maxAbsDB
	return ClampLevel(int(math.Round(fraction*DefaultLevel)) + DefaultLevel)
}

// MillidB 把 dB 换算为设备使用的千分之一 dB 整数
func MillidB(db float64) int {
	return int(math.Round(db * 1000))
}

// ScaleLevel 把逻辑音量线性映射到设备原生范围 [min, max]
func ScaleLevel(level, min, max int) int {
	return min + int(math.Round(float64(ClampLevel(level))*float64(max-min)/float64(MaxLevel)))
}

// UnscaleLevel 是 ScaleLevel 的逆运算
func UnscaleLevel(value, min, max int) int {
	if max == min {
		return DefaultLevel
	}
	return ClampLevel(int(math.Round(float64(value-min) * float64(MaxLevel) / float64(max-min))))
}
