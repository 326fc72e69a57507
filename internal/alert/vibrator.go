package alert

// Vibrator triggers a haptic pattern on the candidate's device. Patterns are
// alternating wait/vibrate durations in milliseconds. Calls must not block.
type Vibrator interface {
	Vibrate(pattern []int)
}

type VibratorFunc func(pattern []int)

func (f VibratorFunc) Vibrate(pattern []int) { f(pattern) }

// Nop discards every pattern.
var Nop Vibrator = VibratorFunc(func([]int) {})
