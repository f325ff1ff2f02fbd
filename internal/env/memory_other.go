//go:build !linux

package env

func deviceMemory() float64 { return 0 }
