package hal

import (
	"os"
	"runtime"
	"strings"
)

type BoardModel int

const (
	BoardUnknown BoardModel = iota
	BoardRPiZero
	BoardRPiZero2W
	BoardRPi3
	BoardRPi4
	BoardRPi5
	BoardRPiCM4
)

type BoardInfo struct {
	Model    BoardModel
	Name     string
	NumGPIO  int
	NumPWM   int
	NumADC   int
	CPUCores int
}

// DetectBoard reads the device-tree model string and maps it to a known
// board. Returns BoardUnknown info on anything it does not recognize.
func DetectBoard() BoardInfo {
	info := BoardInfo{
		Model:    BoardUnknown,
		Name:     "Unknown Board",
		NumGPIO:  40,
		NumPWM:   2,
		NumADC:   0,
		CPUCores: runtime.NumCPU(),
	}

	data, err := os.ReadFile("/proc/device-tree/model")
	if err != nil {
		return info
	}
	model := strings.TrimRight(string(data), "\x00")
	info.Name = model

	switch {
	case strings.Contains(model, "Pi Zero 2"):
		info.Model = BoardRPiZero2W
	case strings.Contains(model, "Pi Zero"):
		info.Model = BoardRPiZero
	case strings.Contains(model, "Pi 3"):
		info.Model = BoardRPi3
	case strings.Contains(model, "Pi 4"):
		info.Model = BoardRPi4
	case strings.Contains(model, "Pi 5"):
		info.Model = BoardRPi5
	case strings.Contains(model, "Compute Module 4"):
		info.Model = BoardRPiCM4
	}

	return info
}
