//go:build linux
// +build linux

package main

import (
	"runtime"

	"github.com/openblinds/blindctl/internal/config"
	"github.com/openblinds/blindctl/internal/hal"
	"github.com/openblinds/blindctl/internal/logger"
)

func initHAL(cfg *config.Config) {
	if runtime.GOARCH == "arm64" || runtime.GOARCH == "arm" {
		rpiHAL, err := hal.NewRaspberryPiHAL(cfg.ADC.I2CBus, uint16(cfg.ADC.Address))
		if err != nil {
			logger.Sugar().Warnw("failed to initialize RPi HAL, falling back to mock", "error", err)
			hal.SetGlobalHAL(hal.NewMockHAL())
			return
		}
		logger.Sugar().Infow("Raspberry Pi HAL initialized", "board", rpiHAL.Info().Name)
		hal.SetGlobalHAL(rpiHAL)
	} else {
		logger.Sugar().Infow("non-ARM platform, using mock HAL")
		hal.SetGlobalHAL(hal.NewMockHAL())
	}
}
