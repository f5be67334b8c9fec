//go:build !linux
// +build !linux

package main

import (
	"github.com/openblinds/blindctl/internal/config"
	"github.com/openblinds/blindctl/internal/hal"
	"github.com/openblinds/blindctl/internal/logger"
)

func initHAL(_ *config.Config) {
	logger.Sugar().Infow("non-Linux platform, using mock HAL")
	hal.SetGlobalHAL(hal.NewMockHAL())
}
