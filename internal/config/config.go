package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// Config holds all configuration for the controller
type Config struct {
	Pins     PinsConfig     `mapstructure:"pins"`
	Motor    MotorConfig    `mapstructure:"motor"`
	Serial   SerialConfig   `mapstructure:"serial"`
	MQTT     MQTTConfig     `mapstructure:"mqtt"`
	API      APIConfig      `mapstructure:"api"`
	Database DatabaseConfig `mapstructure:"database"`
	ADC      ADCConfig      `mapstructure:"adc"`
	Logger   LoggerConfig   `mapstructure:"logger"`
}

// PinsConfig maps the controller's BCM pin assignments
type PinsConfig struct {
	Hall1 int `mapstructure:"hall1"` // hall sensor 1 input
	Hall2 int `mapstructure:"hall2"` // hall sensor 2 input
	Low1  int `mapstructure:"low1"`  // H-bridge low-side PWM, down
	Low2  int `mapstructure:"low2"`  // H-bridge low-side PWM, up
	High1 int `mapstructure:"high1"` // H-bridge high-side gate, up
	High2 int `mapstructure:"high2"` // H-bridge high-side gate, down
}

// MotorConfig contains runtime motion tunables
type MotorConfig struct {
	SlowdownFactor      int    `mapstructure:"slowdown_factor"`
	MinSlowdownSpeed    int    `mapstructure:"min_slowdown_speed"`
	PWMFrequency        int    `mapstructure:"pwm_frequency"`
	CalibrationSchedule string `mapstructure:"calibration_schedule"` // cron spec, empty = disabled
}

// SerialConfig contains the UART command link settings
type SerialConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Port    string `mapstructure:"port"`
	Baud    int    `mapstructure:"baud"`
}

// MQTTConfig contains the radio-link broker settings
type MQTTConfig struct {
	Enabled        bool   `mapstructure:"enabled"`
	Broker         string `mapstructure:"broker"`
	ClientID       string `mapstructure:"client_id"`
	Username       string `mapstructure:"username"`
	Password       string `mapstructure:"password"`
	CommandTopic   string `mapstructure:"command_topic"`
	ResponseTopic  string `mapstructure:"response_topic"`
	StatusTopic    string `mapstructure:"status_topic"`
	StatusInterval int    `mapstructure:"status_interval"` // seconds, 0 = disabled
}

// APIConfig contains HTTP server settings
type APIConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Host    string `mapstructure:"host"`
	Port    int    `mapstructure:"port"`
}

// DatabaseConfig contains the settings-store location
type DatabaseConfig struct {
	Path string `mapstructure:"path"`
}

// ADCConfig contains the battery-monitor sampling settings
type ADCConfig struct {
	I2CBus         string  `mapstructure:"i2c_bus"`
	Address        int     `mapstructure:"address"`
	Channel        int     `mapstructure:"channel"`
	Divider        float64 `mapstructure:"divider"` // external voltage-divider ratio
	SampleInterval int     `mapstructure:"sample_interval"` // seconds
}

// LoggerConfig contains logging settings
type LoggerConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	Dir    string `mapstructure:"dir"`
}

// Load reads configuration from file and environment variables
func Load(configPath string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("./configs")
		v.AddConfigPath(".")
		v.AddConfigPath(getConfigDir())
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		// Config file not found; using defaults
	}

	v.SetEnvPrefix("BLINDCTL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	// Default pin map matches the replacement control-board layout.
	v.SetDefault("pins.hall1", 17)
	v.SetDefault("pins.hall2", 27)
	v.SetDefault("pins.low1", 12)
	v.SetDefault("pins.low2", 13)
	v.SetDefault("pins.high1", 23)
	v.SetDefault("pins.high2", 24)

	v.SetDefault("motor.slowdown_factor", 8)
	v.SetDefault("motor.min_slowdown_speed", 3)
	v.SetDefault("motor.pwm_frequency", 1000)
	v.SetDefault("motor.calibration_schedule", "")

	v.SetDefault("serial.enabled", true)
	v.SetDefault("serial.port", "/dev/ttyAMA0")
	v.SetDefault("serial.baud", 115200)

	v.SetDefault("mqtt.enabled", false)
	v.SetDefault("mqtt.broker", "tcp://localhost:1883")
	v.SetDefault("mqtt.client_id", "")
	v.SetDefault("mqtt.command_topic", "blindctl/command")
	v.SetDefault("mqtt.response_topic", "blindctl/response")
	v.SetDefault("mqtt.status_topic", "blindctl/status")
	v.SetDefault("mqtt.status_interval", 30)

	v.SetDefault("api.enabled", true)
	v.SetDefault("api.host", "0.0.0.0")
	v.SetDefault("api.port", 8080)

	v.SetDefault("database.path", "./data/blindctl.db")

	v.SetDefault("adc.i2c_bus", "1")
	v.SetDefault("adc.address", 0x48)
	v.SetDefault("adc.channel", 0)
	v.SetDefault("adc.divider", 4.0)
	v.SetDefault("adc.sample_interval", 5)

	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.dir", "./logs")
}

func getConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return filepath.Join(home, ".blindctl")
}
