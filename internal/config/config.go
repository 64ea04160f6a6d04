// Package config loads service settings from configs/config.yml, an optional
// .env file and TELEMETRY_* environment variables, in increasing priority.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"container_telemetry/internal/service"
	"container_telemetry/internal/simulator"
	"container_telemetry/internal/telemetry"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const envPrefix = "TELEMETRY"

type Config struct {
	Port       string           `mapstructure:"port"`
	Log        LogConfig        `mapstructure:"log"`
	DB         DBConfig         `mapstructure:"db"`
	Auth       AuthConfig       `mapstructure:"auth"`
	Parser     ParserConfig     `mapstructure:"parser"`
	Limiter    LimiterConfig    `mapstructure:"limiter"`
	Pipeline   PipelineConfig   `mapstructure:"pipeline"`
	Thresholds ThresholdsConfig `mapstructure:"thresholds"`
	Simulator  SimulatorConfig  `mapstructure:"simulator"`
	MQTT       MQTTConfig       `mapstructure:"mqtt"`
	Watchdog   WatchdogConfig   `mapstructure:"watchdog"`
	Sink       SinkConfig       `mapstructure:"sink"`
	Location   LocationConfig   `mapstructure:"location"`
	WS         WSConfig         `mapstructure:"ws"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
}

type DBConfig struct {
	Path string `mapstructure:"path"`
}

type AuthConfig struct {
	SigningKey string        `mapstructure:"signing_key"`
	TokenTTL   time.Duration `mapstructure:"token_ttl"`
	Operators  []string      `mapstructure:"operators"`
}

type ParserConfig struct {
	TempMin  float64 `mapstructure:"temp_min"`
	TempMax  float64 `mapstructure:"temp_max"`
	MaxShake float64 `mapstructure:"max_shake"`
}

type LimiterConfig struct {
	RoutineCooldown time.Duration `mapstructure:"routine_cooldown"`
	SystemCooldown  time.Duration `mapstructure:"system_cooldown"`
	SampleEvery     int           `mapstructure:"sample_every"`
}

type PipelineConfig struct {
	InvalidReportEvery int `mapstructure:"invalid_report_every"`
}

// ThresholdsConfig points at an optional YAML overlay for the default tables.
type ThresholdsConfig struct {
	File string `mapstructure:"file"`
}

type SimulatorConfig struct {
	Enabled          bool           `mapstructure:"enabled"`
	Tick             time.Duration  `mapstructure:"tick"`
	Scenario         string         `mapstructure:"scenario"`
	Durations        map[string]int `mapstructure:"durations"`
	HotFaultEvery    int            `mapstructure:"hot_fault_every"`
	ColdFaultEvery   int            `mapstructure:"cold_fault_every"`
	FaultWindowStart int            `mapstructure:"fault_window_start"`
	FaultWindowEnd   int            `mapstructure:"fault_window_end"`
}

type MQTTConfig struct {
	Enabled    bool   `mapstructure:"enabled"`
	Broker     string `mapstructure:"broker"`
	ClientID   string `mapstructure:"client_id"`
	Username   string `mapstructure:"username"`
	Password   string `mapstructure:"password"`
	FrameTopic string `mapstructure:"frame_topic"`
	EventTopic string `mapstructure:"event_topic"`
	QoS        byte   `mapstructure:"qos"`
}

type WatchdogConfig struct {
	StaleAfter time.Duration `mapstructure:"stale_after"`
	Tick       time.Duration `mapstructure:"tick"`
}

type SinkConfig struct {
	Buffer int `mapstructure:"buffer"`
}

type LocationConfig struct {
	Latitude  float64 `mapstructure:"latitude"`
	Longitude float64 `mapstructure:"longitude"`
	Label     string  `mapstructure:"label"`
}

type WSConfig struct {
	Interval time.Duration `mapstructure:"interval"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("port", "8080")
	v.SetDefault("log.level", "info")
	v.SetDefault("db.path", "telemetry.db")

	v.SetDefault("auth.signing_key", "change-me")
	v.SetDefault("auth.token_ttl", time.Hour)
	v.SetDefault("auth.operators", []string{"admin"})

	pc := telemetry.DefaultParserConfig()
	v.SetDefault("parser.temp_min", pc.TempMin)
	v.SetDefault("parser.temp_max", pc.TempMax)
	v.SetDefault("parser.max_shake", pc.MaxShake)

	lc := telemetry.DefaultLimiterConfig()
	v.SetDefault("limiter.routine_cooldown", lc.RoutineCooldown)
	v.SetDefault("limiter.system_cooldown", lc.SystemCooldown)
	v.SetDefault("limiter.sample_every", lc.SampleEvery)

	v.SetDefault("pipeline.invalid_report_every", telemetry.DefaultPipelineConfig().InvalidReportEvery)
	v.SetDefault("thresholds.file", "")

	sc := simulator.DefaultConfig()
	v.SetDefault("simulator.enabled", true)
	v.SetDefault("simulator.tick", time.Second)
	v.SetDefault("simulator.scenario", simulator.Normal.String())
	v.SetDefault("simulator.durations", map[string]int{})
	v.SetDefault("simulator.hot_fault_every", sc.HotFaultEvery)
	v.SetDefault("simulator.cold_fault_every", sc.ColdFaultEvery)
	v.SetDefault("simulator.fault_window_start", sc.FaultWindowStart)
	v.SetDefault("simulator.fault_window_end", sc.FaultWindowEnd)

	v.SetDefault("mqtt.enabled", false)
	v.SetDefault("mqtt.broker", "tcp://localhost:1883")
	v.SetDefault("mqtt.client_id", "container-telemetry")
	v.SetDefault("mqtt.username", "")
	v.SetDefault("mqtt.password", "")
	v.SetDefault("mqtt.frame_topic", "container/+/frames")
	v.SetDefault("mqtt.event_topic", "container/events")
	v.SetDefault("mqtt.qos", 1)

	v.SetDefault("watchdog.stale_after", 10*time.Second)
	v.SetDefault("watchdog.tick", 2*time.Second)

	v.SetDefault("sink.buffer", 256)

	v.SetDefault("location.latitude", 0.0)
	v.SetDefault("location.longitude", 0.0)
	v.SetDefault("location.label", "")

	v.SetDefault("ws.interval", time.Second)
}

// Load reads the config file at path. An empty path looks for
// configs/config.yml. A missing file is not an error: defaults and
// environment still apply.
func Load(path string) (*Config, error) {
	// .env is optional
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.AddConfigPath("configs")
		v.SetConfigName("config")
	}

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if c.Parser.TempMin >= c.Parser.TempMax {
		return fmt.Errorf("parser.temp_min (%v) must be below parser.temp_max (%v)", c.Parser.TempMin, c.Parser.TempMax)
	}
	if c.MQTT.Enabled && c.MQTT.FrameTopic == "" {
		return errors.New("mqtt.frame_topic is required when mqtt is enabled")
	}
	// one ordered stream per pipeline
	if c.MQTT.Enabled && c.Simulator.Enabled {
		return errors.New("simulator.enabled and mqtt.enabled are mutually exclusive")
	}
	if c.MQTT.QoS > 2 {
		return fmt.Errorf("mqtt.qos must be 0, 1 or 2, got %d", c.MQTT.QoS)
	}
	if _, err := simulator.ParseScenario(c.Simulator.Scenario); err != nil {
		return fmt.Errorf("simulator.scenario: %w", err)
	}
	return nil
}

// PipelineConfig maps the telemetry sections onto the pipeline settings.
func (c *Config) PipelineConfig(profiles telemetry.Profiles) telemetry.PipelineConfig {
	lc := telemetry.LimiterConfig{
		RoutineCooldown: c.Limiter.RoutineCooldown,
		SystemCooldown:  c.Limiter.SystemCooldown,
		SampleEvery:     c.Limiter.SampleEvery,
	}
	return telemetry.PipelineConfig{
		Parser: telemetry.ParserConfig{
			TempMin:  c.Parser.TempMin,
			TempMax:  c.Parser.TempMax,
			MaxShake: c.Parser.MaxShake,
		},
		Profiles:           profiles,
		Limiter:            lc,
		Policies:           telemetry.DefaultPolicies(lc),
		InvalidReportEvery: c.Pipeline.InvalidReportEvery,
	}
}

// GeneratorConfig maps the simulator section. Duration keys are scenario names.
func (c *Config) GeneratorConfig() (simulator.Config, error) {
	out := simulator.Config{
		Durations:        make(map[simulator.Scenario]int, len(c.Simulator.Durations)),
		HotFaultEvery:    c.Simulator.HotFaultEvery,
		ColdFaultEvery:   c.Simulator.ColdFaultEvery,
		FaultWindowStart: c.Simulator.FaultWindowStart,
		FaultWindowEnd:   c.Simulator.FaultWindowEnd,
	}
	for name, steps := range c.Simulator.Durations {
		s, err := simulator.ParseScenario(name)
		if err != nil {
			return simulator.Config{}, fmt.Errorf("simulator.durations: %w", err)
		}
		out.Durations[s] = steps
	}
	return out, nil
}

func (c *Config) AuthConfig() service.AuthConfig {
	return service.AuthConfig{
		SigningKey: c.Auth.SigningKey,
		TokenTTL:   c.Auth.TokenTTL,
		Operators:  append([]string(nil), c.Auth.Operators...),
	}
}
