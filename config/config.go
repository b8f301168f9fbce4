// Package config 负责服务端配置：默认值 → JSON 文件 → .env 与环境变量 → 命令行
package config

import (
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"go.uber.org/multierr"

	"minisync/game"
	"minisync/sim"
)

// EnvPrefix 环境变量前缀
const EnvPrefix = "MINISYNC_"

// DefaultFile 未指定 -config 时尝试读取的文件，不存在不报错
const DefaultFile = "minisync.json"

// Config 服务端配置
type Config struct {
	Addr        string    `json:"addr"`
	StaticDir   string    `json:"staticDir"`
	LogFile     string    `json:"logFile"`
	LogLevel    string    `json:"logLevel"`
	DefaultRoom string    `json:"defaultRoom"`
	DefaultMode game.Mode `json:"defaultMode"`
	TickHz      int       `json:"tickHz"`

	// 每连接令牌桶
	InputRate  float64 `json:"inputRate"`
	InputBurst int     `json:"inputBurst"`
	// 每玩家每 tick 最多处理的输入数
	MaxInputsPerTick int `json:"maxInputsPerTick"`

	// 模拟弱网，仅用于调试
	SimulateDelayMinMs int     `json:"simulateDelayMinMs"`
	SimulateDelayMaxMs int     `json:"simulateDelayMaxMs"`
	SimulateDropProb   float64 `json:"simulateDropProb"`

	ReplayPath string    `json:"replayPath"`
	Rules      sim.Rules `json:"rules"`
}

func Default() Config {
	return Config{
		Addr:             ":8080",
		StaticDir:        "web",
		LogFile:          "minisync.log",
		LogLevel:         "info",
		DefaultRoom:      "room-1",
		DefaultMode:      game.ModeMissiles,
		TickHz:           50,
		InputRate:        60,
		InputBurst:       20,
		MaxInputsPerTick: 4,
		Rules:            sim.DefaultRules(),
	}
}

// Load 按层叠顺序读取配置，args 通常为 os.Args[1:]
func Load(args []string) (Config, error) {
	cfg := Default()

	// 第一遍只为拿到 -config 与 -env
	var path, envFile string
	pre := flag.NewFlagSet("minisync", flag.ContinueOnError)
	pre.SetOutput(nopWriter{})
	bind(pre, &Config{}, &path, &envFile)
	if err := pre.Parse(args); err != nil {
		return cfg, err
	}

	if err := loadFile(&cfg, path); err != nil {
		return cfg, err
	}
	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return cfg, fmt.Errorf("load %s: %w", envFile, err)
	}
	if err := applyEnv(&cfg, os.LookupEnv); err != nil {
		return cfg, err
	}

	// 第二遍以当前值为默认值，只有显式给出的参数会覆盖
	final := flag.NewFlagSet("minisync", flag.ContinueOnError)
	bind(final, &cfg, &path, &envFile)
	if err := final.Parse(args); err != nil {
		return cfg, err
	}
	if cfg.TickHz > 0 {
		cfg.Rules.TickSeconds = 1 / float64(cfg.TickHz)
	}
	return cfg, cfg.Validate()
}

func bind(set *flag.FlagSet, c *Config, path, envFile *string) {
	set.StringVar(path, "config", "", "path to a JSON config file (default "+DefaultFile+" if present)")
	set.StringVar(envFile, "env", ".env", "dotenv file with "+EnvPrefix+"* overrides")
	set.StringVar(&c.Addr, "addr", c.Addr, "server listen address, e.g. :8080")
	set.StringVar(&c.StaticDir, "static", c.StaticDir, "directory served at /")
	set.StringVar(&c.LogFile, "log", c.LogFile, "log file path (empty logs to stderr)")
	set.StringVar(&c.LogLevel, "log-level", c.LogLevel, "debug, info, warn or error")
	set.StringVar(&c.DefaultRoom, "room", c.DefaultRoom, "room created at start-up")
	set.StringVar((*string)(&c.DefaultMode), "mode", string(c.DefaultMode), "default game mode: missiles, pong or path")
	set.IntVar(&c.TickHz, "tick-hz", c.TickHz, "simulation ticks per second")
	set.Float64Var(&c.InputRate, "input-rate", c.InputRate, "inputs per second allowed per connection")
	set.IntVar(&c.InputBurst, "input-burst", c.InputBurst, "input burst allowed per connection")
	set.IntVar(&c.MaxInputsPerTick, "max-inputs", c.MaxInputsPerTick, "inputs applied per player per tick")
	set.StringVar(&c.ReplayPath, "replay", c.ReplayPath, "record broadcast snapshots to this file")
	set.Float64Var(&c.Rules.TimeScale, "time-scale", c.Rules.TimeScale, "missile flight time multiplier")
	set.BoolVar(&c.Rules.GreatCircle, "great-circle", c.Rules.GreatCircle, "fly missiles along great circles")
}

func loadFile(c *Config, path string) error {
	explicit := path != ""
	if !explicit {
		path = DefaultFile
	}
	b, err := os.ReadFile(path)
	if err != nil {
		if !explicit && errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read config: %w", err)
	}
	if err := json.Unmarshal(b, c); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return nil
}

// applyEnv 读取 MINISYNC_* 覆盖项，解析失败的全部汇总返回
func applyEnv(c *Config, lookup func(string) (string, bool)) error {
	var err error
	str := func(key string, dst *string) {
		if v, ok := lookup(EnvPrefix + key); ok {
			*dst = v
		}
	}
	num := func(key string, dst *int) {
		if v, ok := lookup(EnvPrefix + key); ok {
			n, e := strconv.Atoi(strings.TrimSpace(v))
			if e != nil {
				err = multierr.Append(err, fmt.Errorf("%s%s: %w", EnvPrefix, key, e))
				return
			}
			*dst = n
		}
	}
	float := func(key string, dst *float64) {
		if v, ok := lookup(EnvPrefix + key); ok {
			f, e := strconv.ParseFloat(strings.TrimSpace(v), 64)
			if e != nil {
				err = multierr.Append(err, fmt.Errorf("%s%s: %w", EnvPrefix, key, e))
				return
			}
			*dst = f
		}
	}

	str("ADDR", &c.Addr)
	str("STATIC_DIR", &c.StaticDir)
	str("LOG_FILE", &c.LogFile)
	str("LOG_LEVEL", &c.LogLevel)
	str("ROOM", &c.DefaultRoom)
	str("MODE", (*string)(&c.DefaultMode))
	str("REPLAY", &c.ReplayPath)
	num("TICK_HZ", &c.TickHz)
	num("INPUT_BURST", &c.InputBurst)
	num("MAX_INPUTS_PER_TICK", &c.MaxInputsPerTick)
	num("MISSILE_DAMAGE", &c.Rules.MissileDamage)
	float("INPUT_RATE", &c.InputRate)
	float("TIME_SCALE", &c.Rules.TimeScale)
	if v, ok := lookup(EnvPrefix + "GREAT_CIRCLE"); ok {
		b, e := strconv.ParseBool(strings.TrimSpace(v))
		if e != nil {
			err = multierr.Append(err, fmt.Errorf("%sGREAT_CIRCLE: %w", EnvPrefix, e))
		} else {
			c.Rules.GreatCircle = b
		}
	}
	return err
}

// Validate 检查所有字段，汇总全部错误
func (c Config) Validate() error {
	var err error
	if c.Addr == "" {
		err = multierr.Append(err, errors.New("addr is empty"))
	}
	if !c.DefaultMode.Valid() {
		err = multierr.Append(err, fmt.Errorf("unknown mode %q", c.DefaultMode))
	}
	if c.TickHz <= 0 || c.TickHz > 1000 {
		err = multierr.Append(err, fmt.Errorf("tickHz %d outside (0, 1000]", c.TickHz))
	}
	if c.InputRate <= 0 || c.InputBurst <= 0 {
		err = multierr.Append(err, fmt.Errorf("input rate %g and burst %d must be positive", c.InputRate, c.InputBurst))
	}
	if c.MaxInputsPerTick <= 0 {
		err = multierr.Append(err, fmt.Errorf("maxInputsPerTick %d must be positive", c.MaxInputsPerTick))
	}
	if c.SimulateDelayMinMs < 0 || c.SimulateDelayMaxMs < c.SimulateDelayMinMs {
		err = multierr.Append(err, fmt.Errorf("simulated delay [%d, %d] is not a range", c.SimulateDelayMinMs, c.SimulateDelayMaxMs))
	}
	if c.SimulateDropProb < 0 || c.SimulateDropProb > 1 {
		err = multierr.Append(err, fmt.Errorf("simulateDropProb %g outside [0, 1]", c.SimulateDropProb))
	}
	err = multierr.Append(err, ValidateRules(c.Rules))
	return err
}

// ValidateRules 热更新时也会用到
func ValidateRules(r sim.Rules) error { return r.Validate() }

type nopWriter struct{}

func (nopWriter) Write(p []byte) (int, error) { return len(p), nil }
