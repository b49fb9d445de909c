package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"auto-trader/pkg/types"
)

// ruleKeys 可覆盖预设规则集的配置项
var ruleKeys = []string{
	"trend_alignment",
	"trend_band_anchor",
	"band_lower",
	"band_upper",
	"buy_buffer",
	"sell_buffer",
	"buy_rsi",
	"sell_rsi",
	"hist_acceleration",
	"volume_multiplier",
	"volume_baseline",
	"recent_crossover",
	"lookback_days",
}

// Load 加载配置
func Load() (*types.Config, error) {
	return load(viper.GetViper(), "./configs", ".")
}

func load(v *viper.Viper, paths ...string) (*types.Config, error) {
	v.SetConfigType("yaml")
	for _, p := range paths {
		v.AddConfigPath(p)
	}

	// 设置默认值
	setDefaults(v)

	// 读取环境变量，strategy.rules.buy_rsi → STRATEGY_RULES_BUY_RSI
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// 优先尝试读取本地配置文件
	v.SetConfigName("config.local")
	if err := v.ReadInConfig(); err != nil {
		// 如果本地配置文件不存在，尝试读取默认配置文件
		v.SetConfigName("config")
		if err := v.ReadInConfig(); err != nil {
			var configFileNotFoundError viper.ConfigFileNotFoundError
			if !errors.As(err, &configFileNotFoundError) {
				return nil, err
			}
		}
	}

	var config types.Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, err
	}

	rules, err := resolveRules(v)
	if err != nil {
		return nil, err
	}
	config.Strategy.Rules = rules
	if config.Strategy.History < rules.RequiredHistory() {
		return nil, fmt.Errorf("strategy.history (%d) 小于规则所需交易日数 (%d)", config.Strategy.History, rules.RequiredHistory())
	}

	for i, s := range config.Strategy.Symbols {
		config.Strategy.Symbols[i] = strings.ToUpper(strings.TrimSpace(s))
	}
	if len(config.Strategy.Symbols) == 0 {
		return nil, errors.New("strategy.symbols 不能为空")
	}

	return &config, nil
}

// resolveRules 以 variant 对应的预设为底，叠加显式配置的单项参数
func resolveRules(v *viper.Viper) (types.RuleConfig, error) {
	variant := strings.ToLower(v.GetString("strategy.rules.variant"))
	rules, err := types.RuleConfigFor(variant)
	if err != nil {
		return types.RuleConfig{}, err
	}

	overrides := viper.New()
	for _, key := range ruleKeys {
		full := "strategy.rules." + key
		if v.IsSet(full) {
			overrides.Set(key, v.Get(full))
		}
	}
	if err := overrides.Unmarshal(&rules); err != nil {
		return types.RuleConfig{}, fmt.Errorf("解析规则参数失败: %w", err)
	}

	if err := rules.Validate(); err != nil {
		return types.RuleConfig{}, fmt.Errorf("规则配置非法: %w", err)
	}
	return rules, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("log.level", "info")
	v.SetDefault("log.file_path", "logs")
	v.SetDefault("log.max_size", 200)
	v.SetDefault("log.max_age", 30)
	v.SetDefault("log.max_backups", 7)
	v.SetDefault("log.compress", false)
	v.SetDefault("redis.url", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.signal_ttl", 7*24*time.Hour)
	v.SetDefault("dingtalk.webhook_url", "")
	v.SetDefault("dingtalk.secret", "")
	v.SetDefault("network.proxy", "")
	v.SetDefault("network.timeout", 30*time.Second)
	v.SetDefault("database.mysql.host", "localhost")
	v.SetDefault("database.mysql.port", 3306)
	v.SetDefault("database.mysql.username", "root")
	v.SetDefault("database.mysql.password", "")
	v.SetDefault("database.mysql.database", "auto_trader")
	v.SetDefault("database.mysql.max_idle_conns", 10)
	v.SetDefault("database.mysql.max_open_conns", 100)
	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.addr", ":9090")
	v.SetDefault("monitor.interval", time.Hour)
	v.SetDefault("monitor.days", 30)
	v.SetDefault("strategy.symbols", []string{"RELIANCE", "TCS", "INFY", "HDFCBANK", "ICICIBANK"})
	v.SetDefault("strategy.workers", 4)
	v.SetDefault("strategy.history", 60)
	v.SetDefault("strategy.schedule.cron", "0 30 16 * * 1-5")
	v.SetDefault("strategy.schedule.run_on_start", true)
	// 规则单项参数不设默认值，由 variant 预设提供
	v.SetDefault("strategy.rules.variant", types.VariantStrict)
}
