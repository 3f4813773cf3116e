package config

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	mapstructure "github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"
)

const (
	defaultConfigPath = "configs/config.yaml"
	envPrefix         = "quantdesk"
)

// DateLocation 为配置日期（backtest.start/end）的解析时区。
var DateLocation = time.FixedZone("CST", 8*3600)

var dateLayouts = []string{"2006-01-02", "20060102", "2006-01-02 15:04:05", time.RFC3339}

// Load 读取配置文件并结合环境变量返回 Config。
func Load(path string) (*Config, error) {
	v := viper.New()

	if path == "" {
		path = defaultConfigPath
	}

	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	bindEnv(v)
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return nil, fmt.Errorf("未找到配置文件 %q: %w", path, err)
		}
		return nil, fmt.Errorf("读取配置文件失败: %w", err)
	}

	return decode(v)
}

// Default 返回仅由默认值构成的配置，未经校验。
func Default() (*Config, error) {
	v := viper.New()
	setDefaults(v)
	var cfg Config
	if err := v.Unmarshal(&cfg, decodeHook()); err != nil {
		return nil, fmt.Errorf("解析配置失败: %w", err)
	}
	return &cfg, nil
}

func decode(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg, decodeHook()); err != nil {
		return nil, fmt.Errorf("解析配置失败: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func bindEnv(v *viper.Viper) {
	v.SetEnvPrefix(envPrefix)
	replacer := strings.NewReplacer(".", "_")
	v.SetEnvKeyReplacer(replacer)
	v.AutomaticEnv()
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.environment", "development")

	v.SetDefault("backtest.start", "")
	v.SetDefault("backtest.end", "")
	v.SetDefault("backtest.initial_capital", 1_000_000)
	v.SetDefault("backtest.universe", []string{})
	v.SetDefault("backtest.benchmark", "000300.SH")
	v.SetDefault("backtest.strategy", "buy_and_hold")
	v.SetDefault("backtest.strategy_params", map[string]any{})
	v.SetDefault("backtest.adjust", "none")
	v.SetDefault("backtest.enable_pre_market", false)
	v.SetDefault("backtest.enable_post_market", false)

	v.SetDefault("trigger.type", TriggerTick)
	v.SetDefault("trigger.period", "1d")
	v.SetDefault("trigger.custom_times", []string{})

	v.SetDefault("cost.commission_rate", 0.0001)
	v.SetDefault("cost.min_commission", 5.0)
	v.SetDefault("cost.stamp_tax_rate", 0.0005)
	v.SetDefault("cost.transfer_fee_rate", 0.00001)
	v.SetDefault("cost.flow_fee", 0.0)
	v.SetDefault("cost.slippage_type", "none")
	v.SetDefault("cost.slippage_value", 0.0)
	v.SetDefault("cost.tick_size", 0.01)

	v.SetDefault("risk.max_position_ratio", 0.0)
	v.SetDefault("risk.max_positions", 0)
	v.SetDefault("risk.max_daily_orders", 0)
	v.SetDefault("risk.max_daily_loss", 0.0)
	v.SetDefault("risk.max_total_loss", 0.0)

	v.SetDefault("data.source", SourceCSV)
	v.SetDefault("data.dir", "data/market")
	v.SetDefault("data.concurrency", 4)
	v.SetDefault("data.holidays", []string{})
	v.SetDefault("data.exchange.name", "binance")
	v.SetDefault("data.exchange.use_sandbox", false)
	v.SetDefault("data.exchange.page_limit", 1000)
	v.SetDefault("data.exchange.retry.max_attempts", 5)
	v.SetDefault("data.exchange.retry.min_delay", "500ms")
	v.SetDefault("data.exchange.retry.max_delay", "5s")

	v.SetDefault("database.path", "data/quantdesk.db")
	v.SetDefault("database.max_open_conns", 4)
	v.SetDefault("database.max_idle_conns", 4)
	v.SetDefault("database.conn_max_lifetime", "1h")
	v.SetDefault("database.in_memory", false)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.encoding", "console")
	v.SetDefault("logging.development", true)
	v.SetDefault("logging.output_paths", []string{"stdout"})
	v.SetDefault("logging.error_output_paths", []string{"stderr"})

	v.SetDefault("output.dir", "output")
	v.SetDefault("output.write_csv", true)
	v.SetDefault("output.write_sqlite", true)

	v.SetDefault("metrics.enabled", false)
	v.SetDefault("metrics.addr", ":9464")
}

func decodeHook() viper.DecoderConfigOption {
	return func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "mapstructure"
		dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			stringToDateHookFunc(),
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		)
	}
}

// stringToDateHookFunc 将 2006-01-02 等格式的字符串解析为交易所时区的日期，空串为零值。
func stringToDateHookFunc() mapstructure.DecodeHookFuncType {
	return func(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
		if to != reflect.TypeOf(time.Time{}) {
			return data, nil
		}
		if t, ok := data.(time.Time); ok {
			// YAML 未加引号的日期会被解析为 UTC 零点
			return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second(), 0, DateLocation), nil
		}
		if from.Kind() != reflect.String {
			return data, nil
		}
		raw := strings.TrimSpace(reflect.ValueOf(data).String())
		if raw == "" {
			return time.Time{}, nil
		}
		for _, layout := range dateLayouts {
			if t, err := time.ParseInLocation(layout, raw, DateLocation); err == nil {
				return t, nil
			}
		}
		return nil, fmt.Errorf("无法解析日期 %q", raw)
	}
}
