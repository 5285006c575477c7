package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/Daneel-Li/petshop-back/pkg/utils"

	"github.com/spf13/viper"
)

// MysqlConfig 存储数据库连接信息
type MysqlConfig struct {
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	Host     string `mapstructure:"host"`
	Port     string `mapstructure:"port"`
	DBName   string `mapstructure:"dbname"`
}

type MqttConfig struct {
	Broker   string `mapstructure:"broker"`
	ClientID string `mapstructure:"clientid"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	Topic    string `mapstructure:"topic"` // 事件主题前缀
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type Tls struct {
	CertPath string `mapstructure:"cert_path"`
	KeyPath  string `mapstructure:"key_path"`
}

const (
	ModeTest       = "test"
	ModeProduction = "production"
)

// 绿界金流参数
type ECPayConfig struct {
	MerchantID      string `mapstructure:"merchant_id"`
	HashKey         string `mapstructure:"hash_key"`
	HashIV          string `mapstructure:"hash_iv"`
	Mode            string `mapstructure:"mode"` // test/production，不设默认值
	ReturnURL       string `mapstructure:"return_url"`
	DonateReturnURL string `mapstructure:"donate_return_url"`
	ClientBackURL   string `mapstructure:"client_back_url"`
}

func (c ECPayConfig) IsProduction() bool {
	return c.Mode == ModeProduction
}

type Config struct {
	ServerPort     int32       `mapstructure:"server_port"`
	Loglevel       string      `mapstructure:"log_level"`
	JwtIssuer      string      `mapstructure:"jwt_issuer"`
	JwtSecret      string      `mapstructure:"jwt_secret"`
	Tls            Tls         `mapstructure:"tls"`
	Mysql          MysqlConfig `mapstructure:"mysql"`
	Mqtt           MqttConfig  `mapstructure:"mqtt"`
	Redis          RedisConfig `mapstructure:"redis"`
	ECPay          ECPayConfig `mapstructure:"ecpay"`
	RateLimitQPS   float64     `mapstructure:"rate_limit_qps"`
	RateLimitBurst int         `mapstructure:"rate_limit_burst"`
	// 反向代理 IP 或 CIDR，逗号分隔；为空时不采信 X-Forwarded-For
	TrustedProxies []string    `mapstructure:"trusted_proxies"`
}

// 配置键 -> 环境变量
var envBindings = map[string]string{
	"server_port":             "SERVER_PORT",
	"log_level":               "LOG_LEVEL",
	"jwt_issuer":              "JWT_ISSUER",
	"jwt_secret":              "JWT_SECRET",
	"tls.cert_path":           "TLS_CERT_PATH",
	"tls.key_path":            "TLS_KEY_PATH",
	"mysql.username":          "MYSQL_USERNAME",
	"mysql.password":          "MYSQL_PASSWORD",
	"mysql.host":              "MYSQL_HOST",
	"mysql.port":              "MYSQL_PORT",
	"mysql.dbname":            "MYSQL_DBNAME",
	"mqtt.broker":             "MQTT_BROKER",
	"mqtt.clientid":           "MQTT_CLIENTID",
	"mqtt.username":           "MQTT_USERNAME",
	"mqtt.password":           "MQTT_PASSWORD",
	"mqtt.topic":              "MQTT_TOPIC",
	"redis.addr":              "REDIS_ADDR",
	"redis.password":          "REDIS_PASSWORD",
	"redis.db":                "REDIS_DB",
	"ecpay.merchant_id":       "ECPAY_MERCHANT_ID",
	"ecpay.hash_key":          "ECPAY_HASH_KEY",
	"ecpay.hash_iv":           "ECPAY_HASH_IV",
	"ecpay.mode":              "ECPAY_MODE",
	"ecpay.return_url":        "ECPAY_RETURN_URL",
	"ecpay.donate_return_url": "ECPAY_DONATE_RETURN_URL",
	"ecpay.client_back_url":   "ECPAY_CLIENT_BACK_URL",
	"rate_limit_qps":          "RATE_LIMIT_QPS",
	"rate_limit_burst":        "RATE_LIMIT_BURST",
	"trusted_proxies":         "TRUSTED_PROXIES",
}

// Load 读取配置文件（可选）并用环境变量覆盖。path 为空或文件不存在时只用环境变量。
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetDefault("server_port", 8443)
	v.SetDefault("log_level", "info")
	v.SetDefault("jwt_issuer", "petshop")
	v.SetDefault("mysql.port", "3306")
	v.SetDefault("mqtt.topic", "petshop/events")
	v.SetDefault("rate_limit_qps", 20)
	v.SetDefault("rate_limit_burst", 40)

	for key, env := range envBindings {
		if err := v.BindEnv(key, env); err != nil {
			return nil, fmt.Errorf("bind env %s failed: %w", env, err)
		}
	}

	if path != "" {
		if _, err := os.Stat(path); err == nil {
			v.SetConfigFile(path)
			v.SetConfigType("json")
			if err := v.ReadInConfig(); err != nil {
				return nil, fmt.Errorf("read config %s failed: %w", path, err)
			}
		} else {
			slog.Info("config file not found, using environment only", "path", path)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config failed: %w", err)
	}
	return cfg, nil
}

// Validate 金流参数缺失时启动失败，不回退到测试密钥
func (c *Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.ECPay.MerchantID) == "" {
		errs = append(errs, errors.New("ECPAY_MERCHANT_ID is required"))
	}
	if strings.TrimSpace(c.ECPay.HashKey) == "" {
		errs = append(errs, errors.New("ECPAY_HASH_KEY is required"))
	}
	if strings.TrimSpace(c.ECPay.HashIV) == "" {
		errs = append(errs, errors.New("ECPAY_HASH_IV is required"))
	}
	if c.ECPay.Mode != ModeTest && c.ECPay.Mode != ModeProduction {
		errs = append(errs, fmt.Errorf("ECPAY_MODE must be %q or %q, got %q", ModeTest, ModeProduction, c.ECPay.Mode))
	}
	if c.JwtSecret == "" {
		errs = append(errs, errors.New("JWT_SECRET is required"))
	}
	if _, err := utils.ParseTrustedProxies(c.TrustedProxies); err != nil {
		errs = append(errs, fmt.Errorf("TRUSTED_PROXIES: %w", err))
	}
	return errors.Join(errs...)
}
