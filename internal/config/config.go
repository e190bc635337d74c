package config

import (
	"log"
	"strings"
	"time"

	"github.com/spf13/viper" // 导入 Viper
)

// Config 结构体包含所有应用的配置
type Config struct {
	Server       ServerConfig       `mapstructure:"server"` // `mapstructure` 标签用于Viper绑定结构体
	MySQL        MySQLConfig        `mapstructure:"mysql"`
	Redis        RedisConfig        `mapstructure:"redis"`
	MinIO        MinIOConfig        `mapstructure:"minio"`
	AliyunOSS    AliyunOSSConfig    `mapstructure:"aliyun_oss"`
	JWT          JWTConfig          `mapstructure:"jwt"`
	Storage      StorageConfig      `mapstructure:"storageconfig"`
	Log          LogConfig          `mapstructure:"log"`
	Quota        QuotaConfig        `mapstructure:"quota"`
	Provisioning ProvisioningConfig `mapstructure:"provisioning"`
	IPFSCluster  IPFSClusterConfig  `mapstructure:"ipfs_cluster"`
}

// ServerConfig 服务器配置
type ServerConfig struct {
	Port string `mapstructure:"port"`
	Mode string `mapstructure:"mode"` // gin 模式: debug / release / test
}

// MySQLConfig 数据库配置
type MySQLConfig struct {
	DSN string `mapstructure:"dsn"`
}

// RedisConfig Redis配置
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// MinIOConfig MinIO配置
type MinIOConfig struct {
	Endpoint        string `mapstructure:"endpoint"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
	UseSSL          bool   `mapstructure:"use_ssl"`
	BucketName      string `mapstructure:"bucket_name"`
}

type AliyunOSSConfig struct {
	Endpoint        string `mapstructure:"endpoint"` // 例如: oss-cn-hangzhou.aliyuncs.com
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
	BucketName      string `mapstructure:"bucket_name"`
}

// JWTConfig JWT配置
type JWTConfig struct {
	SecretKey string        `mapstructure:"secret_key"`
	ExpiresIn time.Duration `mapstructure:"expires_in"`
	Issuer    string        `mapstructure:"issuer"`
}

type StorageConfig struct {
	Type string `mapstructure:"type"` // minio / aliyun_oss
}

// zap日志配置
type LogConfig struct {
	OutputPath string `mapstructure:"output_path"`
	ErrorPath  string `mapstructure:"error_path"`
	Level      string `mapstructure:"level"`
}

// QuotaConfig 存储配额配置
// ProTierBytes 是 PRO_50GB 档位的唯一取值来源
type QuotaConfig struct {
	ProTierBytes int64 `mapstructure:"pro_tier_bytes"`
}

// ProvisioningConfig 外部资源开通 API 配置
type ProvisioningConfig struct {
	APIBase string        `mapstructure:"api_base"`
	APIKey  string        `mapstructure:"api_key"`
	Timeout time.Duration `mapstructure:"timeout"` // 0 表示不设置超时
}

// IPFSClusterConfig IPFS 集群 API 配置
type IPFSClusterConfig struct {
	URL      string        `mapstructure:"url"`
	Timeout  time.Duration `mapstructure:"timeout"`
	CacheTTL time.Duration `mapstructure:"cache_ttl"` // 集群快照在 Redis 中的缓存时间
}

var AppConfig *Config // 全局应用配置实例

// SetDefaults 设置默认值 (如果配置文件和环境变量中都没有，则使用这些默认值)
func SetDefaults(v *viper.Viper) {
	v.SetDefault("server.port", "8080")
	v.SetDefault("server.mode", "debug")
	v.SetDefault("storageconfig.type", "minio")
	v.SetDefault("jwt.expires_in", 60) // 分钟
	v.SetDefault("jwt.issuer", "go-stackdash")
	v.SetDefault("log.output_path", "logs/app.log")
	v.SetDefault("log.error_path", "logs/error.log")
	v.SetDefault("log.level", "info")
	v.SetDefault("quota.pro_tier_bytes", int64(50)*1024*1024*1024)
	v.SetDefault("provisioning.api_base", "http://localhost:8000")
	v.SetDefault("provisioning.timeout", 0)
	v.SetDefault("ipfs_cluster.url", "http://localhost:9094")
	v.SetDefault("ipfs_cluster.timeout", 10*time.Second)
	v.SetDefault("ipfs_cluster.cache_ttl", 30*time.Second)
}

// LoadConfig 加载配置
func LoadConfig() (*Config, error) {
	v := viper.GetViper()
	v.SetConfigName("config")             // 配置文件名 (不带扩展名)
	v.SetConfigType("yaml")               // 配置文件类型
	v.AddConfigPath(".")                  // 在当前目录查找配置文件
	v.AddConfigPath("./configs")          // 也可以添加其他路径，例如 ./configs/
	v.AddConfigPath("/etc/go-stackdash/") // 生产环境常见路径

	// 读取环境变量，例如 GO_STACKDASH_PROVISIONING_API_KEY 对应 provisioning.api_key
	v.SetEnvPrefix("GO_STACKDASH")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	SetDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			// 配置文件存在但格式错误
			log.Printf("Fatal error reading config file: %s \n", err)
			return nil, err
		}
		// 配置文件未找到不是致命错误，依赖环境变量和默认值
		log.Println("Warning: config file not found, using environment variables or default values.")
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		log.Printf("Fatal error unmarshaling config: %s \n", err)
		return nil, err
	}

	AppConfig = cfg
	log.Println("Configuration loaded successfully with Viper.")
	return cfg, nil
}
