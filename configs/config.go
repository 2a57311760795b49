package config

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/spf13/viper"
)

type LogConfig struct {
	Level    string `mapstructure:"level"`
	Prettify bool   `mapstructure:"prettify"`
}

type APIConfig struct {
	Host string           `mapstructure:"host"`
	Port int              `mapstructure:"port"`
	Auth *BasicAuthConfig `mapstructure:"basicAuth"`
}

type BasicAuthConfig struct {
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
}

type TableConfig struct {
	Name    string                  `mapstructure:"name"`
	Storage StorageConnectionConfig `mapstructure:"storage"`

	// Per-request deadline handed to the storage client, in milliseconds. 0 disables it.
	RequestTimeout int `mapstructure:"requestTimeout"`
}

type StorageConnectionConfig struct {
	Azure      *AzureConfig      `mapstructure:"azure"`
	Memory     *MemoryConfig     `mapstructure:"memory"`
	Redis      *RedisConfig      `mapstructure:"redis"`
	Badger     *BadgerConfig     `mapstructure:"badger"`
	Pebble     *PebbleConfig     `mapstructure:"pebble"`
	Postgres   *PostgresConfig   `mapstructure:"postgres"`
	Clickhouse *ClickhouseConfig `mapstructure:"clickhouse"`
	S3         *S3Config         `mapstructure:"s3"`
}

type AzureConfig struct {
	AccountName string `mapstructure:"accountName"`
	AccountKey  string `mapstructure:"accountKey"`
	// http or https
	Protocol string `mapstructure:"protocol"`
	// Full connection string, overrides the account fields when set (e.g. Azurite).
	ConnectionString string `mapstructure:"connectionString"`
}

type MemoryConfig struct {
	MaxItems int `mapstructure:"maxItems"`
}

type RedisConfig struct {
	Addr      string `mapstructure:"addr"`
	Username  string `mapstructure:"username"`
	Password  string `mapstructure:"password"`
	DB        int    `mapstructure:"db"`
	PoolSize  int    `mapstructure:"poolSize"`
	EnableTLS bool   `mapstructure:"enableTLS"`
}

type BadgerConfig struct {
	Path     string `mapstructure:"path"`
	InMemory bool   `mapstructure:"inMemory"`
}

type PebbleConfig struct {
	Path     string `mapstructure:"path"`
	InMemory bool   `mapstructure:"inMemory"`
}

type PostgresConfig struct {
	Host            string `mapstructure:"host"`
	Port            int    `mapstructure:"port"`
	Username        string `mapstructure:"username"`
	Password        string `mapstructure:"password"`
	Database        string `mapstructure:"database"`
	SSLMode         string `mapstructure:"sslMode"`
	MaxOpenConns    int    `mapstructure:"maxOpenConns"`
	MaxIdleConns    int    `mapstructure:"maxIdleConns"`
	MaxConnLifetime int    `mapstructure:"maxConnLifetime"`
	ConnectTimeout  int    `mapstructure:"connectTimeout"`
}

type ClickhouseConfig struct {
	Host       string `mapstructure:"host"`
	Port       int    `mapstructure:"port"`
	Username   string `mapstructure:"username"`
	Password   string `mapstructure:"password"`
	Database   string `mapstructure:"database"`
	DisableTLS bool   `mapstructure:"disableTLS"`
}

type S3Config struct {
	Bucket          string `mapstructure:"bucket"`
	Region          string `mapstructure:"region"`
	Prefix          string `mapstructure:"prefix"`
	AccessKeyID     string `mapstructure:"accessKeyId"`
	SecretAccessKey string `mapstructure:"secretAccessKey"`
	Endpoint        string `mapstructure:"endpoint"`
	UsePathStyle    bool   `mapstructure:"usePathStyle"`
}

type KafkaConfig struct {
	Brokers   string `mapstructure:"brokers"`
	Topic     string `mapstructure:"topic"`
	Username  string `mapstructure:"username"`
	Password  string `mapstructure:"password"`
	EnableTLS bool   `mapstructure:"enableTLS"`
}

type PublisherConfig struct {
	Kafka *KafkaConfig `mapstructure:"kafka"`
}

type Config struct {
	Log       LogConfig       `mapstructure:"log"`
	API       APIConfig       `mapstructure:"api"`
	Table     TableConfig     `mapstructure:"table"`
	Publisher PublisherConfig `mapstructure:"publisher"`
}

var Cfg Config

func LoadConfig(cfgFile string) error {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
		if err := viper.ReadInConfig(); err != nil {
			return fmt.Errorf("error reading config file, %s", err)
		}
	} else {
		viper.SetConfigName("config")
		viper.AddConfigPath("./configs")

		// both files are optional, flags and the environment can carry everything
		if err := viper.ReadInConfig(); err != nil && !isNotFound(err) {
			return fmt.Errorf("error reading config file, %s", err)
		}

		viper.SetConfigName("secrets")
		if err := viper.MergeInConfig(); err != nil && !isNotFound(err) {
			return fmt.Errorf("error loading secrets file: %v", err)
		}
	}

	// sets e.g. TABLE_NAME to table.name
	replacer := strings.NewReplacer(".", "_")
	viper.SetEnvKeyReplacer(replacer)

	viper.AutomaticEnv()
	// AutomaticEnv only sees keys viper already knows about, so declare every
	// key; a storage section can then be selected from the environment alone
	bindEnvs(reflect.TypeOf(Cfg), "")

	err := viper.Unmarshal(&Cfg)
	if err != nil {
		return fmt.Errorf("error unmarshalling config: %v", err)
	}

	return nil
}

func isNotFound(err error) bool {
	var notFound viper.ConfigFileNotFoundError
	return errors.As(err, &notFound)
}

// bindEnvs binds each leaf key of t, named by its mapstructure tags, to its
// environment variable, e.g. table.storage.azure.accountName to
// TABLE_STORAGE_AZURE_ACCOUNTNAME.
func bindEnvs(t reflect.Type, prefix string) {
	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		tag := field.Tag.Get("mapstructure")
		if tag == "" {
			continue
		}
		key := tag
		if prefix != "" {
			key = prefix + "." + tag
		}

		ft := field.Type
		if ft.Kind() == reflect.Pointer {
			ft = ft.Elem()
		}
		if ft.Kind() == reflect.Struct {
			bindEnvs(ft, key)
			continue
		}
		viper.BindEnv(key)
	}
}
