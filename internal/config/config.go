package config

import "github.com/caarlos0/env/v9"

type Config struct {
	Port                   string `env:"PORT" envDefault:"8080"`
	DBDriver               string `env:"DB_DRIVER" envDefault:"mysql"` // mysql or postgres
	DBUser                 string `env:"DB_USER,required"`
	DBPassword             string `env:"DB_PASSWORD,required"`
	DBHost                 string `env:"DB_HOST,required"` // e.g. tcp(host:3306) or unix(/cloudsql/instance)
	DBName                 string `env:"DB_NAME,required"`
	DBPort                 string `env:"DB_PORT" envDefault:"3306"`
	InstanceConnectionName string `env:"INSTANCE_CONNECTION_NAME"`

	RedisAddr     string `env:"REDIS_ADDR"`
	RedisPassword string `env:"REDIS_PASSWORD"`

	KafkaBrokers []string `env:"KAFKA_BROKERS" envSeparator:","`
	KafkaTopic   string   `env:"KAFKA_TOPIC" envDefault:"delivery-events"`

	StorageBackend string `env:"STORAGE_BACKEND" envDefault:"gcs"` // gcs, s3 or empty to disable uploads
	StorageBucket  string `env:"STORAGE_BUCKET"`
	AWSRegion      string `env:"AWS_REGION" envDefault:"ap-northeast-1"`

	FirebaseProjectID string `env:"FIREBASE_PROJECT_ID"`

	// DispatchConfig points at an optional YAML/JSON file overriding Dispatch defaults.
	DispatchConfig string `env:"DISPATCH_CONFIG"`
}

func Load() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}
