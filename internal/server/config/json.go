package config

import (
	"os"

	"github.com/goccy/go-json"

	"github.com/dmitrijs2005/recordkeeper/internal/flagx"
	"github.com/dmitrijs2005/recordkeeper/internal/timex"
)

// JsonConfig defines a configuration structure tailored for JSON unmarshalling.
// It uses timex.Duration for interval fields, which allows parsing both
// string values such as "1s" and integer nanoseconds.
//
// Only keys present in the file override the current values.
type JsonConfig struct {
	EndpointAddrGRPC       string         `json:"endpoint_addr_grpc"`
	MetricsAddr            string         `json:"metrics_addr"`
	DatabaseDSN            string         `json:"database_dsn"`
	SecretKey              string         `json:"secret_key"`
	S3RootUser             string         `json:"s3_root_user"`
	S3RootPassword         string         `json:"s3_root_password"`
	S3Bucket               string         `json:"s3_bucket"`
	S3Region               string         `json:"s3_region"`
	S3BaseEndpoint         string         `json:"s3_base_endpoint"`
	KafkaBrokers           string         `json:"kafka_brokers"`
	KafkaTopic             string         `json:"kafka_topic"`
	TenantName             string         `json:"tenant_name"`
	AclDomain              string         `json:"acl_domain"`
	WorkerThreads          *int           `json:"worker_threads"`
	MetadataWriteBatchSize *int           `json:"metadata_write_batch_size"`
	MetadataReadBatchSize  *int           `json:"metadata_read_batch_size"`
	PublishBatchSize       *int           `json:"publish_batch_size"`
	StoreCallTimeout       timex.Duration `json:"store_call_timeout"`
	LegalCacheTTL          timex.Duration `json:"legal_cache_ttl"`
	LegalCacheSize         *int           `json:"legal_cache_size"`
	ValidLegalTags         []string       `json:"valid_legal_tags"`
	ValidCountries         []string       `json:"valid_countries"`
	LogLevel               string         `json:"log_level"`
}

// parseJson loads configuration values from a JSON file into the provided
// Config instance.
//
// The JSON file path comes from the -c, -config or --config flag. If it is
// not set, no JSON file is loaded. If the file cannot be read or contains
// invalid JSON, the function panics.
func parseJson(config *Config) {
	jsonConfigFile := flagx.JsonConfigFlags()
	if jsonConfigFile == "" {
		return
	}

	file, err := os.ReadFile(jsonConfigFile)
	if err != nil {
		panic(err)
	}

	c := &JsonConfig{}
	if err := json.Unmarshal(file, c); err != nil {
		panic(err)
	}

	setString(&config.EndpointAddrGRPC, c.EndpointAddrGRPC)
	setString(&config.MetricsAddr, c.MetricsAddr)
	setString(&config.DatabaseDSN, c.DatabaseDSN)
	setString(&config.SecretKey, c.SecretKey)
	setString(&config.S3RootUser, c.S3RootUser)
	setString(&config.S3RootPassword, c.S3RootPassword)
	setString(&config.S3Bucket, c.S3Bucket)
	setString(&config.S3Region, c.S3Region)
	setString(&config.S3BaseEndpoint, c.S3BaseEndpoint)
	if c.KafkaBrokers != "" {
		config.KafkaBrokers = splitList(c.KafkaBrokers)
	}
	setString(&config.KafkaTopic, c.KafkaTopic)
	setString(&config.TenantName, c.TenantName)
	setString(&config.AclDomain, c.AclDomain)
	setInt(&config.WorkerThreads, c.WorkerThreads)
	setInt(&config.MetadataWriteBatchSize, c.MetadataWriteBatchSize)
	setInt(&config.MetadataReadBatchSize, c.MetadataReadBatchSize)
	setInt(&config.PublishBatchSize, c.PublishBatchSize)
	if c.StoreCallTimeout.Duration != 0 {
		config.StoreCallTimeout = c.StoreCallTimeout.Duration
	}
	if c.LegalCacheTTL.Duration != 0 {
		config.LegalCacheTTL = c.LegalCacheTTL.Duration
	}
	setInt(&config.LegalCacheSize, c.LegalCacheSize)
	if c.ValidLegalTags != nil {
		config.ValidLegalTags = c.ValidLegalTags
	}
	if c.ValidCountries != nil {
		config.ValidCountries = c.ValidCountries
	}
	setString(&config.LogLevel, c.LogLevel)
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func setInt(dst *int, v *int) {
	if v != nil {
		*dst = *v
	}
}
