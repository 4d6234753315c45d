package config

import (
	"flag"
	"os"
	"strings"

	"github.com/dmitrijs2005/recordkeeper/internal/flagx"
)

// parseFlags populates selected server Config fields from command-line flags.
//
// Supported flags (short forms):
//
//	-a string     gRPC bind address (e.g., ":50051")
//	-m string     metrics and health bind address
//	-d string     PostgreSQL DSN
//	-s string     JWT HMAC secret key
//	-u string     S3 root user
//	-p string     S3 root password
//	-b string     S3 bucket name
//	-g string     S3 region
//	-e string     S3 base endpoint (e.g., "http://127.0.0.1:9000/")
//	-k string     Kafka brokers, comma separated
//	-q string     Kafka topic
//	-n string     tenant name
//	-o string     ACL domain
//	-w int        worker pool size
//	-t duration   store call timeout (e.g., "30s")
//	-l string     log level
//
// The function first filters os.Args to only the flags it recognizes using
// flagx.FilterArgs, avoiding collisions with other components.
func parseFlags(config *Config) {
	args := flagx.FilterArgs(os.Args[1:], []string{
		"-a", "-m", "-d", "-s", "-u", "-p", "-b", "-g", "-e", "-k", "-q", "-n", "-o", "-w", "-t", "-l",
	})

	fs := flag.NewFlagSet("main", flag.ContinueOnError)

	fs.StringVar(&config.EndpointAddrGRPC, "a", config.EndpointAddrGRPC, "address and port to run server")
	fs.StringVar(&config.MetricsAddr, "m", config.MetricsAddr, "address and port for metrics and health")
	fs.StringVar(&config.DatabaseDSN, "d", config.DatabaseDSN, "database DSN")
	fs.StringVar(&config.SecretKey, "s", config.SecretKey, "secret key")

	fs.StringVar(&config.S3RootUser, "u", config.S3RootUser, "S3 root user")
	fs.StringVar(&config.S3RootPassword, "p", config.S3RootPassword, "S3 root password")
	fs.StringVar(&config.S3Bucket, "b", config.S3Bucket, "S3 root bucket")
	fs.StringVar(&config.S3Region, "g", config.S3Region, "S3 root region")
	fs.StringVar(&config.S3BaseEndpoint, "e", config.S3BaseEndpoint, "S3 base endpoint")

	brokers := fs.String("k", strings.Join(config.KafkaBrokers, ","), "kafka brokers, comma separated")
	fs.StringVar(&config.KafkaTopic, "q", config.KafkaTopic, "kafka topic")

	fs.StringVar(&config.TenantName, "n", config.TenantName, "tenant name")
	fs.StringVar(&config.AclDomain, "o", config.AclDomain, "acl domain")
	fs.IntVar(&config.WorkerThreads, "w", config.WorkerThreads, "worker pool size")
	fs.DurationVar(&config.StoreCallTimeout, "t", config.StoreCallTimeout, "store call timeout")
	fs.StringVar(&config.LogLevel, "l", config.LogLevel, "log level")

	if err := fs.Parse(args); err != nil {
		panic(err)
	}

	config.KafkaBrokers = splitList(*brokers)
}

func splitList(s string) []string {
	var out []string
	for _, v := range strings.Split(s, ",") {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}
