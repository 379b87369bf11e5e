package config

import (
	"flag"
	"os"
	"strings"

	"github.com/dmitrijs2005/dlkeeper/internal/flagx"
)

var serverFlags = []string{"-a", "-grpc", "-d", "-s", "-u", "-p", "-b", "-g", "-e", "-l", "-f", "-ttl", "-m", "-redis", "-log", "-proxies"}

// parseFlags populates Config fields from command-line flags.
//
// Supported flags:
//
//	-a string       HTTP bind address (e.g., ":8080")
//	-grpc string    fulfillment gRPC bind address (e.g., ":50051")
//	-d string       PostgreSQL DSN
//	-s string       JWT HMAC secret key
//	-u / -p string  S3 root user / password
//	-b string       S3 bucket name
//	-g string       S3 region
//	-e string       S3 base endpoint (e.g., "http://127.0.0.1:9000/")
//	-l string       download base URL put into issued links
//	-f string       default artifact for unmapped products
//	-ttl duration   token lifetime (e.g., "168h")
//	-m int          downloads allowed per token
//	-redis string   Redis address for download rate limiting
//	-log string     log level
//	-proxies string comma-separated trusted proxy CIDRs
//
// Only the flags above are considered; everything else in os.Args is
// filtered out first with flagx.FilterArgs.
func parseFlags(config *Config) {
	args := flagx.FilterArgs(os.Args[1:], serverFlags)

	fs := flag.NewFlagSet("main", flag.ContinueOnError)

	fs.StringVar(&config.HTTPAddr, "a", config.HTTPAddr, "HTTP address and port to serve downloads on")
	fs.StringVar(&config.GRPCAddr, "grpc", config.GRPCAddr, "gRPC address and port for fulfillment calls")
	fs.StringVar(&config.DatabaseDSN, "d", config.DatabaseDSN, "database DSN")
	fs.StringVar(&config.SecretKey, "s", config.SecretKey, "secret key")
	fs.StringVar(&config.S3RootUser, "u", config.S3RootUser, "S3 root user")
	fs.StringVar(&config.S3RootPassword, "p", config.S3RootPassword, "S3 root password")
	fs.StringVar(&config.S3Bucket, "b", config.S3Bucket, "S3 bucket")
	fs.StringVar(&config.S3Region, "g", config.S3Region, "S3 region")
	fs.StringVar(&config.S3BaseEndpoint, "e", config.S3BaseEndpoint, "S3 base endpoint")
	fs.StringVar(&config.DownloadBaseURL, "l", config.DownloadBaseURL, "download base URL")
	fs.StringVar(&config.DefaultFileKey, "f", config.DefaultFileKey, "default file key")
	fs.DurationVar(&config.TokenTTL, "ttl", config.TokenTTL, "download token lifetime")
	fs.IntVar(&config.MaxDownloads, "m", config.MaxDownloads, "max downloads per token")
	fs.StringVar(&config.RedisAddr, "redis", config.RedisAddr, "redis address for rate limiting")
	fs.StringVar(&config.LogLevel, "log", config.LogLevel, "log level")
	proxies := fs.String("proxies", strings.Join(config.TrustedProxies, ","), "trusted proxy CIDRs, comma separated")

	if err := fs.Parse(args); err != nil {
		panic(err)
	}

	if *proxies != "" {
		config.TrustedProxies = strings.Split(*proxies, ",")
	}
}
