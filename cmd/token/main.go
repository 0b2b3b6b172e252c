// token 为运维人员签发访问协调 API 的令牌。
package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/pflag"

	jwtpkg "listsync/backend/internal/auth/jwt"
	"listsync/backend/internal/config"
)

func main() {
	var ttl time.Duration

	flagSet := pflag.NewFlagSet("token", pflag.ExitOnError)
	flagSet.DurationVar(&ttl, "ttl", 0, "token lifetime (default: jwt.ttl)")
	flagSet.Usage = func() {
		fmt.Fprintln(os.Stderr, "Usage: token [--ttl 24h] <operator>")
		flagSet.PrintDefaults()
	}
	_ = flagSet.Parse(os.Args[1:])

	if flagSet.NArg() != 1 {
		flagSet.Usage()
		os.Exit(1)
	}

	// 加载配置
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	if cfg.JWT.Secret == "" {
		fmt.Fprintln(os.Stderr, "jwt.secret is not configured")
		os.Exit(1)
	}
	if ttl <= 0 {
		ttl = cfg.JWT.TTL
	}

	manager := jwtpkg.NewManager(cfg.JWT.Secret, cfg.JWT.Issuer, ttl)
	token, err := manager.GenerateToken(flagSet.Arg(0))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to generate token: %v\n", err)
		os.Exit(1)
	}

	fmt.Println(token)
}
