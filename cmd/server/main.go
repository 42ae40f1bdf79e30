package main

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/mruberto/lupus/internal/config"
	"github.com/mruberto/lupus/internal/server"
)

const releaseVersion = "0.2.0"

type flags struct {
	configPath string
	listen     string
	redisAddr  string
}

func newCmd(f *flags) *cobra.Command {
	v := viper.New()
	v.SetEnvPrefix("LUPUS")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	cmd := &cobra.Command{
		Use:           "lupus",
		Short:         "Session server for a werewolf-style social deduction game.",
		Args:          cobra.ExactArgs(0),
		Version:       releaseVersion,
		SilenceErrors: true,
		SilenceUsage:  true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(f)
		},
	}

	fs := cmd.Flags()
	fs.SetNormalizeFunc(func(_ *pflag.FlagSet, name string) pflag.NormalizedName {
		return pflag.NormalizedName(strings.ReplaceAll(name, "_", "-"))
	})

	fs.StringVarP(&f.configPath, "config", "c", "", "path to YAML config file (env: LUPUS_CONFIG)")
	fs.StringVarP(&f.listen, "listen", "l", "", "listen address, overrides config (env: LUPUS_LISTEN)")
	fs.StringVar(&f.redisAddr, "redis", "", "redis address for the room journal, overrides config (env: LUPUS_REDIS)")

	fs.VisitAll(func(fl *pflag.Flag) {
		_ = v.BindPFlag(fl.Name, fl)
		_ = v.BindEnv(fl.Name)
		if !fl.Changed && v.IsSet(fl.Name) {
			_ = fs.Set(fl.Name, fmt.Sprintf("%v", v.Get(fl.Name)))
		}
	})

	cmd.CompletionOptions.HiddenDefaultCmd = true
	cmd.SetHelpCommand(&cobra.Command{Hidden: true})
	cmd.SetVersionTemplate("lupus v{{.Version}}\n")

	return cmd
}

func run(f *flags) error {
	cfg := config.Default()
	if f.configPath != "" {
		loaded, err := config.Load(f.configPath)
		if err != nil {
			return err
		}
		cfg = loaded
	}
	if f.listen != "" {
		cfg.Listen = f.listen
	}
	if f.redisAddr != "" {
		cfg.RedisAddr = f.redisAddr
	}

	var opts []server.Option
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := rdb.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("connect to redis at %s: %w", cfg.RedisAddr, err)
		}
		log.Printf("journal backed by redis at %s", cfg.RedisAddr)
		opts = append(opts, server.WithRedis(rdb))
	}

	srv := server.New(cfg, opts...)
	log.Printf("listening on %s", cfg.Listen)
	return srv.Run()
}

func main() {
	log.SetFlags(0)
	cobra.CheckErr(newCmd(&flags{}).Execute())
}
