package server

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/ledgerly/sentinel/binding"
	"github.com/ledgerly/sentinel/config"
	sentinelhttp "github.com/ledgerly/sentinel/http"
	"github.com/ledgerly/sentinel/jwtsec"
	"github.com/ledgerly/sentinel/listener"
	"github.com/ledgerly/sentinel/listener/api"
	"github.com/ledgerly/sentinel/logger"
	"github.com/ledgerly/sentinel/store"
	"github.com/spf13/cobra"
)

const subsystemListener = "listener"

var (
	configPath string

	ServerCmd = &cobra.Command{
		Use:   "server",
		Short: "This command starts a Sentinel server that responds to API requests",
		Long: `
Usage: sentinel server [options]

  This command starts a Sentinel server that responds to API requests.
  Start a server with a configuration file:

      $ sentinel server --config=/etc/sentinel/config.hcl
  `,
		RunE: run,
	}

	wg sync.WaitGroup

	cleanupGuard sync.Once
)

func init() {
	ServerCmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to configuration file (e.g., path/to/sentinel.hcl)")
}

func run(cmd *cobra.Command, args []string) error {
	if configPath == "" {
		return fmt.Errorf("config file path is required. Use -c or --config flag")
	}

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return fmt.Errorf("config file not found: %s", configPath)
	}

	conf, err := config.LoadConfig(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	log := buildLogger(conf)
	defer log.Close()

	jwtConf, err := buildJWTConfig(conf, log)
	if err != nil {
		return fmt.Errorf("refusing to start: %w", err)
	}

	tokenStore, err := buildStore(conf, log)
	if err != nil {
		return fmt.Errorf("failed to construct the token store: %w", err)
	}
	defer tokenStore.Close()

	bindings := binding.NewService(tokenStore, jwtConf, log.WithSubsystem("binding"))
	directory := newStaticDirectory(conf.Users)

	httpHandler := sentinelhttp.NewHandler(&sentinelhttp.HandlerProperties{
		Store:    tokenStore,
		Bindings: bindings,
		JWT:      jwtConf,
		Auth:     directory,
		Users:    directory,
		Logger:   log,
	})

	lns, err := initListeners(httpHandler, conf, log)
	if err != nil {
		return err
	}

	listenerCloseFunc := func() {
		fmt.Fprintf(cmd.OutOrStdout(), "Stopping all listeners\n")
		for _, ln := range lns {
			if err := ln.Stop(); err != nil {
				fmt.Fprintf(cmd.OutOrStdout(), "failed to stop %s listener at %s: %v\n", ln.Type(), ln.Addr(), err)
			}
		}
	}
	defer cleanupGuard.Do(listenerCloseFunc)

	printConfigInfo(cmd, conf)

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	errChan := make(chan error, len(lns))
	for _, ln := range lns {
		ln := ln
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := ln.Start(ctx); err != nil {
				errChan <- err
			}
		}()
	}

	fmt.Fprintf(cmd.OutOrStdout(), "\n==> Sentinel server started! Log data will stream in below:\n")

	select {
	case <-ctx.Done():
	case err = <-errChan:
		cancel()
	}

	cleanupGuard.Do(listenerCloseFunc)
	wg.Wait()

	return err
}

func buildLogger(conf *config.Config) logger.Logger {
	logConf := logger.DefaultConfig()
	logConf.Subsystem = "sentinel"

	if conf.LogLevel != "" {
		logConf.Level = logger.ParseLogLevel(conf.LogLevel)
	}
	if conf.LogFormat != "" {
		logConf.Format = logger.ParseOutputFormat(conf.LogFormat)
	}
	if conf.LogFile != "" {
		logConf.FileConfig = &logger.FileConfig{
			Filename:   conf.LogFile,
			MaxSize:    conf.LogRotateMegabytes,
			MaxBackups: conf.LogRotateMaxFiles,
			Compress:   true,
		}
	}

	return logger.NewZerologLogger(logConf)
}

func buildJWTConfig(conf *config.Config, log logger.Logger) (*jwtsec.Config, error) {
	jwtBlock := conf.JWT
	if jwtBlock == nil {
		// The env var can still supply the secret without a jwt block.
		jwtBlock = &config.JWTBlock{}
	}

	return jwtsec.Load(jwtBlock.ResolvedSecret(), jwtBlock.AccessTTL(), jwtBlock.RefreshTTL(), log.WithSubsystem("jwt"))
}

func buildStore(conf *config.Config, log logger.Logger) (*store.ResilientStore, error) {
	var backend store.Backend

	if conf.Redis != nil {
		backend = store.NewRedisBackend(store.RedisConfig{
			Addr:           conf.Redis.Address,
			Password:       conf.Redis.Password,
			DB:             conf.Redis.DB,
			ConnectTimeout: time.Duration(conf.Redis.ConnectTimeout) * time.Second,
			CommandTimeout: time.Duration(conf.Redis.CommandTimeout) * time.Second,
		})
	}

	return store.NewResilientStore(backend, log.WithSubsystem("store"), nil)
}

func initListeners(httpHandler http.Handler, conf *config.Config, log logger.Logger) ([]listener.Listener, error) {
	lns := make([]listener.Listener, 0, len(conf.Listeners))

	for _, lnConfig := range conf.Listeners {
		switch lnConfig.Protocol {
		case "tcp":
			ln, err := api.NewApiListener(api.ApiListenerConfig{
				Logger:      log.WithSubsystem(subsystemListener),
				Address:     lnConfig.Address,
				TLSCertFile: lnConfig.TLSCertFile,
				TLSKeyFile:  lnConfig.TLSKeyFile,
				TLSEnabled:  lnConfig.TLSEnabled,
			}, httpHandler)
			if err != nil {
				return nil, fmt.Errorf("error initializing listener %s: %w", lnConfig.Name, err)
			}
			lns = append(lns, ln)
		default:
			return nil, fmt.Errorf("unknown listener protocol: %s", lnConfig.Protocol)
		}
	}

	if len(lns) == 0 {
		return nil, fmt.Errorf("no listeners configured")
	}

	return lns, nil
}

func printConfigInfo(cmd *cobra.Command, conf *config.Config) {
	info := map[string]string{
		"log level":  conf.LogLevel,
		"log format": conf.LogFormat,
	}
	if conf.Redis != nil {
		info["storage"] = "redis"
	} else {
		info["storage"] = "inmem"
	}
	for _, ln := range conf.Listeners {
		info[fmt.Sprintf("listener (%s)", ln.Name)] = ln.Address
	}

	keys := make([]string, 0, len(info))
	for k := range info {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	fmt.Fprintf(cmd.OutOrStdout(), "\n==> Sentinel server configuration:\n\n")
	for _, k := range keys {
		fmt.Fprintf(cmd.OutOrStdout(), "%24s: %s\n", k, info[k])
	}
}
