package main

import (
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/aura-studio/funcframe/dynamic"
	funchttp "github.com/aura-studio/funcframe/http"
	"github.com/aura-studio/funcframe/logging"
	"github.com/aura-studio/funcframe/server"
	"github.com/aura-studio/funcframe/sqs"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

var rootCmd = &cobra.Command{
	Use:   "funcframe",
	Short: "Serve a function over HTTP, API Gateway or SQS",
	Long: `funcframe serves one function target. The target is either a function
registered in the binary or a dynamic package reference of the form
package/version[/route].

Every flag can also be set through its environment variable, for example
FUNCTION_TARGET, FUNCTION_SIGNATURE_TYPE or PORT.`,
	SilenceUsage: true,
	RunE:         run,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

// flag name -> environment variable
var envBindings = map[string]string{
	"target":           "FUNCTION_TARGET",
	"signature-type":   "FUNCTION_SIGNATURE_TYPE",
	"port":             "PORT",
	"timeout":          "CLOUD_RUN_TIMEOUT_SECONDS",
	"ignored-routes":   "IGNORED_ROUTES",
	"mode":             "FUNCTION_MODE",
	"debug":            "DEBUG",
	"metrics-address":  "METRICS_ADDRESS",
	"queue-url":        "QUEUE_URL",
	"config":           "FUNCTION_CONFIG",
	"warehouse":        "FUNCTION_WAREHOUSE",
	"remote-warehouse": "FUNCTION_REMOTE_WAREHOUSE",
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.String("target", "", "function to serve")
	flags.String("signature-type", "http", "function signature: http, event or cloudevent")
	flags.String("port", "8080", "port the http listener binds")
	flags.Int("timeout", 0, "invocation timeout in seconds, 0 disables it")
	flags.String("ignored-routes", "", "routes answered with 404 without calling the function")
	flags.String("mode", server.ModeHTTP, "transport: http, apigateway, sqs or sqs-poll")
	flags.Bool("debug", false, "development logging and gin debug mode")
	flags.String("metrics-address", "", "serve Prometheus metrics on this address")
	flags.String("queue-url", "", "SQS queue polled in sqs-poll mode")
	flags.String("config", "", "funcframe.yaml file")
	flags.String("warehouse", "", "local directory dynamic packages are loaded from")
	flags.String("remote-warehouse", "", "remote store dynamic packages are fetched from")

	if err := bindFlags(viper.GetViper(), flags); err != nil {
		panic(err)
	}
}

// bindFlags lets v read every flag in envBindings from the command line or
// its environment variable.
func bindFlags(v *viper.Viper, flags *pflag.FlagSet) error {
	for name, env := range envBindings {
		f := flags.Lookup(name)
		if f == nil {
			return fmt.Errorf("bind %s: flag is not defined", name)
		}
		if err := v.BindPFlag(name, f); err != nil {
			return fmt.Errorf("bind %s: %w", name, err)
		}
		if err := v.BindEnv(name, env); err != nil {
			return fmt.Errorf("bind %s to %s: %w", name, env, err)
		}
	}
	return nil
}

func run(cmd *cobra.Command, args []string) error {
	logger, err := logging.New(viper.GetBool("debug"))
	if err != nil {
		return err
	}
	defer logger.Sync()
	logging.SetDefault(logger)

	opts, err := serveOptions(viper.GetViper())
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		<-ctx.Done()
		if err := server.Close(); err != nil {
			logger.Warn("shutdown", zap.Error(err))
		}
	}()

	if err := server.Serve(ctx, opts...); err != nil && ctx.Err() == nil {
		return err
	}
	return nil
}

// serveOptions turns flags and environment into server options. A config
// file goes first so explicitly set flags override it. Without --config the
// well-known config locations are searched.
func serveOptions(v *viper.Viper) ([]server.Option, error) {
	var opts []server.Option
	path := v.GetString("config")
	if path == "" {
		found, err := server.FindDefaultServeConfigFile()
		if err != nil && !errors.Is(err, server.ErrNoServeConfig) {
			return nil, err
		}
		path = found
	}
	if path != "" {
		if _, err := os.Stat(path); err != nil {
			return nil, err
		}
		opts = append(opts, server.WithServeConfigFile(path))
	}

	var httpOpts []funchttp.Option
	if v.IsSet("target") {
		httpOpts = append(httpOpts, funchttp.WithTarget(v.GetString("target")))
	}
	if v.IsSet("signature-type") {
		httpOpts = append(httpOpts, funchttp.WithSignatureType(v.GetString("signature-type")))
	}
	if v.IsSet("port") {
		port := v.GetString("port")
		if _, err := strconv.Atoi(port); err != nil {
			return nil, err
		}
		httpOpts = append(httpOpts, funchttp.WithAddress(":"+port))
	}
	if v.IsSet("timeout") {
		httpOpts = append(httpOpts, funchttp.WithTimeout(time.Duration(v.GetInt("timeout"))*time.Second))
	}
	if v.IsSet("ignored-routes") {
		httpOpts = append(httpOpts, funchttp.WithIgnoredRoutes(v.GetString("ignored-routes")))
	}
	if v.GetBool("debug") {
		httpOpts = append(httpOpts, funchttp.WithDebugMode())
		opts = append(opts, server.WithSQS(sqs.WithDebugMode(true)))
	}
	if len(httpOpts) > 0 {
		opts = append(opts, server.WithHTTP(httpOpts...))
	}

	if v.IsSet("mode") {
		opts = append(opts, server.WithMode(v.GetString("mode")))
	}
	if v.IsSet("metrics-address") {
		opts = append(opts, server.WithMetricsAddress(v.GetString("metrics-address")))
	}
	if v.IsSet("queue-url") {
		opts = append(opts, server.WithSQS(sqs.WithQueueURL(v.GetString("queue-url"))))
	}
	if v.IsSet("warehouse") || v.IsSet("remote-warehouse") {
		opts = append(opts, server.WithDynamic(dynamic.WithWarehouse(v.GetString("warehouse"), v.GetString("remote-warehouse"))))
	}
	return opts, nil
}
