package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	funchttp "github.com/aura-studio/funcframe/http"
	"github.com/aura-studio/funcframe/server"
	"github.com/aura-studio/funcframe/sqs"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestServeOptionsFromEnvironment(t *testing.T) {
	v := viper.New()
	v.Set("target", "HelloWorld")
	v.Set("signature-type", "cloudevent")
	v.Set("port", "9090")
	v.Set("timeout", 3)
	v.Set("ignored-routes", "")
	v.Set("mode", server.ModeSQSPoll)
	v.Set("queue-url", "https://sqs.example/q")

	opts, err := serveOptions(v)
	require.NoError(t, err)

	o := server.NewOptions(opts...)
	assert.Equal(t, server.ModeSQSPoll, o.Mode)

	h := funchttp.NewOptions(o.Http...)
	assert.Equal(t, "HelloWorld", h.Target)
	assert.Equal(t, "cloudevent", h.SignatureType)
	assert.Equal(t, ":9090", h.Address)
	assert.Equal(t, 3*time.Second, h.Timeout)
	require.NotNil(t, h.IgnoredRoutes)
	assert.Equal(t, "", *h.IgnoredRoutes)

	s := sqs.NewOptions(o.Sqs...)
	assert.Equal(t, "https://sqs.example/q", s.QueueURL)
}

func TestServeOptionsUnsetKeepDefaults(t *testing.T) {
	opts, err := serveOptions(viper.New())
	require.NoError(t, err)

	o := server.NewOptions(opts...)
	assert.Equal(t, server.ModeHTTP, o.Mode)

	h := funchttp.NewOptions(o.Http...)
	assert.Equal(t, ":8080", h.Address)
	assert.Nil(t, h.IgnoredRoutes)
}

func TestServeOptionsFlagsOverrideConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "funcframe.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
mode: apigateway
http:
  target: FromFile
  timeout: 10s
`), 0o644))

	v := viper.New()
	v.Set("config", path)
	v.Set("target", "FromFlag")

	opts, err := serveOptions(v)
	require.NoError(t, err)

	o := server.NewOptions(opts...)
	assert.Equal(t, server.ModeAPIGateway, o.Mode)

	h := funchttp.NewOptions(o.Http...)
	assert.Equal(t, "FromFlag", h.Target)
	assert.Equal(t, 10*time.Second, h.Timeout)
}

func chdir(t *testing.T, dir string) {
	t.Helper()
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(wd) })
}

func TestServeOptionsFindDefaultConfig(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "funcframe.yaml"), []byte(`
mode: sqs
http:
  target: Discovered
`), 0o644))
	chdir(t, dir)

	opts, err := serveOptions(viper.New())
	require.NoError(t, err)

	o := server.NewOptions(opts...)
	assert.Equal(t, server.ModeSQS, o.Mode)
	assert.Equal(t, "Discovered", funchttp.NewOptions(o.Http...).Target)

	chdir(t, t.TempDir())
	opts, err = serveOptions(viper.New())
	require.NoError(t, err)
	assert.Equal(t, server.ModeHTTP, server.NewOptions(opts...).Mode)
}

func TestBindFlags(t *testing.T) {
	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	for name := range envBindings {
		flags.String(name, "", "")
	}
	require.NoError(t, flags.Parse([]string{"--port", "9000"}))
	t.Setenv("FUNCTION_TARGET", "FromEnv")

	v := viper.New()
	require.NoError(t, bindFlags(v, flags))
	assert.Equal(t, "FromEnv", v.GetString("target"))
	assert.Equal(t, "9000", v.GetString("port"))
	assert.True(t, v.IsSet("port"))
	assert.False(t, v.IsSet("mode"))

	err := bindFlags(viper.New(), pflag.NewFlagSet("empty", pflag.ContinueOnError))
	assert.ErrorContains(t, err, "flag is not defined")
}

func TestServeOptionsRejectsBadInput(t *testing.T) {
	v := viper.New()
	v.Set("port", "http")
	_, err := serveOptions(v)
	assert.Error(t, err)

	v = viper.New()
	v.Set("config", filepath.Join(t.TempDir(), "missing.yaml"))
	_, err = serveOptions(v)
	assert.Error(t, err)
}
