package cmd

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/xxxsen/common/logger"
	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/davgo/webdav"
	"github.com/davgo/webdav/cmd/davc/config"
)

const (
	defaultConfigFileEnv = "DAVC_CONFIG"
	defaultConfigFile    = "/etc/davc/davc_config.json"
	userAgentName        = "davc"
	userAgentVersion     = "1.0"
)

var cmds []CreateFunc

type Context struct {
	Client *webdav.Client
	Config *config.Config
}

type CreateFunc func(ctx *Context) *cobra.Command

func register(cr CreateFunc) {
	cmds = append(cmds, cr)
}

func loadConfig(cfgs []string) (*config.Config, error) {
	var c *config.Config
	var err error
	for _, cfg := range cfgs {
		if cfg == "" {
			continue
		}
		c, err = config.Parse(cfg)
		if err == nil {
			break
		}
	}
	if c == nil {
		c = config.Default()
	}
	if err := config.ApplyEnv(c); err != nil {
		return nil, err
	}
	if verr := c.Validate(); verr != nil {
		if err != nil {
			return nil, fmt.Errorf("%w, last config err:%v", verr, err)
		}
		return nil, verr
	}
	return c, nil
}

func initContext(ctx context.Context, c *Context, cfgs []string) error {
	cfg, err := loadConfig(cfgs)
	if err != nil {
		return err
	}
	c.Config = cfg
	logger.Init("", cfg.LogLevel, 0, 0, 0, true)

	opts := []webdav.Option{
		webdav.WithBasePath(cfg.BasePath),
		webdav.WithPort(cfg.Port),
		webdav.WithUserAgent(userAgentName, userAgentVersion),
		webdav.WithTimeout(time.Duration(cfg.Timeout) * time.Second),
		webdav.WithUploadTimeout(time.Duration(cfg.UploadTimeout) * time.Second),
		webdav.WithProxy(cfg.Proxy),
		webdav.WithInsecureSkipVerify(cfg.InsecureSkipVerify),
		webdav.WithLogger(logutil.GetLogger(ctx)),
	}
	if cfg.User != "" {
		opts = append(opts, webdav.WithBasicAuth(cfg.User, cfg.Password))
	}
	cli, err := webdav.NewClient(cfg.Server, opts...)
	if err != nil {
		return err
	}
	c.Client = cli
	logutil.GetLogger(ctx).Debug("davc client created", zap.String("server", cfg.Server), zap.String("base_path", cfg.BasePath))
	return nil
}

func NewRoot() *cobra.Command {
	var configFile string
	ctx := &Context{}
	var rootCmd = &cobra.Command{
		Use:           "davc",
		Short:         "WebDAV CLI tool",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	for _, cr := range cmds {
		rootCmd.AddCommand(cr(ctx))
	}
	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		envConfigFile, _ := os.LookupEnv(defaultConfigFileEnv)
		return initContext(cmd.Context(), ctx, []string{configFile, envConfigFile, defaultConfigFile})
	}
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "config file")
	return rootCmd
}
