package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/toolgate/toolgate/internal/config"
	"github.com/toolgate/toolgate/internal/mcp"
	"github.com/toolgate/toolgate/internal/server"
	"github.com/toolgate/toolgate/internal/service"
)

const banner = `
 _              _             _
| |_ ___   ___ | | __ _  __ _| |_ ___
| __/ _ \ / _ \| |/ _' |/ _' | __/ _ \
| || (_) | (_) | | (_| | (_| | ||  __/
 \__\___/ \___/|_|\__, |\__,_|\__\___|
                  |___/
`

func newServeCmd() *cobra.Command {
	var (
		port int
		host string
		dev  bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the toolgate server",
		Long:  "Start the HTTP server that exposes the admin API and the authenticated MCP endpoint at /mcp.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.OutOrStdout(), cmd.ErrOrStderr(), dev)
		},
	}

	cmd.Flags().IntVarP(&port, "port", "p", 8000, "HTTP listen port")
	cmd.Flags().StringVar(&host, "host", "127.0.0.1", "HTTP listen host")
	cmd.Flags().BoolVar(&dev, "dev", false, "Enable development mode (debug logging)")

	viper.BindPFlag("server.port", cmd.Flags().Lookup("port"))
	viper.BindPFlag("server.host", cmd.Flags().Lookup("host"))

	return cmd
}

func runServe(stdout, stderr io.Writer, dev bool) error {
	level := viper.GetString("logging.level")
	if dev {
		level = "debug"
	}
	logger := newLogger(stderr, level, viper.GetString("logging.format"))
	ctx := context.Background()

	// 1. Lock and open the data directory
	dir := resolveDataDir()
	lk, err := lockDataDir(dir)
	if err != nil {
		return err
	}
	defer lk.Close()

	st, err := openStores(dir)
	if err != nil {
		return err
	}
	defer st.Close()
	logger.Info("storage initialized", "path", dir, "driver", viper.GetString("storage.driver"))

	// 2. Load secrets; a corrupt store stops startup
	opts, err := authOptions(logger)
	if err != nil {
		return err
	}
	authSvc, err := service.NewAuthService(ctx, st.secrets, opts)
	if errors.Is(err, config.ErrStorageCorrupt) {
		return fmt.Errorf("refusing to start: %w\nrestore the secrets from a backup or move them aside to start over", err)
	}
	if err != nil {
		return fmt.Errorf("init auth service: %w", err)
	}

	// 3. First run creates the admin account
	boot, err := authSvc.Bootstrap(ctx)
	if err != nil {
		return err
	}
	if boot.Created && boot.Generated {
		fmt.Fprintln(stderr)
		fmt.Fprintln(stderr, "Admin account created:")
		fmt.Fprintf(stderr, "  Username: %s\n", boot.Username)
		fmt.Fprintf(stderr, "  Password: %s\n", boot.Password)
		fmt.Fprintln(stderr)
		fmt.Fprintln(stderr, "  Save this password now - it will not be shown again.")
		fmt.Fprintln(stderr)
	}

	// 4. Build and start HTTP server
	version := versionString()
	srvCfg := server.Config{
		Host:            viper.GetString("server.host"),
		Port:            viper.GetInt("server.port"),
		ShutdownTimeout: 30 * time.Second,
		CORSOrigins:     viper.GetStringSlice("server.cors_origins"),
		CookieSecure:    viper.GetBool("auth.cookie_secure"),
		LoginRateLimit:  viper.GetInt("auth.login_rate_limit"),
		RequestLog:      viper.GetBool("request_log.enabled"),
		RequestLogMax:   viper.GetInt("request_log.max_records"),
		SweepInterval:   10 * time.Minute,
		Version:         version,
	}
	srv := server.New(srvCfg, st.sql, authSvc, mcp.NewMCPServer(version, logger), logger)

	base := fmt.Sprintf("http://%s:%d", srvCfg.Host, srvCfg.Port)
	fmt.Fprint(stdout, banner)
	fmt.Fprintln(stdout)
	fmt.Fprintf(stdout, "→ toolgate %s\n", version)
	fmt.Fprintf(stdout, "→ Listening on %s\n", base)
	fmt.Fprintf(stdout, "→ Admin API:  %s/api\n", base)
	fmt.Fprintf(stdout, "→ MCP:        %s/mcp\n", base)
	fmt.Fprintf(stdout, "→ OpenAPI:    %s/openapi.json\n", base)
	fmt.Fprintf(stdout, "→ Health:     %s/healthz\n", base)
	fmt.Fprintln(stdout)

	if srvCfg.Host != "127.0.0.1" && srvCfg.Host != "localhost" && !srvCfg.CookieSecure {
		logger.Warn("listening beyond localhost without auth.cookie_secure; put TLS in front of toolgate")
	}
	if viper.GetString("auth.default_password") != "" {
		logger.Warn("auth.default_password is set; use it for development only")
	}

	return srv.ListenAndServe()
}
