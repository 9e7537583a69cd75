package cli

import (
	"fmt"
	"os"

	"github.com/ploston/dael/internal/mcpserver"
	"github.com/ploston/dael/internal/obs"
	"github.com/ploston/dael/internal/style"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	// Serve command flags
	serveHTTP bool
	serveHost string
	servePort int
)

// serveCmd represents the serve command
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the workflow and tool registry over MCP",
	Long: `Serve the loaded workflows and tools as MCP (Model Context Protocol)
tools over stdio by default, or over HTTP/WebSocket with --http.

Every loaded workflow is exposed as a tool named "workflow:<name>";
calling it runs the workflow once, in memory, and returns its full
execution result.

Examples:
  dael serve                         # Serve over stdio (the default transport)
  dael serve --http --port 8080      # Serve over HTTP and WebSocket
  dael serve --http --host 0.0.0.0`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		rt, err := buildRuntime(ctx)
		if err != nil {
			style.Error(cmd.OutOrStderr(), fmt.Sprintf("failed to initialize runtime: %v", err))
			return err
		}

		metrics := obs.NewMetrics(prometheus.DefaultRegisterer)
		logger := obs.ComponentLogger(log.Logger, rt.cfg.Logging, "mcpserver")
		dispatcher := mcpserver.NewDispatcher(rt.tools, rt.invoker, rt.engine, logger).WithMetrics(metrics)

		if serveHTTP {
			return serveMCPOverHTTP(cmd, rt, dispatcher)
		}
		return mcpserver.ServeStdio(ctx, dispatcher, cmd.InOrStdin(), cmd.OutOrStdout(), logger)
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().BoolVar(&serveHTTP, "http", false, "serve over HTTP/WebSocket instead of stdio")
	serveCmd.Flags().StringVar(&serveHost, "host", "localhost", "HTTP server host")
	serveCmd.Flags().IntVarP(&servePort, "port", "p", 8080, "HTTP server port")
}

func serveMCPOverHTTP(cmd *cobra.Command, rt *runtime, dispatcher *mcpserver.Dispatcher) error {
	httpConfig := mcpserver.DefaultHTTPConfig()
	httpConfig.Host = serveHost
	httpConfig.Port = servePort

	logger := obs.ComponentLogger(log.Logger, rt.cfg.Logging, "mcpserver_http")
	srv := mcpserver.NewHTTPServer(httpConfig, dispatcher, logger)

	if !viper.GetBool("quiet") {
		style.Success(cmd.OutOrStdout(), fmt.Sprintf("DAEL MCP server starting at http://%s:%d/mcp", serveHost, servePort))
		fmt.Fprintf(cmd.OutOrStdout(), "%s Workflows loaded: %d\n", style.InfoIcon(), len(rt.workflows.List()))
		fmt.Fprintf(cmd.OutOrStdout(), "%s Metrics: http://%s:%d/metrics\n", style.InfoIcon(), serveHost, servePort)
	}

	if err := srv.ServeUntilSignal(); err != nil {
		style.Error(cmd.OutOrStderr(), fmt.Sprintf("server error: %v", err))
		os.Exit(1)
	}
	return nil
}
