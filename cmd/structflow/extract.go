package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"github.com/BaSui01/structflow"
	"github.com/BaSui01/structflow/config"
	"github.com/BaSui01/structflow/extraction"
	"github.com/BaSui01/structflow/structured"
)

func extractCommand() *cli.Command {
	return &cli.Command{
		Name:  "extract",
		Usage: "Extract a JSON document matching a schema from free-form context",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "config", Aliases: []string{"c"}, Usage: "path to config file (YAML)"},
			&cli.StringFlag{Name: "schema", Aliases: []string{"s"}, Usage: "path to schema file (JSON or YAML)", Required: true},
			&cli.StringFlag{Name: "context", Usage: "context text to extract from"},
			&cli.StringFlag{Name: "context-file", Usage: "read the context text from a file"},
			&cli.IntFlag{Name: "retries", Usage: "max retries after a validation failure (default: extraction.max_retries)"},
			&cli.BoolFlag{Name: "progress", Usage: "print partial results to stderr while streaming"},
		},
		Action: extractAction,
	}
}

func extractAction(c *cli.Context) error {
	prompt, err := readContext(c)
	if err != nil {
		return cli.Exit(err.Error(), exitFatal)
	}

	schema, err := structured.LoadSchemaFile(c.String("schema"))
	if err != nil {
		return cli.Exit(fmt.Sprintf("load schema: %v", err), exitFatal)
	}

	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return cli.Exit(fmt.Sprintf("load config: %v", err), exitFatal)
	}
	if c.IsSet("retries") {
		cfg.Extraction.MaxRetries = c.Int("retries")
	}

	logger := initLogger(cfg.Log)
	defer func() { _ = logger.Sync() }()

	sf, err := structflow.New(cfg, structflow.WithLogger(logger))
	if err != nil {
		return cli.Exit(fmt.Sprintf("init: %v", err), exitFatal)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := sf.Close(ctx); err != nil {
			logger.Warn("shutdown failed", zap.Error(err))
		}
	}()

	if cfg.Metrics.Enabled {
		stop, err := serveMetrics(cfg.Metrics.Addr, sf.MetricsHandler(), logger)
		if err != nil {
			return cli.Exit(fmt.Sprintf("metrics listener: %v", err), exitFatal)
		}
		defer stop()
	}

	var onChunk extraction.ProgressFunc
	if c.Bool("progress") {
		errw := c.App.ErrWriter
		onChunk = func(partial any, _ string) error {
			raw, err := json.Marshal(partial)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintf(errw, "%s\n", raw)
			return err
		}
	}

	target, err := sf.ExtractWithRetries(c.Context, schema, prompt, cfg.Extraction.MaxRetries, onChunk)
	if err != nil {
		return cli.Exit(fmt.Sprintf("extract: %v", err), exitFatal)
	}
	return writeResult(c, target)
}

func readContext(c *cli.Context) (string, error) {
	text, file := c.String("context"), c.String("context-file")
	switch {
	case text != "" && file != "":
		return "", errors.New("--context and --context-file are mutually exclusive")
	case file != "":
		data, err := os.ReadFile(file)
		if err != nil {
			return "", fmt.Errorf("read context file: %w", err)
		}
		return string(data), nil
	case text != "":
		return text, nil
	default:
		return "", errors.New("one of --context or --context-file is required")
	}
}

// writeResult 把最终 JSON 写到 stdout，校验错误写到 stderr
func writeResult(c *cli.Context, target extraction.Target) error {
	var value any
	if v, ok := target.(interface{ Value() any }); ok {
		value = v.Value()
	}
	if target.IsSubmitted() {
		raw, err := json.MarshalIndent(value, "", "  ")
		if err != nil {
			return cli.Exit(fmt.Sprintf("encode result: %v", err), exitFatal)
		}
		fmt.Fprintf(c.App.Writer, "%s\n", raw)
	}

	if target.IsValid() {
		return nil
	}
	if !target.IsSubmitted() {
		fmt.Fprintln(c.App.ErrWriter, "no result: the model returned no parseable JSON")
	}
	for _, e := range target.Errors() {
		fmt.Fprintf(c.App.ErrWriter, "invalid: %s\n", e.Error())
	}
	return cli.Exit("", exitInvalid)
}

// serveMetrics 在 addr 上暴露 /metrics，返回的函数关闭服务
func serveMetrics(addr string, handler http.Handler, logger *zap.Logger) (func(), error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", handler)
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server failed", zap.Error(err))
		}
	}()
	logger.Info("metrics server listening", zap.String("addr", ln.Addr().String()))

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}, nil
}
