// =============================================================================
// structflow 命令行入口
// =============================================================================
// 使用方法:
//
//	structflow extract --schema person.json --context "Jason is 25"
//	structflow extract --config structflow.yaml --schema person.yaml --context-file note.txt --progress
//	structflow schema validate --schema person.json
//	structflow audit show --config structflow.yaml --run <run-id>
//	structflow version
//
// extract 的退出码:
//   - 0: 结果通过校验
//   - 1: 致命错误（配置、传输、流读取、回调）
//   - 2: 重试耗尽，结果未通过校验
// =============================================================================

package main

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/urfave/cli/v2"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/BaSui01/structflow/config"
)

// =============================================================================
// 📦 版本信息（构建时注入）
// =============================================================================

var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

const (
	exitOK      = 0
	exitFatal   = 1
	exitInvalid = 2
)

func main() {
	app := newApp()
	app.ExitErrHandler = exitErrHandler(os.Stderr)
	if err := app.Run(os.Args); err != nil {
		os.Exit(exitFatal)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:    "structflow",
		Usage:   "Extract schema-validated JSON from streaming LLM responses",
		Version: fmt.Sprintf("%s (commit: %s)", Version, GitCommit),
		Commands: []*cli.Command{
			extractCommand(),
			schemaCommand(),
			auditCommand(),
			versionCommand(),
		},
	}
}

// exitErrHandler 保留 cli.Exit 的退出码
func exitErrHandler(stderr io.Writer) cli.ExitErrHandlerFunc {
	return func(_ *cli.Context, err error) {
		if err == nil {
			return
		}
		var exitCoder cli.ExitCoder
		if errors.As(err, &exitCoder) {
			code := exitCoder.ExitCode()
			msg := exitCoder.Error()
			if msg != "" && msg != fmt.Sprintf("exit status %d", code) {
				fmt.Fprintln(stderr, msg)
			}
			os.Exit(code)
		}
		fmt.Fprintf(stderr, "Error: %v\n", err)
		os.Exit(exitFatal)
	}
}

func versionCommand() *cli.Command {
	return &cli.Command{
		Name:  "version",
		Usage: "Show version information",
		Action: func(c *cli.Context) error {
			w := c.App.Writer
			fmt.Fprintf(w, "structflow %s\n", Version)
			fmt.Fprintf(w, "  Build Time: %s\n", BuildTime)
			fmt.Fprintf(w, "  Git Commit: %s\n", GitCommit)
			return nil
		},
	}
}

// =============================================================================
// 🔧 日志初始化
// =============================================================================

func initLogger(cfg config.LogConfig) *zap.Logger {
	// 解析日志级别
	var level zapcore.Level
	switch cfg.Level {
	case "debug":
		level = zapcore.DebugLevel
	case "warn":
		level = zapcore.WarnLevel
	case "error":
		level = zapcore.ErrorLevel
	default:
		level = zapcore.InfoLevel
	}

	// 配置编码器
	var encoderConfig zapcore.EncoderConfig
	encoding := "json"
	if cfg.Format == "console" {
		encoding = "console"
		encoderConfig = zap.NewDevelopmentEncoderConfig()
		encoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	} else {
		encoderConfig = zap.NewProductionEncoderConfig()
		encoderConfig.TimeKey = "timestamp"
		encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	}

	outputs := cfg.OutputPaths
	if len(outputs) == 0 {
		outputs = []string{"stderr"}
	}

	zapConfig := zap.Config{
		Level:             zap.NewAtomicLevelAt(level),
		Development:       encoding == "console",
		Encoding:          encoding,
		EncoderConfig:     encoderConfig,
		OutputPaths:       outputs,
		ErrorOutputPaths:  []string{"stderr"},
		DisableCaller:     !cfg.EnableCaller,
		DisableStacktrace: !cfg.EnableStacktrace,
	}

	logger, err := zapConfig.Build()
	if err != nil {
		// 回退到基本 logger
		logger, _ = zap.NewProduction()
	}
	return logger
}
