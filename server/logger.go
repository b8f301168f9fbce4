package server

import (
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Log 全局 SugaredLogger；InitLogger 之前为空实现，测试中无需初始化
var Log = zap.NewNop().Sugar()

// InitLogger 按级别初始化日志。filePath 为空时写到 stderr，否则写入滚动文件
// level: debug/info/warn/error
func InitLogger(filePath, level string) error {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return err
	}

	var sink zapcore.WriteSyncer
	if filePath == "" {
		sink = zapcore.Lock(os.Stderr)
	} else {
		// 10MB 每文件，保留 3 个备份，最多 7 天
		sink = zapcore.AddSync(&lumberjack.Logger{
			Filename:   filePath,
			MaxSize:    10,
			MaxBackups: 3,
			MaxAge:     7,
		})
	}

	enc := zap.NewProductionEncoderConfig()
	enc.TimeKey = "ts"
	enc.EncodeTime = zapcore.ISO8601TimeEncoder
	enc.EncodeLevel = zapcore.CapitalLevelEncoder
	core := zapcore.NewCore(zapcore.NewConsoleEncoder(enc), sink, lvl)

	Log = zap.New(core, zap.AddCaller(), zap.AddStacktrace(zapcore.ErrorLevel)).Sugar()
	return nil
}

// SyncLogger 刷新缓冲
func SyncLogger() {
	_ = Log.Sync()
}
