package analytics

import (
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type LogFileDataCollector struct {
	fileName string
	logger   *zap.Logger
}

func NewLogFileDataCollector(fileName string) (*LogFileDataCollector, error) {
	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	encoderConfig.StacktraceKey = ""
	fileEncoder := zapcore.NewJSONEncoder(encoderConfig)
	logFile, err := os.OpenFile(fileName, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return nil, err
	}
	core := zapcore.NewCore(fileEncoder, zapcore.AddSync(logFile), zapcore.InfoLevel)
	return &LogFileDataCollector{
		fileName: fileName,
		logger:   zap.New(core),
	}, nil
}

func (lc *LogFileDataCollector) RecordStepSuccess(planName string, instanceId string, stepName string, step int, output any) {
	lc.logger.Info("success", zap.String("plan", planName), zap.String("instanceId", instanceId), zap.String("step", stepName), zap.Int("index", step), zap.Any("output", output))
}

func (lc *LogFileDataCollector) RecordStepFailure(planName string, instanceId string, stepName string, step int, reason string) {
	lc.logger.Info("failure", zap.String("plan", planName), zap.String("instanceId", instanceId), zap.String("step", stepName), zap.Int("index", step), zap.String("reason", reason))
}

func (lc *LogFileDataCollector) RecordSignal(planName string, instanceId string, signalName string, reason string) {
	msg := "signal"
	if reason != "" {
		msg = "signal failure"
	}
	lc.logger.Info(msg, zap.String("plan", planName), zap.String("instanceId", instanceId), zap.String("signal", signalName), zap.String("reason", reason))
}

func (lc *LogFileDataCollector) Sync() error {
	return lc.logger.Sync()
}
