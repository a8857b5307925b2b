package analytics

import "fmt"

type DataCollectorConfig struct {
	FileName      string
	CollectorType DataCollectorType
}

type DataCollectorType string

const LOG_FILE_DATA_COLLECTOR DataCollectorType = "LOG_FILE_DATA_COLLECTOR"
const NOOP_DATA_COLLECTOR DataCollectorType = "NOOP_DATA_COLLECTOR"

// WorkflowDataCollector receives one record per executed step and per
// delivered signal.
type WorkflowDataCollector interface {
	RecordStepSuccess(planName string, instanceId string, stepName string, step int, output any)
	RecordStepFailure(planName string, instanceId string, stepName string, step int, reason string)
	RecordSignal(planName string, instanceId string, signalName string, reason string)
}

// NewDataCollector builds the configured collector, a file name alone is
// enough to get the log file collector.
func NewDataCollector(config DataCollectorConfig) (WorkflowDataCollector, error) {
	if config.CollectorType == "" && config.FileName != "" {
		config.CollectorType = LOG_FILE_DATA_COLLECTOR
	}
	switch config.CollectorType {
	case LOG_FILE_DATA_COLLECTOR:
		return NewLogFileDataCollector(config.FileName)
	case NOOP_DATA_COLLECTOR, "":
		return NoopDataCollector{}, nil
	}
	return nil, fmt.Errorf("unknown data collector %s", config.CollectorType)
}

type NoopDataCollector struct{}

func (NoopDataCollector) RecordStepSuccess(planName string, instanceId string, stepName string, step int, output any) {
}

func (NoopDataCollector) RecordStepFailure(planName string, instanceId string, stepName string, step int, reason string) {
}

func (NoopDataCollector) RecordSignal(planName string, instanceId string, signalName string, reason string) {
}
