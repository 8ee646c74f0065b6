package pipeline

// PipelineName is reported in every run summary.
const PipelineName = "paypal_data_pipeline"

// Final run statuses.
const (
	StatusDone     = "DONE"
	StatusDegraded = "DEGRADED"
	StatusAborted  = "ABORTED"
)

// Stage names used in logs and metrics.
const (
	StageValidateEnvironment = "validate_environment"
	StageComputeWindow       = "compute_date_window"
	StageExtract             = "extract"
	StageNormalize           = "normalize"
	StageLoad                = "load"
	StageQualityCheck        = "quality_check"
	StageNotify              = "notify"
	StageCleanup             = "cleanup"
)
