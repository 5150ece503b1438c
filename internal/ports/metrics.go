package ports

// Metric names understood by Observability implementations.
const (
	MetricSamplesAccepted  = "probeflow_samples_accepted_total"
	MetricSamplesDropped   = "probeflow_samples_dropped_total"
	MetricSamplesDiscarded = "probeflow_samples_discarded_total"
	MetricBatchesEmitted   = "probeflow_batches_emitted_total"
	MetricBufferResizes    = "probeflow_buffer_resizes_total"
	MetricSinkErrors       = "probeflow_sink_errors_total"

	MetricHealthScans        = "probeflow_health_scans_total"
	MetricHealthScansSkipped = "probeflow_health_scans_skipped_total"
	MetricHealthScanSeconds  = "probeflow_health_scan_seconds"
	MetricPendingFiles       = "probeflow_pending_files"
	MetricPendingBytes       = "probeflow_pending_bytes"
	MetricArchiveFiles       = "probeflow_archive_files"
	MetricArchiveBytes       = "probeflow_archive_bytes"
	MetricThroughput         = "probeflow_upload_throughput_bytes_per_second"
	MetricClearTime          = "probeflow_estimated_clear_time_seconds"

	MetricDispatchQueueLength = "probeflow_dispatch_queue_length"
	MetricDispatchDropped     = "probeflow_dispatch_dropped_total"
	MetricRecordsWritten      = "probeflow_records_written_total"
	MetricWriterLatency       = "probeflow_writer_latency_seconds"

	MetricFilesUploaded = "probeflow_files_uploaded_total"
	MetricUploadErrors  = "probeflow_upload_errors_total"

	MetricSoftwareReports = "probeflow_software_reports_total"
)
