package model

import "time"

// IngestSummary captures metrics from one extract + stage run.
type IngestSummary struct {
	IngestBatchID string
	Source        string
	UsedFallback  bool
	RowsExtracted int64
	RowsInserted  int64
	RowsDuplicate int64
	RowsRejected  int64
	DurationTotal time.Duration
}

// WarehouseSummary captures metrics from one warehouse build.
type WarehouseSummary struct {
	Dimensions       DimensionCounts
	FactsInserted    int64
	BridgeProcedures int64
	BridgeDiagnoses  int64
	DurationDims     time.Duration
	DurationFacts    time.Duration
	DurationBridges  time.Duration
	DurationTotal    time.Duration
}

// PromoteSummary captures metrics from one promote + warehouse run.
type PromoteSummary struct {
	RowsSelected   int64
	RowsPromoted   int64
	RowsFailed     int64
	Warehouse      *WarehouseSummary
	ViewsRefreshed bool
	DurationTotal  time.Duration
}

// RunSummary captures metrics from a full ingest + promote run.
type RunSummary struct {
	Ingest  *IngestSummary
	Promote *PromoteSummary
}
