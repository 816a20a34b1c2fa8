package db

// Exported for tests in db_test.
var (
	RunRetentionOnce   = runRetentionOnce
	RunAggregationOnce = runAggregationOnce
)
