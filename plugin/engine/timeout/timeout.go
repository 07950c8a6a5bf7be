// Package timeout defines centralized timeout and limit constants for
// engine operations.
package timeout

import "time"

const (
	// GenerationTimeout is the timeout for one content-generation call.
	GenerationTimeout = 30 * time.Second

	// ReasoningTimeout is the timeout for one reasoning pipeline run.
	ReasoningTimeout = 10 * time.Second

	// DeliveryTimeout is the timeout for one delivery attempt.
	DeliveryTimeout = 30 * time.Second

	// SweepBatchSize is the number of expirable actions processed per
	// sweeper pass.
	SweepBatchSize = 100

	// AnalysisBatchSize is the default number of recent resolved episodes
	// fed into one batch analysis run.
	AnalysisBatchSize = 200

	// MaxGenerationRetries is the maximum number of attempts for a
	// content-generation call.
	MaxGenerationRetries = 3

	// MaxSummaryLength is the default character budget for memory digests.
	MaxSummaryLength = 2000

	// MaxTruncateLength is the maximum length for truncating strings in logs.
	MaxTruncateLength = 200
)
