// Package errors provides standardized error handling patterns for perfkit components.
//
// # Overview
//
// The errors package implements a three-class error classification system:
// Transient (temporary, retryable), Invalid (bad input, non-retryable), and
// Fatal (unrecoverable, stop processing).
//
// This classification enables components to make informed decisions about
// retries and failure recovery without hardcoded error string matching. It
// integrates with Go's standard error handling patterns, supporting
// errors.Is(), errors.As(), and error wrapping chains.
//
// # Quick Start
//
// Use standard error variables for known conditions:
//
//	if tmpl == nil {
//	    return errors.ErrTemplateNotFound
//	}
//
// Wrap errors with component context:
//
//	if err := store.Set(key, value); err != nil {
//	    return errors.Wrap(err, "CacheManager", "GetOrCompute", "store result")
//	}
//
// Wrap with explicit classification when the caller's retry decision matters:
//
//	return errors.WrapTransient(err, "CacheManager", "Warmup", "template load")
//
// Check classification for retry logic:
//
//	if errors.IsTransient(err) {
//	    // safe to retry
//	}
//
// # Error Taxonomy
//
// The perfkit failure taxonomy maps onto standard variables:
//
//   - Generation failures (ErrGenerationFailed, ErrTemplateNotFound):
//     external generator or loader failed; propagated verbatim to callers
//     and never cached.
//   - Batch failures (ErrBatchFlushFailed): catastrophic dispatch failure
//     that fails every pending operation in the window with one cause.
//     Individual operation failures carry no sentinel; they settle only
//     the originating caller's handle.
//   - Optimization failures (ErrOptimizationFailed, ErrOptimizationBusy):
//     surfaced via OptimizationResult or logged at the tick boundary,
//     never fatal to the process.
//
// No error kind is retried automatically; retries are the caller's choice.
package errors
