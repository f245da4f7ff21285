// Package loader implements the strict serial loop of spec §5: pop an
// envelope from the spool, validate it, dispatch it to a handler, write its
// document-DB and search-index effects, then commit or roll back — exactly
// one of which happens before the next pop. No per-message goroutine
// fan-out; concurrency lives only inside searchindex.BatchWriter's idle
// timer, per spec §5.
package loader

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redhatci/kaijs/internal/dispatch"
	"github.com/redhatci/kaijs/internal/docstore"
	"github.com/redhatci/kaijs/internal/log"
	"github.com/redhatci/kaijs/internal/metrics"
	"github.com/redhatci/kaijs/internal/searchindex"
	"github.com/redhatci/kaijs/internal/spool"
	"github.com/redhatci/kaijs/internal/types"
	"github.com/redhatci/kaijs/internal/validate"
)

// RecordSink is where the always-write raw-message record and the
// invalid-sink validation-error record land, per spec §3.7/§6.3.
// mongostore.Store and docstoretest.Store both satisfy it.
type RecordSink interface {
	WriteRaw(ctx context.Context, rec *types.RawMessageRecord) error
	WriteInvalid(ctx context.Context, rec *types.ValidationErrorRecord) error
}

// PollInterval is how long Loop sleeps after an empty TPop before trying
// again.
const PollInterval = 500 * time.Millisecond

// Loop wires the spool, validator, dispatch registry, document writer, and
// search-index batch writer into the serial ingestion loop of spec §5,
// classifying every handler/validator outcome per the error table of §7.
type Loop struct {
	spool     *spool.Spool
	validator *validate.Validator
	registry  *dispatch.Registry
	docs      *docstore.Writer
	index     *searchindex.BatchWriter
	records   RecordSink

	indexPrefix string
	metric      *metrics.Collector
	log         *log.Logger
	clock       func() time.Time
}

// Config bundles Loop's collaborators.
type Config struct {
	Spool       *spool.Spool
	Validator   *validate.Validator
	Registry    *dispatch.Registry
	Docs        *docstore.Writer
	Index       *searchindex.BatchWriter
	Records     RecordSink
	IndexPrefix string
	Metrics     *metrics.Collector
	Log         *log.Logger
}

// New builds a Loop from cfg.
func New(cfg Config) *Loop {
	return &Loop{
		spool:       cfg.Spool,
		validator:   cfg.Validator,
		registry:    cfg.Registry,
		docs:        cfg.Docs,
		index:       cfg.Index,
		records:     cfg.Records,
		indexPrefix: cfg.IndexPrefix,
		metric:      cfg.Metrics,
		log:         cfg.Log,
		clock:       func() time.Time { return time.Now().UTC() },
	}
}

// fatalError wraps an unrecoverable condition: broker/DB/index connection
// loss, or OCC-retry exhaustion, both of which per spec §7 terminate the
// process (cmd/loader exits 31 for an orchestrator restart) rather than
// being handled per-envelope.
type fatalError struct{ err error }

func (e *fatalError) Error() string { return e.err.Error() }
func (e *fatalError) Unwrap() error { return e.err }

// IsFatal reports whether err should terminate the process per spec §7.
func IsFatal(err error) bool {
	var f *fatalError
	return errors.As(err, &f)
}

// Run pops and processes envelopes until ctx is cancelled or a fatal error
// occurs. A cancelled context returns nil (clean shutdown, exit 0); any
// other returned error is fatal.
func (l *Loop) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		env, claim, ok, err := l.spool.TPop()
		if err != nil {
			return &fatalError{fmt.Errorf("loader: spool tpop: %w", err)}
		}
		if !ok {
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(PollInterval):
			}
			continue
		}

		// processOne resolves the claim (commit or rollback) on every path;
		// a non-nil return is always already a fatalError.
		if err := l.processOne(ctx, env, claim); err != nil {
			return err
		}
	}
}

// processOne runs one envelope through validation, dispatch, and the
// doc-DB/search-index writes, resolving to exactly one of commit or
// rollback per spec §8.1.
func (l *Loop) processOne(ctx context.Context, env *types.SpoolMessage, claim *spool.Claim) error {
	if err := validate.CheckEnvelopeShape(env); err != nil {
		l.logWarn(env, "envelope shape violation, dropping", err)
		return l.commit(claim)
	}

	if err := l.validator.Validate(ctx, env); err != nil {
		return l.handleValidationFailure(ctx, env, claim, err)
	}

	handler, err := l.registry.Dispatch(env.BrokerTopic)
	if err != nil {
		var noHandler *types.NoAssociatedHandlerError
		if errors.As(err, &noHandler) {
			return l.handleNoAssociatedHandler(ctx, env, claim, err)
		}
		return l.rollbackFatal(claim, fmt.Errorf("loader: dispatch: %w", err))
	}

	// writeDoc runs before writeIndex: a handler's validation/derive failure
	// (e.g. NoThreadIdError) must be classified and committed to the invalid
	// sink before any index update is enqueued, so a message never ends up
	// with both a valid parent/child index doc and an invalid-sink record.
	handled, err := l.writeDoc(ctx, env, handler, claim)
	if err != nil {
		return err
	}
	if handled {
		// writeDoc already resolved the claim (silent no-op or recorded
		// invalid outcome).
		return nil
	}

	handled, err = l.writeIndex(ctx, env, handler, claim)
	if err != nil {
		return err
	}
	if handled {
		return nil
	}

	l.metric.IncDocstoreWrite()
	return l.commitWithRaw(ctx, env, claim)
}

// handleValidationFailure classifies a validator error per spec §7:
// WrongVersionError, NoValidationSchemaError, ValidationError, and
// NoThreadIdError (itself "treated as validation failure") all commit and
// record to the invalid sink.
func (l *Loop) handleValidationFailure(ctx context.Context, env *types.SpoolMessage, claim *spool.Claim, err error) error {
	kind := failureKind(err)
	l.metric.IncValidationFailure(kind)
	l.logWarn(env, "validation failed", err)

	if recErr := l.recordInvalid(ctx, env, err.Error()); recErr != nil {
		return l.rollbackFatal(claim, fmt.Errorf("loader: record invalid: %w", recErr))
	}
	return l.commitWithRaw(ctx, env, claim)
}

// handleNoAssociatedHandler implements spec §7's split policy: the doc-DB
// path records to the invalid sink, the index path writes an
// invalid-messages document — both driven by the same recordInvalid helper,
// which does exactly that.
func (l *Loop) handleNoAssociatedHandler(ctx context.Context, env *types.SpoolMessage, claim *spool.Claim, err error) error {
	l.metric.IncDispatchMiss()
	l.logWarn(env, "no handler matched topic", err)

	if recErr := l.recordInvalid(ctx, env, err.Error()); recErr != nil {
		return l.rollbackFatal(claim, fmt.Errorf("loader: record invalid: %w", recErr))
	}
	return l.commitWithRaw(ctx, env, claim)
}

// writeIndex runs the handler's search-index transform and enqueues its
// updates, tolerating NoNeedToProcessError as a silent no-op per spec §7.
// Any other handler-raised error is classified through recordAndCommitInvalid
// exactly like a doc-path failure: ValidationError, NoValidationSchemaError,
// NoThreadIdError, and ToLargeDocumentError all commit and record to the
// invalid sink rather than terminating the process. handled mirrors
// writeDoc's contract: true means the claim is already resolved.
func (l *Loop) writeIndex(ctx context.Context, env *types.SpoolMessage, handler dispatch.Handler, claim *spool.Claim) (handled bool, err error) {
	updates, err := handler.HandleIndex(env)
	if err != nil {
		var noNeed *types.NoNeedToProcessError
		if errors.As(err, &noNeed) {
			return false, nil
		}
		if matched, result := l.recordAndCommitInvalid(ctx, env, claim, err); matched {
			return true, result
		}
		return true, l.rollbackFatal(claim, fmt.Errorf("loader: index transform: %w", err))
	}
	if len(updates) == 0 {
		return false, nil
	}
	if err := l.index.Add(ctx, updates); err != nil {
		return true, l.rollbackFatal(claim, fmt.Errorf("loader: index write: %w", err))
	}
	return false, nil
}

// writeDoc runs the handler's document-DB transform through docstore.Writer,
// classifying every outcome per spec §7. handled is true when this call
// already resolved the claim (committed, with or without an invalid-sink
// record) and the caller must not commit again; it is false on success,
// where the caller still owns the commit (so it can write the raw-message
// record first). A non-nil err is always fatal and always paired with a
// rollback.
func (l *Loop) writeDoc(ctx context.Context, env *types.SpoolMessage, handler dispatch.Handler, claim *spool.Claim) (handled bool, err error) {
	_, writeErr := l.docs.Write(ctx, handler, env)
	if writeErr == nil {
		return false, nil
	}

	var noNeed *types.NoNeedToProcessError
	if errors.As(writeErr, &noNeed) {
		// Commit silently: no invalid-sink write, but the raw-message
		// record still always lands, per spec §3.7.
		l.logWarn(env, "handler declined to process", writeErr)
		if err := l.commitWithRaw(ctx, env, claim); err != nil {
			return true, err
		}
		return true, nil
	}

	if matched, result := l.recordAndCommitInvalid(ctx, env, claim, writeErr); matched {
		return true, result
	}

	if errors.Is(writeErr, docstore.ErrExhausted) {
		l.metric.IncDocstoreOCCExhausted()
		return true, l.rollbackFatal(claim, fmt.Errorf("loader: docstore write exhausted retries: %w", writeErr))
	}

	return true, l.rollbackFatal(claim, fmt.Errorf("loader: docstore write: %w", writeErr))
}

// recordAndCommitInvalid classifies err per spec §7's per-message
// invalid-sink outcomes (ValidationError, NoValidationSchemaError,
// NoThreadIdError, ToLargeDocumentError), shared by both writeDoc and
// writeIndex so a handler-raised validation failure is handled identically
// regardless of which path (doc or index) surfaced it. matched is false (and
// claim untouched) for any other error, which the caller must treat as
// fatal.
func (l *Loop) recordAndCommitInvalid(ctx context.Context, env *types.SpoolMessage, claim *spool.Claim, err error) (matched bool, result error) {
	var noThread *types.NoThreadIdError
	var tooLarge *types.ToLargeDocumentError
	var valErr *types.ValidationError
	var noSchema *types.NoValidationSchemaError
	hasNoThread := errors.As(err, &noThread)
	hasTooLarge := errors.As(err, &tooLarge)
	hasValErr := errors.As(err, &valErr)
	hasNoSchema := errors.As(err, &noSchema)
	if !hasNoThread && !hasTooLarge && !hasValErr && !hasNoSchema {
		return false, nil
	}

	detail := err.Error()
	if hasTooLarge {
		detail += " (document truncated, not stored)"
	}
	l.logWarn(env, "handler transform failed, routing to invalid sink", err)
	if recErr := l.recordInvalid(ctx, env, detail); recErr != nil {
		return true, l.rollbackFatal(claim, fmt.Errorf("loader: record invalid: %w", recErr))
	}
	if cErr := l.commitWithRaw(ctx, env, claim); cErr != nil {
		return true, cErr
	}
	return true, nil
}

func (l *Loop) commit(claim *spool.Claim) error {
	if err := claim.Commit(); err != nil {
		return &fatalError{fmt.Errorf("loader: commit: %w", err)}
	}
	return nil
}

// commitWithRaw commits claim after writing the always-write raw-message
// record, per spec §3.7.
func (l *Loop) commitWithRaw(ctx context.Context, env *types.SpoolMessage, claim *spool.Claim) error {
	if err := l.records.WriteRaw(ctx, types.NewRawMessageRecord(env, l.clock())); err != nil {
		return l.rollbackFatal(claim, fmt.Errorf("loader: write raw message record: %w", err))
	}
	return l.commit(claim)
}

func (l *Loop) rollbackFatal(claim *spool.Claim, err error) error {
	if rbErr := claim.Rollback(); rbErr != nil {
		return &fatalError{fmt.Errorf("%w (and rollback also failed: %v)", err, rbErr)}
	}
	return &fatalError{err}
}

// recordInvalid writes both the doc-DB validation-errors record and the
// search-index invalid-messages document, matching spec §7's per-path
// description of the invalid sink.
func (l *Loop) recordInvalid(ctx context.Context, env *types.SpoolMessage, detail string) error {
	l.metric.IncInvalid()
	now := l.clock()

	if err := l.records.WriteInvalid(ctx, types.NewValidationErrorRecord(env, rawBodyString(env), detail, now)); err != nil {
		return fmt.Errorf("write validation-errors record: %w", err)
	}

	action := searchindex.BuildInvalidMessageAction(l.indexPrefix, env, detail, now)
	if err := l.index.Add(ctx, []types.IndexUpdate{{
		DocID:       action.DocID,
		IndexName:   action.IndexName,
		Doc:         action.Doc,
		Upsert:      action.Upsert,
		DocAsUpsert: action.DocAsUpsert,
		Routing:     action.Routing,
	}}); err != nil {
		return fmt.Errorf("write invalid-messages index doc: %w", err)
	}
	l.metric.IncIndexInvalidMessage()
	return nil
}

func rawBodyString(env *types.SpoolMessage) string {
	b, err := json.Marshal(env.Body)
	if err != nil {
		return ""
	}
	return string(b)
}

func (l *Loop) logWarn(env *types.SpoolMessage, message string, err error) {
	if l.log == nil {
		return
	}
	l.log.Warn(message, map[string]any{
		"broker_topic": env.BrokerTopic,
		"spool_id":     env.SpoolID,
		"error":        err.Error(),
	})
}

// failureKind names a validator error for the per-kind metrics counter.
func failureKind(err error) string {
	switch {
	case errors.As(err, new(*types.WrongVersionError)):
		return "WrongVersionError"
	case errors.As(err, new(*types.NoValidationSchemaError)):
		return "NoValidationSchemaError"
	case errors.As(err, new(*types.NoThreadIdError)):
		return "NoThreadIdError"
	case errors.As(err, new(*types.ValidationError)):
		return "ValidationError"
	default:
		return "unknown"
	}
}
