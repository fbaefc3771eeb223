// ABOUTME: Draft service: the actions an agent takes on a user's draft
// ABOUTME: Stateless facade over the version store with uniform results

package draft

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/nainya/drafter/internal/logger"
	"github.com/nainya/drafter/internal/metrics"
	"github.com/nainya/drafter/pkg/version"
)

// TracerName identifies spans created by this package
const TracerName = "github.com/nainya/drafter/pkg/draft"

// ErrNoDraft reports a scope without a current draft
var ErrNoDraft = fmt.Errorf("%w: no draft", version.ErrNotFound)

// Store is the subset of the version store the service needs
type Store interface {
	AppendVersion(scope version.Scope, content string) (*version.Record, error)
	GetCurrent(scope version.Scope) (*version.Record, error)
	Current(scope version.Scope) (string, error)
	ListVersions(scope version.Scope) ([]string, error)
	Revert(scope version.Scope, versionID string) error
}

// Service executes draft commands. It holds no per-scope state.
type Service struct {
	store   Store
	sink    Sink
	log     *logger.Logger
	metrics *metrics.Metrics
	tracer  trace.Tracer
}

// Option configures a Service
type Option func(*Service)

// WithLogger sets the operation logger
func WithLogger(l *logger.Logger) Option {
	return func(s *Service) { s.log = l }
}

// WithMetrics sets the metrics sink
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// WithTracer overrides the global tracer
func WithTracer(t trace.Tracer) Option {
	return func(s *Service) { s.tracer = t }
}

// NewService creates a service over store; sink receives saved drafts
func NewService(store Store, sink Sink, opts ...Option) *Service {
	s := &Service{
		store: store,
		sink:  sink,
		log:   logger.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.tracer == nil {
		s.tracer = otel.Tracer(TracerName)
	}
	return s
}

// Execute runs one command against scope. The result is always populated;
// on failure its status is StatusError and err carries the typed cause.
func (s *Service) Execute(ctx context.Context, scope version.Scope, cmd Command) (*Result, error) {
	if cmd == nil {
		return s.Execute(ctx, scope, invalidCommand{})
	}

	kind := string(cmd.Kind())
	ctx, span := s.tracer.Start(ctx, "draft."+kind, trace.WithAttributes(
		attribute.String("draft.command", kind),
		attribute.String("draft.user_id", scope.UserID),
		attribute.String("draft.thread_id", scope.ThreadID),
	))
	defer span.End()

	start := time.Now()
	res := &Result{UserID: scope.UserID, ThreadID: scope.ThreadID}

	err := scope.Validate()
	if err == nil {
		err = cmd.Validate()
	}
	if err == nil {
		switch c := cmd.(type) {
		case Update:
			err = s.update(scope, c, res)
		case Save:
			err = s.save(ctx, scope, c, res)
		case GetDraft:
			err = s.getDraft(scope, res)
		case Revert:
			err = s.revert(scope, c, res)
		case History:
			err = s.history(scope, res)
		default:
			err = fmt.Errorf("%w: unsupported command %T", version.ErrInvalidArgument, cmd)
		}
	}
	duration := time.Since(start)

	if err != nil {
		fail(res, err)
		span.RecordError(err)
		span.SetStatus(codes.Error, errorClass(err))
		if errors.Is(err, version.ErrConsistencyFault) {
			s.metrics.IncConsistencyFaults()
		}
	}
	span.SetAttributes(attribute.String("draft.version", res.Version))

	s.metrics.RecordStoreOperation(kind, errorClass(err), duration)
	s.log.LogStoreOperation(kind, scope.UserID, scope.ThreadID, res.Version, duration, err)
	return res, err
}

// Update stores content as a new version
func (s *Service) Update(ctx context.Context, scope version.Scope, content string) (*Result, error) {
	return s.Execute(ctx, scope, Update{Content: content})
}

// Save exports the current draft to filename
func (s *Service) Save(ctx context.Context, scope version.Scope, filename string) (*Result, error) {
	return s.Execute(ctx, scope, Save{Filename: filename})
}

// GetDraft returns the current draft, or a result with NoDraft set
func (s *Service) GetDraft(ctx context.Context, scope version.Scope) (*Result, error) {
	return s.Execute(ctx, scope, GetDraft{})
}

// Revert restores versionID as the current draft
func (s *Service) Revert(ctx context.Context, scope version.Scope, versionID string) (*Result, error) {
	return s.Execute(ctx, scope, Revert{VersionID: versionID})
}

// History lists version ids oldest first
func (s *Service) History(ctx context.Context, scope version.Scope) (*Result, error) {
	return s.Execute(ctx, scope, History{})
}

func (s *Service) update(scope version.Scope, c Update, res *Result) error {
	rec, err := s.store.AppendVersion(scope, c.Content)
	if err != nil {
		return err
	}
	s.metrics.IncVersionsAppended()

	res.Status = StatusDone
	res.Version = rec.VersionID
	res.Content = rec.Content
	res.Output = fmt.Sprintf("Draft updated as %s.\n\n%s", rec.VersionID, rec.Content)
	return nil
}

func (s *Service) save(ctx context.Context, scope version.Scope, c Save, res *Result) error {
	rec, err := s.store.GetCurrent(scope)
	if errors.Is(err, version.ErrNotFound) {
		res.NoDraft = true
		return ErrNoDraft
	}
	if err != nil {
		return err
	}
	res.Version = rec.VersionID

	name, _ := NormalizeFilename(c.Filename)
	path, err := s.sink.Export(ctx, rec, name)
	if err != nil {
		return err
	}
	s.metrics.IncExports()
	s.log.StoreLogger("save").Debug("draft exported").Str("path", path).Send()

	res.Status = StatusDone
	res.Filename = name
	res.Output = fmt.Sprintf("Saved as '%s'.", name)
	return nil
}

func (s *Service) getDraft(scope version.Scope, res *Result) error {
	rec, err := s.store.GetCurrent(scope)
	if errors.Is(err, version.ErrNotFound) {
		res.Status = StatusWaiting
		res.NoDraft = true
		res.Output = "No current draft found."
		return nil
	}
	if err != nil {
		return err
	}

	res.Status = StatusWaiting
	res.Version = rec.VersionID
	res.Content = rec.Content
	res.Output = fmt.Sprintf("Current version: %s\n\n%s", rec.VersionID, rec.Content)
	return nil
}

func (s *Service) revert(scope version.Scope, c Revert, res *Result) error {
	if err := s.store.Revert(scope, c.VersionID); err != nil {
		if errors.Is(err, version.ErrNotFound) {
			res.Output = fmt.Sprintf("Version %s not found.", c.VersionID)
		}
		return err
	}
	s.metrics.IncReverts()

	res.Status = StatusDone
	res.Version = c.VersionID
	res.Output = fmt.Sprintf("Restored version %s.", c.VersionID)
	return nil
}

func (s *Service) history(scope version.Scope, res *Result) error {
	ids, err := s.store.ListVersions(scope)
	if err != nil {
		return err
	}

	current, err := s.store.Current(scope)
	if err != nil && !errors.Is(err, version.ErrNotFound) {
		return err
	}

	res.Status = StatusWaiting
	res.Version = current
	res.Versions = ids
	if len(ids) == 0 {
		res.NoDraft = true
		res.Output = "No versions yet."
		return nil
	}
	res.Output = strings.Join(ids, "\n")
	return nil
}

// fail marks res as failed, keeping any message the operation already set
func fail(res *Result, err error) {
	res.Status = StatusError
	if res.Output != "" {
		return
	}
	switch {
	case errors.Is(err, ErrNoDraft):
		res.Output = "No draft found."
	case errors.Is(err, version.ErrConsistencyFault):
		res.Output = "Draft storage is inconsistent: the current version could not be read."
	case errors.Is(err, version.ErrStorageUnavailable):
		res.Output = "Draft storage is unavailable, please retry."
	case errors.Is(err, version.ErrInvalidArgument):
		res.Output = "Invalid request: " + err.Error()
	case errors.Is(err, version.ErrNotFound):
		res.Output = "Not found: " + err.Error()
	default:
		res.Output = "Draft operation failed: " + err.Error()
	}
}

// errorClass labels an error for metrics and span status
func errorClass(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, version.ErrConsistencyFault):
		return "consistency_fault"
	case errors.Is(err, version.ErrStorageUnavailable):
		return "unavailable"
	case errors.Is(err, version.ErrInvalidArgument):
		return "invalid_argument"
	case errors.Is(err, version.ErrNotFound):
		return "not_found"
	}
	return "error"
}

// invalidCommand stands in for a nil Command
type invalidCommand struct{}

func (invalidCommand) Kind() Kind { return "invalid" }
func (invalidCommand) Validate() error {
	return fmt.Errorf("%w: command is required", version.ErrInvalidArgument)
}
func (invalidCommand) isCommand() {}
