// Package deletion removes a single file or directory tree per request on an
// isolated goroutine and reports every failure as a classified Outcome.
package deletion

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"safe-delete/internal/fsops"
	"safe-delete/internal/safety"
)

// Request is a single delete request. IsDirectory selects the strategy and is
// trusted as given; it is not checked against the entry on disk.
type Request struct {
	Path        string `json:"path"`
	IsDirectory bool   `json:"is_directory"`
}

// ObjectType returns "directory" or "file" according to the strategy hint.
func (r Request) ObjectType() string {
	if r.IsDirectory {
		return "directory"
	}
	return "file"
}

// Outcome is the result handed back to the dispatcher.
// The zero value is a success. RequestID is empty for a request that never
// started.
type Outcome struct {
	Kind      Kind
	Message   string
	RequestID string
	err       *Error
}

// OK reports whether the entry was deleted.
func (o Outcome) OK() bool {
	return o.Kind == KindNone
}

// Err returns the classified error, or nil on success.
func (o Outcome) Err() error {
	if o.err == nil {
		return nil
	}
	return o.err
}

func failure(err *Error) Outcome {
	return Outcome{Kind: err.Kind, Message: err.Error(), err: err}
}

// Event describes one finished request. Observers receive it after the
// outcome is final.
type Event struct {
	RequestID string
	Request   Request
	Outcome   Outcome
	StartedAt time.Time
	Duration  time.Duration
}

// Action returns DELETE for a successful request and ERROR otherwise.
func (e Event) Action() string {
	if e.Outcome.OK() {
		return "DELETE"
	}
	return "ERROR"
}

// Observer is notified of every finished request. An observer error is
// logged and never changes the outcome.
type Observer interface {
	DeletionFinished(ev Event) error
}

// Logger is satisfied by *slog.Logger.
type Logger interface {
	Info(msg string, args ...any)
	Error(msg string, args ...any)
}

// Validator vets a target before the removal primitive runs. Errors wrapping
// a safety sentinel are refusals; anything else is classified like an error
// from the removal primitive.
type Validator interface {
	Check(path string) error
}

// Service is the deletion service. Configure it with the setters before
// first use; after that it is safe for concurrent use.
type Service struct {
	logger      Logger
	deleter     fsops.Deleter
	validator   Validator
	metrics     Metrics
	observers   []Observer
	concurrency int
}

// NewService creates a service backed by the real filesystem with no
// confinement, no metrics and no observers.
func NewService(logger Logger) *Service {
	return &Service{
		logger:      logger,
		deleter:     fsops.OSDeleter{},
		metrics:     nopMetrics{},
		concurrency: 5,
	}
}

// SetDeleter replaces the removal primitives.
func (s *Service) SetDeleter(d fsops.Deleter) {
	s.deleter = d
}

// SetValidator enables root confinement. A nil validator disables it.
func (s *Service) SetValidator(v Validator) {
	s.validator = v
}

func (s *Service) SetMetrics(m Metrics) {
	s.metrics = m
}

func (s *Service) AddObserver(o Observer) {
	s.observers = append(s.observers, o)
}

// SetConcurrency bounds the number of requests DeleteBatch runs at once.
func (s *Service) SetConcurrency(n int) {
	if n > 0 {
		s.concurrency = n
	}
}

// Delete removes the entry at path: the whole tree when isDirectory is true,
// the single non-directory entry otherwise. It waits for the isolated worker
// and never panics because of the removal.
func (s *Service) Delete(path string, isDirectory bool) Outcome {
	return s.Execute(Request{Path: path, IsDirectory: isDirectory})
}

// DeleteAsync runs Delete on a new goroutine. The channel receives exactly one
// outcome and is then closed.
func (s *Service) DeleteAsync(path string, isDirectory bool) <-chan Outcome {
	ch := make(chan Outcome, 1)
	go func() {
		defer close(ch)
		ch <- s.Delete(path, isDirectory)
	}()
	return ch
}

// DeleteBatch executes the requests concurrently, bounded by the configured
// concurrency. Outcomes are index aligned with reqs. Once ctx is done no
// further request is started; started requests always run to completion.
func (s *Service) DeleteBatch(ctx context.Context, reqs []Request) []Outcome {
	outcomes := make([]Outcome, len(reqs))

	var g errgroup.Group
	g.SetLimit(s.concurrency)
	for i, req := range reqs {
		if err := ctx.Err(); err != nil {
			outcomes[i] = failure(&Error{
				Kind: KindExecutionFault,
				Path: req.Path,
				Err:  fmt.Errorf("%w: %w", errNotStarted, err),
			})
			continue
		}
		i, req := i, req
		g.Go(func() error {
			outcomes[i] = s.Execute(req)
			return nil
		})
	}
	_ = g.Wait()

	return outcomes
}

// Execute performs one request and notifies observers.
func (s *Service) Execute(req Request) Outcome {
	ev := Event{
		RequestID: uuid.NewString(),
		Request:   req,
		StartedAt: time.Now(),
	}
	ev.Outcome = s.run(req)
	ev.Outcome.RequestID = ev.RequestID
	ev.Duration = time.Since(ev.StartedAt)

	s.finish(ev)
	return ev.Outcome
}

func (s *Service) run(req Request) Outcome {
	if strings.TrimSpace(req.Path) == "" {
		return failure(&Error{Kind: KindInvalidRequest, Path: req.Path, Err: errEmptyPath})
	}

	remove := s.deleter.Remove
	if req.IsDirectory {
		remove = s.deleter.RemoveAll
	}
	validator := s.validator

	s.metrics.WorkerStarted()
	res := isolate(req.Path, func() error {
		if validator != nil {
			if err := validator.Check(req.Path); err != nil {
				if safety.IsRefusal(err) {
					return &Error{Kind: KindRefused, Path: req.Path, Err: err}
				}
				return err
			}
		}
		return remove(req.Path)
	})
	s.metrics.WorkerFinished()

	switch res.state {
	case stateSucceeded:
		return Outcome{}
	case stateFailedExecution:
		s.metrics.ExecutionFault()
	}
	return failure(classify(req.Path, res.err))
}

func (s *Service) finish(ev Event) {
	req, out := ev.Request, ev.Outcome
	s.metrics.Observe(req.ObjectType(), out.Kind.String(), ev.Duration)

	if out.OK() {
		s.logger.Info("deleted",
			"request_id", ev.RequestID,
			"path", req.Path,
			"object", req.ObjectType(),
			"duration", ev.Duration,
		)
	} else {
		s.logger.Error("delete failed",
			"request_id", ev.RequestID,
			"path", req.Path,
			"object", req.ObjectType(),
			"kind", out.Kind.String(),
			"error", out.Message,
		)
	}

	for _, o := range s.observers {
		if err := o.DeletionFinished(ev); err != nil {
			s.logger.Error("observer failed", "request_id", ev.RequestID, "error", err)
			s.metrics.InternalError()
		}
	}
}
