package deletion

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"syscall"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"safe-delete/internal/fsops"
	"safe-delete/internal/logging"
	"safe-delete/internal/metrics"
	"safe-delete/internal/safety"
)

func newTestService() *Service {
	return NewService(logging.Discard())
}

func mustWrite(t *testing.T, path string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte("data"), 0644); err != nil {
		t.Fatal(err)
	}
}

func assertGone(t *testing.T, path string) {
	t.Helper()
	if _, err := os.Lstat(path); !os.IsNotExist(err) {
		t.Errorf("%s should no longer exist (lstat err: %v)", path, err)
	}
}

func assertExists(t *testing.T, path string) {
	t.Helper()
	if _, err := os.Lstat(path); err != nil {
		t.Errorf("%s should still exist: %v", path, err)
	}
}

// A regular file with the file strategy is removed.
func TestDeleteFile(t *testing.T) {
	f := filepath.Join(t.TempDir(), "a.txt")
	mustWrite(t, f)

	out := newTestService().Delete(f, false)
	if !out.OK() {
		t.Fatalf("Delete(%s, false) = %+v, expected success", f, out)
	}
	if out.Message != "" || out.Err() != nil {
		t.Errorf("success must carry no message or error: %+v", out)
	}
	assertGone(t, f)
}

// A populated tree with the directory strategy is removed entirely.
func TestDeleteDirectoryTree(t *testing.T) {
	d := filepath.Join(t.TempDir(), "d")
	mustWrite(t, filepath.Join(d, "inner.txt"))
	mustWrite(t, filepath.Join(d, "sub", "deep.txt"))

	out := newTestService().Delete(d, true)
	if !out.OK() {
		t.Fatalf("Delete(%s, true) = %+v, expected success", d, out)
	}
	assertGone(t, d)
}

// A missing path fails with not_found every time it is requested.
func TestDeleteMissingPathIsRepeatable(t *testing.T) {
	svc := newTestService()
	missing := filepath.Join(t.TempDir(), "does-not-exist")

	for i := 0; i < 2; i++ {
		out := svc.Delete(missing, false)
		if out.Kind != KindNotFound {
			t.Fatalf("attempt %d: kind = %v, expected not_found (%s)", i, out.Kind, out.Message)
		}
		if !strings.Contains(out.Message, "not found") {
			t.Errorf("attempt %d: message %q does not mention not found", i, out.Message)
		}
		if !errors.Is(out.Err(), fs.ErrNotExist) {
			t.Errorf("attempt %d: error does not wrap fs.ErrNotExist: %v", i, out.Err())
		}
	}
}

func TestDeleteMissingDirectoryIsNotFound(t *testing.T) {
	out := newTestService().Delete(filepath.Join(t.TempDir(), "gone"), true)
	if out.Kind != KindNotFound {
		t.Fatalf("kind = %v, expected not_found (%s)", out.Kind, out.Message)
	}
}

func TestDeleteStrategyIsExact(t *testing.T) {
	svc := newTestService()

	t.Run("directory with file hint", func(t *testing.T) {
		d := filepath.Join(t.TempDir(), "d")
		inner := filepath.Join(d, "inner.txt")
		mustWrite(t, inner)

		out := svc.Delete(d, false)
		if out.Kind != KindTypeMismatch {
			t.Fatalf("kind = %v, expected type_mismatch (%s)", out.Kind, out.Message)
		}
		assertExists(t, d)
		assertExists(t, inner)
	})

	t.Run("empty directory with file hint", func(t *testing.T) {
		d := filepath.Join(t.TempDir(), "empty")
		if err := os.Mkdir(d, 0755); err != nil {
			t.Fatal(err)
		}

		if out := svc.Delete(d, false); out.Kind != KindTypeMismatch {
			t.Fatalf("kind = %v, expected type_mismatch", out.Kind)
		}
		assertExists(t, d)
	})

	t.Run("file with directory hint", func(t *testing.T) {
		f := filepath.Join(t.TempDir(), "a.txt")
		mustWrite(t, f)

		if out := svc.Delete(f, true); out.Kind != KindTypeMismatch {
			t.Fatalf("kind = %v, expected type_mismatch", out.Kind)
		}
		assertExists(t, f)
	})
}

func TestDeletePermissionDenied(t *testing.T) {
	if runtime.GOOS == "windows" || os.Geteuid() == 0 {
		t.Skip("permission bits are not enforced for this user")
	}

	d := filepath.Join(t.TempDir(), "locked")
	f := filepath.Join(d, "a.txt")
	mustWrite(t, f)
	if err := os.Chmod(d, 0555); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = os.Chmod(d, 0755) })

	out := newTestService().Delete(f, false)
	if out.Kind != KindPermissionDenied {
		t.Fatalf("kind = %v, expected permission_denied (%s)", out.Kind, out.Message)
	}
	assertExists(t, f)
}

func TestPrimitiveErrorClassification(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Kind
	}{
		{"permission", &fs.PathError{Op: "remove", Path: "/x", Err: fs.ErrPermission}, KindPermissionDenied},
		{"eacces", &fs.PathError{Op: "unlinkat", Path: "/x", Err: syscall.EACCES}, KindPermissionDenied},
		{"missing", &fs.PathError{Op: "remove", Path: "/x", Err: syscall.ENOENT}, KindNotFound},
		{"is a directory", &fs.PathError{Op: "remove", Path: "/x", Err: syscall.EISDIR}, KindTypeMismatch},
		{"not a directory", &fs.PathError{Op: "removeall", Path: "/x", Err: syscall.ENOTDIR}, KindTypeMismatch},
		{"not empty", &fs.PathError{Op: "unlinkat", Path: "/x", Err: syscall.ENOTEMPTY}, KindOther},
		{"io error", &fs.PathError{Op: "remove", Path: "/x", Err: syscall.EIO}, KindOther},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := newTestService()
			svc.SetDeleter(&fsops.FakeDeleter{Err: tt.err})

			out := svc.Delete("/x", false)
			if out.Kind != tt.want {
				t.Fatalf("kind = %v, expected %v (%s)", out.Kind, tt.want, out.Message)
			}
			if strings.TrimSpace(out.Message) == "" {
				t.Error("failure message must not be empty")
			}
			if !errors.Is(out.Err(), tt.err) {
				t.Errorf("error should wrap the primitive error: %v", out.Err())
			}
		})
	}
}

type stubValidator struct {
	err error
}

func (v stubValidator) Check(string) error { return v.err }

func TestValidatorErrorKinds(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Kind
	}{
		{"outside roots", fmt.Errorf("%w: /srv/x", safety.ErrOutsideAllowed), KindRefused},
		{"protected", fmt.Errorf("%w: /etc", safety.ErrProtectedPath), KindRefused},
		{"symlink escape", fmt.Errorf("%w: /srv/x", safety.ErrSymlinkEscape), KindRefused},
		{"resolve permission", fmt.Errorf("resolve /srv/x: %w", &fs.PathError{Op: "lstat", Path: "/srv/x", Err: syscall.EACCES}), KindPermissionDenied},
		{"resolve io error", fmt.Errorf("resolve /srv/x: %w", &fs.PathError{Op: "lstat", Path: "/srv/x", Err: syscall.EIO}), KindOther},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fake := &fsops.FakeDeleter{}
			svc := newTestService()
			svc.SetDeleter(fake)
			svc.SetValidator(stubValidator{err: tt.err})

			out := svc.Delete("/srv/x", false)
			if out.Kind != tt.want {
				t.Fatalf("kind = %v, expected %v (%s)", out.Kind, tt.want, out.Message)
			}
			if calls := fake.CallLog(); len(calls) != 0 {
				t.Errorf("primitive must not run after a failed check, got %v", calls)
			}
		})
	}
}

func TestConfinedPermissionDeniedKeepsKind(t *testing.T) {
	if runtime.GOOS == "windows" || os.Geteuid() == 0 {
		t.Skip("permission bits are not enforced for this user")
	}

	allowed := t.TempDir()
	d := filepath.Join(allowed, "locked")
	f := filepath.Join(d, "a.txt")
	mustWrite(t, f)
	if err := os.Chmod(d, 0); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = os.Chmod(d, 0755) })

	plain := newTestService()
	confined := newTestService()
	confined.SetValidator(safety.NewValidator([]string{allowed}, nil))

	for name, svc := range map[string]*Service{"plain": plain, "confined": confined} {
		if out := svc.Delete(f, false); out.Kind != KindPermissionDenied {
			t.Errorf("%s: kind = %v, expected permission_denied (%s)", name, out.Kind, out.Message)
		}
	}
}

func TestDeleteEmptyPath(t *testing.T) {
	fake := &fsops.FakeDeleter{}
	svc := newTestService()
	svc.SetDeleter(fake)

	for _, p := range []string{"", "   "} {
		out := svc.Delete(p, false)
		if out.Kind != KindInvalidRequest {
			t.Errorf("Delete(%q) kind = %v, expected invalid_request", p, out.Kind)
		}
	}
	if calls := fake.CallLog(); len(calls) != 0 {
		t.Errorf("no primitive may run for an empty path, got %v", calls)
	}
}

func TestWorkerFaultIsContained(t *testing.T) {
	tests := []struct {
		name string
		hook func(string)
		want string
	}{
		{"panic", func(string) { panic("invariant violated") }, "invariant violated"},
		{"panic with error", func(string) { panic(errors.New("boom")) }, "boom"},
		{"goexit", func(string) { runtime.Goexit() }, "without a result"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := newTestService()
			svc.SetDeleter(&fsops.FakeDeleter{Hook: tt.hook})

			select {
			case out := <-svc.DeleteAsync("/any/path", true):
				if out.Kind != KindExecutionFault {
					t.Fatalf("kind = %v, expected execution_fault", out.Kind)
				}
				if !strings.Contains(out.Message, "internal execution fault") || !strings.Contains(out.Message, tt.want) {
					t.Errorf("message %q should describe the fault (%q)", out.Message, tt.want)
				}
				if !errors.Is(out.Err(), errWorkerTerminated) {
					t.Errorf("error should wrap errWorkerTerminated: %v", out.Err())
				}
			case <-time.After(5 * time.Second):
				t.Fatal("Delete did not return after worker fault")
			}
		})
	}
}

func TestFailureMessageNeverEmpty(t *testing.T) {
	svc := newTestService()
	dir := t.TempDir()
	file := filepath.Join(dir, "f.txt")
	mustWrite(t, file)

	reqs := []Request{
		{Path: ""},
		{Path: filepath.Join(dir, "missing")},
		{Path: dir},
		{Path: file, IsDirectory: true},
	}
	for _, req := range reqs {
		out := svc.Execute(req)
		if out.OK() {
			t.Errorf("Execute(%+v) unexpectedly succeeded", req)
			continue
		}
		if strings.TrimSpace(out.Message) == "" {
			t.Errorf("Execute(%+v) returned empty failure message", req)
		}
	}
}

func TestDeleteRefusedByValidator(t *testing.T) {
	root := t.TempDir()
	allowed := filepath.Join(root, "allowed")
	outside := filepath.Join(root, "outside", "keep.txt")
	inside := filepath.Join(allowed, "a.txt")
	mustWrite(t, inside)
	mustWrite(t, outside)

	svc := newTestService()
	svc.SetValidator(safety.NewValidator([]string{allowed}, nil))

	out := svc.Delete(outside, false)
	if out.Kind != KindRefused {
		t.Fatalf("kind = %v, expected refused (%s)", out.Kind, out.Message)
	}
	if !errors.Is(out.Err(), safety.ErrOutsideAllowed) {
		t.Errorf("error should wrap ErrOutsideAllowed: %v", out.Err())
	}
	assertExists(t, outside)

	if out := svc.Delete(inside, false); !out.OK() {
		t.Errorf("Delete inside allowed root failed: %s", out.Message)
	}
	assertGone(t, inside)
}

type recordingObserver struct {
	mu     sync.Mutex
	events []Event
	err    error
}

func (o *recordingObserver) DeletionFinished(ev Event) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.events = append(o.events, ev)
	return o.err
}

func TestObserversReceiveEvents(t *testing.T) {
	f := filepath.Join(t.TempDir(), "a.txt")
	mustWrite(t, f)

	failing := &recordingObserver{err: errors.New("history unavailable")}
	ok := &recordingObserver{}
	svc := newTestService()
	svc.AddObserver(failing)
	svc.AddObserver(ok)

	out := svc.Delete(f, false)
	if !out.OK() {
		t.Fatalf("observer error must not change the outcome: %+v", out)
	}
	if len(ok.events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(ok.events))
	}
	ev := ok.events[0]
	if ev.RequestID == "" || ev.Request.Path != f || ev.Action() != "DELETE" {
		t.Errorf("unexpected event: %+v", ev)
	}
	if ev.Duration <= 0 {
		t.Errorf("event duration should be positive, got %v", ev.Duration)
	}
}

func TestDeleteBatch(t *testing.T) {
	dir := t.TempDir()
	var reqs []Request
	for _, name := range []string{"a", "b", "c", "d", "e", "f"} {
		p := filepath.Join(dir, name+".txt")
		mustWrite(t, p)
		reqs = append(reqs, Request{Path: p})
	}
	tree := filepath.Join(dir, "tree")
	mustWrite(t, filepath.Join(tree, "x.txt"))
	reqs = append(reqs, Request{Path: tree, IsDirectory: true})
	reqs = append(reqs, Request{Path: filepath.Join(dir, "missing.txt")})

	svc := newTestService()
	svc.SetConcurrency(3)
	outcomes := svc.DeleteBatch(context.Background(), reqs)

	if len(outcomes) != len(reqs) {
		t.Fatalf("got %d outcomes for %d requests", len(outcomes), len(reqs))
	}
	for i, out := range outcomes[:len(reqs)-1] {
		if !out.OK() {
			t.Errorf("request %d (%s) failed: %s", i, reqs[i].Path, out.Message)
		}
		assertGone(t, reqs[i].Path)
	}
	if last := outcomes[len(outcomes)-1]; last.Kind != KindNotFound {
		t.Errorf("last outcome kind = %v, expected not_found", last.Kind)
	}
}

func TestDeleteBatchCanceledContext(t *testing.T) {
	fake := &fsops.FakeDeleter{}
	svc := newTestService()
	svc.SetDeleter(fake)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	outcomes := svc.DeleteBatch(ctx, []Request{{Path: "/a"}, {Path: "/b"}})
	for i, out := range outcomes {
		if out.Kind != KindExecutionFault || !errors.Is(out.Err(), context.Canceled) {
			t.Errorf("outcome %d = %+v, expected not-started execution fault", i, out)
		}
	}
	if calls := fake.CallLog(); len(calls) != 0 {
		t.Errorf("no request should start after cancellation, got %v", calls)
	}
}

func TestConcurrentDeletesOfSamePath(t *testing.T) {
	f := filepath.Join(t.TempDir(), "race.txt")
	mustWrite(t, f)
	svc := newTestService()

	var wg sync.WaitGroup
	outcomes := make([]Outcome, 8)
	for i := range outcomes {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			outcomes[i] = svc.Delete(f, false)
		}()
	}
	wg.Wait()

	succeeded := 0
	for _, out := range outcomes {
		switch out.Kind {
		case KindNone:
			succeeded++
		case KindNotFound:
		default:
			t.Errorf("unexpected outcome %+v", out)
		}
	}
	if succeeded != 1 {
		t.Errorf("exactly one concurrent delete should win, got %d", succeeded)
	}
}

func TestPrometheusMetrics(t *testing.T) {
	metrics.Init()
	svc := newTestService()
	svc.SetMetrics(PrometheusMetrics{})
	svc.SetDeleter(&fsops.FakeDeleter{Hook: func(string) { panic("x") }})

	before := testutil.ToFloat64(metrics.ExecutionFaultsTotal)
	svc.Delete("/p", false)

	if got := testutil.ToFloat64(metrics.ExecutionFaultsTotal); got != before+1 {
		t.Errorf("ExecutionFaultsTotal = %v, expected %v", got, before+1)
	}
	if got := testutil.ToFloat64(metrics.WorkersActive); got != 0 {
		t.Errorf("WorkersActive = %v after completion, expected 0", got)
	}
}

func TestKindRoundTrip(t *testing.T) {
	for k := KindNone; k <= KindOther; k++ {
		parsed, ok := ParseKind(k.String())
		if !ok || parsed != k {
			t.Errorf("ParseKind(%q) = %v, %v", k.String(), parsed, ok)
		}
	}
	if _, ok := ParseKind("bogus"); ok {
		t.Error("ParseKind accepted an unknown name")
	}
}
