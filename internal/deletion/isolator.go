package deletion

// state is the terminal state of a single isolated unit of work.
type state int

const (
	stateSucceeded state = iota
	stateFailedFilesystem
	stateFailedExecution
)

type result struct {
	state state
	err   error
}

// isolate runs fn on its own goroutine and blocks until it finishes.
// A panic or runtime.Goexit inside fn is contained and reported as
// stateFailedExecution; it never reaches the calling goroutine.
func isolate(path string, fn func() error) result {
	done := make(chan result, 1)

	go func() {
		completed := false
		defer func() {
			if completed {
				return
			}
			done <- result{state: stateFailedExecution, err: fault(path, recover())}
		}()

		err := fn()
		completed = true
		if err != nil {
			done <- result{state: stateFailedFilesystem, err: err}
			return
		}
		done <- result{state: stateSucceeded}
	}()

	return <-done
}
