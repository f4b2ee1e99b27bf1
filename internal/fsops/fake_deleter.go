package fsops

import "sync"

// FakeDeleter implements Deleter for testing.
// Records all delete calls without touching the filesystem. When Hook is set
// it runs inside the primitive call, so tests can make the primitive fail,
// panic or block.
type FakeDeleter struct {
	mu    sync.Mutex
	Calls []string
	Err   error
	Hook  func(path string)
}

func (f *FakeDeleter) Remove(path string) error {
	f.record("rm:" + path)
	if f.Hook != nil {
		f.Hook(path)
	}
	return f.Err
}

func (f *FakeDeleter) RemoveAll(path string) error {
	f.record("rmall:" + path)
	if f.Hook != nil {
		f.Hook(path)
	}
	return f.Err
}

// CallLog returns a copy of the recorded calls.
func (f *FakeDeleter) CallLog() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.Calls...)
}

func (f *FakeDeleter) record(call string) {
	f.mu.Lock()
	f.Calls = append(f.Calls, call)
	f.mu.Unlock()
}
