package fs

import (
	"os"
	"path/filepath"
	"sync"
	"syscall"
)

// FaultOp names an operation class [Faulty] can fail.
type FaultOp string

// Operation classes.
const (
	// FaultOpen fails FS.Open and FS.OpenFile.
	FaultOpen FaultOp = "open"
	// FaultRead fails FS.ReadFile and File.Read.
	FaultRead FaultOp = "read"
	// FaultWrite fails FS.WriteFile and File.Write.
	FaultWrite FaultOp = "write"
	// FaultSync fails File.Sync, including directory syncs.
	FaultSync FaultOp = "sync"
	// FaultRename fails FS.Rename. Matches either the old or the new path.
	FaultRename FaultOp = "rename"
	// FaultRemove fails FS.Remove.
	FaultRemove FaultOp = "remove"
	// FaultStat fails FS.Stat and FS.Exists.
	FaultStat FaultOp = "stat"
)

// Fault describes one injection rule.
type Fault struct {
	// Op is the operation class to fail.
	Op FaultOp

	// Path restricts the fault to one path. Empty matches every path.
	Path string

	// Err is the errno-style cause. Default: [syscall.EIO].
	Err error

	// Count limits how often the fault fires. Zero means every time.
	Count int
}

// Faulty is a test filesystem that fails chosen operations deterministically.
//
// Failing [FaultRename] on a commit leaves a fully synced staging file next to
// an untouched final file, the same on-disk state a crash between sync and
// rename produces.
//
// Injected errors are *os.PathError (or *os.LinkError for rename) wrapped in
// [InjectedError], so both [IsInjected] and os.IsNotExist-style checks work.
//
// Faulty is safe for concurrent use.
type Faulty struct {
	fs FS

	mu     sync.Mutex
	faults []*Fault
	hits   map[FaultOp]int
}

// NewFaulty wraps underlying. With no faults injected it is a passthrough.
// Panics if underlying is nil.
func NewFaulty(underlying FS) *Faulty {
	if underlying == nil {
		panic("fs is nil")
	}

	return &Faulty{fs: underlying, hits: make(map[FaultOp]int)}
}

// Inject adds a fault rule. Rules are checked in insertion order.
func (f *Faulty) Inject(fault Fault) {
	if fault.Err == nil {
		fault.Err = syscall.EIO
	}

	if fault.Path != "" {
		fault.Path = filepath.Clean(fault.Path)
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	f.faults = append(f.faults, &fault)
}

// Reset removes all fault rules and hit counts.
func (f *Faulty) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.faults = nil
	f.hits = make(map[FaultOp]int)
}

// Hits returns how many times faults for op fired.
func (f *Faulty) Hits(op FaultOp) int {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.hits[op]
}

// Open implements [FS].
func (f *Faulty) Open(path string) (File, error) {
	if err := f.check(FaultOpen, path); err != nil {
		return nil, pathErr("open", path, err)
	}

	file, err := f.fs.Open(path)
	if err != nil {
		return nil, err
	}

	return &faultyFile{File: file, owner: f, path: path}, nil
}

// OpenFile implements [FS].
func (f *Faulty) OpenFile(path string, flag int, perm os.FileMode) (File, error) {
	if err := f.check(FaultOpen, path); err != nil {
		return nil, pathErr("open", path, err)
	}

	file, err := f.fs.OpenFile(path, flag, perm)
	if err != nil {
		return nil, err
	}

	return &faultyFile{File: file, owner: f, path: path}, nil
}

// ReadFile implements [FS].
func (f *Faulty) ReadFile(path string) ([]byte, error) {
	if err := f.check(FaultRead, path); err != nil {
		return nil, pathErr("read", path, err)
	}

	return f.fs.ReadFile(path)
}

// WriteFile implements [FS].
func (f *Faulty) WriteFile(path string, data []byte, perm os.FileMode) error {
	if err := f.check(FaultWrite, path); err != nil {
		return pathErr("write", path, err)
	}

	return f.fs.WriteFile(path, data, perm)
}

// MkdirAll implements [FS]. It is never failed.
func (f *Faulty) MkdirAll(path string, perm os.FileMode) error {
	return f.fs.MkdirAll(path, perm)
}

// Stat implements [FS].
func (f *Faulty) Stat(path string) (os.FileInfo, error) {
	if err := f.check(FaultStat, path); err != nil {
		return nil, pathErr("stat", path, err)
	}

	return f.fs.Stat(path)
}

// Exists implements [FS].
func (f *Faulty) Exists(path string) (bool, error) {
	if err := f.check(FaultStat, path); err != nil {
		return false, pathErr("stat", path, err)
	}

	return f.fs.Exists(path)
}

// Remove implements [FS].
func (f *Faulty) Remove(path string) error {
	if err := f.check(FaultRemove, path); err != nil {
		return pathErr("remove", path, err)
	}

	return f.fs.Remove(path)
}

// Rename implements [FS].
func (f *Faulty) Rename(oldpath, newpath string) error {
	if err := f.check(FaultRename, oldpath, newpath); err != nil {
		return inject(&os.LinkError{Op: "rename", Old: oldpath, New: newpath, Err: err})
	}

	return f.fs.Rename(oldpath, newpath)
}

// check returns the cause of the first matching fault, consuming one use.
func (f *Faulty) check(op FaultOp, paths ...string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	for i, fault := range f.faults {
		if fault.Op != op || !fault.matches(paths) {
			continue
		}

		f.hits[op]++

		if fault.Count > 0 {
			fault.Count--
			if fault.Count == 0 {
				f.faults = append(f.faults[:i:i], f.faults[i+1:]...)
			}
		}

		return fault.Err
	}

	return nil
}

func (fault *Fault) matches(paths []string) bool {
	if fault.Path == "" {
		return true
	}

	for _, p := range paths {
		if filepath.Clean(p) == fault.Path {
			return true
		}
	}

	return false
}

func pathErr(op, path string, err error) error {
	return inject(&os.PathError{Op: op, Path: path, Err: err})
}

// faultyFile applies read, write and sync faults to an open handle.
type faultyFile struct {
	File

	owner *Faulty
	path  string
}

func (ff *faultyFile) Read(p []byte) (int, error) {
	if err := ff.owner.check(FaultRead, ff.path); err != nil {
		return 0, pathErr("read", ff.path, err)
	}

	return ff.File.Read(p)
}

func (ff *faultyFile) Write(p []byte) (int, error) {
	if err := ff.owner.check(FaultWrite, ff.path); err != nil {
		return 0, pathErr("write", ff.path, err)
	}

	return ff.File.Write(p)
}

func (ff *faultyFile) Sync() error {
	if err := ff.owner.check(FaultSync, ff.path); err != nil {
		return pathErr("sync", ff.path, err)
	}

	return ff.File.Sync()
}

// Compile-time interface checks.
var (
	_ FS   = (*Faulty)(nil)
	_ File = (*faultyFile)(nil)
)
