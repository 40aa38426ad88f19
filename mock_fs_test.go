package datatransfer

import (
	"bytes"
	"errors"
	"io"
	"os"
	"path"
	"sort"
	"time"
)

// mockFileInfo implements os.FileInfo for testing.
type mockFileInfo struct {
	name    string
	size    int64
	mode    os.FileMode
	modTime time.Time
	isDir   bool
}

func (m *mockFileInfo) Name() string       { return m.name }
func (m *mockFileInfo) Size() int64        { return m.size }
func (m *mockFileInfo) Mode() os.FileMode  { return m.mode }
func (m *mockFileInfo) ModTime() time.Time { return m.modTime }
func (m *mockFileInfo) IsDir() bool        { return m.isDir }
func (m *mockFileInfo) Sys() any           { return nil }

// MockRemoteFS implements RemoteFS in memory. Like a real SFTP server it
// refuses to create files or directories whose parent is missing, and
// refuses mkdir on an existing path.
type MockRemoteFS struct {
	files  map[string][]byte
	dirs   map[string]bool
	errors map[string]error
	// pathErrors fails a method for one path only, keyed "Method:path".
	pathErrors map[string]error

	// failWriteAfter makes writes fail once this many bytes were written
	// to a file (0 disables).
	failWriteAfter int
	// sizeSkew is added to the size Stat reports for files.
	sizeSkew int64

	mkdirCalls []string
	statCalls  int
	closed     bool
}

// NewMockRemoteFS creates an empty mock file system with "/" and "." present.
func NewMockRemoteFS() *MockRemoteFS {
	return &MockRemoteFS{
		files:      make(map[string][]byte),
		dirs:       map[string]bool{"/": true, ".": true},
		errors:     make(map[string]error),
		pathErrors: make(map[string]error),
	}
}

var _ RemoteFS = (*MockRemoteFS)(nil)

// SetError sets an error to be returned for a specific method.
func (m *MockRemoteFS) SetError(method string, err error) {
	m.errors[method] = err
}

// SetPathError sets an error returned by method for path only.
func (m *MockRemoteFS) SetPathError(method, p string, err error) {
	m.pathErrors[method+":"+p] = err
}

// SetFile stores a file, creating no parents.
func (m *MockRemoteFS) SetFile(p string, content []byte) {
	m.files[p] = content
}

// SetDir marks p as an existing directory.
func (m *MockRemoteFS) SetDir(p string) {
	m.dirs[p] = true
}

// Dirs returns the sorted list of directories.
func (m *MockRemoteFS) Dirs() []string {
	var dirs []string
	for d := range m.dirs {
		dirs = append(dirs, d)
	}
	sort.Strings(dirs)
	return dirs
}

func (m *MockRemoteFS) fail(method, p string) error {
	if err := m.errors[method]; err != nil {
		return err
	}
	return m.pathErrors[method+":"+p]
}

func (m *MockRemoteFS) Create(p string) (RemoteFile, error) {
	if err := m.fail("Create", p); err != nil {
		return nil, err
	}
	if !m.dirs[path.Dir(p)] {
		return nil, os.ErrNotExist
	}
	if m.dirs[p] {
		return nil, errors.New("is a directory")
	}
	m.files[p] = []byte{}
	return &mockRemoteFile{fs: m, path: p}, nil
}

func (m *MockRemoteFS) Open(p string) (RemoteFile, error) {
	if err := m.fail("Open", p); err != nil {
		return nil, err
	}
	content, ok := m.files[p]
	if !ok {
		return nil, os.ErrNotExist
	}
	return &mockRemoteFile{fs: m, path: p, reader: bytes.NewReader(content)}, nil
}

func (m *MockRemoteFS) Stat(p string) (os.FileInfo, error) {
	m.statCalls++
	if err := m.fail("Stat", p); err != nil {
		return nil, err
	}
	if m.dirs[p] {
		return &mockFileInfo{name: path.Base(p), mode: os.ModeDir | 0755, isDir: true}, nil
	}
	content, ok := m.files[p]
	if !ok {
		return nil, os.ErrNotExist
	}
	return &mockFileInfo{
		name:    path.Base(p),
		size:    int64(len(content)) + m.sizeSkew,
		mode:    0644,
		modTime: time.Now(),
	}, nil
}

func (m *MockRemoteFS) Mkdir(p string) error {
	m.mkdirCalls = append(m.mkdirCalls, p)
	if err := m.fail("Mkdir", p); err != nil {
		return err
	}
	if m.dirs[p] {
		return os.ErrExist
	}
	if _, ok := m.files[p]; ok {
		return os.ErrExist
	}
	if !m.dirs[path.Dir(p)] {
		return os.ErrNotExist
	}
	m.dirs[p] = true
	return nil
}

func (m *MockRemoteFS) Getwd() (string, error) {
	if err := m.fail("Getwd", ""); err != nil {
		return "", err
	}
	return "/home/test", nil
}

func (m *MockRemoteFS) Close() error {
	m.closed = true
	return m.errors["Close"]
}

// mockRemoteFile writes straight into the owning MockRemoteFS.
type mockRemoteFile struct {
	fs     *MockRemoteFS
	path   string
	reader *bytes.Reader
	closed bool
}

func (f *mockRemoteFile) Read(p []byte) (int, error) {
	if f.reader == nil {
		return 0, io.EOF
	}
	return f.reader.Read(p)
}

func (f *mockRemoteFile) Write(p []byte) (int, error) {
	if err := f.fs.fail("Write", f.path); err != nil {
		return 0, err
	}
	current := f.fs.files[f.path]
	if limit := f.fs.failWriteAfter; limit > 0 && len(current)+len(p) > limit {
		n := limit - len(current)
		f.fs.files[f.path] = append(current, p[:n]...)
		return n, errors.New("connection lost")
	}
	f.fs.files[f.path] = append(current, p...)
	return len(p), nil
}

func (f *mockRemoteFile) Close() error {
	f.closed = true
	return f.fs.fail("CloseFile", f.path)
}
