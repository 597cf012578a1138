package state

import "time"

// BatchState is the persisted record of directory batch scans
type BatchState struct {
	// LastRun is when the last batch finished
	LastRun time.Time `json:"last_run"`

	// Files maps an image path to its scan state
	Files map[string]*FileState `json:"files"`

	// Version is the state file format version
	Version int `json:"version"`
}

// FileState is the scan state of one image file
type FileState struct {
	// Path is the image path as found in the scanned directory
	Path string `json:"path"`

	// Hash is the SHA256 of the file content, used for change detection
	Hash string `json:"hash"`

	Size    int64     `json:"size"`
	ModTime time.Time `json:"mod_time"`

	// LastScanned is when the file was last scanned, successfully or not
	LastScanned time.Time `json:"last_scanned"`

	Status ScanStatus `json:"status"`

	// ScanID links to the scan history when it is enabled
	ScanID string `json:"scan_id,omitempty"`

	Banks    []string `json:"banks,omitempty"`
	Accounts []string `json:"accounts,omitempty"`
	Quality  float64  `json:"quality,omitempty"`
	Warnings []string `json:"warnings,omitempty"`

	// Error contains the error message from the last failed attempt
	Error string `json:"error,omitempty"`

	// RetryCount is the number of consecutive failed attempts
	RetryCount int `json:"retry_count"`
}

// ScanStatus is the outcome recorded for a file
type ScanStatus string

const (
	// ScanStatusPending indicates the file has not been scanned yet
	ScanStatusPending ScanStatus = "pending"

	// ScanStatusSuccess indicates the scan found text
	ScanStatusSuccess ScanStatus = "success"

	// ScanStatusEmpty indicates the image had nothing readable
	ScanStatusEmpty ScanStatus = "empty"

	// ScanStatusFailed indicates the scan could not be completed
	ScanStatusFailed ScanStatus = "failed"
)

// MaxRetries is how many failed attempts a file gets before it is skipped until it changes
const MaxRetries = 3

// StateFileVersion is the current version of the state file format
const StateFileVersion = 1

// NewBatchState creates a new empty BatchState
func NewBatchState() *BatchState {
	return &BatchState{
		Files:   make(map[string]*FileState),
		Version: StateFileVersion,
	}
}

// NewFileState creates a pending FileState
func NewFileState(path, hash string, size int64, modTime time.Time) *FileState {
	return &FileState{
		Path:    path,
		Hash:    hash,
		Size:    size,
		ModTime: modTime,
		Status:  ScanStatusPending,
	}
}

// NeedsScan reports whether a file with the given content hash should be scanned
func (fs *FileState) NeedsScan(hash string) bool {
	// changed content always rescans
	if fs.Hash != hash {
		return true
	}

	switch fs.Status {
	case ScanStatusSuccess, ScanStatusEmpty:
		return false
	case ScanStatusFailed:
		return fs.RetryCount < MaxRetries
	default:
		return true
	}
}

// Outcome is what a completed scan recorded about a file
type Outcome struct {
	Status   ScanStatus
	ScanID   string
	Banks    []string
	Accounts []string
	Quality  float64
	Warnings []string
}

// MarkScanned records a completed scan
func (fs *FileState) MarkScanned(hash string, o Outcome) {
	fs.Hash = hash
	fs.LastScanned = time.Now()
	fs.Status = o.Status
	fs.ScanID = o.ScanID
	fs.Banks = o.Banks
	fs.Accounts = o.Accounts
	fs.Quality = o.Quality
	fs.Warnings = o.Warnings
	fs.Error = ""
	fs.RetryCount = 0
}

// MarkError records a failed attempt. A new hash resets the retry count.
func (fs *FileState) MarkError(hash string, err error) {
	if fs.Hash != hash {
		fs.RetryCount = 0
	}
	fs.Hash = hash
	fs.LastScanned = time.Now()
	fs.Status = ScanStatusFailed
	fs.Error = err.Error()
	fs.RetryCount++
}

// GetFile returns the FileState for a path, or nil if not found
func (bs *BatchState) GetFile(path string) *FileState {
	return bs.Files[path]
}

// PutFile adds or updates a file in the batch state
func (bs *BatchState) PutFile(fs *FileState) {
	bs.Files[fs.Path] = fs
}

// RemoveFile removes a file from the batch state
func (bs *BatchState) RemoveFile(path string) {
	delete(bs.Files, path)
}

// UpdateLastRun updates the last run timestamp
func (bs *BatchState) UpdateLastRun() {
	bs.LastRun = time.Now()
}

// FilesByStatus returns all files with the given status
func (bs *BatchState) FilesByStatus(status ScanStatus) []*FileState {
	var files []*FileState
	for _, f := range bs.Files {
		if f.Status == status {
			files = append(files, f)
		}
	}
	return files
}

// FilesWithAccount returns the files in which an account number was found
func (bs *BatchState) FilesWithAccount(account string) []*FileState {
	var files []*FileState
	for _, f := range bs.Files {
		for _, a := range f.Accounts {
			if a == account {
				files = append(files, f)
				break
			}
		}
	}
	return files
}

// Prune drops files not in keep and returns how many were removed
func (bs *BatchState) Prune(keep map[string]bool) int {
	removed := 0
	for path := range bs.Files {
		if !keep[path] {
			delete(bs.Files, path)
			removed++
		}
	}
	return removed
}
