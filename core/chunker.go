package core

// core/chunker.go — the client-side resumable chunking engine (spec C6).
// Grounded on the teacher's core/storage.go artifact-directory pattern
// for tracking partially-completed multi-step disk work, generalized to
// a per-upload directory keyed by the source path's hash so an
// interrupted upload resumes instead of restarting. Per SPEC_FULL.md
// §4.6, each chunk body is written to its own file under
// artifacts_dir/<path_key>/<chunk_name> as soon as it is produced, and
// mark_completed deletes that file once the network confirms the PUT;
// a resumed run rebuilds ChunkJob entirely from what mark_completed
// left on disk, so the source file is never re-read and Encryptor is
// never invoked a second time for the same path. Self-encryption itself
// (splitting a file into content-addressed, cross-referencing chunks)
// is out of scope per SPEC_FULL.md; Encryptor is the pluggable seam a
// real implementation plugs into.

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"lukechampine.com/blake3"
)

// Encryptor splits a file's bytes into content-addressed chunks. A real
// implementation performs self-encryption (each chunk's key derived from
// its siblings' plaintext hashes); this package only depends on the
// shape of the result.
type Encryptor interface {
	Encrypt(data []byte) (chunks [][]byte, dataMapChunk []byte, err error)
}

// PathKey derives the stable artifact identifier for a source path: the
// blake3 hash of its cleaned absolute form, so the same file resumes
// under the same key regardless of the working directory a later
// invocation runs from.
func PathKey(absPath string) string {
	sum := blake3.Sum256([]byte(filepath.Clean(absPath)))
	return hex.EncodeToString(sum[:])
}

// chunkArtifact is the on-disk resume record for one in-progress upload.
// Freshness is judged by size and modification time rather than a full
// content hash, so resuming never requires reading the source file.
type chunkArtifact struct {
	PathKey        string
	SourceSize     int64
	SourceModTime  time.Time
	DataMapAddress Name
	ChunkAddresses []Name
	Completed      map[string]bool // hex Name -> confirmed stored
}

// ChunkJob is a chunking engine's view of one file mid-upload: every
// chunk address it produced, and where its still-pending bodies live on
// disk.
type ChunkJob struct {
	PathKey        string
	DataMapAddress Name
	ChunkAddresses []Name
	dir            string
}

// Pending returns the addresses not yet marked completed.
func (j *ChunkJob) Pending(completed map[Name]bool) []Name {
	var out []Name
	for _, a := range j.ChunkAddresses {
		if !completed[a] {
			out = append(out, a)
		}
	}
	return out
}

// Body reads the raw bytes for a chunk address this job produced. It
// returns an error once addr has been confirmed stored and its body
// file removed by MarkCompleted.
func (j *ChunkJob) Body(addr Name) ([]byte, error) {
	b, err := os.ReadFile(filepath.Join(j.dir, addr.String()))
	if err != nil {
		return nil, fmt.Errorf("read chunk body %s: %w", addr, err)
	}
	return b, nil
}

// ChunkingEngine drives Encrypt + the resume-artifact bookkeeping for a
// directory of in-progress uploads.
type ChunkingEngine struct {
	artifactsDir string
	enc          Encryptor

	mu        sync.Mutex
	artifacts map[string]*chunkArtifact
}

// NewChunkingEngine opens (creating if needed) an artifacts directory.
func NewChunkingEngine(artifactsDir string, enc Encryptor) (*ChunkingEngine, error) {
	if err := os.MkdirAll(artifactsDir, 0o755); err != nil {
		return nil, fmt.Errorf("create artifacts dir: %w", err)
	}
	return &ChunkingEngine{artifactsDir: artifactsDir, enc: enc, artifacts: make(map[string]*chunkArtifact)}, nil
}

func (e *ChunkingEngine) jobDir(pathKey string) string { return filepath.Join(e.artifactsDir, pathKey) }

func (e *ChunkingEngine) metaPath(pathKey string) string {
	return filepath.Join(e.jobDir(pathKey), "meta.json")
}

func (e *ChunkingEngine) chunkPath(pathKey string, addr Name) string {
	return filepath.Join(e.jobDir(pathKey), addr.String())
}

// Begin chunks the file at absPath, resuming a prior in-progress
// artifact whose recorded size and modification time still match the
// file on disk. On a resume, readData is never called and Encryptor is
// never invoked: every chunk body the job still needs is already sitting
// on disk from the original run, since mark_completed only deletes a
// chunk's file once the network has confirmed it. readData is consulted
// only the first time this path key is seen (or after its source has
// changed underneath it).
func (e *ChunkingEngine) Begin(absPath string, readData func() ([]byte, error)) (*ChunkJob, map[Name]bool, error) {
	pathKey := PathKey(absPath)
	info, err := os.Stat(absPath)
	if err != nil {
		return nil, nil, fmt.Errorf("stat source file: %w", err)
	}

	existing, err := e.loadArtifact(pathKey)
	if err != nil {
		return nil, nil, err
	}
	if existing != nil && (existing.SourceSize != info.Size() || !existing.SourceModTime.Equal(info.ModTime())) {
		if err := os.RemoveAll(e.jobDir(pathKey)); err != nil {
			return nil, nil, fmt.Errorf("discard stale artifact: %w", err)
		}
		existing = nil
	}

	if existing != nil {
		completed := make(map[Name]bool, len(existing.Completed))
		for _, addr := range existing.ChunkAddresses {
			if existing.Completed[addr.String()] {
				completed[addr] = true
			}
		}
		job := &ChunkJob{
			PathKey:        pathKey,
			DataMapAddress: existing.DataMapAddress,
			ChunkAddresses: existing.ChunkAddresses,
			dir:            e.jobDir(pathKey),
		}
		e.mu.Lock()
		e.artifacts[pathKey] = existing
		e.mu.Unlock()
		return job, completed, nil
	}

	data, err := readData()
	if err != nil {
		return nil, nil, fmt.Errorf("read source file: %w", err)
	}
	chunks, dataMapChunk, err := e.enc.Encrypt(data)
	if err != nil {
		return nil, nil, fmt.Errorf("encrypt: %w", err)
	}
	if err := os.MkdirAll(e.jobDir(pathKey), 0o755); err != nil {
		return nil, nil, fmt.Errorf("create job dir: %w", err)
	}

	job := &ChunkJob{PathKey: pathKey, dir: e.jobDir(pathKey)}
	for _, body := range chunks {
		addr := HashContent(body)
		if err := os.WriteFile(e.chunkPath(pathKey, addr), body, 0o644); err != nil {
			return nil, nil, fmt.Errorf("write chunk %s: %w", addr, err)
		}
		job.ChunkAddresses = append(job.ChunkAddresses, addr)
	}
	job.DataMapAddress = HashContent(dataMapChunk)
	if err := os.WriteFile(e.chunkPath(pathKey, job.DataMapAddress), dataMapChunk, 0o644); err != nil {
		return nil, nil, fmt.Errorf("write data map chunk: %w", err)
	}
	job.ChunkAddresses = append(job.ChunkAddresses, job.DataMapAddress)

	artifact := &chunkArtifact{
		PathKey:        pathKey,
		SourceSize:     info.Size(),
		SourceModTime:  info.ModTime(),
		DataMapAddress: job.DataMapAddress,
		ChunkAddresses: job.ChunkAddresses,
		Completed:      make(map[string]bool),
	}
	if err := e.saveArtifact(artifact); err != nil {
		return nil, nil, err
	}
	e.mu.Lock()
	e.artifacts[pathKey] = artifact
	e.mu.Unlock()

	return job, make(map[Name]bool), nil
}

// MarkCompleted records that addr (belonging to the job with pathKey)
// has been confirmed stored, persists the updated artifact so a crash
// immediately after does not re-upload it, and removes the chunk's body
// file from disk — it is now durable on the network, not just locally.
func (e *ChunkingEngine) MarkCompleted(pathKey string, addr Name) error {
	e.mu.Lock()
	artifact, ok := e.artifacts[pathKey]
	if !ok {
		e.mu.Unlock()
		return fmt.Errorf("%w: no in-progress artifact for path key %s", ErrNotFound, pathKey)
	}
	artifact.Completed[addr.String()] = true
	snapshot := *artifact
	snapshot.Completed = make(map[string]bool, len(artifact.Completed))
	for k, v := range artifact.Completed {
		snapshot.Completed[k] = v
	}
	e.mu.Unlock()

	if err := e.saveArtifact(&snapshot); err != nil {
		return err
	}
	if err := os.Remove(e.chunkPath(pathKey, addr)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove completed chunk body: %w", err)
	}
	return nil
}

// Finish removes the whole job directory — metadata and any remaining
// chunk bodies — once every chunk (and the data map) has been confirmed
// stored.
func (e *ChunkingEngine) Finish(pathKey string) error {
	e.mu.Lock()
	delete(e.artifacts, pathKey)
	e.mu.Unlock()
	err := os.RemoveAll(e.jobDir(pathKey))
	if os.IsNotExist(err) {
		return nil
	}
	return err
}

func (e *ChunkingEngine) loadArtifact(pathKey string) (*chunkArtifact, error) {
	b, err := os.ReadFile(e.metaPath(pathKey))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read artifact: %w", err)
	}
	var a chunkArtifact
	if err := json.Unmarshal(b, &a); err != nil {
		return nil, fmt.Errorf("parse artifact: %w", err)
	}
	return &a, nil
}

func (e *ChunkingEngine) saveArtifact(a *chunkArtifact) error {
	b, err := json.MarshalIndent(a, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal artifact: %w", err)
	}
	if err := os.MkdirAll(e.jobDir(a.PathKey), 0o755); err != nil {
		return fmt.Errorf("create job dir: %w", err)
	}
	tmp := e.metaPath(a.PathKey) + ".tmp"
	if err := os.WriteFile(tmp, b, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, e.metaPath(a.PathKey))
}
