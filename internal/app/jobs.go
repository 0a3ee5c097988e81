package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/raysh454/nexus/internal/artifact"
	"github.com/raysh454/nexus/internal/config"
	"github.com/raysh454/nexus/internal/dataset"
	"github.com/raysh454/nexus/internal/logging"
	"github.com/raysh454/nexus/internal/scorer"
)

type JobEventType string

const (
	JobEventStatus   JobEventType = "status"
	JobEventProgress JobEventType = "progress"
	JobEventResult   JobEventType = "result"
)

type JobEvent struct {
	JobID string       `json:"job_id"`
	Type  JobEventType `json:"type"`

	// For status changes
	Status JobStatus `json:"status,omitempty"`
	Error  string    `json:"error,omitempty"`

	// For progress
	Processed int `json:"processed,omitempty"`
	Total     int `json:"total,omitempty"`

	// For per-file results
	Result *FileResult `json:"result,omitempty"`
}

type JobStatus string

const (
	JobPending  JobStatus = "pending"
	JobRunning  JobStatus = "running"
	JobDone     JobStatus = "done"
	JobFailed   JobStatus = "failed"
	JobCanceled JobStatus = "canceled"
)

// FileResult is the outcome of analyzing one path in a scan job. Exactly one
// of Verdict and Error is set.
type FileResult struct {
	Path    string                `json:"path"`
	Verdict *scorer.ThreatVerdict `json:"verdict,omitempty"`
	Error   string                `json:"error,omitempty"`
}

type Job struct {
	ID        string        `json:"id"`
	Type      string        `json:"type"` // "scan"
	Status    JobStatus     `json:"status"`
	Error     string        `json:"error,omitempty"`
	StartedAt time.Time     `json:"started_at"`
	EndedAt   time.Time     `json:"ended_at"`
	Total     int           `json:"total"`
	Processed int           `json:"processed"`
	Results   []FileResult  `json:"results,omitempty"`
	Events    chan JobEvent `json:"-"`
}

// snapshot copies the job so callers can read it without holding jobsMu.
func (j *Job) snapshot() *Job {
	cp := *j
	cp.Results = append([]FileResult(nil), j.Results...)
	return &cp
}

func (j *Job) finished() bool {
	switch j.Status {
	case JobDone, JobFailed, JobCanceled:
		return true
	}
	return false
}

// jobTable holds scan jobs and their cancel funcs.
type jobTable struct {
	jobsMu     sync.Mutex
	jobs       map[string]*Job
	jobCancels map[string]context.CancelFunc
}

func (o *Orchestrator) emitJobEvent(jobID string, ev JobEvent) {
	o.jobsMu.Lock()
	job, ok := o.jobs[jobID]
	o.jobsMu.Unlock()
	if !ok || job == nil || job.Events == nil {
		return
	}

	// Non-blocking send; drop if buffer is full.
	select {
	case job.Events <- ev:
	default:
	}
}

func (o *Orchestrator) setJob(job *Job) {
	o.jobsMu.Lock()
	defer o.jobsMu.Unlock()
	if o.jobs == nil {
		o.jobs = make(map[string]*Job)
	}
	o.pruneLocked(time.Now().UTC())
	o.jobs[job.ID] = job
}

func (o *Orchestrator) setCancel(jobID string, cancel context.CancelFunc) {
	o.jobsMu.Lock()
	defer o.jobsMu.Unlock()
	if o.jobCancels == nil {
		o.jobCancels = make(map[string]context.CancelFunc)
	}
	o.jobCancels[jobID] = cancel
}

func (o *Orchestrator) deleteCancel(jobID string) {
	o.jobsMu.Lock()
	defer o.jobsMu.Unlock()
	delete(o.jobCancels, jobID)
}

func (o *Orchestrator) getCancel(jobID string) context.CancelFunc {
	o.jobsMu.Lock()
	defer o.jobsMu.Unlock()
	return o.jobCancels[jobID]
}

// pruneLocked drops finished jobs older than the retention window.
func (o *Orchestrator) pruneLocked(now time.Time) {
	if o.cfg.JobRetentionTime <= 0 {
		return
	}
	for id, j := range o.jobs {
		if j.finished() && !j.EndedAt.IsZero() && now.Sub(j.EndedAt) > o.cfg.JobRetentionTime {
			delete(o.jobs, id)
		}
	}
}

func (o *Orchestrator) updateJob(jobID string, fn func(j *Job)) {
	o.jobsMu.Lock()
	defer o.jobsMu.Unlock()
	if j, ok := o.jobs[jobID]; ok {
		fn(j)
	}
}

// scanRoot returns ScanRoot as an absolute path with symlinks resolved.
func (o *Orchestrator) scanRoot() (string, error) {
	root, err := filepath.Abs(o.cfg.ScanRoot)
	if err == nil {
		root, err = filepath.EvalSymlinks(root)
	}
	if err != nil {
		return "", fmt.Errorf("%w: scan_root %s: %v", config.ErrConfiguration, o.cfg.ScanRoot, err)
	}
	return root, nil
}

// resolveScanPath maps path to its location with symlinks resolved and
// rejects it with ErrInvalidRequest unless that location is inside root.
// Missing trailing components are resolved through their nearest existing
// ancestor, so a missing file inside root still reports ErrNotExist on read.
func resolveScanPath(root, path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("%w: path %q: %v", ErrInvalidRequest, path, err)
	}

	existing, rest := abs, ""
	var resolved string
	for {
		r, err := filepath.EvalSymlinks(existing)
		if err == nil {
			resolved = filepath.Join(r, rest)
			break
		}
		parent := filepath.Dir(existing)
		if !errors.Is(err, os.ErrNotExist) || parent == existing {
			return "", err
		}
		rest = filepath.Join(filepath.Base(existing), rest)
		existing = parent
	}

	if !within(root, resolved) {
		return "", fmt.Errorf("%w: path %q is outside scan_root", ErrInvalidRequest, path)
	}
	return resolved, nil
}

func within(root, p string) bool {
	rel, err := filepath.Rel(root, p)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)) && !filepath.IsAbs(rel)
}

// StartScanJob analyzes every path in the background, at most
// MaxConcurrency at a time. Every path must resolve inside ScanRoot.
// Unreadable files are recorded per file; a configuration, dataset or
// artifact failure fails the whole job.
func (o *Orchestrator) StartScanJob(ctx context.Context, paths []string) (*Job, error) {
	if len(paths) == 0 {
		return nil, fmt.Errorf("%w: no paths to scan", ErrInvalidRequest)
	}
	root, err := o.scanRoot()
	if err != nil {
		return nil, err
	}
	for _, p := range paths {
		if _, err := resolveScanPath(root, p); errors.Is(err, ErrInvalidRequest) {
			return nil, err
		}
	}

	jobID := uuid.New().String()
	now := time.Now().UTC()

	job := &Job{
		ID:        jobID,
		Type:      "scan",
		Status:    JobPending,
		StartedAt: now,
		Total:     len(paths),
		Events:    make(chan JobEvent, 2*len(paths)+8),
	}

	o.setJob(job)

	jobCtx, cancel := context.WithCancel(ctx)
	o.setCancel(jobID, cancel)

	o.emitJobEvent(jobID, JobEvent{
		JobID:  jobID,
		Type:   JobEventStatus,
		Status: JobPending,
	})

	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		o.metrics.JobStarted()
		defer func() {
			o.metrics.JobFinished()
			o.updateJob(jobID, func(j *Job) { j.EndedAt = time.Now().UTC() })
			o.deleteCancel(jobID)
			cancel()

			// Close events channel so websocket loop can terminate cleanly
			o.jobsMu.Lock()
			j := o.jobs[jobID]
			o.jobsMu.Unlock()
			if j != nil && j.Events != nil {
				close(j.Events)
			}
		}()

		o.updateJob(jobID, func(j *Job) { j.Status = JobRunning })
		o.emitJobEvent(jobID, JobEvent{
			JobID:  jobID,
			Type:   JobEventStatus,
			Status: JobRunning,
		})

		err := o.runScan(jobCtx, jobID, root, paths)
		o.finishJob(jobCtx, jobID, err)
	}()

	return o.GetJob(jobID), nil
}

func (o *Orchestrator) runScan(ctx context.Context, jobID, root string, paths []string) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.cfg.MaxConcurrency)

	for _, p := range paths {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			// Resolved again here since links can change after submission.
			var res *FileVerdict
			resolved, err := resolveScanPath(root, p)
			if err == nil {
				res, err = o.AnalyzeFile(gctx, resolved)
			}
			fr := FileResult{Path: p}
			if err != nil {
				if isFatal(err) || gctx.Err() != nil {
					return err
				}
				fr.Error = err.Error()
				o.logger.Warn("scan job: file failed",
					logging.F("job_id", jobID), logging.F("path", p), logging.F("error", err))
			} else {
				fr.Verdict = res.Verdict
			}

			var processed, total int
			o.updateJob(jobID, func(j *Job) {
				j.Results = append(j.Results, fr)
				j.Processed++
				processed, total = j.Processed, j.Total
			})
			o.emitJobEvent(jobID, JobEvent{JobID: jobID, Type: JobEventResult, Result: &fr})
			o.emitJobEvent(jobID, JobEvent{JobID: jobID, Type: JobEventProgress, Processed: processed, Total: total})
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	return ctx.Err()
}

func (o *Orchestrator) finishJob(ctx context.Context, jobID string, err error) {
	status := JobDone
	msg := ""
	switch {
	case ctx.Err() != nil:
		status = JobCanceled
		msg = ctx.Err().Error()
	case err != nil:
		status = JobFailed
		msg = err.Error()
	}

	o.updateJob(jobID, func(j *Job) {
		j.Status = status
		j.Error = msg
		sort.Slice(j.Results, func(a, b int) bool { return j.Results[a].Path < j.Results[b].Path })
	})
	o.emitJobEvent(jobID, JobEvent{
		JobID:  jobID,
		Type:   JobEventStatus,
		Status: status,
		Error:  msg,
	})
	if status == JobFailed {
		o.logger.Error("scan job failed", logging.F("job_id", jobID), logging.F("error", err))
	} else {
		o.logger.Info("scan job finished", logging.F("job_id", jobID), logging.F("status", string(status)))
	}
}

// isFatal reports errors that would fail every remaining file too.
func isFatal(err error) bool {
	if errors.Is(err, os.ErrNotExist) || errors.Is(err, ErrContentTooLarge) {
		return false
	}
	return errors.Is(err, config.ErrConfiguration) ||
		errors.Is(err, dataset.ErrDataset) ||
		errors.Is(err, artifact.ErrArtifactIO)
}

func (o *Orchestrator) CancelJob(jobID string) bool {
	cancel := o.getCancel(jobID)
	if cancel == nil {
		return false
	}
	cancel()
	return true
}

// GetJob returns a copy of the job, or nil if it is unknown or pruned.
func (o *Orchestrator) GetJob(jobID string) *Job {
	o.jobsMu.Lock()
	defer o.jobsMu.Unlock()
	j, ok := o.jobs[jobID]
	if !ok {
		return nil
	}
	return j.snapshot()
}

// ListJobs returns copies of all retained jobs, newest first.
func (o *Orchestrator) ListJobs() []*Job {
	o.jobsMu.Lock()
	defer o.jobsMu.Unlock()
	o.pruneLocked(time.Now().UTC())
	out := make([]*Job, 0, len(o.jobs))
	for _, j := range o.jobs {
		out = append(out, j.snapshot())
	}
	sort.Slice(out, func(a, b int) bool { return out[a].StartedAt.After(out[b].StartedAt) })
	return out
}

// JobEvents returns the live event channel of a job, or nil.
func (o *Orchestrator) JobEvents(jobID string) <-chan JobEvent {
	o.jobsMu.Lock()
	defer o.jobsMu.Unlock()
	if j, ok := o.jobs[jobID]; ok {
		return j.Events
	}
	return nil
}
