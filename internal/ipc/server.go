package ipc

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/rpc"
	"net/rpc/jsonrpc"
	"os"
	"sync"
	"time"

	"perch/internal/admission"
	"perch/internal/capture"
	"perch/internal/daemon"
	"perch/internal/faults"
	"perch/internal/logging"
	"perch/internal/schedule"
)

// Server exposes daemon control via JSON-RPC over a Unix domain socket.
type Server struct {
	path      string
	daemon    *daemon.Daemon
	logger    *slog.Logger
	listener  net.Listener
	rpcServer *rpc.Server

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewServer configures the IPC server at the given socket path.
func NewServer(ctx context.Context, path string, d *daemon.Daemon, logger *slog.Logger) (*Server, error) {
	if d == nil {
		return nil, errors.New("ipc server requires daemon")
	}
	if logger == nil {
		logger = logging.NewNop()
	}

	if err := os.RemoveAll(path); err != nil {
		return nil, fmt.Errorf("remove existing socket: %w", err)
	}

	listener, err := net.Listen("unix", path)
	if err != nil {
		return nil, fmt.Errorf("listen on socket: %w", err)
	}

	rpcServer := rpc.NewServer()
	srv := &service{daemon: d, logger: logger, ctx: ctx}
	if err := rpcServer.RegisterName("Perch", srv); err != nil {
		listener.Close()
		return nil, fmt.Errorf("register rpc service: %w", err)
	}

	serverCtx, cancel := context.WithCancel(ctx)
	return &Server{
		path:      path,
		daemon:    d,
		logger:    logging.NewComponentLogger(logger, "ipc"),
		listener:  listener,
		rpcServer: rpcServer,
		ctx:       serverCtx,
		cancel:    cancel,
	}, nil
}

// Serve starts accepting RPC connections until the context is canceled.
func (s *Server) Serve() {
	s.logger.Debug("IPC server listening", logging.String("socket", s.path))
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		for {
			conn, err := s.listener.Accept()
			if err != nil {
				select {
				case <-s.ctx.Done():
					return
				default:
				}
				s.logger.Warn("accept failed", logging.Error(err))
				continue
			}
			s.wg.Add(1)
			go func(c net.Conn) {
				defer s.wg.Done()
				s.rpcServer.ServeCodec(jsonrpc.NewServerCodec(c))
			}(conn)
		}
	}()
}

// Close stops the server and removes the socket file.
func (s *Server) Close() {
	s.cancel()
	if s.listener != nil {
		_ = s.listener.Close()
	}
	s.wg.Wait()
	if err := os.RemoveAll(s.path); err != nil {
		s.logger.Warn("failed to remove socket",
			logging.String("socket", s.path),
			logging.Error(err),
		)
	}
}

type service struct {
	daemon *daemon.Daemon
	logger *slog.Logger
	ctx    context.Context
}

func (s *service) Status(_ StatusRequest, resp *StatusResponse) error {
	d := s.daemon
	resp.Running = d.Running()
	resp.DBPath = d.Store().Path()
	resp.Audio = sessionToWire(d.Audio().Status())
	resp.Video = sessionToWire(d.Video().Status())

	jobs, err := d.Engine().GetPendingJobs(s.ctx)
	if err != nil {
		return err
	}
	for _, job := range jobs {
		var next *time.Time
		if at, ok := d.Engine().NextFire(job.ID); ok {
			next = &at
			resp.ArmedCount++
		}
		resp.PendingJobs = append(resp.PendingJobs, jobToWire(job, next))
	}
	return nil
}

func (s *service) JobCreate(req JobCreateRequest, resp *JobCreateResponse) error {
	job, err := s.daemon.Engine().CreateJob(s.ctx, schedule.JobDefinition{
		Name:            req.Name,
		DurationSeconds: req.DurationSeconds,
		Notes:           req.Notes,
		IsRecurring:     req.IsRecurring,
		Pattern:         PatternFromWire(req.Pattern),
		StartAt:         req.StartAt,
		AllowOverride:   req.AllowOverride,
		CaptureVideo:    req.CaptureVideo,
	})
	if err != nil {
		return err
	}
	resp.Job = s.wireJob(job)
	return nil
}

func (s *service) JobUpdate(req JobUpdateRequest, resp *JobUpdateResponse) error {
	job, err := s.daemon.Engine().UpdateJob(s.ctx, req.ID, schedule.JobUpdate{
		Name:            req.Name,
		DurationSeconds: req.DurationSeconds,
		Notes:           req.Notes,
		Pattern:         PatternFromWire(req.Pattern),
		StartAt:         req.StartAt,
		AllowOverride:   req.AllowOverride,
		CaptureVideo:    req.CaptureVideo,
	})
	if err != nil {
		return err
	}
	resp.Job = s.wireJob(job)
	return nil
}

func (s *service) JobDelete(req JobDeleteRequest, resp *JobDeleteResponse) error {
	if err := s.daemon.Engine().DeleteJob(s.ctx, req.ID); err != nil {
		return err
	}
	resp.Deleted = true
	return nil
}

func (s *service) JobGet(req JobGetRequest, resp *JobGetResponse) error {
	job, err := s.daemon.Engine().GetJob(s.ctx, req.ID)
	if err != nil {
		return err
	}
	resp.Job = s.wireJob(job)
	return nil
}

func (s *service) JobList(req JobListRequest, resp *JobListResponse) error {
	var (
		jobs []*schedule.Job
		err  error
	)
	if req.PendingOnly {
		jobs, err = s.daemon.Engine().GetPendingJobs(s.ctx)
	} else {
		jobs, err = s.daemon.Engine().GetAllJobs(s.ctx)
	}
	if err != nil {
		return err
	}
	for _, job := range jobs {
		resp.Jobs = append(resp.Jobs, s.wireJob(job))
	}
	return nil
}

func (s *service) TemplateCreate(req TemplateCreateRequest, resp *TemplateCreateResponse) error {
	tpl, err := s.daemon.Engine().CreateTemplate(s.ctx, schedule.Template{
		Name:            req.Name,
		DurationSeconds: req.DurationSeconds,
		Pattern:         PatternFromWire(req.Pattern),
		AllowOverride:   req.AllowOverride,
		CaptureVideo:    req.CaptureVideo,
		Notes:           req.Notes,
	})
	if err != nil {
		return err
	}
	resp.Template = templateToWire(tpl)
	return nil
}

func (s *service) TemplateGet(req TemplateGetRequest, resp *TemplateGetResponse) error {
	tpl, err := s.daemon.Engine().GetTemplate(s.ctx, req.ID)
	if err != nil {
		return err
	}
	resp.Template = templateToWire(tpl)
	return nil
}

func (s *service) TemplateList(req TemplateListRequest, resp *TemplateListResponse) error {
	templates, err := s.daemon.Engine().ListTemplates(s.ctx)
	if err != nil {
		return err
	}
	for _, tpl := range templates {
		resp.Templates = append(resp.Templates, templateToWire(tpl))
	}
	return nil
}

func (s *service) TemplateUpdate(req TemplateUpdateRequest, resp *TemplateUpdateResponse) error {
	tpl, err := s.daemon.Engine().UpdateTemplate(s.ctx, req.ID, schedule.TemplateUpdate{
		Name:            req.Name,
		DurationSeconds: req.DurationSeconds,
		Pattern:         PatternFromWire(req.Pattern),
		AllowOverride:   req.AllowOverride,
		CaptureVideo:    req.CaptureVideo,
		Notes:           req.Notes,
	})
	if err != nil {
		return err
	}
	resp.Template = templateToWire(tpl)
	return nil
}

func (s *service) TemplateDelete(req TemplateDeleteRequest, resp *TemplateDeleteResponse) error {
	if err := s.daemon.Engine().DeleteTemplate(s.ctx, req.ID); err != nil {
		return err
	}
	resp.Deleted = true
	return nil
}

func (s *service) TemplateApply(req TemplateApplyRequest, resp *TemplateApplyResponse) error {
	job, err := s.daemon.Engine().ApplyTemplate(s.ctx, req.ID, req.JobName, req.StartAt)
	if err != nil {
		return err
	}
	resp.Job = s.wireJob(job)
	return nil
}

func (s *service) Instances(req InstancesRequest, resp *InstancesResponse) error {
	instances, err := s.daemon.Reconciler().GetInstancesForRange(s.ctx, req.Start, req.End)
	if err != nil {
		return err
	}
	for _, inst := range instances {
		resp.Instances = append(resp.Instances, instanceToWire(inst))
	}
	return nil
}

func (s *service) InstanceEnsure(req InstanceEnsureRequest, resp *InstanceEnsureResponse) error {
	inst, created, err := s.daemon.Reconciler().EnsureInstanceExists(s.ctx, req.JobID, req.Date)
	if err != nil {
		return err
	}
	resp.WasCreated = created
	if inst != nil {
		wire := instanceToWire(inst)
		resp.Instance = &wire
	}
	return nil
}

func (s *service) RecordStart(req RecordStartRequest, resp *RecordStartResponse) error {
	sup, err := s.supervisor(req.Class)
	if err != nil {
		return err
	}
	info, err := sup.Start(s.ctx, capture.Request{
		DurationSeconds: req.DurationSeconds,
		AllowOverride:   req.AllowOverride,
	})
	if err != nil {
		return err
	}
	resp.SessionID = info.SessionID.String()
	resp.PID = info.PID
	resp.OutputFiles = info.OutputFiles
	return nil
}

func (s *service) RecordStop(req RecordStopRequest, resp *RecordStopResponse) error {
	sup, err := s.supervisor(req.Class)
	if err != nil {
		return err
	}
	outcome, err := sup.Stop(s.ctx)
	if errors.Is(err, faults.ErrNotFound) {
		// Nothing running: report it rather than erroring the call.
		return nil
	}
	if err != nil {
		return err
	}
	if outcome == nil {
		return nil
	}
	resp.Stopped = true
	resp.Succeeded = outcome.Succeeded()
	resp.OutputFiles = outcome.OutputFiles
	if outcome.Err != nil {
		resp.Error = outcome.Err.Error()
	}
	return nil
}

func (s *service) RecordStatus(req RecordStatusRequest, resp *RecordStatusResponse) error {
	sup, err := s.supervisor(req.Class)
	if err != nil {
		return err
	}
	resp.Session = sessionToWire(sup.Status())
	return nil
}

func (s *service) Cleanup(req CleanupRequest, resp *CleanupResponse) error {
	opts := schedule.CleanupOptions{
		RetentionDays: req.RetentionDays,
		Completed:     req.Completed,
		Failed:        req.Failed,
		Missed:        req.Missed,
	}
	var (
		result *schedule.CleanupResult
		err    error
	)
	if req.DryRun {
		result, err = s.daemon.Engine().CleanupPreview(s.ctx, opts)
	} else {
		result, err = s.daemon.Engine().Cleanup(s.ctx, opts)
	}
	if err != nil {
		return err
	}
	resp.Cutoff = result.Cutoff
	resp.JobsDeleted = result.JobsDeleted
	resp.InstancesDeleted = result.InstancesDeleted
	resp.DryRun = req.DryRun
	return nil
}

func (s *service) ConfigGet(req ConfigGetRequest, resp *ConfigGetResponse) error {
	value, err := s.daemon.Store().GetConfig(s.ctx, req.Key, "")
	if err != nil {
		return err
	}
	resp.Key = req.Key
	resp.Value = value
	return nil
}

func (s *service) ConfigSet(req ConfigSetRequest, _ *ConfigSetResponse) error {
	return s.daemon.Store().SetConfig(s.ctx, req.Key, req.Value)
}

func (s *service) ConfigAll(_ ConfigAllRequest, resp *ConfigAllResponse) error {
	values, err := s.daemon.Store().AllConfig(s.ctx)
	if err != nil {
		return err
	}
	resp.Values = values
	return nil
}

func (s *service) Storage(_ StorageRequest, resp *StorageResponse) error {
	cfg := s.daemon.Config()
	info, err := admission.GetStorageInfo(cfg.Paths.RecordingsDir, audioMBPerHour(cfg.Audio.SampleRate, cfg.Audio.Channels))
	if err != nil {
		return err
	}
	resp.Path = info.Path
	resp.TotalBytes = info.TotalBytes
	resp.UsedBytes = info.UsedBytes
	resp.FreeBytes = info.FreeBytes
	resp.EstimatedHours = info.HoursRemaining
	return nil
}

func (s *service) supervisor(class string) (*capture.Supervisor, error) {
	switch capture.Class(class) {
	case capture.ClassAudio:
		return s.daemon.Audio(), nil
	case capture.ClassVideo:
		return s.daemon.Video(), nil
	default:
		return nil, fmt.Errorf("unknown capture class %q", class)
	}
}

func (s *service) wireJob(job *schedule.Job) JobPayload {
	var next *time.Time
	if at, ok := s.daemon.Engine().NextFire(job.ID); ok {
		next = &at
	}
	return jobToWire(job, next)
}

func sessionToWire(status capture.Status) SessionPayload {
	payload := SessionPayload{
		Class:  string(status.Class),
		Active: status.Active,
	}
	if !status.Active {
		return payload
	}
	payload.SessionID = status.SessionID.String()
	payload.PID = status.PID
	payload.StartedAt = status.StartedAt
	payload.DurationSeconds = status.DurationSeconds
	payload.ElapsedSeconds = int(status.Elapsed.Seconds())
	payload.RemainingSeconds = int(status.Remaining.Seconds())
	payload.OutputFiles = status.OutputFiles
	payload.JobID = status.JobID
	payload.JobName = status.JobName
	return payload
}

// audioMBPerHour estimates the write rate of a PCM capture for the
// storage report.
func audioMBPerHour(sampleRate, channels int) int {
	bytesPerHour := int64(sampleRate) * 2 * int64(channels) * 3600
	return int(bytesPerHour / (1024 * 1024))
}
