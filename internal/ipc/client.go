package ipc

import (
	"net"
	"net/rpc"
	"net/rpc/jsonrpc"
	"time"
)

// Client provides RPC access to the daemon.
type Client struct {
	conn   net.Conn
	client *rpc.Client
}

// Dial connects to the IPC server at the given socket path.
func Dial(path string) (*Client, error) {
	conn, err := net.DialTimeout("unix", path, 2*time.Second)
	if err != nil {
		return nil, err
	}
	rpcClient := rpc.NewClientWithCodec(jsonrpc.NewClientCodec(conn))
	return &Client{conn: conn, client: rpcClient}, nil
}

// Close closes the underlying connection.
func (c *Client) Close() error {
	if c.client != nil {
		_ = c.client.Close()
	}
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}

// Status reports daemon and session state.
func (c *Client) Status() (*StatusResponse, error) {
	var resp StatusResponse
	if err := c.client.Call("Perch.Status", StatusRequest{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// JobCreate registers a new capture job.
func (c *Client) JobCreate(req JobCreateRequest) (*JobCreateResponse, error) {
	var resp JobCreateResponse
	if err := c.client.Call("Perch.JobCreate", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// JobUpdate applies a partial update to a job.
func (c *Client) JobUpdate(req JobUpdateRequest) (*JobUpdateResponse, error) {
	var resp JobUpdateResponse
	if err := c.client.Call("Perch.JobUpdate", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// JobDelete removes a job.
func (c *Client) JobDelete(id int64) (*JobDeleteResponse, error) {
	var resp JobDeleteResponse
	if err := c.client.Call("Perch.JobDelete", JobDeleteRequest{ID: id}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// JobGet fetches one job.
func (c *Client) JobGet(id int64) (*JobGetResponse, error) {
	var resp JobGetResponse
	if err := c.client.Call("Perch.JobGet", JobGetRequest{ID: id}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// JobList lists jobs, optionally restricted to ones that can still fire.
func (c *Client) JobList(pendingOnly bool) (*JobListResponse, error) {
	var resp JobListResponse
	if err := c.client.Call("Perch.JobList", JobListRequest{PendingOnly: pendingOnly}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Instances fetches instance rows in a date range.
func (c *Client) Instances(start, end string) (*InstancesResponse, error) {
	var resp InstancesResponse
	if err := c.client.Call("Perch.Instances", InstancesRequest{Start: start, End: end}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// InstanceEnsure runs the idempotent backfill for one (job, date).
func (c *Client) InstanceEnsure(jobID int64, date string) (*InstanceEnsureResponse, error) {
	var resp InstanceEnsureResponse
	if err := c.client.Call("Perch.InstanceEnsure", InstanceEnsureRequest{JobID: jobID, Date: date}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// RecordStart begins a manual capture.
func (c *Client) RecordStart(req RecordStartRequest) (*RecordStartResponse, error) {
	var resp RecordStartResponse
	if err := c.client.Call("Perch.RecordStart", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// RecordStop ends the running capture for a class.
func (c *Client) RecordStop(class string) (*RecordStopResponse, error) {
	var resp RecordStopResponse
	if err := c.client.Call("Perch.RecordStop", RecordStopRequest{Class: class}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// RecordStatus reports the supervisor status for a class.
func (c *Client) RecordStatus(class string) (*RecordStatusResponse, error) {
	var resp RecordStatusResponse
	if err := c.client.Call("Perch.RecordStatus", RecordStatusRequest{Class: class}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Cleanup runs or previews retention cleanup.
func (c *Client) Cleanup(req CleanupRequest) (*CleanupResponse, error) {
	var resp CleanupResponse
	if err := c.client.Call("Perch.Cleanup", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// ConfigGet reads one system config value.
func (c *Client) ConfigGet(key string) (*ConfigGetResponse, error) {
	var resp ConfigGetResponse
	if err := c.client.Call("Perch.ConfigGet", ConfigGetRequest{Key: key}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// ConfigSet writes one system config value.
func (c *Client) ConfigSet(key, value string) error {
	var resp ConfigSetResponse
	return c.client.Call("Perch.ConfigSet", ConfigSetRequest{Key: key, Value: value}, &resp)
}

// ConfigAll reads the whole system config table.
func (c *Client) ConfigAll() (*ConfigAllResponse, error) {
	var resp ConfigAllResponse
	if err := c.client.Call("Perch.ConfigAll", ConfigAllRequest{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Storage reports recording disk capacity.
func (c *Client) Storage() (*StorageResponse, error) {
	var resp StorageResponse
	if err := c.client.Call("Perch.Storage", StorageRequest{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// TemplateCreate stores a new capture preset.
func (c *Client) TemplateCreate(req TemplateCreateRequest) (*TemplateCreateResponse, error) {
	var resp TemplateCreateResponse
	if err := c.client.Call("Perch.TemplateCreate", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// TemplateGet fetches one preset.
func (c *Client) TemplateGet(id int64) (*TemplateGetResponse, error) {
	var resp TemplateGetResponse
	if err := c.client.Call("Perch.TemplateGet", TemplateGetRequest{ID: id}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// TemplateList lists all presets.
func (c *Client) TemplateList() (*TemplateListResponse, error) {
	var resp TemplateListResponse
	if err := c.client.Call("Perch.TemplateList", TemplateListRequest{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// TemplateUpdate changes fields on a preset.
func (c *Client) TemplateUpdate(req TemplateUpdateRequest) (*TemplateUpdateResponse, error) {
	var resp TemplateUpdateResponse
	if err := c.client.Call("Perch.TemplateUpdate", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// TemplateDelete removes a preset.
func (c *Client) TemplateDelete(id int64) (*TemplateDeleteResponse, error) {
	var resp TemplateDeleteResponse
	if err := c.client.Call("Perch.TemplateDelete", TemplateDeleteRequest{ID: id}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// TemplateApply creates a job from a preset.
func (c *Client) TemplateApply(req TemplateApplyRequest) (*TemplateApplyResponse, error) {
	var resp TemplateApplyResponse
	if err := c.client.Call("Perch.TemplateApply", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}
