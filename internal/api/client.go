// Package api is the typed client for the fleet maintenance REST backend.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/ukydev/fleet-maintenance/internal/middleware"
	"github.com/ukydev/fleet-maintenance/internal/models"
)

// IdempotencyHeader carries the client key that deduplicates report creation.
const IdempotencyHeader = "Idempotency-Key"

// ErrMissingIDToken is returned by identity-token reads when none is stored.
var ErrMissingIDToken = middleware.ErrMissingIDToken

// Client calls the backend. The zero value is not usable; use NewClient.
type Client struct {
	baseURL string
	http    *http.Client
	upload  *http.Client
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient sets the client used for backend calls.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.http = h }
}

// WithUploadClient sets the client used for presigned uploads.
func WithUploadClient(h *http.Client) Option {
	return func(c *Client) { c.upload = h }
}

// NewClient builds a client for baseURL, which is trimmed of trailing slashes.
func NewClient(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		http:    &http.Client{Timeout: 30 * time.Second},
		upload:  &http.Client{Timeout: 2 * time.Minute},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// NewAuthorizedHTTPClient returns an http.Client that logs requests and
// attaches bearer tokens from tokens.
func NewAuthorizedHTTPClient(tokens middleware.TokenSource, onUnauthorized func(*http.Request), timeout time.Duration) *http.Client {
	transport := middleware.NewLoggingTransport(
		middleware.NewBearerTransport(http.DefaultTransport, tokens, onUnauthorized),
		nil,
	)
	return &http.Client{Transport: transport, Timeout: timeout}
}

// BaseURL returns the normalized base URL.
func (c *Client) BaseURL() string {
	return c.baseURL
}

func (c *Client) url(path string, query url.Values) string {
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	return u
}

func (c *Client) do(ctx context.Context, kind middleware.TokenKind, method, path string, query url.Values, header http.Header, in, out interface{}) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to encode %s %s: %w", method, path, err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(middleware.WithTokenKind(ctx, kind), method, c.url(path, query), body)
	if err != nil {
		return fmt.Errorf("failed to build %s %s: %w", method, path, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	for k, values := range header {
		for _, v := range values {
			req.Header.Add(k, v)
		}
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read %s %s: %w", method, path, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &Error{
			StatusCode: resp.StatusCode,
			Method:     method,
			Path:       path,
			Message:    errorMessage(data, statusText(resp)),
		}
	}

	if out == nil || len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to decode %s %s: %w", method, path, err)
	}
	return nil
}

func statusText(resp *http.Response) string {
	if text := http.StatusText(resp.StatusCode); text != "" {
		return text
	}
	return resp.Status
}

func idPath(format string, id int64) string {
	return fmt.Sprintf(format, strconv.FormatInt(id, 10))
}

// Health checks backend liveness.
func (c *Client) Health(ctx context.Context) (*HealthResponse, error) {
	var out HealthResponse
	if err := c.do(ctx, middleware.AccessToken, http.MethodGet, "/health", nil, nil, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Me returns the signed-in user's backend record.
func (c *Client) Me(ctx context.Context) (*models.User, error) {
	var out models.User
	if err := c.do(ctx, middleware.IDToken, http.MethodGet, "/me", nil, nil, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Buses lists the vehicles reports can be filed against.
func (c *Client) Buses(ctx context.Context) ([]models.Bus, error) {
	var out []models.Bus
	if err := c.do(ctx, middleware.IDToken, http.MethodGet, "/buses", nil, nil, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// ListReports lists reports matching params.
func (c *Client) ListReports(ctx context.Context, params ListReportsParams) ([]models.Report, error) {
	query := url.Values{}
	if params.Status != "" {
		query.Set("status", string(params.Status))
	}
	if params.Mine {
		query.Set("mine", "1")
	}
	if params.Type != "" {
		query.Set("type", string(params.Type))
	}

	var records []ReportRecord
	if err := c.do(ctx, middleware.IDToken, http.MethodGet, "/reports", query, nil, nil, &records); err != nil {
		return nil, err
	}
	reports := make([]models.Report, 0, len(records))
	for _, r := range records {
		reports = append(reports, r.ToModel())
	}
	return reports, nil
}

// GetReport fetches one report.
func (c *Client) GetReport(ctx context.Context, reportID int64) (*models.Report, error) {
	var record ReportRecord
	if err := c.do(ctx, middleware.IDToken, http.MethodGet, idPath("/reports/%s", reportID), nil, nil, nil, &record); err != nil {
		return nil, err
	}
	report := record.ToModel()
	return &report, nil
}

// CreateReport files a new report. An empty idempotencyKey gets a fresh one.
// Status defaults to submitted.
func (c *Client) CreateReport(ctx context.Context, body CreateReportRequest, idempotencyKey string) (int64, error) {
	if body.Status == "" {
		body.Status = models.StatusSubmitted
	}
	if idempotencyKey == "" {
		idempotencyKey = uuid.New().String()
	}
	header := http.Header{}
	header.Set(IdempotencyHeader, idempotencyKey)

	var out createReportResponse
	if err := c.do(ctx, middleware.AccessToken, http.MethodPost, "/reports", nil, header, body, &out); err != nil {
		return 0, err
	}
	return out.ReportID, nil
}

// UpdateReportStatus persists a status change with its review audit.
func (c *Client) UpdateReportStatus(ctx context.Context, reportID int64, body UpdateReportStatusRequest) error {
	return c.do(ctx, middleware.AccessToken, http.MethodPatch, idPath("/reports/%s/status", reportID), nil, nil, body, nil)
}

// ReviewReport records an approve or decline decision.
func (c *Client) ReviewReport(ctx context.Context, reportID int64, body ReviewRequest) error {
	return c.do(ctx, middleware.AccessToken, http.MethodPost, idPath("/reports/%s/review", reportID), nil, nil, body, nil)
}

// CreateJobForReport opens a job for an approved report.
func (c *Client) CreateJobForReport(ctx context.Context, reportID int64, description *string) (int64, error) {
	var out createJobResponse
	if err := c.do(ctx, middleware.AccessToken, http.MethodPost, idPath("/reports/%s/job", reportID), nil, nil, createJobRequest{Description: description}, &out); err != nil {
		return 0, err
	}
	return out.JobID, nil
}

// ListJobs lists jobs, optionally filtered by status.
func (c *Client) ListJobs(ctx context.Context, status models.Status) ([]models.Job, error) {
	query := url.Values{}
	if status != "" {
		query.Set("status", string(status))
	}
	var out []models.Job
	if err := c.do(ctx, middleware.IDToken, http.MethodGet, "/jobs", query, nil, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// GetJob fetches one job.
func (c *Client) GetJob(ctx context.Context, jobID int64) (*models.Job, error) {
	var out models.Job
	if err := c.do(ctx, middleware.IDToken, http.MethodGet, idPath("/jobs/%s", jobID), nil, nil, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// AssignJob assigns the job to the caller.
func (c *Client) AssignJob(ctx context.Context, jobID int64) error {
	return c.do(ctx, middleware.AccessToken, http.MethodPatch, idPath("/jobs/%s/assign", jobID), nil, nil, nil, nil)
}

// ListJobParts lists parts recorded against a job.
func (c *Client) ListJobParts(ctx context.Context, jobID int64) ([]JobPartRecord, error) {
	var out []JobPartRecord
	if err := c.do(ctx, middleware.IDToken, http.MethodGet, idPath("/jobs/%s/parts", jobID), nil, nil, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// AddJobPart records a part consumed on a job.
func (c *Client) AddJobPart(ctx context.Context, jobID int64, body JobPartRequest) error {
	return c.do(ctx, middleware.AccessToken, http.MethodPost, idPath("/jobs/%s/parts", jobID), nil, nil, body, nil)
}

// UpdateJobStatus sets the job status.
func (c *Client) UpdateJobStatus(ctx context.Context, jobID int64, status models.Status) error {
	return c.do(ctx, middleware.AccessToken, http.MethodPatch, idPath("/jobs/%s/status", jobID), nil, nil, JobStatusRequest{Status: status}, nil)
}

// ListJobHistory lists the work log of a job.
func (c *Client) ListJobHistory(ctx context.Context, jobID int64) ([]models.JobHistoryEntry, error) {
	var out []models.JobHistoryEntry
	if err := c.do(ctx, middleware.IDToken, http.MethodGet, idPath("/jobs/%s/history", jobID), nil, nil, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// AddJobHistory appends a work log entry.
func (c *Client) AddJobHistory(ctx context.Context, jobID int64, body JobHistoryRequest) error {
	return c.do(ctx, middleware.AccessToken, http.MethodPost, idPath("/jobs/%s/history", jobID), nil, nil, body, nil)
}

// Parts lists inventory parts. A limit of zero or less means no limit.
func (c *Client) Parts(ctx context.Context, limit int) ([]models.Part, error) {
	query := url.Values{}
	if limit > 0 {
		query.Set("limit", strconv.Itoa(limit))
	}
	var out []models.Part
	if err := c.do(ctx, middleware.IDToken, http.MethodGet, "/parts", query, nil, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// CreatePart adds a SKU.
func (c *Client) CreatePart(ctx context.Context, part models.Part) error {
	return c.do(ctx, middleware.AccessToken, http.MethodPost, "/parts", nil, nil, part, nil)
}

// UpdatePart changes stock or pricing fields of a SKU.
func (c *Client) UpdatePart(ctx context.Context, partID string, body UpdatePartRequest) error {
	return c.do(ctx, middleware.AccessToken, http.MethodPatch, "/parts/"+url.PathEscape(partID), nil, nil, body, nil)
}

// Upload PUTs data to a presigned URL. No bearer token is sent.
func (c *Client) Upload(ctx context.Context, uploadURL, mimeType string, data []byte) error {
	req, err := http.NewRequestWithContext(middleware.WithTokenKind(ctx, middleware.NoToken), http.MethodPut, uploadURL, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("failed to build upload request: %w", err)
	}
	req.Header.Set("Content-Type", mimeType)
	req.ContentLength = int64(len(data))

	resp, err := c.upload.Do(req)
	if err != nil {
		return fmt.Errorf("upload: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &Error{
			StatusCode: resp.StatusCode,
			Method:     http.MethodPut,
			Path:       req.URL.Path,
			Message:    errorMessage(body, statusText(resp)),
		}
	}
	return nil
}

// MediaScope is the media collection of one report or job.
type MediaScope interface {
	Presign(ctx context.Context, mimeType string) (*PresignResponse, error)
	Confirm(ctx context.Context, body ConfirmMediaRequest) error
	List(ctx context.Context) ([]MediaRecord, error)
}

type mediaScope struct {
	client *Client
	base   string
}

// ReportMedia returns the media collection of a report.
func (c *Client) ReportMedia(reportID int64) MediaScope {
	return &mediaScope{client: c, base: idPath("/reports/%s/media", reportID)}
}

// JobMedia returns the media collection of a job.
func (c *Client) JobMedia(jobID int64) MediaScope {
	return &mediaScope{client: c, base: idPath("/jobs/%s/media", jobID)}
}

func (m *mediaScope) Presign(ctx context.Context, mimeType string) (*PresignResponse, error) {
	query := url.Values{}
	query.Set("mime", mimeType)
	var out PresignResponse
	if err := m.client.do(ctx, middleware.AccessToken, http.MethodGet, m.base+"/presign", query, nil, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (m *mediaScope) Confirm(ctx context.Context, body ConfirmMediaRequest) error {
	var out successResponse
	return m.client.do(ctx, middleware.AccessToken, http.MethodPost, m.base+"/confirm", nil, nil, body, &out)
}

func (m *mediaScope) List(ctx context.Context) ([]MediaRecord, error) {
	var out []MediaRecord
	if err := m.client.do(ctx, middleware.IDToken, http.MethodGet, m.base, nil, nil, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}
