package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ukydev/fleet-maintenance/internal/middleware"
	"github.com/ukydev/fleet-maintenance/internal/models"
)

type recorded struct {
	Method string
	Path   string
	Query  string
	Auth   string
	Header http.Header
	Body   []byte
}

func newTestServer(t *testing.T, handler func(w http.ResponseWriter, r *http.Request)) (*httptest.Server, *[]recorded) {
	t.Helper()
	var calls []recorded
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		calls = append(calls, recorded{
			Method: r.Method,
			Path:   r.URL.Path,
			Query:  r.URL.RawQuery,
			Auth:   r.Header.Get("Authorization"),
			Header: r.Header.Clone(),
			Body:   body,
		})
		handler(w, r)
	}))
	t.Cleanup(server.Close)
	return server, &calls
}

func newTestClient(server *httptest.Server, access, id string) *Client {
	tokens := middleware.TokenSourceFunc(func(kind middleware.TokenKind) string {
		if kind == middleware.IDToken {
			return id
		}
		return access
	})
	return NewClient(server.URL+"/", WithHTTPClient(NewAuthorizedHTTPClient(tokens, nil, 0)))
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func TestClient_TokenSelection(t *testing.T) {
	server, calls := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/me":
			writeJSON(w, http.StatusOK, map[string]interface{}{
				"user_id": 7, "user_role": "technician", "user_name": "Technician B", "user_email": "b@example.com",
			})
		case "/health":
			writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
		default:
			writeJSON(w, http.StatusOK, []interface{}{})
		}
	})
	client := newTestClient(server, "access-1", "id-1")
	ctx := context.Background()

	me, err := client.Me(ctx)
	require.NoError(t, err)
	assert.Equal(t, models.RoleTechnician, me.Role)
	assert.Equal(t, "Technician B", me.Name)

	health, err := client.Health(ctx)
	require.NoError(t, err)
	assert.Equal(t, "ok", health.Status)

	_, err = client.Buses(ctx)
	require.NoError(t, err)

	require.Len(t, *calls, 3)
	assert.Equal(t, "Bearer id-1", (*calls)[0].Auth)
	assert.Equal(t, "Bearer access-1", (*calls)[1].Auth)
	assert.Equal(t, "Bearer id-1", (*calls)[2].Auth)
}

func TestClient_MissingIDToken(t *testing.T) {
	server, calls := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, []interface{}{})
	})
	client := newTestClient(server, "access-1", "")

	_, err := client.ListReports(context.Background(), ListReportsParams{})
	assert.True(t, errors.Is(err, ErrMissingIDToken))
	assert.Empty(t, *calls)
}

func TestClient_ListReports(t *testing.T) {
	server, calls := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, []map[string]interface{}{
			{
				"report_id": 101, "report_type": "accident", "report_desc": "Rear bumper",
				"report_location": "Depot", "report_priority": "high", "bus_id": "BUS101",
				"report_status": "submitted", "created_at": "2026-01-02T03:04:05Z",
			},
			{
				"report_id": 102, "report_type": "weird", "report_status": "closed",
				"report_review_action": "declined", "report_review_by": "Manager A",
				"report_review_reason": "Duplicate", "created_at": "2026-01-02T03:04:05Z",
			},
		})
	})
	client := newTestClient(server, "a", "i")

	reports, err := client.ListReports(context.Background(), ListReportsParams{
		Status: models.StatusOpen, Mine: true, Type: models.ReportRepair,
	})
	require.NoError(t, err)
	require.Len(t, reports, 2)

	assert.Equal(t, "mine=1&status=open&type=repair", (*calls)[0].Query)
	assert.Equal(t, models.StatusPending, reports[0].Status)
	assert.Equal(t, models.ReportAccident, reports[0].Type)
	assert.Equal(t, "BUS101", reports[0].Vehicle)
	assert.Nil(t, reports[0].Audit)

	assert.Equal(t, models.ReportProblem, reports[1].Type)
	require.NotNil(t, reports[1].Audit)
	assert.Equal(t, models.ReviewDeclined, reports[1].Audit.Action)
	assert.Equal(t, "Duplicate", reports[1].Audit.Reason)
}

func TestClient_CreateReport(t *testing.T) {
	server, calls := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusCreated, map[string]int64{"report_id": 55})
	})
	client := newTestClient(server, "a", "i")

	id, err := client.CreateReport(context.Background(), CreateReportRequest{
		Type: models.ReportProblem, Description: "Brakes squeal", Priority: models.SeverityHigh, BusID: "BUS101",
	}, "")
	require.NoError(t, err)
	assert.Equal(t, int64(55), id)

	call := (*calls)[0]
	assert.Equal(t, http.MethodPost, call.Method)
	assert.Equal(t, "/reports", call.Path)
	_, err = uuid.Parse(call.Header.Get(IdempotencyHeader))
	assert.NoError(t, err)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(call.Body, &body))
	assert.Equal(t, "submitted", body["report_status"])
	assert.Equal(t, "high", body["report_priority"])
	assert.Nil(t, body["report_lat"])

	_, err = client.CreateReport(context.Background(), CreateReportRequest{}, "fixed-key")
	require.NoError(t, err)
	assert.Equal(t, "fixed-key", (*calls)[1].Header.Get(IdempotencyHeader))
}

func TestClient_ErrorMessages(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		want    string
		matches error
	}{
		{"message field", http.StatusBadRequest, `{"message":"bad bus","error":"ignored"}`, "bad bus", nil},
		{"error field", http.StatusForbidden, `{"error":"role not allowed"}`, "role not allowed", ErrForbidden},
		{"raw json", http.StatusConflict, `{"code":9}`, `{"code":9}`, nil},
		{"plain text", http.StatusInternalServerError, "boom", "boom", nil},
		{"status text", http.StatusUnauthorized, "", "Unauthorized", ErrUnauthorized},
		{"not found", http.StatusNotFound, "", "Not Found", ErrNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server, _ := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			})
			client := newTestClient(server, "a", "i")

			err := client.AssignJob(context.Background(), 9)
			var apiErr *Error
			require.True(t, errors.As(err, &apiErr))
			assert.Equal(t, tt.status, apiErr.StatusCode)
			assert.Equal(t, tt.want, apiErr.Message)
			assert.Equal(t, "/jobs/9/assign", apiErr.Path)
			if tt.matches != nil {
				assert.True(t, errors.Is(err, tt.matches))
			}
		})
	}
}

func TestClient_JobEndpoints(t *testing.T) {
	server, calls := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == "/reports/101/job":
			writeJSON(w, http.StatusCreated, map[string]int64{"job_id": 12})
		case r.Method == http.MethodGet && r.URL.Path == "/jobs":
			writeJSON(w, http.StatusOK, []map[string]interface{}{{"job_id": 12, "report_id": 101, "job_status": "open"}})
		case r.Method == http.MethodGet && r.URL.Path == "/jobs/12/history":
			writeJSON(w, http.StatusOK, []map[string]string{{"date": "2026-01-02T00:00:00Z", "work_performed": "Replaced pads"}})
		default:
			writeJSON(w, http.StatusOK, map[string]bool{"success": true})
		}
	})
	client := newTestClient(server, "a", "i")
	ctx := context.Background()

	desc := "Fix brakes"
	jobID, err := client.CreateJobForReport(ctx, 101, &desc)
	require.NoError(t, err)
	assert.Equal(t, int64(12), jobID)
	assert.JSONEq(t, `{"job_desc":"Fix brakes"}`, string((*calls)[0].Body))

	jobs, err := client.ListJobs(ctx, models.StatusOpen)
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	assert.Equal(t, int64(101), jobs[0].ReportID)
	assert.Equal(t, "status=open", (*calls)[1].Query)

	require.NoError(t, client.UpdateJobStatus(ctx, 12, models.StatusClosed))
	assert.Equal(t, http.MethodPatch, (*calls)[2].Method)
	assert.JSONEq(t, `{"job_status":"closed"}`, string((*calls)[2].Body))

	require.NoError(t, client.AddJobPart(ctx, 12, JobPartRequest{PartID: "p1", Qty: 2}))
	assert.JSONEq(t, `{"part_id":"p1","qty":2}`, string((*calls)[3].Body))

	history, err := client.ListJobHistory(ctx, 12)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, "Replaced pads", history[0].WorkPerformed)
}

func TestClient_PartsEndpoints(t *testing.T) {
	server, calls := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			writeJSON(w, http.StatusOK, []map[string]interface{}{
				{"part_id": "p1", "part_code": "BRK-01", "part_name": "Brake pad", "part_stock": 3, "part_min_stock": 5},
			})
			return
		}
		writeJSON(w, http.StatusOK, map[string]bool{"success": true})
	})
	client := newTestClient(server, "a", "i")
	ctx := context.Background()

	parts, err := client.Parts(ctx, 50)
	require.NoError(t, err)
	require.Len(t, parts, 1)
	assert.True(t, parts[0].IsLowStock())
	assert.Equal(t, "limit=50", (*calls)[0].Query)

	stock := 4
	require.NoError(t, client.UpdatePart(ctx, "p1", UpdatePartRequest{Stock: &stock}))
	assert.Equal(t, "/parts/p1", (*calls)[1].Path)
	assert.JSONEq(t, `{"part_stock":4}`, string((*calls)[1].Body))
}

func TestClient_MediaAndUpload(t *testing.T) {
	var uploadAuth, uploadType string
	var uploaded []byte
	storage := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		uploadAuth = r.Header.Get("Authorization")
		uploadType = r.Header.Get("Content-Type")
		uploaded, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusOK)
	}))
	defer storage.Close()

	server, calls := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/jobs/12/media/presign":
			writeJSON(w, http.StatusOK, map[string]string{"uploadUrl": storage.URL + "/bucket/k1?sig=x", "s3_bucket": "b", "s3_key": "k1"})
		default:
			writeJSON(w, http.StatusOK, map[string]bool{"success": true})
		}
	})
	client := newTestClient(server, "a", "i")
	ctx := context.Background()

	media := client.JobMedia(12)
	presign, err := media.Presign(ctx, "image/jpeg")
	require.NoError(t, err)
	assert.Equal(t, "k1", presign.Key)
	assert.Equal(t, "mime=image%2Fjpeg", (*calls)[0].Query)

	require.NoError(t, client.Upload(ctx, presign.UploadURL, "image/jpeg", []byte("jpegdata")))
	assert.Empty(t, uploadAuth)
	assert.Equal(t, "image/jpeg", uploadType)
	assert.Equal(t, []byte("jpegdata"), uploaded)

	require.NoError(t, media.Confirm(ctx, ConfirmMediaRequest{Key: "k1", MimeType: "image/jpeg", SizeBytes: 8}))
	assert.Equal(t, "/jobs/12/media/confirm", (*calls)[1].Path)
	assert.JSONEq(t, `{"s3_key":"k1","mime_type":"image/jpeg","size_bytes":8}`, string((*calls)[1].Body))
}

func TestClient_UploadFailure(t *testing.T) {
	storage := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte("SignatureDoesNotMatch"))
	}))
	defer storage.Close()

	client := NewClient("http://unused")
	err := client.Upload(context.Background(), storage.URL+"/bucket/k1", "image/png", []byte("x"))
	var apiErr *Error
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusForbidden, apiErr.StatusCode)
	assert.Equal(t, "SignatureDoesNotMatch", apiErr.Message)
}

func TestClient_UnauthorizedCallback(t *testing.T) {
	server, _ := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})
	signedOut := false
	tokens := middleware.TokenSourceFunc(func(middleware.TokenKind) string { return "t" })
	client := NewClient(server.URL, WithHTTPClient(NewAuthorizedHTTPClient(tokens, func(*http.Request) { signedOut = true }, 0)))

	_, err := client.GetReport(context.Background(), 1)
	assert.True(t, errors.Is(err, ErrUnauthorized))
	assert.True(t, signedOut)
}
