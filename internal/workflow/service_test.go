package workflow

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/ukydev/fleet-maintenance/internal/api"
	"github.com/ukydev/fleet-maintenance/internal/events"
	"github.com/ukydev/fleet-maintenance/internal/inventory"
	"github.com/ukydev/fleet-maintenance/internal/lifecycle"
	"github.com/ukydev/fleet-maintenance/internal/models"
	"github.com/ukydev/fleet-maintenance/internal/submission"
)

var (
	testNow      = time.Date(2025, 5, 1, 10, 0, 0, 0, time.UTC)
	errForbidden = errors.New("forbidden")
)

// MockBackend is a mock implementation of Backend
type MockBackend struct {
	mock.Mock
}

func (m *MockBackend) GetReport(ctx context.Context, reportID int64) (*models.Report, error) {
	args := m.Called(ctx, reportID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Report), args.Error(1)
}

func (m *MockBackend) ListReports(ctx context.Context, params api.ListReportsParams) ([]models.Report, error) {
	args := m.Called(ctx, params)
	return args.Get(0).([]models.Report), args.Error(1)
}

func (m *MockBackend) UpdateReportStatus(ctx context.Context, reportID int64, body api.UpdateReportStatusRequest) error {
	return m.Called(ctx, reportID, body).Error(0)
}

func (m *MockBackend) CreateJobForReport(ctx context.Context, reportID int64, description *string) (int64, error) {
	args := m.Called(ctx, reportID, description)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockBackend) AssignJob(ctx context.Context, jobID int64) error {
	return m.Called(ctx, jobID).Error(0)
}

func (m *MockBackend) ListJobParts(ctx context.Context, jobID int64) ([]api.JobPartRecord, error) {
	args := m.Called(ctx, jobID)
	return args.Get(0).([]api.JobPartRecord), args.Error(1)
}

func (m *MockBackend) AddJobPart(ctx context.Context, jobID int64, body api.JobPartRequest) error {
	return m.Called(ctx, jobID, body).Error(0)
}

func (m *MockBackend) AddJobHistory(ctx context.Context, jobID int64, body api.JobHistoryRequest) error {
	return m.Called(ctx, jobID, body).Error(0)
}

func (m *MockBackend) UpdateJobStatus(ctx context.Context, jobID int64, status models.Status) error {
	return m.Called(ctx, jobID, status).Error(0)
}

func (m *MockBackend) JobMedia(jobID int64) api.MediaScope {
	return m.Called(jobID).Get(0).(api.MediaScope)
}

func (m *MockBackend) Parts(ctx context.Context, limit int) ([]models.Part, error) {
	args := m.Called(ctx, limit)
	return args.Get(0).([]models.Part), args.Error(1)
}

func (m *MockBackend) UpdatePart(ctx context.Context, partID string, body api.UpdatePartRequest) error {
	return m.Called(ctx, partID, body).Error(0)
}

// MockMediaScope is a mock implementation of api.MediaScope
type MockMediaScope struct {
	mock.Mock
}

func (m *MockMediaScope) Presign(ctx context.Context, mimeType string) (*api.PresignResponse, error) {
	args := m.Called(ctx, mimeType)
	return args.Get(0).(*api.PresignResponse), args.Error(1)
}

func (m *MockMediaScope) Confirm(ctx context.Context, body api.ConfirmMediaRequest) error {
	return m.Called(ctx, body).Error(0)
}

func (m *MockMediaScope) List(ctx context.Context) ([]api.MediaRecord, error) {
	args := m.Called(ctx)
	return args.Get(0).([]api.MediaRecord), args.Error(1)
}

// MockSubmitter is a mock implementation of Submitter
type MockSubmitter struct {
	mock.Mock
}

func (m *MockSubmitter) Submit(ctx context.Context, draft submission.Draft) (int64, error) {
	args := m.Called(ctx, draft)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockSubmitter) Retry(ctx context.Context, id string) (*submission.Submission, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*submission.Submission), args.Error(1)
}

func (m *MockSubmitter) AttachJobPhotos(ctx context.Context, jobID int64, photos []submission.Photo) (*submission.Submission, error) {
	args := m.Called(ctx, jobID, photos)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*submission.Submission), args.Error(1)
}

func (m *MockSubmitter) Get(ctx context.Context, id string) (*submission.Submission, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*submission.Submission), args.Error(1)
}

type fakeIdentity struct {
	user models.User
}

func (f fakeIdentity) Authorize(action string) (models.User, error) {
	if !f.user.HasPermission(action) {
		return f.user, errForbidden
	}
	return f.user, nil
}

type recordingPublisher struct {
	events []events.Event
}

func (p *recordingPublisher) Publish(_ context.Context, e events.Event) error {
	p.events = append(p.events, e)
	return nil
}

func (p *recordingPublisher) Close() {}

func (p *recordingPublisher) types() []string {
	var out []string
	for _, e := range p.events {
		out = append(out, e.Type)
	}
	return out
}

type fixture struct {
	backend   *MockBackend
	submitter *MockSubmitter
	events    *recordingPublisher
	svc       *Service
}

func newFixture(role models.Role, name string, opts ...Option) *fixture {
	f := &fixture{
		backend:   new(MockBackend),
		submitter: new(MockSubmitter),
		events:    &recordingPublisher{},
	}
	identity := fakeIdentity{user: models.User{ID: 1, Role: role, Name: name}}
	opts = append([]Option{WithClock(func() time.Time { return testNow }), WithPublisher(f.events)}, opts...)
	f.svc = NewService(f.backend, identity, f.submitter, opts...)
	return f
}

// expectJob stubs the parts and media lookups for a job.
func (f *fixture) expectJob(jobID int64, parts []api.JobPartRecord, media []api.MediaRecord) *MockMediaScope {
	scope := new(MockMediaScope)
	scope.On("List", mock.Anything).Return(media, nil)
	f.backend.On("ListJobParts", mock.Anything, jobID).Return(parts, nil)
	f.backend.On("JobMedia", jobID).Return(scope)
	return scope
}

func pendingReport() *models.Report {
	return &models.Report{
		ID:          42,
		Type:        models.ReportProblem,
		Severity:    models.SeverityHigh,
		Vehicle:     "BUS101",
		Description: "Engine warning light",
		Status:      models.StatusPending,
		SubmittedAt: testNow.Add(-time.Hour),
	}
}

func openJob(assigned string) *models.Report {
	r := pendingReport()
	r.Status = models.StatusOpen
	r.JobID = 9
	r.Assigned = assigned
	return r
}

func TestApprove(t *testing.T) {
	f := newFixture(models.RoleRMManager, "Rita")
	f.backend.On("GetReport", mock.Anything, int64(42)).Return(pendingReport(), nil)
	f.backend.On("UpdateReportStatus", mock.Anything, int64(42), mock.MatchedBy(func(b api.UpdateReportStatusRequest) bool {
		return b.Status == models.StatusOpen &&
			b.ReviewAction != nil && *b.ReviewAction == models.ReviewApproved &&
			b.ReviewBy != nil && *b.ReviewBy == "Rita" &&
			b.ReviewAt != nil && b.ReviewAt.Equal(testNow) &&
			b.ReviewReason == nil
	})).Return(nil)
	f.backend.On("CreateJobForReport", mock.Anything, int64(42), (*string)(nil)).Return(int64(77), nil)

	r, err := f.svc.Approve(context.Background(), 42)
	require.NoError(t, err)
	assert.Equal(t, models.StatusOpen, r.Status)
	assert.Equal(t, int64(77), r.JobID)
	require.NotNil(t, r.Audit)
	assert.Equal(t, "Rita", r.Audit.By)
	assert.Equal(t, []string{events.ReportApproved}, f.events.types())
	assert.Equal(t, int64(77), f.events.events[0].JobID)
	f.backend.AssertExpectations(t)
}

func TestApprove_RecoversMissingJob(t *testing.T) {
	f := newFixture(models.RoleRMManager, "Rita")
	approved := pendingReport()
	approved.Status = models.StatusOpen
	approved.Audit = &models.Audit{Action: models.ReviewApproved, By: "Rita", At: testNow}

	f.backend.On("GetReport", mock.Anything, int64(42)).Return(pendingReport(), nil).Once()
	f.backend.On("UpdateReportStatus", mock.Anything, int64(42), mock.Anything).Return(nil).Once()
	f.backend.On("CreateJobForReport", mock.Anything, int64(42), (*string)(nil)).Return(int64(0), &api.Error{StatusCode: 500, Message: "boom"}).Once()

	_, err := f.svc.Approve(context.Background(), 42)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to persist job")
	assert.Empty(t, f.events.events)

	f.backend.On("GetReport", mock.Anything, int64(42)).Return(approved, nil).Once()
	f.backend.On("CreateJobForReport", mock.Anything, int64(42), (*string)(nil)).Return(int64(77), nil).Once()

	r, err := f.svc.Approve(context.Background(), 42)
	require.NoError(t, err)
	assert.Equal(t, int64(77), r.JobID)
	assert.Equal(t, models.StatusOpen, r.Status)
	assert.Equal(t, "Rita", r.Audit.By)
	assert.Equal(t, []string{events.ReportApproved}, f.events.types())
	f.backend.AssertNumberOfCalls(t, "UpdateReportStatus", 1)
	f.backend.AssertExpectations(t)
}

func TestApprove_DeclinedReportIsNotReopened(t *testing.T) {
	f := newFixture(models.RoleRMManager, "Rita")
	declined := pendingReport()
	declined.Status = models.StatusClosed
	declined.Audit = &models.Audit{Action: models.ReviewDeclined, By: "Rita", At: testNow, Reason: "dup"}
	f.backend.On("GetReport", mock.Anything, int64(42)).Return(declined, nil)

	_, err := f.svc.Approve(context.Background(), 42)
	assert.ErrorIs(t, err, lifecycle.ErrInvalidTransition)
	f.backend.AssertNotCalled(t, "CreateJobForReport", mock.Anything, mock.Anything, mock.Anything)
}

func TestDecline(t *testing.T) {
	t.Run("requires a reason", func(t *testing.T) {
		f := newFixture(models.RoleRMManager, "Rita")
		f.backend.On("GetReport", mock.Anything, int64(42)).Return(pendingReport(), nil)

		_, err := f.svc.Decline(context.Background(), 42, "   ")
		assert.ErrorIs(t, err, lifecycle.ErrDeclineReasonRequired)
		f.backend.AssertNotCalled(t, "UpdateReportStatus", mock.Anything, mock.Anything, mock.Anything)
		assert.Empty(t, f.events.events)
	})

	t.Run("records the reason", func(t *testing.T) {
		f := newFixture(models.RoleAdmin, "Ada")
		f.backend.On("GetReport", mock.Anything, int64(42)).Return(pendingReport(), nil)
		f.backend.On("UpdateReportStatus", mock.Anything, int64(42), mock.MatchedBy(func(b api.UpdateReportStatusRequest) bool {
			return b.Status == models.StatusClosed && b.ReviewReason != nil && *b.ReviewReason == "Duplicate report"
		})).Return(nil)

		r, err := f.svc.Decline(context.Background(), 42, "Duplicate report")
		require.NoError(t, err)
		assert.Equal(t, models.StatusClosed, r.Status)
		assert.Equal(t, []string{events.ReportDeclined}, f.events.types())
		assert.Equal(t, "Duplicate report", f.events.events[0].Reason)
		f.backend.AssertNotCalled(t, "CreateJobForReport", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("forbidden role makes no calls", func(t *testing.T) {
		f := newFixture(models.RoleDriver, "Dan")
		_, err := f.svc.Decline(context.Background(), 42, "no")
		assert.ErrorIs(t, err, errForbidden)
		f.backend.AssertNotCalled(t, "GetReport", mock.Anything, mock.Anything)
	})

	t.Run("persist failure keeps the original report", func(t *testing.T) {
		f := newFixture(models.RoleRMManager, "Rita")
		f.backend.On("GetReport", mock.Anything, int64(42)).Return(pendingReport(), nil)
		f.backend.On("UpdateReportStatus", mock.Anything, int64(42), mock.Anything).Return(&api.Error{StatusCode: 500, Message: "boom"})

		r, err := f.svc.Decline(context.Background(), 42, "Duplicate report")
		assert.Error(t, err)
		assert.Equal(t, models.StatusPending, r.Status)
		assert.Empty(t, f.events.events)
	})
}

func TestReviewQueue(t *testing.T) {
	f := newFixture(models.RoleRMManager, "Rita")
	older := pendingReport()
	older.ID = 1
	older.SubmittedAt = testNow.Add(-2 * time.Hour)
	newer := pendingReport()
	newer.ID = 2
	open := openJob("")
	f.backend.On("ListReports", mock.Anything, api.ListReportsParams{}).Return([]models.Report{*older, *open, *newer}, nil)

	queue, err := f.svc.ReviewQueue(context.Background())
	require.NoError(t, err)
	require.Len(t, queue, 2)
	assert.Equal(t, int64(2), queue[0].ID)
	assert.Equal(t, int64(1), queue[1].ID)
}

func TestAccept(t *testing.T) {
	t.Run("assigns the job", func(t *testing.T) {
		f := newFixture(models.RoleTechnician, "Tom")
		f.backend.On("GetReport", mock.Anything, int64(42)).Return(openJob(""), nil)
		f.expectJob(9, []api.JobPartRecord{}, []api.MediaRecord{})
		f.backend.On("AssignJob", mock.Anything, int64(9)).Return(nil)

		r, err := f.svc.Accept(context.Background(), 42)
		require.NoError(t, err)
		assert.Equal(t, "Tom", r.Assigned)
		assert.Equal(t, []string{events.JobAccepted}, f.events.types())
		f.backend.AssertExpectations(t)
	})

	t.Run("report without a job", func(t *testing.T) {
		f := newFixture(models.RoleTechnician, "Tom")
		r := openJob("")
		r.JobID = 0
		f.backend.On("GetReport", mock.Anything, int64(42)).Return(r, nil)

		_, err := f.svc.Accept(context.Background(), 42)
		assert.ErrorIs(t, err, ErrNoJob)
		f.backend.AssertNotCalled(t, "AssignJob", mock.Anything, mock.Anything)
	})

	t.Run("already assigned", func(t *testing.T) {
		f := newFixture(models.RoleTechnician, "Tom")
		f.backend.On("GetReport", mock.Anything, int64(42)).Return(openJob("Tina"), nil)
		f.expectJob(9, []api.JobPartRecord{}, []api.MediaRecord{})

		_, err := f.svc.Accept(context.Background(), 42)
		assert.ErrorIs(t, err, lifecycle.ErrInvalidTransition)
		f.backend.AssertNotCalled(t, "AssignJob", mock.Anything, mock.Anything)
	})
}

func TestUpdateJob(t *testing.T) {
	f := newFixture(models.RoleTechnician, "Tom")
	f.backend.On("GetReport", mock.Anything, int64(42)).Return(openJob("Tom"), nil)
	f.expectJob(9, []api.JobPartRecord{{PartID: "P1", Name: "Filter", Code: "F-1", Qty: 1}}, []api.MediaRecord{})
	f.backend.On("AddJobHistory", mock.Anything, int64(9), api.JobHistoryRequest{Date: testNow, WorkPerformed: "Replaced filter"}).Return(nil)
	f.backend.On("AddJobPart", mock.Anything, int64(9), api.JobPartRequest{PartID: "P1", Qty: 2}).Return(nil)
	f.backend.On("AddJobPart", mock.Anything, int64(9), api.JobPartRequest{PartID: "P2", Qty: 1}).Return(nil)

	work := "  Replaced filter "
	r, err := f.svc.UpdateJob(context.Background(), 42, JobUpdate{
		WorkPerformed: &work,
		PartsUsed: []models.PartUsed{
			{PartID: "P1", Name: "Filter", Code: "F-1", Qty: 3},
			{PartID: "P2", Name: "Belt", Code: "B-2", Qty: 1},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, "Replaced filter", r.WorkPerformed)
	require.Len(t, r.JobHistory, 1)
	assert.Len(t, r.PartsUsed, 2)
	assert.Equal(t, models.StatusOpen, r.Status)
	assert.Equal(t, []string{events.JobUpdated}, f.events.types())
	f.backend.AssertExpectations(t)
}

func TestUpdateJob_InvalidPartsMakesNoCalls(t *testing.T) {
	f := newFixture(models.RoleTechnician, "Tom")
	f.backend.On("GetReport", mock.Anything, int64(42)).Return(openJob("Tom"), nil)
	f.expectJob(9, []api.JobPartRecord{}, []api.MediaRecord{})

	_, err := f.svc.UpdateJob(context.Background(), 42, JobUpdate{
		PartsUsed: []models.PartUsed{{PartID: "P1", Qty: 0}},
	})
	assert.ErrorIs(t, err, lifecycle.ErrInvalidPartsUsed)
	f.backend.AssertNotCalled(t, "AddJobPart", mock.Anything, mock.Anything, mock.Anything)
}

func TestComplete(t *testing.T) {
	t.Run("requires after photos", func(t *testing.T) {
		f := newFixture(models.RoleTechnician, "Tom")
		f.backend.On("GetReport", mock.Anything, int64(42)).Return(openJob("Tom"), nil)
		f.expectJob(9, []api.JobPartRecord{}, []api.MediaRecord{})

		_, err := f.svc.Complete(context.Background(), 42, nil)
		assert.ErrorIs(t, err, lifecycle.ErrAfterPhotosRequired)
		f.backend.AssertNotCalled(t, "UpdateJobStatus", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("uploads photos then closes", func(t *testing.T) {
		f := newFixture(models.RoleTechnician, "Tom")
		f.backend.On("GetReport", mock.Anything, int64(42)).Return(openJob("Tom"), nil)
		f.expectJob(9, []api.JobPartRecord{}, []api.MediaRecord{})
		photos := []submission.Photo{{Path: "after.jpg"}}
		f.submitter.On("AttachJobPhotos", mock.Anything, int64(9), photos).Return(&submission.Submission{
			Kind:     submission.TargetJob,
			TargetID: 9,
			Photos: []submission.PhotoUpload{{
				Index: 1,
				Photo: submission.Photo{Path: "after.jpg", MimeType: "image/jpeg", SizeBytes: 10},
				State: submission.StateConfirmed,
				Key:   "jobs/9/after.jpg",
			}},
		}, nil)
		f.backend.On("UpdateJobStatus", mock.Anything, int64(9), models.StatusClosed).Return(nil)

		r, err := f.svc.Complete(context.Background(), 42, photos)
		require.NoError(t, err)
		assert.Equal(t, models.StatusClosed, r.Status)
		assert.Equal(t, []models.MediaRef{{Key: "jobs/9/after.jpg", MimeType: "image/jpeg", SizeBytes: 10}}, r.AfterPhotos)
		assert.Equal(t, []string{events.JobCompleted}, f.events.types())
		f.backend.AssertExpectations(t)
	})

	t.Run("existing photos are enough", func(t *testing.T) {
		f := newFixture(models.RoleTechnician, "Tom")
		f.backend.On("GetReport", mock.Anything, int64(42)).Return(openJob("Tom"), nil)
		f.expectJob(9, []api.JobPartRecord{}, []api.MediaRecord{{Key: "jobs/9/a.jpg", MimeType: "image/jpeg"}})
		f.backend.On("UpdateJobStatus", mock.Anything, int64(9), models.StatusClosed).Return(nil)

		r, err := f.svc.Complete(context.Background(), 42, nil)
		require.NoError(t, err)
		assert.Equal(t, models.StatusClosed, r.Status)
	})

	t.Run("another technician uploads nothing", func(t *testing.T) {
		f := newFixture(models.RoleTechnician, "Tom")
		f.backend.On("GetReport", mock.Anything, int64(42)).Return(openJob("Tina"), nil)
		f.expectJob(9, []api.JobPartRecord{}, []api.MediaRecord{})

		_, err := f.svc.Complete(context.Background(), 42, []submission.Photo{{Path: "after.jpg"}})
		assert.ErrorIs(t, err, lifecycle.ErrNotAssignedTechnician)
		f.submitter.AssertNotCalled(t, "AttachJobPhotos", mock.Anything, mock.Anything, mock.Anything)
		f.backend.AssertNotCalled(t, "UpdateJobStatus", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("failed upload does not close", func(t *testing.T) {
		f := newFixture(models.RoleTechnician, "Tom")
		f.backend.On("GetReport", mock.Anything, int64(42)).Return(openJob("Tom"), nil)
		f.expectJob(9, []api.JobPartRecord{}, []api.MediaRecord{})
		uerr := &submission.UploadError{Index: 1, Total: 1, Step: submission.StepUpload, Err: errors.New("timeout")}
		f.submitter.On("AttachJobPhotos", mock.Anything, int64(9), mock.Anything).Return(&submission.Submission{
			Kind:     submission.TargetJob,
			TargetID: 9,
			Photos:   []submission.PhotoUpload{{Index: 1, State: submission.StateFailed}},
		}, uerr)

		r, err := f.svc.Complete(context.Background(), 42, []submission.Photo{{Path: "after.jpg"}})
		var target *submission.UploadError
		assert.ErrorAs(t, err, &target)
		assert.Equal(t, models.StatusOpen, r.Status)
		f.backend.AssertNotCalled(t, "UpdateJobStatus", mock.Anything, mock.Anything, mock.Anything)
	})
}

func TestTechnicianBoard(t *testing.T) {
	f := newFixture(models.RoleTechnician, "Tom")
	available := openJob("")
	mine := openJob("Tom")
	mine.ID = 43
	done := openJob("Tom")
	done.ID = 44
	done.Status = models.StatusClosed
	f.backend.On("ListReports", mock.Anything, api.ListReportsParams{}).Return([]models.Report{*available, *mine, *done, *pendingReport()}, nil)

	board, err := f.svc.TechnicianBoard(context.Background())
	require.NoError(t, err)
	assert.Equal(t, lifecycle.TabCounts{Available: 1, MyJobs: 1, Completed: 1}, board.Counts)
	assert.Equal(t, int64(43), board.MyJobs[0].ID)
}

func TestJob_Mode(t *testing.T) {
	f := newFixture(models.RoleTechnician, "Tom")
	f.backend.On("GetReport", mock.Anything, int64(42)).Return(openJob(""), nil)
	f.expectJob(9, []api.JobPartRecord{{PartID: "P1", Qty: 2}}, []api.MediaRecord{})

	r, mode, err := f.svc.Job(context.Background(), 42)
	require.NoError(t, err)
	assert.Equal(t, lifecycle.ModeView, mode)
	assert.Equal(t, []models.PartUsed{{PartID: "P1", Qty: 2}}, r.PartsUsed)
}

func TestAdjustStock(t *testing.T) {
	parts := func() []models.Part {
		return []models.Part{
			{ID: "p1", Code: "OIL-1", Name: "Oil filter", Stock: 3, MinStock: 3, UnitPrice: 10},
			{ID: "p2", Code: "BRK-2", Name: "Brake pad", Stock: 0, MinStock: 1, UnitPrice: 20},
		}
	}

	t.Run("remove crosses the low stock line", func(t *testing.T) {
		f := newFixture(models.RoleInventoryManager, "Ivy")
		f.backend.On("Parts", mock.Anything, 0).Return(parts(), nil)
		f.backend.On("UpdatePart", mock.Anything, "p1", mock.MatchedBy(func(b api.UpdatePartRequest) bool {
			return b.Stock != nil && *b.Stock == 2 && b.MinStock == nil && b.UnitPrice == nil
		})).Return(nil)

		adj, err := f.svc.AdjustStock(context.Background(), "p1", -1)
		require.NoError(t, err)
		assert.Equal(t, 2, adj.Part.Stock)
		assert.Equal(t, inventory.Stats{TotalParts: 2, LowStockCount: 2, TotalValue: 20}, adj.Stats)
		assert.Equal(t, []string{events.PartAdjusted, events.PartLowStock}, f.events.types())
		f.backend.AssertExpectations(t)
	})

	t.Run("remove at zero keeps the sku", func(t *testing.T) {
		f := newFixture(models.RoleInventoryManager, "Ivy")
		f.backend.On("Parts", mock.Anything, 0).Return(parts(), nil)

		adj, err := f.svc.AdjustStock(context.Background(), "p2", -1)
		require.NoError(t, err)
		assert.Equal(t, 0, adj.Part.Stock)
		assert.False(t, adj.Removed)
		assert.Equal(t, 2, adj.Stats.TotalParts)
		f.backend.AssertNotCalled(t, "UpdatePart", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("delete mode drops the sku locally", func(t *testing.T) {
		f := newFixture(models.RoleInventoryManager, "Ivy", WithRemoveMode(inventory.RemoveDelete))
		f.backend.On("Parts", mock.Anything, 0).Return(parts(), nil)

		adj, err := f.svc.AdjustStock(context.Background(), "p1", -1)
		require.NoError(t, err)
		assert.True(t, adj.Removed)
		assert.Equal(t, 1, adj.Stats.TotalParts)
		f.backend.AssertNotCalled(t, "UpdatePart", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("unknown part", func(t *testing.T) {
		f := newFixture(models.RoleInventoryManager, "Ivy")
		f.backend.On("Parts", mock.Anything, 0).Return(parts(), nil)

		_, err := f.svc.AdjustStock(context.Background(), "nope", 1)
		assert.ErrorIs(t, err, inventory.ErrPartNotFound)
	})

	t.Run("technician may not adjust", func(t *testing.T) {
		f := newFixture(models.RoleTechnician, "Tom")
		_, err := f.svc.AdjustStock(context.Background(), "p1", 1)
		assert.ErrorIs(t, err, errForbidden)
	})
}

func TestInventory(t *testing.T) {
	f := newFixture(models.RoleInventoryManager, "Ivy")
	f.backend.On("Parts", mock.Anything, 0).Return([]models.Part{
		{ID: "p1", Code: "OIL-1", Name: "Oil filter", Category: "Engine", Stock: 5, MinStock: 2, UnitPrice: 10},
		{ID: "p2", Code: "BRK-2", Name: "Brake pad", Category: "Brakes", Stock: 0, MinStock: 1, UnitPrice: 20},
	}, nil)

	view, err := f.svc.Inventory(context.Background(), inventory.TabLow, "")
	require.NoError(t, err)
	require.Len(t, view.Parts, 1)
	assert.Equal(t, "p2", view.Parts[0].ID)
	assert.Equal(t, 2, view.Stats.TotalParts)
	assert.Equal(t, 50.0, view.Stats.TotalValue)
	assert.Equal(t, inventory.RemoveDecrement, view.Mode)
}

func TestSubmitReport(t *testing.T) {
	draft := submission.Draft{Vehicle: "BUS101", Description: "Engine warning light", Photos: []submission.Photo{{Path: "a.jpg"}}}

	t.Run("partial upload still publishes", func(t *testing.T) {
		f := newFixture(models.RoleDriver, "Dan")
		uerr := &submission.UploadError{Index: 2, Total: 3, Step: submission.StepUpload, Err: errors.New("403")}
		f.submitter.On("Submit", mock.Anything, draft).Return(int64(501), uerr)

		id, err := f.svc.SubmitReport(context.Background(), draft)
		assert.Equal(t, int64(501), id)
		assert.ErrorIs(t, err, uerr)
		assert.Equal(t, []string{events.ReportSubmitted}, f.events.types())
	})

	t.Run("create failure publishes nothing", func(t *testing.T) {
		f := newFixture(models.RoleDriver, "Dan")
		f.submitter.On("Submit", mock.Anything, draft).Return(int64(0), &submission.CreateError{Err: errors.New("down")})

		_, err := f.svc.SubmitReport(context.Background(), draft)
		assert.Error(t, err)
		assert.Empty(t, f.events.events)
	})

	t.Run("inventory manager may not submit", func(t *testing.T) {
		f := newFixture(models.RoleInventoryManager, "Ivy")
		_, err := f.svc.SubmitReport(context.Background(), draft)
		assert.ErrorIs(t, err, errForbidden)
		f.submitter.AssertNotCalled(t, "Submit", mock.Anything, mock.Anything)
	})
}

func TestRetrySubmission(t *testing.T) {
	t.Run("job photos need update permission", func(t *testing.T) {
		f := newFixture(models.RoleDriver, "Dan")
		f.submitter.On("Get", mock.Anything, "s1").Return(&submission.Submission{ID: "s1", Kind: submission.TargetJob, TargetID: 9}, nil)

		_, err := f.svc.RetrySubmission(context.Background(), "s1")
		assert.ErrorIs(t, err, errForbidden)
		f.submitter.AssertNotCalled(t, "Retry", mock.Anything, mock.Anything)
	})

	t.Run("late create publishes", func(t *testing.T) {
		f := newFixture(models.RoleDriver, "Dan")
		f.submitter.On("Get", mock.Anything, "s2").Return(&submission.Submission{ID: "s2", Kind: submission.TargetReport}, nil)
		f.submitter.On("Retry", mock.Anything, "s2").Return(&submission.Submission{ID: "s2", Kind: submission.TargetReport, TargetID: 88}, nil)

		sub, err := f.svc.RetrySubmission(context.Background(), "s2")
		require.NoError(t, err)
		assert.Equal(t, int64(88), sub.TargetID)
		assert.Equal(t, []string{events.ReportSubmitted}, f.events.types())
	})

	t.Run("unknown id", func(t *testing.T) {
		f := newFixture(models.RoleDriver, "Dan")
		f.submitter.On("Get", mock.Anything, "nope").Return(nil, submission.ErrNotFound)

		_, err := f.svc.RetrySubmission(context.Background(), "nope")
		assert.ErrorIs(t, err, submission.ErrNotFound)
	})
}
