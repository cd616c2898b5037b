package services

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/skillcert/proctor-engine/internal/client"
	"github.com/skillcert/proctor-engine/internal/config"
	"github.com/skillcert/proctor-engine/internal/detect"
	"github.com/skillcert/proctor-engine/internal/events"
	"github.com/skillcert/proctor-engine/internal/models"
	"github.com/skillcert/proctor-engine/internal/session"
	"github.com/skillcert/proctor-engine/internal/timer"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

type stubBackend struct {
	failQuestions bool
}

func (b *stubBackend) GetCertification(_ context.Context, id uint) (*models.Certification, error) {
	return &models.Certification{ID: id, Title: "Go Professional", Duration: 1, PassingScore: 60}, nil
}

func (b *stubBackend) StartAttempt(_ context.Context, id uint) (*models.ExamAttempt, error) {
	return &models.ExamAttempt{ID: 9, CertificationID: id, AttemptNumber: 1, StartedAt: time.Now(), Duration: 1}, nil
}

func (b *stubBackend) GetQuestions(context.Context, uint) ([]models.Question, error) {
	if b.failQuestions {
		return nil, errors.New("backend down")
	}
	return []models.Question{
		{ID: 1, Prompt: "q1", Options: []models.Option{{ID: 11, Text: "a"}, {ID: 12, Text: "b"}}},
		{ID: 2, Prompt: "q2", Options: []models.Option{{ID: 21, Text: "a"}, {ID: 22, Text: "b"}}},
	}, nil
}

func (b *stubBackend) SubmitAttempt(context.Context, client.SubmitRequest) (*models.GradedResult, error) {
	return &models.GradedResult{AttemptID: 9, Score: 50, Passed: false, CorrectCount: 1, TotalCount: 2}, nil
}

type oneFace struct{}

func (oneFace) DetectFaces(context.Context, detect.Frame) ([]models.FaceDetection, error) {
	return []models.FaceDetection{{}}, nil
}

type noObjects struct{}

func (noObjects) DetectObjects(context.Context, detect.Frame) ([]models.ObjectDetection, error) {
	return nil, nil
}

func newTestService(backend client.Backend) SessionService {
	return NewSessionService(SessionServiceDeps{
		Backend:    backend,
		TimerStore: timer.NewMemoryStore(),
		Faces:      oneFace{},
		Objects:    noObjects{},
		Publisher:  events.NewMockEventPublisher(nil),
		Proctoring: config.ProctoringConfig{
			FrameBuffer: 2,
			FrameWait:   time.Minute,
		},
	})
}

func TestSessionService_StartGetRemove(t *testing.T) {
	svc := newTestService(&stubBackend{})
	t.Cleanup(svc.Shutdown)

	managed, err := svc.Start(context.Background(), 7)
	require.NoError(t, err)
	assert.Equal(t, session.StateInProgress, managed.Session.State())

	got, err := svc.Get(managed.Session.ID())
	require.NoError(t, err)
	assert.Same(t, managed, got)

	require.NoError(t, svc.Remove(managed.Session.ID()))
	_, err = svc.Get(managed.Session.ID())
	assert.ErrorIs(t, err, ErrSessionNotFound)
	assert.ErrorIs(t, svc.Remove(managed.Session.ID()), ErrSessionNotFound)
}

func TestSessionService_StartFailureRegistersNothing(t *testing.T) {
	svc := newTestService(&stubBackend{failQuestions: true})
	t.Cleanup(svc.Shutdown)

	_, err := svc.Start(context.Background(), 7)
	assert.Error(t, err)
}

func TestSessionService_ConfirmedExitDiscardsSession(t *testing.T) {
	svc := newTestService(&stubBackend{})
	t.Cleanup(svc.Shutdown)

	managed, err := svc.Start(context.Background(), 7)
	require.NoError(t, err)

	decision := managed.Guard.RequestLeave()
	require.False(t, decision.Allowed)
	require.NotEmpty(t, decision.Message)

	destination, err := managed.Guard.Confirm()
	require.NoError(t, err)
	assert.Equal(t, "/dashboard", destination)

	// The abandoned session is gone from the registry.
	_, err = svc.Get(managed.Session.ID())
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestSessionService_DeclinedExitKeepsSession(t *testing.T) {
	svc := newTestService(&stubBackend{})
	t.Cleanup(svc.Shutdown)

	managed, err := svc.Start(context.Background(), 7)
	require.NoError(t, err)

	managed.Guard.RequestLeave()
	require.NoError(t, managed.Guard.Decline())

	got, err := svc.Get(managed.Session.ID())
	require.NoError(t, err)
	assert.Equal(t, session.StateInProgress, got.Session.State())
}

func TestReportService_NotReadyBeforeSessionEnds(t *testing.T) {
	svc := newTestService(&stubBackend{})
	t.Cleanup(svc.Shutdown)

	managed, err := svc.Start(context.Background(), 7)
	require.NoError(t, err)

	reports := NewReportService(nil, nil)
	_, err = reports.BuildSessionReport(context.Background(), managed)
	assert.ErrorIs(t, err, ErrReportNotReady)
}

func TestReportService_BuildsWorkbookForFinishedSession(t *testing.T) {
	svc := newTestService(&stubBackend{})
	t.Cleanup(svc.Shutdown)

	managed, err := svc.Start(context.Background(), 7)
	require.NoError(t, err)
	require.NoError(t, managed.Session.SelectOption(11))
	_, err = managed.Session.Submit(context.Background())
	require.NoError(t, err)

	reports := NewReportService(nil, nil)
	data, err := reports.BuildSessionReport(context.Background(), managed)
	require.NoError(t, err)
	require.NotEmpty(t, data)

	f, err := excelize.OpenReader(bytes.NewReader(data))
	require.NoError(t, err)
	defer f.Close()
	sheets := f.GetSheetList()
	assert.Contains(t, sheets, "Summary")
	assert.Contains(t, sheets, "Violations")
	assert.Contains(t, sheets, "Answers")

	verdict, err := f.GetCellValue("Answers", "D2")
	require.NoError(t, err)
	assert.Equal(t, "Yes", verdict)
}
