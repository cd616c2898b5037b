package services

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/skillcert/proctor-engine/internal/models"
	"github.com/skillcert/proctor-engine/internal/repositories"
	"github.com/xuri/excelize/v2"
)

// ReportService exports a finished proctoring session as an Excel
// workbook for reviewers: a summary sheet, a violation log, and the
// answer sheet.
type ReportService interface {
	BuildSessionReport(ctx context.Context, managed *ManagedSession) ([]byte, error)
}

type reportService struct {
	violations repositories.ViolationRepository
	logger     *slog.Logger
}

func NewReportService(violations repositories.ViolationRepository, logger *slog.Logger) ReportService {
	if logger == nil {
		logger = slog.Default()
	}
	return &reportService{violations: violations, logger: logger}
}

func (s *reportService) BuildSessionReport(ctx context.Context, managed *ManagedSession) ([]byte, error) {
	sess := managed.Session
	if sess.Attempt() == nil || !sess.State().IsFinished() {
		return nil, ErrReportNotReady
	}

	f := excelize.NewFile()

	if err := s.writeSummarySheet(f, managed); err != nil {
		return nil, err
	}
	if err := s.writeViolationsSheet(ctx, f, managed); err != nil {
		return nil, err
	}
	if err := s.writeAnswersSheet(f, managed); err != nil {
		return nil, err
	}

	// Drop excelize's default sheet so the summary opens first.
	_ = f.DeleteSheet("Sheet1")

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("failed to write Excel file: %w", err)
	}
	return buf.Bytes(), nil
}

func (s *reportService) writeSummarySheet(f *excelize.File, managed *ManagedSession) error {
	sess := managed.Session
	sheetName := "Summary"

	index, err := f.NewSheet(sheetName)
	if err != nil {
		return fmt.Errorf("failed to create Excel sheet: %w", err)
	}
	f.SetActiveSheet(index)

	attempt := sess.Attempt()
	certification := sess.Certification()

	rows := [][]interface{}{
		{"Session ID", sess.ID().String()},
		{"Attempt ID", attempt.ID},
		{"Attempt Number", attempt.AttemptNumber},
		{"Status", string(attempt.Status)},
		{"Started At", attempt.StartedAt.Format("2006-01-02 15:04:05")},
		{"Questions", len(sess.Questions())},
		{"Answered", sess.AnsweredCount()},
		{"Violations", len(sess.Violations())},
	}
	if certification != nil {
		rows = append(rows,
			[]interface{}{"Certification", certification.Title},
			[]interface{}{"Passing Score", certification.PassingScore})
	}
	if result := sess.Result(); result != nil {
		verdict := "Fail"
		if result.Passed {
			verdict = "Pass"
		}
		rows = append(rows,
			[]interface{}{"Score", result.Score},
			[]interface{}{"Correct", fmt.Sprintf("%d/%d", result.CorrectCount, result.TotalCount)},
			[]interface{}{"Verdict", verdict})
	}

	for rowIndex, row := range rows {
		for colIndex, value := range row {
			cell := fmt.Sprintf("%c%d", 'A'+colIndex, rowIndex+1)
			f.SetCellValue(sheetName, cell, value)
		}
	}
	return nil
}

func (s *reportService) writeViolationsSheet(ctx context.Context, f *excelize.File, managed *ManagedSession) error {
	sheetName := "Violations"

	if _, err := f.NewSheet(sheetName); err != nil {
		return fmt.Errorf("failed to create Excel sheet: %w", err)
	}

	headers := []string{"#", "Kind", "Message", "Occurred At"}
	for i, header := range headers {
		cell := fmt.Sprintf("%c1", 'A'+i)
		f.SetCellValue(sheetName, cell, header)
	}

	violations := s.loadViolations(ctx, managed)
	for rowIndex, v := range violations {
		row := []interface{}{
			rowIndex + 1,
			string(v.Kind),
			v.Message,
			v.OccurredAt.Format("2006-01-02 15:04:05"),
		}
		for colIndex, value := range row {
			cell := fmt.Sprintf("%c%d", 'A'+colIndex, rowIndex+2)
			f.SetCellValue(sheetName, cell, value)
		}
	}
	return nil
}

// loadViolations prefers the persisted log; the in-memory recorder log is
// the fallback when no repository is wired.
func (s *reportService) loadViolations(ctx context.Context, managed *ManagedSession) []models.Violation {
	sess := managed.Session
	if s.violations != nil {
		if attempt := sess.Attempt(); attempt != nil {
			persisted, err := s.violations.GetByAttempt(ctx, attempt.ID)
			if err != nil {
				s.logger.Warn("Failed to load persisted violations, using in-memory log", "error", err)
			} else if len(persisted) > 0 {
				out := make([]models.Violation, 0, len(persisted))
				for _, p := range persisted {
					out = append(out, models.Violation{
						Kind:       p.Kind,
						Message:    p.Message,
						OccurredAt: p.OccurredAt,
					})
				}
				return out
			}
		}
	}
	return sess.Violations()
}

func (s *reportService) writeAnswersSheet(f *excelize.File, managed *ManagedSession) error {
	sess := managed.Session
	sheetName := "Answers"

	if _, err := f.NewSheet(sheetName); err != nil {
		return fmt.Errorf("failed to create Excel sheet: %w", err)
	}

	headers := []string{"#", "Question", "Selected Option", "Answered"}
	for i, header := range headers {
		cell := fmt.Sprintf("%c1", 'A'+i)
		f.SetCellValue(sheetName, cell, header)
	}

	answers := sess.Answers()
	for rowIndex, q := range sess.Questions() {
		selected := answers[q.ID]
		selectedText := ""
		answered := "No"
		if selected != models.Unanswered {
			answered = "Yes"
			for _, opt := range q.Options {
				if opt.ID == selected {
					selectedText = opt.Text
					break
				}
			}
		}
		row := []interface{}{rowIndex + 1, q.Prompt, selectedText, answered}
		for colIndex, value := range row {
			cell := fmt.Sprintf("%c%d", 'A'+colIndex, rowIndex+2)
			f.SetCellValue(sheetName, cell, value)
		}
	}
	return nil
}
