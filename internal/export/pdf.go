package export

import (
	"bytes"
	"fmt"

	"github.com/jung-kurt/gofpdf"

	"github.com/sysu-ecnc-dev/timetable-optimizer/backend/internal/domain"
)

var dayLabels = map[domain.Day]string{
	domain.Monday:    "Mon",
	domain.Tuesday:   "Tue",
	domain.Wednesday: "Wed",
	domain.Thursday:  "Thu",
	domain.Friday:    "Fri",
	domain.Saturday:  "Sat",
}

var columns = []struct {
	header string
	width  float64
}{
	{"Day", 20},
	{"Shift", 25},
	{"Time", 30},
	{"Course", 75},
	{"Room", 40},
}

// PDFExporter 将排班结果渲染为每位教师一张表格的 PDF
type PDFExporter struct {
	fontPath string
}

// NewPDFExporter 的 fontPath 为空时使用内置 Arial 字体，非拉丁字符无法显示
func NewPDFExporter(fontPath string) *PDFExporter {
	return &PDFExporter{fontPath: fontPath}
}

func (e *PDFExporter) Render(run *domain.Run) ([]byte, error) {
	if run == nil {
		return nil, fmt.Errorf("run is nil")
	}
	if run.Status != domain.RunStatusCompleted {
		return nil, fmt.Errorf("run %s is %s, only completed runs can be exported", run.ID, run.Status)
	}

	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetMargins(10, 15, 10)

	family := "Arial"
	tr := pdf.UnicodeTranslatorFromDescriptor("")
	if e.fontPath != "" {
		family = "cjk"
		pdf.AddUTF8Font(family, "", e.fontPath)
		pdf.AddUTF8Font(family, "B", e.fontPath)
		tr = func(s string) string { return s }
	}

	pdf.AddPage()
	pdf.SetFont(family, "B", 14)
	pdf.CellFormat(0, 10, tr(fmt.Sprintf("%s (%s)", run.Title, run.Semester)), "", 1, "C", false, 0, "")
	pdf.SetFont(family, "", 9)
	pdf.CellFormat(0, 6, fmt.Sprintf("fitness %.2f | hard violations %d | generations %d | %d ms",
		run.FitnessScore, run.HardViolations, run.Generations, run.ElapsedMillis), "", 1, "C", false, 0, "")
	pdf.Ln(4)

	for _, schedule := range run.Schedules {
		pdf.SetFont(family, "B", 11)
		name := schedule.ProfessorName
		if name == "" {
			name = fmt.Sprintf("#%d", schedule.ProfessorID)
		}
		pdf.CellFormat(0, 8, tr(name), "", 1, "L", false, 0, "")

		pdf.SetFont(family, "B", 10)
		for _, col := range columns {
			pdf.CellFormat(col.width, 8, col.header, "1", 0, "C", false, 0, "")
		}
		pdf.Ln(-1)

		pdf.SetFont(family, "", 9)
		for _, entry := range schedule.Entries {
			values := []string{
				dayLabels[entry.Day],
				string(entry.Shift),
				entry.StartTime + "-" + entry.EndTime,
				tr(entry.CourseCode + " " + entry.CourseName),
				tr(entry.RoomCode),
			}
			for i, col := range columns {
				pdf.CellFormat(col.width, 7, values[i], "1", 0, "", false, 0, "")
			}
			pdf.Ln(-1)
		}
		pdf.Ln(4)
	}

	if pdf.Err() {
		return nil, fmt.Errorf("render pdf: %w", pdf.Error())
	}

	buf := &bytes.Buffer{}
	if err := pdf.Output(buf); err != nil {
		return nil, fmt.Errorf("render pdf: %w", err)
	}
	return buf.Bytes(), nil
}
