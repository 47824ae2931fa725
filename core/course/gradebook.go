package course

import (
	"encoding/csv"
	"fmt"
	"io"
	"math"
	"sort"
	"strconv"

	"github.com/trezcool/scholar/core/user"
)

// NoLetter is shown for students without any grade.
const NoLetter = "-"

type (
	Gradebook struct {
		Course       Course         `json:"course"`
		Assignments  []Assignment   `json:"assignments"`
		Rows         []GradebookRow `json:"rows"`
		ClassAverage *float64       `json:"class_average"`
	}

	// GradebookRow holds one student's points, aligned with Gradebook.Assignments (nil when ungraded).
	GradebookRow struct {
		StudentID  string     `json:"student_id"`
		Name       string     `json:"name"`
		Email      string     `json:"email"`
		Points     []*float64 `json:"points"`
		Percentage *float64   `json:"percentage"`
		Letter     string     `json:"letter"`
	}
)

// Letter maps a percentage to a letter grade.
func Letter(pct *float64) string {
	if pct == nil {
		return NoLetter
	}
	switch p := *pct; {
	case p >= 90:
		return "A"
	case p >= 80:
		return "B"
	case p >= 70:
		return "C"
	case p >= 60:
		return "D"
	default:
		return "F"
	}
}

// WeightedPercentage is sum(weight*points/max) / sum(weight) * 100, over graded assignments only.
// `points` is aligned with `assignments`. It returns nil when nothing is graded.
func WeightedPercentage(assignments []Assignment, points []*float64) *float64 {
	var score, weights float64
	for i, a := range assignments {
		if i >= len(points) || points[i] == nil || a.MaxPoints <= 0 {
			continue
		}
		score += a.Weight * *points[i] / a.MaxPoints
		weights += a.Weight
	}
	if weights == 0 {
		return nil
	}
	return round2(score / weights * 100)
}

// BuildGradebook assembles the gradebook of `c`. Students are sorted by name.
func BuildGradebook(c Course, assignments []Assignment, grades []Grade, students []user.User) Gradebook {
	index := make(map[string]int, len(assignments))
	for i, a := range assignments {
		index[a.ID] = i
	}

	byStudent := make(map[string][]*float64, len(students))
	for _, g := range grades {
		i, ok := index[g.AssignmentID]
		if !ok {
			continue
		}
		pts, ok := byStudent[g.StudentID]
		if !ok {
			pts = make([]*float64, len(assignments))
			byStudent[g.StudentID] = pts
		}
		p := g.Points
		pts[i] = &p
	}

	sorted := make([]user.User, len(students))
	copy(sorted, students)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].DisplayName() != sorted[j].DisplayName() {
			return sorted[i].DisplayName() < sorted[j].DisplayName()
		}
		return sorted[i].ID < sorted[j].ID
	})

	gb := Gradebook{Course: c, Assignments: assignments, Rows: make([]GradebookRow, 0, len(sorted))}
	var total float64
	var graded int
	for _, st := range sorted {
		pts, ok := byStudent[st.ID]
		if !ok {
			pts = make([]*float64, len(assignments))
		}
		pct := WeightedPercentage(assignments, pts)
		if pct != nil {
			total += *pct
			graded++
		}
		gb.Rows = append(gb.Rows, GradebookRow{
			StudentID:  st.ID,
			Name:       st.DisplayName(),
			Email:      st.Email,
			Points:     pts,
			Percentage: pct,
			Letter:     Letter(pct),
		})
	}
	if graded > 0 {
		gb.ClassAverage = round2(total / float64(graded))
	}
	return gb
}

// Row returns the row of `studentID`, if enrolled.
func (gb Gradebook) Row(studentID string) (GradebookRow, bool) {
	for _, r := range gb.Rows {
		if r.StudentID == studentID {
			return r, true
		}
	}
	return GradebookRow{}, false
}

// WriteCSV writes one line per student, after a header naming every assignment.
func (gb Gradebook) WriteCSV(w io.Writer) error {
	cw := csv.NewWriter(w)

	header := make([]string, 0, len(gb.Assignments)+4)
	header = append(header, "Student", "Email")
	for _, a := range gb.Assignments {
		header = append(header, a.Title)
	}
	header = append(header, "Percentage", "Letter")
	if err := cw.Write(header); err != nil {
		return err
	}

	for _, r := range gb.Rows {
		record := make([]string, 0, len(header))
		record = append(record, r.Name, r.Email)
		for _, p := range r.Points {
			record = append(record, formatPoints(p))
		}
		pct := ""
		if r.Percentage != nil {
			pct = fmt.Sprintf("%.2f", *r.Percentage)
		}
		record = append(record, pct, r.Letter)
		if err := cw.Write(record); err != nil {
			return err
		}
	}

	cw.Flush()
	return cw.Error()
}

func formatPoints(p *float64) string {
	if p == nil {
		return ""
	}
	return strconv.FormatFloat(*p, 'f', -1, 64)
}

func round2(f float64) *float64 {
	r := math.Round(f*100) / 100
	return &r
}
