package course

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/scholar/core/user"
)

func pts(v float64) *float64 { return &v }

func TestLetter(t *testing.T) {
	tests := []struct {
		pct  *float64
		want string
	}{
		{pct: nil, want: NoLetter},
		{pct: pts(100), want: "A"},
		{pct: pts(90), want: "A"},
		{pct: pts(89.99), want: "B"},
		{pct: pts(80), want: "B"},
		{pct: pts(70), want: "C"},
		{pct: pts(60), want: "D"},
		{pct: pts(59.99), want: "F"},
		{pct: pts(0), want: "F"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Letter(tt.pct))
	}
}

func TestWeightedPercentage(t *testing.T) {
	assignments := []Assignment{
		{ID: "essay", MaxPoints: 20, Weight: 1},
		{ID: "exam", MaxPoints: 50, Weight: 2},
	}

	tests := []struct {
		name   string
		points []*float64
		want   *float64
	}{
		{name: "nothing graded", points: []*float64{nil, nil}},
		{name: "only ungraded weights are ignored", points: []*float64{pts(10), nil}, want: pts(50)},
		{name: "weighted", points: []*float64{pts(18), pts(40)}, want: pts(83.33)},
		{name: "full marks", points: []*float64{pts(20), pts(50)}, want: pts(100)},
		{name: "short points slice", points: []*float64{pts(20)}, want: pts(100)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := WeightedPercentage(assignments, tt.points)
			if tt.want == nil {
				assert.Nil(t, got)
				return
			}
			require.NotNil(t, got)
			assert.InDelta(t, *tt.want, *got, 0.001)
		})
	}
}

func gradebookFixture() Gradebook {
	c := Course{ID: "c1", Code: "CS101", StudentIDs: []string{"bob", "carol", "alice"}}
	assignments := []Assignment{
		{ID: "essay", Title: "Essay", MaxPoints: 20, Weight: 1},
		{ID: "exam", Title: "Exam", MaxPoints: 50, Weight: 1},
	}
	grades := []Grade{
		{AssignmentID: "essay", StudentID: "alice", Points: 18},
		{AssignmentID: "exam", StudentID: "alice", Points: 45},
		{AssignmentID: "essay", StudentID: "bob", Points: 12},
		{AssignmentID: "other", StudentID: "bob", Points: 1},
	}
	students := []user.User{
		{ID: "bob", Name: "Bob", Email: "bob@test.cd"},
		{ID: "carol", Name: "Carol", Email: "carol@test.cd"},
		{ID: "alice", Name: "Alice", Email: "alice@test.cd"},
	}
	return BuildGradebook(c, assignments, grades, students)
}

func TestBuildGradebook(t *testing.T) {
	gb := gradebookFixture()

	require.Len(t, gb.Rows, 3)
	assert.Equal(t, []string{"alice", "bob", "carol"}, []string{gb.Rows[0].StudentID, gb.Rows[1].StudentID, gb.Rows[2].StudentID})

	alice, ok := gb.Row("alice")
	require.True(t, ok)
	require.NotNil(t, alice.Percentage)
	assert.Equal(t, 90.0, *alice.Percentage)
	assert.Equal(t, "A", alice.Letter)

	bob, _ := gb.Row("bob")
	require.NotNil(t, bob.Percentage)
	assert.Equal(t, 60.0, *bob.Percentage)
	assert.Equal(t, "D", bob.Letter)
	assert.Nil(t, bob.Points[1])

	carol, _ := gb.Row("carol")
	assert.Nil(t, carol.Percentage)
	assert.Equal(t, NoLetter, carol.Letter)

	require.NotNil(t, gb.ClassAverage)
	assert.Equal(t, 75.0, *gb.ClassAverage)

	_, ok = gb.Row("dave")
	assert.False(t, ok)
}

func TestGradebook_WriteCSV(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, gradebookFixture().WriteCSV(&buf))

	want := "Student,Email,Essay,Exam,Percentage,Letter\n" +
		"Alice,alice@test.cd,18,45,90.00,A\n" +
		"Bob,bob@test.cd,12,,60.00,D\n" +
		"Carol,carol@test.cd,,,,-\n"
	assert.Equal(t, want, buf.String())
}

func TestGradebook_Empty(t *testing.T) {
	gb := BuildGradebook(Course{Code: "EMPTY"}, nil, nil, nil)
	assert.Nil(t, gb.ClassAverage)
	assert.Empty(t, gb.Rows)

	var buf bytes.Buffer
	require.NoError(t, gb.WriteCSV(&buf))
	assert.Equal(t, "Student,Email,Percentage,Letter\n", buf.String())
}
