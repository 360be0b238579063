package grading

// Band is one row of the grade table: percentages at or above MinPercent
// earn Grade.
type Band struct {
	MinPercent float64
	Grade      string
}

// Bands is the canonical grade table, ordered from highest threshold down.
var Bands = []Band{
	{MinPercent: 90, Grade: "A+"},
	{MinPercent: 80, Grade: "A"},
	{MinPercent: 70, Grade: "B"},
	{MinPercent: 60, Grade: "C"},
	{MinPercent: 50, Grade: "D"},
}

// FailGrade is awarded below the lowest band.
const FailGrade = "F"

// GradeFor returns the letter grade for a percentage.
func GradeFor(percentage float64) string {
	for _, b := range Bands {
		if percentage >= b.MinPercent {
			return b.Grade
		}
	}
	return FailGrade
}
