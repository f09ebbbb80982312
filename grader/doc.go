// Package grader runs a submission against test cases and scores it.
//
// Every test case is a separate sandbox execution. Cases may run in
// parallel, but GradeReport.Results always follows the order of the
// submitted cases. Outputs are compared leniently; see Compare.
package grader
