// Package data describes the typed inputs and outputs of jobs, recipes and conditions.
//
// An Interface declares named file and JSON parameters. Data binds concrete values to parameter names. A DataFilter
// decides whether a condition node accepts the data it receives.
package data
