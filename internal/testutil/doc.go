// Package testutil holds fixtures shared by package tests: temp-dir stores,
// scripted makers that record and fail on demand, and fixed run ids.
package testutil
