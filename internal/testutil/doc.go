// Package testutil holds helpers shared by tests that run the whole app.
package testutil
