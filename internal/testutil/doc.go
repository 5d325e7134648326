// Package testutil holds fixtures shared by package tests: a scripted
// transport client and a proxy service wired to in-memory collaborators.
package testutil
