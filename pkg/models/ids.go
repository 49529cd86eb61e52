// Package models defines the value objects and aggregate entities of the
// QA package orchestrator: packages, scenarios, steps, runs, step results,
// coverage reports, QA summaries, and webhook configuration/delivery.
package models

import "github.com/google/uuid"

// PackageID, ScenarioID, RunID and WebhookID are opaque 128-bit identifiers.
// Canonical text form is the standard UUID string representation.
type (
	PackageID  string
	ScenarioID string
	RunID      string
	StepID     string
	WebhookID  string
)

// NewPackageID generates a fresh PackageID.
func NewPackageID() PackageID { return PackageID(uuid.New().String()) }

// NewScenarioID generates a fresh ScenarioID.
func NewScenarioID() ScenarioID { return ScenarioID(uuid.New().String()) }

// NewRunID generates a fresh RunID.
func NewRunID() RunID { return RunID(uuid.New().String()) }

// NewWebhookID generates a fresh WebhookID.
func NewWebhookID() WebhookID { return WebhookID(uuid.New().String()) }
