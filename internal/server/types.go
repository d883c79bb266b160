// Package server provides the HTTP API for submitting and tracking renders.
// It includes handlers, middleware, routes, and DTOs separated from domain types.
package server

import (
	"time"

	"github.com/maauso/clipkit/internal/action"
)

// CreateRenderRequest is the HTTP request body for submitting a render.
type CreateRenderRequest struct {
	// Source is the path of the input video on the server.
	Source string `json:"source" validate:"required"`
	// Destination is the output path; it must not exist.
	Destination string `json:"destination" validate:"required,nefield=Source"`
	// Actions is the action list, in the same shape as the CLI YAML document.
	Actions []action.Entry `json:"actions" validate:"required,min=1,dive"`
	// S3Key uploads the result to this key when set.
	S3Key string `json:"s3_key,omitempty" validate:"omitempty,max=1024"`
}

// PlanRequest is the HTTP request body for previewing commands.
type PlanRequest struct {
	Source  string         `json:"source" validate:"required"`
	Actions []action.Entry `json:"actions" validate:"required,min=1,dive"`
}

// PlanResponse lists the commands a render would run.
type PlanResponse struct {
	Commands []string `json:"commands"`
}

// CreateRenderResponse is the HTTP response after submitting a render.
type CreateRenderResponse struct {
	// ID is the unique identifier for the created job.
	ID string `json:"id"`
	// Status is the initial job status.
	Status string `json:"status"`
}

// MetadataResponse is the probed source metadata.
type MetadataResponse struct {
	Width  int     `json:"width"`
	Height int     `json:"height"`
	FPS    float64 `json:"fps"`
}

// RenderResponse is the HTTP response for getting render details.
type RenderResponse struct {
	ID          string            `json:"id"`
	Status      string            `json:"status"`
	Source      string            `json:"source"`
	Destination string            `json:"destination"`
	Metadata    *MetadataResponse `json:"metadata,omitempty"`
	// Error contains the error message if the render failed.
	Error string `json:"error,omitempty"`
	// OutputURL is the S3 URL of the result when it was uploaded.
	OutputURL   string     `json:"output_url,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// ListRendersResponse wraps the render list.
type ListRendersResponse struct {
	Renders []RenderResponse `json:"renders"`
}

// ErrorResponse is the standard error response format.
type ErrorResponse struct {
	// Error is the human-readable error message.
	Error string `json:"error"`
	// Code is the error code for programmatic handling.
	Code string `json:"code"`
}

// HealthResponse is the HTTP response for the health check endpoint.
type HealthResponse struct {
	// Status is the health status of the service.
	Status string `json:"status"`
}
