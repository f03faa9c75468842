package crm

import (
	"github.com/clinprep/exam-booking-backend/internal/models"
)

// Object is a remote store object: an identity plus a flat property map.
// The provider returns every property value as a string.
type Object struct {
	ID         models.FlexID     `json:"id"`
	Properties map[string]string `json:"properties"`
}

// ObjectInput is one object write (update) input
type ObjectInput struct {
	ID         string            `json:"id"`
	Properties map[string]string `json:"properties"`
}

// AssociationPair is one association create/archive input
type AssociationPair struct {
	FromID string
	ToID   string
	Type   string
}

// Filter is one search constraint on an object property
type Filter struct {
	PropertyName string `json:"propertyName"`
	Operator     string `json:"operator"` // EQ, NEQ, GT, GTE, LT, LTE
	Value        string `json:"value"`
}

// Wire types for the provider's batch endpoints. Endpoint paths are
// provider-specific; only the behavior (limits, partial results, ID typing)
// matters to callers.

type idInput struct {
	ID string `json:"id"`
}

type batchReadRequest struct {
	Properties []string  `json:"properties,omitempty"`
	Inputs     []idInput `json:"inputs"`
}

type batchUpdateRequest struct {
	Inputs []ObjectInput `json:"inputs"`
}

type createInput struct {
	Properties map[string]string `json:"properties"`
}

type batchCreateRequest struct {
	Inputs []createInput `json:"inputs"`
}

type batchObjectResponse struct {
	Status  string   `json:"status"`
	Results []Object `json:"results"`
}

type associationEnd struct {
	ID models.FlexID `json:"id"`
}

type associationTarget struct {
	// Some endpoint versions return this as a bare number, others as a
	// string; FlexID canonicalizes either form.
	ID   models.FlexID `json:"id"`
	Type string        `json:"type,omitempty"`
}

type associationResult struct {
	From associationEnd      `json:"from"`
	To   []associationTarget `json:"to"`
}

type batchAssociationReadResponse struct {
	Status  string              `json:"status"`
	Results []associationResult `json:"results"`
}

type associationCreateInput struct {
	From idInput `json:"from"`
	To   idInput `json:"to"`
	Type string  `json:"type"`
}

type batchAssociationWriteRequest struct {
	Inputs []associationCreateInput `json:"inputs"`
}

type searchRequest struct {
	Filters    []Filter `json:"filters,omitempty"`
	Properties []string `json:"properties,omitempty"`
	Limit      int      `json:"limit,omitempty"`
	After      string   `json:"after,omitempty"`
}

type searchResponse struct {
	Total   int      `json:"total"`
	Results []Object `json:"results"`
}

type apiError struct {
	Status  string `json:"status"`
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}
