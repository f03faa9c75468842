package crm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/clinprep/exam-booking-backend/internal/config"
	"github.com/clinprep/exam-booking-backend/internal/models"
)

// Client is the HTTP client for the remote CRM object store. It speaks the
// provider's batch CRUD surface one call at a time; chunking of oversized
// inputs lives in BatchClient.
type Client struct {
	baseURL     string
	accessToken string
	logger      *logrus.Logger
	http        *http.Client
}

// NewClient creates a new remote store client
func NewClient(cfg config.CRMConfig, logger *logrus.Logger) *Client {
	return &Client{
		baseURL:     cfg.BaseURL,
		accessToken: cfg.AccessToken,
		logger:      logger,
		http: &http.Client{
			Timeout: cfg.Timeout,
		},
	}
}

// ReadObjects reads up to one provider-limit's worth of objects by ID.
// Absent IDs are simply missing from the result, not errors.
func (c *Client) ReadObjects(ctx context.Context, objectType string, ids []string, fields []string) ([]Object, error) {
	req := batchReadRequest{Properties: fields, Inputs: toIDInputs(ids)}

	var resp batchObjectResponse
	path := fmt.Sprintf("/crm/v3/objects/%s/batch/read", objectType)
	if err := c.doJSON(ctx, http.MethodPost, path, req, &resp); err != nil {
		return nil, err
	}

	return resp.Results, nil
}

// UpdateObjects applies up to one provider-limit's worth of property updates
func (c *Client) UpdateObjects(ctx context.Context, objectType string, inputs []ObjectInput) ([]Object, error) {
	req := batchUpdateRequest{Inputs: inputs}

	var resp batchObjectResponse
	path := fmt.Sprintf("/crm/v3/objects/%s/batch/update", objectType)
	if err := c.doJSON(ctx, http.MethodPost, path, req, &resp); err != nil {
		return nil, err
	}

	return resp.Results, nil
}

// CreateObjects creates objects from property maps and returns them with
// their provider-assigned identities
func (c *Client) CreateObjects(ctx context.Context, objectType string, properties []map[string]string) ([]Object, error) {
	inputs := make([]createInput, len(properties))
	for i, p := range properties {
		inputs[i] = createInput{Properties: p}
	}
	req := batchCreateRequest{Inputs: inputs}

	var resp batchObjectResponse
	path := fmt.Sprintf("/crm/v3/objects/%s/batch/create", objectType)
	if err := c.doJSON(ctx, http.MethodPost, path, req, &resp); err != nil {
		return nil, err
	}

	return resp.Results, nil
}

// ArchiveObjects removes objects from the remote store. Used only by
// compensation to undo a just-created object; user-facing cancellation is a
// status write, never an archive.
func (c *Client) ArchiveObjects(ctx context.Context, objectType string, ids []string) error {
	req := batchReadRequest{Inputs: toIDInputs(ids)}

	path := fmt.Sprintf("/crm/v3/objects/%s/batch/archive", objectType)
	return c.doJSON(ctx, http.MethodPost, path, req, nil)
}

// ReadAssociations reads the association edges from the given objects to
// objects of toType. Far-end identities arrive as numbers from one endpoint
// version and strings from another; both land as canonical FlexIDs.
func (c *Client) ReadAssociations(ctx context.Context, fromType string, fromIDs []string, toType string) ([]models.Association, error) {
	req := batchReadRequest{Inputs: toIDInputs(fromIDs)}

	var resp batchAssociationReadResponse
	path := fmt.Sprintf("/crm/v4/associations/%s/%s/batch/read", fromType, toType)
	if err := c.doJSON(ctx, http.MethodPost, path, req, &resp); err != nil {
		return nil, err
	}

	var edges []models.Association
	for _, result := range resp.Results {
		for _, target := range result.To {
			edges = append(edges, models.Association{
				FromID:       result.From.ID,
				ToID:         target.ID,
				RelationType: target.Type,
			})
		}
	}

	return edges, nil
}

// CreateAssociations creates association edges between object pairs
func (c *Client) CreateAssociations(ctx context.Context, fromType, toType string, pairs []AssociationPair) error {
	req := batchAssociationWriteRequest{Inputs: toAssociationInputs(pairs)}

	path := fmt.Sprintf("/crm/v4/associations/%s/%s/batch/create", fromType, toType)
	return c.doJSON(ctx, http.MethodPost, path, req, nil)
}

// ArchiveAssociations removes association edges between object pairs
func (c *Client) ArchiveAssociations(ctx context.Context, fromType, toType string, pairs []AssociationPair) error {
	req := batchAssociationWriteRequest{Inputs: toAssociationInputs(pairs)}

	path := fmt.Sprintf("/crm/v4/associations/%s/%s/batch/archive", fromType, toType)
	return c.doJSON(ctx, http.MethodPost, path, req, nil)
}

// SearchObjects runs a filtered property search over one object type
func (c *Client) SearchObjects(ctx context.Context, objectType string, filters []Filter, fields []string, limit int) ([]Object, error) {
	req := searchRequest{Filters: filters, Properties: fields, Limit: limit}

	var resp searchResponse
	path := fmt.Sprintf("/crm/v3/objects/%s/search", objectType)
	if err := c.doJSON(ctx, http.MethodPost, path, req, &resp); err != nil {
		return nil, err
	}

	return resp.Results, nil
}

// CountObjects returns the total number of objects matching the filters
// without fetching them
func (c *Client) CountObjects(ctx context.Context, objectType string, filters []Filter) (int, error) {
	req := searchRequest{Filters: filters, Limit: 1}

	var resp searchResponse
	path := fmt.Sprintf("/crm/v3/objects/%s/search", objectType)
	if err := c.doJSON(ctx, http.MethodPost, path, req, &resp); err != nil {
		return 0, err
	}

	return resp.Total, nil
}

// doJSON issues one JSON request against the provider and decodes the
// response into out (out may be nil for endpoints that return no body)
func (c *Client) doJSON(ctx context.Context, method, path string, body interface{}, out interface{}) error {
	start := time.Now()

	jsonBody, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bytes.NewBuffer(jsonBody))
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.accessToken)

	resp, err := c.http.Do(req)
	if err != nil {
		c.logger.WithError(err).WithField("path", path).Error("Remote store call failed")
		return fmt.Errorf("%w: %v", models.ErrUpstreamUnavailable, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	c.logger.WithFields(logrus.Fields{
		"path":        path,
		"status_code": resp.StatusCode,
		"duration_ms": time.Since(start).Milliseconds(),
	}).Debug("Remote store call completed")

	if resp.StatusCode == http.StatusTooManyRequests {
		return fmt.Errorf("%w: rate limited", models.ErrUpstreamUnavailable)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var apiErr apiError
		if err := json.Unmarshal(respBody, &apiErr); err == nil && apiErr.Message != "" {
			return fmt.Errorf("remote store returned status %d: %s", resp.StatusCode, apiErr.Message)
		}
		return fmt.Errorf("remote store returned status %d", resp.StatusCode)
	}

	if out == nil || len(respBody) == 0 {
		return nil
	}

	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}

	return nil
}

func toIDInputs(ids []string) []idInput {
	inputs := make([]idInput, len(ids))
	for i, id := range ids {
		inputs[i] = idInput{ID: id}
	}
	return inputs
}

func toAssociationInputs(pairs []AssociationPair) []associationCreateInput {
	inputs := make([]associationCreateInput, len(pairs))
	for i, p := range pairs {
		inputs[i] = associationCreateInput{
			From: idInput{ID: p.FromID},
			To:   idInput{ID: p.ToID},
			Type: p.Type,
		}
	}
	return inputs
}
