package extract

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/gyeh/radwarehouse/internal/model"
)

// hubPageSize is the datasets-server maximum page length.
const hubPageSize = 100

// HubSource pages rows from a Hugging Face datasets-server /rows endpoint.
type HubSource struct {
	BaseURL string
	Dataset string
	Config  string
	Split   string
	Client  *http.Client
}

// NewHubSource returns a HubSource for the default config of dataset.
func NewHubSource(baseURL, dataset, split string) *HubSource {
	return &HubSource{
		BaseURL: baseURL,
		Dataset: dataset,
		Config:  "default",
		Split:   split,
		Client:  &http.Client{Timeout: 30 * time.Second},
	}
}

func (s *HubSource) Name() string { return "hub:" + s.Dataset }

type hubPage struct {
	Rows []struct {
		RowIdx int            `json:"row_idx"`
		Row    map[string]any `json:"row"`
	} `json:"rows"`
	NumRowsTotal int `json:"num_rows_total"`
}

// Fetch pages rows until n usable records are collected or the dataset is
// exhausted. Rows without an image id are dropped, so a dataset whose rows
// lack the expected fields yields no records.
func (s *HubSource) Fetch(ctx context.Context, n int) ([]model.SourceRecord, error) {
	var records []model.SourceRecord
	offset := 0
	for len(records) < n {
		length := min(hubPageSize, n-len(records))
		page, err := s.fetchPage(ctx, offset, length)
		if err != nil {
			return nil, err
		}
		for _, r := range page.Rows {
			if rec := hubRecord(r.Row); rec != nil {
				records = append(records, rec)
			}
		}
		offset += len(page.Rows)
		if len(page.Rows) < length || (page.NumRowsTotal > 0 && offset >= page.NumRowsTotal) {
			break
		}
	}
	return records, nil
}

func (s *HubSource) fetchPage(ctx context.Context, offset, length int) (*hubPage, error) {
	q := url.Values{}
	q.Set("dataset", s.Dataset)
	q.Set("config", s.Config)
	q.Set("split", s.Split)
	q.Set("offset", strconv.Itoa(offset))
	q.Set("length", strconv.Itoa(length))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.BaseURL+"/rows?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	resp, err := s.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch rows offset=%d: %w", offset, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch rows offset=%d: status %s", offset, resp.Status)
	}

	var page hubPage
	if err := json.NewDecoder(resp.Body).Decode(&page); err != nil {
		return nil, fmt.Errorf("decode rows offset=%d: %w", offset, err)
	}
	return &page, nil
}

// hubRecord keeps only the known record fields, or returns nil when the row
// has no image id. JSON numbers arrive as float64 and are coerced later by
// the staging loader.
func hubRecord(row map[string]any) model.SourceRecord {
	if id, ok := row[model.FieldImageID]; !ok || id == nil || id == "" {
		return nil
	}
	rec := make(model.SourceRecord, len(model.SourceFields))
	for _, f := range model.SourceFields {
		if v, ok := row[f]; ok {
			rec[f] = v
		}
	}
	return rec
}
