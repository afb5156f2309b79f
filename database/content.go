/*
Copyright 2025 Vidigest Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"

	"github.com/vidigest/vidigest/model"
)

// CreateContentItem inserts a new content item. The cleaned transcript is
// written exactly once here; a second insert for the same video id is a
// no-op and returns false, so a re-run can never rewrite the transcript.
func (d *Datasource) CreateContentItem(ctx context.Context, item *model.ContentItem) (bool, error) {
	ctx, span := otel.Tracer("pipeline.content").Start(ctx, "Saving content item to db")
	defer span.End()

	metaDataJSON, err := json.Marshal(item.MetaData)
	if err != nil {
		return false, err
	}

	item.CreatedAt = time.Now()
	item.UpdatedAt = item.CreatedAt

	res, err := d.Conn.ExecContext(ctx, `
		INSERT INTO content_items (video_id, channel_id, title, cleaned_transcript, cost_estimate, created_at, updated_at, meta_data)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (video_id) DO NOTHING
	`, item.VideoID, item.ChannelID, item.Title, item.CleanedTranscript, item.CostEstimate, item.CreatedAt, item.UpdatedAt, metaDataJSON)
	if err != nil {
		return false, fmt.Errorf("create content item %s: %w", item.VideoID, err)
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return rows == 1, nil
}

// GetContentItem retrieves a content item by video id.
func (d *Datasource) GetContentItem(ctx context.Context, videoID string) (*model.ContentItem, error) {
	row := d.Conn.QueryRowContext(ctx, `
		SELECT video_id, channel_id, title, cleaned_transcript, primary_summary, secondary_summary,
		       synthesis_summary, final_summary, stages, cost_estimate, fallback_applied, created_at, updated_at
		FROM content_items WHERE video_id = $1
	`, videoID)

	item := &model.ContentItem{}
	var primary, secondary, synthesis, final sql.NullString
	var stagesJSON []byte
	err := row.Scan(&item.VideoID, &item.ChannelID, &item.Title, &item.CleanedTranscript,
		&primary, &secondary, &synthesis, &final, &stagesJSON,
		&item.CostEstimate, &item.FallbackApplied, &item.CreatedAt, &item.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("content item %s not found", videoID)
	}
	if err != nil {
		return nil, err
	}

	item.PrimarySummary = primary.String
	item.SecondarySummary = secondary.String
	item.SynthesisSummary = synthesis.String
	item.FinalSummary = final.String
	if len(stagesJSON) > 0 {
		if err := json.Unmarshal(stagesJSON, &item.Stages); err != nil {
			return nil, err
		}
	}
	return item, nil
}

// UpdateContentSummaries persists the orchestrator's output: summary
// variants, per-stage records, cost estimate and the fallback flag. The
// cleaned transcript is deliberately not part of the update.
func (d *Datasource) UpdateContentSummaries(ctx context.Context, item *model.ContentItem) error {
	ctx, span := otel.Tracer("pipeline.content").Start(ctx, "Updating content summaries")
	defer span.End()

	stagesJSON, err := json.Marshal(item.Stages)
	if err != nil {
		return err
	}

	item.UpdatedAt = time.Now()
	_, err = d.Conn.ExecContext(ctx, `
		UPDATE content_items
		SET primary_summary = $2, secondary_summary = $3, synthesis_summary = $4, final_summary = $5,
		    stages = $6, cost_estimate = $7, fallback_applied = $8, updated_at = $9
		WHERE video_id = $1
	`, item.VideoID, item.PrimarySummary, item.SecondarySummary, item.SynthesisSummary, item.FinalSummary,
		stagesJSON, item.CostEstimate, item.FallbackApplied, item.UpdatedAt)
	if err != nil {
		return fmt.Errorf("update summaries for %s: %w", item.VideoID, err)
	}
	return nil
}
