package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
)

const resultsContentType = "application/json"

// ResultArchiver выгружает итоговые документы матчей в объектное хранилище.
type ResultArchiver struct {
	uploader FileUploader
	logger   *slog.Logger
}

func NewResultArchiver(uploader FileUploader, logger *slog.Logger) *ResultArchiver {
	if logger == nil {
		logger = slog.Default()
	}
	return &ResultArchiver{uploader: uploader, logger: logger}
}

// ResultsKey - ключ объекта с результатами матча.
func ResultsKey(matchID string) string {
	return fmt.Sprintf("matches/%s/results.json", matchID)
}

func (a *ResultArchiver) Archive(ctx context.Context, matchID string, document interface{}) error {
	if matchID == "" {
		return errors.New("archive: match id is required")
	}

	body, err := json.MarshalIndent(document, "", "\t")
	if err != nil {
		return fmt.Errorf("archive: encode results for match %s: %w", matchID, err)
	}

	result, err := a.uploader.Upload(ctx, ResultsKey(matchID), resultsContentType, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("archive: %w", err)
	}

	a.logger.InfoContext(ctx, "Match results archived",
		slog.String("match_id", matchID),
		slog.String("key", result.Key),
		slog.String("location", result.Location),
	)
	return nil
}
