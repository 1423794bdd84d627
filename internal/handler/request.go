package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/nittei/nittei/internal/domain"
	"github.com/nittei/nittei/internal/store"
)

func (s *Server) parseUUIDParam(r *http.Request, name string) (uuid.UUID, error) {
	raw := chi.URLParam(r, name)
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid %s: %q", name, raw)
	}
	return id, nil
}

// decodeBody decodes and validates a JSON request body.
func (s *Server) decodeBody(r *http.Request, target interface{}) error {
	if err := json.NewDecoder(r.Body).Decode(target); err != nil {
		return fmt.Errorf("invalid request body: %w", err)
	}
	if err := s.validate.Struct(target); err != nil {
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}

// parseWindowQuery reads startTime/endTime query parameters (RFC 3339)
// into a bounded window.
func parseWindowQuery(r *http.Request) (domain.TimeSpan, error) {
	start, err := time.Parse(time.RFC3339, r.URL.Query().Get("startTime"))
	if err != nil {
		return domain.TimeSpan{}, errors.New("invalid or missing startTime, expected RFC 3339")
	}
	end, err := time.Parse(time.RFC3339, r.URL.Query().Get("endTime"))
	if err != nil {
		return domain.TimeSpan{}, errors.New("invalid or missing endTime, expected RFC 3339")
	}
	return domain.NewTimeSpan(start, end)
}

// parseUUIDList parses a comma separated uuid list, e.g. "a,b,c".
func parseUUIDList(raw string) ([]uuid.UUID, error) {
	if raw == "" {
		return nil, nil
	}
	parts := strings.Split(raw, ",")
	ids := make([]uuid.UUID, 0, len(parts))
	for _, part := range parts {
		id, err := uuid.Parse(strings.TrimSpace(part))
		if err != nil {
			return nil, fmt.Errorf("invalid id in list: %q", part)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func parseInt64Query(r *http.Request, name string) (int64, error) {
	raw := r.URL.Query().Get(name)
	value, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid or missing %s", name)
	}
	return value, nil
}

func metadataQuery(account *domain.Account, metadata domain.Metadata, skip, limit int) store.MetadataFindQuery {
	return store.MetadataFindQuery{
		AccountID: account.ID,
		Metadata:  metadata,
		Skip:      skip,
		Limit:     limit,
	}
}

// parseMetadataQuery reads the key/value metadata containment filter
// plus skip/limit.
func parseMetadataQuery(r *http.Request) (domain.Metadata, int, int, error) {
	key := r.URL.Query().Get("key")
	value := r.URL.Query().Get("value")
	if key == "" {
		return nil, 0, 0, errors.New("missing metadata key")
	}

	skip := 0
	if raw := r.URL.Query().Get("skip"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			return nil, 0, 0, errors.New("invalid skip")
		}
		skip = parsed
	}
	limit := 20
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			return nil, 0, 0, errors.New("invalid limit")
		}
		limit = parsed
	}

	return domain.Metadata{key: value}, skip, limit, nil
}
