package rpcapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/Adithya-Monish-Kumar-K/inverted-index/internal/auth/apikey"
	"github.com/Adithya-Monish-Kumar-K/inverted-index/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/inverted-index/internal/searcher/parser"
	apperrors "github.com/Adithya-Monish-Kumar-K/inverted-index/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/inverted-index/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/inverted-index/pkg/rpc"
)

// Service answers index RPCs from an engine. The exported fields are set
// before Register and mirror the HTTP surface:
//   - Keys, when set, must accept the APIKey of every Index.Create;
//   - MaxTerms, when positive, bounds the flattened terms of Index.Search;
//   - OnIndexed and OnFailed run after each Index.Create that reached the
//     engine.
type Service struct {
	engine *indexer.Engine
	logger *slog.Logger

	Keys      apikey.Validator
	MaxTerms  int
	OnIndexed func(ctx context.Context, info indexer.CollectionInfo)
	OnFailed  func(ctx context.Context, name string, err error)
}

func NewService(engine *indexer.Engine) *Service {
	return &Service{
		engine: engine,
		logger: slog.Default().With("component", "rpc-service"),
	}
}

// Register mounts every method on s.
func (svc *Service) Register(s *rpc.Server) {
	s.Register(MethodCreateIndex, svc.createIndex)
	s.Register(MethodGetIndex, svc.getIndex)
	s.Register(MethodList, svc.list)
	s.Register(MethodSearch, svc.search)
}

func decode[T any](params json.RawMessage) (T, error) {
	var req T
	if len(params) == 0 {
		return req, nil
	}
	if err := json.Unmarshal(params, &req); err != nil {
		return req, fmt.Errorf("%w: %v", apperrors.ErrInvalidInput, err)
	}
	return req, nil
}

func (svc *Service) createIndex(ctx context.Context, params json.RawMessage) (any, error) {
	req, err := decode[CreateIndexRequest](params)
	if err != nil {
		return nil, err
	}
	if err := svc.authorize(ctx, req.APIKey); err != nil {
		return nil, err
	}
	info, err := svc.engine.CreateIndex(req.Name, []byte(req.Content))
	if err != nil {
		if svc.OnFailed != nil {
			svc.OnFailed(ctx, req.Name, err)
		}
		return nil, err
	}
	logger.FromContext(ctx).Info("collection indexed over rpc",
		"collection", info.Name,
		"documents", info.Documents,
		"replaced", info.Replaced,
	)
	if svc.OnIndexed != nil {
		svc.OnIndexed(ctx, info)
	}
	return CreateIndexResponse{CollectionInfo: info}, nil
}

func (svc *Service) getIndex(_ context.Context, params json.RawMessage) (any, error) {
	req, err := decode[GetIndexRequest](params)
	if err != nil {
		return nil, err
	}
	info, err := svc.engine.Collection(req.Name)
	if err != nil {
		return nil, err
	}
	idx, err := svc.engine.GetIndex(req.Name)
	if err != nil {
		return nil, err
	}
	return GetIndexResponse{CollectionInfo: info, Index: idx}, nil
}

func (svc *Service) list(context.Context, json.RawMessage) (any, error) {
	return ListResponse{
		Collections:  svc.engine.Collections(),
		LastSearched: svc.engine.LastSearched(),
	}, nil
}

func (svc *Service) search(_ context.Context, params json.RawMessage) (any, error) {
	req, err := decode[SearchRequest](params)
	if err != nil {
		return nil, err
	}
	if svc.MaxTerms > 0 {
		q, err := parser.Parse(req.Terms)
		if err != nil {
			return nil, err
		}
		if n := len(parser.Flatten(q)); n > svc.MaxTerms {
			return nil, fmt.Errorf("%w: %d terms exceeds the limit of %d",
				apperrors.ErrInvalidSearchParameter, n, svc.MaxTerms)
		}
	}
	result, err := svc.engine.SearchJSON(req.Terms, req.Target)
	if err != nil {
		return nil, err
	}
	return SearchResponse{SearchResult: *result}, nil
}

func (svc *Service) authorize(ctx context.Context, key string) error {
	if svc.Keys == nil {
		return nil
	}
	if key == "" {
		return fmt.Errorf("%w: missing api key", apperrors.ErrUnauthorized)
	}
	_, err := svc.Keys.Validate(ctx, key)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, apikey.ErrInvalidKey), errors.Is(err, apikey.ErrExpiredKey):
		return fmt.Errorf("%w: %w", apperrors.ErrUnauthorized, err)
	default:
		logger.FromContext(ctx).Error("api key validation failed", "error", err)
		return fmt.Errorf("%w: authentication unavailable", apperrors.ErrInternal)
	}
}
