package fetch

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/lukemcguire/linkcrawl/config"
)

// NewDefaultRegistry returns a Registry with the http(s), file and mailto
// fetchers configured from cfg.
func NewDefaultRegistry(cfg config.Config, logger *zap.Logger) (*Registry, error) {
	httpFetcher, err := NewHTTPFetcher(HTTPOptionsFrom(cfg), logger)
	if err != nil {
		return nil, fmt.Errorf("create http fetcher: %w", err)
	}
	return NewRegistry(
		httpFetcher,
		NewFileFetcher(cfg.MaxBodySize),
		NewMailtoFetcher(cfg.CheckMX, cfg.Timeout),
	), nil
}
