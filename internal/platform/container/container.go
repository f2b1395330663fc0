package container

import (
	"fmt"
	"log/slog"

	"github.com/jinford/stock-analysis/internal/core/analysis"
	"github.com/jinford/stock-analysis/internal/infra/analysisapi"
	"github.com/jinford/stock-analysis/internal/platform/config"
)

// Container はコマンド実行に必要な依存関係を保持する
type Container struct {
	Logger   *slog.Logger
	Client   *analysisapi.Client
	Poller   *analysis.Poller
	Analysis *analysis.Service
}

// New は設定とロガーからコンテナを生成する
func New(logger *slog.Logger, cfg *config.Config, opts ...analysis.ServiceOption) (*Container, error) {
	if logger == nil {
		logger = slog.Default()
	}

	// 分析サービスクライアント
	client, err := analysisapi.NewClient(cfg.API.BaseURL,
		analysisapi.WithTimeout(cfg.API.Timeout),
		analysisapi.WithRateLimit(cfg.API.RateLimit, cfg.API.RateBurst),
		analysisapi.WithLogger(logger),
	)
	if err != nil {
		return nil, fmt.Errorf("分析サービスクライアントの初期化に失敗しました: %w", err)
	}

	// Poller / Service
	poller := analysis.NewPoller(client, cfg.PollerConfig(), analysis.WithPollerLogger(logger))

	serviceOpts := append([]analysis.ServiceOption{
		analysis.WithServiceLogger(logger),
		analysis.WithDuplicatePolicy(cfg.Poll.DuplicatePolicy),
	}, opts...)
	svc := analysis.NewService(client, poller, serviceOpts...)

	return &Container{
		Logger:   logger,
		Client:   client,
		Poller:   poller,
		Analysis: svc,
	}, nil
}

// Close は実行中のポーリングをすべて停止する
func (c *Container) Close() {
	if c.Analysis != nil {
		c.Analysis.Close()
	}
}
