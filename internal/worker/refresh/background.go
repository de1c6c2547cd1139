package refresh

import (
	"context"
	"log/slog"
	"time"
)

// StartBackground は一定間隔で一括リフレッシュを繰り返すループを起動する。
// 対象フィードは毎回providerから取得するため、起動後に追加されたフィードも次回から対象になる。
// 既にループが動作中の場合は停止してから起動し直す。intervalが0以下の場合はDefaultIntervalを、
// providerがnilの場合はストアの全フィードを使う。
func (m *Manager) StartBackground(ctx context.Context, interval time.Duration, provider FeedsProvider) {
	if interval <= 0 {
		interval = DefaultInterval
	}
	if provider == nil {
		provider = m.store.ListFeeds
	}
	m.bgMu.Lock()
	defer m.bgMu.Unlock()

	// 停止と起動は同一ロック内で行う
	m.stopLocked()

	loopCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	m.bgCancel = cancel
	m.bgDone = done

	go m.loop(loopCtx, interval, provider, done)

	m.logger.Info("バックグラウンドリフレッシュを開始しました",
		slog.Duration("interval", interval),
	)
}

func (m *Manager) loop(ctx context.Context, interval time.Duration, provider FeedsProvider, done chan struct{}) {
	defer close(done)

	timer := time.NewTimer(interval)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			m.logger.Info("バックグラウンドリフレッシュを停止しました")
			return
		case <-timer.C:
		}

		feeds, err := provider(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			m.logger.Error("リフレッシュ対象フィードの取得に失敗しました",
				slog.String("error", err.Error()),
			)
		} else {
			// 停止要求では実行中のリフレッシュを中断しない
			m.RefreshAll(context.WithoutCancel(ctx), feeds)
		}

		timer.Reset(interval)
	}
}

// StopBackground はバックグラウンドループを停止する。
// スリープ中であれば即座に終了し、リフレッシュ実行中であればその完了を待つ。
func (m *Manager) StopBackground() {
	m.bgMu.Lock()
	defer m.bgMu.Unlock()
	m.stopLocked()
}

// stopLocked はbgMuを保持した状態で呼び出す。
func (m *Manager) stopLocked() {
	if m.bgCancel == nil {
		return
	}
	m.bgCancel()
	<-m.bgDone
	m.bgCancel = nil
	m.bgDone = nil
}

// IsBackgroundActive はバックグラウンドループが動作中かを返す。
func (m *Manager) IsBackgroundActive() bool {
	m.bgMu.Lock()
	defer m.bgMu.Unlock()

	if m.bgDone == nil {
		return false
	}
	select {
	case <-m.bgDone:
		return false
	default:
		return true
	}
}
