package model

import "time"

// RefreshReport は1回のリフレッシュ実行の集計結果を表す。
type RefreshReport struct {
	Attempted   int       // 処理対象としたフィード数
	Succeeded   int       // 取得・正規化に成功したフィード数
	Inserted    int       // 新規に追加した記事数
	LastError   error     // 最後に観測したエラー（後勝ち）
	Skipped     bool      // 実行中のリフレッシュがあったため何もしなかった場合true
	CompletedAt time.Time
}

// Failed は失敗したフィード数を返す。
func (r RefreshReport) Failed() int {
	return r.Attempted - r.Succeeded
}
