package handler

import "net/http"

// Health はプロセスの生存確認用エンドポイント。
// 認証データ取得元には問い合わせない。
// GET /health
func Health(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}
