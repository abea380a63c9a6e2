package session

import (
	"crypto/rand"
	"encoding/hex"
	"sync"
	"time"

	"github.com/hitoshi/sheetgate/internal/model"
)

// entry はブラウザIDごとの状態と最終アクセス時刻を保持する。
type entry struct {
	state      State
	lastAccess time.Time
}

const (
	// DefaultMaxEntries は保持するエントリ数の既定上限。
	DefaultMaxEntries = 10000
	// DefaultNoticeTTL は通知のみを持つ未ログインエントリの既定保持期間。
	DefaultNoticeTTL = 15 * time.Minute
)

// Store はブラウザIDをキーに画面状態を保持するプロセス内ストア。
// 永続化は行わず、資格情報も保持しない。
// 最終アクセスからmaxAge（通知のみのエントリはnoticeTTL）を超えたエントリは
// 未ログイン扱いとなり、バックグラウンドで定期的に削除される。
// エントリ数がmaxEntriesに達した場合は最も古いエントリから追い出す。
type Store struct {
	mu         sync.Mutex
	entries    map[string]*entry
	maxAge     time.Duration
	noticeTTL  time.Duration
	maxEntries int
	now        func() time.Time

	stopCh   chan struct{}
	stopOnce sync.Once
}

// Option はStoreの上限設定を変更する。
type Option func(*Store)

// WithMaxEntries は保持するエントリ数の上限を設定する。0以下は無制限。
func WithMaxEntries(n int) Option {
	return func(s *Store) { s.maxEntries = n }
}

// WithNoticeTTL は通知のみを持つ未ログインエントリの保持期間を設定する。
func WithNoticeTTL(d time.Duration) Option {
	return func(s *Store) { s.noticeTTL = d }
}

// NewStore は新しいStoreを生成し、期限切れエントリのクリーンアップを開始する。
func NewStore(maxAge, cleanupInterval time.Duration, opts ...Option) *Store {
	s := &Store{
		entries:    make(map[string]*entry),
		maxAge:     maxAge,
		noticeTTL:  DefaultNoticeTTL,
		maxEntries: DefaultMaxEntries,
		now:        time.Now,
		stopCh:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}

	if cleanupInterval > 0 {
		go s.cleanupLoop(cleanupInterval)
	}

	return s
}

// Stop はクリーンアップのバックグラウンドゴルーチンを停止する。
func (s *Store) Stop() {
	s.stopOnce.Do(func() { close(s.stopCh) })
}

// NewID は暗号的に安全なブラウザIDを生成する。
func NewID() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

// Get は現在の状態を返す。未登録または期限切れの場合はAnonymousを返す。
func (s *Store) Get(id string) State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load(id)
}

// Begin は認証試行の開始（Anonymous -> Verifying）を原子的に行う。
// 既に試行中の場合はErrAttemptInFlightを返す。
func (s *Store) Begin(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	next, err := s.load(id).Submit()
	if err != nil {
		return err
	}
	s.save(id, next)
	return nil
}

// Finish は認証結果を反映し、遷移後の状態を返す。
func (s *Store) Finish(id string, result model.AuthResult) (State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	next, err := s.load(id).Resolve(result)
	if err != nil {
		return next, err
	}
	s.save(id, next)
	return next, nil
}

// Logout はログアウト（Authenticated -> Anonymous）を行う。
func (s *Store) Logout(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	next, err := s.load(id).Logout()
	if err != nil {
		return err
	}
	s.save(id, next)
	return nil
}

// DismissNotice は表示中の通知を閉じる。
func (s *Store) DismissNotice(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.entries[id]; !ok {
		return
	}
	s.save(id, s.load(id).DismissNotice())
}

// Len は現在保持しているエントリ数を返す。テストおよびメトリクス用。
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// load はロック取得済みの前提で状態を読み出す。
func (s *Store) load(id string) State {
	e, ok := s.entries[id]
	if !ok {
		return State{Phase: PhaseAnonymous}
	}
	if s.expired(e) {
		delete(s.entries, id)
		return State{Phase: PhaseAnonymous}
	}
	e.lastAccess = s.now()
	return e.state
}

// save はロック取得済みの前提で状態を書き込む。
// 通知のないAnonymousはエントリ自体を削除する。
func (s *Store) save(id string, state State) {
	if state.Phase == PhaseAnonymous && state.Notice == nil {
		delete(s.entries, id)
		return
	}
	if _, ok := s.entries[id]; !ok {
		s.makeRoom()
	}
	s.entries[id] = &entry{state: state, lastAccess: s.now()}
}

// makeRoom はロック取得済みの前提で、上限に達していれば1件分の空きを作る。
// 期限切れを先に削除し、それでも足りなければ通知のみのエントリ、
// ログイン済みエントリの順に最終アクセスが最も古いものを追い出す。
// 試行中のエントリは追い出さない。
func (s *Store) makeRoom() {
	if s.maxEntries <= 0 || len(s.entries) < s.maxEntries {
		return
	}
	s.removeExpired()
	if len(s.entries) < s.maxEntries {
		return
	}

	for _, phase := range []Phase{PhaseAnonymous, PhaseAuthenticated} {
		var oldestID string
		var oldest time.Time
		for id, e := range s.entries {
			if e.state.Phase != phase {
				continue
			}
			if oldestID == "" || e.lastAccess.Before(oldest) {
				oldestID, oldest = id, e.lastAccess
			}
		}
		if oldestID != "" {
			delete(s.entries, oldestID)
			return
		}
	}
}

func (s *Store) expired(e *entry) bool {
	ttl := s.maxAge
	if e.state.Phase == PhaseAnonymous && s.noticeTTL > 0 && (ttl <= 0 || s.noticeTTL < ttl) {
		ttl = s.noticeTTL
	}
	return ttl > 0 && s.now().Sub(e.lastAccess) > ttl
}

// cleanupLoop はバックグラウンドで期限切れエントリを定期的にクリーンアップする。
func (s *Store) cleanupLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.cleanup()
		case <-s.stopCh:
			return
		}
	}
}

// cleanup は期限切れのエントリを削除する。
func (s *Store) cleanup() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.removeExpired()
}

// removeExpired はロック取得済みの前提で期限切れのエントリを削除する。
func (s *Store) removeExpired() {
	for id, e := range s.entries {
		if s.expired(e) {
			delete(s.entries, id)
		}
	}
}
