// Package catalog は、取得した作品とチャプターをSQLiteに保存します。
// ページは取得のたびに変わるため保存しません。
package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"GoMangaParsers/internal/model"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
)

// ErrNotFound は、指定した作品が保存されていないことを示します。
var ErrNotFound = errors.New("作品がカタログに存在しません")

const schema = `
CREATE TABLE IF NOT EXISTS works (
	id              TEXT PRIMARY KEY,
	source          TEXT NOT NULL,
	url             TEXT NOT NULL,
	public_url      TEXT NOT NULL DEFAULT '',
	title           TEXT NOT NULL,
	alt_title       TEXT NOT NULL DEFAULT '',
	author          TEXT NOT NULL DEFAULT '',
	cover_url       TEXT NOT NULL DEFAULT '',
	large_cover_url TEXT NOT NULL DEFAULT '',
	description     TEXT NOT NULL DEFAULT '',
	state           TEXT NOT NULL DEFAULT '',
	rating          REAL NOT NULL DEFAULT -1,
	nsfw            INTEGER NOT NULL DEFAULT 0,
	updated_at      INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_works_source ON works(source);

CREATE TABLE IF NOT EXISTS work_tags (
	work_id TEXT NOT NULL REFERENCES works(id) ON DELETE CASCADE,
	key     TEXT NOT NULL,
	title   TEXT NOT NULL,
	source  TEXT NOT NULL,
	PRIMARY KEY (work_id, key)
);

CREATE TABLE IF NOT EXISTS chapters (
	id          TEXT PRIMARY KEY,
	work_id     TEXT NOT NULL REFERENCES works(id) ON DELETE CASCADE,
	number      INTEGER NOT NULL,
	name        TEXT NOT NULL,
	url         TEXT NOT NULL,
	scanlator   TEXT NOT NULL DEFAULT '',
	branch      TEXT NOT NULL DEFAULT '',
	upload_date INTEGER NOT NULL DEFAULT 0,
	source      TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_chapters_work ON chapters(work_id, number);
`

// Store は、SQLiteデータベースに対する作品の保存と読み出しを提供します。
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// Open は、path のデータベースを開き、必要なテーブルを作成します。
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("カタログのディレクトリ作成に失敗しました: %w", err)
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("カタログのオープンに失敗しました: %w", err)
	}
	// PRAGMA は接続ごとの設定のため、接続を1本に固定する
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(`PRAGMA foreign_keys = ON;`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("pragma foreign_keys: %w", err)
	}
	if _, err := db.Exec(`PRAGMA journal_mode = WAL;`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("pragma journal_mode: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("カタログのスキーマ作成に失敗しました: %w", err)
	}
	return &Store{db: db, now: time.Now}, nil
}

// Close は、データベースを閉じます。
func (s *Store) Close() error {
	return s.db.Close()
}

// SaveWork は、作品を1つのトランザクションで保存します。
// タグは常に置き換えます。チャプターは w.Chapters が nil でない場合のみ置き換えます。
func (s *Store) SaveWork(ctx context.Context, w model.Work) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	id := w.ID.String()
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO works (id, source, url, public_url, title, alt_title, author, cover_url,
		                   large_cover_url, description, state, rating, nsfw, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
		  source = excluded.source,
		  url = excluded.url,
		  public_url = excluded.public_url,
		  title = excluded.title,
		  alt_title = excluded.alt_title,
		  author = excluded.author,
		  cover_url = excluded.cover_url,
		  large_cover_url = excluded.large_cover_url,
		  description = excluded.description,
		  state = excluded.state,
		  rating = excluded.rating,
		  nsfw = excluded.nsfw,
		  updated_at = excluded.updated_at
	`, id, w.Source, w.URL, w.PublicURL, w.Title, w.AltTitle, w.Author, w.CoverURL,
		w.LargeCoverURL, w.Description, string(w.State), w.Rating, w.NSFW, s.now().UnixMilli()); err != nil {
		return fmt.Errorf("exec upsert for %s: %w", id, err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM work_tags WHERE work_id = ?`, id); err != nil {
		return fmt.Errorf("delete tags for %s: %w", id, err)
	}
	for _, t := range model.UniqueTags(w.Tags) {
		if _, err := tx.ExecContext(ctx,
			`INSERT OR IGNORE INTO work_tags (work_id, key, title, source) VALUES (?, ?, ?, ?)`,
			id, t.Key, t.Title, t.Source); err != nil {
			return fmt.Errorf("insert tag %s for %s: %w", t.Key, id, err)
		}
	}

	if w.Chapters != nil {
		if _, err := tx.ExecContext(ctx, `DELETE FROM chapters WHERE work_id = ?`, id); err != nil {
			return fmt.Errorf("delete chapters for %s: %w", id, err)
		}
		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO chapters (id, work_id, number, name, url, scanlator, branch, upload_date, source)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET
			  work_id = excluded.work_id,
			  number = excluded.number,
			  name = excluded.name,
			  url = excluded.url,
			  scanlator = excluded.scanlator,
			  branch = excluded.branch,
			  upload_date = excluded.upload_date,
			  source = excluded.source
		`)
		if err != nil {
			return fmt.Errorf("prepare stmt: %w", err)
		}
		defer stmt.Close()
		for _, c := range w.Chapters {
			if _, err := stmt.ExecContext(ctx, c.ID.String(), id, c.Number, c.Name, c.URL,
				c.Scanlator, c.Branch, c.UploadDate, c.Source); err != nil {
				return fmt.Errorf("exec upsert for chapter %s: %w", c.ID, err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// GetWork は、保存された作品をタグとチャプターを含めて返します。
// 存在しない場合は ErrNotFound を返します。
func (s *Store) GetWork(ctx context.Context, id uuid.UUID) (model.Work, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, source, url, public_url, title, alt_title, author, cover_url,
		       large_cover_url, description, state, rating, nsfw
		FROM works WHERE id = ?`, id.String())
	w, err := scanWork(row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Work{}, ErrNotFound
	}
	if err != nil {
		return model.Work{}, fmt.Errorf("作品 %s の読み込みに失敗しました: %w", id, err)
	}

	if w.Tags, err = s.tags(ctx, id); err != nil {
		return model.Work{}, err
	}
	if w.Chapters, err = s.chapters(ctx, id); err != nil {
		return model.Work{}, err
	}
	return w, nil
}

// ListWorks は、source の作品をタイトル順に返します。チャプターは含みません。
func (s *Store) ListWorks(ctx context.Context, source string) ([]model.Work, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, source, url, public_url, title, alt_title, author, cover_url,
		       large_cover_url, description, state, rating, nsfw
		FROM works WHERE source = ? ORDER BY title, id`, source)
	if err != nil {
		return nil, fmt.Errorf("作品一覧の読み込みに失敗しました: %w", err)
	}
	defer rows.Close()

	var works []model.Work
	for rows.Next() {
		w, err := scanWork(rows)
		if err != nil {
			return nil, fmt.Errorf("作品一覧の読み込みに失敗しました: %w", err)
		}
		works = append(works, w)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i := range works {
		if works[i].Tags, err = s.tags(ctx, works[i].ID); err != nil {
			return nil, err
		}
	}
	return works, nil
}

// DeleteWork は、作品と、それに属するタグとチャプターを削除します。
func (s *Store) DeleteWork(ctx context.Context, id uuid.UUID) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM works WHERE id = ?`, id.String())
	if err != nil {
		return fmt.Errorf("作品 %s の削除に失敗しました: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanWork(sc scanner) (model.Work, error) {
	var (
		w     model.Work
		id    string
		state string
	)
	if err := sc.Scan(&id, &w.Source, &w.URL, &w.PublicURL, &w.Title, &w.AltTitle, &w.Author,
		&w.CoverURL, &w.LargeCoverURL, &w.Description, &state, &w.Rating, &w.NSFW); err != nil {
		return model.Work{}, err
	}
	parsed, err := uuid.Parse(id)
	if err != nil {
		return model.Work{}, fmt.Errorf("不正なID %q: %w", id, err)
	}
	w.ID = parsed
	w.State = model.State(state)
	return w, nil
}

func (s *Store) tags(ctx context.Context, id uuid.UUID) ([]model.Tag, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT key, title, source FROM work_tags WHERE work_id = ? ORDER BY rowid`, id.String())
	if err != nil {
		return nil, fmt.Errorf("作品 %s のタグの読み込みに失敗しました: %w", id, err)
	}
	defer rows.Close()

	var tags []model.Tag
	for rows.Next() {
		var t model.Tag
		if err := rows.Scan(&t.Key, &t.Title, &t.Source); err != nil {
			return nil, err
		}
		tags = append(tags, t)
	}
	return tags, rows.Err()
}

func (s *Store) chapters(ctx context.Context, id uuid.UUID) ([]model.Chapter, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, number, name, url, scanlator, branch, upload_date, source
		FROM chapters WHERE work_id = ? ORDER BY number`, id.String())
	if err != nil {
		return nil, fmt.Errorf("作品 %s のチャプターの読み込みに失敗しました: %w", id, err)
	}
	defer rows.Close()

	chapters := []model.Chapter{}
	for rows.Next() {
		var (
			c   model.Chapter
			cid string
		)
		if err := rows.Scan(&cid, &c.Number, &c.Name, &c.URL, &c.Scanlator, &c.Branch, &c.UploadDate, &c.Source); err != nil {
			return nil, err
		}
		if c.ID, err = uuid.Parse(cid); err != nil {
			return nil, fmt.Errorf("不正なID %q: %w", cid, err)
		}
		chapters = append(chapters, c)
	}
	return chapters, rows.Err()
}
