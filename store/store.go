// Package store persists noteflow data through gorm. MySQL, PostgreSQL and
// SQLite are supported; every check-then-write sequence runs inside a
// transaction and leans on the unique indexes declared in package models.
package store

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/glebarez/sqlite"
	mysqldriver "github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"noteflow/models"
)

var (
	ErrNotFound         = errors.New("record not found")
	ErrEmailTaken       = errors.New("user with this email already exists")
	ErrAlreadyPurchased = errors.New("you have already purchased this note")
	ErrNothingToUpdate  = errors.New("no valid fields provided for update")
)

const (
	DefaultLimit = 20
	MaxLimit     = 100
)

type Store struct {
	db *gorm.DB

	Users     *UserRepo
	Notes     *NoteRepo
	Payments  *PaymentRepo
	Comments  *CommentRepo
	Likes     *AssocRepo[models.Like]
	Bookmarks *AssocRepo[models.Bookmark]
}

func dialector(driver, dsn string) (gorm.Dialector, error) {
	switch driver {
	case "mysql":
		return mysql.Open(dsn), nil
	case "postgres":
		return postgres.Open(dsn), nil
	case "sqlite":
		return sqlite.Open(dsn), nil
	default:
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}
}

func Open(driver, dsn string, maxOpenConns int) (*Store, error) {
	d, err := dialector(driver, dsn)
	if err != nil {
		return nil, err
	}
	db, err := gorm.Open(d, &gorm.Config{
		TranslateError: true,
		Logger:         logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("connect %s: %w", driver, err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	if driver == "sqlite" {
		// sqlite 只允许一个写连接
		maxOpenConns = 1
	}
	if maxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(maxOpenConns)
	}
	return New(db), nil
}

func New(db *gorm.DB) *Store {
	return &Store{
		db:       db,
		Users:    &UserRepo{db: db},
		Notes:    &NoteRepo{db: db},
		Payments: &PaymentRepo{db: db},
		Comments: &CommentRepo{db: db},
		Likes: &AssocRepo[models.Like]{db: db, table: "likes", build: func(userID, noteID string) *models.Like {
			return &models.Like{UserID: userID, NoteID: noteID}
		}},
		Bookmarks: &AssocRepo[models.Bookmark]{db: db, table: "bookmarks", build: func(userID, noteID string) *models.Bookmark {
			return &models.Bookmark{UserID: userID, NoteID: noteID}
		}},
	}
}

func (s *Store) Migrate(ctx context.Context) error {
	if err := s.db.WithContext(ctx).AutoMigrate(models.All()...); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}

func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// isUniqueViolation reports a duplicate key on any supported dialect.
func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var myErr *mysqldriver.MySQLError
	if errors.As(err, &myErr) && myErr.Number == 1062 {
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return true
	}
	// sqlite 驱动只给出错误文本
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}

func notFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return err
}

// Page is a limit/offset window.
type Page struct {
	Limit  int `json:"limit"`
	Offset int `json:"offset"`
}

// Clamp applies def when no limit was given and caps the limit at MaxLimit.
func (p Page) Clamp(def int) Page {
	if p.Limit <= 0 {
		p.Limit = def
	}
	if p.Limit > MaxLimit {
		p.Limit = MaxLimit
	}
	if p.Offset < 0 {
		p.Offset = 0
	}
	return p
}

func (p Page) apply(q *gorm.DB) *gorm.DB {
	return q.Limit(p.Limit).Offset(p.Offset)
}
