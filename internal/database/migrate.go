package database

import (
	"embed"
	"fmt"
	"net/url"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/mongodb"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed migrations/*.json
var migrationsFS embed.FS

// NewMigrator はマイグレーション実行用のmigrateインスタンスを生成する。
// mongoURIはデータベース名を含むMongoDBの接続URIを指定する
// （例: "mongodb://localhost:27017/neuroscan"）。
// マイグレーションファイルはデータベースコマンドのJSON配列で、
// インデックス（email一意制約、pending_usersのTTL等）の作成に使用する。
func NewMigrator(mongoURI string) (*migrate.Migrate, error) {
	source, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return nil, fmt.Errorf("failed to create migration source: %w", err)
	}

	m, err := migrate.NewWithSourceInstance("iofs", source, mongoURI)
	if err != nil {
		return nil, fmt.Errorf("failed to create migrator: %w", err)
	}

	return m, nil
}

// MigrateURI は接続URIにデータベース名を補ってマイグレーション用URIを作る。
// URIに既にパスが含まれる場合はそのまま返す。パースできないURIもそのまま返し、
// エラーは接続時に表面化させる。
func MigrateURI(mongoURI, databaseName string) string {
	u, err := url.Parse(mongoURI)
	if err != nil {
		return mongoURI
	}
	if u.Path != "" && u.Path != "/" {
		return mongoURI
	}
	u.Path = "/" + databaseName
	return u.String()
}

// RunMigrations はすべてのマイグレーションを適用する。
// すでに最新の場合はエラーなしで返る。
func RunMigrations(mongoURI string) error {
	m, err := NewMigrator(mongoURI)
	if err != nil {
		return err
	}
	defer m.Close()

	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	return nil
}
