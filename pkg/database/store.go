// Package database 提供关系型存储的连接管理与 execute / query / transaction 原语。
package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"gorm.io/driver/mysql"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"pai-dashboard-go/internal/apperror"
	"pai-dashboard-go/pkg/log"
)

// Options 描述如何打开存储。
type Options struct {
	Driver    string // sqlite 或 mysql
	DSN       string
	OpTimeout time.Duration // 单次操作的超时时间，<=0 表示不设超时
}

// Statement 是一条带参数的 SQL 语句。
type Statement struct {
	SQL  string
	Args []interface{}
}

// Result 是 Execute 的返回值。不支持 LastInsertId 的驱动 InsertedID 为 0。
type Result struct {
	InsertedID   int64
	RowsAffected int64
}

// Row 是 Query 返回的一行，键为列名。
type Row = map[string]interface{}

// Store 持有进程内共享的数据库连接。由调用方显式 Open/Close，不使用全局变量。
type Store struct {
	db        *gorm.DB
	opTimeout time.Duration
}

// Open 打开数据库连接并配置连接池。
func Open(opts Options) (*Store, error) {
	var dialector gorm.Dialector
	switch opts.Driver {
	case "sqlite", "":
		dialector = sqlite.Open(opts.DSN)
	case "mysql":
		dialector = mysql.Open(opts.DSN)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", opts.Driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		// 统一使用 UTC，保证按时间排序在各驱动下一致
		NowFunc: func() time.Time { return time.Now().UTC() },
		Logger:  logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get sql.DB: %w", err)
	}

	if opts.Driver == "mysql" {
		sqlDB.SetMaxIdleConns(10)           // 设置空闲连接池中连接的最大数量
		sqlDB.SetMaxOpenConns(100)          // 设置打开数据库连接的最大数量
		sqlDB.SetConnMaxLifetime(time.Hour) // 设置了连接可复用的最大时间
	} else {
		// SQLite 单写者：只保留一个连接，所有写入串行化。
		// 连接永不过期，否则 :memory: 数据库会随连接一起丢失。
		sqlDB.SetMaxOpenConns(1)
		sqlDB.SetMaxIdleConns(1)
		sqlDB.SetConnMaxLifetime(0)
	}

	log.Infof("%s database connected successfully", dialector.Name())
	return &Store{db: db, opTimeout: opts.OpTimeout}, nil
}

// Migrate 根据模型创建或更新表结构。
func (s *Store) Migrate(models ...interface{}) error {
	if err := s.db.AutoMigrate(models...); err != nil {
		return fmt.Errorf("failed to migrate schema: %w", err)
	}
	return nil
}

// Close 关闭底层连接池。
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Ping 检查连接是否可用。
func (s *Store) Ping(ctx context.Context) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func (s *Store) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.opTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.opTimeout)
}

// Execute 执行一条写语句。约束冲突或连接失败时返回 STORAGE 错误。
func (s *Store) Execute(ctx context.Context, statement string, args ...interface{}) (Result, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	sqlDB, err := s.db.DB()
	if err != nil {
		return Result{}, apperror.Storage("execute statement", err)
	}
	res, err := sqlDB.ExecContext(ctx, statement, args...)
	if err != nil {
		log.Error("Statement execution failed", err)
		return Result{}, apperror.Storage("execute statement", err)
	}

	var out Result
	if id, err := res.LastInsertId(); err == nil {
		out.InsertedID = id
	}
	if n, err := res.RowsAffected(); err == nil {
		out.RowsAffected = n
	}
	return out, nil
}

// Query 执行一条读语句。没有匹配行时返回空切片而不是错误。
// 每个值都是驱动返回的普通值，[]byte 转为 string。
func (s *Store) Query(ctx context.Context, statement string, args ...interface{}) ([]Row, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	sqlDB, err := s.db.DB()
	if err != nil {
		return nil, apperror.Storage("query", err)
	}
	rows, err := sqlDB.QueryContext(ctx, statement, args...)
	if err != nil {
		log.Error("Query execution failed", err)
		return nil, apperror.Storage("query", err)
	}
	defer rows.Close()

	out, err := scanRows(rows)
	if err != nil {
		log.Error("Query scan failed", err)
		return nil, apperror.Storage("query", err)
	}
	return out, nil
}

func scanRows(rows *sql.Rows) ([]Row, error) {
	columns, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	out := make([]Row, 0)
	values := make([]interface{}, len(columns))
	dest := make([]interface{}, len(columns))
	for i := range values {
		dest[i] = &values[i]
	}
	for rows.Next() {
		if err := rows.Scan(dest...); err != nil {
			return nil, err
		}
		row := make(Row, len(columns))
		for i, col := range columns {
			if b, ok := values[i].([]byte); ok {
				row[col] = string(b)
			} else {
				row[col] = values[i]
			}
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

// Transaction 在一个事务中依次执行全部语句，任一失败则整体回滚。
func (s *Store) Transaction(ctx context.Context, statements []Statement) error {
	return s.WithTx(ctx, "transaction", func(tx *gorm.DB) error {
		for i, st := range statements {
			if err := tx.Exec(st.SQL, st.Args...).Error; err != nil {
				return fmt.Errorf("statement %d: %w", i, err)
			}
		}
		return nil
	})
}

// WithTx 在事务中运行 fn。fn 返回的分类错误原样透传，其余错误包装为 STORAGE 错误。
// fn 内只能使用传入的 tx，SQLite 下使用外部连接会因单连接而阻塞。
func (s *Store) WithTx(ctx context.Context, op string, fn func(tx *gorm.DB) error) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	err := s.db.WithContext(ctx).Transaction(fn)
	return wrap(op, err)
}

// Run 在超时上下文中执行一次非事务的 gorm 操作，错误处理同 WithTx。
func (s *Store) Run(ctx context.Context, op string, fn func(db *gorm.DB) error) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	return wrap(op, fn(s.db.WithContext(ctx)))
}

func wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	if _, ok := apperror.As(err); ok {
		return err
	}
	log.Errorw("Storage operation failed", "op", op, "error", err)
	return apperror.Storage(op, err)
}
