package database

import (
	"errors"
	"log"

	"github.com/jackc/pgx/v5/pgconn"
)

// PostgreSQL error code dùng để phân loại lỗi driver
const codeUniqueViolation = "23505"

// Close đóng pool. Gọi nhiều lần vẫn an toàn.
func (db *PostgresDB) Close() error {
	if db.Pool == nil {
		log.Println("[DATABASE] Pool is already closed or was never initialized")
		return nil
	}

	log.Println("[DATABASE] Closing database connection pool...")
	db.Pool.Close()
	db.Pool = nil
	log.Println("[DATABASE] Connection pool closed")
	return nil
}

// IsUniqueViolation kiểm tra lỗi UNIQUE constraint (vd: trùng tên category)
func IsUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == codeUniqueViolation
}

// IsConnectionError: lỗi mạng/kết nối, có thể retry ở lần reconcile sau
func IsConnectionError(err error) bool {
	var connectErr *pgconn.ConnectError
	if errors.As(err, &connectErr) {
		return true
	}
	return pgconn.SafeToRetry(err) || pgconn.Timeout(err)
}
