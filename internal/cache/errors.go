package cache

import (
	"context"
	"errors"
	"fmt"
	"net"
	"syscall"

	"github.com/bradfitz/gomemcache/memcache"
	"github.com/jackc/pgx/v5/pgconn"
	msqlite "modernc.org/sqlite"
)

// Error codes reported in the connectivity status when the driver gives none.
const (
	CodeInvalidConfig = "INVALID_CONFIG"
	CodeNotConfigured = "NOT_CONFIGURED"
	CodeTimeout       = "ETIMEDOUT"
	CodeHostNotFound  = "ENOTFOUND"
	CodeNoServers     = "MEMCACHE_NO_SERVERS"
	CodeServerError   = "MEMCACHE_SERVER_ERROR"
	CodeUnknown       = "UNKNOWN"
)

var errnoNames = map[syscall.Errno]string{
	syscall.ECONNREFUSED: "ECONNREFUSED",
	syscall.ECONNRESET:   "ECONNRESET",
	syscall.EHOSTUNREACH: "EHOSTUNREACH",
	syscall.ENETUNREACH:  "ENETUNREACH",
	syscall.ETIMEDOUT:    "ETIMEDOUT",
	syscall.EPIPE:        "EPIPE",
	syscall.ENOENT:       "ENOENT",
	syscall.EACCES:       "EACCES",
}

// ErrorCode derives a stable code for a store error: the Postgres SQLSTATE,
// the SQLite result code, the errno name or one of the Code constants.
func ErrorCode(err error) string {
	if err == nil {
		return ""
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code
	}
	var sqliteErr *msqlite.Error
	if errors.As(err, &sqliteErr) {
		return fmt.Sprintf("SQLITE_%d", sqliteErr.Code())
	}
	var parseErr *pgconn.ParseConfigError
	if errors.As(err, &parseErr) {
		return CodeInvalidConfig
	}
	if errors.Is(err, ErrNotConfigured) {
		return CodeNotConfigured
	}

	var errno syscall.Errno
	if errors.As(err, &errno) {
		if name, ok := errnoNames[errno]; ok {
			return name
		}
		return fmt.Sprintf("ERRNO_%d", int(errno))
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return CodeHostNotFound
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return CodeTimeout
	}
	var connectTimeout *memcache.ConnectTimeoutError
	if errors.As(err, &connectTimeout) {
		return CodeTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return CodeTimeout
	}
	if errors.Is(err, memcache.ErrNoServers) {
		return CodeNoServers
	}
	if errors.Is(err, memcache.ErrServerError) {
		return CodeServerError
	}
	return CodeUnknown
}
