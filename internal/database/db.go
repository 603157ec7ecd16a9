// Package database opens the connections behind the credential store
// drivers.
package database

import (
	"context"
	"database/sql"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/pkg/errors"
)

// MySQLParams locates the MySQL database.
type MySQLParams struct {
	User string
	Pass string
	Host string
	Port string
	Name string
}

// DSN renders the driver DSN. parseTime maps DATETIME to time.Time and
// loc=UTC keeps stored times consistent.
func (p MySQLParams) DSN() string {
	c := mysql.NewConfig()
	c.User = p.User
	c.Passwd = p.Pass
	c.Net = "tcp"
	c.Addr = p.Host + ":" + p.Port
	c.DBName = p.Name
	c.ParseTime = true
	c.Loc = time.UTC
	c.Params = map[string]string{"charset": "utf8mb4"}
	return c.FormatDSN()
}

// OpenMySQL connects to MySQL and verifies the connection.
func OpenMySQL(ctx context.Context, p MySQLParams) (*sql.DB, error) {
	db, err := sql.Open("mysql", p.DSN())
	if err != nil {
		return nil, errors.Wrap(err, "open mysql")
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(30 * time.Minute)

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, errors.Wrap(err, "ping mysql")
	}
	return db, nil
}
